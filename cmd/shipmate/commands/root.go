package commands

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/loadinglucian/shipmate/pkg/config"
	"github.com/loadinglucian/shipmate/pkg/history"
	"github.com/loadinglucian/shipmate/pkg/inventory"
	"github.com/loadinglucian/shipmate/pkg/playbook"
	"github.com/loadinglucian/shipmate/pkg/provision"
	"github.com/loadinglucian/shipmate/pkg/telemetry"
)

// Execute runs the root command
func Execute(ctx context.Context, cfg *config.Config, version, commit, buildDate string) error {
	rootCmd := newRootCommand(cfg, version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(cfg *config.Config, version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "shipmate",
		Short: "Shipmate - server fleet management",
		Long: `Shipmate manages a small fleet of servers from the command line.

Features:
  - Provision servers at Hetzner Cloud or DigitalOcean with automatic
    rollback of partially created resources
  - Dispatch idempotent playbooks over SSH
  - Track servers and sites in a plain YAML inventory
  - Review past runs with the history command`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newServerCommand(cfg))
	rootCmd.AddCommand(newProvisionCommand(cfg))
	rootCmd.AddCommand(newPlaybookCommand(cfg))
	rootCmd.AddCommand(newHistoryCommand(cfg))

	return rootCmd
}

// app bundles the stores and services a command needs. Commands open it
// in RunE so a bad flag never touches the filesystem.
type app struct {
	cfg      *config.Config
	registry *inventory.Registry
	history  *history.Store
	metrics  *telemetry.Metrics
}

func openApp(ctx context.Context, cfg *config.Config) (*app, error) {
	store, err := inventory.Open(cfg.InventoryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open inventory: %w", err)
	}

	hist, err := history.Open(ctx, cfg.HistoryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}

	return &app{
		cfg:      cfg,
		registry: inventory.NewRegistry(store),
		history:  hist,
		metrics:  telemetry.NewMetrics("shipmate"),
	}, nil
}

func (a *app) close() {
	if err := a.history.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close history store")
	}
}

// dispatcher builds the playbook dispatcher with history and metrics
// attached.
func (a *app) dispatcher() *playbook.Dispatcher {
	return playbook.NewDispatcher(playbook.NewCatalog(),
		playbook.WithMetrics(a.metrics),
		playbook.WithRecorder(a.history),
	)
}

// providerFor resolves the compiled-in provider for name, requiring its
// API token to be configured.
func (a *app) providerFor(name inventory.Provider) (provision.Provider, error) {
	switch name {
	case inventory.ProviderHetzner:
		if a.cfg.HetznerToken == "" {
			return nil, fmt.Errorf("HCLOUD_TOKEN is not set")
		}
		return provision.NewHetznerProvider(a.cfg.HetznerToken), nil
	case inventory.ProviderDigitalOcean:
		if a.cfg.DigitalOceanToken == "" {
			return nil, fmt.Errorf("DIGITALOCEAN_TOKEN is not set")
		}
		return provision.NewDigitalOceanProvider(a.cfg.DigitalOceanToken), nil
	default:
		return nil, fmt.Errorf("unknown provider %q (expected hetzner or digitalocean)", name)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
