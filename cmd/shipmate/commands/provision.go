package commands

import (
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/loadinglucian/shipmate/pkg/config"
	"github.com/loadinglucian/shipmate/pkg/inventory"
	"github.com/loadinglucian/shipmate/pkg/provision"
)

func newProvisionCommand(cfg *config.Config) *cobra.Command {
	var (
		providerName string
		region       string
		size         string
		image        string
		sshKeys      []string
		user         string
		keyPath      string
		userData     string
	)

	cmd := &cobra.Command{
		Use:   "provision <name>",
		Short: "Provision a new server at a cloud provider",
		Long: `Provision a new server and register it in the inventory.

The run walks a fixed sequence: create the resource, wait until the
provider reports it running, resolve its public address, verify an SSH
session can be opened, then register it. If any step fails, everything
created so far is destroyed again, in reverse order, before the error is
reported. A validation failure creates nothing.`,
		Example: `  # Provision a Hetzner server
  shipmate provision web1 --provider hetzner --region fsn1 \
    --size cx22 --image ubuntu-24.04 --ssh-key ops

  # Provision a DigitalOcean droplet behind a reserved IP
  shipmate provision web2 --provider digitalocean --region fra1 \
    --size s-1vcpu-1gb --image ubuntu-24-04-x64 --ssh-key aa:bb:cc`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer app.close()

			provider, err := app.providerFor(inventory.Provider(providerName))
			if err != nil {
				return err
			}

			spec := &provision.Spec{
				Name:           args[0],
				Provider:       inventory.Provider(providerName),
				Region:         region,
				Size:           size,
				Image:          image,
				SSHKeys:        sshKeys,
				Username:       user,
				CredentialPath: keyPath,
				UserData:       userData,
			}

			orchestrator := provision.New(provider, app.registry,
				provision.WithMetrics(app.metrics),
				provision.WithRecorder(app.history),
				provision.WithStateFunc(func(state provision.State) {
					log.Info().Str("state", string(state)).Msg("Provisioning")
				}),
			)

			record, err := orchestrator.Provision(cmd.Context(), spec)
			if err != nil {
				var pe *provision.Error
				if errors.As(err, &pe) && len(pe.CleanupFailures) > 0 {
					for _, cf := range pe.CleanupFailures {
						log.Error().
							Str("step", cf.Step).
							Str("resource_id", cf.ResourceID).
							Err(cf.Err).
							Msg("Manual cleanup required")
					}
				}
				return err
			}

			log.Info().
				Str("name", record.Name).
				Str("host", record.Host).
				Msg("Server provisioned and registered")
			return nil
		},
	}

	cmd.Flags().StringVar(&providerName, "provider", "", "cloud provider: hetzner or digitalocean (required)")
	cmd.Flags().StringVar(&region, "region", "", "provider region (required)")
	cmd.Flags().StringVar(&size, "size", "", "server size or type (required)")
	cmd.Flags().StringVar(&image, "image", "", "OS image (required)")
	cmd.Flags().StringSliceVar(&sshKeys, "ssh-key", nil, "provider-side SSH key name, ID or fingerprint (repeatable, required)")
	cmd.Flags().StringVar(&user, "user", "root", "SSH user for the new server")
	cmd.Flags().StringVar(&keyPath, "key", "~/.ssh/id_ed25519", "SSH private key path for the new server")
	cmd.Flags().StringVar(&userData, "user-data", "", "cloud-init user data")
	_ = cmd.MarkFlagRequired("provider")
	_ = cmd.MarkFlagRequired("region")
	_ = cmd.MarkFlagRequired("size")
	_ = cmd.MarkFlagRequired("image")
	_ = cmd.MarkFlagRequired("ssh-key")

	return cmd
}
