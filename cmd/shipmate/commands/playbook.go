package commands

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/loadinglucian/shipmate/pkg/config"
	"github.com/loadinglucian/shipmate/pkg/playbook"
)

func newPlaybookCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "playbook",
		Short: "Dispatch playbooks against servers",
	}

	cmd.AddCommand(newPlaybookListCommand())
	cmd.AddCommand(newPlaybookRunCommand(cfg))
	cmd.AddCommand(newFirewallCommand(cfg))

	return cmd
}

func newPlaybookListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available playbooks",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog := playbook.NewCatalog()

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tREQUIRED PARAMS\tDESCRIPTION")
			for _, name := range catalog.Names() {
				pb, err := catalog.Get(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", pb.Name, strings.Join(pb.Required, ","), pb.Description)
			}
			return w.Flush()
		},
	}
}

func newPlaybookRunCommand(cfg *config.Config) *cobra.Command {
	var (
		serverName string
		params     []string
	)

	cmd := &cobra.Command{
		Use:   "run <playbook>",
		Short: "Run a playbook on a server",
		Long: `Run a named playbook on a named server.

Parameters are passed as KEY=VALUE pairs and exported into the playbook's
environment. Missing required parameters are rejected before anything is
sent to the server.`,
		Example: `  # Check a server is reachable
  shipmate playbook run server.ping --server web1

  # Open firewall ports
  shipmate playbook run firewall.configure --server web1 \
    --param FIREWALL_ALLOW_PORTS=22,80,443`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer app.close()

			server, err := app.registry.GetServer(serverName)
			if err != nil {
				return err
			}

			paramMap := map[string]string{}
			for _, p := range params {
				key, value, ok := strings.Cut(p, "=")
				if !ok {
					return fmt.Errorf("invalid parameter %q (expected KEY=VALUE)", p)
				}
				paramMap[key] = value
			}

			result, err := app.dispatcher().Dispatch(cmd.Context(), server, args[0], paramMap)
			if err != nil {
				return err
			}

			printResult(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&serverName, "server", "", "inventory server name (required)")
	cmd.Flags().StringSliceVar(&params, "param", nil, "playbook parameter as KEY=VALUE (repeatable)")
	_ = cmd.MarkFlagRequired("server")

	return cmd
}

func newFirewallCommand(cfg *config.Config) *cobra.Command {
	var (
		serverName string
		allowPorts []string
	)

	cmd := &cobra.Command{
		Use:   "firewall",
		Short: "Configure the firewall on a server",
		Long: `Install and enable the ufw firewall and open the given ports.

The decision whether anything needs to change is made from the server's
cached information snapshot: if the firewall is already active and every
requested port is open, no playbook is dispatched at all.`,
		Example: `  shipmate playbook firewall --server web1 --allow 22 --allow 80 --allow 443`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer app.close()

			server, err := app.registry.GetServer(serverName)
			if err != nil {
				return err
			}

			dispatcher := app.dispatcher()
			if len(server.Info) == 0 {
				if _, err := dispatcher.RefreshInfo(cmd.Context(), app.registry, server); err != nil {
					return err
				}
			}

			info := playbook.Result(server.Info)
			active, _ := info.Bool("ufw_active")
			rules, _ := info.Strings("ufw_rules")
			if active && containsAll(rules, allowPorts) {
				log.Info().Str("server", serverName).Msg("Firewall already configured, nothing to do")
				return nil
			}

			result, err := dispatcher.Dispatch(cmd.Context(), server, "firewall.configure", map[string]string{
				"FIREWALL_ALLOW_PORTS": strings.Join(allowPorts, ","),
			})
			if err != nil {
				return err
			}

			// The snapshot is stale now that rules changed.
			if _, err := dispatcher.RefreshInfo(cmd.Context(), app.registry, server); err != nil {
				log.Warn().Err(err).Msg("failed to refresh server information")
			}

			printResult(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&serverName, "server", "", "inventory server name (required)")
	cmd.Flags().StringSliceVar(&allowPorts, "allow", nil, "port to allow (repeatable, required)")
	_ = cmd.MarkFlagRequired("server")
	_ = cmd.MarkFlagRequired("allow")

	return cmd
}

// containsAll reports whether every wanted port appears among the rules.
// Rules read "22/tcp" while ports are bare numbers, so rules are matched
// on their port prefix.
func containsAll(rules, ports []string) bool {
	set := map[string]bool{}
	for _, r := range rules {
		port, _, _ := strings.Cut(r, "/")
		set[port] = true
	}
	for _, p := range ports {
		if !set[p] {
			return false
		}
	}
	return true
}

func printResult(result playbook.Result) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tVALUE")
	keys := make([]string, 0, len(result))
	for k := range result {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%s\t%v\n", k, result[k])
	}
	_ = w.Flush()
}
