package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/loadinglucian/shipmate/pkg/config"
	"github.com/loadinglucian/shipmate/pkg/inventory"
)

func newServerCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Manage servers in the inventory",
	}

	cmd.AddCommand(newServerAddCommand(cfg))
	cmd.AddCommand(newServerListCommand(cfg))
	cmd.AddCommand(newServerDeleteCommand(cfg))
	cmd.AddCommand(newServerInfoCommand(cfg))

	return cmd
}

func newServerAddCommand(cfg *config.Config) *cobra.Command {
	var (
		host    string
		port    int
		user    string
		keyPath string
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add an existing server to the inventory",
		Long: `Add a server that already exists to the inventory.

The server is recorded with provider "none": shipmate will manage it over
SSH but never create or destroy cloud resources for it.`,
		Example: `  # Add a server reachable as root with the default key
  shipmate server add web1 --host 203.0.113.10

  # Add a server with a custom user and key
  shipmate server add db1 --host 203.0.113.11 --user deploy --key ~/.ssh/fleet`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer app.close()

			record := &inventory.ServerRecord{
				Name:           args[0],
				Host:           host,
				Port:           port,
				Username:       user,
				CredentialPath: keyPath,
				Provider:       inventory.ProviderNone,
			}
			if err := app.registry.AddServer(record); err != nil {
				return err
			}

			log.Info().Str("name", record.Name).Str("host", record.Host).Msg("Server added")
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "server address (required)")
	cmd.Flags().IntVar(&port, "port", 22, "SSH port")
	cmd.Flags().StringVar(&user, "user", "root", "SSH user")
	cmd.Flags().StringVar(&keyPath, "key", "~/.ssh/id_ed25519", "SSH private key path")
	_ = cmd.MarkFlagRequired("host")

	return cmd
}

func newServerListCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List servers in the inventory",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer app.close()

			servers, err := app.registry.ListServers()
			if err != nil {
				return err
			}
			if len(servers) == 0 {
				fmt.Println("No servers in inventory")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tHOST\tUSER\tPROVIDER\tRESOURCE")
			for _, s := range servers {
				fmt.Fprintf(w, "%s\t%s:%d\t%s\t%s\t%s\n",
					s.Name, s.Host, s.Port, s.Username, s.Provider, s.ProviderResourceID)
			}
			return w.Flush()
		},
	}
}

func newServerDeleteCommand(cfg *config.Config) *cobra.Command {
	var keepResource bool

	cmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a server from the inventory",
		Long: `Delete a server from the inventory.

When the server was provisioned through shipmate (provider is not "none"),
the external cloud resource is destroyed first. The inventory record is
only removed once the resource is gone, so a failed deprovision never
leaves an unreachable resource untracked.`,
		Example: `  # Delete a server and its cloud resource
  shipmate server delete web1

  # Forget the inventory record but keep the cloud resource
  shipmate server delete web1 --keep-resource`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer app.close()

			name := args[0]
			server, err := app.registry.GetServer(name)
			if err != nil {
				return err
			}

			if server.Provider != inventory.ProviderNone && !keepResource {
				provider, err := app.providerFor(server.Provider)
				if err != nil {
					return err
				}
				log.Info().
					Str("provider", string(server.Provider)).
					Str("resource_id", server.ProviderResourceID).
					Msg("Destroying cloud resource")
				if err := provider.DestroyResource(cmd.Context(), server.ProviderResourceID); err != nil {
					return fmt.Errorf("failed to deprovision %s: %w", name, err)
				}
			}

			if err := app.registry.RemoveServer(name); err != nil {
				return err
			}

			log.Info().Str("name", name).Msg("Server deleted")
			return nil
		},
	}

	cmd.Flags().BoolVar(&keepResource, "keep-resource", false, "remove the inventory record without destroying the cloud resource")

	return cmd
}

func newServerInfoCommand(cfg *config.Config) *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "info <name>",
		Short: "Show gathered information about a server",
		Long: `Show the cached information snapshot for a server.

With --refresh the information-gathering playbook is dispatched first and
the fresh result is cached on the inventory record.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer app.close()

			server, err := app.registry.GetServer(args[0])
			if err != nil {
				return err
			}

			if refresh || len(server.Info) == 0 {
				if _, err := app.dispatcher().RefreshInfo(cmd.Context(), app.registry, server); err != nil {
					return err
				}
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tVALUE")
			for _, key := range sortedKeys(server.Info) {
				fmt.Fprintf(w, "%s\t%v\n", key, server.Info[key])
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "dispatch the information-gathering playbook before showing")

	return cmd
}
