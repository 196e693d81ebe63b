package commands

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/loadinglucian/shipmate/pkg/config"
)

func newHistoryCommand(cfg *config.Config) *cobra.Command {
	var (
		serverName string
		provisions bool
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past playbook dispatches and provisioning runs",
		Example: `  # Recent playbook dispatches
  shipmate history

  # Dispatches against one server
  shipmate history --server web1

  # Provisioning runs
  shipmate history --provisions`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer app.close()

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)

			if provisions {
				records, err := app.history.ListProvisions(cmd.Context(), limit)
				if err != nil {
					return err
				}
				fmt.Fprintln(w, "RAN AT\tPROVIDER\tNAME\tSTATUS\tRESOURCE\tDURATION\tMESSAGE")
				for _, r := range records {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
						r.RanAt.Local().Format(time.RFC3339), r.Provider, r.Name, r.Status,
						r.ResourceID, r.Duration.Round(time.Millisecond), r.Message)
				}
				return w.Flush()
			}

			records, err := app.history.ListDispatches(cmd.Context(), serverName, limit)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, "RAN AT\tSERVER\tPLAYBOOK\tSTATUS\tDURATION\tMESSAGE")
			for _, r := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					r.RanAt.Local().Format(time.RFC3339), r.Server, r.Playbook, r.Status,
					r.Duration.Round(time.Millisecond), r.Message)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&serverName, "server", "", "only dispatches against this server")
	cmd.Flags().BoolVar(&provisions, "provisions", false, "show provisioning runs instead of dispatches")
	cmd.Flags().IntVar(&limit, "limit", 25, "maximum rows to show")

	return cmd
}
