package cmds

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/harvard-lil/docker-compose-update-action/internal/logs"
	"github.com/harvard-lil/docker-compose-update-action/internal/state"
	"github.com/harvard-lil/docker-compose-update-action/internal/ui"
)

func newHistoryCmd() *cobra.Command {
	var (
		stateDB    string
		pruneAfter time.Duration
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List the last recorded decision per service",
		Long: `List what the latest run decided for each service, as recorded with --state-db.
With --prune, entries not written for longer than the given duration are dropped first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if stateDB == "" {
				return fmt.Errorf("--state-db is required")
			}

			history, closeDB, err := state.OpenHistory(cmd.Context(), stateDB)
			if err != nil {
				return err
			}
			closeOnShutdown(cmd.Context(), stateDB, closeDB)

			if pruneAfter > 0 {
				n, err := history.Prune(cmd.Context(), time.Now().Add(-pruneAfter))
				if err != nil {
					return err
				}
				logs.Infof("pruned %d entries older than %s", n, pruneAfter)
			}

			records, err := history.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No history recorded")
				return nil
			}

			table := ui.NewTable(
				ui.Column{Header: "Override", MaxWidth: 40},
				ui.Column{Header: "Service"},
				ui.Column{Header: "Old tag", MaxWidth: 48},
				ui.Column{Header: "New tag", MaxWidth: 48},
				ui.Column{Header: "Rebuild"},
				ui.Column{Header: "At"},
			)
			for _, r := range records {
				rebuild := "no"
				if r.Rebuild {
					rebuild = "yes"
				}
				table.AddRow(r.Override, r.Service, r.OldTag, r.NewTag, rebuild, r.At.Local().Format(time.DateTime))
			}
			return table.Render(cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&stateDB, "state-db", "", "sqlite file written by update-tags --state-db")
	cmd.Flags().DurationVar(&pruneAfter, "prune", 0, "drop entries not updated within this duration (e.g. 720h)")

	return cmd
}
