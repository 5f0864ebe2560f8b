package cmds

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harvard-lil/docker-compose-update-action/internal/version"
)

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version of update-tags",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Get())
		},
	}

	return cmd
}
