package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/outpost-labs/bootplane/pkg/bootplane/cliutil"
)

func BuildStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show a cluster summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := mgmtClient.Status(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println(cliutil.RenderStatus(status))
			return nil
		},
	}
	ConfigureManagementCommand(cmd)
	return cmd
}
