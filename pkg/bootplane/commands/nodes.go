package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/outpost-labs/bootplane/pkg/bootplane/cliutil"
	"github.com/outpost-labs/bootplane/pkg/core"
	"github.com/outpost-labs/bootplane/pkg/management"
)

func BuildNodesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nodes",
		Short: "Manage enrolled nodes",
	}
	cmd.AddCommand(buildNodesListCmd())
	cmd.AddCommand(buildNodesDeleteCmd())
	ConfigureManagementCommand(cmd)
	return cmd
}

func buildNodesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List enrolled nodes",
		RunE: func(cmd *cobra.Command, args []string) error {
			nodes, err := mgmtClient.ListNodes(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println(cliutil.RenderNodeList(&management.NodeList{Items: nodes}))
			return nil
		},
	}
}

func buildNodesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <node-id> [...]",
		Short: "Remove nodes from the registry",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, id := range args {
				if err := mgmtClient.DeleteNode(cmd.Context(), &core.Reference{ID: id}); err != nil {
					return fmt.Errorf("failed to delete node %s: %w", id, err)
				}
				fmt.Printf("Deleted node %s\n", id)
			}
			return nil
		},
	}
}
