package commands

import (
	"github.com/spf13/cobra"

	"github.com/outpost-labs/bootplane/pkg/management"
)

var (
	managementAddress string
	mgmtClient        *management.Client
)

// ConfigureManagementCommand wires up the management client for commands
// that talk to a running gateway.
func ConfigureManagementCommand(cmd *cobra.Command) {
	if cmd.PersistentPreRunE == nil {
		cmd.PersistentPreRunE = managementPreRun
	}
	cmd.PersistentFlags().StringVarP(&managementAddress, "address", "a",
		"127.0.0.1:9190", "management API address")
}

func managementPreRun(cmd *cobra.Command, args []string) error {
	client, err := management.NewClient(managementAddress)
	if err != nil {
		return err
	}
	mgmtClient = client
	return nil
}
