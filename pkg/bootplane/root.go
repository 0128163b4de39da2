// Package bootplane assembles the command line interface.
package bootplane

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/outpost-labs/bootplane/pkg/bootplane/commands"
	"github.com/outpost-labs/bootplane/pkg/bootstrap"
	"github.com/outpost-labs/bootplane/pkg/management"
)

// Exit codes distinguish the error classes automation cares about.
const (
	ExitGeneric            = 1
	ExitNotReady           = 2
	ExitTrustMismatch      = 3
	ExitTokenInvalid       = 4
	ExitNetworkUnavailable = 5
)

func BuildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "bootplane",
		Long:         "Cluster bootstrap: issue join tokens, enroll nodes, track membership.",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(commands.BuildGatewayCmd())
	rootCmd.AddCommand(commands.BuildAgentCmd())
	rootCmd.AddCommand(commands.BuildTokensCmd())
	rootCmd.AddCommand(commands.BuildNodesCmd())
	rootCmd.AddCommand(commands.BuildEnrollCmd())
	rootCmd.AddCommand(commands.BuildStatusCmd())
	rootCmd.AddCommand(commands.BuildCertsCmd())
	return rootCmd
}

// ExitCode maps an error from command execution to the process exit
// code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, bootstrap.ErrNotReady), errors.Is(err, management.ErrNotReady):
		return ExitNotReady
	case errors.Is(err, bootstrap.ErrTrustAnchorMismatch):
		return ExitTrustMismatch
	case errors.Is(err, bootstrap.ErrTokenInvalid):
		return ExitTokenInvalid
	case errors.Is(err, bootstrap.ErrNetworkUnavailable), errors.Is(err, management.ErrNetworkUnavailable):
		return ExitNetworkUnavailable
	}
	return ExitGeneric
}
