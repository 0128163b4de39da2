package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/outpost-labs/bootplane/pkg/bootstrap"
	"github.com/outpost-labs/bootplane/pkg/core"
	"github.com/outpost-labs/bootplane/pkg/ident"
	"github.com/outpost-labs/bootplane/pkg/logger"
	"github.com/outpost-labs/bootplane/pkg/pkp"
	"github.com/outpost-labs/bootplane/pkg/storage/fs"
	"github.com/outpost-labs/bootplane/pkg/tokens"
)

// BuildEnrollCmd performs a one-shot enrollment and writes the keyring
// to disk, without starting the agent.
func BuildEnrollCmd() *cobra.Command {
	var tokenStr string
	var pins []string
	var gatewayAddress string
	var nodeID string
	var role string
	var advertiseAddress string
	var keyringFile string
	var identityFile string
	cmd := &cobra.Command{
		Use:   "enroll",
		Short: "Redeem a bootstrap token and save the resulting keyring",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := tokens.ParseHex(tokenStr)
			if err != nil {
				return fmt.Errorf("invalid token: %w", err)
			}
			decodedPins, err := pkp.DecodePins(pins)
			if err != nil {
				return fmt.Errorf("invalid pin: %w", err)
			}
			if len(decodedPins) == 0 {
				return errors.New("at least one --pin is required")
			}

			var identity ident.Provider
			if nodeID != "" {
				identity = ident.NewStaticProvider(nodeID)
			} else {
				identity = ident.NewHostPathProvider(identityFile)
			}

			client := &bootstrap.ClientConfig{
				Token:            token,
				Pins:             decodedPins,
				Endpoint:         gatewayAddress,
				Role:             core.NodeRole(role),
				AdvertiseAddress: advertiseAddress,
				Logger:           logger.New().Named("enroll"),
			}
			result, err := client.Bootstrap(cmd.Context(), identity)
			if err != nil {
				return err
			}
			if err := fs.NewKeyringStore(keyringFile).Put(cmd.Context(), result.Keyring); err != nil {
				return fmt.Errorf("failed to save keyring: %w", err)
			}
			fmt.Printf("Enrolled node %s as %s; keyring saved to %s\n",
				result.Node.ID, result.Node.Role, keyringFile)
			return nil
		},
	}
	cmd.Flags().StringVar(&tokenStr, "token", "", "bootstrap token")
	cmd.Flags().StringSliceVar(&pins, "pin", nil, "gateway public key pin (repeatable)")
	cmd.Flags().StringVar(&gatewayAddress, "endpoint", "", "gateway bootstrap endpoint")
	cmd.Flags().StringVar(&nodeID, "id", "", "node ID (default: stable identity from --identity-file)")
	cmd.Flags().StringVar(&role, "role", "worker", "node role (controlplane or worker)")
	cmd.Flags().StringVar(&advertiseAddress, "advertise-address", "", "address the gateway should probe")
	cmd.Flags().StringVar(&keyringFile, "keyring-file", "/var/lib/bootplane/keyring", "where to save the keyring")
	cmd.Flags().StringVar(&identityFile, "identity-file", "/var/lib/bootplane/node-id", "file holding the node's stable identity")
	cmd.MarkFlagRequired("token")
	cmd.MarkFlagRequired("endpoint")
	cmd.MarkFlagRequired("advertise-address")
	return cmd
}
