package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/outpost-labs/bootplane/pkg/bootplane/cliutil"
	"github.com/outpost-labs/bootplane/pkg/core"
	"github.com/outpost-labs/bootplane/pkg/management"
)

func BuildTokensCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "Manage bootstrap tokens",
	}
	cmd.AddCommand(buildTokensCreateCmd())
	cmd.AddCommand(buildTokensListCmd())
	cmd.AddCommand(buildTokensRevokeCmd())
	ConfigureManagementCommand(cmd)
	return cmd
}

func buildTokensCreateCmd() *cobra.Command {
	var ttl string
	var maxUsages int64
	var labels map[string]string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a bootstrap token",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := mgmtClient.CreateToken(cmd.Context(), &management.CreateTokenRequest{
				TTL:       ttl,
				MaxUsages: maxUsages,
				Labels:    labels,
			})
			if err != nil {
				return err
			}
			fmt.Println(cliutil.RenderBootstrapToken(token))
			return nil
		},
	}
	cmd.Flags().StringVar(&ttl, "ttl", "1h", "token time to live")
	cmd.Flags().Int64Var(&maxUsages, "max-uses", 1, "maximum number of times the token can be redeemed")
	cmd.Flags().StringToStringVar(&labels, "label", nil, "token labels (key=value)")
	return cmd
}

func buildTokensListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active bootstrap tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			tokenList, err := mgmtClient.ListTokens(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println(cliutil.RenderBootstrapTokenList(&management.TokenList{Items: tokenList}))
			return nil
		},
	}
}

func buildTokensRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <token-id> [...]",
		Short: "Revoke bootstrap tokens",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, id := range args {
				if err := mgmtClient.RevokeToken(cmd.Context(), &core.Reference{ID: id}); err != nil {
					return fmt.Errorf("failed to revoke token %s: %w", id, err)
				}
				fmt.Printf("Revoked token %s\n", id)
			}
			return nil
		},
	}
}
