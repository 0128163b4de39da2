package commands

import (
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/outpost-labs/bootplane/pkg/agent"
	"github.com/outpost-labs/bootplane/pkg/config"
	"github.com/outpost-labs/bootplane/pkg/config/v1beta1"
)

func BuildAgentCmd() *cobra.Command {
	var configLocation string
	var token string
	var pins []string
	var gatewayAddress string
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Run the agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			agentConfig := &v1beta1.AgentConfig{}
			objects, err := loadConfigObjects(configLocation)
			if err != nil {
				if !errors.Is(err, config.ErrConfigNotFound) || configLocation != "" {
					return err
				}
			} else {
				objects.Visit(func(conf *v1beta1.AgentConfig) {
					agentConfig = conf
				})
			}
			if gatewayAddress != "" {
				agentConfig.Spec.GatewayAddress = gatewayAddress
			}
			if token != "" || len(pins) > 0 {
				if agentConfig.Spec.Bootstrap == nil {
					agentConfig.Spec.Bootstrap = &v1beta1.BootstrapSpec{}
				}
				if token != "" {
					agentConfig.Spec.Bootstrap.Token = token
				}
				if len(pins) > 0 {
					agentConfig.Spec.Bootstrap.Pins = pins
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if err := agent.New(agentConfig).Run(ctx); err != nil && !errors.Is(err, ctx.Err()) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&configLocation, "config", "", "path to a config file")
	cmd.Flags().StringVar(&token, "token", "", "bootstrap token (overrides config)")
	cmd.Flags().StringSliceVar(&pins, "pin", nil, "gateway public key pin (repeatable, overrides config)")
	cmd.Flags().StringVar(&gatewayAddress, "gateway", "", "gateway bootstrap endpoint (overrides config)")
	return cmd
}
