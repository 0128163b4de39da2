package commands

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/outpost-labs/bootplane/pkg/config"
	"github.com/outpost-labs/bootplane/pkg/config/meta"
	"github.com/outpost-labs/bootplane/pkg/config/v1beta1"
	"github.com/outpost-labs/bootplane/pkg/gateway"
)

func BuildGatewayCmd() *cobra.Command {
	var configLocation string
	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Run the gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			gatewayConfig := &v1beta1.GatewayConfig{}
			objects, err := loadConfigObjects(configLocation)
			if err != nil {
				if !errors.Is(err, config.ErrConfigNotFound) || configLocation != "" {
					return err
				}
				// No config file; run with defaults.
			} else {
				objects.Visit(func(conf *v1beta1.GatewayConfig) {
					gatewayConfig = conf
				})
			}

			g, err := gateway.New(gatewayConfig)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if err := g.Run(ctx); err != nil && !errors.Is(err, ctx.Err()) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&configLocation, "config", "", "path to a config file")
	return cmd
}

func loadConfigObjects(configLocation string) (meta.ObjectList, error) {
	if configLocation == "" {
		path, err := config.FindConfig()
		if err != nil {
			return nil, err
		}
		configLocation = path
	}
	objects, err := config.LoadObjectsFromFile(configLocation)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", configLocation, err)
	}
	return objects, nil
}
