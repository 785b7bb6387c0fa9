package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	cartCmd "github.com/Alturino/storefront/cart/cmd"
	"github.com/Alturino/storefront/internal/config"
	"github.com/Alturino/storefront/internal/constants"
	"github.com/Alturino/storefront/internal/log"
)

func Start() {
	c, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:           constants.APP_STOREFRONT,
		Short:         "Storefront cart service and device client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run cart service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Context(), constants.APP_CART_SERVICE)
			if err != nil {
				return err
			}
			logger := log.Get(cfg.Application.LogFile, cfg.Application)
			return cartCmd.RunCartService(logger.WithContext(cmd.Context()), cfg)
		},
	})
	rootCmd.AddCommand(cartCmd.NewClientCommands()...)

	if err := rootCmd.ExecuteContext(c); err != nil {
		logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
		stop()
		logger.Fatal().Err(err).Msgf("error when executing command=%s", err.Error())
	}
}
