// Package cmd defines and implements the CLI commands for the deckharvest executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/deck-harvester/internal/app"
	"github.com/JakeFAU/deck-harvester/internal/config"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// newApp is the application factory. Tests replace it to inject a fetcher
// and a private metrics registry.
var newApp = func(ctx context.Context, cfg config.Config) (*app.App, error) {
	return app.New(ctx, cfg)
}

// newRootCmd creates and configures the root command. The returned func
// closes the App built for the subcommand; call it once Execute returns,
// including on error.
func newRootCmd() (*cobra.Command, func(context.Context)) {
	var (
		cfgFile string
		built   *app.App
	)

	cmd := &cobra.Command{
		Use:   "deckharvest",
		Short: "Harvests Magic: The Gathering deck lists from deck sites and pasted text.",
		Long: `deckharvest resolves deck URLs (Moxfield, Archidekt, MTGGoldfish, MTGTop8,
TappedOut, Pastebin and shortened links to them) or pasted deck text into
normalized decks, exports them as Arena, Forge, plain, JSON or QR files, and
records each harvested deck in the configured store.`,
		SilenceUsage: true,

		// Builds the application for every subcommand once flags are parsed.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			appInstance, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			built = appInstance
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); DECKHARVEST_* environment variables override it")

	cmd.AddCommand(newHarvestCmd())
	cmd.AddCommand(newParseCmd())
	cmd.AddCommand(newRoutesCmd())
	cmd.AddCommand(newServeCmd())

	closeApp := func(ctx context.Context) {
		if built != nil {
			built.Close(ctx)
			built = nil
		}
	}
	return cmd, closeApp
}

func resolveApp(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point. It returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root, closeApp := newRootCmd()
	err := root.ExecuteContext(ctx)
	closeApp(context.WithoutCancel(ctx))
	if err != nil {
		logger, _ := zap.NewProduction()
		if logger == nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		logger.Error("command execution failed", zap.Error(err))
		_ = logger.Sync()
		return 1
	}
	return 0
}
