package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"simplebot/pkg/channel"
	"simplebot/pkg/channel/console"
	"simplebot/pkg/channel/telegram"
	"simplebot/pkg/channel/whatsapp"
	"simplebot/pkg/config"
	"simplebot/pkg/gateway"
	"simplebot/pkg/logger"
	"simplebot/pkg/plugin"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"gateway"},
	Short:   "Run the bot on the configured channels",
	Long:    "Loads plugins, connects every enabled channel and serves health and status endpoints until interrupted.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg, log, ok := setup("cmd.serve")
		if !ok {
			return
		}

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		adapters, err := enabledAdapters(runCtx, cfg, log)
		if err != nil {
			log.Error("Gateway configuration invalid", "error", err)
			return
		}

		log.Info("Starting gateway", "channels", enabledChannelNames(adapters))
		if err := runService(runCtx, cfg, adapters, log); err != nil {
			log.Error("Gateway runtime failed", "error", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// setup loads configuration and installs the process logger.
func setup(component string) (*config.Config, *slog.Logger, bool) {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		return nil, nil, false
	}

	appLogger, err := logger.New(cfg.Logging)
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		return nil, nil, false
	}
	slog.SetDefault(appLogger)

	return cfg, slog.Default().With("component", component), true
}

func runService(ctx context.Context, cfg *config.Config, adapters []channel.Adapter, log *slog.Logger, opts ...gateway.Option) error {
	plugins := plugin.Default().Load(cfg, cfg.Plugins.Disabled, log)

	svc, err := gateway.NewService(cfg, adapters, plugins, slog.Default(), opts...)
	if err != nil {
		return fmt.Errorf("initialize gateway service: %w", err)
	}

	if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func enabledAdapters(ctx context.Context, cfg *config.Config, log *slog.Logger) ([]channel.Adapter, error) {
	adapters := make([]channel.Adapter, 0, 3)

	if cfg.Channels.Telegram.Enabled {
		adapter, err := telegram.NewAdapter(cfg.Channels.Telegram, log, telegram.WithOutputMarker(cfg.Dispatch.OutputMarker))
		if err != nil {
			return nil, fmt.Errorf("configure telegram channel: %w", err)
		}
		adapters = append(adapters, adapter)
	}

	if cfg.Channels.WhatsApp.Enabled {
		adapter, err := whatsapp.NewAdapter(ctx, cfg.Channels.WhatsApp, log)
		if err != nil {
			return nil, fmt.Errorf("configure whatsapp channel: %w", err)
		}
		adapters = append(adapters, adapter)
	}

	if cfg.Channels.Console.Enabled {
		adapter, err := console.NewAdapter(cfg.Channels.Console, os.Stdin, os.Stdout, log)
		if err != nil {
			return nil, fmt.Errorf("configure console channel: %w", err)
		}
		adapters = append(adapters, adapter)
	}

	if len(adapters) == 0 {
		return nil, errors.New("no channels are enabled")
	}

	return adapters, nil
}

func enabledChannelNames(adapters []channel.Adapter) string {
	names := make([]string, 0, len(adapters))
	for _, adapter := range adapters {
		names = append(names, adapter.Name())
	}

	return strings.Join(names, ",")
}
