package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"simplebot/pkg/channel"
	"simplebot/pkg/channel/console"
	"simplebot/pkg/gateway"

	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the bot from the terminal",
	Long:  "Runs the plugin pipeline with only the console channel. Each line is one message; exit or Ctrl-D quits.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg, log, ok := setup("cmd.chat")
		if !ok {
			return
		}

		adapter, err := console.NewAdapter(cfg.Channels.Console, os.Stdin, os.Stdout, log)
		if err != nil {
			log.Error("Console channel invalid", "error", err)
			return
		}

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		adapters := []channel.Adapter{stopOnExit{Adapter: adapter, stop: stop}}
		if err := runService(runCtx, cfg, adapters, log, gateway.WithoutStatusServer()); err != nil {
			log.Error("Chat session failed", "error", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

// stopOnExit ends the whole session when the wrapped adapter returns.
type stopOnExit struct {
	channel.Adapter
	stop context.CancelFunc
}

func (a stopOnExit) Run(ctx context.Context, sink channel.Sink) error {
	defer a.stop()
	return a.Adapter.Run(ctx, sink)
}
