package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "telegram-relay",
		Short: "Relay website chat messages to a Telegram operator and route replies back",
		Example: `  telegram-relay
  telegram-relay serve
  telegram-relay migrate up
  telegram-relay webhook set --url https://example.com/api/telegram
  telegram-relay tail 3f2a9c`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		// bare invocation serves
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}

	cmd.AddCommand(
		newServeCommand(),
		newMigrateCommand(),
		newWebhookCommand(),
		newTailCommand(),
	)

	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
