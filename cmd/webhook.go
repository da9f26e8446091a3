package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Vovarama1992/telegram-relay/internal/config"
	"github.com/Vovarama1992/telegram-relay/internal/relay"
)

func newWebhookCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Register the relay endpoint with Telegram",
		Example: `  telegram-relay webhook set --url https://example.com/api/telegram
  telegram-relay webhook info
  telegram-relay webhook delete --drop-pending`,
	}

	var url string
	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Point the bot's updates at the relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if url == "" {
				return errors.New("--url is required")
			}
			tg, cfg, err := telegramClient()
			if err != nil {
				return err
			}
			if err := tg.SetWebhook(cmd.Context(), url, cfg.WebhookSecret); err != nil {
				return fmt.Errorf("set webhook: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "webhook set to %s (secret: %v)\n", url, cfg.WebhookSecret != "")
			return nil
		},
	}
	setCmd.Flags().StringVar(&url, "url", "", "Public URL of POST /api/telegram")

	var dropPending bool
	deleteCmd := &cobra.Command{
		Use:   "delete",
		Short: "Remove the bot's webhook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tg, _, err := telegramClient()
			if err != nil {
				return err
			}
			if err := tg.DeleteWebhook(cmd.Context(), dropPending); err != nil {
				return fmt.Errorf("delete webhook: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "webhook deleted")
			return nil
		},
	}
	deleteCmd.Flags().BoolVar(&dropPending, "drop-pending", false, "Discard updates Telegram has queued")

	infoCmd := &cobra.Command{
		Use:   "info",
		Short: "Show the bot's webhook status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tg, _, err := telegramClient()
			if err != nil {
				return err
			}
			info, err := tg.WebhookInfo(cmd.Context())
			if err != nil {
				return fmt.Errorf("webhook info: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "url:              %s\n", info.URL)
			fmt.Fprintf(out, "pending updates:  %d\n", info.PendingUpdateCount)
			if info.LastErrorMessage != "" {
				fmt.Fprintf(out, "last error:       %s\n", info.LastErrorMessage)
			}
			return nil
		},
	}

	cmd.AddCommand(setCmd, deleteCmd, infoCmd)

	return cmd
}

func telegramClient() (*relay.TelegramOutbound, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	tg, err := relay.NewTelegramOutbound(telegramConfig(cfg))
	if err != nil {
		return nil, nil, err
	}
	return tg, cfg, nil
}
