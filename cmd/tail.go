package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Vovarama1992/telegram-relay/internal/config"
	"github.com/Vovarama1992/telegram-relay/internal/messaging"
	"github.com/Vovarama1992/telegram-relay/internal/relay"
)

func newTailCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "tail <session_id>",
		Short:   "Print one session's chat events as they are logged",
		Example: `  telegram-relay tail 3f2a9c`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.NATSURL == "" {
				return errors.New("NATS_URL is not set")
			}

			natsConfig := messaging.DefaultNATSConfig()
			natsConfig.URL = cfg.NATSURL
			natsConfig.Name = "telegram-relay-tail"
			nc, err := messaging.NewNATSClient(natsConfig)
			if err != nil {
				return err
			}
			defer nc.Close()

			sessionID := args[0]
			err = nc.SubscribeChatEvents(sessionID, func(data []byte) {
				fmt.Fprintln(cmd.OutOrStdout(), formatEvent(data))
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "tailing %s, Ctrl-C to stop\n", messaging.SessionSubject(sessionID))

			<-cmd.Context().Done()
			return nil
		},
	}
}

func formatEvent(data []byte) string {
	var ev relay.ChatEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return string(data)
	}
	return fmt.Sprintf("%s [%s] %s", ev.CreatedAt.Format("15:04:05"), ev.Sender, ev.Message)
}
