package commands

import (
	"errors"
	"fmt"
	"io"
	"os/signal"
	"sync"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/NethermindEth/eternalgov/config"
	"github.com/NethermindEth/eternalgov/core"
	"github.com/NethermindEth/eternalgov/logging"
)

var (
	watchURL     string
	watchSubject string
)

// WatchCmd follows the events a running delegate publishes on NATS
var WatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print governance events published on NATS",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		url := cfg.NATS.URL
		if watchURL != "" {
			url = watchURL
		}
		if url == "" {
			return errors.New("no NATS url configured, set nats.url or pass --nats")
		}
		logger, err := logging.New(cfg.LogLevel)
		if err != nil {
			return err
		}
		defer logger.Sync()

		broker, err := core.NewNATSBroker(url, logger)
		if err != nil {
			return err
		}
		defer broker.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		sub, err := subscribeEvents(broker, watchSubject, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		<-ctx.Done()
		return sub.Unsubscribe()
	},
}

func init() {
	WatchCmd.Flags().StringVar(&watchURL, "nats", "", "NATS url, defaults to nats.url from the config")
	WatchCmd.Flags().StringVar(&watchSubject, "subject", "gov.>", "Subject to follow")
}

// subscribeEvents prints every message on subject as "<subject> <payload>"
func subscribeEvents(broker *core.NATSBroker, subject string, w io.Writer) (*nats.Subscription, error) {
	var mu sync.Mutex
	sub, err := broker.Subscribe(subject, func(msg *nats.Msg) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(w, "%s %s\n", msg.Subject, msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	if err := broker.Conn.Flush(); err != nil {
		sub.Unsubscribe()
		return nil, err
	}
	return sub, nil
}
