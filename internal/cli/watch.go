package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/diagnosis/fieldops/pkg/events"
)

// newSubscriber is swapped in tests.
var newSubscriber = func(url string) (events.Subscriber, error) {
	return events.NewNATSEventBus(url, "visitctl")
}

func newWatchCmd() *cobra.Command {
	var (
		natsURL string
		subject string
		queue   string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream visit lifecycle events from NATS",
		Long: `Print visit lifecycle events as they are published. Stops on Ctrl-C.

Examples:
  visitctl watch
  visitctl watch --subject visit.completed --queue reporting`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sub, err := newSubscriber(natsURL)
			if err != nil {
				return fmt.Errorf("connect to NATS: %w", err)
			}
			defer sub.Close()

			if err := subscribePrinter(sub, subject, queue, cmd.OutOrStdout(), isJSON()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "watching %s on %s\n", subject, natsURL)

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sig)

			select {
			case <-sig:
			case <-cmd.Context().Done():
			}
			return nil
		},
	}

	defaultURL := os.Getenv("NATS_URL")
	if defaultURL == "" {
		defaultURL = "nats://localhost:4222"
	}
	cmd.Flags().StringVar(&natsURL, "nats", defaultURL, "NATS server URL")
	cmd.Flags().StringVar(&subject, "subject", events.VisitAll, "subject to subscribe to")
	cmd.Flags().StringVar(&queue, "queue", "", "queue group, for load-balanced consumers")

	return cmd
}

// subscribePrinter writes one line per received visit event to out.
func subscribePrinter(sub events.Subscriber, subject, queue string, out io.Writer, asJSON bool) error {
	var mu sync.Mutex
	handler := func(msg *events.Message) {
		mu.Lock()
		defer mu.Unlock()

		if asJSON {
			fmt.Fprintln(out, string(msg.Data))
			return
		}
		var ev events.VisitEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			fmt.Fprintf(out, "%s\t(undecodable: %v)\n", msg.Subject, err)
			return
		}
		line := fmt.Sprintf("%s\t%s\t%s\t%s", ev.OccurredAt.UTC().Format(time.RFC3339), msg.Subject, ev.VisitID, ev.State)
		if ev.ActorID != "" {
			line += "\tactor=" + ev.ActorID
		}
		if len(ev.Changes) > 0 {
			line += fmt.Sprintf("\tchanges=%v", ev.Changes)
		}
		fmt.Fprintln(out, line)
	}

	if queue != "" {
		return sub.QueueSubscribe(subject, queue, handler)
	}
	return sub.Subscribe(subject, handler)
}
