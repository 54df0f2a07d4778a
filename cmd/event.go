package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/disbursement/internal/core/events"
	"github.com/frahmantamala/disbursement/internal/notification"
)

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Event management commands",
}

var publishEventCmd = &cobra.Command{
	Use:   "publish [event-type]",
	Short: "Send a sample event to the notification webhook",
	Long:  `Publish a sample terminal event on an in-process bus with the notification webhook subscribed, to check the receiving side.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return publishTestEvent(args[0])
	},
}

var eventBatchID string

func sampleEvent(eventType string) (events.Event, error) {
	switch eventType {
	case events.EventTypeBatchCompleted:
		return events.NewBatchEvent(eventType, eventBatchID, "BATCH-TEST", "COMPLETED", 1, 0, 0), nil
	case events.EventTypeBatchCancelled:
		return events.NewBatchEvent(eventType, eventBatchID, "BATCH-TEST", "CANCELLED", 0, 0, 1), nil
	case events.EventTypePaymentCompleted, events.EventTypePaymentFailed, events.EventTypePaymentCancelled:
		return events.NewPaymentEvent(eventType, "payment-test", "PAY-TEST", eventBatchID, "BENEFICIARY-TEST", "1.00", "PHP", "TEST", ""), nil
	case events.EventTypeReconciliationCompleted:
		return events.NewReconciliationCompletedEvent(eventBatchID, "result-test", 1, 0, 0), nil
	}
	return nil, fmt.Errorf("unknown event type %q, expected one of %v", eventType, events.TerminalEventTypes)
}

func publishTestEvent(eventType string) error {
	cfg, lg, err := setup()
	if err != nil {
		return err
	}
	if cfg.Notification.WebhookURL == "" {
		return fmt.Errorf("notification.webhook_url is not configured")
	}
	event, err := sampleEvent(eventType)
	if err != nil {
		return err
	}

	bus := events.NewEventBus(lg)
	notification.NewWebhookNotifier(cfg.Notification, lg).Register(bus)

	lg.Info("publishing test event", "event_type", eventType, "event_id", event.EventID())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return bus.PublishSync(ctx, event)
}

func init() {
	publishEventCmd.Flags().StringVar(&eventBatchID, "batch-id", "batch-test", "batch id carried by the sample event")

	eventCmd.AddCommand(publishEventCmd)
	rootCmd.AddCommand(eventCmd)
}
