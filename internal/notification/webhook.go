package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/frahmantamala/disbursement/internal"
	"github.com/frahmantamala/disbursement/internal/core/events"
)

const (
	defaultTimeout = 5 * time.Second
	maxRetries     = 2
)

type Subscriber interface {
	Subscribe(eventType string, handler events.Handler)
}

// Envelope is the body POSTed for every forwarded event.
type Envelope struct {
	EventID    string      `json:"event_id"`
	EventType  string      `json:"event_type"`
	OccurredAt time.Time   `json:"occurred_at"`
	Data       interface{} `json:"data"`
}

// WebhookNotifier forwards terminal events to an external URL. Delivery is
// best effort: failures are logged and dropped.
type WebhookNotifier struct {
	url     string
	client  *http.Client
	backoff time.Duration
	logger  *slog.Logger
}

func NewWebhookNotifier(cfg internal.NotificationConfig, logger *slog.Logger) *WebhookNotifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &WebhookNotifier{
		url:     cfg.WebhookURL,
		client:  &http.Client{Timeout: timeout},
		backoff: 500 * time.Millisecond,
		logger:  logger,
	}
}

// WithBackoff sets the pause between delivery attempts.
func (n *WebhookNotifier) WithBackoff(d time.Duration) *WebhookNotifier {
	n.backoff = d
	return n
}

// Register subscribes the notifier to every terminal event. Without a URL
// nothing is subscribed.
func (n *WebhookNotifier) Register(bus Subscriber) {
	if n.url == "" {
		n.logger.Info("notification webhook not configured")
		return
	}
	for _, eventType := range events.TerminalEventTypes {
		bus.Subscribe(eventType, n.Handle)
	}
}

func (n *WebhookNotifier) Handle(ctx context.Context, event events.Event) error {
	body, err := json.Marshal(Envelope{
		EventID:    event.EventID(),
		EventType:  event.EventType(),
		OccurredAt: event.OccurredAt(),
		Data:       event,
	})
	if err != nil {
		n.logger.Error("failed to marshal notification", "event_id", event.EventID(), "error", err)
		return nil
	}

	attempt := 0
	err = retry.Do(ctx, retry.WithMaxRetries(maxRetries, retry.NewConstant(n.backoff)), func(ctx context.Context) error {
		attempt++
		return n.post(ctx, body)
	})
	if err != nil {
		n.logger.Warn("notification webhook failed",
			"event_type", event.EventType(),
			"event_id", event.EventID(),
			"attempts", attempt,
			"error", err)
		return nil
	}

	n.logger.Info("notification delivered",
		"event_type", event.EventType(),
		"event_id", event.EventID(),
		"attempts", attempt)
	return nil
}

func (n *WebhookNotifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return retry.RetryableError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return retry.RetryableError(fmt.Errorf("webhook returned status %d", resp.StatusCode))
	default:
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
}
