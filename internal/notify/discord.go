package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/luminalabs/keygate/internal/metrics"
)

type EventType string

const (
	EventKeyGenerated EventType = "KEY_GENERATED"
	EventKeyReused    EventType = "KEY_REUSED"
	EventKeyRevoked   EventType = "KEY_REVOKED"
	EventFraudBlocked EventType = "FRAUD_BLOCKED"
)

// Event is the structured payload sent to the downstream webhook.
type Event struct {
	Type      EventType
	Key       string
	IP        string
	Reason    string
	Score     int
	ExpiresAt time.Time
}

// Notifier delivers events to an external collaborator. Delivery is
// fire-and-forget: it must never delay or fail the request that produced
// the event.
type Notifier interface {
	Notify(ev Event)
}

// Nop drops every event. Used when no webhook URL is configured.
type Nop struct{}

func (Nop) Notify(Event) {}

// Discord posts events as Discord embeds.
type Discord struct {
	url    string
	client *http.Client
}

// NewDiscord returns a webhook notifier, or Nop when url is empty.
func NewDiscord(url string) Notifier {
	if url == "" {
		return Nop{}
	}
	return &Discord{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

func (d *Discord) Notify(ev Event) {
	go func() {
		if err := d.post(context.Background(), ev); err != nil {
			metrics.WebhookFailures.Inc()
			slog.Warn("Webhook delivery failed", "event", ev.Type, "error", err)
		}
	}()
}

type embed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
	Timestamp   string `json:"timestamp"`
	Footer      struct {
		Text string `json:"text"`
	} `json:"footer"`
}

type webhookPayload struct {
	Embeds []embed `json:"embeds"`
}

func (d *Discord) post(ctx context.Context, ev Event) error {
	e := embed{
		Title:     title(ev.Type),
		Color:     color(ev.Type),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	e.Footer.Text = "keygate"

	switch ev.Type {
	case EventFraudBlocked:
		e.Description = fmt.Sprintf("**IP:** %s\n**Reason:** %s\n**Fraud Score:** %d", ev.IP, ev.Reason, ev.Score)
	default:
		// Key spoilered the way Discord renders hidden text.
		e.Description = fmt.Sprintf("**Key:** ||%s||\n**IP:** %s\n**Expires:** %s",
			ev.Key, ev.IP, ev.ExpiresAt.UTC().Format(time.RFC3339))
	}

	body, err := json.Marshal(webhookPayload{Embeds: []embed{e}})
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook responded %d", resp.StatusCode)
	}
	return nil
}

func title(t EventType) string {
	switch t {
	case EventKeyGenerated:
		return "🔑 New Key Generated"
	case EventKeyReused:
		return "♻️ Active Key Reused"
	case EventKeyRevoked:
		return "🚫 Key Revoked"
	case EventFraudBlocked:
		return "🛑 Fraud Blocked"
	default:
		return string(t)
	}
}

func color(t EventType) int {
	if t == EventFraudBlocked {
		return 0xFF0000
	}
	return 0x2ECC71
}
