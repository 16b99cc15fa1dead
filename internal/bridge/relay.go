// Package bridge forwards selected server events to an external webhook
// (chat bridges, Discord-style integrations).
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/minehold/minehold/internal/config"
	"github.com/minehold/minehold/internal/event"
	"github.com/minehold/minehold/internal/metrics"
)

// defaultKinds are forwarded when the config does not narrow the set.
var defaultKinds = []string{
	string(event.KindChat),
	string(event.KindPlayerJoin),
	string(event.KindPlayerLeave),
	string(event.KindDeath),
	string(event.KindAdvancement),
}

// payload is the webhook body, one POST per event.
type payload struct {
	ServerID  string    `json:"serverId"`
	Kind      string    `json:"kind"`
	Player    string    `json:"player,omitempty"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Relay delivers events over HTTP. Deliveries are sequential and
// best-effort: a failed POST is logged and counted, never retried, so a
// slow or dead webhook can only ever cost this consumer its own events.
type Relay struct {
	url    string
	kinds  map[event.Kind]bool
	client *http.Client
	logger *slog.Logger
}

// NewRelay creates a relay from configuration.
func NewRelay(cfg config.RelayConfig, logger *slog.Logger) *Relay {
	kinds := cfg.Events
	if len(kinds) == 0 {
		kinds = defaultKinds
	}
	wanted := make(map[event.Kind]bool, len(kinds))
	for _, k := range kinds {
		wanted[event.Kind(k)] = true
	}

	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Relay{
		url:    cfg.WebhookURL,
		kinds:  wanted,
		client: &http.Client{Timeout: timeout},
		logger: logger.With("component", "relay"),
	}
}

// Run consumes the subscription until the context is cancelled or the bus
// closes.
func (r *Relay) Run(ctx context.Context, sub *event.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub.C:
			if !ok {
				return
			}
			if !r.kinds[e.Kind] {
				continue
			}
			if err := r.deliver(ctx, e); err != nil {
				metrics.RelayDeliveries.WithLabelValues("error").Inc()
				r.logger.Warn("Webhook delivery failed",
					"server_id", e.ServerID,
					"kind", e.Kind,
					"error", err,
				)
				continue
			}
			metrics.RelayDeliveries.WithLabelValues("ok").Inc()
		}
	}
}

func (r *Relay) deliver(ctx context.Context, e event.Event) error {
	body, err := json.Marshal(payload{
		ServerID:  e.ServerID,
		Kind:      string(e.Kind),
		Player:    e.Player,
		Text:      Format(e),
		Timestamp: e.Timestamp,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	return nil
}

// Format renders an event as the human line a chat bridge would show.
func Format(e event.Event) string {
	switch e.Kind {
	case event.KindChat:
		return fmt.Sprintf("<%s> %s", e.Player, e.Message)
	case event.KindPlayerJoin:
		return fmt.Sprintf("%s joined the game", e.Player)
	case event.KindPlayerLeave:
		return fmt.Sprintf("%s left the game", e.Player)
	case event.KindAdvancement:
		return fmt.Sprintf("%s has made the advancement [%s]", e.Player, e.Message)
	case event.KindDeath:
		return e.Message
	case event.KindCrashed:
		return fmt.Sprintf("server crashed: %s", e.Message)
	case event.KindStatusChanged:
		return fmt.Sprintf("server is now %s", e.Status)
	default:
		return e.Message
	}
}
