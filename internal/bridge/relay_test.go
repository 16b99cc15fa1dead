package bridge

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/minehold/minehold/internal/config"
	"github.com/minehold/minehold/internal/event"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type capture struct {
	mu       sync.Mutex
	payloads []payload
	status   int
}

func (c *capture) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p payload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		c.mu.Lock()
		c.payloads = append(c.payloads, p)
		status := c.status
		c.mu.Unlock()
		if status != 0 {
			w.WriteHeader(status)
		}
	}
}

func (c *capture) received() []payload {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]payload(nil), c.payloads...)
}

func runRelay(t *testing.T, r *Relay, events ...event.Event) {
	t.Helper()
	bus := event.NewBus(64, testLogger())
	sub := bus.Subscribe("relay-test")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx, sub)
	}()

	for _, e := range events {
		bus.Publish(e)
	}
	bus.Close()
	<-done
	cancel()
}

func TestRelayDeliversChat(t *testing.T) {
	cap := &capture{}
	srv := httptest.NewServer(cap.handler())
	defer srv.Close()

	r := NewRelay(config.RelayConfig{Enabled: true, WebhookURL: srv.URL}, testLogger())
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	runRelay(t, r, event.Event{
		ServerID:  "srv-1",
		Kind:      event.KindChat,
		Player:    "Steve",
		Message:   "hello world",
		Timestamp: ts,
	})

	got := cap.received()
	if len(got) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(got))
	}
	p := got[0]
	if p.ServerID != "srv-1" || p.Kind != "chat" || p.Player != "Steve" {
		t.Errorf("payload = %+v", p)
	}
	if p.Text != "<Steve> hello world" {
		t.Errorf("text = %q", p.Text)
	}
	if !p.Timestamp.Equal(ts) {
		t.Errorf("timestamp = %v, want %v", p.Timestamp, ts)
	}
}

func TestRelayFiltersKinds(t *testing.T) {
	cap := &capture{}
	srv := httptest.NewServer(cap.handler())
	defer srv.Close()

	// Default set: log lines and status changes stay home.
	r := NewRelay(config.RelayConfig{Enabled: true, WebhookURL: srv.URL}, testLogger())
	runRelay(t, r,
		event.Event{ServerID: "s", Kind: event.KindLogLine, Message: "noise"},
		event.Event{ServerID: "s", Kind: event.KindStatusChanged, Status: "running"},
		event.Event{ServerID: "s", Kind: event.KindPlayerJoin, Player: "Alex"},
	)

	got := cap.received()
	if len(got) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(got))
	}
	if got[0].Kind != "player_join" {
		t.Errorf("kind = %s", got[0].Kind)
	}
}

func TestRelayConfiguredKinds(t *testing.T) {
	cap := &capture{}
	srv := httptest.NewServer(cap.handler())
	defer srv.Close()

	r := NewRelay(config.RelayConfig{
		Enabled:    true,
		WebhookURL: srv.URL,
		Events:     []string{"death"},
	}, testLogger())
	runRelay(t, r,
		event.Event{ServerID: "s", Kind: event.KindChat, Player: "Steve", Message: "hi"},
		event.Event{ServerID: "s", Kind: event.KindDeath, Player: "Steve", Message: "Steve fell from a high place"},
	)

	got := cap.received()
	if len(got) != 1 || got[0].Kind != "death" {
		t.Fatalf("deliveries = %+v, want only the death", got)
	}
	if got[0].Text != "Steve fell from a high place" {
		t.Errorf("text = %q", got[0].Text)
	}
}

func TestRelaySurvivesWebhookErrors(t *testing.T) {
	cap := &capture{status: http.StatusBadGateway}
	srv := httptest.NewServer(cap.handler())
	defer srv.Close()

	r := NewRelay(config.RelayConfig{Enabled: true, WebhookURL: srv.URL}, testLogger())
	runRelay(t, r,
		event.Event{ServerID: "s", Kind: event.KindChat, Player: "a", Message: "1"},
		event.Event{ServerID: "s", Kind: event.KindChat, Player: "a", Message: "2"},
	)

	// Both POSTs were attempted despite the 502s.
	if got := cap.received(); len(got) != 2 {
		t.Errorf("attempts = %d, want 2", len(got))
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name string
		e    event.Event
		want string
	}{
		{
			name: "chat",
			e:    event.Event{Kind: event.KindChat, Player: "Steve", Message: "hi all"},
			want: "<Steve> hi all",
		},
		{
			name: "join",
			e:    event.Event{Kind: event.KindPlayerJoin, Player: "Alex"},
			want: "Alex joined the game",
		},
		{
			name: "leave",
			e:    event.Event{Kind: event.KindPlayerLeave, Player: "Alex"},
			want: "Alex left the game",
		},
		{
			name: "advancement",
			e:    event.Event{Kind: event.KindAdvancement, Player: "Steve", Message: "Stone Age"},
			want: "Steve has made the advancement [Stone Age]",
		},
		{
			name: "death keeps the full phrase",
			e:    event.Event{Kind: event.KindDeath, Player: "Steve", Message: "Steve was slain by Zombie"},
			want: "Steve was slain by Zombie",
		},
		{
			name: "crash",
			e:    event.Event{Kind: event.KindCrashed, Message: "exit status 1"},
			want: "server crashed: exit status 1",
		},
		{
			name: "status",
			e:    event.Event{Kind: event.KindStatusChanged, Status: "running"},
			want: "server is now running",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Format(tt.e); got != tt.want {
				t.Errorf("Format = %q, want %q", got, tt.want)
			}
		})
	}
}
