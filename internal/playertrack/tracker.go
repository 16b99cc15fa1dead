// Package playertrack persists player join/leave spans from the event
// stream into the session table.
package playertrack

import (
	"context"
	"log/slog"

	"github.com/minehold/minehold/internal/event"
	"github.com/minehold/minehold/internal/store"
)

// Tracker consumes player events and records sessions. A server going
// stopped or crashed closes every open session, since no leave lines will
// follow.
type Tracker struct {
	store  *store.Store
	logger *slog.Logger
}

// NewTracker creates a tracker writing to the given store.
func NewTracker(st *store.Store, logger *slog.Logger) *Tracker {
	return &Tracker{
		store:  st,
		logger: logger.With("component", "playertrack"),
	}
}

// Run consumes the subscription until the context is cancelled or the bus
// closes.
func (t *Tracker) Run(ctx context.Context, sub *event.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub.C:
			if !ok {
				return
			}
			t.handle(e)
		}
	}
}

func (t *Tracker) handle(e event.Event) {
	var err error
	switch e.Kind {
	case event.KindPlayerJoin:
		err = t.store.RecordJoin(e.ServerID, e.Player, e.PlayerUUID, e.Timestamp)
	case event.KindPlayerLeave:
		err = t.store.RecordLeave(e.ServerID, e.Player, e.Timestamp)
	case event.KindStatusChanged:
		if e.Status == "stopped" || e.Status == "crashed" {
			err = t.store.CloseAllSessions(e.ServerID, e.Timestamp)
		}
	default:
		return
	}

	if err != nil {
		t.logger.Warn("Failed to record player session",
			"server_id", e.ServerID,
			"kind", e.Kind,
			"player", e.Player,
			"error", err,
		)
	}
}
