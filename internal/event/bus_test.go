package event

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestBusFanOut(t *testing.T) {
	bus := NewBus(8, testLogger())
	defer bus.Close()

	a := bus.Subscribe("a")
	b := bus.Subscribe("b")

	e := Event{ServerID: "s1", Kind: KindChat, Player: "Steve", Message: "hi"}
	bus.Publish(e)

	for _, sub := range []*Subscription{a, b} {
		select {
		case got := <-sub.C:
			if got.ServerID != "s1" || got.Kind != KindChat || got.Player != "Steve" {
				t.Errorf("subscriber %s got %+v", sub.Name(), got)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %s did not receive the event", sub.Name())
		}
	}
}

func TestBusDropsForSlowSubscriber(t *testing.T) {
	bus := NewBus(2, testLogger())
	defer bus.Close()

	var mu sync.Mutex
	drops := make(map[string]int)
	bus.OnDrop(func(name string, e Event) {
		mu.Lock()
		drops[name]++
		mu.Unlock()
	})

	slow := bus.Subscribe("slow")
	fast := bus.Subscribe("fast")

	// Nobody reads slow; its queue holds 2, the rest are dropped.
	for i := 0; i < 5; i++ {
		bus.Publish(Event{Kind: KindLogLine, Message: fmt.Sprintf("%d", i)})
		// Keep fast drained so only slow drops.
		<-fast.C
	}

	if got := bus.Dropped(); got != 3 {
		t.Errorf("Dropped() = %d, want 3", got)
	}
	mu.Lock()
	if drops["slow"] != 3 {
		t.Errorf("drop handler saw %d drops for slow, want 3", drops["slow"])
	}
	if drops["fast"] != 0 {
		t.Errorf("drop handler saw %d drops for fast, want 0", drops["fast"])
	}
	mu.Unlock()

	// Slow still holds the two oldest events.
	got := <-slow.C
	if got.Message != "0" {
		t.Errorf("first queued event = %q, want %q", got.Message, "0")
	}
}

func TestBusSubscriptionClose(t *testing.T) {
	bus := NewBus(4, testLogger())
	defer bus.Close()

	sub := bus.Subscribe("gone")
	sub.Close()

	if _, ok := <-sub.C; ok {
		t.Error("channel still open after Close")
	}

	// Publishing after unsubscribe must not panic or block.
	bus.Publish(Event{Kind: KindLogLine})
}

func TestBusClose(t *testing.T) {
	bus := NewBus(4, testLogger())
	sub := bus.Subscribe("a")

	bus.Close()

	if _, ok := <-sub.C; ok {
		t.Error("subscriber channel still open after bus Close")
	}

	// Idempotent, and Publish becomes a no-op.
	bus.Close()
	bus.Publish(Event{Kind: KindLogLine})

	// Subscribing after close yields a closed channel.
	late := bus.Subscribe("late")
	if _, ok := <-late.C; ok {
		t.Error("late subscriber channel should be closed")
	}
}

func TestBusConcurrentPublish(t *testing.T) {
	bus := NewBus(1024, testLogger())
	defer bus.Close()

	sub := bus.Subscribe("sink")

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				bus.Publish(Event{Kind: KindLogLine})
			}
		}()
	}

	received := 0
	done := make(chan struct{})
	go func() {
		for range sub.C {
			received++
			if received == 400 {
				close(done)
				return
			}
		}
	}()

	wg.Wait()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("received %d of 400 events", received)
	}
}
