package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tailored-agentic-units/relay/observability"
	"github.com/tailored-agentic-units/relay/session"
)

type recordingObserver struct {
	mu     sync.Mutex
	events []observability.Event
}

func (o *recordingObserver) OnEvent(ctx context.Context, event observability.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, event)
}

func (o *recordingObserver) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.events)
}

func TestSweeper_DisabledWithoutIdleTimeout(t *testing.T) {
	r := session.New(nil)
	s := session.NewSweeper(r, nil)

	s.Start(context.Background())
	defer s.Stop()

	if s.Running() {
		t.Error("sweeper should not run without an idle timeout")
	}
}

func TestSweeper_Sweep(t *testing.T) {
	cfg := session.Config{IdleTimeout: time.Minute}
	stale := time.Now().Add(-time.Hour)
	r := session.New(&cfg, session.WithClock(func() time.Time { return stale }))
	mustBind(t, r, "s1", convA)

	obs := &recordingObserver{}
	removed := session.NewSweeper(r, obs).Sweep(context.Background())

	if removed != 1 {
		t.Errorf("got %d removed, want 1", removed)
	}
	if obs.count() != 1 || obs.events[0].Type != session.EventPrune {
		t.Errorf("got events %+v, want one prune event", obs.events)
	}
}

func TestSweeper_StartStop(t *testing.T) {
	cfg := session.Config{IdleTimeout: time.Minute, SweepInterval: 5 * time.Millisecond}
	stale := time.Now().Add(-time.Hour)
	r := session.New(&cfg, session.WithClock(func() time.Time { return stale }))
	mustBind(t, r, "s1", convA)

	s := session.NewSweeper(r, nil)
	s.Start(context.Background())
	s.Start(context.Background())

	if !s.Running() {
		t.Fatal("sweeper should be running")
	}

	deadline := time.After(2 * time.Second)
	for r.Len() > 0 {
		select {
		case <-deadline:
			t.Fatal("idle session was not pruned")
		case <-time.After(5 * time.Millisecond):
		}
	}

	s.Stop()
	if s.Running() {
		t.Error("sweeper should stop")
	}
	s.Stop()
}
