package session

import (
	"context"
	"sync"
	"time"

	"github.com/tailored-agentic-units/relay/observability"
)

// EventPrune is emitted when a sweep removes idle records.
const EventPrune observability.EventType = "session.prune"

// Sweeper periodically prunes idle records from a Registry.
type Sweeper struct {
	registry *Registry
	interval time.Duration
	observer observability.Observer

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewSweeper creates a Sweeper for registry using the registry's configured
// sweep interval. A nil observer discards events.
func NewSweeper(registry *Registry, observer observability.Observer) *Sweeper {
	if observer == nil {
		observer = observability.NoOpObserver{}
	}
	interval := registry.Config().SweepInterval
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &Sweeper{
		registry: registry,
		interval: interval,
		observer: observer,
	}
}

// Start launches the sweep loop. It is a no-op when the registry has no idle
// timeout or the sweeper is already running.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running || s.registry.Config().IdleTimeout <= 0 {
		return
	}

	sweepCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.run(sweepCtx, s.done)
}

// Stop ends the sweep loop and waits for it to exit.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
}

// Running reports whether the sweep loop is active.
func (s *Sweeper) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Sweep prunes idle records once and returns how many were removed.
func (s *Sweeper) Sweep(ctx context.Context) int {
	start := time.Now()
	pruned := s.registry.Prune(start)
	if len(pruned) == 0 {
		return 0
	}

	ids := make([]string, len(pruned))
	for i, rec := range pruned {
		ids[i] = rec.SessionID
	}
	s.observer.OnEvent(ctx, observability.Event{
		Type:      EventPrune,
		Level:     observability.LevelInfo,
		Timestamp: start,
		Source:    "session.Sweeper",
		Data: map[string]any{
			"removed":     len(pruned),
			"session_ids": ids,
			"duration":    time.Since(start).String(),
		},
	})
	return len(pruned)
}

func (s *Sweeper) run(ctx context.Context, done chan struct{}) {
	defer func() {
		s.mu.Lock()
		s.running = false
		close(done)
		s.mu.Unlock()
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}
