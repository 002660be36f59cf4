package observability

import "context"

// NoOpObserver discards all events.
type NoOpObserver struct{}

func (NoOpObserver) OnEvent(ctx context.Context, event Event) {}

// MultiObserver fans out events to multiple observers in order.
type MultiObserver struct {
	observers []Observer
}

// NewMultiObserver creates a MultiObserver. Nil and NoOpObserver entries are
// dropped and nested MultiObservers are flattened, so every event costs one
// call per real observer.
func NewMultiObserver(observers ...Observer) *MultiObserver {
	m := &MultiObserver{}
	for _, obs := range observers {
		m.add(obs)
	}
	return m
}

func (m *MultiObserver) add(obs Observer) {
	switch o := obs.(type) {
	case nil, NoOpObserver, *NoOpObserver:
	case *MultiObserver:
		if o == nil {
			return
		}
		for _, inner := range o.observers {
			m.add(inner)
		}
	default:
		m.observers = append(m.observers, obs)
	}
}

// Len returns the number of observers events are forwarded to.
func (m *MultiObserver) Len() int {
	return len(m.observers)
}

func (m *MultiObserver) OnEvent(ctx context.Context, event Event) {
	for _, obs := range m.observers {
		obs.OnEvent(ctx, event)
	}
}
