package observability

import (
	"fmt"
	"sync"
)

var (
	observers = map[string]Observer{
		"noop": NoOpObserver{},
		"slog": NewSlogObserver(nil),
		"span": SpanObserver{},
	}
	mutex sync.RWMutex
)

// GetObserver returns a registered observer by name. Pre-registered
// observers: "noop", "slog" (default logger) and "span" (span events on the
// active trace).
func GetObserver(name string) (Observer, error) {
	mutex.RLock()
	defer mutex.RUnlock()

	obs, exists := observers[name]
	if !exists {
		return nil, fmt.Errorf("unknown observer: %s", name)
	}
	return obs, nil
}

// RegisterObserver adds or replaces a named observer in the global registry.
func RegisterObserver(name string, observer Observer) {
	mutex.Lock()
	defer mutex.Unlock()

	observers[name] = observer
}

// Names returns the registered observer names.
func Names() []string {
	mutex.RLock()
	defer mutex.RUnlock()

	names := make([]string, 0, len(observers))
	for name := range observers {
		names = append(names, name)
	}
	return names
}

// Resolve looks up each named observer and combines them. A single name
// returns that observer directly.
func Resolve(names ...string) (Observer, error) {
	resolved := make([]Observer, 0, len(names))
	for _, name := range names {
		obs, err := GetObserver(name)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, obs)
	}

	switch len(resolved) {
	case 0:
		return NoOpObserver{}, nil
	case 1:
		return resolved[0], nil
	default:
		return NewMultiObserver(resolved...), nil
	}
}
