package poll

import "github.com/tailored-agentic-units/relay/observability"

// Poll event types.
const (
	EventAttempt  observability.EventType = "poll.attempt"
	EventAnswer   observability.EventType = "poll.answer"
	EventFallback observability.EventType = "poll.fallback"
)

// Fallback outcomes reported in EventFallback's "outcome" attribute.
const (
	OutcomeVerbose  = "verbose"
	OutcomeGreeting = "greeting"
)
