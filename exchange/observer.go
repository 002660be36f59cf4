package exchange

import "github.com/tailored-agentic-units/relay/observability"

// Exchange event types.
const (
	EventStart          observability.EventType = "exchange.start"
	EventComplete       observability.EventType = "exchange.complete"
	EventError          observability.EventType = "exchange.error"
	EventChunk          observability.EventType = "stream.chunk"
	EventFrameError     observability.EventType = "stream.frame_error"
	EventSessionBind    observability.EventType = "session.bind"
	EventSessionEvict   observability.EventType = "session.evict"
	EventSessionClear   observability.EventType = "session.clear"
	EventSessionMissing observability.EventType = "session.missing"
)

// Mode names the path an exchange took.
type Mode string

const (
	ModeSync   Mode = "sync"
	ModeStream Mode = "stream"
)
