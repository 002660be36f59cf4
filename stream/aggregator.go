package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tailored-agentic-units/relay/core/fault"
	"github.com/tailored-agentic-units/relay/core/protocol"
	"github.com/tailored-agentic-units/relay/core/response"
)

// EventType identifies what an Event carries.
type EventType string

const (
	EventChunk    EventType = "chunk"
	EventError    EventType = "error"
	EventComplete EventType = "complete"
)

// Event is delivered to the caller while a stream is consumed. Chunk events
// carry Content and Index; error events carry Err; the complete event carries
// the assembled Text, the chunk count and Success.
type Event struct {
	Type           EventType
	Content        string
	Index          int
	Text           string
	Chunks         int
	Success        bool
	ChatID         string
	ConversationID string
	Err            error
}

// State is the aggregation state of one in-flight stream.
type State struct {
	Text           string
	ChatID         string
	ConversationID string
	Chunks         int
	FrameErrors    int
	Terminal       bool
}

// Aggregator folds frames into chunk events and accumulated text. It is not
// safe for concurrent use; one aggregator serves one exchange.
type Aggregator struct {
	text           strings.Builder
	chatID         string
	conversationID string
	chunks         int
	frameErrors    int
	terminal       bool
}

// NewAggregator creates an Aggregator. conversationID is the conversation the
// request was sent on, if any; a created frame overrides it.
func NewAggregator(conversationID string) *Aggregator {
	return &Aggregator{conversationID: conversationID}
}

// Apply consumes one frame. It reports an event when the frame produced
// content or was malformed; lifecycle frames produce nothing.
func (a *Aggregator) Apply(frame Frame) (Event, bool) {
	if a.terminal {
		return Event{}, false
	}

	switch {
	case frame.Kind == protocol.EventChatCreated:
		created, err := response.ParseChatCreated(frame.Payload)
		if err != nil {
			return a.frameError(frame, err), true
		}
		if created.ID != "" {
			a.chatID = created.ID
		}
		if created.ConversationID != "" {
			a.conversationID = created.ConversationID
		}
		return Event{}, false

	case frame.Kind == protocol.EventMessageDelta:
		delta, err := response.ParseDelta(frame.Payload)
		if err != nil {
			return a.frameError(frame, err), true
		}
		if !delta.IsAnswerText() {
			return Event{}, false
		}
		content := delta.Text()
		if content == "" {
			return Event{}, false
		}
		a.text.WriteString(content)
		a.chunks++
		return Event{
			Type:           EventChunk,
			Content:        content,
			Index:          a.chunks,
			ChatID:         a.chatID,
			ConversationID: a.conversationID,
		}, true

	case frame.Kind.IsFailure():
		failure, err := response.ParseFailure(frame.Payload)
		if err != nil {
			return a.frameError(frame, err), true
		}
		return a.frameError(frame, errors.New(failure.Message())), true
	}

	if !json.Valid([]byte(frame.Payload)) {
		return a.frameError(frame, errors.New("payload is not valid JSON")), true
	}
	return Event{}, false
}

// Complete marks the stream terminal and returns the complete event. Success
// is true when any answer text was accumulated.
func (a *Aggregator) Complete() Event {
	a.terminal = true
	text := a.text.String()
	return Event{
		Type:           EventComplete,
		Text:           text,
		Chunks:         a.chunks,
		Success:        len(text) > 0,
		ChatID:         a.chatID,
		ConversationID: a.conversationID,
	}
}

// State returns a snapshot of the aggregation state.
func (a *Aggregator) State() State {
	return State{
		Text:           a.text.String(),
		ChatID:         a.chatID,
		ConversationID: a.conversationID,
		Chunks:         a.chunks,
		FrameErrors:    a.frameErrors,
		Terminal:       a.terminal,
	}
}

// Ref returns the conversation reference collected so far.
func (a *Aggregator) Ref() protocol.ConversationRef {
	return protocol.ConversationRef{ConversationID: a.conversationID, ChatID: a.chatID}
}

func (a *Aggregator) frameError(frame Frame, err error) Event {
	a.frameErrors++
	return Event{
		Type:           EventError,
		Err:            fault.StreamFrame("stream.Apply", fmt.Errorf("%s frame: %w", frame.Kind, err)),
		ChatID:         a.chatID,
		ConversationID: a.conversationID,
	}
}
