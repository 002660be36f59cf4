package protocol

// EventKind is the value of an `event:` line in the provider's push stream.
type EventKind string

const (
	EventChatCreated        EventKind = "conversation.chat.created"
	EventChatInProgress     EventKind = "conversation.chat.in_progress"
	EventMessageDelta       EventKind = "conversation.message.delta"
	EventMessageCompleted   EventKind = "conversation.message.completed"
	EventChatCompleted      EventKind = "conversation.chat.completed"
	EventChatFailed         EventKind = "conversation.chat.failed"
	EventChatRequiresAction EventKind = "conversation.chat.requires_action"
	EventError              EventKind = "error"
	EventDone               EventKind = "done"
)

// DoneSentinel is the data payload that accompanies EventDone at the end of
// a stream. It is a quoted JSON string on the wire.
const DoneSentinel = `"[DONE]"`

// IsFailure reports whether the kind signals a provider-side failure of the
// chat.
func (k EventKind) IsFailure() bool {
	return k == EventChatFailed || k == EventError
}
