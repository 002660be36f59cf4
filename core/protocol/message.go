// Package protocol defines the provider vocabulary shared across relay:
// message roles and types, stream event kinds, and the query shape used to
// list the messages of a chat.
package protocol

import "strings"

// Role identifies the sender of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ContentType identifies how a message body is encoded.
type ContentType string

const (
	ContentText       ContentType = "text"
	ContentObjectText ContentType = "object_string"
	ContentCard       ContentType = "card"
)

// MessageType tags what a message represents within a chat. Only answer
// messages are final assistant replies; the rest are intermediate output.
type MessageType string

const (
	TypeQuestion     MessageType = "question"
	TypeAnswer       MessageType = "answer"
	TypeVerbose      MessageType = "verbose"
	TypeFunctionCall MessageType = "function_call"
	TypeToolOutput   MessageType = "tool_output"
	TypeToolResponse MessageType = "tool_response"
	TypeFollowUp     MessageType = "follow_up"
)

// Message is a single provider message as returned by the message-list
// capability.
type Message struct {
	ID             string      `json:"id,omitempty"`
	ConversationID string      `json:"conversation_id,omitempty"`
	ChatID         string      `json:"chat_id,omitempty"`
	BotID          string      `json:"bot_id,omitempty"`
	Role           Role        `json:"role"`
	Type           MessageType `json:"type"`
	Content        string      `json:"content"`
	ContentType    ContentType `json:"content_type"`
}

// IsAnswer reports whether the message is a terminal answer with usable
// content.
func (m Message) IsAnswer() bool {
	return m.Type == TypeAnswer && strings.TrimSpace(m.Content) != ""
}

// IsVerbose reports whether the message is a non-empty verbose message.
func (m Message) IsVerbose() bool {
	return m.Type == TypeVerbose && strings.TrimSpace(m.Content) != ""
}

// NewUserText creates a user text message for the additional_messages field
// of a chat request.
func NewUserText(content string) Message {
	return Message{
		Role:        RoleUser,
		Type:        TypeQuestion,
		Content:     content,
		ContentType: ContentText,
	}
}

// ConversationRef pairs the provider's conversation and chat identifiers for
// one exchange.
type ConversationRef struct {
	ConversationID string `json:"conversation_id"`
	ChatID         string `json:"chat_id"`
}

// Order is the sort direction of a message listing.
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// ListQuery selects messages of a chat from the message-list capability.
type ListQuery struct {
	ChatID         string
	ConversationID string
	Role           Role
	ContentType    ContentType
	Order          Order
	Limit          int
}

// NewAnswerQuery builds the listing used to look for assistant replies:
// assistant text messages, newest first.
func NewAnswerQuery(ref ConversationRef, limit int) ListQuery {
	return ListQuery{
		ChatID:         ref.ChatID,
		ConversationID: ref.ConversationID,
		Role:           RoleAssistant,
		ContentType:    ContentText,
		Order:          OrderDesc,
		Limit:          limit,
	}
}
