// Package response parses the provider's JSON bodies: the {code, msg, data}
// envelope wrapping every non-streaming reply, the chat object, message
// listings, and the payloads carried by stream frames.
package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tailored-agentic-units/relay/core/fault"
	"github.com/tailored-agentic-units/relay/core/protocol"
)

// ErrMissingData is returned when an envelope reports success but carries no
// data.
var ErrMissingData = errors.New("envelope has no data")

// Envelope is the provider's response wrapper. Code 0 means success.
type Envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Err returns an upstream fault when the envelope reports a non-zero code.
func (e *Envelope) Err(op string, status int) error {
	if e.Code == 0 {
		return nil
	}
	return fault.Upstream(op, status, e.Msg,
		fmt.Errorf("provider returned code %d: %s", e.Code, e.Msg))
}

// ParseEnvelope decodes a response body into an Envelope.
func ParseEnvelope(body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to parse envelope: %w", err)
	}
	return &env, nil
}

// Chat is the chat object returned when a chat is created.
type Chat struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	BotID          string `json:"bot_id,omitempty"`
	Status         string `json:"status,omitempty"`
	CreatedAt      int64  `json:"created_at,omitempty"`
	LastError      *struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	} `json:"last_error,omitempty"`
}

// Ref returns the conversation reference identified by the chat.
func (c *Chat) Ref() protocol.ConversationRef {
	return protocol.ConversationRef{ConversationID: c.ConversationID, ChatID: c.ID}
}

// ParseChat decodes the data of an envelope as a Chat.
func ParseChat(env *Envelope) (*Chat, error) {
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, ErrMissingData
	}
	var chat Chat
	if err := json.Unmarshal(env.Data, &chat); err != nil {
		return nil, fmt.Errorf("failed to parse chat: %w", err)
	}
	return &chat, nil
}

// ParseMessages decodes the data of an envelope as a message listing. A
// missing data field is an empty listing.
func ParseMessages(env *Envelope) ([]protocol.Message, error) {
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, nil
	}
	var messages []protocol.Message
	if err := json.Unmarshal(env.Data, &messages); err != nil {
		return nil, fmt.Errorf("failed to parse messages: %w", err)
	}
	return messages, nil
}

// ChatCreated is the payload of a conversation.chat.created frame.
type ChatCreated struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
}

// ParseChatCreated decodes a conversation.chat.created payload.
func ParseChatCreated(payload string) (*ChatCreated, error) {
	var created ChatCreated
	if err := json.Unmarshal([]byte(payload), &created); err != nil {
		return nil, fmt.Errorf("failed to parse chat created payload: %w", err)
	}
	return &created, nil
}

// Delta is the payload of a conversation.message.delta frame.
type Delta struct {
	ID             string               `json:"id,omitempty"`
	ConversationID string               `json:"conversation_id,omitempty"`
	ChatID         string               `json:"chat_id,omitempty"`
	Role           protocol.Role        `json:"role"`
	Type           protocol.MessageType `json:"type"`
	Content        string               `json:"content"`
	ContentType    protocol.ContentType `json:"content_type"`
}

// IsAnswerText reports whether the delta belongs to the assistant's final
// text answer. Tool, verbose and follow-up deltas do not.
func (d *Delta) IsAnswerText() bool {
	return d.Role == protocol.RoleAssistant &&
		d.ContentType == protocol.ContentText &&
		d.Type == protocol.TypeAnswer
}

// Text returns the trimmed delta content.
func (d *Delta) Text() string {
	return strings.TrimSpace(d.Content)
}

// ParseDelta decodes a conversation.message.delta payload.
func ParseDelta(payload string) (*Delta, error) {
	var delta Delta
	if err := json.Unmarshal([]byte(payload), &delta); err != nil {
		return nil, fmt.Errorf("failed to parse delta payload: %w", err)
	}
	return &delta, nil
}

// Failure is the payload of a conversation.chat.failed or error frame.
// Failed chats report a last_error object; bare error frames report code
// and msg at the top level.
type Failure struct {
	Code      int    `json:"code"`
	Msg       string `json:"msg"`
	LastError *struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	} `json:"last_error,omitempty"`
}

// Message returns the most specific failure description available.
func (f *Failure) Message() string {
	if f.LastError != nil && f.LastError.Msg != "" {
		return fmt.Sprintf("code %d: %s", f.LastError.Code, f.LastError.Msg)
	}
	if f.Msg != "" {
		return fmt.Sprintf("code %d: %s", f.Code, f.Msg)
	}
	return "provider reported a failure"
}

// ParseFailure decodes a failure payload.
func ParseFailure(payload string) (*Failure, error) {
	var failure Failure
	if err := json.Unmarshal([]byte(payload), &failure); err != nil {
		return nil, fmt.Errorf("failed to parse failure payload: %w", err)
	}
	return &failure, nil
}
