// Package mock provides a scripted provider for tests. It records every call
// and answers from configured responses without network access.
package mock

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/tailored-agentic-units/relay/core/protocol"
	"github.com/tailored-agentic-units/relay/core/response"
	"github.com/tailored-agentic-units/relay/provider"
)

// ErrNotConfigured is returned by calls with no scripted response.
var ErrNotConfigured = errors.New("mock: no response configured")

// MockProvider implements the provider capabilities used by an exchange.
type MockProvider struct {
	mu sync.Mutex

	chat      *response.Chat
	createErr error
	stream    []string
	streamErr error
	listFunc  func(call int, query protocol.ListQuery) ([]protocol.Message, error)

	creates []provider.ChatRequest
	streams []provider.ChatRequest
	lists   []protocol.ListQuery
}

// Option configures a MockProvider.
type Option func(*MockProvider)

// WithChat sets the chat returned by CreateChat.
func WithChat(chatID, conversationID string) Option {
	return func(m *MockProvider) {
		m.chat = &response.Chat{ID: chatID, ConversationID: conversationID, Status: "in_progress"}
	}
}

// WithCreateError makes CreateChat fail.
func WithCreateError(err error) Option {
	return func(m *MockProvider) {
		m.createErr = err
	}
}

// WithStream sets the raw lines StreamChat delivers, one per line.
func WithStream(lines ...string) Option {
	return func(m *MockProvider) {
		m.stream = lines
	}
}

// WithStreamError makes StreamChat fail.
func WithStreamError(err error) Option {
	return func(m *MockProvider) {
		m.streamErr = err
	}
}

// WithMessages makes every ListMessages call return messages.
func WithMessages(messages ...protocol.Message) Option {
	return func(m *MockProvider) {
		m.listFunc = func(int, protocol.ListQuery) ([]protocol.Message, error) {
			return messages, nil
		}
	}
}

// WithListFunc scripts ListMessages per call. call counts from 1.
func WithListFunc(fn func(call int, query protocol.ListQuery) ([]protocol.Message, error)) Option {
	return func(m *MockProvider) {
		m.listFunc = fn
	}
}

// NewMockProvider creates a MockProvider.
func NewMockProvider(opts ...Option) *MockProvider {
	m := &MockProvider{}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MockProvider) CreateChat(ctx context.Context, req provider.ChatRequest) (*response.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.creates = append(m.creates, req)
	if m.createErr != nil {
		return nil, m.createErr
	}
	if m.chat == nil {
		return nil, ErrNotConfigured
	}
	chat := *m.chat
	return &chat, nil
}

func (m *MockProvider) StreamChat(ctx context.Context, req provider.ChatRequest) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.streams = append(m.streams, req)
	if m.streamErr != nil {
		return nil, m.streamErr
	}
	if m.stream == nil {
		return nil, ErrNotConfigured
	}
	return io.NopCloser(strings.NewReader(strings.Join(m.stream, "\n") + "\n")), nil
}

func (m *MockProvider) ListMessages(ctx context.Context, query protocol.ListQuery) ([]protocol.Message, error) {
	m.mu.Lock()
	m.lists = append(m.lists, query)
	call := len(m.lists)
	fn := m.listFunc
	m.mu.Unlock()

	if fn == nil {
		return nil, ErrNotConfigured
	}
	return fn(call, query)
}

// Creates returns the recorded CreateChat requests.
func (m *MockProvider) Creates() []provider.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]provider.ChatRequest(nil), m.creates...)
}

// Streams returns the recorded StreamChat requests.
func (m *MockProvider) Streams() []provider.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]provider.ChatRequest(nil), m.streams...)
}

// Lists returns the recorded ListMessages queries.
func (m *MockProvider) Lists() []protocol.ListQuery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]protocol.ListQuery(nil), m.lists...)
}

// Calls returns the total number of calls of any kind.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.creates) + len(m.streams) + len(m.lists)
}

// AnswerStream returns stream lines for a chat that creates conversationID
// and answers with the given chunks.
func AnswerStream(chatID, conversationID string, chunks ...string) []string {
	lines := []string{
		"event: conversation.chat.created",
		`data: {"id":"` + chatID + `","conversation_id":"` + conversationID + `","status":"created"}`,
		"",
	}
	for _, chunk := range chunks {
		lines = append(lines,
			"event: conversation.message.delta",
			`data: {"role":"assistant","content_type":"text","type":"answer","content":"`+chunk+`"}`,
			"",
		)
	}
	return append(lines,
		"event: conversation.chat.completed",
		`data: {"id":"`+chatID+`","conversation_id":"`+conversationID+`","status":"completed"}`,
		"",
		"event: done",
		`data: "[DONE]"`,
	)
}
