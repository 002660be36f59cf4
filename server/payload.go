package server

import (
	"regexp"
	"sync"
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/tailored-agentic-units/relay/exchange"
	"github.com/tailored-agentic-units/relay/session"
)

// ChatRequest is the body of POST /chat and POST /chat/stream.
type ChatRequest struct {
	Message        string `json:"message" binding:"required"`
	SessionID      string `json:"session_id,omitempty" binding:"omitempty,identifier"`
	UserID         string `json:"user_id,omitempty" binding:"omitempty,identifier"`
	ConversationID string `json:"conversation_id,omitempty" binding:"omitempty,max=256"`
}

func (r ChatRequest) exchangeRequest() exchange.Request {
	return exchange.Request{
		SessionID:      r.SessionID,
		UserID:         r.UserID,
		Message:        r.Message,
		ConversationID: r.ConversationID,
	}
}

// ChatResponse is the body returned by POST /chat.
type ChatResponse struct {
	Response       string `json:"response"`
	SessionID      string `json:"session_id"`
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
	Source         string `json:"source,omitempty"`
	Timestamp      string `json:"timestamp"`
}

// BindRequest is the body of POST /session/:session_id/bind.
type BindRequest struct {
	ConversationID string `json:"conversation_id" binding:"required,max=256"`
}

// ListQuery selects a page of GET /sessions.
type ListQuery struct {
	Limit  int `form:"limit,default=10" binding:"min=1,max=50"`
	Offset int `form:"offset,default=0" binding:"min=0"`
}

// SessionView is a session as reported by the session endpoints.
type SessionView struct {
	SessionID      string `json:"session_id"`
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id"`
	CreatedAt      string `json:"created_at"`
	LastActivity   string `json:"last_activity"`
}

func newSessionView(rec session.Record) SessionView {
	return SessionView{
		SessionID:      rec.SessionID,
		UserID:         rec.UserID,
		ConversationID: rec.ConversationID,
		CreatedAt:      timestamp(rec.CreatedAt),
		LastActivity:   timestamp(rec.LastActivity),
	}
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error      string `json:"error"`
	StatusCode int    `json:"status_code"`
	Kind       string `json:"kind"`
	Message    string `json:"message"`
	Timestamp  string `json:"timestamp"`
}

// StreamMessage is one server-sent event of POST /chat/stream.
type StreamMessage struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

func timestamp(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_.:-]{1,128}$`)

var registerOnce sync.Once

// registerValidations adds the identifier tag to gin's validator.
func registerValidations() {
	registerOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			v.RegisterValidation("identifier", func(fl validator.FieldLevel) bool {
				return identifierPattern.MatchString(fl.Field().String())
			})
		}
	})
}
