// Package fault defines the tagged error type relay uses to distinguish
// failure classes. Callers branch on Kind rather than on message text.
//
//	if fault.IsValidation(err) {
//	    // reject the request, nothing was mutated
//	}
package fault

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure.
type Kind int

const (
	// KindUnknown is reported for errors that carry no fault tag.
	KindUnknown Kind = iota
	// KindConfiguration marks missing credentials or identifiers at startup.
	KindConfiguration
	// KindValidation marks malformed caller input. No state is mutated.
	KindValidation
	// KindUpstream marks a provider HTTP or envelope failure.
	KindUpstream
	// KindStreamFrame marks a single malformed stream frame. Non-fatal.
	KindStreamFrame
	// KindTimeout marks an exhausted polling or exchange deadline.
	KindTimeout
	// KindIntegrity marks a provider response missing an identifier the
	// exchange needs to bind a session.
	KindIntegrity
	// KindNotFound marks a registry query for an unknown id.
	KindNotFound
)

var kindNames = map[Kind]string{
	KindUnknown:       "unknown",
	KindConfiguration: "configuration",
	KindValidation:    "validation",
	KindUpstream:      "upstream",
	KindStreamFrame:   "stream_frame",
	KindTimeout:       "timeout",
	KindIntegrity:     "integrity",
	KindNotFound:      "not_found",
}

// String returns the snake_case name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a failure tagged with its Kind and the diagnostics relevant to it.
// Status and Body are populated for upstream failures; ChatID for timeouts.
type Error struct {
	Kind           Kind
	Op             string
	Err            error
	Status         int
	Body           string
	ChatID         string
	SessionID      string
	ConversationID string
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.ChatID != "" {
		fmt.Fprintf(&b, " [chat_id=%s]", e.ChatID)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error of the given kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Configuration creates a KindConfiguration error.
func Configuration(op, format string, args ...any) *Error {
	return New(KindConfiguration, op, fmt.Errorf(format, args...))
}

// Validation creates a KindValidation error.
func Validation(op string, err error) *Error {
	return New(KindValidation, op, err)
}

// Upstream creates a KindUpstream error carrying the provider's status code
// and response body.
func Upstream(op string, status int, body string, err error) *Error {
	e := New(KindUpstream, op, err)
	e.Status = status
	e.Body = body
	return e
}

// StreamFrame creates a KindStreamFrame error.
func StreamFrame(op string, err error) *Error {
	return New(KindStreamFrame, op, err)
}

// Timeout creates a KindTimeout error naming the chat that did not complete.
func Timeout(op, chatID string, err error) *Error {
	e := New(KindTimeout, op, err)
	e.ChatID = chatID
	return e
}

// Integrity creates a KindIntegrity error.
func Integrity(op string, err error) *Error {
	return New(KindIntegrity, op, err)
}

// NotFound creates a KindNotFound error.
func NotFound(op string, err error) *Error {
	return New(KindNotFound, op, err)
}

// KindOf returns the Kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

func IsConfiguration(err error) bool { return KindOf(err) == KindConfiguration }
func IsValidation(err error) bool    { return KindOf(err) == KindValidation }
func IsUpstream(err error) bool      { return KindOf(err) == KindUpstream }
func IsStreamFrame(err error) bool   { return KindOf(err) == KindStreamFrame }
func IsTimeout(err error) bool       { return KindOf(err) == KindTimeout }
func IsIntegrity(err error) bool     { return KindOf(err) == KindIntegrity }
func IsNotFound(err error) bool      { return KindOf(err) == KindNotFound }
