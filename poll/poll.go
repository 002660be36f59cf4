// Package poll recovers an assistant reply for a chat that was created
// without streaming. It lists the chat's messages on a fixed cadence until a
// terminal answer appears, falling back to verbose messages and finally to a
// configured greeting.
package poll

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tailored-agentic-units/relay/core/fault"
	"github.com/tailored-agentic-units/relay/core/protocol"
	"github.com/tailored-agentic-units/relay/observability"
)

// MessageLister is the message-list capability of the provider.
type MessageLister interface {
	ListMessages(ctx context.Context, query protocol.ListQuery) ([]protocol.Message, error)
}

// Source records where a resolved reply came from.
type Source string

const (
	SourceAnswer   Source = "answer"
	SourceVerbose  Source = "verbose"
	SourceGreeting Source = "greeting"
)

// Reply is the text recovered for one chat.
type Reply struct {
	Text     string
	Source   Source
	Attempts int
	// Cause is the polling failure that triggered a fallback, if any.
	Cause error
}

// Resolver polls a MessageLister for replies.
type Resolver struct {
	lister   MessageLister
	cfg      Config
	observer observability.Observer
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithObserver sets the observer that receives poll events.
func WithObserver(o observability.Observer) Option {
	return func(r *Resolver) {
		r.observer = o
	}
}

// New creates a Resolver. Zero values in cfg fall back to DefaultConfig.
func New(cfg *Config, lister MessageLister, opts ...Option) *Resolver {
	merged := DefaultConfig()
	if cfg != nil {
		merged.Merge(cfg)
	}

	r := &Resolver{
		lister:   lister,
		cfg:      merged,
		observer: observability.NoOpObserver{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Config returns the effective configuration.
func (r *Resolver) Config() Config {
	return r.cfg
}

// Poll lists the chat's messages until one of type answer carries non-empty
// content, returning that content trimmed. Within one listing the first
// qualifying message in provider order wins.
//
// A listing failure ends polling with that error. When the configured
// timeout elapses first, Poll returns a timeout fault naming the chat.
// Cancellation of ctx interrupts the wait between listings.
func (r *Resolver) Poll(ctx context.Context, ref protocol.ConversationRef) (Reply, error) {
	start := time.Now()
	deadline := start.Add(r.cfg.Timeout)
	query := protocol.NewAnswerQuery(ref, r.cfg.Limit)

	attempts := 0
	for {
		attempts++
		r.emit(ctx, EventAttempt, observability.LevelVerbose, map[string]any{
			"chat_id": ref.ChatID,
			"attempt": attempts,
		})

		messages, err := r.lister.ListMessages(ctx, query)
		if err != nil {
			return Reply{Attempts: attempts}, err
		}

		if text, ok := firstAnswer(messages); ok {
			r.emit(ctx, EventAnswer, observability.LevelVerbose, map[string]any{
				"chat_id":  ref.ChatID,
				"attempts": attempts,
				"elapsed":  time.Now().Sub(start).String(),
			})
			return Reply{Text: text, Source: SourceAnswer, Attempts: attempts}, nil
		}

		remaining := deadline.Sub(time.Now())
		if remaining <= 0 {
			return Reply{Attempts: attempts}, fault.Timeout("poll.Poll", ref.ChatID,
				fmt.Errorf("no answer after %s", r.cfg.Timeout))
		}

		if err := wait(ctx, min(r.cfg.Interval, remaining)); err != nil {
			return Reply{Attempts: attempts}, err
		}
	}
}

// Resolve returns a reply for the chat, never an empty one. It polls for an
// answer; if polling fails for any reason other than ctx ending, it scans
// one more listing for verbose messages and extracts text from the first
// that yields any. When nothing can be recovered the configured greeting is
// returned with Source set to SourceGreeting.
//
// The only errors Resolve returns are ctx's.
func (r *Resolver) Resolve(ctx context.Context, ref protocol.ConversationRef) (Reply, error) {
	reply, err := r.Poll(ctx, ref)
	if err == nil {
		return reply, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Reply{Attempts: reply.Attempts}, ctxErr
	}

	messages, listErr := r.lister.ListMessages(ctx, protocol.NewAnswerQuery(ref, r.cfg.Limit))
	if listErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Reply{Attempts: reply.Attempts}, ctxErr
		}
		return r.greeting(ctx, ref, reply.Attempts, errors.Join(err, listErr)), nil
	}

	for _, msg := range messages {
		if !msg.IsVerbose() {
			continue
		}
		if text := ExtractVerbose(msg.Content); text != "" {
			r.emit(ctx, EventFallback, observability.LevelInfo, map[string]any{
				"chat_id": ref.ChatID,
				"outcome": OutcomeVerbose,
				"cause":   err.Error(),
			})
			return Reply{Text: text, Source: SourceVerbose, Attempts: reply.Attempts, Cause: err}, nil
		}
	}

	return r.greeting(ctx, ref, reply.Attempts, err), nil
}

func (r *Resolver) greeting(ctx context.Context, ref protocol.ConversationRef, attempts int, cause error) Reply {
	r.emit(ctx, EventFallback, observability.LevelWarning, map[string]any{
		"chat_id": ref.ChatID,
		"outcome": OutcomeGreeting,
		"cause":   cause.Error(),
	})
	return Reply{Text: r.cfg.DefaultGreeting, Source: SourceGreeting, Attempts: attempts, Cause: cause}
}

func (r *Resolver) emit(ctx context.Context, typ observability.EventType, level observability.Level, data map[string]any) {
	r.observer.OnEvent(ctx, observability.Event{
		Type:      typ,
		Level:     level,
		Timestamp: time.Now(),
		Source:    "poll.Resolver",
		Data:      data,
	})
}

func firstAnswer(messages []protocol.Message) (string, bool) {
	for _, msg := range messages {
		if msg.IsAnswer() {
			return strings.TrimSpace(msg.Content), true
		}
	}
	return "", false
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
