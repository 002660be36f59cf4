// Package exchange runs one request/response cycle against the provider and
// keeps the session registry in step with it.
//
// Each exchange resolves the conversation to continue, invokes the provider
// in synchronous or streaming mode, binds the resulting conversation id to
// the session, and returns the reply:
//
//	x, err := exchange.New(&cfg)
//	result, err := x.Send(ctx, exchange.Request{SessionID: "s1", Message: "hello"})
//
// A failure before the provider reports a conversation leaves the registry
// untouched, so the session keeps its previous binding.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tailored-agentic-units/relay/core/fault"
	"github.com/tailored-agentic-units/relay/core/protocol"
	"github.com/tailored-agentic-units/relay/core/response"
	"github.com/tailored-agentic-units/relay/observability"
	"github.com/tailored-agentic-units/relay/poll"
	"github.com/tailored-agentic-units/relay/provider"
	"github.com/tailored-agentic-units/relay/session"
	"github.com/tailored-agentic-units/relay/stream"
)

const tracerName = "github.com/tailored-agentic-units/relay/exchange"

// Provider is the set of provider capabilities an exchange uses.
type Provider interface {
	CreateChat(ctx context.Context, req provider.ChatRequest) (*response.Chat, error)
	StreamChat(ctx context.Context, req provider.ChatRequest) (io.ReadCloser, error)
	ListMessages(ctx context.Context, query protocol.ListQuery) ([]protocol.Message, error)
}

// Request is one caller message. Empty SessionID and UserID are generated.
// A non-empty ConversationID continues that conversation regardless of the
// session's current binding.
type Request struct {
	SessionID      string
	UserID         string
	Message        string
	ConversationID string
}

// Result is the outcome of a completed exchange.
type Result struct {
	Text           string
	SessionID      string
	UserID         string
	MessageID      string
	ConversationID string
	ChatID         string
	Mode           Mode
	// Source reports where a synchronous reply came from.
	Source    poll.Source
	Chunks    int
	Timestamp time.Time
}

// Event is a stream event tagged with the exchange's identifiers.
type Event struct {
	stream.Event
	SessionID string
	MessageID string
	Timestamp time.Time
}

// Emit receives stream events in order. Returning an error stops the
// exchange.
type Emit func(Event) error

// Option configures an Exchange after config-driven initialization.
type Option func(*Exchange)

// WithProvider overrides the config-created provider client.
func WithProvider(p Provider) Option {
	return func(x *Exchange) { x.provider = p }
}

// WithRegistry overrides the config-created session registry.
func WithRegistry(r *session.Registry) Option {
	return func(x *Exchange) { x.registry = r }
}

// WithObserver overrides the configured observer.
func WithObserver(o observability.Observer) Option {
	return func(x *Exchange) { x.observer = o }
}

// WithTracer overrides the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(x *Exchange) { x.tracer = t }
}

// WithResolver overrides the config-created poll resolver.
func WithResolver(r *poll.Resolver) Option {
	return func(x *Exchange) { x.resolver = r }
}

// WithClock overrides the time source used for result timestamps.
func WithClock(now func() time.Time) Option {
	return func(x *Exchange) { x.now = now }
}

// Exchange orchestrates provider calls and session bindings. It is safe for
// concurrent use; the registry is the only state shared between exchanges.
type Exchange struct {
	provider      Provider
	registry      *session.Registry
	resolver      *poll.Resolver
	observer      observability.Observer
	tracer        trace.Tracer
	now           func() time.Time
	streamTimeout time.Duration
	defaultUserID string
}

// New creates an Exchange from configuration. Options are applied first;
// subsystems they did not supply are created from cfg. Creating the
// provider client validates its credentials.
func New(cfg *Config, opts ...Option) (*Exchange, error) {
	merged := DefaultConfig()
	if cfg != nil {
		merged.Merge(cfg)
	}

	x := &Exchange{
		streamTimeout: merged.StreamTimeout,
		defaultUserID: merged.DefaultUserID,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(x)
	}

	if x.observer == nil {
		obs, err := observability.Resolve(merged.ObserverNames()...)
		if err != nil {
			return nil, fault.Configuration("exchange.New", "%v", err)
		}
		x.observer = obs
	}
	if x.tracer == nil {
		x.tracer = otel.Tracer(tracerName)
	}
	if x.provider == nil {
		client, err := provider.New(&merged.Provider)
		if err != nil {
			return nil, fmt.Errorf("failed to create provider: %w", err)
		}
		x.provider = client
	}
	if x.registry == nil {
		x.registry = session.New(&merged.Session)
	}
	if x.resolver == nil {
		x.resolver = poll.New(&merged.Poll, x.provider, poll.WithObserver(x.observer))
	}

	return x, nil
}

// Registry returns the session registry.
func (x *Exchange) Registry() *session.Registry {
	return x.registry
}

// Observer returns the observer receiving exchange events.
func (x *Exchange) Observer() observability.Observer {
	return x.observer
}

type prepared struct {
	sessionID      string
	userID         string
	messageID      string
	message        string
	conversationID string
}

// prepare validates the request and resolves its identifiers. Nothing is
// mutated.
func (x *Exchange) prepare(req Request) (prepared, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return prepared{}, fault.Validation("exchange.prepare", ErrEmptyMessage)
	}

	p := prepared{
		sessionID: req.SessionID,
		userID:    req.UserID,
		messageID: session.NewMessageID(),
		message:   message,
	}
	if p.sessionID == "" {
		p.sessionID = session.NewSessionID()
	}

	conversationID, err := x.registry.Resolve(p.sessionID, req.ConversationID)
	if err != nil {
		return prepared{}, err
	}
	p.conversationID = conversationID

	if p.userID == "" {
		p.userID = x.userFor(p.sessionID)
	}
	return p, nil
}

// userFor returns the user id to use for a session that named none.
func (x *Exchange) userFor(sessionID string) string {
	if rec, ok := x.registry.Get(sessionID); ok && rec.UserID != "" {
		return rec.UserID
	}
	if x.defaultUserID != "" {
		return x.defaultUserID
	}
	return session.NewUserID()
}

// Send runs a synchronous exchange: create the chat, poll for the reply,
// then bind. The reply text is never empty on success.
func (x *Exchange) Send(ctx context.Context, req Request) (*Result, error) {
	p, err := x.prepare(req)
	if err != nil {
		x.emitError(ctx, ModeSync, req.SessionID, err)
		return nil, err
	}

	ctx, span := x.startSpan(ctx, "exchange.Send", ModeSync, p)
	defer span.End()
	start := x.now()
	x.emitStart(ctx, ModeSync, p)

	chat, err := x.provider.CreateChat(ctx, provider.ChatRequest{
		UserID:         p.userID,
		ConversationID: p.conversationID,
		Message:        p.message,
	})
	if err != nil {
		return nil, x.fail(ctx, span, ModeSync, p.sessionID, err)
	}
	if chat.ID == "" {
		return nil, x.fail(ctx, span, ModeSync, p.sessionID, fault.Integrity("exchange.Send", ErrMissingChat))
	}
	if chat.ConversationID == "" {
		return nil, x.fail(ctx, span, ModeSync, p.sessionID, fault.Integrity("exchange.Send", ErrMissingConversation))
	}
	span.SetAttributes(attribute.String("relay.chat_id", chat.ID))

	reply, err := x.resolver.Resolve(ctx, chat.Ref())
	if err != nil {
		return nil, x.fail(ctx, span, ModeSync, p.sessionID, err)
	}

	if err := x.finalize(ctx, p, chat.ConversationID); err != nil {
		return nil, x.fail(ctx, span, ModeSync, p.sessionID, err)
	}

	result := &Result{
		Text:           reply.Text,
		SessionID:      p.sessionID,
		UserID:         p.userID,
		MessageID:      p.messageID,
		ConversationID: chat.ConversationID,
		ChatID:         chat.ID,
		Mode:           ModeSync,
		Source:         reply.Source,
		Timestamp:      x.now(),
	}
	x.emitComplete(ctx, result, start)
	return result, nil
}

// Stream runs a streaming exchange. Chunk and frame-error events are passed
// to emit in wire order as they arrive. After the stream ends the session is
// bound and a complete event is emitted last. If the provider call fails,
// the stream times out, or no conversation id is reported, an error event
// is emitted last instead and the registry is left untouched.
//
// Validation failures return before anything is emitted. Cancellation of
// ctx or an emit error stops the exchange without a terminal event.
func (x *Exchange) Stream(ctx context.Context, req Request, emit Emit) (*Result, error) {
	p, err := x.prepare(req)
	if err != nil {
		x.emitError(ctx, ModeStream, req.SessionID, err)
		return nil, err
	}

	ctx, span := x.startSpan(ctx, "exchange.Stream", ModeStream, p)
	defer span.End()
	start := x.now()
	x.emitStart(ctx, ModeStream, p)

	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, x.streamTimeout)
	defer cancel()

	tag := func(e stream.Event) Event {
		return Event{Event: e, SessionID: p.sessionID, MessageID: p.messageID, Timestamp: x.now()}
	}

	terminate := func(err error, ref protocol.ConversationRef) error {
		if parent.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			err = fault.Timeout("exchange.Stream", ref.ChatID,
				fmt.Errorf("stream did not complete within %s", x.streamTimeout))
		}
		err = x.fail(parent, span, ModeStream, p.sessionID, err)
		if parent.Err() != nil {
			return err
		}
		if emitErr := emit(tag(stream.Event{
			Type:           stream.EventError,
			Err:            err,
			ChatID:         ref.ChatID,
			ConversationID: ref.ConversationID,
		})); emitErr != nil {
			return emitErr
		}
		return err
	}

	body, err := x.provider.StreamChat(ctx, provider.ChatRequest{
		UserID:         p.userID,
		ConversationID: p.conversationID,
		Message:        p.message,
	})
	if err != nil {
		return nil, terminate(err, protocol.ConversationRef{ConversationID: p.conversationID})
	}
	defer body.Close()

	agg := stream.NewAggregator(p.conversationID)
	forward := func(e stream.Event) error {
		x.observeStreamEvent(ctx, p, e)
		return emit(tag(e))
	}

	complete, err := stream.Consume(ctx, stream.NewDecoder(body), agg, forward)
	if err != nil {
		if parent.Err() == nil && ctx.Err() == nil && !fault.IsUpstream(err) {
			// emit failed; the caller is gone
			x.fail(parent, span, ModeStream, p.sessionID, err)
			return nil, err
		}
		return nil, terminate(err, agg.Ref())
	}

	span.SetAttributes(attribute.String("relay.chat_id", complete.ChatID))
	if complete.ConversationID == "" {
		return nil, terminate(fault.Integrity("exchange.Stream", ErrMissingConversation), agg.Ref())
	}

	if err := x.finalize(ctx, p, complete.ConversationID); err != nil {
		return nil, terminate(err, agg.Ref())
	}

	result := &Result{
		Text:           complete.Text,
		SessionID:      p.sessionID,
		UserID:         p.userID,
		MessageID:      p.messageID,
		ConversationID: complete.ConversationID,
		ChatID:         complete.ChatID,
		Mode:           ModeStream,
		Chunks:         complete.Chunks,
		Timestamp:      x.now(),
	}
	if err := emit(tag(complete)); err != nil {
		return result, err
	}
	x.emitComplete(ctx, result, start)
	return result, nil
}

// finalize binds the session to the conversation the provider reported.
func (x *Exchange) finalize(ctx context.Context, p prepared, conversationID string) error {
	result, err := x.registry.Bind(p.sessionID, p.userID, conversationID)
	if err != nil {
		return fault.Integrity("exchange.finalize", err)
	}
	x.observeBind(ctx, result)
	return nil
}

func (x *Exchange) startSpan(ctx context.Context, name string, mode Mode, p prepared) (context.Context, trace.Span) {
	return x.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("relay.mode", string(mode)),
			attribute.String("relay.session_id", p.sessionID),
			attribute.String("relay.message_id", p.messageID),
			attribute.Bool("relay.continued", p.conversationID != ""),
		))
}

// fail records err on the span and emits an error event. It returns err.
func (x *Exchange) fail(ctx context.Context, span trace.Span, mode Mode, sessionID string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	x.emitError(ctx, mode, sessionID, err)
	return err
}
