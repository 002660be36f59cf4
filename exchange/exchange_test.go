package exchange_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tailored-agentic-units/relay/core/fault"
	"github.com/tailored-agentic-units/relay/core/protocol"
	"github.com/tailored-agentic-units/relay/exchange"
	"github.com/tailored-agentic-units/relay/observability"
	"github.com/tailored-agentic-units/relay/poll"
	"github.com/tailored-agentic-units/relay/provider"
	"github.com/tailored-agentic-units/relay/provider/mock"
	"github.com/tailored-agentic-units/relay/session"
	"github.com/tailored-agentic-units/relay/stream"
)

const (
	convA = "conv-aaaaaaaaaa"
	convB = "conv-bbbbbbbbbb"
)

type captureObserver struct {
	mu     sync.Mutex
	events []observability.Event
}

func (o *captureObserver) OnEvent(ctx context.Context, event observability.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, event)
}

func (o *captureObserver) count(typ observability.EventType) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, e := range o.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func (o *captureObserver) last(typ observability.EventType) (observability.Event, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := len(o.events) - 1; i >= 0; i-- {
		if o.events[i].Type == typ {
			return o.events[i], true
		}
	}
	return observability.Event{}, false
}

// collector records emitted stream events.
type collector struct {
	events []exchange.Event
}

func (c *collector) emit(e exchange.Event) error {
	c.events = append(c.events, e)
	return nil
}

func (c *collector) types() []stream.EventType {
	types := make([]stream.EventType, len(c.events))
	for i, e := range c.events {
		types[i] = e.Type
	}
	return types
}

func newExchange(t *testing.T, p exchange.Provider, opts ...exchange.Option) (*exchange.Exchange, *captureObserver) {
	t.Helper()

	obs := &captureObserver{}
	pollCfg := poll.Config{Interval: 2 * time.Millisecond, Timeout: 20 * time.Millisecond, Limit: 30}
	base := []exchange.Option{
		exchange.WithProvider(p),
		exchange.WithObserver(obs),
		exchange.WithResolver(poll.New(&pollCfg, p, poll.WithObserver(obs))),
	}

	x, err := exchange.New(nil, append(base, opts...)...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return x, obs
}

func answer(content string) protocol.Message {
	return protocol.Message{Role: protocol.RoleAssistant, Type: protocol.TypeAnswer, Content: content, ContentType: protocol.ContentText}
}

func verbose(content string) protocol.Message {
	return protocol.Message{Role: protocol.RoleAssistant, Type: protocol.TypeVerbose, Content: content, ContentType: protocol.ContentText}
}

func TestSend_NewSession(t *testing.T) {
	p := mock.NewMockProvider(
		mock.WithChat("chat-1", convA),
		mock.WithMessages(answer("  Hello back  ")),
	)
	x, obs := newExchange(t, p)

	result, err := x.Send(context.Background(), exchange.Request{Message: " hello "})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if result.Text != "Hello back" {
		t.Errorf("got text %q, want %q", result.Text, "Hello back")
	}
	if result.Source != poll.SourceAnswer {
		t.Errorf("got source %q, want %q", result.Source, poll.SourceAnswer)
	}
	if !strings.HasPrefix(result.SessionID, "session_") {
		t.Errorf("got session id %q, want session_ prefix", result.SessionID)
	}
	if !strings.HasPrefix(result.UserID, "user_") {
		t.Errorf("got user id %q, want user_ prefix", result.UserID)
	}
	if result.MessageID == "" || result.ChatID != "chat-1" || result.ConversationID != convA {
		t.Errorf("unexpected result %+v", result)
	}
	if result.Mode != exchange.ModeSync {
		t.Errorf("got mode %q, want sync", result.Mode)
	}

	creates := p.Creates()
	if len(creates) != 1 {
		t.Fatalf("got %d creates, want 1", len(creates))
	}
	if creates[0].ConversationID != "" {
		t.Errorf("new session sent conversation %q, want none", creates[0].ConversationID)
	}
	if creates[0].Message != "hello" {
		t.Errorf("got message %q, want trimmed", creates[0].Message)
	}

	rec, ok := x.Registry().Get(result.SessionID)
	if !ok {
		t.Fatal("session record not created")
	}
	if rec.ConversationID != convA || rec.UserID != result.UserID {
		t.Errorf("got record %+v", rec)
	}
	if sid, ok := x.Registry().ReverseLookup(convA); !ok || sid != result.SessionID {
		t.Errorf("got reverse %q %v, want %q", sid, ok, result.SessionID)
	}

	if obs.count(exchange.EventStart) != 1 || obs.count(exchange.EventComplete) != 1 {
		t.Errorf("got %d start, %d complete events", obs.count(exchange.EventStart), obs.count(exchange.EventComplete))
	}
	if obs.count(exchange.EventSessionBind) != 1 {
		t.Errorf("got %d bind events, want 1", obs.count(exchange.EventSessionBind))
	}
}

func TestSend_ContinuesBoundConversation(t *testing.T) {
	p := mock.NewMockProvider(
		mock.WithChat("chat-1", convA),
		mock.WithMessages(answer("ok")),
	)
	x, _ := newExchange(t, p)
	ctx := context.Background()

	first, err := x.Send(ctx, exchange.Request{SessionID: "s1", Message: "one"})
	if err != nil {
		t.Fatalf("first Send failed: %v", err)
	}
	if _, err := x.Send(ctx, exchange.Request{SessionID: "s1", Message: "two"}); err != nil {
		t.Fatalf("second Send failed: %v", err)
	}

	creates := p.Creates()
	if creates[1].ConversationID != convA {
		t.Errorf("got conversation %q, want %q", creates[1].ConversationID, convA)
	}
	if creates[1].UserID != first.UserID {
		t.Errorf("got user %q, want session user %q", creates[1].UserID, first.UserID)
	}

	resolved, err := x.Registry().Resolve("s1", "")
	if err != nil || resolved != convA {
		t.Errorf("got %q, %v, want %q", resolved, err, convA)
	}
}

func TestSend_ExplicitConversation(t *testing.T) {
	p := mock.NewMockProvider(
		mock.WithChat("chat-1", convB),
		mock.WithMessages(answer("ok")),
	)
	x, _ := newExchange(t, p)
	mustBind(t, x, "s1", convA)

	if _, err := x.Send(context.Background(), exchange.Request{SessionID: "s1", Message: "hi", ConversationID: convB}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if got := p.Creates()[0].ConversationID; got != convB {
		t.Errorf("got conversation %q, want explicit %q", got, convB)
	}
	rec, _ := x.Registry().Get("s1")
	if rec.ConversationID != convB {
		t.Errorf("got binding %q, want %q", rec.ConversationID, convB)
	}
	if _, ok := x.Registry().ReverseLookup(convA); ok {
		t.Error("old conversation still reverse-mapped")
	}
}

func TestSend_ValidationBeforeProvider(t *testing.T) {
	tests := []struct {
		name string
		req  exchange.Request
	}{
		{name: "empty message", req: exchange.Request{SessionID: "s1", Message: "   "}},
		{name: "short conversation id", req: exchange.Request{SessionID: "s1", Message: "hi", ConversationID: "short"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := mock.NewMockProvider(mock.WithChat("chat-1", convA))
			x, obs := newExchange(t, p)

			_, err := x.Send(context.Background(), tt.req)
			if !fault.IsValidation(err) {
				t.Errorf("got %v, want validation fault", err)
			}
			if p.Calls() != 0 {
				t.Errorf("got %d provider calls, want 0", p.Calls())
			}
			if x.Registry().Len() != 0 {
				t.Errorf("got %d sessions, want 0", x.Registry().Len())
			}
			if e, ok := obs.last(exchange.EventError); !ok || e.Level != observability.LevelWarning {
				t.Errorf("got error event %+v, want warning", e)
			}
		})
	}
}

func TestSend_ProviderFailurePreservesBinding(t *testing.T) {
	upstream := fault.Upstream("provider.CreateChat", 500, "boom", errors.New("boom"))
	p := mock.NewMockProvider(mock.WithCreateError(upstream))
	x, obs := newExchange(t, p)
	mustBind(t, x, "s1", convA)

	_, err := x.Send(context.Background(), exchange.Request{SessionID: "s1", Message: "hi"})
	if !fault.IsUpstream(err) {
		t.Errorf("got %v, want upstream fault", err)
	}

	rec, ok := x.Registry().Get("s1")
	if !ok || rec.ConversationID != convA {
		t.Errorf("got %+v, want binding to %q preserved", rec, convA)
	}
	if e, ok := obs.last(exchange.EventError); !ok || e.Level != observability.LevelError {
		t.Errorf("got error event %+v, want error level", e)
	}
}

func TestSend_MissingIdentifiers(t *testing.T) {
	tests := []struct {
		name   string
		chatID string
		convID string
		want   error
	}{
		{name: "no conversation", chatID: "chat-1", convID: "", want: exchange.ErrMissingConversation},
		{name: "no chat", chatID: "", convID: convA, want: exchange.ErrMissingChat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := mock.NewMockProvider(mock.WithChat(tt.chatID, tt.convID))
			x, _ := newExchange(t, p)

			_, err := x.Send(context.Background(), exchange.Request{SessionID: "s1", Message: "hi"})
			if !fault.IsIntegrity(err) || !errors.Is(err, tt.want) {
				t.Errorf("got %v, want integrity fault wrapping %v", err, tt.want)
			}
			if x.Registry().Len() != 0 {
				t.Errorf("got %d sessions, want 0", x.Registry().Len())
			}
			if len(p.Lists()) != 0 {
				t.Errorf("got %d listings, want none", len(p.Lists()))
			}
		})
	}
}

func TestSend_Fallbacks(t *testing.T) {
	tests := []struct {
		name     string
		messages []protocol.Message
		want     string
		source   poll.Source
	}{
		{
			name:     "verbose extraction",
			messages: []protocol.Message{verbose(`{"data":{"wraped_text":"recovered"}}`)},
			want:     "recovered",
			source:   poll.SourceVerbose,
		},
		{
			name:   "greeting",
			want:   poll.DefaultGreeting,
			source: poll.SourceGreeting,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := mock.NewMockProvider(
				mock.WithChat("chat-1", convA),
				mock.WithMessages(tt.messages...),
			)
			x, obs := newExchange(t, p)

			result, err := x.Send(context.Background(), exchange.Request{SessionID: "s1", Message: "hi"})
			if err != nil {
				t.Fatalf("Send failed: %v", err)
			}
			if result.Text != tt.want {
				t.Errorf("got %q, want %q", result.Text, tt.want)
			}
			if result.Source != tt.source {
				t.Errorf("got source %q, want %q", result.Source, tt.source)
			}
			if rec, ok := x.Registry().Get("s1"); !ok || rec.ConversationID != convA {
				t.Errorf("fallback reply did not bind: %+v", rec)
			}
			if obs.count(poll.EventFallback) != 1 {
				t.Errorf("got %d fallback events, want 1", obs.count(poll.EventFallback))
			}
		})
	}
}

func TestSend_Cancelled(t *testing.T) {
	p := mock.NewMockProvider(
		mock.WithChat("chat-1", convA),
		mock.WithMessages(),
	)
	x, _ := newExchange(t, p)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := x.Send(ctx, exchange.Request{SessionID: "s1", Message: "hi"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
	if x.Registry().Len() != 0 {
		t.Errorf("got %d sessions, want 0", x.Registry().Len())
	}
}

func TestStream_ChunksThenComplete(t *testing.T) {
	p := mock.NewMockProvider(mock.WithStream(mock.AnswerStream("chat-1", convA, "Hel", "lo", "!")...))
	x, obs := newExchange(t, p)

	var c collector
	result, err := x.Stream(context.Background(), exchange.Request{SessionID: "s1", Message: "hi"}, c.emit)
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}

	want := []stream.EventType{stream.EventChunk, stream.EventChunk, stream.EventChunk, stream.EventComplete}
	got := c.types()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("got events %v, want %v", got, want)
	}

	for i, chunk := range []string{"Hel", "lo", "!"} {
		e := c.events[i]
		if e.Content != chunk || e.Index != i {
			t.Errorf("event %d: got %q index %d, want %q index %d", i, e.Content, e.Index, chunk, i)
		}
		if e.SessionID != "s1" || e.MessageID != result.MessageID {
			t.Errorf("event %d not tagged: %+v", i, e)
		}
	}

	complete := c.events[3]
	if complete.Text != "Hello!" || complete.Chunks != 3 || !complete.Success {
		t.Errorf("got complete %+v", complete.Event)
	}
	if complete.ConversationID != convA {
		t.Errorf("got conversation %q, want %q", complete.ConversationID, convA)
	}

	if result.Text != "Hello!" || result.Chunks != 3 || result.Mode != exchange.ModeStream {
		t.Errorf("got result %+v", result)
	}

	resolved, err := x.Registry().Resolve("s1", "")
	if err != nil || resolved != convA {
		t.Errorf("got %q, %v, want %q", resolved, err, convA)
	}
	if obs.count(exchange.EventChunk) != 3 {
		t.Errorf("got %d chunk observations, want 3", obs.count(exchange.EventChunk))
	}
}

func TestStream_ContinuesBoundConversation(t *testing.T) {
	p := mock.NewMockProvider(mock.WithStream(mock.AnswerStream("chat-2", convA, "again")...))
	x, _ := newExchange(t, p)
	mustBind(t, x, "s1", convA)

	var c collector
	if _, err := x.Stream(context.Background(), exchange.Request{SessionID: "s1", Message: "hi"}, c.emit); err != nil {
		t.Fatalf("Stream failed: %v", err)
	}

	if got := p.Streams()[0].ConversationID; got != convA {
		t.Errorf("got conversation %q, want %q", got, convA)
	}
}

func TestStream_FrameErrorsAreNonFatal(t *testing.T) {
	lines := []string{
		"event: conversation.chat.created",
		`data: {"id":"chat-1","conversation_id":"` + convA + `"}`,
		"event: conversation.message.delta",
		"data: {not json",
		"event: conversation.message.delta",
		`data: {"role":"assistant","type":"answer","content":"fine"}`,
		"event: done",
		`data: "[DONE]"`,
	}
	p := mock.NewMockProvider(mock.WithStream(lines...))
	x, obs := newExchange(t, p)

	var c collector
	result, err := x.Stream(context.Background(), exchange.Request{SessionID: "s1", Message: "hi"}, c.emit)
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}

	want := []stream.EventType{stream.EventError, stream.EventChunk, stream.EventComplete}
	if fmt.Sprint(c.types()) != fmt.Sprint(want) {
		t.Errorf("got events %v, want %v", c.types(), want)
	}
	if result.Text != "fine" {
		t.Errorf("got text %q, want fine", result.Text)
	}
	if obs.count(exchange.EventFrameError) != 1 {
		t.Errorf("got %d frame error observations, want 1", obs.count(exchange.EventFrameError))
	}
}

func TestStream_MissingConversation(t *testing.T) {
	lines := []string{
		"event: conversation.message.delta",
		`data: {"role":"assistant","type":"answer","content":"orphan"}`,
		"event: done",
		`data: "[DONE]"`,
	}
	p := mock.NewMockProvider(mock.WithStream(lines...))
	x, _ := newExchange(t, p)

	var c collector
	_, err := x.Stream(context.Background(), exchange.Request{SessionID: "s1", Message: "hi"}, c.emit)
	if !fault.IsIntegrity(err) {
		t.Errorf("got %v, want integrity fault", err)
	}

	want := []stream.EventType{stream.EventChunk, stream.EventError}
	if fmt.Sprint(c.types()) != fmt.Sprint(want) {
		t.Fatalf("got events %v, want %v", c.types(), want)
	}
	if !fault.IsIntegrity(c.events[1].Err) {
		t.Errorf("got terminal error %v, want integrity fault", c.events[1].Err)
	}
	if x.Registry().Len() != 0 {
		t.Errorf("got %d sessions, want 0", x.Registry().Len())
	}
}

func TestStream_ProviderFailure(t *testing.T) {
	upstream := fault.Upstream("provider.StreamChat", 401, "unauthorized", errors.New("unauthorized"))
	p := mock.NewMockProvider(mock.WithStreamError(upstream))
	x, _ := newExchange(t, p)
	mustBind(t, x, "s1", convA)

	var c collector
	_, err := x.Stream(context.Background(), exchange.Request{SessionID: "s1", Message: "hi"}, c.emit)
	if !fault.IsUpstream(err) {
		t.Errorf("got %v, want upstream fault", err)
	}

	if len(c.events) != 1 || c.events[0].Type != stream.EventError {
		t.Fatalf("got events %v, want a single error", c.types())
	}
	if c.events[0].ConversationID != convA {
		t.Errorf("got conversation %q on error event, want %q", c.events[0].ConversationID, convA)
	}
	if rec, _ := x.Registry().Get("s1"); rec.ConversationID != convA {
		t.Errorf("got binding %q, want %q preserved", rec.ConversationID, convA)
	}
}

func TestStream_ValidationEmitsNothing(t *testing.T) {
	p := mock.NewMockProvider(mock.WithStream(mock.AnswerStream("chat-1", convA, "x")...))
	x, _ := newExchange(t, p)

	var c collector
	_, err := x.Stream(context.Background(), exchange.Request{SessionID: "s1", Message: "hi", ConversationID: "tiny"}, c.emit)
	if !fault.IsValidation(err) {
		t.Errorf("got %v, want validation fault", err)
	}
	if len(c.events) != 0 {
		t.Errorf("got %d events, want 0", len(c.events))
	}
	if p.Calls() != 0 {
		t.Errorf("got %d provider calls, want 0", p.Calls())
	}
}

func TestStream_EmitErrorStops(t *testing.T) {
	p := mock.NewMockProvider(mock.WithStream(mock.AnswerStream("chat-1", convA, "a", "b", "c")...))
	x, _ := newExchange(t, p)

	errGone := errors.New("client gone")
	var delivered int
	emit := func(e exchange.Event) error {
		delivered++
		return errGone
	}

	_, err := x.Stream(context.Background(), exchange.Request{SessionID: "s1", Message: "hi"}, emit)
	if !errors.Is(err, errGone) {
		t.Errorf("got %v, want %v", err, errGone)
	}
	if delivered != 1 {
		t.Errorf("got %d deliveries, want 1", delivered)
	}
	if x.Registry().Len() != 0 {
		t.Errorf("got %d sessions, want 0", x.Registry().Len())
	}
}

// blockingProvider streams one chunk and then holds the body open until ctx
// ends.
type blockingProvider struct {
	mock.MockProvider
}

func (p *blockingProvider) StreamChat(ctx context.Context, req provider.ChatRequest) (io.ReadCloser, error) {
	pr, pw := io.Pipe()
	go func() {
		head := mock.AnswerStream("chat-1", convA, "partial")[:6]
		io.WriteString(pw, strings.Join(head, "\n")+"\n")
		<-ctx.Done()
		pw.CloseWithError(ctx.Err())
	}()
	return pr, nil
}

func TestStream_Timeout(t *testing.T) {
	cfg := exchange.DefaultConfig()
	cfg.StreamTimeout = 30 * time.Millisecond

	p := &blockingProvider{}
	obs := &captureObserver{}
	x, err := exchange.New(&cfg, exchange.WithProvider(p), exchange.WithObserver(obs))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	var c collector
	_, err = x.Stream(context.Background(), exchange.Request{SessionID: "s1", Message: "hi"}, c.emit)
	if !fault.IsTimeout(err) {
		t.Errorf("got %v, want timeout fault", err)
	}

	want := []stream.EventType{stream.EventChunk, stream.EventError}
	if fmt.Sprint(c.types()) != fmt.Sprint(want) {
		t.Fatalf("got events %v, want %v", c.types(), want)
	}
	if !fault.IsTimeout(c.events[1].Err) {
		t.Errorf("got terminal error %v, want timeout", c.events[1].Err)
	}
	if c.events[1].ChatID != "chat-1" {
		t.Errorf("got chat %q on error event, want chat-1", c.events[1].ChatID)
	}
	if x.Registry().Len() != 0 {
		t.Errorf("got %d sessions, want 0", x.Registry().Len())
	}
}

func TestStream_CallerCancelled(t *testing.T) {
	p := &blockingProvider{}
	x, _ := newExchange(t, p)

	ctx, cancel := context.WithCancel(context.Background())
	var c collector
	emit := func(e exchange.Event) error {
		c.emit(e)
		if e.Type == stream.EventChunk {
			cancel()
		}
		return nil
	}

	_, err := x.Stream(ctx, exchange.Request{SessionID: "s1", Message: "hi"}, emit)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}

	want := []stream.EventType{stream.EventChunk}
	if fmt.Sprint(c.types()) != fmt.Sprint(want) {
		t.Errorf("got events %v, want %v", c.types(), want)
	}
	if x.Registry().Len() != 0 {
		t.Errorf("got %d sessions, want 0", x.Registry().Len())
	}
}

func TestExchange_ConversationMovesBetweenSessions(t *testing.T) {
	p := mock.NewMockProvider(
		mock.WithChat("chat-1", convA),
		mock.WithMessages(answer("ok")),
	)
	x, obs := newExchange(t, p)
	ctx := context.Background()

	if _, err := x.Send(ctx, exchange.Request{SessionID: "s1", Message: "hi"}); err != nil {
		t.Fatalf("Send s1 failed: %v", err)
	}
	if _, err := x.Send(ctx, exchange.Request{SessionID: "s2", Message: "hi", ConversationID: convA}); err != nil {
		t.Fatalf("Send s2 failed: %v", err)
	}

	if _, ok := x.Registry().Get("s1"); ok {
		t.Error("evicted session still present")
	}
	if sid, _ := x.Registry().ReverseLookup(convA); sid != "s2" {
		t.Errorf("got owner %q, want s2", sid)
	}
	if obs.count(exchange.EventSessionEvict) != 1 {
		t.Errorf("got %d evict events, want 1", obs.count(exchange.EventSessionEvict))
	}
}

func TestExchange_ConcurrentSessions(t *testing.T) {
	p := mock.NewMockProvider(mock.WithStream(mock.AnswerStream("chat-1", convA, "x")...))
	x, _ := newExchange(t, p)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Go(func() {
			var c collector
			x.Stream(context.Background(), exchange.Request{SessionID: fmt.Sprintf("s%d", i), Message: "hi"}, c.emit)
		})
	}
	wg.Wait()

	// every exchange reports the same conversation, so exactly one session
	// ends up owning it
	if got := x.Registry().Len(); got != 1 {
		t.Errorf("got %d sessions, want 1", got)
	}
	if got := x.Registry().Conversations(); got != 1 {
		t.Errorf("got %d conversations, want 1", got)
	}
}

func TestExchange_SessionFacade(t *testing.T) {
	x, obs := newExchange(t, mock.NewMockProvider())
	ctx := context.Background()

	if _, err := x.SessionInfo("s1"); !fault.IsNotFound(err) {
		t.Errorf("got %v, want not found", err)
	}
	if _, err := x.FindSessionByConversation(convA); !fault.IsNotFound(err) {
		t.Errorf("got %v, want not found", err)
	}
	if _, err := x.BindSession(ctx, "s1", "short"); !fault.IsValidation(err) {
		t.Errorf("got %v, want validation fault", err)
	}

	result, err := x.BindSession(ctx, "s1", convA)
	if err != nil {
		t.Fatalf("BindSession failed: %v", err)
	}
	if !result.Created || result.Record.ConversationID != convA {
		t.Errorf("got %+v", result)
	}

	rec, err := x.SessionInfo("s1")
	if err != nil || rec.ConversationID != convA {
		t.Errorf("got %+v, %v", rec, err)
	}
	found, err := x.FindSessionByConversation(convA)
	if err != nil || found.SessionID != "s1" {
		t.Errorf("got %+v, %v", found, err)
	}

	mustBind(t, x, "s2", convB)
	page := x.ListSessions(0, 10)
	if page.Total != 2 || len(page.Records) != 2 || page.Records[0].SessionID != "s1" {
		t.Errorf("got page %+v", page)
	}
	if stats := x.Stats(); stats.Sessions != 2 || stats.Conversations != 2 {
		t.Errorf("got stats %+v", stats)
	}

	if _, ok := x.ClearSession(ctx, "s1"); !ok {
		t.Error("ClearSession reported missing session")
	}
	if _, ok := x.ClearSession(ctx, "s1"); ok {
		t.Error("second ClearSession reported a session")
	}
	if _, err := x.FindSessionByConversation(convA); !fault.IsNotFound(err) {
		t.Errorf("got %v, want not found after clear", err)
	}
	if obs.count(exchange.EventSessionClear) != 1 || obs.count(exchange.EventSessionMissing) != 1 {
		t.Errorf("got %d clear, %d missing events",
			obs.count(exchange.EventSessionClear), obs.count(exchange.EventSessionMissing))
	}
}

func TestExchange_DefaultUserID(t *testing.T) {
	cfg := exchange.DefaultConfig()
	cfg.DefaultUserID = "guest"

	p := mock.NewMockProvider(mock.WithStream(mock.AnswerStream("chat-1", convA, "x")...))
	x, err := exchange.New(&cfg, exchange.WithProvider(p), exchange.WithObserver(observability.NoOpObserver{}))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	var c collector
	result, err := x.Stream(context.Background(), exchange.Request{Message: "hi"}, c.emit)
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	if result.UserID != "guest" || p.Streams()[0].UserID != "guest" {
		t.Errorf("got user %q, want guest", result.UserID)
	}
}

func TestExchange_WithRegistry(t *testing.T) {
	cfg := session.DefaultConfig()
	registry := session.New(&cfg)
	x, _ := newExchange(t, mock.NewMockProvider(), exchange.WithRegistry(registry))

	if x.Registry() != registry {
		t.Error("registry option not applied")
	}
}

func mustBind(t *testing.T, x *exchange.Exchange, sessionID, conversationID string) {
	t.Helper()
	if _, err := x.BindSession(context.Background(), sessionID, conversationID); err != nil {
		t.Fatalf("BindSession(%q, %q) failed: %v", sessionID, conversationID, err)
	}
}
