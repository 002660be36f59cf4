package stream_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"github.com/tailored-agentic-units/relay/core/fault"
	"github.com/tailored-agentic-units/relay/core/protocol"
	"github.com/tailored-agentic-units/relay/stream"
)

func answerDelta(content string) string {
	return `data: {"role":"assistant","content_type":"text","type":"answer","content":"` + content + `"}`
}

func consumeAll(t *testing.T, body string, conversationID string) ([]stream.Event, stream.Event) {
	t.Helper()

	var events []stream.Event
	dec := stream.NewDecoder(strings.NewReader(body))
	agg := stream.NewAggregator(conversationID)

	complete, err := stream.Consume(context.Background(), dec, agg, func(e stream.Event) error {
		events = append(events, e)
		return nil
	})
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	return events, complete
}

func TestConsume_SingleChunk(t *testing.T) {
	body := lines(
		"event: conversation.message.delta",
		answerDelta("Hi"),
		"",
		"event: done",
		`data: "[DONE]"`,
	)

	events, complete := consumeAll(t, body, "")

	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Type != stream.EventChunk || events[0].Content != "Hi" {
		t.Errorf("got event %+v, want chunk %q", events[0], "Hi")
	}
	if complete.Type != stream.EventComplete {
		t.Errorf("got terminal type %q, want complete", complete.Type)
	}
	if complete.Text != "Hi" {
		t.Errorf("got full text %q, want %q", complete.Text, "Hi")
	}
	if complete.Chunks != 1 || !complete.Success {
		t.Errorf("got chunks=%d success=%v", complete.Chunks, complete.Success)
	}
}

func TestConsume_FullConversation(t *testing.T) {
	body := lines(
		"event: conversation.chat.created",
		`data: {"id":"chat-1","conversation_id":"conv-1234567890"}`,
		"",
		"event: conversation.chat.in_progress",
		`data: {"id":"chat-1","status":"in_progress"}`,
		"",
		"event: conversation.message.delta",
		`data: {"role":"assistant","content_type":"text","type":"function_call","content":"{\"name\":\"search\"}"}`,
		"",
		"event: conversation.message.delta",
		answerDelta("Hello"),
		"",
		"event: conversation.message.delta",
		answerDelta(" there "),
		"",
		"event: conversation.message.completed",
		`data: {"role":"assistant","type":"answer","content":"Hello there"}`,
		"",
		"event: conversation.message.delta",
		`data: {"role":"assistant","content_type":"text","type":"follow_up","content":"Ask more?"}`,
		"",
		"event: conversation.chat.completed",
		`data: {"id":"chat-1","status":"completed"}`,
		"",
		"event: done",
		`data: "[DONE]"`,
	)

	events, complete := consumeAll(t, body, "")

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Content != "Hello" || events[1].Content != "there" {
		t.Errorf("got contents %q, %q", events[0].Content, events[1].Content)
	}
	if events[0].Index != 1 || events[1].Index != 2 {
		t.Errorf("got indexes %d, %d", events[0].Index, events[1].Index)
	}
	for _, e := range events {
		if e.ChatID != "chat-1" || e.ConversationID != "conv-1234567890" {
			t.Errorf("event ids = (%q, %q)", e.ChatID, e.ConversationID)
		}
	}
	if complete.Text != "Hellothere" {
		t.Errorf("got full text %q, want %q", complete.Text, "Hellothere")
	}
}

func TestConsume_MalformedFrameIsNonFatal(t *testing.T) {
	body := lines(
		"event: conversation.chat.created",
		`data: {"id":"chat-9","conversation_id":"conv-9999999999"}`,
		"event: conversation.message.delta",
		`data: {not json`,
		answerDelta("after"),
		"event: done",
		`data: "[DONE]"`,
	)

	events, complete := consumeAll(t, body, "")

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Type != stream.EventError {
		t.Fatalf("got first event %q, want error", events[0].Type)
	}
	if !fault.IsStreamFrame(events[0].Err) {
		t.Errorf("got kind %v, want stream_frame", fault.KindOf(events[0].Err))
	}
	if events[0].ChatID != "chat-9" || events[0].ConversationID != "conv-9999999999" {
		t.Errorf("error event should carry partial ids, got (%q, %q)", events[0].ChatID, events[0].ConversationID)
	}
	if events[1].Type != stream.EventChunk || events[1].Content != "after" {
		t.Errorf("got second event %+v", events[1])
	}
	if complete.Text != "after" {
		t.Errorf("got full text %q", complete.Text)
	}
}

func TestConsume_ShapeMismatchIsNonFatal(t *testing.T) {
	body := lines(
		"event: conversation.message.delta",
		`data: {"role":"assistant","content_type":"text","type":"answer","content":12}`,
		"event: conversation.chat.created",
		`data: ["array"]`,
	)

	events, complete := consumeAll(t, body, "")

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	for _, e := range events {
		if e.Type != stream.EventError {
			t.Errorf("got event %q, want error", e.Type)
		}
	}
	if complete.Success {
		t.Error("complete should not succeed without text")
	}
}

func TestConsume_ProviderFailureFrame(t *testing.T) {
	body := lines(
		"event: conversation.chat.failed",
		`data: {"id":"chat-1","last_error":{"code":4011,"msg":"quota exceeded"}}`,
		"event: done",
		`data: "[DONE]"`,
	)

	events, _ := consumeAll(t, body, "")

	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Type != stream.EventError {
		t.Fatalf("got %q, want error", events[0].Type)
	}
	if !strings.Contains(events[0].Err.Error(), "quota exceeded") {
		t.Errorf("error %q does not carry the provider message", events[0].Err)
	}
}

func TestConsume_SeededConversationID(t *testing.T) {
	body := lines("event: conversation.message.delta", answerDelta("ok"))

	_, complete := consumeAll(t, body, "conv-existing-01")

	if complete.ConversationID != "conv-existing-01" {
		t.Errorf("got conversation %q, want seeded id", complete.ConversationID)
	}
}

func TestConsume_EmptyStream(t *testing.T) {
	events, complete := consumeAll(t, "", "")

	if len(events) != 0 {
		t.Errorf("got %d events, want 0", len(events))
	}
	if complete.Success || complete.Text != "" {
		t.Errorf("got complete %+v, want unsuccessful empty", complete)
	}
}

func TestConsume_IncrementalDelivery(t *testing.T) {
	pr, pw := io.Pipe()
	received := make(chan stream.Event, 4)
	done := make(chan error, 1)

	go func() {
		dec := stream.NewDecoder(pr)
		agg := stream.NewAggregator("")
		_, err := stream.Consume(context.Background(), dec, agg, func(e stream.Event) error {
			received <- e
			return nil
		})
		done <- err
	}()

	if _, err := io.WriteString(pw, lines("event: conversation.message.delta", answerDelta("first"))); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	select {
	case e := <-received:
		if e.Content != "first" {
			t.Errorf("got %q, want %q", e.Content, "first")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("chunk was not delivered before the stream ended")
	}

	io.WriteString(pw, lines(answerDelta("second"), "event: done", `data: "[DONE]"`))
	pw.Close()

	if err := <-done; err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if e := <-received; e.Content != "second" {
		t.Errorf("got %q, want %q", e.Content, "second")
	}
}

func TestConsume_EmitErrorStops(t *testing.T) {
	body := lines(
		"event: conversation.message.delta",
		answerDelta("one"),
		answerDelta("two"),
	)
	stop := errors.New("client gone")

	calls := 0
	dec := stream.NewDecoder(strings.NewReader(body))
	_, err := stream.Consume(context.Background(), dec, stream.NewAggregator(""), func(e stream.Event) error {
		calls++
		return stop
	})

	if !errors.Is(err, stop) {
		t.Errorf("got error %v, want %v", err, stop)
	}
	if calls != 1 {
		t.Errorf("emit called %d times, want 1", calls)
	}
}

func TestConsume_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	body := lines("event: conversation.message.delta", answerDelta("never"))
	_, err := stream.Consume(ctx, stream.NewDecoder(strings.NewReader(body)), stream.NewAggregator(""), func(stream.Event) error {
		t.Error("emit should not be called after cancellation")
		return nil
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("got error %v, want context.Canceled", err)
	}
}

func TestConsume_ReadError(t *testing.T) {
	r := io.MultiReader(
		strings.NewReader(lines("event: conversation.message.delta", answerDelta("partial"))),
		iotest.ErrReader(errors.New("connection reset")),
	)

	var chunks []string
	_, err := stream.Consume(context.Background(), stream.NewDecoder(r), stream.NewAggregator(""), func(e stream.Event) error {
		chunks = append(chunks, e.Content)
		return nil
	})

	if !fault.IsUpstream(err) {
		t.Errorf("got kind %v, want upstream", fault.KindOf(err))
	}
	if len(chunks) != 1 || chunks[0] != "partial" {
		t.Errorf("got chunks %v, want [partial]", chunks)
	}
}

func TestAggregator_IgnoresAfterComplete(t *testing.T) {
	agg := stream.NewAggregator("")
	agg.Complete()

	_, ok := agg.Apply(stream.Frame{
		Kind:    protocol.EventMessageDelta,
		Payload: `{"role":"assistant","content_type":"text","type":"answer","content":"late"}`,
	})
	if ok {
		t.Error("Apply after Complete should produce no event")
	}
	if !agg.State().Terminal {
		t.Error("state should be terminal")
	}
}
