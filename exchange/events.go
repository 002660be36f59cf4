package exchange

import (
	"context"
	"time"

	"github.com/tailored-agentic-units/relay/core/fault"
	"github.com/tailored-agentic-units/relay/observability"
	"github.com/tailored-agentic-units/relay/session"
	"github.com/tailored-agentic-units/relay/stream"
)

func (x *Exchange) emit(ctx context.Context, typ observability.EventType, level observability.Level, source string, data map[string]any) {
	x.observer.OnEvent(ctx, observability.Event{
		Type:      typ,
		Level:     level,
		Timestamp: time.Now(),
		Source:    source,
		Data:      data,
	})
}

func (x *Exchange) emitStart(ctx context.Context, mode Mode, p prepared) {
	x.emit(ctx, EventStart, observability.LevelInfo, "exchange."+string(mode), map[string]any{
		"mode":            string(mode),
		"session_id":      p.sessionID,
		"message_id":      p.messageID,
		"conversation_id": p.conversationID,
		"message_length":  len(p.message),
	})
}

func (x *Exchange) emitComplete(ctx context.Context, r *Result, start time.Time) {
	data := map[string]any{
		"mode":            string(r.Mode),
		"session_id":      r.SessionID,
		"conversation_id": r.ConversationID,
		"chat_id":         r.ChatID,
		"response_length": len(r.Text),
		"duration":        r.Timestamp.Sub(start).String(),
		"duration_ms":     r.Timestamp.Sub(start).Milliseconds(),
	}
	if r.Mode == ModeStream {
		data["chunks"] = r.Chunks
	} else {
		data["source"] = string(r.Source)
	}
	x.emit(ctx, EventComplete, observability.LevelInfo, "exchange."+string(r.Mode), data)
}

func (x *Exchange) emitError(ctx context.Context, mode Mode, sessionID string, err error) {
	level := observability.LevelError
	if fault.IsValidation(err) || ctx.Err() != nil {
		level = observability.LevelWarning
	}
	x.emit(ctx, EventError, level, "exchange."+string(mode), map[string]any{
		"mode":       string(mode),
		"session_id": sessionID,
		"kind":       fault.KindOf(err).String(),
		"error":      err.Error(),
	})
}

func (x *Exchange) observeStreamEvent(ctx context.Context, p prepared, e stream.Event) {
	switch e.Type {
	case stream.EventChunk:
		x.emit(ctx, EventChunk, observability.LevelVerbose, "exchange.stream", map[string]any{
			"session_id": p.sessionID,
			"index":      e.Index,
			"length":     len(e.Content),
		})
	case stream.EventError:
		x.emit(ctx, EventFrameError, observability.LevelWarning, "exchange.stream", map[string]any{
			"session_id":      p.sessionID,
			"chat_id":         e.ChatID,
			"conversation_id": e.ConversationID,
			"error":           e.Err.Error(),
		})
	}
}

func (x *Exchange) observeBind(ctx context.Context, result session.BindResult) {
	if result.Evicted != nil {
		x.emit(ctx, EventSessionEvict, observability.LevelWarning, "exchange.finalize", map[string]any{
			"session_id":      result.Evicted.SessionID,
			"conversation_id": result.Evicted.ConversationID,
			"claimed_by":      result.Record.SessionID,
		})
	}
	x.emit(ctx, EventSessionBind, observability.LevelInfo, "exchange.finalize", map[string]any{
		"session_id":      result.Record.SessionID,
		"user_id":         result.Record.UserID,
		"conversation_id": result.Record.ConversationID,
		"created":         result.Created,
		"detached":        result.Detached,
	})
}
