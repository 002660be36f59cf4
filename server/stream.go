package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tailored-agentic-units/relay/core/fault"
	"github.com/tailored-agentic-units/relay/exchange"
	"github.com/tailored-agentic-units/relay/stream"
)

// sseWriter writes exchange events as "data:" lines. Headers are sent with
// the first event so failures before any output can still be reported as a
// JSON error.
type sseWriter struct {
	c       *gin.Context
	started bool
}

func (w *sseWriter) start() {
	h := w.c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.c.Status(http.StatusOK)
	w.started = true
}

func (w *sseWriter) write(msg StreamMessage) error {
	if !w.started {
		w.start()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode stream event: %w", err)
	}
	if _, err := fmt.Fprintf(w.c.Writer, "data: %s\n\n", data); err != nil {
		return err
	}
	w.c.Writer.Flush()
	return nil
}

func (w *sseWriter) emit(e exchange.Event) error {
	return w.write(streamMessage(e))
}

// streamMessage renders an exchange event in the wire shape of the stream
// route.
func streamMessage(e exchange.Event) StreamMessage {
	data := map[string]any{
		"session_id":      e.SessionID,
		"message_id":      e.MessageID,
		"conversation_id": e.ConversationID,
		"timestamp":       timestamp(e.Timestamp),
	}

	switch e.Type {
	case stream.EventChunk:
		data["content"] = e.Content
		data["chunk_index"] = e.Index
	case stream.EventComplete:
		data["full_content"] = e.Text
		data["total_chunks"] = e.Chunks
		data["success"] = e.Success
		data["chat_id"] = e.ChatID
	case stream.EventError:
		message := "unknown error"
		if e.Err != nil {
			message = e.Err.Error()
		}
		data["message"] = message
		data["kind"] = fault.KindOf(e.Err).String()
		data["chat_id"] = e.ChatID
	}

	return StreamMessage{Type: string(e.Type), Data: data}
}

func (s *Server) handleChatStream(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, bindError("server.handleChatStream", err))
		return
	}

	w := &sseWriter{c: c}
	_, err := s.exchange.Stream(c.Request.Context(), req.exchangeRequest(), w.emit)
	if err != nil && !w.started {
		s.writeError(c, err)
	}
}
