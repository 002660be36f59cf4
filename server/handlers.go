package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tailored-agentic-units/relay/core/fault"
)

func notFound(path string) error {
	return fault.NotFound("server.route", fmt.Errorf("path %s does not exist", path))
}

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":  "relay chat service is running",
		"version":  Version,
		"status":   "healthy",
		"features": []string{"sync chat", "stream chat", "conversation continuation", "session binding"},
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	stats := s.exchange.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status":               "healthy",
		"timestamp":            timestamp(time.Now()),
		"uptime":               time.Since(s.started).Round(time.Second).String(),
		"active_sessions":      stats.Sessions,
		"active_conversations": stats.Conversations,
	})
}

func (s *Server) handleChat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, bindError("server.handleChat", err))
		return
	}

	result, err := s.exchange.Send(c.Request.Context(), req.exchangeRequest())
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, ChatResponse{
		Response:       result.Text,
		SessionID:      result.SessionID,
		MessageID:      result.MessageID,
		ConversationID: result.ConversationID,
		Source:         string(result.Source),
		Timestamp:      timestamp(result.Timestamp),
	})
}

func (s *Server) handleBind(c *gin.Context) {
	var req BindRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, bindError("server.handleBind", err))
		return
	}

	sessionID := c.Param("session_id")
	result, err := s.exchange.BindSession(c.Request.Context(), sessionID, req.ConversationID)
	if err != nil {
		s.writeError(c, err)
		return
	}

	body := gin.H{
		"message":         "conversation bound",
		"session_id":      sessionID,
		"conversation_id": result.Record.ConversationID,
		"created":         result.Created,
		"timestamp":       timestamp(time.Now()),
	}
	if result.Evicted != nil {
		body["evicted_session_id"] = result.Evicted.SessionID
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleClear(c *gin.Context) {
	sessionID := c.Param("session_id")
	_, existed := s.exchange.ClearSession(c.Request.Context(), sessionID)

	c.JSON(http.StatusOK, gin.H{
		"message":    "session cleared",
		"session_id": sessionID,
		"existed":    existed,
		"timestamp":  timestamp(time.Now()),
	})
}

func (s *Server) handleInfo(c *gin.Context) {
	rec, err := s.exchange.SessionInfo(c.Param("session_id"))
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": rec.SessionID,
		"info": gin.H{
			"user_id":         rec.UserID,
			"conversation_id": rec.ConversationID,
			"created_at":      timestamp(rec.CreatedAt),
			"last_activity":   timestamp(rec.LastActivity),
			"status":          "active",
		},
		"timestamp": timestamp(time.Now()),
	})
}

func (s *Server) handleConversation(c *gin.Context) {
	conversationID := c.Param("conversation_id")
	rec, err := s.exchange.FindSessionByConversation(conversationID)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"conversation_id": conversationID,
		"session_id":      rec.SessionID,
		"session_info": gin.H{
			"user_id":       rec.UserID,
			"last_activity": timestamp(rec.LastActivity),
		},
		"timestamp": timestamp(time.Now()),
	})
}

func (s *Server) handleList(c *gin.Context) {
	var q ListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		s.writeError(c, bindError("server.handleList", err))
		return
	}

	page := s.exchange.ListSessions(q.Offset, q.Limit)
	views := make([]SessionView, len(page.Records))
	for i, rec := range page.Records {
		views[i] = newSessionView(rec)
	}

	c.JSON(http.StatusOK, gin.H{
		"total":     page.Total,
		"limit":     q.Limit,
		"offset":    q.Offset,
		"sessions":  views,
		"timestamp": timestamp(time.Now()),
	})
}
