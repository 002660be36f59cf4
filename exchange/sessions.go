package exchange

import (
	"context"
	"fmt"

	"github.com/tailored-agentic-units/relay/core/fault"
	"github.com/tailored-agentic-units/relay/observability"
	"github.com/tailored-agentic-units/relay/session"
)

// BindSession binds conversationID to sessionID outside an exchange. The
// session's user id is kept when it exists, otherwise one is assigned.
func (x *Exchange) BindSession(ctx context.Context, sessionID, conversationID string) (session.BindResult, error) {
	result, err := x.registry.Bind(sessionID, x.userFor(sessionID), conversationID)
	if err != nil {
		return session.BindResult{}, err
	}
	x.observeBind(ctx, result)
	return result, nil
}

// ClearSession removes a session and its binding. Clearing an unknown
// session is not an error; it reports false.
func (x *Exchange) ClearSession(ctx context.Context, sessionID string) (session.Record, bool) {
	rec, ok := x.registry.Clear(sessionID)
	if !ok {
		x.emit(ctx, EventSessionMissing, observability.LevelWarning, "exchange.ClearSession", map[string]any{
			"session_id": sessionID,
		})
		return rec, false
	}

	x.emit(ctx, EventSessionClear, observability.LevelInfo, "exchange.ClearSession", map[string]any{
		"session_id":      sessionID,
		"conversation_id": rec.ConversationID,
	})
	return rec, true
}

// SessionInfo returns the record of sessionID or a not-found fault.
func (x *Exchange) SessionInfo(sessionID string) (session.Record, error) {
	rec, ok := x.registry.Get(sessionID)
	if !ok {
		return session.Record{}, fault.NotFound("exchange.SessionInfo",
			fmt.Errorf("session %q does not exist", sessionID))
	}
	return rec, nil
}

// FindSessionByConversation returns the record of the session bound to
// conversationID or a not-found fault.
func (x *Exchange) FindSessionByConversation(conversationID string) (session.Record, error) {
	sessionID, ok := x.registry.ReverseLookup(conversationID)
	if ok {
		if rec, ok := x.registry.Get(sessionID); ok && rec.ConversationID == conversationID {
			return rec, nil
		}
	}
	return session.Record{}, fault.NotFound("exchange.FindSessionByConversation",
		fmt.Errorf("no session is bound to conversation %q", conversationID))
}

// ListSessions returns one page of sessions in creation order.
func (x *Exchange) ListSessions(offset, limit int) session.Page {
	return x.registry.List(offset, limit)
}

// Stats returns registry occupancy.
func (x *Exchange) Stats() session.Stats {
	return x.registry.Stats()
}
