// Package session keeps the binding between caller-chosen session ids and
// provider conversation ids.
//
// A Registry holds one Record per session and a reverse index from
// conversation id back to the owning session. The two are updated together
// under one lock so that no conversation id is ever claimed by two sessions.
package session

import "time"

// Record identifies one caller-visible conversation. Records are returned by
// value; mutating a returned Record does not affect the registry.
type Record struct {
	SessionID      string    `json:"session_id"`
	UserID         string    `json:"user_id"`
	ConversationID string    `json:"conversation_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivity   time.Time `json:"last_activity"`
}

// Bound reports whether the record carries a conversation id.
func (r Record) Bound() bool {
	return r.ConversationID != ""
}

// BindResult describes the effect of a Bind call.
type BindResult struct {
	Record Record
	// Created is true when the session had no record before the call.
	Created bool
	// Evicted holds the record of another session that owned the
	// conversation id and was removed to make room.
	Evicted *Record
	// Detached is the session's previous conversation id when the bind
	// moved it to a different one.
	Detached string
}

// Page is one slice of the insertion-ordered record list.
type Page struct {
	Total   int      `json:"total"`
	Offset  int      `json:"offset"`
	Limit   int      `json:"limit"`
	Records []Record `json:"records"`
}

// Stats summarizes registry occupancy.
type Stats struct {
	Sessions      int `json:"sessions"`
	Conversations int `json:"conversations"`
}
