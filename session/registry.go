package session

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/tailored-agentic-units/relay/core/fault"
)

var (
	ErrEmptySessionID         = errors.New("session id is required")
	ErrEmptyConversationID    = errors.New("conversation id is required")
	ErrConversationIDTooShort = errors.New("conversation id is too short")
)

type entry struct {
	record Record
	seq    uint64
}

// Registry is the in-memory store of session records and the reverse
// conversation index. All methods are safe for concurrent use; mutations
// are serialized by a single lock.
type Registry struct {
	mu       sync.RWMutex
	cfg      Config
	sessions map[string]*entry
	reverse  map[string]string
	seq      uint64
	now      func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the time source used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// NewRegistry creates an empty Registry with cfg used as given.
func NewRegistry(cfg Config, opts ...Option) *Registry {
	r := &Registry{
		cfg:      cfg,
		sessions: make(map[string]*entry),
		reverse:  make(map[string]string),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Config returns the registry configuration.
func (r *Registry) Config() Config {
	return r.cfg
}

// ValidateConversationID checks the format of a caller-supplied
// conversation id. Failures are validation faults.
func (r *Registry) ValidateConversationID(conversationID string) error {
	id := strings.TrimSpace(conversationID)
	if id == "" {
		return fault.Validation("session.ValidateConversationID", ErrEmptyConversationID)
	}
	if len(id) < r.cfg.MinConversationIDLength {
		return fault.Validation("session.ValidateConversationID",
			fmt.Errorf("%w: %q has %d characters, minimum is %d",
				ErrConversationIDTooShort, id, len(id), r.cfg.MinConversationIDLength))
	}
	return nil
}

// Resolve returns the conversation id an exchange for sessionID should use.
// A non-empty explicit id wins after validation; otherwise the session's
// current binding is returned. An empty result means a new conversation.
func (r *Registry) Resolve(sessionID, explicit string) (string, error) {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		if err := r.ValidateConversationID(explicit); err != nil {
			return "", err
		}
		return explicit, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if e, ok := r.sessions[sessionID]; ok {
		return e.record.ConversationID, nil
	}
	return "", nil
}

// Bind upserts the record for sessionID and points conversationID at it.
// Any other session that owned conversationID is removed, and the session's
// previous conversation id, if different, is detached from the reverse
// index. An empty userID keeps the record's existing user id.
//
// Input is validated before any state changes.
func (r *Registry) Bind(sessionID, userID, conversationID string) (BindResult, error) {
	if sessionID == "" {
		return BindResult{}, fault.Validation("session.Bind", ErrEmptySessionID)
	}
	conversationID = strings.TrimSpace(conversationID)
	if err := r.ValidateConversationID(conversationID); err != nil {
		return BindResult{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var result BindResult

	if owner, ok := r.reverse[conversationID]; ok && owner != sessionID {
		if prev, ok := r.sessions[owner]; ok {
			evicted := prev.record
			result.Evicted = &evicted
			delete(r.sessions, owner)
		}
		delete(r.reverse, conversationID)
	}

	e, ok := r.sessions[sessionID]
	if ok {
		if old := e.record.ConversationID; old != "" && old != conversationID {
			if r.reverse[old] == sessionID {
				delete(r.reverse, old)
			}
			result.Detached = old
		}
		e.record.ConversationID = conversationID
		if userID != "" {
			e.record.UserID = userID
		}
		e.record.LastActivity = now
	} else {
		r.seq++
		e = &entry{
			record: Record{
				SessionID:      sessionID,
				UserID:         userID,
				ConversationID: conversationID,
				CreatedAt:      now,
				LastActivity:   now,
			},
			seq: r.seq,
		}
		r.sessions[sessionID] = e
		result.Created = true
	}

	r.reverse[conversationID] = sessionID
	result.Record = e.record
	return result, nil
}

// Clear removes the record for sessionID and its reverse entry. It reports
// false when the session is unknown.
func (r *Registry) Clear(sessionID string) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[sessionID]
	if !ok {
		return Record{}, false
	}
	r.remove(sessionID, e)
	return e.record, true
}

// Get returns the record for sessionID.
func (r *Registry) Get(sessionID string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.sessions[sessionID]
	if !ok {
		return Record{}, false
	}
	return e.record, true
}

// ReverseLookup returns the session that owns conversationID.
func (r *Registry) ReverseLookup(conversationID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessionID, ok := r.reverse[conversationID]
	return sessionID, ok
}

// List returns records in insertion order starting at offset. A limit of
// zero or less returns every remaining record.
func (r *Registry) List(offset, limit int) Page {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.sessions))
	for _, e := range r.sessions {
		entries = append(entries, e)
	}
	records := make([]Record, 0, len(entries))
	slices.SortFunc(entries, func(a, b *entry) int {
		return cmp.Compare(a.seq, b.seq)
	})
	for _, e := range entries {
		records = append(records, e.record)
	}
	r.mu.RUnlock()

	total := len(records)
	offset = max(offset, 0)
	if offset > total {
		offset = total
	}
	end := total
	if limit > 0 {
		end = min(offset+limit, total)
	}

	return Page{
		Total:   total,
		Offset:  offset,
		Limit:   limit,
		Records: records[offset:end],
	}
}

// Len returns the number of session records.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Conversations returns the number of reverse index entries.
func (r *Registry) Conversations() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.reverse)
}

// Stats returns a snapshot of registry occupancy.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{Sessions: len(r.sessions), Conversations: len(r.reverse)}
}

// Prune removes records whose last activity is older than the configured
// idle timeout relative to now and returns them. It does nothing when the
// idle timeout is zero.
func (r *Registry) Prune(now time.Time) []Record {
	if r.cfg.IdleTimeout <= 0 {
		return nil
	}
	cutoff := now.Add(-r.cfg.IdleTimeout)

	r.mu.Lock()
	defer r.mu.Unlock()

	var pruned []Record
	for id, e := range r.sessions {
		if e.record.LastActivity.Before(cutoff) {
			r.remove(id, e)
			pruned = append(pruned, e.record)
		}
	}
	return pruned
}

// remove deletes a session and its reverse entry. Callers hold the write
// lock.
func (r *Registry) remove(sessionID string, e *entry) {
	delete(r.sessions, sessionID)
	if conv := e.record.ConversationID; conv != "" && r.reverse[conv] == sessionID {
		delete(r.reverse, conv)
	}
}
