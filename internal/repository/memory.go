package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"dora/internal/model"
)

// MemoryRegistrationRepository keeps registrations in process memory. It is
// used when no database is configured and in tests.
type MemoryRegistrationRepository struct {
	mu      sync.RWMutex
	records []model.EventRegistrationRecord
}

// NewMemoryRegistrationRepository creates an empty in-memory store
func NewMemoryRegistrationRepository() *MemoryRegistrationRepository {
	return &MemoryRegistrationRepository{}
}

func activeFor(rec model.EventRegistrationRecord, eventTitle, rollNumber string) bool {
	return rec.Status != model.StatusCancelled &&
		rec.EventTitle == eventTitle &&
		strings.EqualFold(rec.RollNumber, rollNumber)
}

// FindActive returns the non-cancelled registration for the pair, or nil
func (r *MemoryRegistrationRepository) FindActive(_ context.Context, eventTitle, rollNumber string) (*model.EventRegistrationRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rec := range r.records {
		if activeFor(rec, eventTitle, rollNumber) {
			out := rec
			return &out, nil
		}
	}
	return nil, nil
}

// Save stores rec, enforcing one active registration per event and roll number
func (r *MemoryRegistrationRepository) Save(_ context.Context, rec *model.EventRegistrationRecord) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec.Status != model.StatusCancelled {
		for _, existing := range r.records {
			if activeFor(existing, rec.EventTitle, rec.RollNumber) {
				return "", &model.DuplicateRegistrationError{Existing: existing}
			}
		}
	}
	r.records = append(r.records, *rec)
	return rec.ID, nil
}

// List returns registrations matching filter, newest first
func (r *MemoryRegistrationRepository) List(_ context.Context, filter model.RegistrationFilter) ([]model.EventRegistrationRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []model.EventRegistrationRecord{}
	for _, rec := range r.records {
		if filter.SessionID != "" && rec.ChatSessionID != filter.SessionID {
			continue
		}
		if filter.RollNumber != "" && !strings.EqualFold(rec.RollNumber, filter.RollNumber) {
			continue
		}
		if filter.EventTitle != "" && !strings.Contains(strings.ToLower(rec.EventTitle), strings.ToLower(filter.EventTitle)) {
			continue
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RegisteredAt.After(out[j].RegisteredAt) })
	return out, nil
}

// MemorySessionStore keeps chat sessions in process memory. Sessions are
// stored as JSON so callers never share the stored value.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string][]byte
	updated  map[string]time.Time
}

// NewMemorySessionStore creates an empty in-memory session store
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string][]byte),
		updated:  make(map[string]time.Time),
	}
}

// Get returns the session or model.ErrNotFound
func (s *MemorySessionStore) Get(_ context.Context, id string) (*model.ChatSession, error) {
	s.mu.RLock()
	data, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: session %s", model.ErrNotFound, id)
	}
	return decodeSession(data)
}

// Put stores a copy of session
func (s *MemorySessionStore) Put(_ context.Context, session *model.ChatSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	s.mu.Lock()
	s.sessions[session.ID] = data
	s.updated[session.ID] = session.UpdatedAt
	s.mu.Unlock()
	return nil
}

// Delete removes a session; unknown ids are not an error
func (s *MemorySessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.sessions, id)
	delete(s.updated, id)
	s.mu.Unlock()
	return nil
}

// List returns session summaries, most recently active first
func (s *MemorySessionStore) List(ctx context.Context, limit int) ([]model.SessionSummary, error) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.updated))
	for id := range s.updated {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ti, tj := s.updated[ids[i]], s.updated[ids[j]]
		if ti.Equal(tj) {
			return ids[i] < ids[j]
		}
		return ti.After(tj)
	})
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	s.mu.RUnlock()

	out := make([]model.SessionSummary, 0, len(ids))
	for _, id := range ids {
		sess, err := s.Get(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, sess.Summary())
	}
	return out, nil
}

// Prune removes sessions last active before cutoff
func (s *MemorySessionStore) Prune(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, at := range s.updated {
		if at.Before(cutoff) {
			delete(s.sessions, id)
			delete(s.updated, id)
			n++
		}
	}
	return n, nil
}

// Count reports how many sessions are stored
func (s *MemorySessionStore) Count(context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.sessions)), nil
}

func decodeSession(data []byte) (*model.ChatSession, error) {
	var session model.ChatSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("%w: corrupt session: %v", model.ErrStorageUnavailable, err)
	}
	return &session, nil
}
