package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. Nothing survives a restart.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
	segments map[string]Segment
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]Session),
		segments: make(map[string]Segment),
	}
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) CreateSession(_ context.Context, session *Session) error {
	if session.ID == "" {
		return fmt.Errorf("session: empty id")
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[session.ID]; ok {
		return fmt.Errorf("session %s already exists", session.ID)
	}
	m.sessions[session.ID] = *session
	return nil
}

func (m *MemoryStore) GetSession(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (m *MemoryStore) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return ErrNotFound
	}
	for segID, seg := range m.segments {
		if seg.SessionID == id {
			delete(m.segments, segID)
		}
	}
	delete(m.sessions, id)
	return nil
}

func (m *MemoryStore) ListSessions(_ context.Context) ([]SessionSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byID := make(map[string]*SessionSummary, len(m.sessions))
	out := make([]SessionSummary, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, SessionSummary{ID: s.ID, CreatedAt: s.CreatedAt})
	}
	for i := range out {
		byID[out[i].ID] = &out[i]
	}
	for _, seg := range m.segments {
		sum, ok := byID[seg.SessionID]
		if !ok {
			continue
		}
		sum.SegmentCount++
		if seg.Status == StatusCompleted {
			sum.CompletedCount++
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) InsertSegment(_ context.Context, segment *Segment) error {
	if err := segment.Validate(); err != nil {
		return err
	}
	if segment.CreatedAt.IsZero() {
		segment.CreatedAt = time.Now()
	}
	if segment.UpdatedAt.IsZero() {
		segment.UpdatedAt = segment.CreatedAt
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[segment.SessionID]; !ok {
		return fmt.Errorf("session %s: %w", segment.SessionID, ErrNotFound)
	}
	if _, ok := m.segments[segment.ID]; ok {
		return fmt.Errorf("segment %s already exists", segment.ID)
	}
	m.segments[segment.ID] = *segment
	return nil
}

func (m *MemoryStore) UpdateSegment(_ context.Context, segment *Segment) error {
	if err := segment.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.segments[segment.ID]
	if !ok {
		return ErrNotFound
	}
	cur.Transcription = segment.Transcription
	cur.Status = segment.Status
	cur.Source = segment.Source
	if segment.Retries > cur.Retries {
		cur.Retries = segment.Retries
	}
	cur.UpdatedAt = segment.UpdatedAt
	if cur.UpdatedAt.IsZero() {
		cur.UpdatedAt = time.Now()
	}
	m.segments[segment.ID] = cur
	return nil
}

func (m *MemoryStore) GetSegment(_ context.Context, id string) (*Segment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seg, ok := m.segments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &seg, nil
}

func (m *MemoryStore) SessionSegments(_ context.Context, sessionID string) ([]Segment, error) {
	return m.filter(func(s Segment) bool { return s.SessionID == sessionID }, func(a, b Segment) bool {
		return a.Seq < b.Seq
	}), nil
}

func (m *MemoryStore) PendingSegments(_ context.Context) ([]Segment, error) {
	return m.filter(func(s Segment) bool { return s.Status == StatusPending }, func(a, b Segment) bool {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.Seq < b.Seq
		}
		return a.CreatedAt.Before(b.CreatedAt)
	}), nil
}

func (m *MemoryStore) filter(keep func(Segment) bool, less func(a, b Segment) bool) []Segment {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Segment
	for _, seg := range m.segments {
		if keep(seg) {
			out = append(out, seg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}
