package summary

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrNotFound is returned for unknown summary ids.
var ErrNotFound = errors.New("summary not found")

// Revision is one recorded version of a summary.
type Revision struct {
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Summary is the current content for an id plus every distinct version it
// has had, oldest first.
type Summary struct {
	ID        string     `json:"id"`
	Content   string     `json:"content"`
	History   []Revision `json:"history"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Store keeps research summaries keyed by run or correlation id.
type Store interface {
	// Update sets the content for id. History grows only when the content
	// differs from the current version.
	Update(ctx context.Context, id, content string) error
	Get(ctx context.Context, id string) (*Summary, error)
	List(ctx context.Context) ([]*Summary, error)
	Delete(ctx context.Context, id string) error
}

// apply folds new content into s (nil for a new id) and returns the result.
func apply(s *Summary, id, content string, now time.Time) (*Summary, bool) {
	if s == nil {
		return &Summary{
			ID:        id,
			Content:   content,
			History:   []Revision{{Content: content, Timestamp: now}},
			UpdatedAt: now,
		}, true
	}
	if s.Content == content {
		return s, false
	}
	s.Content = content
	s.History = append(s.History, Revision{Content: content, Timestamp: now})
	s.UpdatedAt = now
	return s, true
}

func sortByID(out []*Summary) {
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
}

// MemoryStore is an in-process Store. Contents are lost on restart.
type MemoryStore struct {
	mu        sync.RWMutex
	summaries map[string]*Summary
	now       func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{summaries: make(map[string]*Summary), now: time.Now}
}

func (m *MemoryStore) Update(_ context.Context, id, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, _ := apply(m.summaries[id], id, content, m.now())
	m.summaries[id] = s
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.summaries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(s), nil
}

func (m *MemoryStore) List(_ context.Context) ([]*Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Summary, 0, len(m.summaries))
	for _, s := range m.summaries {
		out = append(out, clone(s))
	}
	sortByID(out)
	return out, nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.summaries, id)
	return nil
}

func clone(s *Summary) *Summary {
	c := *s
	c.History = append([]Revision(nil), s.History...)
	return &c
}
