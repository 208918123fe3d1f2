package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"geoscore/internal/outbox/models"
	txcontext "geoscore/pkg/platform/tx"
)

// InMemoryStore keeps outbox events in insertion order.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []*models.Event
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(ctx context.Context, evt *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *evt
	s.events = append(s.events, &cp)
	eventID := evt.ID
	txcontext.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, e := range s.events {
			if e.ID == eventID {
				s.events = append(s.events[:i], s.events[i+1:]...)
				return
			}
		}
	})
	return nil
}

func (s *InMemoryStore) FetchUnpublished(_ context.Context, limit int) ([]*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Event
	for _, e := range s.events {
		if e.PublishedAt != nil {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[uuid.UUID]struct{}, len(ids))
	for _, eventID := range ids {
		wanted[eventID] = struct{}{}
	}
	var marked []*models.Event
	for _, e := range s.events {
		if _, ok := wanted[e.ID]; ok && e.PublishedAt == nil {
			published := at
			e.PublishedAt = &published
			marked = append(marked, e)
		}
	}
	txcontext.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, e := range marked {
			e.PublishedAt = nil
		}
	})
	return nil
}

func (s *InMemoryStore) CountUnpublished(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.events {
		if e.PublishedAt == nil {
			n++
		}
	}
	return n, nil
}

// All returns a snapshot of every stored event.
func (s *InMemoryStore) All() []*models.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Event, 0, len(s.events))
	for _, e := range s.events {
		cp := *e
		out = append(out, &cp)
	}
	return out
}
