package store

import (
	"context"
	"sort"
	"sync"

	"geoscore/internal/claim/models"
	id "geoscore/pkg/domain"
	"geoscore/pkg/platform/sentinel"
	txcontext "geoscore/pkg/platform/tx"
)

// InMemoryStore is the map-backed claim store. Row locking is provided by
// the MemoryRunner that serializes transactions.
type InMemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	claims map[id.ClaimID]*models.Claim
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{claims: make(map[id.ClaimID]*models.Claim)}
}

func (s *InMemoryStore) Create(ctx context.Context, c *models.Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	c.ID = id.ClaimID(s.nextID)
	c.Status = models.StatusPending
	s.claims[c.ID] = clone(c)

	claimID := c.ID
	txcontext.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.claims, claimID)
	})
	return nil
}

func (s *InMemoryStore) FindOwned(_ context.Context, claimID id.ClaimID, appID id.ApplicationID) (*models.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.claims[claimID]
	if !ok || c.ApplicationID != appID {
		return nil, sentinel.ErrNotFound
	}
	return clone(c), nil
}

func (s *InMemoryStore) LockOwned(ctx context.Context, claimID id.ClaimID, appID id.ApplicationID) (*models.Claim, error) {
	return s.FindOwned(ctx, claimID, appID)
}

func (s *InMemoryStore) FindByID(_ context.Context, claimID id.ClaimID) (*models.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.claims[claimID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(c), nil
}

func (s *InMemoryStore) MarkConfirmed(ctx context.Context, c *models.Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.claims[c.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Status != models.StatusPending || c.ConfirmedAt == nil {
		return sentinel.ErrInvalidState
	}
	prev := current
	s.claims[c.ID] = clone(c)

	txcontext.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.claims[prev.ID] = prev
	})
	return nil
}

func (s *InMemoryStore) ListConfirmedByAddress(_ context.Context, addr id.UserAddress) ([]*models.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Claim
	for _, c := range s.claims {
		if c.UserAddress == addr && c.IsConfirmed() {
			out = append(out, clone(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ConfirmedAt.Equal(*out[j].ConfirmedAt) {
			return out[i].ConfirmedAt.After(*out[j].ConfirmedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *InMemoryStore) RegionActivity(_ context.Context, regionID id.RegionID) ([]models.AddressActivity, error) {
	s.mu.RLock()
	var confirmed []*models.Claim
	for _, c := range s.claims {
		if c.RegionID == regionID && c.IsConfirmed() {
			confirmed = append(confirmed, c)
		}
	}
	s.mu.RUnlock()

	sort.Slice(confirmed, func(i, j int) bool {
		a, b := confirmed[i], confirmed[j]
		if a.UserAddress != b.UserAddress {
			return a.UserAddress < b.UserAddress
		}
		if !a.ConfirmedAt.Equal(*b.ConfirmedAt) {
			return a.ConfirmedAt.Before(*b.ConfirmedAt)
		}
		return a.ID < b.ID
	})
	var out []models.AddressActivity
	for _, c := range confirmed {
		out = appendActivity(out, c.UserAddress, c.ID, *c.ConfirmedAt)
	}
	return out, nil
}

func clone(c *models.Claim) *models.Claim {
	cp := *c
	if c.Meta != nil {
		cp.Meta = append([]byte(nil), c.Meta...)
	}
	if c.ConfirmedAt != nil {
		t := *c.ConfirmedAt
		cp.ConfirmedAt = &t
	}
	return &cp
}
