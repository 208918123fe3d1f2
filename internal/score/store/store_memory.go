package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"geoscore/internal/score/models"
	id "geoscore/pkg/domain"
	"geoscore/pkg/platform/sentinel"
	txcontext "geoscore/pkg/platform/tx"
)

type addressKey struct {
	addr     id.UserAddress
	regionID id.RegionID
}

// InMemoryStore keeps aggregates in maps. Folds register undo steps so a
// failed MemoryRunner transaction leaves totals untouched.
type InMemoryStore struct {
	mu        sync.RWMutex
	addresses map[addressKey]*models.AddressRegionAggregate
	regions   map[id.RegionID]*models.RegionAggregate
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		addresses: make(map[addressKey]*models.AddressRegionAggregate),
		regions:   make(map[id.RegionID]*models.RegionAggregate),
	}
}

func (s *InMemoryStore) Fold(ctx context.Context, addr id.UserAddress, regionID id.RegionID, score decimal.Decimal, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := addressKey{addr, regionID}
	prevAddr, hadAddr := s.addresses[key]
	prevRegion, hadRegion := s.regions[regionID]

	nextAddr := &models.AddressRegionAggregate{UserAddress: addr, RegionID: regionID, TotalScore: decimal.Zero}
	if hadAddr {
		copied := *prevAddr
		nextAddr = &copied
	}
	nextAddr.Fold(score, now)

	nextRegion := &models.RegionAggregate{RegionID: regionID, TotalScore: decimal.Zero}
	if hadRegion {
		copied := *prevRegion
		nextRegion = &copied
	}
	nextRegion.Fold(score, now)

	s.addresses[key] = nextAddr
	s.regions[regionID] = nextRegion

	txcontext.OnRollback(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if hadAddr {
			s.addresses[key] = prevAddr
		} else {
			delete(s.addresses, key)
		}
		if hadRegion {
			s.regions[regionID] = prevRegion
		} else {
			delete(s.regions, regionID)
		}
	})
	return nil
}

func (s *InMemoryStore) RegionAggregate(_ context.Context, regionID id.RegionID) (*models.RegionAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agg, ok := s.regions[regionID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *agg
	return &copied, nil
}

func (s *InMemoryStore) AddressRegionAggregate(_ context.Context, addr id.UserAddress, regionID id.RegionID) (*models.AddressRegionAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agg, ok := s.addresses[addressKey{addr, regionID}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *agg
	return &copied, nil
}

func (s *InMemoryStore) ListRegionAggregates(_ context.Context) ([]*models.RegionAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.RegionAggregate, 0, len(s.regions))
	for _, agg := range s.regions {
		copied := *agg
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RegionID < out[j].RegionID })
	return out, nil
}

func (s *InMemoryStore) ListAddressAggregates(_ context.Context, regionID id.RegionID) ([]*models.AddressRegionAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.AddressRegionAggregate
	for key, agg := range s.addresses {
		if key.regionID != regionID {
			continue
		}
		copied := *agg
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].TotalScore.Cmp(out[j].TotalScore); c != 0 {
			return c > 0
		}
		return out[i].UserAddress < out[j].UserAddress
	})
	return out, nil
}
