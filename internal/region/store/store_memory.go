package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"geoscore/internal/region/models"
	id "geoscore/pkg/domain"
	"geoscore/pkg/platform/sentinel"
	txcontext "geoscore/pkg/platform/tx"
)

// InMemoryStore is the map-backed region store used by tests and the
// database-less dev mode.
type InMemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	byID   map[id.RegionID]*models.Region
	byKey  map[keyIndex]id.RegionID
}

type keyIndex struct {
	name    string
	country string
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		byID:  make(map[id.RegionID]*models.Region),
		byKey: make(map[keyIndex]id.RegionID),
	}
}

func (s *InMemoryStore) ResolveOrCreate(ctx context.Context, key models.Key, now time.Time) (id.RegionID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := keyIndex{key.Name, key.CountryCode}
	if existing, ok := s.byKey[k]; ok {
		return existing, false, nil
	}
	r := s.insertLocked(key, nil, now)
	txcontext.OnRollback(ctx, func() { s.remove(r.ID, k) })
	return r.ID, true, nil
}

func (s *InMemoryStore) Upsert(ctx context.Context, key models.Key, center *models.Coordinates, now time.Time) (id.RegionID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := keyIndex{key.Name, key.CountryCode}
	if existing, ok := s.byKey[k]; ok {
		r := s.byID[existing]
		if key.RegionName != "" {
			r.RegionName = key.RegionName
		}
		if center != nil {
			c := *center
			r.Center = &c
		}
		return existing, nil
	}
	return s.insertLocked(key, center, now).ID, nil
}

func (s *InMemoryStore) insertLocked(key models.Key, center *models.Coordinates, now time.Time) *models.Region {
	s.nextID++
	r := &models.Region{
		ID:          id.RegionID(s.nextID),
		Name:        key.Name,
		CountryCode: key.CountryCode,
		RegionName:  key.RegionName,
		CreatedAt:   now,
	}
	if center != nil {
		c := *center
		r.Center = &c
	}
	s.byID[r.ID] = r
	s.byKey[keyIndex{key.Name, key.CountryCode}] = r.ID
	return r
}

func (s *InMemoryStore) remove(regionID id.RegionID, k keyIndex) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, regionID)
	delete(s.byKey, k)
}

func (s *InMemoryStore) FindByID(_ context.Context, regionID id.RegionID) (*models.Region, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byID[regionID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(r), nil
}

func (s *InMemoryStore) FindByKey(_ context.Context, key models.Key) (*models.Region, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	regionID, ok := s.byKey[keyIndex{key.Name, key.CountryCode}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(s.byID[regionID]), nil
}

func (s *InMemoryStore) ListWithCenters(ctx context.Context) ([]*models.Region, error) {
	all, _ := s.List(ctx)
	out := all[:0]
	for _, r := range all {
		if r.Center != nil {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *InMemoryStore) List(_ context.Context) ([]*models.Region, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Region, 0, len(s.byID))
	for _, r := range s.byID {
		out = append(out, clone(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func clone(r *models.Region) *models.Region {
	cp := *r
	if r.Center != nil {
		c := *r.Center
		cp.Center = &c
	}
	return &cp
}
