package store

import (
	"context"
	"sync"

	"geoscore/internal/application/models"
	id "geoscore/pkg/domain"
	"geoscore/pkg/platform/sentinel"
)

// InMemoryStore is the map-backed application store.
type InMemoryStore struct {
	mu       sync.RWMutex
	nextID   int64
	byID     map[id.ApplicationID]*models.Application
	byDomain map[string]id.ApplicationID
	byExtID  map[string]id.ApplicationID
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		byID:     make(map[id.ApplicationID]*models.Application),
		byDomain: make(map[string]id.ApplicationID),
		byExtID:  make(map[string]id.ApplicationID),
	}
}

func (s *InMemoryStore) CreateIfDomainAvailable(_ context.Context, app *models.Application) (*models.Application, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byDomain[app.Domain]; ok {
		cp := *s.byID[existing]
		return &cp, false, nil
	}
	s.nextID++
	stored := *app
	stored.ID = id.ApplicationID(s.nextID)
	s.byID[stored.ID] = &stored
	s.byDomain[stored.Domain] = stored.ID
	s.byExtID[stored.ExternalID] = stored.ID

	cp := stored
	return &cp, true, nil
}

func (s *InMemoryStore) FindByDomain(_ context.Context, domain string) (*models.Application, error) {
	return s.lookup(func() (id.ApplicationID, bool) { v, ok := s.byDomain[domain]; return v, ok })
}

func (s *InMemoryStore) FindByExternalID(_ context.Context, externalID string) (*models.Application, error) {
	return s.lookup(func() (id.ApplicationID, bool) { v, ok := s.byExtID[externalID]; return v, ok })
}

func (s *InMemoryStore) FindByID(_ context.Context, appID id.ApplicationID) (*models.Application, error) {
	return s.lookup(func() (id.ApplicationID, bool) { _, ok := s.byID[appID]; return appID, ok })
}

func (s *InMemoryStore) lookup(find func() (id.ApplicationID, bool)) (*models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	appID, ok := find()
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *s.byID[appID]
	return &cp, nil
}
