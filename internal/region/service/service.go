package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"geoscore/internal/region/models"
	id "geoscore/pkg/domain"
	dErrors "geoscore/pkg/domain-errors"
	"geoscore/pkg/platform/sentinel"
	"geoscore/pkg/platform/tx"
	"geoscore/pkg/requestcontext"
)

// Store is the persistence port for regions.
type Store interface {
	ResolveOrCreate(ctx context.Context, key models.Key, now time.Time) (id.RegionID, bool, error)
	Upsert(ctx context.Context, key models.Key, center *models.Coordinates, now time.Time) (id.RegionID, error)
	FindByID(ctx context.Context, regionID id.RegionID) (*models.Region, error)
	FindByKey(ctx context.Context, key models.Key) (*models.Region, error)
	ListWithCenters(ctx context.Context) ([]*models.Region, error)
	List(ctx context.Context) ([]*models.Region, error)
}

// Service is the region directory: it maps place names to stable region ids.
type Service struct {
	store  Store
	tx     tx.Runner
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithTxRunner makes BulkLoad all-or-nothing.
func WithTxRunner(r tx.Runner) Option {
	return func(s *Service) {
		s.tx = r
	}
}

func New(store Store, opts ...Option) *Service {
	s := &Service{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ResolveOrCreate returns the id of the region named (name, countryCode),
// creating it on first sight. Regions are never merged or deleted.
func (s *Service) ResolveOrCreate(ctx context.Context, name, countryCode, regionName string) (id.RegionID, error) {
	key, err := models.NewKey(name, countryCode, regionName)
	if err != nil {
		return 0, err
	}

	regionID, created, err := s.store.ResolveOrCreate(ctx, key, requestcontext.Now(ctx))
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve region")
	}
	if created {
		s.logger.InfoContext(ctx, "region created",
			"request_id", requestcontext.RequestID(ctx),
			"region_id", regionID,
			"name", key.Name,
			"country_code", key.CountryCode,
		)
	}
	return regionID, nil
}

func (s *Service) Get(ctx context.Context, regionID id.RegionID) (*models.Region, error) {
	r, err := s.store.FindByID(ctx, regionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "region not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load region")
	}
	return r, nil
}

func (s *Service) List(ctx context.Context) ([]*models.Region, error) {
	regions, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list regions")
	}
	return regions, nil
}

// Nearest picks the region with a known center closest to (lat, lon).
func (s *Service) Nearest(ctx context.Context, lat, lon float64) (*models.Region, error) {
	at, err := models.NewCoordinates(lat, lon)
	if err != nil {
		return nil, err
	}
	regions, err := s.store.ListWithCenters(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list regions")
	}
	r, ok := models.Nearest(regions, at)
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "no region with a known location")
	}
	return r, nil
}

// BulkLoad upserts every seed. With a tx runner the load is atomic.
func (s *Service) BulkLoad(ctx context.Context, seeds []models.Seed) (int, error) {
	if len(seeds) == 0 {
		return 0, dErrors.New(dErrors.CodeValidation, "no regions to load")
	}
	now := requestcontext.Now(ctx)
	load := func(ctx context.Context) error {
		for _, seed := range seeds {
			if _, err := s.store.Upsert(ctx, seed.Key, seed.Center, now); err != nil {
				return err
			}
		}
		return nil
	}

	var err error
	if s.tx != nil {
		err = s.tx.RunInTx(ctx, load)
	} else {
		err = load(ctx)
	}
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load regions")
	}

	s.logger.InfoContext(ctx, "regions loaded",
		"request_id", requestcontext.RequestID(ctx),
		"count", len(seeds),
	)
	return len(seeds), nil
}
