package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"geoscore/internal/score"
	"geoscore/internal/score/models"
	id "geoscore/pkg/domain"
	dErrors "geoscore/pkg/domain-errors"
	"geoscore/pkg/platform/sentinel"
	"geoscore/pkg/requestcontext"
)

// Store is the persistence port for running aggregates.
type Store interface {
	Fold(ctx context.Context, addr id.UserAddress, regionID id.RegionID, score decimal.Decimal, now time.Time) error
	RegionAggregate(ctx context.Context, regionID id.RegionID) (*models.RegionAggregate, error)
	AddressRegionAggregate(ctx context.Context, addr id.UserAddress, regionID id.RegionID) (*models.AddressRegionAggregate, error)
	ListRegionAggregates(ctx context.Context) ([]*models.RegionAggregate, error)
	ListAddressAggregates(ctx context.Context, regionID id.RegionID) ([]*models.AddressRegionAggregate, error)
}

// Service is the scoring engine: it scores verified values and folds them
// into the address and region aggregates.
type Service struct {
	store  Store
	scorer score.Scorer
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithScorer replaces the identity scoring policy.
func WithScorer(scorer score.Scorer) Option {
	return func(s *Service) {
		s.scorer = scorer
	}
}

func New(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		scorer: score.IdentityScorer{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Score(verified decimal.Decimal) decimal.Decimal {
	return s.scorer.Score(verified)
}

// Fold applies one confirmation to both aggregates. It must run inside the
// transaction that confirms the claim; any failure is an aggregation_failed
// error and the caller rolls back.
func (s *Service) Fold(ctx context.Context, addr id.UserAddress, regionID id.RegionID, score decimal.Decimal, now time.Time) error {
	if score.IsNegative() {
		return dErrors.New(dErrors.CodeInvariantViolation, "score must not be negative")
	}
	if err := s.store.Fold(ctx, addr, regionID, score, now); err != nil {
		s.logger.ErrorContext(ctx, "aggregate fold failed",
			"request_id", requestcontext.RequestID(ctx),
			"region_id", regionID,
			"user_address", addr,
			"error", err,
		)
		return dErrors.Wrap(err, dErrors.CodeAggregationFailed, "failed to update aggregates")
	}
	return nil
}

func (s *Service) RegionAggregate(ctx context.Context, regionID id.RegionID) (*models.RegionAggregate, error) {
	agg, err := s.store.RegionAggregate(ctx, regionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "no confirmed claims for region")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load region aggregate")
	}
	return agg, nil
}

func (s *Service) AddressRegionAggregate(ctx context.Context, addr id.UserAddress, regionID id.RegionID) (*models.AddressRegionAggregate, error) {
	agg, err := s.store.AddressRegionAggregate(ctx, addr, regionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "no confirmed claims for address in region")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load address aggregate")
	}
	return agg, nil
}

func (s *Service) ListRegionAggregates(ctx context.Context) ([]*models.RegionAggregate, error) {
	aggs, err := s.store.ListRegionAggregates(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list region aggregates")
	}
	return aggs, nil
}

func (s *Service) ListAddressAggregates(ctx context.Context, regionID id.RegionID) ([]*models.AddressRegionAggregate, error) {
	aggs, err := s.store.ListAddressAggregates(ctx, regionID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list address aggregates")
	}
	return aggs, nil
}
