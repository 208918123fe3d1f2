package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"geoscore/internal/score"
	"geoscore/internal/score/models"
	"geoscore/internal/score/store"
	id "geoscore/pkg/domain"
	dErrors "geoscore/pkg/domain-errors"
)

type failingStore struct {
	*store.InMemoryStore
	err error
}

func (f *failingStore) Fold(context.Context, id.UserAddress, id.RegionID, decimal.Decimal, time.Time) error {
	return f.err
}

type ScoreServiceSuite struct {
	suite.Suite
	store   *store.InMemoryStore
	service *Service
	ctx     context.Context
	now     time.Time
}

func TestScoreServiceSuite(t *testing.T) {
	suite.Run(t, new(ScoreServiceSuite))
}

func (s *ScoreServiceSuite) SetupTest() {
	s.store = store.NewInMemory()
	s.service = New(s.store, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	s.ctx = context.Background()
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func (s *ScoreServiceSuite) TestScoreDefaultsToIdentity() {
	s.True(decimal.NewFromInt(42).Equal(s.service.Score(decimal.NewFromInt(42))))
}

func (s *ScoreServiceSuite) TestCustomScorer() {
	svc := New(s.store, WithScorer(score.ScorerFunc(func(d decimal.Decimal) decimal.Decimal {
		return d.Div(decimal.NewFromInt(1_000_000_000))
	})))
	s.Equal("1.5", svc.Score(decimal.NewFromInt(1_500_000_000)).String())
}

func (s *ScoreServiceSuite) TestFoldAndRead() {
	s.Require().NoError(s.service.Fold(s.ctx, "0xa", 1, decimal.NewFromInt(42), s.now))

	region, err := s.service.RegionAggregate(s.ctx, 1)
	s.Require().NoError(err)
	s.Equal(int64(1), region.TxCount)
	s.True(decimal.NewFromInt(42).Equal(region.TotalScore))

	addr, err := s.service.AddressRegionAggregate(s.ctx, "0xa", 1)
	s.Require().NoError(err)
	s.Equal(int64(1), addr.TxCount)

	all, err := s.service.ListRegionAggregates(s.ctx)
	s.Require().NoError(err)
	s.Equal([]*models.RegionAggregate{region}, all)
}

func (s *ScoreServiceSuite) TestReadMissingIsNotFound() {
	_, err := s.service.RegionAggregate(s.ctx, 99)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.service.AddressRegionAggregate(s.ctx, "0xa", 99)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ScoreServiceSuite) TestFoldRejectsNegativeScore() {
	err := s.service.Fold(s.ctx, "0xa", 1, decimal.NewFromInt(-1), s.now)
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	_, err = s.service.RegionAggregate(s.ctx, 1)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ScoreServiceSuite) TestFoldFailureIsAggregationError() {
	cause := errors.New("disk full")
	svc := New(&failingStore{InMemoryStore: s.store, err: cause}, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	err := svc.Fold(s.ctx, "0xa", 1, decimal.NewFromInt(1), s.now)
	s.True(dErrors.HasCode(err, dErrors.CodeAggregationFailed))
	s.ErrorIs(err, cause)
}
