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

	claimmodels "geoscore/internal/claim/models"
	claimstore "geoscore/internal/claim/store"
	regionmodels "geoscore/internal/region/models"
	regionservice "geoscore/internal/region/service"
	regionstore "geoscore/internal/region/store"
	"geoscore/internal/risk"
	scoreservice "geoscore/internal/score/service"
	scorestore "geoscore/internal/score/store"
	id "geoscore/pkg/domain"
	dErrors "geoscore/pkg/domain-errors"
	"geoscore/pkg/requestcontext"
)

type ReportSuite struct {
	suite.Suite
	ctx     context.Context
	now     time.Time
	regions *regionservice.Service
	scores  *scoreservice.Service
	claims  *claimstore.InMemoryStore
	svc     *Service
}

func TestReportSuite(t *testing.T) {
	suite.Run(t, new(ReportSuite))
}

func (s *ReportSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.regions = regionservice.New(regionstore.NewInMemory(), regionservice.WithLogger(logger))
	s.scores = scoreservice.New(scorestore.NewInMemory(), scoreservice.WithLogger(logger))
	s.claims = claimstore.NewInMemory()
	s.svc = New(s.regions, s.scores, s.claims, WithLogger(logger))
}

func (s *ReportSuite) region(name, country string) id.RegionID {
	regionID, err := s.regions.ResolveOrCreate(s.ctx, name, country, "")
	s.Require().NoError(err)
	return regionID
}

// confirmAt records a confirmed claim and folds it the way the claim
// pipeline does.
func (s *ReportSuite) confirmAt(addr id.UserAddress, regionID id.RegionID, score int64, at time.Time) *claimmodels.Claim {
	c := &claimmodels.Claim{ApplicationID: 1, UserAddress: addr, RegionID: regionID, CreatedAt: at}
	s.Require().NoError(s.claims.Create(s.ctx, c))
	value := decimal.NewFromInt(score)
	s.Require().NoError(c.Confirm("Dg"+c.ID.String(), value, value, at))
	s.Require().NoError(s.claims.MarkConfirmed(s.ctx, c))
	s.Require().NoError(s.scores.Fold(s.ctx, addr, regionID, value, at))
	return c
}

func (s *ReportSuite) TestRegionSummaryWithoutConfirmations() {
	regionID := s.region("Lisbon", "PT")

	summary, err := s.svc.RegionSummary(s.ctx, regionID)
	s.Require().NoError(err)
	s.Equal("Lisbon", summary.Region.Name)
	s.Equal(int64(0), summary.Transactions)
	s.Equal(risk.Neutral, summary.RiskRate)
}

func (s *ReportSuite) TestRegionSummaryRecentCluster() {
	regionID := s.region("Istanbul", "TR")
	yearAgo := s.now.AddDate(-1, 0, 0)
	for i := 0; i < 8; i++ {
		s.confirmAt("0xa", regionID, 1, yearAgo.AddDate(0, i, 0))
	}
	s.confirmAt("0xb", regionID, 1, s.now.Add(-10*time.Hour))
	s.confirmAt("0xb", regionID, 1, s.now.Add(-time.Hour))

	summary, err := s.svc.RegionSummary(s.ctx, regionID)
	s.Require().NoError(err)
	s.Equal(int64(10), summary.Transactions)
	s.InDelta(100, summary.RiskRate, 0.5)
}

func (s *ReportSuite) TestRegionSummaryUnknownRegion() {
	_, err := s.svc.RegionSummary(s.ctx, 404)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ReportSuite) TestAddressStatuses() {
	regionID := s.region("Istanbul", "TR")
	other := s.region("Ankara", "TR")

	yearAgo := s.now.AddDate(-1, 0, 0)
	var firstRecent *claimmodels.Claim
	for i := 0; i < 8; i++ {
		c := s.confirmAt("0xrecent", regionID, 5, yearAgo.AddDate(0, i, 0))
		if firstRecent == nil {
			firstRecent = c
		}
	}
	s.confirmAt("0xrecent", regionID, 5, s.now.Add(-3*time.Hour))
	s.confirmAt("0xrecent", regionID, 5, s.now.Add(-time.Hour))
	s.confirmAt("0xfew", regionID, 100, s.now.Add(-time.Hour))
	s.confirmAt("0xelsewhere", other, 7, s.now.Add(-time.Hour))

	statuses, err := s.svc.AddressStatuses(s.ctx, regionID)
	s.Require().NoError(err)
	s.Require().Len(statuses, 2)

	s.Equal(id.UserAddress("0xfew"), statuses[0].UserAddress)
	s.Equal(int64(1), statuses[0].TxCount)
	s.True(decimal.NewFromInt(100).Equal(statuses[0].Score))
	s.Equal(risk.StatusRisky, statuses[0].Status)

	s.Equal(id.UserAddress("0xrecent"), statuses[1].UserAddress)
	s.Equal(firstRecent.ID, statuses[1].FirstClaimID)
	s.Equal(int64(10), statuses[1].TxCount)
	s.True(decimal.NewFromInt(50).Equal(statuses[1].Score))
	s.Greater(statuses[1].RiskRate, 50.0)
	s.Equal(risk.StatusSafe, statuses[1].Status)
}

func (s *ReportSuite) TestAddressStatusesEmptyRegion() {
	regionID := s.region("Lisbon", "PT")
	statuses, err := s.svc.AddressStatuses(s.ctx, regionID)
	s.Require().NoError(err)
	s.Empty(statuses)
}

func (s *ReportSuite) TestMapRegions() {
	lisbon := s.region("Lisbon", "PT")
	_, err := s.regions.BulkLoad(s.ctx, []regionmodels.Seed{{
		Key:    regionmodels.Key{Name: "Porto", CountryCode: "PT"},
		Center: &regionmodels.Coordinates{Lat: 41.15, Lon: -8.63},
	}})
	s.Require().NoError(err)
	s.confirmAt("0xa", lisbon, 40, s.now)
	s.confirmAt("0xb", lisbon, 2, s.now)

	entries, err := s.svc.MapRegions(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(entries, 2)

	s.Equal("Lisbon", entries[0].Region.Name)
	s.Equal(int64(2), entries[0].Transactions)
	s.True(decimal.NewFromInt(42).Equal(entries[0].Score))

	s.Equal("Porto", entries[1].Region.Name)
	s.Equal(int64(0), entries[1].Transactions)
	s.True(entries[1].Score.IsZero())
	s.Require().NotNil(entries[1].Region.Center)
}

type failingActivity struct{}

func (failingActivity) RegionActivity(context.Context, id.RegionID) ([]claimmodels.AddressActivity, error) {
	return nil, errors.New("connection reset")
}

func (s *ReportSuite) TestActivityFailureIsInternal() {
	regionID := s.region("Lisbon", "PT")
	svc := New(s.regions, s.scores, failingActivity{})

	_, err := svc.RegionSummary(s.ctx, regionID)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}
