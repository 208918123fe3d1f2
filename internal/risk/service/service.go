// Package service assembles the read-side region reports: summaries with a
// risk rate, per-address statuses and the map listing.
package service

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	claimmodels "geoscore/internal/claim/models"
	regionmodels "geoscore/internal/region/models"
	"geoscore/internal/risk"
	scoremodels "geoscore/internal/score/models"
	id "geoscore/pkg/domain"
	dErrors "geoscore/pkg/domain-errors"
	"geoscore/pkg/requestcontext"
)

// Regions is the region directory as seen by reports.
type Regions interface {
	Get(ctx context.Context, regionID id.RegionID) (*regionmodels.Region, error)
	List(ctx context.Context) ([]*regionmodels.Region, error)
}

// Aggregates reads the running totals kept by the scoring engine.
type Aggregates interface {
	RegionAggregate(ctx context.Context, regionID id.RegionID) (*scoremodels.RegionAggregate, error)
	ListRegionAggregates(ctx context.Context) ([]*scoremodels.RegionAggregate, error)
	ListAddressAggregates(ctx context.Context, regionID id.RegionID) ([]*scoremodels.AddressRegionAggregate, error)
}

// Activity supplies confirmation timestamps from the claim store.
type Activity interface {
	RegionActivity(ctx context.Context, regionID id.RegionID) ([]claimmodels.AddressActivity, error)
}

type Service struct {
	regions    Regions
	aggregates Aggregates
	activity   Activity
	logger     *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(regions Regions, aggregates Aggregates, activity Activity, opts ...Option) *Service {
	s := &Service{
		regions:    regions,
		aggregates: aggregates,
		activity:   activity,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegionSummary is the top-level report for one region.
type RegionSummary struct {
	Region       *regionmodels.Region
	Transactions int64
	RiskRate     float64
}

// AddressStatus is one address's standing within a region.
type AddressStatus struct {
	FirstClaimID id.ClaimID
	UserAddress  id.UserAddress
	TxCount      int64
	Score        decimal.Decimal
	RiskRate     float64
	Status       string
}

// MapRegion is a region with its totals, for plotting.
type MapRegion struct {
	Region       *regionmodels.Region
	Transactions int64
	Score        decimal.Decimal
}

// RegionSummary reports the confirmed transaction count of a region and the
// risk rate over all its confirmation timestamps.
func (s *Service) RegionSummary(ctx context.Context, regionID id.RegionID) (*RegionSummary, error) {
	region, err := s.regions.Get(ctx, regionID)
	if err != nil {
		return nil, err
	}

	var txCount int64
	agg, err := s.aggregates.RegionAggregate(ctx, regionID)
	switch {
	case err == nil:
		txCount = agg.TxCount
	case !dErrors.HasCode(err, dErrors.CodeNotFound):
		return nil, err
	}

	activity, err := s.loadActivity(ctx, regionID)
	if err != nil {
		return nil, err
	}
	var times []time.Time
	for _, a := range activity {
		times = append(times, a.ConfirmedAt...)
	}

	return &RegionSummary{
		Region:       region,
		Transactions: txCount,
		RiskRate:     risk.Compute(times, requestcontext.Now(ctx)),
	}, nil
}

// AddressStatuses reports every address with confirmed claims in a region,
// highest total score first.
func (s *Service) AddressStatuses(ctx context.Context, regionID id.RegionID) ([]AddressStatus, error) {
	if _, err := s.regions.Get(ctx, regionID); err != nil {
		return nil, err
	}
	aggs, err := s.aggregates.ListAddressAggregates(ctx, regionID)
	if err != nil {
		return nil, err
	}
	activity, err := s.loadActivity(ctx, regionID)
	if err != nil {
		return nil, err
	}
	byAddr := make(map[id.UserAddress]claimmodels.AddressActivity, len(activity))
	for _, a := range activity {
		byAddr[a.UserAddress] = a
	}

	now := requestcontext.Now(ctx)
	out := make([]AddressStatus, 0, len(aggs))
	for _, agg := range aggs {
		a := byAddr[agg.UserAddress]
		rate := risk.Compute(a.ConfirmedAt, now)
		out = append(out, AddressStatus{
			FirstClaimID: a.FirstClaimID,
			UserAddress:  agg.UserAddress,
			TxCount:      agg.TxCount,
			Score:        agg.TotalScore,
			RiskRate:     rate,
			Status:       risk.Classify(rate),
		})
	}
	return out, nil
}

// MapRegions lists every region with its confirmed totals, ordered by id.
// Regions without confirmations report zero.
func (s *Service) MapRegions(ctx context.Context) ([]MapRegion, error) {
	regions, err := s.regions.List(ctx)
	if err != nil {
		return nil, err
	}
	aggs, err := s.aggregates.ListRegionAggregates(ctx)
	if err != nil {
		return nil, err
	}
	totals := make(map[id.RegionID]*scoremodels.RegionAggregate, len(aggs))
	for _, agg := range aggs {
		totals[agg.RegionID] = agg
	}

	out := make([]MapRegion, 0, len(regions))
	for _, r := range regions {
		entry := MapRegion{Region: r, Score: decimal.Zero}
		if agg, ok := totals[r.ID]; ok {
			entry.Transactions = agg.TxCount
			entry.Score = agg.TotalScore
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Region.ID < out[j].Region.ID })
	return out, nil
}

func (s *Service) loadActivity(ctx context.Context, regionID id.RegionID) ([]claimmodels.AddressActivity, error) {
	activity, err := s.activity.RegionActivity(ctx, regionID)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to load region activity",
			"request_id", requestcontext.RequestID(ctx),
			"region_id", regionID,
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load region activity")
	}
	return activity, nil
}
