package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"geoscore/internal/chain"
	"geoscore/internal/claim/metrics"
	"geoscore/internal/claim/models"
	outboxmodels "geoscore/internal/outbox/models"
	regionmodels "geoscore/internal/region/models"
	id "geoscore/pkg/domain"
	dErrors "geoscore/pkg/domain-errors"
	"geoscore/pkg/platform/sentinel"
	"geoscore/pkg/platform/tx"
	"geoscore/pkg/requestcontext"
)

// Store is the persistence port for claims.
type Store interface {
	Create(ctx context.Context, c *models.Claim) error
	FindOwned(ctx context.Context, claimID id.ClaimID, appID id.ApplicationID) (*models.Claim, error)
	LockOwned(ctx context.Context, claimID id.ClaimID, appID id.ApplicationID) (*models.Claim, error)
	FindByID(ctx context.Context, claimID id.ClaimID) (*models.Claim, error)
	MarkConfirmed(ctx context.Context, c *models.Claim) error
	ListConfirmedByAddress(ctx context.Context, addr id.UserAddress) ([]*models.Claim, error)
}

// Regions resolves the region a claim is opened in.
type Regions interface {
	ResolveOrCreate(ctx context.Context, name, countryCode, regionName string) (id.RegionID, error)
	Get(ctx context.Context, regionID id.RegionID) (*regionmodels.Region, error)
	Nearest(ctx context.Context, lat, lon float64) (*regionmodels.Region, error)
}

// Aggregator scores verified values and folds scores into aggregates.
type Aggregator interface {
	Score(verified decimal.Decimal) decimal.Decimal
	Fold(ctx context.Context, addr id.UserAddress, regionID id.RegionID, score decimal.Decimal, now time.Time) error
}

// Outbox records events in the confirming transaction.
type Outbox interface {
	Append(ctx context.Context, evt *outboxmodels.Event) error
}

const defaultVerifyTimeout = 15 * time.Second

// Service runs the claim pipeline: open a PENDING claim, then confirm it
// against the ledger and fold its score into the aggregates.
type Service struct {
	store         Store
	regions       Regions
	verifier      chain.Verifier
	aggregator    Aggregator
	tx            tx.Runner
	outbox        Outbox
	logger        *slog.Logger
	metrics       *metrics.Metrics
	tracer        trace.Tracer
	verifyTimeout time.Duration
	rejectZero    bool
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithOutbox emits a claim.confirmed event with every confirmation.
func WithOutbox(o Outbox) Option {
	return func(s *Service) {
		s.outbox = o
	}
}

// WithVerifyTimeout bounds the ledger lookup made by Confirm.
func WithVerifyTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.verifyTimeout = d
		}
	}
}

// WithRejectZeroValue makes Confirm refuse transactions that moved no
// native coin instead of accepting them with a warning.
func WithRejectZeroValue(reject bool) Option {
	return func(s *Service) {
		s.rejectZero = reject
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

func New(store Store, regions Regions, verifier chain.Verifier, aggregator Aggregator, runner tx.Runner, opts ...Option) *Service {
	s := &Service{
		store:         store,
		regions:       regions,
		verifier:      verifier,
		aggregator:    aggregator,
		tx:            runner,
		logger:        slog.Default(),
		tracer:        otel.Tracer("geoscore/claim"),
		verifyTimeout: defaultVerifyTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Started is the result of opening a claim through one of the start flows.
type Started struct {
	Claim  *models.Claim
	Region *regionmodels.Region
}

// Confirmation is the result of a successful Confirm.
type Confirmation struct {
	ClaimID       id.ClaimID
	Status        models.Status
	VerifiedValue decimal.Decimal
	Score         decimal.Decimal
	ConfirmedAt   time.Time
}

// Open inserts a new PENDING claim. Every call creates a new claim.
func (s *Service) Open(ctx context.Context, appID id.ApplicationID, rawAddr string, regionID id.RegionID, meta json.RawMessage) (*models.Claim, error) {
	if appID.IsZero() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "application required")
	}
	addr, err := id.ParseUserAddress(rawAddr)
	if err != nil {
		return nil, err
	}
	meta, err = models.NormalizeMeta(meta)
	if err != nil {
		return nil, err
	}
	if _, err := s.regions.Get(ctx, regionID); err != nil {
		return nil, err
	}

	c := &models.Claim{
		ApplicationID: appID,
		UserAddress:   addr,
		RegionID:      regionID,
		Status:        models.StatusPending,
		Meta:          meta,
		CreatedAt:     requestcontext.Now(ctx),
	}
	if err := s.store.Create(ctx, c); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to open claim")
	}

	s.metrics.IncrementOpened()
	s.logger.InfoContext(ctx, "claim opened",
		"request_id", requestcontext.RequestID(ctx),
		"claim_id", c.ID,
		"application_id", appID,
		"region_id", regionID,
	)
	return c, nil
}

// Start resolves (or creates) the named region and opens a claim in it.
func (s *Service) Start(ctx context.Context, appID id.ApplicationID, req *models.OpenRequest) (*Started, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	regionID, err := s.regions.ResolveOrCreate(ctx, req.CityName, req.CountryCode, req.RegionName)
	if err != nil {
		return nil, err
	}
	return s.startIn(ctx, appID, req.UserAddress, regionID, req.Meta)
}

// StartWithLocation opens a claim in the region nearest to the given point.
func (s *Service) StartWithLocation(ctx context.Context, appID id.ApplicationID, req *models.OpenWithLocationRequest) (*Started, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	region, err := s.regions.Nearest(ctx, *req.Latitude, *req.Longitude)
	if err != nil {
		return nil, err
	}
	return s.startIn(ctx, appID, req.UserAddress, region.ID, req.Meta)
}

func (s *Service) startIn(ctx context.Context, appID id.ApplicationID, addr string, regionID id.RegionID, meta json.RawMessage) (*Started, error) {
	c, err := s.Open(ctx, appID, addr, regionID, meta)
	if err != nil {
		return nil, err
	}
	region, err := s.regions.Get(ctx, regionID)
	if err != nil {
		return nil, err
	}
	return &Started{Claim: c, Region: region}, nil
}

// Confirm verifies txReference on the ledger and, in one transaction,
// moves the claim to CONFIRMED and folds its score into the aggregates.
// Nothing is written when verification fails.
func (s *Service) Confirm(ctx context.Context, appID id.ApplicationID, claimID id.ClaimID, txReference string) (conf *Confirmation, err error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "claim.Confirm", trace.WithAttributes(
		attribute.Int64("claim.id", int64(claimID)),
		attribute.Int64("application.id", int64(appID)),
	))
	defer func() {
		outcome := "confirmed"
		if err != nil {
			outcome = string(dErrors.CodeOf(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		s.metrics.ObserveConfirmation(outcome, time.Since(start))
		span.End()
	}()

	if appID.IsZero() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "application required")
	}
	if claimID <= 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "claim id must be a positive integer")
	}
	if err := models.ValidateTxReference(txReference); err != nil {
		return nil, err
	}

	current, err := s.store.FindOwned(ctx, claimID, appID)
	if err != nil {
		return nil, s.translateLookupError(err)
	}
	if current.IsConfirmed() {
		return nil, dErrors.New(dErrors.CodeAlreadyConfirmed, "claim already confirmed")
	}

	verified, err := s.verify(ctx, txReference)
	if err != nil {
		return nil, err
	}

	if verified.IsZero() {
		s.metrics.IncrementZeroValue()
		if s.rejectZero {
			return nil, dErrors.New(dErrors.CodeRejected, "transaction moved no native coin")
		}
		s.logger.WarnContext(ctx, "confirming claim with zero verified value",
			"request_id", requestcontext.RequestID(ctx),
			"claim_id", claimID,
			"tx_reference", txReference,
		)
	}

	score := s.aggregator.Score(verified)
	now := requestcontext.Now(ctx)

	var confirmed *models.Claim
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		locked, err := s.store.LockOwned(ctx, claimID, appID)
		if err != nil {
			return s.translateLookupError(err)
		}
		if err := locked.Confirm(txReference, verified, score, now); err != nil {
			return err
		}
		if err := s.store.MarkConfirmed(ctx, locked); err != nil {
			if errors.Is(err, sentinel.ErrInvalidState) {
				return dErrors.New(dErrors.CodeAlreadyConfirmed, "claim already confirmed")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to confirm claim")
		}
		if err := s.aggregator.Fold(ctx, locked.UserAddress, locked.RegionID, score, now); err != nil {
			if dErrors.HasCode(err, dErrors.CodeAggregationFailed) {
				return err
			}
			return dErrors.Wrap(err, dErrors.CodeAggregationFailed, "failed to update aggregates")
		}
		if err := s.appendConfirmed(ctx, locked); err != nil {
			return dErrors.Wrap(err, dErrors.CodeAggregationFailed, "failed to record confirmation event")
		}
		confirmed = locked
		return nil
	})
	if err != nil {
		if !dErrors.HasCode(err, dErrors.CodeAlreadyConfirmed) {
			s.logger.ErrorContext(ctx, "claim confirmation rolled back",
				"request_id", requestcontext.RequestID(ctx),
				"claim_id", claimID,
				"error", err,
			)
		}
		var coded *dErrors.Error
		if !errors.As(err, &coded) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to confirm claim")
		}
		return nil, err
	}

	span.SetAttributes(attribute.String("claim.score", score.String()))
	s.logger.InfoContext(ctx, "claim confirmed",
		"request_id", requestcontext.RequestID(ctx),
		"claim_id", claimID,
		"region_id", confirmed.RegionID,
		"score", score.String(),
	)
	return &Confirmation{
		ClaimID:       confirmed.ID,
		Status:        confirmed.Status,
		VerifiedValue: verified,
		Score:         score,
		ConfirmedAt:   *confirmed.ConfirmedAt,
	}, nil
}

func (s *Service) verify(ctx context.Context, txReference string) (decimal.Decimal, error) {
	verifyCtx, cancel := context.WithTimeout(ctx, s.verifyTimeout)
	defer cancel()

	amount, err := s.verifier.FetchVerifiedAmount(verifyCtx, txReference)
	if err != nil {
		category := "unknown"
		if ve, ok := chain.AsVerificationError(err); ok {
			category = string(ve.Category)
		}
		s.logger.WarnContext(ctx, "transaction verification failed",
			"request_id", requestcontext.RequestID(ctx),
			"tx_reference", txReference,
			"category", category,
			"retryable", chain.IsRetryable(err),
			"error", err,
		)
		return decimal.Zero, dErrors.Wrap(err, dErrors.CodeVerificationFailed, "transaction verification failed ("+category+")")
	}
	if amount.IsNegative() {
		return decimal.Zero, dErrors.New(dErrors.CodeVerificationFailed, "ledger reported a negative amount")
	}
	return amount, nil
}

func (s *Service) appendConfirmed(ctx context.Context, c *models.Claim) error {
	if s.outbox == nil {
		return nil
	}
	evt, err := outboxmodels.NewEvent(outboxmodels.AggregateClaim, c.ID.String(), outboxmodels.EventClaimConfirmed,
		outboxmodels.ClaimConfirmed{
			ClaimID:       int64(c.ID),
			ApplicationID: int64(c.ApplicationID),
			UserAddress:   string(c.UserAddress),
			RegionID:      int64(c.RegionID),
			TxReference:   c.TxReference,
			VerifiedValue: c.VerifiedValue.String(),
			Score:         c.Score.String(),
			ConfirmedAt:   *c.ConfirmedAt,
			RequestID:     requestcontext.RequestID(ctx),
		}, *c.ConfirmedAt)
	if err != nil {
		return err
	}
	return s.outbox.Append(ctx, evt)
}

// Get returns a claim owned by appID. Foreign and missing claims are
// indistinguishable.
func (s *Service) Get(ctx context.Context, appID id.ApplicationID, claimID id.ClaimID) (*models.Claim, error) {
	c, err := s.store.FindOwned(ctx, claimID, appID)
	if err != nil {
		return nil, s.translateLookupError(err)
	}
	return c, nil
}

// History lists every confirmed claim of the address that made claimID,
// newest first.
func (s *Service) History(ctx context.Context, claimID id.ClaimID) (id.UserAddress, []*models.Claim, error) {
	base, err := s.store.FindByID(ctx, claimID)
	if err != nil {
		return "", nil, s.translateLookupError(err)
	}
	claims, err := s.store.ListConfirmedByAddress(ctx, base.UserAddress)
	if err != nil {
		return "", nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list claims")
	}
	return base.UserAddress, claims, nil
}

func (s *Service) translateLookupError(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "claim not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load claim")
}
