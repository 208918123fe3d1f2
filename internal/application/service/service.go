package service

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"geoscore/internal/application/metrics"
	"geoscore/internal/application/models"
	"geoscore/internal/application/secrets"
	id "geoscore/pkg/domain"
	dErrors "geoscore/pkg/domain-errors"
	"geoscore/pkg/platform/sentinel"
	"geoscore/pkg/requestcontext"
)

// Store is the persistence port for applications.
type Store interface {
	CreateIfDomainAvailable(ctx context.Context, app *models.Application) (*models.Application, bool, error)
	FindByExternalID(ctx context.Context, externalID string) (*models.Application, error)
	FindByID(ctx context.Context, appID id.ApplicationID) (*models.Application, error)
}

// Registration is the outcome of Register. APIKey is only set when the
// application was created by this call.
type Registration struct {
	Application *models.Application
	APIKey      string
	Created     bool
}

// Service registers partner applications and authenticates their requests.
type Service struct {
	store    Store
	logger   *slog.Logger
	metrics  *metrics.Metrics
	hashCost int
	// dummyHash equalizes timing between unknown ids and wrong keys.
	dummyHash string
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

// WithHashCost overrides the bcrypt cost; tests use bcrypt.MinCost.
func WithHashCost(cost int) Option {
	return func(s *Service) {
		s.hashCost = cost
	}
}

func New(store Store, opts ...Option) *Service {
	s := &Service{store: store, logger: slog.Default(), hashCost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(s)
	}
	if h, err := bcrypt.GenerateFromPassword([]byte("geoscore-dummy-key"), s.hashCost); err == nil {
		s.dummyHash = string(h)
	}
	return s
}

// Register creates an application for req.Domain, or returns the existing
// one. The API key is returned only on creation.
func (s *Service) Register(ctx context.Context, req *models.RegisterRequest) (*Registration, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	apiKey, err := secrets.GenerateAPIKey()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate api key")
	}
	hash, err := secrets.Hash(apiKey, s.hashCost)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash api key")
	}

	app, created, err := s.store.CreateIfDomainAvailable(ctx, &models.Application{
		ExternalID:  secrets.NewExternalID(),
		SecretHash:  hash,
		Name:        req.Name,
		Domain:      req.Domain,
		Description: req.Description,
		CreatedAt:   requestcontext.Now(ctx),
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to register application")
	}
	s.metrics.IncrementRegistration(created)

	reg := &Registration{Application: app, Created: created}
	if created {
		reg.APIKey = apiKey
		s.logger.InfoContext(ctx, "application registered",
			"request_id", requestcontext.RequestID(ctx),
			"app_id", app.ExternalID,
			"domain", app.Domain,
		)
	}
	return reg, nil
}

// Authenticate resolves externalID/apiKey to the application id.
func (s *Service) Authenticate(ctx context.Context, externalID, apiKey string) (id.ApplicationID, error) {
	app, err := s.store.FindByExternalID(ctx, externalID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			_ = secrets.Verify(apiKey, s.dummyHash)
			s.metrics.IncrementAuthFailure()
			return 0, dErrors.New(dErrors.CodeUnauthorized, "invalid application credentials")
		}
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load application")
	}

	if err := secrets.Verify(apiKey, app.SecretHash); err != nil {
		s.metrics.IncrementAuthFailure()
		if dErrors.HasCode(err, dErrors.CodeUnauthorized) {
			return 0, dErrors.New(dErrors.CodeUnauthorized, "invalid application credentials")
		}
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify application credentials")
	}
	return app.ID, nil
}

func (s *Service) Get(ctx context.Context, appID id.ApplicationID) (*models.Application, error) {
	app, err := s.store.FindByID(ctx, appID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "application not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load application")
	}
	return app, nil
}
