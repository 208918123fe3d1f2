package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"geoscore/internal/application/metrics"
	"geoscore/internal/application/models"
	"geoscore/internal/application/store"
	dErrors "geoscore/pkg/domain-errors"
)

type ApplicationServiceSuite struct {
	suite.Suite
	service *Service
	metrics *metrics.Metrics
	ctx     context.Context
}

func TestApplicationServiceSuite(t *testing.T) {
	suite.Run(t, new(ApplicationServiceSuite))
}

func (s *ApplicationServiceSuite) SetupTest() {
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.service = New(store.NewInMemory(),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(s.metrics),
		WithHashCost(bcrypt.MinCost),
	)
	s.ctx = context.Background()
}

func (s *ApplicationServiceSuite) TestRegister() {
	s.Run("first registration returns credentials", func() {
		reg, err := s.service.Register(s.ctx, &models.RegisterRequest{Name: "Shop", Domain: "https://shop.example.com"})
		s.Require().NoError(err)
		s.True(reg.Created)
		s.NotEmpty(reg.APIKey)
		s.Equal("shop.example.com", reg.Application.Domain)
		s.Contains(reg.Application.ExternalID, "app_")
	})

	s.Run("re-registration returns existing app without key", func() {
		reg, err := s.service.Register(s.ctx, &models.RegisterRequest{Name: "Shop 2", Domain: "SHOP.example.com"})
		s.Require().NoError(err)
		s.False(reg.Created)
		s.Empty(reg.APIKey)
		s.Equal("Shop", reg.Application.Name)
	})

	s.Equal(float64(1), testutil.ToFloat64(s.metrics.Registrations.WithLabelValues("created")))
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.Registrations.WithLabelValues("existing")))
}

func (s *ApplicationServiceSuite) TestRegisterConcurrentSameDomain() {
	const goroutines = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	ids := map[string]struct{}{}

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reg, err := s.service.Register(s.ctx, &models.RegisterRequest{Name: "Race", Domain: "race.example.com"})
			s.NoError(err)
			mu.Lock()
			defer mu.Unlock()
			if reg.Created {
				created++
			}
			ids[reg.Application.ExternalID] = struct{}{}
		}()
	}
	wg.Wait()

	s.Equal(1, created)
	s.Len(ids, 1)
}

func (s *ApplicationServiceSuite) TestRegisterValidation() {
	_, err := s.service.Register(s.ctx, &models.RegisterRequest{Domain: "x.example.com"})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ApplicationServiceSuite) TestAuthenticate() {
	reg, err := s.service.Register(s.ctx, &models.RegisterRequest{Name: "Maps", Domain: "maps.example.com"})
	s.Require().NoError(err)

	s.Run("valid credentials", func() {
		appID, err := s.service.Authenticate(s.ctx, reg.Application.ExternalID, reg.APIKey)
		s.Require().NoError(err)
		s.Equal(reg.Application.ID, appID)
	})

	s.Run("wrong key", func() {
		_, err := s.service.Authenticate(s.ctx, reg.Application.ExternalID, "loc_wrong")
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("unknown application", func() {
		_, err := s.service.Authenticate(s.ctx, "app_missing", reg.APIKey)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Equal(float64(2), testutil.ToFloat64(s.metrics.AuthFailures))
}
