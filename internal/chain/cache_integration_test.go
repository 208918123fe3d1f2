//go:build integration

package chain_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"geoscore/internal/chain"
	"geoscore/internal/chain/mocks"
	"geoscore/pkg/testutil/containers"
)

type CachedVerifierIntegrationSuite struct {
	suite.Suite
	redis *containers.RedisContainer
}

func TestCachedVerifierIntegrationSuite(t *testing.T) {
	suite.Run(t, new(CachedVerifierIntegrationSuite))
}

func (s *CachedVerifierIntegrationSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
}

func (s *CachedVerifierIntegrationSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *CachedVerifierIntegrationSuite) TestRoundTripsThroughRedis() {
	ctx := context.Background()
	ctrl := gomock.NewController(s.T())
	next := mocks.NewMockVerifier(ctrl)
	next.EXPECT().FetchVerifiedAmount(gomock.Any(), "Dg1").Return(decimal.RequireFromString("1234.5"), nil).Times(1)

	v := chain.NewCachedVerifier(next, s.redis.Client, chain.WithCacheTTL(time.Minute))

	first, err := v.FetchVerifiedAmount(ctx, "Dg1")
	s.Require().NoError(err)
	second, err := v.FetchVerifiedAmount(ctx, "Dg1")
	s.Require().NoError(err)
	s.True(first.Equal(second))

	ttl, err := s.redis.Client.TTL(ctx, "chain:amount:0x2::sui::SUI:Dg1").Result()
	s.Require().NoError(err)
	s.Greater(ttl, time.Duration(0))
	s.LessOrEqual(ttl, time.Minute)
}
