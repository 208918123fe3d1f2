package chain

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"geoscore/internal/chain/metrics"
	"geoscore/pkg/platform/circuit"
)

type SuiVerifierSuite struct {
	suite.Suite
	server   *httptest.Server
	handler  http.HandlerFunc
	requests atomic.Int32
	lastBody atomic.Value
}

func TestSuiVerifierSuite(t *testing.T) {
	suite.Run(t, new(SuiVerifierSuite))
}

func (s *SuiVerifierSuite) SetupTest() {
	s.requests.Store(0)
	s.handler = nil
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		body, _ := io.ReadAll(r.Body)
		s.lastBody.Store(body)
		s.handler(w, r)
	}))
}

func (s *SuiVerifierSuite) TearDownTest() {
	s.server.Close()
}

func (s *SuiVerifierSuite) respond(status int, body string) {
	s.handler = func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func (s *SuiVerifierSuite) verifier(opts ...SuiOption) *SuiVerifier {
	return NewSuiVerifier(s.server.URL, opts...)
}

func (s *SuiVerifierSuite) requireCategory(err error, want ErrorCategory) {
	s.Require().Error(err)
	ve, ok := AsVerificationError(err)
	s.Require().True(ok, "expected VerificationError, got %T", err)
	s.Equal(want, ve.Category)
}

func (s *SuiVerifierSuite) TestSendsGetTransactionBlockRequest() {
	s.respond(http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":{"digest":"Dg1","balanceChanges":[]}}`)

	_, err := s.verifier().FetchVerifiedAmount(context.Background(), "Dg1")
	s.Require().NoError(err)

	var req struct {
		JSONRPC string            `json:"jsonrpc"`
		Method  string            `json:"method"`
		Params  []json.RawMessage `json:"params"`
	}
	s.Require().NoError(json.Unmarshal(s.lastBody.Load().([]byte), &req))
	s.Equal("2.0", req.JSONRPC)
	s.Equal("sui_getTransactionBlock", req.Method)
	s.Require().Len(req.Params, 2)
	s.JSONEq(`"Dg1"`, string(req.Params[0]))
	s.JSONEq(`{"showEffects":true,"showEvents":true,"showBalanceChanges":true}`, string(req.Params[1]))
}

func (s *SuiVerifierSuite) TestSumsAbsoluteNativeChanges() {
	s.respond(http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":{"digest":"Dg1","balanceChanges":[
		{"owner":{"AddressOwner":"0xa"},"coinType":"0x2::sui::SUI","amount":"-30"},
		{"owner":{"AddressOwner":"0xb"},"coinType":"0x2::sui::SUI","amount":"12"},
		{"owner":{"AddressOwner":"0xb"},"coinType":"0xdba3::usdc::USDC","amount":"999"}
	]}}`)

	amount, err := s.verifier().FetchVerifiedAmount(context.Background(), "Dg1")
	s.Require().NoError(err)
	s.True(decimal.NewFromInt(42).Equal(amount), "got %s", amount)
}

func (s *SuiVerifierSuite) TestMatchesZeroPaddedCoinType() {
	s.respond(http.StatusOK, `{"result":{"balanceChanges":[
		{"coinType":"0x0000000000000000000000000000000000000000000000000000000000000002::sui::SUI","amount":"-7"}
	]}}`)

	amount, err := s.verifier().FetchVerifiedAmount(context.Background(), "Dg1")
	s.Require().NoError(err)
	s.True(decimal.NewFromInt(7).Equal(amount))
}

func (s *SuiVerifierSuite) TestAcceptsNumericAmount() {
	s.respond(http.StatusOK, `{"result":{"balanceChanges":[{"coinType":"0x2::sui::SUI","amount":-5}]}}`)

	amount, err := s.verifier().FetchVerifiedAmount(context.Background(), "Dg1")
	s.Require().NoError(err)
	s.True(decimal.NewFromInt(5).Equal(amount))
}

func (s *SuiVerifierSuite) TestNoNativeChangesIsZero() {
	s.respond(http.StatusOK, `{"result":{"balanceChanges":[{"coinType":"0xdba3::usdc::USDC","amount":"10"}]}}`)

	amount, err := s.verifier().FetchVerifiedAmount(context.Background(), "Dg1")
	s.Require().NoError(err)
	s.True(amount.IsZero())
}

func (s *SuiVerifierSuite) TestMissingBalanceChangesIsZero() {
	s.respond(http.StatusOK, `{"result":{"digest":"Dg1"}}`)

	amount, err := s.verifier().FetchVerifiedAmount(context.Background(), "Dg1")
	s.Require().NoError(err)
	s.True(amount.IsZero())
}

func (s *SuiVerifierSuite) TestEntriesWithoutAmountAreSkipped() {
	s.respond(http.StatusOK, `{"result":{"balanceChanges":[{"coinType":"0x2::sui::SUI"},{"coinType":"0x2::sui::SUI","amount":"3"}]}}`)

	amount, err := s.verifier().FetchVerifiedAmount(context.Background(), "Dg1")
	s.Require().NoError(err)
	s.True(decimal.NewFromInt(3).Equal(amount))
}

func (s *SuiVerifierSuite) TestUnparseableAmountIsBadData() {
	s.respond(http.StatusOK, `{"result":{"balanceChanges":[{"coinType":"0x2::sui::SUI","amount":"lots"}]}}`)

	_, err := s.verifier().FetchVerifiedAmount(context.Background(), "Dg1")
	s.requireCategory(err, ErrorBadData)
}

func (s *SuiVerifierSuite) TestRPCErrorNotFound() {
	s.respond(http.StatusOK, `{"jsonrpc":"2.0","id":1,"error":{"code":-32602,"message":"Could not find the referenced transaction [TransactionDigest(Dg1)]."}}`)

	_, err := s.verifier().FetchVerifiedAmount(context.Background(), "Dg1")
	s.requireCategory(err, ErrorNotFound)
	s.False(IsRetryable(err))
}

func (s *SuiVerifierSuite) TestRPCErrorOtherIsBadData() {
	s.respond(http.StatusOK, `{"jsonrpc":"2.0","id":1,"error":{"code":-32602,"message":"Invalid params"}}`)

	_, err := s.verifier().FetchVerifiedAmount(context.Background(), "Dg1")
	s.requireCategory(err, ErrorBadData)
}

func (s *SuiVerifierSuite) TestMissingResultIsBadData() {
	s.respond(http.StatusOK, `{"jsonrpc":"2.0","id":1}`)

	_, err := s.verifier().FetchVerifiedAmount(context.Background(), "Dg1")
	s.requireCategory(err, ErrorBadData)
}

func (s *SuiVerifierSuite) TestMalformedJSONIsBadData() {
	s.respond(http.StatusOK, `{"result":`)

	_, err := s.verifier().FetchVerifiedAmount(context.Background(), "Dg1")
	s.requireCategory(err, ErrorBadData)
}

func (s *SuiVerifierSuite) TestStatusMapping() {
	cases := []struct {
		status int
		want   ErrorCategory
	}{
		{http.StatusTooManyRequests, ErrorRateLimited},
		{http.StatusBadGateway, ErrorProviderOutage},
		{http.StatusServiceUnavailable, ErrorProviderOutage},
		{http.StatusBadRequest, ErrorBadData},
		{http.StatusNotFound, ErrorBadData},
	}
	for _, tc := range cases {
		s.Run(http.StatusText(tc.status), func() {
			s.respond(tc.status, `{}`)
			_, err := s.verifier().FetchVerifiedAmount(context.Background(), "Dg1")
			s.requireCategory(err, tc.want)
		})
	}
}

func (s *SuiVerifierSuite) TestTimeout() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}

	_, err := s.verifier(WithTimeout(20*time.Millisecond)).FetchVerifiedAmount(context.Background(), "Dg1")
	s.requireCategory(err, ErrorTimeout)
	s.True(IsRetryable(err))
}

func (s *SuiVerifierSuite) TestBreakerFailsFastAfterOutages() {
	s.respond(http.StatusServiceUnavailable, `{}`)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	breaker := circuit.New("sui", circuit.WithFailureThreshold(2), circuit.WithProbeInterval(time.Hour))
	v := s.verifier(WithBreaker(breaker), WithMetrics(m))

	for range 2 {
		_, err := v.FetchVerifiedAmount(context.Background(), "Dg1")
		s.requireCategory(err, ErrorProviderOutage)
	}
	s.True(breaker.IsOpen())
	s.Equal(float64(1), promtestutil.ToFloat64(m.BreakerOpen))

	_, err := v.FetchVerifiedAmount(context.Background(), "Dg1")
	s.requireCategory(err, ErrorProviderOutage)
	s.Equal(int32(2), s.requests.Load(), "open breaker must not reach the node")
	s.Equal(float64(3), promtestutil.ToFloat64(m.RPCFailures.WithLabelValues("provider_outage")))
}

func (s *SuiVerifierSuite) TestBadDataDoesNotTripBreaker() {
	s.respond(http.StatusOK, `not json`)
	breaker := circuit.New("sui", circuit.WithFailureThreshold(1))
	v := s.verifier(WithBreaker(breaker))

	_, err := v.FetchVerifiedAmount(context.Background(), "Dg1")
	s.requireCategory(err, ErrorBadData)
	s.False(breaker.IsOpen())
}

func TestSuiVerifierUnreachableNode(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewSuiVerifier(url).FetchVerifiedAmount(context.Background(), "Dg1")
	require.Error(t, err)
	ve, ok := AsVerificationError(err)
	require.True(t, ok)
	assert.Equal(t, ErrorProviderOutage, ve.Category)
	assert.True(t, ve.Retryable)
}
