package handler

import (
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"geoscore/internal/chain"
	chainmocks "geoscore/internal/chain/mocks"
	"geoscore/internal/claim/service"
	claimstore "geoscore/internal/claim/store"
	regionservice "geoscore/internal/region/service"
	regionstore "geoscore/internal/region/store"
	scoreservice "geoscore/internal/score/service"
	scorestore "geoscore/internal/score/store"
	id "geoscore/pkg/domain"
	"geoscore/pkg/platform/tx"
	"geoscore/pkg/testutil"
)

type fixture struct {
	router   http.Handler
	verifier *chainmocks.MockVerifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	verifier := chainmocks.NewMockVerifier(gomock.NewController(t))
	runner := tx.NewMemoryRunner()
	svc := service.New(
		claimstore.NewInMemory(),
		regionservice.New(regionstore.NewInMemory(), regionservice.WithLogger(logger)),
		verifier,
		scoreservice.New(scorestore.NewInMemory(), scoreservice.WithLogger(logger)),
		runner,
		service.WithLogger(logger),
	)
	h := New(svc, logger)
	r := chi.NewRouter()
	h.RegisterApplicationRoutes(r)
	h.RegisterPublic(r)
	return &fixture{router: r, verifier: verifier}
}

func (f *fixture) do(t *testing.T, app id.ApplicationID, method, path string, body any) *http.Request {
	t.Helper()
	var req *http.Request
	if body == nil {
		req = testutil.NewRequest(t, method, path)
	} else {
		req = testutil.NewJSONRequest(t, method, path, body)
	}
	return testutil.WithApplication(req, app)
}

func TestStartConfirmAndRead(t *testing.T) {
	f := newFixture(t)

	rec := testutil.DoRequest(f.router, f.do(t, 1, http.MethodPost, "/v1/geo/start", map[string]any{
		"userAddress": "0xA",
		"cityName":    "Istanbul",
		"countryCode": "tr",
		"meta":        map[string]string{"source": "sdk"},
	}))
	testutil.AssertStatus(t, rec, http.StatusCreated)
	started := testutil.UnmarshalResponse[startResponse](t, rec)
	assert.Equal(t, "PENDING", started.Status)
	assert.Equal(t, "Istanbul", started.City.Name)
	assert.Equal(t, "TR", started.City.CountryCode)
	assert.Equal(t, "IST", started.City.Code)

	f.verifier.EXPECT().FetchVerifiedAmount(gomock.Any(), "Dg42").Return(decimal.NewFromInt(42), nil)

	rec = testutil.DoRequest(f.router, f.do(t, 1, http.MethodPost, "/v1/geo/confirm", map[string]any{
		"geoTxId":  started.GeoTxID,
		"txDigest": "Dg42",
	}))
	testutil.AssertStatusOK(t, rec)
	testutil.AssertJSONContains(t, rec, "status", "CONFIRMED")
	testutil.AssertDecimalField(t, rec, "txScore", "42")
	testutil.AssertDecimalField(t, rec, "verifiedValue", "42.0")

	rec = testutil.DoRequest(f.router, f.do(t, 1, http.MethodGet, "/v1/geo/claims/1", nil))
	testutil.AssertStatusOK(t, rec)
	claim := testutil.UnmarshalResponse[map[string]any](t, rec)
	assert.Equal(t, "Dg42", (*claim)["txDigest"])
	assert.Equal(t, map[string]any{"source": "sdk"}, (*claim)["meta"])

	rec = testutil.DoRequest(f.router, testutil.NewRequest(t, http.MethodGet, "/v1/geo/claims/1/history"))
	testutil.AssertStatusOK(t, rec)
	history := testutil.UnmarshalResponse[historyResponse](t, rec)
	assert.Equal(t, "0xA", history.UserAddress)
	require.Len(t, history.Transactions, 1)
	assert.Equal(t, "Dg42", history.Transactions[0].Hash)
}

func TestConfirmErrorStatuses(t *testing.T) {
	f := newFixture(t)
	rec := testutil.DoRequest(f.router, f.do(t, 1, http.MethodPost, "/v1/geo/start", map[string]any{
		"userAddress": "0xA", "cityName": "Lisbon", "countryCode": "PT",
	}))
	testutil.AssertStatus(t, rec, http.StatusCreated)

	t.Run("foreign claim is not found", func(t *testing.T) {
		rec := testutil.DoRequest(f.router, f.do(t, 2, http.MethodPost, "/v1/geo/confirm", map[string]any{
			"geoTxId": 1, "txDigest": "Dg1",
		}))
		testutil.AssertStatusAndError(t, rec, http.StatusNotFound, "not_found")
	})

	t.Run("missing digest is a validation error", func(t *testing.T) {
		rec := testutil.DoRequest(f.router, f.do(t, 1, http.MethodPost, "/v1/geo/confirm", map[string]any{
			"geoTxId": 1,
		}))
		testutil.AssertStatusAndError(t, rec, http.StatusBadRequest, "validation_error")
	})

	t.Run("ledger failure is a bad gateway", func(t *testing.T) {
		f.verifier.EXPECT().FetchVerifiedAmount(gomock.Any(), "DgBad").
			Return(decimal.Zero, chain.NewVerificationError(chain.ErrorNotFound, "DgBad", "unknown transaction", nil))
		rec := testutil.DoRequest(f.router, f.do(t, 1, http.MethodPost, "/v1/geo/confirm", map[string]any{
			"geoTxId": 1, "txDigest": "DgBad",
		}))
		testutil.AssertStatusAndError(t, rec, http.StatusBadGateway, "verification_failed")
	})

	t.Run("second confirmation conflicts", func(t *testing.T) {
		f.verifier.EXPECT().FetchVerifiedAmount(gomock.Any(), "DgOK").Return(decimal.NewFromInt(1), nil)
		rec := testutil.DoRequest(f.router, f.do(t, 1, http.MethodPost, "/v1/geo/confirm", map[string]any{
			"geoTxId": 1, "txDigest": "DgOK",
		}))
		testutil.AssertStatusOK(t, rec)

		rec = testutil.DoRequest(f.router, f.do(t, 1, http.MethodPost, "/v1/geo/confirm", map[string]any{
			"geoTxId": 1, "txDigest": "DgOK",
		}))
		testutil.AssertStatusAndError(t, rec, http.StatusConflict, "already_confirmed")
	})
}

func TestStartWithLocationWithoutRegionsIsNotFound(t *testing.T) {
	f := newFixture(t)
	rec := testutil.DoRequest(f.router, f.do(t, 1, http.MethodPost, "/v1/geo/start-with-location", map[string]any{
		"userAddress": "0xA", "latitude": 41.0, "longitude": 29.0,
	}))
	testutil.AssertStatusAndError(t, rec, http.StatusNotFound, "not_found")
}

func TestMalformedBodyIsBadRequest(t *testing.T) {
	f := newFixture(t)
	req := testutil.WithApplication(testutil.NewRequestWithBody(t, http.MethodPost, "/v1/geo/start", "{not json"), 1)
	rec := testutil.DoRequest(f.router, req)
	testutil.AssertStatusAndError(t, rec, http.StatusBadRequest, "bad_request")
}

func TestStartUsesRequestTime(t *testing.T) {
	f := newFixture(t)
	pinned := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

	req := f.do(t, 1, http.MethodPost, "/v1/geo/start", map[string]any{
		"userAddress": "0xB", "cityName": "Porto", "countryCode": "PT",
	})
	rec := testutil.DoRequest(f.router, testutil.WithRequestTime(req, pinned))
	testutil.AssertStatus(t, rec, http.StatusCreated)
	started := testutil.UnmarshalResponse[startResponse](t, rec)
	assert.True(t, pinned.Equal(started.CreatedAt))
}
