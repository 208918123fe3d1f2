package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	claimmodels "geoscore/internal/claim/models"
	claimstore "geoscore/internal/claim/store"
	regionmodels "geoscore/internal/region/models"
	regionservice "geoscore/internal/region/service"
	regionstore "geoscore/internal/region/store"
	"geoscore/internal/risk/service"
	scoreservice "geoscore/internal/score/service"
	scorestore "geoscore/internal/score/store"
	id "geoscore/pkg/domain"
	"geoscore/pkg/testutil"
)

type fixture struct {
	router  http.Handler
	regions *regionservice.Service
	scores  *scoreservice.Service
	claims  *claimstore.InMemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{
		regions: regionservice.New(regionstore.NewInMemory(), regionservice.WithLogger(logger)),
		scores:  scoreservice.New(scorestore.NewInMemory(), scoreservice.WithLogger(logger)),
		claims:  claimstore.NewInMemory(),
	}
	r := chi.NewRouter()
	New(service.New(f.regions, f.scores, f.claims, service.WithLogger(logger)), logger).Register(r)
	f.router = r
	return f
}

func (f *fixture) confirm(t *testing.T, addr id.UserAddress, regionID id.RegionID, score int64, at time.Time) {
	t.Helper()
	ctx := context.Background()
	c := &claimmodels.Claim{ApplicationID: 1, UserAddress: addr, RegionID: regionID, CreatedAt: at}
	require.NoError(t, f.claims.Create(ctx, c))
	value := decimal.NewFromInt(score)
	require.NoError(t, c.Confirm("Dg"+c.ID.String(), value, value, at))
	require.NoError(t, f.claims.MarkConfirmed(ctx, c))
	require.NoError(t, f.scores.Fold(ctx, addr, regionID, value, at))
}

func TestSummary(t *testing.T) {
	f := newFixture(t)
	regionID, err := f.regions.ResolveOrCreate(context.Background(), "Istanbul", "TR", "Marmara")
	require.NoError(t, err)
	f.confirm(t, "0xa", regionID, 42, time.Now().Add(-time.Hour))

	rec := testutil.DoRequest(f.router, testutil.NewRequest(t, http.MethodGet, "/v1/regions/1/summary"))
	testutil.AssertStatusOK(t, rec)
	resp := testutil.UnmarshalResponse[summaryResponse](t, rec)
	assert.Equal(t, "Istanbul", resp.Name)
	assert.Equal(t, "IST", resp.Code)
	assert.Equal(t, "Marmara", resp.Region)
	assert.Equal(t, int64(1), resp.Transactions)
	assert.Equal(t, 50.0, resp.RiskRate)

	rec = testutil.DoRequest(f.router, testutil.NewRequest(t, http.MethodGet, "/v1/regions/9/summary"))
	testutil.AssertStatusAndError(t, rec, http.StatusNotFound, "not_found")
}

func TestAddresses(t *testing.T) {
	f := newFixture(t)
	regionID, err := f.regions.ResolveOrCreate(context.Background(), "Lisbon", "PT", "")
	require.NoError(t, err)
	f.confirm(t, "0xa", regionID, 3, time.Now().Add(-2*time.Hour))
	f.confirm(t, "0xa", regionID, 4, time.Now().Add(-time.Hour))

	rec := testutil.DoRequest(f.router, testutil.NewRequest(t, http.MethodGet, "/v1/regions/1/addresses"))
	testutil.AssertStatusOK(t, rec)
	resp := testutil.UnmarshalResponse[[]map[string]any](t, rec)
	require.Len(t, *resp, 1)
	entry := (*resp)[0]
	assert.Equal(t, float64(1), entry["id"])
	assert.Equal(t, "0xa", entry["address"])
	assert.Equal(t, float64(2), entry["tx_count"])
	assert.Equal(t, "7", entry["score"])
	assert.Equal(t, "risky", entry["status"])
}

func TestMapListsEveryRegion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lisbon, err := f.regions.ResolveOrCreate(ctx, "Lisbon", "PT", "")
	require.NoError(t, err)
	_, err = f.regions.BulkLoad(ctx, []regionmodels.Seed{{
		Key:    regionmodels.Key{Name: "Porto", CountryCode: "PT"},
		Center: &regionmodels.Coordinates{Lat: 41.15, Lon: -8.63},
	}})
	require.NoError(t, err)
	f.confirm(t, "0xa", lisbon, 5, time.Now())

	rec := testutil.DoRequest(f.router, testutil.NewRequest(t, http.MethodGet, "/v1/map/regions"))
	testutil.AssertStatusOK(t, rec)
	assert.JSONEq(t, `[
		{"id":1,"name":"Lisbon","region":"PT","code":"LIS","transactions":1,"score":"5","lat":null,"lng":null},
		{"id":2,"name":"Porto","region":"PT","code":"POR","transactions":0,"score":"0","lat":41.15,"lng":-8.63}
	]`, rec.Body.String())
}
