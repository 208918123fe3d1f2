package appauth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	id "geoscore/pkg/domain"
	dErrors "geoscore/pkg/domain-errors"
	"geoscore/pkg/requestcontext"
)

type stubAuth struct {
	appID id.ApplicationID
	err   error
}

func (s stubAuth) Authenticate(_ context.Context, _, _ string) (id.ApplicationID, error) {
	return s.appID, s.err
}

func TestRequireApplication(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var seen id.ApplicationID
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestcontext.ApplicationID(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	newReq := func(appID, key string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/v1/geo/start", nil)
		if appID != "" {
			req.Header.Set(HeaderAppID, appID)
		}
		if key != "" {
			req.Header.Set(HeaderAPIKey, key)
		}
		return req
	}

	t.Run("missing headers", func(t *testing.T) {
		rec := httptest.NewRecorder()
		RequireApplication(stubAuth{appID: 1}, logger)(next).ServeHTTP(rec, newReq("app_x", ""))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("bad credentials", func(t *testing.T) {
		rec := httptest.NewRecorder()
		auth := stubAuth{err: dErrors.New(dErrors.CodeUnauthorized, "invalid")}
		RequireApplication(auth, logger)(next).ServeHTTP(rec, newReq("app_x", "loc_y"))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("store failure is internal", func(t *testing.T) {
		rec := httptest.NewRecorder()
		auth := stubAuth{err: dErrors.Wrap(errors.New("db down"), dErrors.CodeInternal, "lookup failed")}
		RequireApplication(auth, logger)(next).ServeHTTP(rec, newReq("app_x", "loc_y"))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("valid credentials set application id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		RequireApplication(stubAuth{appID: 9}, logger)(next).ServeHTTP(rec, newReq("app_x", "loc_y"))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, id.ApplicationID(9), seen)
	})
}
