package testutil

import (
	"net/http"
	"time"

	id "geoscore/pkg/domain"
	"geoscore/pkg/requestcontext"
)

// WithApplication marks the request as authenticated for appID, the way the
// application auth middleware would.
func WithApplication(req *http.Request, appID id.ApplicationID) *http.Request {
	return req.WithContext(requestcontext.WithApplicationID(req.Context(), appID))
}

// WithRequestTime pins the request-scoped clock.
func WithRequestTime(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}
