// Package appauth authenticates partner applications by their public id and
// API key headers.
package appauth

import (
	"context"
	"log/slog"
	"net/http"

	id "geoscore/pkg/domain"
	dErrors "geoscore/pkg/domain-errors"
	"geoscore/pkg/platform/httputil"
	"geoscore/pkg/requestcontext"
)

const (
	HeaderAppID  = "X-App-Id"
	HeaderAPIKey = "X-Api-Key"
)

// Authenticator resolves application credentials to an application id.
type Authenticator interface {
	Authenticate(ctx context.Context, externalID, apiKey string) (id.ApplicationID, error)
}

// RequireApplication rejects requests without valid application credentials
// and stores the resolved application id in the request context.
func RequireApplication(auth Authenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			externalID := r.Header.Get(HeaderAppID)
			apiKey := r.Header.Get(HeaderAPIKey)
			if externalID == "" || apiKey == "" {
				logger.WarnContext(ctx, "unauthorized access - missing application credentials",
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing application credentials"))
				return
			}

			appID, err := auth.Authenticate(ctx, externalID, apiKey)
			if err != nil {
				if !dErrors.HasCode(err, dErrors.CodeUnauthorized) {
					logger.ErrorContext(ctx, "application authentication failed",
						"request_id", requestID,
						"error", err,
					)
					httputil.WriteError(w, err)
					return
				}
				logger.WarnContext(ctx, "unauthorized access - invalid application credentials",
					"request_id", requestID,
					"app_id", externalID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid application credentials"))
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithApplicationID(ctx, appID)))
		})
	}
}
