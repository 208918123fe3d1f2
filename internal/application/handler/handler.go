package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"geoscore/internal/application/models"
	"geoscore/internal/application/service"
	"geoscore/pkg/platform/httputil"
	"geoscore/pkg/requestcontext"
)

// Service defines the registration operation exposed over HTTP.
type Service interface {
	Register(ctx context.Context, req *models.RegisterRequest) (*service.Registration, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the application routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/apps/register", h.HandleRegister)
}

type registerResponse struct {
	ID          int64     `json:"id"`
	AppID       string    `json:"app_id"`
	APIKey      string    `json:"api_key,omitempty"`
	Name        string    `json:"name"`
	Domain      string    `json:"domain"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	Created     bool      `json:"created"`
}

// HandleRegister handles POST /v1/apps/register. 201 on creation, 200 when
// the domain was already registered.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.RegisterRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	reg, err := h.service.Register(ctx, req)
	if err != nil {
		h.logger.ErrorContext(ctx, "application registration failed",
			"request_id", requestID,
			"domain", req.Domain,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	app := reg.Application
	status := http.StatusOK
	if reg.Created {
		status = http.StatusCreated
	}
	httputil.WriteJSON(w, status, registerResponse{
		ID:          int64(app.ID),
		AppID:       app.ExternalID,
		APIKey:      reg.APIKey,
		Name:        app.Name,
		Domain:      app.Domain,
		Description: app.Description,
		CreatedAt:   app.CreatedAt,
		Created:     reg.Created,
	})
}
