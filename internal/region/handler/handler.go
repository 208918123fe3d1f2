package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"geoscore/internal/region/models"
	"geoscore/internal/region/seed"
	id "geoscore/pkg/domain"
	"geoscore/pkg/platform/httputil"
	"geoscore/pkg/requestcontext"
)

const maxSeedBytes = 4 << 20

// Service defines the region operations exposed over HTTP.
type Service interface {
	Get(ctx context.Context, regionID id.RegionID) (*models.Region, error)
	BulkLoad(ctx context.Context, seeds []models.Seed) (int, error)
}

// Handler serves region lookups and the operator bulk-load endpoint.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the public region routes.
func (h *Handler) Register(r chi.Router) {
	r.Get("/v1/regions/{id}", h.HandleGet)
}

// RegisterAdmin mounts operator routes; callers wrap r with admin auth.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/admin/regions", h.HandleBulkLoad)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	regionID, err := id.ParseRegionID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	region, err := h.service.Get(ctx, regionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRegionResponse(region))
}

// HandleBulkLoad accepts a YAML or JSON region list.
func (h *Handler) HandleBulkLoad(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	seeds, err := seed.Parse(io.LimitReader(r.Body, maxSeedBytes))
	if err != nil {
		h.logger.WarnContext(ctx, "invalid region list",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	n, err := h.service.BulkLoad(ctx, seeds)
	if err != nil {
		h.logger.ErrorContext(ctx, "region bulk load failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int{"loaded": n})
}

type regionResponse struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	CountryCode string   `json:"countryCode"`
	Region      string   `json:"region,omitempty"`
	Code        string   `json:"code"`
	Lat         *float64 `json:"lat,omitempty"`
	Lng         *float64 `json:"lng,omitempty"`
}

func toRegionResponse(r *models.Region) regionResponse {
	resp := regionResponse{
		ID:          int64(r.ID),
		Name:        r.Name,
		CountryCode: r.CountryCode,
		Region:      r.RegionName,
		Code:        r.Code(),
	}
	if r.Center != nil {
		lat, lng := r.Center.Lat, r.Center.Lon
		resp.Lat, resp.Lng = &lat, &lng
	}
	return resp
}
