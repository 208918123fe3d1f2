package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"geoscore/internal/score/models"
	id "geoscore/pkg/domain"
	"geoscore/pkg/platform/httputil"
)

// Service defines the aggregate reads exposed over HTTP.
type Service interface {
	RegionAggregate(ctx context.Context, regionID id.RegionID) (*models.RegionAggregate, error)
	AddressRegionAggregate(ctx context.Context, addr id.UserAddress, regionID id.RegionID) (*models.AddressRegionAggregate, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/v1/regions/{id}/aggregate", h.HandleRegionAggregate)
	r.Get("/v1/regions/{id}/addresses/{address}/aggregate", h.HandleAddressAggregate)
}

type regionAggregateResponse struct {
	RegionID        int64           `json:"regionId"`
	TxCount         int64           `json:"txCount"`
	TotalScore      decimal.Decimal `json:"totalScore"`
	LastConfirmedAt time.Time       `json:"lastConfirmedAt"`
}

type addressAggregateResponse struct {
	UserAddress      string          `json:"userAddress"`
	RegionID         int64           `json:"regionId"`
	TxCount          int64           `json:"txCount"`
	TotalScore       decimal.Decimal `json:"totalScore"`
	FirstConfirmedAt time.Time       `json:"firstConfirmedAt"`
	LastConfirmedAt  time.Time       `json:"lastConfirmedAt"`
}

// HandleRegionAggregate handles GET /v1/regions/{id}/aggregate.
func (h *Handler) HandleRegionAggregate(w http.ResponseWriter, r *http.Request) {
	regionID, err := id.ParseRegionID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	agg, err := h.service.RegionAggregate(r.Context(), regionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, regionAggregateResponse{
		RegionID:        int64(agg.RegionID),
		TxCount:         agg.TxCount,
		TotalScore:      agg.TotalScore,
		LastConfirmedAt: agg.LastConfirmedAt,
	})
}

// HandleAddressAggregate handles GET /v1/regions/{id}/addresses/{address}/aggregate.
func (h *Handler) HandleAddressAggregate(w http.ResponseWriter, r *http.Request) {
	regionID, err := id.ParseRegionID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	addr, err := id.ParseUserAddress(chi.URLParam(r, "address"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	agg, err := h.service.AddressRegionAggregate(r.Context(), addr, regionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, addressAggregateResponse{
		UserAddress:      string(agg.UserAddress),
		RegionID:         int64(agg.RegionID),
		TxCount:          agg.TxCount,
		TotalScore:       agg.TotalScore,
		FirstConfirmedAt: agg.FirstConfirmedAt,
		LastConfirmedAt:  agg.LastConfirmedAt,
	})
}
