package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	regionmodels "geoscore/internal/region/models"
	"geoscore/internal/risk/service"
	id "geoscore/pkg/domain"
	"geoscore/pkg/platform/httputil"
	"geoscore/pkg/requestcontext"
)

// Service defines the region reports exposed over HTTP.
type Service interface {
	RegionSummary(ctx context.Context, regionID id.RegionID) (*service.RegionSummary, error)
	AddressStatuses(ctx context.Context, regionID id.RegionID) ([]service.AddressStatus, error)
	MapRegions(ctx context.Context) ([]service.MapRegion, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the public reporting routes.
func (h *Handler) Register(r chi.Router) {
	r.Get("/v1/regions/{id}/summary", h.HandleSummary)
	r.Get("/v1/regions/{id}/addresses", h.HandleAddresses)
	r.Get("/v1/map/regions", h.HandleMap)
}

type summaryResponse struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	Code         string  `json:"code"`
	Region       string  `json:"region"`
	Transactions int64   `json:"transactions"`
	RiskRate     float64 `json:"risk_rate"`
}

type addressResponse struct {
	ID       int64           `json:"id"`
	Address  string          `json:"address"`
	TxCount  int64           `json:"tx_count"`
	Score    decimal.Decimal `json:"score"`
	RiskRate float64         `json:"risk_rate"`
	Status   string          `json:"status"`
}

type mapRegionResponse struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	Region       string          `json:"region"`
	Code         string          `json:"code"`
	Transactions int64           `json:"transactions"`
	Score        decimal.Decimal `json:"score"`
	Lat          *float64        `json:"lat"`
	Lng          *float64        `json:"lng"`
}

// HandleSummary handles GET /v1/regions/{id}/summary.
func (h *Handler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	regionID, err := id.ParseRegionID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	summary, err := h.service.RegionSummary(ctx, regionID)
	if err != nil {
		h.logFailure(ctx, "region summary failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, summaryResponse{
		ID:           int64(summary.Region.ID),
		Name:         summary.Region.Name,
		Code:         summary.Region.Code(),
		Region:       displayRegion(summary.Region),
		Transactions: summary.Transactions,
		RiskRate:     summary.RiskRate,
	})
}

// HandleAddresses handles GET /v1/regions/{id}/addresses.
func (h *Handler) HandleAddresses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	regionID, err := id.ParseRegionID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	statuses, err := h.service.AddressStatuses(ctx, regionID)
	if err != nil {
		h.logFailure(ctx, "address statuses failed", err)
		httputil.WriteError(w, err)
		return
	}
	resp := make([]addressResponse, 0, len(statuses))
	for _, st := range statuses {
		resp = append(resp, addressResponse{
			ID:       int64(st.FirstClaimID),
			Address:  string(st.UserAddress),
			TxCount:  st.TxCount,
			Score:    st.Score,
			RiskRate: st.RiskRate,
			Status:   st.Status,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// HandleMap handles GET /v1/map/regions.
func (h *Handler) HandleMap(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entries, err := h.service.MapRegions(ctx)
	if err != nil {
		h.logFailure(ctx, "map listing failed", err)
		httputil.WriteError(w, err)
		return
	}
	resp := make([]mapRegionResponse, 0, len(entries))
	for _, e := range entries {
		item := mapRegionResponse{
			ID:           int64(e.Region.ID),
			Name:         e.Region.Name,
			Region:       e.Region.CountryCode,
			Code:         e.Region.Code(),
			Transactions: e.Transactions,
			Score:        e.Score,
		}
		if c := e.Region.Center; c != nil {
			lat, lng := c.Lat, c.Lon
			item.Lat, item.Lng = &lat, &lng
		}
		resp = append(resp, item)
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) logFailure(ctx context.Context, msg string, err error) {
	h.logger.WarnContext(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
}

// displayRegion prefers the administrative region name over the country.
func displayRegion(r *regionmodels.Region) string {
	if r.RegionName != "" {
		return r.RegionName
	}
	return r.CountryCode
}
