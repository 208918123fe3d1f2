package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"geoscore/internal/claim/models"
	"geoscore/internal/claim/service"
	regionmodels "geoscore/internal/region/models"
	id "geoscore/pkg/domain"
	"geoscore/pkg/platform/httputil"
	"geoscore/pkg/requestcontext"
)

// Service defines the claim operations exposed over HTTP.
type Service interface {
	Start(ctx context.Context, appID id.ApplicationID, req *models.OpenRequest) (*service.Started, error)
	StartWithLocation(ctx context.Context, appID id.ApplicationID, req *models.OpenWithLocationRequest) (*service.Started, error)
	Confirm(ctx context.Context, appID id.ApplicationID, claimID id.ClaimID, txReference string) (*service.Confirmation, error)
	Get(ctx context.Context, appID id.ApplicationID, claimID id.ClaimID) (*models.Claim, error)
	History(ctx context.Context, claimID id.ClaimID) (id.UserAddress, []*models.Claim, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterApplicationRoutes mounts the routes that act on behalf of an
// application; callers wrap r with application auth.
func (h *Handler) RegisterApplicationRoutes(r chi.Router) {
	r.Post("/v1/geo/start", h.HandleStart)
	r.Post("/v1/geo/start-with-location", h.HandleStartWithLocation)
	r.Post("/v1/geo/confirm", h.HandleConfirm)
	r.Get("/v1/geo/claims/{id}", h.HandleGet)
}

// RegisterPublic mounts the unauthenticated reporting routes.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Get("/v1/geo/claims/{id}/history", h.HandleHistory)
}

type cityResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	CountryCode string `json:"countryCode"`
	Region      string `json:"region,omitempty"`
	Code        string `json:"code"`
}

type startResponse struct {
	GeoTxID   int64        `json:"geoTxId"`
	Status    string       `json:"status"`
	CreatedAt time.Time    `json:"createdAt"`
	City      cityResponse `json:"city"`
}

type confirmResponse struct {
	GeoTxID       int64           `json:"geoTxId"`
	Status        string          `json:"status"`
	TxScore       decimal.Decimal `json:"txScore"`
	VerifiedValue decimal.Decimal `json:"verifiedValue"`
	ConfirmedAt   time.Time       `json:"confirmedAt"`
}

type claimResponse struct {
	GeoTxID       int64            `json:"geoTxId"`
	UserAddress   string           `json:"userAddress"`
	RegionID      int64            `json:"regionId"`
	Status        string           `json:"status"`
	TxDigest      string           `json:"txDigest,omitempty"`
	VerifiedValue *decimal.Decimal `json:"verifiedValue,omitempty"`
	TxScore       *decimal.Decimal `json:"txScore,omitempty"`
	Meta          json.RawMessage  `json:"meta,omitempty"`
	CreatedAt     time.Time        `json:"createdAt"`
	ConfirmedAt   *time.Time       `json:"confirmedAt,omitempty"`
}

type historyEntry struct {
	ID        int64           `json:"id"`
	Hash      string          `json:"hash"`
	Score     decimal.Decimal `json:"score"`
	CreatedAt time.Time       `json:"created_at"`
}

type historyResponse struct {
	UserAddress  string         `json:"userAddress"`
	Transactions []historyEntry `json:"transactions"`
}

// HandleStart handles POST /v1/geo/start.
func (h *Handler) HandleStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.OpenRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	started, err := h.service.Start(ctx, requestcontext.ApplicationID(ctx), req)
	if err != nil {
		h.logFailure(ctx, "claim start failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toStartResponse(started))
}

// HandleStartWithLocation handles POST /v1/geo/start-with-location.
func (h *Handler) HandleStartWithLocation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.OpenWithLocationRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	started, err := h.service.StartWithLocation(ctx, requestcontext.ApplicationID(ctx), req)
	if err != nil {
		h.logFailure(ctx, "claim start with location failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toStartResponse(started))
}

// HandleConfirm handles POST /v1/geo/confirm.
func (h *Handler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.ConfirmRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	conf, err := h.service.Confirm(ctx, requestcontext.ApplicationID(ctx), id.ClaimID(req.ClaimID), req.TxDigest)
	if err != nil {
		h.logFailure(ctx, "claim confirmation failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, confirmResponse{
		GeoTxID:       int64(conf.ClaimID),
		Status:        string(conf.Status),
		TxScore:       conf.Score,
		VerifiedValue: conf.VerifiedValue,
		ConfirmedAt:   conf.ConfirmedAt,
	})
}

// HandleGet handles GET /v1/geo/claims/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claimID, err := id.ParseClaimID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	c, err := h.service.Get(ctx, requestcontext.ApplicationID(ctx), claimID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toClaimResponse(c))
}

// HandleHistory handles GET /v1/geo/claims/{id}/history.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claimID, err := id.ParseClaimID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	addr, claims, err := h.service.History(ctx, claimID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	resp := historyResponse{UserAddress: string(addr), Transactions: make([]historyEntry, 0, len(claims))}
	for _, c := range claims {
		entry := historyEntry{ID: int64(c.ID), Hash: c.TxReference, Score: c.Score}
		if c.ConfirmedAt != nil {
			entry.CreatedAt = *c.ConfirmedAt
		}
		resp.Transactions = append(resp.Transactions, entry)
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) logFailure(ctx context.Context, msg string, err error) {
	h.logger.WarnContext(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"application_id", requestcontext.ApplicationID(ctx),
		"error", err,
	)
}

func toStartResponse(started *service.Started) startResponse {
	return startResponse{
		GeoTxID:   int64(started.Claim.ID),
		Status:    string(started.Claim.Status),
		CreatedAt: started.Claim.CreatedAt,
		City:      toCityResponse(started.Region),
	}
}

func toCityResponse(r *regionmodels.Region) cityResponse {
	return cityResponse{
		ID:          int64(r.ID),
		Name:        r.Name,
		CountryCode: r.CountryCode,
		Region:      r.RegionName,
		Code:        r.Code(),
	}
}

func toClaimResponse(c *models.Claim) claimResponse {
	resp := claimResponse{
		GeoTxID:     int64(c.ID),
		UserAddress: string(c.UserAddress),
		RegionID:    int64(c.RegionID),
		Status:      string(c.Status),
		TxDigest:    c.TxReference,
		Meta:        c.Meta,
		CreatedAt:   c.CreatedAt,
		ConfirmedAt: c.ConfirmedAt,
	}
	if c.IsConfirmed() {
		verified, score := c.VerifiedValue, c.Score
		resp.VerifiedValue, resp.TxScore = &verified, &score
	}
	return resp
}
