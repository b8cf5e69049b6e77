package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/harrier/internal/decision"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/scorecard"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	store     domain.GraphStore
	engine    *decision.Engine
	scorecard *scorecard.Service
	version   string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, store domain.GraphStore, engine *decision.Engine, sc *scorecard.Service, version string) *Handler {
	return &Handler{
		repo:      repo,
		cache:     cache,
		bus:       bus,
		store:     store,
		engine:    engine,
		scorecard: sc,
		version:   version,
	}
}

// ScoreRequest is the request body for POST /score.
type ScoreRequest struct {
	CustomerID      string         `json:"customerId"`
	ApplicationData map[string]any `json:"applicationData"`
}

// Score handles POST /score requests.
func (h *Handler) Score(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	result, err := h.engine.Score(ctx, req.CustomerID, req.ApplicationData)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// BatchScoreRequest is the request body for POST /score/batch.
type BatchScoreRequest struct {
	Applications []ScoreRequest `json:"applications"`
}

// BatchScoreItem is one result in a batch scoring response.
type BatchScoreItem struct {
	CustomerID string              `json:"customerId"`
	Result     *domain.ScoreResult `json:"result,omitempty"`
	Error      string              `json:"error,omitempty"`
}

// ScoreBatch handles POST /score/batch. Individual failures do not fail
// the batch.
func (h *Handler) ScoreBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req BatchScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if len(req.Applications) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "applications must not be empty",
		})
		return
	}

	requests := make([]struct {
		CustomerID      string
		ApplicationData map[string]any
	}, len(req.Applications))
	for i, app := range req.Applications {
		requests[i].CustomerID = app.CustomerID
		requests[i].ApplicationData = app.ApplicationData
	}

	outcomes := h.engine.ScoreBatch(ctx, requests)

	items := make([]BatchScoreItem, len(outcomes))
	for i, out := range outcomes {
		items[i].CustomerID = req.Applications[i].CustomerID
		if out.Err != nil {
			items[i].Error = out.Err.Error()
		} else {
			items[i].Result = out.Result
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"results": items,
		"count":   len(items),
	})
}

// TrainRequest is the request body for POST /train.
type TrainRequest struct {
	Samples []domain.TrainingSample `json:"samples"`
}

// Train handles POST /train requests. Training runs synchronously; the
// response carries the held-out metrics of the new model.
func (h *Handler) Train(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req TrainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	result, err := h.scorecard.Train(ctx, req.Samples)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ModelParameters handles GET /model/parameters.
func (h *Handler) ModelParameters(w http.ResponseWriter, r *http.Request) {
	record := h.scorecard.Current()
	if !record.Trained() {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "no trained model available",
		})
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// ModelImportance handles GET /model/importance.
func (h *Handler) ModelImportance(w http.ResponseWriter, r *http.Request) {
	importance, err := h.scorecard.FeatureImportance()
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"importance": importance,
	})
}

// NetworkResponse is the response for GET /customers/{id}/network.
type NetworkResponse struct {
	Customer    *domain.Node           `json:"customer"`
	Neighbors   []*domain.Node         `json:"neighbors"`
	CommunityID string                 `json:"communityId"`
	Community   *domain.CommunityStats `json:"community,omitempty"`
}

// CustomerNetwork handles GET /customers/{id}/network.
func (h *Handler) CustomerNetwork(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	customerID := chi.URLParam(r, "id")

	node, err := h.store.GetNode(ctx, customerID)
	if err != nil {
		writeError(w, err)
		return
	}

	neighbors, err := h.store.Neighbors(ctx, customerID)
	if err != nil {
		writeError(w, err)
		return
	}

	communityID, err := h.store.CommunityOf(ctx, customerID)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := NetworkResponse{
		Customer:    node,
		Neighbors:   neighbors,
		CommunityID: communityID,
	}
	if stats, err := h.store.CommunityStats(ctx, communityID); err == nil {
		resp.Community = stats
	}

	writeJSON(w, http.StatusOK, resp)
}

// ListAlerts handles GET /alerts. Optional query parameters: communityId
// filters by community, since (RFC 3339) bounds the lookback.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	since, err := parseSince(r, 24*time.Hour)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid since parameter, expected RFC 3339 timestamp",
		})
		return
	}

	communityID := r.URL.Query().Get("communityId")

	alerts, err := h.repo.ListAlerts(ctx, communityID, since)
	if err != nil {
		slog.Error("failed to list alerts", "error", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// ListReports handles GET /reports.
func (h *Handler) ListReports(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	since, err := parseSince(r, 24*time.Hour)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid since parameter, expected RFC 3339 timestamp",
		})
		return
	}

	reports, err := h.repo.ListReports(ctx, since)
	if err != nil {
		slog.Error("failed to list reports", "error", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"reports": reports,
		"count":   len(reports),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check bus health
	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// parseSince reads the since query parameter, defaulting to now-lookback.
func parseSince(r *http.Request, lookback time.Duration) (time.Time, error) {
	raw := r.URL.Query().Get("since")
	if raw == "" {
		return time.Now().UTC().Add(-lookback), nil
	}
	return time.Parse(time.RFC3339, raw)
}

// writeError maps domain error kinds to HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrUnknownEntity), errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrModelUnavailable):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrConfiguration):
		status = http.StatusUnprocessableEntity
	case domain.Retryable(err):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
	}

	writeJSON(w, status, map[string]string{
		"error": err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
