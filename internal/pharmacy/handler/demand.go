package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pharmatrack/pharmatrack-backend/internal/pharmacy/service"
	"github.com/pharmatrack/pharmatrack-backend/pkg/errors"
	"github.com/pharmatrack/pharmatrack-backend/pkg/httputil"
	"github.com/pharmatrack/pharmatrack-backend/pkg/logger"
)

// DemandHandler exposes the demand heuristics. Responses here are raw JSON
// bodies rather than the enveloped form because downstream dashboards consume
// these fields directly.
type DemandHandler struct {
	service *service.DemandService
	logger  *logger.Logger
}

// NewDemandHandler creates a new demand handler
func NewDemandHandler(svc *service.DemandService, log *logger.Logger) *DemandHandler {
	return &DemandHandler{
		service: svc,
		logger:  log,
	}
}

type detectAnomalyRequest struct {
	ItemID    string `json:"item_id" validate:"required"`
	DoctorID  string `json:"doctor_id"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
	RequestID string `json:"request_id"`
}

// PredictDemand predicts demand for an item
func (h *DemandHandler) PredictDemand(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "id")
	daysAhead, _ := strconv.Atoi(r.URL.Query().Get("days_ahead"))

	prediction, err := h.service.PredictDemand(r.Context(), itemID, daysAhead)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.RawJSON(w, http.StatusOK, prediction)
}

// OptimalReorder suggests a reorder quantity for an item
func (h *DemandHandler) OptimalReorder(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "id")

	suggestion, err := h.service.OptimalReorder(r.Context(), itemID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.RawJSON(w, http.StatusOK, suggestion)
}

// DetectAnomaly scores a hypothetical or existing request against history
func (h *DemandHandler) DetectAnomaly(w http.ResponseWriter, r *http.Request) {
	var body detectAnomalyRequest
	if err := httputil.DecodeJSON(r, &body); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(body); err != nil {
		httputil.Error(w, err)
		return
	}

	report, err := h.service.DetectAnomaly(r.Context(), body.ItemID, body.DoctorID, body.Quantity, body.RequestID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.RawJSON(w, http.StatusOK, report)
}

// TrainModels refits predictions for all items
func (h *DemandHandler) TrainModels(w http.ResponseWriter, r *http.Request) {
	results, err := h.service.TrainModels(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.RawJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
		"trained": len(results),
	})
}

// ListAnomalies lists persisted anomaly findings
func (h *DemandHandler) ListAnomalies(w http.ResponseWriter, r *http.Request) {
	unresolvedOnly := r.URL.Query().Get("unresolved") == "true"
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	findings, err := h.service.ListAnomalies(r.Context(), unresolvedOnly, limit)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, findings)
}

// ResolveAnomaly marks a finding as reviewed
func (h *DemandHandler) ResolveAnomaly(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		httputil.Error(w, errors.MissingFields("id"))
		return
	}

	actorID := httputil.GetUserID(r.Context())
	actorName := httputil.GetUserName(r.Context())

	finding, err := h.service.ResolveAnomaly(r.Context(), id, actorID, actorName)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, finding)
}
