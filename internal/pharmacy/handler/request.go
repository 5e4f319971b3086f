package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pharmatrack/pharmatrack-backend/internal/pharmacy/repository"
	"github.com/pharmatrack/pharmatrack-backend/internal/pharmacy/service"
	"github.com/pharmatrack/pharmatrack-backend/pkg/httputil"
	"github.com/pharmatrack/pharmatrack-backend/pkg/logger"
	"github.com/pharmatrack/pharmatrack-backend/pkg/permissions"
)

// RequestHandler handles medication request endpoints
type RequestHandler struct {
	service *service.LifecycleService
	logger  *logger.Logger
}

// NewRequestHandler creates a new request handler
func NewRequestHandler(svc *service.LifecycleService, log *logger.Logger) *RequestHandler {
	return &RequestHandler{
		service: svc,
		logger:  log,
	}
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

// Create submits a new medication request
func (h *RequestHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input service.CreateRequestInput
	if err := httputil.DecodeJSON(r, &input); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(input); err != nil {
		httputil.Error(w, err)
		return
	}

	doctorID := httputil.GetUserID(r.Context())
	doctorName := httputil.GetUserName(r.Context())

	req, err := h.service.CreateRequest(r.Context(), doctorID, doctorName, input)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, req)
}

// List lists requests. Doctors only see their own; reviewers see everything.
func (h *RequestHandler) List(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))

	filter := repository.RequestFilter{
		Status:   r.URL.Query().Get("status"),
		ItemID:   r.URL.Query().Get("item_id"),
		Priority: r.URL.Query().Get("priority"),
		DoctorID: r.URL.Query().Get("doctor_id"),
	}

	role := httputil.GetUserRole(r.Context())
	if !permissions.Allows(role, permissions.ActionRequestReview) {
		filter.DoctorID = httputil.GetUserID(r.Context())
	}

	requests, total, err := h.service.ListRequests(r.Context(), filter, page, perPage)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	if page < 1 {
		page = 1
	}
	totalPages := int(total) / perPage
	if int(total)%perPage > 0 {
		totalPages++
	}

	httputil.JSONWithMeta(w, http.StatusOK, requests, &httputil.Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages,
	})
}

// Get gets a request by ID
func (h *RequestHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	req, err := h.service.GetRequest(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, req)
}

// Approve approves a pending request
func (h *RequestHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	approverID := httputil.GetUserID(r.Context())
	approverName := httputil.GetUserName(r.Context())

	req, err := h.service.Approve(r.Context(), id, approverID, approverName)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, req)
}

// Reject rejects a pending request
func (h *RequestHandler) Reject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body rejectRequest
	if err := httputil.DecodeJSON(r, &body); err != nil {
		httputil.Error(w, err)
		return
	}

	reviewerID := httputil.GetUserID(r.Context())
	reviewerName := httputil.GetUserName(r.Context())

	req, err := h.service.Reject(r.Context(), id, reviewerID, reviewerName, body.Reason)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, req)
}

// Cancel withdraws a pending request
func (h *RequestHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	actorID := httputil.GetUserID(r.Context())
	actorName := httputil.GetUserName(r.Context())

	req, err := h.service.Cancel(r.Context(), id, actorID, actorName)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, req)
}
