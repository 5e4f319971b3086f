package service

import (
	"context"

	"github.com/pharmatrack/pharmatrack-backend/internal/pharmacy/events"
	"github.com/pharmatrack/pharmatrack-backend/internal/pharmacy/repository"
	"github.com/pharmatrack/pharmatrack-backend/pkg/errors"
	"github.com/pharmatrack/pharmatrack-backend/pkg/logger"
)

// ItemStore is the inventory surface the lifecycle engine needs
type ItemStore interface {
	GetByID(ctx context.Context, id string) (*repository.InventoryItem, error)
	DecrementStock(ctx context.Context, id string, quantity int) (int, error)
	IncrementStock(ctx context.Context, id string, quantity int) (int, error)
}

// RequestStore is the request persistence surface the lifecycle engine needs
type RequestStore interface {
	Create(ctx context.Context, req *repository.Request) error
	GetByID(ctx context.Context, id string) (*repository.Request, error)
	List(ctx context.Context, filter repository.RequestFilter, page, perPage int) ([]*repository.Request, int64, error)
	MarkApproved(ctx context.Context, id, approvedBy string) (bool, error)
	MarkStatus(ctx context.Context, id, status string, note *string) (bool, error)
	Delete(ctx context.Context, id string) error
}

// AnomalyAdvisor scores a freshly created request for unusual patterns.
// Advisory only: it never blocks or fails the transition.
type AnomalyAdvisor interface {
	EvaluateRequest(ctx context.Context, req *repository.Request, item *repository.InventoryItem)
}

// CreateRequestInput carries a doctor's submission
type CreateRequestInput struct {
	ItemID      string  `json:"item_id" validate:"required"`
	Quantity    int     `json:"quantity" validate:"required,gt=0"`
	PatientID   string  `json:"patient_id" validate:"required"`
	PatientName string  `json:"patient_name" validate:"required"`
	Notes       *string `json:"notes,omitempty"`
}

// LifecycleService drives the request state machine and keeps request status
// and stock quantity consistent with each other
type LifecycleService struct {
	items     ItemStore
	requests  RequestStore
	recorder  *Recorder
	publisher *events.PharmacyEventPublisher
	advisor   AnomalyAdvisor
	logger    *logger.Logger
}

// NewLifecycleService creates a new lifecycle service. publisher and advisor
// may be nil.
func NewLifecycleService(
	items ItemStore,
	requests RequestStore,
	recorder *Recorder,
	publisher *events.PharmacyEventPublisher,
	advisor AnomalyAdvisor,
	log *logger.Logger,
) *LifecycleService {
	return &LifecycleService{
		items:     items,
		requests:  requests,
		recorder:  recorder,
		publisher: publisher,
		advisor:   advisor,
		logger:    log,
	}
}

// CreateRequest validates and persists a doctor's request. Controlled items
// always enter Pending at high priority and leave stock untouched until a
// pharmacist approves. Non-controlled items are auto-approved with an atomic
// stock decrement; when stock is insufficient nothing is persisted.
func (s *LifecycleService) CreateRequest(ctx context.Context, doctorID, doctorName string, input CreateRequestInput) (*repository.Request, error) {
	if input.Quantity <= 0 {
		return nil, errors.InvalidQuantity()
	}
	if input.ItemID == "" {
		return nil, errors.MissingFields("item_id")
	}
	if input.PatientID == "" || input.PatientName == "" {
		missing := make([]string, 0, 2)
		if input.PatientID == "" {
			missing = append(missing, "patient_id")
		}
		if input.PatientName == "" {
			missing = append(missing, "patient_name")
		}
		return nil, errors.MissingFields(missing...)
	}

	item, err := s.items.GetByID(ctx, input.ItemID)
	if err != nil {
		return nil, err
	}

	req := &repository.Request{
		ItemID:      item.ID,
		DoctorID:    doctorID,
		DoctorName:  doctorName,
		PatientID:   input.PatientID,
		PatientName: input.PatientName,
		Quantity:    input.Quantity,
		Notes:       input.Notes,
		ItemName:    item.Name,
	}

	if item.Controlled {
		req.Status = repository.StatusPending
		req.Priority = repository.PriorityHigh

		if err := s.requests.Create(ctx, req); err != nil {
			return nil, err
		}
	} else {
		// Decrement first so a failed availability check persists nothing.
		newStock, err := s.items.DecrementStock(ctx, item.ID, input.Quantity)
		if err != nil {
			return nil, err
		}

		req.Status = repository.StatusApproved
		req.Priority = repository.PriorityNormal

		if err := s.requests.Create(ctx, req); err != nil {
			// The decrement already committed; put the stock back.
			if _, compErr := s.items.IncrementStock(ctx, item.ID, input.Quantity); compErr != nil {
				s.logger.Error().Err(compErr).
					Str("item_id", item.ID).
					Int("quantity", input.Quantity).
					Msg("failed to compensate stock after request creation failure")
			}
			return nil, err
		}

		if newStock <= item.MinStock {
			item.Stock = newStock
			s.publisher.PublishLowStock(ctx, item)
		}
	}

	s.recorder.Record(ctx, repository.ActionRequestCreated, "request", req.ID, doctorID, doctorName, map[string]interface{}{
		"item_id":  item.ID,
		"quantity": req.Quantity,
		"status":   req.Status,
		"priority": req.Priority,
	})
	s.publisher.PublishRequestCreated(ctx, req, item.Name)

	if s.advisor != nil {
		s.advisor.EvaluateRequest(ctx, req, item)
	}

	return req, nil
}

// Approve transitions a pending request to Approved and decrements stock by
// the requested quantity. Approving an already approved request is a no-op
// success; a request in any other terminal state is an invalid transition.
func (s *LifecycleService) Approve(ctx context.Context, requestID, approverID, approverName string) (*repository.Request, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	switch req.Status {
	case repository.StatusApproved:
		return req, nil
	case repository.StatusRejected, repository.StatusCancelled:
		return nil, errors.InvalidTransition(req.Status)
	}

	item, err := s.items.GetByID(ctx, req.ItemID)
	if err != nil {
		return nil, err
	}

	// Insufficient stock leaves the request Pending and stock untouched.
	newStock, err := s.items.DecrementStock(ctx, req.ItemID, req.Quantity)
	if err != nil {
		return nil, err
	}

	ok, err := s.requests.MarkApproved(ctx, requestID, approverName)
	if err != nil || !ok {
		// Status write lost or failed; the decrement must not stand.
		if _, compErr := s.items.IncrementStock(ctx, req.ItemID, req.Quantity); compErr != nil {
			s.logger.Error().Err(compErr).
				Str("request_id", requestID).
				Msg("failed to compensate stock after approval failure")
		}
		if err != nil {
			return nil, err
		}
		// A concurrent reviewer got there first; report against the
		// current state.
		current, getErr := s.requests.GetByID(ctx, requestID)
		if getErr != nil {
			return nil, getErr
		}
		if current.Status == repository.StatusApproved {
			return current, nil
		}
		return nil, errors.InvalidTransition(current.Status)
	}

	approved, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, repository.ActionRequestApproved, "request", requestID, approverID, approverName, map[string]interface{}{
		"item_id":   req.ItemID,
		"quantity":  req.Quantity,
		"new_stock": newStock,
	})
	s.publisher.PublishRequestApproved(ctx, approved, item.Name, approverName, newStock)

	if newStock <= item.MinStock {
		item.Stock = newStock
		s.publisher.PublishLowStock(ctx, item)
	}

	return approved, nil
}

// Reject transitions a pending request to Rejected. Stock is never touched.
func (s *LifecycleService) Reject(ctx context.Context, requestID, reviewerID, reviewerName, reason string) (*repository.Request, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != repository.StatusPending {
		return nil, errors.InvalidTransition(req.Status)
	}

	var note *string
	if reason != "" {
		note = &reason
	}

	ok, err := s.requests.MarkStatus(ctx, requestID, repository.StatusRejected, note)
	if err != nil {
		return nil, err
	}
	if !ok {
		current, getErr := s.requests.GetByID(ctx, requestID)
		if getErr != nil {
			return nil, getErr
		}
		return nil, errors.InvalidTransition(current.Status)
	}

	rejected, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, repository.ActionRequestRejected, "request", requestID, reviewerID, reviewerName, map[string]interface{}{
		"item_id": req.ItemID,
		"reason":  reason,
	})
	s.publisher.PublishRequestRejected(ctx, rejected, rejected.ItemName, reviewerName, reason)

	return rejected, nil
}

// Cancel is the doctor-initiated withdrawal of a pending request. Cancelling
// an already cancelled request is a no-op success; any other non-pending
// state is an invalid transition. Stock is never touched.
func (s *LifecycleService) Cancel(ctx context.Context, requestID, actorID, actorName string) (*repository.Request, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	switch req.Status {
	case repository.StatusCancelled:
		return req, nil
	case repository.StatusApproved, repository.StatusRejected:
		return nil, errors.InvalidTransition(req.Status)
	}

	ok, err := s.requests.MarkStatus(ctx, requestID, repository.StatusCancelled, nil)
	if err != nil {
		return nil, err
	}
	if !ok {
		current, getErr := s.requests.GetByID(ctx, requestID)
		if getErr != nil {
			return nil, getErr
		}
		if current.Status == repository.StatusCancelled {
			return current, nil
		}
		return nil, errors.InvalidTransition(current.Status)
	}

	cancelled, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, repository.ActionRequestCancelled, "request", requestID, actorID, actorName, nil)
	s.publisher.PublishRequestCancelled(ctx, cancelled, cancelled.ItemName, actorName)

	return cancelled, nil
}

// GetRequest returns a single request
func (s *LifecycleService) GetRequest(ctx context.Context, id string) (*repository.Request, error) {
	return s.requests.GetByID(ctx, id)
}

// ListRequests lists requests matching the filter
func (s *LifecycleService) ListRequests(ctx context.Context, filter repository.RequestFilter, page, perPage int) ([]*repository.Request, int64, error) {
	return s.requests.List(ctx, filter, page, perPage)
}
