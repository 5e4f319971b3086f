package consumers

import (
	"context"
	"fmt"

	"github.com/pharmatrack/pharmatrack-backend/internal/pharmacy/repository"
	"github.com/pharmatrack/pharmatrack-backend/pkg/logger"
	"github.com/pharmatrack/pharmatrack-backend/pkg/messaging"
)

// NotificationStore persists notifications
type NotificationStore interface {
	Create(ctx context.Context, n *repository.Notification) error
}

// ReviewerDirectory resolves which users should hear about events that are
// not addressed to a single person, such as newly pending controlled
// requests and anomaly findings
type ReviewerDirectory interface {
	ReviewerIDs(ctx context.Context) ([]string, error)
}

// StaticReviewers is a fixed reviewer list, usually sourced from config
type StaticReviewers []string

// ReviewerIDs returns the configured reviewer user IDs
func (s StaticReviewers) ReviewerIDs(_ context.Context) ([]string, error) {
	return s, nil
}

// NotificationEventHandler turns broker events into in-app notifications
// (testable without RabbitMQ)
type NotificationEventHandler struct {
	store     NotificationStore
	reviewers ReviewerDirectory
	logger    *logger.Logger
}

// NewNotificationEventHandler creates a new handler
func NewNotificationEventHandler(store NotificationStore, reviewers ReviewerDirectory, log *logger.Logger) *NotificationEventHandler {
	return &NotificationEventHandler{
		store:     store,
		reviewers: reviewers,
		logger:    log,
	}
}

// HandleRequestCreated notifies pharmacists when a controlled request lands
// in their queue. Auto-approved requests stay quiet.
func (h *NotificationEventHandler) HandleRequestCreated(ctx context.Context, event *messaging.Event) error {
	var data messaging.RequestCreatedEvent
	if err := event.UnmarshalData(&data); err != nil {
		h.logger.Error().Err(err).Msg("failed to unmarshal RequestCreatedEvent")
		return err
	}

	if data.Status != repository.StatusPending {
		return nil
	}

	return h.notifyReviewers(ctx, &repository.Notification{
		Title:    "Controlled request awaiting review",
		Body:     fmt.Sprintf("Request for %d x %s needs pharmacist approval", data.Quantity, data.ItemName),
		Severity: repository.SeverityWarning,
	})
}

// HandleRequestApproved notifies the requesting doctor
func (h *NotificationEventHandler) HandleRequestApproved(ctx context.Context, event *messaging.Event) error {
	var data messaging.RequestApprovedEvent
	if err := event.UnmarshalData(&data); err != nil {
		h.logger.Error().Err(err).Msg("failed to unmarshal RequestApprovedEvent")
		return err
	}

	return h.store.Create(ctx, &repository.Notification{
		UserID:   data.DoctorID,
		Title:    "Request approved",
		Body:     fmt.Sprintf("Your request for %d x %s was approved by %s", data.Quantity, data.ItemName, data.ApprovedBy),
		Severity: repository.SeverityInfo,
	})
}

// HandleRequestRejected notifies the requesting doctor
func (h *NotificationEventHandler) HandleRequestRejected(ctx context.Context, event *messaging.Event) error {
	var data messaging.RequestRejectedEvent
	if err := event.UnmarshalData(&data); err != nil {
		h.logger.Error().Err(err).Msg("failed to unmarshal RequestRejectedEvent")
		return err
	}

	body := fmt.Sprintf("Your request for %d x %s was rejected", data.Quantity, data.ItemName)
	if data.Reason != "" {
		body += ": " + data.Reason
	}

	return h.store.Create(ctx, &repository.Notification{
		UserID:   data.DoctorID,
		Title:    "Request rejected",
		Body:     body,
		Severity: repository.SeverityWarning,
	})
}

// HandleLowStock notifies pharmacists about items at or below threshold
func (h *NotificationEventHandler) HandleLowStock(ctx context.Context, event *messaging.Event) error {
	var data messaging.LowStockEvent
	if err := event.UnmarshalData(&data); err != nil {
		h.logger.Error().Err(err).Msg("failed to unmarshal LowStockEvent")
		return err
	}

	severity := repository.SeverityWarning
	if data.Severity == "critical" {
		severity = repository.SeverityCritical
	}

	return h.notifyReviewers(ctx, &repository.Notification{
		Title:    "Low stock alert",
		Body:     fmt.Sprintf("%s is down to %d (minimum %d)", data.ItemName, data.Stock, data.MinStock),
		Severity: severity,
	})
}

// HandleAnomalyDetected notifies pharmacists about a flagged request
func (h *NotificationEventHandler) HandleAnomalyDetected(ctx context.Context, event *messaging.Event) error {
	var data messaging.AnomalyDetectedEvent
	if err := event.UnmarshalData(&data); err != nil {
		h.logger.Error().Err(err).Msg("failed to unmarshal AnomalyDetectedEvent")
		return err
	}

	return h.notifyReviewers(ctx, &repository.Notification{
		Title:    "Unusual request pattern",
		Body:     fmt.Sprintf("Request for %d x %s scored %.2f", data.Quantity, data.ItemName, data.Score),
		Severity: repository.SeverityWarning,
	})
}

func (h *NotificationEventHandler) notifyReviewers(ctx context.Context, template *repository.Notification) error {
	ids, err := h.reviewers.ReviewerIDs(ctx)
	if err != nil {
		return err
	}

	for _, id := range ids {
		n := *template
		n.ID = ""
		n.UserID = id
		if err := h.store.Create(ctx, &n); err != nil {
			h.logger.Error().Err(err).Str("user_id", id).Msg("failed to create notification")
		}
	}

	return nil
}

// NotificationConsumer consumes pharmacy and inventory events and fans them
// out as in-app notifications
type NotificationConsumer struct {
	consumer *messaging.Consumer
	handler  *NotificationEventHandler
	logger   *logger.Logger
}

// NewNotificationConsumer creates and wires the consumer
func NewNotificationConsumer(rmq *messaging.RabbitMQ, store NotificationStore, reviewers ReviewerDirectory, log *logger.Logger) (*NotificationConsumer, error) {
	if err := rmq.DeclareDeadLetterQueue("pharmacy-service"); err != nil {
		return nil, err
	}

	consumer, err := messaging.NewConsumer(rmq, "pharmacy-service.notifications", log)
	if err != nil {
		return nil, err
	}

	if err := consumer.Subscribe(messaging.ExchangePharmacyEvents, "pharmacy.#"); err != nil {
		return nil, err
	}
	if err := consumer.Subscribe(messaging.ExchangePharmacyEvents, "inventory.#"); err != nil {
		return nil, err
	}

	handler := NewNotificationEventHandler(store, reviewers, log)

	consumer.RegisterHandler(messaging.EventRequestCreated, handler.HandleRequestCreated)
	consumer.RegisterHandler(messaging.EventRequestApproved, handler.HandleRequestApproved)
	consumer.RegisterHandler(messaging.EventRequestRejected, handler.HandleRequestRejected)
	consumer.RegisterHandler(messaging.EventLowStock, handler.HandleLowStock)
	consumer.RegisterHandler(messaging.EventAnomalyDetected, handler.HandleAnomalyDetected)

	return &NotificationConsumer{
		consumer: consumer,
		handler:  handler,
		logger:   log,
	}, nil
}

// Start starts consuming messages
func (c *NotificationConsumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}
