package events

import (
	"context"

	"github.com/pharmatrack/pharmatrack-backend/internal/pharmacy/repository"
	"github.com/pharmatrack/pharmatrack-backend/pkg/logger"
	"github.com/pharmatrack/pharmatrack-backend/pkg/messaging"
)

// PharmacyEventPublisher publishes request lifecycle and inventory events.
// A nil publisher is safe to call; every method no-ops, so services can run
// without a broker in tests.
type PharmacyEventPublisher struct {
	publisher *messaging.Publisher
	logger    *logger.Logger
}

// NewPharmacyEventPublisher creates a new pharmacy event publisher
func NewPharmacyEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*PharmacyEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangePharmacyEvents, "pharmacy-service", log)
	if err != nil {
		return nil, err
	}

	return &PharmacyEventPublisher{
		publisher: publisher,
		logger:    log,
	}, nil
}

// PublishRequestCreated publishes a request created event
func (p *PharmacyEventPublisher) PublishRequestCreated(ctx context.Context, req *repository.Request, itemName string) {
	if p == nil {
		return
	}

	data := messaging.RequestCreatedEvent{
		RequestID: req.ID,
		ItemID:    req.ItemID,
		ItemName:  itemName,
		DoctorID:  req.DoctorID,
		Quantity:  req.Quantity,
		Status:    req.Status,
		Priority:  req.Priority,
	}

	if err := p.publisher.Publish(ctx, messaging.EventRequestCreated, data); err != nil {
		p.logger.Error().Err(err).Str("request_id", req.ID).Msg("failed to publish request created event")
	}
}

// PublishRequestApproved publishes a request approved event
func (p *PharmacyEventPublisher) PublishRequestApproved(ctx context.Context, req *repository.Request, itemName string, approvedBy string, newStock int) {
	if p == nil {
		return
	}

	data := messaging.RequestApprovedEvent{
		RequestID:  req.ID,
		ItemID:     req.ItemID,
		ItemName:   itemName,
		DoctorID:   req.DoctorID,
		Quantity:   req.Quantity,
		ApprovedBy: approvedBy,
		NewStock:   newStock,
	}

	if err := p.publisher.Publish(ctx, messaging.EventRequestApproved, data); err != nil {
		p.logger.Error().Err(err).Str("request_id", req.ID).Msg("failed to publish request approved event")
	}
}

// PublishRequestRejected publishes a request rejected event
func (p *PharmacyEventPublisher) PublishRequestRejected(ctx context.Context, req *repository.Request, itemName string, rejectedBy string, reason string) {
	if p == nil {
		return
	}

	data := messaging.RequestRejectedEvent{
		RequestID:  req.ID,
		ItemID:     req.ItemID,
		ItemName:   itemName,
		DoctorID:   req.DoctorID,
		Quantity:   req.Quantity,
		RejectedBy: rejectedBy,
		Reason:     reason,
	}

	if err := p.publisher.Publish(ctx, messaging.EventRequestRejected, data); err != nil {
		p.logger.Error().Err(err).Str("request_id", req.ID).Msg("failed to publish request rejected event")
	}
}

// PublishRequestCancelled publishes a request cancelled event
func (p *PharmacyEventPublisher) PublishRequestCancelled(ctx context.Context, req *repository.Request, itemName string, cancelledBy string) {
	if p == nil {
		return
	}

	data := messaging.RequestCancelledEvent{
		RequestID:   req.ID,
		ItemID:      req.ItemID,
		ItemName:    itemName,
		DoctorID:    req.DoctorID,
		Quantity:    req.Quantity,
		CancelledBy: cancelledBy,
	}

	if err := p.publisher.Publish(ctx, messaging.EventRequestCancelled, data); err != nil {
		p.logger.Error().Err(err).Str("request_id", req.ID).Msg("failed to publish request cancelled event")
	}
}

// PublishStockAdjusted publishes a stock adjusted event
func (p *PharmacyEventPublisher) PublishStockAdjusted(ctx context.Context, adj *repository.StockAdjustment) {
	if p == nil {
		return
	}

	reason := ""
	if adj.Reason != nil {
		reason = *adj.Reason
	}

	data := messaging.StockAdjustedEvent{
		ItemID:      adj.ItemID,
		Mode:        adj.Mode,
		Amount:      adj.Amount,
		NewStock:    adj.NewStock,
		PerformedBy: adj.PerformedBy,
		Reason:      reason,
	}

	if err := p.publisher.Publish(ctx, messaging.EventStockAdjusted, data); err != nil {
		p.logger.Error().Err(err).Str("item_id", adj.ItemID).Msg("failed to publish stock adjusted event")
	}
}

// PublishLowStock publishes a low stock alert event
func (p *PharmacyEventPublisher) PublishLowStock(ctx context.Context, item *repository.InventoryItem) {
	if p == nil {
		return
	}

	severity := "warning"
	if item.Stock == 0 {
		severity = "critical"
	}

	data := messaging.LowStockEvent{
		ItemID:   item.ID,
		ItemName: item.Name,
		Stock:    item.Stock,
		MinStock: item.MinStock,
		Severity: severity,
	}

	if err := p.publisher.Publish(ctx, messaging.EventLowStock, data); err != nil {
		p.logger.Error().Err(err).Str("item_id", item.ID).Msg("failed to publish low stock event")
	}
}

// PublishAnomalyDetected publishes an anomaly detected event
func (p *PharmacyEventPublisher) PublishAnomalyDetected(ctx context.Context, f *repository.AnomalyFinding, itemName string) {
	if p == nil {
		return
	}

	data := messaging.AnomalyDetectedEvent{
		FindingID: f.ID,
		RequestID: f.RequestID,
		ItemID:    f.ItemID,
		ItemName:  itemName,
		DoctorID:  f.DoctorID,
		Quantity:  f.Quantity,
		Score:     f.Score,
		Reasons:   f.Reasons,
	}

	if err := p.publisher.Publish(ctx, messaging.EventAnomalyDetected, data); err != nil {
		p.logger.Error().Err(err).Str("finding_id", f.ID).Msg("failed to publish anomaly detected event")
	}
}
