package service

import (
	"context"

	"github.com/pharmatrack/pharmatrack-backend/internal/pharmacy/events"
	"github.com/pharmatrack/pharmatrack-backend/internal/pharmacy/repository"
	"github.com/pharmatrack/pharmatrack-backend/pkg/errors"
	"github.com/pharmatrack/pharmatrack-backend/pkg/logger"
)

// InventoryStore is the persistence surface the inventory service needs
type InventoryStore interface {
	Create(ctx context.Context, item *repository.InventoryItem) error
	GetByID(ctx context.Context, id string) (*repository.InventoryItem, error)
	List(ctx context.Context, page, perPage int, category string) ([]*repository.InventoryItem, int64, error)
	Update(ctx context.Context, item *repository.InventoryItem) error
	Delete(ctx context.Context, id string) error
	AdjustStock(ctx context.Context, adj *repository.StockAdjustment) (int, error)
	ListLowStock(ctx context.Context) ([]*repository.InventoryItem, error)
	ListExpiring(ctx context.Context, withinDays int) ([]*repository.InventoryItem, error)
	ListAdjustments(ctx context.Context, itemID string, limit int) ([]*repository.StockAdjustment, error)
}

// AdjustStockInput carries a manual stock correction
type AdjustStockInput struct {
	Mode   string  `json:"mode" validate:"required,oneof=add subtract set"`
	Amount int     `json:"amount" validate:"gte=0"`
	Reason *string `json:"reason,omitempty"`
}

// InventoryService handles inventory management. The request lifecycle owns
// approval-driven stock changes; this service owns everything else about an
// item, with AdjustStock as the only sanctioned manual stock mutation.
type InventoryService struct {
	store     InventoryStore
	recorder  *Recorder
	publisher *events.PharmacyEventPublisher
	logger    *logger.Logger
}

// NewInventoryService creates a new inventory service
func NewInventoryService(store InventoryStore, recorder *Recorder, publisher *events.PharmacyEventPublisher, log *logger.Logger) *InventoryService {
	return &InventoryService{
		store:     store,
		recorder:  recorder,
		publisher: publisher,
		logger:    log,
	}
}

// CreateItem creates a new inventory item
func (s *InventoryService) CreateItem(ctx context.Context, actorID, actorName string, item *repository.InventoryItem) error {
	if item.Name == "" {
		return errors.MissingFields("name")
	}
	if item.Stock < 0 || item.MinStock < 0 {
		return errors.InvalidQuantity()
	}

	if err := s.store.Create(ctx, item); err != nil {
		return err
	}

	s.recorder.Record(ctx, repository.ActionItemCreated, "item", item.ID, actorID, actorName, map[string]interface{}{
		"name":       item.Name,
		"stock":      item.Stock,
		"controlled": item.Controlled,
	})

	return nil
}

// GetItem gets an item by ID
func (s *InventoryService) GetItem(ctx context.Context, id string) (*repository.InventoryItem, error) {
	return s.store.GetByID(ctx, id)
}

// ListItems lists items with pagination
func (s *InventoryService) ListItems(ctx context.Context, page, perPage int, category string) ([]*repository.InventoryItem, int64, error) {
	return s.store.List(ctx, page, perPage, category)
}

// UpdateItem updates an item's descriptive fields
func (s *InventoryService) UpdateItem(ctx context.Context, actorID, actorName string, item *repository.InventoryItem) error {
	if err := s.store.Update(ctx, item); err != nil {
		return err
	}

	s.recorder.Record(ctx, repository.ActionItemUpdated, "item", item.ID, actorID, actorName, nil)

	return nil
}

// DeleteItem removes an item
func (s *InventoryService) DeleteItem(ctx context.Context, actorID, actorName, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}

	s.recorder.Record(ctx, repository.ActionItemDeleted, "item", id, actorID, actorName, nil)

	return nil
}

// AdjustStock applies a manual stock correction. A subtract that would go
// below zero clamps at zero. Fires a low stock alert when the result is at or
// below the item's threshold.
func (s *InventoryService) AdjustStock(ctx context.Context, actorID, actorName, itemID string, input AdjustStockInput) (*repository.StockAdjustment, error) {
	adj := &repository.StockAdjustment{
		ItemID:      itemID,
		Mode:        input.Mode,
		Amount:      input.Amount,
		PerformedBy: actorName,
		Reason:      input.Reason,
	}

	newStock, err := s.store.AdjustStock(ctx, adj)
	if err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, repository.ActionStockAdjusted, "item", itemID, actorID, actorName, map[string]interface{}{
		"mode":           adj.Mode,
		"amount":         adj.Amount,
		"previous_stock": adj.PreviousStock,
		"new_stock":      adj.NewStock,
	})
	s.publisher.PublishStockAdjusted(ctx, adj)

	item, err := s.store.GetByID(ctx, itemID)
	if err != nil {
		s.logger.Warn().Err(err).Str("item_id", itemID).Msg("failed to reload item after adjustment")
		return adj, nil
	}
	if newStock <= item.MinStock {
		s.publisher.PublishLowStock(ctx, item)
	}

	return adj, nil
}

// ListLowStock returns items at or below their minimum stock threshold
func (s *InventoryService) ListLowStock(ctx context.Context) ([]*repository.InventoryItem, error) {
	return s.store.ListLowStock(ctx)
}

// ListExpiring returns items expiring within the given number of days
func (s *InventoryService) ListExpiring(ctx context.Context, withinDays int) ([]*repository.InventoryItem, error) {
	if withinDays < 1 {
		withinDays = 30
	}
	return s.store.ListExpiring(ctx, withinDays)
}

// ListAdjustments returns an item's manual adjustment history
func (s *InventoryService) ListAdjustments(ctx context.Context, itemID string, limit int) ([]*repository.StockAdjustment, error) {
	return s.store.ListAdjustments(ctx, itemID, limit)
}
