package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/pharmatrack/pharmatrack-backend/pkg/database"
	"github.com/pharmatrack/pharmatrack-backend/pkg/errors"
)

// Stock adjustment modes
const (
	AdjustAdd      = "add"
	AdjustSubtract = "subtract"
	AdjustSet      = "set"
)

// InventoryItem represents a pharmacy inventory item
type InventoryItem struct {
	ID         string          `db:"id" json:"id"`
	Name       string          `db:"name" json:"name"`
	Category   string          `db:"category" json:"category"`
	Unit       string          `db:"unit" json:"unit"`
	Stock      int             `db:"stock" json:"stock"`
	MinStock   int             `db:"min_stock" json:"min_stock"`
	Price      decimal.Decimal `db:"price" json:"price"`
	Controlled bool            `db:"controlled" json:"controlled"`
	ExpiryDate *time.Time      `db:"expiry_date" json:"expiry_date,omitempty"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updated_at"`
}

// StockAdjustment records a manual stock correction
type StockAdjustment struct {
	ID            string    `db:"id" json:"id"`
	ItemID        string    `db:"item_id" json:"item_id"`
	Mode          string    `db:"mode" json:"mode"`
	Amount        int       `db:"amount" json:"amount"`
	PreviousStock int       `db:"previous_stock" json:"previous_stock"`
	NewStock      int       `db:"new_stock" json:"new_stock"`
	PerformedBy   string    `db:"performed_by" json:"performed_by"`
	Reason        *string   `db:"reason" json:"reason,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// ItemRepository handles inventory item persistence
type ItemRepository struct {
	db *database.DB
}

// NewItemRepository creates a new item repository
func NewItemRepository(db *database.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

// Create creates a new inventory item
func (r *ItemRepository) Create(ctx context.Context, item *InventoryItem) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}

	query := `
		INSERT INTO inventory_items (id, name, category, unit, stock, min_stock, price, controlled, expiry_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		item.ID, item.Name, item.Category, item.Unit, item.Stock,
		item.MinStock, item.Price, item.Controlled, item.ExpiryDate,
	).Scan(&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return database.MapPQError(err)
	}

	return nil
}

// GetByID gets an item by ID
func (r *ItemRepository) GetByID(ctx context.Context, id string) (*InventoryItem, error) {
	var item InventoryItem

	query := `
		SELECT id, name, category, unit, stock, min_stock, price, controlled, expiry_date, created_at, updated_at
		FROM inventory_items WHERE id = $1
	`
	err := r.db.GetContext(ctx, &item, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.ItemNotFound()
	}
	if err != nil {
		return nil, err
	}

	return &item, nil
}

// List lists items with pagination and optional category filter
func (r *ItemRepository) List(ctx context.Context, page, perPage int, category string) ([]*InventoryItem, int64, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	offset := (page - 1) * perPage

	countQuery := `SELECT COUNT(*) FROM inventory_items`
	listQuery := `
		SELECT id, name, category, unit, stock, min_stock, price, controlled, expiry_date, created_at, updated_at
		FROM inventory_items
	`
	args := []interface{}{}
	if category != "" {
		countQuery += ` WHERE category = $1`
		listQuery += ` WHERE category = $1 ORDER BY name ASC LIMIT $2 OFFSET $3`
		args = append(args, category)
	} else {
		listQuery += ` ORDER BY name ASC LIMIT $1 OFFSET $2`
	}

	var total int64
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, err
	}

	items := []*InventoryItem{}
	args = append(args, perPage, offset)
	if err := r.db.SelectContext(ctx, &items, listQuery, args...); err != nil {
		return nil, 0, err
	}

	return items, total, nil
}

// Update updates an item's descriptive fields. Stock is never touched here;
// AdjustStock and the request lifecycle are the only stock writers.
func (r *ItemRepository) Update(ctx context.Context, item *InventoryItem) error {
	query := `
		UPDATE inventory_items
		SET name = $2, category = $3, unit = $4, min_stock = $5, price = $6,
		    controlled = $7, expiry_date = $8, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		item.ID, item.Name, item.Category, item.Unit, item.MinStock,
		item.Price, item.Controlled, item.ExpiryDate,
	).Scan(&item.UpdatedAt)
	if err == sql.ErrNoRows {
		return errors.ItemNotFound()
	}
	if err != nil {
		return database.MapPQError(err)
	}

	return nil
}

// Delete removes an item
func (r *ItemRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM inventory_items WHERE id = $1`, id)
	if err != nil {
		return database.MapPQError(err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return errors.ItemNotFound()
	}
	return nil
}

// AdjustStock applies a manual stock correction and returns the resulting
// stock level. The row is locked for the duration of the transaction so the
// read-compute-write sequence cannot race with concurrent approvals. A
// subtract below zero clamps at zero rather than failing.
func (r *ItemRepository) AdjustStock(ctx context.Context, adj *StockAdjustment) (int, error) {
	if adj.Amount < 0 {
		return 0, errors.InvalidQuantity()
	}
	if adj.ID == "" {
		adj.ID = uuid.New().String()
	}

	var newStock int
	err := r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		var current int
		err := tx.QueryRowxContext(ctx,
			`SELECT stock FROM inventory_items WHERE id = $1 FOR UPDATE`, adj.ItemID,
		).Scan(&current)
		if err == sql.ErrNoRows {
			return errors.ItemNotFound()
		}
		if err != nil {
			return err
		}

		switch adj.Mode {
		case AdjustAdd:
			newStock = current + adj.Amount
		case AdjustSubtract:
			newStock = current - adj.Amount
			if newStock < 0 {
				newStock = 0
			}
		case AdjustSet:
			newStock = adj.Amount
		default:
			return errors.BadRequest("invalid adjustment mode: " + adj.Mode)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE inventory_items SET stock = $2, updated_at = NOW() WHERE id = $1`,
			adj.ItemID, newStock,
		)
		if err != nil {
			return database.MapPQError(err)
		}

		adj.PreviousStock = current
		adj.NewStock = newStock

		_, err = tx.ExecContext(ctx, `
			INSERT INTO stock_adjustments (id, item_id, mode, amount, previous_stock, new_stock, performed_by, reason)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			adj.ID, adj.ItemID, adj.Mode, adj.Amount, adj.PreviousStock, adj.NewStock, adj.PerformedBy, adj.Reason,
		)
		return err
	})
	if err != nil {
		return 0, err
	}

	return newStock, nil
}

// DecrementStock atomically subtracts quantity from an item's stock, failing
// without any change when stock is insufficient. Returns the new stock level.
func (r *ItemRepository) DecrementStock(ctx context.Context, id string, quantity int) (int, error) {
	var newStock int
	err := r.db.QueryRowxContext(ctx, `
		UPDATE inventory_items
		SET stock = stock - $2, updated_at = NOW()
		WHERE id = $1 AND stock >= $2
		RETURNING stock`,
		id, quantity,
	).Scan(&newStock)
	if err == sql.ErrNoRows {
		// Either the item is gone or stock < quantity. Re-read to tell the two apart.
		item, getErr := r.GetByID(ctx, id)
		if getErr != nil {
			return 0, getErr
		}
		return 0, errors.InsufficientStock(item.Stock, quantity)
	}
	if err != nil {
		return 0, database.MapPQError(err)
	}

	return newStock, nil
}

// IncrementStock adds quantity back to an item's stock. Used to compensate a
// decrement when a later step of an approval fails.
func (r *ItemRepository) IncrementStock(ctx context.Context, id string, quantity int) (int, error) {
	var newStock int
	err := r.db.QueryRowxContext(ctx, `
		UPDATE inventory_items
		SET stock = stock + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING stock`,
		id, quantity,
	).Scan(&newStock)
	if err == sql.ErrNoRows {
		return 0, errors.ItemNotFound()
	}
	if err != nil {
		return 0, database.MapPQError(err)
	}

	return newStock, nil
}

// ListLowStock returns items at or below their minimum stock threshold
func (r *ItemRepository) ListLowStock(ctx context.Context) ([]*InventoryItem, error) {
	items := []*InventoryItem{}

	query := `
		SELECT id, name, category, unit, stock, min_stock, price, controlled, expiry_date, created_at, updated_at
		FROM inventory_items
		WHERE stock <= min_stock
		ORDER BY stock ASC
	`
	if err := r.db.SelectContext(ctx, &items, query); err != nil {
		return nil, err
	}

	return items, nil
}

// ListExpiring returns items whose expiry date falls within the given number of days
func (r *ItemRepository) ListExpiring(ctx context.Context, withinDays int) ([]*InventoryItem, error) {
	items := []*InventoryItem{}

	query := `
		SELECT id, name, category, unit, stock, min_stock, price, controlled, expiry_date, created_at, updated_at
		FROM inventory_items
		WHERE expiry_date IS NOT NULL
		  AND expiry_date <= NOW() + ($1 * INTERVAL '1 day')
		ORDER BY expiry_date ASC
	`
	if err := r.db.SelectContext(ctx, &items, query, withinDays); err != nil {
		return nil, err
	}

	return items, nil
}

// ListAdjustments returns the adjustment history for an item, newest first
func (r *ItemRepository) ListAdjustments(ctx context.Context, itemID string, limit int) ([]*StockAdjustment, error) {
	if limit < 1 || limit > 200 {
		limit = 50
	}

	adjustments := []*StockAdjustment{}
	query := `
		SELECT id, item_id, mode, amount, previous_stock, new_stock, performed_by, reason, created_at
		FROM stock_adjustments
		WHERE item_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	if err := r.db.SelectContext(ctx, &adjustments, query, itemID, limit); err != nil {
		return nil, err
	}

	return adjustments, nil
}
