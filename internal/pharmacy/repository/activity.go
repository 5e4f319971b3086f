package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/pharmatrack/pharmatrack-backend/pkg/database"
)

// Activity actions
const (
	ActionRequestCreated   = "request.created"
	ActionRequestApproved  = "request.approved"
	ActionRequestRejected  = "request.rejected"
	ActionRequestCancelled = "request.cancelled"
	ActionStockAdjusted    = "stock.adjusted"
	ActionItemCreated      = "item.created"
	ActionItemUpdated      = "item.updated"
	ActionItemDeleted      = "item.deleted"
	ActionAnomalyResolved  = "anomaly.resolved"
)

// ActivityRecord is an append-only audit entry
type ActivityRecord struct {
	ID         string          `db:"id" json:"id"`
	Action     string          `db:"action" json:"action"`
	EntityType string          `db:"entity_type" json:"entity_type"`
	EntityID   string          `db:"entity_id" json:"entity_id"`
	ActorID    string          `db:"actor_id" json:"actor_id"`
	ActorName  string          `db:"actor_name" json:"actor_name"`
	Details    json.RawMessage `db:"details" json:"details,omitempty"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}

// ActivityFilter narrows activity listings
type ActivityFilter struct {
	Action     string
	EntityType string
	EntityID   string
	ActorID    string
	Since      *time.Time
}

// ActivityRepository handles the audit trail. Records are insert-only; there
// is no update or delete path.
type ActivityRepository struct {
	db *database.DB
}

// NewActivityRepository creates a new activity repository
func NewActivityRepository(db *database.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// Create appends an activity record
func (r *ActivityRepository) Create(ctx context.Context, rec *ActivityRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Details == nil {
		rec.Details = json.RawMessage(`{}`)
	}

	query := `
		INSERT INTO activity_log (id, action, entity_type, entity_id, actor_id, actor_name, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		rec.ID, rec.Action, rec.EntityType, rec.EntityID, rec.ActorID, rec.ActorName, rec.Details,
	).Scan(&rec.CreatedAt)
	if err != nil {
		return database.MapPQError(err)
	}

	return nil
}

// List lists activity records matching the filter, newest first
func (r *ActivityRepository) List(ctx context.Context, filter ActivityFilter, page, perPage int) ([]*ActivityRecord, int64, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 50
	}
	offset := (page - 1) * perPage

	where := ` WHERE 1=1`
	args := []interface{}{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return placeholder(len(args))
	}

	if filter.Action != "" {
		where += ` AND action = ` + arg(filter.Action)
	}
	if filter.EntityType != "" {
		where += ` AND entity_type = ` + arg(filter.EntityType)
	}
	if filter.EntityID != "" {
		where += ` AND entity_id = ` + arg(filter.EntityID)
	}
	if filter.ActorID != "" {
		where += ` AND actor_id = ` + arg(filter.ActorID)
	}
	if filter.Since != nil {
		where += ` AND created_at >= ` + arg(*filter.Since)
	}

	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM activity_log`+where, args...); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT id, action, entity_type, entity_id, actor_id, actor_name, details, created_at
		FROM activity_log` + where +
		` ORDER BY created_at DESC LIMIT ` + arg(perPage) + ` OFFSET ` + arg(offset)

	records := []*ActivityRecord{}
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, 0, err
	}

	return records, total, nil
}
