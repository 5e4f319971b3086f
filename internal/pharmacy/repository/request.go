package repository

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/pharmatrack/pharmatrack-backend/pkg/database"
	"github.com/pharmatrack/pharmatrack-backend/pkg/errors"
)

// Request statuses
const (
	StatusPending   = "Pending"
	StatusApproved  = "Approved"
	StatusRejected  = "Rejected"
	StatusCancelled = "Cancelled"
)

// Request priorities
const (
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

// Request represents a medication request raised by a doctor
type Request struct {
	ID          string     `db:"id" json:"id"`
	ItemID      string     `db:"item_id" json:"item_id"`
	DoctorID    string     `db:"doctor_id" json:"doctor_id"`
	DoctorName  string     `db:"doctor_name" json:"doctor_name"`
	PatientID   string     `db:"patient_id" json:"patient_id"`
	PatientName string     `db:"patient_name" json:"patient_name"`
	Quantity    int        `db:"quantity" json:"quantity"`
	Status      string     `db:"status" json:"status"`
	Priority    string     `db:"priority" json:"priority"`
	Notes       *string    `db:"notes" json:"notes,omitempty"`
	RequestedAt time.Time  `db:"requested_at" json:"requested_at"`
	ApprovedAt  *time.Time `db:"approved_at" json:"approved_at,omitempty"`
	ApprovedBy  *string    `db:"approved_by" json:"approved_by,omitempty"`
	ReviewNote  *string    `db:"review_note" json:"review_note,omitempty"`

	// Joined from inventory_items for read paths
	ItemName string `db:"item_name" json:"item_name,omitempty"`
}

// RequestFilter narrows request listings
type RequestFilter struct {
	Status   string
	DoctorID string
	ItemID   string
	Priority string
}

// RequestRepository handles medication request persistence
type RequestRepository struct {
	db *database.DB
}

// NewRequestRepository creates a new request repository
func NewRequestRepository(db *database.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// Create persists a new request
func (r *RequestRepository) Create(ctx context.Context, req *Request) error {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	query := `
		INSERT INTO medication_requests (id, item_id, doctor_id, doctor_name, patient_id, patient_name, quantity, status, priority, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING requested_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		req.ID, req.ItemID, req.DoctorID, req.DoctorName, req.PatientID, req.PatientName,
		req.Quantity, req.Status, req.Priority, req.Notes,
	).Scan(&req.RequestedAt)
	if err != nil {
		return database.MapPQError(err)
	}

	return nil
}

// GetByID gets a request by ID with the item name joined in
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*Request, error) {
	var req Request

	query := `
		SELECT r.id, r.item_id, r.doctor_id, r.doctor_name, r.patient_id, r.patient_name, r.quantity,
		       r.status, r.priority, r.notes, r.requested_at, r.approved_at, r.approved_by,
		       r.review_note, i.name AS item_name
		FROM medication_requests r
		JOIN inventory_items i ON i.id = r.item_id
		WHERE r.id = $1
	`
	err := r.db.GetContext(ctx, &req, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.RequestNotFound()
	}
	if err != nil {
		return nil, err
	}

	return &req, nil
}

// List lists requests matching the filter, newest first
func (r *RequestRepository) List(ctx context.Context, filter RequestFilter, page, perPage int) ([]*Request, int64, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	offset := (page - 1) * perPage

	where := ` WHERE 1=1`
	args := []interface{}{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return placeholder(len(args))
	}

	if filter.Status != "" {
		where += ` AND r.status = ` + arg(filter.Status)
	}
	if filter.DoctorID != "" {
		where += ` AND r.doctor_id = ` + arg(filter.DoctorID)
	}
	if filter.ItemID != "" {
		where += ` AND r.item_id = ` + arg(filter.ItemID)
	}
	if filter.Priority != "" {
		where += ` AND r.priority = ` + arg(filter.Priority)
	}

	var total int64
	countQuery := `SELECT COUNT(*) FROM medication_requests r` + where
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, err
	}

	listQuery := `
		SELECT r.id, r.item_id, r.doctor_id, r.doctor_name, r.patient_id, r.patient_name, r.quantity,
		       r.status, r.priority, r.notes, r.requested_at, r.approved_at, r.approved_by,
		       r.review_note, i.name AS item_name
		FROM medication_requests r
		JOIN inventory_items i ON i.id = r.item_id` + where +
		` ORDER BY r.requested_at DESC LIMIT ` + arg(perPage) + ` OFFSET ` + arg(offset)

	requests := []*Request{}
	if err := r.db.SelectContext(ctx, &requests, listQuery, args...); err != nil {
		return nil, 0, err
	}

	return requests, total, nil
}

// MarkApproved transitions a pending request to Approved, stamping reviewer
// and timestamp. The status guard makes the write a no-op when the request
// has already left Pending, so callers can detect a lost race.
func (r *RequestRepository) MarkApproved(ctx context.Context, id, approvedBy string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE medication_requests
		SET status = $2, approved_at = NOW(), approved_by = $3
		WHERE id = $1 AND status = $4`,
		id, StatusApproved, approvedBy, StatusPending,
	)
	if err != nil {
		return false, database.MapPQError(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// MarkStatus transitions a pending request to the given terminal status,
// recording an optional review note. Returns false when the request was no
// longer Pending.
func (r *RequestRepository) MarkStatus(ctx context.Context, id, status string, note *string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE medication_requests
		SET status = $2, review_note = $3
		WHERE id = $1 AND status = $4`,
		id, status, note, StatusPending,
	)
	if err != nil {
		return false, database.MapPQError(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// Delete removes a request. Used to unwind a creation whose stock decrement
// succeeded but whose follow-up work failed.
func (r *RequestRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM medication_requests WHERE id = $1`, id)
	if err != nil {
		return database.MapPQError(err)
	}
	return nil
}

func placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}
