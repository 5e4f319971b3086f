package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/pharmatrack/pharmatrack-backend/pkg/database"
	"github.com/pharmatrack/pharmatrack-backend/pkg/errors"
)

// AnomalyFinding records an unusual request pattern flagged by the detector
type AnomalyFinding struct {
	ID         string         `db:"id" json:"id"`
	RequestID  string         `db:"request_id" json:"request_id"`
	ItemID     string         `db:"item_id" json:"item_id"`
	DoctorID   string         `db:"doctor_id" json:"doctor_id"`
	Quantity   int            `db:"quantity" json:"quantity"`
	Score      float64        `db:"score" json:"score"`
	ZScore     float64        `db:"z_score" json:"z_score"`
	Reasons    pq.StringArray `db:"reasons" json:"reasons"`
	Resolved   bool           `db:"resolved" json:"resolved"`
	ResolvedBy *string        `db:"resolved_by" json:"resolved_by,omitempty"`
	ResolvedAt *time.Time     `db:"resolved_at" json:"resolved_at,omitempty"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}

// AnomalyRepository handles anomaly finding persistence
type AnomalyRepository struct {
	db *database.DB
}

// NewAnomalyRepository creates a new anomaly repository
func NewAnomalyRepository(db *database.DB) *AnomalyRepository {
	return &AnomalyRepository{db: db}
}

// Create persists an anomaly finding
func (r *AnomalyRepository) Create(ctx context.Context, f *AnomalyFinding) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}

	query := `
		INSERT INTO anomaly_findings (id, request_id, item_id, doctor_id, quantity, score, z_score, reasons)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		f.ID, f.RequestID, f.ItemID, f.DoctorID, f.Quantity, f.Score, f.ZScore, f.Reasons,
	).Scan(&f.CreatedAt)
	if err != nil {
		return database.MapPQError(err)
	}

	return nil
}

// List lists findings, optionally filtered to unresolved only, newest first
func (r *AnomalyRepository) List(ctx context.Context, unresolvedOnly bool, limit int) ([]*AnomalyFinding, error) {
	if limit < 1 || limit > 200 {
		limit = 50
	}

	query := `
		SELECT id, request_id, item_id, doctor_id, quantity, score, z_score, reasons,
		       resolved, resolved_by, resolved_at, created_at
		FROM anomaly_findings
	`
	if unresolvedOnly {
		query += ` WHERE resolved = FALSE`
	}
	query += ` ORDER BY created_at DESC LIMIT $1`

	findings := []*AnomalyFinding{}
	if err := r.db.SelectContext(ctx, &findings, query, limit); err != nil {
		return nil, err
	}

	return findings, nil
}

// Resolve marks a finding as reviewed
func (r *AnomalyRepository) Resolve(ctx context.Context, id, resolvedBy string) (*AnomalyFinding, error) {
	var f AnomalyFinding

	query := `
		UPDATE anomaly_findings
		SET resolved = TRUE, resolved_by = $2, resolved_at = NOW()
		WHERE id = $1
		RETURNING id, request_id, item_id, doctor_id, quantity, score, z_score, reasons,
		          resolved, resolved_by, resolved_at, created_at
	`
	err := r.db.GetContext(ctx, &f, query, id, resolvedBy)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("anomaly finding")
	}
	if err != nil {
		return nil, err
	}

	return &f, nil
}
