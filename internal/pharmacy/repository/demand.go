package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/pharmatrack/pharmatrack-backend/pkg/database"
)

// TrainingSample is one historical request observation used to fit the
// demand model. Features are derived from the request timestamp in SQL so the
// model sees exactly what the database stored.
type TrainingSample struct {
	Month     int `db:"month"`
	DayOfWeek int `db:"day_of_week"`
	Season    int `db:"season"`
	Quantity  int `db:"quantity"`
}

// RequesterQuantity pairs a request's quantity with its requesting doctor
type RequesterQuantity struct {
	DoctorID string `db:"doctor_id"`
	Quantity int    `db:"quantity"`
}

// CachedPrediction is a stored demand prediction keyed by item and target date
type CachedPrediction struct {
	ID              string    `db:"id"`
	ItemID          string    `db:"item_id"`
	TargetDate      time.Time `db:"target_date"`
	PredictedDemand int       `db:"predicted_demand"`
	Confidence      float64   `db:"confidence"`
	DataPoints      int       `db:"data_points"`
	CreatedAt       time.Time `db:"created_at"`
}

// DemandRepository reads historical request data for the demand model and
// manages the prediction cache
type DemandRepository struct {
	db *database.DB
}

// NewDemandRepository creates a new demand repository
func NewDemandRepository(db *database.DB) *DemandRepository {
	return &DemandRepository{db: db}
}

// TrainingSamples returns per-request feature rows for an item. Only
// approved requests count as realized demand. Season runs 1 through 4 with
// December grouped into winter.
func (r *DemandRepository) TrainingSamples(ctx context.Context, itemID string) ([]TrainingSample, error) {
	samples := []TrainingSample{}

	query := `
		SELECT EXTRACT(MONTH FROM requested_at)::int AS month,
		       EXTRACT(DOW FROM requested_at)::int AS day_of_week,
		       CASE
		           WHEN EXTRACT(MONTH FROM requested_at) BETWEEN 3 AND 5 THEN 1
		           WHEN EXTRACT(MONTH FROM requested_at) BETWEEN 6 AND 8 THEN 2
		           WHEN EXTRACT(MONTH FROM requested_at) BETWEEN 9 AND 11 THEN 3
		           ELSE 4
		       END AS season,
		       quantity
		FROM medication_requests
		WHERE item_id = $1 AND status = $2
		ORDER BY requested_at ASC
	`
	if err := r.db.SelectContext(ctx, &samples, query, itemID, StatusApproved); err != nil {
		return nil, err
	}

	return samples, nil
}

// QuantityHistory returns the quantities of an item's past requests,
// excluding the request under evaluation so it cannot skew its own baseline
func (r *DemandRepository) QuantityHistory(ctx context.Context, itemID, excludeRequestID string) ([]float64, error) {
	quantities := []float64{}

	query := `
		SELECT quantity::float8
		FROM medication_requests
		WHERE item_id = $1 AND id != $2 AND status != $3
		ORDER BY requested_at ASC
	`
	if err := r.db.SelectContext(ctx, &quantities, query, itemID, excludeRequestID, StatusRejected); err != nil {
		return nil, err
	}

	return quantities, nil
}

// RequesterHistory returns doctor and quantity for an item's past requests,
// excluding the request under evaluation
func (r *DemandRepository) RequesterHistory(ctx context.Context, itemID, excludeRequestID string) ([]RequesterQuantity, error) {
	rows := []RequesterQuantity{}

	query := `
		SELECT doctor_id, quantity
		FROM medication_requests
		WHERE item_id = $1 AND id != $2 AND status != $3
	`
	if err := r.db.SelectContext(ctx, &rows, query, itemID, excludeRequestID, StatusRejected); err != nil {
		return nil, err
	}

	return rows, nil
}

// GetCached returns the cached prediction for an item and target date, or nil
// when no prediction has been stored yet
func (r *DemandRepository) GetCached(ctx context.Context, itemID string, targetDate time.Time) (*CachedPrediction, error) {
	var p CachedPrediction

	query := `
		SELECT id, item_id, target_date, predicted_demand, confidence, data_points, created_at
		FROM demand_predictions
		WHERE item_id = $1 AND target_date = $2
	`
	err := r.db.GetContext(ctx, &p, query, itemID, targetDate)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &p, nil
}

// UpsertCached stores a prediction, replacing any previous one for the same
// item and target date
func (r *DemandRepository) UpsertCached(ctx context.Context, p *CachedPrediction) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}

	query := `
		INSERT INTO demand_predictions (id, item_id, target_date, predicted_demand, confidence, data_points)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (item_id, target_date)
		DO UPDATE SET predicted_demand = EXCLUDED.predicted_demand,
		              confidence = EXCLUDED.confidence,
		              data_points = EXCLUDED.data_points,
		              created_at = NOW()
		RETURNING created_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		p.ID, p.ItemID, p.TargetDate, p.PredictedDemand, p.Confidence, p.DataPoints,
	).Scan(&p.CreatedAt)
	if err != nil {
		return database.MapPQError(err)
	}

	return nil
}

// InvalidateCache removes cached predictions for an item. Called after
// retraining so stale predictions do not linger.
func (r *DemandRepository) InvalidateCache(ctx context.Context, itemID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM demand_predictions WHERE item_id = $1`, itemID)
	if err != nil {
		return database.MapPQError(err)
	}
	return nil
}
