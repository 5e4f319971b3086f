package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/pharmatrack/pharmatrack-backend/pkg/database"
	"github.com/pharmatrack/pharmatrack-backend/pkg/errors"
)

// Notification severities
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Notification is an in-app message delivered to a user
type Notification struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Title     string    `db:"title" json:"title"`
	Body      string    `db:"body" json:"body"`
	Severity  string    `db:"severity" json:"severity"`
	Read      bool      `db:"read" json:"read"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// NotificationRepository handles notification persistence
type NotificationRepository struct {
	db *database.DB
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *database.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create persists a notification
func (r *NotificationRepository) Create(ctx context.Context, n *Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.Severity == "" {
		n.Severity = SeverityInfo
	}

	query := `
		INSERT INTO notifications (id, user_id, title, body, severity)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`

	err := r.db.QueryRowxContext(ctx, query, n.ID, n.UserID, n.Title, n.Body, n.Severity).Scan(&n.CreatedAt)
	if err != nil {
		return database.MapPQError(err)
	}

	return nil
}

// ListForUser lists a user's notifications, unread first, newest first
func (r *NotificationRepository) ListForUser(ctx context.Context, userID string, limit int) ([]*Notification, error) {
	if limit < 1 || limit > 200 {
		limit = 50
	}

	notifications := []*Notification{}
	query := `
		SELECT id, user_id, title, body, severity, read, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY read ASC, created_at DESC
		LIMIT $2
	`
	if err := r.db.SelectContext(ctx, &notifications, query, userID, limit); err != nil {
		return nil, err
	}

	return notifications, nil
}

// MarkRead marks a notification as read. Scoped to the owner so one user
// cannot touch another's notifications.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, userID string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET read = TRUE WHERE id = $1 AND user_id = $2`, id, userID,
	)
	if err != nil {
		return database.MapPQError(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return errors.NotFound("notification")
	}
	return nil
}
