package service

import (
	"context"
	"encoding/json"

	"github.com/pharmatrack/pharmatrack-backend/internal/pharmacy/repository"
	"github.com/pharmatrack/pharmatrack-backend/pkg/logger"
)

// ActivityStore persists audit records
type ActivityStore interface {
	Create(ctx context.Context, rec *repository.ActivityRecord) error
}

// Recorder writes audit trail entries. Recording failures are logged and
// swallowed; the audit trail never blocks a business transition.
type Recorder struct {
	store  ActivityStore
	logger *logger.Logger
}

// NewRecorder creates a new activity recorder
func NewRecorder(store ActivityStore, log *logger.Logger) *Recorder {
	return &Recorder{store: store, logger: log}
}

// Record appends an audit entry. Details must be JSON-marshalable; a marshal
// failure drops the details but still records the action.
func (r *Recorder) Record(ctx context.Context, action, entityType, entityID, actorID, actorName string, details interface{}) {
	if r == nil {
		return
	}

	rec := &repository.ActivityRecord{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		ActorID:    actorID,
		ActorName:  actorName,
	}

	if details != nil {
		raw, err := json.Marshal(details)
		if err != nil {
			r.logger.Warn().Err(err).Str("action", action).Msg("failed to marshal activity details")
		} else {
			rec.Details = raw
		}
	}

	if err := r.store.Create(ctx, rec); err != nil {
		r.logger.Error().Err(err).
			Str("action", action).
			Str("entity_id", entityID).
			Msg("failed to record activity")
	}
}
