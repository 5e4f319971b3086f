package consumers_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmatrack/pharmatrack-backend/internal/pharmacy/consumers"
	"github.com/pharmatrack/pharmatrack-backend/internal/pharmacy/repository"
	"github.com/pharmatrack/pharmatrack-backend/pkg/logger"
	"github.com/pharmatrack/pharmatrack-backend/pkg/messaging"
)

type fakeNotificationStore struct {
	created []*repository.Notification
}

func (s *fakeNotificationStore) Create(_ context.Context, n *repository.Notification) error {
	s.created = append(s.created, n)
	return nil
}

func makeEvent(t *testing.T, eventType string, data interface{}) *messaging.Event {
	t.Helper()
	payload, err := json.Marshal(data)
	require.NoError(t, err)
	return &messaging.Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      payload,
	}
}

func newHandlerFixture(reviewers ...string) (*consumers.NotificationEventHandler, *fakeNotificationStore) {
	store := &fakeNotificationStore{}
	handler := consumers.NewNotificationEventHandler(store, consumers.StaticReviewers(reviewers), logger.New("test", "test"))
	return handler, store
}

func TestHandleRequestCreated_PendingNotifiesReviewers(t *testing.T) {
	handler, store := newHandlerFixture("ph-1", "ph-2")

	event := makeEvent(t, messaging.EventRequestCreated, messaging.RequestCreatedEvent{
		RequestID: "req-1",
		ItemID:    "item-1",
		ItemName:  "Morphine 10mg",
		DoctorID:  "doc-1",
		Quantity:  10,
		Status:    repository.StatusPending,
		Priority:  repository.PriorityHigh,
	})

	require.NoError(t, handler.HandleRequestCreated(context.Background(), event))

	require.Len(t, store.created, 2)
	assert.Equal(t, "ph-1", store.created[0].UserID)
	assert.Equal(t, "ph-2", store.created[1].UserID)
	assert.Contains(t, store.created[0].Body, "Morphine 10mg")
	assert.Equal(t, repository.SeverityWarning, store.created[0].Severity)
}

func TestHandleRequestCreated_AutoApprovedStaysQuiet(t *testing.T) {
	handler, store := newHandlerFixture("ph-1")

	event := makeEvent(t, messaging.EventRequestCreated, messaging.RequestCreatedEvent{
		RequestID: "req-1",
		ItemName:  "Ibuprofen 400mg",
		Status:    repository.StatusApproved,
	})

	require.NoError(t, handler.HandleRequestCreated(context.Background(), event))
	assert.Empty(t, store.created)
}

func TestHandleRequestApproved_NotifiesDoctor(t *testing.T) {
	handler, store := newHandlerFixture("ph-1")

	event := makeEvent(t, messaging.EventRequestApproved, messaging.RequestApprovedEvent{
		RequestID:  "req-1",
		ItemName:   "Morphine 10mg",
		DoctorID:   "doc-1",
		Quantity:   10,
		ApprovedBy: "Pharmacist Chen",
	})

	require.NoError(t, handler.HandleRequestApproved(context.Background(), event))

	require.Len(t, store.created, 1)
	assert.Equal(t, "doc-1", store.created[0].UserID)
	assert.Contains(t, store.created[0].Body, "Pharmacist Chen")
	assert.Equal(t, repository.SeverityInfo, store.created[0].Severity)
}

func TestHandleRequestRejected_IncludesReason(t *testing.T) {
	handler, store := newHandlerFixture()

	event := makeEvent(t, messaging.EventRequestRejected, messaging.RequestRejectedEvent{
		RequestID: "req-1",
		ItemName:  "Morphine 10mg",
		DoctorID:  "doc-1",
		Quantity:  10,
		Reason:    "not indicated",
	})

	require.NoError(t, handler.HandleRequestRejected(context.Background(), event))

	require.Len(t, store.created, 1)
	assert.Contains(t, store.created[0].Body, "not indicated")
}

func TestHandleLowStock_CriticalAtZero(t *testing.T) {
	handler, store := newHandlerFixture("ph-1")

	event := makeEvent(t, messaging.EventLowStock, messaging.LowStockEvent{
		ItemID:   "item-1",
		ItemName: "Saline",
		Stock:    0,
		MinStock: 5,
		Severity: "critical",
	})

	require.NoError(t, handler.HandleLowStock(context.Background(), event))

	require.Len(t, store.created, 1)
	assert.Equal(t, repository.SeverityCritical, store.created[0].Severity)
}

func TestHandleAnomalyDetected(t *testing.T) {
	handler, store := newHandlerFixture("ph-1", "admin-1")

	event := makeEvent(t, messaging.EventAnomalyDetected, messaging.AnomalyDetectedEvent{
		FindingID: "f-1",
		RequestID: "req-1",
		ItemName:  "Morphine 10mg",
		Quantity:  80,
		Score:     0.75,
	})

	require.NoError(t, handler.HandleAnomalyDetected(context.Background(), event))

	require.Len(t, store.created, 2)
	assert.Contains(t, store.created[0].Body, "0.75")
}
