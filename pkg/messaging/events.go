package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	// Request lifecycle events
	EventRequestCreated   = "pharmacy.request.created"
	EventRequestApproved  = "pharmacy.request.approved"
	EventRequestRejected  = "pharmacy.request.rejected"
	EventRequestCancelled = "pharmacy.request.cancelled"

	// Inventory events
	EventStockAdjusted = "inventory.stock.adjusted"
	EventLowStock      = "inventory.alert.low_stock"

	// Heuristic events
	EventAnomalyDetected = "pharmacy.anomaly.detected"
)

// Exchange names
const (
	ExchangePharmacyEvents  = "pharmacy.events"
	ExchangeInventoryEvents = "inventory.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            uuid.New().String(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// Request lifecycle events

// RequestCreatedEvent is published when a doctor submits a request
type RequestCreatedEvent struct {
	RequestID string `json:"request_id"`
	ItemID    string `json:"item_id"`
	ItemName  string `json:"item_name"`
	DoctorID  string `json:"doctor_id"`
	Quantity  int    `json:"quantity"`
	Status    string `json:"status"`
	Priority  string `json:"priority"`
}

// RequestApprovedEvent is published when a pending request is approved
type RequestApprovedEvent struct {
	RequestID  string `json:"request_id"`
	ItemID     string `json:"item_id"`
	ItemName   string `json:"item_name"`
	DoctorID   string `json:"doctor_id"`
	Quantity   int    `json:"quantity"`
	ApprovedBy string `json:"approved_by"`
	NewStock   int    `json:"new_stock"`
}

// RequestRejectedEvent is published when a pending request is rejected
type RequestRejectedEvent struct {
	RequestID  string `json:"request_id"`
	ItemID     string `json:"item_id"`
	ItemName   string `json:"item_name"`
	DoctorID   string `json:"doctor_id"`
	Quantity   int    `json:"quantity"`
	RejectedBy string `json:"rejected_by"`
	Reason     string `json:"reason,omitempty"`
}

// RequestCancelledEvent is published when a doctor cancels a pending request
type RequestCancelledEvent struct {
	RequestID   string `json:"request_id"`
	ItemID      string `json:"item_id"`
	ItemName    string `json:"item_name"`
	DoctorID    string `json:"doctor_id"`
	Quantity    int    `json:"quantity"`
	CancelledBy string `json:"cancelled_by"`
}

// Inventory events

// StockAdjustedEvent is published when item stock changes
type StockAdjustedEvent struct {
	ItemID      string `json:"item_id"`
	Mode        string `json:"mode"`
	Amount      int    `json:"amount"`
	NewStock    int    `json:"new_stock"`
	PerformedBy string `json:"performed_by"`
	Reason      string `json:"reason,omitempty"`
}

// LowStockEvent is published when stock falls to or below the minimum
type LowStockEvent struct {
	ItemID   string `json:"item_id"`
	ItemName string `json:"item_name"`
	Stock    int    `json:"stock"`
	MinStock int    `json:"min_stock"`
	Severity string `json:"severity"`
}

// Heuristic events

// AnomalyDetectedEvent is published when a request scores as a statistical outlier
type AnomalyDetectedEvent struct {
	FindingID string   `json:"finding_id"`
	RequestID string   `json:"request_id"`
	ItemID    string   `json:"item_id"`
	ItemName  string   `json:"item_name"`
	DoctorID  string   `json:"doctor_id"`
	Quantity  int      `json:"quantity"`
	Score     float64  `json:"score"`
	Reasons   []string `json:"reasons"`
}
