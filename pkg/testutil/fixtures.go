package testutil

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ItemFixture represents test inventory item data
type ItemFixture struct {
	ID         string
	Name       string
	Category   string
	Unit       string
	Stock      int
	MinStock   int
	Price      decimal.Decimal
	Controlled bool
	ExpiryDate *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// RequestFixture represents test medication request data
type RequestFixture struct {
	ID          string
	ItemID      string
	DoctorID    string
	PatientID   string
	PatientName string
	Quantity    int
	Status      string
	Priority    string
	Notes       string
	RequestedAt time.Time
}

// FixtureFactory creates test fixtures with sensible defaults
type FixtureFactory struct {
	sequence int
}

// NewFixtureFactory creates a new fixture factory
func NewFixtureFactory() *FixtureFactory {
	return &FixtureFactory{sequence: 0}
}

// nextSeq returns the next sequence number for unique values
func (f *FixtureFactory) nextSeq() int {
	f.sequence++
	return f.sequence
}

// Item creates an inventory item fixture with defaults
func (f *FixtureFactory) Item(opts ...func(*ItemFixture)) ItemFixture {
	seq := f.nextSeq()

	item := ItemFixture{
		ID:         uuid.New().String(),
		Name:       fmt.Sprintf("Item %d", seq),
		Category:   "analgesic",
		Unit:       "box",
		Stock:      100,
		MinStock:   10,
		Price:      decimal.NewFromFloat(9.99),
		Controlled: false,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}

	for _, opt := range opts {
		opt(&item)
	}

	return item
}

// WithStock sets the item's stock level
func WithStock(stock int) func(*ItemFixture) {
	return func(i *ItemFixture) {
		i.Stock = stock
	}
}

// WithMinStock sets the item's minimum stock threshold
func WithMinStock(minStock int) func(*ItemFixture) {
	return func(i *ItemFixture) {
		i.MinStock = minStock
	}
}

// Controlled marks the item as a controlled substance
func Controlled() func(*ItemFixture) {
	return func(i *ItemFixture) {
		i.Controlled = true
	}
}

// WithExpiry sets the item's expiry date
func WithExpiry(t time.Time) func(*ItemFixture) {
	return func(i *ItemFixture) {
		i.ExpiryDate = &t
	}
}

// Request creates a medication request fixture with defaults
func (f *FixtureFactory) Request(itemID string, opts ...func(*RequestFixture)) RequestFixture {
	seq := f.nextSeq()

	req := RequestFixture{
		ID:          uuid.New().String(),
		ItemID:      itemID,
		DoctorID:    uuid.New().String(),
		PatientID:   uuid.New().String(),
		PatientName: fmt.Sprintf("Patient %d", seq),
		Quantity:    5,
		Status:      "Pending",
		Priority:    "normal",
		RequestedAt: time.Now(),
	}

	for _, opt := range opts {
		opt(&req)
	}

	return req
}

// WithQuantity sets the request quantity
func WithQuantity(qty int) func(*RequestFixture) {
	return func(r *RequestFixture) {
		r.Quantity = qty
	}
}

// WithRequestStatus sets the request status
func WithRequestStatus(status string) func(*RequestFixture) {
	return func(r *RequestFixture) {
		r.Status = status
	}
}

// WithDoctor sets the requesting doctor
func WithDoctor(doctorID string) func(*RequestFixture) {
	return func(r *RequestFixture) {
		r.DoctorID = doctorID
	}
}
