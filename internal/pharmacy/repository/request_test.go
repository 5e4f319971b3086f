package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmatrack/pharmatrack-backend/internal/pharmacy/repository"
	"github.com/pharmatrack/pharmatrack-backend/pkg/errors"
	"github.com/pharmatrack/pharmatrack-backend/pkg/testutil"
)

func TestRequestRepository_Create(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	repo := repository.NewRequestRepository(mockDB.DB)

	req := &repository.Request{
		ItemID:      "item-1",
		DoctorID:    "doc-1",
		DoctorName:  "Dr. Adams",
		PatientID:   "pat-1",
		PatientName: "John Doe",
		Quantity:    5,
		Status:      repository.StatusPending,
		Priority:    repository.PriorityHigh,
	}

	mockDB.ExpectQuery("INSERT INTO medication_requests").
		WithArgs(sqlmock.AnyArg(), "item-1", "doc-1", "Dr. Adams", "pat-1", "John Doe", 5,
			repository.StatusPending, repository.PriorityHigh, nil).
		WillReturnRows(testutil.MockRows("requested_at").AddRow(time.Now()))

	err := repo.Create(context.Background(), req)
	require.NoError(t, err)
	assert.NotEmpty(t, req.ID, "create assigns an ID")
	assert.False(t, req.RequestedAt.IsZero())

	mockDB.ExpectationsWereMet(t)
}

func TestRequestRepository_GetByID_NotFound(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	repo := repository.NewRequestRepository(mockDB.DB)

	mockDB.ExpectQuery("FROM medication_requests r").
		WithArgs("missing").
		WillReturnRows(testutil.MockRows("id"))

	_, err := repo.GetByID(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	mockDB.ExpectationsWereMet(t)
}

func TestRequestRepository_MarkApproved(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	repo := repository.NewRequestRepository(mockDB.DB)

	mockDB.ExpectExec("UPDATE medication_requests").
		WithArgs("req-1", repository.StatusApproved, "Pharmacist Chen", repository.StatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.MarkApproved(context.Background(), "req-1", "Pharmacist Chen")
	require.NoError(t, err)
	assert.True(t, ok)

	mockDB.ExpectationsWereMet(t)
}

func TestRequestRepository_MarkApproved_AlreadyTerminal(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	repo := repository.NewRequestRepository(mockDB.DB)

	// The status guard means a non-pending row matches nothing.
	mockDB.ExpectExec("UPDATE medication_requests").
		WithArgs("req-1", repository.StatusApproved, "Pharmacist Chen", repository.StatusPending).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.MarkApproved(context.Background(), "req-1", "Pharmacist Chen")
	require.NoError(t, err)
	assert.False(t, ok)

	mockDB.ExpectationsWereMet(t)
}

func TestRequestRepository_MarkStatus(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	repo := repository.NewRequestRepository(mockDB.DB)
	note := "duplicate order"

	mockDB.ExpectExec("UPDATE medication_requests").
		WithArgs("req-1", repository.StatusRejected, note, repository.StatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.MarkStatus(context.Background(), "req-1", repository.StatusRejected, &note)
	require.NoError(t, err)
	assert.True(t, ok)

	mockDB.ExpectationsWereMet(t)
}

func TestRequestRepository_List_FiltersByStatus(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	repo := repository.NewRequestRepository(mockDB.DB)
	now := time.Now()

	mockDB.ExpectQuery("SELECT COUNT(*) FROM medication_requests r").
		WithArgs(repository.StatusPending).
		WillReturnRows(testutil.MockRows("count").AddRow(1))

	columns := []string{"id", "item_id", "doctor_id", "doctor_name", "patient_id", "patient_name", "quantity",
		"status", "priority", "notes", "requested_at", "approved_at", "approved_by", "review_note", "item_name"}
	mockDB.ExpectQuery("FROM medication_requests r").
		WithArgs(repository.StatusPending, 20, 0).
		WillReturnRows(testutil.MockRows(columns...).
			AddRow("req-1", "item-1", "doc-1", "Dr. Adams", "pat-1", "John Doe", 5,
				repository.StatusPending, repository.PriorityHigh, nil, now, nil, nil, nil, "Morphine 10mg"))

	requests, total, err := repo.List(context.Background(), repository.RequestFilter{Status: repository.StatusPending}, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, requests, 1)
	assert.Equal(t, "Morphine 10mg", requests[0].ItemName)

	mockDB.ExpectationsWereMet(t)
}
