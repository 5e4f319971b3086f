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

func itemColumns() []string {
	return []string{"id", "name", "category", "unit", "stock", "min_stock", "price", "controlled", "expiry_date", "created_at", "updated_at"}
}

func itemRow(f testutil.ItemFixture) *sqlmock.Rows {
	return testutil.MockRows(itemColumns()...).AddRow(
		f.ID, f.Name, f.Category, f.Unit, f.Stock, f.MinStock,
		f.Price.String(), f.Controlled, f.ExpiryDate, f.CreatedAt, f.UpdatedAt,
	)
}

func TestItemRepository_GetByID(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	repo := repository.NewItemRepository(mockDB.DB)
	fixtures := testutil.NewFixtureFactory()
	fixture := fixtures.Item(testutil.WithStock(42))

	mockDB.ExpectQuery("SELECT id, name, category, unit, stock, min_stock, price, controlled, expiry_date, created_at, updated_at").
		WithArgs(fixture.ID).
		WillReturnRows(itemRow(fixture))

	item, err := repo.GetByID(context.Background(), fixture.ID)
	require.NoError(t, err)
	assert.Equal(t, fixture.ID, item.ID)
	assert.Equal(t, 42, item.Stock)

	mockDB.ExpectationsWereMet(t)
}

func TestItemRepository_GetByID_NotFound(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	repo := repository.NewItemRepository(mockDB.DB)

	mockDB.ExpectQuery("SELECT id, name, category, unit, stock, min_stock, price, controlled, expiry_date, created_at, updated_at").
		WithArgs("missing").
		WillReturnRows(testutil.MockRows(itemColumns()...))

	_, err := repo.GetByID(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	mockDB.ExpectationsWereMet(t)
}

func TestItemRepository_DecrementStock(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	repo := repository.NewItemRepository(mockDB.DB)

	mockDB.ExpectQuery("UPDATE inventory_items").
		WithArgs("item-1", 20).
		WillReturnRows(testutil.MockRows("stock").AddRow(30))

	newStock, err := repo.DecrementStock(context.Background(), "item-1", 20)
	require.NoError(t, err)
	assert.Equal(t, 30, newStock)

	mockDB.ExpectationsWereMet(t)
}

func TestItemRepository_DecrementStock_Insufficient(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	repo := repository.NewItemRepository(mockDB.DB)
	fixtures := testutil.NewFixtureFactory()
	fixture := fixtures.Item(testutil.WithStock(30))

	// The guarded update matches no row, then the re-read reveals the
	// available amount.
	mockDB.ExpectQuery("UPDATE inventory_items").
		WithArgs(fixture.ID, 40).
		WillReturnRows(testutil.MockRows("stock"))
	mockDB.ExpectQuery("SELECT id, name, category, unit, stock, min_stock, price, controlled, expiry_date, created_at, updated_at").
		WithArgs(fixture.ID).
		WillReturnRows(itemRow(fixture))

	_, err := repo.DecrementStock(context.Background(), fixture.ID, 40)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInsufficientStock))

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "30", appErr.Details["available"])
	assert.Equal(t, "40", appErr.Details["requested"])

	mockDB.ExpectationsWereMet(t)
}

func TestItemRepository_AdjustStock_SubtractClampsAtZero(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	repo := repository.NewItemRepository(mockDB.DB)

	adj := &repository.StockAdjustment{
		ItemID:      "item-1",
		Mode:        repository.AdjustSubtract,
		Amount:      100,
		PerformedBy: "Pharmacist Chen",
	}

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("SELECT stock FROM inventory_items").
		WithArgs("item-1").
		WillReturnRows(testutil.MockRows("stock").AddRow(30))
	mockDB.ExpectExec("UPDATE inventory_items SET stock = $2").
		WithArgs("item-1", 0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec("INSERT INTO stock_adjustments").
		WithArgs(sqlmock.AnyArg(), "item-1", repository.AdjustSubtract, 100, 30, 0, "Pharmacist Chen", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	newStock, err := repo.AdjustStock(context.Background(), adj)
	require.NoError(t, err)
	assert.Equal(t, 0, newStock)
	assert.Equal(t, 30, adj.PreviousStock)
	assert.Equal(t, 0, adj.NewStock)

	mockDB.ExpectationsWereMet(t)
}

func TestItemRepository_AdjustStock_Add(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	repo := repository.NewItemRepository(mockDB.DB)

	adj := &repository.StockAdjustment{
		ItemID:      "item-1",
		Mode:        repository.AdjustAdd,
		Amount:      25,
		PerformedBy: "Pharmacist Chen",
	}

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("SELECT stock FROM inventory_items").
		WithArgs("item-1").
		WillReturnRows(testutil.MockRows("stock").AddRow(10))
	mockDB.ExpectExec("UPDATE inventory_items SET stock = $2").
		WithArgs("item-1", 35).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec("INSERT INTO stock_adjustments").
		WithArgs(sqlmock.AnyArg(), "item-1", repository.AdjustAdd, 25, 10, 35, "Pharmacist Chen", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	newStock, err := repo.AdjustStock(context.Background(), adj)
	require.NoError(t, err)
	assert.Equal(t, 35, newStock)

	mockDB.ExpectationsWereMet(t)
}

func TestItemRepository_AdjustStock_Set(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	repo := repository.NewItemRepository(mockDB.DB)

	adj := &repository.StockAdjustment{
		ItemID:      "item-1",
		Mode:        repository.AdjustSet,
		Amount:      75,
		PerformedBy: "Pharmacist Chen",
	}

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("SELECT stock FROM inventory_items").
		WithArgs("item-1").
		WillReturnRows(testutil.MockRows("stock").AddRow(10))
	mockDB.ExpectExec("UPDATE inventory_items SET stock = $2").
		WithArgs("item-1", 75).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectExec("INSERT INTO stock_adjustments").
		WithArgs(sqlmock.AnyArg(), "item-1", repository.AdjustSet, 75, 10, 75, "Pharmacist Chen", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mockDB.ExpectCommit()

	newStock, err := repo.AdjustStock(context.Background(), adj)
	require.NoError(t, err)
	assert.Equal(t, 75, newStock)

	mockDB.ExpectationsWereMet(t)
}

func TestItemRepository_AdjustStock_InvalidMode(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	repo := repository.NewItemRepository(mockDB.DB)

	mockDB.ExpectBegin()
	mockDB.ExpectQuery("SELECT stock FROM inventory_items").
		WithArgs("item-1").
		WillReturnRows(testutil.MockRows("stock").AddRow(10))
	mockDB.ExpectRollback()

	_, err := repo.AdjustStock(context.Background(), &repository.StockAdjustment{
		ItemID:      "item-1",
		Mode:        "divide",
		Amount:      2,
		PerformedBy: "Pharmacist Chen",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrBadRequest))

	mockDB.ExpectationsWereMet(t)
}

func TestItemRepository_AdjustStock_NegativeAmount(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	repo := repository.NewItemRepository(mockDB.DB)

	_, err := repo.AdjustStock(context.Background(), &repository.StockAdjustment{
		ItemID: "item-1",
		Mode:   repository.AdjustAdd,
		Amount: -5,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestItemRepository_ListLowStock(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	defer mockDB.Close()

	repo := repository.NewItemRepository(mockDB.DB)
	now := time.Now()

	rows := testutil.MockRows(itemColumns()...).
		AddRow("item-1", "Gauze", "supplies", "box", 2, 10, "3.50", false, nil, now, now).
		AddRow("item-2", "Saline", "fluids", "bottle", 5, 5, "1.20", false, nil, now, now)

	mockDB.ExpectQuery("WHERE stock <= min_stock").WillReturnRows(rows)

	items, err := repo.ListLowStock(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Gauze", items[0].Name)

	mockDB.ExpectationsWereMet(t)
}
