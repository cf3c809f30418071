package inventory

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/avdeevlv/erp_backend/internal/apperr"
	"github.com/avdeevlv/erp_backend/internal/models"
)

func InitTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect to in-memory db: %v", err)
	}
	if err := db.AutoMigrate(&models.Product{}); err != nil {
		t.Fatalf("failed to migrate tables: %v", err)
	}
	return db
}

func seedProduct(t *testing.T, db *gorm.DB, stock int, active bool) models.Product {
	p := models.Product{SKU: "SKU-1", Name: "widget", Price: 20, Stock: stock, Active: active}
	require.NoError(t, db.Create(&p).Error)
	return p
}

func TestReserve(t *testing.T) {
	db := InitTestDB(t)
	ledger := &Ledger{DB: db}
	p := seedProduct(t, db, 50, true)

	remaining, err := ledger.Reserve(context.Background(), p.ID, 5)
	require.NoError(t, err)
	require.Equal(t, 45, remaining)

	var got models.Product
	require.NoError(t, db.First(&got, p.ID).Error)
	require.Equal(t, 45, got.Stock)
}

func TestReserveInsufficientStock(t *testing.T) {
	db := InitTestDB(t)
	ledger := &Ledger{DB: db}
	p := seedProduct(t, db, 3, true)

	_, err := ledger.Reserve(context.Background(), p.ID, 5)
	require.ErrorIs(t, err, ErrInsufficientStock)

	var got models.Product
	require.NoError(t, db.First(&got, p.ID).Error)
	require.Equal(t, 3, got.Stock, "failed reservation must not change stock")
}

func TestReserveInactiveProduct(t *testing.T) {
	db := InitTestDB(t)
	ledger := &Ledger{DB: db}
	p := seedProduct(t, db, 10, false)

	_, err := ledger.Reserve(context.Background(), p.ID, 1)
	require.ErrorIs(t, err, ErrInactiveProduct)
}

func TestReserveUnknownProduct(t *testing.T) {
	db := InitTestDB(t)
	ledger := &Ledger{DB: db}

	_, err := ledger.Reserve(context.Background(), 999, 1)
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestReserveInvalidQuantity(t *testing.T) {
	db := InitTestDB(t)
	ledger := &Ledger{DB: db}
	p := seedProduct(t, db, 10, true)

	_, err := ledger.Reserve(context.Background(), p.ID, 0)
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestRelease(t *testing.T) {
	db := InitTestDB(t)
	ledger := &Ledger{DB: db}
	p := seedProduct(t, db, 45, true)

	remaining, err := ledger.Release(context.Background(), p.ID, 5)
	require.NoError(t, err)
	require.Equal(t, 50, remaining)
}

func TestAdjust(t *testing.T) {
	db := InitTestDB(t)
	ledger := &Ledger{DB: db}
	p := seedProduct(t, db, 10, true)
	ctx := context.Background()

	remaining, err := ledger.Adjust(ctx, p.ID, 7, DirectionAdd)
	require.NoError(t, err)
	require.Equal(t, 17, remaining)

	remaining, err = ledger.Adjust(ctx, p.ID, 17, DirectionSubtract)
	require.NoError(t, err)
	require.Equal(t, 0, remaining)

	_, err = ledger.Adjust(ctx, p.ID, 1, DirectionSubtract)
	require.ErrorIs(t, err, ErrInsufficientStock)

	_, err = ledger.Adjust(ctx, p.ID, 1, Direction("SIDEWAYS"))
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = ledger.Adjust(ctx, p.ID, 0, DirectionAdd)
	require.ErrorIs(t, err, apperr.ErrValidation)
}
