package inventory

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/avdeevlv/erp_backend/internal/apperr"
	"github.com/avdeevlv/erp_backend/internal/dbutil"
	"github.com/avdeevlv/erp_backend/internal/models"
)

var (
	ErrInsufficientStock = fmt.Errorf("%w: insufficient stock", apperr.ErrConflict)
	ErrInactiveProduct   = fmt.Errorf("%w: product is inactive", apperr.ErrConflict)
)

type Direction string

const (
	DirectionAdd      Direction = "ADD"
	DirectionSubtract Direction = "SUBTRACT"
)

// Ledger maintains per-product stock counts. Stock never goes negative:
// every subtracting mutation locks the product row and re-checks the count
// under that lock.
type Ledger struct {
	DB *gorm.DB
}

func lockProduct(ctx context.Context, tx *gorm.DB, productID uint) (*models.Product, error) {
	var product models.Product
	if err := dbutil.ForUpdate(tx.WithContext(ctx)).First(&product, productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: product %d", apperr.ErrNotFound, productID)
		}
		return nil, err
	}
	return &product, nil
}

func saveStock(ctx context.Context, tx *gorm.DB, productID uint, stock int) error {
	return tx.WithContext(ctx).Model(&models.Product{}).
		Where("id = ?", productID).
		Update("stock", stock).Error
}

// ReserveTx decrements stock within the caller's transaction, so order
// creation and its reservations commit or roll back together. It fails
// without mutating anything when the product is inactive or the quantity
// exceeds current stock, and returns the product as of the lock for
// snapshotting.
func (l *Ledger) ReserveTx(ctx context.Context, tx *gorm.DB, productID uint, quantity int) (*models.Product, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be > 0", apperr.ErrValidation)
	}

	product, err := lockProduct(ctx, tx, productID)
	if err != nil {
		return nil, err
	}
	if !product.Active {
		return nil, fmt.Errorf("%w (product %d)", ErrInactiveProduct, productID)
	}
	if quantity > product.Stock {
		return nil, fmt.Errorf("%w: product %d has %d, requested %d",
			ErrInsufficientStock, productID, product.Stock, quantity)
	}

	product.Stock -= quantity
	if err := saveStock(ctx, tx, productID, product.Stock); err != nil {
		return nil, err
	}
	return product, nil
}

// ReleaseTx returns quantity to stock within the caller's transaction.
// Used on cancellation, so it accepts inactive products and enforces no
// upper bound.
func (l *Ledger) ReleaseTx(ctx context.Context, tx *gorm.DB, productID uint, quantity int) (*models.Product, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be > 0", apperr.ErrValidation)
	}

	product, err := lockProduct(ctx, tx, productID)
	if err != nil {
		return nil, err
	}

	product.Stock += quantity
	if err := saveStock(ctx, tx, productID, product.Stock); err != nil {
		return nil, err
	}
	return product, nil
}

// Reserve is the standalone form of ReserveTx.
func (l *Ledger) Reserve(ctx context.Context, productID uint, quantity int) (int, error) {
	var remaining int
	err := l.DB.Transaction(func(tx *gorm.DB) error {
		product, err := l.ReserveTx(ctx, tx, productID, quantity)
		if err != nil {
			return err
		}
		remaining = product.Stock
		return nil
	})
	return remaining, err
}

// Release is the standalone form of ReleaseTx.
func (l *Ledger) Release(ctx context.Context, productID uint, quantity int) (int, error) {
	var remaining int
	err := l.DB.Transaction(func(tx *gorm.DB) error {
		product, err := l.ReleaseTx(ctx, tx, productID, quantity)
		if err != nil {
			return err
		}
		remaining = product.Stock
		return nil
	})
	return remaining, err
}

// Adjust applies a manual stock correction in either direction. Subtracting
// below zero fails with ErrInsufficientStock.
func (l *Ledger) Adjust(ctx context.Context, productID uint, delta int, direction Direction) (int, error) {
	if delta <= 0 {
		return 0, fmt.Errorf("%w: delta must be > 0", apperr.ErrValidation)
	}

	switch direction {
	case DirectionAdd:
		return l.Release(ctx, productID, delta)
	case DirectionSubtract:
	default:
		return 0, fmt.Errorf("%w: unknown direction %q", apperr.ErrValidation, direction)
	}

	var remaining int
	err := l.DB.Transaction(func(tx *gorm.DB) error {
		product, err := lockProduct(ctx, tx, productID)
		if err != nil {
			return err
		}
		if delta > product.Stock {
			return fmt.Errorf("%w: product %d has %d, subtracting %d",
				ErrInsufficientStock, productID, product.Stock, delta)
		}

		product.Stock -= delta
		remaining = product.Stock
		return saveStock(ctx, tx, productID, product.Stock)
	})
	return remaining, err
}
