package orders

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/avdeevlv/erp_backend/internal/apperr"
	"github.com/avdeevlv/erp_backend/internal/dbutil"
	"github.com/avdeevlv/erp_backend/internal/inventory"
	"github.com/avdeevlv/erp_backend/internal/logging"
	"github.com/avdeevlv/erp_backend/internal/models"
	"github.com/avdeevlv/erp_backend/internal/notify"
)

var (
	ErrInvalidTransition = fmt.Errorf("%w: invalid status transition", apperr.ErrConflict)
	ErrNotEditable       = fmt.Errorf("%w: order can only be edited while pending", apperr.ErrConflict)
	ErrNotCancellable    = fmt.Errorf("%w: order can no longer be cancelled", apperr.ErrConflict)
)

const (
	taxRate           = 0.10
	shippingFlatFee   = 10.0
	freeShippingAbove = 100.0
)

// transitions is the full order lifecycle; a status absent from the map is
// terminal.
var transitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderStatusPending:   {models.OrderStatusConfirmed, models.OrderStatusCancelled},
	models.OrderStatusConfirmed: {models.OrderStatusShipped, models.OrderStatusCancelled},
	models.OrderStatusShipped:   {models.OrderStatusDelivered},
	models.OrderStatusDelivered: {models.OrderStatusRefunded},
}

func transitionAllowed(from, to models.OrderStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type Service struct {
	DB     *gorm.DB
	Ledger *inventory.Ledger
	Sink   notify.Sink
}

type CreateItem struct {
	ProductID uint `json:"product_id"`
	Quantity  int  `json:"quantity"`
}

type CreateRequest struct {
	CustomerID      uint         `json:"customer_id"`
	Items           []CreateItem `json:"items"`
	ShippingAddress string       `json:"shipping_address"`
	BillingAddress  string       `json:"billing_address"`
	Notes           string       `json:"notes"`
}

type UpdateRequest struct {
	ShippingAddress    *string    `json:"shipping_address"`
	BillingAddress     *string    `json:"billing_address"`
	Notes              *string    `json:"notes"`
	ExpectedDeliveryAt *time.Time `json:"expected_delivery_at"`
}

type ListFilter struct {
	Status     models.OrderStatus
	CustomerID uint
	StartDate  *time.Time
	EndDate    *time.Time
	Limit      int
	Offset     int
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Create validates the cart against the customer and product catalog,
// reserves stock, and persists the order — all in one transaction, so a
// failed reservation never leaves a half-created order behind. The order
// number carries a unique index; on the rare collision the whole
// transaction is retried with a fresh number.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.Order, error) {
	l := logging.FromContext(ctx).With("svc", "orders.create")

	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: items required", apperr.ErrValidation)
	}
	if req.ShippingAddress == "" || req.BillingAddress == "" {
		return nil, fmt.Errorf("%w: shipping and billing addresses required", apperr.ErrValidation)
	}

	var (
		order    *models.Order
		customer *models.Customer
		err      error
	)
	for attempt := 0; attempt < maxNumberAttempts; attempt++ {
		order, customer, err = s.createOnce(ctx, req)
		if err == nil || !isDuplicateNumber(err) {
			break
		}
		l.Warn("order_number_collision", "attempt", attempt+1)
	}
	if err != nil {
		return nil, err
	}

	s.Sink.Notify(ctx, notify.TopicOrderEvents, notify.Event{
		Type:         "order_created",
		TargetUserID: customer.UserID,
		Payload: map[string]any{
			"order_id":    order.ID,
			"number":      order.Number,
			"customer_id": order.CustomerID,
			"total":       order.Total,
			"items":       order.Items,
		},
	})

	l.Info("order_created", "order_id", order.ID, "number", order.Number, "total", order.Total)
	return order, nil
}

func (s *Service) createOnce(ctx context.Context, req CreateRequest) (*models.Order, *models.Customer, error) {
	var (
		order    models.Order
		customer models.Customer
	)
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).First(&customer, req.CustomerID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: customer %d", apperr.ErrNotFound, req.CustomerID)
			}
			return err
		}
		if !customer.Active {
			return fmt.Errorf("%w: customer %d", apperr.ErrNotFound, req.CustomerID)
		}

		var (
			items    []models.OrderItem
			subtotal float64
		)
		for _, it := range req.Items {
			if it.Quantity <= 0 {
				return fmt.Errorf("%w: quantity must be > 0", apperr.ErrValidation)
			}
			product, err := s.Ledger.ReserveTx(ctx, tx, it.ProductID, it.Quantity)
			if err != nil {
				return err
			}

			lineTotal := round2(product.Price * float64(it.Quantity))
			items = append(items, models.OrderItem{
				ProductID:   product.ID,
				ProductName: product.Name,
				Quantity:    it.Quantity,
				UnitPrice:   product.Price,
				LineTotal:   lineTotal,
			})
			subtotal = round2(subtotal + lineTotal)
		}

		tax := round2(subtotal * taxRate)
		shipping := shippingFlatFee
		if subtotal > freeShippingAbove {
			shipping = 0
		}
		discount := 0.0
		total := round2(subtotal + tax + shipping - discount)

		order = models.Order{
			Number:          newOrderNumber(),
			CustomerID:      customer.ID,
			Status:          models.OrderStatusPending,
			Items:           items,
			Subtotal:        subtotal,
			Tax:             tax,
			Shipping:        shipping,
			Discount:        discount,
			Total:           total,
			ShippingAddress: req.ShippingAddress,
			BillingAddress:  req.BillingAddress,
			Notes:           req.Notes,
		}
		return tx.WithContext(ctx).Create(&order).Error
	})
	if err != nil {
		return nil, nil, err
	}
	return &order, &customer, nil
}

func isDuplicateNumber(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique")
}

func (s *Service) lockOrder(ctx context.Context, tx *gorm.DB, orderID uint) (*models.Order, error) {
	var order models.Order
	if err := dbutil.ForUpdate(tx.WithContext(ctx)).First(&order, orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: order %d", apperr.ErrNotFound, orderID)
		}
		return nil, err
	}
	if err := tx.WithContext(ctx).Where("order_id = ?", orderID).Find(&order.Items).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Service) customerUserID(ctx context.Context, customerID uint) uint {
	var customer models.Customer
	if err := s.DB.WithContext(ctx).First(&customer, customerID).Error; err != nil {
		return 0
	}
	return customer.UserID
}

// UpdateStatus drives the order state machine. A transition to DELIVERED
// stamps the delivery date.
func (s *Service) UpdateStatus(ctx context.Context, orderID uint, newStatus models.OrderStatus) (*models.Order, error) {
	l := logging.FromContext(ctx).With("svc", "orders.update_status")

	var (
		order     *models.Order
		oldStatus models.OrderStatus
	)
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = s.lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		oldStatus = order.Status
		if !transitionAllowed(order.Status, newStatus) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, newStatus)
		}

		order.Status = newStatus
		if newStatus == models.OrderStatusDelivered {
			now := time.Now()
			order.DeliveredAt = &now
		}
		return tx.WithContext(ctx).Save(order).Error
	})
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"order_id":   order.ID,
		"number":     order.Number,
		"old_status": oldStatus,
		"new_status": order.Status,
	}
	s.Sink.Notify(ctx, notify.TopicOrderEvents, notify.Event{
		Type:         "order_status_updated",
		TargetUserID: s.customerUserID(ctx, order.CustomerID),
		Payload:      payload,
	})
	s.Sink.Notify(ctx, notify.TopicOrderEvents, notify.Event{
		Type:      "order_status_changed",
		Broadcast: true,
		Payload:   payload,
	})

	l.Info("order_status_updated", "order_id", order.ID, "from", oldStatus, "to", order.Status)
	return order, nil
}

// Update patches address, notes and expected delivery date. Only pending
// orders are editable.
func (s *Service) Update(ctx context.Context, orderID uint, req UpdateRequest) (*models.Order, error) {
	var order *models.Order
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = s.lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order.Status != models.OrderStatusPending {
			return fmt.Errorf("%w (order %d is %s)", ErrNotEditable, order.ID, order.Status)
		}

		if req.ShippingAddress != nil {
			order.ShippingAddress = *req.ShippingAddress
		}
		if req.BillingAddress != nil {
			order.BillingAddress = *req.BillingAddress
		}
		if req.Notes != nil {
			order.Notes = *req.Notes
		}
		if req.ExpectedDeliveryAt != nil {
			order.ExpectedDeliveryAt = req.ExpectedDeliveryAt
		}
		return tx.WithContext(ctx).Save(order).Error
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// Cancel moves a pending or confirmed order to CANCELLED and returns its
// reserved stock to the ledger in the same transaction, so a repeated
// cancel cannot release twice.
func (s *Service) Cancel(ctx context.Context, orderID uint, reason string) (*models.Order, error) {
	l := logging.FromContext(ctx).With("svc", "orders.cancel")

	var order *models.Order
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = s.lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order.Status != models.OrderStatusPending && order.Status != models.OrderStatusConfirmed {
			return fmt.Errorf("%w (order %d is %s)", ErrNotCancellable, order.ID, order.Status)
		}

		for _, it := range order.Items {
			if _, err := s.Ledger.ReleaseTx(ctx, tx, it.ProductID, it.Quantity); err != nil {
				return err
			}
		}

		order.Status = models.OrderStatusCancelled
		order.CancelReason = reason
		if reason != "" {
			if order.Notes != "" {
				order.Notes += "\n"
			}
			order.Notes += "cancelled: " + reason
		}
		return tx.WithContext(ctx).Save(order).Error
	})
	if err != nil {
		return nil, err
	}

	s.Sink.Notify(ctx, notify.TopicOrderEvents, notify.Event{
		Type:         "order_cancelled",
		TargetUserID: s.customerUserID(ctx, order.CustomerID),
		Payload: map[string]any{
			"order_id": order.ID,
			"number":   order.Number,
			"reason":   reason,
		},
	})

	l.Info("order_cancelled", "order_id", order.ID, "reason", reason)
	return order, nil
}

// Remove hard-deletes a pending order and releases its reserved stock.
func (s *Service) Remove(ctx context.Context, orderID uint) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		order, err := s.lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order.Status != models.OrderStatusPending {
			return fmt.Errorf("%w (order %d is %s)", ErrNotEditable, order.ID, order.Status)
		}

		for _, it := range order.Items {
			if _, err := s.Ledger.ReleaseTx(ctx, tx, it.ProductID, it.Quantity); err != nil {
				return err
			}
		}

		if err := tx.WithContext(ctx).Where("order_id = ?", order.ID).Delete(&models.OrderItem{}).Error; err != nil {
			return err
		}
		return tx.WithContext(ctx).Delete(&models.Order{}, order.ID).Error
	})
}

func (s *Service) Get(ctx context.Context, orderID uint) (*models.Order, error) {
	var order models.Order
	if err := s.DB.WithContext(ctx).Preload("Items").First(&order, orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: order %d", apperr.ErrNotFound, orderID)
		}
		return nil, err
	}
	return &order, nil
}

// List returns one page of orders plus the unpaged total.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]models.Order, int64, error) {
	q := s.DB.WithContext(ctx).Model(&models.Order{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.CustomerID != 0 {
		q = q.Where("customer_id = ?", filter.CustomerID)
	}
	if filter.StartDate != nil {
		q = q.Where("created_at >= ?", *filter.StartDate)
	}
	if filter.EndDate != nil {
		q = q.Where("created_at <= ?", *filter.EndDate)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	var orders []models.Order
	if err := q.Preload("Items").Order("created_at DESC").
		Limit(limit).Offset(filter.Offset).Find(&orders).Error; err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}
