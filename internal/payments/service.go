package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/avdeevlv/erp_backend/internal/apperr"
	"github.com/avdeevlv/erp_backend/internal/dbutil"
	"github.com/avdeevlv/erp_backend/internal/logging"
	"github.com/avdeevlv/erp_backend/internal/models"
	"github.com/avdeevlv/erp_backend/internal/notify"
)

var (
	ErrNotPayable     = fmt.Errorf("%w: order is not payable in its current status", apperr.ErrConflict)
	ErrInvalidAmount  = fmt.Errorf("%w: amount must be > 0", apperr.ErrValidation)
	ErrOverpayment    = fmt.Errorf("%w: payment would exceed the order total", apperr.ErrConflict)
	ErrUnderpayment   = fmt.Errorf("%w: payment must cover the full remaining balance", apperr.ErrConflict)
	ErrNotRefundable  = fmt.Errorf("%w: only completed payments can be refunded", apperr.ErrConflict)
	ErrRefundExceeds  = fmt.Errorf("%w: refund exceeds the payment amount", apperr.ErrConflict)
	ErrRefundFailed   = errors.New("refund failed")
	ErrChargeFailed   = errors.New("charge failed")
	ErrUnknownGateway = fmt.Errorf("%w: unsupported payment method", apperr.ErrValidation)
)

const defaultCurrency = "USD"

type Service struct {
	DB       *gorm.DB
	Gateways Gateways
	Sink     notify.Sink
}

type CreateRequest struct {
	OrderID    uint                 `json:"order_id"`
	CustomerID uint                 `json:"customer_id"`
	Amount     float64              `json:"amount"`
	Method     models.PaymentMethod `json:"payment_method"`
	Currency   string               `json:"currency"`
	Metadata   string               `json:"metadata"`
}

// Create accepts a payment against an order. The balance check and the
// payment insert run in one transaction with the order row locked, so two
// concurrent payments cannot jointly overpay. Gateway dispatch happens
// after commit: an external call never holds database locks, and its
// outcome is written back in a follow-up update.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.Payment, error) {
	l := logging.FromContext(ctx).With("svc", "payments.create")

	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if req.Method == "" {
		return nil, fmt.Errorf("%w: payment method required", apperr.ErrValidation)
	}
	if req.Method.Gateway() {
		if _, ok := s.Gateways[req.Method]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownGateway, req.Method)
		}
	}

	currency := req.Currency
	if currency == "" {
		currency = defaultCurrency
	}

	var (
		payment  models.Payment
		customer models.Customer
	)
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var order models.Order
		if err := dbutil.ForUpdate(tx.WithContext(ctx)).First(&order, req.OrderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: order %d", apperr.ErrNotFound, req.OrderID)
			}
			return err
		}
		if err := tx.WithContext(ctx).First(&customer, req.CustomerID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: customer %d", apperr.ErrNotFound, req.CustomerID)
			}
			return err
		}

		if order.Status != models.OrderStatusPending && order.Status != models.OrderStatusConfirmed {
			return fmt.Errorf("%w (order %d is %s)", ErrNotPayable, order.ID, order.Status)
		}

		totalPaid, err := completedTotal(ctx, tx, order.ID)
		if err != nil {
			return err
		}

		if totalPaid+req.Amount > order.Total {
			return fmt.Errorf("%w: paid %.2f + %.2f > total %.2f",
				ErrOverpayment, totalPaid, req.Amount, order.Total)
		}
		remaining := order.Total - totalPaid
		if req.Amount < remaining {
			return fmt.Errorf("%w: %.2f < remaining %.2f", ErrUnderpayment, req.Amount, remaining)
		}

		payment = models.Payment{
			OrderID:    order.ID,
			CustomerID: customer.ID,
			Amount:     req.Amount,
			Currency:   currency,
			Method:     req.Method,
			Status:     models.PaymentStatusPending,
			Metadata:   req.Metadata,
		}
		return tx.WithContext(ctx).Create(&payment).Error
	})
	if err != nil {
		return nil, err
	}

	if !req.Method.Gateway() {
		// Manual methods stay PENDING until confirmed out of band.
		l.Info("payment_recorded", "payment_id", payment.ID, "method", payment.Method)
		s.Sink.Notify(ctx, notify.TopicPaymentEvents, notify.Event{
			Type:         "payment_recorded",
			TargetUserID: customer.UserID,
			Payload:      paymentPayload(&payment),
		})
		return &payment, nil
	}

	return s.dispatch(ctx, &payment, customer.UserID)
}

func (s *Service) dispatch(ctx context.Context, payment *models.Payment, targetUserID uint) (*models.Payment, error) {
	l := logging.FromContext(ctx).With("svc", "payments.dispatch", "payment_id", payment.ID)
	gw := s.Gateways[payment.Method]

	payment.Status = models.PaymentStatusProcessing
	if err := s.DB.WithContext(ctx).Save(payment).Error; err != nil {
		return nil, err
	}

	result, err := gw.Charge(ctx, payment.Amount, payment.Currency, uuid.NewString(), map[string]string{
		"payment_id": fmt.Sprint(payment.ID),
		"order_id":   fmt.Sprint(payment.OrderID),
	})
	if err != nil {
		payment.Status = models.PaymentStatusFailed
		payment.ErrorMessage = err.Error()
		if saveErr := s.DB.WithContext(ctx).Save(payment).Error; saveErr != nil {
			l.Error("payment_save_failed", "error", saveErr)
		}

		failed := notify.Event{
			Type:         "payment_failed",
			TargetUserID: targetUserID,
			Payload:      paymentPayload(payment),
		}
		s.Sink.Notify(ctx, notify.TopicPaymentEvents, failed)
		failed.TargetUserID = 0
		failed.Broadcast = true
		s.Sink.Notify(ctx, notify.TopicPaymentEvents, failed)

		l.Warn("payment_failed", "method", payment.Method, "error", err)
		return payment, fmt.Errorf("%w: %v", ErrChargeFailed, err)
	}

	// Completion re-verifies the balance under the order row lock: another
	// payment may have completed while this charge was in flight, and the
	// sum of completed payments must never exceed the order total.
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		var order models.Order
		if err := dbutil.ForUpdate(tx.WithContext(ctx)).First(&order, payment.OrderID).Error; err != nil {
			return err
		}
		totalPaid, err := completedTotal(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		if totalPaid+payment.Amount > order.Total {
			return fmt.Errorf("%w: paid %.2f + %.2f > total %.2f",
				ErrOverpayment, totalPaid, payment.Amount, order.Total)
		}

		payment.Status = models.PaymentStatusCompleted
		payment.TransactionID = result.TransactionID
		payment.GatewayResponse = result.RawResponse
		return tx.WithContext(ctx).Save(payment).Error
	})
	if err != nil {
		if !errors.Is(err, ErrOverpayment) {
			return nil, err
		}
		return s.void(ctx, payment, gw, result, targetUserID, err)
	}

	s.Sink.Notify(ctx, notify.TopicPaymentEvents, notify.Event{
		Type:         "payment_completed",
		TargetUserID: targetUserID,
		Payload:      paymentPayload(payment),
	})

	l.Info("payment_completed", "method", payment.Method, "transaction_id", payment.TransactionID)
	return payment, nil
}

// void reverses a charge that lost the completion race: the order was fully
// paid by a concurrent payment while this one was at the gateway. The charge
// is refunded best-effort and the payment recorded as FAILED.
func (s *Service) void(ctx context.Context, payment *models.Payment, gw Gateway, result *ChargeResult, targetUserID uint, cause error) (*models.Payment, error) {
	l := logging.FromContext(ctx).With("svc", "payments.void", "payment_id", payment.ID)

	if _, err := gw.Refund(ctx, result.TransactionID, payment.Amount); err != nil {
		l.Error("charge_reversal_failed", "transaction_id", result.TransactionID, "error", err)
	}

	payment.Status = models.PaymentStatusFailed
	payment.TransactionID = result.TransactionID
	payment.ErrorMessage = "charge reversed: order already fully paid"
	if err := s.DB.WithContext(ctx).Save(payment).Error; err != nil {
		l.Error("payment_save_failed", "error", err)
	}

	s.Sink.Notify(ctx, notify.TopicPaymentEvents, notify.Event{
		Type:         "payment_failed",
		TargetUserID: targetUserID,
		Payload:      paymentPayload(payment),
	})

	l.Warn("payment_voided", "method", payment.Method, "transaction_id", payment.TransactionID)
	return payment, cause
}

func completedTotal(ctx context.Context, tx *gorm.DB, orderID uint) (float64, error) {
	var total float64
	err := tx.WithContext(ctx).Model(&models.Payment{}).
		Where("order_id = ? AND status = ?", orderID, models.PaymentStatusCompleted).
		Select("COALESCE(SUM(amount), 0)").Scan(&total).Error
	return total, err
}

// Refund reverses part or all of a completed payment. With no amount given
// the full payment is refunded.
func (s *Service) Refund(ctx context.Context, paymentID uint, amount *float64, reason string) (*models.Payment, error) {
	l := logging.FromContext(ctx).With("svc", "payments.refund", "payment_id", paymentID)

	var payment models.Payment
	if err := s.DB.WithContext(ctx).First(&payment, paymentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: payment %d", apperr.ErrNotFound, paymentID)
		}
		return nil, err
	}

	if payment.Status != models.PaymentStatusCompleted {
		return nil, fmt.Errorf("%w (payment %d is %s)", ErrNotRefundable, payment.ID, payment.Status)
	}

	refundAmount := payment.Amount
	if amount != nil {
		refundAmount = *amount
	}
	if refundAmount <= 0 {
		return nil, ErrInvalidAmount
	}
	if refundAmount > payment.Amount {
		return nil, fmt.Errorf("%w: %.2f > %.2f", ErrRefundExceeds, refundAmount, payment.Amount)
	}

	if payment.Method.Gateway() && payment.TransactionID != "" {
		gw, ok := s.Gateways[payment.Method]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownGateway, payment.Method)
		}
		if _, err := gw.Refund(ctx, payment.TransactionID, refundAmount); err != nil {
			l.Warn("refund_failed", "error", err)
			return nil, fmt.Errorf("%w: %v", ErrRefundFailed, err)
		}
	}

	now := time.Now()
	payment.RefundAmount = refundAmount
	payment.RefundedAt = &now
	if refundAmount == payment.Amount {
		payment.Status = models.PaymentStatusRefunded
	} else {
		payment.Status = models.PaymentStatusPartiallyRefunded
	}
	if err := s.DB.WithContext(ctx).Save(&payment).Error; err != nil {
		return nil, err
	}

	s.Sink.Notify(ctx, notify.TopicPaymentEvents, notify.Event{
		Type:         "payment_refunded",
		TargetUserID: s.customerUserID(ctx, payment.CustomerID),
		Payload: map[string]any{
			"payment_id":    payment.ID,
			"order_id":      payment.OrderID,
			"refund_amount": refundAmount,
			"status":        payment.Status,
			"reason":        reason,
		},
	})

	l.Info("payment_refunded", "amount", refundAmount, "status", payment.Status)
	return &payment, nil
}

func (s *Service) Get(ctx context.Context, paymentID uint) (*models.Payment, error) {
	var payment models.Payment
	if err := s.DB.WithContext(ctx).First(&payment, paymentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: payment %d", apperr.ErrNotFound, paymentID)
		}
		return nil, err
	}
	return &payment, nil
}

// ListForOrder returns all payments recorded against one order, oldest
// first.
func (s *Service) ListForOrder(ctx context.Context, orderID uint) ([]models.Payment, error) {
	var list []models.Payment
	if err := s.DB.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (s *Service) customerUserID(ctx context.Context, customerID uint) uint {
	var customer models.Customer
	if err := s.DB.WithContext(ctx).First(&customer, customerID).Error; err != nil {
		return 0
	}
	return customer.UserID
}

func paymentPayload(p *models.Payment) map[string]any {
	return map[string]any{
		"payment_id": p.ID,
		"order_id":   p.OrderID,
		"amount":     p.Amount,
		"currency":   p.Currency,
		"method":     p.Method,
		"status":     p.Status,
		"error":      p.ErrorMessage,
	}
}
