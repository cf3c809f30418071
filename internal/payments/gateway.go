package payments

import (
	"context"

	"github.com/avdeevlv/erp_backend/internal/models"
)

type ChargeResult struct {
	TransactionID string
	RawResponse   string
}

type RefundResult struct {
	RawResponse string
}

// Gateway wraps a third-party payment processor's charge/refund calls.
// Implementations are thin HTTP boundary clients; their errors are mapped
// to FAILED payments by the reconciler.
type Gateway interface {
	Charge(ctx context.Context, amount float64, currency, idempotencyKey string, metadata map[string]string) (*ChargeResult, error)
	Refund(ctx context.Context, transactionID string, amount float64) (*RefundResult, error)
}

// Gateways routes a gateway-backed payment method to its adapter.
type Gateways map[models.PaymentMethod]Gateway
