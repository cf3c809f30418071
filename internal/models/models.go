package models

import (
	"time"
)

type User struct {
	ID           uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string `gorm:"unique;not null"          json:"username"`
	PasswordHash string `gorm:"not null"                 json:"-"`
	Role         string `gorm:"not null"                 json:"role"`
}

type RefreshToken struct {
	ID        uint   `gorm:"primaryKey"          json:"id"`
	Token     string `gorm:"unique;not null"     json:"token"`
	JTI       string `gorm:"index"               json:"jti"`
	Role      string `gorm:"not null"            json:"role"`
	UserID    uint   `gorm:"index;not null"      json:"user_id"`
	ExpiresAt int64  `gorm:"not null"            json:"expires_at"`
	Revoked   bool   `gorm:"default:false"       json:"revoked"`
}

type Product struct {
	ID          uint    `gorm:"primaryKey;autoIncrement"    json:"id"`
	SKU         string  `gorm:"uniqueIndex;not null"        json:"sku"`
	Name        string  `gorm:"not null"                    json:"name"`
	Description string  `json:"description"`
	Price       float64 `gorm:"type:decimal(10,2);not null" json:"price"`
	Stock       int     `gorm:"not null;default:0"          json:"stock"`
	Active      bool    `gorm:"not null;default:true"       json:"active"`
}

type Customer struct {
	ID            uint    `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID        uint    `gorm:"index"                    json:"user_id"`
	FirstName     string  `gorm:"not null"                 json:"first_name"`
	LastName      string  `gorm:"not null"                 json:"last_name"`
	Email         string  `gorm:"uniqueIndex;not null"     json:"email"`
	Phone         string  `json:"phone"`
	Address       string  `json:"address"`
	Preferences   string  `json:"preferences"`
	CreditLimit   float64 `gorm:"type:decimal(10,2);default:0" json:"credit_limit"`
	LoyaltyPoints uint    `gorm:"default:0"                json:"loyalty_points"`
	VIP           bool    `gorm:"default:false"            json:"vip"`
	Active        bool    `gorm:"not null;default:true"    json:"active"`
}

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusShipped   OrderStatus = "SHIPPED"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusRefunded  OrderStatus = "REFUNDED"
)

type Order struct {
	ID                 uint        `gorm:"primaryKey;autoIncrement"    json:"id"`
	Number             string      `gorm:"uniqueIndex;not null"        json:"number"`
	CustomerID         uint        `gorm:"index;not null"              json:"customer_id"`
	Status             OrderStatus `gorm:"type:text;not null;index"    json:"status"`
	Items              []OrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items"`
	Subtotal           float64     `gorm:"type:decimal(10,2);not null" json:"subtotal"`
	Tax                float64     `gorm:"type:decimal(10,2);not null" json:"tax"`
	Shipping           float64     `gorm:"type:decimal(10,2);not null" json:"shipping"`
	Discount           float64     `gorm:"type:decimal(10,2);not null" json:"discount"`
	Total              float64     `gorm:"type:decimal(10,2);not null" json:"total"`
	ShippingAddress    string      `gorm:"not null"                    json:"shipping_address"`
	BillingAddress     string      `gorm:"not null"                    json:"billing_address"`
	Notes              string      `json:"notes"`
	CancelReason       string      `json:"cancel_reason,omitempty"`
	ExpectedDeliveryAt *time.Time  `json:"expected_delivery_at,omitempty"`
	DeliveredAt        *time.Time  `json:"delivered_at,omitempty"`
	CreatedAt          time.Time   `gorm:"index"                       json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

// OrderItem snapshots the product name and unit price at creation time,
// so later product changes never alter historical orders.
type OrderItem struct {
	ID          uint    `gorm:"primaryKey"                  json:"id"`
	OrderID     uint    `gorm:"index;not null"              json:"order_id"`
	ProductID   uint    `gorm:"index;not null"              json:"product_id"`
	ProductName string  `gorm:"not null"                    json:"product_name"`
	Quantity    int     `gorm:"not null;check:quantity>0"   json:"quantity"`
	UnitPrice   float64 `gorm:"type:decimal(10,2);not null" json:"unit_price"`
	LineTotal   float64 `gorm:"type:decimal(10,2);not null" json:"line_total"`
}

type PaymentMethod string

const (
	PaymentMethodStripe       PaymentMethod = "STRIPE"
	PaymentMethodPayPal       PaymentMethod = "PAYPAL"
	PaymentMethodMaya         PaymentMethod = "MAYA"
	PaymentMethodCash         PaymentMethod = "CASH"
	PaymentMethodBankTransfer PaymentMethod = "BANK_TRANSFER"
)

// Gateway reports whether the method is charged through an external
// payment gateway, as opposed to being recorded manually.
func (m PaymentMethod) Gateway() bool {
	switch m {
	case PaymentMethodStripe, PaymentMethodPayPal, PaymentMethodMaya:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentStatusPending           PaymentStatus = "PENDING"
	PaymentStatusProcessing        PaymentStatus = "PROCESSING"
	PaymentStatusCompleted         PaymentStatus = "COMPLETED"
	PaymentStatusFailed            PaymentStatus = "FAILED"
	PaymentStatusRefunded          PaymentStatus = "REFUNDED"
	PaymentStatusPartiallyRefunded PaymentStatus = "PARTIALLY_REFUNDED"
)

type Payment struct {
	ID              uint          `gorm:"primaryKey;autoIncrement"     json:"id"`
	OrderID         uint          `gorm:"index;not null"               json:"order_id"`
	CustomerID      uint          `gorm:"index;not null"               json:"customer_id"`
	Amount          float64       `gorm:"type:decimal(10,2);not null"  json:"amount"`
	Currency        string        `gorm:"size:8;not null"              json:"currency"`
	Method          PaymentMethod `gorm:"type:text;not null"           json:"method"`
	Status          PaymentStatus `gorm:"type:text;not null;index"     json:"status"`
	TransactionID   string        `gorm:"index"                        json:"transaction_id,omitempty"`
	GatewayResponse string        `json:"gateway_response,omitempty"`
	ErrorMessage    string        `json:"error_message,omitempty"`
	RefundAmount    float64       `gorm:"type:decimal(10,2);default:0" json:"refund_amount"`
	RefundedAt      *time.Time    `json:"refunded_at,omitempty"`
	Metadata        string        `json:"metadata,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}
