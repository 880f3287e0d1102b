package entity

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string
type PaymentMethod string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"

	PaymentBankTransfer   PaymentMethod = "bank_transfer"
	PaymentCashOnDelivery PaymentMethod = "cash_on_delivery"
	PaymentEWallet        PaymentMethod = "e_wallet"
	PaymentCreditCard     PaymentMethod = "credit_card"
)

var (
	ErrInvalidOrderStatus   = errors.New("invalid order status")
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	ErrInvalidTransition    = errors.New("order status transition not allowed")
)

// transitions lists the statuses a privileged role may move an order to.
var transitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered},
}

// Order is the durable record of a committed purchase.
type Order struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	ShippingFee     decimal.Decimal `json:"shipping_fee"`
	Status          OrderStatus     `json:"status"`
	PaymentMethod   PaymentMethod   `json:"payment_method"`
	ShippingAddress string          `json:"shipping_address"`
	CreatedAt       time.Time       `json:"created_at"`
	Items           []OrderItem     `json:"items,omitempty"`
}

// OrderItem copies the price at the time of order; it never follows Product.Price.
type OrderItem struct {
	ID        string          `json:"id"`
	OrderID   string          `json:"order_id"`
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// LineTotal is Price × Quantity.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

func ParseOrderStatus(status string) (OrderStatus, error) {
	switch s := OrderStatus(strings.ToLower(strings.TrimSpace(status))); s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return s, nil
	default:
		return "", ErrInvalidOrderStatus
	}
}

func ParsePaymentMethod(method string) (PaymentMethod, error) {
	switch m := PaymentMethod(strings.ToLower(strings.TrimSpace(method))); m {
	case PaymentBankTransfer, PaymentCashOnDelivery, PaymentEWallet, PaymentCreditCard:
		return m, nil
	default:
		return "", ErrInvalidPaymentMethod
	}
}

// CanTransition reports whether an order in status from may be moved to to.
func (from OrderStatus) CanTransition(to OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

/*
Schema for orders and order_items:
CREATE TABLE orders (
	id VARCHAR(64) PRIMARY KEY,
	user_id VARCHAR(64) NOT NULL,
	total_amount DECIMAL(14,2) NOT NULL,
	shipping_fee DECIMAL(14,2) NOT NULL,
	status VARCHAR(20) NOT NULL,
	payment_method VARCHAR(32) NOT NULL,
	shipping_address TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE order_items (
	id VARCHAR(64) PRIMARY KEY,
	order_id VARCHAR(64) NOT NULL REFERENCES orders(id),
	product_id VARCHAR(64) NOT NULL,
	quantity INT NOT NULL,
	price DECIMAL(14,2) NOT NULL
);
*/
