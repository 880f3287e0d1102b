package service

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyCart               = errors.New("cart is empty")
	ErrShippingAddressRequired = errors.New("shipping address is required")
	ErrUnauthenticated         = errors.New("authenticated user required")
	ErrSessionRequired         = errors.New("session id required")
	ErrCheckoutInProgress      = errors.New("checkout already in progress for this session")
)

const (
	RejectNotFound = "not_found"
	RejectInactive = "inactive"
)

// RejectedLine is a cart entry dropped because its product is gone or inactive.
type RejectedLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Reason    string `json:"reason"`
}

// RejectedLinesError is returned when validation removed entries from the
// cart. Nothing was written; the user reviews the cart and resubmits.
type RejectedLinesError struct {
	Lines []RejectedLine
}

func (e *RejectedLinesError) Error() string {
	ids := make([]string, 0, len(e.Lines))
	for _, l := range e.Lines {
		ids = append(ids, fmt.Sprintf("%s (%s)", l.ProductID, l.Reason))
	}
	return "cart lines rejected: " + strings.Join(ids, ", ")
}

type Shortage struct {
	ProductID string `json:"product_id"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// InsufficientStockError names every line asking for more than the current stock.
type InsufficientStockError struct {
	Shortages []Shortage
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Shortages))
	for _, s := range e.Shortages {
		parts = append(parts, fmt.Sprintf("%s requested %d, available %d", s.ProductID, s.Requested, s.Available))
	}
	return "insufficient stock: " + strings.Join(parts, "; ")
}

// OrphanedOrderError means the order row exists but its items could not be
// written. The order stays in the store for an operator to repair.
type OrphanedOrderError struct {
	OrderID string
	Err     error
}

func (e *OrphanedOrderError) Error() string {
	return fmt.Sprintf("order %s created without items: %v", e.OrderID, e.Err)
}

func (e *OrphanedOrderError) Unwrap() error {
	return e.Err
}
