package service

import (
	"context"
	"fmt"

	"storefront-service/internal/config"
	"storefront-service/internal/repository"
)

// StockReconciler lowers product stock for lines already committed as order
// items. It never fails the order; problems come back as warnings.
type StockReconciler struct {
	products *repository.ProductRepository
	mode     string
}

// NewStockReconciler accepts config.ModeAtomic or config.ModeReadModifyWrite.
func NewStockReconciler(products *repository.ProductRepository, mode string) *StockReconciler {
	return &StockReconciler{products: products, mode: mode}
}

// ReconcileAll processes every line, even after one fails.
func (r *StockReconciler) ReconcileAll(ctx context.Context, orderID string, lines []Line) []Warning {
	var warnings []Warning
	for _, line := range lines {
		if w := r.Reconcile(ctx, line.ProductID, line.Quantity); w != nil {
			logger.Warn().
				Str("order_id", orderID).
				Str("product_id", w.ProductID).
				Str("reason", w.Reason).
				Msg(w.Detail)
			warnings = append(warnings, *w)
		}
	}
	return warnings
}

// Reconcile takes quantity off productID, flooring stock at zero. It returns
// nil when stock covered the quantity and the write succeeded.
func (r *StockReconciler) Reconcile(ctx context.Context, productID string, quantity int) *Warning {
	if r.mode == config.ModeReadModifyWrite {
		return r.readModifyWrite(ctx, productID, quantity)
	}
	return r.conditional(ctx, productID, quantity)
}

func (r *StockReconciler) conditional(ctx context.Context, productID string, quantity int) *Warning {
	// Stock can move between statements, so a clamp that matches nothing
	// gets one more decrement attempt.
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := r.products.DecrementStock(ctx, productID, quantity)
		if err != nil {
			return notReconciled(productID, quantity, err)
		}
		if ok {
			return nil
		}

		clamped, err := r.products.ClampStockToZero(ctx, productID, quantity)
		if err != nil {
			return notReconciled(productID, quantity, err)
		}
		if clamped {
			return &Warning{
				ProductID: productID,
				Quantity:  quantity,
				Reason:    WarningOversold,
				Detail:    "stock below ordered quantity, set to 0",
			}
		}
	}
	return notReconciled(productID, quantity, fmt.Errorf("%w or stock changed concurrently", repository.ErrProductNotFound))
}

func (r *StockReconciler) readModifyWrite(ctx context.Context, productID string, quantity int) *Warning {
	product, err := r.products.GetProductByID(ctx, productID)
	if err != nil {
		return notReconciled(productID, quantity, err)
	}

	next := product.Stock - quantity
	if next < 0 {
		next = 0
	}
	if err := r.products.SetStock(ctx, productID, next); err != nil {
		return notReconciled(productID, quantity, err)
	}
	if product.Stock < quantity {
		return &Warning{
			ProductID: productID,
			Quantity:  quantity,
			Reason:    WarningOversold,
			Detail:    fmt.Sprintf("stock %d below ordered quantity, set to 0", product.Stock),
		}
	}
	return nil
}

func notReconciled(productID string, quantity int, err error) *Warning {
	return &Warning{
		ProductID: productID,
		Quantity:  quantity,
		Reason:    WarningStockNotReconciled,
		Detail:    err.Error(),
	}
}
