package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"storefront-service/internal/cart"
	"storefront-service/internal/entity"
	"storefront-service/internal/repository"
)

// Line is a cart entry checked against a product snapshot. Price is the
// snapshot price and is what the order is charged.
type Line struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

func (l Line) Total() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// CatalogValidator re-reads every product in a cart right before checkout.
// It holds no lock; its result is only true as of the read.
type CatalogValidator struct {
	products    *repository.ProductRepository
	readRetries int
	retryWait   time.Duration
}

func NewCatalogValidator(products *repository.ProductRepository, readRetries int) *CatalogValidator {
	return &CatalogValidator{
		products:    products,
		readRetries: readRetries,
		retryWait:   100 * time.Millisecond,
	}
}

// Validate returns one Line per cart entry. Missing or inactive products are
// removed from c and reported as *RejectedLinesError. Quantities above stock
// fail with *InsufficientStockError and leave c untouched.
func (v *CatalogValidator) Validate(ctx context.Context, c *cart.Cart) ([]Line, error) {
	items := c.Items()
	lines := make([]Line, 0, len(items))
	var rejected []RejectedLine
	var shortages []Shortage

	for _, item := range items {
		product, err := v.readProduct(ctx, item.ProductID)
		if err != nil {
			if errors.Is(err, repository.ErrProductNotFound) {
				rejected = append(rejected, RejectedLine{ProductID: item.ProductID, Quantity: item.Quantity, Reason: RejectNotFound})
				continue
			}
			return nil, fmt.Errorf("read product %s: %w", item.ProductID, err)
		}
		if !product.Active {
			rejected = append(rejected, RejectedLine{ProductID: item.ProductID, Quantity: item.Quantity, Reason: RejectInactive})
			continue
		}
		if item.Quantity > product.Stock {
			shortages = append(shortages, Shortage{ProductID: item.ProductID, Requested: item.Quantity, Available: product.Stock})
			continue
		}
		lines = append(lines, Line{
			ProductID: product.ID,
			Name:      product.Name,
			Quantity:  item.Quantity,
			Price:     product.Price,
		})
	}

	if len(rejected) > 0 {
		for _, r := range rejected {
			if err := c.Remove(ctx, r.ProductID); err != nil {
				logger.Warn().Err(err).Msgf("Removed rejected product %s from cart without persisting", r.ProductID)
			}
		}
		return nil, &RejectedLinesError{Lines: rejected}
	}
	if len(shortages) > 0 {
		return nil, &InsufficientStockError{Shortages: shortages}
	}
	return lines, nil
}

// readProduct retries transient read failures. A missing product is final.
func (v *CatalogValidator) readProduct(ctx context.Context, productID string) (*entity.Product, error) {
	var err error
	for attempt := 0; attempt <= v.readRetries; attempt++ {
		if attempt > 0 {
			logger.Warn().Err(err).Msgf("Retry %d: reading product %s", attempt, productID)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(v.retryWait * time.Duration(attempt)):
			}
		}

		var product *entity.Product
		product, err = v.products.GetProductByID(ctx, productID)
		if err == nil {
			return product, nil
		}
		if errors.Is(err, repository.ErrProductNotFound) {
			return nil, err
		}
	}
	return nil, err
}
