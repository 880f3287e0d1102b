package repository

import (
	"context"
	"errors"
	"fmt"

	"storefront-service/internal/entity"
	"storefront-service/internal/store"
)

const productsTable = "products"

var ErrProductNotFound = errors.New("product not found")

type ProductRepository struct {
	store store.Store
}

func NewProductRepository(s store.Store) *ProductRepository {
	return &ProductRepository{store: s}
}

func (r *ProductRepository) GetProductByID(ctx context.Context, id string) (*entity.Product, error) {
	rows, err := r.store.Select(ctx, productsTable, store.Filter{store.Eq("id", id)})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrProductNotFound, id)
	}
	return productFromRow(rows[0])
}

func (r *ProductRepository) CreateProduct(ctx context.Context, product *entity.Product) (*entity.Product, error) {
	_, err := r.store.Insert(ctx, productsTable, store.Row{
		"id":     product.ID,
		"name":   product.Name,
		"price":  product.Price,
		"stock":  product.Stock,
		"active": product.Active,
	})
	if err != nil {
		return nil, err
	}
	return product, nil
}

// DecrementStock subtracts quantity in one conditional statement. It reports
// false when the row is missing or holds less than quantity.
func (r *ProductRepository) DecrementStock(ctx context.Context, id string, quantity int) (bool, error) {
	affected, err := r.store.Update(ctx, productsTable,
		store.Filter{store.Eq("id", id), store.Gte("stock", quantity)},
		store.Patch{"stock": store.Add(-int64(quantity))})
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ClampStockToZero sets stock to 0 only while it is still below quantity.
func (r *ProductRepository) ClampStockToZero(ctx context.Context, id string, quantity int) (bool, error) {
	affected, err := r.store.Update(ctx, productsTable,
		store.Filter{store.Eq("id", id), store.Lt("stock", quantity)},
		store.Patch{"stock": 0})
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// SetStock overwrites stock unconditionally.
func (r *ProductRepository) SetStock(ctx context.Context, id string, stock int) error {
	affected, err := r.store.Update(ctx, productsTable,
		store.Filter{store.Eq("id", id)},
		store.Patch{"stock": stock})
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrProductNotFound, id)
	}
	return nil
}

func productFromRow(row store.Row) (*entity.Product, error) {
	price, err := row.Decimal("price")
	if err != nil {
		return nil, err
	}
	stock, err := row.Int("stock")
	if err != nil {
		return nil, err
	}
	active, err := row.Bool("active")
	if err != nil {
		return nil, err
	}
	return &entity.Product{
		ID:     row.String("id"),
		Name:   row.String("name"),
		Price:  price,
		Stock:  int(stock),
		Active: active,
	}, nil
}
