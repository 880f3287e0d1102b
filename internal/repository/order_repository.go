package repository

import (
	"context"
	"errors"
	"fmt"

	"storefront-service/internal/entity"
	"storefront-service/internal/store"
)

const (
	ordersTable     = "orders"
	orderItemsTable = "order_items"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrStatusChanged = errors.New("order status changed concurrently")
)

type OrderRepository struct {
	store store.Store
}

func NewOrderRepository(s store.Store) *OrderRepository {
	return &OrderRepository{store: s}
}

// CreateOrder writes the order row only; items are a separate call.
func (r *OrderRepository) CreateOrder(ctx context.Context, order *entity.Order) (*entity.Order, error) {
	_, err := r.store.Insert(ctx, ordersTable, store.Row{
		"id":               order.ID,
		"user_id":          order.UserID,
		"total_amount":     order.TotalAmount,
		"shipping_fee":     order.ShippingFee,
		"status":           string(order.Status),
		"payment_method":   string(order.PaymentMethod),
		"shipping_address": order.ShippingAddress,
		"created_at":       order.CreatedAt,
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// CreateOrderItems inserts all items with a single batch statement.
func (r *OrderRepository) CreateOrderItems(ctx context.Context, items []entity.OrderItem) error {
	rows := make([]store.Row, 0, len(items))
	for _, item := range items {
		rows = append(rows, store.Row{
			"id":         item.ID,
			"order_id":   item.OrderID,
			"product_id": item.ProductID,
			"quantity":   item.Quantity,
			"price":      item.Price,
		})
	}
	return r.store.InsertMany(ctx, orderItemsTable, rows)
}

func (r *OrderRepository) GetOrderByID(ctx context.Context, id string) (*entity.Order, error) {
	rows, err := r.store.Select(ctx, ordersTable, store.Filter{store.Eq("id", id)})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	order, err := orderFromRow(rows[0])
	if err != nil {
		return nil, err
	}

	itemRows, err := r.store.Select(ctx, orderItemsTable, store.Filter{store.Eq("order_id", id)})
	if err != nil {
		return nil, err
	}
	for _, row := range itemRows {
		item, err := orderItemFromRow(row)
		if err != nil {
			return nil, err
		}
		order.Items = append(order.Items, *item)
	}
	return order, nil
}

// UpdateOrderStatus moves the order to status only while it is still in from.
func (r *OrderRepository) UpdateOrderStatus(ctx context.Context, id string, from, to entity.OrderStatus) error {
	affected, err := r.store.Update(ctx, ordersTable,
		store.Filter{store.Eq("id", id), store.Eq("status", string(from))},
		store.Patch{"status": string(to)})
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s is no longer %s", ErrStatusChanged, id, from)
	}
	return nil
}

func orderFromRow(row store.Row) (*entity.Order, error) {
	total, err := row.Decimal("total_amount")
	if err != nil {
		return nil, err
	}
	fee, err := row.Decimal("shipping_fee")
	if err != nil {
		return nil, err
	}
	createdAt, err := row.Time("created_at")
	if err != nil {
		return nil, err
	}
	return &entity.Order{
		ID:              row.String("id"),
		UserID:          row.String("user_id"),
		TotalAmount:     total,
		ShippingFee:     fee,
		Status:          entity.OrderStatus(row.String("status")),
		PaymentMethod:   entity.PaymentMethod(row.String("payment_method")),
		ShippingAddress: row.String("shipping_address"),
		CreatedAt:       createdAt,
	}, nil
}

func orderItemFromRow(row store.Row) (*entity.OrderItem, error) {
	quantity, err := row.Int("quantity")
	if err != nil {
		return nil, err
	}
	price, err := row.Decimal("price")
	if err != nil {
		return nil, err
	}
	return &entity.OrderItem{
		ID:        row.String("id"),
		OrderID:   row.String("order_id"),
		ProductID: row.String("product_id"),
		Quantity:  int(quantity),
		Price:     price,
	}, nil
}
