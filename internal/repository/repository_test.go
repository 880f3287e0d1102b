package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"storefront-service/internal/entity"
	"storefront-service/internal/store"
)

func seedProduct(m *store.MemoryStore, id string, stock int, active bool) {
	m.Seed("products", store.Row{
		"id":     id,
		"name":   "Product " + id,
		"price":  decimal.NewFromInt(10000),
		"stock":  stock,
		"active": active,
	})
}

func TestGetProductByID(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemoryStore()
	seedProduct(m, "A", 5, true)
	repo := NewProductRepository(m)

	product, err := repo.GetProductByID(ctx, "A")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if product.Stock != 5 || !product.Active || !product.Price.Equal(decimal.NewFromInt(10000)) {
		t.Errorf("Unexpected product %+v", product)
	}

	if _, err := repo.GetProductByID(ctx, "missing"); !errors.Is(err, ErrProductNotFound) {
		t.Errorf("Expected ErrProductNotFound, got %v", err)
	}
}

func TestDecrementStock(t *testing.T) {
	tests := []struct {
		name      string
		stock     int
		quantity  int
		wantOK    bool
		wantStock int64
	}{
		{"Enough stock", 5, 3, true, 2},
		{"Exact stock", 3, 3, true, 0},
		{"Not enough stock", 5, 10, false, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			m := store.NewMemoryStore()
			seedProduct(m, "A", tt.stock, true)
			repo := NewProductRepository(m)

			ok, err := repo.DecrementStock(ctx, "A", tt.quantity)
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if ok != tt.wantOK {
				t.Errorf("Expected ok %v, got %v", tt.wantOK, ok)
			}
			stock, _ := m.Rows("products")[0].Int("stock")
			if stock != tt.wantStock {
				t.Errorf("Expected stock %d, got %d", tt.wantStock, stock)
			}
		})
	}
}

func TestClampStockToZero(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemoryStore()
	seedProduct(m, "A", 5, true)
	repo := NewProductRepository(m)

	ok, err := repo.ClampStockToZero(ctx, "A", 3)
	if err != nil || ok {
		t.Fatalf("Expected no clamp while stock covers quantity, got %v (%v)", ok, err)
	}

	ok, err = repo.ClampStockToZero(ctx, "A", 10)
	if err != nil || !ok {
		t.Fatalf("Expected clamp, got %v (%v)", ok, err)
	}
	stock, _ := m.Rows("products")[0].Int("stock")
	if stock != 0 {
		t.Errorf("Expected stock 0, got %d", stock)
	}
}

func TestSetStockMissingProduct(t *testing.T) {
	repo := NewProductRepository(store.NewMemoryStore())
	if err := repo.SetStock(context.Background(), "missing", 1); !errors.Is(err, ErrProductNotFound) {
		t.Errorf("Expected ErrProductNotFound, got %v", err)
	}
}

func TestOrderRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemoryStore()
	repo := NewOrderRepository(m)

	order := &entity.Order{
		ID:              "o-1",
		UserID:          "u-1",
		TotalAmount:     decimal.NewFromInt(40000),
		ShippingFee:     decimal.NewFromInt(15000),
		Status:          entity.OrderStatusPending,
		PaymentMethod:   entity.PaymentBankTransfer,
		ShippingAddress: "Jl. Merdeka 1",
		CreatedAt:       time.Now().UTC(),
	}
	if _, err := repo.CreateOrder(ctx, order); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	items := []entity.OrderItem{
		{ID: "i-1", OrderID: "o-1", ProductID: "A", Quantity: 2, Price: decimal.NewFromInt(10000)},
		{ID: "i-2", OrderID: "o-1", ProductID: "B", Quantity: 1, Price: decimal.NewFromInt(5000)},
	}
	if err := repo.CreateOrderItems(ctx, items); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	got, err := repo.GetOrderByID(ctx, "o-1")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !got.TotalAmount.Equal(order.TotalAmount) || got.Status != entity.OrderStatusPending {
		t.Errorf("Unexpected order %+v", got)
	}
	if len(got.Items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(got.Items))
	}

	if err := repo.UpdateOrderStatus(ctx, "o-1", entity.OrderStatusPending, entity.OrderStatusProcessing); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if err := repo.UpdateOrderStatus(ctx, "o-1", entity.OrderStatusPending, entity.OrderStatusCancelled); !errors.Is(err, ErrStatusChanged) {
		t.Errorf("Expected ErrStatusChanged, got %v", err)
	}
	got, _ = repo.GetOrderByID(ctx, "o-1")
	if got.Status != entity.OrderStatusProcessing {
		t.Errorf("Expected status processing, got %s", got.Status)
	}

	if _, err := repo.GetOrderByID(ctx, "o-2"); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("Expected ErrOrderNotFound, got %v", err)
	}
}

func TestCreateOrderItemsIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemoryStore()
	m.FailOn(store.OpInsert, "order_items", errors.New("connection reset"))
	repo := NewOrderRepository(m)

	err := repo.CreateOrderItems(ctx, []entity.OrderItem{
		{ID: "i-1", OrderID: "o-1", ProductID: "A", Quantity: 1, Price: decimal.NewFromInt(1)},
		{ID: "i-2", OrderID: "o-1", ProductID: "B", Quantity: 1, Price: decimal.NewFromInt(1)},
	})
	if err == nil {
		t.Fatal("Expected an error")
	}
	if len(m.Rows("order_items")) != 0 {
		t.Errorf("Expected no items stored")
	}
}

func TestArticleViews(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemoryStore()
	m.Seed("articles", store.Row{"id": "x", "title": "Hello", "views": int64(7)})
	repo := NewArticleRepository(m)

	if err := repo.IncrementViews(ctx, "x"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	article, err := repo.GetArticleByID(ctx, "x")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if article.Views != 8 {
		t.Errorf("Expected 8 views, got %d", article.Views)
	}

	if err := repo.SetViews(ctx, "x", 20); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	article, _ = repo.GetArticleByID(ctx, "x")
	if article.Views != 20 {
		t.Errorf("Expected 20 views, got %d", article.Views)
	}

	if err := repo.IncrementViews(ctx, "missing"); !errors.Is(err, ErrArticleNotFound) {
		t.Errorf("Expected ErrArticleNotFound, got %v", err)
	}
}
