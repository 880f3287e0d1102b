package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"storefront-service/internal/cart"
	"storefront-service/internal/entity"
	"storefront-service/internal/events"
	"storefront-service/internal/kv"
	"storefront-service/internal/repository"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

const checkoutLockPrefix = "storefront:checkout-lock:"

type CheckoutRequest struct {
	UserID          string `json:"-"`
	ShippingAddress string `json:"shipping_address"`
	PaymentMethod   string `json:"payment_method"`
}

// OrderService turns a validated cart into an order with a fixed sequence of
// independent writes: order, items, stock.
type OrderService struct {
	orders      *repository.OrderRepository
	validator   *CatalogValidator
	reconciler  *StockReconciler
	locks       kv.Store
	publisher   events.Publisher
	shippingFee decimal.Decimal
	lockTTL     time.Duration
	now         func() time.Time
	newID       func() string
}

func NewOrderService(
	orders *repository.OrderRepository,
	validator *CatalogValidator,
	reconciler *StockReconciler,
	locks kv.Store,
	publisher events.Publisher,
	shippingFee decimal.Decimal,
	lockTTL time.Duration,
) *OrderService {
	return &OrderService{
		orders:      orders,
		validator:   validator,
		reconciler:  reconciler,
		locks:       locks,
		publisher:   publisher,
		shippingFee: shippingFee,
		lockTTL:     lockTTL,
		now:         time.Now,
		newID:       func() string { return uuid.New().String() },
	}
}

// Checkout validates c and submits it. Only one checkout per session runs at
// a time. The cart is cleared only when the order and its items are stored.
// Cancelling ctx after the lock is taken does not stop the checkout.
func (s *OrderService) Checkout(ctx context.Context, c *cart.Cart, req CheckoutRequest) (*Result, error) {
	if req.UserID == "" {
		return nil, ErrUnauthenticated
	}
	req.ShippingAddress = strings.TrimSpace(req.ShippingAddress)
	if req.ShippingAddress == "" {
		return nil, ErrShippingAddressRequired
	}
	method, err := entity.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		return nil, err
	}
	if c.Len() == 0 {
		return nil, ErrEmptyCart
	}

	release, err := s.acquireLock(ctx, c.SessionID())
	if err != nil {
		return nil, err
	}
	defer release()

	// Once the lock is held the sequence runs to a terminal state even if
	// the caller goes away; a cancelled insert would orphan the order.
	ctx = context.WithoutCancel(ctx)
	if s.lockTTL > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.lockTTL)
		defer cancel()
	}

	run := newCheckoutRun()
	lines, err := s.validator.Validate(ctx, c)
	if err != nil {
		var rejected *RejectedLinesError
		var shortage *InsufficientStockError
		if errors.As(err, &rejected) || errors.As(err, &shortage) {
			run.advance(StateRejected)
			logger.Info().Str("session_id", c.SessionID()).Err(err).Msg("Checkout rejected")
		}
		return nil, err
	}

	result, err := s.submit(ctx, run, lines, req.UserID, req.ShippingAddress, method)
	if err != nil {
		return nil, err
	}

	if err := c.Clear(ctx); err != nil {
		logger.Warn().Err(err).Str("order_id", result.OrderID).Msg("Cart cleared in memory only")
	}
	if run.state == StateReconciled {
		run.advance(StateDone)
	}
	result.State = run.state
	result.Trail = run.trail

	logger.Info().
		Str("order_id", result.OrderID).
		Str("state", string(result.State)).
		Int("warnings", len(result.Warnings)).
		Msg("Checkout completed")
	return result, nil
}

// submit runs the write sequence for lines that already passed validation.
func (s *OrderService) submit(ctx context.Context, run *checkoutRun, lines []Line, userID, address string, method entity.PaymentMethod) (*Result, error) {
	total := s.shippingFee
	for _, line := range lines {
		total = total.Add(line.Total())
	}

	order := &entity.Order{
		ID:              s.newID(),
		UserID:          userID,
		TotalAmount:     total,
		ShippingFee:     s.shippingFee,
		Status:          entity.OrderStatusPending,
		PaymentMethod:   method,
		ShippingAddress: address,
		CreatedAt:       s.now().UTC(),
	}

	// Never retried: a second insert would be a second order.
	if _, err := s.orders.CreateOrder(ctx, order); err != nil {
		logger.Error().Err(err).Msg("Error creating order")
		return nil, fmt.Errorf("create order: %w", err)
	}
	run.advance(StateOrderCreated)

	items := make([]entity.OrderItem, 0, len(lines))
	for _, line := range lines {
		items = append(items, entity.OrderItem{
			ID:        s.newID(),
			OrderID:   order.ID,
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			Price:     line.Price,
		})
	}
	if err := s.orders.CreateOrderItems(ctx, items); err != nil {
		run.advance(StateItemsFailed)
		logger.Error().Err(err).Str("order_id", order.ID).Msg("Order created without items, needs operator repair")
		s.publish(ctx, events.NewEvent(events.OrderItemsFailed, order.ID, userID, map[string]interface{}{
			"state": run.state,
			"lines": lines,
			"error": err.Error(),
		}))
		return nil, &OrphanedOrderError{OrderID: order.ID, Err: err}
	}
	run.advance(StateItemsCreated)
	order.Items = items

	warnings := s.reconciler.ReconcileAll(ctx, order.ID, lines)
	if len(warnings) > 0 {
		run.advance(StateReconcileWarning)
		s.publish(ctx, events.NewEvent(events.OrderStockWarning, order.ID, userID, warnings))
	} else {
		run.advance(StateReconciled)
	}

	s.publish(ctx, events.NewEvent(events.OrderCreated, order.ID, userID, order))

	return &Result{
		OrderID:  order.ID,
		State:    run.state,
		Trail:    run.trail,
		Total:    total,
		Warnings: warnings,
	}, nil
}

func (s *OrderService) acquireLock(ctx context.Context, sessionID string) (func(), error) {
	if sessionID == "" {
		return nil, ErrSessionRequired
	}
	key := checkoutLockPrefix + sessionID
	ok, err := s.locks.SetNX(ctx, key, "locked", s.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire checkout lock: %w", err)
	}
	if !ok {
		return nil, ErrCheckoutInProgress
	}
	return func() {
		// The request context may already be done.
		if err := s.locks.Del(context.Background(), key); err != nil {
			logger.Error().Err(err).Msgf("Error releasing checkout lock for session %s", sessionID)
		}
	}, nil
}

func (s *OrderService) publish(ctx context.Context, event events.Event) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		logger.Error().Err(err).Str("type", event.Type).Str("order_id", event.OrderID).Msg("Error publishing order event")
	}
}

func (s *OrderService) GetOrder(ctx context.Context, id string) (*entity.Order, error) {
	order, err := s.orders.GetOrderByID(ctx, id)
	if err != nil {
		if !errors.Is(err, repository.ErrOrderNotFound) {
			logger.Error().Err(err).Msgf("Error getting order by ID %s", id)
		}
		return nil, err
	}
	return order, nil
}

// UpdateOrderStatus moves an order along the allowed status transitions.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, id string, status entity.OrderStatus) (*entity.Order, error) {
	order, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if !order.Status.CanTransition(status) {
		return nil, fmt.Errorf("%w: %s to %s", entity.ErrInvalidTransition, order.Status, status)
	}
	if err := s.orders.UpdateOrderStatus(ctx, id, order.Status, status); err != nil {
		logger.Error().Err(err).Msg("Error updating order")
		return nil, err
	}
	order.Status = status
	return order, nil
}
