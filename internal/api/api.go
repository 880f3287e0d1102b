package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"storefront-service/internal/cart"
	"storefront-service/internal/entity"
	"storefront-service/internal/repository"
	"storefront-service/internal/service"
)

type Handler struct {
	carts    *cart.Manager
	products *repository.ProductRepository
	orders   *service.OrderService
	views    *service.ViewRecorder
}

func NewHandler(carts *cart.Manager, products *repository.ProductRepository, orders *service.OrderService, views *service.ViewRecorder) *Handler {
	return &Handler{carts: carts, products: products, orders: orders, views: views}
}

type cartResponse struct {
	SessionID string           `json:"session_id"`
	Items     []cart.Item      `json:"items"`
	Total     *decimal.Decimal `json:"total,omitempty"`
	Degraded  bool             `json:"degraded"`
}

// Register mounts every route. auth guards checkout and orders; limiter
// guards checkout only.
func (h *Handler) Register(e *echo.Echo, auth, limiter echo.MiddlewareFunc, serviceName string) {
	e.GET("/cart", h.GetCart)
	e.POST("/cart/items", h.AddCartItem)
	e.PUT("/cart/items/:product_id", h.SetCartItem)
	e.DELETE("/cart/items/:product_id", h.RemoveCartItem)
	e.DELETE("/cart", h.ClearCart)

	e.POST("/checkout", h.Checkout, limiter, auth)
	e.GET("/orders/:id", h.GetOrder, auth)
	e.PATCH("/orders/:id/status", h.UpdateOrderStatus, auth)

	e.POST("/articles/:id/views", h.RecordView)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":  "ok",
			"service": serviceName,
			"time":    time.Now().Format(time.RFC3339),
		})
	})
}

func (h *Handler) loadCart(c echo.Context) (*cart.Cart, error) {
	sessionID := sessionFrom(c)
	if sessionID == "" {
		return nil, c.JSON(http.StatusBadRequest, map[string]string{"error": "Missing " + SessionHeader + " header"})
	}
	sc, err := h.carts.Get(c.Request().Context(), sessionID)
	if err != nil {
		return nil, c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Cart storage unavailable"})
	}
	return sc, nil
}

// respondCart reports the cart after a mutation. A degraded write is not an
// error for the client; the flag tells the UI the cart is not persisted.
func (h *Handler) respondCart(c echo.Context, sc *cart.Cart, mutationErr error) error {
	h.carts.Track(sc)
	if mutationErr != nil && !errors.Is(mutationErr, cart.ErrPersistenceDegraded) {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": mutationErr.Error()})
	}

	resp := cartResponse{SessionID: sc.SessionID(), Items: sc.Items(), Degraded: sc.Degraded()}
	ctx := c.Request().Context()
	total, err := sc.Total(func(productID string) (decimal.Decimal, error) {
		product, err := h.products.GetProductByID(ctx, productID)
		if err != nil {
			return decimal.Zero, err
		}
		return product.Price, nil
	})
	if err == nil {
		resp.Total = &total
	}
	return c.JSON(http.StatusOK, resp)
}

// activeProduct writes a 404 when the product cannot be added to a cart.
func (h *Handler) activeProduct(c echo.Context, productID string) (*entity.Product, error) {
	product, err := h.products.GetProductByID(c.Request().Context(), productID)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return nil, c.JSON(http.StatusNotFound, map[string]string{"error": "Product not found"})
		}
		return nil, c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if !product.Active {
		return nil, c.JSON(http.StatusNotFound, map[string]string{"error": "Product not available"})
	}
	return product, nil
}

// GetCart --> GET /cart
func (h *Handler) GetCart(c echo.Context) error {
	sc, err := h.loadCart(c)
	if sc == nil {
		return err
	}
	return h.respondCart(c, sc, nil)
}

// AddCartItem --> POST /cart/items
func (h *Handler) AddCartItem(c echo.Context) error {
	req := struct {
		ProductID string `json:"product_id"`
		Quantity  int    `json:"quantity"`
	}{}
	if err := c.Bind(&req); err != nil || req.ProductID == "" || req.Quantity <= 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request payload"})
	}

	sc, err := h.loadCart(c)
	if sc == nil {
		return err
	}
	product, err := h.activeProduct(c, req.ProductID)
	if product == nil {
		return err
	}
	return h.respondCart(c, sc, sc.Add(c.Request().Context(), product.ID, req.Quantity, product.Stock))
}

// SetCartItem --> PUT /cart/items/:product_id
func (h *Handler) SetCartItem(c echo.Context) error {
	req := struct {
		Quantity int `json:"quantity"`
	}{}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request payload"})
	}

	sc, err := h.loadCart(c)
	if sc == nil {
		return err
	}
	productID := c.Param("product_id")
	qty := req.Quantity
	if qty > 0 {
		product, err := h.activeProduct(c, productID)
		if product == nil {
			return err
		}
		if qty > product.Stock {
			qty = product.Stock
		}
	}
	return h.respondCart(c, sc, sc.SetQuantity(c.Request().Context(), productID, qty))
}

// RemoveCartItem --> DELETE /cart/items/:product_id
func (h *Handler) RemoveCartItem(c echo.Context) error {
	sc, err := h.loadCart(c)
	if sc == nil {
		return err
	}
	return h.respondCart(c, sc, sc.Remove(c.Request().Context(), c.Param("product_id")))
}

// ClearCart --> DELETE /cart
func (h *Handler) ClearCart(c echo.Context) error {
	sc, err := h.loadCart(c)
	if sc == nil {
		return err
	}
	return h.respondCart(c, sc, sc.Clear(c.Request().Context()))
}

// Checkout --> POST /checkout
func (h *Handler) Checkout(c echo.Context) error {
	req := service.CheckoutRequest{}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request payload"})
	}
	claims, ok := claimsFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	req.UserID = claims.Subject

	sc, err := h.loadCart(c)
	if sc == nil {
		return err
	}
	result, err := h.orders.Checkout(c.Request().Context(), sc, req)
	h.carts.Track(sc)
	if err != nil {
		return checkoutError(c, err)
	}
	return c.JSON(http.StatusCreated, result)
}

// GetOrder --> GET /orders/:id
func (h *Handler) GetOrder(c echo.Context) error {
	claims, ok := claimsFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	order, err := h.orders.GetOrder(c.Request().Context(), c.Param("id"))
	if err != nil {
		return orderError(c, err)
	}
	if order.UserID != claims.Subject && !claims.Privileged() {
		return c.JSON(http.StatusForbidden, map[string]string{"error": "Forbidden"})
	}
	return c.JSON(http.StatusOK, order)
}

// UpdateOrderStatus --> PATCH /orders/:id/status
func (h *Handler) UpdateOrderStatus(c echo.Context) error {
	claims, ok := claimsFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	if !claims.Privileged() {
		return c.JSON(http.StatusForbidden, map[string]string{"error": "Forbidden"})
	}

	req := struct {
		Status string `json:"status"`
	}{}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request payload"})
	}
	status, err := entity.ParseOrderStatus(req.Status)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	order, err := h.orders.UpdateOrderStatus(c.Request().Context(), c.Param("id"), status)
	if err != nil {
		return orderError(c, err)
	}
	return c.JSON(http.StatusOK, order)
}

// RecordView --> POST /articles/:id/views
func (h *Handler) RecordView(c echo.Context) error {
	recorded, err := h.views.RecordView(c.Request().Context(), sessionFrom(c), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSessionRequired):
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Missing " + SessionHeader + " header"})
		case errors.Is(err, repository.ErrArticleNotFound):
			return c.JSON(http.StatusNotFound, map[string]string{"error": "Article not found"})
		default:
			return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{"recorded": false, "error": err.Error()})
		}
	}
	return c.JSON(http.StatusOK, map[string]bool{"recorded": recorded})
}
