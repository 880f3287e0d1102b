package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"storefront-service/internal/entity"
	"storefront-service/internal/repository"
	"storefront-service/internal/service"
)

// checkoutError writes the response for a failed checkout. Partial failures
// and rejections carry their payload so clients can tell them apart.
func checkoutError(c echo.Context, err error) error {
	var rejected *service.RejectedLinesError
	var shortage *service.InsufficientStockError
	var orphan *service.OrphanedOrderError

	switch {
	case errors.As(err, &rejected):
		return c.JSON(http.StatusConflict, map[string]interface{}{
			"error":          "some cart lines are no longer available",
			"state":          service.StateRejected,
			"rejected_lines": rejected.Lines,
		})
	case errors.As(err, &shortage):
		return c.JSON(http.StatusUnprocessableEntity, map[string]interface{}{
			"error":     "insufficient stock",
			"state":     service.StateRejected,
			"shortages": shortage.Shortages,
		})
	case errors.As(err, &orphan):
		return c.JSON(http.StatusBadGateway, map[string]interface{}{
			"error":    "order created but its items could not be saved",
			"order_id": orphan.OrderID,
			"state":    service.StateItemsFailed,
		})
	case errors.Is(err, service.ErrUnauthenticated):
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrCheckoutInProgress):
		return c.JSON(http.StatusTooManyRequests, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrEmptyCart),
		errors.Is(err, service.ErrShippingAddressRequired),
		errors.Is(err, service.ErrSessionRequired),
		errors.Is(err, entity.ErrInvalidPaymentMethod):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

func orderError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, repository.ErrOrderNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Order not found"})
	case errors.Is(err, entity.ErrInvalidTransition), errors.Is(err, repository.ErrStatusChanged):
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}
