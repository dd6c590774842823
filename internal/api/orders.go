package api

import (
	"fmt"
	"net/http"

	"fullsound/internal/apperr"
	"fullsound/internal/models"
	"fullsound/internal/service"

	"github.com/gin-gonic/gin"
)

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// createOrder handles order creation for the caller
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if !bindJSON(c, &req) {
		return
	}

	req.UserID = principalFrom(c).UserID
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	order, err := h.Orders.CreateOrder(c.Request.Context(), &req)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, order)
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	orderID, ok := idParam(c, "id")
	if !ok {
		return
	}

	order, err := h.Orders.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	h.respondOwnedOrder(c, order)
}

func (h *Handler) getOrderByNumber(c *gin.Context) {
	order, err := h.Orders.GetOrderByNumber(c.Request.Context(), c.Param("number"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	h.respondOwnedOrder(c, order)
}

func (h *Handler) respondOwnedOrder(c *gin.Context, order *models.Order) {
	if !principalFrom(c).CanAccessOrderOf(order.UserID) {
		abortWithError(c, apperr.Forbidden("order %s belongs to another user", order.OrderNumber))
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) listMyOrders(c *gin.Context) {
	orders, err := h.Orders.ListOrdersForUser(c.Request.Context(), principalFrom(c).UserID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (h *Handler) listOrders(c *gin.Context) {
	orders, err := h.Orders.ListAllOrders(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (h *Handler) updateOrderStatus(c *gin.Context) {
	orderID, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req updateStatusRequest
	if !bindJSON(c, &req) {
		return
	}

	changedBy := fmt.Sprintf("admin:%d", principalFrom(c).UserID)
	order, err := h.Orders.UpdateStatus(c.Request.Context(), orderID, req.Status, changedBy)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}
