package api

import (
	"net/http"

	"fullsound/internal/apperr"

	"github.com/gin-gonic/gin"
)

type createIntentRequest struct {
	OrderID int64 `json:"order_id" binding:"required"`
}

type confirmPaymentRequest struct {
	PaymentIntentID string `json:"payment_intent_id" binding:"required"`
}

func (h *Handler) createPaymentIntent(c *gin.Context) {
	var req createIntentRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.checkOrderOwner(c, req.OrderID); err != nil {
		abortWithError(c, err)
		return
	}

	result, err := h.Payments.CreatePaymentIntent(c.Request.Context(), req.OrderID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h *Handler) confirmPayment(c *gin.Context) {
	var req confirmPaymentRequest
	if !bindJSON(c, &req) {
		return
	}

	payment, err := h.Payments.GetPaymentByIntentID(c.Request.Context(), req.PaymentIntentID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if err := h.checkOrderOwner(c, payment.OrderID); err != nil {
		abortWithError(c, err)
		return
	}

	payment, err = h.Payments.ConfirmPayment(c.Request.Context(), req.PaymentIntentID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

func (h *Handler) getPayment(c *gin.Context) {
	paymentID, ok := idParam(c, "id")
	if !ok {
		return
	}

	payment, err := h.Payments.GetPayment(c.Request.Context(), paymentID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if err := h.checkOrderOwner(c, payment.OrderID); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

// checkOrderOwner lets the order's owner and order managers through
func (h *Handler) checkOrderOwner(c *gin.Context, orderID int64) error {
	order, err := h.Orders.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		return err
	}
	if !principalFrom(c).CanAccessOrderOf(order.UserID) {
		return apperr.Forbidden("order %s belongs to another user", order.OrderNumber)
	}
	return nil
}
