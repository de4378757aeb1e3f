package handlers

import (
	"github.com/gin-gonic/gin"

	"fulfil/internal/core/apperror"
	"fulfil/internal/core/id"
	"fulfil/internal/domain/allocation"
)

// OrderHandler exposes planner views over orders.
type OrderHandler struct {
	BaseHandler
	svc *allocation.Service
}

// NewOrderHandler creates a new order handler.
func NewOrderHandler(svc *allocation.Service) *OrderHandler {
	return &OrderHandler{svc: svc}
}

// Plan returns the planner view of an order: its deliveries and the
// remaining base-unit quantity per line.
// GET /orders/:orderId/plan
func (h *OrderHandler) Plan(c *gin.Context) {
	orderID, ok := h.ParseID(c, "orderId")
	if !ok {
		return
	}

	res := h.svc.GetOrderPlan(c.Request.Context(), orderID)
	if !res.Success {
		h.Error(c, res.Err)
		return
	}
	h.OK(c, res)
}

// Remaining returns the remaining quantity of one order line, expressed in
// the unit given by the "unit" query parameter (base unit when absent).
// An optional "excludeDelivery" query parameter drops one delivery from the
// computation, which is what an edit form needs while revalidating itself.
// GET /orders/:orderId/lines/:lineId/remaining
func (h *OrderHandler) Remaining(c *gin.Context) {
	orderID, ok := h.ParseID(c, "orderId")
	if !ok {
		return
	}
	lineID, ok := h.ParseID(c, "lineId")
	if !ok {
		return
	}

	exclude := id.Nil()
	if raw := c.Query("excludeDelivery"); raw != "" {
		parsed, err := id.Parse(raw)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid delivery id").WithDetail("excludeDelivery", raw))
			return
		}
		exclude = parsed
	}

	res := h.svc.GetRemaining(c.Request.Context(), orderID, lineID, c.Query("unit"), exclude)
	if !res.Success {
		h.Error(c, res.Err)
		return
	}
	h.OK(c, res)
}
