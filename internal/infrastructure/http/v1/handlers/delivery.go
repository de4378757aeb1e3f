package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"fulfil/internal/domain/allocation"
	"fulfil/internal/domain/delivery"
	"fulfil/internal/infrastructure/http/v1/dto"
)

// DeliveryHandler exposes the allocation engine over HTTP.
//
// The engine returns a uniform envelope; success responses pass it through
// as-is and failures are routed to the error middleware, which keeps the
// taxonomy code and HTTP status of the underlying error.
type DeliveryHandler struct {
	BaseHandler
	svc *allocation.Service
}

// NewDeliveryHandler creates a new delivery handler.
func NewDeliveryHandler(svc *allocation.Service) *DeliveryHandler {
	return &DeliveryHandler{svc: svc}
}

// Plan creates a delivery from explicitly requested lines.
// POST /orders/:orderId/deliveries
func (h *DeliveryHandler) Plan(c *gin.Context) {
	orderID, ok := h.ParseID(c, "orderId")
	if !ok {
		return
	}

	var req dto.PlanDeliveryRequest
	if !h.BindJSON(c, &req) {
		return
	}
	lines, err := dto.ToRequestedLines(req.Items)
	if err != nil {
		h.Error(c, err)
		return
	}

	res := h.svc.PlanSingle(c.Request.Context(), orderID, req.ToHeader(), lines)
	if !res.Success {
		h.Error(c, res.Err)
		return
	}
	h.Created(c, res)
}

// PlanAll creates one delivery covering every remaining quantity.
// POST /orders/:orderId/deliveries/plan-all
func (h *DeliveryHandler) PlanAll(c *gin.Context) {
	orderID, ok := h.ParseID(c, "orderId")
	if !ok {
		return
	}

	var req dto.PlanAllRequest
	if !h.BindJSON(c, &req) {
		return
	}

	res := h.svc.PlanAll(c.Request.Context(), orderID, req.ToHeader())
	if !res.Success {
		h.Error(c, res.Err)
		return
	}
	h.Created(c, res)
}

// Get retrieves one delivery.
// GET /deliveries/:id
func (h *DeliveryHandler) Get(c *gin.Context) {
	deliveryID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	res := h.svc.GetDelivery(c.Request.Context(), deliveryID)
	if !res.Success {
		h.Error(c, res.Err)
		return
	}
	h.OK(c, res)
}

// Update rewrites a delivery's header and lines.
// PUT /deliveries/:id
func (h *DeliveryHandler) Update(c *gin.Context) {
	deliveryID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	var req dto.UpdateDeliveryRequest
	if !h.BindJSON(c, &req) {
		return
	}
	lines, err := dto.ToRequestedLines(req.Items)
	if err != nil {
		h.Error(c, err)
		return
	}

	res := h.svc.UpdateDelivery(c.Request.Context(), deliveryID, req.ToHeader(), lines)
	if !res.Success {
		h.Error(c, res.Err)
		return
	}
	h.OK(c, res)
}

// Cancel transitions a delivery to CANCELLED.
// POST /deliveries/:id/cancel
func (h *DeliveryHandler) Cancel(c *gin.Context) {
	deliveryID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	res := h.svc.CancelDelivery(c.Request.Context(), deliveryID)
	if !res.Success {
		h.Error(c, res.Err)
		return
	}
	h.OK(c, dto.SuccessResponse{Success: true, Message: res.Message})
}

// History lists the recorded change trail of a delivery, newest first.
// GET /deliveries/:id/history
func (h *DeliveryHandler) History(c *gin.Context) {
	deliveryID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	res := h.svc.GetDeliveryHistory(c.Request.Context(), deliveryID, limit)
	if !res.Success {
		h.Error(c, res.Err)
		return
	}
	h.OK(c, res)
}

// Advance moves a delivery along the lifecycle.
// POST /deliveries/:id/advance
func (h *DeliveryHandler) Advance(c *gin.Context) {
	deliveryID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	var req dto.AdvanceDeliveryRequest
	if !h.BindJSON(c, &req) {
		return
	}

	res := h.svc.AdvanceDelivery(c.Request.Context(), deliveryID, delivery.Status(req.Status))
	if !res.Success {
		h.Error(c, res.Err)
		return
	}
	h.OK(c, res)
}
