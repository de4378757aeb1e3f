package dto

import (
	"time"

	"fulfil/internal/core/apperror"
	"fulfil/internal/core/id"
	"fulfil/internal/core/types"
	"fulfil/internal/domain/allocation"
	"fulfil/internal/domain/delivery"
)

// DeliveryLineRequest is one requested allocation line.
type DeliveryLineRequest struct {
	OrderLineItemID string         `json:"orderLineItemId"`
	UnitOfMeasure   string         `json:"unitOfMeasure"`
	Quantity        types.Quantity `json:"quantity"`

	IsManualEntry   bool        `json:"isManualEntry"`
	ProductID       *string     `json:"productId"`
	ServiceID       *string     `json:"serviceId"`
	ProductName     string      `json:"productName"`
	PriceAtOrder    types.Money `json:"priceAtTimeOfOrder"`
	PriceInBaseUnit types.Money `json:"priceInBaseUnit"`
	VATRate         string      `json:"vatRate"`
}

// ToRequestedLine converts the request line to the engine's representation.
func (r DeliveryLineRequest) ToRequestedLine() (allocation.RequestedLine, error) {
	line := allocation.RequestedLine{
		UnitOfMeasure:   r.UnitOfMeasure,
		Quantity:        r.Quantity,
		Manual:          r.IsManualEntry,
		ProductName:     r.ProductName,
		PriceAtOrder:    r.PriceAtOrder,
		PriceInBaseUnit: r.PriceInBaseUnit,
		VATRate:         r.VATRate,
	}

	if !r.IsManualEntry {
		lineID, err := id.Parse(r.OrderLineItemID)
		if err != nil {
			return line, apperror.NewValidation("invalid order line item id").
				WithDetail("orderLineItemId", r.OrderLineItemID)
		}
		line.OrderLineItemID = lineID
		return line, nil
	}

	if r.ProductID != nil {
		productID, err := id.Parse(*r.ProductID)
		if err != nil {
			return line, apperror.NewValidation("invalid product id").
				WithDetail("productId", *r.ProductID)
		}
		line.ProductID = &productID
	}
	if r.ServiceID != nil {
		serviceID, err := id.Parse(*r.ServiceID)
		if err != nil {
			return line, apperror.NewValidation("invalid service id").
				WithDetail("serviceId", *r.ServiceID)
		}
		line.ServiceID = &serviceID
	}
	return line, nil
}

// DeliveryHeaderRequest carries the editable header of a delivery.
type DeliveryHeaderRequest struct {
	RequestedDeliveryDate  time.Time `json:"requestedDeliveryDate" binding:"required"`
	RequestedDeliverySlots []string  `json:"requestedDeliverySlots" binding:"required,min=1"`
	DeliveryNotes          string    `json:"deliveryNotes"`
	UITCode                string    `json:"uitCode"`
}

// ToHeader converts the request to the domain header.
func (r DeliveryHeaderRequest) ToHeader() delivery.Header {
	return delivery.Header{
		RequestedDate:  r.RequestedDeliveryDate,
		RequestedSlots: r.RequestedDeliverySlots,
		Notes:          r.DeliveryNotes,
		UITCode:        r.UITCode,
	}
}

// PlanDeliveryRequest creates a delivery from explicit lines.
type PlanDeliveryRequest struct {
	DeliveryHeaderRequest
	Items []DeliveryLineRequest `json:"items" binding:"required,min=1"`
}

// PlanAllRequest creates a delivery from everything still remaining.
type PlanAllRequest struct {
	DeliveryHeaderRequest
}

// UpdateDeliveryRequest rewrites a delivery's header and lines.
type UpdateDeliveryRequest struct {
	DeliveryHeaderRequest
	Items []DeliveryLineRequest `json:"items" binding:"required,min=1"`
}

// AdvanceDeliveryRequest moves a delivery to the given status.
type AdvanceDeliveryRequest struct {
	Status string `json:"status" binding:"required"`
}

// ToRequestedLines converts a slice of request lines.
func ToRequestedLines(items []DeliveryLineRequest) ([]allocation.RequestedLine, error) {
	lines := make([]allocation.RequestedLine, 0, len(items))
	for _, item := range items {
		line, err := item.ToRequestedLine()
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, nil
}
