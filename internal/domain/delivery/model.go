// Package delivery provides the delivery aggregate: model, lifecycle state
// machine, remaining-quantity calculator and draft builder.
package delivery

import (
	"context"
	"time"

	"fulfil/internal/core/apperror"
	"fulfil/internal/core/entity"
	"fulfil/internal/core/id"
	"fulfil/internal/core/types"
)

// Delivery is a planned or executed shipment tied to exactly one order.
type Delivery struct {
	entity.Document

	OrderID id.ID  `db:"order_id" json:"orderId"`
	Status  Status `db:"status" json:"status"`

	// Requested by the planner at composition time.
	RequestedDate  time.Time `db:"requested_date" json:"requestedDeliveryDate"`
	RequestedSlots []string  `db:"requested_slots" json:"requestedDeliverySlots"`

	// Actual values, set only once the delivery is confirmed downstream.
	DeliveryDate  *time.Time `db:"delivery_date" json:"deliveryDate,omitempty"`
	DeliverySlots []string   `db:"delivery_slots" json:"deliverySlots,omitempty"`

	Notes   string `db:"notes" json:"deliveryNotes,omitempty"`
	UITCode string `db:"uit_code" json:"uitCode,omitempty"`

	// Table part: line allocations.
	Items []LineItem `db:"-" json:"items"`
}

// LineItem is one allocation inside a delivery.
type LineItem struct {
	LineID id.ID `db:"line_id" json:"lineId"`
	LineNo int   `db:"line_no" json:"lineNo"`

	// OrderLineItemID is nil for manual entries: goods outside the order,
	// invisible to the remaining-quantity calculation.
	OrderLineItemID *id.ID `db:"order_line_item_id" json:"orderLineItemId,omitempty"`

	ProductID   *id.ID `db:"product_id" json:"productId,omitempty"`
	ServiceID   *id.ID `db:"service_id" json:"serviceId,omitempty"`
	ProductName string `db:"product_name" json:"productName"`

	IsManualEntry bool `db:"is_manual_entry" json:"isManualEntry"`

	// UnitOfMeasure is the unit the planner chose; Quantity is expressed in it.
	UnitOfMeasure string         `db:"unit_of_measure" json:"unitOfMeasure"`
	Quantity      types.Quantity `db:"quantity" json:"quantity"`

	// QuantityInBaseUnit is derived from Quantity and the line's conversion
	// factor on every write. Never trusted from input.
	QuantityInBaseUnit types.Quantity `db:"quantity_in_base_unit" json:"quantityInBaseUnit"`

	// Price snapshot frozen at allocation time.
	PriceAtOrder    types.Money `db:"price_at_order" json:"priceAtTimeOfOrder"`
	PriceInBaseUnit types.Money `db:"price_in_base_unit" json:"priceInBaseUnit"`
	VATRate         string      `db:"vat_rate" json:"vatRate"`
}

// Header carries the user-editable delivery header fields.
type Header struct {
	RequestedDate  time.Time `json:"requestedDeliveryDate"`
	RequestedSlots []string  `json:"requestedDeliverySlots"`
	Notes          string    `json:"deliveryNotes"`
	UITCode        string    `json:"uitCode"`
}

// Validate checks the mandatory-field rule for a delivery header.
func (h Header) Validate() error {
	if h.RequestedDate.IsZero() {
		return apperror.NewValidation("requested delivery date is required").
			WithDetail("field", "requestedDeliveryDate")
	}
	if len(h.RequestedSlots) == 0 {
		return apperror.NewValidation("at least one requested delivery slot is required").
			WithDetail("field", "requestedDeliverySlots")
	}
	return nil
}

// Validate implements entity.Validatable.
func (d *Delivery) Validate(ctx context.Context) error {
	if err := d.Document.Validate(ctx); err != nil {
		return err
	}

	if id.IsNil(d.OrderID) {
		return apperror.NewValidation("order reference is required").
			WithDetail("field", "orderId")
	}

	if !d.Status.IsValid() {
		return apperror.NewValidation("unknown delivery status").
			WithDetail("status", string(d.Status))
	}

	header := Header{RequestedDate: d.RequestedDate, RequestedSlots: d.RequestedSlots}
	if err := header.Validate(); err != nil {
		return err
	}

	hasQuantity := false
	for i, item := range d.Items {
		if item.QuantityInBaseUnit.IsNegative() || item.Quantity.IsNegative() {
			return apperror.NewValidation("negative allocation is not allowed").
				WithDetail("lineNo", i+1)
		}
		if item.IsManualEntry && item.OrderLineItemID != nil {
			return apperror.NewValidation("manual entry cannot reference an order line").
				WithDetail("lineNo", i+1)
		}
		if item.Quantity.IsPositive() {
			hasQuantity = true
		}
	}
	if !hasQuantity {
		return apperror.NewValidation("at least one line with a positive quantity is required").
			WithDetail("field", "items")
	}

	return nil
}

// CanModify returns an error when the delivery is locked for editing.
func (d *Delivery) CanModify() error {
	if !d.Status.CanEdit() {
		return apperror.NewInvalidStatusTransition(string(d.Status), "edit")
	}
	return nil
}

// Cancel transitions the delivery to CANCELLED. Cancellation alone removes
// the delivery's lines from future remaining sums; no quantities are
// explicitly returned. Version stays at the read value: the repository
// filters on it and advances it on write.
func (d *Delivery) Cancel() error {
	if !d.Status.CanCancel() {
		return apperror.NewInvalidStatusTransition(string(d.Status), string(StatusCancelled))
	}
	d.Status = StatusCancelled
	return nil
}

// AdvanceTo moves the delivery along the lifecycle table.
func (d *Delivery) AdvanceTo(next Status) error {
	if next == StatusCancelled {
		return d.Cancel()
	}
	if err := d.Status.CheckTransition(next); err != nil {
		return err
	}
	d.Status = next
	return nil
}

// LineFor returns the allocation referencing the given order line, if any.
func (d *Delivery) LineFor(orderLineItemID id.ID) (*LineItem, bool) {
	for i := range d.Items {
		ref := d.Items[i].OrderLineItemID
		if ref != nil && *ref == orderLineItemID {
			return &d.Items[i], true
		}
	}
	return nil, false
}
