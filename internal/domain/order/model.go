// Package order provides the sales-order read model consumed by the
// allocation engine. Orders and their ordered/shipped counters are maintained
// by external collaborators; this engine only reads them.
package order

import (
	"context"

	"fulfil/internal/core/apperror"
	"fulfil/internal/core/id"
	"fulfil/internal/core/types"
)

// Order is a sales order with its line items.
type Order struct {
	ID        id.ID      `db:"id" json:"id"`
	Number    string     `db:"number" json:"number"`
	Status    string     `db:"status" json:"status"`
	LineItems []LineItem `db:"-" json:"lineItems"`
}

// LineItem returns the order line with the given id.
func (o *Order) LineItem(lineID id.ID) (*LineItem, bool) {
	for i := range o.LineItems {
		if o.LineItems[i].ID == lineID {
			return &o.LineItems[i], true
		}
	}
	return nil, false
}

// PackagingOption is one sellable unit of measure for an order line.
// BaseUnitEquivalent is the factor converting one unit into base units.
type PackagingOption struct {
	UnitName           string         `db:"unit_name" json:"unitName"`
	BaseUnitEquivalent types.Quantity `db:"base_unit_equivalent" json:"baseUnitEquivalent"`
}

// LineItem represents one ordered product or service line.
// QuantityOrdered and QuantityShipped are in base units and only ever grow;
// both are set by external collaborators and are read-only here.
type LineItem struct {
	ID id.ID `db:"id" json:"id"`

	// Product and service references are mutually exclusive; both may carry
	// a nil value only for lines the order system created free-form.
	ProductID *id.ID `db:"product_id" json:"productId,omitempty"`
	ServiceID *id.ID `db:"service_id" json:"serviceId,omitempty"`

	ProductName string `db:"product_name" json:"productName"`
	ProductCode string `db:"product_code" json:"productCode"`

	QuantityOrdered types.Quantity `db:"quantity_ordered" json:"quantityOrdered"`
	QuantityShipped types.Quantity `db:"quantity_shipped" json:"quantityShipped"`

	// BaseUnit is the canonical unit all conversion factors are expressed against.
	BaseUnit         string            `db:"base_unit" json:"baseUnit"`
	PackagingOptions []PackagingOption `db:"-" json:"packagingOptions"`

	// Price snapshot, carried through untouched, never recomputed here.
	PriceAtOrder    types.Money `db:"price_at_order" json:"priceAtOrder"`
	PriceInBaseUnit types.Money `db:"price_in_base_unit" json:"priceInBaseUnit"`
	VATRate         string      `db:"vat_rate" json:"vatRate"`
}

// AllocationCeiling is the maximum base-unit quantity that may be committed
// across all non-cancelled deliveries: ordered minus already shipped.
func (l *LineItem) AllocationCeiling() types.Quantity {
	return l.QuantityOrdered.Sub(l.QuantityShipped)
}

// Validate implements entity.Validatable.
func (l *LineItem) Validate(ctx context.Context) error {
	if l.ProductID != nil && l.ServiceID != nil {
		return apperror.NewValidation("product and service references are mutually exclusive").
			WithDetail("line_item_id", l.ID.String())
	}

	if l.BaseUnit == "" {
		return apperror.NewValidation("base unit is required").
			WithDetail("line_item_id", l.ID.String())
	}

	if l.QuantityOrdered.IsNegative() || l.QuantityShipped.IsNegative() {
		return apperror.NewValidation("ordered and shipped quantities cannot be negative").
			WithDetail("line_item_id", l.ID.String())
	}

	return nil
}
