package delivery

import (
	"fulfil/internal/core/id"
	"fulfil/internal/core/types"
	"fulfil/internal/domain/order"
	"fulfil/internal/domain/uom"
)

// Remaining computes, in base units, how much of an order line is still
// unallocated across the given deliveries.
//
// Cancelled deliveries never count, which is why this is always recomputed
// over the full delivery set instead of cached. excludeID drops one delivery
// from the sum; pass id.Nil() for none. It is used when editing a delivery so
// its own current allocation does not count against itself.
//
// Manual entries carry no order line reference and are never counted.
func Remaining(line *order.LineItem, deliveries []*Delivery, excludeID id.ID) types.Quantity {
	var allocated types.Quantity
	for _, d := range deliveries {
		if d.Status == StatusCancelled {
			continue
		}
		if !id.IsNil(excludeID) && d.ID == excludeID {
			continue
		}
		for _, item := range d.Items {
			if item.OrderLineItemID != nil && *item.OrderLineItemID == line.ID {
				allocated = allocated.Add(item.QuantityInBaseUnit)
			}
		}
	}

	remaining := line.AllocationCeiling().Sub(allocated)
	if remaining.IsNegligible() {
		return 0
	}
	return remaining
}

// RemainingInUnit expresses the remaining quantity in the given unit using
// the line's conversion table. An empty unit name means the base unit.
func RemainingInUnit(line *order.LineItem, deliveries []*Delivery, excludeID id.ID, unitName string) (types.Quantity, error) {
	resolver := uom.NewResolver(line)
	if unitName == "" {
		unitName = resolver.BaseUnit()
	}
	return resolver.FromBase(Remaining(line, deliveries, excludeID), unitName)
}
