package delivery

import (
	"fulfil/internal/core/apperror"
	"fulfil/internal/core/entity"
	"fulfil/internal/core/id"
	"fulfil/internal/core/types"
	"fulfil/internal/domain/order"
	"fulfil/internal/domain/uom"
)

// Draft is a mutable, purely in-memory composition of a delivery. Every line
// added to it is validated against the remaining quantity recomputed from the
// authoritative delivery set; an immutable Delivery is produced only by
// Commit or CommitUpdate.
//
// At most one line per order line item is kept: adding again replaces the
// existing allocation, so a line is always validated against a ceiling that
// does not double count itself.
type Draft struct {
	ord    *order.Order
	active []*Delivery

	// excludeID is the delivery under edit, dropped exactly once from every
	// remaining computation. Nil for a new delivery.
	excludeID id.ID

	lines []LineItem
}

// NewDraft starts a draft for a new delivery against the given order and its
// current delivery set (any status; cancelled ones are ignored by the
// remaining calculation).
func NewDraft(ord *order.Order, active []*Delivery) *Draft {
	return &Draft{ord: ord, active: active}
}

// NewDraftForUpdate starts a draft that re-derives an existing delivery.
// The delivery's own prior allocation is excluded from ceilings exactly once.
func NewDraftForUpdate(ord *order.Order, active []*Delivery, existing *Delivery) *Draft {
	return &Draft{ord: ord, active: active, excludeID: existing.ID}
}

// Remaining exposes the draft's view of an order line's remaining quantity.
func (dr *Draft) Remaining(line *order.LineItem) types.Quantity {
	return Remaining(line, dr.active, dr.excludeID)
}

// AddLine allocates qty (expressed in unitName) of the given order line.
// Rejects non-positive quantities, unknown units and anything above the
// line's remaining quantity. On success the allocation replaces any existing
// draft line for the same order line item.
func (dr *Draft) AddLine(line *order.LineItem, unitName string, qty types.Quantity) error {
	if !qty.IsPositive() {
		return apperror.NewValidation("quantity must be positive").
			WithDetail("line_item_id", line.ID.String()).
			WithDetail("quantity", qty.String())
	}

	resolver := uom.NewResolver(line)
	if unitName == "" {
		unitName = resolver.BaseUnit()
	}
	base, err := resolver.ToBase(qty, unitName)
	if err != nil {
		return err
	}

	remaining := dr.Remaining(line)
	if base.Sub(remaining) >= types.Epsilon {
		return apperror.NewOverAllocation(line.ID.String(), base.Float64(), remaining.Round2().Float64())
	}

	lineID := line.ID
	item := LineItem{
		LineID:             id.New(),
		OrderLineItemID:    &lineID,
		ProductID:          line.ProductID,
		ServiceID:          line.ServiceID,
		ProductName:        line.ProductName,
		UnitOfMeasure:      unitName,
		Quantity:           qty,
		QuantityInBaseUnit: base,
		PriceAtOrder:       line.PriceAtOrder,
		PriceInBaseUnit:    line.PriceInBaseUnit,
		VATRate:            line.VATRate,
	}

	for i := range dr.lines {
		ref := dr.lines[i].OrderLineItemID
		if ref != nil && *ref == line.ID {
			item.LineID = dr.lines[i].LineID
			dr.lines[i] = item
			return nil
		}
	}
	dr.lines = append(dr.lines, item)
	return nil
}

// ManualLine describes a free-form allocation not tied to any order line.
type ManualLine struct {
	ProductID       *id.ID
	ServiceID       *id.ID
	ProductName     string
	UnitOfMeasure   string
	Quantity        types.Quantity
	PriceAtOrder    types.Money
	PriceInBaseUnit types.Money
	VATRate         string
}

// AddManualLine appends a manual entry. Manual entries represent goods
// outside the order: they bypass the allocation ceiling and are invisible to
// the remaining calculation. The quantity is taken as already base-expressed
// since no conversion table exists for them.
func (dr *Draft) AddManualLine(m ManualLine) error {
	if !m.Quantity.IsPositive() {
		return apperror.NewValidation("quantity must be positive").
			WithDetail("product_name", m.ProductName).
			WithDetail("quantity", m.Quantity.String())
	}
	if m.ProductName == "" {
		return apperror.NewValidation("manual entry requires a product name")
	}

	dr.lines = append(dr.lines, LineItem{
		LineID:             id.New(),
		ProductID:          m.ProductID,
		ServiceID:          m.ServiceID,
		ProductName:        m.ProductName,
		IsManualEntry:      true,
		UnitOfMeasure:      m.UnitOfMeasure,
		Quantity:           m.Quantity,
		QuantityInBaseUnit: m.Quantity.Round2(),
		PriceAtOrder:       m.PriceAtOrder,
		PriceInBaseUnit:    m.PriceInBaseUnit,
		VATRate:            m.VATRate,
	})
	return nil
}

// RemoveLine drops the allocation for the given order line item.
// Other lines are untouched.
func (dr *Draft) RemoveLine(orderLineItemID id.ID) {
	for i := range dr.lines {
		ref := dr.lines[i].OrderLineItemID
		if ref != nil && *ref == orderLineItemID {
			dr.lines = append(dr.lines[:i], dr.lines[i+1:]...)
			return
		}
	}
}

// SetLineQuantity re-validates an existing allocation at a new quantity,
// exactly as AddLine would.
func (dr *Draft) SetLineQuantity(orderLineItemID id.ID, newQty types.Quantity) error {
	for i := range dr.lines {
		ref := dr.lines[i].OrderLineItemID
		if ref != nil && *ref == orderLineItemID {
			line, ok := dr.ord.LineItem(orderLineItemID)
			if !ok {
				return apperror.NewNotFound("order line item", orderLineItemID.String())
			}
			return dr.AddLine(line, dr.lines[i].UnitOfMeasure, newQty)
		}
	}
	return apperror.NewNotFound("delivery line", orderLineItemID.String())
}

// Lines returns a copy of the current draft allocations.
func (dr *Draft) Lines() []LineItem {
	out := make([]LineItem, len(dr.lines))
	copy(out, dr.lines)
	return out
}

// Commit validates the header and lines and emits a new immutable Delivery
// with status CREATED. The document number is assigned by the caller.
func (dr *Draft) Commit(h Header) (*Delivery, error) {
	if err := h.Validate(); err != nil {
		return nil, err
	}
	if err := dr.requirePositiveLine(); err != nil {
		return nil, err
	}

	d := &Delivery{
		Document:       entity.NewDocument(),
		OrderID:        dr.ord.ID,
		Status:         StatusCreated,
		RequestedDate:  h.RequestedDate,
		RequestedSlots: h.RequestedSlots,
		Notes:          h.Notes,
		UITCode:        h.UITCode,
		Items:          dr.numberedLines(),
	}
	return d, nil
}

// CommitUpdate validates and applies the draft onto an existing delivery,
// preserving its identity, document number and status. Version is left at
// the value that was read so the repository's optimistic lock can match it.
func (dr *Draft) CommitUpdate(existing *Delivery, h Header) (*Delivery, error) {
	if err := h.Validate(); err != nil {
		return nil, err
	}
	if err := dr.requirePositiveLine(); err != nil {
		return nil, err
	}

	updated := *existing
	updated.RequestedDate = h.RequestedDate
	updated.RequestedSlots = h.RequestedSlots
	updated.Notes = h.Notes
	updated.UITCode = h.UITCode
	updated.Items = dr.numberedLines()
	return &updated, nil
}

func (dr *Draft) requirePositiveLine() error {
	for _, l := range dr.lines {
		if l.Quantity.IsPositive() {
			return nil
		}
	}
	return apperror.NewValidation("at least one line with a positive quantity is required").
		WithDetail("field", "items")
}

func (dr *Draft) numberedLines() []LineItem {
	lines := dr.Lines()
	for i := range lines {
		lines[i].LineNo = i + 1
	}
	return lines
}
