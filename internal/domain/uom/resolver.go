// Package uom provides per-line unit conversion between packaging units and
// the line's canonical base unit.
package uom

import (
	"fulfil/internal/core/apperror"
	"fulfil/internal/core/id"
	"fulfil/internal/core/types"
	"fulfil/internal/domain/order"
)

// Resolver holds the unit table of a single order line: the base unit with
// factor 1 plus every packaging option, deduplicated by unit name with the
// first occurrence winning. Conversions keep full fixed-point precision and
// round to 2 decimal places only on output.
type Resolver struct {
	lineItemID id.ID
	baseUnit   string
	factors    map[string]types.Quantity
	units      []string
}

// NewResolver builds the conversion table for an order line.
func NewResolver(line *order.LineItem) *Resolver {
	r := &Resolver{
		lineItemID: line.ID,
		baseUnit:   line.BaseUnit,
		factors:    make(map[string]types.Quantity, len(line.PackagingOptions)+1),
	}

	r.factors[line.BaseUnit] = types.NewQuantityFromInt(1)
	r.units = append(r.units, line.BaseUnit)

	for _, opt := range line.PackagingOptions {
		if _, seen := r.factors[opt.UnitName]; seen {
			continue
		}
		r.factors[opt.UnitName] = opt.BaseUnitEquivalent
		r.units = append(r.units, opt.UnitName)
	}

	return r
}

// BaseUnit returns the canonical unit name.
func (r *Resolver) BaseUnit() string { return r.baseUnit }

// Units lists known unit names, base unit first, in declaration order.
func (r *Resolver) Units() []string { return r.units }

// Has reports whether the unit is usable for conversion.
// A unit with a zero factor is treated as unknown (never divide by zero).
func (r *Resolver) Has(unitName string) bool {
	f, ok := r.factors[unitName]
	return ok && !f.IsZero()
}

// Factor returns the base-unit conversion factor for a unit name.
func (r *Resolver) Factor(unitName string) (types.Quantity, error) {
	f, ok := r.factors[unitName]
	if !ok || f.IsZero() {
		return 0, apperror.NewUnknownUnit(unitName, r.lineItemID.String())
	}
	return f, nil
}

// ToBase converts a quantity expressed in unitName into base units,
// rounded to 2 decimal places.
func (r *Resolver) ToBase(qty types.Quantity, unitName string) (types.Quantity, error) {
	f, err := r.Factor(unitName)
	if err != nil {
		return 0, err
	}
	return qty.MulFactor(f).Round2(), nil
}

// FromBase converts a base-unit quantity into unitName,
// rounded to 2 decimal places.
func (r *Resolver) FromBase(qtyBase types.Quantity, unitName string) (types.Quantity, error) {
	f, err := r.Factor(unitName)
	if err != nil {
		return 0, err
	}
	return qtyBase.DivFactor(f).Round2(), nil
}
