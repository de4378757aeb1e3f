package delivery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fulfil/internal/core/entity"
	"fulfil/internal/core/id"
	"fulfil/internal/core/types"
	"fulfil/internal/domain/order"
)

func wheatLine() *order.LineItem {
	return &order.LineItem{
		ID:              id.New(),
		ProductName:     "Wheat flour",
		QuantityOrdered: types.NewQuantityFromFloat64(1000),
		BaseUnit:        "kg",
		PackagingOptions: []order.PackagingOption{
			{UnitName: "sac", BaseUnitEquivalent: types.NewQuantityFromFloat64(25)},
			{UnitName: "palet", BaseUnitEquivalent: types.NewQuantityFromFloat64(1000)},
		},
	}
}

func orderWith(lines ...*order.LineItem) *order.Order {
	ord := &order.Order{ID: id.New(), Number: "ORD-2026-00001", Status: "CONFIRMED"}
	for _, l := range lines {
		ord.LineItems = append(ord.LineItems, *l)
	}
	return ord
}

func deliveryWith(status Status, lineID id.ID, baseQty float64) *Delivery {
	ref := lineID
	return &Delivery{
		Document: entity.NewDocument(),
		Status:   status,
		Items: []LineItem{{
			LineID:             id.New(),
			OrderLineItemID:    &ref,
			QuantityInBaseUnit: types.NewQuantityFromFloat64(baseQty),
		}},
	}
}

func TestRemainingNoDeliveries(t *testing.T) {
	line := wheatLine()

	got := Remaining(line, nil, id.Nil())
	assert.Equal(t, float64(1000), got.Float64())
}

func TestRemainingSumsNonCancelled(t *testing.T) {
	line := wheatLine()
	deliveries := []*Delivery{
		deliveryWith(StatusCreated, line.ID, 250),
		deliveryWith(StatusInTransit, line.ID, 100),
		deliveryWith(StatusCancelled, line.ID, 400), // freed capacity
	}

	got := Remaining(line, deliveries, id.Nil())
	assert.Equal(t, float64(650), got.Float64())
}

func TestRemainingShippedCountsAgainstCeiling(t *testing.T) {
	line := wheatLine()
	line.QuantityShipped = types.NewQuantityFromFloat64(200)

	deliveries := []*Delivery{deliveryWith(StatusCreated, line.ID, 250)}

	got := Remaining(line, deliveries, id.Nil())
	assert.Equal(t, float64(550), got.Float64())
}

func TestRemainingExcludesOneDelivery(t *testing.T) {
	line := wheatLine()
	d1 := deliveryWith(StatusCreated, line.ID, 250)
	d2 := deliveryWith(StatusCreated, line.ID, 100)

	got := Remaining(line, []*Delivery{d1, d2}, d1.ID)
	assert.Equal(t, float64(900), got.Float64())
}

func TestRemainingIgnoresManualAndForeignLines(t *testing.T) {
	line := wheatLine()
	other := wheatLine()

	manual := &Delivery{
		Document: entity.NewDocument(),
		Status:   StatusCreated,
		Items: []LineItem{{
			LineID:             id.New(),
			IsManualEntry:      true,
			QuantityInBaseUnit: types.NewQuantityFromFloat64(500),
		}},
	}
	foreign := deliveryWith(StatusCreated, other.ID, 300)

	got := Remaining(line, []*Delivery{manual, foreign}, id.Nil())
	assert.Equal(t, float64(1000), got.Float64())
}

func TestRemainingNegligibleClampsToZero(t *testing.T) {
	line := wheatLine()
	deliveries := []*Delivery{deliveryWith(StatusCreated, line.ID, 999.9995)}

	got := Remaining(line, deliveries, id.Nil())
	assert.True(t, got.IsZero())
}

func TestRemainingInUnit(t *testing.T) {
	line := wheatLine()
	deliveries := []*Delivery{deliveryWith(StatusCreated, line.ID, 250)}

	inSacs, err := RemainingInUnit(line, deliveries, id.Nil(), "sac")
	require.NoError(t, err)
	assert.Equal(t, float64(30), inSacs.Float64())

	inBase, err := RemainingInUnit(line, deliveries, id.Nil(), "")
	require.NoError(t, err)
	assert.Equal(t, float64(750), inBase.Float64())

	_, err = RemainingInUnit(line, deliveries, id.Nil(), "cutie")
	assert.Error(t, err)
}
