package delivery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fulfil/internal/core/apperror"
	"fulfil/internal/core/id"
	"fulfil/internal/core/types"
)

func testHeader() Header {
	return Header{
		RequestedDate:  time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC),
		RequestedSlots: []string{"08:00-12:00"},
	}
}

func qty(v float64) types.Quantity { return types.NewQuantityFromFloat64(v) }

func TestDraftAddLineConvertsToBase(t *testing.T) {
	line := wheatLine()
	ord := orderWith(line)

	draft := NewDraft(ord, nil)
	require.NoError(t, draft.AddLine(line, "sac", qty(40)))

	lines := draft.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "sac", lines[0].UnitOfMeasure)
	assert.Equal(t, float64(40), lines[0].Quantity.Float64())
	assert.Equal(t, float64(1000), lines[0].QuantityInBaseUnit.Float64())
}

func TestDraftRejectsOverAllocation(t *testing.T) {
	line := wheatLine()
	ord := orderWith(line)
	existing := []*Delivery{deliveryWith(StatusCreated, line.ID, 250)} // 750 kg left

	draft := NewDraft(ord, existing)
	err := draft.AddLine(line, "sac", qty(31)) // 775 kg

	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeOverAllocation, appErr.Code)
	assert.Equal(t, float64(775), appErr.Details["requested_base"])
	assert.Equal(t, float64(750), appErr.Details["remaining_base"])

	// 30 sacks fit exactly.
	require.NoError(t, draft.AddLine(line, "sac", qty(30)))
}

func TestDraftCancelledDeliveryFreesCapacity(t *testing.T) {
	line := wheatLine()
	ord := orderWith(line)
	full := deliveryWith(StatusCreated, line.ID, 1000)

	draft := NewDraft(ord, []*Delivery{full})
	require.Error(t, draft.AddLine(line, "kg", qty(1)))

	require.NoError(t, full.Cancel())
	draft = NewDraft(ord, []*Delivery{full})
	require.NoError(t, draft.AddLine(line, "kg", qty(1000)))
}

func TestDraftReplaceLineDoesNotDoubleCount(t *testing.T) {
	line := wheatLine()
	ord := orderWith(line)

	draft := NewDraft(ord, nil)
	require.NoError(t, draft.AddLine(line, "sac", qty(40))) // full order
	// Re-adding replaces the previous allocation instead of stacking on it.
	require.NoError(t, draft.AddLine(line, "sac", qty(35)))

	lines := draft.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, float64(35), lines[0].Quantity.Float64())
}

func TestDraftForUpdateExcludesSelfOnce(t *testing.T) {
	line := wheatLine()
	ord := orderWith(line)

	own := deliveryWith(StatusCreated, line.ID, 500)
	other := deliveryWith(StatusCreated, line.ID, 300)

	draft := NewDraftForUpdate(ord, []*Delivery{own, other}, own)
	// Without self-exclusion only 200 kg would remain; with it, 700.
	require.NoError(t, draft.AddLine(line, "kg", qty(700)))
	require.Error(t, draft.AddLine(line, "kg", qty(701)))
}

func TestDraftManualLineBypassesCeiling(t *testing.T) {
	line := wheatLine()
	ord := orderWith(line)
	full := deliveryWith(StatusCreated, line.ID, 1000)

	draft := NewDraft(ord, []*Delivery{full})
	err := draft.AddManualLine(ManualLine{
		ProductName:   "Gift samples",
		UnitOfMeasure: "buc",
		Quantity:      qty(5000),
	})
	require.NoError(t, err)

	lines := draft.Lines()
	require.Len(t, lines, 1)
	assert.True(t, lines[0].IsManualEntry)
	assert.Nil(t, lines[0].OrderLineItemID)
}

func TestDraftManualLineRequiresName(t *testing.T) {
	draft := NewDraft(orderWith(wheatLine()), nil)
	err := draft.AddManualLine(ManualLine{Quantity: qty(1)})
	assert.Error(t, err)
}

func TestDraftRejectsNonPositiveQuantity(t *testing.T) {
	line := wheatLine()
	draft := NewDraft(orderWith(line), nil)

	assert.Error(t, draft.AddLine(line, "kg", qty(0)))
	assert.Error(t, draft.AddLine(line, "kg", qty(-5)))
}

func TestDraftSetLineQuantityRevalidates(t *testing.T) {
	line := wheatLine()
	ord := orderWith(line)

	draft := NewDraft(ord, nil)
	require.NoError(t, draft.AddLine(line, "sac", qty(10)))

	require.NoError(t, draft.SetLineQuantity(line.ID, qty(40)))
	err := draft.SetLineQuantity(line.ID, qty(41))
	require.Error(t, err)
	assert.True(t, apperror.IsOverAllocation(err))

	// Failed set keeps the last valid allocation.
	lines := draft.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, float64(40), lines[0].Quantity.Float64())
}

func TestDraftCommit(t *testing.T) {
	line := wheatLine()
	ord := orderWith(line)

	draft := NewDraft(ord, nil)
	require.NoError(t, draft.AddLine(line, "sac", qty(10)))

	d, err := draft.Commit(testHeader())
	require.NoError(t, err)

	assert.Equal(t, StatusCreated, d.Status)
	assert.Equal(t, ord.ID, d.OrderID)
	assert.False(t, id.IsNil(d.ID))
	require.Len(t, d.Items, 1)
	assert.Equal(t, 1, d.Items[0].LineNo)
}

func TestDraftCommitRequiresHeaderAndLines(t *testing.T) {
	line := wheatLine()
	draft := NewDraft(orderWith(line), nil)

	// No lines at all.
	_, err := draft.Commit(testHeader())
	assert.Error(t, err)

	require.NoError(t, draft.AddLine(line, "kg", qty(10)))

	// Missing slots.
	_, err = draft.Commit(Header{RequestedDate: time.Now()})
	assert.Error(t, err)

	// Missing date.
	_, err = draft.Commit(Header{RequestedSlots: []string{"08:00-12:00"}})
	assert.Error(t, err)
}

func TestDraftCommitUpdatePreservesIdentity(t *testing.T) {
	line := wheatLine()
	ord := orderWith(line)

	existing := deliveryWith(StatusScheduled, line.ID, 500)
	existing.Number = "DLV-2026-00007"

	draft := NewDraftForUpdate(ord, []*Delivery{existing}, existing)
	require.NoError(t, draft.AddLine(line, "sac", qty(8)))

	updated, err := draft.CommitUpdate(existing, testHeader())
	require.NoError(t, err)

	assert.Equal(t, existing.ID, updated.ID)
	assert.Equal(t, "DLV-2026-00007", updated.Number)
	assert.Equal(t, StatusScheduled, updated.Status)
	require.Len(t, updated.Items, 1)
	assert.Equal(t, float64(200), updated.Items[0].QuantityInBaseUnit.Float64())
}
