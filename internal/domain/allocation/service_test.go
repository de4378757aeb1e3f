package allocation

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fulfil/internal/core/apperror"
	"fulfil/internal/core/id"
	"fulfil/internal/core/types"
	"fulfil/internal/domain/delivery"
	"fulfil/internal/domain/order"
	"fulfil/pkg/numerator"
)

// --- fakes ---

type fakeOrderRepo struct {
	orders map[id.ID]*order.Order
	panics bool
}

func (r *fakeOrderRepo) GetByID(ctx context.Context, orderID id.ID) (*order.Order, error) {
	if r.panics {
		panic("order repo exploded")
	}
	ord, ok := r.orders[orderID]
	if !ok {
		return nil, apperror.NewNotFound("order", orderID.String())
	}
	return ord, nil
}

type fakeDeliveryRepo struct {
	deliveries map[id.ID]*delivery.Delivery
}

func newFakeDeliveryRepo() *fakeDeliveryRepo {
	return &fakeDeliveryRepo{deliveries: make(map[id.ID]*delivery.Delivery)}
}

func (r *fakeDeliveryRepo) GetByID(ctx context.Context, deliveryID id.ID) (*delivery.Delivery, error) {
	d, ok := r.deliveries[deliveryID]
	if !ok {
		return nil, apperror.NewNotFound("delivery", deliveryID.String())
	}
	clone := *d
	return &clone, nil
}

func (r *fakeDeliveryRepo) ListByOrder(ctx context.Context, orderID id.ID) ([]*delivery.Delivery, error) {
	var out []*delivery.Delivery
	for _, d := range r.deliveries {
		if d.OrderID == orderID {
			clone := *d
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *fakeDeliveryRepo) Create(ctx context.Context, d *delivery.Delivery) error {
	clone := *d
	r.deliveries[d.ID] = &clone
	return nil
}

// Update mirrors the optimistic lock of the real repository: the write
// matches on the version that was read and advances it on success.
func (r *fakeDeliveryRepo) Update(ctx context.Context, d *delivery.Delivery) error {
	stored, ok := r.deliveries[d.ID]
	if !ok {
		return apperror.NewNotFound("delivery", d.ID.String())
	}
	if stored.Version != d.Version {
		return apperror.NewConcurrentModification("deliveries", d.ID)
	}
	d.Version++
	clone := *d
	r.deliveries[d.ID] = &clone
	return nil
}

func (r *fakeDeliveryRepo) UpdateStatus(ctx context.Context, d *delivery.Delivery) error {
	return r.Update(ctx, d)
}

type fakeNumbers struct {
	next int
}

func (n *fakeNumbers) GetNextNumber(ctx context.Context, cfg numerator.Config, opts *numerator.Options, period time.Time) (string, error) {
	n.next++
	return fmt.Sprintf("%s-2026-%05d", cfg.Prefix, n.next), nil
}

type fakeTxManager struct{}

func (fakeTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (fakeTxManager) RunSerializable(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type recordingNotifier struct {
	events []ChangeEvent
	fail   bool
}

func (n *recordingNotifier) DeliveriesChanged(ctx context.Context, event ChangeEvent) error {
	if n.fail {
		return fmt.Errorf("broker unreachable")
	}
	n.events = append(n.events, event)
	return nil
}

type recordingAuditor struct {
	actions []string
	ids     []id.ID
	entries []AuditEntry
}

func (a *recordingAuditor) RecordChange(ctx context.Context, entityName string, entityID id.ID, action string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	a.actions = append(a.actions, action)
	a.ids = append(a.ids, entityID)
	a.entries = append(a.entries, AuditEntry{
		ID:        id.New(),
		Action:    action,
		Payload:   raw,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (a *recordingAuditor) EntityHistory(ctx context.Context, entityName string, entityID id.ID, limit int) ([]AuditEntry, error) {
	var out []AuditEntry
	for i := len(a.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if a.ids[i] == entityID {
			out = append(out, a.entries[i])
		}
	}
	return out, nil
}

// --- fixture ---

type fixture struct {
	svc      *Service
	ord      *order.Order
	line     *order.LineItem
	repo     *fakeDeliveryRepo
	notifier *recordingNotifier
	auditor  *recordingAuditor
}

// newFixture builds an engine over one order: 1000 kg of wheat flour,
// sellable in kg, 25 kg sacks and 1000 kg pallets.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	line := order.LineItem{
		ID:              id.New(),
		ProductName:     "Wheat flour",
		QuantityOrdered: types.NewQuantityFromFloat64(1000),
		BaseUnit:        "kg",
		PackagingOptions: []order.PackagingOption{
			{UnitName: "sac", BaseUnitEquivalent: types.NewQuantityFromFloat64(25)},
			{UnitName: "palet", BaseUnitEquivalent: types.NewQuantityFromFloat64(1000)},
		},
	}
	ord := &order.Order{
		ID:        id.New(),
		Number:    "ORD-2026-00001",
		Status:    "CONFIRMED",
		LineItems: []order.LineItem{line},
	}

	repo := newFakeDeliveryRepo()
	notifier := &recordingNotifier{}
	auditor := &recordingAuditor{}

	svc := NewService(
		&fakeOrderRepo{orders: map[id.ID]*order.Order{ord.ID: ord}},
		repo,
		fakeTxManager{},
		&fakeNumbers{},
		notifier,
		auditor,
	)

	return &fixture{
		svc:      svc,
		ord:      ord,
		line:     &ord.LineItems[0],
		repo:     repo,
		notifier: notifier,
		auditor:  auditor,
	}
}

func header() delivery.Header {
	return delivery.Header{
		RequestedDate:  time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC),
		RequestedSlots: []string{"08:00-12:00"},
	}
}

func sacLine(f *fixture, sacs float64) []RequestedLine {
	return []RequestedLine{{
		OrderLineItemID: f.line.ID,
		UnitOfMeasure:   "sac",
		Quantity:        types.NewQuantityFromFloat64(sacs),
	}}
}

// --- tests ---

func TestPlanSingleConvertsAndPersists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := f.svc.PlanSingle(ctx, f.ord.ID, header(), sacLine(f, 10))

	require.True(t, res.Success, "message: %s", res.Message)
	require.NotNil(t, res.Data)
	d := res.Data

	assert.Equal(t, "DLV-2026-00001", d.Number)
	assert.Equal(t, delivery.StatusCreated, d.Status)
	require.Len(t, d.Items, 1)
	assert.Equal(t, float64(10), d.Items[0].Quantity.Float64())
	assert.Equal(t, float64(250), d.Items[0].QuantityInBaseUnit.Float64())

	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, "created", f.notifier.events[0].Change)
	assert.Equal(t, []string{"created"}, f.auditor.actions)
}

func TestGetRemainingAfterPartialAllocation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.True(t, f.svc.PlanSingle(ctx, f.ord.ID, header(), sacLine(f, 10)).Success)

	inBase := f.svc.GetRemaining(ctx, f.ord.ID, f.line.ID, "", id.Nil())
	require.True(t, inBase.Success)
	assert.Equal(t, float64(750), *inBase.Data)

	inSacs := f.svc.GetRemaining(ctx, f.ord.ID, f.line.ID, "sac", id.Nil())
	require.True(t, inSacs.Success)
	assert.Equal(t, float64(30), *inSacs.Data)

	// Read twice, same answer: reads never mutate anything.
	again := f.svc.GetRemaining(ctx, f.ord.ID, f.line.ID, "sac", id.Nil())
	assert.Equal(t, *inSacs.Data, *again.Data)
}

func TestPlanSingleRejectsOverAllocation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.True(t, f.svc.PlanSingle(ctx, f.ord.ID, header(), sacLine(f, 10)).Success)

	res := f.svc.PlanSingle(ctx, f.ord.ID, header(), sacLine(f, 31)) // 775 > 750

	require.False(t, res.Success)
	require.NotNil(t, res.Err)
	assert.Equal(t, apperror.CodeOverAllocation, res.Err.Code)
	assert.Equal(t, float64(750), res.Err.Details["remaining_base"])

	// Nothing was persisted and nobody was notified of a failure.
	assert.Len(t, f.repo.deliveries, 1)
	assert.Len(t, f.notifier.events, 1)
}

func TestCancelFreesCapacity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.svc.PlanSingle(ctx, f.ord.ID, header(), sacLine(f, 40))
	require.True(t, first.Success)

	// Order fully allocated: nothing more fits.
	require.False(t, f.svc.PlanSingle(ctx, f.ord.ID, header(), sacLine(f, 1)).Success)

	cancel := f.svc.CancelDelivery(ctx, first.Data.ID)
	require.True(t, cancel.Success)

	// Cancellation alone freed the full quantity.
	res := f.svc.PlanSingle(ctx, f.ord.ID, header(), sacLine(f, 40))
	require.True(t, res.Success, "message: %s", res.Message)
	assert.Equal(t, "DLV-2026-00003", res.Data.Number)
}

func TestPlanAllUsesLastChosenUnit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.True(t, f.svc.PlanSingle(ctx, f.ord.ID, header(), sacLine(f, 10)).Success)

	res := f.svc.PlanAll(ctx, f.ord.ID, header())
	require.True(t, res.Success, "message: %s", res.Message)

	require.Len(t, res.Data.Items, 1)
	item := res.Data.Items[0]
	assert.Equal(t, "sac", item.UnitOfMeasure)
	assert.Equal(t, float64(30), item.Quantity.Float64())
	assert.Equal(t, float64(750), item.QuantityInBaseUnit.Float64())
}

func TestPlanAllDefaultsToBaseUnit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := f.svc.PlanAll(ctx, f.ord.ID, header())
	require.True(t, res.Success)

	require.Len(t, res.Data.Items, 1)
	assert.Equal(t, "kg", res.Data.Items[0].UnitOfMeasure)
	assert.Equal(t, float64(1000), res.Data.Items[0].Quantity.Float64())
}

func TestPlanAllFallsBackToBaseUnitForSmallRemainder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// 996 kg allocated as pallets leaves 4 kg, which rounds to 0.00 pallets.
	res := f.svc.PlanSingle(ctx, f.ord.ID, header(), []RequestedLine{{
		OrderLineItemID: f.line.ID,
		UnitOfMeasure:   "palet",
		Quantity:        types.NewQuantityFromFloat64(0.996),
	}})
	require.True(t, res.Success, "message: %s", res.Message)

	all := f.svc.PlanAll(ctx, f.ord.ID, header())
	require.True(t, all.Success, "message: %s", all.Message)

	require.Len(t, all.Data.Items, 1)
	item := all.Data.Items[0]
	assert.Equal(t, "kg", item.UnitOfMeasure)
	assert.Equal(t, float64(4), item.Quantity.Float64())
	assert.Equal(t, float64(4), item.QuantityInBaseUnit.Float64())
}

func TestPlanAllWithNothingRemainingFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.True(t, f.svc.PlanSingle(ctx, f.ord.ID, header(), sacLine(f, 40)).Success)

	res := f.svc.PlanAll(ctx, f.ord.ID, header())
	require.False(t, res.Success)
	assert.Equal(t, apperror.CodeValidation, res.Err.Code)
}

func TestUpdateDeliveryExcludesOwnAllocation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created := f.svc.PlanSingle(ctx, f.ord.ID, header(), sacLine(f, 20)) // 500 kg
	require.True(t, created.Success)
	require.True(t, f.svc.PlanSingle(ctx, f.ord.ID, header(), sacLine(f, 12)).Success) // 300 kg

	// 200 kg raw remainder; excluding itself the first delivery may grow to 700 kg.
	res := f.svc.UpdateDelivery(ctx, created.Data.ID, header(), sacLine(f, 28))
	require.True(t, res.Success, "message: %s", res.Message)
	assert.Equal(t, float64(700), res.Data.Items[0].QuantityInBaseUnit.Float64())

	// But not past it.
	res = f.svc.UpdateDelivery(ctx, created.Data.ID, header(), sacLine(f, 29))
	require.False(t, res.Success)
	assert.Equal(t, apperror.CodeOverAllocation, res.Err.Code)
}

func TestFirstWriteAfterReadMatchesStoredVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created := f.svc.PlanSingle(ctx, f.ord.ID, header(), sacLine(f, 10))
	require.True(t, created.Success)
	assert.Equal(t, 1, created.Data.Version)

	// The very first update of a fresh delivery must go through: the write
	// matches on the version that was read, not on an already-bumped one.
	upd := f.svc.UpdateDelivery(ctx, created.Data.ID, header(), sacLine(f, 5))
	require.True(t, upd.Success, "message: %s", upd.Message)
	assert.Equal(t, 2, upd.Data.Version)

	cancel := f.svc.CancelDelivery(ctx, created.Data.ID)
	require.True(t, cancel.Success, "message: %s", cancel.Message)

	stored := f.repo.deliveries[created.Data.ID]
	assert.Equal(t, delivery.StatusCancelled, stored.Status)
	assert.Equal(t, 3, stored.Version)
}

func TestUpdateDeliveryPreservesNumberAndStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created := f.svc.PlanSingle(ctx, f.ord.ID, header(), sacLine(f, 10))
	require.True(t, created.Success)

	res := f.svc.UpdateDelivery(ctx, created.Data.ID, header(), sacLine(f, 5))
	require.True(t, res.Success)
	assert.Equal(t, created.Data.Number, res.Data.Number)
	assert.Equal(t, delivery.StatusCreated, res.Data.Status)
}

func TestLifecycleGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created := f.svc.PlanSingle(ctx, f.ord.ID, header(), sacLine(f, 10))
	require.True(t, created.Success)
	deliveryID := created.Data.ID

	for _, next := range []delivery.Status{
		delivery.StatusScheduled, delivery.StatusInTransit, delivery.StatusDelivered,
	} {
		res := f.svc.AdvanceDelivery(ctx, deliveryID, next)
		require.True(t, res.Success, "advance to %s: %s", next, res.Message)
	}

	// DELIVERED deliveries can neither be cancelled nor edited.
	cancel := f.svc.CancelDelivery(ctx, deliveryID)
	require.False(t, cancel.Success)
	assert.Equal(t, apperror.CodeInvalidStatusTransition, cancel.Err.Code)

	upd := f.svc.UpdateDelivery(ctx, deliveryID, header(), sacLine(f, 5))
	require.False(t, upd.Success)
	assert.Equal(t, apperror.CodeInvalidStatusTransition, upd.Err.Code)

	// Skipping states is rejected too.
	fresh := f.svc.PlanSingle(ctx, f.ord.ID, header(), sacLine(f, 1))
	require.True(t, fresh.Success)
	skip := f.svc.AdvanceDelivery(ctx, fresh.Data.ID, delivery.StatusDelivered)
	require.False(t, skip.Success)
	assert.Equal(t, apperror.CodeInvalidStatusTransition, skip.Err.Code)
}

func TestAdvanceToDeliveredStampsDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created := f.svc.PlanSingle(ctx, f.ord.ID, header(), sacLine(f, 10))
	require.True(t, created.Success)
	deliveryID := created.Data.ID

	require.True(t, f.svc.AdvanceDelivery(ctx, deliveryID, delivery.StatusScheduled).Success)
	require.True(t, f.svc.AdvanceDelivery(ctx, deliveryID, delivery.StatusInTransit).Success)

	res := f.svc.AdvanceDelivery(ctx, deliveryID, delivery.StatusDelivered)
	require.True(t, res.Success)
	require.NotNil(t, res.Data.DeliveryDate)
	assert.Equal(t, res.Data.RequestedSlots, res.Data.DeliverySlots)
}

func TestManualEntryBypassesCeiling(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.True(t, f.svc.PlanSingle(ctx, f.ord.ID, header(), sacLine(f, 40)).Success)

	res := f.svc.PlanSingle(ctx, f.ord.ID, header(), []RequestedLine{{
		Manual:        true,
		ProductName:   "Promo samples",
		UnitOfMeasure: "buc",
		Quantity:      types.NewQuantityFromFloat64(100),
	}})
	require.True(t, res.Success, "message: %s", res.Message)
	assert.True(t, res.Data.Items[0].IsManualEntry)
}

func TestNotifierFailureDoesNotFailOperation(t *testing.T) {
	f := newFixture(t)
	f.notifier.fail = true
	ctx := context.Background()

	res := f.svc.PlanSingle(ctx, f.ord.ID, header(), sacLine(f, 10))
	require.True(t, res.Success)
	assert.Len(t, f.repo.deliveries, 1)
}

func TestPanicBecomesFailedResult(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	svc := NewService(
		&fakeOrderRepo{panics: true},
		f.repo,
		fakeTxManager{},
		&fakeNumbers{},
		f.notifier,
		f.auditor,
	)

	res := svc.PlanSingle(ctx, f.ord.ID, header(), sacLine(f, 1))
	require.False(t, res.Success)
	require.NotNil(t, res.Err)
	assert.Equal(t, apperror.CodeInternal, res.Err.Code)
}

func TestUnknownUnitFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := f.svc.PlanSingle(ctx, f.ord.ID, header(), []RequestedLine{{
		OrderLineItemID: f.line.ID,
		UnitOfMeasure:   "cutie",
		Quantity:        types.NewQuantityFromFloat64(1),
	}})
	require.False(t, res.Success)
	assert.Equal(t, apperror.CodeUnknownUnit, res.Err.Code)
}

func TestDeliveryHistoryListsChangesNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created := f.svc.PlanSingle(ctx, f.ord.ID, header(), sacLine(f, 10))
	require.True(t, created.Success)
	require.True(t, f.svc.UpdateDelivery(ctx, created.Data.ID, header(), sacLine(f, 5)).Success)
	require.True(t, f.svc.CancelDelivery(ctx, created.Data.ID).Success)

	// Another delivery's trail must not leak in.
	require.True(t, f.svc.PlanSingle(ctx, f.ord.ID, header(), sacLine(f, 1)).Success)

	res := f.svc.GetDeliveryHistory(ctx, created.Data.ID, 10)
	require.True(t, res.Success, "message: %s", res.Message)
	entries := *res.Data
	require.Len(t, entries, 3)
	assert.Equal(t, "cancelled", entries[0].Action)
	assert.Equal(t, "updated", entries[1].Action)
	assert.Equal(t, "created", entries[2].Action)
	assert.NotEmpty(t, entries[0].Payload)

	missing := f.svc.GetDeliveryHistory(ctx, id.New(), 10)
	require.False(t, missing.Success)
	assert.Equal(t, apperror.CodeNotFound, missing.Err.Code)
}

func TestConservationAcrossOperations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.svc.PlanSingle(ctx, f.ord.ID, header(), sacLine(f, 15))
	require.True(t, first.Success)
	require.True(t, f.svc.PlanSingle(ctx, f.ord.ID, header(), sacLine(f, 20)).Success)
	require.True(t, f.svc.CancelDelivery(ctx, first.Data.ID).Success)
	require.True(t, f.svc.PlanAll(ctx, f.ord.ID, header()).Success)

	var allocated types.Quantity
	for _, d := range f.repo.deliveries {
		if d.Status == delivery.StatusCancelled {
			continue
		}
		for _, item := range d.Items {
			if item.OrderLineItemID != nil {
				allocated = allocated.Add(item.QuantityInBaseUnit)
			}
		}
	}

	// Non-cancelled allocations add up to exactly the ordered quantity.
	assert.Equal(t, f.line.QuantityOrdered.Float64(), allocated.Float64())

	remaining := f.svc.GetRemaining(ctx, f.ord.ID, f.line.ID, "", id.Nil())
	require.True(t, remaining.Success)
	assert.Equal(t, float64(0), *remaining.Data)
}
