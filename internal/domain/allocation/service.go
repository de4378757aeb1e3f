// Package allocation implements the order-fulfillment allocation engine: it
// plans how a sales order's line items are split across deliveries while
// guaranteeing that no more than the ordered, not-yet-shipped quantity of any
// line is ever committed to outstanding deliveries.
package allocation

import (
	"context"
	"time"

	"fulfil/internal/core/apperror"
	"fulfil/internal/core/id"
	"fulfil/internal/core/tx"
	"fulfil/internal/core/types"
	"fulfil/internal/domain/delivery"
	"fulfil/internal/domain/order"
	"fulfil/pkg/logger"
	"fulfil/pkg/numerator"
)

// NumberGenerator produces delivery document numbers.
type NumberGenerator interface {
	GetNextNumber(ctx context.Context, cfg numerator.Config, opts *numerator.Options, period time.Time) (string, error)
}

// RequestedLine is one line of a plan or update request.
// Manual entries leave OrderLineItemID nil and set Manual.
type RequestedLine struct {
	OrderLineItemID id.ID          `json:"orderLineItemId"`
	UnitOfMeasure   string         `json:"unitOfMeasure"`
	Quantity        types.Quantity `json:"quantity"`

	Manual          bool        `json:"isManualEntry"`
	ProductID       *id.ID      `json:"productId,omitempty"`
	ServiceID       *id.ID      `json:"serviceId,omitempty"`
	ProductName     string      `json:"productName,omitempty"`
	PriceAtOrder    types.Money `json:"priceAtTimeOfOrder,omitempty"`
	PriceInBaseUnit types.Money `json:"priceInBaseUnit,omitempty"`
	VATRate         string      `json:"vatRate,omitempty"`
}

// Service orchestrates the unit resolver, remaining calculator and draft
// builder behind the engine's public operations.
//
// Every mutation re-reads the order's active deliveries and recomputes
// remaining quantities inside one serializable transaction, so two
// concurrent planners cannot both allocate the same remaining quantity.
type Service struct {
	orders     order.Repository
	deliveries delivery.Repository
	txm        tx.SerializableManager
	numbers    NumberGenerator
	notifier   Notifier
	auditor    Auditor
}

// NewService creates the allocation engine façade.
// notifier and auditor may be nil; both are best-effort collaborators.
func NewService(
	orders order.Repository,
	deliveries delivery.Repository,
	txm tx.SerializableManager,
	numbers NumberGenerator,
	notifier Notifier,
	auditor Auditor,
) *Service {
	return &Service{
		orders:     orders,
		deliveries: deliveries,
		txm:        txm,
		numbers:    numbers,
		notifier:   notifier,
		auditor:    auditor,
	}
}

// PlanSingle creates one delivery from explicitly requested lines.
func (s *Service) PlanSingle(ctx context.Context, orderID id.ID, h delivery.Header, lines []RequestedLine) Result[delivery.Delivery] {
	return guard(func() (delivery.Delivery, string, error) {
		number, err := s.nextNumber(ctx)
		if err != nil {
			return delivery.Delivery{}, "", err
		}

		var created *delivery.Delivery
		err = s.txm.RunSerializable(ctx, func(ctx context.Context) error {
			ord, err := s.orders.GetByID(ctx, orderID)
			if err != nil {
				return err
			}
			existing, err := s.deliveries.ListByOrder(ctx, orderID)
			if err != nil {
				return err
			}

			draft := delivery.NewDraft(ord, existing)
			if err := s.applyRequestedLines(draft, ord, lines); err != nil {
				return err
			}

			d, err := draft.Commit(h)
			if err != nil {
				return err
			}
			d.Number = number

			if err := s.deliveries.Create(ctx, d); err != nil {
				return err
			}
			created = d
			return nil
		})
		if err != nil {
			return delivery.Delivery{}, "", err
		}

		s.afterMutation(ctx, created, "created")
		logger.Info(ctx, "delivery planned", "id", created.ID, "number", created.Number, "order_id", orderID)
		return *created, "delivery planned", nil
	})
}

// PlanAll creates one delivery covering the full remaining quantity of every
// order line that still has one. Each auto-added line uses the line's
// currently selected unit: the unit of its most recent non-cancelled
// allocation, or the base unit when it was never allocated. Fully allocated
// lines are silently skipped.
func (s *Service) PlanAll(ctx context.Context, orderID id.ID, h delivery.Header) Result[delivery.Delivery] {
	return guard(func() (delivery.Delivery, string, error) {
		number, err := s.nextNumber(ctx)
		if err != nil {
			return delivery.Delivery{}, "", err
		}

		var created *delivery.Delivery
		err = s.txm.RunSerializable(ctx, func(ctx context.Context) error {
			ord, err := s.orders.GetByID(ctx, orderID)
			if err != nil {
				return err
			}
			existing, err := s.deliveries.ListByOrder(ctx, orderID)
			if err != nil {
				return err
			}

			draft := delivery.NewDraft(ord, existing)
			for i := range ord.LineItems {
				line := &ord.LineItems[i]
				remainingBase := draft.Remaining(line)
				if !remainingBase.IsPositive() {
					continue
				}

				unit := lastChosenUnit(line.ID, existing, line.BaseUnit)
				remaining, err := delivery.RemainingInUnit(line, existing, id.Nil(), unit)
				if err != nil {
					return err
				}
				if !remaining.IsPositive() && unit != line.BaseUnit {
					// A small remainder can round to 0.00 in a coarse
					// packaging unit. Re-express it in the base unit.
					unit = line.BaseUnit
					remaining, err = delivery.RemainingInUnit(line, existing, id.Nil(), unit)
					if err != nil {
						return err
					}
				}
				if !remaining.IsPositive() {
					continue
				}
				err = draft.AddLine(line, unit, remaining)
				if apperror.IsOverAllocation(err) {
					// Expressing the remainder in a coarse packaging unit can
					// round it half a step past the ceiling. Step down once.
					err = draft.AddLine(line, unit, remaining.Sub(types.QuantityStep))
				}
				if err != nil {
					return err
				}
			}

			d, err := draft.Commit(h)
			if err != nil {
				return err
			}
			d.Number = number

			if err := s.deliveries.Create(ctx, d); err != nil {
				return err
			}
			created = d
			return nil
		})
		if err != nil {
			return delivery.Delivery{}, "", err
		}

		s.afterMutation(ctx, created, "created")
		logger.Info(ctx, "delivery planned for full remainder", "id", created.ID, "number", created.Number, "order_id", orderID)
		return *created, "delivery planned", nil
	})
}

// UpdateDelivery re-derives a delivery from the proposed header and lines.
// Every line is revalidated against remaining quantities with the delivery's
// own prior allocation excluded exactly once. Document number and status are
// preserved.
func (s *Service) UpdateDelivery(ctx context.Context, deliveryID id.ID, h delivery.Header, lines []RequestedLine) Result[delivery.Delivery] {
	return guard(func() (delivery.Delivery, string, error) {
		var updated *delivery.Delivery
		err := s.txm.RunSerializable(ctx, func(ctx context.Context) error {
			existing, err := s.deliveries.GetByID(ctx, deliveryID)
			if err != nil {
				return err
			}
			if err := existing.CanModify(); err != nil {
				return err
			}

			ord, err := s.orders.GetByID(ctx, existing.OrderID)
			if err != nil {
				return err
			}
			all, err := s.deliveries.ListByOrder(ctx, existing.OrderID)
			if err != nil {
				return err
			}

			draft := delivery.NewDraftForUpdate(ord, all, existing)
			if err := s.applyRequestedLines(draft, ord, lines); err != nil {
				return err
			}

			d, err := draft.CommitUpdate(existing, h)
			if err != nil {
				return err
			}

			if err := s.deliveries.Update(ctx, d); err != nil {
				return err
			}
			updated = d
			return nil
		})
		if err != nil {
			return delivery.Delivery{}, "", err
		}

		s.afterMutation(ctx, updated, "updated")
		logger.Info(ctx, "delivery updated", "id", updated.ID, "number", updated.Number)
		return *updated, "delivery updated", nil
	})
}

// CancelDelivery transitions a delivery to CANCELLED. Allowed only from
// CREATED or SCHEDULED. Cancellation alone frees the delivery's quantities
// for future planning; nothing is explicitly returned.
func (s *Service) CancelDelivery(ctx context.Context, deliveryID id.ID) Result[struct{}] {
	return guard(func() (struct{}, string, error) {
		var cancelled *delivery.Delivery
		err := s.txm.RunSerializable(ctx, func(ctx context.Context) error {
			d, err := s.deliveries.GetByID(ctx, deliveryID)
			if err != nil {
				return err
			}
			if err := d.Cancel(); err != nil {
				return err
			}
			if err := s.deliveries.UpdateStatus(ctx, d); err != nil {
				return err
			}
			cancelled = d
			return nil
		})
		if err != nil {
			return struct{}{}, "", err
		}

		s.afterMutation(ctx, cancelled, "cancelled")
		logger.Info(ctx, "delivery cancelled", "id", cancelled.ID, "number", cancelled.Number)
		return struct{}{}, "delivery cancelled", nil
	})
}

// AdvanceDelivery moves a delivery along the lifecycle (scheduling, dispatch,
// completion, invoicing). Illegal moves fail with INVALID_STATUS_TRANSITION.
func (s *Service) AdvanceDelivery(ctx context.Context, deliveryID id.ID, next delivery.Status) Result[delivery.Delivery] {
	return guard(func() (delivery.Delivery, string, error) {
		var advanced *delivery.Delivery
		err := s.txm.RunSerializable(ctx, func(ctx context.Context) error {
			d, err := s.deliveries.GetByID(ctx, deliveryID)
			if err != nil {
				return err
			}
			if err := d.AdvanceTo(next); err != nil {
				return err
			}
			if next == delivery.StatusDelivered && d.DeliveryDate == nil {
				now := time.Now().UTC()
				d.DeliveryDate = &now
				d.DeliverySlots = d.RequestedSlots
			}
			if err := s.deliveries.UpdateStatus(ctx, d); err != nil {
				return err
			}
			advanced = d
			return nil
		})
		if err != nil {
			return delivery.Delivery{}, "", err
		}

		s.afterMutation(ctx, advanced, "status_changed")
		logger.Info(ctx, "delivery advanced", "id", advanced.ID, "status", advanced.Status)
		return *advanced, "delivery advanced", nil
	})
}

// GetRemaining returns the remaining quantity of an order line expressed in
// unitName (base unit when empty). excludeDeliveryID drops one delivery from
// the computation; pass id.Nil() for none.
func (s *Service) GetRemaining(ctx context.Context, orderID, lineItemID id.ID, unitName string, excludeDeliveryID id.ID) Result[float64] {
	return guard(func() (float64, string, error) {
		ord, err := s.orders.GetByID(ctx, orderID)
		if err != nil {
			return 0, "", err
		}
		line, found := ord.LineItem(lineItemID)
		if !found {
			return 0, "", apperror.NewNotFound("order line item", lineItemID.String())
		}
		all, err := s.deliveries.ListByOrder(ctx, orderID)
		if err != nil {
			return 0, "", err
		}

		remaining, err := delivery.RemainingInUnit(line, all, excludeDeliveryID, unitName)
		if err != nil {
			return 0, "", err
		}
		return remaining.Float64(), "remaining quantity", nil
	})
}

// GetDelivery retrieves one delivery with lines.
func (s *Service) GetDelivery(ctx context.Context, deliveryID id.ID) Result[delivery.Delivery] {
	return guard(func() (delivery.Delivery, string, error) {
		d, err := s.deliveries.GetByID(ctx, deliveryID)
		if err != nil {
			return delivery.Delivery{}, "", err
		}
		return *d, "delivery", nil
	})
}

// GetDeliveryHistory returns the recorded change trail of a delivery,
// newest first. Empty when no auditor is wired.
func (s *Service) GetDeliveryHistory(ctx context.Context, deliveryID id.ID, limit int) Result[[]AuditEntry] {
	return guard(func() ([]AuditEntry, string, error) {
		if _, err := s.deliveries.GetByID(ctx, deliveryID); err != nil {
			return nil, "", err
		}
		if s.auditor == nil {
			return nil, "delivery history", nil
		}
		if limit <= 0 {
			limit = 50
		}
		entries, err := s.auditor.EntityHistory(ctx, "Delivery", deliveryID, limit)
		if err != nil {
			return nil, "", apperror.NewPersistence(err)
		}
		return entries, "delivery history", nil
	})
}

// OrderPlan is the planner view of an order: its deliveries plus the
// remaining base-unit quantity per line.
type OrderPlan struct {
	Order      order.Order         `json:"order"`
	Deliveries []delivery.Delivery `json:"deliveries"`
	Remaining  map[string]float64  `json:"remainingByLineItem"`
}

// GetOrderPlan assembles the planner view for an order.
func (s *Service) GetOrderPlan(ctx context.Context, orderID id.ID) Result[OrderPlan] {
	return guard(func() (OrderPlan, string, error) {
		ord, err := s.orders.GetByID(ctx, orderID)
		if err != nil {
			return OrderPlan{}, "", err
		}
		all, err := s.deliveries.ListByOrder(ctx, orderID)
		if err != nil {
			return OrderPlan{}, "", err
		}

		plan := OrderPlan{
			Order:     *ord,
			Remaining: make(map[string]float64, len(ord.LineItems)),
		}
		for _, d := range all {
			plan.Deliveries = append(plan.Deliveries, *d)
		}
		for i := range ord.LineItems {
			line := &ord.LineItems[i]
			plan.Remaining[line.ID.String()] = delivery.Remaining(line, all, id.Nil()).Round2().Float64()
		}
		return plan, "order plan", nil
	})
}

// --- internals ---

func (s *Service) applyRequestedLines(draft *delivery.Draft, ord *order.Order, lines []RequestedLine) error {
	if len(lines) == 0 {
		return apperror.NewValidation("at least one line is required").
			WithDetail("field", "items")
	}
	for _, rl := range lines {
		if rl.Manual {
			err := draft.AddManualLine(delivery.ManualLine{
				ProductID:       rl.ProductID,
				ServiceID:       rl.ServiceID,
				ProductName:     rl.ProductName,
				UnitOfMeasure:   rl.UnitOfMeasure,
				Quantity:        rl.Quantity,
				PriceAtOrder:    rl.PriceAtOrder,
				PriceInBaseUnit: rl.PriceInBaseUnit,
				VATRate:         rl.VATRate,
			})
			if err != nil {
				return err
			}
			continue
		}

		line, found := ord.LineItem(rl.OrderLineItemID)
		if !found {
			return apperror.NewNotFound("order line item", rl.OrderLineItemID.String())
		}
		if err := draft.AddLine(line, rl.UnitOfMeasure, rl.Quantity); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) nextNumber(ctx context.Context) (string, error) {
	if s.numbers == nil {
		return "", nil
	}
	number, err := s.numbers.GetNextNumber(ctx, numerator.DefaultConfig("DLV"),
		&numerator.Options{Strategy: numerator.StrategyCached}, time.Now())
	if err != nil {
		return "", apperror.NewPersistence(err)
	}
	return number, nil
}

// afterMutation fans out the best-effort collaborators. Neither the change
// notification nor the audit trail may fail the committed operation.
func (s *Service) afterMutation(ctx context.Context, d *delivery.Delivery, change string) {
	if s.notifier != nil {
		event := ChangeEvent{OrderID: d.OrderID, DeliveryID: d.ID, Change: change}
		if err := s.notifier.DeliveriesChanged(ctx, event); err != nil {
			logger.Warn(ctx, "change notification failed", "delivery_id", d.ID, "error", err)
		}
	}
	if s.auditor != nil {
		if err := s.auditor.RecordChange(ctx, "Delivery", d.ID, change, d); err != nil {
			logger.Warn(ctx, "audit record failed", "delivery_id", d.ID, "error", err)
		}
	}
}

// lastChosenUnit returns the unit of the line's most recent non-cancelled
// allocation, falling back to def.
func lastChosenUnit(lineItemID id.ID, deliveries []*delivery.Delivery, def string) string {
	unit := def
	for _, d := range deliveries {
		if d.Status == delivery.StatusCancelled {
			continue
		}
		if item, found := d.LineFor(lineItemID); found {
			unit = item.UnitOfMeasure
		}
	}
	return unit
}
