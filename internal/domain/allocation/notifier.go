package allocation

import (
	"context"
	"encoding/json"
	"time"

	"fulfil/internal/core/id"
)

// ChangeEvent describes a committed delivery mutation.
type ChangeEvent struct {
	OrderID    id.ID  `json:"orderId"`
	DeliveryID id.ID  `json:"deliveryId"`
	Change     string `json:"change"` // created, updated, cancelled, status_changed
}

// Notifier broadcasts a best-effort change notification after a successful
// mutation so other connected planner sessions can refresh. Delivery is
// fire-and-forget: a notifier failure is logged and swallowed, it never
// fails the surrounding operation.
type Notifier interface {
	DeliveriesChanged(ctx context.Context, event ChangeEvent) error
}

// AuditEntry is one recorded change of an entity. Payload is the entity
// snapshot taken when the change was committed.
type AuditEntry struct {
	ID        id.ID           `json:"id"`
	Action    string          `json:"action"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Auditor records a change trail entry for a committed mutation and reads
// it back for display. Writes are best-effort in the same sense as
// Notifier; reads return entries newest first.
type Auditor interface {
	RecordChange(ctx context.Context, entityName string, entityID id.ID, action string, payload any) error
	EntityHistory(ctx context.Context, entityName string, entityID id.ID, limit int) ([]AuditEntry, error)
}

// NopNotifier discards all events.
type NopNotifier struct{}

func (NopNotifier) DeliveriesChanged(ctx context.Context, event ChangeEvent) error { return nil }
