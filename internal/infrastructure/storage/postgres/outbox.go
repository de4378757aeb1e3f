package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"fulfil/internal/core/id"
	"fulfil/internal/domain/allocation"
)

// OutboxStatus represents the state of an outbox message.
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusPublished OutboxStatus = "published"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// OutboxMessage represents a message in the outbox table. A downstream relay
// drains it to whatever transport fans notifications out to planner sessions.
type OutboxMessage struct {
	ID            id.ID        `db:"id"`
	AggregateType string       `db:"aggregate_type"`
	AggregateID   id.ID        `db:"aggregate_id"`
	EventType     string       `db:"event_type"`
	Payload       []byte       `db:"payload"`
	Status        OutboxStatus `db:"status"`
	RetryCount    int          `db:"retry_count"`
	LastError     *string      `db:"last_error"`
	CreatedAt     time.Time    `db:"created_at"`
	PublishedAt   *time.Time   `db:"published_at"`
}

// Compile-time check that OutboxNotifier implements allocation.Notifier.
var _ allocation.Notifier = (*OutboxNotifier)(nil)

// OutboxNotifier implements allocation.Notifier by writing change events to
// the outbox table. Events are written after the mutation commits, on the
// pool; losing one is acceptable, failing the mutation over one is not.
type OutboxNotifier struct {
	txm *TxManager
}

// NewOutboxNotifier creates a new outbox-backed notifier.
func NewOutboxNotifier(txm *TxManager) *OutboxNotifier {
	return &OutboxNotifier{txm: txm}
}

// DeliveriesChanged writes one pending outbox row for the event.
func (n *OutboxNotifier) DeliveriesChanged(ctx context.Context, event allocation.ChangeEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal change event: %w", err)
	}

	querier := n.txm.GetQuerier(ctx)
	_, err = querier.Exec(ctx, `
		INSERT INTO sys_outbox (id, aggregate_type, aggregate_id, event_type, payload, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, id.New(), "Delivery", event.DeliveryID, "DeliveriesChanged", payload, OutboxStatusPending, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert outbox message: %w", err)
	}

	return nil
}
