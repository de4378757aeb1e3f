package delivery

import (
	"context"

	"fulfil/internal/core/id"
)

// Repository defines persistence operations for deliveries.
//
// ListByOrder returns every delivery of the order regardless of status,
// cancelled ones included; remaining-quantity filtering is the engine's job.
// Mutations are expected to run inside the caller's transaction so the
// read-validate-write sequence stays indivisible.
type Repository interface {
	// GetByID retrieves a delivery with lines.
	GetByID(ctx context.Context, deliveryID id.ID) (*Delivery, error)

	// ListByOrder retrieves all deliveries of an order, with lines.
	ListByOrder(ctx context.Context, orderID id.ID) ([]*Delivery, error)

	// Create inserts a new delivery and its lines.
	Create(ctx context.Context, d *Delivery) error

	// Update rewrites the delivery header and lines.
	// Fails with CONCURRENT_MODIFICATION on a stale version.
	Update(ctx context.Context, d *Delivery) error

	// UpdateStatus persists a status change without touching lines.
	UpdateStatus(ctx context.Context, d *Delivery) error
}
