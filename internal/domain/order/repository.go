package order

import (
	"context"

	"fulfil/internal/core/id"
)

// Repository defines read access to orders.
// The engine never mutates orders; counters advance elsewhere.
type Repository interface {
	// GetByID retrieves an order with all line items and packaging options.
	GetByID(ctx context.Context, orderID id.ID) (*Order, error)
}
