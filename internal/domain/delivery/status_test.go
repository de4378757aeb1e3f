package delivery

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from    Status
		to      Status
		allowed bool
	}{
		{StatusCreated, StatusScheduled, true},
		{StatusCreated, StatusCancelled, true},
		{StatusCreated, StatusInTransit, false},
		{StatusCreated, StatusDelivered, false},
		{StatusScheduled, StatusInTransit, true},
		{StatusScheduled, StatusCancelled, true},
		{StatusScheduled, StatusDelivered, false},
		{StatusInTransit, StatusDelivered, true},
		{StatusInTransit, StatusCancelled, false},
		{StatusDelivered, StatusInvoiced, true},
		{StatusDelivered, StatusCancelled, false},
		{StatusInvoiced, StatusCancelled, false},
		{StatusCancelled, StatusCreated, false},
	}

	for _, tt := range tests {
		got := tt.from.CanTransitionTo(tt.to)
		assert.Equal(t, tt.allowed, got, "%s -> %s", tt.from, tt.to)
	}
}

func TestStatusTerminal(t *testing.T) {
	assert.True(t, StatusInvoiced.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.False(t, StatusDelivered.IsTerminal())

	assert.False(t, StatusInvoiced.CanEdit())
	assert.False(t, StatusCancelled.CanEdit())
	assert.True(t, StatusInTransit.CanEdit())
}

func TestStatusCanCancel(t *testing.T) {
	assert.True(t, StatusCreated.CanCancel())
	assert.True(t, StatusScheduled.CanCancel())
	assert.False(t, StatusInTransit.CanCancel())
	assert.False(t, StatusDelivered.CanCancel())
	assert.False(t, StatusInvoiced.CanCancel())
	assert.False(t, StatusCancelled.CanCancel())
}

func TestDeliveryCancelGuard(t *testing.T) {
	d := &Delivery{Status: StatusDelivered}
	err := d.Cancel()
	assert.Error(t, err)
	assert.Equal(t, StatusDelivered, d.Status)

	d.Status = StatusScheduled
	assert.NoError(t, d.Cancel())
	assert.Equal(t, StatusCancelled, d.Status)
}
