package delivery

import (
	"fulfil/internal/core/apperror"
)

// Status represents the delivery lifecycle state.
type Status string

const (
	StatusCreated   Status = "CREATED"
	StatusScheduled Status = "SCHEDULED"
	StatusInTransit Status = "IN_TRANSIT"
	StatusDelivered Status = "DELIVERED"
	StatusInvoiced  Status = "INVOICED"
	StatusCancelled Status = "CANCELLED"
)

// IsValid checks if the status is a known lifecycle state.
func (s Status) IsValid() bool {
	switch s {
	case StatusCreated, StatusScheduled, StatusInTransit, StatusDelivered, StatusInvoiced, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the delivery can never change again.
func (s Status) IsTerminal() bool {
	return s == StatusInvoiced || s == StatusCancelled
}

// CanEdit checks if the delivery's header and lines may still be changed.
func (s Status) CanEdit() bool {
	return !s.IsTerminal()
}

// CanCancel checks if the delivery may be cancelled.
func (s Status) CanCancel() bool {
	return s == StatusCreated || s == StatusScheduled
}

// transitions is the lifecycle table. Happy path is advanced by external
// collaborators (scheduling, dispatch confirmation, invoicing); this engine
// only guards legality.
var transitions = map[Status][]Status{
	StatusCreated:   {StatusScheduled, StatusCancelled},
	StatusScheduled: {StatusInTransit, StatusCancelled},
	StatusInTransit: {StatusDelivered},
	StatusDelivered: {StatusInvoiced},
}

// CanTransitionTo checks if next is a legal successor of s.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// CheckTransition returns an error if moving from s to next is illegal.
func (s Status) CheckTransition(next Status) error {
	if !next.IsValid() {
		return apperror.NewValidation("unknown delivery status").
			WithDetail("status", string(next))
	}
	if !s.CanTransitionTo(next) {
		return apperror.NewInvalidStatusTransition(string(s), string(next))
	}
	return nil
}
