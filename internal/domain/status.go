package domain

import "fmt"

// Status is shared by the order header and by individual items. The header
// carries the buyer-visible state; each item additionally carries a
// seller-controlled state that advances independently of the header.
type Status string

const (
	StatusConfirmed Status = "CONFIRMED"
	StatusShipped   Status = "SHIPPED"
	StatusDelivered Status = "DELIVERED"
	StatusCancelled Status = "CANCELLED"
	StatusReturned  Status = "RETURNED"
)

// ParseStatus validates an externally-supplied status value.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusConfirmed, StatusShipped, StatusDelivered, StatusCancelled, StatusReturned:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// Terminal reports whether no further transitions are allowed out of s.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusReturned
}

// CanTransition reports whether moving from s to next is a legal step:
// CONFIRMED -> SHIPPED -> DELIVERED moves forward only, and CANCELLED or
// RETURNED is reachable from any non-terminal state. Setting the same value
// again is allowed so that retried updates stay safe.
func (s Status) CanTransition(next Status) bool {
	if s == next {
		return true
	}
	if s.Terminal() {
		return false
	}
	if next.Terminal() {
		return true
	}
	switch s {
	case StatusConfirmed:
		return next == StatusShipped || next == StatusDelivered
	case StatusShipped:
		return next == StatusDelivered
	}
	return false
}
