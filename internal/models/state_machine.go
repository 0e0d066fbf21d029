package models

import "fmt"

// ValidReturnTransitions defines valid state transitions for ReturnStatus
// Flow: PENDING → APPROVED → SHIPPED → RECEIVED → INSPECTED → COMPLETED
// REJECTED is reachable from PENDING and, for failed inspections, from INSPECTED.
// CANCELLED can be reached from any non-terminal state.
var ValidReturnTransitions = map[ReturnStatus][]ReturnStatus{
	ReturnStatusPending:   {ReturnStatusApproved, ReturnStatusRejected, ReturnStatusCancelled},
	ReturnStatusApproved:  {ReturnStatusShipped, ReturnStatusCancelled},
	ReturnStatusShipped:   {ReturnStatusReceived, ReturnStatusCancelled},
	ReturnStatusReceived:  {ReturnStatusInspected, ReturnStatusCancelled},
	ReturnStatusInspected: {ReturnStatusCompleted, ReturnStatusRejected, ReturnStatusCancelled},
	ReturnStatusCompleted: {}, // Terminal state
	ReturnStatusRejected:  {}, // Terminal state
	ReturnStatusCancelled: {}, // Terminal state
}

// CanTransitionReturnStatus checks if a transition from one return status to another is valid
func CanTransitionReturnStatus(from, to ReturnStatus) bool {
	validTransitions, exists := ValidReturnTransitions[from]
	if !exists {
		return false
	}
	for _, validTo := range validTransitions {
		if validTo == to {
			return true
		}
	}
	return false
}

// ValidateReturnStatusTransition returns an error if the transition is invalid
func ValidateReturnStatusTransition(from, to ReturnStatus) error {
	if !CanTransitionReturnStatus(from, to) {
		return fmt.Errorf("invalid return status transition from %s to %s", from, to)
	}
	return nil
}

// GetNextValidReturnStatuses returns the list of valid next statuses for a request
func GetNextValidReturnStatuses(current ReturnStatus) []ReturnStatus {
	return ValidReturnTransitions[current]
}

// IsTerminalReturnStatus checks if the return status is a terminal state
func IsTerminalReturnStatus(status ReturnStatus) bool {
	return len(ValidReturnTransitions[status]) == 0
}

// DisplayName returns a human-readable name for the return status
func (s ReturnStatus) DisplayName() string {
	switch s {
	case ReturnStatusPending:
		return "Pending Review"
	case ReturnStatusApproved:
		return "Approved"
	case ReturnStatusRejected:
		return "Rejected"
	case ReturnStatusShipped:
		return "Shipped"
	case ReturnStatusReceived:
		return "Received"
	case ReturnStatusInspected:
		return "Inspected"
	case ReturnStatusCompleted:
		return "Completed"
	case ReturnStatusCancelled:
		return "Cancelled"
	default:
		return string(s)
	}
}
