package asn

// Status is the lifecycle state of an ASN.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusConfirmed Status = "confirmed"
	StatusInTransit Status = "in_transit"
	StatusArrived   Status = "arrived"
	StatusReceiving Status = "receiving"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// statusTransitions is the explicit transition table. Cancellation is
// reachable from every non-terminal state; completed and cancelled are
// terminal.
var statusTransitions = map[Status][]Status{
	StatusDraft:     {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusInTransit, StatusCancelled},
	StatusInTransit: {StatusArrived, StatusCancelled},
	StatusArrived:   {StatusReceiving, StatusCancelled},
	StatusReceiving: {StatusCompleted, StatusCancelled},
	StatusCompleted: {},
	StatusCancelled: {},
}

// Valid reports whether the status is a known lifecycle state.
func (s Status) Valid() bool {
	_, ok := statusTransitions[s]
	return ok
}

// Terminal reports whether no further transitions exist.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransition reports whether the transition table allows moving to the
// target state. Manual supervisor overrides bypass this check.
func (s Status) CanTransition(to Status) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Editable reports whether header fields and lines may be freely edited.
func (s Status) Editable() bool {
	return s == StatusDraft || s == StatusConfirmed
}

// Receivable reports whether receiving and processing operations are
// permitted.
func (s Status) Receivable() bool {
	return s == StatusArrived || s == StatusReceiving
}
