package asn

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ASN is an advanced shipping notice header. It exclusively owns its lines;
// lines never outlive the header. Headers are soft-deleted, never removed.
type ASN struct {
	ID           int64
	Number       string
	SupplierID   int64
	Status       Status
	Priority     Priority
	ExpectedDate time.Time
	CompletedAt  *time.Time
	Notes        string
	CreatedBy    int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time
}

// Priority orders inbound work on the dock.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Valid reports whether the priority is a known level.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh:
		return true
	}
	return false
}

// Line is one SKU entry of an ASN. Quantity is the supplier-declared
// expectation, ReceivedQuantity the dock count and ProcessedQuantity the
// portion already converted into inventory.
type Line struct {
	ID                 int64
	ASNID              int64
	LineNumber         int
	SKU                string
	Description        string
	Quantity           int64
	ReceivedQuantity   int64
	ProcessedQuantity  int64
	UnitCost           float64
	UOM                string
	LotNumber          string
	ExpiryDate         time.Time
	Notes              string
	ProcessedLocation  string
	ProcessedCondition string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	DeletedAt          *time.Time
}

// ReceiveStatus derives the dock-count progress of a line.
type ReceiveStatus string

const (
	ReceivePending  ReceiveStatus = "pending"
	ReceivePartial  ReceiveStatus = "partial"
	ReceiveComplete ReceiveStatus = "complete"
)

// ProcessStatus derives the putaway progress of a line.
type ProcessStatus string

const (
	ProcessNone    ProcessStatus = "not_processed"
	ProcessPartial ProcessStatus = "partial_processed"
	ProcessFull    ProcessStatus = "fully_processed"
)

// ReceiveStatus reports pending/partial/complete based on the dock count.
func (l Line) ReceiveStatus() ReceiveStatus {
	switch {
	case l.ReceivedQuantity == 0:
		return ReceivePending
	case l.ReceivedQuantity < l.Quantity:
		return ReceivePartial
	default:
		return ReceiveComplete
	}
}

// ProcessStatus reports how much of the received quantity has been put away.
func (l Line) ProcessStatus() ProcessStatus {
	switch {
	case l.ProcessedQuantity == 0:
		return ProcessNone
	case l.ProcessedQuantity < l.ReceivedQuantity:
		return ProcessPartial
	default:
		return ProcessFull
	}
}

// UnprocessedRemainder is the received quantity not yet put away.
func (l Line) UnprocessedRemainder() int64 {
	return l.ReceivedQuantity - l.ProcessedQuantity
}

// CheckQuantities enforces 0 <= processed <= received <= quantity.
func (l Line) CheckQuantities() error {
	if l.ProcessedQuantity < 0 || l.ProcessedQuantity > l.ReceivedQuantity || l.ReceivedQuantity > l.Quantity {
		return &StateError{Reason: fmt.Sprintf("line %d quantities out of order: processed=%d received=%d expected=%d",
			l.LineNumber, l.ProcessedQuantity, l.ReceivedQuantity, l.Quantity)}
	}
	return nil
}

// LineView pairs a line with its derived statuses for listings.
type LineView struct {
	Line
	Receive ReceiveStatus
	Process ProcessStatus
}

// DeletionAudit captures a deleted ASN for compliance and restoration. The
// snapshot holds the full JSON of every line at deletion time.
type DeletionAudit struct {
	ID             uuid.UUID
	ASNID          int64
	Number         string
	SupplierID     int64
	Status         Status
	Reason         string
	TotalLines     int
	TotalExpected  int64
	TotalReceived  int64
	TotalProcessed int64
	LinesSnapshot  []byte
	DeletedBy      int64
	DeletedAt      time.Time
}

// ListFilters narrows ASN listings.
type ListFilters struct {
	Status     string
	SupplierID int64
	Search     string
}

var (
	// ErrNotFound indicates a missing or soft-deleted ASN.
	ErrNotFound = errors.New("asn: not found")
	// ErrLineNotFound indicates a missing or soft-deleted line.
	ErrLineNotFound = errors.New("asn: line not found")
	// ErrNoLinesAvailable indicates a bulk processing run with nothing
	// eligible; the batch still reports zero processed lines.
	ErrNoLinesAvailable = errors.New("asn: no lines available for processing")
)

// ValidationError reports malformed input per field. The operation aborts
// before any mutation.
type ValidationError struct {
	Fields map[string]string
}

func newValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

func (e *ValidationError) add(field, message string) {
	if e.Fields == nil {
		e.Fields = map[string]string{}
	}
	e.Fields[field] = message
}

func (e *ValidationError) hasErrors() bool { return len(e.Fields) > 0 }

func (e *ValidationError) Error() string {
	return "asn: validation failed: " + e.UserMessage()
}

// UserMessage joins per-field messages in a stable order.
func (e *ValidationError) UserMessage() string {
	fields := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, field+": "+e.Fields[field])
	}
	return strings.Join(parts, "; ")
}

// StateError reports a status or invariant conflict. The operation aborts
// with no partial writes.
type StateError struct {
	Reason string
}

func (e *StateError) Error() string { return "asn: " + e.Reason }

// UserMessage returns the conflict reason.
func (e *StateError) UserMessage() string { return e.Reason }

// DeletionBlockedError lists every reason an ASN cannot be deleted.
type DeletionBlockedError struct {
	Reasons []string
}

func (e *DeletionBlockedError) Error() string {
	return "asn: deletion blocked: " + strings.Join(e.Reasons, "; ")
}

// UserMessage returns the blocking reasons.
func (e *DeletionBlockedError) UserMessage() string {
	return strings.Join(e.Reasons, "; ")
}
