package inventory

import (
	"errors"
	"time"
)

// Condition is the quality state assigned to received stock. It controls
// whether the quantity counts as available.
type Condition string

const (
	ConditionGood       Condition = "good"
	ConditionDamaged    Condition = "damaged"
	ConditionExpired    Condition = "expired"
	ConditionQuarantine Condition = "quarantine"
)

// Valid reports whether the condition is one of the allowed states.
func (c Condition) Valid() bool {
	switch c {
	case ConditionGood, ConditionDamaged, ConditionExpired, ConditionQuarantine:
		return true
	}
	return false
}

// CountsAsAvailable reports whether stock in this condition is sellable.
// Damaged, expired and quarantined stock is on hand but not available.
func (c Condition) CountsAsAvailable() bool {
	return c == ConditionGood
}

// Record summarises stock per SKU. One row per SKU, created lazily on the
// first receipt and mutated only by receipt posting.
type Record struct {
	ID        int64
	SKU       string
	OnHand    int64
	Available int64
	Reserved  int64
	Location  string
	UnitCost  float64
	UpdatedAt time.Time
}

// ReceiptInput describes one processed quantity entering inventory.
type ReceiptInput struct {
	SKU        string
	Quantity   int64
	Condition  Condition
	Location   string
	LotNumber  string
	ExpiryDate time.Time
	UnitCost   float64
	ASNID      int64
	LineID     int64
	ActorID    int64
}

var (
	// ErrRecordNotFound indicates a missing inventory row.
	ErrRecordNotFound = errors.New("inventory: record not found")
	// ErrInvalidQuantity indicates a non-positive receipt quantity.
	ErrInvalidQuantity = errors.New("inventory: quantity must be positive")
	// ErrLocationRequired indicates a receipt without a putaway location.
	ErrLocationRequired = errors.New("inventory: location required")
	// ErrInvalidCondition indicates an unknown condition state.
	ErrInvalidCondition = errors.New("inventory: invalid condition")
	// ErrAvailabilityInvariant triggers when available would exceed on hand.
	ErrAvailabilityInvariant = errors.New("inventory: available exceeds on-hand quantity")
)
