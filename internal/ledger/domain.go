package ledger

import (
	"errors"
	"time"
)

// EntryType enumerates supported ledger movements.
type EntryType string

const (
	// EntryTypeReceipt records goods converted into on-hand inventory.
	EntryTypeReceipt EntryType = "RECEIPT"
)

// ReferenceKind tags the source document of an entry.
type ReferenceKind string

const (
	// ReferenceASNLine points at an ASN line. Other source kinds can be
	// added without a real foreign key.
	ReferenceASNLine ReferenceKind = "ASN_LINE"
)

// Reference is a weak, lookup-only pointer to the document that caused an
// entry.
type Reference struct {
	Kind   ReferenceKind
	ASNID  int64
	LineID int64
}

// Entry is one immutable row of the inventory transaction ledger. Entries
// are appended by the reconciliation engine and never mutated or deleted.
type Entry struct {
	ID              int64
	SKU             string
	Type            EntryType
	Quantity        int64
	Reference       Reference
	Location        string
	LotNumber       string
	ExpiryDate      time.Time
	ConditionStatus string
	CreatedBy       int64
	CreatedAt       time.Time
}

var (
	// ErrInvalidEntry indicates the entry fails append validation.
	ErrInvalidEntry = errors.New("ledger: invalid entry")
	// ErrUnknownReference indicates an unsupported reference kind.
	ErrUnknownReference = errors.New("ledger: unknown reference kind")
)

// Validate checks the entry before it is appended.
func (e Entry) Validate() error {
	if e.SKU == "" || e.Quantity <= 0 || e.Type == "" {
		return ErrInvalidEntry
	}
	if e.Reference.Kind != ReferenceASNLine {
		return ErrUnknownReference
	}
	if e.Reference.ASNID == 0 || e.Reference.LineID == 0 {
		return ErrInvalidEntry
	}
	return nil
}
