package asn

import (
	"context"
	"time"
)

// LineProcessedEvent describes one processed quantity for downstream
// consumers (billing, replenishment).
type LineProcessedEvent struct {
	ASNID     int64
	LineID    int64
	SKU       string
	Quantity  int64
	Condition string
	Location  string
	ActorID   int64
}

// CompletedEvent fires when an ASN reaches the completed status.
type CompletedEvent struct {
	ASNID       int64
	Number      string
	SupplierID  int64
	CompletedAt time.Time
}

// IntegrationHandler receives ASN domain events.
type IntegrationHandler interface {
	HandleLineProcessed(ctx context.Context, evt LineProcessedEvent) error
	HandleASNCompleted(ctx context.Context, evt CompletedEvent) error
}
