package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/atlas-wms/atlas-wms/internal/ledger"
	"github.com/atlas-wms/atlas-wms/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	GetForUpdate(ctx context.Context, sku string) (Record, error)
	Upsert(ctx context.Context, record Record) error
	GetBySKU(ctx context.Context, sku string) (Record, error)
	List(ctx context.Context, limit, offset int) ([]Record, error)
}

// LedgerPort appends entries to the inventory transaction ledger.
type LedgerPort interface {
	Append(ctx context.Context, entry ledger.Entry) (int64, error)
}

// TxRunner provides a transaction scope for receipt posting. When the
// caller already holds a scope the posting joins it instead of opening a
// second transaction.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(context.Context) error) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates inventory mutations.
type Service struct {
	repo   RepositoryPort
	ledger LedgerPort
	tx     TxRunner
	audit  AuditPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, ledgerRepo LedgerPort, tx TxRunner, audit AuditPort) *Service {
	return &Service{repo: repo, ledger: ledgerRepo, tx: tx, audit: audit}
}

// PostReceipt converts a processed quantity into on-hand stock and appends
// the matching ledger entry. The record row is locked for the duration of
// the scope so concurrent receipts against one SKU serialise instead of
// losing updates.
func (s *Service) PostReceipt(ctx context.Context, input ReceiptInput) (Record, error) {
	if input.SKU == "" {
		return Record{}, ErrRecordNotFound
	}
	if input.Quantity <= 0 {
		return Record{}, ErrInvalidQuantity
	}
	if input.Location == "" {
		return Record{}, ErrLocationRequired
	}
	if !input.Condition.Valid() {
		return Record{}, ErrInvalidCondition
	}

	var updated Record
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		record, err := s.repo.GetForUpdate(ctx, input.SKU)
		if err != nil && !errors.Is(err, ErrRecordNotFound) {
			return err
		}
		if errors.Is(err, ErrRecordNotFound) {
			record = Record{SKU: input.SKU}
		}
		record.OnHand += input.Quantity
		if input.Condition.CountsAsAvailable() {
			record.Available += input.Quantity
		}
		// Single physical location per SKU: the latest putaway wins.
		record.Location = input.Location
		record.UnitCost = input.UnitCost
		record.UpdatedAt = time.Now().UTC()
		if record.Available > record.OnHand {
			return ErrAvailabilityInvariant
		}
		if err := s.repo.Upsert(ctx, record); err != nil {
			return err
		}
		entry := ledger.Entry{
			SKU:      input.SKU,
			Type:     ledger.EntryTypeReceipt,
			Quantity: input.Quantity,
			Reference: ledger.Reference{
				Kind:   ledger.ReferenceASNLine,
				ASNID:  input.ASNID,
				LineID: input.LineID,
			},
			Location:        input.Location,
			LotNumber:       input.LotNumber,
			ExpiryDate:      input.ExpiryDate,
			ConditionStatus: string(input.Condition),
			CreatedBy:       input.ActorID,
		}
		if _, err := s.ledger.Append(ctx, entry); err != nil {
			return err
		}
		updated = record
		return nil
	})
	if err != nil {
		return Record{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   "inventory:RECEIPT",
			Entity:   "inventory_record",
			EntityID: input.SKU,
			Meta: map[string]any{
				"quantity":  input.Quantity,
				"condition": string(input.Condition),
				"location":  input.Location,
				"asn_id":    input.ASNID,
				"line_id":   input.LineID,
			},
		})
	}
	return updated, nil
}

// GetBySKU returns a single inventory record.
func (s *Service) GetBySKU(ctx context.Context, sku string) (Record, error) {
	if sku == "" {
		return Record{}, fmt.Errorf("inventory: sku required")
	}
	return s.repo.GetBySKU(ctx, sku)
}

// List returns inventory records ordered by SKU, case-insensitively so the
// listing is stable regardless of database collation.
func (s *Service) List(ctx context.Context, limit, offset int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	records, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	collator := collate.New(language.English, collate.IgnoreCase)
	sort.SliceStable(records, func(i, j int) bool {
		return collator.CompareString(records[i].SKU, records[j].SKU) < 0
	})
	return records, nil
}
