package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlas-wms/atlas-wms/internal/platform/db"
)

// Repository persists ledger entries in PostgreSQL. The table is append
// only: no update or delete statements exist on purpose.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) querier(ctx context.Context) db.Querier {
	return db.QuerierFromContext(ctx, r.pool)
}

// Append inserts one entry and returns its id.
func (r *Repository) Append(ctx context.Context, entry Entry) (int64, error) {
	if r == nil {
		return 0, errors.New("ledger repository not initialised")
	}
	if err := entry.Validate(); err != nil {
		return 0, err
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	var id int64
	err := r.querier(ctx).QueryRow(ctx, `INSERT INTO ledger_entries
(sku, entry_type, quantity, reference_type, reference_id, reference_line_id, location, lot_number, expiry_date, condition_status, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING id`,
		entry.SKU, string(entry.Type), entry.Quantity,
		string(entry.Reference.Kind), entry.Reference.ASNID, entry.Reference.LineID,
		entry.Location, entry.LotNumber, nullTime(entry.ExpiryDate),
		entry.ConditionStatus, entry.CreatedBy, createdAt).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// CountByASN counts entries referencing an ASN, used by deletion safety
// checks.
func (r *Repository) CountByASN(ctx context.Context, asnID int64) (int64, error) {
	var count int64
	err := r.querier(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM ledger_entries
WHERE reference_type=$1 AND reference_id=$2`, string(ReferenceASNLine), asnID).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// ListByASN returns entries referencing an ASN in append order.
func (r *Repository) ListByASN(ctx context.Context, asnID int64) ([]Entry, error) {
	rows, err := r.querier(ctx).Query(ctx, `SELECT id, sku, entry_type, quantity, reference_type, reference_id, reference_line_id, location, lot_number, expiry_date, condition_status, created_by, created_at
FROM ledger_entries
WHERE reference_type=$1 AND reference_id=$2
ORDER BY id ASC`, string(ReferenceASNLine), asnID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := []Entry{}
	for rows.Next() {
		var entry Entry
		var expiry *time.Time
		if err := rows.Scan(&entry.ID, &entry.SKU, &entry.Type, &entry.Quantity,
			&entry.Reference.Kind, &entry.Reference.ASNID, &entry.Reference.LineID,
			&entry.Location, &entry.LotNumber, &expiry, &entry.ConditionStatus,
			&entry.CreatedBy, &entry.CreatedAt); err != nil {
			return nil, err
		}
		if expiry != nil {
			entry.ExpiryDate = *expiry
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// SumBySKU aggregates receipt quantity per SKU, used by the ledger
// integrity job to cross-check inventory on-hand totals.
func (r *Repository) SumBySKU(ctx context.Context) (map[string]int64, error) {
	rows, err := r.querier(ctx).Query(ctx, `SELECT sku, COALESCE(SUM(quantity), 0)
FROM ledger_entries
WHERE entry_type=$1
GROUP BY sku`, string(EntryTypeReceipt))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	sums := map[string]int64{}
	for rows.Next() {
		var sku string
		var total int64
		if err := rows.Scan(&sku, &total); err != nil {
			return nil, err
		}
		sums[sku] = total
	}
	return sums, rows.Err()
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
