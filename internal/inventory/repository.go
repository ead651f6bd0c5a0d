package inventory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlas-wms/atlas-wms/internal/platform/db"
)

// Repository persists inventory records in PostgreSQL.
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

// GetForUpdate locks the record row for the rest of the transaction scope.
func (r *Repository) GetForUpdate(ctx context.Context, sku string) (Record, error) {
	if r == nil {
		return Record{}, errors.New("inventory repository not initialised")
	}
	row := r.querier(ctx).QueryRow(ctx, `SELECT id, sku, on_hand_quantity, available_quantity, reserved_quantity, location, unit_cost, updated_at
FROM inventory_records
WHERE sku=$1
FOR UPDATE`, sku)
	return scanRecord(row)
}

// Upsert writes the record with absolute values computed under the row lock.
func (r *Repository) Upsert(ctx context.Context, record Record) error {
	_, err := r.querier(ctx).Exec(ctx, `INSERT INTO inventory_records (sku, on_hand_quantity, available_quantity, reserved_quantity, location, unit_cost, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (sku) DO UPDATE SET
  on_hand_quantity=EXCLUDED.on_hand_quantity,
  available_quantity=EXCLUDED.available_quantity,
  reserved_quantity=EXCLUDED.reserved_quantity,
  location=EXCLUDED.location,
  unit_cost=EXCLUDED.unit_cost,
  updated_at=EXCLUDED.updated_at`,
		record.SKU, record.OnHand, record.Available, record.Reserved,
		record.Location, record.UnitCost, record.UpdatedAt)
	return err
}

// GetBySKU reads one record without locking.
func (r *Repository) GetBySKU(ctx context.Context, sku string) (Record, error) {
	row := r.querier(ctx).QueryRow(ctx, `SELECT id, sku, on_hand_quantity, available_quantity, reserved_quantity, location, unit_cost, updated_at
FROM inventory_records
WHERE sku=$1`, sku)
	return scanRecord(row)
}

// List pages through inventory records.
func (r *Repository) List(ctx context.Context, limit, offset int) ([]Record, error) {
	rows, err := r.querier(ctx).Query(ctx, `SELECT id, sku, on_hand_quantity, available_quantity, reserved_quantity, location, unit_cost, updated_at
FROM inventory_records
ORDER BY sku ASC
LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	records := []Record{}
	for rows.Next() {
		var record Record
		if err := rows.Scan(&record.ID, &record.SKU, &record.OnHand, &record.Available, &record.Reserved, &record.Location, &record.UnitCost, &record.UpdatedAt); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// OnHandBySKU returns on-hand totals keyed by SKU for integrity checks.
func (r *Repository) OnHandBySKU(ctx context.Context) (map[string]int64, error) {
	rows, err := r.querier(ctx).Query(ctx, `SELECT sku, on_hand_quantity FROM inventory_records`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	totals := map[string]int64{}
	for rows.Next() {
		var sku string
		var onHand int64
		if err := rows.Scan(&sku, &onHand); err != nil {
			return nil, err
		}
		totals[sku] = onHand
	}
	return totals, rows.Err()
}

func scanRecord(row pgx.Row) (Record, error) {
	var record Record
	err := row.Scan(&record.ID, &record.SKU, &record.OnHand, &record.Available, &record.Reserved, &record.Location, &record.UnitCost, &record.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrRecordNotFound
		}
		return Record{}, err
	}
	return record, nil
}
