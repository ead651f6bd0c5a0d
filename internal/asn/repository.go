package asn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atlas-wms/atlas-wms/internal/platform/db"
)

// Repository persists ASN headers, lines and deletion audits in PostgreSQL.
// Every read filters out soft-deleted rows.
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

const asnColumns = `id, number, supplier_id, status, priority, expected_date, completed_at, notes, created_by, created_at, updated_at`

// InsertASN writes a new header and returns its id.
func (r *Repository) InsertASN(ctx context.Context, header ASN) (int64, error) {
	var id int64
	err := r.querier(ctx).QueryRow(ctx, `INSERT INTO asns (number, supplier_id, status, priority, expected_date, notes, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
RETURNING id`,
		header.Number, header.SupplierID, header.Status, header.Priority,
		nullTime(header.ExpectedDate), header.Notes, header.CreatedBy).Scan(&id)
	return id, err
}

// GetASN reads one header; soft-deleted headers read as not found.
func (r *Repository) GetASN(ctx context.Context, id int64) (ASN, error) {
	row := r.querier(ctx).QueryRow(ctx, `SELECT `+asnColumns+`
FROM asns
WHERE id=$1 AND deleted_at IS NULL`, id)
	return scanASN(row)
}

// UpdateHeader writes editable header fields.
func (r *Repository) UpdateHeader(ctx context.Context, header ASN) error {
	tag, err := r.querier(ctx).Exec(ctx, `UPDATE asns
SET supplier_id=$2, priority=$3, expected_date=$4, notes=$5, updated_at=NOW()
WHERE id=$1 AND deleted_at IS NULL`,
		header.ID, header.SupplierID, header.Priority, nullTime(header.ExpectedDate), header.Notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStatus sets the lifecycle status and, for completion, the timestamp.
func (r *Repository) UpdateStatus(ctx context.Context, id int64, status Status, completedAt *time.Time) error {
	tag, err := r.querier(ctx).Exec(ctx, `UPDATE asns
SET status=$2, completed_at=COALESCE($3, completed_at), updated_at=NOW()
WHERE id=$1 AND deleted_at IS NULL`, id, status, completedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SoftDeleteASN marks the header deleted without removing the row.
func (r *Repository) SoftDeleteASN(ctx context.Context, id int64) error {
	tag, err := r.querier(ctx).Exec(ctx, `UPDATE asns
SET deleted_at=NOW(), updated_at=NOW()
WHERE id=$1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// List pages through headers newest first, with optional filters.
func (r *Repository) List(ctx context.Context, filters ListFilters, limit, offset int) ([]ASN, int, error) {
	where := "deleted_at IS NULL"
	args := []any{}
	idx := 1
	if filters.Status != "" {
		where += fmt.Sprintf(" AND status=$%d", idx)
		args = append(args, filters.Status)
		idx++
	}
	if filters.SupplierID != 0 {
		where += fmt.Sprintf(" AND supplier_id=$%d", idx)
		args = append(args, filters.SupplierID)
		idx++
	}
	if filters.Search != "" {
		where += fmt.Sprintf(" AND number ILIKE $%d", idx)
		args = append(args, "%"+filters.Search+"%")
		idx++
	}

	var total int
	if err := r.querier(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM asns WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM asns WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, asnColumns, where, idx, idx+1)
	args = append(args, limit, offset)
	rows, err := r.querier(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	headers := []ASN{}
	for rows.Next() {
		header, err := scanASN(rows)
		if err != nil {
			return nil, 0, err
		}
		headers = append(headers, header)
	}
	return headers, total, rows.Err()
}

const lineColumns = `id, asn_id, line_number, sku, description, quantity, received_quantity, processed_quantity, unit_cost, uom, lot_number, expiry_date, notes, processed_location, processed_condition, created_at, updated_at`

// InsertLine writes a new line and returns its id.
func (r *Repository) InsertLine(ctx context.Context, line Line) (int64, error) {
	var id int64
	err := r.querier(ctx).QueryRow(ctx, `INSERT INTO asn_lines (asn_id, line_number, sku, description, quantity, received_quantity, processed_quantity, unit_cost, uom, lot_number, expiry_date, notes, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, 0, 0, $6, $7, $8, $9, $10, NOW(), NOW())
RETURNING id`,
		line.ASNID, line.LineNumber, line.SKU, line.Description, line.Quantity,
		line.UnitCost, line.UOM, line.LotNumber, nullTime(line.ExpiryDate), line.Notes).Scan(&id)
	return id, err
}

// GetLine reads one line; soft-deleted lines read as not found.
func (r *Repository) GetLine(ctx context.Context, lineID int64) (Line, error) {
	row := r.querier(ctx).QueryRow(ctx, `SELECT `+lineColumns+`
FROM asn_lines
WHERE id=$1 AND deleted_at IS NULL`, lineID)
	return scanLine(row)
}

// GetLineForUpdate locks the line row for the rest of the transaction scope.
func (r *Repository) GetLineForUpdate(ctx context.Context, lineID int64) (Line, error) {
	row := r.querier(ctx).QueryRow(ctx, `SELECT `+lineColumns+`
FROM asn_lines
WHERE id=$1 AND deleted_at IS NULL
FOR UPDATE`, lineID)
	return scanLine(row)
}

// ListLines returns the ASN's lines in line-number order.
func (r *Repository) ListLines(ctx context.Context, asnID int64) ([]Line, error) {
	rows, err := r.querier(ctx).Query(ctx, `SELECT `+lineColumns+`
FROM asn_lines
WHERE asn_id=$1 AND deleted_at IS NULL
ORDER BY line_number ASC`, asnID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lines := []Line{}
	for rows.Next() {
		line, err := scanLine(rows)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// NextLineNumber returns max(line_number)+1 across all lines of the ASN,
// including soft-deleted ones so numbers are never reused.
func (r *Repository) NextLineNumber(ctx context.Context, asnID int64) (int, error) {
	var next int
	err := r.querier(ctx).QueryRow(ctx, `SELECT COALESCE(MAX(line_number), 0) + 1
FROM asn_lines
WHERE asn_id=$1`, asnID).Scan(&next)
	return next, err
}

// UpdateLine writes all mutable line fields.
func (r *Repository) UpdateLine(ctx context.Context, line Line) error {
	tag, err := r.querier(ctx).Exec(ctx, `UPDATE asn_lines
SET sku=$2, description=$3, quantity=$4, received_quantity=$5, processed_quantity=$6, unit_cost=$7, uom=$8, lot_number=$9, expiry_date=$10, notes=$11, processed_location=$12, processed_condition=$13, updated_at=NOW()
WHERE id=$1 AND deleted_at IS NULL`,
		line.ID, line.SKU, line.Description, line.Quantity, line.ReceivedQuantity,
		line.ProcessedQuantity, line.UnitCost, line.UOM, line.LotNumber,
		nullTime(line.ExpiryDate), line.Notes, line.ProcessedLocation, line.ProcessedCondition)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrLineNotFound
	}
	return nil
}

// SoftDeleteLine marks one line deleted.
func (r *Repository) SoftDeleteLine(ctx context.Context, lineID int64) error {
	tag, err := r.querier(ctx).Exec(ctx, `UPDATE asn_lines
SET deleted_at=NOW(), updated_at=NOW()
WHERE id=$1 AND deleted_at IS NULL`, lineID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrLineNotFound
	}
	return nil
}

// SoftDeleteLinesByASN marks every remaining line of the ASN deleted.
func (r *Repository) SoftDeleteLinesByASN(ctx context.Context, asnID int64) error {
	_, err := r.querier(ctx).Exec(ctx, `UPDATE asn_lines
SET deleted_at=NOW(), updated_at=NOW()
WHERE asn_id=$1 AND deleted_at IS NULL`, asnID)
	return err
}

// InsertDeletionAudit writes the compliance record for a deleted ASN.
func (r *Repository) InsertDeletionAudit(ctx context.Context, audit DeletionAudit) error {
	_, err := r.querier(ctx).Exec(ctx, `INSERT INTO asn_deletion_audits (id, asn_id, number, supplier_id, status, reason, total_lines, total_expected, total_received, total_processed, lines_snapshot, deleted_by, deleted_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())`,
		audit.ID, audit.ASNID, audit.Number, audit.SupplierID, audit.Status,
		audit.Reason, audit.TotalLines, audit.TotalExpected, audit.TotalReceived,
		audit.TotalProcessed, audit.LinesSnapshot, audit.DeletedBy)
	return err
}

func scanASN(row pgx.Row) (ASN, error) {
	var header ASN
	var expected *time.Time
	err := row.Scan(&header.ID, &header.Number, &header.SupplierID, &header.Status,
		&header.Priority, &expected, &header.CompletedAt, &header.Notes,
		&header.CreatedBy, &header.CreatedAt, &header.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ASN{}, ErrNotFound
		}
		return ASN{}, err
	}
	if expected != nil {
		header.ExpectedDate = *expected
	}
	return header, nil
}

func scanLine(row pgx.Row) (Line, error) {
	var line Line
	var expiry *time.Time
	err := row.Scan(&line.ID, &line.ASNID, &line.LineNumber, &line.SKU, &line.Description,
		&line.Quantity, &line.ReceivedQuantity, &line.ProcessedQuantity, &line.UnitCost,
		&line.UOM, &line.LotNumber, &expiry, &line.Notes,
		&line.ProcessedLocation, &line.ProcessedCondition, &line.CreatedAt, &line.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Line{}, ErrLineNotFound
		}
		return Line{}, err
	}
	if expiry != nil {
		line.ExpiryDate = *expiry
	}
	return line, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
