package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/atlas-wms/atlas-wms/internal/jobs"
)

// OverdueScanner finds shipping notices still in transit past their
// expected date and raises their priority so the dock sees them first.
type OverdueScanner struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewOverdueScanner constructs the scanner.
func NewOverdueScanner(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *OverdueScanner {
	return &OverdueScanner{pool: pool, logger: logger, metrics: metrics}
}

// Handle processes TaskOverdueScan tasks.
func (s *OverdueScanner) Handle(ctx context.Context, t *asynq.Task) error {
	var payload OverdueScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	grace := payload.OverdueAfter
	if grace <= 0 {
		grace = 24 * time.Hour
	}
	tracker := s.metrics.Track("overdue_scan")
	return tracker.End(s.scan(ctx, grace))
}

func (s *OverdueScanner) scan(ctx context.Context, grace time.Duration) error {
	cutoff := time.Now().UTC().Add(-grace)
	rows, err := s.pool.Query(ctx, `SELECT id, number, expected_date
FROM asns
WHERE status IN ('confirmed', 'in_transit')
  AND expected_date IS NOT NULL
  AND expected_date < $1
  AND deleted_at IS NULL`, cutoff)
	if err != nil {
		return err
	}
	defer rows.Close()

	type overdue struct {
		id       int64
		number   string
		expected time.Time
	}
	found := []overdue{}
	for rows.Next() {
		var o overdue
		if err := rows.Scan(&o.id, &o.number, &o.expected); err != nil {
			return err
		}
		found = append(found, o)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, o := range found {
		if _, err := s.pool.Exec(ctx, `UPDATE asns SET priority='high', updated_at=NOW()
WHERE id=$1 AND priority <> 'high' AND deleted_at IS NULL`, o.id); err != nil {
			return err
		}
		s.logger.Warn("asn overdue",
			slog.Int64("asn_id", o.id),
			slog.String("number", o.number),
			slog.Time("expected_date", o.expected))
		meta, _ := json.Marshal(map[string]any{"number": o.number, "expected_date": o.expected})
		if _, err := s.pool.Exec(ctx, `INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at)
VALUES (0, 'ASN_OVERDUE', 'asn', $1, $2, NOW())`,
			strconv.FormatInt(o.id, 10), meta); err != nil {
			return err
		}
	}
	s.metrics.SetOverdue(len(found))
	return nil
}
