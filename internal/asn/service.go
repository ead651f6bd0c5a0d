package asn

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/atlas-wms/atlas-wms/internal/inventory"
	"github.com/atlas-wms/atlas-wms/internal/shared"
)

// RepositoryPort describes repository operations used by Service. All
// methods are transaction-scope transparent: inside a scope they run on the
// scope's transaction.
type RepositoryPort interface {
	InsertASN(ctx context.Context, header ASN) (int64, error)
	GetASN(ctx context.Context, id int64) (ASN, error)
	UpdateHeader(ctx context.Context, header ASN) error
	UpdateStatus(ctx context.Context, id int64, status Status, completedAt *time.Time) error
	SoftDeleteASN(ctx context.Context, id int64) error
	List(ctx context.Context, filters ListFilters, limit, offset int) ([]ASN, int, error)

	InsertLine(ctx context.Context, line Line) (int64, error)
	GetLine(ctx context.Context, lineID int64) (Line, error)
	GetLineForUpdate(ctx context.Context, lineID int64) (Line, error)
	ListLines(ctx context.Context, asnID int64) ([]Line, error)
	NextLineNumber(ctx context.Context, asnID int64) (int, error)
	UpdateLine(ctx context.Context, line Line) error
	SoftDeleteLine(ctx context.Context, lineID int64) error
	SoftDeleteLinesByASN(ctx context.Context, asnID int64) error
	InsertDeletionAudit(ctx context.Context, audit DeletionAudit) error
}

// InventoryPort posts processed quantities into the inventory store.
type InventoryPort interface {
	PostReceipt(ctx context.Context, input inventory.ReceiptInput) (inventory.Record, error)
}

// LedgerPort exposes the ledger lookups needed for deletion safety.
type LedgerPort interface {
	CountByASN(ctx context.Context, asnID int64) (int64, error)
}

// AuditPort abstracts the audit/activity trail.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
	RecordFailure(ctx context.Context, operation string, actorID int64, entity, entityID string, cause error) error
}

// TxRunner provides reference-counted transaction scopes and savepoints.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(context.Context) error) error
	WithinSavepoint(ctx context.Context, fn func(context.Context) error) error
}

// MetricsPort counts engine activity.
type MetricsPort interface {
	LineProcessed(quantity int64)
	BatchLineSkipped()
}

// Service is the reconciliation engine. It orchestrates line receiving,
// processing, status transitions and deletion safety across the ASN
// aggregate, inventory store and ledger.
type Service struct {
	repo        RepositoryPort
	inventory   InventoryPort
	ledger      LedgerPort
	audit       AuditPort
	tx          TxRunner
	logger      *slog.Logger
	metrics     MetricsPort
	integration IntegrationHandler
}

// NewService constructs the reconciliation engine.
func NewService(repo RepositoryPort, inv InventoryPort, ledgerRepo LedgerPort, audit AuditPort, tx TxRunner, logger *slog.Logger, metrics MetricsPort, integration IntegrationHandler) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, inventory: inv, ledger: ledgerRepo, audit: audit, tx: tx, logger: logger, metrics: metrics, integration: integration}
}

// CreateInput describes a new ASN header.
type CreateInput struct {
	Number       string
	SupplierID   int64
	Priority     Priority
	ExpectedDate time.Time
	Notes        string
	ActorID      int64
}

// Create persists a draft ASN.
func (s *Service) Create(ctx context.Context, input CreateInput) (ASN, error) {
	verr := &ValidationError{}
	if input.SupplierID == 0 {
		verr.add("supplier_id", "supplier is required")
	}
	if input.Priority == "" {
		input.Priority = PriorityNormal
	}
	if !input.Priority.Valid() {
		verr.add("priority", "must be low, normal or high")
	}
	if verr.hasErrors() {
		return ASN{}, verr
	}
	if input.Number == "" {
		input.Number = generateNumber("ASN")
	}
	header := ASN{
		Number:       input.Number,
		SupplierID:   input.SupplierID,
		Status:       StatusDraft,
		Priority:     input.Priority,
		ExpectedDate: input.ExpectedDate,
		Notes:        input.Notes,
		CreatedBy:    input.ActorID,
	}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		id, err := s.repo.InsertASN(ctx, header)
		if err != nil {
			return err
		}
		header.ID = id
		return nil
	})
	if err != nil {
		return ASN{}, err
	}
	s.recordAudit(ctx, "ASN_CREATE", input.ActorID, header.ID, map[string]any{"number": header.Number})
	return header, nil
}

// Get loads one ASN header.
func (s *Service) Get(ctx context.Context, id int64) (ASN, error) {
	return s.repo.GetASN(ctx, id)
}

// List pages through ASN headers.
func (s *Service) List(ctx context.Context, filters ListFilters, limit, offset int) ([]ASN, int, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.repo.List(ctx, filters, limit, offset)
}

// UpdateHeaderInput describes editable header fields.
type UpdateHeaderInput struct {
	ASNID        int64
	SupplierID   int64
	Priority     Priority
	ExpectedDate time.Time
	Notes        string
	ActorID      int64
}

// UpdateHeader edits header fields; permitted only in draft or confirmed.
func (s *Service) UpdateHeader(ctx context.Context, input UpdateHeaderInput) (ASN, error) {
	header, err := s.repo.GetASN(ctx, input.ASNID)
	if err != nil {
		return ASN{}, err
	}
	if !header.Status.Editable() {
		return ASN{}, &StateError{Reason: fmt.Sprintf("ASN in status %s cannot be edited", header.Status)}
	}
	if input.SupplierID != 0 {
		header.SupplierID = input.SupplierID
	}
	if input.Priority != "" {
		if !input.Priority.Valid() {
			return ASN{}, newValidationError("priority", "must be low, normal or high")
		}
		header.Priority = input.Priority
	}
	if !input.ExpectedDate.IsZero() {
		header.ExpectedDate = input.ExpectedDate
	}
	header.Notes = input.Notes
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		return s.repo.UpdateHeader(ctx, header)
	})
	if err != nil {
		return ASN{}, err
	}
	s.recordAudit(ctx, "ASN_UPDATE", input.ActorID, header.ID, map[string]any{"number": header.Number})
	return header, nil
}

// Transition moves the ASN along the lifecycle graph. Disallowed edges are
// rejected with a StateError.
func (s *Service) Transition(ctx context.Context, asnID int64, to Status, actorID int64) error {
	if !to.Valid() {
		return newValidationError("status", "unknown status")
	}
	header, err := s.repo.GetASN(ctx, asnID)
	if err != nil {
		return err
	}
	if !header.Status.CanTransition(to) {
		return &StateError{Reason: fmt.Sprintf("cannot transition from %s to %s", header.Status, to)}
	}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		return s.repo.UpdateStatus(ctx, asnID, to, completionStamp(to))
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, "ASN_STATUS", actorID, asnID, map[string]any{"from": string(header.Status), "to": string(to)})
	return nil
}

// OverrideStatus force-sets a status, bypassing the transition table. The
// handler restricts this to supervisor capability; every override is logged.
func (s *Service) OverrideStatus(ctx context.Context, asnID int64, to Status, actorID int64) error {
	if !to.Valid() {
		return newValidationError("status", "unknown status")
	}
	header, err := s.repo.GetASN(ctx, asnID)
	if err != nil {
		return err
	}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		return s.repo.UpdateStatus(ctx, asnID, to, completionStamp(to))
	})
	if err != nil {
		return err
	}
	s.logger.Warn("asn status override",
		slog.Int64("asn_id", asnID),
		slog.String("from", string(header.Status)),
		slog.String("to", string(to)),
		slog.Int64("actor_id", actorID))
	s.recordAudit(ctx, "ASN_STATUS_OVERRIDE", actorID, asnID, map[string]any{"from": string(header.Status), "to": string(to)})
	return nil
}

// AddLineInput describes a new line.
type AddLineInput struct {
	ASNID       int64
	SKU         string
	Description string
	Quantity    int64
	UnitCost    float64
	UOM         string
	LotNumber   string
	ExpiryDate  time.Time
	Notes       string
	ActorID     int64
}

// AddLine appends a line with the next sequential line number. Permitted
// only while the ASN is editable.
func (s *Service) AddLine(ctx context.Context, input AddLineInput) (Line, error) {
	header, err := s.repo.GetASN(ctx, input.ASNID)
	if err != nil {
		return Line{}, err
	}
	if !header.Status.Editable() {
		return Line{}, &StateError{Reason: fmt.Sprintf("lines can only be added in draft or confirmed status, ASN is %s", header.Status)}
	}
	verr := &ValidationError{}
	if input.SKU == "" {
		verr.add("sku", "sku is required")
	}
	if input.Quantity <= 0 {
		verr.add("quantity", "must be greater than zero")
	}
	if input.UnitCost < 0 {
		verr.add("unit_cost", "must not be negative")
	}
	if verr.hasErrors() {
		return Line{}, verr
	}
	line := Line{
		ASNID:       input.ASNID,
		SKU:         input.SKU,
		Description: input.Description,
		Quantity:    input.Quantity,
		UnitCost:    input.UnitCost,
		UOM:         input.UOM,
		LotNumber:   input.LotNumber,
		ExpiryDate:  input.ExpiryDate,
		Notes:       input.Notes,
	}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		number, err := s.repo.NextLineNumber(ctx, input.ASNID)
		if err != nil {
			return err
		}
		line.LineNumber = number
		id, err := s.repo.InsertLine(ctx, line)
		if err != nil {
			return err
		}
		line.ID = id
		return nil
	})
	if err != nil {
		return Line{}, err
	}
	s.recordAudit(ctx, "ASN_LINE_ADD", input.ActorID, input.ASNID, map[string]any{"line_id": line.ID, "sku": line.SKU, "quantity": line.Quantity})
	return line, nil
}

// UpdateLineInput describes editable line fields.
type UpdateLineInput struct {
	LineID      int64
	SKU         string
	Description string
	Quantity    int64
	UnitCost    float64
	UOM         string
	LotNumber   string
	ExpiryDate  time.Time
	Notes       string
	ActorID     int64
}

// UpdateLine edits a line; the expected quantity may never drop below what
// has already been received.
func (s *Service) UpdateLine(ctx context.Context, input UpdateLineInput) (Line, error) {
	line, err := s.repo.GetLine(ctx, input.LineID)
	if err != nil {
		return Line{}, err
	}
	header, err := s.repo.GetASN(ctx, line.ASNID)
	if err != nil {
		return Line{}, err
	}
	if !header.Status.Editable() {
		return Line{}, &StateError{Reason: fmt.Sprintf("lines can only be edited in draft or confirmed status, ASN is %s", header.Status)}
	}
	verr := &ValidationError{}
	if input.SKU == "" {
		verr.add("sku", "sku is required")
	}
	if input.Quantity <= 0 {
		verr.add("quantity", "must be greater than zero")
	}
	if input.Quantity < line.ReceivedQuantity {
		verr.add("quantity", fmt.Sprintf("must not drop below received quantity %d", line.ReceivedQuantity))
	}
	if input.UnitCost < 0 {
		verr.add("unit_cost", "must not be negative")
	}
	if verr.hasErrors() {
		return Line{}, verr
	}
	line.SKU = input.SKU
	line.Description = input.Description
	line.Quantity = input.Quantity
	line.UnitCost = input.UnitCost
	line.UOM = input.UOM
	line.LotNumber = input.LotNumber
	line.ExpiryDate = input.ExpiryDate
	line.Notes = input.Notes
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		return s.repo.UpdateLine(ctx, line)
	})
	if err != nil {
		return Line{}, err
	}
	s.recordAudit(ctx, "ASN_LINE_UPDATE", input.ActorID, line.ASNID, map[string]any{"line_id": line.ID})
	return line, nil
}

// DeleteLine soft-deletes a line. Lines with any received quantity must be
// reconciled first.
func (s *Service) DeleteLine(ctx context.Context, lineID, actorID int64) error {
	line, err := s.repo.GetLine(ctx, lineID)
	if err != nil {
		return err
	}
	if line.ReceivedQuantity > 0 {
		return &StateError{Reason: "Cannot delete line with received quantity"}
	}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		return s.repo.SoftDeleteLine(ctx, lineID)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, "ASN_LINE_DELETE", actorID, line.ASNID, map[string]any{"line_id": lineID, "sku": line.SKU})
	return nil
}

// ReceiveInput records a dock count for a line.
type ReceiveInput struct {
	LineID           int64
	ReceivedQuantity int64
	ActorID          int64
}

// Receive sets the absolute received quantity for a line. This is a
// last-write-wins dock count, not a delta, and it never touches inventory.
// The count may not exceed the expected quantity and may not drop below the
// quantity already processed.
func (s *Service) Receive(ctx context.Context, input ReceiveInput) (Line, error) {
	line, err := s.repo.GetLine(ctx, input.LineID)
	if err != nil {
		return Line{}, err
	}
	header, err := s.repo.GetASN(ctx, line.ASNID)
	if err != nil {
		return Line{}, err
	}
	if !header.Status.Receivable() {
		return Line{}, &StateError{Reason: fmt.Sprintf("receiving requires arrived or receiving status, ASN is %s", header.Status)}
	}
	if input.ReceivedQuantity < 0 || input.ReceivedQuantity > line.Quantity {
		return Line{}, newValidationError("received_quantity", fmt.Sprintf("must be between 0 and %d", line.Quantity))
	}
	if input.ReceivedQuantity < line.ProcessedQuantity {
		return Line{}, &StateError{Reason: fmt.Sprintf("received quantity %d cannot drop below processed quantity %d", input.ReceivedQuantity, line.ProcessedQuantity)}
	}
	var updated Line
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		locked, err := s.repo.GetLineForUpdate(ctx, input.LineID)
		if err != nil {
			return err
		}
		locked.ReceivedQuantity = input.ReceivedQuantity
		if err := locked.CheckQuantities(); err != nil {
			return err
		}
		if err := s.repo.UpdateLine(ctx, locked); err != nil {
			return err
		}
		updated = locked
		return nil
	})
	if err != nil {
		s.recordFailure(ctx, "ASN_RECEIVE", input.ActorID, line.ASNID, err)
		return Line{}, err
	}
	s.recordAudit(ctx, "ASN_RECEIVE", input.ActorID, line.ASNID, map[string]any{"line_id": line.ID, "received_quantity": input.ReceivedQuantity})
	return updated, nil
}

// ProcessInput describes a single-line putaway.
type ProcessInput struct {
	LineID     int64
	Quantity   int64
	Location   string
	LotNumber  string
	ExpiryDate time.Time
	Condition  inventory.Condition
	Notes      string
	ActorID    int64
}

// ProcessResult reports the line and ASN totals after processing.
type ProcessResult struct {
	ProcessedQuantity int64
	TotalProcessed    int64
	Status            Status
}

// ProcessLine converts part of a line's received quantity into inventory.
// All mutations — inventory record, ledger entry, line counters and the ASN
// status recomputation — share one transaction scope: they commit together
// or not at all.
func (s *Service) ProcessLine(ctx context.Context, input ProcessInput) (ProcessResult, error) {
	verr := &ValidationError{}
	if input.Quantity <= 0 {
		verr.add("process_quantity", "must be greater than zero")
	}
	if input.Location == "" {
		verr.add("location", "location is required")
	}
	if !input.Condition.Valid() {
		verr.add("condition", "must be good, damaged, expired or quarantine")
	}
	if verr.hasErrors() {
		return ProcessResult{}, verr
	}

	var result ProcessResult
	var event *CompletedEvent
	var lineEvent *LineProcessedEvent
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		line, err := s.repo.GetLineForUpdate(ctx, input.LineID)
		if err != nil {
			return err
		}
		header, err := s.repo.GetASN(ctx, line.ASNID)
		if err != nil {
			return err
		}
		if !header.Status.Receivable() {
			return &StateError{Reason: fmt.Sprintf("processing requires arrived or receiving status, ASN is %s", header.Status)}
		}
		if input.Quantity > line.UnprocessedRemainder() {
			return newValidationError("process_quantity", fmt.Sprintf("exceeds unprocessed remainder %d", line.UnprocessedRemainder()))
		}

		lot := input.LotNumber
		if lot == "" {
			lot = line.LotNumber
		}
		expiry := input.ExpiryDate
		if expiry.IsZero() {
			expiry = line.ExpiryDate
		}
		if _, err := s.inventory.PostReceipt(ctx, inventory.ReceiptInput{
			SKU:        line.SKU,
			Quantity:   input.Quantity,
			Condition:  input.Condition,
			Location:   input.Location,
			LotNumber:  lot,
			ExpiryDate: expiry,
			UnitCost:   line.UnitCost,
			ASNID:      line.ASNID,
			LineID:     line.ID,
			ActorID:    input.ActorID,
		}); err != nil {
			return err
		}

		line.ProcessedQuantity += input.Quantity
		line.ProcessedLocation = input.Location
		line.ProcessedCondition = string(input.Condition)
		if err := line.CheckQuantities(); err != nil {
			return err
		}
		if err := s.repo.UpdateLine(ctx, line); err != nil {
			return err
		}

		status, completedAt, total, err := s.recomputeStatus(ctx, header)
		if err != nil {
			return err
		}
		if status == StatusCompleted && header.Status != StatusCompleted {
			event = &CompletedEvent{ASNID: header.ID, Number: header.Number, SupplierID: header.SupplierID, CompletedAt: *completedAt}
		}
		lineEvent = &LineProcessedEvent{
			ASNID:     line.ASNID,
			LineID:    line.ID,
			SKU:       line.SKU,
			Quantity:  input.Quantity,
			Condition: string(input.Condition),
			Location:  input.Location,
			ActorID:   input.ActorID,
		}
		result = ProcessResult{ProcessedQuantity: line.ProcessedQuantity, TotalProcessed: total, Status: status}
		return nil
	})
	if err != nil {
		s.recordFailure(ctx, "ASN_PROCESS", input.ActorID, input.LineID, err)
		return ProcessResult{}, err
	}
	if s.metrics != nil {
		s.metrics.LineProcessed(input.Quantity)
	}
	s.recordAudit(ctx, "ASN_PROCESS", input.ActorID, input.LineID, map[string]any{
		"quantity":  input.Quantity,
		"condition": string(input.Condition),
		"location":  input.Location,
	})
	s.dispatchLineProcessed(ctx, lineEvent)
	s.dispatchCompleted(ctx, event)
	return result, nil
}

// ProcessAllInput describes a bulk putaway with per-line defaults.
type ProcessAllInput struct {
	ASNID            int64
	DefaultLocation  string
	DefaultCondition inventory.Condition
	ActorID          int64
}

// ProcessAllResult summarises a bulk run.
type ProcessAllResult struct {
	ProcessedLines int
	TotalQuantity  int64
	SkippedLines   int
	Status         Status
}

// ProcessAll fully closes the unprocessed remainder of every received line
// using the supplied defaults. The batch runs inside one transaction, but
// each line is wrapped in a savepoint: a per-line failure is logged and
// skipped while the rest of the batch commits. This best-effort contract is
// the bulk operation's documented behaviour and differs deliberately from
// ProcessLine's all-or-nothing semantics.
func (s *Service) ProcessAll(ctx context.Context, input ProcessAllInput) (ProcessAllResult, error) {
	verr := &ValidationError{}
	if input.DefaultLocation == "" {
		verr.add("default_location", "location is required")
	}
	if !input.DefaultCondition.Valid() {
		verr.add("default_condition", "must be good, damaged, expired or quarantine")
	}
	if verr.hasErrors() {
		return ProcessAllResult{}, verr
	}

	var result ProcessAllResult
	var event *CompletedEvent
	var lineEvents []LineProcessedEvent
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		header, err := s.repo.GetASN(ctx, input.ASNID)
		if err != nil {
			return err
		}
		lines, err := s.repo.ListLines(ctx, input.ASNID)
		if err != nil {
			return err
		}
		eligible := make([]Line, 0, len(lines))
		for _, line := range lines {
			if line.ReceivedQuantity > 0 && line.ProcessedQuantity < line.ReceivedQuantity {
				eligible = append(eligible, line)
			}
		}
		if len(eligible) == 0 {
			return ErrNoLinesAvailable
		}
		if !header.Status.Receivable() {
			return &StateError{Reason: fmt.Sprintf("processing requires arrived or receiving status, ASN is %s", header.Status)}
		}

		for _, line := range eligible {
			quantity := line.UnprocessedRemainder()
			lineID := line.ID
			err := s.tx.WithinSavepoint(ctx, func(ctx context.Context) error {
				locked, err := s.repo.GetLineForUpdate(ctx, lineID)
				if err != nil {
					return err
				}
				remaining := locked.UnprocessedRemainder()
				if remaining <= 0 {
					return nil
				}
				if _, err := s.inventory.PostReceipt(ctx, inventory.ReceiptInput{
					SKU:        locked.SKU,
					Quantity:   remaining,
					Condition:  input.DefaultCondition,
					Location:   input.DefaultLocation,
					LotNumber:  locked.LotNumber,
					ExpiryDate: locked.ExpiryDate,
					UnitCost:   locked.UnitCost,
					ASNID:      locked.ASNID,
					LineID:     locked.ID,
					ActorID:    input.ActorID,
				}); err != nil {
					return err
				}
				locked.ProcessedQuantity += remaining
				locked.ProcessedLocation = input.DefaultLocation
				locked.ProcessedCondition = string(input.DefaultCondition)
				if err := locked.CheckQuantities(); err != nil {
					return err
				}
				return s.repo.UpdateLine(ctx, locked)
			})
			if err != nil {
				result.SkippedLines++
				if s.metrics != nil {
					s.metrics.BatchLineSkipped()
				}
				s.logger.Warn("bulk processing skipped line",
					slog.Int64("asn_id", input.ASNID),
					slog.Int64("line_id", lineID),
					slog.Any("error", err))
				s.recordFailure(ctx, "ASN_PROCESS_ALL_LINE", input.ActorID, lineID, err)
				continue
			}
			result.ProcessedLines++
			result.TotalQuantity += quantity
			if s.metrics != nil {
				s.metrics.LineProcessed(quantity)
			}
			lineEvents = append(lineEvents, LineProcessedEvent{
				ASNID:     line.ASNID,
				LineID:    line.ID,
				SKU:       line.SKU,
				Quantity:  quantity,
				Condition: string(input.DefaultCondition),
				Location:  input.DefaultLocation,
				ActorID:   input.ActorID,
			})
		}

		status, completedAt, _, err := s.recomputeStatus(ctx, header)
		if err != nil {
			return err
		}
		if status == StatusCompleted && header.Status != StatusCompleted {
			event = &CompletedEvent{ASNID: header.ID, Number: header.Number, SupplierID: header.SupplierID, CompletedAt: *completedAt}
		}
		result.Status = status
		return nil
	})
	if err != nil {
		if err != ErrNoLinesAvailable {
			s.recordFailure(ctx, "ASN_PROCESS_ALL", input.ActorID, input.ASNID, err)
		}
		return ProcessAllResult{}, err
	}
	s.recordAudit(ctx, "ASN_PROCESS_ALL", input.ActorID, input.ASNID, map[string]any{
		"processed_lines": result.ProcessedLines,
		"total_quantity":  result.TotalQuantity,
		"skipped_lines":   result.SkippedLines,
	})
	for i := range lineEvents {
		s.dispatchLineProcessed(ctx, &lineEvents[i])
	}
	s.dispatchCompleted(ctx, event)
	return result, nil
}

// ListLines returns the ASN's lines with derived receive/process statuses.
func (s *Service) ListLines(ctx context.Context, asnID int64) ([]LineView, error) {
	if _, err := s.repo.GetASN(ctx, asnID); err != nil {
		return nil, err
	}
	lines, err := s.repo.ListLines(ctx, asnID)
	if err != nil {
		return nil, err
	}
	views := make([]LineView, 0, len(lines))
	for _, line := range lines {
		views = append(views, LineView{Line: line, Receive: line.ReceiveStatus(), Process: line.ProcessStatus()})
	}
	return views, nil
}

// DeleteInput describes an ASN deletion request.
type DeleteInput struct {
	ASNID   int64
	Reason  string
	ActorID int64
}

// Delete soft-deletes an ASN after safety checks. Every line is
// soft-deleted, a deletion-audit record with a JSON snapshot of the lines
// is written, then the header is soft-deleted — all in one transaction.
func (s *Service) Delete(ctx context.Context, input DeleteInput) (uuid.UUID, error) {
	if len(input.Reason) < 10 {
		return uuid.Nil, newValidationError("reason", "must be at least 10 characters")
	}
	header, err := s.repo.GetASN(ctx, input.ASNID)
	if err != nil {
		return uuid.Nil, err
	}
	lines, err := s.repo.ListLines(ctx, input.ASNID)
	if err != nil {
		return uuid.Nil, err
	}

	var totalExpected, totalReceived, totalProcessed int64
	for _, line := range lines {
		totalExpected += line.Quantity
		totalReceived += line.ReceivedQuantity
		totalProcessed += line.ProcessedQuantity
	}

	var blocked DeletionBlockedError
	if header.Status == StatusReceiving || header.Status == StatusCompleted {
		blocked.Reasons = append(blocked.Reasons, fmt.Sprintf("ASN in status %s cannot be deleted", header.Status))
	}
	if totalProcessed > 0 {
		blocked.Reasons = append(blocked.Reasons, "ASN has processed quantities")
	}
	ledgerCount, err := s.ledger.CountByASN(ctx, input.ASNID)
	if err != nil {
		return uuid.Nil, err
	}
	if ledgerCount > 0 {
		blocked.Reasons = append(blocked.Reasons, "ledger entries reference this ASN")
	}
	if len(blocked.Reasons) > 0 {
		return uuid.Nil, &blocked
	}

	snapshot, err := json.Marshal(lines)
	if err != nil {
		return uuid.Nil, err
	}
	audit := DeletionAudit{
		ID:             uuid.New(),
		ASNID:          header.ID,
		Number:         header.Number,
		SupplierID:     header.SupplierID,
		Status:         header.Status,
		Reason:         input.Reason,
		TotalLines:     len(lines),
		TotalExpected:  totalExpected,
		TotalReceived:  totalReceived,
		TotalProcessed: totalProcessed,
		LinesSnapshot:  snapshot,
		DeletedBy:      input.ActorID,
	}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.SoftDeleteLinesByASN(ctx, input.ASNID); err != nil {
			return err
		}
		if err := s.repo.InsertDeletionAudit(ctx, audit); err != nil {
			return err
		}
		return s.repo.SoftDeleteASN(ctx, input.ASNID)
	})
	if err != nil {
		s.recordFailure(ctx, "ASN_DELETE", input.ActorID, input.ASNID, err)
		return uuid.Nil, err
	}
	s.recordAudit(ctx, "ASN_DELETE", input.ActorID, input.ASNID, map[string]any{"audit_id": audit.ID.String(), "reason": input.Reason})
	return audit.ID, nil
}

// recomputeStatus derives the ASN status from all lines and persists it
// when it changed. Auto-advance happens only out of arrived/receiving: the
// first partial processing moves arrived to receiving, and the ASN
// completes the moment every received line is fully processed.
func (s *Service) recomputeStatus(ctx context.Context, header ASN) (Status, *time.Time, int64, error) {
	lines, err := s.repo.ListLines(ctx, header.ID)
	if err != nil {
		return header.Status, nil, 0, err
	}
	var totalProcessed int64
	anyReceived := false
	anyProcessed := false
	allProcessed := true
	for _, line := range lines {
		totalProcessed += line.ProcessedQuantity
		if line.ProcessedQuantity > 0 {
			anyProcessed = true
		}
		if line.ReceivedQuantity > 0 {
			anyReceived = true
			if line.ProcessedQuantity < line.ReceivedQuantity {
				allProcessed = false
			}
		}
	}

	status := header.Status
	var completedAt *time.Time
	switch {
	case header.Status.Receivable() && anyReceived && allProcessed:
		status = StatusCompleted
		now := time.Now().UTC()
		completedAt = &now
	case header.Status == StatusArrived && anyProcessed:
		status = StatusReceiving
	}
	if status != header.Status {
		if err := s.repo.UpdateStatus(ctx, header.ID, status, completedAt); err != nil {
			return header.Status, nil, 0, err
		}
	}
	return status, completedAt, totalProcessed, nil
}

func (s *Service) dispatchLineProcessed(ctx context.Context, event *LineProcessedEvent) {
	if event == nil || s.integration == nil {
		return
	}
	if err := s.integration.HandleLineProcessed(ctx, *event); err != nil {
		s.logger.Error("line processed integration", slog.Int64("line_id", event.LineID), slog.Any("error", err))
	}
}

func (s *Service) dispatchCompleted(ctx context.Context, event *CompletedEvent) {
	if event == nil || s.integration == nil {
		return
	}
	if err := s.integration.HandleASNCompleted(ctx, *event); err != nil {
		s.logger.Error("asn completed integration", slog.Int64("asn_id", event.ASNID), slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, action string, actorID, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "asn", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}

func (s *Service) recordFailure(ctx context.Context, operation string, actorID, entityID int64, cause error) {
	if s.audit == nil {
		return
	}
	_ = s.audit.RecordFailure(ctx, operation, actorID, "asn", fmt.Sprintf("%d", entityID), cause)
}

func completionStamp(status Status) *time.Time {
	if status != StatusCompleted {
		return nil
	}
	now := time.Now().UTC()
	return &now
}

func generateNumber(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
