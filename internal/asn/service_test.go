package asn

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/atlas-wms/atlas-wms/internal/inventory"
	"github.com/atlas-wms/atlas-wms/internal/shared"
)

type memoryEngineRepo struct {
	asns   map[int64]ASN
	lines  map[int64]Line
	audits []DeletionAudit
	nextID int64
}

func newMemoryEngineRepo() *memoryEngineRepo {
	return &memoryEngineRepo{asns: make(map[int64]ASN), lines: make(map[int64]Line)}
}

func (r *memoryEngineRepo) newID() int64 {
	r.nextID++
	return r.nextID
}

func (r *memoryEngineRepo) InsertASN(ctx context.Context, header ASN) (int64, error) {
	id := r.newID()
	header.ID = id
	header.CreatedAt = time.Now()
	header.UpdatedAt = header.CreatedAt
	r.asns[id] = header
	return id, nil
}

func (r *memoryEngineRepo) GetASN(ctx context.Context, id int64) (ASN, error) {
	header, ok := r.asns[id]
	if !ok || header.DeletedAt != nil {
		return ASN{}, ErrNotFound
	}
	return header, nil
}

func (r *memoryEngineRepo) UpdateHeader(ctx context.Context, header ASN) error {
	current, ok := r.asns[header.ID]
	if !ok || current.DeletedAt != nil {
		return ErrNotFound
	}
	current.SupplierID = header.SupplierID
	current.Priority = header.Priority
	current.ExpectedDate = header.ExpectedDate
	current.Notes = header.Notes
	current.UpdatedAt = time.Now()
	r.asns[header.ID] = current
	return nil
}

func (r *memoryEngineRepo) UpdateStatus(ctx context.Context, id int64, status Status, completedAt *time.Time) error {
	header, ok := r.asns[id]
	if !ok || header.DeletedAt != nil {
		return ErrNotFound
	}
	header.Status = status
	if completedAt != nil {
		header.CompletedAt = completedAt
	}
	r.asns[id] = header
	return nil
}

func (r *memoryEngineRepo) SoftDeleteASN(ctx context.Context, id int64) error {
	header, ok := r.asns[id]
	if !ok || header.DeletedAt != nil {
		return ErrNotFound
	}
	now := time.Now()
	header.DeletedAt = &now
	r.asns[id] = header
	return nil
}

func (r *memoryEngineRepo) List(ctx context.Context, filters ListFilters, limit, offset int) ([]ASN, int, error) {
	headers := []ASN{}
	for _, header := range r.asns {
		if header.DeletedAt != nil {
			continue
		}
		if filters.Status != "" && string(header.Status) != filters.Status {
			continue
		}
		if filters.SupplierID != 0 && header.SupplierID != filters.SupplierID {
			continue
		}
		headers = append(headers, header)
	}
	sort.Slice(headers, func(i, j int) bool { return headers[i].ID < headers[j].ID })
	return headers, len(headers), nil
}

func (r *memoryEngineRepo) InsertLine(ctx context.Context, line Line) (int64, error) {
	id := r.newID()
	line.ID = id
	r.lines[id] = line
	return id, nil
}

func (r *memoryEngineRepo) GetLine(ctx context.Context, lineID int64) (Line, error) {
	line, ok := r.lines[lineID]
	if !ok || line.DeletedAt != nil {
		return Line{}, ErrLineNotFound
	}
	return line, nil
}

func (r *memoryEngineRepo) GetLineForUpdate(ctx context.Context, lineID int64) (Line, error) {
	return r.GetLine(ctx, lineID)
}

func (r *memoryEngineRepo) ListLines(ctx context.Context, asnID int64) ([]Line, error) {
	lines := []Line{}
	for _, line := range r.lines {
		if line.ASNID == asnID && line.DeletedAt == nil {
			lines = append(lines, line)
		}
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].LineNumber < lines[j].LineNumber })
	return lines, nil
}

func (r *memoryEngineRepo) NextLineNumber(ctx context.Context, asnID int64) (int, error) {
	max := 0
	for _, line := range r.lines {
		if line.ASNID == asnID && line.LineNumber > max {
			max = line.LineNumber
		}
	}
	return max + 1, nil
}

func (r *memoryEngineRepo) UpdateLine(ctx context.Context, line Line) error {
	current, ok := r.lines[line.ID]
	if !ok || current.DeletedAt != nil {
		return ErrLineNotFound
	}
	line.DeletedAt = nil
	r.lines[line.ID] = line
	return nil
}

func (r *memoryEngineRepo) SoftDeleteLine(ctx context.Context, lineID int64) error {
	line, ok := r.lines[lineID]
	if !ok || line.DeletedAt != nil {
		return ErrLineNotFound
	}
	now := time.Now()
	line.DeletedAt = &now
	r.lines[lineID] = line
	return nil
}

func (r *memoryEngineRepo) SoftDeleteLinesByASN(ctx context.Context, asnID int64) error {
	now := time.Now()
	for id, line := range r.lines {
		if line.ASNID == asnID && line.DeletedAt == nil {
			line.DeletedAt = &now
			r.lines[id] = line
		}
	}
	return nil
}

func (r *memoryEngineRepo) InsertDeletionAudit(ctx context.Context, audit DeletionAudit) error {
	r.audits = append(r.audits, audit)
	return nil
}

type repoSnapshot struct {
	asns  map[int64]ASN
	lines map[int64]Line
}

func (r *memoryEngineRepo) snapshot() repoSnapshot {
	snap := repoSnapshot{asns: make(map[int64]ASN, len(r.asns)), lines: make(map[int64]Line, len(r.lines))}
	for id, header := range r.asns {
		snap.asns[id] = header
	}
	for id, line := range r.lines {
		snap.lines[id] = line
	}
	return snap
}

func (r *memoryEngineRepo) restore(snap repoSnapshot) {
	r.asns = snap.asns
	r.lines = snap.lines
}

type fakeInventory struct {
	onHand       map[string]int64
	ledgerCounts map[int64]int64
	receipts     []inventory.ReceiptInput
	failSKUs     map[string]error
}

func newFakeInventory() *fakeInventory {
	return &fakeInventory{onHand: make(map[string]int64), ledgerCounts: make(map[int64]int64), failSKUs: make(map[string]error)}
}

func (f *fakeInventory) PostReceipt(ctx context.Context, input inventory.ReceiptInput) (inventory.Record, error) {
	if err, ok := f.failSKUs[input.SKU]; ok {
		return inventory.Record{}, err
	}
	f.onHand[input.SKU] += input.Quantity
	f.ledgerCounts[input.ASNID]++
	f.receipts = append(f.receipts, input)
	return inventory.Record{SKU: input.SKU, OnHand: f.onHand[input.SKU]}, nil
}

type invSnapshot struct {
	onHand       map[string]int64
	ledgerCounts map[int64]int64
	receipts     int
}

func (f *fakeInventory) snapshot() invSnapshot {
	snap := invSnapshot{onHand: make(map[string]int64, len(f.onHand)), ledgerCounts: make(map[int64]int64, len(f.ledgerCounts)), receipts: len(f.receipts)}
	for sku, qty := range f.onHand {
		snap.onHand[sku] = qty
	}
	for id, count := range f.ledgerCounts {
		snap.ledgerCounts[id] = count
	}
	return snap
}

func (f *fakeInventory) restore(snap invSnapshot) {
	f.onHand = snap.onHand
	f.ledgerCounts = snap.ledgerCounts
	f.receipts = f.receipts[:snap.receipts]
}

type fakeLedger struct {
	inv *fakeInventory
}

func (f *fakeLedger) CountByASN(ctx context.Context, asnID int64) (int64, error) {
	return f.inv.ledgerCounts[asnID], nil
}

type fakeAudit struct {
	logs []shared.AuditLog
}

func (f *fakeAudit) Record(ctx context.Context, log shared.AuditLog) error {
	f.logs = append(f.logs, log)
	return nil
}

func (f *fakeAudit) RecordFailure(ctx context.Context, operation string, actorID int64, entity, entityID string, cause error) error {
	f.logs = append(f.logs, shared.AuditLog{ActorID: actorID, Action: operation + ":FAILED", Entity: entity, EntityID: entityID})
	return nil
}

func (f *fakeAudit) actions() []string {
	actions := make([]string, 0, len(f.logs))
	for _, log := range f.logs {
		actions = append(actions, log.Action)
	}
	return actions
}

type memoryTx struct {
	repo *memoryEngineRepo
	inv  *fakeInventory
}

func (tx *memoryTx) WithinTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func (tx *memoryTx) WithinSavepoint(ctx context.Context, fn func(context.Context) error) error {
	repoSnap := tx.repo.snapshot()
	invSnap := tx.inv.snapshot()
	if err := fn(ctx); err != nil {
		tx.repo.restore(repoSnap)
		tx.inv.restore(invSnap)
		return err
	}
	return nil
}

func newTestEngine(t *testing.T) (*Service, *memoryEngineRepo, *fakeInventory, *fakeAudit) {
	t.Helper()
	repo := newMemoryEngineRepo()
	inv := newFakeInventory()
	audit := &fakeAudit{}
	svc := NewService(repo, inv, &fakeLedger{inv: inv}, audit, &memoryTx{repo: repo, inv: inv}, nil, nil, nil)
	return svc, repo, inv, audit
}

func createArrivedASN(t *testing.T, svc *Service, quantities ...int64) (ASN, []Line) {
	t.Helper()
	ctx := context.Background()
	header, err := svc.Create(ctx, CreateInput{SupplierID: 7, ActorID: 42})
	require.NoError(t, err)
	lines := make([]Line, 0, len(quantities))
	for i, qty := range quantities {
		line, err := svc.AddLine(ctx, AddLineInput{ASNID: header.ID, SKU: sku(i), Quantity: qty, UnitCost: 2.5, ActorID: 42})
		require.NoError(t, err)
		lines = append(lines, line)
	}
	require.NoError(t, svc.Transition(ctx, header.ID, StatusConfirmed, 42))
	require.NoError(t, svc.Transition(ctx, header.ID, StatusInTransit, 42))
	require.NoError(t, svc.Transition(ctx, header.ID, StatusArrived, 42))
	header, err = svc.Get(ctx, header.ID)
	require.NoError(t, err)
	return header, lines
}

func sku(i int) string {
	return string(rune('A'+i)) + "-100"
}

func TestLifecycleTransitions(t *testing.T) {
	svc, _, _, _ := newTestEngine(t)
	ctx := context.Background()

	header, err := svc.Create(ctx, CreateInput{SupplierID: 7, ActorID: 42})
	require.NoError(t, err)
	require.Equal(t, StatusDraft, header.Status)
	require.NotEmpty(t, header.Number)

	var serr *StateError
	err = svc.Transition(ctx, header.ID, StatusArrived, 42)
	require.ErrorAs(t, err, &serr)

	require.NoError(t, svc.Transition(ctx, header.ID, StatusConfirmed, 42))
	require.NoError(t, svc.Transition(ctx, header.ID, StatusInTransit, 42))
	require.NoError(t, svc.Transition(ctx, header.ID, StatusCancelled, 42))

	err = svc.Transition(ctx, header.ID, StatusArrived, 42)
	require.ErrorAs(t, err, &serr)
}

func TestReceiveSetsAbsoluteCountWithoutInventoryEffect(t *testing.T) {
	svc, _, inv, _ := newTestEngine(t)
	ctx := context.Background()
	_, lines := createArrivedASN(t, svc, 10)

	line, err := svc.Receive(ctx, ReceiveInput{LineID: lines[0].ID, ReceivedQuantity: 5, ActorID: 42})
	require.NoError(t, err)
	require.Equal(t, int64(5), line.ReceivedQuantity)
	require.Equal(t, ReceivePartial, line.ReceiveStatus())

	// Last write wins, not a delta.
	line, err = svc.Receive(ctx, ReceiveInput{LineID: lines[0].ID, ReceivedQuantity: 8, ActorID: 42})
	require.NoError(t, err)
	require.Equal(t, int64(8), line.ReceivedQuantity)

	require.Empty(t, inv.receipts)
	require.Zero(t, inv.onHand[lines[0].SKU])
}

func TestReceiveRejectsOutOfRangeQuantities(t *testing.T) {
	svc, _, _, _ := newTestEngine(t)
	ctx := context.Background()
	_, lines := createArrivedASN(t, svc, 10)

	var verr *ValidationError
	_, err := svc.Receive(ctx, ReceiveInput{LineID: lines[0].ID, ReceivedQuantity: 11, ActorID: 42})
	require.ErrorAs(t, err, &verr)

	_, err = svc.Receive(ctx, ReceiveInput{LineID: lines[0].ID, ReceivedQuantity: -1, ActorID: 42})
	require.ErrorAs(t, err, &verr)
}

func TestReceiveRejectedOutsideArrivedOrReceiving(t *testing.T) {
	svc, _, _, _ := newTestEngine(t)
	ctx := context.Background()

	header, err := svc.Create(ctx, CreateInput{SupplierID: 7, ActorID: 42})
	require.NoError(t, err)
	line, err := svc.AddLine(ctx, AddLineInput{ASNID: header.ID, SKU: "A-100", Quantity: 10, ActorID: 42})
	require.NoError(t, err)

	var serr *StateError
	_, err = svc.Receive(ctx, ReceiveInput{LineID: line.ID, ReceivedQuantity: 5, ActorID: 42})
	require.ErrorAs(t, err, &serr)
}

func TestReceiveCannotDropBelowProcessed(t *testing.T) {
	svc, _, _, _ := newTestEngine(t)
	ctx := context.Background()
	_, lines := createArrivedASN(t, svc, 10)

	_, err := svc.Receive(ctx, ReceiveInput{LineID: lines[0].ID, ReceivedQuantity: 8, ActorID: 42})
	require.NoError(t, err)
	_, err = svc.ProcessLine(ctx, ProcessInput{LineID: lines[0].ID, Quantity: 6, Location: "A-01-01", Condition: inventory.ConditionGood, ActorID: 42})
	require.NoError(t, err)

	var serr *StateError
	_, err = svc.Receive(ctx, ReceiveInput{LineID: lines[0].ID, ReceivedQuantity: 4, ActorID: 42})
	require.ErrorAs(t, err, &serr)

	// Raising or matching the processed count is still allowed.
	_, err = svc.Receive(ctx, ReceiveInput{LineID: lines[0].ID, ReceivedQuantity: 6, ActorID: 42})
	require.NoError(t, err)
}

func TestProcessLineAdvancesStatusAndPostsInventory(t *testing.T) {
	svc, repo, inv, _ := newTestEngine(t)
	ctx := context.Background()
	header, lines := createArrivedASN(t, svc, 10)

	_, err := svc.Receive(ctx, ReceiveInput{LineID: lines[0].ID, ReceivedQuantity: 10, ActorID: 42})
	require.NoError(t, err)

	result, err := svc.ProcessLine(ctx, ProcessInput{LineID: lines[0].ID, Quantity: 4, Location: "A-01-01", Condition: inventory.ConditionGood, ActorID: 42})
	require.NoError(t, err)
	require.Equal(t, int64(4), result.ProcessedQuantity)
	require.Equal(t, StatusReceiving, result.Status)
	require.Equal(t, int64(4), inv.onHand[lines[0].SKU])

	result, err = svc.ProcessLine(ctx, ProcessInput{LineID: lines[0].ID, Quantity: 6, Location: "A-01-02", Condition: inventory.ConditionGood, ActorID: 42})
	require.NoError(t, err)
	require.Equal(t, int64(10), result.ProcessedQuantity)
	require.Equal(t, StatusCompleted, result.Status)
	require.Equal(t, int64(10), inv.onHand[lines[0].SKU])
	require.Len(t, inv.receipts, 2)

	stored := repo.asns[header.ID]
	require.Equal(t, StatusCompleted, stored.Status)
	require.NotNil(t, stored.CompletedAt)
}

func TestProcessLineRejectsQuantityBeyondRemainder(t *testing.T) {
	svc, repo, inv, _ := newTestEngine(t)
	ctx := context.Background()
	_, lines := createArrivedASN(t, svc, 10)

	_, err := svc.Receive(ctx, ReceiveInput{LineID: lines[0].ID, ReceivedQuantity: 5, ActorID: 42})
	require.NoError(t, err)

	var verr *ValidationError
	_, err = svc.ProcessLine(ctx, ProcessInput{LineID: lines[0].ID, Quantity: 7, Location: "A-01-01", Condition: inventory.ConditionGood, ActorID: 42})
	require.ErrorAs(t, err, &verr)

	require.Empty(t, inv.receipts)
	require.Zero(t, repo.lines[lines[0].ID].ProcessedQuantity)
}

func TestProcessLineLeavesNoPartialWritesOnInventoryFailure(t *testing.T) {
	svc, repo, inv, _ := newTestEngine(t)
	ctx := context.Background()
	header, lines := createArrivedASN(t, svc, 10)

	_, err := svc.Receive(ctx, ReceiveInput{LineID: lines[0].ID, ReceivedQuantity: 10, ActorID: 42})
	require.NoError(t, err)

	boom := errors.New("no bin capacity")
	inv.failSKUs[lines[0].SKU] = boom
	_, err = svc.ProcessLine(ctx, ProcessInput{LineID: lines[0].ID, Quantity: 4, Location: "A-01-01", Condition: inventory.ConditionGood, ActorID: 42})
	require.ErrorIs(t, err, boom)

	require.Zero(t, repo.lines[lines[0].ID].ProcessedQuantity)
	require.Equal(t, StatusArrived, repo.asns[header.ID].Status)
	require.Zero(t, inv.onHand[lines[0].SKU])
}

func TestProcessAllClosesEveryReceivedLine(t *testing.T) {
	svc, repo, inv, _ := newTestEngine(t)
	ctx := context.Background()
	header, lines := createArrivedASN(t, svc, 10, 6, 4)

	for _, line := range lines[:2] {
		_, err := svc.Receive(ctx, ReceiveInput{LineID: line.ID, ReceivedQuantity: line.Quantity, ActorID: 42})
		require.NoError(t, err)
	}

	result, err := svc.ProcessAll(ctx, ProcessAllInput{ASNID: header.ID, DefaultLocation: "RCV-01", DefaultCondition: inventory.ConditionGood, ActorID: 42})
	require.NoError(t, err)
	require.Equal(t, 2, result.ProcessedLines)
	require.Equal(t, int64(16), result.TotalQuantity)
	require.Zero(t, result.SkippedLines)
	require.Equal(t, StatusCompleted, result.Status)
	require.Equal(t, int64(10), inv.onHand[lines[0].SKU])
	require.Equal(t, int64(6), inv.onHand[lines[1].SKU])
	require.NotNil(t, repo.asns[header.ID].CompletedAt)
}

func TestProcessAllSkipsFailingLinesAndKeepsTheRest(t *testing.T) {
	svc, repo, inv, audit := newTestEngine(t)
	ctx := context.Background()
	header, lines := createArrivedASN(t, svc, 10, 6, 4)

	for _, line := range lines {
		_, err := svc.Receive(ctx, ReceiveInput{LineID: line.ID, ReceivedQuantity: line.Quantity, ActorID: 42})
		require.NoError(t, err)
	}
	inv.failSKUs[lines[1].SKU] = errors.New("quarantine hold")

	result, err := svc.ProcessAll(ctx, ProcessAllInput{ASNID: header.ID, DefaultLocation: "RCV-01", DefaultCondition: inventory.ConditionGood, ActorID: 42})
	require.NoError(t, err)
	require.Equal(t, 2, result.ProcessedLines)
	require.Equal(t, 1, result.SkippedLines)
	require.Equal(t, int64(14), result.TotalQuantity)

	// The failed line rolled back to its savepoint, the rest committed.
	require.Equal(t, int64(10), inv.onHand[lines[0].SKU])
	require.Zero(t, inv.onHand[lines[1].SKU])
	require.Equal(t, int64(4), inv.onHand[lines[2].SKU])
	require.Zero(t, repo.lines[lines[1].ID].ProcessedQuantity)

	// One received line is still unprocessed, so the ASN stays open.
	require.Equal(t, StatusReceiving, result.Status)
	require.Contains(t, audit.actions(), "ASN_PROCESS_ALL_LINE:FAILED")
}

func TestProcessAllSecondRunReportsNothingAvailable(t *testing.T) {
	svc, _, _, _ := newTestEngine(t)
	ctx := context.Background()
	header, lines := createArrivedASN(t, svc, 10)

	_, err := svc.Receive(ctx, ReceiveInput{LineID: lines[0].ID, ReceivedQuantity: 10, ActorID: 42})
	require.NoError(t, err)

	_, err = svc.ProcessAll(ctx, ProcessAllInput{ASNID: header.ID, DefaultLocation: "RCV-01", DefaultCondition: inventory.ConditionGood, ActorID: 42})
	require.NoError(t, err)

	result, err := svc.ProcessAll(ctx, ProcessAllInput{ASNID: header.ID, DefaultLocation: "RCV-01", DefaultCondition: inventory.ConditionGood, ActorID: 42})
	require.ErrorIs(t, err, ErrNoLinesAvailable)
	require.Zero(t, result.ProcessedLines)
	require.Zero(t, result.TotalQuantity)
}

func TestOverrideStatusBypassesTransitionTable(t *testing.T) {
	svc, repo, _, audit := newTestEngine(t)
	ctx := context.Background()

	header, err := svc.Create(ctx, CreateInput{SupplierID: 7, ActorID: 42})
	require.NoError(t, err)

	require.NoError(t, svc.OverrideStatus(ctx, header.ID, StatusCompleted, 99))
	stored := repo.asns[header.ID]
	require.Equal(t, StatusCompleted, stored.Status)
	require.NotNil(t, stored.CompletedAt)
	require.Contains(t, audit.actions(), "ASN_STATUS_OVERRIDE")
}

func TestAddLineAssignsSequentialNumbers(t *testing.T) {
	svc, _, _, _ := newTestEngine(t)
	ctx := context.Background()

	header, err := svc.Create(ctx, CreateInput{SupplierID: 7, ActorID: 42})
	require.NoError(t, err)
	first, err := svc.AddLine(ctx, AddLineInput{ASNID: header.ID, SKU: "A-100", Quantity: 5, ActorID: 42})
	require.NoError(t, err)
	second, err := svc.AddLine(ctx, AddLineInput{ASNID: header.ID, SKU: "B-100", Quantity: 5, ActorID: 42})
	require.NoError(t, err)
	require.Equal(t, 1, first.LineNumber)
	require.Equal(t, 2, second.LineNumber)

	// Numbers are never reused after a delete.
	require.NoError(t, svc.DeleteLine(ctx, second.ID, 42))
	third, err := svc.AddLine(ctx, AddLineInput{ASNID: header.ID, SKU: "C-100", Quantity: 5, ActorID: 42})
	require.NoError(t, err)
	require.Equal(t, 3, third.LineNumber)
}

func TestUpdateLineQuantityCannotDropBelowReceived(t *testing.T) {
	svc, _, _, _ := newTestEngine(t)
	ctx := context.Background()
	header, lines := createArrivedASN(t, svc, 10)

	_, err := svc.Receive(ctx, ReceiveInput{LineID: lines[0].ID, ReceivedQuantity: 6, ActorID: 42})
	require.NoError(t, err)
	require.NoError(t, svc.OverrideStatus(ctx, header.ID, StatusConfirmed, 99))

	var verr *ValidationError
	_, err = svc.UpdateLine(ctx, UpdateLineInput{LineID: lines[0].ID, SKU: lines[0].SKU, Quantity: 5, ActorID: 42})
	require.ErrorAs(t, err, &verr)

	updated, err := svc.UpdateLine(ctx, UpdateLineInput{LineID: lines[0].ID, SKU: lines[0].SKU, Quantity: 6, ActorID: 42})
	require.NoError(t, err)
	require.Equal(t, int64(6), updated.Quantity)
}

func TestDeleteLineWithReceivedQuantityBlocked(t *testing.T) {
	svc, _, _, _ := newTestEngine(t)
	ctx := context.Background()
	_, lines := createArrivedASN(t, svc, 10)

	_, err := svc.Receive(ctx, ReceiveInput{LineID: lines[0].ID, ReceivedQuantity: 1, ActorID: 42})
	require.NoError(t, err)

	var serr *StateError
	err = svc.DeleteLine(ctx, lines[0].ID, 42)
	require.ErrorAs(t, err, &serr)
}

func TestDeleteRequiresSubstantialReason(t *testing.T) {
	svc, _, _, _ := newTestEngine(t)
	ctx := context.Background()
	header, _ := createArrivedASN(t, svc, 10)

	var verr *ValidationError
	_, err := svc.Delete(ctx, DeleteInput{ASNID: header.ID, Reason: "short", ActorID: 42})
	require.ErrorAs(t, err, &verr)
}

func TestDeleteCollectsEveryBlockingReason(t *testing.T) {
	svc, _, _, _ := newTestEngine(t)
	ctx := context.Background()
	header, lines := createArrivedASN(t, svc, 10)

	_, err := svc.Receive(ctx, ReceiveInput{LineID: lines[0].ID, ReceivedQuantity: 10, ActorID: 42})
	require.NoError(t, err)
	_, err = svc.ProcessLine(ctx, ProcessInput{LineID: lines[0].ID, Quantity: 4, Location: "A-01-01", Condition: inventory.ConditionGood, ActorID: 42})
	require.NoError(t, err)

	var derr *DeletionBlockedError
	_, err = svc.Delete(ctx, DeleteInput{ASNID: header.ID, Reason: "duplicate shipment notice", ActorID: 42})
	require.ErrorAs(t, err, &derr)
	require.Len(t, derr.Reasons, 3)
}

func TestDeleteSoftDeletesAndWritesAuditSnapshot(t *testing.T) {
	svc, repo, _, _ := newTestEngine(t)
	ctx := context.Background()
	header, lines := createArrivedASN(t, svc, 10, 4)

	_, err := svc.Receive(ctx, ReceiveInput{LineID: lines[0].ID, ReceivedQuantity: 3, ActorID: 42})
	require.NoError(t, err)

	auditID, err := svc.Delete(ctx, DeleteInput{ASNID: header.ID, Reason: "supplier cancelled the shipment", ActorID: 42})
	require.NoError(t, err)
	require.NotEqual(t, "00000000-0000-0000-0000-000000000000", auditID.String())

	_, err = svc.Get(ctx, header.ID)
	require.ErrorIs(t, err, ErrNotFound)
	for _, line := range lines {
		require.NotNil(t, repo.lines[line.ID].DeletedAt)
	}

	require.Len(t, repo.audits, 1)
	audit := repo.audits[0]
	require.Equal(t, header.ID, audit.ASNID)
	require.Equal(t, 2, audit.TotalLines)
	require.Equal(t, int64(14), audit.TotalExpected)
	require.Equal(t, int64(3), audit.TotalReceived)
	require.Contains(t, string(audit.LinesSnapshot), lines[0].SKU)
}

func TestAddLineRejectedOutsideEditableStates(t *testing.T) {
	svc, _, _, _ := newTestEngine(t)
	ctx := context.Background()
	header, _ := createArrivedASN(t, svc, 10)

	var serr *StateError
	_, err := svc.AddLine(ctx, AddLineInput{ASNID: header.ID, SKU: "Z-900", Quantity: 1, ActorID: 42})
	require.ErrorAs(t, err, &serr)
}
