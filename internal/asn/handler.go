package asn

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/atlas-wms/atlas-wms/internal/inventory"
	"github.com/atlas-wms/atlas-wms/internal/platform/httpx"
	"github.com/atlas-wms/atlas-wms/internal/rbac"
	"github.com/atlas-wms/atlas-wms/internal/shared"
)

// Handler exposes the reconciliation engine as a JSON API.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	validate    *validator.Validate
	rbac        rbac.Middleware
	idempotency *shared.IdempotencyStore
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware, idempotency *shared.IdempotencyStore) *Handler {
	return &Handler{
		logger:      logger,
		service:     service,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		rbac:        rbac,
		idempotency: idempotency,
	}
}

// MountRoutes registers ASN routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny("asn.view"))
		r.Get("/asns", h.handleList)
		r.Get("/asns/{id}", h.handleGet)
		r.Get("/asns/{id}/lines", h.handleListLines)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll("asn.edit"))
		r.Post("/asns", h.handleCreate)
		r.Put("/asns/{id}", h.handleUpdate)
		r.Post("/asns/{id}/confirm", h.transitionTo(StatusConfirmed))
		r.Post("/asns/{id}/transit", h.transitionTo(StatusInTransit))
		r.Post("/asns/{id}/arrive", h.transitionTo(StatusArrived))
		r.Post("/asns/{id}/cancel", h.transitionTo(StatusCancelled))
		r.Post("/asns/{id}/lines", h.handleAddLine)
		r.Put("/asns/lines/{lineID}", h.handleUpdateLine)
		r.Delete("/asns/lines/{lineID}", h.handleDeleteLine)
		r.Post("/asns/lines/{lineID}/receive", h.handleReceive)
		r.Post("/asns/lines/{lineID}/process", h.handleProcess)
		r.Post("/asns/{id}/process-all", h.handleProcessAll)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll("asn.delete"))
		r.Delete("/asns/{id}", h.handleDelete)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll("asn.override"))
		r.Post("/asns/{id}/status", h.handleOverrideStatus)
	})
}

type createRequest struct {
	Number       string `json:"number"`
	SupplierID   int64  `json:"supplier_id" validate:"required,gt=0"`
	Priority     string `json:"priority" validate:"omitempty,oneof=low normal high"`
	ExpectedDate string `json:"expected_date" validate:"omitempty,datetime=2006-01-02"`
	Notes        string `json:"notes"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !h.decode(w, r, &req) {
		return
	}
	expected, _ := time.Parse("2006-01-02", req.ExpectedDate)
	header, err := h.service.Create(r.Context(), CreateInput{
		Number:       req.Number,
		SupplierID:   req.SupplierID,
		Priority:     Priority(req.Priority),
		ExpectedDate: expected,
		Notes:        req.Notes,
		ActorID:      currentUser(r),
	})
	if err != nil {
		h.respondError(w, r, "create asn", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, asnResponse(header))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page <= 0 {
		page = 1
	}
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if perPage <= 0 || perPage > 100 {
		perPage = 20
	}
	supplierID, _ := strconv.ParseInt(r.URL.Query().Get("supplier_id"), 10, 64)
	filters := ListFilters{
		Status:     r.URL.Query().Get("status"),
		SupplierID: supplierID,
		Search:     r.URL.Query().Get("search"),
	}
	headers, total, err := h.service.List(r.Context(), filters, perPage, (page-1)*perPage)
	if err != nil {
		h.respondError(w, r, "list asns", err)
		return
	}
	items := make([]map[string]any, 0, len(headers))
	for _, header := range headers {
		items = append(items, asnResponse(header))
	}
	p := shared.NewPagination(page, perPage, total)
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items":       items,
		"total":       p.Total,
		"page":        p.Page,
		"per_page":    p.PerPage,
		"total_pages": p.TotalPages,
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var header ASN
	var lines []LineView
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		header, err = h.service.Get(ctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		lines, err = h.service.ListLines(ctx, id)
		return err
	})
	if err := g.Wait(); err != nil {
		h.respondError(w, r, "get asn", err)
		return
	}
	body := asnResponse(header)
	lineItems := make([]map[string]any, 0, len(lines))
	for _, view := range lines {
		lineItems = append(lineItems, lineResponse(view))
	}
	body["lines"] = lineItems
	httpx.JSON(w, http.StatusOK, body)
}

type updateRequest struct {
	SupplierID   int64  `json:"supplier_id" validate:"omitempty,gt=0"`
	Priority     string `json:"priority" validate:"omitempty,oneof=low normal high"`
	ExpectedDate string `json:"expected_date" validate:"omitempty,datetime=2006-01-02"`
	Notes        string `json:"notes"`
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req updateRequest
	if !h.decode(w, r, &req) {
		return
	}
	expected, _ := time.Parse("2006-01-02", req.ExpectedDate)
	header, err := h.service.UpdateHeader(r.Context(), UpdateHeaderInput{
		ASNID:        id,
		SupplierID:   req.SupplierID,
		Priority:     Priority(req.Priority),
		ExpectedDate: expected,
		Notes:        req.Notes,
		ActorID:      currentUser(r),
	})
	if err != nil {
		h.respondError(w, r, "update asn", err)
		return
	}
	httpx.JSON(w, http.StatusOK, asnResponse(header))
}

func (h *Handler) transitionTo(to Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.pathID(w, r, "id")
		if !ok {
			return
		}
		if err := h.service.Transition(r.Context(), id, to, currentUser(r)); err != nil {
			h.respondError(w, r, "transition asn", err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"id": id, "status": string(to)})
	}
}

type overrideRequest struct {
	Status string `json:"status" validate:"required"`
}

func (h *Handler) handleOverrideStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req overrideRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.OverrideStatus(r.Context(), id, Status(req.Status), currentUser(r)); err != nil {
		h.respondError(w, r, "override asn status", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": id, "status": req.Status})
}

type lineRequest struct {
	SKU         string  `json:"sku" validate:"required"`
	Description string  `json:"description"`
	Quantity    int64   `json:"quantity" validate:"required,gt=0"`
	UnitCost    float64 `json:"unit_cost" validate:"gte=0"`
	UOM         string  `json:"uom"`
	LotNumber   string  `json:"lot_number"`
	ExpiryDate  string  `json:"expiry_date" validate:"omitempty,datetime=2006-01-02"`
	Notes       string  `json:"notes"`
}

func (h *Handler) handleAddLine(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req lineRequest
	if !h.decode(w, r, &req) {
		return
	}
	expiry, _ := time.Parse("2006-01-02", req.ExpiryDate)
	line, err := h.service.AddLine(r.Context(), AddLineInput{
		ASNID:       id,
		SKU:         req.SKU,
		Description: req.Description,
		Quantity:    req.Quantity,
		UnitCost:    req.UnitCost,
		UOM:         req.UOM,
		LotNumber:   req.LotNumber,
		ExpiryDate:  expiry,
		Notes:       req.Notes,
		ActorID:     currentUser(r),
	})
	if err != nil {
		h.respondError(w, r, "add line", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, lineResponse(LineView{Line: line, Receive: line.ReceiveStatus(), Process: line.ProcessStatus()}))
}

func (h *Handler) handleUpdateLine(w http.ResponseWriter, r *http.Request) {
	lineID, ok := h.pathID(w, r, "lineID")
	if !ok {
		return
	}
	var req lineRequest
	if !h.decode(w, r, &req) {
		return
	}
	expiry, _ := time.Parse("2006-01-02", req.ExpiryDate)
	line, err := h.service.UpdateLine(r.Context(), UpdateLineInput{
		LineID:      lineID,
		SKU:         req.SKU,
		Description: req.Description,
		Quantity:    req.Quantity,
		UnitCost:    req.UnitCost,
		UOM:         req.UOM,
		LotNumber:   req.LotNumber,
		ExpiryDate:  expiry,
		Notes:       req.Notes,
		ActorID:     currentUser(r),
	})
	if err != nil {
		h.respondError(w, r, "update line", err)
		return
	}
	httpx.JSON(w, http.StatusOK, lineResponse(LineView{Line: line, Receive: line.ReceiveStatus(), Process: line.ProcessStatus()}))
}

func (h *Handler) handleDeleteLine(w http.ResponseWriter, r *http.Request) {
	lineID, ok := h.pathID(w, r, "lineID")
	if !ok {
		return
	}
	if err := h.service.DeleteLine(r.Context(), lineID, currentUser(r)); err != nil {
		h.respondError(w, r, "delete line", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListLines(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	views, err := h.service.ListLines(r.Context(), id)
	if err != nil {
		h.respondError(w, r, "list lines", err)
		return
	}
	items := make([]map[string]any, 0, len(views))
	for _, view := range views {
		items = append(items, lineResponse(view))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

type receiveRequest struct {
	ReceivedQuantity int64 `json:"received_quantity" validate:"gte=0"`
}

func (h *Handler) handleReceive(w http.ResponseWriter, r *http.Request) {
	lineID, ok := h.pathID(w, r, "lineID")
	if !ok {
		return
	}
	var req receiveRequest
	if !h.decode(w, r, &req) {
		return
	}
	line, err := h.service.Receive(r.Context(), ReceiveInput{
		LineID:           lineID,
		ReceivedQuantity: req.ReceivedQuantity,
		ActorID:          currentUser(r),
	})
	if err != nil {
		h.respondError(w, r, "receive line", err)
		return
	}
	httpx.JSON(w, http.StatusOK, lineResponse(LineView{Line: line, Receive: line.ReceiveStatus(), Process: line.ProcessStatus()}))
}

type processRequest struct {
	Quantity   int64  `json:"quantity" validate:"required,gt=0"`
	Location   string `json:"location" validate:"required"`
	LotNumber  string `json:"lot_number"`
	ExpiryDate string `json:"expiry_date" validate:"omitempty,datetime=2006-01-02"`
	Condition  string `json:"condition" validate:"required,oneof=good damaged expired quarantine"`
	Notes      string `json:"notes"`
}

func (h *Handler) handleProcess(w http.ResponseWriter, r *http.Request) {
	lineID, ok := h.pathID(w, r, "lineID")
	if !ok {
		return
	}
	if !h.checkIdempotency(w, r) {
		return
	}
	var req processRequest
	if !h.decode(w, r, &req) {
		return
	}
	expiry, _ := time.Parse("2006-01-02", req.ExpiryDate)
	result, err := h.service.ProcessLine(r.Context(), ProcessInput{
		LineID:     lineID,
		Quantity:   req.Quantity,
		Location:   req.Location,
		LotNumber:  req.LotNumber,
		ExpiryDate: expiry,
		Condition:  inventory.Condition(req.Condition),
		Notes:      req.Notes,
		ActorID:    currentUser(r),
	})
	if err != nil {
		h.respondError(w, r, "process line", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"processed_quantity": result.ProcessedQuantity,
		"total_processed":    result.TotalProcessed,
		"status":             string(result.Status),
	})
}

type processAllRequest struct {
	DefaultLocation  string `json:"default_location" validate:"required"`
	DefaultCondition string `json:"default_condition" validate:"required,oneof=good damaged expired quarantine"`
}

func (h *Handler) handleProcessAll(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	if !h.checkIdempotency(w, r) {
		return
	}
	var req processAllRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.service.ProcessAll(r.Context(), ProcessAllInput{
		ASNID:            id,
		DefaultLocation:  req.DefaultLocation,
		DefaultCondition: inventory.Condition(req.DefaultCondition),
		ActorID:          currentUser(r),
	})
	if err != nil {
		h.respondError(w, r, "process all lines", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"processed_lines": result.ProcessedLines,
		"total_quantity":  result.TotalQuantity,
		"skipped_lines":   result.SkippedLines,
		"status":          string(result.Status),
	})
}

type deleteRequest struct {
	Reason string `json:"reason" validate:"required,min=10"`
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req deleteRequest
	if !h.decode(w, r, &req) {
		return
	}
	auditID, err := h.service.Delete(r.Context(), DeleteInput{
		ASNID:   id,
		Reason:  req.Reason,
		ActorID: currentUser(r),
	})
	if err != nil {
		h.respondError(w, r, "delete asn", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deletion_audit_id": auditID.String()})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Request", "request body is not valid JSON")
		return false
	}
	if err := h.validate.Struct(target); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := map[string]string{}
			for _, fe := range verrs {
				fields[fe.Field()] = "failed validation on " + fe.Tag()
			}
			httpx.ValidationProblem(w, fields)
			return false
		}
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Request", "invalid "+name)
		return 0, false
	}
	return id, true
}

// checkIdempotency rejects replays of processing requests that carry an
// Idempotency-Key header. Requests without the header pass through.
func (h *Handler) checkIdempotency(w http.ResponseWriter, r *http.Request) bool {
	key := r.Header.Get("Idempotency-Key")
	if key == "" || h.idempotency == nil {
		return true
	}
	if err := h.idempotency.CheckAndInsert(r.Context(), key, "asn"); err != nil {
		if errors.Is(err, shared.ErrIdempotencyConflict) {
			httpx.Problem(w, http.StatusConflict, "Duplicate Request", "this request was already processed")
			return false
		}
		h.logger.Error("idempotency check", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return false
	}
	return true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	var verr *ValidationError
	var serr *StateError
	var derr *DeletionBlockedError
	switch {
	case errors.As(err, &verr):
		httpx.ValidationProblem(w, verr.Fields)
	case errors.As(err, &serr):
		httpx.Problem(w, http.StatusConflict, "State Conflict", serr.UserMessage())
	case errors.As(err, &derr):
		httpx.Problem(w, http.StatusConflict, "Deletion Blocked", derr.UserMessage())
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrLineNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrNoLinesAvailable):
		httpx.Problem(w, http.StatusConflict, "No Lines Available", shared.UserSafeMessage(err))
	case errors.Is(err, inventory.ErrAvailabilityInvariant):
		httpx.Problem(w, http.StatusConflict, "State Conflict", shared.UserSafeMessage(err))
	default:
		h.logger.Error(operation, slog.Any("error", err), slog.String("path", r.URL.Path))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func asnResponse(header ASN) map[string]any {
	body := map[string]any{
		"id":          header.ID,
		"number":      header.Number,
		"supplier_id": header.SupplierID,
		"status":      string(header.Status),
		"priority":    string(header.Priority),
		"notes":       header.Notes,
		"created_by":  header.CreatedBy,
		"created_at":  header.CreatedAt,
		"updated_at":  header.UpdatedAt,
	}
	if !header.ExpectedDate.IsZero() {
		body["expected_date"] = header.ExpectedDate.Format("2006-01-02")
	}
	if header.CompletedAt != nil {
		body["completed_at"] = header.CompletedAt
	}
	return body
}

func lineResponse(view LineView) map[string]any {
	body := map[string]any{
		"id":                 view.ID,
		"asn_id":             view.ASNID,
		"line_number":        view.LineNumber,
		"sku":                view.SKU,
		"description":        view.Description,
		"quantity":           view.Quantity,
		"received_quantity":  view.ReceivedQuantity,
		"processed_quantity": view.ProcessedQuantity,
		"unit_cost":          view.UnitCost,
		"uom":                view.UOM,
		"lot_number":         view.LotNumber,
		"notes":              view.Notes,
		"receive_status":     string(view.Receive),
		"process_status":     string(view.Process),
	}
	if !view.ExpiryDate.IsZero() {
		body["expiry_date"] = view.ExpiryDate.Format("2006-01-02")
	}
	if view.ProcessedLocation != "" {
		body["processed_location"] = view.ProcessedLocation
		body["processed_condition"] = view.ProcessedCondition
	}
	return body
}

func currentUser(r *http.Request) int64 {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return 0
	}
	id, _ := strconv.ParseInt(sess.User(), 10, 64)
	return id
}
