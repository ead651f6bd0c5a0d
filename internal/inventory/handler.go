package inventory

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/atlas-wms/atlas-wms/internal/platform/httpx"
	"github.com/atlas-wms/atlas-wms/internal/rbac"
)

// Handler exposes read-only inventory endpoints. Stock only changes through
// receipt posting, never through direct writes.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny("inventory.view"))
		r.Get("/inventory", h.handleList)
		r.Get("/inventory/{sku}", h.handleGet)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	records, err := h.service.List(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("list inventory", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	items := make([]map[string]any, 0, len(records))
	for _, record := range records {
		items = append(items, recordResponse(record))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	sku := chi.URLParam(r, "sku")
	record, err := h.service.GetBySKU(r.Context(), sku)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "no inventory record for "+sku)
			return
		}
		h.logger.Error("get inventory", slog.Any("error", err), slog.String("sku", sku))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, recordResponse(record))
}

func recordResponse(record Record) map[string]any {
	return map[string]any{
		"id":         record.ID,
		"sku":        record.SKU,
		"on_hand":    record.OnHand,
		"available":  record.Available,
		"reserved":   record.Reserved,
		"location":   record.Location,
		"unit_cost":  record.UnitCost,
		"updated_at": record.UpdatedAt,
	}
}
