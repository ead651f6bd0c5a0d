package ledger

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/atlas-wms/atlas-wms/internal/platform/httpx"
	"github.com/atlas-wms/atlas-wms/internal/rbac"
)

// Handler exposes the append-only ledger for audit review.
type Handler struct {
	logger *slog.Logger
	repo   *Repository
	rbac   rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, repo *Repository, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, repo: repo, rbac: rbac}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny("asn.view"))
		r.Get("/ledger/asn/{id}", h.handleListByASN)
	})
}

func (h *Handler) handleListByASN(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Request", "invalid id")
		return
	}
	entries, err := h.repo.ListByASN(r.Context(), id)
	if err != nil {
		h.logger.Error("list ledger entries", slog.Any("error", err), slog.Int64("asn_id", id))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	items := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		item := map[string]any{
			"id":         entry.ID,
			"sku":        entry.SKU,
			"entry_type": string(entry.Type),
			"quantity":   entry.Quantity,
			"reference": map[string]any{
				"type":    string(entry.Reference.Kind),
				"asn_id":  entry.Reference.ASNID,
				"line_id": entry.Reference.LineID,
			},
			"location":   entry.Location,
			"lot_number": entry.LotNumber,
			"condition":  entry.ConditionStatus,
			"created_by": entry.CreatedBy,
			"created_at": entry.CreatedAt,
		}
		if !entry.ExpiryDate.IsZero() {
			item["expiry_date"] = entry.ExpiryDate.Format("2006-01-02")
		}
		items = append(items, item)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}
