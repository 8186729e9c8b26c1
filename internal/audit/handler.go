package audit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/veta-logistics/veta/internal/platform/httpx"
	"github.com/veta-logistics/veta/internal/shared"
)

// Handler exposes the audit trail endpoint.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	actorID, _ := strconv.ParseInt(q.Get("actor_id"), 10, 64)

	filters := Filters{
		ActorID: actorID,
		Action:  q.Get("accion"),
		Entity:  q.Get("entidad"),
		Page:    page,
		PerPage: perPage,
	}
	if v := q.Get("fecha_inicio"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "fecha_inicio must be YYYY-MM-DD")
			return
		}
		filters.From = t
	}
	if v := q.Get("fecha_fin"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "fecha_fin must be YYYY-MM-DD")
			return
		}
		filters.To = t.Add(24*time.Hour - time.Nanosecond)
	}

	entries, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list audit trail", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data":       entries,
		"pagination": shared.NewPagination(page, perPage, total),
	})
}
