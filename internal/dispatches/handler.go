package dispatches

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/veta-logistics/veta/internal/platform/httpx"
	"github.com/veta-logistics/veta/internal/shared"
)

// Handler exposes the dispatch endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers dispatch routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.update)
	r.Delete("/{id}", h.delete)
	r.Post("/{id}/despachar", h.commitToTransit)
	r.Post("/{id}/entregar", h.markDelivered)
	r.Post("/{id}/anular", h.cancel)
}

type lineRequest struct {
	ProductID int64  `json:"id_producto" validate:"required,gt=0"`
	UnitID    int64  `json:"id_medida" validate:"required,gt=0"`
	Quantity  int64  `json:"cantidad" validate:"required,gt=0"`
	Note      string `json:"observaciones" validate:"max=500"`
}

type createRequest struct {
	MineID       int64         `json:"id_mina" validate:"required,gt=0"`
	SupervisorID *int64        `json:"id_supervisor" validate:"omitempty,gt=0"`
	TripID       *int64        `json:"id_viaje" validate:"omitempty,gt=0"`
	Notes        string        `json:"observaciones" validate:"max=1000"`
	Lines        []lineRequest `json:"detalles" validate:"required,min=1,dive"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	created, err := h.service.Create(r.Context(), CreateInput{
		MineID:       req.MineID,
		SupervisorID: req.SupervisorID,
		TripID:       req.TripID,
		Notes:        req.Notes,
		Lines:        toLineInputs(req.Lines),
		Actor:        shared.ActorFromContext(r.Context()).Name(),
	})
	if err != nil {
		h.logger.Error("create dispatch", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mineID, _ := strconv.ParseInt(q.Get("id_mina"), 10, 64)
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	dispatches, total, err := h.service.List(r.Context(), ListFilter{
		Status:  Status(q.Get("estado")),
		MineID:  mineID,
		Page:    page,
		PerPage: perPage,
	})
	if err != nil {
		h.logger.Error("list dispatches", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data":       dispatches,
		"pagination": shared.NewPagination(page, perPage, total),
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	d, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

type updateRequest struct {
	MineID       *int64         `json:"id_mina" validate:"omitempty,gt=0"`
	SupervisorID *int64         `json:"id_supervisor" validate:"omitempty,gt=0"`
	TripID       *int64         `json:"id_viaje" validate:"omitempty,gt=0"`
	Notes        *string        `json:"observaciones"`
	Lines        *[]lineRequest `json:"detalles" validate:"omitempty,min=1,dive"`
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	var req updateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := UpdateInput{
		MineID:       req.MineID,
		SupervisorID: req.SupervisorID,
		TripID:       req.TripID,
		Notes:        req.Notes,
		Actor:        shared.ActorFromContext(r.Context()).Name(),
	}
	if req.Lines != nil {
		lines := toLineInputs(*req.Lines)
		input.Lines = &lines
	}
	updated, err := h.service.Update(r.Context(), id, input)
	if err != nil {
		h.logger.Error("update dispatch", slog.Any("error", err), slog.Int64("id_despacho", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id, shared.ActorFromContext(r.Context()).Name()); err != nil {
		h.logger.Error("delete dispatch", slog.Any("error", err), slog.Int64("id_despacho", id))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type transitionRequest struct {
	At *time.Time `json:"fecha"`
}

func (h *Handler) commitToTransit(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	var req transitionRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
			return
		}
	}
	d, err := h.service.CommitToTransit(r.Context(), id, req.At, shared.ActorFromContext(r.Context()).Name())
	if err != nil {
		h.logger.Error("commit dispatch", slog.Any("error", err), slog.Int64("id_despacho", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) markDelivered(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	var req transitionRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
			return
		}
	}
	d, err := h.service.MarkDelivered(r.Context(), id, req.At, shared.ActorFromContext(r.Context()).Name())
	if err != nil {
		h.logger.Error("deliver dispatch", slog.Any("error", err), slog.Int64("id_despacho", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

type cancelRequest struct {
	Reason string `json:"motivo_anulacion" validate:"required,min=10,max=500"`
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	var req cancelRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	d, err := h.service.Cancel(r.Context(), id, req.Reason, shared.ActorFromContext(r.Context()).Name())
	if err != nil {
		h.logger.Error("cancel dispatch", slog.Any("error", err), slog.Int64("id_despacho", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return 0, false
	}
	return id, true
}

func toLineInputs(lines []lineRequest) []LineInput {
	out := make([]LineInput, 0, len(lines))
	for _, l := range lines {
		out = append(out, LineInput{
			ProductID: l.ProductID,
			UnitID:    l.UnitID,
			Quantity:  l.Quantity,
			Note:      l.Note,
		})
	}
	return out
}
