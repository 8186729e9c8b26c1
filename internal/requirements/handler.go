package requirements

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/veta-logistics/veta/internal/platform/httpx"
	"github.com/veta-logistics/veta/internal/shared"
)

// Handler exposes the requirement endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers requirement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.updateHeader)
	r.Patch("/{id}/estado", h.setStatus)
	r.Get("/{id}/progreso", h.progress)
}

type createLineRequest struct {
	ProductID         int64           `json:"id_producto" validate:"required,gt=0"`
	QuantitySolicited int64           `json:"cantidad_solicitada" validate:"required,gt=0"`
	SupplierPrice     decimal.Decimal `json:"precio_proveedor"`
	MinePrice         decimal.Decimal `json:"precio_mina"`
	Note              string          `json:"observaciones" validate:"max=500"`
}

type createRequest struct {
	SupplierID   int64               `json:"id_proveedor" validate:"required,gt=0"`
	MineID       int64               `json:"id_mina" validate:"required,gt=0"`
	SupervisorID int64               `json:"id_supervisor" validate:"required,gt=0"`
	IssueDate    *time.Time          `json:"fecha_emision"`
	PromisedDate *time.Time          `json:"fecha_prometida"`
	Notes        string              `json:"observaciones" validate:"max=1000"`
	Lines        []createLineRequest `json:"detalles" validate:"required,min=1,dive"`
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
	input := CreateInput{
		SupplierID:   req.SupplierID,
		MineID:       req.MineID,
		SupervisorID: req.SupervisorID,
		PromisedDate: req.PromisedDate,
		Notes:        req.Notes,
		Actor:        shared.ActorFromContext(r.Context()).Name(),
	}
	if req.IssueDate != nil {
		input.IssueDate = *req.IssueDate
	}
	for _, l := range req.Lines {
		input.Lines = append(input.Lines, LineInput{
			ProductID:         l.ProductID,
			QuantitySolicited: l.QuantitySolicited,
			SupplierPrice:     l.SupplierPrice,
			MinePrice:         l.MinePrice,
			Note:              l.Note,
		})
	}
	created, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.logger.Error("create requirement", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	supplierID, _ := strconv.ParseInt(q.Get("id_proveedor"), 10, 64)
	mineID, _ := strconv.ParseInt(q.Get("id_mina"), 10, 64)
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	reqs, total, err := h.service.List(r.Context(), ListFilter{
		Status:     Status(q.Get("estado")),
		SupplierID: supplierID,
		MineID:     mineID,
		Page:       page,
		PerPage:    perPage,
	})
	if err != nil {
		h.logger.Error("list requirements", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data":       reqs,
		"pagination": shared.NewPagination(page, perPage, total),
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	req, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, req)
}

type updateHeaderRequest struct {
	SupplierID   *int64     `json:"id_proveedor" validate:"omitempty,gt=0"`
	MineID       *int64     `json:"id_mina" validate:"omitempty,gt=0"`
	SupervisorID *int64     `json:"id_supervisor" validate:"omitempty,gt=0"`
	IssueDate    *time.Time `json:"fecha_emision"`
	PromisedDate *time.Time `json:"fecha_prometida"`
	Notes        *string    `json:"observaciones"`
}

func (h *Handler) updateHeader(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	var req updateHeaderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	updated, err := h.service.UpdateHeader(r.Context(), id, UpdateHeaderInput{
		SupplierID:   req.SupplierID,
		MineID:       req.MineID,
		SupervisorID: req.SupervisorID,
		IssueDate:    req.IssueDate,
		PromisedDate: req.PromisedDate,
		Notes:        req.Notes,
		Actor:        shared.ActorFromContext(r.Context()).Name(),
	})
	if err != nil {
		h.logger.Error("update requirement", slog.Any("error", err), slog.Int64("id_requerimiento", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

type setStatusRequest struct {
	Status Status `json:"estado" validate:"required"`
	Reason string `json:"motivo_anulacion" validate:"max=500"`
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	var req setStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	updated, err := h.service.SetStatus(r.Context(), id, req.Status, req.Reason, shared.ActorFromContext(r.Context()).Name())
	if err != nil {
		h.logger.Error("set requirement status", slog.Any("error", err), slog.Int64("id_requerimiento", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) progress(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	progress, err := h.service.GetProgress(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, progress)
}

func (h *Handler) idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return 0, false
	}
	return id, true
}
