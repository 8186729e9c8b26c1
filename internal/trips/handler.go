package trips

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

// Handler exposes the trip endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers trip routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.register)
	r.Get("/", h.listByRequirement)
	r.Get("/{id}", h.get)
}

type registerLineRequest struct {
	RequirementLineID int64   `json:"id_detalle_requerimiento" validate:"required,gt=0"`
	QuantityReceived  int64   `json:"cantidad_recibida" validate:"required,gt=0"`
	Outcome           Outcome `json:"resultado" validate:"required"`
	Note              string  `json:"observaciones" validate:"max=500"`
}

type registerRequest struct {
	RequirementID int64                 `json:"id_requerimiento" validate:"required,gt=0"`
	VehiclePlate  string                `json:"placa_vehiculo" validate:"required,max=20"`
	Driver        string                `json:"conductor" validate:"required,max=120"`
	IngressDate   *time.Time            `json:"fecha_ingreso"`
	Notes         string                `json:"observaciones" validate:"max=1000"`
	Lines         []registerLineRequest `json:"detalles" validate:"required,min=1,dive"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := RegisterInput{
		RequirementID: req.RequirementID,
		VehiclePlate:  req.VehiclePlate,
		Driver:        req.Driver,
		Notes:         req.Notes,
		Actor:         shared.ActorFromContext(r.Context()).Name(),
	}
	if req.IngressDate != nil {
		input.IngressDate = *req.IngressDate
	}
	for _, l := range req.Lines {
		input.Lines = append(input.Lines, LineInput{
			RequirementLineID: l.RequirementLineID,
			QuantityReceived:  l.QuantityReceived,
			Outcome:           l.Outcome,
			Note:              l.Note,
		})
	}
	trip, err := h.service.RegisterTrip(r.Context(), input)
	if err != nil {
		h.logger.Error("register trip", slog.Any("error", err), slog.Int64("id_requerimiento", req.RequirementID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, trip)
}

func (h *Handler) listByRequirement(w http.ResponseWriter, r *http.Request) {
	requirementID, err := strconv.ParseInt(r.URL.Query().Get("id_requerimiento"), 10, 64)
	if err != nil || requirementID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "id_requerimiento is required")
		return
	}
	trips, err := h.service.ListByRequirement(r.Context(), requirementID)
	if err != nil {
		h.logger.Error("list trips", slog.Any("error", err), slog.Int64("id_requerimiento", requirementID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": trips})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return
	}
	trip, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, trip)
}
