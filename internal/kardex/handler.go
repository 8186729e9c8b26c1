package kardex

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

// Handler exposes the inventory endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	cache    *StockCache
	validate *validator.Validate
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service, cache *StockCache, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, cache: cache, validate: validate}
}

// MountRoutes registers inventory routes. Manual adjustments go through the
// supplied middleware so the caller decides who may post them.
func (h *Handler) MountRoutes(r chi.Router, adjustGuard func(http.Handler) http.Handler) {
	r.Get("/stock", h.listStock)
	r.Get("/stock/{productID}", h.getStock)
	r.Get("/kardex", h.listMovements)
	r.With(adjustGuard).Post("/ajustes", h.createAdjustment)
}

func (h *Handler) listStock(w http.ResponseWriter, r *http.Request) {
	totals, err := h.service.StockTotals(r.Context())
	if err != nil {
		h.logger.Error("list stock", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": totals})
}

func (h *Handler) getStock(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil || productID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid product id")
		return
	}
	if stock, ok := h.cache.Get(r.Context(), productID); ok {
		httpx.JSON(w, http.StatusOK, StockTotal{ProductID: productID, Stock: stock})
		return
	}
	stock, err := h.service.CurrentStock(r.Context(), productID)
	if err != nil {
		h.logger.Error("current stock", slog.Any("error", err), slog.Int64("id_producto", productID))
		httpx.RespondError(w, err)
		return
	}
	_ = h.cache.Set(r.Context(), productID, stock)
	httpx.JSON(w, http.StatusOK, StockTotal{ProductID: productID, Stock: stock})
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	productID, _ := strconv.ParseInt(q.Get("id_producto"), 10, 64)
	limit, _ := strconv.Atoi(q.Get("limit"))
	filter := HistoryFilter{
		ProductID: productID,
		Kind:      MovementKind(q.Get("tipo")),
		Limit:     limit,
	}
	if raw := q.Get("fecha_inicio"); raw != "" {
		if t, err := time.Parse("2006-01-02", raw); err == nil {
			filter.From = t
		}
	}
	if raw := q.Get("fecha_fin"); raw != "" {
		if t, err := time.Parse("2006-01-02", raw); err == nil {
			filter.To = t.Add(24*time.Hour - time.Nanosecond)
		}
	}
	movements, err := h.service.History(r.Context(), filter)
	if err != nil {
		h.logger.Error("kardex history", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": movements})
}

type adjustmentRequest struct {
	ProductID int64        `json:"id_producto" validate:"required,gt=0"`
	Kind      MovementKind `json:"tipo_movimiento" validate:"required"`
	Quantity  int64        `json:"cantidad" validate:"required"`
	Note      string       `json:"observaciones" validate:"max=500"`
}

func (h *Handler) createAdjustment(w http.ResponseWriter, r *http.Request) {
	var req adjustmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor := shared.ActorFromContext(r.Context())
	movement, err := h.service.RecordMovement(r.Context(), RecordInput{
		ProductID: req.ProductID,
		Kind:      req.Kind,
		Quantity:  req.Quantity,
		Note:      req.Note,
		Actor:     actor.Name(),
	})
	if err != nil {
		h.logger.Error("record adjustment", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, movement)
}
