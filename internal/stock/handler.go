package stock

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-ims/meridian/internal/platform/httpx"
	"github.com/meridian-ims/meridian/internal/rbac"
	"github.com/meridian-ims/meridian/internal/shared"
)

// Handler exposes ledger queries and manual mutations.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	rbac     rbac.Middleware
	validate *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, validate: validator.New()}
}

// MountRoutes registers stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermStockView))
		r.Get("/levels", h.level)
		r.Get("/products/{productID}/availability", h.availability)
		r.Get("/products/{productID}/total", h.total)
		r.Get("/low", h.lowStock)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermStockEdit))
		r.Put("/levels", h.setLevel)
		r.Post("/transfers", h.transfer)
	})
}

type setLevelRequest struct {
	ProductID   int64 `json:"product_id" validate:"required,gt=0"`
	WarehouseID int64 `json:"warehouse_id" validate:"required,gt=0"`
	Qty         int64 `json:"qty" validate:"gte=0"`
}

type transferRequest struct {
	ProductID      int64  `json:"product_id" validate:"required,gt=0"`
	SourceID       int64  `json:"source_warehouse_id" validate:"required,gt=0"`
	DestinationID  int64  `json:"destination_warehouse_id" validate:"required,gt=0"`
	Qty            int64  `json:"qty" validate:"required,gt=0"`
	IdempotencyKey string `json:"idempotency_key"`
}

func (h *Handler) level(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	productID, _ := strconv.ParseInt(q.Get("product_id"), 10, 64)
	warehouseID, _ := strconv.ParseInt(q.Get("warehouse_id"), 10, 64)
	if productID <= 0 || warehouseID <= 0 {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	level, err := h.service.LevelIn(r.Context(), productID, warehouseID)
	if err != nil {
		h.logger.Error("get level", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, level)
}

func (h *Handler) availability(w http.ResponseWriter, r *http.Request) {
	productID, err := pathProductID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	levels, err := h.service.Availability(r.Context(), productID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"product_id": productID, "levels": levels})
}

func (h *Handler) total(w http.ResponseWriter, r *http.Request) {
	productID, err := pathProductID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	total, err := h.service.TotalOnHand(r.Context(), productID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"product_id": productID, "total_on_hand": total})
}

func (h *Handler) lowStock(w http.ResponseWriter, r *http.Request) {
	threshold, _ := strconv.ParseInt(r.URL.Query().Get("threshold"), 10, 64)
	if threshold <= 0 {
		threshold = 10
	}
	rows, err := h.service.LowStock(r.Context(), threshold)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"threshold": threshold, "rows": rows})
}

func (h *Handler) setLevel(w http.ResponseWriter, r *http.Request) {
	var req setLevelRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", shared.UserSafeMessage(err))
		return
	}
	level, err := h.service.SetLevel(r.Context(), req.ProductID, req.WarehouseID, req.Qty)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, level)
}

func (h *Handler) transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", shared.UserSafeMessage(err))
		return
	}
	if err := h.service.Transfer(r.Context(), req.ProductID, req.SourceID, req.DestinationID, req.Qty, req.IdempotencyKey); err != nil {
		if errors.Is(err, shared.ErrIdempotencyConflict) {
			httpx.Problem(w, http.StatusConflict, "Duplicate", shared.UserSafeMessage(err))
			return
		}
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathProductID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil || id <= 0 {
		return 0, httpx.ErrValidation
	}
	return id, nil
}
