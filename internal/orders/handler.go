package orders

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ecobazaar/ordercore/internal/domain"
)

type Handler struct {
	engine *Engine
	logger *slog.Logger
}

func NewHandler(engine *Engine, logger *slog.Logger) *Handler {
	return &Handler{
		engine: engine,
		logger: logger,
	}
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.engine.CreateOrder(r.Context(), req)
	if err != nil {
		h.writeEngineError(w, err, "failed to create order")
		return
	}

	h.writeJSON(w, http.StatusCreated, order)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	order, err := h.engine.GetOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeEngineError(w, err, "failed to get order")
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleListByBuyer(w http.ResponseWriter, r *http.Request) {
	orders, err := h.engine.ListOrdersForBuyer(r.Context(), r.PathValue("buyerId"))
	if err != nil {
		h.writeEngineError(w, err, "failed to list buyer orders")
		return
	}

	h.writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) HandleListBySeller(w http.ResponseWriter, r *http.Request) {
	orders, err := h.engine.ListOrdersForSeller(r.Context(), r.PathValue("sellerId"))
	if err != nil {
		h.writeEngineError(w, err, "failed to list seller orders")
		return
	}

	h.writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	order, err := h.engine.CancelOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeEngineError(w, err, "failed to cancel order")
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleReturn(w http.ResponseWriter, r *http.Request) {
	order, err := h.engine.ReturnOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeEngineError(w, err, "failed to return order")
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleGetItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.engine.GetSellerItem(r.Context(),
		r.PathValue("id"), r.PathValue("sellerId"), r.PathValue("productId"))
	if err != nil {
		h.writeEngineError(w, err, "failed to get order item")
		return
	}

	h.writeJSON(w, http.StatusOK, item)
}

type updateItemStatusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) HandleUpdateItemStatus(w http.ResponseWriter, r *http.Request) {
	var req updateItemStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	status, err := domain.ParseStatus(req.Status)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	err = h.engine.UpdateItemStatus(r.Context(),
		r.PathValue("id"), r.PathValue("sellerId"), r.PathValue("productId"), status)
	if err != nil {
		h.writeEngineError(w, err, "failed to update item status")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"seller_status": string(status)})
}

func (h *Handler) writeEngineError(w http.ResponseWriter, err error, logMsg string) {
	var vErr *ValidationError
	switch {
	case errors.As(err, &vErr):
		h.writeError(w, http.StatusBadRequest, vErr.Error())
	case errors.Is(err, ErrOrderNotFound):
		h.writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, ErrItemNotFound):
		h.writeError(w, http.StatusNotFound, "order item not found")
	case errors.Is(err, ErrClosedOrder), errors.Is(err, ErrBadTransition):
		h.writeError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error(logMsg, "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
