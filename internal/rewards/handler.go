package rewards

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ecobazaar/ordercore/internal/domain"
)

type Handler struct {
	repo   *RewardsRepository
	logger *slog.Logger
}

func NewHandler(repo *RewardsRepository, logger *slog.Logger) *Handler {
	return &Handler{
		repo:   repo,
		logger: logger,
	}
}

// HandleGetBalance returns the user's reward account, or a zero balance for
// users who have never accrued points.
func (h *Handler) HandleGetBalance(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	if userID == "" {
		h.writeError(w, http.StatusBadRequest, "missing user id")
		return
	}

	account, err := h.repo.GetAccount(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to get reward account", "error", err, "user_id", userID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if account == nil {
		account = &domain.RewardAccount{UserID: userID}
	}

	h.writeJSON(w, http.StatusOK, account)
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
