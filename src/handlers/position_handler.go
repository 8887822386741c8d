package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/username/optionfolio/backend/src/logger"
	"github.com/username/optionfolio/backend/src/models"
	"github.com/username/optionfolio/backend/src/services"
	"github.com/username/optionfolio/backend/src/utils"
)

type PositionHandler struct {
	ledgerService services.LedgerService
}

func NewPositionHandler(ledgerService services.LedgerService) *PositionHandler {
	return &PositionHandler{
		ledgerService: ledgerService,
	}
}

// GetAggregatedPositions serves the per-underlying position episodes with an
// ETag so the dashboard can poll cheaply.
func (h *PositionHandler) GetAggregatedPositions(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "User not authenticated", http.StatusUnauthorized)
		return
	}

	episodes, err := h.ledgerService.GetAggregatedPositions(userID)
	if err != nil {
		logger.L.Error("failed to aggregate positions", "userID", userID, "error", err)
		utils.SendJSONError(w, "Failed to aggregate positions", http.StatusInternalServerError)
		return
	}
	if episodes == nil {
		episodes = []models.PositionEpisode{}
	}

	etag, err := utils.GenerateETag(episodes)
	if err == nil {
		if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", etag)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(episodes)
}

func (h *PositionHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "User not authenticated", http.StatusUnauthorized)
		return
	}

	txs, err := h.ledgerService.GetTransactions(userID)
	if err != nil {
		logger.L.Error("failed to fetch transactions", "userID", userID, "error", err)
		utils.SendJSONError(w, "Failed to fetch transactions", http.StatusInternalServerError)
		return
	}
	if txs == nil {
		txs = []models.TransactionRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(txs)
}

// SyncTransactions pulls the latest ledger from the brokerage for the
// authenticated user.
func (h *PositionHandler) SyncTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "User not authenticated", http.StatusUnauthorized)
		return
	}

	result, err := h.ledgerService.SyncTransactions(r.Context(), userID)
	if err != nil {
		logger.L.Error("ledger sync failed", "userID", userID, "error", err)
		switch {
		case errors.Is(err, services.ErrInvalidInput):
			utils.SendJSONError(w, "Brokerage returned an unreadable payload", http.StatusBadGateway)
		case errors.Is(err, services.ErrSyncFailed):
			utils.SendJSONError(w, "Brokerage sync failed", http.StatusBadGateway)
		default:
			utils.SendJSONError(w, "Failed to sync transactions", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
