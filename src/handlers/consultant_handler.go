package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/username/optionfolio/backend/src/logger"
	"github.com/username/optionfolio/backend/src/security/validation"
	"github.com/username/optionfolio/backend/src/services"
	"github.com/username/optionfolio/backend/src/utils"
)

const maxQuestionLength = 2000

type ConsultantHandler struct {
	consultantService services.ConsultantService
	ledgerService     services.LedgerService
}

func NewConsultantHandler(consultantService services.ConsultantService, ledgerService services.LedgerService) *ConsultantHandler {
	return &ConsultantHandler{
		consultantService: consultantService,
		ledgerService:     ledgerService,
	}
}

// Ask forwards a free-text question plus the user's positions to the
// consultant backend.
func (h *ConsultantHandler) Ask(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "User not authenticated", http.StatusUnauthorized)
		return
	}

	var requestBody struct {
		Question string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&requestBody); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	question := strings.TrimSpace(validation.StripUnprintable(requestBody.Question))
	if question == "" {
		utils.SendJSONError(w, "Question is required", http.StatusBadRequest)
		return
	}
	if len(question) > maxQuestionLength {
		utils.SendJSONError(w, "Question is too long", http.StatusBadRequest)
		return
	}

	positions, err := h.ledgerService.GetAggregatedPositions(userID)
	if err != nil {
		logger.L.Error("consultant: failed to load positions", "userID", userID, "error", err)
		utils.SendJSONError(w, "Failed to load positions", http.StatusInternalServerError)
		return
	}

	answer, err := h.consultantService.Ask(r.Context(), question, positions)
	if err != nil {
		logger.L.Error("consultant request failed", "userID", userID, "error", err)
		if errors.Is(err, services.ErrConsultantUnavailable) {
			utils.SendJSONError(w, "Consultant is unavailable", http.StatusServiceUnavailable)
			return
		}
		utils.SendJSONError(w, "Consultant request failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"answer": answer,
	})
}
