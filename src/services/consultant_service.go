package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/username/optionfolio/backend/src/logger"
	"github.com/username/optionfolio/backend/src/models"
	"github.com/username/optionfolio/backend/src/utils"
)

const consultantSystemPrompt = "You are a cautious options-income consultant. " +
	"You will receive the user's position episodes as JSON plus a question. " +
	"Answer concisely, reference concrete symbols and numbers from the data, " +
	"and never invent positions the user does not hold."

// positionSnapshot is the trimmed per-episode view sent to the language
// model. Raw transactions stay out of the prompt.
type positionSnapshot struct {
	Symbol           string  `json:"symbol"`
	IsOpen           bool    `json:"isOpen"`
	TotalShares      float64 `json:"totalShares"`
	AvgCostBasis     float64 `json:"avgCostBasis"`
	OptionPremium    float64 `json:"optionPremium"`
	OptionContracts  float64 `json:"optionContracts"`
	RealizedPL       float64 `json:"realizedPL"`
	TotalReturn      float64 `json:"totalReturn"`
	ReturnPercentage float64 `json:"returnPercentage"`
	DaysHeld         int     `json:"daysHeld"`
}

type consultantServiceImpl struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewConsultantService builds the chat-completions client. An empty API key
// is allowed at construction; Ask reports ErrConsultantUnavailable instead.
func NewConsultantService(baseURL, apiKey, model string) ConsultantService {
	return &consultantServiceImpl{
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (s *consultantServiceImpl) Ask(ctx context.Context, question string, positions []models.PositionEpisode) (string, error) {
	if s.apiKey == "" {
		return "", ErrConsultantUnavailable
	}

	snapshots := make([]positionSnapshot, 0, len(positions))
	for _, ep := range positions {
		snapshots = append(snapshots, positionSnapshot{
			Symbol:           ep.Symbol,
			IsOpen:           ep.IsOpen,
			TotalShares:      ep.TotalShares,
			AvgCostBasis:     utils.RoundFloat(ep.AvgCostBasis, 2),
			OptionPremium:    utils.RoundFloat(ep.TotalOptionPremium, 2),
			OptionContracts:  ep.TotalOptionContracts,
			RealizedPL:       utils.RoundFloat(ep.RealizedPL, 2),
			TotalReturn:      utils.RoundFloat(ep.TotalReturn, 2),
			ReturnPercentage: utils.RoundFloat(ep.ReturnPercentage, 2),
			DaysHeld:         ep.DaysHeld,
		})
	}
	snapshotJSON, err := json.Marshal(snapshots)
	if err != nil {
		return "", fmt.Errorf("marshalling position snapshot: %w", err)
	}

	prompt := fmt.Sprintf("Positions:%s\nQuestion:%s", string(snapshotJSON), question)
	body := map[string]any{
		"model": s.model,
		"messages": []map[string]string{
			{"role": "system", "content": consultantSystemPrompt},
			{"role": "user", "content": prompt},
		},
		"temperature": 0.2,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshalling request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.baseURL, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrConsultantUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		logger.L.Warn("consultant backend returned non-success status", "status", resp.StatusCode)
		return "", fmt.Errorf("%w: http %d", ErrConsultantUnavailable, resp.StatusCode)
	}

	var r struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return "", fmt.Errorf("decoding consultant response: %w", err)
	}
	if len(r.Choices) == 0 {
		return "", fmt.Errorf("%w: empty response", ErrConsultantUnavailable)
	}
	return strings.TrimSpace(r.Choices[0].Message.Content), nil
}
