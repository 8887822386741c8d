package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/username/optionfolio/backend/src/database"
	"github.com/username/optionfolio/backend/src/logger"
	"github.com/username/optionfolio/backend/src/models"
	"github.com/username/optionfolio/backend/src/processors"
	"github.com/username/optionfolio/backend/src/utils"
)

type scanServiceImpl struct {
	quotes         QuoteService
	screener       processors.Screener
	email          EmailService
	watchlist      []string
	symbolDelay    time.Duration
	alertRecipient string

	mu          sync.Mutex
	running     bool
	subscribers map[chan models.ScanProgress]struct{}
}

// NewScanService wires the quote provider and the screening rules over a
// fixed watchlist. Progress events fan out to any number of subscribers.
func NewScanService(quotes QuoteService, screener processors.Screener, email EmailService,
	watchlist []string, symbolDelay time.Duration, alertRecipient string) ScanService {
	return &scanServiceImpl{
		quotes:         quotes,
		screener:       screener,
		email:          email,
		watchlist:      watchlist,
		symbolDelay:    symbolDelay,
		alertRecipient: alertRecipient,
		subscribers:    make(map[chan models.ScanProgress]struct{}),
	}
}

// StartScan kicks off one walk over the watchlist in the background and
// returns its run ID. Only one run may be in flight at a time.
func (s *scanServiceImpl) StartScan(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return "", ErrScanAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()

	runID := uuid.NewString()
	// The run must outlive the triggering HTTP request: keep the caller's
	// values but detach from its cancellation.
	go s.runScan(context.WithoutCancel(ctx), runID)
	return runID, nil
}

func (s *scanServiceImpl) runScan(ctx context.Context, runID string) {
	logger.L.Info("scan run started", "runID", runID, "symbols", len(s.watchlist))
	total := len(s.watchlist)

	// The terminal event must only go out after the run slot is released, so
	// a listener reacting to Done can start the next run immediately.
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		s.publish(models.ScanProgress{
			RunID: runID, Index: total, Total: total, Done: true,
			Timestamp: time.Now().UTC(),
		})
	}()

	for i, symbol := range s.watchlist {
		if i > 0 {
			time.Sleep(s.symbolDelay)
		}
		if ctx.Err() != nil {
			logger.L.Warn("scan run cancelled", "runID", runID, "error", ctx.Err())
			return
		}

		result, err := s.scanSymbol(ctx, runID, symbol)
		if err != nil {
			logger.L.Warn("scan symbol failed", "runID", runID, "symbol", symbol, "error", err)
			s.publish(models.ScanProgress{
				RunID: runID, Symbol: symbol, Index: i + 1, Total: total,
				Error: err.Error(), Timestamp: time.Now().UTC(),
			})
			continue
		}

		s.publish(models.ScanProgress{
			RunID: runID, Symbol: symbol, Index: i + 1, Total: total,
			Status: result.Status, Timestamp: time.Now().UTC(),
		})

		if result.Status == models.StatusReady && s.alertRecipient != "" {
			if err := s.email.SendScanAlert(s.alertRecipient, result); err != nil {
				logger.L.Warn("scan alert email failed", "runID", runID, "symbol", symbol, "error", err)
			}
		}
	}

	logger.L.Info("scan run finished", "runID", runID)
}

func (s *scanServiceImpl) scanSymbol(ctx context.Context, runID, symbol string) (models.AnalysisResult, error) {
	now := time.Now().UTC()

	quote, err := s.quotes.GetQuote(ctx, symbol)
	if err != nil {
		return models.AnalysisResult{}, fmt.Errorf("fetching quote: %w", err)
	}

	option, err := s.quotes.GetCandidatePut(ctx, symbol, quote.Last)
	if err != nil {
		return models.AnalysisResult{}, fmt.Errorf("fetching option chain: %w", err)
	}

	result := s.screener.Evaluate(quote, option, now)
	result.RunID = runID
	result.CreatedAt = now

	if err := s.persistResult(result); err != nil {
		return models.AnalysisResult{}, fmt.Errorf("persisting result: %w", err)
	}
	return result, nil
}

func (s *scanServiceImpl) persistResult(r models.AnalysisResult) error {
	_, err := database.DB.Exec(`
		INSERT INTO analysis_results (
			run_id, symbol, status, stock_price, spread, mid_percent,
			days_to_expiration, detail, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Symbol, string(r.Status), utils.RoundFloat(r.StockPrice, 2),
		utils.RoundFloat(r.Spread, 4), utils.RoundFloat(r.MidPercent, 2),
		r.DaysToExpiration, r.Detail, r.CreatedAt.Format(time.RFC3339))
	return err
}

// GetLatestResults returns every row of the most recent scan run.
func (s *scanServiceImpl) GetLatestResults() ([]models.AnalysisResult, error) {
	rows, err := database.DB.Query(`
		SELECT id, run_id, symbol, status, stock_price, spread, mid_percent,
		       days_to_expiration, detail, created_at
		FROM analysis_results
		WHERE run_id = (
			SELECT run_id FROM analysis_results ORDER BY created_at DESC, id DESC LIMIT 1
		)
		ORDER BY symbol ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying analysis results: %w", err)
	}
	defer rows.Close()

	var results []models.AnalysisResult
	for rows.Next() {
		var r models.AnalysisResult
		var status, createdAt string
		if err := rows.Scan(&r.ID, &r.RunID, &r.Symbol, &status, &r.StockPrice,
			&r.Spread, &r.MidPercent, &r.DaysToExpiration, &r.Detail, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning analysis row: %w", err)
		}
		r.Status = models.ScreeningStatus(status)
		r.CreatedAt = utils.ParseDate(createdAt)
		results = append(results, r)
	}
	return results, rows.Err()
}

// Subscribe registers a progress listener. The returned function must be
// called to unsubscribe; events are dropped rather than blocking a slow
// listener.
func (s *scanServiceImpl) Subscribe() (<-chan models.ScanProgress, func()) {
	ch := make(chan models.ScanProgress, 16)
	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *scanServiceImpl) publish(event models.ScanProgress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}
