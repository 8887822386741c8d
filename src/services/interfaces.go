package services

import (
	"context"
	"errors"

	"github.com/username/optionfolio/backend/src/models"
	"github.com/username/optionfolio/backend/src/parsers"
)

var (
	// ErrInvalidInput re-exports the parser taxonomy so handlers only need to
	// depend on the services package.
	ErrInvalidInput = parsers.ErrInvalidInput
	// ErrSyncFailed signals the brokerage fetch or the ledger write failed.
	ErrSyncFailed = errors.New("brokerage sync failed")
	// ErrScanAlreadyRunning is returned when a scan is requested while another is in flight.
	ErrScanAlreadyRunning = errors.New("scan already running")
	// ErrConsultantUnavailable signals the language-model backend is not configured or unreachable.
	ErrConsultantUnavailable = errors.New("consultant unavailable")
)

// SyncResult summarizes one ledger sync against the brokerage.
type SyncResult struct {
	Fetched    int `json:"fetched"`
	Inserted   int `json:"inserted"`
	Duplicates int `json:"duplicates"`
	Skipped    int `json:"skipped"`
}

// LedgerService owns the transaction ledger: pulling it from the brokerage,
// serving history, and deriving aggregated position episodes from it.
type LedgerService interface {
	SyncTransactions(ctx context.Context, userID int64) (*SyncResult, error)
	GetTransactions(userID int64) ([]models.TransactionRecord, error)
	GetAggregatedPositions(userID int64) ([]models.PositionEpisode, error)
	InvalidateUserCache(userID int64)
}

// QuoteService provides market quotes and the candidate option-chain entry
// used by the screener.
type QuoteService interface {
	GetQuote(ctx context.Context, symbol string) (models.Quote, error)
	GetCandidatePut(ctx context.Context, symbol string, stockPrice float64) (models.OptionChainEntry, error)
}

// ScanService walks the watchlist through the screening rules, at most one
// run at a time, and publishes per-symbol progress to subscribers.
type ScanService interface {
	StartScan(ctx context.Context) (string, error)
	Subscribe() (<-chan models.ScanProgress, func())
	GetLatestResults() ([]models.AnalysisResult, error)
}

// ConsultantService answers free-text questions about a user's positions.
type ConsultantService interface {
	Ask(ctx context.Context, question string, positions []models.PositionEpisode) (string, error)
}

// EmailService delivers outbound notifications.
type EmailService interface {
	SendScanAlert(recipient string, result models.AnalysisResult) error
}
