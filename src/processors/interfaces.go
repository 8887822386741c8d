package processors

import (
	"time"

	"github.com/username/optionfolio/backend/src/models"
)

// PositionAggregator replays the full transaction ledger and derives, per
// underlying symbol, the sequence of position episodes with realized P/L and
// option premium capture.
type PositionAggregator interface {
	Aggregate(ledger []models.TransactionRecord) []models.PositionEpisode
}

// Screener classifies a live quote plus its next qualifying option-chain
// entry against the option-selling thresholds.
type Screener interface {
	Evaluate(quote models.Quote, option models.OptionChainEntry, now time.Time) models.AnalysisResult
}
