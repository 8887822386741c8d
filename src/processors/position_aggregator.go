package processors

import (
	"log"
	"sort"

	"github.com/username/optionfolio/backend/src/models"
)

// positionAggregatorImpl implements the PositionAggregator interface.
type positionAggregatorImpl struct{}

// NewPositionAggregator creates a new instance of PositionAggregator.
func NewPositionAggregator() PositionAggregator {
	return &positionAggregatorImpl{}
}

// Aggregate replays the ledger into position episodes. The input may arrive
// unordered; it is stable-sorted by execution time so that same-timestamp
// transactions keep their original relative order. The result only contains
// episodes with option activity (this view is about option-income positions)
// and is sorted most-recent-first.
func (a *positionAggregatorImpl) Aggregate(ledger []models.TransactionRecord) []models.PositionEpisode {
	ordered := make([]models.TransactionRecord, len(ledger))
	copy(ordered, ledger)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ExecutedAt.Before(ordered[j].ExecutedAt)
	})

	grouped, underlyings := groupByUnderlying(ordered)

	var episodes []models.PositionEpisode
	for _, underlying := range underlyings {
		tracker := newEpisodeTracker(underlying)
		for _, tx := range grouped[underlying] {
			tracker.apply(tx)
		}
		for _, ep := range tracker.results() {
			if ep.TotalOptionTransactions > 0 {
				episodes = append(episodes, ep)
			}
		}
	}

	sort.SliceStable(episodes, func(i, j int) bool {
		return episodes[i].FirstTransactionDate.After(episodes[j].FirstTransactionDate)
	})
	return episodes
}

// groupByUnderlying buckets transactions by underlying symbol, preserving the
// first-seen order of underlyings so repeated runs over the same ledger yield
// identical output. Malformed transactions are skipped, not fatal.
func groupByUnderlying(transactions []models.TransactionRecord) (map[string][]models.TransactionRecord, []string) {
	grouped := make(map[string][]models.TransactionRecord)
	var underlyings []string
	for _, tx := range transactions {
		if !recognizedInstrument(tx.InstrumentType) {
			log.Printf("Warning: skipping transaction %s with unrecognized instrument type %q", tx.ID, tx.InstrumentType)
			continue
		}
		underlying := tx.UnderlyingSymbol()
		if underlying == "" {
			log.Printf("Warning: skipping transaction %s with empty symbol", tx.ID)
			continue
		}
		if _, seen := grouped[underlying]; !seen {
			underlyings = append(underlyings, underlying)
		}
		grouped[underlying] = append(grouped[underlying], tx)
	}
	return grouped, underlyings
}

func recognizedInstrument(it models.InstrumentType) bool {
	switch it {
	case models.InstrumentEquity, models.InstrumentEquityOption, models.InstrumentMoneyMovement:
		return true
	}
	return false
}
