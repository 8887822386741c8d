package processors

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/optionfolio/backend/src/models"
)

func TestAggregateFiltersEquityOnlyEpisodes(t *testing.T) {
	ledger := []models.TransactionRecord{
		// Pure equity round trip, no option activity.
		equityBuy("e1", "NOOPT", day(0), 100, 5000),
		equitySell("e2", "NOOPT", day(10), 100, 5500),
		// Covered-call style position.
		equityBuy("e3", "CC", day(1), 100, 4000),
		optionSellToOpen("e4", "CC    240621C00045000", day(2), 1, 120),
	}

	episodes := NewPositionAggregator().Aggregate(ledger)
	require.Len(t, episodes, 1)
	assert.Equal(t, "CC", episodes[0].Symbol)
	for _, ep := range episodes {
		assert.Greater(t, ep.TotalOptionTransactions, 0)
	}
}

func TestAggregateGroupsOptionSymbolsUnderUnderlying(t *testing.T) {
	ledger := []models.TransactionRecord{
		equityBuy("t1", "TSLA", day(0), 10, 2500),
		optionSellToOpen("t2", "TSLA  240621C00250000", day(1), 1, 300),
	}

	episodes := NewPositionAggregator().Aggregate(ledger)
	require.Len(t, episodes, 1)
	ep := episodes[0]
	assert.Equal(t, "TSLA", ep.Symbol)
	assert.Equal(t, 2, ep.TotalTransactions)
	assert.Equal(t, 1, ep.TotalOptionTransactions)
	assert.Equal(t, 1, ep.EquityTransactions)
}

func TestAggregateSortsUnorderedLedger(t *testing.T) {
	// Ledger arrives newest-first; the aggregator must still see the buy
	// before the sell.
	ledger := []models.TransactionRecord{
		equitySell("t3", "ORD", day(10), 100, 5600),
		optionSellToOpen("t2", "ORD   240621P00050000", day(1), 1, 90),
		equityBuy("t1", "ORD", day(0), 100, 5000),
		optionExpiration("t4", "ORD   240621P00050000", day(12), 1),
	}

	episodes := NewPositionAggregator().Aggregate(ledger)
	require.Len(t, episodes, 1)
	ep := episodes[0]
	assert.False(t, ep.IsOpen)
	assert.InDelta(t, 600.0, ep.RealizedPL, 1e-9)
	assert.Equal(t, day(0), ep.FirstTransactionDate)
	assert.Equal(t, day(12), ep.LastTransactionDate)
}

func TestAggregateSkipsMalformedTransactions(t *testing.T) {
	ledger := []models.TransactionRecord{
		equityBuy("ok1", "GOOD", day(0), 10, 500),
		optionSellToOpen("ok2", "GOOD  240621C00055000", day(1), 1, 40),
		{ID: "bad1", ExecutedAt: day(2), InstrumentType: "Cryptocurrency", Symbol: "BTC/USD"},
		{ID: "bad2", ExecutedAt: day(3), InstrumentType: models.InstrumentEquity, Symbol: "   "},
	}

	episodes := NewPositionAggregator().Aggregate(ledger)
	require.Len(t, episodes, 1)
	assert.Equal(t, 2, episodes[0].TotalTransactions)
}

func TestAggregateSortsEpisodesMostRecentFirst(t *testing.T) {
	ledger := []models.TransactionRecord{
		equityBuy("a1", "OLD", day(0), 10, 500),
		optionSellToOpen("a2", "OLD   240621C00055000", day(1), 1, 20),
		equityBuy("b1", "NEW", day(30), 10, 900),
		optionSellToOpen("b2", "NEW   240721C00095000", day(31), 1, 35),
	}

	episodes := NewPositionAggregator().Aggregate(ledger)
	require.Len(t, episodes, 2)
	assert.Equal(t, "NEW", episodes[0].Symbol)
	assert.Equal(t, "OLD", episodes[1].Symbol)
}

func TestAggregateEmptyLedger(t *testing.T) {
	episodes := NewPositionAggregator().Aggregate(nil)
	assert.Empty(t, episodes)
}

func TestAggregateIsIdempotent(t *testing.T) {
	opt := "IDV   240621C00150000"
	ledger := []models.TransactionRecord{
		equityBuy("t1", "IDV", day(0), 100, 5000),
		optionSellToOpen("t2", "IDV   240621C00055000", day(1), 1, 150),
		equitySell("t3", "IDV", day(20), 50, 2900),
		optionSellToOpen("t4", opt, day(25), 2, 260),
	}

	agg := NewPositionAggregator()
	first, err := json.Marshal(agg.Aggregate(ledger))
	require.NoError(t, err)
	second, err := json.Marshal(agg.Aggregate(ledger))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestAggregateConservationAcrossSymbols(t *testing.T) {
	ledger := []models.TransactionRecord{
		equityBuy("t1", "AAA", day(0), 100, 5000),
		optionSellToOpen("t2", "AAA   240621C00055000", day(1), 1, 100),
		optionSellToOpen("t3", "BBB   240621P00030000", day(2), 3, 210),
		equityBuy("t4", "BBB", day(3), 50, 1500),
	}

	episodes := NewPositionAggregator().Aggregate(ledger)
	seen := make(map[string]int)
	for _, ep := range episodes {
		for _, tx := range ep.Transactions {
			seen[tx.ID]++
		}
	}
	require.Len(t, seen, len(ledger))
	for _, tx := range ledger {
		assert.Equal(t, 1, seen[tx.ID], "transaction %s must appear in exactly one episode", tx.ID)
	}
}
