package processors

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/optionfolio/backend/src/models"
)

func day(d int) time.Time {
	return time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC).AddDate(0, 0, d)
}

func equityBuy(id, symbol string, at time.Time, qty, value float64) models.TransactionRecord {
	return models.TransactionRecord{
		ID: id, ExecutedAt: at, InstrumentType: models.InstrumentEquity,
		Action: models.ActionBuy, Symbol: symbol, Quantity: qty,
		Price: value / qty, Value: value, ValueEffect: models.ValueEffectDebit,
	}
}

func equitySell(id, symbol string, at time.Time, qty, value float64) models.TransactionRecord {
	return models.TransactionRecord{
		ID: id, ExecutedAt: at, InstrumentType: models.InstrumentEquity,
		Action: models.ActionSellToClose, Symbol: symbol, Quantity: qty,
		Price: value / qty, Value: value, ValueEffect: models.ValueEffectCredit,
	}
}

func optionSellToOpen(id, symbol string, at time.Time, qty, premium float64) models.TransactionRecord {
	return models.TransactionRecord{
		ID: id, ExecutedAt: at, InstrumentType: models.InstrumentEquityOption,
		Action: models.ActionSellToOpen, Symbol: symbol, Quantity: qty,
		Value: premium, ValueEffect: models.ValueEffectCredit,
	}
}

func optionBuyToClose(id, symbol string, at time.Time, qty, cost float64) models.TransactionRecord {
	return models.TransactionRecord{
		ID: id, ExecutedAt: at, InstrumentType: models.InstrumentEquityOption,
		Action: models.ActionBuyToClose, Symbol: symbol, Quantity: qty,
		Value: cost, ValueEffect: models.ValueEffectDebit,
	}
}

func optionExpiration(id, symbol string, at time.Time, qty float64) models.TransactionRecord {
	return models.TransactionRecord{
		ID: id, ExecutedAt: at, InstrumentType: models.InstrumentEquityOption,
		Action: models.ActionReceiveDeliver, Symbol: symbol, Quantity: qty,
		Value: 0, ValueEffect: models.ValueEffectNone,
	}
}

func runTracker(underlying string, txs ...models.TransactionRecord) []models.PositionEpisode {
	tracker := newEpisodeTracker(underlying)
	for _, tx := range txs {
		tracker.apply(tx)
	}
	return tracker.results()
}

func TestTrackerClosedEpisodeWithPremium(t *testing.T) {
	opt := "X     240621C00055000"
	episodes := runTracker("X",
		equityBuy("t1", "X", day(0), 100, 5000),
		optionSellToOpen("t2", opt, day(1), 1, 200),
		optionExpiration("t3", opt, day(20), 1),
		equitySell("t4", "X", day(30), 100, 5500),
	)
	require.Len(t, episodes, 1)
	ep := episodes[0]

	assert.False(t, ep.IsOpen)
	assert.InDelta(t, 500.0, ep.RealizedPL, 1e-9)
	assert.InDelta(t, 200.0, ep.TotalOptionPremium, 1e-9)
	assert.InDelta(t, 700.0, ep.TotalReturn, 1e-9)
	// Closed positions report (proceeds+premium)/cost - 1.
	assert.InDelta(t, 14.0, ep.ReturnPercentage, 1e-9)
	assert.Equal(t, 30, ep.DaysHeld)
}

func TestTrackerOpenEpisode(t *testing.T) {
	episodes := runTracker("ABC",
		equityBuy("t1", "ABC", day(0), 100, 5000),
		optionSellToOpen("t2", "ABC   240621P00048000", day(0), 1, 150),
	)
	require.Len(t, episodes, 1)
	ep := episodes[0]

	assert.True(t, ep.IsOpen)
	assert.InDelta(t, 100.0, ep.TotalShares, 1e-9)
	// No shares sold, so nothing is realized yet.
	assert.InDelta(t, 0.0, ep.RealizedPL, 1e-9)
	assert.InDelta(t, 150.0, ep.TotalReturn, 1e-9)
	// Open positions report return over cost.
	assert.InDelta(t, 3.0, ep.ReturnPercentage, 1e-9)
}

func TestTrackerEpisodeRestart(t *testing.T) {
	episodes := runTracker("RST",
		equityBuy("t1", "RST", day(0), 100, 5000),
		equitySell("t2", "RST", day(10), 100, 5200),
		equityBuy("t3", "RST", day(40), 50, 3000),
	)
	require.Len(t, episodes, 2)

	first, second := episodes[0], episodes[1]
	assert.False(t, first.IsOpen)
	assert.InDelta(t, 200.0, first.RealizedPL, 1e-9)

	assert.True(t, second.IsOpen)
	// The second episode carries an independent cost basis.
	assert.InDelta(t, 3000.0, second.TotalCost, 1e-9)
	assert.InDelta(t, 60.0, second.AvgCostBasis, 1e-9)
	assert.InDelta(t, 0.0, second.TotalProceeds, 1e-9)
}

func TestTrackerOptionOnlyEpisodeStaysOpen(t *testing.T) {
	episodes := runTracker("OPT",
		optionSellToOpen("t1", "OPT   240719C00100000", day(0), 2, 340),
	)
	require.Len(t, episodes, 1)
	ep := episodes[0]

	assert.True(t, ep.IsOpen)
	assert.InDelta(t, 0.0, ep.TotalShares, 1e-9)
	assert.InDelta(t, 2.0, ep.TotalOptionContracts, 1e-9)
	assert.InDelta(t, 0.0, ep.AvgCostBasis, 1e-9)
	// No equity cost means the percentage is a defined zero, not an error.
	assert.InDelta(t, 0.0, ep.ReturnPercentage, 1e-9)
}

func TestTrackerBuyToCloseReducesPremiumAndContracts(t *testing.T) {
	opt := "BTC   240621C00200000"
	episodes := runTracker("BTC",
		optionSellToOpen("t1", opt, day(0), 1, 300),
		optionBuyToClose("t2", opt, day(5), 1, 120),
	)
	require.Len(t, episodes, 1)
	ep := episodes[0]

	assert.False(t, ep.IsOpen)
	assert.InDelta(t, 180.0, ep.TotalOptionPremium, 1e-9)
	assert.InDelta(t, 0.0, ep.TotalOptionContracts, 1e-9)
	assert.Equal(t, 2, ep.TotalOptionTransactions)
	assert.Equal(t, 0, ep.EquityTransactions)
}

func TestTrackerSameDayOpenAndClose(t *testing.T) {
	at := day(0)
	opt := "SAME  240621C00010000"
	episodes := runTracker("SAME",
		optionSellToOpen("t1", opt, at, 1, 50),
		optionBuyToClose("t2", opt, at, 1, 10),
	)
	require.Len(t, episodes, 1)
	assert.Equal(t, 0, episodes[0].DaysHeld)
}

func TestTrackerMoneyMovementIgnoredForAccounting(t *testing.T) {
	deposit := models.TransactionRecord{
		ID: "mm1", ExecutedAt: day(1), InstrumentType: models.InstrumentMoneyMovement,
		Symbol: "MM", Value: 1000, ValueEffect: models.ValueEffectCredit,
	}
	episodes := runTracker("MM",
		equityBuy("t1", "MM", day(0), 10, 500),
		deposit,
		optionSellToOpen("t2", "MM    240621C00055000", day(2), 1, 40),
	)
	require.Len(t, episodes, 1)
	ep := episodes[0]

	// The movement is kept for audit but changes no balances.
	assert.Equal(t, 3, ep.TotalTransactions)
	assert.InDelta(t, 500.0, ep.TotalCost, 1e-9)
	assert.InDelta(t, 40.0, ep.TotalOptionPremium, 1e-9)
	assert.Equal(t, 1, ep.TotalOptionTransactions)
	assert.Equal(t, 1, ep.EquityTransactions)
}

func TestTrackerConservation(t *testing.T) {
	opt := "CNS   240621C00150000"
	input := []models.TransactionRecord{
		equityBuy("t1", "CNS", day(0), 100, 5000),
		optionSellToOpen("t2", opt, day(1), 1, 150),
		optionBuyToClose("t3", opt, day(10), 1, 30),
		equitySell("t4", "CNS", day(20), 100, 5600),
		equityBuy("t5", "CNS", day(40), 20, 1200),
	}
	episodes := runTracker("CNS", input...)
	require.Len(t, episodes, 2)

	seen := make(map[string]int)
	for _, ep := range episodes {
		for _, tx := range ep.Transactions {
			seen[tx.ID]++
		}
	}
	require.Len(t, seen, len(input))
	for _, tx := range input {
		assert.Equal(t, 1, seen[tx.ID], "transaction %s must appear in exactly one episode", tx.ID)
	}
}
