package processors

import (
	"math"

	"github.com/username/optionfolio/backend/src/models"
)

// episodeTracker folds one underlying's chronologically ordered transactions
// into zero or more position episodes. An episode opens with the first
// transaction after a flat state and closes the instant both the share count
// and the net option-contract count are back at zero or below; the next
// transaction then starts a fresh episode. Closed episodes are never
// reopened.
type episodeTracker struct {
	underlying string
	current    *models.PositionEpisode
	episodes   []models.PositionEpisode
}

func newEpisodeTracker(underlying string) *episodeTracker {
	return &episodeTracker{underlying: underlying}
}

func (t *episodeTracker) apply(tx models.TransactionRecord) {
	if t.current == nil {
		t.current = &models.PositionEpisode{
			Symbol:               t.underlying,
			FirstTransactionDate: tx.ExecutedAt,
			LastTransactionDate:  tx.ExecutedAt,
			IsOpen:               true,
		}
	}
	ep := t.current
	ep.Transactions = append(ep.Transactions, tx)
	ep.TotalTransactions++
	ep.LastTransactionDate = tx.ExecutedAt

	switch tx.InstrumentType {
	case models.InstrumentEquity:
		qty := math.Abs(tx.Quantity)
		value := math.Abs(tx.Value)
		switch tx.Action {
		case models.ActionBuyToOpen, models.ActionBuy:
			ep.TotalShares += qty
			ep.TotalSharesBought += qty
			ep.TotalCost += value
		default:
			// Sell to Close, Receive Deliver and any other equity action
			// reduce the position.
			ep.TotalShares -= qty
			ep.TotalSharesSold += qty
			ep.TotalProceeds += value
		}
		ep.EquityTransactions++

	case models.InstrumentEquityOption:
		ep.TotalOptionTransactions++
		switch tx.ValueEffect {
		case models.ValueEffectCredit:
			ep.TotalOptionPremium += tx.Value
		case models.ValueEffectDebit:
			ep.TotalOptionPremium -= tx.Value
		}
		if tx.Action == models.ActionSellToOpen {
			ep.TotalOptionContracts += math.Abs(tx.Quantity)
		} else {
			// Buy to Close, Receive Deliver (assignment/expiration) and any
			// other closing action.
			ep.TotalOptionContracts -= math.Abs(tx.Quantity)
		}

	default:
		// Money movements ride along in the audit trail but do not move the
		// per-symbol position.
	}

	if ep.TotalSharesBought > 0 {
		ep.AvgCostBasis = ep.TotalCost / ep.TotalSharesBought
	} else {
		ep.AvgCostBasis = 0
	}
	ep.IsOpen = ep.TotalShares > 0 || ep.TotalOptionContracts > 0

	if !ep.IsOpen {
		finalizeEpisode(ep)
		t.episodes = append(t.episodes, *ep)
		t.current = nil
	}
}

// results returns all episodes produced so far. A still-open trailing episode
// is finalized with the open-position formulas for reporting purposes but is
// not closed.
func (t *episodeTracker) results() []models.PositionEpisode {
	episodes := t.episodes
	if t.current != nil {
		open := *t.current
		finalizeEpisode(&open)
		episodes = append(episodes, open)
	}
	return episodes
}

// finalizeEpisode computes the derived metrics for an episode snapshot. The
// open and closed return-percentage formulas are intentionally different:
// open positions report return over cost, closed positions report
// proceeds-plus-premium over cost minus one.
func finalizeEpisode(ep *models.PositionEpisode) {
	if ep.IsOpen {
		// P/L is recognized only on shares actually sold; unsold shares
		// carry no realized P/L.
		ep.RealizedPL = ep.TotalProceeds - ep.TotalSharesSold*ep.AvgCostBasis
	} else {
		ep.RealizedPL = ep.TotalProceeds - ep.TotalCost
	}
	ep.TotalReturn = ep.RealizedPL + ep.TotalOptionPremium

	switch {
	case ep.TotalCost <= 0:
		ep.ReturnPercentage = 0
	case ep.IsOpen:
		ep.ReturnPercentage = (ep.TotalReturn / ep.TotalCost) * 100
	default:
		ep.ReturnPercentage = ((ep.TotalProceeds+ep.TotalOptionPremium)/ep.TotalCost - 1) * 100
	}

	ep.DaysHeld = int(math.Ceil(ep.LastTransactionDate.Sub(ep.FirstTransactionDate).Hours() / 24))
}
