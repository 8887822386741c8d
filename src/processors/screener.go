package processors

import (
	"fmt"
	"time"

	"github.com/username/optionfolio/backend/src/models"
)

// ScreenThresholds are the static cut-offs a symbol must clear before it is
// flagged as an option-selling candidate.
type ScreenThresholds struct {
	MinStockPrice       float64 // quotes below this are not worth writing against
	MaxSpread           float64 // reject wide bid/ask spreads on the stock
	MinMidPercent       float64 // option mid as a % of strike, floor
	HighMidPercent      float64 // above this the premium is unusually rich
	MaxDaysToExpiration int
}

// screenerImpl implements the Screener interface.
type screenerImpl struct {
	thresholds ScreenThresholds
}

// NewScreener creates a new instance of Screener with the given thresholds.
func NewScreener(thresholds ScreenThresholds) Screener {
	return &screenerImpl{thresholds: thresholds}
}

// Evaluate classifies one symbol. Pure guard-clause comparisons; the first
// failing threshold wins.
func (s *screenerImpl) Evaluate(quote models.Quote, option models.OptionChainEntry, now time.Time) models.AnalysisResult {
	spread := quote.Ask - quote.Bid
	midPercent := 0.0
	if option.Strike > 0 {
		midPercent = option.Mid() / option.Strike * 100
	}
	dte := option.DaysToExpiration(now)

	result := models.AnalysisResult{
		Symbol:           quote.Symbol,
		StockPrice:       quote.Last,
		Spread:           spread,
		MidPercent:       midPercent,
		DaysToExpiration: dte,
	}

	switch {
	case quote.Last < s.thresholds.MinStockPrice:
		result.Status = models.StatusLowStockPrice
		result.Detail = fmt.Sprintf("stock price %.2f below minimum %.2f", quote.Last, s.thresholds.MinStockPrice)
	case spread > s.thresholds.MaxSpread:
		result.Status = models.StatusHighSpread
		result.Detail = fmt.Sprintf("bid/ask spread %.2f above maximum %.2f", spread, s.thresholds.MaxSpread)
	case midPercent < s.thresholds.MinMidPercent:
		result.Status = models.StatusLowMidPercent
		result.Detail = fmt.Sprintf("option mid %.2f%% of strike below minimum %.2f%%", midPercent, s.thresholds.MinMidPercent)
	case dte > s.thresholds.MaxDaysToExpiration:
		result.Status = models.StatusExpirationTooFar
		result.Detail = fmt.Sprintf("%d days to expiration above maximum %d", dte, s.thresholds.MaxDaysToExpiration)
	case midPercent >= s.thresholds.HighMidPercent:
		result.Status = models.StatusHighMidPercent
	default:
		result.Status = models.StatusReady
	}
	return result
}
