package models

import "time"

// Quote is a live equity quote from the market-data provider.
type Quote struct {
	Symbol string  `json:"symbol"`
	Last   float64 `json:"last"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
}

// OptionChainEntry is one strike row of an option chain, already narrowed by
// the provider query to the qualifying expiration cycle.
type OptionChainEntry struct {
	Symbol     string    `json:"symbol"`
	Strike     float64   `json:"strike"`
	Bid        float64   `json:"bid"`
	Ask        float64   `json:"ask"`
	Expiration time.Time `json:"expiration"`
}

// Mid returns the option's bid/ask midpoint.
func (o OptionChainEntry) Mid() float64 {
	return (o.Bid + o.Ask) / 2
}

// DaysToExpiration counts whole days between now and the entry's expiration.
func (o OptionChainEntry) DaysToExpiration(now time.Time) int {
	return int(o.Expiration.Sub(now).Hours() / 24)
}

// ScreeningStatus classifies a symbol against the option-selling thresholds.
type ScreeningStatus string

const (
	StatusLowStockPrice    ScreeningStatus = "LOW_STOCK_PRICE"
	StatusHighSpread       ScreeningStatus = "HIGH_SPREAD"
	StatusLowMidPercent    ScreeningStatus = "LOW_MID_PERCENT"
	StatusExpirationTooFar ScreeningStatus = "EXPIRATION_TOO_FAR"
	StatusHighMidPercent   ScreeningStatus = "HIGH_MID_PERCENT"
	StatusReady            ScreeningStatus = "READY"
)

// AnalysisResult is one screened symbol from a scan run, as persisted and as
// returned to the dashboard.
type AnalysisResult struct {
	ID               int64           `json:"id,omitempty"`
	RunID            string          `json:"run_id"`
	Symbol           string          `json:"symbol"`
	Status           ScreeningStatus `json:"status"`
	StockPrice       float64         `json:"stock_price"`
	Spread           float64         `json:"spread"`
	MidPercent       float64         `json:"mid_percent"`
	DaysToExpiration int             `json:"days_to_expiration"`
	Detail           string          `json:"detail,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// ScanProgress is one progress event pushed to SSE subscribers while a scan
// run walks the watchlist.
type ScanProgress struct {
	RunID     string          `json:"run_id"`
	Symbol    string          `json:"symbol"`
	Index     int             `json:"index"`
	Total     int             `json:"total"`
	Status    ScreeningStatus `json:"status,omitempty"`
	Done      bool            `json:"done"`
	Error     string          `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}
