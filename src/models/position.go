package models

import "time"

// PositionEpisode is one continuous holding period for an underlying symbol:
// from the first transaction after a flat state until both the share count
// and the net option-contract count return to zero (or "still open" at
// report time). It is derived by replaying the transaction ledger and is
// immutable once finalized.
type PositionEpisode struct {
	Symbol               string    `json:"symbol"`
	FirstTransactionDate time.Time `json:"firstTransactionDate"`
	LastTransactionDate  time.Time `json:"lastTransactionDate"`

	TotalShares       float64 `json:"totalShares"`
	TotalSharesBought float64 `json:"totalSharesBought"`
	TotalSharesSold   float64 `json:"totalSharesSold"`

	TotalCost     float64 `json:"totalCost"`
	TotalProceeds float64 `json:"totalProceeds"`
	AvgCostBasis  float64 `json:"avgCostBasis"`

	TotalOptionPremium      float64 `json:"totalOptionPremium"`
	TotalOptionContracts    float64 `json:"totalOptionContracts"`
	TotalOptionTransactions int     `json:"totalOptionTransactions"`
	EquityTransactions      int     `json:"equityTransactions"`

	IsOpen           bool    `json:"isOpen"`
	RealizedPL       float64 `json:"realizedPL"`
	TotalReturn      float64 `json:"totalReturn"`
	ReturnPercentage float64 `json:"returnPercentage"`
	DaysHeld         int     `json:"daysHeld"`

	TotalTransactions int                 `json:"totalTransactions"`
	Transactions      []TransactionRecord `json:"transactions"`
}
