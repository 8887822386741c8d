package models

import (
	"strings"
	"time"
)

// InstrumentType is the brokerage-reported instrument class of a transaction.
type InstrumentType string

const (
	InstrumentEquity        InstrumentType = "Equity"
	InstrumentEquityOption  InstrumentType = "Equity Option"
	InstrumentMoneyMovement InstrumentType = "Money Movement"
)

// ValueEffect determines the sign of a transaction's cash flow.
type ValueEffect string

const (
	ValueEffectCredit ValueEffect = "Credit"
	ValueEffectDebit  ValueEffect = "Debit"
	ValueEffectNone   ValueEffect = "None"
)

// Normalized action names. The brokerage sends these as free-form strings;
// the parser maps them onto this vocabulary.
const (
	ActionBuyToOpen      = "Buy to Open"
	ActionBuy            = "Buy"
	ActionSellToClose    = "Sell to Close"
	ActionSellToOpen     = "Sell to Open"
	ActionBuyToClose     = "Buy to Close"
	ActionReceiveDeliver = "Receive Deliver"
)

// TransactionRecord is the normalized representation of one brokerage
// transaction after the ingestion boundary has validated and typed the raw
// API payload. It is immutable once created.
type TransactionRecord struct {
	ID              string         `json:"id"`
	ExecutedAt      time.Time      `json:"executed_at"`
	TransactionType string         `json:"transaction_type"`
	InstrumentType  InstrumentType `json:"instrument_type"`
	Action          string         `json:"action"`
	Symbol          string         `json:"symbol"`
	Quantity        float64        `json:"quantity"`
	Price           float64        `json:"price"`
	Value           float64        `json:"value"`
	ValueEffect     ValueEffect    `json:"value_effect"`
}

// UnderlyingSymbol collapses a compound option symbol like
// "AAPL  240119C00150000" to its underlying equity symbol. Plain equity
// symbols pass through unchanged.
func (t TransactionRecord) UnderlyingSymbol() string {
	fields := strings.Fields(t.Symbol)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
