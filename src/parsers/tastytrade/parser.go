// backend/src/parsers/tastytrade/parser.go
package tastytrade

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/username/optionfolio/backend/src/models"
)

// rawTransaction mirrors one item of the brokerage's transactions endpoint.
// The API keys fields with hyphens and delivers numbers as strings, so
// everything is decoded loosely here and coerced explicitly below.
// flexNumber tolerates numeric fields that arrive either as JSON numbers or
// as quoted strings, which this API mixes freely.
type flexNumber string

func (f *flexNumber) UnmarshalJSON(b []byte) error {
	*f = flexNumber(strings.Trim(string(b), `"`))
	return nil
}

type rawTransaction struct {
	ID              flexNumber `json:"id"`
	ExecutedAt      string     `json:"executed-at"`
	TransactionType string     `json:"transaction-type"`
	InstrumentType  string     `json:"instrument-type"`
	Action          string     `json:"action"`
	Symbol          string     `json:"symbol"`
	Quantity        flexNumber `json:"quantity"`
	Price           flexNumber `json:"price"`
	Value           flexNumber `json:"value"`
	ValueEffect     string     `json:"value-effect"`
}

// Data is a pointer so an empty ledger ({"data":{"items":[]}}) is still
// recognized as a valid envelope rather than a malformed payload.
type payload struct {
	Data *struct {
		Items []rawTransaction `json:"items"`
	} `json:"data"`
}

type TastytradeParser struct{}

func NewParser() *TastytradeParser {
	return &TastytradeParser{}
}

// Parse accepts either the API's {"data":{"items":[...]}} envelope or a bare
// transaction array. A payload that is neither is fatally malformed; single
// bad records are skipped.
func (p *TastytradeParser) Parse(r io.Reader) ([]models.TransactionRecord, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read transaction payload: %w", err)
	}

	var rawTxs []rawTransaction
	var envelope payload
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Data != nil {
		rawTxs = envelope.Data.Items
	} else if err := json.Unmarshal(body, &rawTxs); err != nil {
		return nil, fmt.Errorf("transaction payload is not an array: %v", err)
	}

	var records []models.TransactionRecord
	for _, raw := range rawTxs {
		executedAt, err := time.Parse(time.RFC3339, raw.ExecutedAt)
		if err != nil {
			log.Printf("Skipping transaction %s due to invalid executed-at %q: %v", raw.ID, raw.ExecutedAt, err)
			continue
		}
		quantity, err := numberValue(raw.Quantity)
		if err != nil {
			log.Printf("Skipping transaction %s due to invalid quantity %q", raw.ID, raw.Quantity)
			continue
		}
		price, err := numberValue(raw.Price)
		if err != nil {
			log.Printf("Skipping transaction %s due to invalid price %q", raw.ID, raw.Price)
			continue
		}
		value, err := numberValue(raw.Value)
		if err != nil {
			log.Printf("Skipping transaction %s due to invalid value %q", raw.ID, raw.Value)
			continue
		}

		records = append(records, models.TransactionRecord{
			ID:              string(raw.ID),
			ExecutedAt:      executedAt,
			TransactionType: raw.TransactionType,
			InstrumentType:  models.InstrumentType(raw.InstrumentType),
			Action:          normalizeAction(raw.Action),
			Symbol:          strings.TrimSpace(raw.Symbol),
			Quantity:        quantity,
			Price:           price,
			Value:           value,
			ValueEffect:     normalizeValueEffect(raw.ValueEffect),
		})
	}
	return records, nil
}

// numberValue coerces a loosely typed numeric field. Empty means zero; the
// brokerage omits price on money movements and expirations.
func numberValue(n flexNumber) (float64, error) {
	s := strings.TrimSpace(string(n))
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

func normalizeAction(action string) string {
	switch strings.ToLower(strings.TrimSpace(action)) {
	case "buy to open":
		return models.ActionBuyToOpen
	case "buy":
		return models.ActionBuy
	case "sell to close":
		return models.ActionSellToClose
	case "sell to open":
		return models.ActionSellToOpen
	case "buy to close":
		return models.ActionBuyToClose
	case "receive deliver":
		return models.ActionReceiveDeliver
	default:
		return strings.TrimSpace(action)
	}
}

func normalizeValueEffect(effect string) models.ValueEffect {
	switch strings.ToLower(strings.TrimSpace(effect)) {
	case "credit":
		return models.ValueEffectCredit
	case "debit":
		return models.ValueEffectDebit
	default:
		return models.ValueEffectNone
	}
}
