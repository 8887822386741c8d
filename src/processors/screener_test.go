package processors

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/username/optionfolio/backend/src/models"
)

var testThresholds = ScreenThresholds{
	MinStockPrice:       15,
	MaxSpread:           0.10,
	MinMidPercent:       2.0,
	HighMidPercent:      6.0,
	MaxDaysToExpiration: 45,
}

func TestScreenerClassification(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	expiry := now.AddDate(0, 0, 30)

	cases := []struct {
		name   string
		quote  models.Quote
		option models.OptionChainEntry
		want   models.ScreeningStatus
	}{
		{
			name:   "below price floor",
			quote:  models.Quote{Symbol: "PNY", Last: 4.20, Bid: 4.19, Ask: 4.21},
			option: models.OptionChainEntry{Strike: 5, Bid: 0.10, Ask: 0.12, Expiration: expiry},
			want:   models.StatusLowStockPrice,
		},
		{
			name:   "spread too wide",
			quote:  models.Quote{Symbol: "WIDE", Last: 50, Bid: 49.50, Ask: 50.50},
			option: models.OptionChainEntry{Strike: 50, Bid: 1.40, Ask: 1.60, Expiration: expiry},
			want:   models.StatusHighSpread,
		},
		{
			name:   "premium too thin",
			quote:  models.Quote{Symbol: "THIN", Last: 100, Bid: 99.98, Ask: 100.02},
			option: models.OptionChainEntry{Strike: 100, Bid: 0.40, Ask: 0.60, Expiration: expiry},
			want:   models.StatusLowMidPercent,
		},
		{
			name:   "expiration too far out",
			quote:  models.Quote{Symbol: "FAR", Last: 100, Bid: 99.98, Ask: 100.02},
			option: models.OptionChainEntry{Strike: 100, Bid: 2.90, Ask: 3.10, Expiration: now.AddDate(0, 0, 90)},
			want:   models.StatusExpirationTooFar,
		},
		{
			name:   "unusually rich premium",
			quote:  models.Quote{Symbol: "RICH", Last: 100, Bid: 99.98, Ask: 100.02},
			option: models.OptionChainEntry{Strike: 100, Bid: 7.90, Ask: 8.10, Expiration: expiry},
			want:   models.StatusHighMidPercent,
		},
		{
			name:   "ready candidate",
			quote:  models.Quote{Symbol: "RDY", Last: 100, Bid: 99.98, Ask: 100.02},
			option: models.OptionChainEntry{Strike: 100, Bid: 2.90, Ask: 3.10, Expiration: expiry},
			want:   models.StatusReady,
		},
	}

	screener := NewScreener(testThresholds)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := screener.Evaluate(tc.quote, tc.option, now)
			assert.Equal(t, tc.want, result.Status)
			assert.Equal(t, tc.quote.Symbol, result.Symbol)
		})
	}
}

func TestScreenerZeroStrikeDoesNotPanic(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	screener := NewScreener(testThresholds)
	result := screener.Evaluate(
		models.Quote{Symbol: "ZRO", Last: 100, Bid: 99.98, Ask: 100.02},
		models.OptionChainEntry{Strike: 0, Bid: 1, Ask: 1.10, Expiration: now.AddDate(0, 0, 30)},
		now,
	)
	assert.Equal(t, models.StatusLowMidPercent, result.Status)
	assert.Zero(t, result.MidPercent)
}
