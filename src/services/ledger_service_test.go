package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/optionfolio/backend/src/brokerage"
	"github.com/username/optionfolio/backend/src/database"
	"github.com/username/optionfolio/backend/src/models"
)

const ledgerPayload = `{"data":{"items":[
	{"id":1,"executed-at":"2024-03-01T14:30:00Z","transaction-type":"Trade","instrument-type":"Equity",
	 "action":"Buy to Open","symbol":"AAPL","quantity":"100","price":"170.0","value":"17000.0","value-effect":"Debit"},
	{"id":2,"executed-at":"2024-03-05T14:30:00Z","transaction-type":"Trade","instrument-type":"Equity Option",
	 "action":"Sell to Open","symbol":"AAPL  240419C00180000","quantity":1,"price":2.5,"value":250.0,"value-effect":"Credit"}
]}}`

func newLedgerService(t *testing.T, payload string) LedgerService {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /sessions", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data":{"session-token":"tok-123","session-expiration":"2099-01-01T00:00:00Z"}}`))
	})
	mux.HandleFunc("GET /accounts/ACC1/transactions", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(payload))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	broker := brokerage.NewClient(server.URL, "user", "pass")
	return NewLedgerService(broker, "ACC1", "tastytrade")
}

func TestSyncInsertsAndDeduplicates(t *testing.T) {
	const userID = int64(101)
	svc := newLedgerService(t, ledgerPayload)

	result, err := svc.SyncTransactions(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Fetched)
	assert.Equal(t, 2, result.Inserted)
	assert.Equal(t, 0, result.Duplicates)

	// A second sync of the same payload must be a no-op.
	result, err = svc.SyncTransactions(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Inserted)
	assert.Equal(t, 2, result.Duplicates)

	txs, err := svc.GetTransactions(userID)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, models.ActionBuyToOpen, txs[0].Action)
	assert.Equal(t, 17000.0, txs[0].Value)
	assert.True(t, txs[0].ExecutedAt.Before(txs[1].ExecutedAt))
}

func TestSyncFeedsAggregatedPositions(t *testing.T) {
	const userID = int64(102)
	svc := newLedgerService(t, ledgerPayload)

	_, err := svc.SyncTransactions(context.Background(), userID)
	require.NoError(t, err)

	episodes, err := svc.GetAggregatedPositions(userID)
	require.NoError(t, err)
	require.Len(t, episodes, 1)

	ep := episodes[0]
	assert.Equal(t, "AAPL", ep.Symbol)
	assert.True(t, ep.IsOpen)
	assert.Equal(t, 100.0, ep.TotalShares)
	assert.Equal(t, 250.0, ep.TotalOptionPremium)
	assert.Equal(t, 1, ep.TotalOptionTransactions)
}

func TestSyncEmptyLedgerIsNotAnError(t *testing.T) {
	const userID = int64(105)
	svc := newLedgerService(t, `{"data":{"items":[]}}`)

	result, err := svc.SyncTransactions(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Fetched)
	assert.Equal(t, 0, result.Inserted)

	episodes, err := svc.GetAggregatedPositions(userID)
	require.NoError(t, err)
	assert.Empty(t, episodes)
}

func TestSyncReportsUnreadablePayload(t *testing.T) {
	svc := newLedgerService(t, `{"error":"maintenance window"}`)

	_, err := svc.SyncTransactions(context.Background(), 103)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAggregatedPositionsServedFromCache(t *testing.T) {
	const userID = int64(104)
	svc := newLedgerService(t, ledgerPayload)

	_, err := svc.SyncTransactions(context.Background(), userID)
	require.NoError(t, err)

	first, err := svc.GetAggregatedPositions(userID)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// Bypass the service and append the closing trades directly.
	insert := `
		INSERT INTO transactions (
			user_id, external_id, executed_at, transaction_type, instrument_type,
			action, symbol, quantity, price, value, value_effect, hash_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	closedAt := time.Date(2024, 4, 1, 14, 30, 0, 0, time.UTC).Format(time.RFC3339)
	_, err = database.DB.Exec(insert,
		userID, "98", closedAt, "Receive Deliver", "Equity Option",
		models.ActionReceiveDeliver, "AAPL  240419C00180000", 1.0, 0.0, 0.0, "None", "manual-hash-104a")
	require.NoError(t, err)
	_, err = database.DB.Exec(insert,
		userID, "99", closedAt, "Trade", "Equity",
		models.ActionSellToClose, "AAPL", 100.0, 180.0, 18000.0, "Credit", "manual-hash-104b")
	require.NoError(t, err)

	cached, err := svc.GetAggregatedPositions(userID)
	require.NoError(t, err)
	assert.True(t, cached[0].IsOpen, "stale cache entry should still be served")

	svc.InvalidateUserCache(userID)
	fresh, err := svc.GetAggregatedPositions(userID)
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	assert.False(t, fresh[0].IsOpen)
	assert.Equal(t, 18000.0, fresh[0].TotalProceeds)
}
