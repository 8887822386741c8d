package brokerage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/optionfolio/backend/src/logger"
)

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	m.Run()
}

func newBrokerServer(t *testing.T, logins *int32, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /sessions", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(logins, 1)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data":{"session-token":"tok-123","session-expiration":"2099-01-01T00:00:00Z"}}`))
	})
	mux.HandleFunc("/", handler)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestClientSingleFlightLogin(t *testing.T) {
	var logins int32
	server := newBrokerServer(t, &logins, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tok-123", r.Header.Get("Authorization"))
		w.Write([]byte(`{"data":{"items":[]}}`))
	})

	client := NewClient(server.URL, "user", "pass")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.FetchTransactions(context.Background(), "ACC1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// A stale session must not trigger parallel refresh storms.
	assert.Equal(t, int32(1), atomic.LoadInt32(&logins))
}

func TestClientRetriesOnServerError(t *testing.T) {
	var logins int32
	var calls int32
	server := newBrokerServer(t, &logins, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"data":{"items":[]}}`))
	})

	client := NewClient(server.URL, "user", "pass")
	body, err := client.FetchTransactions(context.Background(), "ACC1")
	require.NoError(t, err)
	assert.Contains(t, string(body), "items")
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClientReloginOnUnauthorized(t *testing.T) {
	var logins int32
	var calls int32
	server := newBrokerServer(t, &logins, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"data":{"items":[]}}`))
	})

	client := NewClient(server.URL, "user", "pass")
	_, err := client.FetchTransactions(context.Background(), "ACC1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&logins))
}

func TestClientGivesUpOnClientError(t *testing.T) {
	var logins int32
	var calls int32
	server := newBrokerServer(t, &logins, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	})

	client := NewClient(server.URL, "user", "pass")
	_, err := client.FetchTransactions(context.Background(), "MISSING")
	require.Error(t, err)
	// 4xx responses other than 401 are not retried.
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
