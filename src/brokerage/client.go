package brokerage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/username/optionfolio/backend/src/logger"
	"golang.org/x/time/rate"
)

const (
	maxAttempts    = 3
	initialBackoff = 500 * time.Millisecond
)

// session is the brokerage session token plus its expiry. It is always
// accessed under the client's mutex so that a stale token can never trigger
// parallel re-login storms.
type session struct {
	token     string
	expiresAt time.Time
}

func (s session) valid(now time.Time) bool {
	// Refresh a minute early so in-flight requests don't race the expiry.
	return s.token != "" && now.Add(time.Minute).Before(s.expiresAt)
}

// Client talks to the brokerage REST API. Requests are throttled through a
// shared limiter and retried with backoff on transient failures.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	limiter    *rate.Limiter

	mu      sync.Mutex
	session session
}

func NewClient(baseURL, username, password string) *Client {
	return &Client{
		baseURL:    baseURL,
		username:   username,
		password:   password,
		httpClient: &http.Client{Timeout: 20 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(200*time.Millisecond), 5),
	}
}

// ensureSession returns a valid session token, logging in at most once even
// when called concurrently from several request paths.
func (c *Client) ensureSession(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session.valid(time.Now()) {
		return c.session.token, nil
	}

	logger.L.Info("Brokerage session missing or expiring, logging in", "baseURL", c.baseURL)
	body, err := json.Marshal(map[string]string{
		"login":    c.username,
		"password": c.password,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sessions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("brokerage login request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("brokerage login returned status %d", resp.StatusCode)
	}

	var loginResp struct {
		Data struct {
			SessionToken string `json:"session-token"`
			ExpiresAt    string `json:"session-expiration"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&loginResp); err != nil {
		return "", fmt.Errorf("failed to decode brokerage login response: %w", err)
	}
	if loginResp.Data.SessionToken == "" {
		return "", fmt.Errorf("brokerage login response missing session token")
	}

	expiresAt := time.Now().Add(24 * time.Hour)
	if t, err := time.Parse(time.RFC3339, loginResp.Data.ExpiresAt); err == nil {
		expiresAt = t
	}
	c.session = session{token: loginResp.Data.SessionToken, expiresAt: expiresAt}
	logger.L.Info("Brokerage session established", "expiresAt", expiresAt.Format(time.RFC3339))
	return c.session.token, nil
}

// invalidateSession drops the cached token after the API rejected it.
func (c *Client) invalidateSession() {
	c.mu.Lock()
	c.session = session{}
	c.mu.Unlock()
}

// get performs an authenticated GET with throttling, retry with backoff on
// 429/5xx, and a single re-login when the session token is rejected.
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	var lastErr error
	backoff := initialBackoff
	relogin := false

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		token, err := c.ensureSession(ctx)
		if err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", token)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else {
			body, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()
			switch {
			case readErr != nil:
				lastErr = readErr
			case resp.StatusCode == http.StatusOK:
				return body, nil
			case resp.StatusCode == http.StatusUnauthorized && !relogin:
				// Token revoked server-side; retry once with a fresh login.
				logger.L.Warn("Brokerage rejected session token, re-authenticating", "path", path)
				c.invalidateSession()
				relogin = true
				continue
			case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
				lastErr = fmt.Errorf("brokerage returned status %d for %s", resp.StatusCode, path)
			default:
				return nil, fmt.Errorf("brokerage returned status %d for %s", resp.StatusCode, path)
			}
		}

		if attempt < maxAttempts {
			logger.L.Warn("Brokerage request failed, retrying", "path", path, "attempt", attempt, "error", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}
	return nil, fmt.Errorf("brokerage request failed after %d attempts: %w", maxAttempts, lastErr)
}

// FetchTransactions returns the raw transaction payload for an account. The
// caller hands it to the ledger parser; no decoding happens here.
func (c *Client) FetchTransactions(ctx context.Context, accountID string) ([]byte, error) {
	return c.get(ctx, fmt.Sprintf("/accounts/%s/transactions", accountID))
}

// FetchBalances returns the raw account balance payload.
func (c *Client) FetchBalances(ctx context.Context, accountID string) ([]byte, error) {
	return c.get(ctx, fmt.Sprintf("/accounts/%s/balances", accountID))
}
