package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/username/optionfolio/backend/src/logger"
	"github.com/username/optionfolio/backend/src/models"
	"golang.org/x/net/publicsuffix"
)

const quoteUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/108.0.0.0 Safari/537.36"

type yahooQuoteResponse struct {
	QuoteResponse struct {
		Result []struct {
			Symbol             string  `json:"symbol"`
			RegularMarketPrice float64 `json:"regularMarketPrice"`
			Bid                float64 `json:"bid"`
			Ask                float64 `json:"ask"`
		} `json:"result"`
		Error interface{} `json:"error"`
	} `json:"quoteResponse"`
}

type yahooOptionChainResponse struct {
	OptionChain struct {
		Result []struct {
			Options []struct {
				ExpirationDate int64 `json:"expirationDate"`
				Puts           []struct {
					ContractSymbol string  `json:"contractSymbol"`
					Strike         float64 `json:"strike"`
					Bid            float64 `json:"bid"`
					Ask            float64 `json:"ask"`
					Expiration     int64   `json:"expiration"`
				} `json:"puts"`
			} `json:"options"`
		} `json:"result"`
		Error interface{} `json:"error"`
	} `json:"optionChain"`
}

// quoteServiceImpl scrapes the market-data provider's public quote API. The
// provider requires session cookies plus a crumb token on every data call.
type quoteServiceImpl struct {
	baseURL    string
	httpClient http.Client
	quoteCache *cache.Cache

	mu    sync.Mutex // guards crumb across concurrent data calls
	crumb string
}

// NewQuoteService builds the provider client with a cookie jar and bootstraps
// the crumb-protected session. A failed bootstrap is retried lazily on the
// first data call.
func NewQuoteService(baseURL string) QuoteService {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		logger.L.Error("failed to create cookie jar", "error", err)
	}

	s := &quoteServiceImpl{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: http.Client{
			Jar:     jar,
			Timeout: 20 * time.Second,
		},
		quoteCache: cache.New(1*time.Minute, 5*time.Minute),
	}

	crumb, err := s.initializeSession()
	if err != nil {
		logger.L.Error("failed to initialize market-data session, quote fetching may fail", "error", err)
	} else {
		s.crumb = crumb
	}
	return s
}

// initializeSession collects the provider's session cookies and returns the
// crumb token. It does not touch s.crumb; callers store it under s.mu.
func (s *quoteServiceImpl) initializeSession() (string, error) {
	req, err := http.NewRequest("GET", s.baseURL+"/v1/test/getcrumb", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", quoteUserAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("crumb request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("crumb endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading crumb response: %w", err)
	}
	crumb := strings.TrimSpace(string(body))
	if crumb == "" {
		return "", fmt.Errorf("crumb endpoint returned an empty token")
	}

	logger.L.Info("market-data session initialized")
	return crumb, nil
}

// ensureSession returns the current crumb, re-initializing the session under
// the lock if the bootstrap failed. At most one caller re-initializes; the
// rest wait and reuse its token.
func (s *quoteServiceImpl) ensureSession() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.crumb != "" {
		return s.crumb, nil
	}
	logger.L.Warn("market-data crumb missing, re-initializing session")
	crumb, err := s.initializeSession()
	if err != nil {
		return "", err
	}
	s.crumb = crumb
	return crumb, nil
}

func (s *quoteServiceImpl) GetQuote(ctx context.Context, symbol string) (models.Quote, error) {
	if cached, found := s.quoteCache.Get(symbol); found {
		if q, ok := cached.(models.Quote); ok {
			return q, nil
		}
	}

	crumb, err := s.ensureSession()
	if err != nil {
		return models.Quote{}, err
	}

	quoteURL := fmt.Sprintf("%s/v7/finance/quote?symbols=%s&crumb=%s", s.baseURL, symbol, crumb)
	var data yahooQuoteResponse
	if err := s.getJSON(ctx, quoteURL, &data); err != nil {
		return models.Quote{}, err
	}

	if data.QuoteResponse.Error != nil || len(data.QuoteResponse.Result) == 0 {
		return models.Quote{}, fmt.Errorf("no quote result for symbol %s", symbol)
	}

	r := data.QuoteResponse.Result[0]
	quote := models.Quote{
		Symbol: r.Symbol,
		Last:   r.RegularMarketPrice,
		Bid:    r.Bid,
		Ask:    r.Ask,
	}
	s.quoteCache.Set(symbol, quote, cache.DefaultExpiration)
	return quote, nil
}

// GetCandidatePut returns the nearest-expiration put at the highest strike at
// or below the current stock price, the contract a cash-secured seller would
// write first.
func (s *quoteServiceImpl) GetCandidatePut(ctx context.Context, symbol string, stockPrice float64) (models.OptionChainEntry, error) {
	crumb, err := s.ensureSession()
	if err != nil {
		return models.OptionChainEntry{}, err
	}

	chainURL := fmt.Sprintf("%s/v7/finance/options/%s?crumb=%s", s.baseURL, symbol, crumb)
	var data yahooOptionChainResponse
	if err := s.getJSON(ctx, chainURL, &data); err != nil {
		return models.OptionChainEntry{}, err
	}

	if data.OptionChain.Error != nil || len(data.OptionChain.Result) == 0 ||
		len(data.OptionChain.Result[0].Options) == 0 {
		return models.OptionChainEntry{}, fmt.Errorf("no option chain for symbol %s", symbol)
	}

	// Strikes arrive sorted ascending; keep the last one at or below price.
	cycle := data.OptionChain.Result[0].Options[0]
	var candidate models.OptionChainEntry
	found := false
	for _, put := range cycle.Puts {
		if put.Strike > stockPrice {
			break
		}
		expiration := put.Expiration
		if expiration == 0 {
			expiration = cycle.ExpirationDate
		}
		candidate = models.OptionChainEntry{
			Symbol:     put.ContractSymbol,
			Strike:     put.Strike,
			Bid:        put.Bid,
			Ask:        put.Ask,
			Expiration: time.Unix(expiration, 0).UTC(),
		}
		found = true
	}
	if !found {
		return models.OptionChainEntry{}, fmt.Errorf("no put at or below price %.2f for symbol %s", stockPrice, symbol)
	}
	return candidate, nil
}

func (s *quoteServiceImpl) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", quoteUserAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("market-data request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("market-data API returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
