package marketdata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/eddiefleurent/schrute_spreads/internal/retry"
	"github.com/eddiefleurent/schrute_spreads/internal/spread"
)

const (
	sandboxBaseURL    = "https://sandbox.tradier.com/v1"
	productionBaseURL = "https://api.tradier.com/v1"

	// Documented requests-per-minute budgets, logged when headers show we
	// are close to the edge.
	sandboxRateLimit    = 120
	productionRateLimit = 500

	defaultHTTPTimeout = 10 * time.Second
	maxErrorBodyBytes  = 64 << 10

	userAgent = "schrute-spreads/1.0 (+tradier)"

	optionTypeCall = "call"
	optionTypePut  = "put"
)

// APIError is a non-success response from the Tradier API.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Body)
}

// isPermanentAPIError reports whether err is a client-side API error that
// retrying cannot fix (4xx other than 429).
func isPermanentAPIError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 400 && apiErr.Status < 500 && apiErr.Status != http.StatusTooManyRequests
	}
	return false
}

// retryableRequestError keeps retries off permanent API rejections while
// still repeating network-level and 5xx failures.
func retryableRequestError(err error) bool {
	if isPermanentAPIError(err) {
		return false
	}
	return retry.Transient(err)
}

// defaultRetryConfig bounds per-request retries. Market data calls are cheap
// to repeat and never mutate state.
var defaultRetryConfig = retry.Config{
	MaxRetries:     2,
	InitialBackoff: 500 * time.Millisecond,
	MaxBackoff:     5 * time.Second,
	Timeout:        30 * time.Second,
	Classify:       retryableRequestError,
}

// TradierClient is a hand-rolled client for the Tradier market data REST
// API. It only reads; no order endpoints are wired.
type TradierClient struct {
	apiKey     string
	baseURL    string
	sandbox    bool
	httpClient *http.Client
	logger     *log.Logger
	retryCfg   retry.Config
}

var _ Provider = (*TradierClient)(nil)

// NewTradierClient returns a client against the production or sandbox API
// with the default HTTP timeout.
func NewTradierClient(apiKey string, sandbox bool, logger *log.Logger) *TradierClient {
	return NewTradierClientWithTimeout(apiKey, sandbox, logger, defaultHTTPTimeout)
}

// NewTradierClientWithTimeout returns a client with a custom HTTP timeout.
func NewTradierClientWithTimeout(apiKey string, sandbox bool, logger *log.Logger, timeout time.Duration) *TradierClient {
	return NewTradierClientWithHTTPClient(apiKey, sandbox, logger, &http.Client{Timeout: timeout})
}

// NewTradierClientWithBaseURL returns a client against a custom base URL,
// for tests and API-compatible gateways. An empty baseURL falls back to the
// sandbox or production default.
func NewTradierClientWithBaseURL(apiKey string, sandbox bool, logger *log.Logger, baseURL string) *TradierClient {
	c := NewTradierClient(apiKey, sandbox, logger)
	if baseURL != "" {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
	return c
}

// WithHTTPClient swaps the underlying http.Client and returns the client for
// chaining.
func (c *TradierClient) WithHTTPClient(httpClient *http.Client) *TradierClient {
	if httpClient != nil {
		c.httpClient = httpClient
	}
	return c
}

// NewTradierClientWithHTTPClient returns a client using the supplied
// http.Client, for tests and callers with custom transports.
func NewTradierClientWithHTTPClient(apiKey string, sandbox bool, logger *log.Logger, httpClient *http.Client) *TradierClient {
	baseURL := productionBaseURL
	if sandbox {
		baseURL = sandboxBaseURL
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &TradierClient{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		sandbox:    sandbox,
		httpClient: httpClient,
		logger:     logger,
		retryCfg:   defaultRetryConfig,
	}
}

// singleOrArray unmarshals a JSON value that Tradier serves as a bare object
// when there is one element and as an array when there are several.
type singleOrArray[T any] []T

func (s *singleOrArray[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '[' {
		return json.Unmarshal(b, (*[]T)(s))
	}
	var one T
	if err := json.Unmarshal(b, &one); err != nil {
		return err
	}
	*s = append(*s, one)
	return nil
}

type quotesResponse struct {
	Quotes struct {
		Quote singleOrArray[quoteItem] `json:"quote"`
	} `json:"quotes"`
}

type quoteItem struct {
	Symbol    string  `json:"symbol"`
	Last      float64 `json:"last"`
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	PrevClose float64 `json:"prevclose"`
	Volume    int64   `json:"volume"`
}

type expirationsResponse struct {
	Expirations struct {
		Date []string `json:"date"`
	} `json:"expirations"`
}

type chainResponse struct {
	Options struct {
		Option singleOrArray[chainOption] `json:"option"`
	} `json:"options"`
}

type chainOption struct {
	Symbol         string       `json:"symbol"`
	OptionType     string       `json:"option_type"`
	ExpirationDate string       `json:"expiration_date"`
	Strike         float64      `json:"strike"`
	Bid            float64      `json:"bid"`
	Ask            float64      `json:"ask"`
	Last           float64      `json:"last"`
	Volume         int64        `json:"volume"`
	OpenInterest   int64        `json:"open_interest"`
	Greeks         *chainGreeks `json:"greeks,omitempty"`
}

type chainGreeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
	MidIV float64 `json:"mid_iv"`
}

type historyResponse struct {
	History struct {
		Day singleOrArray[historyDay] `json:"day"`
	} `json:"history"`
}

type historyDay struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

type clockResponse struct {
	Clock struct {
		State       string `json:"state"`
		Description string `json:"description"`
	} `json:"clock"`
}

// GetQuote returns the latest quote for symbol.
func (c *TradierClient) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	params := url.Values{}
	params.Set("symbols", symbol)
	params.Set("greeks", "false")

	resp, err := requestJSON[quotesResponse](ctx, c, "quote request", "/markets/quotes?"+params.Encode())
	if err != nil {
		return nil, err
	}

	for _, q := range resp.Quotes.Quote {
		if strings.EqualFold(q.Symbol, symbol) {
			return &Quote{
				Symbol:    q.Symbol,
				Last:      q.Last,
				Bid:       q.Bid,
				Ask:       q.Ask,
				PrevClose: q.PrevClose,
				Volume:    q.Volume,
			}, nil
		}
	}
	return nil, fmt.Errorf("no quote found for symbol: %s", symbol)
}

// GetDailyHistory returns up to days trailing daily bars for symbol, oldest
// first.
func (c *TradierClient) GetDailyHistory(ctx context.Context, symbol string, days int) ([]Bar, error) {
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -days)

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", "daily")
	params.Set("start", start.Format("2006-01-02"))
	params.Set("end", end.Format("2006-01-02"))

	resp, err := requestJSON[historyResponse](ctx, c, "history request", "/markets/history?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("failed to get historical data for %s: %w", symbol, err)
	}

	bars := make([]Bar, 0, len(resp.History.Day))
	for _, d := range resp.History.Day {
		bars = append(bars, Bar{
			Date:   d.Date,
			Open:   d.Open,
			High:   d.High,
			Low:    d.Low,
			Close:  d.Close,
			Volume: d.Volume,
		})
	}
	return bars, nil
}

// GetExpirations returns upcoming option expirations for symbol, ascending.
func (c *TradierClient) GetExpirations(ctx context.Context, symbol string) ([]time.Time, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("includeAllRoots", "true")
	params.Set("strikes", "false")

	resp, err := requestJSON[expirationsResponse](ctx, c, "expirations request", "/markets/options/expirations?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("failed to get expirations for %s: %w", symbol, err)
	}

	exps := make([]time.Time, 0, len(resp.Expirations.Date))
	for _, raw := range resp.Expirations.Date {
		exp, err := time.Parse("2006-01-02", raw)
		if err != nil {
			c.logger.Printf("Skipping unparseable expiration %q for %s: %v", raw, symbol, err)
			continue
		}
		exps = append(exps, exp)
	}
	sort.Slice(exps, func(i, j int) bool { return exps[i].Before(exps[j]) })
	return exps, nil
}

// GetChain returns the full option chain for one expiration, with the
// underlying spot stitched in from a quote lookup.
func (c *TradierClient) GetChain(ctx context.Context, symbol string, expiration time.Time) (*spread.ChainSnapshot, error) {
	quote, err := c.GetQuote(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying quote for %s: %w", symbol, err)
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("expiration", expiration.Format("2006-01-02"))
	params.Set("greeks", "true")

	resp, err := requestJSON[chainResponse](ctx, c, "chain request", "/markets/options/chains?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("failed to get option chain for %s: %w", symbol, err)
	}

	dte := daysUntil(time.Now().UTC(), expiration)
	if dte < 0 {
		dte = 0
	}

	snap := &spread.ChainSnapshot{
		Symbol:     symbol,
		Spot:       quote.Last,
		Expiration: expiration,
		DTE:        dte,
	}
	for _, opt := range resp.Options.Option {
		q := spread.Quote{
			Strike:       opt.Strike,
			Expiration:   expiration,
			Bid:          opt.Bid,
			Ask:          opt.Ask,
			OpenInterest: opt.OpenInterest,
			Volume:       opt.Volume,
		}
		if opt.Greeks != nil {
			q.ImpliedVol = opt.Greeks.MidIV
		}
		switch strings.ToLower(opt.OptionType) {
		case optionTypeCall:
			snap.Calls = append(snap.Calls, q)
		case optionTypePut:
			snap.Puts = append(snap.Puts, q)
		}
	}
	sort.Slice(snap.Calls, func(i, j int) bool { return snap.Calls[i].Strike < snap.Calls[j].Strike })
	sort.Slice(snap.Puts, func(i, j int) bool { return snap.Puts[i].Strike < snap.Puts[j].Strike })
	return snap, nil
}

// GetChainNearestDTE fetches the chain whose expiration is closest to
// targetDTE days out.
func (c *TradierClient) GetChainNearestDTE(ctx context.Context, symbol string, targetDTE int) (*spread.ChainSnapshot, error) {
	exps, err := c.GetExpirations(ctx, symbol)
	if err != nil {
		return nil, err
	}
	exp, ok := nearestExpiration(exps, time.Now().UTC(), targetDTE)
	if !ok {
		return nil, fmt.Errorf("%s: %w", symbol, ErrNoExpirations)
	}
	return c.GetChain(ctx, symbol, exp)
}

// IsTradingDay reports whether the exchange clock is in a session today
// (regular hours, premarket or postmarket).
func (c *TradierClient) IsTradingDay(ctx context.Context) (bool, error) {
	resp, err := requestJSON[clockResponse](ctx, c, "clock request", "/markets/clock?delayed=false")
	if err != nil {
		return false, fmt.Errorf("failed to get market clock: %w", err)
	}
	switch strings.ToLower(resp.Clock.State) {
	case "open", "premarket", "postmarket":
		return true, nil
	}
	return false, nil
}

// requestJSON is the retry-wrapped GET helper shared by every endpoint.
func requestJSON[T any](ctx context.Context, c *TradierClient, op, path string) (T, error) {
	return retry.Do(ctx, c.retryCfg, c.logger, op, func(ctx context.Context) (T, error) {
		var out T
		if err := c.makeRequest(ctx, http.MethodGet, path, nil, &out); err != nil {
			return out, err
		}
		return out, nil
	})
}

func (c *TradierClient) makeRequest(ctx context.Context, method, path string, form url.Values, result interface{}) error {
	endpoint := c.baseURL + path

	var body io.Reader = http.NoBody
	if method == http.MethodPost && form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if method == http.MethodPost && form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Printf("Failed to close response body: %v", cerr)
		}
	}()

	if c.sandbox {
		c.logRateLimit(resp)
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
	case http.StatusNoContent:
		return nil
	default:
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		detail := fmt.Sprintf("%s %s (%s) -> %s", method, path, resp.Status, strings.TrimSpace(string(raw)))
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			detail += fmt.Sprintf(" (retry-after: %s)", ra)
		}
		return &APIError{Status: resp.StatusCode, Body: detail}
	}

	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// logRateLimit surfaces how much of the per-minute budget remains. Tradier
// has shipped the header under several spellings.
func (c *TradierClient) logRateLimit(resp *http.Response) {
	var avail string
	for _, h := range []string{"X-Ratelimit-Available", "X-RateLimit-Available", "X-RateLimit-Remaining"} {
		if v := resp.Header.Get(h); v != "" {
			avail = v
			break
		}
	}
	if avail == "" {
		return
	}
	limit := productionRateLimit
	if c.sandbox {
		limit = sandboxRateLimit
	}
	c.logger.Printf("Tradier rate limit: %s of %d requests remaining", avail, limit)
}
