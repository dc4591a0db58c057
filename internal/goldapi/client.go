package goldapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"gold_ledger/internal/apperr"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// DefaultBaseURL is the goldapi.io endpoint root
const DefaultBaseURL = "https://www.goldapi.io/api"

var (
	gramsPerTroyOunce = decimal.RequireFromString("31.1035")
	defaultUSDToINR   = decimal.RequireFromString("83.5")
	defaultMargin     = decimal.RequireFromString("0.02")
)

// Failure reasons reported by FetchError
const (
	ReasonNotConfigured = "not_configured"
	ReasonTransport     = "transport"
	ReasonStatus        = "status"
	ReasonMalformed     = "malformed"
)

// FetchError is returned for every failed fetch. It never carries a usable rate.
type FetchError struct {
	Reason string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("gold feed %s: %v", e.Reason, e.Err)
}

// Unwrap exposes the apperr classification and the cause
func (e *FetchError) Unwrap() []error {
	return []error{apperr.Wrap(apperr.KindRateFetch, "Live gold rate unavailable", e.Err), e.Err}
}

// LiveRate is a converted quote in rupees per gram
type LiveRate struct {
	BuyRate   decimal.Decimal `json:"buyRate"`
	SellRate  decimal.Decimal `json:"sellRate"`
	RawPrice  decimal.Decimal `json:"rawPrice"` // USD per troy ounce as returned by the feed
	FetchedAt time.Time       `json:"fetchedAt"`
	Source    string          `json:"source"`
}

// Config configures the feed client
type Config struct {
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
	USDToINR decimal.Decimal
	Margin   decimal.Decimal // Applied symmetrically around the mid price
}

// Client fetches XAU/USD from a goldapi.io-compatible feed
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	usdToINR   decimal.Decimal
	margin     decimal.Decimal
	logger     logrus.FieldLogger
	now        func() time.Time
}

// quote is the subset of the feed payload we rely on
type quote struct {
	Price    *json.Number `json:"price"`
	Metal    string       `json:"metal"`
	Currency string       `json:"currency"`
}

// NewClient creates a feed client, filling unset config with defaults
func NewClient(cfg Config, logger logrus.FieldLogger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if !cfg.USDToINR.IsPositive() {
		cfg.USDToINR = defaultUSDToINR
	}
	if cfg.Margin.IsNegative() || cfg.Margin.IsZero() {
		cfg.Margin = defaultMargin
	}
	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		usdToINR:   cfg.USDToINR,
		margin:     cfg.Margin,
		logger:     logger.WithField("component", "goldapi"),
		now:        time.Now,
	}
}

// Configured reports whether an API key is present
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// FetchLiveRate asks the feed for the current spot price and converts it to rupees per gram
func (c *Client) FetchLiveRate(ctx context.Context) (*LiveRate, error) {
	if !c.Configured() {
		return nil, &FetchError{Reason: ReasonNotConfigured, Err: errors.New("GOLD_API_KEY not set")}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/XAU/USD", nil)
	if err != nil {
		return nil, &FetchError{Reason: ReasonTransport, Err: err}
	}
	req.Header.Set("x-access-token", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{Reason: ReasonTransport, Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &FetchError{Reason: ReasonStatus, Err: fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))}
	}

	var q quote
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&q); err != nil {
		return nil, &FetchError{Reason: ReasonMalformed, Err: fmt.Errorf("decode body: %w", err)}
	}
	if q.Price == nil {
		return nil, &FetchError{Reason: ReasonMalformed, Err: errors.New("payload has no price")}
	}
	price, err := decimal.NewFromString(q.Price.String())
	if err != nil || !price.IsPositive() {
		return nil, &FetchError{Reason: ReasonMalformed, Err: fmt.Errorf("unusable price %q", q.Price.String())}
	}

	rate := c.convert(price)
	c.logger.WithFields(logrus.Fields{
		"raw_price": price.String(),
		"buy_rate":  rate.BuyRate.String(),
		"sell_rate": rate.SellRate.String(),
	}).Info("Fetched live gold price")
	return rate, nil
}

// convert turns USD per troy ounce into rupees per gram with the margin applied
func (c *Client) convert(pricePerOunce decimal.Decimal) *LiveRate {
	mid := pricePerOunce.Div(gramsPerTroyOunce).Mul(c.usdToINR)
	one := decimal.NewFromInt(1)
	return &LiveRate{
		BuyRate:   mid.Mul(one.Add(c.margin)).Round(2),
		SellRate:  mid.Mul(one.Sub(c.margin)).Round(2),
		RawPrice:  pricePerOunce,
		FetchedAt: c.now().UTC(),
		Source:    "goldapi",
	}
}
