package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"finbot/internal/domain"
)

// AlphaVantage is the second quote source in the fallback chain. Its
// GLOBAL_QUOTE payload carries every number as a string under positional
// keys, so all parsing happens here and the rest of the system only sees
// the canonical Quote.
type AlphaVantage struct {
	apiKey   string
	apiBase  string
	client   *http.Client
	throttle *Throttle
	logger   *slog.Logger
}

type AlphaVantageConfig struct {
	APIKey   string
	APIBase  string
	Timeout  time.Duration
	Throttle *Throttle
	Logger   *slog.Logger
}

func NewAlphaVantage(cfg AlphaVantageConfig) *AlphaVantage {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://www.alphavantage.co"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Throttle == nil {
		cfg.Throttle = NewThrottle(5)
	}
	return &AlphaVantage{
		apiKey:   cfg.APIKey,
		apiBase:  cfg.APIBase,
		client:   SharedHTTPClient(cfg.Timeout),
		throttle: cfg.Throttle,
		logger:   cfg.Logger,
	}
}

func (a *AlphaVantage) Name() string { return "Alpha Vantage" }

type avGlobalQuote struct {
	GlobalQuote struct {
		Symbol        string `json:"01. symbol"`
		Price         string `json:"05. price"`
		Volume        string `json:"06. volume"`
		PreviousClose string `json:"08. previous close"`
		Change        string `json:"09. change"`
		ChangePercent string `json:"10. change percent"`
	} `json:"Global Quote"`
	Note         string `json:"Note"`
	ErrorMessage string `json:"Error Message"`
}

func (a *AlphaVantage) Quote(ctx context.Context, ticker string) (*domain.Quote, error) {
	u, err := url.Parse(a.apiBase + "/query")
	if err != nil {
		return nil, err
	}
	query := url.Values{
		"function": {"GLOBAL_QUOTE"},
		"symbol":   {ticker},
		"apikey":   {a.apiKey},
	}
	u.RawQuery = query.Encode()

	if err := a.throttle.Wait(ctx, u.Host); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("alphavantage not reachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("alphavantage returned %d", resp.StatusCode)
	}

	var payload avGlobalQuote
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("alphavantage: decode: %w", err)
	}
	if payload.ErrorMessage != "" {
		return nil, fmt.Errorf("alphavantage: %s", payload.ErrorMessage)
	}
	// A "Note" body with an empty quote means the free-tier rate limit hit.
	if payload.GlobalQuote.Symbol == "" {
		if payload.Note != "" {
			return nil, fmt.Errorf("alphavantage: rate limited")
		}
		return nil, fmt.Errorf("alphavantage: no quote data for %s", ticker)
	}

	gq := payload.GlobalQuote
	price, err := strconv.ParseFloat(gq.Price, 64)
	if err != nil {
		return nil, fmt.Errorf("alphavantage: bad price %q: %w", gq.Price, err)
	}
	change, _ := strconv.ParseFloat(gq.Change, 64)
	changePct, _ := strconv.ParseFloat(strings.TrimSuffix(gq.ChangePercent, "%"), 64)
	volume, _ := strconv.ParseInt(gq.Volume, 10, 64)
	prevClose, _ := strconv.ParseFloat(gq.PreviousClose, 64)

	return &domain.Quote{
		Ticker:        gq.Symbol,
		Price:         price,
		Change:        change,
		ChangePercent: changePct,
		Volume:        volume,
		PreviousClose: prevClose,
	}, nil
}
