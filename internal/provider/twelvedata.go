package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"finbot/internal/domain"
)

// TwelveData is the last quote source in the fallback chain. Like Alpha
// Vantage it serializes numbers as strings; errors come back as an HTTP 200
// with a status field.
type TwelveData struct {
	apiKey   string
	apiBase  string
	client   *http.Client
	throttle *Throttle
	logger   *slog.Logger
}

type TwelveDataConfig struct {
	APIKey   string
	APIBase  string
	Timeout  time.Duration
	Throttle *Throttle
	Logger   *slog.Logger
}

func NewTwelveData(cfg TwelveDataConfig) *TwelveData {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.twelvedata.com"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Throttle == nil {
		cfg.Throttle = NewThrottle(5)
	}
	return &TwelveData{
		apiKey:   cfg.APIKey,
		apiBase:  cfg.APIBase,
		client:   SharedHTTPClient(cfg.Timeout),
		throttle: cfg.Throttle,
		logger:   cfg.Logger,
	}
}

func (t *TwelveData) Name() string { return "Twelve Data" }

type tdQuote struct {
	Symbol        string `json:"symbol"`
	Close         string `json:"close"`
	Change        string `json:"change"`
	PercentChange string `json:"percent_change"`
	Volume        string `json:"volume"`
	PreviousClose string `json:"previous_close"`
	Status        string `json:"status"`
	Message       string `json:"message"`
}

func (t *TwelveData) Quote(ctx context.Context, ticker string) (*domain.Quote, error) {
	u, err := url.Parse(t.apiBase + "/quote")
	if err != nil {
		return nil, err
	}
	query := url.Values{
		"symbol": {ticker},
		"apikey": {t.apiKey},
	}
	u.RawQuery = query.Encode()

	if err := t.throttle.Wait(ctx, u.Host); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("twelvedata not reachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("twelvedata returned %d", resp.StatusCode)
	}

	var payload tdQuote
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("twelvedata: decode: %w", err)
	}
	if payload.Status == "error" {
		return nil, fmt.Errorf("twelvedata: %s", payload.Message)
	}
	if payload.Close == "" {
		return nil, fmt.Errorf("twelvedata: no quote data for %s", ticker)
	}

	price, err := strconv.ParseFloat(payload.Close, 64)
	if err != nil {
		return nil, fmt.Errorf("twelvedata: bad close %q: %w", payload.Close, err)
	}
	change, _ := strconv.ParseFloat(payload.Change, 64)
	changePct, _ := strconv.ParseFloat(payload.PercentChange, 64)
	volume, _ := strconv.ParseInt(payload.Volume, 10, 64)
	prevClose, _ := strconv.ParseFloat(payload.PreviousClose, 64)

	return &domain.Quote{
		Ticker:        payload.Symbol,
		Price:         price,
		Change:        change,
		ChangePercent: changePct,
		Volume:        volume,
		PreviousClose: prevClose,
	}, nil
}
