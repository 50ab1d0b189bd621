package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"finbot/internal/domain"
)

// FMP is the primary market-data source. It is the only provider that
// implements the full FundamentalsProvider surface; the fallback chain uses
// it for quotes first because its schema is the richest.
type FMP struct {
	apiKey   string
	apiBase  string
	client   *http.Client
	throttle *Throttle
	logger   *slog.Logger
}

type FMPConfig struct {
	APIKey   string
	APIBase  string
	Timeout  time.Duration
	Throttle *Throttle
	Logger   *slog.Logger
}

func NewFMP(cfg FMPConfig) *FMP {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://financialmodelingprep.com/api/v3"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Throttle == nil {
		cfg.Throttle = NewThrottle(5)
	}
	return &FMP{
		apiKey:   cfg.APIKey,
		apiBase:  cfg.APIBase,
		client:   SharedHTTPClient(cfg.Timeout),
		throttle: cfg.Throttle,
		logger:   cfg.Logger,
	}
}

func (f *FMP) Name() string { return "FMP" }

// getJSON performs a throttled GET against an FMP endpoint and decodes the
// body into out. The apikey query parameter is appended here so callers
// never handle credentials.
func (f *FMP) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	u, err := url.Parse(f.apiBase + path)
	if err != nil {
		return fmt.Errorf("fmp: bad endpoint %q: %w", path, err)
	}
	if query == nil {
		query = url.Values{}
	}
	query.Set("apikey", f.apiKey)
	u.RawQuery = query.Encode()

	if err := f.throttle.Wait(ctx, u.Host); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("fmp not reachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("fmp: invalid API key")
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fmp returned %d for %s", resp.StatusCode, path)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("fmp: decode %s: %w", path, err)
	}
	return nil
}

type fmpQuote struct {
	Symbol            string  `json:"symbol"`
	Price             float64 `json:"price"`
	Change            float64 `json:"change"`
	ChangesPercentage float64 `json:"changesPercentage"`
	Volume            int64   `json:"volume"`
	PreviousClose     float64 `json:"previousClose"`
}

func (f *FMP) Quote(ctx context.Context, ticker string) (*domain.Quote, error) {
	var quotes []fmpQuote
	if err := f.getJSON(ctx, "/quote/"+url.PathEscape(ticker), nil, &quotes); err != nil {
		return nil, err
	}
	if len(quotes) == 0 {
		return nil, fmt.Errorf("fmp: no quote data for %s", ticker)
	}
	q := quotes[0]
	return &domain.Quote{
		Ticker:        q.Symbol,
		Price:         q.Price,
		Change:        q.Change,
		ChangePercent: q.ChangesPercentage,
		Volume:        q.Volume,
		PreviousClose: q.PreviousClose,
	}, nil
}

type fmpProfile struct {
	Symbol      string  `json:"symbol"`
	CompanyName string  `json:"companyName"`
	Sector      string  `json:"sector"`
	Industry    string  `json:"industry"`
	MktCap      float64 `json:"mktCap"`
}

func (f *FMP) Profile(ctx context.Context, ticker string) (*domain.CompanyProfile, error) {
	var profiles []fmpProfile
	if err := f.getJSON(ctx, "/profile/"+url.PathEscape(ticker), nil, &profiles); err != nil {
		return nil, err
	}
	if len(profiles) == 0 {
		return nil, fmt.Errorf("fmp: no profile data for %s", ticker)
	}
	p := profiles[0]
	return &domain.CompanyProfile{
		Ticker:      p.Symbol,
		CompanyName: p.CompanyName,
		Sector:      p.Sector,
		Industry:    p.Industry,
		MarketCap:   p.MktCap,
	}, nil
}

type fmpRatios struct {
	PERatioTTM         float64 `json:"peRatioTTM"`
	ReturnOnEquityTTM  float64 `json:"returnOnEquityTTM"`
	NetProfitMarginTTM float64 `json:"netProfitMarginTTM"`
	DebtEquityRatioTTM float64 `json:"debtEquityRatioTTM"`
	DividendYieldTTM   float64 `json:"dividendYielTTM"`
}

func (f *FMP) Ratios(ctx context.Context, ticker string) (*domain.KeyRatios, error) {
	var ratios []fmpRatios
	if err := f.getJSON(ctx, "/ratios-ttm/"+url.PathEscape(ticker), nil, &ratios); err != nil {
		return nil, err
	}
	if len(ratios) == 0 {
		return nil, fmt.Errorf("fmp: no ratio data for %s", ticker)
	}
	r := ratios[0]
	return &domain.KeyRatios{
		PERatio:         r.PERatioTTM,
		ReturnOnEquity:  r.ReturnOnEquityTTM,
		NetProfitMargin: r.NetProfitMarginTTM,
		DebtToEquity:    r.DebtEquityRatioTTM,
		DividendYield:   r.DividendYieldTTM,
	}, nil
}

type fmpIncome struct {
	Revenue   float64 `json:"revenue"`
	NetIncome float64 `json:"netIncome"`
	EPS       float64 `json:"eps"`
	Period    string  `json:"period"`
	Date      string  `json:"date"`
}

func (f *FMP) Income(ctx context.Context, ticker string) (*domain.IncomeSnapshot, error) {
	query := url.Values{"limit": {"1"}}
	var statements []fmpIncome
	if err := f.getJSON(ctx, "/income-statement/"+url.PathEscape(ticker), query, &statements); err != nil {
		return nil, err
	}
	if len(statements) == 0 {
		return nil, fmt.Errorf("fmp: no income data for %s", ticker)
	}
	s := statements[0]
	period := s.Period
	if s.Date != "" {
		period = s.Period + " " + s.Date
	}
	return &domain.IncomeSnapshot{
		Revenue:   s.Revenue,
		NetIncome: s.NetIncome,
		EPS:       s.EPS,
		Period:    period,
	}, nil
}

type fmpNews struct {
	Title         string `json:"title"`
	Site          string `json:"site"`
	PublishedDate string `json:"publishedDate"`
}

func (f *FMP) News(ctx context.Context, ticker string, limit int) ([]domain.NewsItem, error) {
	if limit <= 0 {
		limit = 3
	}
	query := url.Values{
		"tickers": {ticker},
		"limit":   {fmt.Sprintf("%d", limit)},
	}
	var articles []fmpNews
	if err := f.getJSON(ctx, "/stock_news", query, &articles); err != nil {
		return nil, err
	}
	if len(articles) == 0 {
		return nil, fmt.Errorf("fmp: no news for %s", ticker)
	}
	items := make([]domain.NewsItem, 0, len(articles))
	for _, a := range articles {
		items = append(items, domain.NewsItem{
			Title:       a.Title,
			Site:        a.Site,
			PublishedAt: a.PublishedDate,
		})
	}
	return items, nil
}

type fmpEarnings struct {
	Date                string  `json:"date"`
	Symbol              string  `json:"symbol"`
	ActualEarningResult float64 `json:"actualEarningResult"`
	EstimatedEarning    float64 `json:"estimatedEarning"`
}

func (f *FMP) Earnings(ctx context.Context, ticker string) (*domain.EarningsReport, error) {
	var reports []fmpEarnings
	if err := f.getJSON(ctx, "/earnings-surprises/"+url.PathEscape(ticker), nil, &reports); err != nil {
		return nil, err
	}
	if len(reports) == 0 {
		return nil, fmt.Errorf("fmp: no earnings data for %s", ticker)
	}
	r := reports[0]
	surprise := 0.0
	if r.EstimatedEarning != 0 {
		surprise = (r.ActualEarningResult - r.EstimatedEarning) / r.EstimatedEarning * 100
	}
	return &domain.EarningsReport{
		Ticker:    r.Symbol,
		Actual:    r.ActualEarningResult,
		Estimated: r.EstimatedEarning,
		Surprise:  surprise,
		Date:      r.Date,
	}, nil
}
