package retrieve

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"

	"finbot/internal/domain"
)

// mockQuotes implements QuoteSource.
type mockQuotes struct {
	quotes map[string]*domain.Quote
	source string
	err    error
}

func (m *mockQuotes) Quote(ctx context.Context, ticker string) (*domain.Quote, string, error) {
	if m.err != nil {
		return nil, "", m.err
	}
	q, ok := m.quotes[ticker]
	if !ok {
		return nil, "", &domain.RetrievalError{
			Subject:  ticker,
			Attempts: []domain.ProviderFailure{{Provider: "mock", Message: "not found"}},
		}
	}
	return q, m.source, nil
}

// mockFundamentals implements domain.FundamentalsProvider.
type mockFundamentals struct {
	profile    *domain.CompanyProfile
	profileErr error
	ratios     *domain.KeyRatios
	ratiosErr  error
	income     *domain.IncomeSnapshot
	incomeErr  error
	news       []domain.NewsItem
	newsErr    error
	earnings   *domain.EarningsReport
	earnErr    error
}

func (m *mockFundamentals) Name() string { return "FMP" }

func (m *mockFundamentals) Quote(ctx context.Context, ticker string) (*domain.Quote, error) {
	return nil, errors.New("not used")
}

func (m *mockFundamentals) Profile(ctx context.Context, ticker string) (*domain.CompanyProfile, error) {
	return m.profile, m.profileErr
}

func (m *mockFundamentals) Ratios(ctx context.Context, ticker string) (*domain.KeyRatios, error) {
	return m.ratios, m.ratiosErr
}

func (m *mockFundamentals) Income(ctx context.Context, ticker string) (*domain.IncomeSnapshot, error) {
	return m.income, m.incomeErr
}

func (m *mockFundamentals) News(ctx context.Context, ticker string, limit int) ([]domain.NewsItem, error) {
	return m.news, m.newsErr
}

func (m *mockFundamentals) Earnings(ctx context.Context, ticker string) (*domain.EarningsReport, error) {
	return m.earnings, m.earnErr
}

// mockSearch implements domain.SearchConnector.
type mockSearch struct {
	result    *domain.SearchResult
	err       error
	lastQuery string
}

func (m *mockSearch) Name() string { return "Perplexity" }

func (m *mockSearch) Search(ctx context.Context, query string, opts domain.SearchOptions) (*domain.SearchResult, error) {
	m.lastQuery = query
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

// mockWatchlist implements domain.WatchlistStore.
type mockWatchlist struct {
	tickers []string
	err     error
}

func (m *mockWatchlist) Tickers(ctx context.Context) ([]string, error) { return m.tickers, m.err }
func (m *mockWatchlist) Add(ctx context.Context, ticker string) error  { return nil }
func (m *mockWatchlist) Remove(ctx context.Context, t string) error    { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testRetriever(q QuoteSource, f domain.FundamentalsProvider, s domain.SearchConnector, w domain.WatchlistStore) *Retriever {
	return NewRetriever(Config{
		Quotes:       q,
		Fundamentals: f,
		Search:       s,
		Watchlist:    w,
		Logger:       testLogger(),
	})
}

func tickerResult(it domain.Intent, ticker string) domain.IntentResult {
	return domain.IntentResult{Intent: it, Entities: domain.TickerEntities{Ticker: ticker}}
}

// --- Direct intents ---

func TestRetrieve_DirectIntents(t *testing.T) {
	r := testRetriever(&mockQuotes{}, nil, nil, nil)
	for _, it := range []domain.Intent{
		domain.IntentGreeting, domain.IntentHelp, domain.IntentSkillsList,
		domain.IntentGeneralConversation, domain.IntentSources,
	} {
		payload, err := r.Retrieve(context.Background(), domain.IntentResult{Intent: it, Entities: domain.NoEntities{}}, domain.Context{})
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", it, err)
		}
		if payload.Direct == "" {
			t.Fatalf("%s: direct text must be set", it)
		}
	}
}

func TestRetrieve_SourcesRecallsPreviousCitations(t *testing.T) {
	r := testRetriever(&mockQuotes{}, nil, nil, nil)

	payload, err := r.Retrieve(context.Background(),
		domain.IntentResult{Intent: domain.IntentSources, Entities: domain.NoEntities{}},
		domain.Context{PreviousSources: []string{"reuters.com/markets", "lesechos.fr/bourse"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(payload.Direct, "reuters.com/markets") ||
		!strings.Contains(payload.Direct, "lesechos.fr/bourse") {
		t.Fatalf("previous citations not recalled: %q", payload.Direct)
	}
}

func TestRetrieve_SourcesWithoutContextListsDataSources(t *testing.T) {
	r := testRetriever(&mockQuotes{}, nil, nil, nil)

	payload, err := r.Retrieve(context.Background(),
		domain.IntentResult{Intent: domain.IntentSources, Entities: domain.NoEntities{}},
		domain.Context{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(payload.Direct, "FMP") {
		t.Fatalf("static source listing expected: %q", payload.Direct)
	}
}

// --- Quote path ---

func TestRetrieve_StockPrice(t *testing.T) {
	quotes := &mockQuotes{
		quotes: map[string]*domain.Quote{"AAPL": {Ticker: "AAPL", Price: 195.4}},
		source: "FMP",
	}
	r := testRetriever(quotes, nil, nil, nil)

	payload, err := r.Retrieve(context.Background(), tickerResult(domain.IntentStockPrice, "AAPL"), domain.Context{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload.Quote == nil || payload.Quote.Price != 195.4 {
		t.Fatalf("quote not populated: %+v", payload)
	}
	if payload.Provenance != "FMP" {
		t.Fatalf("provenance = %q, want FMP", payload.Provenance)
	}
}

func TestRetrieve_StockPrice_ExhaustedChain(t *testing.T) {
	r := testRetriever(&mockQuotes{quotes: map[string]*domain.Quote{}}, nil, nil, nil)

	_, err := r.Retrieve(context.Background(), tickerResult(domain.IntentStockPrice, "ZZZZZ"), domain.Context{})
	if err == nil {
		t.Fatal("expected retrieval error")
	}
	var re *domain.RetrievalError
	if !errors.As(err, &re) {
		t.Fatalf("expected *domain.RetrievalError, got %T", err)
	}
	if re.Intent != domain.IntentStockPrice {
		t.Fatalf("intent not stamped on error: %+v", re)
	}
}

func TestRetrieve_Comparative(t *testing.T) {
	quotes := &mockQuotes{
		quotes: map[string]*domain.Quote{
			"AAPL": {Ticker: "AAPL", Price: 195.4},
			"MSFT": {Ticker: "MSFT", Price: 410.2},
		},
		source: "FMP",
	}
	r := testRetriever(quotes, nil, nil, nil)

	payload, err := r.Retrieve(context.Background(), domain.IntentResult{
		Intent:   domain.IntentComparativeAnalysis,
		Entities: domain.ComparePairEntities{First: "AAPL", Second: "MSFT"},
	}, domain.Context{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload.Quote.Price != 195.4 || payload.SecondQuote.Price != 410.2 {
		t.Fatalf("pair not populated: %+v", payload)
	}
	if payload.SecondTicker != "MSFT" {
		t.Fatalf("second ticker = %q", payload.SecondTicker)
	}
}

// --- Fundamentals family ---

func TestRetrieve_Fundamentals_DegradesOptionalBranches(t *testing.T) {
	f := &mockFundamentals{
		ratios:     &domain.KeyRatios{PERatio: 29.1},
		profileErr: errors.New("profile down"),
		incomeErr:  errors.New("income down"),
	}
	r := testRetriever(&mockQuotes{}, f, nil, nil)

	payload, err := r.Retrieve(context.Background(), tickerResult(domain.IntentFundamentals, "AAPL"), domain.Context{})
	if err != nil {
		t.Fatalf("optional branch failure must not sink the payload: %v", err)
	}
	if payload.Ratios == nil || payload.Profile != nil || payload.Income != nil {
		t.Fatalf("degradation wrong: %+v", payload)
	}
}

func TestRetrieve_Fundamentals_RequiredBranchFails(t *testing.T) {
	f := &mockFundamentals{ratiosErr: errors.New("ratios down")}
	r := testRetriever(&mockQuotes{}, f, nil, nil)

	if _, err := r.Retrieve(context.Background(), tickerResult(domain.IntentFundamentals, "AAPL"), domain.Context{}); err == nil {
		t.Fatal("expected error when the required branch fails")
	}
}

func TestRetrieve_Comprehensive_QuoteIsRequired(t *testing.T) {
	f := &mockFundamentals{
		profile: &domain.CompanyProfile{CompanyName: "Apple Inc."},
		ratios:  &domain.KeyRatios{PERatio: 29.1},
		news:    []domain.NewsItem{{Title: "headline"}},
	}

	ok := &mockQuotes{quotes: map[string]*domain.Quote{"AAPL": {Price: 195.4}}, source: "FMP"}
	r := testRetriever(ok, f, nil, nil)
	payload, err := r.Retrieve(context.Background(), tickerResult(domain.IntentComprehensiveAnalysis, "AAPL"), domain.Context{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload.Quote == nil || payload.Profile == nil || payload.Ratios == nil || len(payload.News) == 0 {
		t.Fatalf("composite payload incomplete: %+v", payload)
	}

	broken := &mockQuotes{quotes: map[string]*domain.Quote{}}
	r = testRetriever(broken, f, nil, nil)
	if _, err := r.Retrieve(context.Background(), tickerResult(domain.IntentComprehensiveAnalysis, "AAPL"), domain.Context{}); err == nil {
		t.Fatal("quote failure must sink the composite payload")
	}
}

// --- News fallback ---

func TestRetrieve_News_FallsBackToSearch(t *testing.T) {
	f := &mockFundamentals{newsErr: errors.New("news endpoint down")}
	s := &mockSearch{result: &domain.SearchResult{
		Summary:   "Apple annonce ses résultats la semaine prochaine.",
		Citations: []string{"reuters.com/apple"},
	}}
	r := testRetriever(&mockQuotes{}, f, s, nil)

	payload, err := r.Retrieve(context.Background(), tickerResult(domain.IntentNews, "AAPL"), domain.Context{})
	if err != nil {
		t.Fatalf("search fallback must carry the intent: %v", err)
	}
	if payload.Summary == "" || len(payload.Sources) != 1 {
		t.Fatalf("fallback payload incomplete: %+v", payload)
	}
	if payload.Provenance != "Perplexity" {
		t.Fatalf("provenance = %q, want Perplexity", payload.Provenance)
	}
	if !strings.Contains(s.lastQuery, "AAPL") {
		t.Fatalf("ticker missing from fallback query: %q", s.lastQuery)
	}
}

func TestRetrieve_News_BothSourcesFail(t *testing.T) {
	f := &mockFundamentals{newsErr: errors.New("news endpoint down")}
	s := &mockSearch{err: errors.New("search timeout")}
	r := testRetriever(&mockQuotes{}, f, s, nil)

	_, err := r.Retrieve(context.Background(), tickerResult(domain.IntentNews, "AAPL"), domain.Context{})
	var re *domain.RetrievalError
	if !errors.As(err, &re) {
		t.Fatalf("expected *domain.RetrievalError, got %v", err)
	}
	if re.Intent != domain.IntentNews || len(re.Attempts) != 2 {
		t.Fatalf("both attempts must be accumulated: %+v", re)
	}
	if re.Attempts[0].Provider != "FMP" || re.Attempts[1].Provider != "Perplexity" {
		t.Fatalf("attempt order wrong: %+v", re.Attempts)
	}
}

// --- Search family ---

func TestRetrieve_SearchIntent(t *testing.T) {
	s := &mockSearch{result: &domain.SearchResult{
		Summary:   "Le VIX est à 14, volatilité basse.",
		Citations: []string{"reuters.com/markets/vix"},
	}}
	r := testRetriever(&mockQuotes{}, nil, s, nil)

	payload, err := r.Retrieve(context.Background(), domain.IntentResult{
		Intent:   domain.IntentRiskVolatility,
		Entities: domain.NoEntities{},
	}, domain.Context{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload.Summary == "" || len(payload.Sources) != 1 {
		t.Fatalf("search payload incomplete: %+v", payload)
	}
	if payload.Provenance != "Perplexity" {
		t.Fatalf("provenance = %q", payload.Provenance)
	}
}

func TestRetrieve_EconomicTopicQuery(t *testing.T) {
	s := &mockSearch{result: &domain.SearchResult{Summary: "ok"}}
	r := testRetriever(&mockQuotes{}, nil, s, nil)

	_, err := r.Retrieve(context.Background(), domain.IntentResult{
		Intent:   domain.IntentEconomicAnalysis,
		Entities: domain.TopicEntities{Topic: "interest_rates"},
	}, domain.Context{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(s.lastQuery, "taux directeurs") {
		t.Fatalf("topic not mapped to its query: %q", s.lastQuery)
	}
}

func TestRetrieve_ForexDefaultPair(t *testing.T) {
	s := &mockSearch{result: &domain.SearchResult{Summary: "ok"}}
	r := testRetriever(&mockQuotes{}, nil, s, nil)

	_, err := r.Retrieve(context.Background(), domain.IntentResult{
		Intent:   domain.IntentForexAnalysis,
		Entities: domain.ForexEntities{},
	}, domain.Context{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(s.lastQuery, "USD/EUR") {
		t.Fatalf("default pair missing from query: %q", s.lastQuery)
	}
}

func TestRetrieve_SearchFailure(t *testing.T) {
	s := &mockSearch{err: errors.New("timeout")}
	r := testRetriever(&mockQuotes{}, nil, s, nil)

	_, err := r.Retrieve(context.Background(), domain.IntentResult{
		Intent:   domain.IntentMarketOverview,
		Entities: domain.NoEntities{},
	}, domain.Context{})
	var re *domain.RetrievalError
	if !errors.As(err, &re) {
		t.Fatalf("expected *domain.RetrievalError, got %v", err)
	}
	if re.Intent != domain.IntentMarketOverview || len(re.Attempts) != 1 {
		t.Fatalf("error not annotated: %+v", re)
	}
}

// --- Portfolio ---

func TestRetrieve_Portfolio(t *testing.T) {
	w := &mockWatchlist{tickers: []string{"AAPL", "MSFT"}}
	r := testRetriever(&mockQuotes{}, nil, nil, w)

	payload, err := r.Retrieve(context.Background(), domain.IntentResult{
		Intent:   domain.IntentPortfolio,
		Entities: domain.NoEntities{},
	}, domain.Context{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(payload.Tickers) != 2 {
		t.Fatalf("tickers = %v", payload.Tickers)
	}
}

// --- Calculation ---

func TestRetrieve_Calculation(t *testing.T) {
	r := testRetriever(&mockQuotes{}, nil, nil, nil)

	payload, err := r.Retrieve(context.Background(), domain.IntentResult{
		Intent: domain.IntentFinancialCalculation,
		Entities: domain.CalcEntities{
			Kind:   domain.CalcLoan,
			Amount: 300000,
			Rate:   4.9,
			Years:  25,
		},
	}, domain.Context{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload.Calc == nil {
		t.Fatal("calculator result missing")
	}
}

func TestRetrieve_Calculation_InvalidInput(t *testing.T) {
	r := testRetriever(&mockQuotes{}, nil, nil, nil)

	_, err := r.Retrieve(context.Background(), domain.IntentResult{
		Intent:   domain.IntentFinancialCalculation,
		Entities: domain.CalcEntities{Kind: domain.CalcLoan, Amount: -1, Rate: 4.9, Years: 25},
	}, domain.Context{})
	if err == nil {
		t.Fatal("expected error for invalid principal")
	}
}
