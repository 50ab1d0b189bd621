// Package retrieve turns a classified intent into a provenance-tagged fact
// payload. Facts come from exactly one place per intent family: the quote
// fallback chain for prices, the fundamentals provider for company data, the
// search connector for everything that needs fresh web context, the local
// watchlist for the portfolio, and the pure calculator for computations.
package retrieve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"finbot/internal/domain"
	"finbot/internal/finance"
	"finbot/internal/intent"
)

// QuoteSource is the fallback chain seen from this package: one call, one
// canonical quote plus the name of whichever provider produced it.
type QuoteSource interface {
	Quote(ctx context.Context, ticker string) (*domain.Quote, string, error)
}

// ReplyLibrary serves canned reply text for the direct-path intents.
type ReplyLibrary interface {
	Reply(it domain.Intent) (string, bool)
}

// Retriever owns intent dispatch. All dependencies are optional except the
// quote source; a nil dependency turns its intents into retrieval errors
// instead of panics, so a partially configured bot still answers what it can.
type Retriever struct {
	quotes        QuoteSource
	fundamentals  domain.FundamentalsProvider
	search        domain.SearchConnector
	watchlist     domain.WatchlistStore
	canned        ReplyLibrary
	searchTimeout time.Duration
	newsLimit     int
	logger        *slog.Logger
}

type Config struct {
	Quotes        QuoteSource
	Fundamentals  domain.FundamentalsProvider
	Search        domain.SearchConnector
	Watchlist     domain.WatchlistStore
	Canned        ReplyLibrary
	SearchTimeout time.Duration
	NewsLimit     int
	Logger        *slog.Logger
}

func NewRetriever(cfg Config) *Retriever {
	if cfg.SearchTimeout <= 0 {
		cfg.SearchTimeout = 8 * time.Second
	}
	if cfg.NewsLimit <= 0 {
		cfg.NewsLimit = 3
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Retriever{
		quotes:        cfg.Quotes,
		fundamentals:  cfg.Fundamentals,
		search:        cfg.Search,
		watchlist:     cfg.Watchlist,
		canned:        cfg.Canned,
		searchTimeout: cfg.SearchTimeout,
		newsLimit:     cfg.NewsLimit,
		logger:        cfg.Logger,
	}
}

// Retrieve resolves the facts for one classified message. convCtx is the
// caller-supplied conversation state, read-only; only SOURCES consumes it.
// The returned payload is complete for its intent; a non-nil error means
// every configured source for this intent failed and the pipeline should
// apologize.
func (r *Retriever) Retrieve(ctx context.Context, res domain.IntentResult, convCtx domain.Context) (*domain.FactPayload, error) {
	switch res.Intent {
	case domain.IntentGreeting, domain.IntentHelp, domain.IntentSkillsList,
		domain.IntentGeneralConversation:
		return r.direct(res.Intent), nil

	case domain.IntentSources:
		return r.sources(convCtx), nil

	case domain.IntentPortfolio:
		return r.portfolio(ctx)

	case domain.IntentStockPrice:
		return r.quote(ctx, res)

	case domain.IntentComparativeAnalysis:
		return r.comparative(ctx, res)

	case domain.IntentFundamentals:
		return r.fundamentalsPayload(ctx, res)

	case domain.IntentNews:
		return r.news(ctx, res)

	case domain.IntentEarnings:
		return r.earnings(ctx, res)

	case domain.IntentComprehensiveAnalysis:
		return r.comprehensive(ctx, res)

	case domain.IntentFinancialCalculation:
		return r.calculation(res)

	default:
		return r.searched(ctx, res)
	}
}

// direct serves intents that never leave the process.
func (r *Retriever) direct(it domain.Intent) *domain.FactPayload {
	text := ""
	if r.canned != nil {
		if reply, ok := r.canned.Reply(it); ok {
			text = reply
		}
	}
	if text == "" {
		switch it {
		case domain.IntentHelp:
			text = intent.DetailedHelp()
		case domain.IntentSkillsList:
			text = intent.SkillsList()
		case domain.IntentSources:
			text = "Sources de données: FMP, Alpha Vantage, Twelve Data (cours), Perplexity (analyses web)."
		case domain.IntentGreeting:
			text = "Bonjour! Je suis FinBot. Envoyez 'Aide' pour voir les commandes."
		default:
			text = "Je peux vous aider sur les marchés. Envoyez 'Aide' pour les commandes."
		}
	}
	return &domain.FactPayload{
		Intent:     it,
		Direct:     text,
		Provenance: "FinBot",
	}
}

// sources recalls the citations behind the previous reply when the caller
// supplies them; without conversation state it lists the configured data
// sources instead.
func (r *Retriever) sources(convCtx domain.Context) *domain.FactPayload {
	if len(convCtx.PreviousSources) == 0 {
		return r.direct(domain.IntentSources)
	}
	return &domain.FactPayload{
		Intent:     domain.IntentSources,
		Direct:     "Sources de la dernière réponse: " + strings.Join(convCtx.PreviousSources, ", ") + ".",
		Provenance: "FinBot",
	}
}

func (r *Retriever) portfolio(ctx context.Context) (*domain.FactPayload, error) {
	if r.watchlist == nil {
		return nil, r.unavailable(domain.IntentPortfolio, "", "watchlist", "no store configured")
	}
	tickers, err := r.watchlist.Tickers(ctx)
	if err != nil {
		return nil, r.unavailable(domain.IntentPortfolio, "", "watchlist", err.Error())
	}
	return &domain.FactPayload{
		Intent:     domain.IntentPortfolio,
		Tickers:    tickers,
		Provenance: "Watchlist",
	}, nil
}

func (r *Retriever) quote(ctx context.Context, res domain.IntentResult) (*domain.FactPayload, error) {
	ticker := tickerFrom(res.Entities)
	quote, source, err := r.quotes.Quote(ctx, ticker)
	if err != nil {
		return nil, tagRetrieval(err, res.Intent)
	}
	return &domain.FactPayload{
		Intent:     res.Intent,
		Ticker:     ticker,
		Quote:      quote,
		Provenance: source,
	}, nil
}

func (r *Retriever) comparative(ctx context.Context, res domain.IntentResult) (*domain.FactPayload, error) {
	pair, ok := res.Entities.(domain.ComparePairEntities)
	if !ok {
		return nil, r.unavailable(res.Intent, "", "classifier", "missing ticker pair")
	}
	first, source, err := r.quotes.Quote(ctx, pair.First)
	if err != nil {
		return nil, tagRetrieval(err, res.Intent)
	}
	second, _, err := r.quotes.Quote(ctx, pair.Second)
	if err != nil {
		return nil, tagRetrieval(err, res.Intent)
	}
	return &domain.FactPayload{
		Intent:       res.Intent,
		Ticker:       pair.First,
		Quote:        first,
		SecondTicker: pair.Second,
		SecondQuote:  second,
		Provenance:   source,
	}, nil
}

func (r *Retriever) fundamentalsPayload(ctx context.Context, res domain.IntentResult) (*domain.FactPayload, error) {
	if r.fundamentals == nil {
		return nil, r.unavailable(res.Intent, tickerFrom(res.Entities), "fundamentals", "no provider configured")
	}
	ticker := tickerFrom(res.Entities)

	ratios, err := r.fundamentals.Ratios(ctx, ticker)
	if err != nil {
		return nil, r.unavailable(res.Intent, ticker, r.fundamentals.Name(), err.Error())
	}
	payload := &domain.FactPayload{
		Intent:     res.Intent,
		Ticker:     ticker,
		Ratios:     ratios,
		Provenance: r.fundamentals.Name(),
	}

	// Profile and income enrich the answer but their failure does not sink it.
	if profile, err := r.fundamentals.Profile(ctx, ticker); err == nil {
		payload.Profile = profile
	} else {
		r.logger.Warn("profile branch degraded", "ticker", ticker, "error", err)
	}
	if income, err := r.fundamentals.Income(ctx, ticker); err == nil {
		payload.Income = income
	} else {
		r.logger.Warn("income branch degraded", "ticker", ticker, "error", err)
	}
	return payload, nil
}

// news tries the fundamentals news endpoint first and degrades to a
// search-and-summarize lookup when it fails. Both failures end up in the
// accumulated error.
func (r *Retriever) news(ctx context.Context, res domain.IntentResult) (*domain.FactPayload, error) {
	ticker := tickerFrom(res.Entities)
	var attempts []domain.ProviderFailure

	if r.fundamentals == nil {
		attempts = append(attempts, domain.ProviderFailure{Provider: "news", Message: "no provider configured"})
	} else {
		items, err := r.fundamentals.News(ctx, ticker, r.newsLimit)
		if err == nil {
			return &domain.FactPayload{
				Intent:     res.Intent,
				Ticker:     ticker,
				News:       items,
				Provenance: r.fundamentals.Name(),
			}, nil
		}
		r.logger.Warn("news endpoint failed, falling back to search",
			"ticker", ticker,
			"error", err,
		)
		attempts = append(attempts, domain.ProviderFailure{Provider: r.fundamentals.Name(), Message: err.Error()})
	}

	if r.search == nil {
		attempts = append(attempts, domain.ProviderFailure{Provider: "search", Message: "no connector configured"})
	} else {
		searchCtx, cancel := context.WithTimeout(ctx, r.searchTimeout)
		defer cancel()

		query := fmt.Sprintf("dernières actualités importantes sur l'action %s", ticker)
		result, err := r.search.Search(searchCtx, query, domain.SearchOptions{})
		if err == nil {
			return &domain.FactPayload{
				Intent:     res.Intent,
				Ticker:     ticker,
				Summary:    result.Summary,
				Sources:    result.Citations,
				Provenance: r.search.Name(),
			}, nil
		}
		attempts = append(attempts, domain.ProviderFailure{Provider: r.search.Name(), Message: err.Error()})
	}

	return nil, &domain.RetrievalError{
		Intent:   res.Intent,
		Subject:  ticker,
		Attempts: attempts,
	}
}

func (r *Retriever) earnings(ctx context.Context, res domain.IntentResult) (*domain.FactPayload, error) {
	if r.fundamentals == nil {
		return nil, r.unavailable(res.Intent, tickerFrom(res.Entities), "earnings", "no provider configured")
	}
	ticker := tickerFrom(res.Entities)
	report, err := r.fundamentals.Earnings(ctx, ticker)
	if err != nil {
		return nil, r.unavailable(res.Intent, ticker, r.fundamentals.Name(), err.Error())
	}
	return &domain.FactPayload{
		Intent:     res.Intent,
		Ticker:     ticker,
		Earnings:   report,
		Provenance: r.fundamentals.Name(),
	}, nil
}

// comprehensive fans out to quote, profile, ratios and news concurrently.
// The quote is the only required branch; the others degrade to nil fields so
// one slow or broken endpoint does not empty the whole answer.
func (r *Retriever) comprehensive(ctx context.Context, res domain.IntentResult) (*domain.FactPayload, error) {
	ticker := tickerFrom(res.Entities)

	payload := &domain.FactPayload{
		Intent: res.Intent,
		Ticker: ticker,
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		quoteErr error
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		quote, source, err := r.quotes.Quote(ctx, ticker)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			quoteErr = err
			return
		}
		payload.Quote = quote
		payload.Provenance = source
	}()

	if r.fundamentals != nil {
		wg.Add(3)
		go func() {
			defer wg.Done()
			profile, err := r.fundamentals.Profile(ctx, ticker)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				r.logger.Warn("profile branch degraded", "ticker", ticker, "error", err)
				return
			}
			payload.Profile = profile
		}()
		go func() {
			defer wg.Done()
			ratios, err := r.fundamentals.Ratios(ctx, ticker)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				r.logger.Warn("ratios branch degraded", "ticker", ticker, "error", err)
				return
			}
			payload.Ratios = ratios
		}()
		go func() {
			defer wg.Done()
			items, err := r.fundamentals.News(ctx, ticker, r.newsLimit)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				r.logger.Warn("news branch degraded", "ticker", ticker, "error", err)
				return
			}
			payload.News = items
		}()
	}

	wg.Wait()

	if quoteErr != nil {
		return nil, tagRetrieval(quoteErr, res.Intent)
	}
	return payload, nil
}

func (r *Retriever) calculation(res domain.IntentResult) (*domain.FactPayload, error) {
	ce, ok := res.Entities.(domain.CalcEntities)
	if !ok {
		return nil, r.unavailable(res.Intent, "", "classifier", "missing calculation parameters")
	}

	var (
		result any
		err    error
	)
	switch ce.Kind {
	case domain.CalcLoan:
		result, err = finance.Loan(ce.Amount, ce.Rate, ce.Years)
	case domain.CalcVariation:
		result, err = finance.Variation(ce.From, ce.To)
	case domain.CalcRatio:
		result, err = finance.PE(ce.Price, ce.Earnings)
	default:
		err = fmt.Errorf("unknown calculation kind %q", ce.Kind)
	}
	if err != nil {
		return nil, r.unavailable(res.Intent, string(ce.Kind), "calculator", err.Error())
	}

	return &domain.FactPayload{
		Intent:     res.Intent,
		Calc:       result,
		Provenance: "Calcul FinBot",
	}, nil
}

// searched covers every intent answered by search-and-summarize.
func (r *Retriever) searched(ctx context.Context, res domain.IntentResult) (*domain.FactPayload, error) {
	if r.search == nil {
		return nil, r.unavailable(res.Intent, "", "search", "no connector configured")
	}
	query := searchQuery(res)

	searchCtx, cancel := context.WithTimeout(ctx, r.searchTimeout)
	defer cancel()

	result, err := r.search.Search(searchCtx, query, domain.SearchOptions{})
	if err != nil {
		return nil, r.unavailable(res.Intent, query, r.search.Name(), err.Error())
	}
	return &domain.FactPayload{
		Intent:     res.Intent,
		Ticker:     tickerFrom(res.Entities),
		Summary:    result.Summary,
		Sources:    result.Citations,
		Provenance: r.search.Name(),
	}, nil
}

// economicQueries maps the classifier's macro topics to search queries.
var economicQueries = map[string]string{
	"inflation":      "inflation actuelle États-Unis et zone euro, derniers chiffres CPI",
	"interest_rates": "derniers taux directeurs Fed et BCE, prochaine décision attendue",
	"gdp":            "croissance du PIB États-Unis et zone euro, dernier trimestre",
	"employment":     "derniers chiffres de l'emploi américain, taux de chômage",
	"general":        "situation macroéconomique actuelle, points clés pour les marchés",
}

// searchQuery builds the French query sent to the search connector.
func searchQuery(res domain.IntentResult) string {
	switch res.Intent {
	case domain.IntentTechnicalAnalysis:
		return fmt.Sprintf("analyse technique %s: RSI, MACD, tendance et supports actuels", tickerFrom(res.Entities))
	case domain.IntentMarketOverview:
		return "tendance des marchés actions aujourd'hui: S&P 500, Nasdaq, CAC 40, points clés"
	case domain.IntentSectorIndustry:
		sector := "technologie"
		if se, ok := res.Entities.(domain.SectorEntities); ok && se.Sector != "" {
			sector = se.Sector
		}
		return fmt.Sprintf("performance actuelle du secteur %s en bourse, valeurs phares", sector)
	case domain.IntentEconomicAnalysis:
		topic := "general"
		if te, ok := res.Entities.(domain.TopicEntities); ok && te.Topic != "" {
			topic = te.Topic
		}
		if q, ok := economicQueries[topic]; ok {
			return q
		}
		return economicQueries["general"]
	case domain.IntentPoliticalAnalysis:
		return "actualité géopolitique impactant les marchés financiers cette semaine"
	case domain.IntentInvestmentStrategy:
		return "stratégies d'investissement recommandées dans le contexte de marché actuel"
	case domain.IntentRiskVolatility:
		if t := tickerFrom(res.Entities); t != "" {
			return fmt.Sprintf("volatilité et risques actuels de l'action %s, beta", t)
		}
		return "niveau de volatilité actuel des marchés, VIX, risques principaux"
	case domain.IntentRiskManagement:
		return "techniques de gestion du risque en bourse: stop-loss, couverture, diversification"
	case domain.IntentValuation:
		if t := tickerFrom(res.Entities); t != "" {
			return fmt.Sprintf("valorisation actuelle de %s: PER, fair value, consensus analystes", t)
		}
		return "niveaux de valorisation actuels des marchés actions"
	case domain.IntentStockScreening:
		criteria := "dividende élevé"
		if ce, ok := res.Entities.(domain.CriteriaEntities); ok && ce.Criteria != "" {
			criteria = ce.Criteria
		}
		return fmt.Sprintf("meilleures actions selon le critère: %s", criteria)
	case domain.IntentValuationMethodology:
		return "méthodologies de valorisation d'actions: DCF, multiples, comparables"
	case domain.IntentForexAnalysis:
		pair := "USD/EUR"
		if fe, ok := res.Entities.(domain.ForexEntities); ok && fe.Pair != "" {
			pair = fe.Pair
		}
		return fmt.Sprintf("taux de change %s actuel et tendance", pair)
	case domain.IntentBondAnalysis:
		return "rendements obligataires actuels: Treasury 10 ans, Bund, OAT, tendance"
	case domain.IntentESG:
		if t := tickerFrom(res.Entities); t != "" {
			return fmt.Sprintf("notation ESG et controverses de %s", t)
		}
		return "tendances de l'investissement ESG, fonds et notations"
	case domain.IntentRecommendation:
		if t := tickerFrom(res.Entities); t != "" {
			return fmt.Sprintf("consensus analystes sur %s: recommandations et objectifs de cours", t)
		}
		return "recommandations d'analystes sur les marchés actions"
	}
	return "situation des marchés financiers aujourd'hui"
}

// tickerFrom extracts a ticker when the variant carries one.
func tickerFrom(e domain.Entities) string {
	switch v := e.(type) {
	case domain.TickerEntities:
		return v.Ticker
	case domain.ComparePairEntities:
		return v.First
	default:
		return ""
	}
}

// unavailable builds the single-attempt retrieval error used by sources that
// are not chains.
func (r *Retriever) unavailable(it domain.Intent, subject, source, message string) error {
	return &domain.RetrievalError{
		Intent:  it,
		Subject: subject,
		Attempts: []domain.ProviderFailure{
			{Provider: source, Message: message},
		},
	}
}

// tagRetrieval stamps the intent onto a chain error, which cannot know it.
func tagRetrieval(err error, it domain.Intent) error {
	var re *domain.RetrievalError
	if errors.As(err, &re) {
		re.Intent = it
		return re
	}
	return &domain.RetrievalError{
		Intent: it,
		Attempts: []domain.ProviderFailure{
			{Provider: "quotes", Message: err.Error()},
		},
	}
}
