package domain

import "context"

// QuoteProvider is one member of the ordered fallback chain for numeric
// market data. Implementations own the translation from their wire schema
// to the canonical Quote and must fail (not zero-fill) on empty payloads.
type QuoteProvider interface {
	Name() string
	Quote(ctx context.Context, ticker string) (*Quote, error)
}

// FundamentalsProvider extends a quote provider with the richer endpoints
// needed by the analysis intents. Only the primary provider implements it.
type FundamentalsProvider interface {
	QuoteProvider
	Profile(ctx context.Context, ticker string) (*CompanyProfile, error)
	Ratios(ctx context.Context, ticker string) (*KeyRatios, error)
	Income(ctx context.Context, ticker string) (*IncomeSnapshot, error)
	News(ctx context.Context, ticker string, limit int) ([]NewsItem, error)
	Earnings(ctx context.Context, ticker string) (*EarningsReport, error)
}

// SearchOptions tune a search-and-summarize call.
type SearchOptions struct {
	MaxTokens   int
	Temperature float64
}

// SearchResult is a terse, citation-bearing answer from the search connector.
type SearchResult struct {
	Summary   string
	Citations []string
}

// SearchConnector issues a natural-language query to a web-search LLM
// configured for short answers with sources.
type SearchConnector interface {
	Name() string
	Search(ctx context.Context, query string, opts SearchOptions) (*SearchResult, error)
}

// GenerateOptions tune a text-generation call.
type GenerateOptions struct {
	MaxTokens   int
	Temperature float64
}

// TextGenerator turns a constrained prompt into reply text. It is used as a
// pure text transformer: the prompt carries all the facts.
type TextGenerator interface {
	Name() string
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
}

// Channel is the interface for user-facing I/O (Telegram, CLI).
type Channel interface {
	Name() string
	Start(ctx context.Context, bus MessageBus) error
	Stop() error
	Send(ctx context.Context, chatID string, content string) error
}

// WatchlistStore backs the PORTFOLIO intent.
type WatchlistStore interface {
	Tickers(ctx context.Context) ([]string, error)
	Add(ctx context.Context, ticker string) error
	Remove(ctx context.Context, ticker string) error
}
