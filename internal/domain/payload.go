package domain

// Quote is the canonical shape every quote provider normalizes into.
// Schema translation from provider-specific JSON happens inside each
// provider adapter, never downstream.
type Quote struct {
	Ticker        string
	Price         float64
	Change        float64
	ChangePercent float64
	Volume        int64
	PreviousClose float64
}

// CompanyProfile is descriptive company data used by the analysis intents.
type CompanyProfile struct {
	Ticker      string
	CompanyName string
	Sector      string
	Industry    string
	MarketCap   float64
}

// KeyRatios holds the fundamental ratios surfaced in replies.
type KeyRatios struct {
	PERatio         float64
	ReturnOnEquity  float64
	NetProfitMargin float64
	DebtToEquity    float64
	DividendYield   float64
}

// IncomeSnapshot is the latest reported income statement line items.
type IncomeSnapshot struct {
	Revenue   float64
	NetIncome float64
	EPS       float64
	Period    string
}

// NewsItem is one headline returned by a news endpoint.
type NewsItem struct {
	Title       string
	Site        string
	PublishedAt string
}

// EarningsReport is one quarterly result with the consensus estimate.
type EarningsReport struct {
	Ticker    string
	Actual    float64
	Estimated float64
	Surprise  float64 // percent
	Date      string
}

// FactPayload is the provenance-tagged factual material for one intent.
// It is created by the retriever, consumed read-only by the formatter, and
// never mutated after creation. Only the fields relevant to the intent are
// populated.
type FactPayload struct {
	Intent     Intent
	Provenance string   // display name of the contributing source
	Sources    []string // deduplicated citation URLs, normalized to host+path

	Ticker string
	Quote  *Quote

	// Comprehensive / fundamentals extras. A nil field means that branch of
	// the composite lookup failed and was degraded, not that it was zero.
	Profile *CompanyProfile
	Ratios  *KeyRatios
	Income  *IncomeSnapshot

	News     []NewsItem
	Earnings *EarningsReport

	// Comparative analysis
	SecondTicker string
	SecondQuote  *Quote

	// Search-and-summarize output
	Summary string

	// Direct-path canned text (greeting, help, sources listing...)
	Direct string

	// Watchlist contents for PORTFOLIO
	Tickers []string

	// Calculator result, one of the finance package result types.
	Calc any
}
