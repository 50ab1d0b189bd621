package domain

// Intent is the caller's inferred purpose for a message.
type Intent string

const (
	// Base
	IntentGreeting            Intent = "GREETING"
	IntentHelp                Intent = "HELP"
	IntentSkillsList          Intent = "SKILLS_LIST"
	IntentPortfolio           Intent = "PORTFOLIO"
	IntentGeneralConversation Intent = "GENERAL_CONVERSATION"

	// Actions
	IntentStockPrice            Intent = "STOCK_PRICE"
	IntentFundamentals          Intent = "FUNDAMENTALS"
	IntentTechnicalAnalysis     Intent = "TECHNICAL_ANALYSIS"
	IntentNews                  Intent = "NEWS"
	IntentComprehensiveAnalysis Intent = "COMPREHENSIVE_ANALYSIS"
	IntentComparativeAnalysis   Intent = "COMPARATIVE_ANALYSIS"
	IntentEarnings              Intent = "EARNINGS"
	IntentRecommendation        Intent = "RECOMMENDATION"

	// Markets
	IntentMarketOverview Intent = "MARKET_OVERVIEW"
	IntentSectorIndustry Intent = "SECTOR_INDUSTRY"

	// Economy and politics
	IntentEconomicAnalysis  Intent = "ECONOMIC_ANALYSIS"
	IntentPoliticalAnalysis Intent = "POLITICAL_ANALYSIS"

	// Strategy
	IntentInvestmentStrategy Intent = "INVESTMENT_STRATEGY"
	IntentRiskVolatility     Intent = "RISK_VOLATILITY"
	IntentRiskManagement     Intent = "RISK_MANAGEMENT"

	// Valuation
	IntentValuation            Intent = "VALUATION"
	IntentStockScreening       Intent = "STOCK_SCREENING"
	IntentValuationMethodology Intent = "VALUATION_METHODOLOGY"

	// Calculations
	IntentFinancialCalculation Intent = "FINANCIAL_CALCULATION"

	// Alternative assets
	IntentForexAnalysis Intent = "FOREX_ANALYSIS"
	IntentBondAnalysis  Intent = "BOND_ANALYSIS"

	// ESG
	IntentESG Intent = "ESG"

	// Utility
	IntentSources Intent = "SOURCES"

	IntentUnknown Intent = "UNKNOWN"
)

// Entities is the typed payload extracted from a message. Each intent family
// carries its own variant, so a missing or mistyped field is a compile error
// instead of a nil lookup in a map.
type Entities interface {
	entities()
}

// NoEntities is used by intents that need nothing from the message text.
type NoEntities struct{}

// TickerEntities carries a single stock symbol.
type TickerEntities struct {
	Ticker string
}

// ComparePairEntities carries the two symbols of a comparative analysis.
type ComparePairEntities struct {
	First  string
	Second string
}

// SectorEntities carries a sector name.
type SectorEntities struct {
	Sector string
}

// TopicEntities carries a macro-economic topic keyword
// (inflation, interest_rates, gdp, employment, general).
type TopicEntities struct {
	Topic string
}

// CriteriaEntities carries free-text screening criteria.
type CriteriaEntities struct {
	Criteria string
}

// ForexEntities carries a currency pair such as "USD/EUR".
type ForexEntities struct {
	Pair string
}

// CalcKind selects which financial calculation was requested.
type CalcKind string

const (
	CalcLoan      CalcKind = "loan"
	CalcVariation CalcKind = "variation"
	CalcRatio     CalcKind = "ratio"
)

// CalcEntities carries the numeric parameters of a FINANCIAL_CALCULATION.
// Unused fields stay at zero; the classifier validates the set required by
// Kind before the result is released.
type CalcEntities struct {
	Kind     CalcKind
	Amount   float64 // loan principal
	Years    int     // loan duration
	Rate     float64 // annual rate in percent
	From     float64 // variation start value
	To       float64 // variation end value
	Price    float64 // ratio numerator
	Earnings float64 // ratio denominator (EPS)
}

func (NoEntities) entities()          {}
func (TickerEntities) entities()      {}
func (ComparePairEntities) entities() {}
func (SectorEntities) entities()      {}
func (TopicEntities) entities()       {}
func (CriteriaEntities) entities()    {}
func (ForexEntities) entities()       {}
func (CalcEntities) entities()        {}

// IntentResult is the outcome of classifying one message.
// Exactly one intent wins per message; NeedsClarification means the caller
// should send Clarification back to the user and stop the pipeline.
type IntentResult struct {
	Intent             Intent
	Entities           Entities
	Confidence         float64
	NeedsClarification bool
	Clarification      string
	Priority           int
}
