package intent

import (
	"regexp"
	"strconv"
	"strings"

	"finbot/internal/domain"
)

// Priority tiers. Higher tiers are tried first; within a tier, declaration
// order below decides ties. This makes classification deterministic by
// construction, not alphabetical.
const (
	priorityHigh   = 3
	priorityMedium = 2
	priorityLow    = 1
)

// definition is one row of the immutable intent table: patterns tried in
// order, an entity builder run on the first match, and a validator that
// either accepts the entities or returns a clarification for the user.
type definition struct {
	intent   domain.Intent
	priority int
	patterns []*regexp.Regexp
	build    func(m *match) domain.Entities
	check    func(e domain.Entities) string // "" = valid, else clarification
}

// match wraps one regexp match with named-group access.
type match struct {
	re     *regexp.Regexp
	groups []string
}

func (m *match) text() string { return m.groups[0] }

func (m *match) group(name string) string {
	for i, n := range m.re.SubexpNames() {
		if n == name && i < len(m.groups) {
			return m.groups[i]
		}
	}
	return ""
}

func (m *match) float(name string) float64 {
	v, err := strconv.ParseFloat(m.group(name), 64)
	if err != nil {
		return 0
	}
	return v
}

func (m *match) int(name string) int {
	v, err := strconv.Atoi(m.group(name))
	if err != nil {
		return 0
	}
	return v
}

func rx(patterns ...string) []*regexp.Regexp {
	res := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		res[i] = regexp.MustCompile("(?i)" + p)
	}
	return res
}

func noEntities(*match) domain.Entities { return domain.NoEntities{} }

func acceptAll(domain.Entities) string { return "" }

func tickerOf(m *match) domain.Entities {
	return domain.TickerEntities{Ticker: strings.ToUpper(m.group("ticker"))}
}

func tickerCheck(clarification string) func(domain.Entities) string {
	return func(e domain.Entities) string {
		te, ok := e.(domain.TickerEntities)
		if !ok || te.Ticker == "" {
			return clarification
		}
		if !IsValidTicker(te.Ticker) {
			return "Ticker \"" + te.Ticker + "\" invalide. Format: 1-5 lettres majuscules."
		}
		return ""
	}
}

// Table returns the full intent table in declaration order. It is built
// once at startup and never mutated afterwards.
func Table() []definition {
	return []definition{
		// --- Base ---
		{
			intent:   domain.IntentGreeting,
			priority: priorityHigh,
			patterns: rx(
				`^(bonjour|salut|hello|hi|hey|bonsoir|coucou|good morning)`,
				`^(ça va|comment ça va|how are you)`,
			),
			build: noEntities,
			check: acceptAll,
		},
		{
			intent:   domain.IntentHelp,
			priority: priorityHigh,
			patterns: rx(
				`^(aide|help|commandes?|menu|fonctionnalités?)`,
				`^(que peux-tu faire|à quoi sers-tu|capabilities|skills)`,
				`^\?+$`,
			),
			build: noEntities,
			check: acceptAll,
		},
		{
			intent:   domain.IntentSkillsList,
			priority: priorityHigh,
			patterns: rx(
				`^(liste|exemples|examples|tutorial)`,
				`^(liste (des )?(commandes|compétences|skills))`,
				`^(affiche|montre|show) (exemples|examples)`,
			),
			build: noEntities,
			check: acceptAll,
		},
		{
			intent:   domain.IntentPortfolio,
			priority: priorityHigh,
			patterns: rx(
				`^(portefeuille|portfolio|watchlist|positions)`,
				`^(mes (tickers|titres|actions|valeurs|investissements))`,
				`^(liste mes|affiche mes|show my) (tickers|positions)`,
				`^(quels? (tickers|titres|actions))`,
			),
			build: noEntities,
			check: acceptAll,
		},

		// --- Actions ---
		{
			intent:   domain.IntentStockPrice,
			priority: priorityHigh,
			patterns: rx(
				`^(prix|cours|cotation|quote)\s+(?P<ticker>[A-Z]{1,5})$`,
				`^(?P<ticker>[A-Z]{1,5})\s+(prix|cours|quote)$`,
				`^(combien vaut|combien coûte)\s+(?P<ticker>[A-Z]{1,5})`,
			),
			build: tickerOf,
			check: tickerCheck("Quel ticker ? (ex: Prix AAPL)"),
		},
		{
			intent:   domain.IntentFundamentals,
			priority: priorityHigh,
			patterns: rx(
				`^(fondamentaux|financials|fundamentals)\s+(?P<ticker>[A-Z]{1,5})`,
				`^(?P<ticker>[A-Z]{1,5})\s+(fondamentaux|financials)`,
				`^(pe|p/e|roe|eps|marges?|revenus|bénéfices)\s+(?P<ticker>[A-Z]{1,5})`,
				`^(santé financière|profitabilité|rentabilité)\s+(?P<ticker>[A-Z]{1,5})`,
			),
			build: tickerOf,
			check: tickerCheck("Fondamentaux de quel ticker ? (ex: Fondamentaux AAPL)"),
		},
		{
			intent:   domain.IntentTechnicalAnalysis,
			priority: priorityHigh,
			patterns: rx(
				`^(technique|technical|rsi|macd|support|résistance)\s+(?P<ticker>[A-Z]{1,5})`,
				`^(?P<ticker>[A-Z]{1,5})\s+(technique|rsi|macd)`,
				`^(moyennes mobiles|sma|ema|bollinger)\s+(?P<ticker>[A-Z]{1,5})`,
				`^(tendance|trend|momentum)\s+(?P<ticker>[A-Z]{1,5})`,
			),
			build: tickerOf,
			check: tickerCheck("Analyse technique de quel ticker ? (ex: RSI AAPL)"),
		},
		{
			intent:   domain.IntentNews,
			priority: priorityHigh,
			patterns: rx(
				`^(news|nouvelles|actualités?|infos?)\s+(?P<ticker>[A-Z]{1,5})`,
				`^(?P<ticker>[A-Z]{1,5})\s+(news|nouvelles|actualités)`,
				`^(quoi de neuf|dernières? infos?|breaking)\s+(sur\s+)?(?P<ticker>[A-Z]{1,5})`,
			),
			build: tickerOf,
			check: tickerCheck("Nouvelles de quel ticker ? (ex: News AAPL)"),
		},
		{
			intent:   domain.IntentComprehensiveAnalysis,
			priority: priorityHigh,
			patterns: rx(
				`^(analyse complète?|analyse détaillée|rapport)\s+(?P<ticker>[A-Z]{1,5})`,
				`^(évaluation|assessment|overview)\s+(?P<ticker>[A-Z]{1,5})`,
				`^(due diligence|deep dive)\s+(?P<ticker>[A-Z]{1,5})`,
			),
			build: tickerOf,
			check: tickerCheck("Analyse complète de quel ticker ? (ex: Analyse complète AAPL)"),
		},
		{
			intent:   domain.IntentEarnings,
			priority: priorityHigh,
			patterns: rx(
				`^(résultats?|earnings|trimestriels?)\s+(?P<ticker>[A-Z]{1,5})`,
				`^(?P<ticker>[A-Z]{1,5})\s+(résultats?|earnings|q[1-4])`,
				`^(earnings call|publication)\s+(?P<ticker>[A-Z]{1,5})`,
			),
			build: tickerOf,
			check: tickerCheck("Résultats de quel ticker ? (ex: Résultats AAPL)"),
		},

		// --- Markets ---
		{
			intent:   domain.IntentMarketOverview,
			priority: priorityHigh,
			patterns: rx(
				`^(marché|marchés|market|indices|secteurs)`,
				`^(wall street|dow jones|nasdaq|sp500|s&p|tsx)`,
				`^(sentiment marché|état du marché|vue globale)`,
			),
			build: noEntities,
			check: acceptAll,
		},

		// --- Economy ---
		{
			intent:   domain.IntentEconomicAnalysis,
			priority: priorityHigh,
			patterns: rx(
				`^(économie|economie|pib|gdp|inflation|récession)`,
				`^(taux\s+(fed|directeur|intérêt|banque centrale))`,
				`^(chômage|chomage|emploi|croissance économique)`,
				`^(politique monétaire|fiscal|déficit)`,
			),
			build: func(m *match) domain.Entities {
				return domain.TopicEntities{Topic: economicTopic(m.text())}
			},
			check: acceptAll,
		},

		// --- Valuation (screening is high priority) ---
		{
			intent:   domain.IntentStockScreening,
			priority: priorityHigh,
			patterns: rx(
				`^(trouve|cherche|recherche|suggère|recommande)\s+(?P<criteria>.*)`,
				`^(top|meilleurs?|meilleures?)\s+(?P<criteria>dividende|croissance|value|momentum)`,
				`^(screening|screener|filtre|sélection)`,
			),
			build: func(m *match) domain.Entities {
				c := strings.TrimSpace(m.group("criteria"))
				if c == "" {
					c = "general"
				}
				return domain.CriteriaEntities{Criteria: c}
			},
			check: acceptAll,
		},

		// --- Calculations ---
		{
			intent:   domain.IntentFinancialCalculation,
			priority: priorityHigh,
			patterns: rx(
				`^(calcul|calculate)\s+(prêt|pret|loan|mortgage)\s+(?P<amount>[\d.]+)\s*k?\s+(?P<years>\d+)\s*(ans|years?)\s+(?P<rate>[\d.]+)\s*%?`,
				`^(variation|change)\s*%?\s+(?P<from>[\d.]+)\s+(?P<to>[\d.]+)`,
				`^(ratio|pe|p/e)\s+(?P<price>[\d.]+)\s+(?P<earnings>[\d.]+)`,
				`^(simulation|projection|scénario)`,
			),
			build: buildCalcEntities,
			check: checkCalcEntities,
		},

		// --- Utility ---
		{
			intent:   domain.IntentSources,
			priority: priorityHigh,
			patterns: rx(
				`^(source|sources)\s*\??$`,
				`^(d'où|d ou|provenance|origine)\s+(viennent?|vient)\s+`,
				`^(quelle|quelles)\s+(est la |sont les )?source`,
			),
			build: noEntities,
			check: acceptAll,
		},

		// --- Medium priority ---
		{
			intent:   domain.IntentGeneralConversation,
			priority: priorityMedium,
			patterns: rx(
				`^(merci|thanks|thx)`,
				`^(d'accord|ok|okay|got it)`,
				`^(au revoir|bye|goodbye)`,
			),
			build: noEntities,
			check: acceptAll,
		},
		{
			intent:   domain.IntentComparativeAnalysis,
			priority: priorityMedium,
			patterns: rx(
				`^(comparer|comparaison|compare)\s+(?P<ticker1>[A-Z]{1,5})\s+(vs|versus|et|and)\s+(?P<ticker2>[A-Z]{1,5})`,
				`^(?P<ticker1>[A-Z]{1,5})\s+(vs|versus)\s+(?P<ticker2>[A-Z]{1,5})`,
				`^(mieux|meilleur|plutôt)\s+(?P<ticker1>[A-Z]{1,5})\s+ou\s+(?P<ticker2>[A-Z]{1,5})`,
			),
			build: func(m *match) domain.Entities {
				return domain.ComparePairEntities{
					First:  strings.ToUpper(m.group("ticker1")),
					Second: strings.ToUpper(m.group("ticker2")),
				}
			},
			check: func(e domain.Entities) string {
				pe, ok := e.(domain.ComparePairEntities)
				if !ok || pe.First == "" || pe.Second == "" {
					return "Comparer quels tickers ? (ex: AAPL vs MSFT)"
				}
				if !IsValidTicker(pe.First) || !IsValidTicker(pe.Second) {
					return "Comparer quels tickers ? (ex: AAPL vs MSFT)"
				}
				return ""
			},
		},
		{
			intent:   domain.IntentRecommendation,
			priority: priorityMedium,
			patterns: rx(
				`^(recommandation|avis|conseil)\s+(sur\s+)?(?P<ticker>[A-Z]{1,5})`,
				`^(acheter|vendre|conserver)\s+(?P<ticker>[A-Z]{1,5})`,
				`^(dois-je acheter|est-ce un bon moment)\s+(?P<ticker>[A-Z]{1,5})`,
			),
			build: tickerOf,
			check: tickerCheck("Recommandation pour quel ticker ? (ex: Acheter AAPL ?)"),
		},
		{
			intent:   domain.IntentSectorIndustry,
			priority: priorityMedium,
			patterns: rx(
				`^(secteur|industrie|sector)\s+(?P<sector>tech|technologie|finance|énergie|santé|healthcare)`,
				`^(performance secteur|secteur\s+\w+)`,
			),
			build: func(m *match) domain.Entities {
				return domain.SectorEntities{Sector: strings.ToLower(m.group("sector"))}
			},
			check: acceptAll,
		},
		{
			intent:   domain.IntentInvestmentStrategy,
			priority: priorityMedium,
			patterns: rx(
				`^(stratégie|investir|allocation|placement)`,
				`^(long terme|court terme|value|growth|dividend)`,
				`^(comment investir|où investir)`,
			),
			build: noEntities,
			check: acceptAll,
		},
		{
			intent:   domain.IntentRiskVolatility,
			priority: priorityMedium,
			patterns: rx(
				`^(risque|volatilité|beta|drawdown)\s+(?P<ticker>[A-Z]{1,5})`,
				`^(?P<ticker>[A-Z]{1,5})\s+(risque|volatilité|beta)`,
			),
			build: tickerOf,
			check: tickerCheck("Risque de quel ticker ? (ex: Risque AAPL)"),
		},
		{
			intent:   domain.IntentValuation,
			priority: priorityMedium,
			patterns: rx(
				`^(valorisation|valuation|fair value|juste valeur)\s+(?P<ticker>[A-Z]{1,5})`,
				`^(?P<ticker>[A-Z]{1,5})\s+(valorisation|dcf|valuation)`,
				`^(sous-évalué|surévalué|undervalued|overvalued)\s+(?P<ticker>[A-Z]{1,5})`,
			),
			build: tickerOf,
			check: tickerCheck("Valorisation de quel ticker ? (ex: Fair value AAPL)"),
		},
		{
			intent:   domain.IntentForexAnalysis,
			priority: priorityMedium,
			patterns: rx(
				`^(forex|fx|devise|devises|taux de change)`,
				`^(usd|eur|gbp|jpy|cad|chf)\s*/?\s*(usd|eur|gbp|jpy|cad|chf)`,
				`^(dollar|euro|livre|yen|franc)`,
			),
			build: func(m *match) domain.Entities {
				return domain.ForexEntities{Pair: forexPair(m.text())}
			},
			check: acceptAll,
		},

		// --- Low priority ---
		{
			intent:   domain.IntentPoliticalAnalysis,
			priority: priorityLow,
			patterns: rx(
				`^(politique|géopolitique|élections|gouvernement)`,
				`^(tensions|sanctions|guerre commerciale)`,
			),
			build: noEntities,
			check: acceptAll,
		},
		{
			intent:   domain.IntentBondAnalysis,
			priority: priorityLow,
			patterns: rx(
				`^(obligations?|bonds?|treasury|yield)`,
				`^(taux obligataire|rendement obligataire)`,
				`^(us 10y|us 2y|bund)`,
			),
			build: noEntities,
			check: acceptAll,
		},
		{
			intent:   domain.IntentESG,
			priority: priorityLow,
			patterns: rx(
				`^(esg|durabilité|sustainability|responsabilité sociale)`,
				`^(climat|carbon|green|vert|environnement)\s+(?P<ticker>[A-Z]{1,5})`,
				`^(?P<ticker>[A-Z]{1,5})\s+(esg|durabilité|climat)`,
			),
			build: tickerOf,
			check: func(e domain.Entities) string {
				// ESG without a ticker falls back to a generic sustainability
				// answer, so only a malformed ticker needs clarification.
				te, ok := e.(domain.TickerEntities)
				if ok && te.Ticker != "" && !IsValidTicker(te.Ticker) {
					return "ESG de quel ticker ? (ex: ESG AAPL)"
				}
				return ""
			},
		},
		{
			intent:   domain.IntentRiskManagement,
			priority: priorityLow,
			patterns: rx(
				`^(gestion (de )?risque|risk management|var|sharpe)`,
				`^(protection|couverture|hedging)`,
			),
			build: noEntities,
			check: acceptAll,
		},
		{
			intent:   domain.IntentValuationMethodology,
			priority: priorityLow,
			patterns: rx(
				`^(méthodologie|methodology|dcf|multiples)`,
				`^(comment valoriser|comment calculer)`,
			),
			build: noEntities,
			check: acceptAll,
		},
	}
}

const missingCalcParams = "Paramètres manquants. Exemples:\n- Prêt: Calcul prêt 300k 25 ans 4.9%\n- Variation: Variation % 120 145"

func buildCalcEntities(m *match) domain.Entities {
	text := strings.ToLower(m.text())
	e := domain.CalcEntities{}
	switch {
	case strings.Contains(text, "prêt") || strings.Contains(text, "pret") ||
		strings.Contains(text, "loan") || strings.Contains(text, "mortgage"):
		e.Kind = domain.CalcLoan
		e.Amount = m.float("amount") * 1000 // amounts are written in thousands: "300k"
		e.Years = m.int("years")
		e.Rate = m.float("rate")
	case strings.Contains(text, "variation") || strings.Contains(text, "change"):
		e.Kind = domain.CalcVariation
		e.From = m.float("from")
		e.To = m.float("to")
	case strings.Contains(text, "ratio") || strings.Contains(text, "pe") || strings.Contains(text, "p/e"):
		e.Kind = domain.CalcRatio
		e.Price = m.float("price")
		e.Earnings = m.float("earnings")
	}
	return e
}

func checkCalcEntities(e domain.Entities) string {
	ce, ok := e.(domain.CalcEntities)
	if !ok {
		return missingCalcParams
	}
	switch ce.Kind {
	case domain.CalcLoan:
		if ce.Amount <= 0 || ce.Years <= 0 || ce.Rate <= 0 {
			return missingCalcParams
		}
	case domain.CalcVariation:
		if ce.From == 0 || ce.To == 0 {
			return missingCalcParams
		}
	case domain.CalcRatio:
		if ce.Price <= 0 || ce.Earnings == 0 {
			return missingCalcParams
		}
	default:
		return missingCalcParams
	}
	return ""
}

func economicTopic(matched string) string {
	text := strings.ToLower(matched)
	switch {
	case strings.Contains(text, "inflation"):
		return "inflation"
	case strings.Contains(text, "taux"):
		return "interest_rates"
	case strings.Contains(text, "pib") || strings.Contains(text, "gdp"):
		return "gdp"
	case strings.Contains(text, "chômage") || strings.Contains(text, "chomage") || strings.Contains(text, "emploi"):
		return "employment"
	}
	return "general"
}

var forexCurrencies = []string{"USD", "EUR", "GBP", "JPY", "CAD", "CHF"}

// forexPair extracts a currency pair from the matched text, or "" when the
// message names fewer (or more) than two currencies.
func forexPair(matched string) string {
	text := strings.ToUpper(matched)
	var found []string
	for _, cur := range forexCurrencies {
		if strings.Contains(text, cur) {
			found = append(found, cur)
		}
	}
	if len(found) == 2 {
		return found[0] + "/" + found[1]
	}
	return ""
}
