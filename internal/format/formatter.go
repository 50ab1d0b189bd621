// Package format turns a fact payload into the final reply text. Replies
// with factual material go through the text generator under a constrained
// prompt; canned intents, the watchlist and calculator results are rendered
// deterministically. The generator is never the source of numbers: every
// figure in the prompt comes from the payload, and a post-pass warns when
// the generated text contains numbers the payload does not.
package format

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"finbot/internal/domain"
	"finbot/internal/finance"
	"finbot/internal/sms"
)

// baseRules is prepended to every synthesis prompt. The generator is used as
// a phrasing engine only.
const baseRules = `Tu es FinBot, assistant financier par SMS. Règles strictes:
- Utilise UNIQUEMENT les données fournies ci-dessous. N'invente aucun chiffre.
- Réponds en français, phrases complètes, ton professionnel.
- Maximum %d caractères. Pas d'emoji, pas de markdown.
- N'ajoute PAS de ligne "Source:", elle est ajoutée après toi.`

// Output is one formatted reply.
type Output struct {
	Text      string
	Truncated bool
	// Degraded means the generator failed and the deterministic fallback
	// rendering was used instead.
	Degraded bool
	// Footerless marks replies that legitimately carry no provenance footer
	// (canned text); the validator waives the footer check for them.
	Footerless bool
}

// Formatter renders payloads. TargetChars is the soft budget given to the
// generator; MaxChars is the hard channel ceiling enforced here.
type Formatter struct {
	generator   domain.TextGenerator
	targetChars int
	maxChars    int
	timeout     time.Duration
	logger      *slog.Logger
}

type Config struct {
	Generator   domain.TextGenerator
	TargetChars int
	MaxChars    int
	Timeout     time.Duration
	Logger      *slog.Logger
}

func NewFormatter(cfg Config) *Formatter {
	if cfg.TargetChars <= 0 {
		cfg.TargetChars = 300
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = 1520
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Formatter{
		generator:   cfg.Generator,
		targetChars: cfg.TargetChars,
		maxChars:    cfg.MaxChars,
		timeout:     cfg.Timeout,
		logger:      cfg.Logger,
	}
}

// Format renders one payload into reply text with its provenance footer.
func (f *Formatter) Format(ctx context.Context, payload *domain.FactPayload) (Output, error) {
	if payload == nil {
		return Output{}, fmt.Errorf("format: nil payload")
	}

	// Direct paths never touch the generator.
	if payload.Direct != "" {
		return f.finish(payload.Direct, payload, true), nil
	}
	if payload.Calc != nil {
		return f.finish(renderCalc(payload.Calc), payload, false), nil
	}
	if payload.Intent == domain.IntentPortfolio {
		return f.finish(renderPortfolio(payload.Tickers), payload, false), nil
	}

	body, degraded := f.synthesize(ctx, payload)
	out := f.finish(body, payload, false)
	out.Degraded = degraded
	return out, nil
}

// synthesize phrases the payload through the generator, falling back to a
// deterministic rendering when the call fails.
func (f *Formatter) synthesize(ctx context.Context, payload *domain.FactPayload) (string, bool) {
	if f.generator == nil {
		return renderFallback(payload), true
	}

	prompt := fmt.Sprintf(baseRules, f.targetChars) +
		"\n\nDONNÉES:\n" + dataExcerpt(payload) +
		"\n\nTÂCHE: " + task(payload)

	genCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	body, err := f.generator.Generate(genCtx, prompt, domain.GenerateOptions{})
	if err != nil {
		ferr := &domain.FormattingError{Connector: f.generator.Name(), Err: err}
		f.logger.Warn("generator failed, using fallback rendering",
			"intent", payload.Intent,
			"error", ferr,
		)
		return renderFallback(payload), true
	}

	body = strings.TrimSpace(body)
	if body == "" {
		return renderFallback(payload), true
	}

	f.checkNumbers(body, payload)
	return body, false
}

// finish appends the provenance footer and enforces the hard ceiling.
func (f *Formatter) finish(body string, payload *domain.FactPayload, footerless bool) Output {
	out := Output{Footerless: footerless}

	footer := ""
	if !footerless {
		if len(payload.Sources) > 0 {
			footer = "Sources: " + strings.Join(payload.Sources, ", ")
		} else if payload.Provenance != "" {
			footer = "Source: " + payload.Provenance
		}
	}

	text := body
	if footer != "" {
		text = body + "\n\n" + footer
	}

	if utf8.RuneCountInString(text) > f.maxChars {
		budget := f.maxChars - utf8.RuneCountInString(footer) - 2
		body = sms.Truncate(body, budget-3) + "..."
		out.Truncated = true
		if footer != "" {
			text = body + "\n\n" + footer
		} else {
			text = body
		}
	}

	out.Text = text
	return out
}

// --- Prompt material ---

func dataExcerpt(p *domain.FactPayload) string {
	var b strings.Builder

	if p.Quote != nil {
		fmt.Fprintf(&b, "%s: cours %.2f, variation %+.2f (%+.2f%%), volume %d, clôture précédente %.2f\n",
			p.Ticker, p.Quote.Price, p.Quote.Change, p.Quote.ChangePercent, p.Quote.Volume, p.Quote.PreviousClose)
	}
	if p.SecondQuote != nil {
		fmt.Fprintf(&b, "%s: cours %.2f, variation %+.2f (%+.2f%%)\n",
			p.SecondTicker, p.SecondQuote.Price, p.SecondQuote.Change, p.SecondQuote.ChangePercent)
	}
	if p.Profile != nil {
		fmt.Fprintf(&b, "Société: %s, secteur %s, industrie %s, capitalisation %.0f\n",
			p.Profile.CompanyName, p.Profile.Sector, p.Profile.Industry, p.Profile.MarketCap)
	}
	if p.Ratios != nil {
		fmt.Fprintf(&b, "Ratios: PER %.2f, ROE %.2f, marge nette %.2f, dette/capitaux %.2f, rendement dividende %.2f\n",
			p.Ratios.PERatio, p.Ratios.ReturnOnEquity, p.Ratios.NetProfitMargin, p.Ratios.DebtToEquity, p.Ratios.DividendYield)
	}
	if p.Income != nil {
		fmt.Fprintf(&b, "Résultats (%s): chiffre d'affaires %.0f, résultat net %.0f, BPA %.2f\n",
			p.Income.Period, p.Income.Revenue, p.Income.NetIncome, p.Income.EPS)
	}
	for i, n := range p.News {
		fmt.Fprintf(&b, "Actu %d: %s (%s, %s)\n", i+1, n.Title, n.Site, n.PublishedAt)
	}
	if p.Earnings != nil {
		fmt.Fprintf(&b, "Earnings %s du %s: réalisé %.2f, attendu %.2f, surprise %+.2f%%\n",
			p.Earnings.Ticker, p.Earnings.Date, p.Earnings.Actual, p.Earnings.Estimated, p.Earnings.Surprise)
	}
	if p.Summary != "" {
		fmt.Fprintf(&b, "Synthèse: %s\n", p.Summary)
	}

	if b.Len() == 0 {
		return "(aucune donnée)"
	}
	return strings.TrimRight(b.String(), "\n")
}

func task(p *domain.FactPayload) string {
	switch p.Intent {
	case domain.IntentStockPrice:
		return fmt.Sprintf("Donne le cours de %s et sa variation du jour en une ou deux phrases.", p.Ticker)
	case domain.IntentComparativeAnalysis:
		return fmt.Sprintf("Compare %s et %s sur leurs cours et variations du jour.", p.Ticker, p.SecondTicker)
	case domain.IntentFundamentals:
		return fmt.Sprintf("Résume les fondamentaux de %s en citant les ratios marquants.", p.Ticker)
	case domain.IntentNews:
		return fmt.Sprintf("Résume les actualités de %s en citant les titres fournis.", p.Ticker)
	case domain.IntentEarnings:
		return fmt.Sprintf("Résume le dernier résultat trimestriel de %s par rapport aux attentes.", p.Ticker)
	case domain.IntentComprehensiveAnalysis:
		return fmt.Sprintf("Fais une analyse synthétique de %s: cours, fondamentaux et actualité.", p.Ticker)
	default:
		return "Reformule la synthèse ci-dessus de manière concise pour un SMS."
	}
}

// --- Fallback renderings ---

// renderFallback produces a terse deterministic reply from the payload when
// the generator is unavailable. Everything it prints is already in the
// payload, so it is always safe.
func renderFallback(p *domain.FactPayload) string {
	switch {
	case p.Quote != nil && p.SecondQuote != nil:
		return fmt.Sprintf("%s: %.2f (%+.2f%%) vs %s: %.2f (%+.2f%%).",
			p.Ticker, p.Quote.Price, p.Quote.ChangePercent,
			p.SecondTicker, p.SecondQuote.Price, p.SecondQuote.ChangePercent)
	case p.Quote != nil:
		return fmt.Sprintf("%s: %.2f (%+.2f%%).", p.Ticker, p.Quote.Price, p.Quote.ChangePercent)
	case p.Summary != "":
		return p.Summary
	case p.Ratios != nil:
		return fmt.Sprintf("%s: PER %.2f, ROE %.2f, rendement dividende %.2f%%.",
			p.Ticker, p.Ratios.PERatio, p.Ratios.ReturnOnEquity, p.Ratios.DividendYield)
	case len(p.News) > 0:
		return fmt.Sprintf("%s: %s (%s).", p.Ticker, p.News[0].Title, p.News[0].Site)
	case p.Earnings != nil:
		return fmt.Sprintf("%s: BPA %.2f vs %.2f attendu (%+.2f%%).",
			p.Earnings.Ticker, p.Earnings.Actual, p.Earnings.Estimated, p.Earnings.Surprise)
	default:
		return "Données disponibles mais mise en forme indisponible. Réessayez."
	}
}

func renderPortfolio(tickers []string) string {
	if len(tickers) == 0 {
		return "Votre watchlist est vide. Ajoutez un titre avec: watchlist add AAPL."
	}
	return "Votre watchlist: " + strings.Join(tickers, ", ") + "."
}

// renderCalc prints a calculator result in full sentences. One case per
// result type; there is no generic path because the types are closed.
func renderCalc(result any) string {
	switch r := result.(type) {
	case *finance.LoanResult:
		return fmt.Sprintf("Prêt %.0f sur %d ans à %.2f%%: mensualité %.2f, coût du crédit %.2f, total remboursé %.2f.",
			r.Principal, r.Years, r.AnnualRatePct, r.MonthlyPayment, r.TotalInterest, r.TotalPayment)
	case *finance.VariationResult:
		direction := "stable"
		switch r.Direction {
		case "up":
			direction = "hausse"
		case "down":
			direction = "baisse"
		}
		return fmt.Sprintf("De %.2f à %.2f: %+.2f soit %+.2f%% (%s).",
			r.From, r.To, r.Change, r.ChangePercent, direction)
	case *finance.RatioResult:
		return fmt.Sprintf("Résultat: %.2f, niveau %s.", r.Value, r.Interpretation)
	default:
		return "Calcul effectué."
	}
}

// --- Anti-hallucination check ---

var numberPattern = regexp.MustCompile(`-?\d+(?:[.,]\d+)?`)

// checkNumbers compares every numeric token in the generated body against
// the numbers present in the payload excerpt. Unknown numbers are logged,
// not blocked: rounding and rephrasing produce too many honest mismatches
// for a hard failure.
func (f *Formatter) checkNumbers(body string, payload *domain.FactPayload) {
	known := make(map[string]bool)
	for _, tok := range numberPattern.FindAllString(dataExcerpt(payload), -1) {
		for _, variant := range numberVariants(tok) {
			known[variant] = true
		}
	}

	for _, tok := range numberPattern.FindAllString(body, -1) {
		normalized := strings.ReplaceAll(tok, ",", ".")
		normalized = strings.TrimPrefix(normalized, "-")
		if !known[normalized] {
			f.logger.Warn("generated text contains a number absent from the payload",
				"intent", payload.Intent,
				"number", tok,
			)
		}
	}
}

// numberVariants returns the spellings under which a payload number may
// legitimately reappear: as-is, without sign, and rounded to one and zero
// decimals.
func numberVariants(tok string) []string {
	normalized := strings.ReplaceAll(tok, ",", ".")
	normalized = strings.TrimPrefix(normalized, "-")
	variants := []string{normalized}

	if v, err := strconv.ParseFloat(normalized, 64); err == nil {
		variants = append(variants,
			strconv.FormatFloat(v, 'f', -1, 64),
			fmt.Sprintf("%.1f", v),
			fmt.Sprintf("%.0f", v),
		)
	}
	return variants
}
