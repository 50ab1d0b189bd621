// Package pipeline runs one message through the fixed stage sequence:
// intent, then either clarify or retrieve, format, validate, done. Any stage
// can divert to error, which still produces a deliverable reply: raw errors
// go to the log and the trace, the user always gets a short French apology.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"finbot/internal/domain"
	"finbot/internal/format"
	"finbot/internal/metrics"
	"finbot/internal/sms"
)

// Stage names one step of the run, in the order they can occur.
type Stage string

const (
	StageIntent   Stage = "INTENT"
	StageClarify  Stage = "CLARIFY"
	StageRetrieve Stage = "RETRIEVE"
	StageFormat   Stage = "FORMAT"
	StageValidate Stage = "VALIDATE"
	StageDone     Stage = "DONE"
	StageError    Stage = "ERROR"
)

// StageEvent is one timestamped trace entry.
type StageEvent struct {
	Stage Stage
	At    time.Time
}

// Trace is the ordered list of stages one message passed through.
type Trace []StageEvent

// Metadata summarizes a completed run for logging and channel display.
type Metadata struct {
	Intent     domain.Intent
	Provenance string
	Encoding   string
	Segments   int
	AutoFixed  bool
	Truncated  bool
	Degraded   bool
	LatencyMs  int64
}

// Result is the outcome of one run. Text is always deliverable; Err carries
// the underlying failure when the run ended in the error stage.
type Result struct {
	Text     string
	Metadata Metadata
	Trace    Trace
	Err      error
}

// Classifier, Retriever and Formatter are the stage seams, satisfied by the
// concrete types in their packages and by mocks in tests.
type Classifier interface {
	Classify(text string, convCtx domain.Context) domain.IntentResult
}

type Retriever interface {
	Retrieve(ctx context.Context, res domain.IntentResult, convCtx domain.Context) (*domain.FactPayload, error)
}

type Formatter interface {
	Format(ctx context.Context, payload *domain.FactPayload) (format.Output, error)
}

// Pipeline wires the stages together.
type Pipeline struct {
	classifier Classifier
	retriever  Retriever
	formatter  Formatter
	validator  *sms.Validator
	source     string // default provenance injected by auto-fix
	logger     *slog.Logger

	processed *metrics.Counter
	errored   *metrics.Counter
	autofixed *metrics.Counter
	latency   *metrics.Histogram
}

type Config struct {
	Classifier    Classifier
	Retriever     Retriever
	Formatter     Formatter
	Validator     *sms.Validator
	DefaultSource string
	Logger        *slog.Logger
}

func New(cfg Config) *Pipeline {
	if cfg.Validator == nil {
		cfg.Validator = sms.NewValidator(0)
	}
	if cfg.DefaultSource == "" {
		cfg.DefaultSource = "API"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	c := metrics.Collector
	return &Pipeline{
		classifier: cfg.Classifier,
		retriever:  cfg.Retriever,
		formatter:  cfg.Formatter,
		validator:  cfg.Validator,
		source:     cfg.DefaultSource,
		logger:     cfg.Logger,
		processed:  c.Counter("finbot_messages_processed_total", "Messages run through the pipeline", ""),
		errored:    c.Counter("finbot_messages_errored_total", "Runs that ended in the error stage", ""),
		autofixed:  c.Counter("finbot_replies_autofixed_total", "Replies corrected by the validator", ""),
		latency:    c.Histogram("finbot_pipeline_latency_seconds", "End-to-end run latency", "", nil),
	}
}

// Process runs one message end to end. It never returns an undeliverable
// result: clarifications, apologies and auto-fixed replies are all valid
// channel text.
func (p *Pipeline) Process(ctx context.Context, msg domain.InboundMessage, convCtx domain.Context) Result {
	start := time.Now()
	var trace Trace
	record := func(s Stage) {
		trace = append(trace, StageEvent{Stage: s, At: time.Now()})
	}
	p.processed.Inc()

	record(StageIntent)
	res := p.classifier.Classify(msg.Content, convCtx)

	if res.NeedsClarification {
		record(StageClarify)
		return p.deliver(res.Clarification, Metadata{Intent: res.Intent}, trace, nil, true, start)
	}

	record(StageRetrieve)
	payload, err := p.retriever.Retrieve(ctx, res, convCtx)
	if err != nil {
		record(StageError)
		p.errored.Inc()
		p.logger.Error("retrieval failed",
			"intent", res.Intent,
			"channel", msg.Channel,
			"error", err,
		)
		return p.deliver(apology(res.Intent), Metadata{Intent: res.Intent}, trace, err, true, start)
	}

	record(StageFormat)
	out, err := p.formatter.Format(ctx, payload)
	if err != nil {
		record(StageError)
		p.errored.Inc()
		p.logger.Error("formatting failed", "intent", res.Intent, "error", err)
		return p.deliver(apology(res.Intent), Metadata{Intent: res.Intent}, trace, err, true, start)
	}

	record(StageValidate)
	meta := Metadata{
		Intent:     res.Intent,
		Provenance: payload.Provenance,
		Truncated:  out.Truncated,
		Degraded:   out.Degraded,
	}

	text := out.Text
	outcome := p.validator.Validate(text, sms.Options{SkipSourceCheck: out.Footerless})
	if !outcome.Valid {
		source := payload.Provenance
		if source == "" {
			source = p.source
		}
		fixed, corrections := p.validator.AutoFix(text, sms.FixDefaults{Source: source})
		p.logger.Info("reply auto-fixed",
			"intent", res.Intent,
			"corrections", corrections,
		)
		p.autofixed.Inc()
		meta.AutoFixed = true
		text = fixed
		outcome = p.validator.Validate(text, sms.Options{SkipSourceCheck: out.Footerless})
		if !outcome.Valid {
			// AutoFix output failing validation is a bug, not a user condition.
			p.logger.Error("auto-fixed reply still invalid", "errors", outcome.Errors)
		}
	}

	meta.Encoding = outcome.Metadata.Encoding
	meta.Segments = outcome.Metadata.SegmentCount

	record(StageDone)
	meta.LatencyMs = time.Since(start).Milliseconds()
	p.latency.Observe(time.Since(start).Seconds())
	return Result{Text: text, Metadata: meta, Trace: trace}
}

// deliver finishes a short-circuited run (clarification or apology). The
// text is validated with the footer waived; it never goes through auto-fix.
func (p *Pipeline) deliver(text string, meta Metadata, trace Trace, err error, skipSource bool, start time.Time) Result {
	outcome := p.validator.Validate(text, sms.Options{SkipSourceCheck: skipSource})
	meta.Encoding = outcome.Metadata.Encoding
	meta.Segments = outcome.Metadata.SegmentCount
	meta.LatencyMs = time.Since(start).Milliseconds()
	p.latency.Observe(float64(meta.LatencyMs) / 1000)
	return Result{Text: text, Metadata: meta, Trace: trace, Err: err}
}

// apology maps a failed intent to the sentence the user sees. Raw errors
// never reach the channel.
func apology(it domain.Intent) string {
	switch it {
	case domain.IntentStockPrice, domain.IntentComparativeAnalysis:
		return "Prix indisponible. Réessayez plus tard."
	case domain.IntentFundamentals, domain.IntentComprehensiveAnalysis:
		return "Données financières indisponibles. Réessayez plus tard."
	case domain.IntentNews:
		return "Actualités indisponibles pour le moment."
	case domain.IntentEarnings:
		return "Résultats indisponibles pour le moment."
	case domain.IntentPortfolio:
		return "Watchlist inaccessible pour le moment."
	case domain.IntentFinancialCalculation:
		return "Calcul impossible. Vérifiez les paramètres (ex: Calcul prêt 300k 25 ans 4.9%)."
	default:
		return "Analyse indisponible pour le moment. Réessayez plus tard."
	}
}
