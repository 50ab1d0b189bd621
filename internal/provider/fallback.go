package provider

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"finbot/internal/domain"
	"finbot/internal/metrics"
)

// QuoteChain tries each quote provider in its configured order, falling back
// to the next on any error. Every failed attempt is kept, so when the whole
// chain is exhausted the returned error names each layer that broke instead
// of just the last one. Order is fixed at construction; there is no health
// scoring or reordering.
type QuoteChain struct {
	providers []domain.QuoteProvider
	timeout   time.Duration
	logger    *slog.Logger
}

// NewQuoteChain creates a fallback chain. timeout bounds each individual
// attempt; the caller's context still bounds the whole walk.
func NewQuoteChain(providers []domain.QuoteProvider, timeout time.Duration, logger *slog.Logger) *QuoteChain {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QuoteChain{
		providers: providers,
		timeout:   timeout,
		logger:    logger,
	}
}

func (c *QuoteChain) Name() string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return "fallback(" + strings.Join(names, " -> ") + ")"
}

// Quote returns the first successful quote along with the name of the
// provider that produced it, for the provenance footer. On total failure the
// error is a *domain.RetrievalError carrying one entry per attempt.
func (c *QuoteChain) Quote(ctx context.Context, ticker string) (*domain.Quote, string, error) {
	var attempts []domain.ProviderFailure

	for i, p := range c.providers {
		metrics.ProviderRequests.Inc()
		attemptStart := time.Now()
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		quote, err := p.Quote(attemptCtx, ticker)
		cancel()
		metrics.ProviderLatency.Observe(time.Since(attemptStart).Seconds())

		if err == nil {
			if i > 0 {
				c.logger.Info("quote chain used fallback provider",
					"provider", p.Name(),
					"attempt", i+1,
					"ticker", ticker,
				)
			}
			return quote, p.Name(), nil
		}

		metrics.ProviderErrors.Inc()
		attempts = append(attempts, domain.ProviderFailure{
			Provider: p.Name(),
			Message:  err.Error(),
		})
		c.logger.Warn("quote provider failed, trying next",
			"provider", p.Name(),
			"attempt", i+1,
			"ticker", ticker,
			"error", err,
		)

		// The parent context ending makes further attempts pointless.
		if ctx.Err() != nil {
			break
		}
	}

	return nil, "", &domain.RetrievalError{
		Subject:  ticker,
		Attempts: attempts,
	}
}
