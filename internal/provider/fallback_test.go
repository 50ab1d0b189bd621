package provider

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"finbot/internal/domain"
)

// mockQuoteProvider implements domain.QuoteProvider for testing.
type mockQuoteProvider struct {
	name  string
	quote *domain.Quote
	err   error
	calls int
}

func (m *mockQuoteProvider) Name() string { return m.name }

func (m *mockQuoteProvider) Quote(ctx context.Context, ticker string) (*domain.Quote, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.quote, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// --- Chain order ---

func TestQuoteChain_UsesFirstProvider(t *testing.T) {
	p1 := &mockQuoteProvider{name: "FMP", quote: &domain.Quote{Ticker: "AAPL", Price: 195.4}}
	p2 := &mockQuoteProvider{name: "Alpha Vantage", quote: &domain.Quote{Ticker: "AAPL", Price: 999}}
	chain := NewQuoteChain([]domain.QuoteProvider{p1, p2}, time.Second, testLogger())

	quote, source, err := chain.Quote(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if quote.Price != 195.4 || source != "FMP" {
		t.Fatalf("expected primary provider, got %v from %q", quote.Price, source)
	}
	if p2.calls != 0 {
		t.Fatal("secondary provider should not be called when primary succeeds")
	}
}

func TestQuoteChain_FallsBackOnError(t *testing.T) {
	p1 := &mockQuoteProvider{name: "FMP", err: errors.New("api error")}
	p2 := &mockQuoteProvider{name: "Alpha Vantage", quote: &domain.Quote{Ticker: "AAPL", Price: 195.4}}
	chain := NewQuoteChain([]domain.QuoteProvider{p1, p2}, time.Second, testLogger())

	quote, source, err := chain.Quote(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if quote == nil || source != "Alpha Vantage" {
		t.Fatalf("expected fallback provider, got source %q", source)
	}
}

// --- Exhaustion ---

func TestQuoteChain_AllFail_AccumulatesAttempts(t *testing.T) {
	p1 := &mockQuoteProvider{name: "FMP", err: errors.New("timeout")}
	p2 := &mockQuoteProvider{name: "Alpha Vantage", err: errors.New("rate limited")}
	p3 := &mockQuoteProvider{name: "Twelve Data", err: errors.New("bad key")}
	chain := NewQuoteChain([]domain.QuoteProvider{p1, p2, p3}, time.Second, testLogger())

	_, _, err := chain.Quote(context.Background(), "AAPL")
	if err == nil {
		t.Fatal("expected error when every provider fails")
	}

	var re *domain.RetrievalError
	if !errors.As(err, &re) {
		t.Fatalf("expected *domain.RetrievalError, got %T", err)
	}
	if len(re.Attempts) != 3 {
		t.Fatalf("expected 3 recorded attempts, got %d", len(re.Attempts))
	}
	if re.Attempts[1].Provider != "Alpha Vantage" || re.Attempts[1].Message != "rate limited" {
		t.Fatalf("attempt order not preserved: %+v", re.Attempts)
	}
}

func TestQuoteChain_ParentContextCancelStopsWalk(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p1 := &mockQuoteProvider{name: "FMP", err: errors.New("canceled")}
	p2 := &mockQuoteProvider{name: "Alpha Vantage", quote: &domain.Quote{Ticker: "AAPL"}}
	chain := NewQuoteChain([]domain.QuoteProvider{p1, p2}, time.Second, testLogger())

	_, _, err := chain.Quote(ctx, "AAPL")
	if err == nil {
		t.Fatal("expected error under canceled context")
	}
	if p2.calls != 0 {
		t.Fatal("chain should stop walking once the parent context is done")
	}
}

// --- Name ---

func TestQuoteChain_Name(t *testing.T) {
	p1 := &mockQuoteProvider{name: "FMP"}
	p2 := &mockQuoteProvider{name: "Twelve Data"}
	chain := NewQuoteChain([]domain.QuoteProvider{p1, p2}, time.Second, testLogger())

	if got := chain.Name(); got != "fallback(FMP -> Twelve Data)" {
		t.Fatalf("unexpected chain name %q", got)
	}
}

// --- Citation normalization ---

func TestNormalizeCitations(t *testing.T) {
	raw := []string{
		"https://www.reuters.com/markets/apple-results/?utm_source=x",
		"https://reuters.com/markets/apple-results/",
		"https://bloomberg.com/news/article#section",
		"not a url",
		"https://ft.com/content/abc",
		"https://wsj.com/finance",
	}
	got := NormalizeCitations(raw)
	want := []string{
		"reuters.com/markets/apple-results",
		"bloomberg.com/news/article",
		"ft.com/content/abc",
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d citations, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("citation %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestNormalizeCitations_Empty(t *testing.T) {
	if got := NormalizeCitations(nil); len(got) != 0 {
		t.Fatalf("expected empty result, got %v", got)
	}
}
