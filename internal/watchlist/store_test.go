package watchlist

import (
	"context"
	"path/filepath"
	"testing"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "watchlist.db"), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_AddAndList(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.Add(ctx, "AAPL"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.Add(ctx, "MSFT"); err != nil {
		t.Fatalf("add: %v", err)
	}

	tickers, err := s.Tickers(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tickers) != 2 || tickers[0] != "AAPL" || tickers[1] != "MSFT" {
		t.Fatalf("tickers = %v", tickers)
	}
}

func TestStore_AddIsIdempotent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := s.Add(ctx, "AAPL"); err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
	}
	tickers, _ := s.Tickers(ctx)
	if len(tickers) != 1 {
		t.Fatalf("expected 1 ticker, got %v", tickers)
	}
}

func TestStore_Remove(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	s.Add(ctx, "AAPL")
	if err := s.Remove(ctx, "AAPL"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := s.Remove(ctx, "GONE"); err != nil {
		t.Fatalf("remove missing must be a no-op: %v", err)
	}

	tickers, _ := s.Tickers(ctx)
	if len(tickers) != 0 {
		t.Fatalf("expected empty, got %v", tickers)
	}
}
