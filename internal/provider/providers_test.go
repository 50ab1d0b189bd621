package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"finbot/internal/domain"
)

// --- FMP schema translation ---

func TestFMP_Quote_Normalizes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("apikey") != "k" {
			t.Errorf("apikey not forwarded: %s", r.URL.RawQuery)
		}
		w.Write([]byte(`[{"symbol":"AAPL","price":195.4,"change":2.3,"changesPercentage":1.19,"volume":52000000,"previousClose":193.1}]`))
	}))
	defer srv.Close()

	fmp := NewFMP(FMPConfig{APIKey: "k", APIBase: srv.URL, Timeout: time.Second, Logger: testLogger()})
	q, err := fmp.Quote(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Ticker != "AAPL" || q.Price != 195.4 || q.Volume != 52000000 {
		t.Fatalf("bad translation: %+v", q)
	}
}

func TestFMP_Quote_EmptyArrayIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	fmp := NewFMP(FMPConfig{APIKey: "k", APIBase: srv.URL, Timeout: time.Second, Logger: testLogger()})
	if _, err := fmp.Quote(context.Background(), "ZZZZZ"); err == nil {
		t.Fatal("empty payload must fail, not zero-fill")
	}
}

// --- Alpha Vantage schema translation ---

func TestAlphaVantage_Quote_ParsesStringFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Global Quote":{"01. symbol":"AAPL","05. price":"195.4000","06. volume":"52000000","08. previous close":"193.1000","09. change":"2.3000","10. change percent":"1.1900%"}}`))
	}))
	defer srv.Close()

	av := NewAlphaVantage(AlphaVantageConfig{APIKey: "k", APIBase: srv.URL, Timeout: time.Second, Logger: testLogger()})
	q, err := av.Quote(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Price != 195.4 || q.ChangePercent != 1.19 || q.Volume != 52000000 {
		t.Fatalf("bad translation: %+v", q)
	}
}

func TestAlphaVantage_RateLimitNote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Note":"Thank you for using Alpha Vantage! Our standard API call frequency is 5 calls per minute."}`))
	}))
	defer srv.Close()

	av := NewAlphaVantage(AlphaVantageConfig{APIKey: "k", APIBase: srv.URL, Timeout: time.Second, Logger: testLogger()})
	if _, err := av.Quote(context.Background(), "AAPL"); err == nil {
		t.Fatal("rate-limit note must surface as an error")
	}
}

// --- Twelve Data schema translation ---

func TestTwelveData_Quote_ParsesStringFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbol":"AAPL","close":"195.40","change":"2.30","percent_change":"1.19","volume":"52000000","previous_close":"193.10"}`))
	}))
	defer srv.Close()

	td := NewTwelveData(TwelveDataConfig{APIKey: "k", APIBase: srv.URL, Timeout: time.Second, Logger: testLogger()})
	q, err := td.Quote(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Price != 195.4 || q.PreviousClose != 193.1 {
		t.Fatalf("bad translation: %+v", q)
	}
}

func TestTwelveData_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"error","message":"symbol not found"}`))
	}))
	defer srv.Close()

	td := NewTwelveData(TwelveDataConfig{APIKey: "k", APIBase: srv.URL, Timeout: time.Second, Logger: testLogger()})
	if _, err := td.Quote(context.Background(), "ZZZZZ"); err == nil {
		t.Fatal("error status must surface as an error")
	}
}

// --- Perplexity search ---

func TestPerplexity_Search_ReturnsCitations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer k" {
			t.Errorf("missing bearer token")
		}
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Le CAC 40 progresse de 0,8%."}}],"citations":["https://www.lesechos.fr/marches/cac40","https://reuters.com/markets/europe"]}`))
	}))
	defer srv.Close()

	p := NewPerplexity(PerplexityConfig{APIKey: "k", APIBase: srv.URL, Timeout: time.Second, Logger: testLogger()})
	res, err := p.Search(context.Background(), "tendance CAC 40", domain.SearchOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Summary == "" {
		t.Fatal("empty summary")
	}
	if len(res.Citations) != 2 || res.Citations[0] != "lesechos.fr/marches/cac40" {
		t.Fatalf("citations not normalized: %v", res.Citations)
	}
}

func TestPerplexity_Search_EmptyAnswerIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  "}}]}`))
	}))
	defer srv.Close()

	p := NewPerplexity(PerplexityConfig{APIKey: "k", APIBase: srv.URL, Timeout: time.Second, Logger: testLogger()})
	if _, err := p.Search(context.Background(), "q", domain.SearchOptions{}); err == nil {
		t.Fatal("expected error for blank answer")
	}
}
