package canned

import (
	"os"
	"path/filepath"
	"testing"

	"finbot/internal/domain"
)

func TestLoadFromDirectory(t *testing.T) {
	dir := t.TempDir()
	content := `replies:
  greeting: "Bonjour! Je suis FinBot."
  sources: "Sources: FMP, Alpha Vantage, Twelve Data, Perplexity."
`
	if err := os.WriteFile(filepath.Join(dir, "replies.yaml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	lib, err := LoadFromDirectory(dir, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	text, ok := lib.Reply(domain.IntentGreeting)
	if !ok || text != "Bonjour! Je suis FinBot." {
		t.Fatalf("greeting = %q, %v", text, ok)
	}
	if _, ok := lib.Reply(domain.IntentHelp); ok {
		t.Fatal("unconfigured intent must miss")
	}
}

func TestLoadFromDirectory_Missing(t *testing.T) {
	lib, err := LoadFromDirectory(filepath.Join(t.TempDir(), "nope"), nil)
	if err != nil {
		t.Fatalf("missing dir must not error: %v", err)
	}
	if _, ok := lib.Reply(domain.IntentGreeting); ok {
		t.Fatal("empty library must miss")
	}
}

func TestLoadFromDirectory_BadFileSkipped(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("replies: ["), 0o644)
	os.WriteFile(filepath.Join(dir, "ok.yaml"), []byte("replies:\n  help: \"Aide.\"\n"), 0o644)

	lib, err := LoadFromDirectory(dir, nil)
	if err != nil {
		t.Fatalf("broken file must be skipped, not fatal: %v", err)
	}
	if _, ok := lib.Reply(domain.IntentHelp); !ok {
		t.Fatal("valid file must still load")
	}
}
