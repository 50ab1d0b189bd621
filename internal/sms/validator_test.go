package sms

import (
	"strings"
	"testing"
)

// --- Encoding classification ---

func TestClassify_PureASCII(t *testing.T) {
	if enc := Classify("AAPL: 195.40 (+1.2%). All good."); enc != EncodingGSM7 {
		t.Fatalf("expected GSM-7, got %s", enc)
	}
}

func TestClassify_Emoji(t *testing.T) {
	if enc := Classify("AAPL up 😀"); enc != EncodingUCS2 {
		t.Fatalf("expected UCS-2 for emoji, got %s", enc)
	}
}

func TestClassify_GSM7Accents(t *testing.T) {
	// é è ù à are members of the GSM 03.38 basic set.
	if enc := Classify("résultats déjà publiés"); enc != EncodingGSM7 {
		t.Fatalf("expected GSM-7 for GSM accents, got %s", enc)
	}
	// ê is not.
	if enc := Classify("fenêtre"); enc != EncodingUCS2 {
		t.Fatalf("expected UCS-2 for ê, got %s", enc)
	}
}

// --- Segment counting ---

func TestSegmentCount_GSM7(t *testing.T) {
	if n := SegmentCount(strings.Repeat("a", 160)); n != 1 {
		t.Fatalf("160 GSM-7 chars = %d segments, want 1", n)
	}
	if n := SegmentCount(strings.Repeat("a", 170)); n != 2 {
		t.Fatalf("170 GSM-7 chars = %d segments, want 2 (ceil(170/153))", n)
	}
	if n := SegmentCount(strings.Repeat("a", 307)); n != 3 {
		t.Fatalf("307 GSM-7 chars = %d segments, want 3", n)
	}
}

func TestSegmentCount_UCS2(t *testing.T) {
	if n := SegmentCount(strings.Repeat("ê", 70)); n != 1 {
		t.Fatalf("70 UCS-2 chars = %d segments, want 1", n)
	}
	if n := SegmentCount(strings.Repeat("ê", 75)); n != 2 {
		t.Fatalf("75 UCS-2 chars = %d segments, want 2 (ceil(75/67))", n)
	}
}

// --- Validate ---

func TestValidate_MissingFooter(t *testing.T) {
	v := NewValidator(1520)
	out := v.Validate("AAPL trades at 195.40.", Options{})
	if out.Valid {
		t.Fatal("expected invalid without Source: footer")
	}
	if out.Metadata.HasProvenanceFooter {
		t.Fatal("footer should not be detected")
	}
}

func TestValidate_FooterWaived(t *testing.T) {
	v := NewValidator(1520)
	out := v.Validate("Bonjour! Envoyez Aide pour les commandes.", Options{SkipSourceCheck: true})
	if !out.Valid {
		t.Fatalf("expected valid with waived footer, errors: %v", out.Errors)
	}
}

func TestValidate_WithFooter(t *testing.T) {
	v := NewValidator(1520)
	out := v.Validate("AAPL trades at 195.40.\n\nSource: FMP", Options{})
	if !out.Valid {
		t.Fatalf("expected valid, errors: %v", out.Errors)
	}
	if !out.Metadata.HasProvenanceFooter {
		t.Fatal("footer not detected")
	}
}

func TestValidate_Empty(t *testing.T) {
	v := NewValidator(1520)
	if out := v.Validate("   ", Options{SkipSourceCheck: true}); out.Valid {
		t.Fatal("expected invalid for empty body")
	}
}

func TestValidate_OverCeiling(t *testing.T) {
	v := NewValidator(300)
	out := v.Validate(strings.Repeat("a", 301)+"\n\nSource: FMP", Options{})
	if out.Valid {
		t.Fatal("expected invalid over the ceiling")
	}
}

func TestValidate_EmojiIsWarningNotError(t *testing.T) {
	v := NewValidator(1520)
	out := v.Validate("AAPL up 😀.\n\nSource: FMP", Options{})
	if !out.Valid {
		t.Fatalf("emoji must not invalidate, errors: %v", out.Errors)
	}
	if len(out.Warnings) == 0 {
		t.Fatal("expected a warning for non-GSM-7 characters")
	}
}

func TestValidate_TruncationHeuristicWarning(t *testing.T) {
	v := NewValidator(1520)
	out := v.Validate("Price going strong and\n\nSource: FMP", Options{})
	if !out.Valid {
		t.Fatalf("expected valid, errors: %v", out.Errors)
	}
	found := false
	for _, w := range out.Warnings {
		if strings.Contains(w, "truncated") {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a looks-truncated warning for a line without terminal punctuation")
	}
}

// --- AutoFix ---

func TestAutoFix_InjectsFooter(t *testing.T) {
	v := NewValidator(1520)
	fixed, corrections := v.AutoFix("AAPL trades at 195.40.", FixDefaults{Source: "FMP"})
	if !strings.Contains(fixed, "Source: FMP") {
		t.Fatalf("footer not injected: %q", fixed)
	}
	if len(corrections) == 0 {
		t.Fatal("expected corrections to be reported")
	}
	if out := v.Validate(fixed, Options{}); !out.Valid {
		t.Fatalf("fixed text should validate, errors: %v", out.Errors)
	}
}

func TestAutoFix_TruncatesOverlongBody(t *testing.T) {
	v := NewValidator(200)
	long := strings.Repeat("Une phrase complete ici. ", 30)
	fixed, _ := v.AutoFix(long, FixDefaults{Source: "FMP"})

	out := v.Validate(fixed, Options{})
	if !out.Valid {
		t.Fatalf("fixed text should validate, errors: %v", out.Errors)
	}
	if out.Metadata.Length > 200 {
		t.Fatalf("fixed text still over ceiling: %d", out.Metadata.Length)
	}
	if !strings.Contains(fixed, "...") {
		t.Fatal("expected ellipsis marker after truncation")
	}
}

func TestAutoFix_Idempotent(t *testing.T) {
	v := NewValidator(200)
	inputs := []string{
		strings.Repeat("Beaucoup trop long pour tenir. ", 20),
		"Sans source et sans ponctuation",
		"  a trimmer  ",
		strings.Repeat("x", 500) + "\n\nSource: FMP",
	}
	for _, in := range inputs {
		once, _ := v.AutoFix(in, FixDefaults{Source: "API"})
		twice, corrections := v.AutoFix(once, FixDefaults{Source: "API"})
		if once != twice {
			t.Fatalf("autofix not idempotent:\n once: %q\ntwice: %q", once, twice)
		}
		if len(corrections) != 0 {
			t.Fatalf("second pass reported corrections: %v", corrections)
		}
	}
}

func TestAutoFix_StripsFlaggedCharacters(t *testing.T) {
	v := NewValidator(1520)
	fixed, _ := v.AutoFix("AAPL 😀 monte.", FixDefaults{Source: "FMP"})
	if strings.Contains(fixed, "😀") {
		t.Fatalf("emoji should be stripped: %q", fixed)
	}
}
