// Package sms enforces the output-channel contract: encoding-aware length
// budgeting, segment counting, the mandatory provenance footer, and a
// deterministic auto-fix pass for invalid replies.
package sms

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Segment capacities per GSM 03.38. Concatenated segments lose 7 characters
// to the multipart header.
const (
	gsm7Single = 160
	gsm7Concat = 153
	ucs2Single = 70
	ucs2Concat = 67
)

const (
	EncodingGSM7 = "GSM-7"
	EncodingUCS2 = "UCS-2"
)

// gsm7Basic is the GSM 03.38 basic character set, plus the extension table
// characters. Anything outside forces UCS-2 encoding on the wire.
const gsm7Basic = "@£$¥èéùìòÇ\nØø\rÅåΔ_ΦΓΛΩΠΨΣΘΞÆæßÉ !\"#¤%&'()*+,-./0123456789:;<=>?¡ABCDEFGHIJKLMNOPQRSTUVWXYZÄÖÑÜ§¿abcdefghijklmnopqrstuvwxyzäöñüà"
const gsm7Extension = "\f^{}\\[~]|€"

var gsm7Set = func() map[rune]bool {
	set := make(map[rune]bool, len(gsm7Basic)+len(gsm7Extension))
	for _, r := range gsm7Basic {
		set[r] = true
	}
	for _, r := range gsm7Extension {
		set[r] = true
	}
	return set
}()

var footerPattern = regexp.MustCompile(`(?i)source[s]?:`)

// footerLinePattern matches a line that *is* the provenance footer.
var footerLinePattern = regexp.MustCompile(`(?i)^source[s]?:`)

// Metadata describes the channel characteristics of a validated text.
type Metadata struct {
	Encoding            string
	SegmentCount        int
	Length              int
	HasProvenanceFooter bool
}

// Outcome is the result of one validation pass. Errors make the text
// invalid; warnings are advisory.
type Outcome struct {
	Valid    bool
	Errors   []string
	Warnings []string
	Metadata Metadata
}

// Options tune a single validation.
type Options struct {
	// SkipSourceCheck waives the provenance-footer requirement, used for
	// canned intents (greeting, help) that have no data source.
	SkipSourceCheck bool
}

// Validator checks reply text against the channel limits.
type Validator struct {
	maxChars int
}

// NewValidator creates a validator with the given hard multi-segment
// ceiling (total characters, footer included).
func NewValidator(maxChars int) *Validator {
	if maxChars <= 0 {
		maxChars = 1520
	}
	return &Validator{maxChars: maxChars}
}

// Classify returns the wire encoding for text: GSM-7 when every character
// is a member of the GSM 03.38 set, UCS-2 otherwise.
func Classify(text string) string {
	for _, r := range text {
		if !gsm7Set[r] {
			return EncodingUCS2
		}
	}
	return EncodingGSM7
}

// SegmentCount returns how many SMS segments text occupies.
func SegmentCount(text string) int {
	length := utf8.RuneCountInString(text)
	if length == 0 {
		return 0
	}
	single, concat := gsm7Single, gsm7Concat
	if Classify(text) == EncodingUCS2 {
		single, concat = ucs2Single, ucs2Concat
	}
	if length <= single {
		return 1
	}
	return (length + concat - 1) / concat
}

// Validate checks text against the channel contract.
func (v *Validator) Validate(text string, opts Options) Outcome {
	out := Outcome{}
	length := utf8.RuneCountInString(text)

	out.Metadata = Metadata{
		Encoding:            Classify(text),
		SegmentCount:        SegmentCount(text),
		Length:              length,
		HasProvenanceFooter: footerPattern.MatchString(text),
	}

	if strings.TrimSpace(text) == "" {
		out.Errors = append(out.Errors, "empty message body")
	}
	if length > v.maxChars {
		out.Errors = append(out.Errors, fmt.Sprintf("message exceeds channel ceiling: %d > %d chars", length, v.maxChars))
	}
	if !out.Metadata.HasProvenanceFooter && !opts.SkipSourceCheck {
		out.Errors = append(out.Errors, "missing provenance footer (Source: ...)")
	}

	if bad := problematicChars(text); len(bad) > 0 {
		out.Warnings = append(out.Warnings, fmt.Sprintf("non-GSM-7 characters present: %s", string(bad)))
	}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || footerLinePattern.MatchString(line) {
			continue
		}
		if !endsInTerminalPunctuation(line) {
			out.Warnings = append(out.Warnings, fmt.Sprintf("line may be truncated (no terminal punctuation): %q", clip(line, 40)))
		}
	}

	out.Valid = len(out.Errors) == 0
	return out
}

// FixDefaults supplies the values AutoFix injects when the text lacks them.
type FixDefaults struct {
	Source string
}

// AutoFix deterministically corrects an invalid text: trim, truncate at a
// sentence or space boundary, inject the provenance footer, and strip the
// characters validation flagged. Running it on its own output produces no
// further corrections.
func (v *Validator) AutoFix(text string, defaults FixDefaults) (string, []string) {
	var corrections []string

	body, footer := splitFooter(text)
	if footer == "" {
		source := defaults.Source
		if source == "" {
			source = "API"
		}
		footer = "Source: " + source
		corrections = append(corrections, "injected provenance footer")
	}

	trimmed := strings.TrimSpace(body)
	if trimmed != body {
		body = trimmed
		corrections = append(corrections, "trimmed whitespace")
	}

	if bad := problematicChars(body + footer); len(bad) > 0 {
		body = stripProblematic(body)
		footer = stripProblematic(footer)
		corrections = append(corrections, fmt.Sprintf("stripped %d unsupported characters", len(bad)))
	}

	// Reserve room for the footer and its separating blank line so the
	// assembled message fits the ceiling.
	budget := v.maxChars - utf8.RuneCountInString(footer) - 2
	if utf8.RuneCountInString(body) > budget {
		body = truncateAtBoundary(body, budget-3) + "..."
		corrections = append(corrections, fmt.Sprintf("truncated body to %d chars", budget))
	}

	if body == "" {
		return footer, corrections
	}
	return body + "\n\n" + footer, corrections
}

// splitFooter separates the trailing provenance line from the body.
// Returns an empty footer when the text has none.
func splitFooter(text string) (body, footer string) {
	lines := strings.Split(strings.TrimRight(text, " \t\n"), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		if footerLinePattern.MatchString(line) {
			return strings.TrimRight(strings.Join(lines[:i], "\n"), " \t\n"), line
		}
		break
	}
	return text, ""
}

// Truncate cuts text to at most limit runes at a natural boundary. It is
// the same rule AutoFix applies, exported for callers that trim before
// validation.
func Truncate(text string, limit int) string {
	return truncateAtBoundary(text, limit)
}

// truncateAtBoundary cuts text to at most limit runes, preferring the last
// sentence end past 70% of the limit, then the last space under the same
// rule, then a hard cut.
func truncateAtBoundary(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	if limit <= 0 {
		return ""
	}
	cut := runes[:limit]
	threshold := int(float64(limit) * 0.7)

	for i := len(cut) - 1; i >= threshold; i-- {
		switch cut[i] {
		case '.', '!', '?':
			return string(cut[:i+1])
		}
	}
	for i := len(cut) - 1; i >= threshold; i-- {
		if cut[i] == ' ' {
			return strings.TrimRight(string(cut[:i]), " ")
		}
	}
	return string(cut)
}

func problematicChars(text string) []rune {
	seen := make(map[rune]bool)
	var bad []rune
	for _, r := range text {
		if !gsm7Set[r] && !seen[r] {
			seen[r] = true
			bad = append(bad, r)
		}
	}
	return bad
}

func stripProblematic(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if gsm7Set[r] {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func endsInTerminalPunctuation(line string) bool {
	r, _ := utf8.DecodeLastRuneInString(line)
	switch r {
	case '.', '!', '?', ':':
		return true
	}
	return false
}

func clip(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
