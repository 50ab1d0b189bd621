// Package intent maps raw message text to an intent and its typed entities.
// Classification is deterministic: an ordered pattern table, sorted by
// priority tier with declaration order breaking ties, first match wins.
// There is no scoring and no model call on this path.
package intent

import (
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"finbot/internal/domain"
)

var tickerPattern = regexp.MustCompile(`^[A-Z]{1,5}$`)

// IsValidTicker reports whether s is a well-formed stock symbol:
// exactly 1 to 5 uppercase Latin letters. The rule is shared by every
// intent that requires a ticker.
func IsValidTicker(s string) bool {
	return tickerPattern.MatchString(s)
}

// Classifier holds the immutable, priority-sorted intent table.
type Classifier struct {
	defs   []definition
	logger *slog.Logger
}

// NewClassifier builds a classifier from the static table. The table is
// sorted once here; ties keep declaration order.
func NewClassifier(logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	defs := Table()
	sort.SliceStable(defs, func(i, j int) bool {
		return defs[i].priority > defs[j].priority
	})
	return &Classifier{defs: defs, logger: logger}
}

// Classify resolves text to exactly one intent. A matched intent whose
// required entities are missing or malformed returns immediately with
// NeedsClarification set; later intents are never tried. When nothing
// matches, the result is UNKNOWN with a generated help message.
func (c *Classifier) Classify(text string, _ domain.Context) domain.IntentResult {
	normalized := strings.TrimSpace(text)

	if normalized == "" {
		return domain.IntentResult{
			Intent:             domain.IntentUnknown,
			Entities:           domain.NoEntities{},
			Confidence:         0,
			NeedsClarification: true,
			Clarification:      "Message vide. Envoyez 'Aide' pour voir les commandes.",
		}
	}

	for _, def := range c.defs {
		for _, re := range def.patterns {
			groups := re.FindStringSubmatch(normalized)
			if groups == nil {
				continue
			}

			entities := def.build(&match{re: re, groups: groups})

			if clarification := def.check(entities); clarification != "" {
				c.logger.Debug("intent matched but entities incomplete",
					"intent", def.intent,
					"clarification", clarification,
				)
				return domain.IntentResult{
					Intent:             def.intent,
					Entities:           entities,
					Confidence:         0.5,
					NeedsClarification: true,
					Clarification:      clarification,
					Priority:           def.priority,
				}
			}

			return domain.IntentResult{
				Intent:     def.intent,
				Entities:   entities,
				Confidence: 1.0,
				Priority:   def.priority,
			}
		}
	}

	return domain.IntentResult{
		Intent:             domain.IntentUnknown,
		Entities:           domain.NoEntities{},
		Confidence:         0,
		NeedsClarification: true,
		Clarification:      HelpMessage(),
	}
}
