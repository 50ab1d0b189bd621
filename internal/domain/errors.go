package domain

import (
	"fmt"
	"strings"
)

// ProviderFailure records why one member of a fallback chain failed.
type ProviderFailure struct {
	Provider string
	Message  string
}

// RetrievalError is raised only after every configured source for an intent
// has failed. Its message enumerates the whole accumulator so operators can
// see which layer broke; it is never shown to the end user.
type RetrievalError struct {
	Intent   Intent
	Subject  string // ticker or query the lookup was about
	Attempts []ProviderFailure
}

func (e *RetrievalError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "retrieval exhausted for %s", e.Intent)
	if e.Subject != "" {
		fmt.Fprintf(&b, " (%s)", e.Subject)
	}
	b.WriteString(": ")
	for i, a := range e.Attempts {
		if i > 0 {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s: %s", a.Provider, a.Message)
	}
	return b.String()
}

// FormattingError wraps a text-generation failure. The pipeline degrades to
// a fallback sentence instead of surfacing it.
type FormattingError struct {
	Connector string
	Err       error
}

func (e *FormattingError) Error() string {
	return fmt.Sprintf("formatter %s: %v", e.Connector, e.Err)
}

func (e *FormattingError) Unwrap() error { return e.Err }
