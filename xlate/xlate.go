// Package xlate defines the translation-provider boundary: the Translator
// interface the dispatcher calls through, the refusal error that marks a
// string as permanently untranslatable, and the JSON work list that feeds a
// run. The provider itself is an opaque remote service; retry policy lives
// in package dispatch, not here.
package xlate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"unicode/utf8"
)

// Request is one translatable unit handed to a provider.
type Request struct {
	Game string
	Mod  string
	File string
	Key  string
	Text string
}

// Translator turns one source string into its translation. Implementations
// return a *RefusalError when the provider explicitly declines the content;
// every other failure is treated as transient by the dispatcher.
type Translator interface {
	Translate(ctx context.Context, req Request) (string, error)
}

// RefusalError reports that the provider explicitly declined to translate
// the content (safety filter, policy block). It is terminal: the dispatcher
// never retries it.
type RefusalError struct {
	// Reason is the provider's machine reason code (e.g. "SAFETY").
	Reason string
	// Text is the offending source text, truncated for display.
	Text string
}

func (e *RefusalError) Error() string {
	return fmt.Sprintf("translation refused (%s): %q", e.Reason, Truncate(e.Text, 80))
}

// Terminal marks the refusal as non-retryable for the dispatcher.
func (e *RefusalError) Terminal() bool { return true }

// Truncate shortens s to at most maxRunes runes, appending an ellipsis when
// anything was cut.
func Truncate(s string, maxRunes int) string {
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxRunes]) + "…"
}

// ---------------------------------------------------------------------------
// Work list
// ---------------------------------------------------------------------------

// WorkEntry is one pending string in the JSON work list produced by the
// (external) localization scanner.
type WorkEntry struct {
	Game string `json:"game"`
	Mod  string `json:"mod"`
	File string `json:"file"`
	Key  string `json:"key"`
	Text string `json:"text"`
}

// LoadWorkList reads the pending-entry list for a run.
func LoadWorkList(path string) ([]WorkEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading work list %s: %w", path, err)
	}
	var entries []WorkEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing work list %s: %w", path, err)
	}
	for i, e := range entries {
		if e.Mod == "" || e.Key == "" {
			return nil, fmt.Errorf("work list %s: entry %d missing mod or key", path, i)
		}
	}
	return entries, nil
}
