// Package track maintains the external tracking records for refused
// translations: one open issue-like record per (game, mod), with a Markdown
// body treated as a real serialization format: parse and render are inverse
// functions, and updates only ever touch the dynamic suffix and append new
// table rows.
package track

import (
	"context"
	"fmt"
)

// LabelRefused is applied to every tracking record, together with the game
// id. The pair is also the query filter used to find open records.
const LabelRefused = "translation-refused"

// Game identifies one supported game.
type Game struct {
	// ID is the machine identifier used as a label (e.g. "ck3").
	ID string
	// DisplayName appears in record titles (e.g. "CK3").
	DisplayName string
}

// Title builds the record title for a mod. Title equality is the sole dedup
// key across runs: at most one open record per (game, mod).
func Title(game Game, mod string) string {
	return fmt.Sprintf("[%s] 번역 거부 문자열: %s", game.DisplayName, mod)
}

// Labels returns the label set applied on creation and used for lookup.
func Labels(game Game) []string {
	return []string{LabelRefused, game.ID}
}

// Record is one externally persisted tracking record.
type Record struct {
	ID     int64
	Title  string
	Body   string
	Labels []string
	Open   bool
}

// ActionKind discriminates reconciliation outputs.
type ActionKind string

const (
	ActionCreate ActionKind = "create"
	ActionUpdate ActionKind = "update"
	ActionClose  ActionKind = "close"
)

// Action is one store mutation decided by Reconcile. Create carries Title,
// Body and Labels; Update and Close carry ID and Body.
type Action struct {
	Kind   ActionKind
	Mod    string
	ID     int64
	Title  string
	Body   string
	Labels []string
}

// Store is the external tracking backend. Implementations serialize access
// themselves; Reconcile never touches a Store.
type Store interface {
	// OpenRecords returns the open records labeled for game.
	OpenRecords(ctx context.Context, game Game) ([]Record, error)
	// Create opens a new record.
	Create(ctx context.Context, title, body string, labels []string) (*Record, error)
	// Update replaces an open record's body.
	Update(ctx context.Context, id int64, body string) error
	// Close replaces the body and transitions the record to closed.
	Close(ctx context.Context, id int64, body string) error
}

// Apply executes reconciliation actions against the store in order.
func Apply(ctx context.Context, store Store, actions []Action) error {
	for _, a := range actions {
		switch a.Kind {
		case ActionCreate:
			if _, err := store.Create(ctx, a.Title, a.Body, a.Labels); err != nil {
				return fmt.Errorf("creating record for %q: %w", a.Mod, err)
			}
		case ActionUpdate:
			if err := store.Update(ctx, a.ID, a.Body); err != nil {
				return fmt.Errorf("updating record #%d (%s): %w", a.ID, a.Mod, err)
			}
		case ActionClose:
			if err := store.Close(ctx, a.ID, a.Body); err != nil {
				return fmt.Errorf("closing record #%d: %w", a.ID, err)
			}
		default:
			return fmt.Errorf("unknown action kind %q", a.Kind)
		}
	}
	return nil
}
