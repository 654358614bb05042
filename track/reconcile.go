package track

import (
	"github.com/rs/zerolog"

	"github.com/pdxkit/modlate/report"
)

// Reconcile merges a batch of unresolved items into the game's open records
// and returns the store mutations to apply, in deterministic order.
//
// Per mod: no open record → create one; open record → append only the items
// whose keys the body does not already document (an empty remainder is an
// idempotent no-op). A fully empty batch means the run resolved everything:
// every open record is closed with a success banner.
//
// Reconcile never calls the store; it only reads its inputs.
// Callers must not invoke the close path when the report could not be
// parsed, since "unable to tell" must never close a record.
func Reconcile(game Game, batch *report.Batch, open []Record, log zerolog.Logger) []Action {
	if batch.Empty() {
		actions := make([]Action, 0, len(open))
		for _, rec := range open {
			log.Info().Int64("record", rec.ID).Str("title", rec.Title).
				Msg("no unresolved items remain, closing record")
			actions = append(actions, Action{
				Kind: ActionClose,
				ID:   rec.ID,
				Body: CloseBody(rec.Body, batch.Timestamp),
			})
		}
		return actions
	}

	var actions []Action
	for _, mod := range batch.Mods {
		items := batch.ByMod[mod]
		title := Title(game, mod)

		existing := findByTitle(open, title)
		if existing == nil {
			log.Info().Str("mod", mod).Int("items", len(items)).
				Msg("opening tracking record")
			actions = append(actions, Action{
				Kind:   ActionCreate,
				Mod:    mod,
				Title:  title,
				Body:   NewBody(game, mod, batch.Timestamp, items),
				Labels: Labels(game),
			})
			continue
		}

		known := ExtractKnownKeys(existing.Body)
		fresh := items[:0:0]
		for _, item := range items {
			if _, ok := known[item.Key]; !ok {
				fresh = append(fresh, item)
			}
		}
		if len(fresh) == 0 {
			log.Debug().Str("mod", mod).Msg("record already documents every item")
			continue
		}

		body, err := ParseBody(existing.Body)
		if err != nil {
			// Policy: degrade without corrupting the record, but say so
			// loudly: the new items stay unrecorded until the body is
			// repaired by hand.
			log.Warn().Int64("record", existing.ID).Str("mod", mod).Err(err).
				Msg("cannot splice into record body, skipping update")
			continue
		}
		body.appendItems(fresh)

		log.Info().Str("mod", mod).Int64("record", existing.ID).Int("new_items", len(fresh)).
			Msg("appending to tracking record")
		actions = append(actions, Action{
			Kind: ActionUpdate,
			Mod:  mod,
			ID:   existing.ID,
			Body: body.Render(batch.Timestamp),
		})
	}
	return actions
}

func findByTitle(open []Record, title string) *Record {
	for i := range open {
		if open[i].Title == title {
			return &open[i]
		}
	}
	return nil
}
