// Package report implements the unresolved-items report — the JSON document
// the translate phase writes for every string the provider refused, and the
// reconcile phase consumes to maintain tracking issues.
//
// Absence of the report file, or an empty items list, means "nothing is
// unresolved" and drives the issue-close path. A file that exists but fails
// to parse must NOT be treated as empty: callers check IsNotExist themselves
// and treat a parse error as "unable to tell", touching no tracking record.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FileName is the default report file name.
const FileName = "untranslated.json"

// Item is one string the provider permanently refused to translate.
type Item struct {
	Mod     string `json:"mod"`
	File    string `json:"file"`
	Key     string `json:"key"`
	Message string `json:"message"`
}

// Report is the persisted run output.
type Report struct {
	RunID     string `json:"run_id"`
	Timestamp string `json:"timestamp"`
	Items     []Item `json:"items"`
}

// Load reads a report from path. A missing file is an error the caller
// distinguishes with os.IsNotExist; any other failure, including malformed
// JSON, is a parse error.
func Load(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &r, nil
}

// Save writes the report to path with a trailing newline.
func (r *Report) Save(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// Batch is a report regrouped by mod, ready for reconciliation. Mods keeps
// first-seen order so reconciliation output is deterministic.
type Batch struct {
	Timestamp string
	Mods      []string
	ByMod     map[string][]Item
}

// Empty reports whether the batch carries no unresolved items at all.
func (b *Batch) Empty() bool { return len(b.Mods) == 0 }

// ToBatch groups the report's items by mod, preserving item order within
// each mod and mod order of first appearance.
func (r *Report) ToBatch() *Batch {
	b := &Batch{Timestamp: r.Timestamp, ByMod: make(map[string][]Item)}
	for _, item := range r.Items {
		if _, seen := b.ByMod[item.Mod]; !seen {
			b.Mods = append(b.Mods, item.Mod)
		}
		b.ByMod[item.Mod] = append(b.ByMod[item.Mod], item)
	}
	return b
}

// EmptyBatch builds the batch that signals "nothing unresolved", used when
// the report file does not exist.
func EmptyBatch(timestamp string) *Batch {
	return &Batch{Timestamp: timestamp, ByMod: make(map[string][]Item)}
}

// Collector accumulates refused items during the translate phase. Safe for
// use from future-waiting goroutines.
type Collector struct {
	mu    sync.Mutex
	items []Item
}

// NewCollector returns an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Add records one refused item.
func (c *Collector) Add(item Item) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items, item)
}

// Len reports how many items have been collected.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Report snapshots the collected items into a timestamped report with a
// fresh run ID.
func (c *Collector) Report(now time.Time) *Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	items := make([]Item, len(c.items))
	copy(items, c.items)
	return &Report{
		RunID:     uuid.NewString(),
		Timestamp: now.UTC().Format(time.RFC3339),
		Items:     items,
	}
}
