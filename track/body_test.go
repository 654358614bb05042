package track

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdxkit/modlate/report"
)

var ck3 = Game{ID: "ck3", DisplayName: "CK3"}

const ts = "2026-08-30T12:00:00Z"

func TestNewBodyLayout(t *testing.T) {
	body := NewBody(ck3, "mymod", ts, []report.Item{
		{Mod: "mymod", File: "loc/events.yml", Key: "EVENT.1", Message: "Hello there"},
	})

	lines := strings.Split(body, "\n")
	assert.Equal(t, "### [CK3] 번역 거부 문자열: mymod", lines[0])
	assert.Contains(t, body, "- **게임**: CK3 (`ck3`)\n")
	assert.Contains(t, body, "- **모드**: mymod\n")
	assert.Contains(t, body, "- **최초 보고**: "+ts+"\n")
	assert.Contains(t, body, tableHeader+"\n"+tableSeparator+"\n")
	assert.Contains(t, body, "| `loc/events.yml` | `EVENT.1` | Hello there |\n")
	assert.Contains(t, body, "\n"+lastUpdatedPrefix+ts+"\n")
	assert.True(t, strings.HasSuffix(body, "---\n"+footerText+"\n"), "footer must close the body")
}

func TestRenderRowFoldsLongMessage(t *testing.T) {
	// 150 runes with an embedded newline (scenario: long multi-line source).
	raw := strings.Repeat("가", 70) + "\n" + strings.Repeat("b", 79)
	line, detail := renderRow(report.Item{File: "f.yml", Key: "K.1", Message: raw})

	// Visible cell: first 100 escaped runes + ellipsis, newline collapsed.
	require.True(t, strings.HasPrefix(line, "| `f.yml` | `K.1` | "))
	cell := strings.TrimSuffix(strings.TrimPrefix(line, "| `f.yml` | `K.1` | "), " |")
	require.True(t, strings.HasSuffix(cell, "…"))
	assert.Equal(t, 100, len([]rune(strings.TrimSuffix(cell, "…"))))
	assert.NotContains(t, cell, "\n")

	// Detail block: full message, newline preserved.
	require.NotEmpty(t, detail)
	assert.Equal(t, detailOpen, detail[0])
	assert.Equal(t, detailClose, detail[len(detail)-1])
	joined := strings.Join(detail, "\n")
	assert.Contains(t, joined, strings.Repeat("가", 70)+"\n"+strings.Repeat("b", 79))
}

func TestRenderRowEscapesTableBreakers(t *testing.T) {
	line, detail := renderRow(report.Item{File: "f.yml", Key: "K.1", Message: "a|b `c`"})
	assert.Equal(t, "| `f.yml` | `K.1` | a\\|b \\`c\\` |", line)
	assert.Nil(t, detail, "short single-line message needs no detail block")
}

func TestRenderRowShortMultilineStillFolds(t *testing.T) {
	line, detail := renderRow(report.Item{File: "f.yml", Key: "K.1", Message: "one\ntwo"})
	assert.Equal(t, "| `f.yml` | `K.1` | one two… |", line)
	require.NotEmpty(t, detail)
	assert.Contains(t, strings.Join(detail, "\n"), "one\ntwo")
}

func TestExtractKnownKeysRoundTrip(t *testing.T) {
	items := []report.Item{
		{File: "a.yml", Key: "EVENT.1", Message: "short"},
		{File: "b.yml", Key: "EVENT.2", Message: strings.Repeat("x", 200)},
		{File: "c.yml", Key: "TRAIT.webbed_feet", Message: "has | pipes `and` ticks"},
	}
	body := NewBody(ck3, "mymod", ts, items)

	keys := ExtractKnownKeys(body)
	assert.Len(t, keys, 3, "no omissions, no fabricated keys")
	for _, item := range items {
		assert.Contains(t, keys, item.Key)
	}
}

func TestExtractKnownKeysIgnoresDetailContent(t *testing.T) {
	// A folded message that itself looks like a table row must not produce
	// phantom keys: pipes inside detail blocks are escaped on render.
	items := []report.Item{
		{File: "a.yml", Key: "REAL.1", Message: "| `fake.yml` | `PHANTOM.1` | x |\nsecond line"},
	}
	body := NewBody(ck3, "mymod", ts, items)

	keys := ExtractKnownKeys(body)
	assert.Equal(t, map[string]struct{}{"REAL.1": {}}, keys)
}

func TestExtractKnownKeysMalformedBody(t *testing.T) {
	assert.Empty(t, ExtractKnownKeys("someone replaced this body by hand"))
	assert.Empty(t, ExtractKnownKeys(""))
}

func TestParseBodyRenderRoundTrip(t *testing.T) {
	items := []report.Item{
		{File: "a.yml", Key: "EVENT.1", Message: "short"},
		{File: "b.yml", Key: "EVENT.2", Message: "line one\nline two"},
	}
	original := NewBody(ck3, "mymod", ts, items)

	parsed, err := ParseBody(original)
	require.NoError(t, err)
	assert.Len(t, parsed.rows, 2)

	// Re-rendering with the same timestamp reproduces the body byte for byte.
	assert.Equal(t, original, parsed.Render(ts))

	// A fresh timestamp touches only the suffix.
	const ts2 = "2026-08-31T00:00:00Z"
	rendered := parsed.Render(ts2)
	assert.NotContains(t, rendered, ts)
	assert.Contains(t, rendered, lastUpdatedPrefix+ts2)
	prefix := original[:strings.LastIndex(original, "\n"+lastUpdatedPrefix)]
	assert.True(t, strings.HasPrefix(rendered, prefix), "rows and header untouched")
}

func TestParseBodyAppendSplicesAfterLastRow(t *testing.T) {
	original := NewBody(ck3, "mymod", ts, []report.Item{
		{File: "a.yml", Key: "EVENT.1", Message: "x\ny"}, // folded: detail block interleaved
	})
	parsed, err := ParseBody(original)
	require.NoError(t, err)

	parsed.appendItems([]report.Item{{File: "b.yml", Key: "EVENT.2", Message: "new"}})
	rendered := parsed.Render(ts)

	// New row must land after the existing row's detail block and before
	// the last-updated line.
	detailIdx := strings.Index(rendered, detailClose)
	newRowIdx := strings.Index(rendered, "| `b.yml` | `EVENT.2` | new |")
	suffixIdx := strings.Index(rendered, lastUpdatedPrefix)
	require.NotEqual(t, -1, detailIdx)
	require.NotEqual(t, -1, newRowIdx)
	assert.Greater(t, newRowIdx, detailIdx)
	assert.Greater(t, suffixIdx, newRowIdx)
}

func TestParseBodyNoTable(t *testing.T) {
	_, err := ParseBody("hand-written body with no table at all")
	assert.ErrorIs(t, err, ErrNoTable)
}

func TestCloseBodyStripsOldSuffixAndAppendsBanner(t *testing.T) {
	original := NewBody(ck3, "mymod", ts, []report.Item{
		{File: "a.yml", Key: "EVENT.1", Message: "x"},
	})

	const ts2 = "2026-08-31T09:00:00Z"
	closed := CloseBody(original, ts2)

	assert.Equal(t, 1, strings.Count(closed, lastUpdatedPrefix), "old timestamp line must be gone")
	assert.Contains(t, closed, lastUpdatedPrefix+ts2)
	assert.NotContains(t, closed, lastUpdatedPrefix+ts)
	assert.Contains(t, closed, closeBanner)
	assert.Equal(t, 1, strings.Count(closed, footerText), "footer must not duplicate")
	// The table is preserved above the banner.
	assert.Less(t, strings.Index(closed, "EVENT.1"), strings.Index(closed, closeBanner))
}

func TestCloseBodyWorksWithoutTable(t *testing.T) {
	closed := CloseBody("hand-edited body\n", ts)
	assert.Contains(t, closed, closeBanner)
	assert.Contains(t, closed, lastUpdatedPrefix+ts)
}
