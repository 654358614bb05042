package track

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/pdxkit/modlate/report"
)

// Fixed fragments of the record body grammar. These are persisted bytes:
// changing any of them breaks parsing of records written by earlier runs.
const (
	tableHeader    = "| 파일 | 키 | 원문 |"
	tableSeparator = "| --- | --- | --- |"

	lastUpdatedPrefix = "**last updated**: "
	footerText        = "이 이슈는 modlate가 자동으로 관리합니다. 남은 문자열이 없으면 자동으로 닫힙니다."
	closeBanner       = "✅ 모든 문자열이 해결되어 이슈를 닫습니다."

	detailOpen  = "<details><summary>원문 전체</summary>"
	detailClose = "</details>"

	// maxCellRunes caps the visible message cell; anything longer (or any
	// message with a newline) is folded into a detail block.
	maxCellRunes = 100
)

// ErrNoTable reports a record body with no recognizable item table: the body
// was hand-edited or corrupted, and there is nowhere to splice rows into.
var ErrNoTable = errors.New("record body has no item table")

// rowKeyPattern matches a data row's first two backtick-quoted cells (file,
// key) and captures the key. Header and separator rows carry no backticks,
// and detail-block lines never start with an unescaped pipe, so a plain
// row scan is sufficient even with folded messages interleaved.
var rowKeyPattern = regexp.MustCompile("^\\|\\s*`[^`]*`\\s*\\|\\s*`([^`]+)`\\s*\\|")

// Body is the parsed form of a record body: everything up to and including
// the table separator, then the data rows with their optional detail blocks.
// The trailing last-updated line and footer are not kept; they are
// regenerated on every render.
type Body struct {
	preamble []string
	rows     []bodyRow
}

type bodyRow struct {
	line   string   // the `| ... |` table row, verbatim
	detail []string // folded-message block lines, verbatim, may be nil
}

// ParseBody splits a record body into preamble and rows. Returns ErrNoTable
// when the table header or separator cannot be found.
func ParseBody(body string) (*Body, error) {
	lines := strings.Split(body, "\n")

	head := -1
	for i, line := range lines {
		if strings.TrimSpace(line) == tableHeader {
			head = i
			break
		}
	}
	if head == -1 || head+1 >= len(lines) || strings.TrimSpace(lines[head+1]) != tableSeparator {
		return nil, ErrNoTable
	}

	b := &Body{preamble: lines[:head+2]}
	i := head + 2
	for i < len(lines) {
		line := lines[i]
		switch {
		case strings.HasPrefix(line, "|"):
			b.rows = append(b.rows, bodyRow{line: line})
			i++
		case strings.HasPrefix(line, detailOpen):
			if len(b.rows) == 0 {
				return nil, fmt.Errorf("detail block before first table row")
			}
			start := i
			for i < len(lines) && strings.TrimSpace(lines[i]) != detailClose {
				i++
			}
			if i == len(lines) {
				return nil, fmt.Errorf("unterminated detail block")
			}
			i++ // include the closing tag
			last := &b.rows[len(b.rows)-1]
			last.detail = append(last.detail, lines[start:i]...)
		default:
			// First non-row, non-detail line ends the table. The rest
			// is the dynamic suffix, discarded here.
			return b, nil
		}
	}
	return b, nil
}

// Render serializes the body with a fresh timestamp suffix. Prior rows and
// detail blocks are emitted byte-for-byte as parsed.
func (b *Body) Render(timestamp string) string {
	var sb strings.Builder
	for _, line := range b.preamble {
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	for _, row := range b.rows {
		sb.WriteString(row.line)
		sb.WriteString("\n")
		for _, line := range row.detail {
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}
	sb.WriteString(renderSuffix(timestamp))
	return sb.String()
}

// appendItems splices new rows in after the last existing row.
func (b *Body) appendItems(items []report.Item) {
	for _, item := range items {
		line, detail := renderRow(item)
		b.rows = append(b.rows, bodyRow{line: line, detail: detail})
	}
}

// NewBody builds a record body from scratch for a mod's items.
func NewBody(game Game, mod, timestamp string, items []report.Item) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "### %s\n\n", Title(game, mod))
	fmt.Fprintf(&sb, "- **게임**: %s (`%s`)\n", game.DisplayName, game.ID)
	fmt.Fprintf(&sb, "- **모드**: %s\n", mod)
	fmt.Fprintf(&sb, "- **최초 보고**: %s\n\n", timestamp)
	sb.WriteString(tableHeader)
	sb.WriteString("\n")
	sb.WriteString(tableSeparator)
	sb.WriteString("\n")
	for _, item := range items {
		line, detail := renderRow(item)
		sb.WriteString(line)
		sb.WriteString("\n")
		for _, dl := range detail {
			sb.WriteString(dl)
			sb.WriteString("\n")
		}
	}
	sb.WriteString(renderSuffix(timestamp))
	return sb.String()
}

// CloseBody rewrites a body for closing: the old dynamic suffix is stripped,
// a success banner appended, and a fresh suffix written. Works on bodies
// with no table too, since closing never needs to parse rows.
func CloseBody(body, timestamp string) string {
	base := stripSuffix(body)
	return base + "\n\n" + closeBanner + "\n" + renderSuffix(timestamp)
}

// ExtractKnownKeys recovers the set of item keys a record body already
// documents. A body with no recognizable rows yields an empty set: callers
// then treat every incoming item as new, which can duplicate display but
// never silently drops an item.
func ExtractKnownKeys(body string) map[string]struct{} {
	keys := make(map[string]struct{})
	for _, line := range strings.Split(body, "\n") {
		if m := rowKeyPattern.FindStringSubmatch(line); m != nil {
			keys[m[1]] = struct{}{}
		}
	}
	return keys
}

func renderSuffix(timestamp string) string {
	return "\n" + lastUpdatedPrefix + timestamp + "\n\n---\n" + footerText + "\n"
}

// stripSuffix removes the trailing last-updated line and footer block, so a
// rewrite never duplicates them.
func stripSuffix(body string) string {
	if idx := strings.LastIndex(body, "\n"+lastUpdatedPrefix); idx >= 0 {
		body = body[:idx]
	}
	return strings.TrimRight(body, "\n")
}

// renderRow renders one item as a table row, folding oversized or multiline
// messages into a detail block directly below the row.
func renderRow(item report.Item) (string, []string) {
	escaped := escapeCell(item.Message)
	folded := strings.Contains(item.Message, "\n") || utf8.RuneCountInString(item.Message) > maxCellRunes

	cell := escaped
	if folded && utf8.RuneCountInString(cell) > maxCellRunes {
		cell = string([]rune(cell)[:maxCellRunes]) + "…"
	} else if folded {
		cell += "…"
	}

	line := fmt.Sprintf("| `%s` | `%s` | %s |", item.File, item.Key, cell)
	if !folded {
		return line, nil
	}

	detail := []string{detailOpen, ""}
	detail = append(detail, strings.Split(escapeDetail(item.Message), "\n")...)
	detail = append(detail, "", detailClose)
	return line, detail
}

// escapeCell makes a raw message safe inside a table cell: pipes and
// backticks are backslash-escaped, newlines collapse to a space.
func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	s = strings.ReplaceAll(s, "`", "\\`")
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}

// escapeDetail escapes pipes and backticks but preserves newlines, for the
// full-message detail block.
func escapeDetail(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	s = strings.ReplaceAll(s, "`", "\\`")
	return s
}
