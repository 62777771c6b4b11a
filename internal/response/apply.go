package response

import (
	"sort"
	"strings"

	"github.com/valpere/pagetran/internal"
)

// Result reports how a reply reconciled with its chunk.
type Result struct {
	Format  Format
	Applied int
	// Missing are chunk segment IDs the reply did not translate.
	Missing []int
	// Unknown are reply IDs that do not belong to the chunk.
	Unknown []int
	Gaps    []int
	Raw     string
}

// Complete reports whether every segment of the chunk received a translation.
func (r Result) Complete() bool {
	return r.Format != FormatRaw && len(r.Missing) == 0
}

// Apply parses raw and writes the translations onto the chunk's segments.
// Only segments owned by c are touched.
func Apply(raw string, c *internal.Chunk) Result {
	return ApplyParsed(Parse(raw), c)
}

func ApplyParsed(p *Parsed, c *internal.Chunk) Result {
	res := Result{Format: p.Format, Gaps: p.Gaps, Raw: p.Raw}
	if p.Format == FormatRaw {
		res.Missing = c.IDs()
		return res
	}

	done := applyLines(p.Lines, c, &res)
	for _, id := range c.IDs() {
		if !done[id] {
			res.Missing = append(res.Missing, id)
		}
	}
	sort.Ints(res.Unknown)
	return res
}

// ApplyPartial applies the newline-terminated lines of a reply that is still
// streaming and returns how many segments were written. Re-applying the same
// prefix writes the same content.
func ApplyPartial(accumulated string, c *internal.Chunk) int {
	text := strings.TrimLeft(accumulated, " \t\r\n")
	// Structured wrappers are only parseable once complete.
	if strings.HasPrefix(text, "```") || strings.HasPrefix(text, "{") {
		return 0
	}
	var res Result
	return len(applyLines(parseLines(text, false), c, &res))
}

func applyLines(lines []Line, c *internal.Chunk, res *Result) map[int]bool {
	done := make(map[int]bool, len(lines))
	for _, l := range lines {
		seg, ok := c.Segment(l.ID)
		if !ok {
			res.Unknown = append(res.Unknown, l.ID)
			continue
		}

		text := l.Text
		if text == "" {
			// Single characters such as punctuation may come back empty.
			if seg.Len() == 1 {
				text = seg.Trimmed
			} else {
				continue
			}
		}

		seg.SetTranslation(text)
		if !done[l.ID] {
			done[l.ID] = true
			res.Applied++
		}
	}
	return done
}
