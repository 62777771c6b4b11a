// Package response turns a model reply into per-segment translations and
// writes them onto the segments of the chunk that requested them.
package response

import (
	"encoding/json"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

type Format int

const (
	// FormatRaw means no numbered structure was recognized.
	FormatRaw Format = iota
	FormatLines
	FormatJSON
)

func (f Format) String() string {
	switch f {
	case FormatLines:
		return "lines"
	case FormatJSON:
		return "json"
	default:
		return "raw"
	}
}

// Line is one "[id]text" entry of a reply.
type Line struct {
	ID   int
	Text string
}

type Parsed struct {
	// Lines are in reply order, not ID order.
	Lines  []Line
	Format Format
	// Gaps lists indices a JSON reply skipped; they are filled with empty text.
	Gaps []int
	// Layers names the rewriting layers that applied, in order.
	Layers []string
	// Raw is the reply as received.
	Raw string
}

// layer rewrites the reply into a form the next layer understands. It
// reports false when it does not apply, and the text passes through.
type layer struct {
	name  string
	apply func(text string) (string, *Parsed, bool)
}

var layers = []layer{
	{name: "fence", apply: stripFences},
	{name: "json", apply: fromJSON},
}

// maxGapFill bounds how many missing JSON indices are materialized.
const maxGapFill = 1000

var lineRe = regexp.MustCompile(`^\[(\d+)\](.*)$`)

// Parse runs the layer chain and then reads numbered lines.
func Parse(raw string) *Parsed {
	out := &Parsed{Raw: raw, Format: FormatLines}
	text := strings.TrimSpace(raw)

	for _, l := range layers {
		next, meta, ok := l.apply(text)
		if !ok {
			continue
		}
		text = next
		out.Layers = append(out.Layers, l.name)
		if meta != nil {
			out.Format = meta.Format
			out.Gaps = meta.Gaps
		}
	}

	out.Lines = parseLines(text, true)
	if len(out.Lines) == 0 {
		out.Format = FormatRaw
	}
	return out
}

// parseLines reads "[id]text" lines. When complete is false the final line
// is treated as still arriving and skipped unless newline-terminated.
func parseLines(text string, complete bool) []Line {
	if !complete {
		cut := strings.LastIndexByte(text, '\n')
		if cut < 0 {
			return nil
		}
		text = text[:cut]
	}

	var lines []Line
	for _, raw := range strings.Split(text, "\n") {
		m := lineRe.FindStringSubmatch(strings.TrimSpace(raw))
		if m == nil {
			continue
		}
		id, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		lines = append(lines, Line{ID: id, Text: strings.TrimSpace(m[2])})
	}
	return lines
}

// stripFences removes a surrounding ``` block, with or without a language tag.
func stripFences(text string) (string, *Parsed, bool) {
	if !strings.HasPrefix(text, "```") {
		return text, nil, false
	}
	body := strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		// First line is either empty or a language tag such as "json".
		if tag := strings.TrimSpace(body[:nl]); !strings.HasPrefix(tag, "[") && !strings.HasPrefix(tag, "{") {
			body = body[nl+1:]
		}
	}
	body = strings.TrimSpace(body)
	body = strings.TrimSuffix(body, "```")
	return strings.TrimSpace(body), nil, true
}

// fromJSON accepts a flat {"index": "text"} object, or an envelope object
// holding one, and re-linearizes it into numbered lines.
func fromJSON(text string) (string, *Parsed, bool) {
	if !strings.HasPrefix(text, "{") {
		return text, nil, false
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return text, nil, false
	}

	entries, ok := indexMap(obj)
	if !ok {
		for _, v := range obj {
			var inner map[string]json.RawMessage
			if json.Unmarshal(v, &inner) != nil {
				continue
			}
			if entries, ok = indexMap(inner); ok {
				break
			}
		}
	}
	if !ok || len(entries) == 0 {
		return text, nil, false
	}

	ids := make([]int, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	meta := &Parsed{Format: FormatJSON}
	order := ids
	if span := ids[len(ids)-1] - ids[0]; span < maxGapFill+len(ids) {
		order = make([]int, 0, span+1)
		for id := ids[0]; id <= ids[len(ids)-1]; id++ {
			order = append(order, id)
		}
	}

	var sb strings.Builder
	for _, id := range order {
		t, present := entries[id]
		if !present {
			meta.Gaps = append(meta.Gaps, id)
		}
		sb.WriteString("[" + strconv.Itoa(id) + "]")
		sb.WriteString(strings.ReplaceAll(t, "\n", " "))
		sb.WriteByte('\n')
	}
	return sb.String(), meta, true
}

// indexMap decodes an object whose keys are all integers and values strings.
func indexMap(obj map[string]json.RawMessage) (map[int]string, bool) {
	if len(obj) == 0 {
		return nil, false
	}
	out := make(map[int]string, len(obj))
	for k, v := range obj {
		id, err := strconv.Atoi(strings.Trim(k, "[] "))
		if err != nil || id < 0 {
			return nil, false
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return nil, false
		}
		out[id] = s
	}
	return out, true
}
