package response

import (
	"fmt"
	"strings"
	"testing"

	"github.com/valpere/pagetran/internal"
)

func chunkOf(texts ...string) *internal.Chunk {
	segs := make([]*internal.Segment, len(texts))
	for i, t := range texts {
		segs[i] = &internal.Segment{ID: i, Content: t, Trimmed: strings.TrimSpace(t)}
	}
	return internal.NewChunk(0, segs)
}

func TestParse_Formats(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantFormat Format
		wantLines  string
		wantGaps   string
	}{
		{
			name:       "plain lines",
			raw:        "[0]Một\n[1]Hai",
			wantFormat: FormatLines,
			wantLines:  "0=Một|1=Hai",
		},
		{
			name:       "fenced lines",
			raw:        "```\n[0]Một\n[1]Hai\n```",
			wantFormat: FormatLines,
			wantLines:  "0=Một|1=Hai",
		},
		{
			name:       "fenced json with tag",
			raw:        "```json\n{\"0\":\"Một\",\"1\":\"Hai\"}\n```",
			wantFormat: FormatJSON,
			wantLines:  "0=Một|1=Hai",
		},
		{
			name:       "json envelope with gap",
			raw:        `{"translations":{"0":"Một","2":"Ba"}}`,
			wantFormat: FormatJSON,
			wantLines:  "0=Một|1=|2=Ba",
			wantGaps:   "[1]",
		},
		{
			name:       "invalid json falls through to lines",
			raw:        "{not json\n[0]Một",
			wantFormat: FormatLines,
			wantLines:  "0=Một",
		},
		{
			name:       "unrecognized",
			raw:        "Xin lỗi, tôi không thể dịch.",
			wantFormat: FormatRaw,
		},
		{
			name:       "empty line placeholder",
			raw:        "[0]Một\n[1]\n[2]Ba",
			wantFormat: FormatLines,
			wantLines:  "0=Một|1=|2=Ba",
		},
		{
			name:       "reply order kept",
			raw:        "[2]Ba\n[0]Một",
			wantFormat: FormatLines,
			wantLines:  "2=Ba|0=Một",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Parse(tt.raw)
			if p.Format != tt.wantFormat {
				t.Fatalf("expected format %s, got %s", tt.wantFormat, p.Format)
			}
			var parts []string
			for _, l := range p.Lines {
				parts = append(parts, fmt.Sprintf("%d=%s", l.ID, l.Text))
			}
			if got := strings.Join(parts, "|"); got != tt.wantLines {
				t.Errorf("expected lines %q, got %q", tt.wantLines, got)
			}
			if tt.wantGaps != "" && fmt.Sprint(p.Gaps) != tt.wantGaps {
				t.Errorf("expected gaps %s, got %v", tt.wantGaps, p.Gaps)
			}
			if p.Raw != tt.raw {
				t.Error("raw reply must be kept for diagnostics")
			}
		})
	}
}

func TestApply_HappyPath(t *testing.T) {
	c := chunkOf("Hello")
	res := Apply("[0]Xin chào", c)
	if c.Segments[0].Content != "Xin chào" {
		t.Errorf("expected translation applied, got %q", c.Segments[0].Content)
	}
	if res.Applied != 1 || !res.Complete() {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestApply_MissingIndex(t *testing.T) {
	c := chunkOf("A", "B", "C")
	for _, s := range c.Segments {
		s.Content = "orig-" + s.Trimmed
	}

	res := Apply("[0]Một\n[2]Ba", c)
	if c.Segments[0].Content != "Một" || c.Segments[2].Content != "Ba" {
		t.Errorf("expected segments 0 and 2 updated, got %q %q", c.Segments[0].Content, c.Segments[2].Content)
	}
	if c.Segments[1].Content != "orig-B" {
		t.Errorf("segment 1 must stay untouched, got %q", c.Segments[1].Content)
	}
	if fmt.Sprint(res.Missing) != "[1]" {
		t.Errorf("expected missing [1], got %v", res.Missing)
	}
	if res.Complete() {
		t.Error("result with missing lines is not complete")
	}
}

func TestApply_ForeignIndexIgnored(t *testing.T) {
	segs := []*internal.Segment{
		{ID: 4, Content: "four", Trimmed: "four"},
		{ID: 5, Content: "five", Trimmed: "five"},
	}
	c := internal.NewChunk(1, segs)
	outside := &internal.Segment{ID: 6, Content: "six", Trimmed: "six"}

	res := Apply("[4]bốn\n[5]năm\n[6]sáu", c)
	if outside.Content != "six" {
		t.Error("segment outside the chunk was mutated")
	}
	if fmt.Sprint(res.Unknown) != "[6]" {
		t.Errorf("expected unknown [6], got %v", res.Unknown)
	}
	if res.Applied != 2 {
		t.Errorf("expected 2 applied, got %d", res.Applied)
	}
}

func TestApply_Whitespace(t *testing.T) {
	segs := []*internal.Segment{{ID: 0, Content: " X", Trimmed: "X", HasLeadingSpace: true}}
	c := internal.NewChunk(0, segs)

	Apply("[0]Y", c)
	if segs[0].Content != " Y" {
		t.Errorf("expected leading space restored, got %q", segs[0].Content)
	}
}

func TestApply_SingleCharFallback(t *testing.T) {
	c := chunkOf("!", "Hello")
	c.Segments[0].Content = "!"

	res := Apply("[0]\n[1]", c)
	if c.Segments[0].Content != "!" {
		t.Errorf("expected punctuation kept, got %q", c.Segments[0].Content)
	}
	if c.Segments[1].Content != "Hello" {
		t.Errorf("empty translation must not blank a longer segment, got %q", c.Segments[1].Content)
	}
	if fmt.Sprint(res.Missing) != "[1]" {
		t.Errorf("expected segment 1 counted missing, got %v", res.Missing)
	}
}

func TestApply_Idempotent(t *testing.T) {
	c := chunkOf(" Hello ", "World")
	c.Segments[0].HasLeadingSpace = true
	c.Segments[0].HasTrailingSpace = true
	reply := "[0]Xin chào\n[1]Thế giới"

	Apply(reply, c)
	first := []string{c.Segments[0].Content, c.Segments[1].Content}
	Apply(reply, c)
	second := []string{c.Segments[0].Content, c.Segments[1].Content}

	if strings.Join(first, "|") != strings.Join(second, "|") {
		t.Errorf("second application changed state: %q vs %q", first, second)
	}
	if first[0] != " Xin chào " {
		t.Errorf("unexpected whitespace handling %q", first[0])
	}
}

func TestApply_RawReply(t *testing.T) {
	c := chunkOf("Hello")
	res := Apply("I cannot help with that.", c)
	if res.Format != FormatRaw || res.Applied != 0 {
		t.Errorf("unexpected result %+v", res)
	}
	if c.Segments[0].Content != "Hello" {
		t.Error("raw reply must not be applied")
	}
	if res.Raw == "" {
		t.Error("raw reply must be surfaced")
	}
}

func TestApplyPartial(t *testing.T) {
	c := chunkOf("One", "Two", "Three")

	if n := ApplyPartial("[0]Mộ", c); n != 0 {
		t.Errorf("incomplete first line must not apply, got %d", n)
	}
	if n := ApplyPartial("[0]Một\n[1]Ha", c); n != 1 {
		t.Errorf("expected 1 line applied, got %d", n)
	}
	if c.Segments[0].Content != "Một" || c.Segments[1].Content != "Two" {
		t.Errorf("unexpected state %q %q", c.Segments[0].Content, c.Segments[1].Content)
	}
	if n := ApplyPartial("[0]Một\n[1]Hai\n", c); n != 2 {
		t.Errorf("expected 2 lines applied, got %d", n)
	}
	if n := ApplyPartial("```\n[0]Một\n", c); n != 0 {
		t.Errorf("fenced partial must wait for completion, got %d", n)
	}
}
