package extractor

import (
	"strings"
	"testing"
)

const page = `<!DOCTYPE html>
<html><head><title>Docs</title><style>body{color:red}</style></head>
<body>
  <header><h1>Getting started</h1></header>
  <main>
    <p>Install the <b>library</b> first.</p>
    <script>var x = "not text";</script>
    <noscript>Enable JS</noscript>
    <p>   </p>
  </main>
  <footer>Bye</footer>
</body></html>`

func TestParse_Segments(t *testing.T) {
	d, err := ParseString(page, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	segs := d.Segments()
	var got []string
	for _, s := range segs {
		got = append(got, s.Trimmed)
	}
	want := []string{"Getting started", "Install the", "library", "first.", "Bye"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("expected %v, got %v", want, got)
	}

	for i, s := range segs {
		if s.ID != i {
			t.Errorf("expected sequential IDs, got %d at %d", s.ID, i)
		}
	}
	if d.Regions() != 3 {
		t.Errorf("expected 3 regions, got %d", d.Regions())
	}
	if segs[0].Region != 0 || segs[1].Region != 1 || segs[4].Region != 2 {
		t.Errorf("unexpected regions: %d %d %d", segs[0].Region, segs[1].Region, segs[4].Region)
	}
}

func TestNewSegment_Whitespace(t *testing.T) {
	s := NewSegment(0, " Install the ")
	if !s.HasLeadingSpace || !s.HasTrailingSpace {
		t.Errorf("expected both whitespace flags, got %+v", s)
	}
	if s.Trimmed != "Install the" {
		t.Errorf("unexpected trimmed text %q", s.Trimmed)
	}

	s = NewSegment(1, "first.")
	if s.HasLeadingSpace || s.HasTrailingSpace {
		t.Errorf("expected no whitespace flags, got %+v", s)
	}
}

func TestNewSegment_MultiLine(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{name: "wrapped paragraph", content: "Hello there my good\n    friend of mine", want: "Hello there my good friend of mine"},
		{name: "tabs and crlf", content: "\tone\r\ntwo\t\tthree ", want: "one two three"},
		{name: "single line", content: "plain", want: "plain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSegment(3, tt.content)
			if s.Trimmed != tt.want {
				t.Errorf("expected %q, got %q", tt.want, s.Trimmed)
			}
			if line := s.Line(); strings.Count(line, "\n") != 1 || !strings.HasPrefix(line, "[3]") {
				t.Errorf("segment must render as one numbered line, got %q", line)
			}
			if s.Content != tt.content {
				t.Error("original content must be kept")
			}
		})
	}
}

func TestCommitAndRestore(t *testing.T) {
	d, err := ParseString(`<html><body><p>Hello <i>world</i></p></body></html>`, Options{})
	if err != nil {
		t.Fatal(err)
	}

	segs := d.Segments()
	segs[0].SetTranslation("Xin chào")
	segs[1].SetTranslation("thế giới")

	if n := d.Commit(segs); n != 2 {
		t.Errorf("expected 2 nodes written, got %d", n)
	}
	if !d.Translated() {
		t.Error("expected document to be marked translated")
	}

	out, err := d.HTML()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "<p>Xin chào <i>thế giới</i></p>") {
		t.Errorf("unexpected html: %s", out)
	}

	d.Restore()
	if d.Translated() {
		t.Error("expected restored document")
	}
	out, _ = d.HTML()
	if !strings.Contains(out, "<p>Hello <i>world</i></p>") {
		t.Errorf("expected original html, got %s", out)
	}

	// A new pass starts from the original text even after a commit.
	if got := d.Segments()[0].Content; got != "Hello " {
		t.Errorf("expected original content, got %q", got)
	}
}

func TestCustomSkipTags(t *testing.T) {
	d, err := ParseString(`<html><body><pre>code</pre><p>text</p></body></html>`, Options{SkipTags: []string{"pre"}})
	if err != nil {
		t.Fatal(err)
	}
	segs := d.Segments()
	if len(segs) != 1 || segs[0].Trimmed != "text" {
		t.Errorf("expected only paragraph text, got %+v", segs)
	}
}

func TestSetLang(t *testing.T) {
	d, _ := ParseString(`<html><body><p>Hi</p></body></html>`, Options{})
	d.SetLang("vi")
	out, _ := d.HTML()
	if !strings.Contains(out, `<html lang="vi">`) {
		t.Errorf("expected lang attribute, got %s", out)
	}
}

func TestRestoreSegments(t *testing.T) {
	d, err := ParseString(`<html><body><p>One</p><p>Two</p></body></html>`, Options{})
	if err != nil {
		t.Fatal(err)
	}
	segs := d.Segments()
	segs[0].SetTranslation("Một")
	segs[1].SetTranslation("Hai")
	d.Commit(segs)

	d.RestoreSegments(segs[1:])
	if segs[1].Content != "Two" {
		t.Errorf("expected segment content reverted, got %q", segs[1].Content)
	}
	if got := d.Text(); got != "Một\nTwo\n" {
		t.Errorf("expected only the second node reverted, got %q", got)
	}
}
