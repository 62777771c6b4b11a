// Package extractor turns an HTML document into an ordered list of
// translatable text segments and writes translations back onto the
// original text nodes.
package extractor

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/valpere/pagetran/internal"
)

// DefaultSkipTags are elements whose text is never visible page copy.
var DefaultSkipTags = []string{
	"script", "style", "noscript", "iframe", "object", "embed", "link", "meta",
}

type Options struct {
	SkipTags []string
}

// Document holds a parsed page together with a snapshot of every text
// node's original content, so a translated page can always be reverted.
type Document struct {
	mu         sync.Mutex
	doc        *goquery.Document
	nodes      []*html.Node
	regions    []int
	original   []string
	numRegions int
	translated bool
}

func Parse(r io.Reader, opts Options) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}

	skip := opts.SkipTags
	if len(skip) == 0 {
		skip = DefaultSkipTags
	}
	skipSet := make(map[string]bool, len(skip))
	for _, tag := range skip {
		skipSet[strings.ToLower(tag)] = true
	}

	d := &Document{doc: doc}

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}

	// Each top-level child of the body is one lazy-translation region.
	for _, top := range root.Nodes {
		for child := top.FirstChild; child != nil; child = child.NextSibling {
			before := len(d.nodes)
			d.walk(child, d.numRegions, skipSet)
			if len(d.nodes) > before {
				d.numRegions++
			}
		}
	}

	return d, nil
}

func ParseString(s string, opts Options) (*Document, error) {
	return Parse(strings.NewReader(s), opts)
}

func (d *Document) walk(n *html.Node, region int, skip map[string]bool) {
	switch n.Type {
	case html.TextNode:
		if strings.TrimSpace(n.Data) == "" {
			return
		}
		d.nodes = append(d.nodes, n)
		d.regions = append(d.regions, region)
		d.original = append(d.original, n.Data)
		return
	case html.ElementNode:
		if skip[strings.ToLower(n.Data)] {
			return
		}
	case html.CommentNode, html.DoctypeNode:
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		d.walk(c, region, skip)
	}
}

// Segments returns a fresh segment list built from the original text.
// Segment IDs are the text node positions in document order.
func (d *Document) Segments() []*internal.Segment {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]*internal.Segment, len(d.original))
	for i, content := range d.original {
		out[i] = NewSegment(i, content)
		out[i].Region = d.regions[i]
	}
	return out
}

// NewSegment captures the whitespace shape of raw text. Inner whitespace
// runs, line breaks included, collapse to one space so the segment stays on
// a single request line.
func NewSegment(id int, content string) *internal.Segment {
	return &internal.Segment{
		ID:               id,
		Content:          content,
		Trimmed:          strings.Join(strings.Fields(content), " "),
		HasLeadingSpace:  startsWithSpace(content),
		HasTrailingSpace: endsWithSpace(content),
	}
}

// Commit writes segment content onto the text nodes it was extracted from.
// Unknown IDs are ignored.
func (d *Document) Commit(segments []*internal.Segment) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	written := 0
	for _, s := range segments {
		if s.ID < 0 || s.ID >= len(d.nodes) {
			continue
		}
		if d.nodes[s.ID].Data != s.Content {
			d.nodes[s.ID].Data = s.Content
			written++
		}
	}
	if written > 0 {
		d.translated = true
	}
	return written
}

// Restore reverts every text node to its original content.
func (d *Document) Restore() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, n := range d.nodes {
		n.Data = d.original[i]
	}
	d.translated = false
}

// RestoreSegments reverts the given segments and their text nodes to the
// original content.
func (d *Document) RestoreSegments(segments []*internal.Segment) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, s := range segments {
		if s.ID < 0 || s.ID >= len(d.nodes) {
			continue
		}
		s.Content = d.original[s.ID]
		d.nodes[s.ID].Data = d.original[s.ID]
	}
}

func (d *Document) Translated() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.translated
}

// Regions returns the number of regions that carry at least one segment.
func (d *Document) Regions() int {
	return d.numRegions
}

// SetLang marks the document language on the <html> element.
func (d *Document) SetLang(lang string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if h := d.doc.Find("html"); h.Length() > 0 {
		h.SetAttr("lang", lang)
	}
}

// HTML renders the current state of the document.
func (d *Document) HTML() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.Html()
}

// Text returns the visible text of the current document, one segment per line.
func (d *Document) Text() string {
	d.mu.Lock()
	defer d.mu.Unlock()

	var sb strings.Builder
	for _, n := range d.nodes {
		if t := strings.TrimSpace(n.Data); t != "" {
			sb.WriteString(t)
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

func startsWithSpace(s string) bool {
	for _, r := range s {
		return unicode.IsSpace(r)
	}
	return false
}

func endsWithSpace(s string) bool {
	if s == "" {
		return false
	}
	r := []rune(s)
	return unicode.IsSpace(r[len(r)-1])
}
