// Package markdown renders Markdown input so it can go through the same
// HTML extraction as web pages.
package markdown

import (
	"html"
	"strings"

	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// ToHTML renders md as an HTML fragment. Each top-level block becomes one
// body child, and so one lazy-translation region.
func ToHTML(md []byte) string {
	renderer := mdhtml.NewRenderer(mdhtml.RendererOptions{
		Flags: mdhtml.CommonFlags | mdhtml.HrefTargetBlank,
	})
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.Attributes)
	return string(markdown.Render(p.Parse(md), renderer))
}

// ToPlainText renders md and drops the markup, one block per line.
func ToPlainText(md []byte) string {
	text := html.UnescapeString(stripTags(ToHTML(md)))

	var lines []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return strings.Join(lines, "\n")
}

func stripTags(s string) string {
	var sb strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
