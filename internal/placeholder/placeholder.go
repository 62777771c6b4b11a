// Package placeholder shields spans a model must not translate, such as code,
// markup, URLs and e-mail addresses, behind numbered [PHn] markers.
package placeholder

import (
	"regexp"
	"strconv"
	"strings"
)

// Hint is the prompt rule that accompanies protected text.
const Hint = "Keep every [PHn] marker exactly as written and in place; it stands for content that must not be translated."

// patterns run in order, so a span captured by an earlier pattern is not
// seen by a later one. None of them crosses a line break, so a span never
// swallows the index prefix of the next request line.
var patterns = []*regexp.Regexp{
	regexp.MustCompile("```[^\n]*?```"),
	regexp.MustCompile("`[^`\n]+`"),
	regexp.MustCompile(`</?[A-Za-z][^<>\n]*>`),
	regexp.MustCompile(`https?://[^\s<>"'\]\[]+[^\s<>"'\]\[.,;:!?)]`),
	regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9-]+(?:\.[A-Za-z0-9-]+)*\.[A-Za-z]{2,}`),
}

var markerRe = regexp.MustCompile(`\[PH(\d+)\]`)

// Protect replaces protected spans with markers numbered in order of
// capture. The same text always yields the same result.
func Protect(text string) (string, []string) {
	var p Protector
	text = p.Protect(text)
	return text, p.Markers()
}

// Protector numbers markers across several texts, so one marker list
// restores every line of a chunk.
type Protector struct {
	markers []string
}

// Protect shields the spans of one text, continuing the numbering of
// earlier calls.
func (p *Protector) Protect(text string) string {
	for _, re := range patterns {
		text = re.ReplaceAllStringFunc(text, func(match string) string {
			p.markers = append(p.markers, match)
			return marker(len(p.markers) - 1)
		})
	}
	return text
}

func (p *Protector) Markers() []string {
	return p.markers
}

// Restore puts the captured spans back. Markers with an unknown index are
// left as they are.
func Restore(text string, markers []string) string {
	if len(markers) == 0 {
		return text
	}
	return markerRe.ReplaceAllStringFunc(text, func(m string) string {
		idx, err := strconv.Atoi(markerRe.FindStringSubmatch(m)[1])
		if err != nil || idx >= len(markers) {
			return m
		}
		return markers[idx]
	})
}

// Missing returns the indices of markers the text no longer contains.
func Missing(text string, markers []string) []int {
	var missing []int
	for i := range markers {
		if !strings.Contains(text, marker(i)) {
			missing = append(missing, i)
		}
	}
	return missing
}

func marker(i int) string {
	return "[PH" + strconv.Itoa(i) + "]"
}
