// Package style infers the dominant content style of a page from a sample
// of its text. The result is an instruction embedded into every chunk
// request of one translation pass.
package style

import (
	"strings"

	"github.com/valpere/pagetran/internal"
)

const (
	// SampleSegments is how many leading segments feed the sample.
	SampleSegments = 50
	// SampleLength caps the sample size in characters.
	SampleLength = 3000
	// MinMatches is the keyword count a family needs to win.
	MinMatches = 3
)

type Type string

const (
	General   Type = "general"
	Technical Type = "technical"
	Academic  Type = "academic"
	News      Type = "news"
	Business  Type = "business"
	Medical   Type = "medical"
	Legal     Type = "legal"
	Creative  Type = "creative"
	Casual    Type = "casual"
	Tutorial  Type = "tutorial"
)

// Profile is immutable once computed.
type Profile struct {
	Type        Type   `json:"type"`
	Name        string `json:"name"`
	Instruction string `json:"instruction"`
}

// Classifier is the pluggable strategy behind style detection.
type Classifier interface {
	Classify(sample string) Profile
}

type family struct {
	typ         Type
	name        string
	instruction string
	keywords    []string
}

// families are checked in this order; ties keep the first maximum.
var families = []family{
	{
		typ:         Technical,
		name:        "Kỹ thuật",
		instruction: "Style: technical documentation. Keep technical terms, code identifiers, API names and units in their standard form; use established Vietnamese IT terminology.",
		keywords:    []string{"api", "server", "code", "function", "database", "software", "install", "config", "deploy", "algorithm", "framework", "library", "debug", "compile", "runtime", "http", "cpu", "linux"},
	},
	{
		typ:         Academic,
		name:        "Học thuật",
		instruction: "Style: academic. Use formal, precise Vietnamese academic register; keep citations, formulas and proper nouns unchanged.",
		keywords:    []string{"research", "study", "hypothesis", "analysis", "theory", "abstract", "methodology", "journal", "university", "experiment", "evidence", "thesis", "findings", "et al"},
	},
	{
		typ:         News,
		name:        "Tin tức",
		instruction: "Style: news reporting. Use neutral, concise Vietnamese journalistic style; keep names, places and dates accurate.",
		keywords:    []string{"reported", "according to", "officials", "government", "president", "breaking", "yesterday", "announced", "minister", "election", "police", "says", "said"},
	},
	{
		typ:         Business,
		name:        "Kinh doanh",
		instruction: "Style: business. Use professional Vietnamese business vocabulary; keep currency amounts, company names and figures exact.",
		keywords:    []string{"revenue", "market", "customer", "investment", "profit", "company", "sales", "strategy", "startup", "stock", "finance", "quarter", "growth", "enterprise"},
	},
	{
		typ:         Medical,
		name:        "Y khoa",
		instruction: "Style: medical. Use correct Vietnamese medical terminology; keep drug names and dosages exact.",
		keywords:    []string{"patient", "treatment", "disease", "symptom", "clinical", "doctor", "diagnosis", "therapy", "hospital", "medication", "dose", "vaccine", "health"},
	},
	{
		typ:         Legal,
		name:        "Pháp lý",
		instruction: "Style: legal. Use formal Vietnamese legal language; translate clauses precisely without paraphrasing obligations.",
		keywords:    []string{"law", "court", "agreement", "pursuant", "liability", "contract", "clause", "plaintiff", "defendant", "jurisdiction", "terms", "hereby", "statute"},
	},
	{
		typ:         Creative,
		name:        "Văn chương",
		instruction: "Style: literary. Preserve tone, imagery and rhythm; prefer natural, expressive Vietnamese over literal phrasing.",
		keywords:    []string{"story", "chapter", "novel", "poem", "heart", "dream", "love", "whispered", "night", "soul", "character", "tale"},
	},
	{
		typ:         Casual,
		name:        "Thân mật",
		instruction: "Style: casual conversation. Use relaxed, everyday Vietnamese; keep slang and emoji meaning natural.",
		keywords:    []string{"lol", "haha", "guys", "awesome", "cool", "gonna", "wanna", "omg", "btw", "thanks", "hey", "yeah"},
	},
	{
		typ:         Tutorial,
		name:        "Hướng dẫn",
		instruction: "Style: tutorial. Use clear, instructional Vietnamese; keep step numbering, commands and UI labels recognizable.",
		keywords:    []string{"step", "tutorial", "guide", "how to", "click", "first", "next", "example", "learn", "beginner", "follow", "select"},
	},
}

// Default returns the general profile.
func Default() Profile {
	return Profile{Type: General, Name: "Chung", Instruction: ""}
}

// Lookup resolves a style type to its profile.
func Lookup(t Type) (Profile, bool) {
	if t == General {
		return Default(), true
	}
	for _, f := range families {
		if f.typ == t {
			return Profile{Type: f.typ, Name: f.name, Instruction: f.instruction}, true
		}
	}
	return Profile{}, false
}

// Types lists every known style type.
func Types() []Type {
	out := []Type{General}
	for _, f := range families {
		out = append(out, f.typ)
	}
	return out
}

// KeywordClassifier counts keyword-family matches in the sample.
type KeywordClassifier struct {
	MinMatches int
}

func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{MinMatches: MinMatches}
}

func (c *KeywordClassifier) Classify(sample string) Profile {
	text := strings.ToLower(sample)
	if strings.TrimSpace(text) == "" {
		return Default()
	}

	threshold := c.MinMatches
	if threshold <= 0 {
		threshold = MinMatches
	}

	best := -1
	bestCount := 0
	for i, f := range families {
		count := 0
		for _, kw := range f.keywords {
			count += countWord(text, kw)
		}
		if count > bestCount {
			best = i
			bestCount = count
		}
	}

	if best < 0 || bestCount < threshold {
		return Default()
	}
	f := families[best]
	return Profile{Type: f.typ, Name: f.name, Instruction: f.instruction}
}

// Sample concatenates the trimmed text of the leading segments, truncated
// to SampleLength characters.
func Sample(segments []*internal.Segment) string {
	var sb strings.Builder
	for i, s := range segments {
		if i >= SampleSegments {
			break
		}
		if s.Trimmed == "" {
			continue
		}
		sb.WriteString(s.Trimmed)
		sb.WriteByte(' ')
	}
	runes := []rune(sb.String())
	if len(runes) > SampleLength {
		runes = runes[:SampleLength]
	}
	return string(runes)
}

// countWord counts occurrences of kw bounded by non-letter characters.
func countWord(text, kw string) int {
	count := 0
	for start := 0; ; {
		i := strings.Index(text[start:], kw)
		if i < 0 {
			return count
		}
		i += start
		end := i + len(kw)
		if isBoundary(text, i-1) && isBoundary(text, end) {
			count++
		}
		start = end
	}
}

func isBoundary(text string, i int) bool {
	if i < 0 || i >= len(text) {
		return true
	}
	b := text[i]
	return !(b >= 'a' && b <= 'z' || b >= '0' && b <= '9' || b >= 0x80)
}
