package detector

import (
	"strings"
	"sync"
	"unicode"

	lingua "github.com/pemistahl/lingua-go"
)

// minLetters is the letter count below which detection is not attempted.
const minLetters = 6

// Detector wraps a lingua detector that is built on first use.
type Detector struct {
	languages []lingua.Language
	once      sync.Once
	detector  lingua.LanguageDetector
}

// New returns a detector over the given languages, or all languages when
// none are given.
func New(languages ...lingua.Language) *Detector {
	return &Detector{languages: languages}
}

func (d *Detector) get() lingua.LanguageDetector {
	d.once.Do(func() {
		b := lingua.NewLanguageDetectorBuilder()
		var builder lingua.LanguageDetectorBuilder
		if len(d.languages) >= 2 {
			builder = b.FromLanguages(d.languages...)
		} else {
			builder = b.FromAllLanguages()
		}
		d.detector = builder.Build()
	})
	return d.detector
}

func (d *Detector) Detect(text string) (lingua.Language, bool) {
	text = strings.TrimSpace(text)
	if Letters(text) < minLetters {
		return lingua.Unknown, false
	}
	return d.get().DetectLanguageOf(text)
}

func (d *Detector) DetectISO(text string) (string, bool) {
	lang, ok := d.Detect(text)
	if !ok {
		return "", false
	}
	return strings.ToLower(lang.IsoCode639_1().String()), true
}

// Confidence returns the detector's confidence in [0, 1] that text is
// written in the language with the given ISO 639-1 code.
func (d *Detector) Confidence(text, iso string) float64 {
	lang, ok := languageOf(iso)
	if !ok || Letters(text) < minLetters {
		return 0
	}
	return d.get().ComputeLanguageConfidence(text, lang)
}

func languageOf(iso string) (lingua.Language, bool) {
	for _, lang := range lingua.AllLanguages() {
		if strings.EqualFold(lang.IsoCode639_1().String(), iso) {
			return lang, true
		}
	}
	return lingua.Unknown, false
}

// Letters counts the letters in text.
func Letters(text string) int {
	n := 0
	for _, r := range text {
		if unicode.IsLetter(r) {
			n++
		}
	}
	return n
}
