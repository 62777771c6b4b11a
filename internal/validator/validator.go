// Package validator checks that a model reply is plausibly written in the
// target language before it is applied to a page.
package validator

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/valpere/pagetran/internal/detector"
)

// minValidationLength is the minimum rune count required to attempt language detection.
// Shorter texts produce unreliable results and are accepted without validation.
const minValidationLength = 20

var linePrefixRe = regexp.MustCompile(`(?m)^\s*\[\d+\]`)

// Validator checks that a reply is written in the expected target language.
// The underlying language detector is expensive to build; reuse the instance.
type Validator struct {
	det *detector.Detector
}

// New creates a Validator backed by a detector over all languages.
func New() *Validator {
	return &Validator{det: detector.New()}
}

// NewWithDetector creates a Validator sharing an existing detector.
func NewWithDetector(det *detector.Detector) *Validator {
	return &Validator{det: det}
}

// IsValid returns true when reply appears to be written in targetLang.
//
// Numbered "[n]" prefixes are ignored. Short texts and texts whose language
// cannot be determined pass without error. When the detected language differs
// from targetLang the returned error names both codes.
func (v *Validator) IsValid(reply, targetLang string) (bool, error) {
	if targetLang == "" {
		return true, nil
	}

	text := strings.TrimSpace(Strip(reply))
	if text == "" {
		return false, fmt.Errorf("translation is empty")
	}

	if len([]rune(text)) < minValidationLength {
		return true, nil
	}

	// Vietnamese diacritics are close to unique among Latin scripts.
	if strings.EqualFold(targetLang, "vi") && HasVietnameseMarks(text) {
		return true, nil
	}

	detected, ok := v.det.DetectISO(text)
	if !ok {
		return true, nil
	}

	if !strings.EqualFold(detected, targetLang) {
		return false, fmt.Errorf("expected %s but detected %s", targetLang, detected)
	}

	return true, nil
}

// Strip removes "[n]" line prefixes and digits so that numbering does not
// bias detection.
func Strip(reply string) string {
	text := linePrefixRe.ReplaceAllString(reply, "")
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return -1
		}
		return r
	}, text)
}

// vietnameseOnly holds letters that appear in Vietnamese orthography and
// in no other major Latin-script language.
const vietnameseOnly = "ăắằẳẵặấầẩẫậảạđếềểễệẻẹẽỉịĩốồổỗộơớờởỡợỏọưứừửữựủụũỳỷỹỵ"

// HasVietnameseMarks reports whether text contains at least two
// Vietnamese-specific letters.
func HasVietnameseMarks(text string) bool {
	n := 0
	for _, r := range text {
		if strings.ContainsRune(vietnameseOnly, unicode.ToLower(r)) {
			n++
			if n >= 2 {
				return true
			}
		}
	}
	return false
}
