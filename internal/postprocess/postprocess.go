// Package postprocess strips model chatter from a translation response
// before it reaches the numbered-line parser.
package postprocess

import (
	"regexp"
	"strings"
)

// Clean runs every cleanup phase and returns the trimmed result:
//  1. reasoning block removal
//  2. echo removal ("here is the translation:")
//  3. outer quote removal
//  4. prose before the first numbered line
func Clean(text string) string {
	text = removeThinkingBlocks(text)
	text = removeInstructionEchoes(text)
	text = removeQuoteWrapping(text)
	text = removeLeadingProse(text)
	return strings.TrimSpace(text)
}

// thinkingBlockRe matches complete reasoning blocks. RE2 has no
// backreferences, so each tag pair is listed.
var thinkingBlockRe = regexp.MustCompile(
	`(?is)<thinking>.*?</thinking>|<think>.*?</think>|<reasoning>.*?</reasoning>|<reflection>.*?</reflection>`,
)

// truncatedThinkingRe matches a reasoning block cut off before its close tag.
var truncatedThinkingRe = regexp.MustCompile(
	`(?is)(?:<thinking>|<think>|<reasoning>|<reflection>).*$`,
)

func removeThinkingBlocks(text string) string {
	text = thinkingBlockRe.ReplaceAllString(text, "")
	text = truncatedThinkingRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// echoPatterns match introductory phrases, English or Vietnamese, anchored at
// the start and ending in a colon.
var echoPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(?:(?:certainly|sure|of course)[,.]? )?here(?:'s| is)(?: the)? (?:vietnamese |translated )?(?:translation|text)\s*:`),
	regexp.MustCompile(`(?i)^(?:the )?(?:vietnamese )?(?:translation|translated text)\s*:`),
	regexp.MustCompile(`(?i)^(?:dưới )?đây là (?:bản dịch|văn bản đã dịch)(?: tiếng việt)?\s*:`),
	regexp.MustCompile(`(?i)^bản dịch(?: tiếng việt)?\s*:`),
}

// numberedLineRe marks the first line of a numbered response.
var numberedLineRe = regexp.MustCompile(`(?m)^\s*\[\d+\]`)

func removeInstructionEchoes(text string) string {
	for _, re := range echoPatterns {
		if loc := re.FindStringIndex(text); loc != nil {
			text = strings.TrimSpace(text[loc[1]:])
		}
	}
	return text
}

// removeLeadingProse drops unnumbered text before the first numbered line.
// Fenced and JSON responses are left alone for the parser.
func removeLeadingProse(text string) string {
	if strings.HasPrefix(text, "```") || strings.HasPrefix(text, "{") {
		return text
	}
	if loc := numberedLineRe.FindStringIndex(text); loc != nil && loc[0] > 0 {
		head := text[:loc[0]]
		if !strings.Contains(head, "```") && !strings.Contains(head, "{") {
			text = strings.TrimSpace(text[loc[0]:])
		}
	}
	return text
}

// quotePairs maps an opening quote to the closing quote that must end the
// text for the pair to be stripped.
var quotePairs = map[rune]rune{
	'"':  '"',
	'\'': '\'',
	'«':  '»',
	'“':  '”',
	'‘':  '’',
}

// removeQuoteWrapping strips a matching pair of outer quotes around the
// whole text.
func removeQuoteWrapping(text string) string {
	runes := []rune(text)
	if len(runes) < 2 {
		return text
	}
	closing, ok := quotePairs[runes[0]]
	if !ok || runes[len(runes)-1] != closing {
		return text
	}
	return strings.TrimSpace(string(runes[1 : len(runes)-1]))
}
