package translator

import (
	"strings"

	"github.com/valpere/pagetran/internal/placeholder"
)

const taskInstruction = `CRITICAL INSTRUCTION: You MUST translate ALL text to VIETNAMESE (Tiếng Việt).

Do not keep the original-language text. Every line MUST be translated to Vietnamese.

Format requirement:
- Input: [0]Original [1]Text [2]Content
- Output: [0]Bản dịch [1]Văn bản [2]Nội dung

Rules:
1. Keep the [number] prefix EXACTLY as shown on every line
2. Translate EVERY line to Vietnamese, no exceptions
3. Process from the FIRST [0] to the LAST line in order, never skip an index
4. If a line is empty, output only its prefix, e.g. [5]
5. Output only the numbered lines, no commentary

Text to translate:
`

// BuildPrompt renders the full request text. The domain instruction comes
// first, then the style instruction and the placeholder rule, then the
// fixed task rules.
func BuildPrompt(req Request) string {
	var sb strings.Builder
	if d := strings.TrimSpace(req.DomainInstruction); d != "" {
		sb.WriteString(d)
		sb.WriteString("\n\n")
	}
	if s := strings.TrimSpace(req.StyleInstruction); s != "" {
		sb.WriteString(s)
		sb.WriteString("\n\n")
	}
	if req.Protected {
		sb.WriteString(placeholder.Hint)
		sb.WriteString("\n\n")
	}
	sb.WriteString(taskInstruction)
	sb.WriteString(req.Text)
	return sb.String()
}

// temperatureOverrides pins the sampling temperature for model families that
// reject or misbehave with the configured default.
var temperatureOverrides = []struct {
	prefix      string
	temperature float64
}{
	{"gemini-3", 1.0},
}

// TemperatureFor returns the temperature to send for model.
func TemperatureFor(model string, fallback float64) float64 {
	for _, o := range temperatureOverrides {
		if strings.HasPrefix(model, o.prefix) {
			return o.temperature
		}
	}
	return fallback
}
