package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/valpere/pagetran/internal/gemini"
)

const (
	DefaultModel       = "gemini-2.5-flash"
	analyzeTemperature = 0.3
	analyzeMaxTokens   = 2048
)

// Analysis is the classification a remote model returns for a website.
type Analysis struct {
	WebsiteType           string   `json:"websiteType"`
	ContentTone           string   `json:"contentTone"`
	Audience              string   `json:"audience"`
	Themes                []string `json:"themes"`
	TranslationGuidelines string   `json:"translationGuidelines"`
	ExamplePhrases        []string `json:"examplePhrases"`
}

// Analyzer classifies a website from its domain and a sample URL.
type Analyzer interface {
	Analyze(ctx context.Context, domain, url string) (*Analysis, error)
}

// GeminiAnalyzer asks a Gemini model, grounded with web search, to describe
// a website.
type GeminiAnalyzer struct {
	client *gemini.Client
	apiKey string
	model  string
}

func NewGeminiAnalyzer(client *gemini.Client, apiKey, model string) *GeminiAnalyzer {
	if model == "" {
		model = DefaultModel
	}
	return &GeminiAnalyzer{client: client, apiKey: apiKey, model: model}
}

const analyzePrompt = `Analyze this website and determine its characteristics for translation purposes:

Website URL: %s
Domain: %s

Tasks:
1. Website type (news, blog, e-commerce, documentation, social media, forum, academic, etc.)
2. Content tone (formal, casual, technical, literary, conversational)
3. Target audience (general public, professionals, students, enthusiasts)
4. Common vocabulary themes (technology, medicine, business, entertainment, etc.)
5. Translation style recommendations for Vietnamese

Return ONLY a valid JSON object (no extra text):
{
  "websiteType": "type of website",
  "contentTone": "primary tone",
  "audience": "target audience",
  "themes": ["theme1", "theme2"],
  "translationGuidelines": "specific guidelines for translating this type of content to Vietnamese"
}`

func (a *GeminiAnalyzer) Analyze(ctx context.Context, domain, url string) (*Analysis, error) {
	if a.apiKey == "" {
		return nil, errors.New("API key is not configured")
	}

	req := gemini.NewTextRequest(fmt.Sprintf(analyzePrompt, url, domain), gemini.GenerationConfig{
		Temperature:     analyzeTemperature,
		MaxOutputTokens: analyzeMaxTokens,
	})
	req.Tools = []gemini.Tool{{GoogleSearch: &gemini.GoogleSearch{}}}
	req.SafetySettings = gemini.PermissiveSafety()

	resp, err := a.client.Generate(ctx, a.apiKey, a.model, req)
	if err != nil {
		return nil, fmt.Errorf("analyze %s: %w", domain, err)
	}
	if reason := resp.BlockReason(); reason != "" {
		return nil, fmt.Errorf("analyze %s: blocked: %s", domain, reason)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("analyze %s: empty response", domain)
	}
	return ParseAnalysis(text)
}

// ParseAnalysis extracts the JSON object from a model reply, tolerating
// code fences and surrounding prose.
func ParseAnalysis(text string) (*Analysis, error) {
	text = strings.TrimSpace(text)
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return nil, errors.New("no JSON object in analysis")
	}

	var a Analysis
	if err := json.Unmarshal([]byte(text[start:end+1]), &a); err != nil {
		return nil, fmt.Errorf("decode analysis: %w", err)
	}
	return &a, nil
}
