package gemini

import (
	"fmt"
	"strings"
	"time"
)

// Finish reasons the engine interprets.
const (
	FinishStop      = "STOP"
	FinishMaxTokens = "MAX_TOKENS"
	FinishSafety    = "SAFETY"
)

type Part struct {
	Text string `json:"text"`
}

type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

type GenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type SafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

// GoogleSearch enables grounding with web search. It has no fields.
type GoogleSearch struct{}

type Tool struct {
	GoogleSearch *GoogleSearch `json:"google_search,omitempty"`
}

type Request struct {
	Contents          []Content        `json:"contents"`
	SystemInstruction *Content         `json:"systemInstruction,omitempty"`
	GenerationConfig  GenerationConfig `json:"generationConfig"`
	SafetySettings    []SafetySetting  `json:"safetySettings,omitempty"`
	Tools             []Tool           `json:"tools,omitempty"`
}

// NewTextRequest builds a single-turn user request.
func NewTextRequest(prompt string, cfg GenerationConfig) *Request {
	return &Request{
		Contents:         []Content{{Role: "user", Parts: []Part{{Text: prompt}}}},
		GenerationConfig: cfg,
	}
}

// PermissiveSafety disables the model's own harm filters for the standard
// categories.
func PermissiveSafety() []SafetySetting {
	categories := []string{
		"HARM_CATEGORY_HARASSMENT",
		"HARM_CATEGORY_HATE_SPEECH",
		"HARM_CATEGORY_SEXUALLY_EXPLICIT",
		"HARM_CATEGORY_DANGEROUS_CONTENT",
	}
	out := make([]SafetySetting, len(categories))
	for i, c := range categories {
		out[i] = SafetySetting{Category: c, Threshold: "BLOCK_NONE"}
	}
	return out
}

type Candidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

type PromptFeedback struct {
	BlockReason string `json:"blockReason,omitempty"`
}

type Response struct {
	Candidates     []Candidate     `json:"candidates"`
	PromptFeedback *PromptFeedback `json:"promptFeedback,omitempty"`
}

// Text concatenates the text parts of the first candidate.
func (r *Response) Text() string {
	if r == nil || len(r.Candidates) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}

func (r *Response) FinishReason() string {
	if r == nil || len(r.Candidates) == 0 {
		return ""
	}
	return r.Candidates[0].FinishReason
}

func (r *Response) BlockReason() string {
	if r == nil || r.PromptFeedback == nil {
		return ""
	}
	return r.PromptFeedback.BlockReason
}

type errorDetail struct {
	Type       string `json:"@type"`
	RetryDelay string `json:"retryDelay,omitempty"`
}

type errorEnvelope struct {
	Error *struct {
		Code    int           `json:"code"`
		Message string        `json:"message"`
		Status  string        `json:"status"`
		Details []errorDetail `json:"details"`
	} `json:"error"`
}

// APIError is a non-2xx reply from the endpoint.
type APIError struct {
	StatusCode int
	Code       int
	Message    string
	Status     string
	// RetryDelay is the server's RetryInfo hint, zero when absent.
	RetryDelay time.Duration
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("gemini: %d %s: %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("gemini: %d: %s", e.StatusCode, e.Message)
}
