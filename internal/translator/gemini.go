package translator

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/valpere/pagetran/internal/gemini"
	"github.com/valpere/pagetran/internal/postprocess"
)

const (
	DefaultTemperature     = 0.1
	DefaultMaxOutputTokens = 8192
)

// GeminiBackend translates through the Gemini generateContent API.
type GeminiBackend struct {
	client          *gemini.Client
	temperature     float64
	maxOutputTokens int
}

func NewGeminiBackend(client *gemini.Client, temperature float64, maxOutputTokens int) *GeminiBackend {
	if maxOutputTokens <= 0 {
		maxOutputTokens = DefaultMaxOutputTokens
	}
	return &GeminiBackend{
		client:          client,
		temperature:     temperature,
		maxOutputTokens: maxOutputTokens,
	}
}

func (b *GeminiBackend) Name() string {
	return "gemini"
}

func (b *GeminiBackend) request(model string, req Request) *gemini.Request {
	return gemini.NewTextRequest(BuildPrompt(req), gemini.GenerationConfig{
		Temperature:     TemperatureFor(model, b.temperature),
		MaxOutputTokens: b.maxOutputTokens,
	})
}

func (b *GeminiBackend) Generate(ctx context.Context, model string, req Request) (string, error) {
	if req.APIKey == "" {
		return "", ErrMissingAPIKey
	}

	resp, err := b.client.Generate(ctx, req.APIKey, model, b.request(model, req))
	if err != nil {
		return "", classifyTransport(model, err)
	}
	if err := classifyResponse(model, resp.BlockReason(), resp.FinishReason()); err != nil {
		return "", err
	}

	text := postprocess.Clean(resp.Text())
	if strings.TrimSpace(text) == "" {
		return "", &Error{Kind: KindMalformed, Model: model, Message: "empty response"}
	}
	return text, nil
}

func (b *GeminiBackend) Stream(ctx context.Context, model string, req Request, onPartial func(string)) (string, error) {
	if req.APIKey == "" {
		return "", ErrMissingAPIKey
	}

	var acc strings.Builder
	err := b.client.Stream(ctx, req.APIKey, model, b.request(model, req), func(event *gemini.Response) error {
		if err := classifyResponse(model, event.BlockReason(), event.FinishReason()); err != nil {
			return err
		}
		if delta := event.Text(); delta != "" {
			acc.WriteString(delta)
			if onPartial != nil {
				onPartial(acc.String())
			}
		}
		return nil
	})
	if err != nil {
		var te *Error
		if errors.As(err, &te) {
			return "", err
		}
		return "", classifyTransport(model, err)
	}

	text := postprocess.Clean(acc.String())
	if strings.TrimSpace(text) == "" {
		return "", &Error{Kind: KindMalformed, Model: model, Message: "empty response"}
	}
	return text, nil
}

func classifyResponse(model, blockReason, finishReason string) error {
	if blockReason != "" {
		return &Error{Kind: KindSafetyBlocked, Model: model, Status: blockReason, Message: "prompt blocked: " + blockReason}
	}
	switch finishReason {
	case gemini.FinishMaxTokens:
		return &Error{Kind: KindTruncated, Model: model, Status: finishReason, Message: "response hit the output token ceiling, reduce chunk size"}
	case gemini.FinishSafety:
		return &Error{Kind: KindSafetyBlocked, Model: model, Status: finishReason, Message: "response blocked by safety filter"}
	}
	return nil
}

func classifyTransport(model string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *gemini.APIError
	if !errors.As(err, &apiErr) {
		return &Error{Kind: KindNetwork, Model: model, Message: err.Error(), Err: err}
	}

	te := &Error{
		Kind:       KindUnknown,
		Model:      model,
		Code:       apiErr.StatusCode,
		Status:     apiErr.Status,
		Message:    apiErr.Message,
		RetryAfter: apiErr.RetryDelay,
		Err:        err,
	}
	switch {
	case apiErr.StatusCode == http.StatusNotFound || apiErr.Status == "NOT_FOUND":
		te.Kind = KindNotFound
	case apiErr.StatusCode == http.StatusTooManyRequests || apiErr.Status == "RESOURCE_EXHAUSTED":
		te.Kind = KindQuotaExceeded
	}
	return te
}
