package translator

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/valpere/pagetran/internal/postprocess"
)

const DefaultOllamaURL = "http://localhost:11434"

var DefaultOllamaModels = []string{
	"gemma3:12b",
	"qwen2.5:7b",
	"llama3.2",
}

// OllamaBackend runs the translation prompt on a local Ollama server. It
// needs no API key and has no quota, so the router only falls back on
// missing models and failures.
type OllamaBackend struct {
	baseURL     string
	temperature float64
	client      *http.Client
}

func NewOllamaBackend(baseURL string, temperature float64) *OllamaBackend {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	return &OllamaBackend{
		baseURL:     strings.TrimRight(baseURL, "/"),
		temperature: temperature,
		client:      &http.Client{Timeout: 300 * time.Second},
	}
}

func (b *OllamaBackend) Name() string {
	return "ollama"
}

type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
}

// ollamaReply is both the blocking response and one line of a stream.
type ollamaReply struct {
	Response   string `json:"response"`
	Done       bool   `json:"done"`
	DoneReason string `json:"done_reason"`
	Error      string `json:"error"`
}

func (b *OllamaBackend) Generate(ctx context.Context, model string, req Request) (string, error) {
	resp, err := b.post(ctx, model, req, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var reply ollamaReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return "", &Error{Kind: KindMalformed, Model: model, Message: "failed to decode response", Err: err}
	}
	if err := classifyOllamaReply(model, reply); err != nil {
		return "", err
	}
	return cleanOllama(model, reply.Response)
}

// Stream reads the newline-delimited JSON objects Ollama emits while
// generating.
func (b *OllamaBackend) Stream(ctx context.Context, model string, req Request, onPartial func(string)) (string, error) {
	resp, err := b.post(ctx, model, req, true)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var acc strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var reply ollamaReply
		if err := json.Unmarshal(line, &reply); err != nil {
			return "", &Error{Kind: KindMalformed, Model: model, Message: "failed to decode stream line", Err: err}
		}
		if err := classifyOllamaReply(model, reply); err != nil {
			return "", err
		}
		if reply.Response != "" {
			acc.WriteString(reply.Response)
			if onPartial != nil {
				onPartial(acc.String())
			}
		}
		if reply.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &Error{Kind: KindNetwork, Model: model, Message: err.Error(), Err: err}
	}
	return cleanOllama(model, acc.String())
}

func (b *OllamaBackend) post(ctx context.Context, model string, req Request, stream bool) (*http.Response, error) {
	body, err := json.Marshal(ollamaRequest{
		Model:   model,
		Prompt:  BuildPrompt(req),
		Stream:  stream,
		Options: ollamaOptions{Temperature: b.temperature},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, &Error{Kind: KindNetwork, Model: model, Message: err.Error(), Err: err}
	}
	if resp.StatusCode == http.StatusOK {
		return resp, nil
	}

	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var reply ollamaReply
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &reply) == nil && reply.Error != "" {
		msg = reply.Error
	}

	te := &Error{Kind: KindUnknown, Model: model, Code: resp.StatusCode, Message: msg}
	if resp.StatusCode == http.StatusNotFound {
		te.Kind = KindNotFound
	}
	return nil, te
}

func classifyOllamaReply(model string, reply ollamaReply) error {
	if reply.Error != "" {
		return &Error{Kind: KindUnknown, Model: model, Message: reply.Error}
	}
	if reply.Done && reply.DoneReason == "length" {
		return &Error{Kind: KindTruncated, Model: model, Status: reply.DoneReason, Message: "response hit the output token ceiling, reduce chunk size"}
	}
	return nil
}

func cleanOllama(model, text string) (string, error) {
	text = postprocess.Clean(text)
	if strings.TrimSpace(text) == "" {
		return "", &Error{Kind: KindMalformed, Model: model, Message: "empty response"}
	}
	return text, nil
}
