package translator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newOllamaServer(t *testing.T, handler func(w http.ResponseWriter, req ollamaRequest)) *OllamaBackend {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req ollamaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request: %v", err)
		}
		handler(w, req)
	}))
	t.Cleanup(server.Close)
	return NewOllamaBackend(server.URL, 0.2)
}

func TestOllamaBackend_Generate(t *testing.T) {
	var got ollamaRequest
	b := newOllamaServer(t, func(w http.ResponseWriter, req ollamaRequest) {
		got = req
		fmt.Fprint(w, `{"response":"<think>dịch</think>[0]Xin chào","done":true,"done_reason":"stop"}`)
	})

	text, err := b.Generate(context.Background(), "llama3.2", Request{Text: "[0]Hello\n"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "[0]Xin chào" {
		t.Errorf("expected cleaned text, got %q", text)
	}
	if got.Model != "llama3.2" || got.Stream {
		t.Errorf("unexpected request %+v", got)
	}
	if got.Options.Temperature != 0.2 {
		t.Errorf("expected temperature 0.2, got %v", got.Options.Temperature)
	}
	if !strings.Contains(got.Prompt, "[0]Hello") {
		t.Error("prompt must carry the chunk text")
	}
}

func TestOllamaBackend_Stream(t *testing.T) {
	b := newOllamaServer(t, func(w http.ResponseWriter, req ollamaRequest) {
		if !req.Stream {
			t.Error("expected a streaming request")
		}
		fmt.Fprintln(w, `{"response":"[0]Một\n","done":false}`)
		fmt.Fprintln(w, `{"response":"[1]Hai","done":false}`)
		fmt.Fprintln(w, `{"response":"","done":true,"done_reason":"stop"}`)
	})

	var partials []string
	text, err := b.Stream(context.Background(), "llama3.2", Request{Text: "[0]One\n[1]Two\n"}, func(acc string) {
		partials = append(partials, acc)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "[0]Một\n[1]Hai" {
		t.Errorf("unexpected final text %q", text)
	}
	if len(partials) != 2 || partials[1] != "[0]Một\n[1]Hai" {
		t.Errorf("expected accumulated partials, got %q", partials)
	}
}

func TestOllamaBackend_Classification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind Kind
	}{
		{
			name:     "model not pulled",
			status:   http.StatusNotFound,
			body:     `{"error":"model 'x' not found, try pulling it first"}`,
			wantKind: KindNotFound,
		},
		{
			name:     "server error",
			status:   http.StatusInternalServerError,
			body:     `{"error":"out of memory"}`,
			wantKind: KindUnknown,
		},
		{
			name:     "length limit",
			status:   http.StatusOK,
			body:     `{"response":"[0]Mộ","done":true,"done_reason":"length"}`,
			wantKind: KindTruncated,
		},
		{
			name:     "empty reply",
			status:   http.StatusOK,
			body:     `{"response":"  ","done":true,"done_reason":"stop"}`,
			wantKind: KindMalformed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newOllamaServer(t, func(w http.ResponseWriter, req ollamaRequest) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			})
			_, err := b.Generate(context.Background(), "x", Request{Text: "[0]Hello\n"})
			if err == nil {
				t.Fatal("expected error")
			}
			if KindOf(err) != tt.wantKind {
				t.Errorf("expected %s, got %s (%v)", tt.wantKind, KindOf(err), err)
			}
		})
	}
}

func TestOllamaBackend_NotRunning(t *testing.T) {
	b := NewOllamaBackend("http://127.0.0.1:1", 0)
	_, err := b.Generate(context.Background(), "llama3.2", Request{Text: "[0]Hello\n"})
	if KindOf(err) != KindNetwork {
		t.Errorf("expected network error, got %v", err)
	}
}

func TestOllamaBackend_RoutesWithoutAPIKey(t *testing.T) {
	b := newOllamaServer(t, func(w http.ResponseWriter, req ollamaRequest) {
		if req.Model == "missing" {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":"model not found"}`)
			return
		}
		fmt.Fprint(w, `{"response":"[0]Xin chào","done":true}`)
	})

	r := NewRouter(b, []string{"missing", "llama3.2"})
	res, err := r.Translate(context.Background(), Request{Text: "[0]Hello\n"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Model != "llama3.2" {
		t.Errorf("expected fallback to llama3.2, got %s", res.Model)
	}
}
