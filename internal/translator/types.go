package translator

import (
	"context"
	"time"
)

// Request is one chunk translation call.
type Request struct {
	Text   string
	APIKey string
	// StyleInstruction is the page-level style directive, empty for general text.
	StyleInstruction string
	// DomainInstruction outranks the style instruction in the prompt.
	DomainInstruction string
	// Protected is set when Text carries placeholder markers to keep verbatim.
	Protected bool
	// Domain is the registrable domain the text came from, used for
	// safety-block accounting.
	Domain string
	// Sleep overrides the router's wait between candidates, so callers can
	// make quota waits honor pause.
	Sleep func(ctx context.Context, d time.Duration) error
}

type Result struct {
	Text    string
	Model   string
	Latency time.Duration
}

// Backend calls one model of a translation service.
type Backend interface {
	Name() string
	Generate(ctx context.Context, model string, req Request) (string, error)
	// Stream delivers the accumulated text after every increment and returns
	// the final text.
	Stream(ctx context.Context, model string, req Request, onPartial func(accumulated string)) (string, error)
}

// PreferenceStore persists the most recently successful model.
type PreferenceStore interface {
	PreferredModel(ctx context.Context) (string, error)
	SetPreferredModel(ctx context.Context, model string) error
}

// SafetyRecorder applies the strike policy for content-safety blocks.
type SafetyRecorder interface {
	RecordBlock(ctx context.Context, domain string) (permanent bool, err error)
}
