package translator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultQuotaWait is used when a quota error carries no retry hint.
	DefaultQuotaWait = 500 * time.Millisecond
	// DefaultQuotaWaitCap bounds any wait between candidates.
	DefaultQuotaWaitCap = 2 * time.Second
)

// Router walks an ordered model list for every request, starting with the
// model that last succeeded.
type Router struct {
	backend  Backend
	models   []string
	prefs    PreferenceStore
	safety   SafetyRecorder
	quotaCap time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
	logger   zerolog.Logger

	mu        sync.Mutex
	preferred string
	loaded    bool
}

type RouterOption func(*Router)

func WithPreferences(p PreferenceStore) RouterOption {
	return func(r *Router) { r.prefs = p }
}

func WithSafety(s SafetyRecorder) RouterOption {
	return func(r *Router) { r.safety = s }
}

func WithQuotaWaitCap(d time.Duration) RouterOption {
	return func(r *Router) { r.quotaCap = d }
}

func WithSleep(fn func(ctx context.Context, d time.Duration) error) RouterOption {
	return func(r *Router) { r.sleep = fn }
}

func WithLogger(l zerolog.Logger) RouterOption {
	return func(r *Router) { r.logger = l }
}

func NewRouter(backend Backend, models []string, opts ...RouterOption) *Router {
	r := &Router{
		backend:  backend,
		models:   append([]string(nil), models...),
		quotaCap: DefaultQuotaWaitCap,
		sleep:    Sleep,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (r *Router) Backend() string {
	return r.backend.Name()
}

// Candidates returns the model order for the next request: the preferred
// model first, then the configured list without it.
func (r *Router) Candidates(ctx context.Context) []string {
	preferred := r.preferredModel(ctx)
	if preferred == "" {
		return append([]string(nil), r.models...)
	}
	out := make([]string, 0, len(r.models)+1)
	out = append(out, preferred)
	for _, m := range r.models {
		if m != preferred {
			out = append(out, m)
		}
	}
	return out
}

func (r *Router) preferredModel(ctx context.Context) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loaded || r.prefs == nil {
		return r.preferred
	}
	m, err := r.prefs.PreferredModel(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("failed to load preferred model")
		return r.preferred
	}
	r.preferred = m
	r.loaded = true
	return m
}

func (r *Router) promote(ctx context.Context, model string) {
	r.mu.Lock()
	changed := r.preferred != model
	r.preferred = model
	r.loaded = true
	r.mu.Unlock()

	if !changed {
		return
	}
	r.logger.Info().Str("model", model).Msg("switching preferred model")
	if r.prefs != nil {
		if err := r.prefs.SetPreferredModel(ctx, model); err != nil {
			r.logger.Warn().Err(err).Str("model", model).Msg("failed to persist preferred model")
		}
	}
}

// Translate runs a blocking request through the fallback chain.
func (r *Router) Translate(ctx context.Context, req Request) (*Result, error) {
	return r.run(ctx, req, func(model string) (string, error) {
		return r.backend.Generate(ctx, model, req)
	})
}

// TranslateStream runs a streaming request through the fallback chain.
// onPartial receives the accumulated text of the model currently answering;
// after a fallback the accumulation restarts.
func (r *Router) TranslateStream(ctx context.Context, req Request, onPartial func(string)) (*Result, error) {
	return r.run(ctx, req, func(model string) (string, error) {
		return r.backend.Stream(ctx, model, req, onPartial)
	})
}

func (r *Router) run(ctx context.Context, req Request, call func(model string) (string, error)) (*Result, error) {
	sleep := r.sleep
	if req.Sleep != nil {
		sleep = req.Sleep
	}

	candidates := r.Candidates(ctx)
	var (
		lastErr   error
		notFound  int
		quota     int
		attempted int
	)

	for i, model := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		attempted++
		start := time.Now()
		text, err := call(model)
		if err == nil {
			r.promote(ctx, model)
			return &Result{Text: text, Model: model, Latency: time.Since(start)}, nil
		}

		if errors.Is(err, ErrMissingAPIKey) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}

		log := r.logger.With().Str("model", model).Str("domain", req.Domain).Logger()

		switch KindOf(err) {
		case KindNotFound:
			notFound++
			log.Debug().Msg("model not available")
			continue

		case KindQuotaExceeded:
			quota++
			lastErr = err
			if i == len(candidates)-1 {
				log.Warn().Msg("quota exceeded on last candidate")
				continue
			}
			wait := RetryAfter(err)
			if wait <= 0 {
				wait = DefaultQuotaWait
			}
			if wait > r.quotaCap {
				wait = r.quotaCap
			}
			log.Warn().Dur("wait", wait).Msg("quota exceeded")
			if err := sleep(ctx, wait); err != nil {
				return nil, err
			}
			continue

		case KindSafetyBlocked:
			return nil, r.safetyBlocked(ctx, req.Domain, err)

		case KindTruncated:
			log.Warn().Err(err).Msg("response truncated")
			return nil, err

		default:
			log.Warn().Err(err).Msg("model failed")
			lastErr = err
		}
	}

	return nil, summarize(attempted, notFound, quota, lastErr)
}

func (r *Router) safetyBlocked(ctx context.Context, domain string, err error) error {
	var te *Error
	if !errors.As(err, &te) {
		return err
	}
	blocked := *te
	blocked.Domain = domain

	if r.safety != nil && domain != "" {
		permanent, recErr := r.safety.RecordBlock(ctx, domain)
		if recErr != nil {
			r.logger.Warn().Err(recErr).Str("domain", domain).Msg("failed to record safety block")
		}
		blocked.Permanent = permanent
	}

	if blocked.Permanent {
		r.logger.Error().Str("domain", domain).Msg("domain permanently blocked after repeated safety blocks")
	} else {
		r.logger.Warn().Str("domain", domain).Msg("content blocked by safety filter")
	}
	return &blocked
}

// summarize builds the exhaustion error once every candidate failed.
func summarize(attempted, notFound, quota int, lastErr error) error {
	switch {
	case quota > 0 && notFound == attempted-quota:
		return &Error{Kind: KindQuotaExceeded, Message: ErrAllQuotaExceeded.Error(), RetryAfter: RetryAfter(lastErr), Err: ErrAllQuotaExceeded}
	case notFound == attempted:
		return &Error{Kind: KindNotFound, Message: ErrNoModelAvailable.Error(), Err: ErrNoModelAvailable}
	case lastErr != nil:
		return fmt.Errorf("all %d models failed (%d not found, %d over quota): %w", attempted, notFound, quota, lastErr)
	default:
		return &Error{Kind: KindUnknown, Message: "translation failed"}
	}
}

// ModelStatus is one row of a model availability probe.
type ModelStatus struct {
	Model  string
	Status string
	Err    error
}

// TestModels probes every configured model with a one-line request. It
// returns the per-model status and the first model that answered.
func (r *Router) TestModels(ctx context.Context, apiKey string) ([]ModelStatus, string) {
	req := Request{Text: "[0]Hello\n", APIKey: apiKey}
	var (
		out     []ModelStatus
		working string
	)
	for _, model := range r.models {
		if ctx.Err() != nil {
			break
		}
		_, err := r.backend.Generate(ctx, model, req)
		st := ModelStatus{Model: model, Err: err}
		switch {
		case err == nil:
			st.Status = "ok"
			if working == "" {
				working = model
			}
		case KindOf(err) == KindNotFound:
			st.Status = "not-found"
		case KindOf(err) == KindQuotaExceeded:
			st.Status = "quota"
		default:
			st.Status = "error"
		}
		out = append(out, st)
	}
	return out, working
}
