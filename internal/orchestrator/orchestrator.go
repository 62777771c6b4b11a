// Package orchestrator runs a whole-page translation pass: it plans chunks,
// picks the style and domain context, and drives every chunk through cache,
// translation, validation and application under a scheduler session.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/valpere/pagetran/internal"
	"github.com/valpere/pagetran/internal/chunker"
	"github.com/valpere/pagetran/internal/extractor"
	"github.com/valpere/pagetran/internal/placeholder"
	"github.com/valpere/pagetran/internal/profile"
	"github.com/valpere/pagetran/internal/response"
	"github.com/valpere/pagetran/internal/scheduler"
	"github.com/valpere/pagetran/internal/style"
	"github.com/valpere/pagetran/internal/translator"
)

// ErrDomainBlocked is returned for pages of a permanently blocked domain.
var ErrDomainBlocked = errors.New("domain is blocked after repeated safety blocks")

type Mode string

const (
	ModeFull   Mode = "full"
	ModeStream Mode = "stream"
	ModeLazy   Mode = "lazy"
)

// Translator is the fallback-routing translation client.
type Translator interface {
	Translate(ctx context.Context, req translator.Request) (*translator.Result, error)
	TranslateStream(ctx context.Context, req translator.Request, onPartial func(string)) (*translator.Result, error)
}

type Validator interface {
	IsValid(text, targetLang string) (bool, error)
}

type Cache interface {
	Get(text, style string) (string, bool)
	Put(text, style, translated string)
	Invalidate(text, style string)
}

// Profiles supplies and learns per-domain context.
type Profiles interface {
	Get(ctx context.Context, rawURL string) *profile.Profile
	LearnVocabulary(ctx context.Context, rawURL string, pairs map[string]string) (int, error)
	TrackVisitedURL(ctx context.Context, rawURL string) error
}

type StylePreferences interface {
	StyleOverride(ctx context.Context) (string, error)
}

type SafetyGate interface {
	IsBlocked(ctx context.Context, rawURL string) (bool, error)
}

type Config struct {
	APIKey            string
	Concurrency       int
	Chunking          chunker.Options
	ValidationRetries int
	NetworkRetries    int
	RetryBaseDelay    time.Duration
	LazyIdleFlush     time.Duration
	// StyleOverride is "auto" or a style type; a stored preference wins.
	StyleOverride string
}

type Orchestrator struct {
	translator Translator
	classifier style.Classifier
	cache      Cache
	validator  Validator
	profiles   Profiles
	prefs      StylePreferences
	safety     SafetyGate
	config     Config
	logger     zerolog.Logger
}

type Option func(*Orchestrator)

func WithCache(c Cache) Option { return func(o *Orchestrator) { o.cache = c } }

func WithValidator(v Validator) Option { return func(o *Orchestrator) { o.validator = v } }

func WithProfiles(p Profiles) Option { return func(o *Orchestrator) { o.profiles = p } }

func WithStylePreferences(p StylePreferences) Option { return func(o *Orchestrator) { o.prefs = p } }

func WithSafety(s SafetyGate) Option { return func(o *Orchestrator) { o.safety = s } }

func WithClassifier(c style.Classifier) Option { return func(o *Orchestrator) { o.classifier = c } }

func WithLogger(l zerolog.Logger) Option { return func(o *Orchestrator) { o.logger = l } }

func New(t Translator, config Config, opts ...Option) *Orchestrator {
	if config.RetryBaseDelay <= 0 {
		config.RetryBaseDelay = 500 * time.Millisecond
	}
	if config.Chunking.MinSegmentLength <= 0 {
		config.Chunking.MinSegmentLength = chunker.DefaultMinSegmentLength
	}
	o := &Orchestrator{
		translator: t,
		classifier: style.NewKeywordClassifier(),
		config:     config,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type PageRequest struct {
	Document *extractor.Document
	URL      string
	Mode     Mode
	// Visible delivers region IDs as they approach the viewport, lazy mode only.
	Visible <-chan int
	// Session is created when nil. Callers keep it to pause or resume.
	Session    *scheduler.Session
	OnProgress func(scheduler.Progress)
}

type PageResult struct {
	SessionID string
	Mode      Mode
	Style     style.Profile
	// DomainInstruction is the domain context sent with every chunk.
	DomainInstruction string
	Segments          int
	Chunks            int
	Progress          scheduler.Progress
	// Missing counts segments a reply left untranslated.
	Missing int
	// Restored is set when the call reverted an already translated page.
	Restored bool
	Duration time.Duration
}

// pass is the context shared by every chunk of one page translation.
type pass struct {
	session *scheduler.Session
	doc     *extractor.Document
	url     string
	style   style.Profile
	domain  string
	stream  bool
	missing atomic.Int64
}

// TranslatePage translates the document in place. A document that is
// already translated is restored instead. On failure the document is
// restored to its original text.
func (o *Orchestrator) TranslatePage(ctx context.Context, req PageRequest) (*PageResult, error) {
	start := time.Now()
	doc := req.Document
	mode := req.Mode
	if mode == "" {
		mode = ModeFull
	}
	result := &PageResult{Mode: mode}

	if doc.Translated() {
		doc.Restore()
		result.Restored = true
		o.logger.Info().Str("url", req.URL).Msg("restored original page")
		return result, nil
	}

	if o.safety != nil && req.URL != "" {
		blocked, err := o.safety.IsBlocked(ctx, req.URL)
		if err != nil {
			o.logger.Warn().Err(err).Msg("failed to read content filter state")
		} else if blocked {
			return result, fmt.Errorf("%s: %w", internal.RegistrableDomain(req.URL), ErrDomainBlocked)
		}
	}

	segments := doc.Segments()
	translatable := chunker.Translatable(segments, o.config.Chunking.MinSegmentLength)
	result.Segments = len(translatable)
	if len(translatable) == 0 {
		o.logger.Info().Msg("nothing to translate")
		return result, nil
	}

	session := req.Session
	if session == nil {
		session = scheduler.NewSession(o.logger)
	}
	if req.OnProgress != nil {
		session.OnProgress(req.OnProgress)
	}
	result.SessionID = session.ID

	p := &pass{
		session: session,
		doc:     doc,
		url:     req.URL,
		style:   o.resolveStyle(ctx, translatable),
		stream:  mode == ModeStream,
	}
	if o.profiles != nil && req.URL != "" {
		p.domain = profile.Instruction(o.profiles.Get(ctx, req.URL))
	}
	result.Style = p.style
	result.DomainInstruction = p.domain

	log := o.logger.With().Str("session", session.ID).Str("mode", string(mode)).Logger()
	task := func(ctx context.Context, c *internal.Chunk) error {
		err := o.translateChunk(ctx, p, c)
		if err != nil && p.stream {
			// Drop lines revealed before the chunk failed.
			doc.RestoreSegments(c.Segments)
		}
		return err
	}
	opts := scheduler.Options{Concurrency: o.config.Concurrency, Fatal: abortsSession}

	var err error
	switch mode {
	case ModeLazy:
		budget := o.config.Chunking.MaxChunkSize
		plan := chunker.PlanByRegion(segments, budget, o.config.Chunking)
		result.Chunks = plan.Total()
		log.Info().Int("chunks", result.Chunks).Int("regions", len(plan.Order)).Str("style", string(p.style.Type)).Msg("starting lazy translation")
		err = scheduler.RunLazy(ctx, session, plan, req.Visible, scheduler.LazyOptions{Options: opts, IdleFlush: o.config.LazyIdleFlush}, task)

	case ModeStream, ModeFull:
		chunks := chunker.Plan(segments, 0, o.config.Chunking)
		result.Chunks = len(chunks)
		log.Info().Int("chunks", result.Chunks).Int("segments", result.Segments).Str("style", string(p.style.Type)).Msg("starting translation")
		if mode == ModeStream {
			err = scheduler.RunStreaming(ctx, session, chunks, opts, task)
		} else {
			err = scheduler.RunPool(ctx, session, chunks, opts, task)
		}

	default:
		return result, fmt.Errorf("unknown mode %q", mode)
	}

	result.Progress = session.Progress()
	result.Missing = int(p.missing.Load())
	result.Duration = time.Since(start)

	if err != nil {
		doc.Restore()
		log.Error().Err(err).Msg("translation failed, page restored")
		return result, err
	}

	doc.SetLang(internal.TargetLang)
	log.Info().
		Int("completed", result.Progress.Completed).
		Int("failed", result.Progress.Failed).
		Int("missing", result.Missing).
		Dur("duration", result.Duration).
		Msg("translation finished")

	o.learn(ctx, req.URL, segments)
	return result, nil
}

// abortsSession reports whether a chunk error ends the whole pass. Fatal
// errors do, and so does an exhausted model list, since every other chunk
// would fail the same way.
func abortsSession(err error) bool {
	return translator.IsFatal(err) ||
		errors.Is(err, translator.ErrAllQuotaExceeded) ||
		errors.Is(err, translator.ErrNoModelAvailable)
}

func (o *Orchestrator) resolveStyle(ctx context.Context, segments []*internal.Segment) style.Profile {
	override := o.config.StyleOverride
	if o.prefs != nil {
		stored, err := o.prefs.StyleOverride(ctx)
		if err != nil {
			o.logger.Warn().Err(err).Msg("failed to read style override")
		} else if stored != "" {
			override = stored
		}
	}
	if override != "" && override != "auto" {
		if p, ok := style.Lookup(style.Type(override)); ok {
			return p
		}
		o.logger.Warn().Str("style", override).Msg("unknown style override, classifying")
	}
	return o.classifier.Classify(style.Sample(segments))
}

// translateChunk is the per-chunk unit: cache, translate, validate, apply.
// Validation failures drop the cache entry and retry; when retries run out
// the last reply is applied as far as it parses.
func (o *Orchestrator) translateChunk(ctx context.Context, p *pass, c *internal.Chunk) error {
	log := o.logger.With().Str("session", p.session.ID).Int("chunk", c.Index).Logger()
	styleKey := string(p.style.Type)

	var (
		lastText string
		lastErr  error
	)
	for attempt := 0; attempt <= o.config.ValidationRetries; attempt++ {
		text, cached, err := o.fetch(ctx, p, c)
		if err != nil {
			return err
		}

		if err := o.validate(text); err != nil {
			log.Warn().Err(err).Int("attempt", attempt+1).Bool("cached", cached).Msg("translation failed validation")
			if o.cache != nil {
				o.cache.Invalidate(c.Text, styleKey)
			}
			lastText, lastErr = text, err
			continue
		}

		res := response.Apply(text, c)
		o.reconcile(log, p, res)
		if res.Format == response.FormatRaw {
			if o.cache != nil {
				o.cache.Invalidate(c.Text, styleKey)
			}
			lastText = ""
			lastErr = &translator.Error{Kind: translator.KindMalformed, Message: "reply has no numbered lines"}
			log.Warn().Str("raw", truncate(res.Raw, 200)).Int("attempt", attempt+1).Msg("unrecognized reply")
			continue
		}

		if o.cache != nil && !cached {
			o.cache.Put(c.Text, styleKey, text)
		}
		p.doc.Commit(c.Segments)
		return nil
	}

	if lastText != "" {
		res := response.Apply(lastText, c)
		o.reconcile(log, p, res)
		if res.Applied > 0 {
			log.Warn().Err(lastErr).Msg("applying translation that failed validation")
			p.doc.Commit(c.Segments)
			return nil
		}
	}
	return lastErr
}

func (o *Orchestrator) validate(text string) error {
	if o.validator == nil {
		return nil
	}
	ok, err := o.validator.IsValid(text, internal.TargetLang)
	if ok {
		return nil
	}
	if err == nil {
		err = errors.New("translation is not in the target language")
	}
	return err
}

// fetch returns the chunk's translation from the cache or the translator.
// Transient failures are retried with exponential backoff that honors pause.
func (o *Orchestrator) fetch(ctx context.Context, p *pass, c *internal.Chunk) (string, bool, error) {
	styleKey := string(p.style.Type)
	if o.cache != nil {
		if text, ok := o.cache.Get(c.Text, styleKey); ok {
			return text, true, nil
		}
	}

	text, markers := protectChunk(c)
	req := translator.Request{
		Text:              text,
		APIKey:            o.config.APIKey,
		StyleInstruction:  p.style.Instruction,
		DomainInstruction: p.domain,
		Protected:         len(markers) > 0,
		Domain:            internal.RegistrableDomain(p.url),
		Sleep:             p.session.Sleep,
	}

	for attempt := 0; ; attempt++ {
		if err := p.session.WaitIfPaused(ctx); err != nil {
			return "", false, err
		}

		var (
			res *translator.Result
			err error
		)
		if p.stream {
			res, err = o.translator.TranslateStream(ctx, req, func(acc string) {
				if response.ApplyPartial(placeholder.Restore(acc, markers), c) > 0 {
					p.doc.Commit(c.Segments)
				}
			})
		} else {
			res, err = o.translator.Translate(ctx, req)
		}
		if err == nil {
			o.logger.Debug().Int("chunk", c.Index).Str("model", res.Model).Dur("latency", res.Latency).Msg("chunk translated")
			if lost := placeholder.Missing(res.Text, markers); len(lost) > 0 {
				o.logger.Warn().Int("chunk", c.Index).Ints("markers", lost).Msg("reply dropped protected content")
			}
			return placeholder.Restore(res.Text, markers), false, nil
		}

		if !retryable(err) || attempt >= o.config.NetworkRetries {
			return "", false, err
		}
		delay := o.config.RetryBaseDelay << attempt
		o.logger.Warn().Err(err).Int("chunk", c.Index).Int("attempt", attempt+1).Dur("delay", delay).Msg("retrying chunk")
		if err := p.session.Sleep(ctx, delay); err != nil {
			return "", false, err
		}
	}
}

// protectChunk renders the request text of c with protected spans replaced
// segment by segment, so every marker stays inside its own numbered line.
func protectChunk(c *internal.Chunk) (string, []string) {
	var (
		p  placeholder.Protector
		sb strings.Builder
	)
	for _, s := range c.Segments {
		sb.WriteString(internal.FormatLine(s.ID, p.Protect(s.Trimmed)))
	}
	return sb.String(), p.Markers()
}

// retryable excludes quota errors, which the router already waited out.
func retryable(err error) bool {
	return translator.IsRetryable(err) && translator.KindOf(err) != translator.KindQuotaExceeded
}

func (o *Orchestrator) reconcile(log zerolog.Logger, p *pass, res response.Result) {
	if len(res.Gaps) > 0 {
		log.Warn().Ints("gaps", res.Gaps).Msg("JSON reply skipped indices")
	}
	if len(res.Missing) > 0 || len(res.Unknown) > 0 {
		log.Warn().
			Ints("missing", res.Missing).
			Ints("unknown", res.Unknown).
			Int("applied", res.Applied).
			Msg("reply does not match chunk")
	}
	if res.Format != response.FormatRaw {
		p.missing.Add(int64(len(res.Missing)))
	}
}

// learn feeds the finished page back into the domain profile.
func (o *Orchestrator) learn(ctx context.Context, url string, segments []*internal.Segment) {
	if o.profiles == nil || url == "" {
		return
	}
	if err := o.profiles.TrackVisitedURL(ctx, url); err != nil {
		o.logger.Warn().Err(err).Msg("failed to track visited URL")
	}

	pairs := make(map[string]string)
	for _, s := range segments {
		translated := strings.TrimSpace(s.Content)
		if translated == "" || translated == s.Trimmed {
			continue
		}
		for k, v := range profile.ExtractVocabularyPairs(s.Trimmed, translated) {
			pairs[k] = v
		}
	}
	if n, err := o.profiles.LearnVocabulary(ctx, url, pairs); err != nil {
		o.logger.Warn().Err(err).Msg("failed to learn vocabulary")
	} else if n > 0 {
		o.logger.Debug().Int("terms", n).Msg("learned domain vocabulary")
	}
}

// TranslateText translates a free-text selection. Each line rides the
// numbered format as its own segment.
func (o *Orchestrator) TranslateText(ctx context.Context, text, url string) (string, error) {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	segments := make([]*internal.Segment, 0, len(lines))
	for i, l := range lines {
		segments = append(segments, extractor.NewSegment(i, l))
	}
	var live []*internal.Segment
	for _, s := range segments {
		if s.Trimmed != "" {
			live = append(live, s)
		}
	}
	if len(live) == 0 {
		return text, nil
	}

	c := internal.NewChunk(0, live)
	st := o.resolveStyle(ctx, live)
	protected, markers := protectChunk(c)
	req := translator.Request{
		Text:             protected,
		APIKey:           o.config.APIKey,
		StyleInstruction: st.Instruction,
		Protected:        len(markers) > 0,
		Domain:           internal.RegistrableDomain(url),
	}
	if o.profiles != nil && url != "" {
		req.DomainInstruction = profile.Instruction(o.profiles.Get(ctx, url))
	}

	res, err := o.translator.Translate(ctx, req)
	if err != nil {
		return "", err
	}
	reply := placeholder.Restore(res.Text, markers)
	applied := response.Apply(reply, c)
	if applied.Format == response.FormatRaw {
		// A bare reply to a one-line selection is still the translation.
		if len(live) == 1 {
			return strings.TrimSpace(reply), nil
		}
		return "", &translator.Error{Kind: translator.KindMalformed, Model: res.Model, Message: "reply has no numbered lines"}
	}

	out := make([]string, len(segments))
	for i, s := range segments {
		out[i] = strings.TrimSpace(s.Content)
	}
	return strings.Join(out, "\n"), nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
