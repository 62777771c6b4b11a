// Package profile learns and caches per-domain translation context: what kind
// of site a domain is, how it should be translated, and what users taught it.
package profile

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/valpere/pagetran/internal"
	"github.com/valpere/pagetran/internal/store"
)

const (
	DefaultMaxAge     = 7 * 24 * time.Hour
	DefaultMaxDomains = 50
	DefaultTimeout    = 20 * time.Second

	maxVocabulary    = 200
	maxVisitedURLs   = 20
	instructionTerms = 10

	fallbackGuidelines = "Dịch tự nhiên, giữ nguyên ý nghĩa gốc"
)

type Feedback struct {
	Type    string    `json:"type"`
	Comment string    `json:"comment,omitempty"`
	At      time.Time `json:"at"`
}

type UserFeedback struct {
	Positive int       `json:"positive"`
	Negative int       `json:"negative"`
	Last     *Feedback `json:"last,omitempty"`
}

func (f UserFeedback) Score() int {
	return f.Positive - f.Negative
}

type Profile struct {
	Domain                string    `json:"domain"`
	WebsiteType           string    `json:"websiteType"`
	ContentTone           string    `json:"contentTone"`
	Audience              string    `json:"audience"`
	Themes                []string  `json:"themes"`
	TranslationGuidelines string    `json:"translationGuidelines"`
	ExamplePhrases        []string  `json:"examplePhrases,omitempty"`
	AnalyzedAt            time.Time `json:"analyzedAt"`
	SampleURL             string    `json:"sampleUrl"`
	UsageCount            int       `json:"usageCount"`
	IsFallback            bool      `json:"isFallback,omitempty"`

	LearnedVocabulary map[string]string `json:"learnedVocabulary"`
	// VocabularyOrder keeps learned terms in the order they were learned.
	VocabularyOrder   []string          `json:"vocabularyOrder"`
	UserFeedback      UserFeedback      `json:"userFeedback"`
	VisitedURLs       []string          `json:"visitedUrls"`
	RefinedGuidelines string            `json:"refinedGuidelines"`
	LastUpdated       time.Time         `json:"lastUpdated"`
}

func newProfile(domain, url string, now time.Time) *Profile {
	return &Profile{
		Domain:            domain,
		AnalyzedAt:        now,
		SampleURL:         url,
		LearnedVocabulary: make(map[string]string),
		VisitedURLs:       []string{url},
		LastUpdated:       now,
	}
}

// Fallback is the neutral profile used when classification fails. It
// renders no instruction.
func Fallback(domain, url string, now time.Time) *Profile {
	p := newProfile(domain, url, now)
	p.WebsiteType = "general"
	p.ContentTone = "neutral"
	p.Audience = "general"
	p.TranslationGuidelines = fallbackGuidelines
	p.IsFallback = true
	return p
}

func fromAnalysis(domain, url string, a *Analysis, now time.Time) *Profile {
	p := newProfile(domain, url, now)
	p.WebsiteType = orDefault(a.WebsiteType, "general")
	p.ContentTone = orDefault(a.ContentTone, "neutral")
	p.Audience = orDefault(a.Audience, "general")
	p.Themes = a.Themes
	p.TranslationGuidelines = a.TranslationGuidelines
	p.ExamplePhrases = a.ExamplePhrases
	return p
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

// Instruction renders the prompt preamble for a profile. Fallback and nil
// profiles render nothing.
func Instruction(p *Profile) string {
	if p == nil || p.IsFallback {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Website Context: " + p.WebsiteType)
	if p.ContentTone != "" {
		sb.WriteString(", tone: " + p.ContentTone)
	}
	if p.TranslationGuidelines != "" {
		sb.WriteString("\nTranslation Guidelines: " + p.TranslationGuidelines)
	}
	if p.RefinedGuidelines != "" {
		sb.WriteString("\nUser Preferences: " + p.RefinedGuidelines)
	}
	if len(p.Themes) > 0 {
		sb.WriteString("\nCommon Themes: " + strings.Join(p.Themes, ", "))
	}

	var hints []string
	for _, term := range p.VocabularyOrder {
		if len(hints) == instructionTerms {
			break
		}
		if tr, ok := p.LearnedVocabulary[term]; ok {
			hints = append(hints, fmt.Sprintf("%q → %q", term, tr))
		}
	}
	if len(hints) > 0 {
		sb.WriteString("\nLearned Terms: " + strings.Join(hints, ", "))
	}

	switch score := p.UserFeedback.Score(); {
	case score < -2:
		sb.WriteString("\nNote: Users have reported quality issues. Please translate more carefully.")
	case score > 5:
		sb.WriteString("\nNote: Current translation style is well-received. Maintain this quality.")
	}

	sb.WriteString("\n")
	return sb.String()
}

type Options struct {
	MaxAge     time.Duration
	MaxDomains int
	// Timeout bounds a single classification call.
	Timeout time.Duration
	Now     func() time.Time
}

// Manager owns the persisted domain profile map.
type Manager struct {
	kv       store.KV
	analyzer Analyzer
	log      zerolog.Logger
	opts     Options

	mu sync.Mutex
}

// NewManager returns a manager. A nil analyzer makes every unknown domain
// resolve to the fallback profile.
func NewManager(kv store.KV, analyzer Analyzer, log zerolog.Logger, opts Options) *Manager {
	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultMaxAge
	}
	if opts.MaxDomains <= 0 {
		opts.MaxDomains = DefaultMaxDomains
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		kv:       kv,
		analyzer: analyzer,
		log:      log.With().Str("component", "profile").Logger(),
		opts:     opts,
	}
}

func (m *Manager) load(ctx context.Context) (map[string]*Profile, error) {
	profiles := make(map[string]*Profile)
	if _, err := store.GetJSON(ctx, m.kv, store.KeyDomainProfiles, &profiles); err != nil {
		return nil, err
	}
	for _, p := range profiles {
		if p.LearnedVocabulary == nil {
			p.LearnedVocabulary = make(map[string]string)
		}
	}
	return profiles, nil
}

func (m *Manager) save(ctx context.Context, profiles map[string]*Profile, keep string) error {
	if len(profiles) > m.opts.MaxDomains {
		m.trim(profiles, keep)
	}
	return store.SetJSON(ctx, m.kv, store.KeyDomainProfiles, profiles)
}

// trim keeps the most used domains. The domain being saved is never evicted.
func (m *Manager) trim(profiles map[string]*Profile, keep string) {
	domains := make([]string, 0, len(profiles))
	for d := range profiles {
		if d != keep {
			domains = append(domains, d)
		}
	}
	sort.Strings(domains)
	sort.SliceStable(domains, func(i, j int) bool {
		return profiles[domains[i]].UsageCount > profiles[domains[j]].UsageCount
	})

	limit := m.opts.MaxDomains
	if _, ok := profiles[keep]; ok {
		limit--
	}
	for _, d := range domains[min(limit, len(domains)):] {
		delete(profiles, d)
	}
	m.log.Debug().Int("kept", len(profiles)).Msg("trimmed domain profiles")
}

// Get returns the profile for the domain of rawURL, classifying the domain
// when no fresh profile is cached. Classification failures resolve to the
// fallback profile; Get returns nil only for URLs without a domain or when
// the store is unreadable.
func (m *Manager) Get(ctx context.Context, rawURL string) *Profile {
	domain := internal.RegistrableDomain(rawURL)
	if domain == "" {
		return nil
	}
	log := m.log.With().Str("domain", domain).Logger()

	m.mu.Lock()
	profiles, err := m.load(ctx)
	if err != nil {
		m.mu.Unlock()
		log.Warn().Err(err).Msg("failed to load domain profiles")
		return nil
	}
	if p, ok := profiles[domain]; ok && m.opts.Now().Sub(p.AnalyzedAt) < m.opts.MaxAge {
		p.UsageCount++
		if err := m.save(ctx, profiles, domain); err != nil {
			log.Warn().Err(err).Msg("failed to save usage count")
		}
		m.mu.Unlock()
		log.Debug().Str("type", p.WebsiteType).Msg("using cached domain profile")
		return p
	}
	m.mu.Unlock()

	p := m.analyze(ctx, domain, rawURL)

	m.mu.Lock()
	defer m.mu.Unlock()
	profiles, err = m.load(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("failed to reload domain profiles")
		return p
	}
	if prev, ok := profiles[domain]; ok {
		// Learned state outlives re-classification.
		p.UsageCount = prev.UsageCount
		p.LearnedVocabulary = prev.LearnedVocabulary
		p.VocabularyOrder = prev.VocabularyOrder
		p.UserFeedback = prev.UserFeedback
		p.RefinedGuidelines = prev.RefinedGuidelines
		p.VisitedURLs = appendURL(prev.VisitedURLs, rawURL)
	}
	profiles[domain] = p
	if err := m.save(ctx, profiles, domain); err != nil {
		log.Warn().Err(err).Msg("failed to save domain profile")
	}
	return p
}

func (m *Manager) analyze(ctx context.Context, domain, url string) *Profile {
	now := m.opts.Now()
	if m.analyzer == nil {
		return Fallback(domain, url, now)
	}

	ctx, cancel := context.WithTimeout(ctx, m.opts.Timeout)
	defer cancel()

	a, err := m.analyzer.Analyze(ctx, domain, url)
	if err != nil {
		m.log.Warn().Err(err).Str("domain", domain).Msg("domain analysis failed, using fallback")
		return Fallback(domain, url, now)
	}
	m.log.Info().Str("domain", domain).Str("type", a.WebsiteType).Msg("domain analyzed")
	return fromAnalysis(domain, url, a, now)
}

// update applies fn to an existing profile and saves it when fn reports a
// change. Unknown domains are a no-op.
func (m *Manager) update(ctx context.Context, rawURL string, fn func(p *Profile) bool) error {
	domain := internal.RegistrableDomain(rawURL)
	if domain == "" {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	profiles, err := m.load(ctx)
	if err != nil {
		return err
	}
	p, ok := profiles[domain]
	if !ok || !fn(p) {
		return nil
	}
	p.LastUpdated = m.opts.Now()
	return m.save(ctx, profiles, domain)
}

// LearnVocabulary merges translation pairs into the domain's vocabulary and
// returns how many terms were added.
func (m *Manager) LearnVocabulary(ctx context.Context, rawURL string, pairs map[string]string) (int, error) {
	if len(pairs) == 0 {
		return 0, nil
	}
	originals := make([]string, 0, len(pairs))
	for o := range pairs {
		originals = append(originals, o)
	}
	sort.Strings(originals)

	added := 0
	err := m.update(ctx, rawURL, func(p *Profile) bool {
		for _, original := range originals {
			translated := pairs[original]
			if !learnable(original, translated) {
				continue
			}
			key := strings.ToLower(original)
			if _, ok := p.LearnedVocabulary[key]; !ok {
				if len(p.LearnedVocabulary) >= maxVocabulary {
					continue
				}
				p.VocabularyOrder = append(p.VocabularyOrder, key)
			}
			p.LearnedVocabulary[key] = translated
			added++
		}
		return added > 0
	})
	return added, err
}

func learnable(original, translated string) bool {
	if utf8.RuneCountInString(original) < 3 || utf8.RuneCountInString(translated) < 2 {
		return false
	}
	return strings.IndexFunc(original, unicode.IsLetter) >= 0
}

// Vocabulary returns the learned terms of a domain.
func (m *Manager) Vocabulary(ctx context.Context, rawURL string) (map[string]string, error) {
	domain := internal.RegistrableDomain(rawURL)

	m.mu.Lock()
	defer m.mu.Unlock()
	profiles, err := m.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string)
	if p, ok := profiles[domain]; ok {
		for k, v := range p.LearnedVocabulary {
			out[k] = v
		}
	}
	return out, nil
}

var (
	capitalizedRe = regexp.MustCompile(`\b([A-Z][a-z]{2,}(?:\s+[A-Z][a-z]+)*)\b`)
	wordRe        = regexp.MustCompile(`\p{L}+`)
)

// ExtractVocabularyPairs pairs capitalized source terms with target words
// carrying non-ASCII letters, by position. It is a rough heuristic.
func ExtractVocabularyPairs(original, translated string) map[string]string {
	pairs := make(map[string]string)
	terms := capitalizedRe.FindAllString(original, -1)

	var targets []string
	for _, w := range wordRe.FindAllString(translated, -1) {
		if utf8.RuneCountInString(w) >= 2 && strings.IndexFunc(w, isAccented) >= 0 {
			targets = append(targets, w)
		}
	}

	for i, term := range terms {
		if i == 10 {
			break
		}
		if i < len(targets) && len(term) >= 3 {
			pairs[term] = targets[i]
		}
	}
	return pairs
}

func isAccented(r rune) bool {
	return (r >= 0x00C0 && r <= 0x1EF9) || (r >= 0x4E00 && r <= 0x9FFF)
}

func (m *Manager) RecordFeedback(ctx context.Context, rawURL string, positive bool, comment string) error {
	return m.update(ctx, rawURL, func(p *Profile) bool {
		kind := "negative"
		if positive {
			p.UserFeedback.Positive++
			kind = "positive"
		} else {
			p.UserFeedback.Negative++
		}
		p.UserFeedback.Last = &Feedback{Type: kind, Comment: comment, At: m.opts.Now()}
		m.log.Info().Str("domain", p.Domain).Int("score", p.UserFeedback.Score()).Msg("feedback recorded")
		return true
	})
}

func (m *Manager) TrackVisitedURL(ctx context.Context, rawURL string) error {
	return m.update(ctx, rawURL, func(p *Profile) bool {
		for _, u := range p.VisitedURLs {
			if u == rawURL {
				return false
			}
		}
		p.VisitedURLs = appendURL(p.VisitedURLs, rawURL)
		return true
	})
}

func appendURL(urls []string, url string) []string {
	for _, u := range urls {
		if u == url {
			return urls
		}
	}
	urls = append(urls, url)
	if len(urls) > maxVisitedURLs {
		urls = urls[len(urls)-maxVisitedURLs:]
	}
	return urls
}

func (m *Manager) UpdateRefinedGuidelines(ctx context.Context, rawURL, guidelines string) error {
	if strings.TrimSpace(guidelines) == "" {
		return nil
	}
	return m.update(ctx, rawURL, func(p *Profile) bool {
		p.RefinedGuidelines = guidelines
		return true
	})
}

type DomainStats struct {
	Domain        string
	Type          string
	UsageCount    int
	VocabCount    int
	FeedbackScore int
	AgeDays       int
}

type Stats struct {
	TotalDomains int
	TotalUsage   int
	Domains      []DomainStats
}

func (m *Manager) Stats(ctx context.Context) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	profiles, err := m.load(ctx)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{TotalDomains: len(profiles)}
	now := m.opts.Now()
	for d, p := range profiles {
		st.TotalUsage += p.UsageCount
		st.Domains = append(st.Domains, DomainStats{
			Domain:        d,
			Type:          p.WebsiteType,
			UsageCount:    p.UsageCount,
			VocabCount:    len(p.LearnedVocabulary),
			FeedbackScore: p.UserFeedback.Score(),
			AgeDays:       int(now.Sub(p.AnalyzedAt) / (24 * time.Hour)),
		})
	}
	sort.Slice(st.Domains, func(i, j int) bool { return st.Domains[i].Domain < st.Domains[j].Domain })
	return st, nil
}

func (m *Manager) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.kv.Remove(ctx, store.KeyDomainProfiles)
}
