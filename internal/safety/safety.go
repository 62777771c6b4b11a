// Package safety keeps the per-domain content-filter strikes that escalate
// repeated safety blocks into a permanent domain block.
package safety

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/valpere/pagetran/internal"
	"github.com/valpere/pagetran/internal/store"
)

// DefaultBlockAfter is the strike count that blocks a domain.
const DefaultBlockAfter = 2

type Warning struct {
	Count  int       `json:"count"`
	LastAt time.Time `json:"last_at"`
}

// State is the persisted filter document.
type State struct {
	Warnings map[string]Warning   `json:"warnings"`
	Blocked  map[string]time.Time `json:"blocked"`
	Allowed  []string             `json:"allowed"`
}

func newState() State {
	return State{
		Warnings: make(map[string]Warning),
		Blocked:  make(map[string]time.Time),
	}
}

func (s State) allowed(domain string) bool {
	for _, d := range s.Allowed {
		if d == domain {
			return true
		}
	}
	return false
}

func (s State) clone() State {
	out := newState()
	for k, v := range s.Warnings {
		out.Warnings[k] = v
	}
	for k, v := range s.Blocked {
		out.Blocked[k] = v
	}
	out.Allowed = append([]string(nil), s.Allowed...)
	return out
}

// Filter applies the strike policy. It is safe for concurrent use.
type Filter struct {
	kv         store.KV
	log        zerolog.Logger
	blockAfter int
	now        func() time.Time

	mu     sync.Mutex
	state  State
	loaded bool
}

func New(kv store.KV, log zerolog.Logger, blockAfter int) *Filter {
	if blockAfter <= 0 {
		blockAfter = DefaultBlockAfter
	}
	return &Filter{
		kv:         kv,
		log:        log.With().Str("component", "safety").Logger(),
		blockAfter: blockAfter,
		now:        time.Now,
		state:      newState(),
	}
}

func (f *Filter) loadLocked(ctx context.Context) error {
	if f.loaded {
		return nil
	}
	st := newState()
	if _, err := store.GetJSON(ctx, f.kv, store.KeyContentFilter, &st); err != nil {
		return fmt.Errorf("load content filter: %w", err)
	}
	if st.Warnings == nil {
		st.Warnings = make(map[string]Warning)
	}
	if st.Blocked == nil {
		st.Blocked = make(map[string]time.Time)
	}
	f.state = st
	f.loaded = true
	return nil
}

func (f *Filter) saveLocked(ctx context.Context) error {
	return store.SetJSON(ctx, f.kv, store.KeyContentFilter, f.state)
}

// RecordBlock counts one safety block for the domain of rawURL. It reports
// true once the domain has reached the strike limit and is now blocked.
// Allowed domains collect warnings but are never blocked.
func (f *Filter) RecordBlock(ctx context.Context, rawURL string) (bool, error) {
	domain := internal.RegistrableDomain(rawURL)
	if domain == "" {
		return false, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.loadLocked(ctx); err != nil {
		return false, err
	}

	w := f.state.Warnings[domain]
	w.Count++
	w.LastAt = f.now()
	f.state.Warnings[domain] = w

	permanent := w.Count >= f.blockAfter && !f.state.allowed(domain)
	if permanent {
		if _, ok := f.state.Blocked[domain]; !ok {
			f.state.Blocked[domain] = w.LastAt
		}
		f.log.Warn().Str("domain", domain).Int("strikes", w.Count).Msg("domain blocked")
	} else {
		f.log.Info().Str("domain", domain).Int("strikes", w.Count).Msg("safety warning recorded")
	}

	return permanent, f.saveLocked(ctx)
}

func (f *Filter) IsBlocked(ctx context.Context, rawURL string) (bool, error) {
	domain := internal.RegistrableDomain(rawURL)
	if domain == "" {
		return false, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.loadLocked(ctx); err != nil {
		return false, err
	}
	_, blocked := f.state.Blocked[domain]
	return blocked, nil
}

// Allow exempts a domain from blocking and lifts any existing block.
func (f *Filter) Allow(ctx context.Context, rawURL string) error {
	domain := internal.RegistrableDomain(rawURL)
	if domain == "" {
		return fmt.Errorf("invalid domain %q", rawURL)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.loadLocked(ctx); err != nil {
		return err
	}
	delete(f.state.Blocked, domain)
	delete(f.state.Warnings, domain)
	if !f.state.allowed(domain) {
		f.state.Allowed = append(f.state.Allowed, domain)
		sort.Strings(f.state.Allowed)
	}
	return f.saveLocked(ctx)
}

// Unblock lifts a block and resets the domain's strikes.
func (f *Filter) Unblock(ctx context.Context, rawURL string) error {
	domain := internal.RegistrableDomain(rawURL)
	if domain == "" {
		return fmt.Errorf("invalid domain %q", rawURL)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.loadLocked(ctx); err != nil {
		return err
	}
	delete(f.state.Blocked, domain)
	delete(f.state.Warnings, domain)
	return f.saveLocked(ctx)
}

// State returns a copy of the current filter state.
func (f *Filter) State(ctx context.Context) (State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.loadLocked(ctx); err != nil {
		return State{}, err
	}
	return f.state.clone(), nil
}
