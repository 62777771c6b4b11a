// Package cache memoizes chunk translations by content and style.
//
// The in-memory view is authoritative for the running process. Writes reach
// the durable store asynchronously, coalesced over a debounce window.
// Concurrent puts for the same key are last-write-wins.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sort"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/text/unicode/norm"

	"github.com/valpere/pagetran/internal/store"
)

const (
	// longText is the rune count above which only the ends of a chunk are hashed.
	longText  = 1000
	edgeRunes = 500
)

type Options struct {
	MaxEntries int
	MaxAge     time.Duration
	// Debounce is how long writes coalesce before persisting. Zero disables
	// background persistence; callers Flush explicitly.
	Debounce time.Duration
	Now      func() time.Time
}

type Stats struct {
	Entries int
	Created time.Time
	Age     time.Duration
	Hits    int
	Misses  int
}

type Cache struct {
	kv   store.KV
	log  zerolog.Logger
	opts Options

	mu      sync.Mutex
	entries map[string]string
	order   []string
	created time.Time
	timer   *time.Timer
	hits    int
	misses  int
}

// New loads the persisted cache from kv. Entries and insertion order are
// stored under separate keys, so a partial earlier write is reconciled here.
func New(ctx context.Context, kv store.KV, log zerolog.Logger, opts Options) (*Cache, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	c := &Cache{
		kv:      kv,
		log:     log.With().Str("component", "cache").Logger(),
		opts:    opts,
		entries: make(map[string]string),
		created: opts.Now(),
	}

	vals, err := kv.Get(ctx, store.KeyTranslationCache, store.KeyTranslationCacheOrder, store.KeyTranslationCacheTime)
	if err != nil {
		return nil, fmt.Errorf("load cache: %w", err)
	}

	if raw, ok := vals[store.KeyTranslationCache]; ok {
		if err := json.Unmarshal(raw, &c.entries); err != nil {
			c.log.Warn().Err(err).Msg("discarding unreadable cache")
			c.entries = make(map[string]string)
		}
	}
	var order []string
	if raw, ok := vals[store.KeyTranslationCacheOrder]; ok {
		_ = json.Unmarshal(raw, &order)
	}
	if raw, ok := vals[store.KeyTranslationCacheTime]; ok {
		if ms, err := strconv.ParseInt(string(raw), 10, 64); err == nil {
			c.created = time.UnixMilli(ms)
		}
	}

	c.order = reconcile(c.entries, order)
	if c.expiredLocked() {
		c.log.Info().Time("created", c.created).Msg("cache expired, starting fresh")
		c.resetLocked()
		if err := kv.Remove(ctx, store.KeyTranslationCache, store.KeyTranslationCacheOrder, store.KeyTranslationCacheTime); err != nil {
			return nil, fmt.Errorf("drop expired cache: %w", err)
		}
	}
	c.evictLocked()

	c.log.Debug().Int("entries", len(c.entries)).Msg("cache loaded")
	return c, nil
}

// reconcile drops order keys without an entry and appends entries the
// order list never recorded.
func reconcile(entries map[string]string, order []string) []string {
	seen := make(map[string]bool, len(order))
	out := make([]string, 0, len(entries))
	for _, k := range order {
		if _, ok := entries[k]; ok && !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	var orphans []string
	for k := range entries {
		if !seen[k] {
			orphans = append(orphans, k)
		}
	}
	sort.Strings(orphans)
	return append(out, orphans...)
}

// Key derives the cache key of a chunk. Text is NFC-normalized first; long
// text contributes only its leading and trailing runes plus its length.
// The hash is not collision-resistant and must not guard anything beyond
// a soft cache.
func Key(text, style string) string {
	if style == "" {
		style = "general"
	}
	text = norm.NFC.String(text)

	h := fnv.New64a()
	n := utf8.RuneCountInString(text)
	if n > longText {
		runes := []rune(text)
		h.Write([]byte(string(runes[:edgeRunes])))
		h.Write([]byte(string(runes[n-edgeRunes:])))
		h.Write([]byte(strconv.Itoa(n)))
	} else {
		h.Write([]byte(text))
	}
	return fmt.Sprintf("%s:%016x", style, h.Sum64())
}

func (c *Cache) Get(text, style string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.expiredLocked() {
		c.resetLocked()
		c.scheduleLocked()
	}
	v, ok := c.entries[Key(text, style)]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return v, ok
}

func (c *Cache) Put(text, style, translated string) {
	key := Key(text, style)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.expiredLocked() {
		c.resetLocked()
	}
	if _, ok := c.entries[key]; !ok {
		c.order = append(c.order, key)
	}
	c.entries[key] = translated
	c.evictLocked()
	c.scheduleLocked()
}

// Invalidate drops the entry of one chunk, used when its cached text fails
// validation.
func (c *Cache) Invalidate(text, style string) {
	key := Key(text, style)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok {
		return
	}
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.scheduleLocked()
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries: len(c.entries),
		Created: c.created,
		Age:     c.opts.Now().Sub(c.created),
		Hits:    c.hits,
		Misses:  c.misses,
	}
}

// Clear empties the cache and removes it from the store.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.resetLocked()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.mu.Unlock()

	return c.kv.Remove(ctx, store.KeyTranslationCache, store.KeyTranslationCacheOrder, store.KeyTranslationCacheTime)
}

// Flush persists the current state immediately.
func (c *Cache) Flush(ctx context.Context) error {
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	entries, err := json.Marshal(c.entries)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("marshal cache: %w", err)
	}
	order, err := json.Marshal(c.order)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("marshal cache order: %w", err)
	}
	created := strconv.FormatInt(c.created.UnixMilli(), 10)
	c.mu.Unlock()

	return c.kv.Set(ctx, map[string][]byte{
		store.KeyTranslationCache:      entries,
		store.KeyTranslationCacheOrder: order,
		store.KeyTranslationCacheTime:  []byte(created),
	})
}

// Close persists any pending writes.
func (c *Cache) Close(ctx context.Context) error {
	return c.Flush(ctx)
}

func (c *Cache) scheduleLocked() {
	if c.opts.Debounce <= 0 || c.timer != nil {
		return
	}
	c.timer = time.AfterFunc(c.opts.Debounce, c.persist)
}

func (c *Cache) persist() {
	if err := c.Flush(context.Background()); err != nil {
		c.log.Warn().Err(err).Msg("failed to persist cache")
	}
}

func (c *Cache) expiredLocked() bool {
	return c.opts.MaxAge > 0 && c.opts.Now().Sub(c.created) > c.opts.MaxAge
}

func (c *Cache) resetLocked() {
	c.entries = make(map[string]string)
	c.order = nil
	c.created = c.opts.Now()
}

func (c *Cache) evictLocked() {
	if c.opts.MaxEntries <= 0 {
		return
	}
	for len(c.order) > c.opts.MaxEntries {
		delete(c.entries, c.order[0])
		c.order = c.order[1:]
	}
}
