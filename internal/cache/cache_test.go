package cache

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/valpere/pagetran/internal/store"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newTestCache(t *testing.T, kv store.KV, opts Options) *Cache {
	t.Helper()
	c, err := New(context.Background(), kv, zerolog.Nop(), opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestCache_GetPut(t *testing.T) {
	c := newTestCache(t, store.NewMemory(), Options{MaxEntries: 10})

	if _, ok := c.Get("[0]Hello\n", "general"); ok {
		t.Fatal("expected miss on empty cache")
	}
	c.Put("[0]Hello\n", "general", "[0]Xin chào")

	for i := 0; i < 2; i++ {
		got, ok := c.Get("[0]Hello\n", "general")
		if !ok || got != "[0]Xin chào" {
			t.Fatalf("expected hit, got %q %v", got, ok)
		}
	}
	if _, ok := c.Get("[0]Hello\n", "technical"); ok {
		t.Error("style must be part of the key")
	}

	st := c.Stats()
	if st.Entries != 1 || st.Hits != 2 || st.Misses != 2 {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestCache_EvictsOldestInserted(t *testing.T) {
	c := newTestCache(t, store.NewMemory(), Options{MaxEntries: 2})

	c.Put("a", "", "A")
	c.Put("b", "", "B")
	c.Put("a", "", "A2") // overwrite keeps insertion position
	c.Put("c", "", "C")

	if _, ok := c.Get("a", ""); ok {
		t.Error("oldest entry should have been evicted")
	}
	if v, _ := c.Get("b", ""); v != "B" {
		t.Errorf("expected b kept, got %q", v)
	}
	if v, _ := c.Get("c", ""); v != "C" {
		t.Errorf("expected c kept, got %q", v)
	}
}

func TestCache_AgeCapDropsWholeCache(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := newTestCache(t, store.NewMemory(), Options{MaxEntries: 10, MaxAge: time.Hour, Now: clock.Now})

	c.Put("a", "", "A")
	clock.Advance(30 * time.Minute)
	c.Put("b", "", "B")
	clock.Advance(31 * time.Minute)

	if _, ok := c.Get("b", ""); ok {
		t.Error("entries must not outlive the cache age cap")
	}
	if c.Stats().Entries != 0 {
		t.Errorf("expected empty cache, got %d entries", c.Stats().Entries)
	}
}

func TestCache_FlushAndReload(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()

	c := newTestCache(t, kv, Options{MaxEntries: 10})
	c.Put("a", "news", "A")
	c.Put("b", "news", "B")
	if err := c.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	reloaded := newTestCache(t, kv, Options{MaxEntries: 10})
	if v, ok := reloaded.Get("b", "news"); !ok || v != "B" {
		t.Errorf("expected reloaded entry, got %q %v", v, ok)
	}
	if reloaded.Stats().Created.UnixMilli() != c.Stats().Created.UnixMilli() {
		t.Error("creation time must survive reload")
	}
}

func TestCache_ReconcilesPartialWrite(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()

	entries := map[string]string{Key("a", ""): "A", Key("b", ""): "B"}
	if err := store.SetJSON(ctx, kv, store.KeyTranslationCache, entries); err != nil {
		t.Fatal(err)
	}
	// Order was written by an older flush: it misses b and still names a removed key.
	if err := store.SetJSON(ctx, kv, store.KeyTranslationCacheOrder, []string{"general:gone", Key("a", "")}); err != nil {
		t.Fatal(err)
	}

	c := newTestCache(t, kv, Options{MaxEntries: 1})
	if _, ok := c.Get("a", ""); ok {
		t.Error("a was recorded first and should be evicted")
	}
	if v, ok := c.Get("b", ""); !ok || v != "B" {
		t.Errorf("expected orphan entry kept, got %q %v", v, ok)
	}
}

func TestCache_ExpiredOnLoad(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}

	c := newTestCache(t, kv, Options{MaxAge: time.Hour, Now: clock.Now})
	c.Put("a", "", "A")
	if err := c.Flush(ctx); err != nil {
		t.Fatal(err)
	}

	clock.Advance(2 * time.Hour)
	reloaded := newTestCache(t, kv, Options{MaxAge: time.Hour, Now: clock.Now})
	if reloaded.Stats().Entries != 0 {
		t.Error("expired cache must load empty")
	}
	vals, _ := kv.Get(ctx, store.KeyTranslationCache)
	if _, ok := vals[store.KeyTranslationCache]; ok {
		t.Error("expired cache must be removed from the store")
	}
}

func TestCache_DebouncedPersist(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	c := newTestCache(t, kv, Options{MaxEntries: 10, Debounce: 20 * time.Millisecond})

	c.Put("a", "", "A")
	c.Put("b", "", "B")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		vals, _ := kv.Get(ctx, store.KeyTranslationCache)
		if raw, ok := vals[store.KeyTranslationCache]; ok {
			var got map[string]string
			if err := json.Unmarshal(raw, &got); err != nil {
				t.Fatal(err)
			}
			if len(got) == 2 {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("cache was not persisted after the debounce window")
}

func TestCache_InvalidateAndClear(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	c := newTestCache(t, kv, Options{MaxEntries: 10})

	c.Put("a", "", "A")
	c.Put("b", "", "B")
	c.Invalidate("a", "")
	if _, ok := c.Get("a", ""); ok {
		t.Error("invalidated entry still present")
	}
	if err := c.Flush(ctx); err != nil {
		t.Fatal(err)
	}

	if err := c.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if c.Stats().Entries != 0 {
		t.Error("expected empty cache after Clear")
	}
	vals, _ := kv.Get(ctx, store.KeyTranslationCache, store.KeyTranslationCacheOrder)
	if len(vals) != 0 {
		t.Errorf("expected store keys removed, got %v", vals)
	}
}

func TestKey(t *testing.T) {
	if Key("x", "") != Key("x", "general") {
		t.Error("empty style should key as general")
	}
	if Key("caf\u00e9", "") != Key("cafe\u0301", "") {
		t.Error("keys must be normalization-insensitive")
	}

	head := strings.Repeat("a", 600)
	tail := strings.Repeat("z", 600)
	long1 := head + strings.Repeat("m", 100) + tail
	long2 := head + strings.Repeat("n", 100) + tail
	if Key(long1, "") != Key(long2, "") {
		t.Error("long text keys only hash the edges and length")
	}
	if Key(long1, "") == Key(long1+"!", "") {
		t.Error("length must contribute to long text keys")
	}
}
