// Package store provides the durable key-value storage used for the
// translation cache, domain profiles, preferences and content-filter state.
//
// Values are opaque JSON documents. Multi-key writes are not transactional
// across keys from the caller's point of view; readers must tolerate a
// subset of keys having been written before a crash.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Well-known keys.
const (
	KeyTranslationCache      = "translationCache"
	KeyTranslationCacheOrder = "translationCacheOrder"
	KeyTranslationCacheTime  = "translationCacheTimestamp"
	KeyDomainProfiles        = "domainStyleProfiles"
	KeyPreferredModel        = "preferredModel"
	KeyStyleOverride         = "textStyleOverride"
	KeyContentFilter         = "contentFilterState"
)

// KV is the asynchronous get/set/remove contract of the durable store.
type KV interface {
	Get(ctx context.Context, keys ...string) (map[string][]byte, error)
	Set(ctx context.Context, values map[string][]byte) error
	Remove(ctx context.Context, keys ...string) error
}

// Store is a SQLite-backed KV.
type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) Get(ctx context.Context, keys ...string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]interface{}, len(keys))
	for i, k := range keys {
		args[i] = k
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM kv WHERE key IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var k string
		var v []byte
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

// Set writes each key independently; a failure part way leaves earlier keys written.
func (s *Store) Set(ctx context.Context, values map[string][]byte) error {
	now := time.Now()
	for k, v := range values {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			k, v, now)
		if err != nil {
			return fmt.Errorf("set %s: %w", k, err)
		}
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, k); err != nil {
			return fmt.Errorf("remove %s: %w", k, err)
		}
	}
	return nil
}

// Keys lists every stored key.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM kv ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Memory is an in-process KV, used when persistence is disabled and in tests.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, keys ...string) (map[string][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		if v, ok := m.data[k]; ok {
			out[k] = append([]byte(nil), v...)
		}
	}
	return out, nil
}

func (m *Memory) Set(_ context.Context, values map[string][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range values {
		m.data[k] = append([]byte(nil), v...)
	}
	return nil
}

func (m *Memory) Remove(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

// GetJSON decodes the value stored under key into v. It reports false when
// the key is absent.
func GetJSON(ctx context.Context, kv KV, key string, v interface{}) (bool, error) {
	values, err := kv.Get(ctx, key)
	if err != nil {
		return false, err
	}
	raw, ok := values[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, kv KV, key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return kv.Set(ctx, map[string][]byte{key: raw})
}

// Preferences exposes the small scalar settings kept in the store.
type Preferences struct {
	kv KV
}

func NewPreferences(kv KV) *Preferences {
	return &Preferences{kv: kv}
}

func (p *Preferences) PreferredModel(ctx context.Context) (string, error) {
	var model string
	if _, err := GetJSON(ctx, p.kv, KeyPreferredModel, &model); err != nil {
		return "", err
	}
	return model, nil
}

func (p *Preferences) SetPreferredModel(ctx context.Context, model string) error {
	return SetJSON(ctx, p.kv, KeyPreferredModel, model)
}

func (p *Preferences) StyleOverride(ctx context.Context) (string, error) {
	var style string
	if _, err := GetJSON(ctx, p.kv, KeyStyleOverride, &style); err != nil {
		return "", err
	}
	return style, nil
}

func (p *Preferences) SetStyleOverride(ctx context.Context, style string) error {
	if style == "" || style == "auto" {
		return p.kv.Remove(ctx, KeyStyleOverride)
	}
	return SetJSON(ctx, p.kv, KeyStyleOverride, style)
}
