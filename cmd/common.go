/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/valpere/pagetran/internal/cache"
	"github.com/valpere/pagetran/internal/chunker"
	"github.com/valpere/pagetran/internal/config"
	"github.com/valpere/pagetran/internal/gemini"
	"github.com/valpere/pagetran/internal/orchestrator"
	"github.com/valpere/pagetran/internal/profile"
	"github.com/valpere/pagetran/internal/safety"
	"github.com/valpere/pagetran/internal/store"
	"github.com/valpere/pagetran/internal/translator"
	"github.com/valpere/pagetran/internal/validator"
)

// services holds everything a command may need, built from one config.
type services struct {
	cfg      *config.Config
	log      zerolog.Logger
	db       *store.Store
	prefs    *store.Preferences
	client   *gemini.Client
	router   *translator.Router
	safety   *safety.Filter
	profiles *profile.Manager
	cache    *cache.Cache
}

// openServices opens the database and wires the translation stack. The API
// key is only checked when a request is actually sent.
func openServices(ctx context.Context) (*services, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}

	db, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &services{
		cfg:    cfg,
		log:    log,
		db:     db,
		prefs:  store.NewPreferences(db),
		safety: safety.New(db, log, cfg.Safety.BlockAfter),
	}

	burst := int(cfg.RequestsPerSec)
	s.client = gemini.New(cfg.BaseURL, gemini.WithRateLimit(cfg.RequestsPerSec, burst))

	var (
		backend translator.Backend
		models  = cfg.Models
	)
	switch cfg.Backend {
	case "cloud":
		backend = translator.NewCloudBackend(cfg.Credentials)
		models = translator.CloudModels
	case "ollama":
		backend = translator.NewOllamaBackend(cfg.OllamaURL, cfg.Temperature)
		models = cfg.OllamaModels
	default:
		backend = translator.NewGeminiBackend(s.client, cfg.Temperature, cfg.MaxOutputTokens)
	}
	s.router = translator.NewRouter(backend, models,
		translator.WithPreferences(s.prefs),
		translator.WithSafety(s.safety),
		translator.WithQuotaWaitCap(cfg.QuotaWaitCap),
		translator.WithLogger(log),
	)

	if cfg.Profile.Enabled {
		analyzer := profile.NewGeminiAnalyzer(s.client, cfg.APIKey, cfg.Profile.Model)
		s.profiles = profile.NewManager(db, analyzer, log, profile.Options{
			MaxAge:     cfg.Profile.MaxAge,
			MaxDomains: cfg.Profile.MaxDomains,
			Timeout:    cfg.Profile.Timeout,
		})
	}

	if cfg.Cache.Enabled {
		s.cache, err = cache.New(ctx, db, log, cache.Options{
			MaxEntries: cfg.Cache.MaxEntries,
			MaxAge:     cfg.Cache.MaxAge,
			Debounce:   cfg.Cache.Debounce,
		})
		if err != nil {
			db.Close()
			return nil, err
		}
	}

	return s, nil
}

// orchestrator builds the page orchestrator over the wired services.
func (s *services) orchestrator() *orchestrator.Orchestrator {
	cfg := s.cfg
	opts := []orchestrator.Option{
		orchestrator.WithValidator(validator.New()),
		orchestrator.WithStylePreferences(s.prefs),
		orchestrator.WithSafety(s.safety),
		orchestrator.WithLogger(s.log),
	}
	if s.cache != nil {
		opts = append(opts, orchestrator.WithCache(s.cache))
	}
	if s.profiles != nil {
		opts = append(opts, orchestrator.WithProfiles(s.profiles))
	}

	return orchestrator.New(s.router, orchestrator.Config{
		APIKey:      cfg.APIKey,
		Concurrency: cfg.Concurrency,
		Chunking: chunker.Options{
			MaxChunkSize:     cfg.MaxChunkSize,
			MinChunks:        cfg.MinChunks,
			BalanceThreshold: cfg.BalanceThreshold,
			MinSegmentLength: cfg.MinSegmentLength,
		},
		ValidationRetries: cfg.ValidationRetries,
		NetworkRetries:    cfg.NetworkRetries,
		RetryBaseDelay:    cfg.RetryBaseDelay,
		LazyIdleFlush:     cfg.Lazy.IdleFlush,
		StyleOverride:     cfg.StyleOverride,
	}, opts...)
}

// Close persists pending cache writes and closes the database.
func (s *services) Close() {
	if s.cache != nil {
		if err := s.cache.Close(context.Background()); err != nil {
			s.log.Warn().Err(err).Msg("failed to persist cache")
		}
	}
	if err := s.db.Close(); err != nil {
		s.log.Warn().Err(err).Msg("failed to close database")
	}
}

// requireProfiles fails commands that need domain profiles when they are disabled.
func (s *services) requireProfiles() error {
	if s.profiles == nil {
		return fmt.Errorf("domain profiles are disabled (profile.enabled=false)")
	}
	return nil
}
