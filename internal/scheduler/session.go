// Package scheduler drives the chunks of one translation pass to completion
// under a session that can be paused, resumed and aborted.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/valpere/pagetran/internal"
)

type State int

const (
	StateIdle State = iota
	StateRunning
	StatePaused
	StateCompleted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

type Progress struct {
	Completed int
	Failed    int
	Total     int
}

// Session holds the control state of one translation pass. Independent
// sessions share nothing.
type Session struct {
	ID  string
	log zerolog.Logger

	mu         sync.Mutex
	state      State
	paused     bool
	resumed    chan struct{}
	aborted    bool
	err        error
	progress   Progress
	onProgress func(Progress)
}

func NewSession(log zerolog.Logger) *Session {
	id := uuid.NewString()
	return &Session{
		ID:  id,
		log: log.With().Str("session", id).Logger(),
	}
}

// OnProgress registers a callback invoked after every settled chunk.
func (s *Session) OnProgress(fn func(Progress)) {
	s.mu.Lock()
	s.onProgress = fn
	s.mu.Unlock()
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

// Pause stops new dispatches and parks backoff sleeps until Resume.
func (s *Session) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused || s.aborted {
		return
	}
	s.paused = true
	s.resumed = make(chan struct{})
	if s.state == StateRunning {
		s.state = StatePaused
	}
	s.log.Info().Msg("session paused")
}

func (s *Session) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.paused {
		return
	}
	s.paused = false
	close(s.resumed)
	if s.state == StatePaused {
		s.state = StateRunning
	}
	s.log.Info().Msg("session resumed")
}

// Toggle flips between paused and running and reports whether the session
// is now paused.
func (s *Session) Toggle() bool {
	s.mu.Lock()
	paused := s.paused
	s.mu.Unlock()
	if paused {
		s.Resume()
		return false
	}
	s.Pause()
	return true
}

func (s *Session) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// WaitIfPaused blocks while the session is paused.
func (s *Session) WaitIfPaused(ctx context.Context) error {
	for {
		s.mu.Lock()
		if !s.paused || s.aborted {
			s.mu.Unlock()
			return ctx.Err()
		}
		ch := s.resumed
		s.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Sleep waits for d and then for any pause to end.
func (s *Session) Sleep(ctx context.Context, d time.Duration) error {
	if d > 0 {
		t := time.NewTimer(d)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
	return s.WaitIfPaused(ctx)
}

// Abort stops further dispatch. The first error is kept.
func (s *Session) Abort(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.aborted {
		return
	}
	s.aborted = true
	s.err = err
	if s.paused {
		s.paused = false
		close(s.resumed)
	}
	s.state = StateAborted
	s.log.Error().Err(err).Msg("session aborted")
}

func (s *Session) Aborted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aborted
}

// Err returns the error that aborted the session.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) start(total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = Progress{Total: total}
	if s.aborted {
		return
	}
	if s.paused {
		s.state = StatePaused
	} else {
		s.state = StateRunning
	}
}

// settle records the outcome of a chunk and returns the updated progress.
func (s *Session) settle(c *internal.Chunk, err error) Progress {
	s.mu.Lock()
	if err != nil {
		c.Status = internal.ChunkFailed
		c.Err = err
		s.progress.Failed++
	} else {
		c.Status = internal.ChunkCompleted
		s.progress.Completed++
	}
	p := s.progress
	fn := s.onProgress
	s.mu.Unlock()

	if fn != nil {
		fn(p)
	}
	return p
}

func (s *Session) finish() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.aborted {
		s.state = StateAborted
		return s.err
	}
	s.state = StateCompleted
	return nil
}
