package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/valpere/pagetran/internal"
	"github.com/valpere/pagetran/internal/chunker"
)

var errFatal = errors.New("fatal")

func isFatal(err error) bool { return errors.Is(err, errFatal) }

func makeChunks(n int) []*internal.Chunk {
	chunks := make([]*internal.Chunk, n)
	for i := range chunks {
		chunks[i] = internal.NewChunk(i, []*internal.Segment{{ID: i, Trimmed: fmt.Sprintf("seg %d", i)}})
	}
	return chunks
}

func TestRunPool_RespectsConcurrency(t *testing.T) {
	s := NewSession(zerolog.Nop())
	chunks := makeChunks(20)

	var active, peak atomic.Int32
	err := RunPool(context.Background(), s, chunks, Options{Concurrency: 3}, func(ctx context.Context, c *internal.Chunk) error {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		active.Add(-1)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if peak.Load() > 3 {
		t.Errorf("expected at most 3 in flight, saw %d", peak.Load())
	}
	if s.State() != StateCompleted {
		t.Errorf("expected completed, got %s", s.State())
	}
	if p := s.Progress(); p.Completed != 20 || p.Total != 20 {
		t.Errorf("unexpected progress %+v", p)
	}
	for _, c := range chunks {
		if c.Status != internal.ChunkCompleted {
			t.Errorf("chunk %d status %s", c.Index, c.Status)
		}
	}
}

func TestRunPool_FatalStopsDispatch(t *testing.T) {
	s := NewSession(zerolog.Nop())
	chunks := makeChunks(50)

	var started atomic.Int32
	err := RunPool(context.Background(), s, chunks, Options{Concurrency: 2, Fatal: isFatal}, func(ctx context.Context, c *internal.Chunk) error {
		started.Add(1)
		if c.Index == 1 {
			return fmt.Errorf("chunk %d: %w", c.Index, errFatal)
		}
		time.Sleep(2 * time.Millisecond)
		return nil
	})
	if !errors.Is(err, errFatal) {
		t.Fatalf("expected fatal error, got %v", err)
	}
	if !errors.Is(s.Err(), errFatal) {
		t.Errorf("session must carry the fatal error, got %v", s.Err())
	}
	if s.State() != StateAborted {
		t.Errorf("expected aborted, got %s", s.State())
	}
	if n := started.Load(); n >= 50 {
		t.Errorf("dispatch must stop after a fatal error, %d chunks started", n)
	}
}

func TestRunPool_ContainedErrors(t *testing.T) {
	s := NewSession(zerolog.Nop())
	chunks := makeChunks(4)

	err := RunPool(context.Background(), s, chunks, Options{Concurrency: 2, Fatal: isFatal}, func(ctx context.Context, c *internal.Chunk) error {
		if c.Index == 2 {
			return errors.New("soft")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("contained errors must not fail the session: %v", err)
	}
	if chunks[2].Status != internal.ChunkFailed || chunks[2].Err == nil {
		t.Errorf("expected chunk 2 failed, got %s", chunks[2].Status)
	}
	if p := s.Progress(); p.Completed != 3 || p.Failed != 1 {
		t.Errorf("unexpected progress %+v", p)
	}
}

func TestRunPool_PauseResume(t *testing.T) {
	s := NewSession(zerolog.Nop())
	chunks := makeChunks(6)

	var mu sync.Mutex
	var order []int
	first := make(chan struct{})
	var once sync.Once

	s.Pause()
	go func() {
		time.Sleep(30 * time.Millisecond)
		mu.Lock()
		n := len(order)
		mu.Unlock()
		if n != 0 {
			t.Errorf("no chunk may start while paused, %d started", n)
		}
		s.Resume()
	}()

	err := RunPool(context.Background(), s, chunks, Options{Concurrency: 1}, func(ctx context.Context, c *internal.Chunk) error {
		mu.Lock()
		order = append(order, c.Index)
		mu.Unlock()
		once.Do(func() { close(first) })
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	<-first
	if len(order) != 6 {
		t.Errorf("expected all chunks after resume, got %v", order)
	}
}

func TestSession_SleepHonorsPause(t *testing.T) {
	s := NewSession(zerolog.Nop())
	s.start(1)
	s.Pause()

	done := make(chan error, 1)
	go func() { done <- s.Sleep(context.Background(), time.Millisecond) }()

	select {
	case <-done:
		t.Fatal("sleep must not return while paused")
	case <-time.After(30 * time.Millisecond):
	}
	if s.State() != StatePaused {
		t.Errorf("expected paused, got %s", s.State())
	}

	s.Resume()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("unexpected error %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("sleep did not return after resume")
	}
}

func TestSession_Toggle(t *testing.T) {
	s := NewSession(zerolog.Nop())
	if !s.Toggle() || !s.Paused() {
		t.Error("first toggle must pause")
	}
	if s.Toggle() || s.Paused() {
		t.Error("second toggle must resume")
	}
	if s.ID == "" {
		t.Error("session must have an ID")
	}
}

func TestSession_AbortReleasesPause(t *testing.T) {
	s := NewSession(zerolog.Nop())
	s.Pause()
	go func() {
		time.Sleep(10 * time.Millisecond)
		s.Abort(errFatal)
	}()
	if err := s.WaitIfPaused(context.Background()); err != nil {
		t.Errorf("unexpected error %v", err)
	}
	s.Abort(errors.New("second"))
	if !errors.Is(s.Err(), errFatal) {
		t.Error("first abort error must be kept")
	}
}

func TestRunStreaming_MajorityRule(t *testing.T) {
	tests := []struct {
		name    string
		failing int
		total   int
		abort   bool
	}{
		{"half fail", 2, 4, false},
		{"majority fail", 3, 4, true},
		{"none fail", 0, 3, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSession(zerolog.Nop())
			chunks := makeChunks(tt.total)
			err := RunStreaming(context.Background(), s, chunks, Options{Fatal: isFatal}, func(ctx context.Context, c *internal.Chunk) error {
				if c.Index < tt.failing {
					return errors.New("stream broke")
				}
				return nil
			})
			if tt.abort {
				if !errors.Is(err, ErrTooManyFailures) {
					t.Errorf("expected ErrTooManyFailures, got %v", err)
				}
			} else if err != nil {
				t.Errorf("unexpected error %v", err)
			}
		})
	}
}

func TestRunStreaming_AllStartUpFront(t *testing.T) {
	s := NewSession(zerolog.Nop())
	chunks := makeChunks(8)

	var wg sync.WaitGroup
	wg.Add(len(chunks))
	release := make(chan struct{})
	go func() {
		wg.Wait()
		close(release)
	}()

	err := RunStreaming(context.Background(), s, chunks, Options{}, func(ctx context.Context, c *internal.Chunk) error {
		wg.Done()
		select {
		case <-release:
			return nil
		case <-time.After(2 * time.Second):
			return errors.New("chunks were not dispatched concurrently")
		}
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestRunStreaming_FatalAborts(t *testing.T) {
	s := NewSession(zerolog.Nop())
	err := RunStreaming(context.Background(), s, makeChunks(5), Options{Fatal: isFatal}, func(ctx context.Context, c *internal.Chunk) error {
		if c.Index == 0 {
			return errFatal
		}
		return nil
	})
	if !errors.Is(err, errFatal) {
		t.Errorf("expected fatal abort, got %v", err)
	}
}

func regionPlan() *chunker.RegionPlan {
	chunks := makeChunks(3)
	return &chunker.RegionPlan{
		Order: []int{0, 1, 2},
		Chunks: map[int][]*internal.Chunk{
			0: {chunks[0]},
			1: {chunks[1]},
			2: {chunks[2]},
		},
	}
}

func TestRunLazy_VisibleRegionsFirst(t *testing.T) {
	s := NewSession(zerolog.Nop())
	plan := regionPlan()

	visible := make(chan int, 4)
	visible <- 2
	visible <- 0
	visible <- 2 // already done
	close(visible)

	var order []int
	err := RunLazy(context.Background(), s, plan, visible, LazyOptions{IdleFlush: 20 * time.Millisecond}, func(ctx context.Context, c *internal.Chunk) error {
		order = append(order, c.Index)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if fmt.Sprint(order) != "[2 0 1]" {
		t.Errorf("expected visible regions first then idle flush, got %v", order)
	}
	if p := s.Progress(); p.Completed != 3 {
		t.Errorf("unexpected progress %+v", p)
	}
}

func TestRunLazy_Serialized(t *testing.T) {
	s := NewSession(zerolog.Nop())
	plan := regionPlan()

	var active, peak atomic.Int32
	err := RunLazy(context.Background(), s, plan, nil, LazyOptions{IdleFlush: time.Millisecond}, func(ctx context.Context, c *internal.Chunk) error {
		if n := active.Add(1); n > peak.Load() {
			peak.Store(n)
		}
		time.Sleep(2 * time.Millisecond)
		active.Add(-1)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if peak.Load() != 1 {
		t.Errorf("lazy dispatch must be serialized, saw %d in flight", peak.Load())
	}
}

func TestRunLazy_FatalAborts(t *testing.T) {
	s := NewSession(zerolog.Nop())
	visible := make(chan int, 1)
	visible <- 1

	var calls atomic.Int32
	err := RunLazy(context.Background(), s, regionPlan(), visible, LazyOptions{Options: Options{Fatal: isFatal}, IdleFlush: time.Second}, func(ctx context.Context, c *internal.Chunk) error {
		calls.Add(1)
		return errFatal
	})
	if !errors.Is(err, errFatal) {
		t.Errorf("expected fatal error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected no dispatch after abort, got %d calls", calls.Load())
	}
}

func TestVisibleRegions(t *testing.T) {
	boxes := []Box{
		{Region: 0, Top: 0, Height: 500},
		{Region: 1, Top: 500, Height: 800},
		{Region: 2, Top: 1300, Height: 400},
		{Region: 3, Top: 3000, Height: 100},
	}
	got := VisibleRegions(boxes, 0, 900, 1000)
	if fmt.Sprint(got) != "[0 1 2]" {
		t.Errorf("expected [0 1 2], got %v", got)
	}
	got = VisibleRegions(boxes, 2500, 900, 0)
	if fmt.Sprint(got) != "[3]" {
		t.Errorf("expected [3], got %v", got)
	}
}

func TestScrollSteps(t *testing.T) {
	boxes := make([]Box, 6)
	for i := range boxes {
		boxes[i] = Box{Region: i, Top: i * 400, Height: 400}
	}

	tests := []struct {
		name  string
		depth int
		want  string
	}{
		{name: "whole page", depth: 0, want: "[[0 1 2] [3 4] [5]]"},
		{name: "reader stops early", depth: 2, want: "[[0 1 2] [3 4]]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ScrollSteps(boxes, 900, 200, tt.depth)
			if fmt.Sprint(got) != tt.want {
				t.Errorf("expected %s, got %v", tt.want, got)
			}
		})
	}

	if got := ScrollSteps(nil, 900, 0, 0); len(got) != 1 || len(got[0]) != 0 {
		t.Errorf("empty page must still take one empty step, got %v", got)
	}
}
