package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/valpere/pagetran/internal"
	"github.com/valpere/pagetran/internal/chunker"
)

const DefaultConcurrency = 10

// ErrTooManyFailures aborts a streaming session once more than half of its
// chunks failed.
var ErrTooManyFailures = errors.New("more than half of the chunks failed")

// Task translates and applies one chunk. The session's context is passed
// through; tasks use Session.Sleep for any backoff.
type Task func(ctx context.Context, c *internal.Chunk) error

type Options struct {
	// Concurrency bounds in-flight tasks in pool mode.
	Concurrency int
	// Fatal reports whether a chunk error must abort the session. A nil
	// Fatal treats every chunk error as contained.
	Fatal func(error) bool
}

func (o Options) fatal(err error) bool {
	return err != nil && o.Fatal != nil && o.Fatal(err)
}

// RunPool drives chunks through a bounded pool. Dispatch waits while the
// session is paused and stops once it aborts; tasks already started are
// left to finish.
func RunPool(ctx context.Context, s *Session, chunks []*internal.Chunk, opts Options, task Task) error {
	limit := opts.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	s.start(len(chunks))

	var g errgroup.Group
	g.SetLimit(limit)

	for _, c := range chunks {
		if err := s.WaitIfPaused(ctx); err != nil {
			s.Abort(err)
			break
		}
		if s.Aborted() {
			break
		}

		c.Status = internal.ChunkInFlight
		g.Go(func() error {
			// The slot may have opened after an abort.
			if s.Aborted() {
				c.Status = internal.ChunkPending
				return nil
			}
			err := task(ctx, c)
			s.settle(c, err)
			if opts.fatal(err) {
				s.Abort(err)
			}
			return nil
		})
	}

	_ = g.Wait()
	return s.finish()
}

// RunStreaming starts every chunk at once. Chunk errors are contained until
// more than half of all chunks have failed.
func RunStreaming(ctx context.Context, s *Session, chunks []*internal.Chunk, opts Options, task Task) error {
	total := len(chunks)
	s.start(total)

	var wg sync.WaitGroup
	for _, c := range chunks {
		if err := s.WaitIfPaused(ctx); err != nil {
			s.Abort(err)
			break
		}
		if s.Aborted() {
			break
		}

		c.Status = internal.ChunkInFlight
		wg.Add(1)
		go func(c *internal.Chunk) {
			defer wg.Done()
			err := task(ctx, c)
			p := s.settle(c, err)
			switch {
			case opts.fatal(err):
				s.Abort(err)
			case err != nil && p.Failed*2 > total:
				s.Abort(fmt.Errorf("%w (%d of %d): %w", ErrTooManyFailures, p.Failed, total, err))
			}
		}(c)
	}

	wg.Wait()
	return s.finish()
}

// LazyOptions configure viewport-driven dispatch.
type LazyOptions struct {
	Options
	// IdleFlush dispatches every remaining region after this long without
	// a visibility event.
	IdleFlush time.Duration
}

// RunLazy dispatches a region's chunks when the region ID arrives on
// visible. Batches run one at a time. When no event arrives within
// IdleFlush, all remaining regions are dispatched in document order. A
// closed visible channel only stops new events; the idle flush still runs.
func RunLazy(ctx context.Context, s *Session, plan *chunker.RegionPlan, visible <-chan int, opts LazyOptions, task Task) error {
	s.start(plan.Total())

	done := make(map[int]bool, len(plan.Order))
	remaining := 0
	for _, r := range plan.Order {
		if len(plan.Chunks[r]) > 0 {
			remaining++
		} else {
			done[r] = true
		}
	}

	runRegion := func(region int) {
		if done[region] {
			return
		}
		done[region] = true
		remaining--
		for _, c := range plan.Chunks[region] {
			if err := s.WaitIfPaused(ctx); err != nil {
				s.Abort(err)
				return
			}
			if s.Aborted() {
				return
			}
			c.Status = internal.ChunkInFlight
			err := task(ctx, c)
			s.settle(c, err)
			if opts.fatal(err) {
				s.Abort(err)
				return
			}
		}
	}

	idle := opts.IdleFlush
	if idle <= 0 {
		idle = 10 * time.Second
	}
	timer := time.NewTimer(idle)
	defer timer.Stop()

	for remaining > 0 && !s.Aborted() {
		select {
		case region, ok := <-visible:
			if !ok {
				visible = nil
				continue
			}
			if _, known := plan.Chunks[region]; !known {
				continue
			}
			runRegion(region)
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(idle)

		case <-timer.C:
			s.log.Debug().Int("regions", remaining).Msg("idle flush")
			for _, r := range plan.Order {
				if s.Aborted() {
					break
				}
				runRegion(r)
			}

		case <-ctx.Done():
			s.Abort(ctx.Err())
		}
	}

	return s.finish()
}

// Box is the vertical extent of a region in document coordinates.
type Box struct {
	Region int
	Top    int
	Height int
}

// VisibleRegions returns the regions intersecting the viewport expanded by
// margin on both sides, in the order given.
func VisibleRegions(boxes []Box, viewportTop, viewportHeight, margin int) []int {
	lo := viewportTop - margin
	hi := viewportTop + viewportHeight + margin
	var out []int
	for _, b := range boxes {
		if b.Top < hi && b.Top+b.Height > lo {
			out = append(out, b.Region)
		}
	}
	return out
}

// ScrollSteps walks a viewport down the boxes one viewport height at a time
// and returns, per step, the regions that come within margin for the first
// time. Steps that reveal nothing are kept so callers can pace a scroll.
// A positive depth stops the walk after that many steps.
func ScrollSteps(boxes []Box, viewportHeight, margin, depth int) [][]int {
	bottom := 0
	for _, b := range boxes {
		if end := b.Top + b.Height; end > bottom {
			bottom = end
		}
	}
	step := viewportHeight
	if step <= 0 {
		step = 1
	}

	seen := make(map[int]bool, len(boxes))
	var steps [][]int
	for top := 0; top < bottom || top == 0; top += step {
		if depth > 0 && len(steps) == depth {
			break
		}
		var fresh []int
		for _, r := range VisibleRegions(boxes, top, viewportHeight, margin) {
			if !seen[r] {
				seen[r] = true
				fresh = append(fresh, r)
			}
		}
		steps = append(steps, fresh)
	}
	return steps
}
