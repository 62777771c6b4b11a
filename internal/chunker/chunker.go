// Package chunker groups ordered page segments into size-bounded batches.
// Each batch serializes to "[id]text\n" lines and becomes one translation
// request. Segments never split across batches, and batch order follows
// segment order.
package chunker

import (
	"sort"

	"github.com/valpere/pagetran/internal"
)

const (
	// DefaultMaxChunkSize is the upper bound for a balanced budget.
	DefaultMaxChunkSize = 3000

	// DefaultMinChunks is the concurrency floor for large pages.
	DefaultMinChunks = 10

	// DefaultBalanceThreshold is the translatable size below which a page
	// is not forced into DefaultMinChunks pieces.
	DefaultBalanceThreshold = 10000

	// DefaultMinSegmentLength excludes trivial segments from translation.
	DefaultMinSegmentLength = 3
)

// Options tunes planning. Zero values take the defaults above.
type Options struct {
	MaxChunkSize     int
	MinChunks        int
	BalanceThreshold int
	MinSegmentLength int
}

func (o Options) withDefaults() Options {
	if o.MaxChunkSize <= 0 {
		o.MaxChunkSize = DefaultMaxChunkSize
	}
	if o.MinChunks <= 0 {
		o.MinChunks = DefaultMinChunks
	}
	if o.BalanceThreshold <= 0 {
		o.BalanceThreshold = DefaultBalanceThreshold
	}
	if o.MinSegmentLength < 0 {
		o.MinSegmentLength = 0
	}
	return o
}

// Translatable filters out segments shorter than the minimum length. The
// excluded segments are left untouched by every later stage.
func Translatable(segments []*internal.Segment, minLength int) []*internal.Segment {
	out := make([]*internal.Segment, 0, len(segments))
	for _, s := range segments {
		if s.Trimmed == "" || s.Len() < minLength {
			continue
		}
		out = append(out, s)
	}
	return out
}

// TotalSize is the serialized size of the given segments.
func TotalSize(segments []*internal.Segment) int {
	total := 0
	for _, s := range segments {
		total += lineLen(s)
	}
	return total
}

// BalancedBudget derives a per-chunk budget for whole-page translation.
// Large pages are spread over at least MinChunks requests; small pages keep
// the MaxChunkSize budget so they are not fragmented.
func BalancedBudget(segments []*internal.Segment, opts Options) int {
	opts = opts.withDefaults()
	total := TotalSize(Translatable(segments, opts.MinSegmentLength))
	if total == 0 {
		return opts.MaxChunkSize
	}

	target := ceilDiv(total, opts.MaxChunkSize)
	if total > opts.BalanceThreshold && target < opts.MinChunks {
		target = opts.MinChunks
	}
	return ceilDiv(total, target)
}

// Plan packs segments into chunks no longer than budget. A segment that is
// longer than budget on its own becomes a single oversized chunk.
// If budget ≤ 0 the balanced budget is used.
func Plan(segments []*internal.Segment, budget int, opts Options) []*internal.Chunk {
	opts = opts.withDefaults()
	if budget <= 0 {
		budget = BalancedBudget(segments, opts)
	}

	var chunks []*internal.Chunk
	var current []*internal.Segment
	size := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		chunks = append(chunks, internal.NewChunk(len(chunks), current))
		current = nil
		size = 0
	}

	for _, s := range Translatable(segments, opts.MinSegmentLength) {
		n := lineLen(s)
		if size > 0 && size+n > budget {
			flush()
		}
		current = append(current, s)
		size += n
	}
	flush()

	return chunks
}

// RegionPlan is a plan grouped by visual region, for lazy translation.
type RegionPlan struct {
	// Order lists regions in document order.
	Order  []int
	Chunks map[int][]*internal.Chunk
}

// Total returns the number of chunks across all regions.
func (p *RegionPlan) Total() int {
	n := 0
	for _, cs := range p.Chunks {
		n += len(cs)
	}
	return n
}

// PlanByRegion plans the whole page once, but never lets a chunk span two
// regions so each region can be dispatched on its own.
func PlanByRegion(segments []*internal.Segment, budget int, opts Options) *RegionPlan {
	opts = opts.withDefaults()
	if budget <= 0 {
		budget = opts.MaxChunkSize
	}

	grouped := make(map[int][]*internal.Segment)
	var order []int
	for _, s := range segments {
		if _, seen := grouped[s.Region]; !seen {
			order = append(order, s.Region)
		}
		grouped[s.Region] = append(grouped[s.Region], s)
	}

	plan := &RegionPlan{Chunks: make(map[int][]*internal.Chunk)}
	index := 0
	for _, region := range order {
		chunks := Plan(grouped[region], budget, opts)
		if len(chunks) == 0 {
			continue
		}
		for _, c := range chunks {
			c.Index = index
			index++
		}
		plan.Order = append(plan.Order, region)
		plan.Chunks[region] = chunks
	}
	return plan
}

// IDs returns the sorted union of segment IDs across chunks.
func IDs(chunks []*internal.Chunk) []int {
	var ids []int
	for _, c := range chunks {
		ids = append(ids, c.IDs()...)
	}
	sort.Ints(ids)
	return ids
}

func lineLen(s *internal.Segment) int {
	// "[" + id + "]" + text + "\n"
	return len([]rune(s.Line()))
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return a
	}
	return (a + b - 1) / b
}
