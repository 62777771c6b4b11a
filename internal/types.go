package internal

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// TargetLang is the language every page is translated into.
const TargetLang = "vi"

// Segment is one addressable run of text extracted from a document.
// ID is stable for a single extraction pass and is the only reference
// that survives distribution into chunks.
type Segment struct {
	ID               int    `json:"id"`
	Content          string `json:"content"`
	Trimmed          string `json:"trimmed"`
	HasLeadingSpace  bool   `json:"has_leading_space"`
	HasTrailingSpace bool   `json:"has_trailing_space"`
	// Region identifies the visual container the segment lives in.
	// Lazy translation dispatches chunks region by region.
	Region int `json:"region"`
}

// Len returns the number of visible characters in the segment.
func (s *Segment) Len() int {
	return utf8.RuneCountInString(s.Trimmed)
}

// Line renders the segment in the numbered request format.
func (s *Segment) Line() string {
	return FormatLine(s.ID, s.Trimmed)
}

// FormatLine renders one "[id]text" request line.
func FormatLine(id int, text string) string {
	return "[" + strconv.Itoa(id) + "]" + text + "\n"
}

// SetTranslation writes text into the segment, restoring the whitespace
// flags captured at extraction time.
func (s *Segment) SetTranslation(text string) {
	if s.HasLeadingSpace {
		text = " " + text
	}
	if s.HasTrailingSpace {
		text = text + " "
	}
	s.Content = text
}

type ChunkStatus int

const (
	ChunkPending ChunkStatus = iota
	ChunkInFlight
	ChunkCompleted
	ChunkFailed
)

func (s ChunkStatus) String() string {
	switch s {
	case ChunkPending:
		return "pending"
	case ChunkInFlight:
		return "in-flight"
	case ChunkCompleted:
		return "completed"
	case ChunkFailed:
		return "error"
	default:
		return "unknown"
	}
}

// Chunk is a batch of segments serialized into one translation request.
type Chunk struct {
	Index    int
	Text     string
	Segments []*Segment
	Status   ChunkStatus
	Err      error

	byID map[int]*Segment
}

// NewChunk builds a chunk from ordered segments.
func NewChunk(index int, segments []*Segment) *Chunk {
	c := &Chunk{Index: index, Segments: segments}
	c.reindex()
	return c
}

func (c *Chunk) reindex() {
	c.byID = make(map[int]*Segment, len(c.Segments))
	var sb strings.Builder
	for _, s := range c.Segments {
		c.byID[s.ID] = s
		sb.WriteString(s.Line())
	}
	c.Text = sb.String()
}

// Segment looks up a segment of this chunk by ID. Segments owned by
// other chunks are never returned.
func (c *Chunk) Segment(id int) (*Segment, bool) {
	if c.byID == nil {
		c.reindex()
	}
	s, ok := c.byID[id]
	return s, ok
}

// Len returns the serialized chunk length in characters.
func (c *Chunk) Len() int {
	return utf8.RuneCountInString(c.Text)
}

// IDs returns the segment IDs of the chunk in order.
func (c *Chunk) IDs() []int {
	ids := make([]int, len(c.Segments))
	for i, s := range c.Segments {
		ids[i] = s.ID
	}
	return ids
}
