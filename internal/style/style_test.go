package style

import (
	"strings"
	"testing"

	"github.com/valpere/pagetran/internal"
)

func TestKeywordClassifier_Classify(t *testing.T) {
	c := NewKeywordClassifier()

	tests := []struct {
		name   string
		sample string
		want   Type
	}{
		{
			name:   "empty sample",
			sample: "",
			want:   General,
		},
		{
			name:   "below threshold",
			sample: "The server was fine and the code ran.",
			want:   General,
		},
		{
			name:   "technical",
			sample: "Install the library, edit the config file and deploy the server. The API returns JSON.",
			want:   Technical,
		},
		{
			name:   "medical",
			sample: "The patient received treatment after diagnosis; the doctor adjusted the dose.",
			want:   Medical,
		},
		{
			name:   "tutorial",
			sample: "Step one: click Settings. Next step, select the profile. Follow this guide.",
			want:   Tutorial,
		},
		{
			name:   "word boundaries",
			sample: "codec codebook encoder apiary",
			want:   General,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.sample)
			if got.Type != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got.Type)
			}
		})
	}
}

func TestKeywordClassifier_TieKeepsFirst(t *testing.T) {
	// Three technical and three academic hits: technical is listed first.
	sample := "api server code research study theory"
	got := NewKeywordClassifier().Classify(sample)
	if got.Type != Technical {
		t.Errorf("expected first-seen maximum (technical), got %s", got.Type)
	}
}

func TestKeywordClassifier_Deterministic(t *testing.T) {
	c := NewKeywordClassifier()
	sample := "revenue market customer profit company"
	first := c.Classify(sample)
	for i := 0; i < 5; i++ {
		if got := c.Classify(sample); got != first {
			t.Fatalf("classification changed between calls: %+v vs %+v", first, got)
		}
	}
	if first.Instruction == "" {
		t.Error("expected non-empty instruction for business style")
	}
}

func TestSample(t *testing.T) {
	var segs []*internal.Segment
	for i := 0; i < 80; i++ {
		segs = append(segs, &internal.Segment{ID: i, Trimmed: "seg"})
	}
	sample := Sample(segs)
	if n := strings.Count(sample, "seg"); n != SampleSegments {
		t.Errorf("expected %d segments in sample, got %d", SampleSegments, n)
	}

	long := []*internal.Segment{{Trimmed: strings.Repeat("x", SampleLength*2)}}
	if n := len([]rune(Sample(long))); n != SampleLength {
		t.Errorf("expected sample truncated to %d, got %d", SampleLength, n)
	}
}

func TestLookup(t *testing.T) {
	for _, typ := range Types() {
		p, ok := Lookup(typ)
		if !ok {
			t.Errorf("expected %s to resolve", typ)
		}
		if p.Type != typ {
			t.Errorf("expected %s, got %s", typ, p.Type)
		}
	}
	if _, ok := Lookup("bogus"); ok {
		t.Error("unknown type must not resolve")
	}
}
