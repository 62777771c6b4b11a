package internal

import "testing"

func TestRegistrableDomain(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://blog.example.com/post/1", "example.com"},
		{"http://www.Example.COM:8080/", "example.com"},
		{"news.bbc.co.uk", "bbc.co.uk"},
		{"example.org/path", "example.org"},
		{"localhost", "localhost"},
		{"http://127.0.0.1:3000", "127.0.0.1"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := RegistrableDomain(tt.in); got != tt.want {
			t.Errorf("RegistrableDomain(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSegment_SetTranslation(t *testing.T) {
	s := &Segment{HasLeadingSpace: true}
	s.SetTranslation("X")
	if s.Content != " X" {
		t.Errorf("expected leading space only, got %q", s.Content)
	}
}

func TestChunk_SegmentIsLocal(t *testing.T) {
	c := NewChunk(0, []*Segment{{ID: 3, Trimmed: "abc"}})
	if _, ok := c.Segment(4); ok {
		t.Error("foreign ID must not resolve")
	}
	if c.Text != "[3]abc\n" {
		t.Errorf("unexpected chunk text %q", c.Text)
	}
}
