package safety

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/valpere/pagetran/internal/store"
)

func TestFilter_TwoStrikes(t *testing.T) {
	ctx := context.Background()
	f := New(store.NewMemory(), zerolog.Nop(), 2)

	permanent, err := f.RecordBlock(ctx, "https://example.com/a")
	if err != nil {
		t.Fatalf("RecordBlock: %v", err)
	}
	if permanent {
		t.Error("first strike must only warn")
	}
	if blocked, _ := f.IsBlocked(ctx, "example.com"); blocked {
		t.Error("domain must not be blocked after one strike")
	}

	permanent, err = f.RecordBlock(ctx, "https://sub.example.com/b")
	if err != nil {
		t.Fatalf("RecordBlock: %v", err)
	}
	if !permanent {
		t.Error("second strike on the same domain must block")
	}
	if blocked, _ := f.IsBlocked(ctx, "http://www.example.com"); !blocked {
		t.Error("expected example.com blocked")
	}
	if blocked, _ := f.IsBlocked(ctx, "other.org"); blocked {
		t.Error("other domains must be unaffected")
	}
}

func TestFilter_ConfigurableThreshold(t *testing.T) {
	ctx := context.Background()
	f := New(store.NewMemory(), zerolog.Nop(), 3)

	for i := 1; i <= 3; i++ {
		permanent, err := f.RecordBlock(ctx, "example.com")
		if err != nil {
			t.Fatal(err)
		}
		if want := i == 3; permanent != want {
			t.Errorf("strike %d: expected permanent=%v, got %v", i, want, permanent)
		}
	}
}

func TestFilter_AllowedNeverBlocked(t *testing.T) {
	ctx := context.Background()
	f := New(store.NewMemory(), zerolog.Nop(), 2)

	if err := f.Allow(ctx, "example.com"); err != nil {
		t.Fatalf("Allow: %v", err)
	}
	for i := 0; i < 3; i++ {
		permanent, err := f.RecordBlock(ctx, "example.com")
		if err != nil {
			t.Fatal(err)
		}
		if permanent {
			t.Fatal("allowed domain must never be blocked")
		}
	}
	st, _ := f.State(ctx)
	if st.Warnings["example.com"].Count != 3 {
		t.Errorf("expected warnings still counted, got %+v", st.Warnings)
	}
}

func TestFilter_UnblockAndPersist(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	f := New(kv, zerolog.Nop(), 2)

	f.RecordBlock(ctx, "example.com")
	f.RecordBlock(ctx, "example.com")

	reloaded := New(kv, zerolog.Nop(), 2)
	if blocked, err := reloaded.IsBlocked(ctx, "example.com"); err != nil || !blocked {
		t.Fatalf("expected block persisted, got %v %v", blocked, err)
	}

	if err := reloaded.Unblock(ctx, "example.com"); err != nil {
		t.Fatalf("Unblock: %v", err)
	}
	if blocked, _ := reloaded.IsBlocked(ctx, "example.com"); blocked {
		t.Error("expected domain unblocked")
	}
	if permanent, _ := reloaded.RecordBlock(ctx, "example.com"); permanent {
		t.Error("strikes must reset on unblock")
	}
}

func TestFilter_EmptyDomain(t *testing.T) {
	f := New(store.NewMemory(), zerolog.Nop(), 1)
	permanent, err := f.RecordBlock(context.Background(), "")
	if err != nil || permanent {
		t.Errorf("empty domain must be ignored, got %v %v", permanent, err)
	}
	if err := f.Allow(context.Background(), ""); err == nil {
		t.Error("expected error allowing an empty domain")
	}
}
