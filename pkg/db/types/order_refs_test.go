package dbtypes

import (
	"testing"

	"github.com/google/uuid"
)

func TestOrderRefs_RoundTrip(t *testing.T) {
	refs := OrderRefs{uuid.New(), uuid.New()}
	value, err := refs.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}

	var scanned OrderRefs
	if err := scanned.Scan(value); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(scanned) != 2 {
		t.Fatalf("expected 2 refs, got %d", len(scanned))
	}
	for i := range refs {
		if scanned[i] != refs[i] {
			t.Fatalf("ref %d mismatch: %s != %s", i, scanned[i], refs[i])
		}
	}
}

func TestOrderRefs_EmptyAndNil(t *testing.T) {
	var refs OrderRefs
	if err := refs.Scan(nil); err != nil {
		t.Fatalf("Scan(nil): %v", err)
	}
	if len(refs) != 0 {
		t.Fatalf("expected empty refs")
	}

	value, err := refs.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	if value != "{}" {
		t.Fatalf("unexpected literal: %v", value)
	}
}

func TestOrderRefs_Contains(t *testing.T) {
	known := uuid.New()
	refs := OrderRefs{known}
	if !refs.Contains(known) {
		t.Fatal("expected Contains to find known id")
	}
	if refs.Contains(uuid.New()) {
		t.Fatal("unexpected match for unknown id")
	}
}
