package dedup

import (
	"testing"
)

func TestHash_Deterministic(t *testing.T) {
	record := map[string]any{
		"ticker": "KXBTC-25DEC31",
		"status": "open",
		"yes_be": 42,
	}

	h1, err := Hash(record)
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	h2, err := Hash(record)
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}

	if h1 != h2 {
		t.Errorf("Hash not deterministic: %q vs %q", h1, h2)
	}
	if len(h1) != HashLength {
		t.Errorf("Hash length = %d, want %d", len(h1), HashLength)
	}
}

func TestHash_KeyOrderIndependent(t *testing.T) {
	// Maps with identical contents must hash identically regardless of
	// insertion order, since canonical serialization sorts keys.
	a := map[string]any{}
	a["ticker"] = "X"
	a["status"] = "open"

	b := map[string]any{}
	b["status"] = "open"
	b["ticker"] = "X"

	ha, _ := Hash(a)
	hb, _ := Hash(b)
	if ha != hb {
		t.Errorf("Hashes differ for identical content: %q vs %q", ha, hb)
	}
}

func TestHash_DistinguishesContent(t *testing.T) {
	h1, _ := Hash(map[string]any{"ticker": "A"})
	h2, _ := Hash(map[string]any{"ticker": "B"})

	if h1 == h2 {
		t.Error("Different records should hash differently")
	}
}

func TestSet_FirstOccurrenceKept(t *testing.T) {
	s := NewSet()

	record := map[string]any{"ticker": "A"}

	if _, kept, err := s.Add(record); err != nil || !kept {
		t.Errorf("First Add = (kept=%v, err=%v), want kept", kept, err)
	}
	if _, kept, err := s.Add(record); err != nil || kept {
		t.Errorf("Second Add = (kept=%v, err=%v), want duplicate", kept, err)
	}

	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
	if s.Duplicates() != 1 {
		t.Errorf("Duplicates = %d, want 1", s.Duplicates())
	}
}

func TestSet_DistinctRecords(t *testing.T) {
	s := NewSet()

	for i := 0; i < 100; i++ {
		record := map[string]any{"index": i}
		if _, kept, err := s.Add(record); err != nil || !kept {
			t.Fatalf("Add(%d) = (kept=%v, err=%v), want kept", i, kept, err)
		}
	}

	if s.Len() != 100 {
		t.Errorf("Len = %d, want 100", s.Len())
	}
	if s.Duplicates() != 0 {
		t.Errorf("Duplicates = %d, want 0", s.Duplicates())
	}
}

func TestSet_ScopedPerInstance(t *testing.T) {
	// A fresh set has no memory of earlier runs.
	record := map[string]any{"ticker": "A"}

	s1 := NewSet()
	s1.Add(record)

	s2 := NewSet()
	if _, kept, _ := s2.Add(record); !kept {
		t.Error("New set should not remember records from another set")
	}
}
