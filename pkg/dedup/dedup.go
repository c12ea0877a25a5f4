// Package dedup discards repeat records within one endpoint run. Upstream
// pagination can legitimately repeat boundary items across adjacent cursor
// pages while the source dataset is being written to; keeping those repeats
// would corrupt downstream counts. State is scoped to a single endpoint run
// and never shared across endpoints or sessions.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/goccy/go-json"
)

// HashLength is the hex-digest prefix length kept for each record hash.
const HashLength = 16

// Hash computes the truncated content hash of a record's canonical
// serialization. JSON object keys marshal in sorted order, so two records
// with the same fields and values always produce the same digest.
func Hash(record map[string]any) (string, error) {
	canonical, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("canonical serialization: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])[:HashLength], nil
}

// Set tracks record hashes seen within one endpoint run. Not safe for
// concurrent use; parallel callers hold their own lock.
type Set struct {
	seen       map[string]struct{}
	duplicates int
}

// NewSet creates an empty run-scoped hash set.
func NewSet() *Set {
	return &Set{seen: make(map[string]struct{})}
}

// Add hashes the record and records it. Returns the hash and true when the
// record is first seen; false when it is a duplicate of an earlier record.
// The first occurrence is always the one kept.
func (s *Set) Add(record map[string]any) (string, bool, error) {
	h, err := Hash(record)
	if err != nil {
		return "", false, err
	}

	if _, ok := s.seen[h]; ok {
		s.duplicates++
		return h, false, nil
	}
	s.seen[h] = struct{}{}
	return h, true, nil
}

// Len returns the number of distinct records seen.
func (s *Set) Len() int {
	return len(s.seen)
}

// Duplicates returns the number of duplicate records discarded.
func (s *Set) Duplicates() int {
	return s.duplicates
}
