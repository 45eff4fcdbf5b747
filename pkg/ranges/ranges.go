// Package ranges tracks sets of per-stream record indexes as sorted, disjoint
// half-open intervals.
package ranges

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/btree"
)

// Range is the half-open interval [Start, End) of record indexes.
type Range struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// New returns [start, end)
func New(start, end int64) Range {
	return Range{Start: start, End: end}
}

// Closed returns [first, last], expressed as [first, last+1)
func Closed(first, last int64) Range {
	return Range{Start: first, End: last + 1}
}

// IsEmpty reports whether the range holds no index
func (r Range) IsEmpty() bool {
	return r.End <= r.Start
}

// Len returns the number of indexes in the range
func (r Range) Len() int64 {
	if r.IsEmpty() {
		return 0
	}
	return r.End - r.Start
}

// Contains reports whether index lies in the range
func (r Range) Contains(index int64) bool {
	return index >= r.Start && index < r.End
}

func (r Range) String() string {
	return fmt.Sprintf("[%d, %d)", r.Start, r.End)
}

// Set is a concurrency-safe set of indexes stored as sorted, disjoint,
// non-adjacent ranges. Inserting merges overlapping and adjacent ranges.
type Set struct {
	mu   sync.RWMutex
	tree *btree.BTreeG[Range]
}

// NewSet creates an empty set
func NewSet() *Set {
	return &Set{
		tree: btree.NewG(2, func(a, b Range) bool {
			return a.Start < b.Start
		}),
	}
}

// Insert adds r to the set. Inserting is idempotent and commutative.
func (s *Set) Insert(r Range) {
	if r.IsEmpty() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	merged := r
	var absorbed []Range

	// The range starting at or before r may overlap or touch it
	s.tree.DescendLessOrEqual(Range{Start: r.Start}, func(item Range) bool {
		if item.End >= r.Start {
			absorbed = append(absorbed, item)
			merged.Start = min(merged.Start, item.Start)
			merged.End = max(merged.End, item.End)
		}
		return false
	})

	// Ranges starting inside or right after r
	s.tree.AscendGreaterOrEqual(Range{Start: r.Start}, func(item Range) bool {
		if item.Start > merged.End {
			return false
		}
		absorbed = append(absorbed, item)
		merged.End = max(merged.End, item.End)
		return true
	})

	for _, item := range absorbed {
		s.tree.Delete(item)
	}
	s.tree.ReplaceOrInsert(merged)
}

// Encloses reports whether every index of r is in the set. Empty ranges are
// always enclosed.
func (s *Set) Encloses(r Range) bool {
	if r.IsEmpty() {
		return true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	enclosed := false
	s.tree.DescendLessOrEqual(Range{Start: r.Start}, func(item Range) bool {
		enclosed = item.End >= r.End
		return false
	})
	return enclosed
}

// CoveredUntil reports whether the set covers [0, index) with no gaps
func (s *Set) CoveredUntil(index int64) bool {
	return s.Encloses(Range{Start: 0, End: index})
}

// Contains reports whether index is in the set
func (s *Set) Contains(index int64) bool {
	return s.Encloses(Range{Start: index, End: index + 1})
}

// Ranges returns the disjoint ranges in ascending order
func (s *Set) Ranges() []Range {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Range, 0, s.tree.Len())
	s.tree.Ascend(func(item Range) bool {
		out = append(out, item)
		return true
	})
	return out
}

// Len returns the number of disjoint ranges
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Len()
}

// IsEmpty reports whether the set holds no index
func (s *Set) IsEmpty() bool {
	return s.Len() == 0
}

func (s *Set) String() string {
	parts := make([]string, 0)
	for _, r := range s.Ranges() {
		parts = append(parts, r.String())
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
