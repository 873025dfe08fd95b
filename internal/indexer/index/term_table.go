package index

import (
	"math"
	"sort"
)

// TermTable maps each term to a running occurrence count. It is not safe
// for concurrent use.
type TermTable struct {
	counts map[string]uint32
	size   int64
}

func NewTermTable() *TermTable {
	return &TermTable{counts: make(map[string]uint32)}
}

// Bump adds inc to the count of term, creating the entry if absent. The
// count saturates at math.MaxUint32.
func (t *TermTable) Bump(term string, inc uint32) {
	count, exists := t.counts[term]
	if !exists {
		t.size += int64(len(term)) + termOverhead
	}
	t.counts[term] = uint32(min(uint64(count)+uint64(inc), math.MaxUint32))
}

// Count returns the current count of term.
func (t *TermTable) Count(term string) uint32 {
	return t.counts[term]
}

// Drain returns the table contents and empties it.
func (t *TermTable) Drain() map[string]uint32 {
	counts := t.counts
	t.counts = make(map[string]uint32)
	t.size = 0
	return counts
}

// Len returns the number of distinct resident terms.
func (t *TermTable) Len() int {
	return len(t.counts)
}

// Size returns the approximate resident size in bytes.
func (t *TermTable) Size() int64 {
	return t.size
}

// SortedTermCounts flattens a drained table into term order.
func SortedTermCounts(counts map[string]uint32) []TermCount {
	entries := make([]TermCount, 0, len(counts))
	for term, count := range counts {
		entries = append(entries, TermCount{Term: term, Count: count})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Term < entries[j].Term
	})
	return entries
}
