package index

import (
	"sort"
	"sync"
)

// Approximate per-entry bookkeeping cost, added to the key length when
// estimating resident size.
const (
	documentOverhead = 48
	termOverhead     = 56
	postingOverhead  = 40
)

// Snapshot is the drained content of one flush cycle.
type Snapshot struct {
	Documents []Document
	Postings  PostingList
	// Terms is nil when the term table was not drained.
	Terms map[string]uint32
}

// Empty reports whether the snapshot carries nothing to write.
func (s Snapshot) Empty() bool {
	return len(s.Documents) == 0 && len(s.Postings) == 0 && len(s.Terms) == 0
}

// MemoryIndex holds the three accumulators of a build and drains them
// together so that one flush never mixes rows from two epochs.
type MemoryIndex struct {
	mu       sync.Mutex
	docs     *DocumentTable
	terms    *TermTable
	postings *PostingAccumulator
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		docs:     NewDocumentTable(),
		terms:    NewTermTable(),
		postings: NewPostingAccumulator(),
	}
}

func (m *MemoryIndex) Register(externalID string) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.docs.Register(externalID)
}

func (m *MemoryIndex) SetLength(docID uint32, length uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.docs.SetLength(docID, length)
}

// AddTerms bumps the term table and records one posting per term of docID.
// Terms are visited in sorted order so postings are deterministic.
func (m *MemoryIndex) AddTerms(docID uint32, freqs map[string]uint32) {
	terms := make([]string, 0, len(freqs))
	for term := range freqs {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, term := range terms {
		freq := freqs[term]
		m.terms.Bump(term, freq)
		m.postings.Record(term, docID, freq)
	}
}

// Snapshot drains documents and postings, and the term table as well when
// drainTerms is set.
func (m *MemoryIndex) Snapshot(drainTerms bool) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Snapshot{
		Documents: m.docs.Drain(),
		Postings:  m.postings.Drain(),
	}
	if drainTerms {
		s.Terms = m.terms.Drain()
	}
	return s
}

// Size returns the approximate resident size of all three tables in bytes.
func (m *MemoryIndex) Size() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.docs.Size() + m.terms.Size() + m.postings.Size()
}

// DrainableSize is the part of Size that Snapshot(drainTerms) releases.
// Without drainTerms the term table stays resident and is not counted.
func (m *MemoryIndex) DrainableSize(drainTerms bool) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	size := m.docs.Size() + m.postings.Size()
	if drainTerms {
		size += m.terms.Size()
	}
	return size
}

// Resident returns the number of resident documents, terms and postings.
func (m *MemoryIndex) Resident() (docs, terms, postings int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.docs.Len(), m.terms.Len(), m.postings.Len()
}

// Registered returns the number of documents registered in the build.
func (m *MemoryIndex) Registered() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.docs.Registered()
}
