package index

// PostingAccumulator is an append-only list of postings. It does not
// deduplicate; callers aggregate frequencies per document before recording.
// It is not safe for concurrent use.
type PostingAccumulator struct {
	postings PostingList
	size     int64
}

func NewPostingAccumulator() *PostingAccumulator {
	return &PostingAccumulator{}
}

func (a *PostingAccumulator) Record(term string, docID uint32, frequency uint32) {
	a.postings = append(a.postings, Posting{
		Term:      term,
		DocID:     docID,
		Frequency: frequency,
	})
	a.size += int64(len(term)) + postingOverhead
}

// Drain returns the recorded postings in insertion order and empties the
// accumulator.
func (a *PostingAccumulator) Drain() PostingList {
	postings := a.postings
	a.postings = nil
	a.size = 0
	return postings
}

func (a *PostingAccumulator) Len() int {
	return len(a.postings)
}

// Size returns the approximate resident size in bytes.
func (a *PostingAccumulator) Size() int64 {
	return a.size
}
