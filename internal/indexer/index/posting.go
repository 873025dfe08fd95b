package index

// Document is one row of the document table. ID is the dense internal id
// used as the join key in postings.
type Document struct {
	ID         uint32
	ExternalID string
	Length     uint32
}

// Posting records that Term occurs Frequency times in document DocID.
type Posting struct {
	Term      string
	DocID     uint32
	Frequency uint32
}

type PostingList []Posting

// TermCount is one drained term table entry.
type TermCount struct {
	Term  string
	Count uint32
}
