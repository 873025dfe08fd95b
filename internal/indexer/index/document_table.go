package index

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrUnknownDocument  = errors.New("document id not resident in table")
	ErrIDSpaceExhausted = errors.New("document id space exhausted")
)

// DocumentTable is an append-only sequence of documents. Internal ids come
// from a counter that survives Drain, so ids stay dense and unique for the
// whole build even though the resident rows are discarded at each flush.
// It is not safe for concurrent use.
type DocumentTable struct {
	docs   []Document
	base   uint32
	nextID uint64
	size   int64
}

func NewDocumentTable() *DocumentTable {
	return &DocumentTable{}
}

// Register appends a document with length 0 and returns its internal id.
// Duplicate external ids are allowed and receive distinct ids.
func (t *DocumentTable) Register(externalID string) (uint32, error) {
	if t.nextID > math.MaxUint32 {
		return 0, fmt.Errorf("registering %q: %w", externalID, ErrIDSpaceExhausted)
	}
	id := uint32(t.nextID)
	t.docs = append(t.docs, Document{ID: id, ExternalID: externalID})
	t.nextID++
	t.size += int64(len(externalID)) + documentOverhead
	return id, nil
}

// SetLength sets the length of a document registered since the last Drain.
func (t *DocumentTable) SetLength(id uint32, length uint32) error {
	if id < t.base || uint64(id-t.base) >= uint64(len(t.docs)) {
		return fmt.Errorf("setting length of document %d: %w", id, ErrUnknownDocument)
	}
	t.docs[id-t.base].Length = length
	return nil
}

// Drain returns the resident documents in id order and empties the table.
func (t *DocumentTable) Drain() []Document {
	docs := t.docs
	t.docs = nil
	t.base = uint32(min(t.nextID, math.MaxUint32))
	t.size = 0
	return docs
}

// Len returns the number of resident documents.
func (t *DocumentTable) Len() int {
	return len(t.docs)
}

// Registered returns the total number of documents registered in the build.
func (t *DocumentTable) Registered() uint64 {
	return t.nextID
}

// Size returns the approximate resident size in bytes.
func (t *DocumentTable) Size() int64 {
	return t.size
}
