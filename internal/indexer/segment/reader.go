package segment

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/termindex/internal/indexer/index"
)

const maxArtifactLine = 16 << 20

// DocumentRecord is one line of the documents file. Internal ids are not
// stored; the n-th line (0-based) describes internal document n.
type DocumentRecord struct {
	ExternalID string
	Length     uint32
}

// ReadDocuments calls fn for each line of a documents file in order.
func ReadDocuments(r io.Reader, fn func(DocumentRecord) error) error {
	return scanFields(r, 2, func(fields []string) error {
		length, err := parseUint32(fields[1])
		if err != nil {
			return err
		}
		return fn(DocumentRecord{ExternalID: fields[0], Length: length})
	})
}

// ReadTerms calls fn for each line of a terms file in order.
func ReadTerms(r io.Reader, fn func(index.TermCount) error) error {
	return scanFields(r, 2, func(fields []string) error {
		count, err := parseUint32(fields[1])
		if err != nil {
			return err
		}
		return fn(index.TermCount{Term: fields[0], Count: count})
	})
}

// ReadPostings calls fn for each line of a postings file in order.
func ReadPostings(r io.Reader, fn func(index.Posting) error) error {
	return scanFields(r, 3, func(fields []string) error {
		docID, err := parseUint32(fields[1])
		if err != nil {
			return err
		}
		freq, err := parseUint32(fields[2])
		if err != nil {
			return err
		}
		return fn(index.Posting{Term: fields[0], DocID: docID, Frequency: freq})
	})
}

func scanFields(r io.Reader, want int, fn func([]string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxArtifactLine)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		fields := strings.Fields(scanner.Text())
		if len(fields) != want {
			return fmt.Errorf("line %d: expected %d fields, got %d", lineNo, want, len(fields))
		}
		if err := fn(fields); err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading artifact: %w", err)
	}
	return nil
}

func parseUint32(s string) (uint32, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("parsing %q: %w", s, err)
	}
	return uint32(n), nil
}
