package collection

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

const readerBufferSize = 1 << 20

// Reader yields collection lines with their 1-based line numbers. Lines may
// be of any length; the trailing "\n" or "\r\n" is removed.
type Reader struct {
	br     *bufio.Reader
	lineNo int64
	line   string
	err    error
}

func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReaderSize(r, readerBufferSize)}
}

// Next advances to the next line. It returns false at end of input or on a
// read error, which Err then reports.
func (r *Reader) Next() bool {
	if r.err != nil {
		return false
	}
	line, err := r.br.ReadString('\n')
	if err != nil {
		if !errors.Is(err, io.EOF) {
			r.err = err
			return false
		}
		if line == "" {
			r.err = io.EOF
			return false
		}
	}
	r.lineNo++
	line = strings.TrimSuffix(line, "\n")
	r.line = strings.TrimSuffix(line, "\r")
	return true
}

func (r *Reader) Line() string {
	return r.line
}

func (r *Reader) LineNo() int64 {
	return r.lineNo
}

// Err returns the first non-EOF read error.
func (r *Reader) Err() error {
	if errors.Is(r.err, io.EOF) {
		return nil
	}
	return r.err
}
