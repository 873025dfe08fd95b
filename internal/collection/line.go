// Package collection reads a line-oriented document collection, one record
// per line: an external document id, a whitespace run, then free text.
package collection

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	apperrors "github.com/Adithya-Monish-Kumar-K/termindex/pkg/errors"
)

// Record is one parsed collection line.
type Record struct {
	ExternalID string
	Text       string
}

// Skip reasons reported by LineError.
const (
	ReasonNoSeparator = "no_separator"
	ReasonEmptyID     = "empty_id"
	ReasonEncoding    = "invalid_utf8"
)

// LineError describes a line that cannot be indexed.
type LineError struct {
	LineNo int64
	Reason string
	Err    error
}

func (e *LineError) Error() string {
	if e.LineNo > 0 {
		return fmt.Sprintf("line %d: %s (%s)", e.LineNo, e.Err.Error(), e.Reason)
	}
	return fmt.Sprintf("%s (%s)", e.Err.Error(), e.Reason)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// ParseLine splits line at its first whitespace rune. Everything after that
// rune is text, including any further leading whitespace.
func ParseLine(line string) (Record, error) {
	if !utf8.ValidString(line) {
		return Record{}, &LineError{Reason: ReasonEncoding, Err: apperrors.ErrInvalidEncoding}
	}
	i := strings.IndexFunc(line, unicode.IsSpace)
	if i < 0 {
		return Record{}, &LineError{Reason: ReasonNoSeparator, Err: apperrors.ErrMalformedLine}
	}
	if i == 0 {
		return Record{}, &LineError{Reason: ReasonEmptyID, Err: apperrors.ErrMalformedLine}
	}
	_, width := utf8.DecodeRuneInString(line[i:])
	return Record{ExternalID: line[:i], Text: line[i+width:]}, nil
}
