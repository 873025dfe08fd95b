// Package tokenizer turns one document's text into normalised terms.
// It splits on Unicode whitespace and ASCII punctuation, lower-cases
// byte-wise, drops fragments containing non-ASCII bytes, and keeps only the
// letters a-z of what remains. Stop-word removal and Snowball stemming are
// available as opt-in filters.
package tokenizer

import (
	"strings"
	"unicode"

	"github.com/kljensen/snowball/english"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "not": {}, "no": {}, "so": {}, "can": {},
}

// Options selects the optional filters applied after normalisation.
type Options struct {
	StopWords bool
	Stem      bool
}

// Result is the outcome of tokenising one document.
type Result struct {
	// Terms maps each surviving term to its frequency in the document.
	Terms map[string]uint32
	// Fragments counts every non-empty fragment produced by the splitter,
	// including those later rejected.
	Fragments uint32
	// Kept counts the term occurrences that survived filtering.
	Kept uint32
}

// Tokenizer applies a fixed set of Options. The zero value applies none.
type Tokenizer struct {
	opts Options
}

func New(opts Options) *Tokenizer {
	return &Tokenizer{opts: opts}
}

// Tokenize breaks text into term frequencies using the default options.
func Tokenize(text string) Result {
	return New(Options{}).Tokenize(text)
}

func (t *Tokenizer) Tokenize(text string) Result {
	res := Result{Terms: make(map[string]uint32)}
	fragments := strings.FieldsFunc(text, isDelimiter)
	for _, fragment := range fragments {
		res.Fragments++
		term, ok := normalize(fragment)
		if !ok {
			continue
		}
		if t.opts.StopWords {
			if _, isStop := stopWords[term]; isStop {
				continue
			}
		}
		if t.opts.Stem {
			term = english.Stem(term, false)
			if term == "" {
				continue
			}
		}
		res.Terms[term]++
		res.Kept++
	}
	return res
}

func isDelimiter(r rune) bool {
	return unicode.IsSpace(r) || isASCIIPunct(r)
}

func isASCIIPunct(r rune) bool {
	switch {
	case r >= '!' && r <= '/':
		return true
	case r >= ':' && r <= '@':
		return true
	case r >= '[' && r <= '`':
		return true
	case r >= '{' && r <= '~':
		return true
	}
	return false
}

// normalize lower-cases fragment and reduces it to the letters a-z. It
// reports false for fragments with non-ASCII bytes or no letters at all.
func normalize(fragment string) (string, bool) {
	var b strings.Builder
	for i := 0; i < len(fragment); i++ {
		c := fragment[i]
		if c >= 0x80 {
			return "", false
		}
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		if c >= 'a' && c <= 'z' {
			if b.Len() == 0 {
				b.Grow(len(fragment) - i)
			}
			b.WriteByte(c)
		}
	}
	if b.Len() == 0 {
		return "", false
	}
	return b.String(), true
}
