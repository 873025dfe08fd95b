package segment

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/termindex/internal/indexer/index"
)

// ReduceStats summarises a ReduceTerms pass.
type ReduceStats struct {
	LinesIn  int
	TermsOut int
}

// ReduceTerms sums the partial counts of a terms file written with a
// per-flush term table and writes one line per distinct term, in term
// order. Counts saturate at math.MaxUint32.
func ReduceTerms(in io.Reader, out io.Writer) (ReduceStats, error) {
	var stats ReduceStats
	totals := make(map[string]uint64)
	err := ReadTerms(in, func(tc index.TermCount) error {
		stats.LinesIn++
		totals[tc.Term] += uint64(tc.Count)
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("reading partial terms: %w", err)
	}

	counts := make(map[string]uint32, len(totals))
	for term, total := range totals {
		counts[term] = uint32(min(total, math.MaxUint32))
	}
	bw := bufio.NewWriter(out)
	line := make([]byte, 0, 64)
	for _, tc := range index.SortedTermCounts(counts) {
		line = append(line[:0], tc.Term...)
		line = append(line, ' ')
		line = strconv.AppendUint(line, uint64(tc.Count), 10)
		line = append(line, '\n')
		if _, err := bw.Write(line); err != nil {
			return stats, fmt.Errorf("writing reduced terms: %w", err)
		}
		stats.TermsOut++
	}
	if err := bw.Flush(); err != nil {
		return stats, fmt.Errorf("writing reduced terms: %w", err)
	}
	return stats, nil
}
