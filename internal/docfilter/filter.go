// Package docfilter selects the collection lines whose leading numeric id
// appears in a list of target ids. It is an ordered merge-join: one pass over
// a collection whose ids are non-decreasing, against the sorted target list.
package docfilter

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/Adithya-Monish-Kumar-K/termindex/internal/collection"
	apperrors "github.com/Adithya-Monish-Kumar-K/termindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/termindex/pkg/metrics"
)

// maxReportedUnmatched caps the ids listed in an ErrUnmatchedIDs message.
const maxReportedUnmatched = 10

// Options controls validation.
type Options struct {
	// Strict fails on a decreasing collection id and on target ids that
	// never matched, instead of logging them.
	Strict  bool
	Metrics *metrics.Metrics
}

// Result summarises one Filter run.
type Result struct {
	Examined  int64
	Matched   int64
	Malformed int64
	// OutOfOrder counts lines whose id was lower than the previous line's.
	OutOfOrder int64
	Unmatched  []uint32
}

// ReadIDs parses one decimal id per line. Blank lines are ignored.
func ReadIDs(r io.Reader) ([]uint32, error) {
	var ids []uint32
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		field := strings.TrimSpace(scanner.Text())
		if field == "" {
			continue
		}
		id, err := strconv.ParseUint(field, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("line %d: parsing id %q: %w", lineNo, field, err)
		}
		ids = append(ids, uint32(id))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ids: %w", err)
	}
	return ids, nil
}

// Filter copies to out every collection line whose id is in ids. ids need
// not be sorted or unique. Lines sharing a matching id are all copied. The
// scan stops at the first id beyond the largest target.
func Filter(ctx context.Context, coll io.Reader, ids []uint32, out io.Writer, opts Options) (Result, error) {
	logger := slog.Default().With("component", "docfilter")
	targets := slices.Clone(ids)
	slices.Sort(targets)
	targets = slices.Compact(targets)

	var res Result
	bw := bufio.NewWriter(out)
	rd := collection.NewReader(coll)
	next := 0
	// hit records whether targets[next] has matched at least one line.
	hit := false
	var prev uint64
	havePrev := false

	for next < len(targets) && rd.Next() {
		if err := ctx.Err(); err != nil {
			return res, apperrors.Newf(apperrors.ErrCanceled, apperrors.ExitCanceled,
				"filter stopped before line %d: %v", rd.LineNo(), err)
		}
		res.Examined++
		if opts.Metrics != nil {
			opts.Metrics.FilterLinesExamined.Inc()
		}
		line := rd.Line()
		id, ok := leadingID(line)
		if !ok {
			res.Malformed++
			logger.Warn("skipping line without numeric id", "line", rd.LineNo())
			continue
		}

		if havePrev && id < prev {
			res.OutOfOrder++
			if opts.Strict {
				return res, apperrors.Newf(apperrors.ErrUnsortedCollection, apperrors.ExitFailure,
					"line %d: id %d follows %d", rd.LineNo(), id, prev)
			}
			logger.Warn("collection id out of order, line may be missed",
				"line", rd.LineNo(), "id", id, "previous", prev)
		}
		prev, havePrev = id, true

		for next < len(targets) && uint64(targets[next]) < id {
			if !hit {
				res.Unmatched = append(res.Unmatched, targets[next])
			}
			next++
			hit = false
		}
		if next < len(targets) && uint64(targets[next]) == id {
			if _, err := bw.WriteString(line); err != nil {
				return res, fmt.Errorf("writing filtered line: %w", err)
			}
			if err := bw.WriteByte('\n'); err != nil {
				return res, fmt.Errorf("writing filtered line: %w", err)
			}
			res.Matched++
			hit = true
			if opts.Metrics != nil {
				opts.Metrics.FilterLinesMatched.Inc()
			}
			// The target stays current: following lines may repeat its id.
		}
	}
	if err := rd.Err(); err != nil {
		return res, fmt.Errorf("reading collection: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return res, fmt.Errorf("writing filtered output: %w", err)
	}
	if hit {
		next++
	}
	res.Unmatched = append(res.Unmatched, targets[min(next, len(targets)):]...)

	if len(res.Unmatched) > 0 {
		if opts.Strict {
			return res, apperrors.Newf(apperrors.ErrUnmatchedIDs, apperrors.ExitFailure,
				"%d of %d ids never matched, first: %v", len(res.Unmatched), len(targets),
				res.Unmatched[:min(len(res.Unmatched), maxReportedUnmatched)])
		}
		logger.Warn("target ids not found in collection", "count", len(res.Unmatched))
	}
	logger.Info("filter complete",
		"examined", res.Examined,
		"matched", res.Matched,
		"malformed", res.Malformed,
		"out_of_order", res.OutOfOrder,
	)
	return res, nil
}

// leadingID parses the first whitespace-delimited field of line.
func leadingID(line string) (uint64, bool) {
	field := line
	if i := strings.IndexFunc(line, unicode.IsSpace); i >= 0 {
		field = line[:i]
	}
	id, err := strconv.ParseUint(field, 10, 32)
	if err != nil {
		return 0, false
	}
	return id, true
}
