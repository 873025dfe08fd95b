// Package segment writes and reads the three flat artifacts of a build:
// the documents file, the terms file and the postings file. Each flush cycle
// appends to all three; nothing is ever rewritten in place.
package segment

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/termindex/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/termindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/termindex/pkg/tracing"
)

const defaultBufferSize = 1 << 20

// Paths locates the three artifacts.
type Paths struct {
	Documents string
	Terms     string
	Postings  string
}

// NewPaths joins the three file names onto dir.
func NewPaths(dir, documents, terms, postings string) Paths {
	return Paths{
		Documents: filepath.Join(dir, documents),
		Terms:     filepath.Join(dir, terms),
		Postings:  filepath.Join(dir, postings),
	}
}

// WriteStats counts the rows appended by one Write call.
type WriteStats struct {
	Documents int
	Terms     int
	Postings  int
}

// Writer appends drained snapshots to the three artifact files.
type Writer struct {
	paths    Paths
	sync     bool
	parallel bool
	docs     *artifact
	terms    *artifact
	postings *artifact
}

type artifact struct {
	path string
	file *os.File
	buf  *bufio.Writer
	// scratch is reused to format one line at a time.
	scratch []byte
}

// WriterOptions tunes buffering and durability.
type WriterOptions struct {
	BufferSize int
	// SyncOnFlush fsyncs every file at the end of each Write.
	SyncOnFlush bool
	// Parallel writes the three files concurrently within one Write.
	Parallel bool
}

// Create truncates or creates the three artifacts and returns a Writer
// appending to them.
func Create(paths Paths, opts WriterOptions) (*Writer, error) {
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaultBufferSize
	}
	w := &Writer{paths: paths, sync: opts.SyncOnFlush, parallel: opts.Parallel}
	var err error
	if w.docs, err = openArtifact(paths.Documents, opts.BufferSize); err != nil {
		return nil, err
	}
	if w.terms, err = openArtifact(paths.Terms, opts.BufferSize); err != nil {
		w.docs.file.Close()
		return nil, err
	}
	if w.postings, err = openArtifact(paths.Postings, opts.BufferSize); err != nil {
		w.docs.file.Close()
		w.terms.file.Close()
		return nil, err
	}
	return w, nil
}

func openArtifact(path string, bufSize int) (*artifact, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, apperrors.IOf(path, err, "creating directory for")
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, apperrors.IOf(path, err, "creating")
	}
	return &artifact{
		path:    path,
		file:    f,
		buf:     bufio.NewWriterSize(f, bufSize),
		scratch: make([]byte, 0, 256),
	}, nil
}

// Paths returns the artifact locations.
func (w *Writer) Paths() Paths {
	return w.paths
}

// Write appends one snapshot. Terms are written in term order; documents
// and postings keep their drain order. All buffered data reaches the files
// before Write returns, so a later snapshot never interleaves with this one.
func (w *Writer) Write(ctx context.Context, snap index.Snapshot) (WriteStats, error) {
	stats := WriteStats{
		Documents: len(snap.Documents),
		Terms:     len(snap.Terms),
		Postings:  len(snap.Postings),
	}
	jobs := []writeJob{
		{"documents", stats.Documents, func() error { return w.docs.writeDocuments(snap.Documents, w.sync) }},
		{"terms", stats.Terms, func() error { return w.terms.writeTerms(snap.Terms, w.sync) }},
		{"postings", stats.Postings, func() error { return w.postings.writePostings(snap.Postings, w.sync) }},
	}
	if !w.parallel {
		for _, job := range jobs {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			if err := job.run(ctx); err != nil {
				return stats, err
			}
		}
		return stats, nil
	}
	g, _ := errgroup.WithContext(ctx)
	for _, job := range jobs {
		g.Go(func() error { return job.run(ctx) })
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}
	return stats, nil
}

type writeJob struct {
	artifact string
	rows     int
	write    func() error
}

func (j writeJob) run(ctx context.Context) error {
	_, span := tracing.StartChild(ctx, "write "+j.artifact)
	defer span.End()
	span.SetAttr("rows", j.rows)
	return j.write()
}

// Close flushes remaining buffers and closes every file, reporting the
// first failure.
func (w *Writer) Close() error {
	var firstErr error
	for _, a := range []*artifact{w.docs, w.terms, w.postings} {
		if err := a.buf.Flush(); err != nil && firstErr == nil {
			firstErr = apperrors.IOf(a.path, err, "flushing")
		}
		if err := a.file.Close(); err != nil && firstErr == nil {
			firstErr = apperrors.IOf(a.path, err, "closing")
		}
	}
	return firstErr
}

func (a *artifact) writeDocuments(docs []index.Document, sync bool) error {
	for _, d := range docs {
		line := append(a.scratch[:0], d.ExternalID...)
		line = append(line, ' ')
		line = strconv.AppendUint(line, uint64(d.Length), 10)
		line = append(line, '\n')
		if err := a.writeLine(line); err != nil {
			return err
		}
	}
	return a.commit(sync)
}

func (a *artifact) writeTerms(terms map[string]uint32, sync bool) error {
	for _, tc := range index.SortedTermCounts(terms) {
		line := append(a.scratch[:0], tc.Term...)
		line = append(line, ' ')
		line = strconv.AppendUint(line, uint64(tc.Count), 10)
		line = append(line, '\n')
		if err := a.writeLine(line); err != nil {
			return err
		}
	}
	return a.commit(sync)
}

func (a *artifact) writePostings(postings index.PostingList, sync bool) error {
	for _, p := range postings {
		line := append(a.scratch[:0], p.Term...)
		line = append(line, ' ')
		line = strconv.AppendUint(line, uint64(p.DocID), 10)
		line = append(line, ' ')
		line = strconv.AppendUint(line, uint64(p.Frequency), 10)
		line = append(line, '\n')
		if err := a.writeLine(line); err != nil {
			return err
		}
	}
	return a.commit(sync)
}

func (a *artifact) writeLine(line []byte) error {
	a.scratch = line
	if _, err := a.buf.Write(line); err != nil {
		return apperrors.IOf(a.path, err, "appending to")
	}
	return nil
}

func (a *artifact) commit(sync bool) error {
	if err := a.buf.Flush(); err != nil {
		return apperrors.IOf(a.path, err, "flushing")
	}
	if sync {
		if err := a.file.Sync(); err != nil {
			return apperrors.IOf(a.path, err, "syncing")
		}
	}
	return nil
}
