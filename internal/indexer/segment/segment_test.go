package segment

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/termindex/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/termindex/pkg/errors"
)

func testPaths(dir string) Paths {
	return NewPaths(dir, "docs.txt", "terms.txt", "postings.txt")
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestWriterAppendsEachSnapshot(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		t.Run(map[bool]string{false: "sequential", true: "parallel"}[parallel], func(t *testing.T) {
			paths := testPaths(t.TempDir())
			w, err := Create(paths, WriterOptions{Parallel: parallel, SyncOnFlush: true})
			require.NoError(t, err)

			stats, err := w.Write(context.Background(), index.Snapshot{
				Documents: []index.Document{{ID: 0, ExternalID: "d1", Length: 3}},
				Postings:  index.PostingList{{Term: "hello", DocID: 0, Frequency: 2}, {Term: "world", DocID: 0, Frequency: 1}},
			})
			require.NoError(t, err)
			assert.Equal(t, WriteStats{Documents: 1, Postings: 2}, stats)

			// Each Write is durable on return.
			assert.Equal(t, "d1 3\n", readFile(t, paths.Documents))

			_, err = w.Write(context.Background(), index.Snapshot{
				Documents: []index.Document{{ID: 1, ExternalID: "d2", Length: 0}},
				Terms:     map[string]uint32{"world": 1, "hello": 2},
			})
			require.NoError(t, err)
			require.NoError(t, w.Close())

			assert.Equal(t, "d1 3\nd2 0\n", readFile(t, paths.Documents))
			assert.Equal(t, "hello 2\nworld 1\n", readFile(t, paths.Terms))
			assert.Equal(t, "hello 0 2\nworld 0 1\n", readFile(t, paths.Postings))
		})
	}
}

func TestCreateTruncatesExistingArtifacts(t *testing.T) {
	paths := testPaths(t.TempDir())
	require.NoError(t, os.WriteFile(paths.Documents, []byte("stale 1\n"), 0644))

	w, err := Create(paths, WriterOptions{})
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.Empty(t, readFile(t, paths.Documents))
}

func TestCreateUnwritableDirectory(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))

	_, err := Create(testPaths(filepath.Join(blocker, "sub")), WriterOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrIO)
	assert.Contains(t, err.Error(), blocker)
}

func TestReaders(t *testing.T) {
	var docs []DocumentRecord
	err := ReadDocuments(strings.NewReader("d1 4\nd2 0\n"), func(d DocumentRecord) error {
		docs = append(docs, d)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []DocumentRecord{{"d1", 4}, {"d2", 0}}, docs)

	var postings index.PostingList
	err = ReadPostings(strings.NewReader("hello 0 2\nworld 0 1\n"), func(p index.Posting) error {
		postings = append(postings, p)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, index.PostingList{{"hello", 0, 2}, {"world", 0, 1}}, postings)

	err = ReadTerms(strings.NewReader("hello 2\nbroken\n"), func(index.TermCount) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")

	err = ReadTerms(strings.NewReader("hello -1\n"), func(index.TermCount) error { return nil })
	require.Error(t, err)
}

func TestReduceTerms(t *testing.T) {
	in := strings.NewReader("world 1\nhello 2\nhello 3\nzebra 4294967295\nzebra 1\n")
	var out bytes.Buffer

	stats, err := ReduceTerms(in, &out)
	require.NoError(t, err)
	assert.Equal(t, ReduceStats{LinesIn: 5, TermsOut: 3}, stats)
	assert.Equal(t, "hello 5\nworld 1\nzebra 4294967295\n", out.String())
}
