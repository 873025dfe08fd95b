package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/termindex/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/termindex/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/termindex/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/termindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/termindex/pkg/metrics"
)

const corpus = "d1\tHello, world! Hello.\n" +
	"d2\t\n" +
	"onlyid\n" +
	"d3 The 3 quick brown-foxes; the LAZY dog.\n" +
	"d1 duplicate external id, still a new document\n" +
	"d4 café au lait\n" +
	"d5\tend"

type artifacts struct {
	docs     []string
	terms    []string
	postings []string
}

func buildConfig(every int64) config.BuildConfig {
	cfg := config.Default().Build
	cfg.FlushEveryLines = every
	cfg.ProgressEveryLines = 0
	cfg.ProgressInterval = 0
	return cfg
}

func runBuild(t *testing.T, cfg config.BuildConfig, input string) (Stats, artifacts, *metrics.Metrics) {
	t.Helper()
	paths := segment.NewPaths(t.TempDir(), "docs.txt", "terms.txt", "postings.txt")
	w, err := segment.Create(paths, segment.WriterOptions{Parallel: true})
	require.NoError(t, err)
	m := metrics.New(prometheus.NewRegistry())

	b := NewBuilder(cfg, config.TokenizerConfig{}, w, m, WithBuildID("test-build"))
	stats, err := b.Build(context.Background(), "corpus.tsv", strings.NewReader(input))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return stats, readArtifacts(t, paths), m
}

func readArtifacts(t *testing.T, paths segment.Paths) artifacts {
	t.Helper()
	lines := func(path string) []string {
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		s := strings.TrimSuffix(string(data), "\n")
		if s == "" {
			return nil
		}
		return strings.Split(s, "\n")
	}
	return artifacts{
		docs:     lines(paths.Documents),
		terms:    lines(paths.Terms),
		postings: lines(paths.Postings),
	}
}

func sorted(lines []string) []string {
	out := append([]string(nil), lines...)
	sort.Strings(out)
	return out
}

func TestBuildScenario(t *testing.T) {
	stats, out, m := runBuild(t, buildConfig(1_000_000), corpus)

	assert.Equal(t, "test-build", stats.BuildID)
	assert.True(t, stats.Completed)
	assert.Equal(t, int64(7), stats.Lines)
	assert.Equal(t, int64(6), stats.Documents)
	assert.Equal(t, int64(1), stats.Skipped)
	assert.Equal(t, map[string]int64{"no_separator": 1}, stats.SkippedByReason)
	assert.Equal(t, 1, stats.Flushes)

	// Default length counts surviving term occurrences.
	assert.Equal(t, []string{
		"d1 3",
		"d2 0",
		"d3 7",
		"d1 7",
		"d4 2",
		"d5 1",
	}, out.docs)

	assert.Contains(t, out.postings, "hello 0 2")
	assert.Contains(t, out.postings, "world 0 1")
	assert.Contains(t, out.postings, "the 2 2")
	assert.Contains(t, out.postings, "foxes 2 1")
	assert.Contains(t, out.postings, "lait 4 1")
	for _, p := range out.postings {
		assert.NotContains(t, p, "caf", "non-ascii fragments are dropped")
	}
	for _, p := range out.postings {
		fields := strings.Fields(p)
		assert.NotEqual(t, "1", fields[1], "d2 has no text and therefore no postings")
	}

	assert.Contains(t, out.terms, "hello 2")
	assert.Contains(t, out.terms, "the 2")
	assert.Contains(t, out.terms, "still 1")

	assert.Equal(t, 6.0, testutil.ToFloat64(m.DocsIndexedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LinesSkippedTotal.WithLabelValues("no_separator")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LastBuildSuccess))
}

func TestBuildRawLengthMatchesFragmentCount(t *testing.T) {
	cfg := buildConfig(2)
	cfg.LengthMode = config.LengthModeRaw
	stats, out, _ := runBuild(t, cfg, corpus)

	assert.Equal(t, []string{
		"d1 3",
		"d2 0",
		"d3 8",
		"d1 7",
		"d4 3",
		"d5 1",
	}, out.docs)

	var sum int64
	for _, d := range out.docs {
		var ext string
		var n int64
		_, err := fmt.Sscanf(d, "%s %d", &ext, &n)
		require.NoError(t, err)
		sum += n
	}
	assert.Equal(t, stats.Fragments, sum)
}

func TestFlushThresholdIsNotObservable(t *testing.T) {
	var input strings.Builder
	words := []string{"alpha", "beta", "gamma", "delta", "epsilon", "zeta", "eta"}
	for i := 0; i < 200; i++ {
		fmt.Fprintf(&input, "doc%d %s %s, %s! %d\n", i, words[i%7], words[(i*3)%7], words[i%7], i)
		if i%37 == 0 {
			input.WriteString("malformed\n")
		}
	}

	for _, mode := range []string{config.TermModeGlobal, config.TermModePerFlush} {
		t.Run(mode, func(t *testing.T) {
			baseCfg := buildConfig(1_000_000)
			baseCfg.TermMode = mode
			baseStats, base, _ := runBuild(t, baseCfg, input.String())

			for _, every := range []int64{1, 7, 64} {
				cfg := buildConfig(every)
				cfg.TermMode = mode
				stats, out, _ := runBuild(t, cfg, input.String())

				assert.Equal(t, base.docs, out.docs, "documents keep input order")
				assert.Equal(t, sorted(base.postings), sorted(out.postings))
				assert.Equal(t, baseStats.Documents, stats.Documents)
				assert.Equal(t, baseStats.Postings, stats.Postings)

				if mode == config.TermModeGlobal {
					assert.Equal(t, sorted(base.terms), sorted(out.terms))
					continue
				}
				// Partial term counts reduce to the same totals.
				assert.Equal(t, reduce(t, base.terms), reduce(t, out.terms))
			}
		})
	}
}

func reduce(t *testing.T, terms []string) string {
	t.Helper()
	var out strings.Builder
	_, err := segment.ReduceTerms(strings.NewReader(strings.Join(terms, "\n")+"\n"), &out)
	require.NoError(t, err)
	return out.String()
}

func TestPostingsAreDenseAndExact(t *testing.T) {
	_, out, _ := runBuild(t, buildConfig(2), corpus)

	seen := make(map[string]bool)
	maxID := -1
	for _, p := range out.postings {
		var term string
		var id, freq int
		_, err := fmt.Sscanf(p, "%s %d %d", &term, &id, &freq)
		require.NoError(t, err)
		key := fmt.Sprintf("%s/%d", term, id)
		assert.False(t, seen[key], "duplicate posting %s", key)
		seen[key] = true
		assert.Less(t, id, len(out.docs))
		maxID = max(maxID, id)
	}
	assert.Equal(t, len(out.docs)-1, maxID, "last document d5 has a posting")
	assert.True(t, seen["hello/0"])
	assert.True(t, seen["end/5"])
}

func TestBuildAbortOnMalformed(t *testing.T) {
	cfg := buildConfig(1_000_000)
	cfg.OnMalformed = config.OnMalformedAbort

	paths := segment.NewPaths(t.TempDir(), "docs.txt", "terms.txt", "postings.txt")
	w, err := segment.Create(paths, segment.WriterOptions{})
	require.NoError(t, err)
	b := NewBuilder(cfg, config.TokenizerConfig{}, w, metrics.New(prometheus.NewRegistry()))

	stats, err := b.Build(context.Background(), "corpus.tsv", strings.NewReader(corpus))
	require.Error(t, err)
	require.NoError(t, w.Close())
	assert.ErrorIs(t, err, apperrors.ErrMalformedLine)
	assert.Contains(t, err.Error(), "corpus.tsv: line 3")
	assert.False(t, stats.Completed)

	// Lines before the bad one were still flushed.
	assert.Equal(t, []string{"d1 3", "d2 0"}, readArtifacts(t, paths).docs)
}

func TestBuildEmptyInput(t *testing.T) {
	stats, out, _ := runBuild(t, buildConfig(10), "")
	assert.True(t, stats.Completed)
	assert.Zero(t, stats.Documents)
	assert.Zero(t, stats.Flushes)
	assert.Empty(t, out.docs)
	assert.Empty(t, out.terms)
	assert.Empty(t, out.postings)
}

func TestBuildCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := &recordingWriter{}
	b := NewBuilder(buildConfig(10), config.TokenizerConfig{}, w, metrics.New(prometheus.NewRegistry()))
	_, err := b.Build(ctx, "corpus.tsv", strings.NewReader(corpus))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrCanceled)
	assert.Equal(t, apperrors.ExitCanceled, apperrors.ExitCode(err))
	assert.Empty(t, w.snapshots, "nothing was indexed, nothing to flush")
}

func TestBuildFlushFailureIsFatal(t *testing.T) {
	w := &recordingWriter{failOn: 2}
	m := metrics.New(prometheus.NewRegistry())
	b := NewBuilder(buildConfig(1), config.TokenizerConfig{}, w, m)

	_, err := b.Build(context.Background(), "corpus.tsv", strings.NewReader(corpus))
	require.Error(t, err)
	assert.ErrorIs(t, err, errDiskFull)
	assert.Len(t, w.snapshots, 2, "no flush is attempted after a failure")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IndexFlushesTotal.WithLabelValues("error")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.LastBuildSuccess))
}

func TestBuildProgressCallback(t *testing.T) {
	cfg := buildConfig(1_000_000)
	cfg.ProgressEveryLines = 2
	var seen []Stats
	b := NewBuilder(cfg, config.TokenizerConfig{}, &recordingWriter{}, metrics.New(prometheus.NewRegistry()),
		WithProgress(func(_ context.Context, s Stats) { seen = append(seen, s) }))

	_, err := b.Build(context.Background(), "corpus.tsv", strings.NewReader(corpus))
	require.NoError(t, err)
	require.NotEmpty(t, seen)
	last := seen[len(seen)-1]
	assert.True(t, last.Completed)
	assert.Equal(t, int64(6), last.Documents)
	assert.False(t, seen[0].Completed)
}

func TestFlushControllerMemoryTrigger(t *testing.T) {
	mem := index.NewMemoryIndex()
	fc := NewFlushController(mem, &recordingWriter{}, FlushPolicy{EveryLines: 1000, MaxBytes: 200}, metrics.New(prometheus.NewRegistry()))

	id, err := mem.Register("small")
	require.NoError(t, err)
	assert.False(t, fc.Tick())

	mem.AddTerms(id, map[string]uint32{"a": 1, "b": 1, "c": 1, "d": 1, "e": 1})
	assert.True(t, fc.Tick())

	require.NoError(t, fc.Flush(context.Background(), false))
	assert.False(t, fc.Tick())
	assert.Equal(t, 1, fc.Flushes())
}

func TestMemoryTriggerIgnoresRetainedTermTable(t *testing.T) {
	var input strings.Builder
	for i := range 50 {
		fmt.Fprintf(&input, "v%d", i)
		for j := range 10 {
			fmt.Fprintf(&input, " w%c%c%c", 'a'+i/26, 'a'+i%26, 'a'+j)
		}
		input.WriteByte('\n')
	}
	for i := range 1000 {
		fmt.Fprintf(&input, "s%d same\n", i)
	}

	cfg := buildConfig(1_000_000)
	cfg.FlushMaxBytes = 2000
	w := &recordingWriter{}
	b := NewBuilder(cfg, config.TokenizerConfig{}, w, metrics.New(prometheus.NewRegistry()))
	stats, err := b.Build(context.Background(), "corpus.tsv", strings.NewReader(input.String()))
	require.NoError(t, err)

	assert.Equal(t, int64(1050), stats.Documents)
	assert.Equal(t, int64(501), stats.TermsWritten)
	// Each flush releases roughly 2000 bytes of documents and postings.
	assert.Greater(t, stats.Flushes, 10)
	assert.Less(t, stats.Flushes, 100, "the retained term table must not force a flush per line")

	postings := 0
	for _, snap := range w.snapshots[:len(w.snapshots)-1] {
		assert.Nil(t, snap.Terms, "terms are only written by the final flush")
		assert.Greater(t, len(snap.Documents), 1)
		postings += len(snap.Postings)
	}
	postings += len(w.snapshots[len(w.snapshots)-1].Postings)
	assert.Equal(t, 50*10+1000, postings)
}

var errDiskFull = errors.New("disk full")

type recordingWriter struct {
	snapshots []index.Snapshot
	failOn    int
}

func (w *recordingWriter) Write(_ context.Context, snap index.Snapshot) (segment.WriteStats, error) {
	w.snapshots = append(w.snapshots, snap)
	if w.failOn > 0 && len(w.snapshots) == w.failOn {
		return segment.WriteStats{}, errDiskFull
	}
	return segment.WriteStats{Documents: len(snap.Documents), Terms: len(snap.Terms), Postings: len(snap.Postings)}, nil
}
