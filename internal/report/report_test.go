package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/termindex/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/termindex/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/termindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/termindex/pkg/kafka"
)

type fakeStatus struct {
	mu     sync.Mutex
	hashes map[string]map[string]any
	ttls   map[string]time.Duration
	calls  int
	err    error
}

func (f *fakeStatus) SetHash(_ context.Context, key string, fields map[string]any, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return f.err
	}
	if f.hashes == nil {
		f.hashes = make(map[string]map[string]any)
		f.ttls = make(map[string]time.Duration)
	}
	f.hashes[key] = fields
	f.ttls[key] = ttl
	return nil
}

type fakeRecorder struct {
	reports  []Report
	failures int
}

func (f *fakeRecorder) RecordBuild(_ context.Context, r Report) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("connection refused")
	}
	f.reports = append(f.reports, r)
	return nil
}

type fakePublisher struct {
	events []kafka.Event
}

func (f *fakePublisher) Publish(_ context.Context, e kafka.Event) error {
	f.events = append(f.events, e)
	return nil
}

func testConfig() (config.RedisConfig, config.ReportConfig) {
	return config.RedisConfig{KeyPrefix: "termindex:build:", StatusTTL: time.Hour},
		config.ReportConfig{MaxAttempts: 2, Timeout: time.Second, BreakerThreshold: 2, BreakerCooldown: time.Hour}
}

func finishedStats() indexer.Stats {
	return indexer.Stats{
		BuildID:      "b-1",
		Source:       "collection.txt",
		StartedAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Elapsed:      1500 * time.Millisecond,
		Lines:        10,
		Documents:    9,
		Skipped:      1,
		Postings:     42,
		TermsWritten: 17,
		Flushes:      2,
		Completed:    true,
	}
}

func TestNewDerivesStatus(t *testing.T) {
	s := finishedStats()
	assert.Equal(t, StatusCompleted, New(s, Artifacts{}, nil).Status)

	s.Completed = false
	assert.Equal(t, StatusRunning, New(s, Artifacts{}, nil).Status)

	failed := New(s, Artifacts{}, apperrors.IOf("/out/posts_out.txt", errors.New("disk full"), "writing"))
	assert.Equal(t, StatusFailed, failed.Status)
	assert.Contains(t, failed.Error, "disk full")

	canceled := New(s, Artifacts{}, fmt.Errorf("build: %w",
		apperrors.New(apperrors.ErrCanceled, apperrors.ExitCanceled, "interrupted")))
	assert.Equal(t, StatusCanceled, canceled.Status)
}

func TestFields(t *testing.T) {
	f := New(finishedStats(), Artifacts{}, nil).Fields()
	assert.Equal(t, "completed", f["status"])
	assert.Equal(t, "9", f["documents"])
	assert.Equal(t, "1500", f["elapsed_ms"])
	assert.Equal(t, "2026-01-02T03:04:05Z", f["started_at"])
	assert.NotContains(t, f, "error")
}

func TestReporterFinishFansOut(t *testing.T) {
	status := &fakeStatus{}
	rec := &fakeRecorder{failures: 1}
	pub := &fakePublisher{}
	redisCfg, reportCfg := testConfig()
	arts := Artifacts{Documents: "d", Terms: "t", Postings: "p"}
	r := NewReporter(Sinks{Status: status, Announcer: NewKafkaAnnouncer(pub), Recorder: rec}, redisCfg, reportCfg, arts)
	require.True(t, r.Enabled())

	require.NoError(t, r.Finish(context.Background(), finishedStats(), nil))

	assert.Equal(t, "completed", status.hashes["termindex:build:b-1"]["status"])
	assert.Equal(t, time.Hour, status.ttls["termindex:build:b-1"])
	require.Len(t, rec.reports, 1, "recorder is retried after a transient failure")
	assert.Equal(t, arts, rec.reports[0].Artifacts)

	require.Len(t, pub.events, 1)
	assert.Equal(t, "b-1", pub.events[0].Key)
	msg, err := kafka.EncodeMessage(pub.events[0])
	require.NoError(t, err)
	var decoded Report
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, StatusCompleted, decoded.Status)
	assert.Equal(t, int64(42), decoded.Stats.Postings)
}

func TestReporterFinishReportsSinkErrors(t *testing.T) {
	status := &fakeStatus{err: errors.New("redis down")}
	redisCfg, reportCfg := testConfig()
	reportCfg.MaxAttempts = 1
	r := NewReporter(Sinks{Status: status}, redisCfg, reportCfg, Artifacts{})

	err := r.Finish(context.Background(), finishedStats(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status-store")
	assert.Contains(t, err.Error(), "redis down")
}

func TestReporterFinishAfterCancel(t *testing.T) {
	status := &fakeStatus{}
	redisCfg, reportCfg := testConfig()
	r := NewReporter(Sinks{Status: status}, redisCfg, reportCfg, Artifacts{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	buildErr := apperrors.New(apperrors.ErrCanceled, apperrors.ExitCanceled, "interrupted")
	require.NoError(t, r.Finish(ctx, finishedStats(), buildErr))
	assert.Equal(t, "canceled", status.hashes["termindex:build:b-1"]["status"])
}

func TestReporterProgressBreaker(t *testing.T) {
	status := &fakeStatus{err: errors.New("redis down")}
	redisCfg, reportCfg := testConfig()
	r := NewReporter(Sinks{Status: status}, redisCfg, reportCfg, Artifacts{})

	s := finishedStats()
	s.Completed = false
	for range 5 {
		r.Progress(context.Background(), s)
	}
	assert.Equal(t, 2, status.calls, "breaker opens after two failures")

	s.Completed = true
	r.Progress(context.Background(), s)
	assert.Equal(t, 2, status.calls, "completed stats are left to Finish")
}

func TestReporterWithoutSinks(t *testing.T) {
	redisCfg, reportCfg := testConfig()
	r := NewReporter(Sinks{}, redisCfg, reportCfg, Artifacts{})
	assert.False(t, r.Enabled())
	r.Progress(context.Background(), finishedStats())
	assert.NoError(t, r.Finish(context.Background(), finishedStats(), nil))
}
