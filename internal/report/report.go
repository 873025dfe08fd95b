// Package report publishes build outcomes to the optional sinks: a Redis
// status hash that tracks progress, a Kafka "index complete" event and a
// Postgres build catalog. Every sink is best-effort.
package report

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/termindex/internal/indexer"
	apperrors "github.com/Adithya-Monish-Kumar-K/termindex/pkg/errors"
)

// Build status values.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCanceled  = "canceled"
)

// Artifacts names the files a build wrote.
type Artifacts struct {
	Documents string `json:"documents"`
	Terms     string `json:"terms"`
	Postings  string `json:"postings"`
}

// Report is the payload sent to every sink.
type Report struct {
	BuildID    string        `json:"build_id"`
	Status     string        `json:"status"`
	Error      string        `json:"error,omitempty"`
	Stats      indexer.Stats `json:"stats"`
	Artifacts  Artifacts     `json:"artifacts"`
	ReportedAt time.Time     `json:"reported_at"`
}

// New derives the status of a build from its statistics and error.
func New(s indexer.Stats, artifacts Artifacts, buildErr error) Report {
	r := Report{
		BuildID:    s.BuildID,
		Status:     StatusRunning,
		Stats:      s,
		Artifacts:  artifacts,
		ReportedAt: time.Now().UTC(),
	}
	switch {
	case buildErr != nil && errors.Is(buildErr, apperrors.ErrCanceled):
		r.Status = StatusCanceled
		r.Error = buildErr.Error()
	case buildErr != nil:
		r.Status = StatusFailed
		r.Error = buildErr.Error()
	case s.Completed:
		r.Status = StatusCompleted
	}
	return r
}

// Fields flattens the report into a Redis hash.
func (r Report) Fields() map[string]any {
	f := map[string]any{
		"status":        r.Status,
		"source":        r.Stats.Source,
		"started_at":    r.Stats.StartedAt.UTC().Format(time.RFC3339),
		"updated_at":    r.ReportedAt.Format(time.RFC3339),
		"elapsed_ms":    strconv.FormatInt(r.Stats.Elapsed.Milliseconds(), 10),
		"lines":         strconv.FormatInt(r.Stats.Lines, 10),
		"documents":     strconv.FormatInt(r.Stats.Documents, 10),
		"skipped":       strconv.FormatInt(r.Stats.Skipped, 10),
		"postings":      strconv.FormatInt(r.Stats.Postings, 10),
		"terms_written": strconv.FormatInt(r.Stats.TermsWritten, 10),
		"flushes":       strconv.Itoa(r.Stats.Flushes),
	}
	if r.Error != "" {
		f["error"] = r.Error
	}
	return f
}

// StatusStore keeps the latest status of each build.
type StatusStore interface {
	SetHash(ctx context.Context, key string, fields map[string]any, ttl time.Duration) error
}

// Recorder persists finished builds.
type Recorder interface {
	RecordBuild(ctx context.Context, r Report) error
}

// Announcer tells downstream consumers that a build finished.
type Announcer interface {
	Announce(ctx context.Context, r Report) error
}
