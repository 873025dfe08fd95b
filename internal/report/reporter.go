package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/termindex/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/termindex/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/termindex/pkg/resilience"
)

// Reporter fans a build's progress and outcome out to the configured sinks.
// A nil sink is skipped. Progress goes only to the status store, once per
// call, behind a circuit breaker; the final report is retried on every sink.
type Reporter struct {
	status    StatusStore
	keyPrefix string
	ttl       time.Duration
	announcer Announcer
	recorder  Recorder
	artifacts Artifacts
	policy    resilience.RetryPolicy
	breaker   *resilience.CircuitBreaker
	logger    *slog.Logger
}

// Sinks groups the optional destinations of a Reporter.
type Sinks struct {
	Status    StatusStore
	Announcer Announcer
	Recorder  Recorder
}

func NewReporter(sinks Sinks, redisCfg config.RedisConfig, cfg config.ReportConfig, artifacts Artifacts) *Reporter {
	return &Reporter{
		status:    sinks.Status,
		keyPrefix: redisCfg.KeyPrefix,
		ttl:       redisCfg.StatusTTL,
		announcer: sinks.Announcer,
		recorder:  sinks.Recorder,
		artifacts: artifacts,
		policy: resilience.RetryPolicy{
			MaxAttempts:    cfg.MaxAttempts,
			AttemptTimeout: cfg.Timeout,
		},
		breaker: resilience.NewCircuitBreaker("status-store", cfg.BreakerThreshold, cfg.BreakerCooldown),
		logger:  slog.Default().With("component", "reporter"),
	}
}

// Enabled reports whether any sink is configured.
func (r *Reporter) Enabled() bool {
	return r.status != nil || r.announcer != nil || r.recorder != nil
}

// Progress records in-flight statistics. It never blocks the build for
// longer than one attempt timeout and never returns an error.
func (r *Reporter) Progress(ctx context.Context, s indexer.Stats) {
	if r.status == nil || s.Completed {
		return
	}
	rep := New(s, r.artifacts, nil)
	err := r.breaker.Execute(func() error {
		attemptCtx := ctx
		if r.policy.AttemptTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, r.policy.AttemptTimeout)
			defer cancel()
		}
		return r.status.SetHash(attemptCtx, r.key(s.BuildID), rep.Fields(), r.ttl)
	})
	if err != nil {
		r.logger.Debug("progress update dropped", "build_id", s.BuildID, "error", err)
	}
}

// Finish sends the outcome of a build to every sink. Sink failures are
// logged and joined into the returned error; callers treat it as advisory.
func (r *Reporter) Finish(ctx context.Context, s indexer.Stats, buildErr error) error {
	rep := New(s, r.artifacts, buildErr)
	// Reporting still happens for a cancelled build.
	ctx = context.WithoutCancel(ctx)

	var errs []error
	if r.status != nil {
		errs = append(errs, r.send(ctx, "status-store", func(ctx context.Context) error {
			return r.status.SetHash(ctx, r.key(rep.BuildID), rep.Fields(), r.ttl)
		}))
	}
	if r.recorder != nil {
		errs = append(errs, r.send(ctx, "build-catalog", func(ctx context.Context) error {
			return r.recorder.RecordBuild(ctx, rep)
		}))
	}
	if r.announcer != nil {
		errs = append(errs, r.send(ctx, "index-complete", func(ctx context.Context) error {
			return r.announcer.Announce(ctx, rep)
		}))
	}
	err := errors.Join(errs...)
	if err == nil && r.Enabled() {
		r.logger.Info("build reported", "build_id", rep.BuildID, "status", rep.Status)
	}
	return err
}

func (r *Reporter) send(ctx context.Context, sink string, fn func(ctx context.Context) error) error {
	if err := resilience.Retry(ctx, sink, r.policy, fn); err != nil {
		r.logger.Warn("report sink failed", "sink", sink, "error", err)
		return fmt.Errorf("%s: %w", sink, err)
	}
	return nil
}

func (r *Reporter) key(buildID string) string {
	return r.keyPrefix + buildID
}
