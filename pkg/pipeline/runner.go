package pipeline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Notifier is told about consecutive invocation failures. Implementations
// must never block the ingestion loop for long.
type Notifier interface {
	NotifyFailure(consecutive int, lastErr error)
	NotifyRecovery()
}

// Status is a point-in-time snapshot of the runner for the status endpoint.
type Status struct {
	Running             bool      `json:"running"`
	LastRun             time.Time `json:"lastRun,omitempty"`
	LastSuccess         time.Time `json:"lastSuccess,omitempty"`
	LastError           string    `json:"lastError,omitempty"`
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	LastResult          *Result   `json:"lastResult,omitempty"`
}

// Runner drives the pipeline on a fixed interval for environments without
// an external trigger. One-shot invocations remain the primary mode; the
// runner only adds scheduling and failure accounting around Run.
type Runner struct {
	pipeline *Pipeline
	interval time.Duration
	notifier Notifier
	// FailureThreshold is the consecutive-failure count that triggers a
	// notification. Zero disables notifications.
	failureThreshold int
	logger           *zap.Logger

	mu     sync.RWMutex
	status Status
}

// NewRunner builds a serve-mode runner.
func NewRunner(p *Pipeline, interval time.Duration, notifier Notifier, failureThreshold int, logger *zap.Logger) *Runner {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Runner{
		pipeline:         p,
		interval:         interval,
		notifier:         notifier,
		failureThreshold: failureThreshold,
		logger:           logger.Named("runner"),
	}
}

// Status returns a snapshot of the runner state.
func (r *Runner) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// RunOnce performs a single invocation and updates failure accounting.
func (r *Runner) RunOnce(ctx context.Context) (*Result, error) {
	res, err := r.pipeline.Run(ctx)

	r.mu.Lock()
	r.status.LastRun = time.Now()
	r.status.LastResult = res
	if err != nil {
		r.status.LastError = err.Error()
		r.status.ConsecutiveFailures++
	} else {
		r.status.LastError = ""
		r.status.LastSuccess = r.status.LastRun
		recovered := r.status.ConsecutiveFailures >= r.failureThreshold && r.failureThreshold > 0
		r.status.ConsecutiveFailures = 0
		if recovered && r.notifier != nil {
			defer r.notifier.NotifyRecovery()
		}
	}
	consecutive := r.status.ConsecutiveFailures
	r.mu.Unlock()

	if err != nil && r.notifier != nil && r.failureThreshold > 0 && consecutive >= r.failureThreshold {
		r.notifier.NotifyFailure(consecutive, err)
	}
	return res, err
}

// Run loops until the context is cancelled, invoking the pipeline once
// immediately and then on every interval tick.
func (r *Runner) Run(ctx context.Context) {
	r.mu.Lock()
	r.status.Running = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.status.Running = false
		r.mu.Unlock()
	}()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("runner started", zap.Duration("interval", r.interval))
	for {
		if _, err := r.RunOnce(ctx); err != nil {
			r.logger.Error("invocation failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			r.logger.Info("runner stopping")
			return
		case <-ticker.C:
		}
	}
}
