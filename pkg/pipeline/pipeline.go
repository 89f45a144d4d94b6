package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/telekom/m365-audit-ingest/pkg/activity"
	"github.com/telekom/m365-audit-ingest/pkg/metrics"
	"github.com/telekom/m365-audit-ingest/pkg/records"
	"github.com/telekom/m365-audit-ingest/pkg/sink"
)

// Stage identifies one step of the invocation pipeline.
type Stage string

const (
	StageToken        Stage = "token"
	StageSubscription Stage = "subscription"
	StageList         Stage = "list"
	StageFetch        Stage = "fetch"
	StageForward      Stage = "forward"
)

// Policy decides what a stage failure does to the invocation.
type Policy int

const (
	// PolicyFatal aborts the invocation on failure.
	PolicyFatal Policy = iota
	// PolicyDegrade logs the failure and continues with whatever the
	// stage produced (typically nothing).
	PolicyDegrade
)

func (p Policy) String() string {
	if p == PolicyFatal {
		return "fatal"
	}
	return "degrade"
}

// TokenSource issues bearer tokens for the source API.
type TokenSource interface {
	Token(ctx context.Context) (string, time.Time, error)
}

// Feed is the audit content feed the pipeline reads from.
type Feed interface {
	EnsureSubscription(ctx context.Context, token string) error
	ListContent(ctx context.Context, token string, start, end time.Time) ([]activity.ContentBlob, error)
	FetchRecords(ctx context.Context, token string, blob activity.ContentBlob) ([]records.Record, error)
}

// Config tunes one pipeline instance.
type Config struct {
	// Lookback is the listing window size: [now - Lookback, now].
	Lookback time.Duration

	// Strict promotes the listing and fetch stages to PolicyFatal.
	Strict bool

	// Now overrides the clock used to compute the window.
	Now func() time.Time
}

// Pipeline runs one linear fetch-filter-forward invocation at a time.
// Invocations are independent; the external scheduler is responsible for
// not overlapping runs.
type Pipeline struct {
	tokens    TokenSource
	feed      Feed
	forwarder sink.Sink
	mirrors   []sink.Sink
	policies  map[Stage]Policy
	lookback  time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

// New builds a pipeline. The forwarder is the system of record; mirror
// failures are logged and counted but never fail the invocation.
func New(cfg Config, tokens TokenSource, feed Feed, forwarder sink.Sink, mirrors []sink.Sink, logger *zap.Logger) *Pipeline {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	lookback := cfg.Lookback
	if lookback <= 0 {
		lookback = time.Hour
	}

	policies := map[Stage]Policy{
		StageToken:        PolicyFatal,
		StageSubscription: PolicyDegrade,
		StageList:         PolicyDegrade,
		StageFetch:        PolicyDegrade,
		StageForward:      PolicyFatal,
	}
	if cfg.Strict {
		policies[StageList] = PolicyFatal
		policies[StageFetch] = PolicyFatal
	}

	return &Pipeline{
		tokens:    tokens,
		feed:      feed,
		forwarder: forwarder,
		mirrors:   mirrors,
		policies:  policies,
		lookback:  lookback,
		now:       now,
		logger:    logger.Named("pipeline"),
	}
}

// PolicyFor returns the failure policy of a stage.
func (p *Pipeline) PolicyFor(stage Stage) Policy {
	return p.policies[stage]
}

// Close closes the forwarder and all mirror sinks, returning the first
// close error.
func (p *Pipeline) Close() error {
	firstErr := p.forwarder.Close()
	for _, m := range p.mirrors {
		if err := m.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Result summarizes one invocation.
type Result struct {
	Invocation       string    `json:"invocation"`
	WindowStart      time.Time `json:"windowStart"`
	WindowEnd        time.Time `json:"windowEnd"`
	BlobsListed      int       `json:"blobsListed"`
	RecordsFetched   int       `json:"recordsFetched"`
	RecordsRelevant  int       `json:"recordsRelevant"`
	RecordsForwarded int       `json:"recordsForwarded"`
	Degraded         []Stage   `json:"degraded,omitempty"`
}

// StageError is a fatal stage failure.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// degrade records a non-fatal stage failure on the result.
func (p *Pipeline) degrade(res *Result, stage Stage, logger *zap.Logger, err error) {
	metrics.StageDegraded.WithLabelValues(string(stage)).Inc()
	res.Degraded = append(res.Degraded, stage)
	logger.Warn("stage degraded, continuing",
		zap.String("stage", string(stage)),
		zap.Error(err))
}

// Run performs one invocation: window → token → ensure subscription →
// list → fetch → filter → forward. A fatal stage failure aborts and is
// returned; the caller reports it to the external trigger, which owns
// retries.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	metrics.InvocationsStarted.Inc()

	invocation := uuid.NewString()
	logger := p.logger.With(zap.String("correlation_id", invocation))

	end := p.now()
	res := &Result{
		Invocation:  invocation,
		WindowStart: end.Add(-p.lookback),
		WindowEnd:   end,
	}
	logger.Info("invocation started",
		zap.Time("windowStart", res.WindowStart),
		zap.Time("windowEnd", res.WindowEnd))

	defer func() {
		metrics.InvocationDuration.Observe(time.Since(start).Seconds())
	}()

	token, _, err := p.tokens.Token(ctx)
	if err != nil {
		metrics.InvocationsFailed.WithLabelValues(string(StageToken)).Inc()
		logger.Error("token acquisition failed, aborting", zap.Error(err))
		return res, &StageError{Stage: StageToken, Err: err}
	}

	if err := p.feed.EnsureSubscription(ctx, token); err != nil {
		// Best-effort: the subscription may already exist from a prior
		// run, so ingestion proceeds regardless.
		p.degrade(res, StageSubscription, logger, err)
	}

	blobs, err := p.feed.ListContent(ctx, token, res.WindowStart, res.WindowEnd)
	if err != nil {
		if p.policies[StageList] == PolicyFatal {
			metrics.InvocationsFailed.WithLabelValues(string(StageList)).Inc()
			return res, &StageError{Stage: StageList, Err: err}
		}
		p.degrade(res, StageList, logger, err)
		blobs = nil
	}
	res.BlobsListed = len(blobs)
	metrics.ContentBlobsListed.Add(float64(len(blobs)))

	// Sequential fetch in listing order; duplicates across overlapping
	// blobs are passed through untouched.
	var fetched []records.Record
	for _, blob := range blobs {
		recs, err := p.feed.FetchRecords(ctx, token, blob)
		if err != nil {
			if p.policies[StageFetch] == PolicyFatal {
				metrics.InvocationsFailed.WithLabelValues(string(StageFetch)).Inc()
				return res, &StageError{Stage: StageFetch, Err: err}
			}
			p.degrade(res, StageFetch, logger, err)
			continue
		}
		fetched = append(fetched, recs...)
	}
	res.RecordsFetched = len(fetched)
	metrics.RecordsFetched.Add(float64(len(fetched)))

	var relevant []records.Record
	for _, r := range fetched {
		if ok, predicate := records.Relevant(r); ok {
			metrics.RecordsRelevant.WithLabelValues(predicate).Inc()
			relevant = append(relevant, r)
		}
	}
	res.RecordsRelevant = len(relevant)

	if len(relevant) == 0 {
		logger.Info("no relevant records, nothing to forward",
			zap.Int("fetched", res.RecordsFetched))
		metrics.InvocationsSucceeded.Inc()
		return res, nil
	}

	if err := p.forwarder.WriteBatch(ctx, relevant); err != nil {
		metrics.InvocationsFailed.WithLabelValues(string(StageForward)).Inc()
		logger.Error("forwarding failed",
			zap.String("sink", p.forwarder.Name()),
			zap.Int("records", len(relevant)),
			zap.Error(err))
		return res, &StageError{Stage: StageForward, Err: err}
	}
	res.RecordsForwarded = len(relevant)

	for _, mirror := range p.mirrors {
		if err := mirror.WriteBatch(ctx, relevant); err != nil {
			logger.Warn("mirror write failed",
				zap.String("sink", mirror.Name()),
				zap.Error(err))
		}
	}

	metrics.InvocationsSucceeded.Inc()
	logger.Info("invocation completed",
		zap.Int("blobs", res.BlobsListed),
		zap.Int("fetched", res.RecordsFetched),
		zap.Int("relevant", res.RecordsRelevant),
		zap.Int("forwarded", res.RecordsForwarded))
	return res, nil
}
