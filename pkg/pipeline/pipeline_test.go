package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/telekom/m365-audit-ingest/pkg/activity"
	"github.com/telekom/m365-audit-ingest/pkg/records"
	"github.com/telekom/m365-audit-ingest/pkg/sink"
)

type fakeTokens struct {
	token string
	err   error
	calls int
}

func (f *fakeTokens) Token(context.Context) (string, time.Time, error) {
	f.calls++
	if f.err != nil {
		return "", time.Time{}, f.err
	}
	return f.token, time.Now().Add(time.Hour), nil
}

type fakeFeed struct {
	subscribeErr error
	listErr      error
	blobs        []activity.ContentBlob
	blobRecords  map[string][]records.Record
	fetchErrs    map[string]error

	listCalls  int
	fetchCalls int
}

func (f *fakeFeed) EnsureSubscription(context.Context, string) error {
	return f.subscribeErr
}

func (f *fakeFeed) ListContent(context.Context, string, time.Time, time.Time) ([]activity.ContentBlob, error) {
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.blobs, nil
}

func (f *fakeFeed) FetchRecords(_ context.Context, _ string, blob activity.ContentBlob) ([]records.Record, error) {
	f.fetchCalls++
	if err, ok := f.fetchErrs[blob.ContentID]; ok {
		return nil, err
	}
	return f.blobRecords[blob.ContentID], nil
}

type fakeSink struct {
	err     error
	batches [][]records.Record
}

func (f *fakeSink) WriteBatch(_ context.Context, recs []records.Record) error {
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, recs)
	return nil
}

func (f *fakeSink) Close() error { return nil }
func (f *fakeSink) Name() string { return "fake" }

func copilotRecord(id string) records.Record {
	return records.Record{"Id": id, "RecordType": float64(261), "Operation": "CopilotInteraction"}
}

func noiseRecord(id string) records.Record {
	return records.Record{"Id": id, "RecordType": float64(15), "Operation": "MailItemsAccessed", "Workload": "Exchange"}
}

func TestRunForwardsOnlyRelevantRecords(t *testing.T) {
	// Two blobs with 3 and 5 records, of which 2 are relevant in total:
	// exactly one forward call with exactly those 2 records.
	feed := &fakeFeed{
		blobs: []activity.ContentBlob{{ContentID: "a"}, {ContentID: "b"}},
		blobRecords: map[string][]records.Record{
			"a": {copilotRecord("a1"), noiseRecord("a2"), noiseRecord("a3")},
			"b": {noiseRecord("b1"), noiseRecord("b2"), copilotRecord("b3"), noiseRecord("b4"), noiseRecord("b5")},
		},
	}
	forwarder := &fakeSink{}
	p := New(Config{Lookback: time.Hour}, &fakeTokens{token: "tok"}, feed, forwarder, nil, zap.NewNop())

	res, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, res.BlobsListed)
	assert.Equal(t, 8, res.RecordsFetched)
	assert.Equal(t, 2, res.RecordsRelevant)
	assert.Equal(t, 2, res.RecordsForwarded)

	require.Len(t, forwarder.batches, 1)
	require.Len(t, forwarder.batches[0], 2)
	assert.Equal(t, "a1", forwarder.batches[0][0].ID())
	assert.Equal(t, "b3", forwarder.batches[0][1].ID())
}

func TestRunSkipsForwardWhenNothingRelevant(t *testing.T) {
	feed := &fakeFeed{
		blobs: []activity.ContentBlob{{ContentID: "a"}},
		blobRecords: map[string][]records.Record{
			"a": {noiseRecord("a1")},
		},
	}
	forwarder := &fakeSink{err: errors.New("must not be called")}
	p := New(Config{Lookback: time.Hour}, &fakeTokens{token: "tok"}, feed, forwarder, nil, zap.NewNop())

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.RecordsForwarded)
	assert.Empty(t, forwarder.batches)
}

func TestRunAbortsOnTokenFailure(t *testing.T) {
	// Token endpoint failure aborts before any content-listing call.
	feed := &fakeFeed{}
	p := New(Config{Lookback: time.Hour},
		&fakeTokens{err: errors.New("401 unauthorized")}, feed, &fakeSink{}, nil, zap.NewNop())

	_, err := p.Run(context.Background())
	require.Error(t, err)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageToken, stageErr.Stage)
	assert.Equal(t, 0, feed.listCalls)
}

func TestRunDegradesOnListingFailure(t *testing.T) {
	// A 500 from the listing endpoint degrades to "nothing to ingest":
	// no forward call, no error.
	feed := &fakeFeed{listErr: &activity.APIError{StatusCode: 500, Message: "boom"}}
	forwarder := &fakeSink{}
	p := New(Config{Lookback: time.Hour}, &fakeTokens{token: "tok"}, feed, forwarder, nil, zap.NewNop())

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.BlobsListed)
	assert.Contains(t, res.Degraded, StageList)
	assert.Empty(t, forwarder.batches)
}

func TestRunStrictPromotesListingFailure(t *testing.T) {
	feed := &fakeFeed{listErr: &activity.APIError{StatusCode: 500, Message: "boom"}}
	p := New(Config{Lookback: time.Hour, Strict: true}, &fakeTokens{token: "tok"}, feed, &fakeSink{}, nil, zap.NewNop())

	_, err := p.Run(context.Background())
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageList, stageErr.Stage)
}

func TestRunContinuesPastBlobFetchFailure(t *testing.T) {
	feed := &fakeFeed{
		blobs: []activity.ContentBlob{{ContentID: "bad"}, {ContentID: "good"}},
		blobRecords: map[string][]records.Record{
			"good": {copilotRecord("g1")},
		},
		fetchErrs: map[string]error{"bad": fmt.Errorf("fetch failed")},
	}
	forwarder := &fakeSink{}
	p := New(Config{Lookback: time.Hour}, &fakeTokens{token: "tok"}, feed, forwarder, nil, zap.NewNop())

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, feed.fetchCalls)
	assert.Equal(t, 1, res.RecordsForwarded)
	assert.Contains(t, res.Degraded, StageFetch)
}

func TestRunSubscriptionFailureIsBestEffort(t *testing.T) {
	feed := &fakeFeed{
		subscribeErr: errors.New("subscription rejected"),
		blobs:        []activity.ContentBlob{{ContentID: "a"}},
		blobRecords:  map[string][]records.Record{"a": {copilotRecord("a1")}},
	}
	forwarder := &fakeSink{}
	p := New(Config{Lookback: time.Hour}, &fakeTokens{token: "tok"}, feed, forwarder, nil, zap.NewNop())

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.RecordsForwarded)
	assert.Contains(t, res.Degraded, StageSubscription)
}

func TestRunForwardFailureIsFatal(t *testing.T) {
	feed := &fakeFeed{
		blobs:       []activity.ContentBlob{{ContentID: "a"}},
		blobRecords: map[string][]records.Record{"a": {copilotRecord("a1")}},
	}
	p := New(Config{Lookback: time.Hour}, &fakeTokens{token: "tok"}, feed,
		&fakeSink{err: errors.New("collector down")}, nil, zap.NewNop())

	_, err := p.Run(context.Background())
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageForward, stageErr.Stage)
}

func TestRunMirrorFailureDoesNotFailInvocation(t *testing.T) {
	feed := &fakeFeed{
		blobs:       []activity.ContentBlob{{ContentID: "a"}},
		blobRecords: map[string][]records.Record{"a": {copilotRecord("a1")}},
	}
	forwarder := &fakeSink{}
	mirror := &fakeSink{err: errors.New("kafka down")}
	p := New(Config{Lookback: time.Hour}, &fakeTokens{token: "tok"}, feed, forwarder,
		[]sink.Sink{mirror}, zap.NewNop())

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.RecordsForwarded)
}

func TestPolicyTable(t *testing.T) {
	p := New(Config{}, &fakeTokens{}, &fakeFeed{}, &fakeSink{}, nil, zap.NewNop())
	assert.Equal(t, PolicyFatal, p.PolicyFor(StageToken))
	assert.Equal(t, PolicyDegrade, p.PolicyFor(StageSubscription))
	assert.Equal(t, PolicyDegrade, p.PolicyFor(StageList))
	assert.Equal(t, PolicyDegrade, p.PolicyFor(StageFetch))
	assert.Equal(t, PolicyFatal, p.PolicyFor(StageForward))

	strict := New(Config{Strict: true}, &fakeTokens{}, &fakeFeed{}, &fakeSink{}, nil, zap.NewNop())
	assert.Equal(t, PolicyFatal, strict.PolicyFor(StageList))
	assert.Equal(t, PolicyFatal, strict.PolicyFor(StageFetch))
}
