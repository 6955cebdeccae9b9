package poller

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jgoulah/smarthubscraper/internal/smarthub"
	"github.com/jgoulah/smarthubscraper/pkg/models"
)

type fakeFetcher struct {
	mu     sync.Mutex
	res    smarthub.FetchResult
	err    error
	called int
}

func (f *fakeFetcher) Fetch(ctx context.Context) (smarthub.FetchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called++
	return f.res, f.err
}

func (f *fakeFetcher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.called
}

type fakeRecorder struct {
	records []models.PollRecord
	err     error
}

func (r *fakeRecorder) InsertPoll(rec *models.PollRecord) error {
	if r.err != nil {
		return r.err
	}
	r.records = append(r.records, *rec)
	return nil
}

type fakePublisher struct {
	readings []models.UsageReading
	err      error
}

func (p *fakePublisher) Publish(ctx context.Context, reading models.UsageReading, at time.Time) error {
	p.readings = append(p.readings, reading)
	return p.err
}

func TestCycleOK(t *testing.T) {
	fetcher := &fakeFetcher{res: smarthub.FetchResult{
		Reading:    &models.UsageReading{Usage: 42.5},
		Outcome:    smarthub.OutcomeOK,
		StatusCode: http.StatusOK,
	}}
	rec := &fakeRecorder{}
	pub := &fakePublisher{}
	p := New(fetcher, rec, pub, nil)
	fixed := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	got, err := p.Cycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", got.Outcome)
	assert.Equal(t, fixed, got.PolledAt)
	assert.NotEmpty(t, got.CycleID)
	require.NotNil(t, got.Usage)
	assert.Equal(t, 42.5, *got.Usage)

	require.Len(t, rec.records, 1)
	assert.Equal(t, got.CycleID, rec.records[0].CycleID)
	assert.Equal(t, []models.UsageReading{{Usage: 42.5}}, pub.readings)
}

func TestCycleAbsent(t *testing.T) {
	fetcher := &fakeFetcher{res: smarthub.FetchResult{
		Outcome:    smarthub.OutcomeBadStatus,
		StatusCode: http.StatusInternalServerError,
	}}
	rec := &fakeRecorder{}
	pub := &fakePublisher{}
	p := New(fetcher, rec, pub, nil)

	got, err := p.Cycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "bad_status", got.Outcome)
	assert.Equal(t, http.StatusInternalServerError, got.StatusCode)
	assert.Nil(t, got.Usage)
	assert.Len(t, rec.records, 1)
	assert.Empty(t, pub.readings)
}

func TestCycleNotNumericDetail(t *testing.T) {
	fetcher := &fakeFetcher{res: smarthub.FetchResult{
		Outcome:    smarthub.OutcomeNotNumeric,
		StatusCode: http.StatusOK,
		Err:        smarthub.ErrNotNumeric,
	}}
	p := New(fetcher, nil, nil, nil)

	got, err := p.Cycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "not_numeric", got.Outcome)
	assert.Equal(t, smarthub.ErrNotNumeric.Error(), got.Detail)
}

func TestCycleAuthError(t *testing.T) {
	fetcher := &fakeFetcher{err: &smarthub.AuthenticationError{StatusCode: http.StatusForbidden}}
	rec := &fakeRecorder{}
	pub := &fakePublisher{}
	p := New(fetcher, rec, pub, nil)

	got, err := p.Cycle(context.Background())
	var authErr *smarthub.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, models.OutcomeAuthError, got.Outcome)
	assert.Equal(t, http.StatusForbidden, got.StatusCode)
	assert.Contains(t, got.Detail, "403")
	assert.Len(t, rec.records, 1)
	assert.Empty(t, pub.readings)
}

func TestCycleRecordAndPublishErrors(t *testing.T) {
	ok := smarthub.FetchResult{Reading: &models.UsageReading{Usage: 1}, Outcome: smarthub.OutcomeOK, StatusCode: http.StatusOK}

	t.Run("record error", func(t *testing.T) {
		p := New(&fakeFetcher{res: ok}, &fakeRecorder{err: errors.New("disk full")}, nil, nil)
		_, err := p.Cycle(context.Background())
		assert.ErrorContains(t, err, "disk full")
	})

	t.Run("publish error", func(t *testing.T) {
		p := New(&fakeFetcher{res: ok}, nil, &fakePublisher{err: errors.New("broker down")}, nil)
		_, err := p.Cycle(context.Background())
		assert.ErrorContains(t, err, "broker down")
	})
}

func TestRun(t *testing.T) {
	fetcher := &fakeFetcher{err: &smarthub.AuthenticationError{StatusCode: http.StatusUnauthorized}}
	p := New(fetcher, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- p.Run(ctx, 5*time.Millisecond)
	}()

	// auth errors do not stop the loop
	require.Eventually(t, func() bool { return fetcher.calls() >= 3 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunBadInterval(t *testing.T) {
	p := New(&fakeFetcher{}, nil, nil, nil)
	assert.Error(t, p.Run(context.Background(), 0))
}
