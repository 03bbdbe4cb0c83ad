package job

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transcriptflow/transcriptflow/internal/engine"
	"github.com/transcriptflow/transcriptflow/internal/quota"
	"github.com/transcriptflow/transcriptflow/internal/youtube"
)

type stubResolver struct {
	ch  *youtube.Channel
	err error
}

func (s *stubResolver) Resolve(context.Context, string, int) (*youtube.Channel, error) {
	return s.ch, s.err
}

type stubTranscriptFetcher struct {
	mu    sync.Mutex
	calls atomic.Int32
	fn    func(videoID string) (*youtube.TranscriptResult, error)
}

func (s *stubTranscriptFetcher) Fetch(_ context.Context, videoID string, _ youtube.FetchPolicy) (*youtube.TranscriptResult, error) {
	s.calls.Add(1)
	s.mu.Lock()
	fn := s.fn
	s.mu.Unlock()
	return fn(videoID)
}

func okTranscript(videoID string) *youtube.TranscriptResult {
	return &youtube.TranscriptResult{
		VideoInfo: youtube.VideoInfo{VideoID: videoID, Title: "t"},
		Segments:  []youtube.Segment{{Text: "hi", Duration: 1}},
		PlainText: "hi",
		WordCount: 1,
	}
}

func testChannel(n int) *youtube.Channel {
	return &youtube.Channel{
		Info:   youtube.ChannelInfo{ID: "UCtest", Name: "Test Channel"},
		Videos: testVideos(n),
	}
}

func bizGate(t *testing.T) (*quota.Gate, quota.Identity) {
	t.Helper()
	store := quota.NewMemStore()
	store.SetTier("biz", quota.TierBusiness)
	return quota.NewGate(store), quota.Identity{UserID: "biz"}
}

func waitTerminal(t *testing.T, reg *Registry, id string) Snapshot {
	t.Helper()
	var snap Snapshot
	require.Eventually(t, func() bool {
		s, ok := reg.Get(id)
		if !ok {
			return false
		}
		snap = s
		return s.Progress.Status.IsTerminal()
	}, 5*time.Second, 5*time.Millisecond)
	return snap
}

func TestRunHappyPath(t *testing.T) {
	engine.Init(engine.Config{BatchSize: 3})
	reg := newTestRegistry(t)
	gate, id := bizGate(t)

	fetcher := &stubTranscriptFetcher{fn: func(videoID string) (*youtube.TranscriptResult, error) {
		if videoID == "vid00000001" {
			return nil, fmt.Errorf("fetch transcript %s: %w", videoID, youtube.ErrNoCaptions)
		}
		return okTranscript(videoID), nil
	}}

	r := NewRunner(reg, &stubResolver{ch: testChannel(3)}, fetcher, gate, nil)
	jobID := reg.Create("@testchannel", 10, id.Key())
	r.Start(jobID, id)

	snap := waitTerminal(t, reg, jobID)
	assert.Equal(t, StatusCompleted, snap.Progress.Status)
	assert.Equal(t, 3, snap.Progress.TotalVideos)
	assert.Equal(t, 2, snap.Progress.SuccessCount)
	assert.Equal(t, 1, snap.Progress.FailedCount)
	require.NotNil(t, snap.ChannelInfo)
	assert.Equal(t, "Test Channel", snap.ChannelInfo.Name)

	require.Len(t, snap.Results, 3)
	// Enumeration order, regardless of which worker finished first.
	assert.Equal(t, "vid00000000", snap.Results[0].Video.VideoID)
	assert.Equal(t, OutcomeSuccess, snap.Results[0].Status)
	assert.Equal(t, OutcomeNoTranscript, snap.Results[1].Status)
	assert.Nil(t, snap.Results[1].Transcript)
	assert.Equal(t, OutcomeSuccess, snap.Results[2].Status)
}

func TestRunEnumerationFailure(t *testing.T) {
	engine.Init(engine.Config{})
	reg := newTestRegistry(t)
	gate, id := bizGate(t)

	r := NewRunner(reg, &stubResolver{err: youtube.ErrChannelNotFound}, &stubTranscriptFetcher{}, gate, nil)
	jobID := reg.Create("@missing", 10, id.Key())
	r.Start(jobID, id)

	snap := waitTerminal(t, reg, jobID)
	assert.Equal(t, StatusFailed, snap.Progress.Status)
	assert.NotEmpty(t, snap.Progress.Error)
	assert.Empty(t, snap.Results)
}

func TestRunCancelBeforeProcessing(t *testing.T) {
	engine.Init(engine.Config{})
	reg := newTestRegistry(t)
	gate, id := bizGate(t)

	fetcher := &stubTranscriptFetcher{fn: func(videoID string) (*youtube.TranscriptResult, error) {
		return okTranscript(videoID), nil
	}}
	r := NewRunner(reg, &stubResolver{ch: testChannel(5)}, fetcher, gate, nil)

	jobID := reg.Create("@testchannel", 10, id.Key())
	require.True(t, reg.RequestCancel(jobID))
	r.Start(jobID, id)

	snap := waitTerminal(t, reg, jobID)
	assert.Equal(t, StatusCancelled, snap.Progress.Status)
	assert.Equal(t, int32(0), fetcher.calls.Load())
}

func TestRunCancelMidBatch(t *testing.T) {
	engine.Init(engine.Config{BatchSize: 1})
	reg := newTestRegistry(t)
	gate, id := bizGate(t)

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	fetcher := &stubTranscriptFetcher{fn: func(videoID string) (*youtube.TranscriptResult, error) {
		once.Do(func() {
			close(started)
			<-release
		})
		return okTranscript(videoID), nil
	}}

	r := NewRunner(reg, &stubResolver{ch: testChannel(5)}, fetcher, gate, nil)
	jobID := reg.Create("@testchannel", 10, id.Key())
	r.Start(jobID, id)

	<-started
	require.True(t, reg.RequestCancel(jobID))
	close(release)

	snap := waitTerminal(t, reg, jobID)
	assert.Equal(t, StatusCancelled, snap.Progress.Status)
	// In-flight fetches finish; undispatched videos never start.
	assert.GreaterOrEqual(t, len(snap.Results), 1)
	assert.Less(t, len(snap.Results), 5)
	assert.Equal(t, len(snap.Results), snap.Progress.CurrentVideoIndex)
}

func TestRunQuotaExhaustion(t *testing.T) {
	engine.Init(engine.Config{BatchSize: 2})
	reg := newTestRegistry(t)

	// Free tier: 3 videos per day, so a 5-video channel ends with 2
	// rate-limited outcomes.
	gate := quota.NewGate(quota.NewMemStore())
	id := quota.Identity{UserID: "free-user"}

	fetcher := &stubTranscriptFetcher{fn: func(videoID string) (*youtube.TranscriptResult, error) {
		return okTranscript(videoID), nil
	}}
	r := NewRunner(reg, &stubResolver{ch: testChannel(5)}, fetcher, gate, nil)
	jobID := reg.Create("@testchannel", 10, id.Key())
	r.Start(jobID, id)

	snap := waitTerminal(t, reg, jobID)
	assert.Equal(t, StatusCompleted, snap.Progress.Status)
	assert.Equal(t, 3, snap.Progress.SuccessCount)
	assert.Equal(t, 2, snap.Progress.FailedCount)
	require.Len(t, snap.Results, 5)

	limited := 0
	for _, o := range snap.Results {
		if o.Status == OutcomeRateLimited {
			limited++
			assert.Nil(t, o.Transcript)
			assert.NotEmpty(t, o.Error)
		}
	}
	assert.Equal(t, 2, limited)
}

func TestRunDeleteWhileRunning(t *testing.T) {
	engine.Init(engine.Config{BatchSize: 1})
	reg := newTestRegistry(t)
	gate, id := bizGate(t)

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	fetcher := &stubTranscriptFetcher{fn: func(videoID string) (*youtube.TranscriptResult, error) {
		once.Do(func() {
			close(started)
			<-release
		})
		return okTranscript(videoID), nil
	}}

	r := NewRunner(reg, &stubResolver{ch: testChannel(5)}, fetcher, gate, nil)
	jobID := reg.Create("@testchannel", 10, id.Key())
	r.Start(jobID, id)

	<-started
	require.True(t, reg.Delete(jobID))
	close(release)

	// The batch notices the loss and stops dispatching.
	assert.Eventually(t, func() bool {
		return fetcher.calls.Load() <= 2
	}, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, fetcher.calls.Load(), int32(2))

	_, ok := reg.Get(jobID)
	assert.False(t, ok)
}

func TestOutcomeFor(t *testing.T) {
	v := youtube.VideoItem{VideoID: "vid00000000"}

	o := outcomeFor(v, okTranscript(v.VideoID), nil)
	assert.Equal(t, OutcomeSuccess, o.Status)
	require.NotNil(t, o.Transcript)

	o = outcomeFor(v, nil, fmt.Errorf("wrap: %w", youtube.ErrNoCaptions))
	assert.Equal(t, OutcomeNoTranscript, o.Status)
	assert.Nil(t, o.Transcript)

	o = outcomeFor(v, nil, errors.New("boom"))
	assert.Equal(t, OutcomeError, o.Status)
	assert.Equal(t, "boom", o.Error)
}
