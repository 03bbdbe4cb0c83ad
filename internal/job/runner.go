package job

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/transcriptflow/transcriptflow/internal/engine"
	"github.com/transcriptflow/transcriptflow/internal/quota"
	"github.com/transcriptflow/transcriptflow/internal/youtube"
)

// ChannelResolver enumerates a channel's uploads.
type ChannelResolver interface {
	Resolve(ctx context.Context, ref string, limit int) (*youtube.Channel, error)
}

// TranscriptFetcher fetches one video's transcript.
type TranscriptFetcher interface {
	Fetch(ctx context.Context, videoID string, policy youtube.FetchPolicy) (*youtube.TranscriptResult, error)
}

// QuotaGate guards per-video allowance during a batch.
type QuotaGate interface {
	Check(ctx context.Context, id quota.Identity, action quota.Action) (quota.Decision, error)
	Consume(ctx context.Context, id quota.Identity, action quota.Action) error
}

// Archiver persists finished transcripts. Archiving is best effort; failures
// never affect the job.
type Archiver interface {
	Save(ctx context.Context, owner string, res *youtube.TranscriptResult) (string, error)
}

// Runner executes channel jobs: enumerate, then fetch transcripts through a
// bounded worker pool, recording per-video outcomes as they land.
type Runner struct {
	reg      *Registry
	resolver ChannelResolver
	fetcher  TranscriptFetcher
	gate     QuotaGate
	archive  Archiver

	policy    youtube.FetchPolicy
	batchSize int
}

// NewRunner wires a runner. archive may be nil.
func NewRunner(reg *Registry, resolver ChannelResolver, fetcher TranscriptFetcher, gate QuotaGate, archive Archiver) *Runner {
	return &Runner{
		reg:      reg,
		resolver: resolver,
		fetcher:  fetcher,
		gate:     gate,
		archive:  archive,
		policy: youtube.FetchPolicy{
			Languages: engine.Cfg.Languages,
			Timeout:   engine.Cfg.FetchTimeout,
		},
		batchSize: engine.Cfg.BatchSize,
	}
}

// Start launches the job asynchronously. The identity is charged one quota
// unit per dispatched video.
func (r *Runner) Start(jobID string, id quota.Identity) {
	engine.IncrJobsStarted()
	go r.run(jobID, id)
}

func (r *Runner) run(jobID string, id quota.Identity) {
	ctx := context.Background()

	snap, ok := r.reg.Get(jobID)
	if !ok {
		return
	}

	ch, err := r.resolver.Resolve(ctx, snap.ChannelRef, snap.Limit)
	if err != nil {
		slog.Warn("job: channel resolution failed",
			slog.String("id", jobID), slog.String("ref", snap.ChannelRef), slog.Any("err", err))
		r.reg.Fail(jobID, err.Error())
		engine.IncrJobsFailed()
		return
	}

	if requested, ok := r.reg.CancelRequested(jobID); !ok {
		return
	} else if requested {
		r.reg.Finish(jobID, StatusCancelled)
		engine.IncrJobsCancelled()
		return
	}

	if !r.reg.StartProcessing(jobID, &ch.Info, ch.Videos) {
		return
	}

	var g errgroup.Group
	g.SetLimit(r.batchSize)

	for i, v := range ch.Videos {
		requested, ok := r.reg.CancelRequested(jobID)
		if !ok {
			// Job deleted mid-run; abandon quietly.
			g.Wait()
			return
		}
		if requested {
			break
		}

		if !r.allow(ctx, jobID, id, i, v) {
			continue
		}

		r.reg.SetCurrentVideo(jobID, v.Title)
		idx, video := i, v
		g.Go(func() error {
			res, err := r.fetcher.Fetch(ctx, video.VideoID, r.policy)
			r.reg.RecordOutcome(jobID, idx, outcomeFor(video, res, err))
			if err == nil && r.archive != nil {
				if _, aerr := r.archive.Save(ctx, snap.Owner, res); aerr != nil {
					slog.Warn("job: archive failed",
						slog.String("id", jobID), slog.String("video", video.VideoID), slog.Any("err", aerr))
				}
			}
			return nil
		})
	}

	g.Wait()

	requested, ok := r.reg.CancelRequested(jobID)
	if !ok {
		return
	}
	if requested {
		r.reg.Finish(jobID, StatusCancelled)
		engine.IncrJobsCancelled()
		return
	}
	r.reg.Finish(jobID, StatusCompleted)
	engine.IncrJobsCompleted()
}

// allow spends one quota unit for the video. Exhausted allowance records a
// rate_limited outcome; gate infrastructure errors fail open.
func (r *Runner) allow(ctx context.Context, jobID string, id quota.Identity, idx int, v youtube.VideoItem) bool {
	d, err := r.gate.Check(ctx, id, quota.ActionVideoExtraction)
	if err != nil {
		slog.Warn("job: quota check failed, allowing",
			slog.String("id", jobID), slog.Any("err", err))
		return true
	}
	if !d.Allowed {
		r.reg.RecordOutcome(jobID, idx, Outcome{Video: v, Status: OutcomeRateLimited, Error: d.Reason})
		return false
	}
	if err := r.gate.Consume(ctx, id, quota.ActionVideoExtraction); err != nil {
		if errors.Is(err, quota.ErrQuotaExceeded) {
			r.reg.RecordOutcome(jobID, idx, Outcome{Video: v, Status: OutcomeRateLimited, Error: "daily limit reached"})
			return false
		}
		slog.Warn("job: quota consume failed, allowing",
			slog.String("id", jobID), slog.Any("err", err))
	}
	return true
}

func outcomeFor(v youtube.VideoItem, res *youtube.TranscriptResult, err error) Outcome {
	switch {
	case err == nil:
		return Outcome{Video: v, Status: OutcomeSuccess, Transcript: res}
	case errors.Is(err, youtube.ErrNoCaptions):
		return Outcome{Video: v, Status: OutcomeNoTranscript, Error: "no transcript available"}
	default:
		return Outcome{Video: v, Status: OutcomeError, Error: err.Error()}
	}
}
