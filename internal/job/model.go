package job

import (
	"time"

	"github.com/transcriptflow/transcriptflow/internal/youtube"
)

// Status is a job lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// IsTerminal reports whether the status is final.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// canTransition encodes the allowed status moves. Pending jobs may fail or be
// cancelled before enumeration finishes.
func canTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessing || to == StatusFailed || to == StatusCancelled
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed || to == StatusCancelled
	}
	return false
}

// OutcomeStatus classifies one per-video result.
type OutcomeStatus string

const (
	OutcomeSuccess      OutcomeStatus = "success"
	OutcomeNoTranscript OutcomeStatus = "no_transcript"
	OutcomeError        OutcomeStatus = "error"
	OutcomeRateLimited  OutcomeStatus = "rate_limited"
)

// Outcome is one video's result within a channel job.
type Outcome struct {
	Video      youtube.VideoItem         `json:"video"`
	Status     OutcomeStatus             `json:"status"`
	Transcript *youtube.TranscriptResult `json:"transcript,omitempty"`
	Error      string                    `json:"error,omitempty"`
}

// Progress is the observable progress of a job.
type Progress struct {
	Status            Status `json:"status"`
	TotalVideos       int    `json:"totalVideos"`
	CurrentVideoIndex int    `json:"currentVideoIndex"`
	CurrentVideoTitle string `json:"currentVideoTitle,omitempty"`
	SuccessCount      int    `json:"successCount"`
	FailedCount       int    `json:"failedCount"`
	Error             string `json:"error,omitempty"`
}

// Snapshot is a consistent point-in-time copy of a job for observers. Results
// holds only completed outcomes, in enumeration order.
type Snapshot struct {
	ID          string               `json:"jobId"`
	ChannelRef  string               `json:"channelRef"`
	Limit       int                  `json:"limit"`
	Owner       string               `json:"owner,omitempty"`
	ChannelInfo *youtube.ChannelInfo `json:"channelInfo,omitempty"`
	Progress    Progress             `json:"progress"`
	Results     []Outcome            `json:"results,omitempty"`
	CreatedAt   time.Time            `json:"createdAt"`
}
