package job

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/transcriptflow/transcriptflow/internal/youtube"
)

// Registry is the in-memory job store. Each job carries its own lock so
// observers of one job never contend with workers of another; the registry
// lock covers only map membership.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*record

	ttl  time.Duration
	stop chan struct{}
	once sync.Once
}

// record is one job's mutable state. Slots are pre-sized at enumeration time
// and filled out of order by workers; snapshots compact the filled ones in
// enumeration order.
type record struct {
	mu sync.RWMutex

	id         string
	channelRef string
	limit      int
	owner      string
	createdAt  time.Time

	status          Status
	channelInfo     *youtube.ChannelInfo
	videos          []youtube.VideoItem
	slots           []Outcome
	filled          []bool
	completed       int
	successCount    int
	failedCount     int
	currentTitle    string
	errMsg          string
	cancelRequested bool
}

// NewRegistry returns a running registry whose reaper evicts jobs older than
// ttl, regardless of status.
func NewRegistry(ttl time.Duration) *Registry {
	r := &Registry{
		jobs: make(map[string]*record),
		ttl:  ttl,
		stop: make(chan struct{}),
	}
	go r.reapLoop()
	return r
}

// Close stops the background reaper.
func (r *Registry) Close() {
	r.once.Do(func() { close(r.stop) })
}

// Create registers a new pending job and returns its ID.
func (r *Registry) Create(channelRef string, limit int, owner string) string {
	rec := &record{
		id:         uuid.NewString(),
		channelRef: channelRef,
		limit:      limit,
		owner:      owner,
		createdAt:  time.Now(),
		status:     StatusPending,
	}
	r.mu.Lock()
	r.jobs[rec.id] = rec
	r.mu.Unlock()
	return rec.id
}

// Get returns a consistent snapshot of the job.
func (r *Registry) Get(id string) (Snapshot, bool) {
	rec := r.lookup(id)
	if rec == nil {
		return Snapshot{}, false
	}
	rec.mu.RLock()
	defer rec.mu.RUnlock()
	return rec.snapshotLocked(), true
}

// Delete removes a job. A running batch notices on its next registry call and
// stops quietly.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[id]; !ok {
		return false
	}
	delete(r.jobs, id)
	return true
}

// RequestCancel flags the job for cooperative cancellation. Safe to call
// repeatedly; a no-op on terminal jobs. Returns false only when the job does
// not exist.
func (r *Registry) RequestCancel(id string) bool {
	rec := r.lookup(id)
	if rec == nil {
		return false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if !rec.status.IsTerminal() {
		rec.cancelRequested = true
	}
	return true
}

// CancelRequested reports the cancel flag. ok is false when the job has been
// deleted.
func (r *Registry) CancelRequested(id string) (requested, ok bool) {
	rec := r.lookup(id)
	if rec == nil {
		return false, false
	}
	rec.mu.RLock()
	defer rec.mu.RUnlock()
	return rec.cancelRequested, true
}

// StartProcessing moves the job to processing and installs the enumerated
// channel: result slots are sized to the video list before any worker runs.
func (r *Registry) StartProcessing(id string, info *youtube.ChannelInfo, videos []youtube.VideoItem) bool {
	rec := r.lookup(id)
	if rec == nil {
		return false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if !canTransition(rec.status, StatusProcessing) {
		return false
	}
	rec.status = StatusProcessing
	rec.channelInfo = info
	rec.videos = videos
	rec.slots = make([]Outcome, len(videos))
	rec.filled = make([]bool, len(videos))
	return true
}

// SetCurrentVideo records the most recently dispatched video for observers.
func (r *Registry) SetCurrentVideo(id, title string) bool {
	rec := r.lookup(id)
	if rec == nil {
		return false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.currentTitle = title
	return true
}

// RecordOutcome stores the result for the video at enumeration index idx.
func (r *Registry) RecordOutcome(id string, idx int, o Outcome) bool {
	rec := r.lookup(id)
	if rec == nil {
		return false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if idx < 0 || idx >= len(rec.slots) || rec.filled[idx] {
		return false
	}
	rec.slots[idx] = o
	rec.filled[idx] = true
	rec.completed++
	if o.Status == OutcomeSuccess {
		rec.successCount++
	} else {
		rec.failedCount++
	}
	return true
}

// Finish moves the job to a terminal status.
func (r *Registry) Finish(id string, status Status) bool {
	rec := r.lookup(id)
	if rec == nil {
		return false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if !canTransition(rec.status, status) {
		return false
	}
	rec.status = status
	rec.currentTitle = ""
	return true
}

// Fail moves the job to failed with an error message. Valid from pending
// (enumeration failure) and processing.
func (r *Registry) Fail(id, msg string) bool {
	rec := r.lookup(id)
	if rec == nil {
		return false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if !canTransition(rec.status, StatusFailed) {
		return false
	}
	rec.status = StatusFailed
	rec.errMsg = msg
	rec.currentTitle = ""
	return true
}

// Len returns the number of live jobs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

func (r *Registry) lookup(id string) *record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.jobs[id]
}

// snapshotLocked builds a Snapshot. Caller holds rec.mu (read or write).
func (rec *record) snapshotLocked() Snapshot {
	s := Snapshot{
		ID:          rec.id,
		ChannelRef:  rec.channelRef,
		Limit:       rec.limit,
		Owner:       rec.owner,
		ChannelInfo: rec.channelInfo,
		CreatedAt:   rec.createdAt,
		Progress: Progress{
			Status:            rec.status,
			TotalVideos:       len(rec.videos),
			CurrentVideoIndex: rec.completed,
			CurrentVideoTitle: rec.currentTitle,
			SuccessCount:      rec.successCount,
			FailedCount:       rec.failedCount,
			Error:             rec.errMsg,
		},
	}
	if rec.completed > 0 {
		s.Results = make([]Outcome, 0, rec.completed)
		for i, ok := range rec.filled {
			if ok {
				s.Results = append(s.Results, rec.slots[i])
			}
		}
	}
	return s
}

func (r *Registry) reapLoop() {
	interval := r.ttl / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.reap()
		}
	}
}

// reap drops jobs older than the TTL. Workers of a reaped job stop on their
// next registry call, same as after an explicit delete.
func (r *Registry) reap() {
	cutoff := time.Now().Add(-r.ttl)
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, rec := range r.jobs {
		rec.mu.RLock()
		stale := rec.createdAt.Before(cutoff)
		rec.mu.RUnlock()
		if stale {
			delete(r.jobs, id)
			slog.Debug("job store: reaped expired job", slog.String("id", id))
		}
	}
}
