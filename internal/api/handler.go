package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/transcriptflow/transcriptflow/internal/engine"
	"github.com/transcriptflow/transcriptflow/internal/job"
	"github.com/transcriptflow/transcriptflow/internal/quota"
	"github.com/transcriptflow/transcriptflow/internal/storage"
	"github.com/transcriptflow/transcriptflow/internal/youtube"
)

// Handler holds the dependencies for all HTTP handlers.
type Handler struct {
	reg     *job.Registry
	runner  *job.Runner
	gate    *quota.Gate
	fetcher job.TranscriptFetcher
	archive *storage.Archive // nil disables history and export
}

// NewHandler constructs a Handler with the given dependencies.
func NewHandler(reg *job.Registry, runner *job.Runner, gate *quota.Gate, fetcher job.TranscriptFetcher, archive *storage.Archive) *Handler {
	return &Handler{reg: reg, runner: runner, gate: gate, fetcher: fetcher, archive: archive}
}

// RegisterRoutes registers all API routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/extract/video", h.ExtractVideo)
	mux.HandleFunc("POST /api/v1/extract/channel", h.CreateChannelJob)
	mux.HandleFunc("GET /api/v1/extract/channel/{jobId}", h.GetChannelJob)
	mux.HandleFunc("DELETE /api/v1/extract/channel/{jobId}", h.DeleteChannelJob)
	mux.HandleFunc("GET /api/v1/transcripts", h.ListTranscripts)
	mux.HandleFunc("DELETE /api/v1/transcripts/{id}", h.DeleteTranscript)
	mux.HandleFunc("GET /api/v1/export/{id}", h.ExportTranscript)
	mux.HandleFunc("GET /api/v1/usage", h.Usage)
	mux.HandleFunc("GET /api/v1/health", h.Health)
	mux.HandleFunc("GET /api/v1/metrics", h.Metrics)
}

// identity derives the caller identity from the X-User-ID header, falling
// back to the client IP for anonymous callers.
func identity(r *http.Request) quota.Identity {
	return quota.Identity{UserID: r.Header.Get("X-User-ID"), IP: clientIP(r)}
}

type extractVideoRequest struct {
	URL       string   `json:"url"`
	Languages []string `json:"languages,omitempty"`
}

// ExtractVideo handles POST /api/v1/extract/video: synchronous single-video
// transcript extraction.
func (h *Handler) ExtractVideo(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req extractVideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	videoID := youtube.ExtractVideoID(req.URL)
	if videoID == "" {
		writeError(w, http.StatusBadRequest, "invalid YouTube video URL or ID")
		return
	}

	id := identity(r)
	if err := h.gate.Consume(r.Context(), id, quota.ActionVideoExtraction); err != nil {
		if errors.Is(err, quota.ErrQuotaExceeded) {
			writeError(w, http.StatusTooManyRequests, "daily extraction limit reached")
			return
		}
		writeError(w, http.StatusInternalServerError, "quota check failed")
		return
	}

	res, err := h.fetcher.Fetch(r.Context(), videoID, youtube.FetchPolicy{
		Languages: req.Languages,
		Timeout:   engine.Cfg.FetchTimeout,
	})
	if err != nil {
		if errors.Is(err, youtube.ErrNoCaptions) {
			writeError(w, http.StatusNotFound, "no transcript available for this video")
			return
		}
		writeError(w, http.StatusBadGateway, "transcript extraction failed")
		return
	}

	resp := map[string]any{"transcript": res}
	if h.archive != nil {
		if tid, err := h.archive.Save(r.Context(), id.Key(), res); err == nil {
			resp["transcriptId"] = tid
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type createChannelJobRequest struct {
	ChannelURL string `json:"channelUrl"`
	MaxVideos  int    `json:"maxVideos,omitempty"`
}

// CreateChannelJob handles POST /api/v1/extract/channel and responds 202 with
// the job ID. Per-video quota is charged as the batch dispatches, not here.
func (h *Handler) CreateChannelJob(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req createChannelJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if youtube.ExtractChannelRef(req.ChannelURL) == nil {
		writeError(w, http.StatusBadRequest, "invalid YouTube channel URL or handle")
		return
	}

	id := identity(r)
	d, err := h.gate.Check(r.Context(), id, quota.ActionChannelExtraction)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "quota check failed")
		return
	}
	if !d.Allowed {
		writeError(w, http.StatusForbidden, d.Reason)
		return
	}

	limit := engine.ClampChannelLimit(req.MaxVideos)
	if stats, err := h.gate.Stats(r.Context(), id); err == nil {
		if tierMax := stats.Limits.MaxChannelVideos; tierMax > 0 && limit > tierMax {
			limit = tierMax
		}
	}

	jobID := h.reg.Create(req.ChannelURL, limit, id.Key())
	h.runner.Start(jobID, id)

	writeJSON(w, http.StatusAccepted, map[string]any{
		"jobId":  jobID,
		"status": job.StatusPending,
	})
}

// GetChannelJob handles GET /api/v1/extract/channel/{jobId}: the polling
// endpoint. Per-video results are included only once the job is terminal.
func (h *Handler) GetChannelJob(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.reg.Get(r.PathValue("jobId"))
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	resp := map[string]any{
		"jobId":     snap.ID,
		"status":    snap.Progress.Status,
		"progress":  snap.Progress,
		"createdAt": snap.CreatedAt,
	}
	if snap.ChannelInfo != nil {
		resp["channelInfo"] = snap.ChannelInfo
	}
	if snap.Progress.Error != "" {
		resp["error"] = snap.Progress.Error
	}
	switch snap.Progress.Status {
	case job.StatusCompleted, job.StatusCancelled:
		results := snap.Results
		if results == nil {
			results = []job.Outcome{}
		}
		resp["results"] = results
	}
	writeJSON(w, http.StatusOK, resp)
}

// DeleteChannelJob handles DELETE /api/v1/extract/channel/{jobId}.
// With ?action=cancel the job is flagged for cooperative cancellation and
// kept; otherwise it is removed outright, stopping any running batch.
func (h *Handler) DeleteChannelJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("jobId")

	if r.URL.Query().Get("action") == "cancel" {
		if !h.reg.RequestCancel(jobID) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
		return
	}

	if !h.reg.Delete(jobID) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListTranscripts handles GET /api/v1/transcripts: the caller's archive,
// newest first.
func (h *Handler) ListTranscripts(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		writeError(w, http.StatusNotImplemented, "transcript history is not enabled")
		return
	}
	limit := parseIntParam(r.URL.Query().Get("limit"), 20)
	offset := parseIntParam(r.URL.Query().Get("offset"), 0)

	entries, total, err := h.archive.List(r.Context(), identity(r).Key(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list transcripts")
		return
	}
	if entries == nil {
		entries = []storage.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"transcripts": entries,
		"total":       total,
		"limit":       limit,
		"offset":      offset,
	})
}

// DeleteTranscript handles DELETE /api/v1/transcripts/{id}.
func (h *Handler) DeleteTranscript(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		writeError(w, http.StatusNotImplemented, "transcript history is not enabled")
		return
	}
	ok, err := h.archive.Delete(r.Context(), identity(r).Key(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete transcript")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "transcript not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ExportTranscript handles GET /api/v1/export/{id}?format=txt|srt|json,
// serving an archived transcript as a download.
func (h *Handler) ExportTranscript(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		writeError(w, http.StatusNotImplemented, "transcript history is not enabled")
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = youtube.FormatTXT
	}
	if !youtube.ValidFormat(format) {
		writeError(w, http.StatusBadRequest, "unsupported format, expected txt, srt, or json")
		return
	}

	res, err := h.archive.Get(r.Context(), identity(r).Key(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load transcript")
		return
	}
	if res == nil {
		writeError(w, http.StatusNotFound, "transcript not found")
		return
	}

	data, contentType, err := youtube.Export(res, format)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", res.VideoInfo.VideoID+"."+format))
	w.WriteHeader(http.StatusOK)
	w.Write(data) //nolint:errcheck
}

// Usage handles GET /api/v1/usage: today's and this month's extraction counts
// plus the caller's tier limits.
func (h *Handler) Usage(w http.ResponseWriter, r *http.Request) {
	stats, err := h.gate.Stats(r.Context(), identity(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load usage")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Health handles GET /api/v1/health and responds 200.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"activeJobs": h.reg.Len(),
	})
}

// Metrics handles GET /api/v1/metrics with plain-text counters.
func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(engine.FormatMetrics())) //nolint:errcheck
}

// parseIntParam parses a query string integer, returning the fallback on
// empty or invalid input.
func parseIntParam(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
