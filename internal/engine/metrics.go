package engine

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Metrics tracks operational counters across the engine.
var metrics struct {
	TranscriptRequests   atomic.Int64
	TranscriptErrors     atomic.Int64
	ChannelResolves      atomic.Int64
	ChannelResolveErrors atomic.Int64
	JobsStarted          atomic.Int64
	JobsCompleted        atomic.Int64
	JobsFailed           atomic.Int64
	JobsCancelled        atomic.Int64
	QuotaDenials         atomic.Int64
}

// GetMetrics returns a snapshot of all metrics including cache stats.
func GetMetrics() map[string]int64 {
	hits, misses := CacheStats()
	return map[string]int64{
		"transcript_requests":    metrics.TranscriptRequests.Load(),
		"transcript_errors":      metrics.TranscriptErrors.Load(),
		"channel_resolves":       metrics.ChannelResolves.Load(),
		"channel_resolve_errors": metrics.ChannelResolveErrors.Load(),
		"jobs_started":           metrics.JobsStarted.Load(),
		"jobs_completed":         metrics.JobsCompleted.Load(),
		"jobs_failed":            metrics.JobsFailed.Load(),
		"jobs_cancelled":         metrics.JobsCancelled.Load(),
		"quota_denials":          metrics.QuotaDenials.Load(),
		"cache_hits":             hits,
		"cache_misses":           misses,
	}
}

// FormatMetrics returns metrics as a simple text format for the HTTP endpoint.
func FormatMetrics() string {
	m := GetMetrics()
	var sb strings.Builder
	keys := []string{
		"transcript_requests", "transcript_errors",
		"channel_resolves", "channel_resolve_errors",
		"jobs_started", "jobs_completed", "jobs_failed", "jobs_cancelled",
		"quota_denials",
		"cache_hits", "cache_misses",
	}
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s %d\n", k, m[k])
	}
	return sb.String()
}

// Incrementors for sub-packages.
func IncrTranscriptRequests()   { metrics.TranscriptRequests.Add(1) }
func IncrTranscriptErrors()     { metrics.TranscriptErrors.Add(1) }
func IncrChannelResolves()      { metrics.ChannelResolves.Add(1) }
func IncrChannelResolveErrors() { metrics.ChannelResolveErrors.Add(1) }
func IncrJobsStarted()          { metrics.JobsStarted.Add(1) }
func IncrJobsCompleted()        { metrics.JobsCompleted.Add(1) }
func IncrJobsFailed()           { metrics.JobsFailed.Add(1) }
func IncrJobsCancelled()        { metrics.JobsCancelled.Add(1) }
func IncrQuotaDenials()         { metrics.QuotaDenials.Add(1) }
