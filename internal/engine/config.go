package engine

import (
	"net/http"
	"time"

	stealth "github.com/anatolykoptev/go-stealth"
)

// Config holds all engine configuration, injected from main.
type Config struct {
	YouTubeAPIKey         string
	YouTubeAPIKeyFallback string

	// Languages is the ordered caption language preference for transcript
	// fetching. Empty slice falls back to DefaultLanguages.
	Languages []string

	// DefaultChannelVideos is the per-job video cap applied when a submission
	// does not specify one. Submitted caps are clamped to [MinChannelVideos,
	// MaxChannelVideos].
	DefaultChannelVideos int

	// BatchSize caps concurrent transcript fetches within one channel job.
	BatchSize int

	FetchTimeout time.Duration // per-fetch upper bound, including retries
	JobTTL       time.Duration // idle eviction window for finished jobs

	CacheMaxEntries      int
	CacheCleanupInterval time.Duration

	HTTPClient    *http.Client
	BrowserClient *stealth.BrowserClient // nil = proxied fetching disabled
}

// Channel video cap bounds.
const (
	MinChannelVideos = 10
	MaxChannelVideos = 500
)

var cfg Config

// Cfg exposes the engine configuration for sub-packages (youtube, job, api).
// Always points to the current cfg value.
var Cfg = &cfg

// Init initializes the engine with the given configuration, applying
// defaults for unset fields.
func Init(c Config) {
	if len(c.Languages) == 0 {
		c.Languages = DefaultLanguages
	}
	if c.DefaultChannelVideos <= 0 {
		c.DefaultChannelVideos = 50
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 30 * time.Second
	}
	if c.JobTTL <= 0 {
		c.JobTTL = time.Hour
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	cfg = c
	Cfg = &cfg
}

// DefaultLanguages is the caption language preference used when a fetch
// policy does not name its own: English variants in descending specificity.
var DefaultLanguages = []string{"en", "en-US", "en-GB"}

// ClampChannelLimit bounds a submitted per-job video cap. Zero or negative
// selects the configured default.
func ClampChannelLimit(limit int) int {
	if limit <= 0 {
		limit = cfg.DefaultChannelVideos
	}
	if limit < MinChannelVideos {
		return MinChannelVideos
	}
	if limit > MaxChannelVideos {
		return MaxChannelVideos
	}
	return limit
}
