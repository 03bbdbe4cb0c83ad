// transcriptflow — YouTube transcript extraction service.
//
// Extracts transcripts for single videos synchronously and for whole channels
// through background jobs with polling, cancellation, and per-tier quotas.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anatolykoptev/go-kit/env"
	stealth "github.com/anatolykoptev/go-stealth"
	"github.com/anatolykoptev/go-stealth/proxypool"

	"github.com/transcriptflow/transcriptflow/internal/api"
	"github.com/transcriptflow/transcriptflow/internal/engine"
	"github.com/transcriptflow/transcriptflow/internal/job"
	"github.com/transcriptflow/transcriptflow/internal/quota"
	"github.com/transcriptflow/transcriptflow/internal/storage"
	"github.com/transcriptflow/transcriptflow/internal/youtube"
)

var (
	version    = "dev"
	listenAddr = env.Str("LISTEN_ADDR", ":8890")
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	initEngine()

	slog.Info("starting transcriptflow",
		slog.String("version", version),
		slog.String("addr", listenAddr),
	)

	gate := quota.NewGate(newUsageStore())

	var archive *storage.Archive
	if path := env.Str("SQLITE_PATH", "transcriptflow.db"); path != "" {
		a, err := storage.NewArchive(path)
		if err != nil {
			slog.Warn("transcript archive init failed, history disabled", slog.Any("error", err))
		} else {
			archive = a
			defer archive.Close()
		}
	}

	reg := job.NewRegistry(engine.Cfg.JobTTL)
	defer reg.Close()

	fetcher := youtube.NewFetcher()
	runner := job.NewRunner(reg, youtube.NewEnumerator(), fetcher, gate, archive)

	mux := http.NewServeMux()
	h := api.NewHandler(reg, runner, gate, fetcher, archive)
	h.RegisterRoutes(mux)

	handler := api.Chain(mux,
		api.RecoverMiddleware,
		api.RequestIDMiddleware,
		api.LoggingMiddleware,
		api.RateLimit(env.Int("RATE_LIMIT_RPS", 5)),
		api.AuthMiddleware(env.List("API_KEYS", "")),
	)

	srv := &http.Server{
		Addr:         listenAddr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", slog.Any("error", err))
		}
	}()

	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func initEngine() {
	c := engine.Config{
		YouTubeAPIKey:         env.Str("YOUTUBE_API_KEY", ""),
		YouTubeAPIKeyFallback: env.Str("YOUTUBE_API_KEY_FALLBACK", ""),
		Languages:             env.List("TRANSCRIPT_LANGUAGES", ""),
		DefaultChannelVideos:  env.Int("DEFAULT_CHANNEL_VIDEOS", 50),
		BatchSize:             env.Int("BATCH_SIZE", 10),
		FetchTimeout:          env.Duration("FETCH_TIMEOUT", 30*time.Second),
		JobTTL:                env.Duration("JOB_TTL", time.Hour),
		CacheMaxEntries:       env.Int("CACHE_MAX_ENTRIES", 1000),
		CacheCleanupInterval:  env.Duration("CACHE_CLEANUP_INTERVAL", 300*time.Second),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     60 * time.Second,
			},
		},
	}

	var opts []stealth.ClientOption
	opts = append(opts, stealth.WithTimeout(15))

	if apiKey := env.Str("WEBSHARE_API_KEY", ""); apiKey != "" {
		pool, err := proxypool.NewWebshare(apiKey)
		if err != nil {
			slog.Warn("proxy pool init failed, running without proxy", slog.Any("error", err))
		} else {
			opts = append(opts, stealth.WithProxyPool(pool))
			slog.Info("proxy pool initialized", slog.Int("proxies", pool.Len()))
		}
	}

	bc, err := stealth.NewClient(opts...)
	if err != nil {
		slog.Error("stealth client init failed", slog.Any("error", err))
	} else {
		c.BrowserClient = bc
		slog.Info("stealth browser client initialized")
	}

	engine.Init(c)

	cacheTTL := env.Duration("CACHE_TTL", 15*time.Minute)
	engine.InitCache(env.Str("REDIS_URL", ""), cacheTTL, c.CacheMaxEntries, c.CacheCleanupInterval)
}

// newUsageStore picks the usage backend: Postgres when DATABASE_URL is set,
// in-memory otherwise.
func newUsageStore() quota.UsageStore {
	dsn := env.Str("DATABASE_URL", "")
	if dsn == "" {
		slog.Info("no DATABASE_URL, tracking usage in memory")
		return quota.NewMemStore()
	}
	store, err := quota.NewPGStore(context.Background(), dsn)
	if err != nil {
		slog.Warn("postgres usage store init failed, tracking usage in memory", slog.Any("error", err))
		return quota.NewMemStore()
	}
	slog.Info("postgres usage store initialized")
	return store
}
