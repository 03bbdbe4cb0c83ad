package youtube

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/transcriptflow/transcriptflow/internal/engine"
)

// Transcript fetching.
// Primary:  scrape watch page ytInitialPlayerResponse → caption json3 (works from most IPs,
//           and through the stealth proxy pool from blocked ones)
// Fallback: ANDROID Innertube /player → captionTracks

// ErrNoCaptions is returned when a video has no caption track in any
// requested language nor a provider-default track.
var ErrNoCaptions = errors.New("no captions available")

// Segment is one normalized caption cue.
type Segment struct {
	Text     string  `json:"text"`
	Start    float64 `json:"start"`    // offset from video start, seconds
	Duration float64 `json:"duration"` // seconds
}

// VideoInfo is display metadata for one video.
type VideoInfo struct {
	VideoID         string `json:"videoId"`
	Title           string `json:"title"`
	ChannelName     string `json:"channelName"`
	ThumbnailURL    string `json:"thumbnailUrl"`
	DurationSeconds int    `json:"durationSeconds"`
}

// TranscriptResult is a finished extraction: segments plus both renderings,
// derived deterministically from the same segment list.
type TranscriptResult struct {
	VideoInfo VideoInfo `json:"videoInfo"`
	Segments  []Segment `json:"segments"`
	PlainText string    `json:"plainText"`
	SRT       string    `json:"srtContent"`
	WordCount int       `json:"wordCount"`
}

// FetchPolicy controls one transcript fetch.
type FetchPolicy struct {
	// Languages is the ordered list of caption language codes to attempt.
	// Empty falls back to engine.DefaultLanguages. A final attempt with no
	// language constraint always follows.
	Languages []string

	// Timeout bounds each individual attempt. Zero means no per-attempt bound
	// beyond the engine HTTP client timeout.
	Timeout time.Duration
}

func (p FetchPolicy) languages() []string {
	if len(p.Languages) > 0 {
		return p.Languages
	}
	return engine.DefaultLanguages
}

// attemptFunc fetches the caption track for one (videoID, lang) pair.
// lang == "" means no language constraint (provider default track).
// Returning zero segments with a nil error means "no matching track".
type attemptFunc func(ctx context.Context, videoID, lang string) ([]Segment, *VideoInfo, error)

// Fetcher resolves one video's caption track with language and routing
// fallbacks. Safe for concurrent use.
type Fetcher struct {
	attempt attemptFunc
}

// NewFetcher returns a Fetcher using the real network transport.
func NewFetcher() *Fetcher {
	return &Fetcher{attempt: fetchAttempt}
}

// Fetch tries each language in order; the first attempt returning non-empty
// segments wins. If every language fails or yields nothing, one final attempt
// runs with no language constraint. Transport errors on individual attempts
// are recorded and the loop proceeds; only exhaustion is terminal.
func (f *Fetcher) Fetch(ctx context.Context, videoID string, policy FetchPolicy) (*TranscriptResult, error) {
	engine.IncrTranscriptRequests()

	cacheKey := engine.CacheKey("transcript", videoID, strings.Join(policy.languages(), ","))
	if cached, ok := engine.CacheGetJSON[*TranscriptResult](ctx, cacheKey); ok && cached != nil {
		return cached, nil
	}

	var lastErr error
	var lastInfo *VideoInfo

	// Ordered language attempts plus a final unconstrained one.
	langs := make([]string, 0, len(policy.languages())+1)
	langs = append(langs, policy.languages()...)
	langs = append(langs, "")
	for _, lang := range langs {
		actx := ctx
		var cancel context.CancelFunc
		if policy.Timeout > 0 {
			actx, cancel = context.WithTimeout(ctx, policy.Timeout)
		}
		segs, info, err := f.attempt(actx, videoID, lang)
		if cancel != nil {
			cancel()
		}
		if info != nil {
			lastInfo = info
		}
		if err != nil {
			slog.Debug("transcript: attempt failed",
				slog.String("id", videoID), slog.String("lang", lang), slog.Any("err", err))
			lastErr = err
			continue
		}
		if len(segs) > 0 {
			res := buildResult(videoID, lastInfo, segs)
			engine.CacheSetJSON(ctx, cacheKey, res)
			return res, nil
		}
	}

	engine.IncrTranscriptErrors()
	if lastErr != nil {
		// Every attempt that could have produced data errored; surface the
		// last transport failure rather than a misleading "no captions".
		return nil, fmt.Errorf("fetch transcript %s: %w", videoID, lastErr)
	}
	return nil, fmt.Errorf("fetch transcript %s: %w", videoID, ErrNoCaptions)
}

// buildResult derives the plain-text and SRT renderings from the segment
// list. Same input always yields byte-identical output.
func buildResult(videoID string, info *VideoInfo, segs []Segment) *TranscriptResult {
	vi := VideoInfo{
		VideoID:      videoID,
		Title:        "YouTube Video (" + videoID + ")",
		ChannelName:  "Unknown Channel",
		ThumbnailURL: ThumbnailURL(videoID),
	}
	if info != nil {
		vi = *info
	}
	plain := PlainText(segs)
	return &TranscriptResult{
		VideoInfo: vi,
		Segments:  segs,
		PlainText: plain,
		SRT:       RenderSRT(segs),
		WordCount: engine.CountWords(plain),
	}
}

// --- real transport ---

// fetchAttempt resolves the player response, picks the caption track for
// lang, and downloads it in json3 form.
func fetchAttempt(ctx context.Context, videoID, lang string) ([]Segment, *VideoInfo, error) {
	pr, err := playerResponse(ctx, videoID)
	if err != nil {
		return nil, nil, err
	}

	info := videoInfoFrom(pr, videoID)

	if pr.Captions == nil {
		if pr.PlayabilityStatus != nil && pr.PlayabilityStatus.Reason != "" {
			return nil, info, fmt.Errorf("captions unavailable: %s", pr.PlayabilityStatus.Reason)
		}
		return nil, info, nil
	}
	tracks := pr.Captions.PlayerCaptionsTracklistRenderer.CaptionTracks
	if len(tracks) == 0 {
		return nil, info, nil
	}

	var track *captionTrack
	if lang == "" {
		track = bestTrack(tracks)
	} else {
		track = trackForLanguage(tracks, lang)
	}
	if track == nil {
		return nil, info, nil
	}

	segs, err := fetchJSON3(ctx, track.BaseURL)
	return segs, info, err
}

// trackForLanguage selects a usable track with the exact language code,
// preferring manual captions over auto-generated ones.
func trackForLanguage(tracks []captionTrack, lang string) *captionTrack {
	var asr *captionTrack
	for i, t := range tracks {
		if needsPoToken(t.BaseURL) || t.LanguageCode != lang {
			continue
		}
		if t.Kind != "asr" {
			return &tracks[i]
		}
		if asr == nil {
			asr = &tracks[i]
		}
	}
	return asr
}

// bestTrack selects the provider-default track: any manual track first, then
// any usable track at all.
func bestTrack(tracks []captionTrack) *captionTrack {
	var fallback *captionTrack
	for i, t := range tracks {
		if needsPoToken(t.BaseURL) {
			continue
		}
		if t.Kind != "asr" {
			return &tracks[i]
		}
		if fallback == nil {
			fallback = &tracks[i]
		}
	}
	return fallback
}

func videoInfoFrom(pr *playerResp, videoID string) *VideoInfo {
	info := &VideoInfo{
		VideoID:      videoID,
		Title:        "YouTube Video (" + videoID + ")",
		ChannelName:  "Unknown Channel",
		ThumbnailURL: ThumbnailURL(videoID),
	}
	if pr.VideoDetails != nil {
		if pr.VideoDetails.Title != "" {
			info.Title = pr.VideoDetails.Title
		}
		if pr.VideoDetails.Author != "" {
			info.ChannelName = pr.VideoDetails.Author
		}
		if secs, err := strconv.Atoi(pr.VideoDetails.LengthSeconds); err == nil {
			info.DurationSeconds = secs
		}
	}
	return info
}

// playerResponse fetches the player response for a video: watch page scrape
// first (works from any IP, proxied when a stealth client is configured),
// ANDROID Innertube /player as fallback.
func playerResponse(ctx context.Context, videoID string) (*playerResp, error) {
	pr, err := playerResponseViaWatchPage(ctx, videoID)
	if err == nil {
		return pr, nil
	}
	slog.Warn("transcript: watch page scrape failed, trying player endpoint",
		slog.String("id", videoID), slog.Any("err", err))
	return playerResponseViaPlayer(ctx, videoID)
}

func playerResponseViaWatchPage(ctx context.Context, videoID string) (*playerResp, error) {
	watchURL := VideoURL(videoID)

	var body []byte
	if bc := engine.Cfg.BrowserClient; bc != nil {
		data, _, status, err := bc.Do(http.MethodGet, watchURL, engine.ChromeHeaders(), nil)
		if err != nil {
			return nil, fmt.Errorf("watch page (proxied): %w", err)
		}
		if status != http.StatusOK {
			return nil, fmt.Errorf("watch page (proxied): HTTP %d", status)
		}
		body = data
	} else {
		resp, err := engine.RetryHTTP(ctx, engine.DefaultRetryConfig, func() (*http.Response, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, watchURL, nil)
			if err != nil {
				return nil, err
			}
			req.Header.Set("User-Agent", engine.RandomUserAgent())
			req.Header.Set("Accept-Language", "en-US,en;q=0.9")
			req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
			return engine.Cfg.HTTPClient.Do(req)
		})
		if err != nil {
			return nil, fmt.Errorf("watch page: %w", err)
		}
		defer resp.Body.Close()
		body, err = io.ReadAll(io.LimitReader(resp.Body, 6*1024*1024))
		if err != nil {
			return nil, fmt.Errorf("read watch page: %w", err)
		}
	}

	idx := bytes.Index(body, []byte(ytPlayerResponseMarker))
	if idx < 0 {
		return nil, errors.New("ytInitialPlayerResponse not found in watch page")
	}
	jsonData := extractJSON(body[idx+len(ytPlayerResponseMarker):])
	if jsonData == nil {
		return nil, errors.New("failed to extract ytInitialPlayerResponse JSON")
	}

	var pr playerResp
	if err := json.Unmarshal(jsonData, &pr); err != nil {
		return nil, fmt.Errorf("decode ytInitialPlayerResponse: %w", err)
	}
	return &pr, nil
}

// playerResponseViaPlayer uses the ANDROID Innertube /player endpoint.
// Works from non-blocked (residential/cloud) IP addresses.
func playerResponseViaPlayer(ctx context.Context, videoID string) (*playerResp, error) {
	reqBody, err := json.Marshal(innertubeReq{
		VideoID: videoID,
		Context: innertubeCtx{
			Client: innertubeClient{
				ClientName:        "ANDROID",
				ClientVersion:     ytAndroidVersion,
				AndroidSdkVersion: 30,
				Hl:                "en",
				Gl:                "US",
			},
		},
		RacyCheckOk:    true,
		ContentCheckOk: true,
	})
	if err != nil {
		return nil, err
	}

	resp, err := engine.RetryHTTP(ctx, engine.DefaultRetryConfig, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, ytPlayerURL+"?prettyPrint=false", bytes.NewReader(reqBody))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", ytAndroidUA)
		req.Header.Set("X-Youtube-Client-Name", "3")
		req.Header.Set("X-Youtube-Client-Version", ytAndroidVersion)
		return engine.Cfg.HTTPClient.Do(req)
	})
	if err != nil {
		return nil, fmt.Errorf("android innertube: %w", err)
	}
	defer resp.Body.Close()

	var pr playerResp
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, fmt.Errorf("decode player: %w", err)
	}
	return &pr, nil
}

// fetchJSON3 fetches and parses a caption track URL in json3 format.
func fetchJSON3(ctx context.Context, baseURL string) ([]Segment, error) {
	resp, err := engine.RetryHTTP(ctx, engine.DefaultRetryConfig, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"&fmt=json3", nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", engine.UserAgentChrome)
		return engine.Cfg.HTTPClient.Do(req)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch captions: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 3*1024*1024))
	if err != nil {
		return nil, err
	}

	var j3 json3Resp
	if err := json.Unmarshal(body, &j3); err != nil {
		return nil, fmt.Errorf("parse captions json3: %w", err)
	}
	return segmentsFromJSON3(j3), nil
}

// segmentsFromJSON3 normalizes json3 events into caption segments, dropping
// empty and whitespace-only cues.
func segmentsFromJSON3(j3 json3Resp) []Segment {
	segs := make([]Segment, 0, len(j3.Events))
	for _, ev := range j3.Events {
		if len(ev.Segs) == 0 {
			continue
		}
		var sb strings.Builder
		for _, s := range ev.Segs {
			sb.WriteString(s.UTF8)
		}
		text := engine.DecodeEntities(sb.String())
		if text == "" {
			continue
		}
		segs = append(segs, Segment{
			Text:     text,
			Start:    float64(ev.StartMs) / 1000,
			Duration: float64(ev.DurationMs) / 1000,
		})
	}
	return segs
}
