package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/anatolykoptev/go-kit/strutil"
	"github.com/transcriptflow/transcriptflow/internal/engine"
)

// Channel enumeration via the YouTube Data API v3: resolve a channel
// reference to its ID, fetch display metadata, and page through the uploads
// playlist newest-first up to a cap.

// dataAPIBase is a var so tests can point it at a local server.
var dataAPIBase = "https://www.googleapis.com/youtube/v3"

var (
	// ErrChannelNotFound means the reference could not be resolved to a channel.
	ErrChannelNotFound = errors.New("channel not found")
	// ErrChannelHasNoVideos means resolution succeeded but the channel has no uploads.
	ErrChannelHasNoVideos = errors.New("channel has no videos")
)

// ChannelInfo is resolved channel display metadata.
type ChannelInfo struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Handle       string `json:"handle,omitempty"`
	ThumbnailURL string `json:"thumbnailUrl"`
	VideoCount   int    `json:"videoCount"`
	Description  string `json:"description,omitempty"`
}

// VideoItem is one enumerated upload.
type VideoItem struct {
	VideoID      string `json:"videoId"`
	Title        string `json:"title"`
	ThumbnailURL string `json:"thumbnailUrl"`
	PublishedAt  string `json:"publishedAt,omitempty"`
}

// Channel is the result of a resolution: metadata plus the capped video list.
type Channel struct {
	Info   ChannelInfo `json:"channelInfo"`
	Videos []VideoItem `json:"videos"`
}

// Enumerator resolves channel references against the Data API.
type Enumerator struct{}

// NewEnumerator returns an Enumerator using the engine configuration
// (API key plus fallback key).
func NewEnumerator() *Enumerator { return &Enumerator{} }

// Resolve maps a channel reference (URL, @handle, or UC-id) to channel info
// and its newest-first upload list, capped at limit videos.
func (e *Enumerator) Resolve(ctx context.Context, ref string, limit int) (*Channel, error) {
	engine.IncrChannelResolves()

	parsed := ExtractChannelRef(ref)
	if parsed == nil {
		engine.IncrChannelResolveErrors()
		return nil, fmt.Errorf("%q: %w", ref, ErrChannelNotFound)
	}

	channelID, err := resolveChannelID(ctx, parsed)
	if err != nil {
		engine.IncrChannelResolveErrors()
		return nil, err
	}

	info, uploadsPlaylist, err := fetchChannelInfo(ctx, channelID)
	if err != nil {
		engine.IncrChannelResolveErrors()
		return nil, err
	}

	videos, err := fetchUploads(ctx, uploadsPlaylist, engine.ClampChannelLimit(limit))
	if err != nil {
		engine.IncrChannelResolveErrors()
		return nil, err
	}
	if len(videos) == 0 {
		return nil, fmt.Errorf("channel %s: %w", channelID, ErrChannelHasNoVideos)
	}

	return &Channel{Info: *info, Videos: videos}, nil
}

// --- Data API response types ---

type channelListResp struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title       string `json:"title"`
			Description string `json:"description"`
			CustomURL   string `json:"customUrl"`
			Thumbnails  thumbs `json:"thumbnails"`
		} `json:"snippet"`
		Statistics struct {
			VideoCount string `json:"videoCount"`
		} `json:"statistics"`
		ContentDetails struct {
			RelatedPlaylists struct {
				Uploads string `json:"uploads"`
			} `json:"relatedPlaylists"`
		} `json:"contentDetails"`
	} `json:"items"`
}

type playlistItemsResp struct {
	Items []struct {
		Snippet struct {
			Title       string `json:"title"`
			PublishedAt string `json:"publishedAt"`
			ResourceID  struct {
				VideoID string `json:"videoId"`
			} `json:"resourceId"`
			Thumbnails thumbs `json:"thumbnails"`
		} `json:"snippet"`
		ContentDetails struct {
			VideoID string `json:"videoId"`
		} `json:"contentDetails"`
	} `json:"items"`
	NextPageToken string `json:"nextPageToken"`
}

type searchListResp struct {
	Items []struct {
		ID struct {
			ChannelID string `json:"channelId"`
		} `json:"id"`
	} `json:"items"`
}

type thumbs struct {
	High    thumb `json:"high"`
	Default thumb `json:"default"`
}

type thumb struct {
	URL string `json:"url"`
}

func (t thumbs) best() string {
	if t.High.URL != "" {
		return t.High.URL
	}
	return t.Default.URL
}

// resolveChannelID maps a parsed reference to a UC channel ID.
func resolveChannelID(ctx context.Context, ref *ChannelRef) (string, error) {
	if ref.Kind == RefChannelID {
		return ref.Value, nil
	}

	params := url.Values{}
	params.Set("part", "id")
	switch ref.Kind {
	case RefHandle:
		params.Set("forHandle", ref.Value)
	case RefUser, RefCustom:
		params.Set("forUsername", ref.Value)
	}

	var resp channelListResp
	if err := dataAPIGet(ctx, "/channels", params, &resp); err != nil {
		return "", err
	}
	if len(resp.Items) > 0 {
		return resp.Items[0].ID, nil
	}

	// forHandle misses on some older handles; fall back to a channel search.
	if ref.Kind == RefHandle {
		sp := url.Values{}
		sp.Set("part", "id")
		sp.Set("type", "channel")
		sp.Set("maxResults", "1")
		sp.Set("q", "@"+ref.Value)
		var sr searchListResp
		if err := dataAPIGet(ctx, "/search", sp, &sr); err == nil && len(sr.Items) > 0 && sr.Items[0].ID.ChannelID != "" {
			return sr.Items[0].ID.ChannelID, nil
		}
	}

	return "", fmt.Errorf("%s %q: %w", ref.Kind, ref.Value, ErrChannelNotFound)
}

// fetchChannelInfo loads channel display metadata and the uploads playlist ID.
func fetchChannelInfo(ctx context.Context, channelID string) (*ChannelInfo, string, error) {
	params := url.Values{}
	params.Set("part", "snippet,statistics,contentDetails")
	params.Set("id", channelID)

	var resp channelListResp
	if err := dataAPIGet(ctx, "/channels", params, &resp); err != nil {
		return nil, "", err
	}
	if len(resp.Items) == 0 {
		return nil, "", fmt.Errorf("channel %s: %w", channelID, ErrChannelNotFound)
	}

	item := resp.Items[0]
	videoCount, _ := strconv.Atoi(item.Statistics.VideoCount)
	info := &ChannelInfo{
		ID:           item.ID,
		Name:         item.Snippet.Title,
		Handle:       item.Snippet.CustomURL,
		ThumbnailURL: item.Snippet.Thumbnails.best(),
		VideoCount:   videoCount,
		Description:  strutil.TruncateWith(item.Snippet.Description, 500, "…"),
	}
	return info, item.ContentDetails.RelatedPlaylists.Uploads, nil
}

// fetchUploads pages through the uploads playlist until limit videos are
// collected or the playlist ends. Upstream order (newest first) is preserved.
func fetchUploads(ctx context.Context, playlistID string, limit int) ([]VideoItem, error) {
	if playlistID == "" {
		return nil, errors.New("channel has no uploads playlist")
	}

	videos := make([]VideoItem, 0, limit)
	pageToken := ""

	for len(videos) < limit {
		pageSize := limit - len(videos)
		if pageSize > 50 {
			pageSize = 50 // Data API page maximum
		}

		params := url.Values{}
		params.Set("part", "snippet,contentDetails")
		params.Set("playlistId", playlistID)
		params.Set("maxResults", strconv.Itoa(pageSize))
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}

		var resp playlistItemsResp
		if err := dataAPIGet(ctx, "/playlistItems", params, &resp); err != nil {
			return nil, fmt.Errorf("fetch uploads: %w", err)
		}
		if len(resp.Items) == 0 {
			break
		}

		for _, item := range resp.Items {
			if len(videos) >= limit {
				break
			}
			videoID := item.ContentDetails.VideoID
			if videoID == "" {
				videoID = item.Snippet.ResourceID.VideoID
			}
			thumbnail := item.Snippet.Thumbnails.best()
			if thumbnail == "" {
				thumbnail = ThumbnailURL(videoID)
			}
			videos = append(videos, VideoItem{
				VideoID:      videoID,
				Title:        item.Snippet.Title,
				ThumbnailURL: thumbnail,
				PublishedAt:  item.Snippet.PublishedAt,
			})
		}

		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}

	return videos, nil
}

// dataAPIGet performs a Data API GET, decoding into out. Falls back to the
// secondary API key on quota errors (403).
func dataAPIGet(ctx context.Context, path string, params url.Values, out any) error {
	keys := []string{engine.Cfg.YouTubeAPIKey}
	if engine.Cfg.YouTubeAPIKeyFallback != "" {
		keys = append(keys, engine.Cfg.YouTubeAPIKeyFallback)
	}

	var lastErr error
	for _, key := range keys {
		err := doDataAPIGet(ctx, path, params, key, out)
		if err == nil {
			return nil
		}
		lastErr = err
		slog.Debug("data API key failed, trying fallback", slog.String("path", path), slog.Any("err", err))
	}
	return lastErr
}

func doDataAPIGet(ctx context.Context, path string, params url.Values, apiKey string, out any) error {
	p := url.Values{}
	for k, v := range params {
		p[k] = v
	}
	p.Set("key", apiKey)

	apiURL := dataAPIBase + path + "?" + p.Encode()
	resp, err := engine.RetryHTTP(ctx, engine.DefaultRetryConfig, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", engine.UserAgentBot)
		return engine.Cfg.HTTPClient.Do(req)
	})
	if err != nil {
		return fmt.Errorf("data API %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("data API %s: HTTP %d: %s", path, resp.StatusCode, body)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode data API %s: %w", path, err)
	}
	return nil
}
