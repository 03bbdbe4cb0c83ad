package youtube

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var stubSegments = []Segment{
	{Text: "hello", Start: 0, Duration: 1},
	{Text: "world", Start: 1, Duration: 1.5},
}

// stubFetcher returns a Fetcher whose attempts are served by fn, and a
// pointer to the attempted language sequence.
func stubFetcher(fn func(lang string) ([]Segment, *VideoInfo, error)) (*Fetcher, *[]string) {
	var attempted []string
	f := &Fetcher{attempt: func(_ context.Context, _, lang string) ([]Segment, *VideoInfo, error) {
		attempted = append(attempted, lang)
		return fn(lang)
	}}
	return f, &attempted
}

func TestFetchFirstLanguageWins(t *testing.T) {
	f, attempted := stubFetcher(func(lang string) ([]Segment, *VideoInfo, error) {
		return stubSegments, nil, nil
	})

	res, err := f.Fetch(context.Background(), "dQw4w9WgXcQ", FetchPolicy{})
	require.NoError(t, err)
	assert.Equal(t, []string{"en"}, *attempted)
	assert.Equal(t, "hello world", res.PlainText)
	assert.Equal(t, 2, res.WordCount)
}

func TestFetchLanguageFallback(t *testing.T) {
	f, attempted := stubFetcher(func(lang string) ([]Segment, *VideoInfo, error) {
		if lang == "en-GB" {
			return stubSegments, nil, nil
		}
		return nil, nil, nil // no matching track
	})

	res, err := f.Fetch(context.Background(), "jNQXAC9IVRw", FetchPolicy{})
	require.NoError(t, err)
	assert.Equal(t, []string{"en", "en-US", "en-GB"}, *attempted)
	assert.Len(t, res.Segments, 2)
}

func TestFetchUnconstrainedFinalAttempt(t *testing.T) {
	f, attempted := stubFetcher(func(lang string) ([]Segment, *VideoInfo, error) {
		if lang == "" {
			return stubSegments, &VideoInfo{VideoID: "9bZkp7q19f0", Title: "Gangnam Style"}, nil
		}
		return nil, nil, nil
	})

	res, err := f.Fetch(context.Background(), "9bZkp7q19f0", FetchPolicy{})
	require.NoError(t, err)
	// All preferred languages, then one attempt with no constraint.
	assert.Equal(t, []string{"en", "en-US", "en-GB", ""}, *attempted)
	assert.Equal(t, "Gangnam Style", res.VideoInfo.Title)
}

func TestFetchNoCaptionsAnywhere(t *testing.T) {
	f, attempted := stubFetcher(func(lang string) ([]Segment, *VideoInfo, error) {
		return nil, nil, nil
	})

	_, err := f.Fetch(context.Background(), "aaaaaaaaaaa", FetchPolicy{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoCaptions)
	assert.Len(t, *attempted, 4)
}

func TestFetchAllAttemptsError(t *testing.T) {
	transportErr := errors.New("connection reset")
	f, _ := stubFetcher(func(lang string) ([]Segment, *VideoInfo, error) {
		return nil, nil, transportErr
	})

	_, err := f.Fetch(context.Background(), "bbbbbbbbbbb", FetchPolicy{})
	require.Error(t, err)
	// Transport failure surfaces, not a misleading "no captions".
	assert.ErrorIs(t, err, transportErr)
	assert.NotErrorIs(t, err, ErrNoCaptions)
}

func TestFetchErrorThenSuccess(t *testing.T) {
	f, _ := stubFetcher(func(lang string) ([]Segment, *VideoInfo, error) {
		if lang == "en" {
			return nil, nil, errors.New("transient")
		}
		return stubSegments, nil, nil
	})

	res, err := f.Fetch(context.Background(), "ccccccccccc", FetchPolicy{})
	require.NoError(t, err)
	assert.Len(t, res.Segments, 2)
}

func TestFetchCustomLanguages(t *testing.T) {
	f, attempted := stubFetcher(func(lang string) ([]Segment, *VideoInfo, error) {
		return nil, nil, nil
	})

	_, err := f.Fetch(context.Background(), "ddddddddddd", FetchPolicy{Languages: []string{"de", "fr"}})
	require.Error(t, err)
	assert.Equal(t, []string{"de", "fr", ""}, *attempted)
}

func TestBuildResultDerivations(t *testing.T) {
	res := buildResult("dQw4w9WgXcQ", nil, stubSegments)

	// Defaults when no player metadata was seen.
	assert.Equal(t, "YouTube Video (dQw4w9WgXcQ)", res.VideoInfo.Title)
	assert.Equal(t, "Unknown Channel", res.VideoInfo.ChannelName)
	assert.Contains(t, res.VideoInfo.ThumbnailURL, "dQw4w9WgXcQ")

	assert.Equal(t, "hello world", res.PlainText)
	assert.Equal(t, 2, res.WordCount)
	assert.Contains(t, res.SRT, "00:00:01,000 --> 00:00:02,500")
}

func TestTrackForLanguage(t *testing.T) {
	tracks := []captionTrack{
		{BaseURL: "u1", LanguageCode: "en", Kind: "asr"},
		{BaseURL: "u2", LanguageCode: "en"},
		{BaseURL: "u3", LanguageCode: "de"},
	}

	t.Run("prefers manual over asr", func(t *testing.T) {
		got := trackForLanguage(tracks, "en")
		require.NotNil(t, got)
		assert.Equal(t, "u2", got.BaseURL)
	})

	t.Run("falls back to asr", func(t *testing.T) {
		got := trackForLanguage(tracks[:1], "en")
		require.NotNil(t, got)
		assert.Equal(t, "u1", got.BaseURL)
	})

	t.Run("no match", func(t *testing.T) {
		assert.Nil(t, trackForLanguage(tracks, "ja"))
	})

	t.Run("skips PoToken tracks", func(t *testing.T) {
		blocked := []captionTrack{{BaseURL: "u4&exp=xpe", LanguageCode: "en"}}
		assert.Nil(t, trackForLanguage(blocked, "en"))
	})
}

func TestSegmentsFromJSON3(t *testing.T) {
	j3 := json3Resp{Events: []json3Event{
		{StartMs: 0, DurationMs: 1000, Segs: []json3Segs{{UTF8: "rock "}, {UTF8: "&amp; roll"}}},
		{StartMs: 1000, DurationMs: 500},                                // no segs — dropped
		{StartMs: 1500, DurationMs: 500, Segs: []json3Segs{{UTF8: "\n"}}}, // whitespace only — dropped
		{StartMs: 2000, DurationMs: 750, Segs: []json3Segs{{UTF8: "bye"}}},
	}}

	segs := segmentsFromJSON3(j3)
	require.Len(t, segs, 2)
	assert.Equal(t, "rock & roll", segs[0].Text)
	assert.Equal(t, 0.0, segs[0].Start)
	assert.Equal(t, 1.0, segs[0].Duration)
	assert.Equal(t, "bye", segs[1].Text)
	assert.Equal(t, 2.0, segs[1].Start)
}
