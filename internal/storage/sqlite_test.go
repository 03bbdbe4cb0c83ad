package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transcriptflow/transcriptflow/internal/youtube"
)

func newTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := NewArchive(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func sampleResult(videoID string) *youtube.TranscriptResult {
	segs := []youtube.Segment{
		{Text: "hello", Start: 0, Duration: 1},
		{Text: "world", Start: 1, Duration: 1.5},
	}
	return &youtube.TranscriptResult{
		VideoInfo: youtube.VideoInfo{
			VideoID:         videoID,
			Title:           "Test Video",
			ChannelName:     "Test Channel",
			DurationSeconds: 120,
		},
		Segments:  segs,
		PlainText: "hello world",
		SRT:       youtube.RenderSRT(segs),
		WordCount: 2,
	}
}

func TestArchiveRoundTrip(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()

	id, err := a.Save(ctx, "user-1", sampleResult("dQw4w9WgXcQ"))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := a.Get(ctx, "user-1", id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "dQw4w9WgXcQ", got.VideoInfo.VideoID)
	assert.Equal(t, "Test Video", got.VideoInfo.Title)
	assert.Equal(t, 120, got.VideoInfo.DurationSeconds)
	assert.Equal(t, "hello world", got.PlainText)
	require.Len(t, got.Segments, 2)
	assert.Equal(t, 1.5, got.Segments[1].Duration)
}

func TestArchiveOwnerScoped(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()

	id, err := a.Save(ctx, "user-1", sampleResult("dQw4w9WgXcQ"))
	require.NoError(t, err)

	got, err := a.Get(ctx, "user-2", id)
	require.NoError(t, err)
	assert.Nil(t, got)

	ok, err := a.Delete(ctx, "user-2", id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestArchiveList(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := a.Save(ctx, "user-1", sampleResult(fmt.Sprintf("vid%08d", i)))
		require.NoError(t, err)
	}
	_, err := a.Save(ctx, "user-2", sampleResult("othervideo1"))
	require.NoError(t, err)

	entries, total, err := a.List(ctx, "user-1", 3, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Len(t, entries, 3)
	for _, e := range entries {
		assert.Equal(t, "Test Video", e.Title)
		assert.Equal(t, 2, e.WordCount)
	}

	entries, total, err = a.List(ctx, "user-1", 3, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Len(t, entries, 2)
}

func TestArchiveDelete(t *testing.T) {
	a := newTestArchive(t)
	ctx := context.Background()

	id, err := a.Save(ctx, "user-1", sampleResult("dQw4w9WgXcQ"))
	require.NoError(t, err)

	ok, err := a.Delete(ctx, "user-1", id)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := a.Get(ctx, "user-1", id)
	require.NoError(t, err)
	assert.Nil(t, got)

	ok, err = a.Delete(ctx, "user-1", id)
	require.NoError(t, err)
	assert.False(t, ok)
}
