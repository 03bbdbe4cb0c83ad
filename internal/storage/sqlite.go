package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/transcriptflow/transcriptflow/internal/youtube"
)

// Archive is the SQLite-backed transcript history.
type Archive struct {
	db *sql.DB
}

// Entry is one archived transcript.
type Entry struct {
	ID              string    `json:"id"`
	Owner           string    `json:"-"`
	VideoID         string    `json:"videoId"`
	Title           string    `json:"title"`
	ChannelName     string    `json:"channelName"`
	ThumbnailURL    string    `json:"thumbnailUrl"`
	DurationSeconds int       `json:"durationSeconds"`
	WordCount       int       `json:"wordCount"`
	CreatedAt       time.Time `json:"createdAt"`
}

// NewArchive opens (or creates) the SQLite database at dbPath and runs
// migrations.
func NewArchive(dbPath string) (*Archive, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite: single writer

	if _, err = db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	a := &Archive{db: db}
	if err = a.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return a, nil
}

func (a *Archive) migrate() error {
	_, err := a.db.Exec(`
		CREATE TABLE IF NOT EXISTS transcripts (
			id               TEXT PRIMARY KEY,
			owner            TEXT NOT NULL,
			video_id         TEXT NOT NULL,
			title            TEXT NOT NULL,
			channel_name     TEXT NOT NULL DEFAULT '',
			thumbnail_url    TEXT NOT NULL DEFAULT '',
			duration_seconds INTEGER NOT NULL DEFAULT 0,
			segments         TEXT NOT NULL,
			plain_text       TEXT NOT NULL,
			srt              TEXT NOT NULL,
			word_count       INTEGER NOT NULL DEFAULT 0,
			created_at       DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_transcripts_owner      ON transcripts(owner);
		CREATE INDEX IF NOT EXISTS idx_transcripts_created_at ON transcripts(created_at);
	`)
	return err
}

// Save stores a finished transcript for the owner and returns the entry ID.
// The same video may be archived multiple times; each save is its own row.
func (a *Archive) Save(ctx context.Context, owner string, res *youtube.TranscriptResult) (string, error) {
	segments, err := json.Marshal(res.Segments)
	if err != nil {
		return "", fmt.Errorf("marshal segments: %w", err)
	}

	id := uuid.NewString()
	_, err = a.db.ExecContext(ctx, `
		INSERT INTO transcripts
			(id, owner, video_id, title, channel_name, thumbnail_url, duration_seconds,
			 segments, plain_text, srt, word_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		id, owner,
		res.VideoInfo.VideoID, res.VideoInfo.Title, res.VideoInfo.ChannelName,
		res.VideoInfo.ThumbnailURL, res.VideoInfo.DurationSeconds,
		string(segments), res.PlainText, res.SRT, res.WordCount,
		time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("save transcript: %w", err)
	}
	return id, nil
}

// Get loads one archived transcript owned by owner. Returns nil when not
// found.
func (a *Archive) Get(ctx context.Context, owner, id string) (*youtube.TranscriptResult, error) {
	row := a.db.QueryRowContext(ctx, `
		SELECT video_id, title, channel_name, thumbnail_url, duration_seconds,
		       segments, plain_text, srt, word_count
		FROM transcripts WHERE id = ? AND owner = ?
	`, id, owner)

	var res youtube.TranscriptResult
	var segments string
	err := row.Scan(
		&res.VideoInfo.VideoID, &res.VideoInfo.Title, &res.VideoInfo.ChannelName,
		&res.VideoInfo.ThumbnailURL, &res.VideoInfo.DurationSeconds,
		&segments, &res.PlainText, &res.SRT, &res.WordCount,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get transcript %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(segments), &res.Segments); err != nil {
		return nil, fmt.Errorf("decode segments for %s: %w", id, err)
	}
	return &res, nil
}

// List returns the owner's archive entries newest first, plus the total count.
func (a *Archive) List(ctx context.Context, owner string, limit, offset int) ([]Entry, int, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := a.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transcripts WHERE owner = ?`, owner).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transcripts: %w", err)
	}

	rows, err := a.db.QueryContext(ctx, `
		SELECT id, owner, video_id, title, channel_name, thumbnail_url,
		       duration_seconds, word_count, created_at
		FROM transcripts
		WHERE owner = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`, owner, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list transcripts: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.ID, &e.Owner, &e.VideoID, &e.Title, &e.ChannelName,
			&e.ThumbnailURL, &e.DurationSeconds, &e.WordCount, &e.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan transcript: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate transcripts: %w", err)
	}
	return entries, total, nil
}

// Delete removes one archived transcript owned by owner.
func (a *Archive) Delete(ctx context.Context, owner, id string) (bool, error) {
	res, err := a.db.ExecContext(ctx,
		`DELETE FROM transcripts WHERE id = ? AND owner = ?`, id, owner)
	if err != nil {
		return false, fmt.Errorf("delete transcript %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Close closes the underlying database connection.
func (a *Archive) Close() error {
	return a.db.Close()
}
