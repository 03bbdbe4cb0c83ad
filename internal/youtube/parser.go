package youtube

import (
	"regexp"
	"strings"
)

// URL and identifier parsing for videos and channels.

var videoURLPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:youtube\.com/watch\?(?:.*&)?v=|youtu\.be/|youtube\.com/embed/)([a-zA-Z0-9_-]{11})`),
	regexp.MustCompile(`youtube\.com/shorts/([a-zA-Z0-9_-]{11})`),
}

var bareVideoIDRe = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)

// ExtractVideoID pulls the 11-char video ID from a YouTube URL or a bare ID.
// Returns "" when the input is neither.
func ExtractVideoID(input string) string {
	trimmed := strings.TrimSpace(input)
	if bareVideoIDRe.MatchString(trimmed) {
		return trimmed
	}
	for _, re := range videoURLPatterns {
		if m := re.FindStringSubmatch(trimmed); len(m) >= 2 {
			return m[1]
		}
	}
	return ""
}

// ChannelRefKind says how a channel reference must be resolved.
type ChannelRefKind string

const (
	RefChannelID ChannelRefKind = "channel_id" // UC… — already resolved
	RefHandle    ChannelRefKind = "handle"     // @name
	RefUser      ChannelRefKind = "user"       // legacy /user/name
	RefCustom    ChannelRefKind = "custom"     // /c/name vanity URL
)

// ChannelRef is a parsed channel reference.
type ChannelRef struct {
	Kind  ChannelRefKind
	Value string
}

var (
	channelIDRe  = regexp.MustCompile(`(?:youtube\.com/channel/)?(UC[a-zA-Z0-9_-]{22})`)
	handleURLRe  = regexp.MustCompile(`youtube\.com/@([a-zA-Z0-9_.-]+)`)
	userURLRe    = regexp.MustCompile(`youtube\.com/user/([a-zA-Z0-9_.-]+)`)
	customURLRe  = regexp.MustCompile(`youtube\.com/c/([a-zA-Z0-9_.-]+)`)
	bareHandleRe = regexp.MustCompile(`^@([a-zA-Z0-9_.-]+)$`)
)

// ExtractChannelRef parses a channel URL, @handle, or UC-id.
// Returns nil when the input does not look like a channel reference.
func ExtractChannelRef(input string) *ChannelRef {
	trimmed := strings.TrimSpace(input)
	if m := channelIDRe.FindStringSubmatch(trimmed); len(m) >= 2 {
		return &ChannelRef{Kind: RefChannelID, Value: m[1]}
	}
	if m := handleURLRe.FindStringSubmatch(trimmed); len(m) >= 2 {
		return &ChannelRef{Kind: RefHandle, Value: m[1]}
	}
	if m := bareHandleRe.FindStringSubmatch(trimmed); len(m) >= 2 {
		return &ChannelRef{Kind: RefHandle, Value: m[1]}
	}
	if m := userURLRe.FindStringSubmatch(trimmed); len(m) >= 2 {
		return &ChannelRef{Kind: RefUser, Value: m[1]}
	}
	if m := customURLRe.FindStringSubmatch(trimmed); len(m) >= 2 {
		return &ChannelRef{Kind: RefCustom, Value: m[1]}
	}
	return nil
}

// ThumbnailURL returns the static thumbnail URL for a video.
func ThumbnailURL(videoID string) string {
	return "https://img.youtube.com/vi/" + videoID + "/hqdefault.jpg"
}

// VideoURL returns the canonical watch URL for a video.
func VideoURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}
