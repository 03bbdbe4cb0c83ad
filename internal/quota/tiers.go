package quota

// Subscription tiers and their limits. Tier assignment itself lives with the
// billing collaborator; this package only maps tier names to limits.

// TierName identifies a subscription tier.
type TierName string

const (
	TierFree     TierName = "free"
	TierPro      TierName = "pro"
	TierBusiness TierName = "business"
)

// Unlimited marks a limit with no cap.
const Unlimited = -1

// TierLimits are the numeric limits of one tier.
type TierLimits struct {
	VideosPerDay      int      `json:"videosPerDay"` // Unlimited = no cap
	ChannelExtraction bool     `json:"channelExtraction"`
	MaxChannelVideos  int      `json:"maxChannelVideos"`
	Formats           []string `json:"formats"`
}

var tierLimits = map[TierName]TierLimits{
	TierFree: {
		VideosPerDay:      3,
		ChannelExtraction: false,
		MaxChannelVideos:  0,
		Formats:           []string{"txt"},
	},
	TierPro: {
		VideosPerDay:      50,
		ChannelExtraction: true,
		MaxChannelVideos:  25,
		Formats:           []string{"txt", "srt", "json"},
	},
	TierBusiness: {
		VideosPerDay:      Unlimited,
		ChannelExtraction: true,
		MaxChannelVideos:  500,
		Formats:           []string{"txt", "srt", "json"},
	},
}

// LimitsFor returns the limits for a tier, falling back to free for unknown
// names.
func LimitsFor(tier TierName) TierLimits {
	if l, ok := tierLimits[tier]; ok {
		return l
	}
	return tierLimits[TierFree]
}

// ValidTier reports whether s names a known tier.
func ValidTier(s string) bool {
	_, ok := tierLimits[TierName(s)]
	return ok
}
