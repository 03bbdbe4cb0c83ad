package quota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/transcriptflow/transcriptflow/internal/engine"
)

// Action is a quota-gated operation kind.
type Action string

const (
	ActionVideoExtraction   Action = "video_extraction"
	ActionChannelExtraction Action = "channel_extraction"
)

// anonymousDailyLimit caps extractions per anonymous IP per UTC day.
const anonymousDailyLimit = 20

// ErrQuotaExceeded is returned by Consume when the daily allowance is spent.
var ErrQuotaExceeded = errors.New("quota exceeded")

// Identity names the caller: a user ID when authenticated, otherwise the
// client IP.
type Identity struct {
	UserID string
	IP     string
}

// Anonymous reports whether the identity has no user account.
func (id Identity) Anonymous() bool { return id.UserID == "" }

// Key returns the accounting key for the identity.
func (id Identity) Key() string {
	if id.UserID != "" {
		return id.UserID
	}
	return "ip:" + id.IP
}

// Decision is the outcome of a quota check. Remaining is -1 when unlimited.
type Decision struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	Reason    string    `json:"reason,omitempty"`
	ResetAt   time.Time `json:"resetAt"`
}

// Stats summarizes an identity's usage for the stats endpoint.
type Stats struct {
	Today     int        `json:"today"`
	ThisMonth int        `json:"thisMonth"`
	Tier      TierName   `json:"tier"`
	Limits    TierLimits `json:"limits"`
	ResetAt   time.Time  `json:"resetAt"`
}

// UsageStore persists per-identity usage counts and tier assignments.
type UsageStore interface {
	// Tier returns the subscription tier of a user.
	Tier(ctx context.Context, userID string) (TierName, error)
	// CountSince returns the number of recorded extractions at or after t.
	CountSince(ctx context.Context, key string, t time.Time) (int, error)
	// Add records n extractions for the identity at time now.
	Add(ctx context.Context, key string, action Action, n int) error
}

// Gate enforces daily extraction quotas. Check is a pure read; allowance is
// spent only through Consume.
type Gate struct {
	store UsageStore

	mu   sync.Mutex
	anon map[string]*anonWindow
}

type anonWindow struct {
	day   time.Time
	count int
}

// NewGate returns a Gate backed by the given usage store. Anonymous callers
// are tracked in memory regardless of the store.
func NewGate(store UsageStore) *Gate {
	return &Gate{store: store, anon: make(map[string]*anonWindow)}
}

// Check reports whether the identity may perform the action. It never
// consumes allowance.
func (g *Gate) Check(ctx context.Context, id Identity, action Action) (Decision, error) {
	if id.Anonymous() {
		return g.checkAnonymous(id, action), nil
	}

	tier, err := g.store.Tier(ctx, id.UserID)
	if err != nil {
		return Decision{}, fmt.Errorf("look up tier: %w", err)
	}
	limits := LimitsFor(tier)

	if action == ActionChannelExtraction && !limits.ChannelExtraction {
		engine.IncrQuotaDenials()
		return Decision{
			Allowed: false,
			Reason:  "channel extraction requires a paid plan",
			ResetAt: nextMidnightUTC(),
		}, nil
	}

	if limits.VideosPerDay == Unlimited {
		return Decision{Allowed: true, Remaining: Unlimited, ResetAt: nextMidnightUTC()}, nil
	}

	used, err := g.store.CountSince(ctx, id.Key(), startOfDayUTC())
	if err != nil {
		return Decision{}, fmt.Errorf("count usage: %w", err)
	}
	remaining := limits.VideosPerDay - used
	if remaining <= 0 {
		engine.IncrQuotaDenials()
		return Decision{
			Allowed: false,
			Reason:  "daily limit reached",
			ResetAt: nextMidnightUTC(),
		}, nil
	}
	return Decision{Allowed: true, Remaining: remaining, ResetAt: nextMidnightUTC()}, nil
}

// Consume records one extraction against the identity's allowance. It
// re-checks the limit and returns ErrQuotaExceeded when spent.
func (g *Gate) Consume(ctx context.Context, id Identity, action Action) error {
	d, err := g.Check(ctx, id, action)
	if err != nil {
		return err
	}
	if !d.Allowed {
		return fmt.Errorf("%s: %w", d.Reason, ErrQuotaExceeded)
	}

	if id.Anonymous() {
		g.mu.Lock()
		w := g.anonFor(id.Key())
		w.count++
		g.mu.Unlock()
		return nil
	}
	if err := g.store.Add(ctx, id.Key(), action, 1); err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}

// Stats returns today's and this month's usage for the identity.
func (g *Gate) Stats(ctx context.Context, id Identity) (Stats, error) {
	if id.Anonymous() {
		g.mu.Lock()
		today := g.anonFor(id.Key()).count
		g.mu.Unlock()
		return Stats{
			Today:     today,
			ThisMonth: today,
			Tier:      TierFree,
			Limits:    TierLimits{VideosPerDay: anonymousDailyLimit, Formats: []string{"txt"}},
			ResetAt:   nextMidnightUTC(),
		}, nil
	}

	tier, err := g.store.Tier(ctx, id.UserID)
	if err != nil {
		return Stats{}, fmt.Errorf("look up tier: %w", err)
	}
	today, err := g.store.CountSince(ctx, id.Key(), startOfDayUTC())
	if err != nil {
		return Stats{}, fmt.Errorf("count usage: %w", err)
	}
	month, err := g.store.CountSince(ctx, id.Key(), startOfMonthUTC())
	if err != nil {
		return Stats{}, fmt.Errorf("count usage: %w", err)
	}
	return Stats{
		Today:     today,
		ThisMonth: month,
		Tier:      tier,
		Limits:    LimitsFor(tier),
		ResetAt:   nextMidnightUTC(),
	}, nil
}

func (g *Gate) checkAnonymous(id Identity, action Action) Decision {
	if action == ActionChannelExtraction {
		engine.IncrQuotaDenials()
		return Decision{
			Allowed: false,
			Reason:  "channel extraction requires an account",
			ResetAt: nextMidnightUTC(),
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	w := g.anonFor(id.Key())
	remaining := anonymousDailyLimit - w.count
	if remaining <= 0 {
		engine.IncrQuotaDenials()
		return Decision{Allowed: false, Reason: "daily limit reached", ResetAt: nextMidnightUTC()}
	}
	return Decision{Allowed: true, Remaining: remaining, ResetAt: nextMidnightUTC()}
}

// anonFor returns the anonymous window for key, resetting stale days and
// opportunistically dropping windows from previous days. Caller holds g.mu.
func (g *Gate) anonFor(key string) *anonWindow {
	today := startOfDayUTC()
	if len(g.anon) > 10000 {
		for k, w := range g.anon {
			if !w.day.Equal(today) {
				delete(g.anon, k)
			}
		}
		slog.Debug("pruned anonymous quota windows", slog.Int("remaining", len(g.anon)))
	}
	w, ok := g.anon[key]
	if !ok || !w.day.Equal(today) {
		w = &anonWindow{day: today}
		g.anon[key] = w
	}
	return w
}

func startOfDayUTC() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func startOfMonthUTC() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func nextMidnightUTC() time.Time {
	return startOfDayUTC().Add(24 * time.Hour)
}
