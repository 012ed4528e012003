package domain

import "time"

// ─── Progression Ledger Types ───────────────────────────────────────────────
// The ledger is derived state: level is always a pure function of
// experience, and the activity counters are denormalized caches of
// authoritative recounts. Drift is self-healed, never surfaced as an error.

// Direct experience earned by the actor's own activity. Likes and
// comments *received* reward the other party and reach this ledger
// through reconciliation against authoritative counts.
const (
	XPPerPost    int64 = 10
	XPPerComment int64 = 5
)

// Metric names an activity counter that achievements can require.
type Metric string

const (
	MetricPosts            Metric = "posts"
	MetricLikesReceived    Metric = "likes_received"
	MetricCommentsReceived Metric = "comments_received"
	MetricFriends          Metric = "friends"
	MetricFollowers        Metric = "followers"
)

// Counters holds the denormalized activity counts for one user.
type Counters struct {
	Posts            int64 `json:"posts"`
	LikesReceived    int64 `json:"likes_received"`
	CommentsReceived int64 `json:"comments_received"`
	Friends          int64 `json:"friends"`
	Followers        int64 `json:"followers"`
}

// Value returns the counter for a metric.
func (c Counters) Value(m Metric) int64 {
	switch m {
	case MetricPosts:
		return c.Posts
	case MetricLikesReceived:
		return c.LikesReceived
	case MetricCommentsReceived:
		return c.CommentsReceived
	case MetricFriends:
		return c.Friends
	case MetricFollowers:
		return c.Followers
	}
	return 0
}

// Add increments the counter for a metric by delta.
func (c *Counters) Add(m Metric, delta int64) {
	switch m {
	case MetricPosts:
		c.Posts += delta
	case MetricLikesReceived:
		c.LikesReceived += delta
	case MetricCommentsReceived:
		c.CommentsReceived += delta
	case MetricFriends:
		c.Friends += delta
	case MetricFollowers:
		c.Followers += delta
	}
}

// Ledger is the per-user progression state.
type Ledger struct {
	UserID       string               `json:"user_id"`
	Experience   int64                `json:"experience"`
	Level        int                  `json:"level"`
	Unlocked     map[string]time.Time `json:"unlocked"` // achievement id → unlock time
	Counters     Counters             `json:"counters"`
	ReconciledAt time.Time            `json:"reconciled_at"` // zero until first reconcile
}

// NewLedger creates an empty ledger at level 1.
func NewLedger(userID string) *Ledger {
	return &Ledger{
		UserID:   userID,
		Level:    1,
		Unlocked: make(map[string]time.Time),
	}
}

// HasUnlocked reports whether an achievement has already been unlocked.
func (l *Ledger) HasUnlocked(id string) bool {
	_, ok := l.Unlocked[id]
	return ok
}

// ─── Level Table ────────────────────────────────────────────────────────────

// LevelThreshold maps a level to the experience required to reach it.
type LevelThreshold struct {
	Level      int   `json:"level" toml:"level"`
	XPRequired int64 `json:"xp_required" toml:"xp_required"`
}

// LevelTable is the immutable level configuration, sorted ascending by
// experience threshold. Level 1 must require 0 XP.
type LevelTable []LevelThreshold

// LevelFor returns the highest level whose threshold is satisfied by xp.
func (t LevelTable) LevelFor(xp int64) int {
	level := 1
	for _, th := range t {
		if xp >= th.XPRequired {
			level = th.Level
		} else {
			break
		}
	}
	return level
}

// XPForLevel returns the threshold for a level, or -1 if the level is
// beyond the table.
func (t LevelTable) XPForLevel(level int) int64 {
	for _, th := range t {
		if th.Level == level {
			return th.XPRequired
		}
	}
	return -1
}

// MaxLevel returns the highest defined level.
func (t LevelTable) MaxLevel() int {
	if len(t) == 0 {
		return 1
	}
	return t[len(t)-1].Level
}

// Validate checks that the table is non-empty, starts at level 1 / 0 XP,
// and is strictly ascending in both level and threshold.
func (t LevelTable) Validate() error {
	if len(t) == 0 {
		return ErrEmptyLevelTable
	}
	if t[0].Level != 1 || t[0].XPRequired != 0 {
		return ErrBadLevelTable
	}
	for i := 1; i < len(t); i++ {
		if t[i].Level <= t[i-1].Level || t[i].XPRequired <= t[i-1].XPRequired {
			return ErrBadLevelTable
		}
	}
	return nil
}

// DefaultLevelTable returns the built-in ten-level curve.
func DefaultLevelTable() LevelTable {
	return LevelTable{
		{Level: 1, XPRequired: 0},
		{Level: 2, XPRequired: 50},
		{Level: 3, XPRequired: 150},
		{Level: 4, XPRequired: 350},
		{Level: 5, XPRequired: 700},
		{Level: 6, XPRequired: 1200},
		{Level: 7, XPRequired: 2000},
		{Level: 8, XPRequired: 3200},
		{Level: 9, XPRequired: 5000},
		{Level: 10, XPRequired: 7500},
	}
}

// ─── Achievement Catalog ────────────────────────────────────────────────────

// Achievement declares a counter requirement and its experience reward.
type Achievement struct {
	ID        string `json:"id" toml:"id"`
	Name      string `json:"name" toml:"name"`
	Metric    Metric `json:"metric" toml:"metric"`
	Threshold int64  `json:"threshold" toml:"threshold"`
	RewardXP  int64  `json:"reward_xp" toml:"reward_xp"`
}

// Satisfied reports whether the counters meet this achievement's requirement.
func (a Achievement) Satisfied(c Counters) bool {
	return c.Value(a.Metric) >= a.Threshold
}

// AchievementCatalog is the ordered, immutable achievement configuration.
// Unlock evaluation walks the catalog in order.
type AchievementCatalog []Achievement

// ByID returns the achievement with the given id.
func (cat AchievementCatalog) ByID(id string) (Achievement, bool) {
	for _, a := range cat {
		if a.ID == id {
			return a, true
		}
	}
	return Achievement{}, false
}

// Validate checks for duplicate ids and unknown metrics.
func (cat AchievementCatalog) Validate() error {
	seen := make(map[string]bool, len(cat))
	for _, a := range cat {
		if a.ID == "" || seen[a.ID] {
			return ErrBadCatalog
		}
		seen[a.ID] = true
		switch a.Metric {
		case MetricPosts, MetricLikesReceived, MetricCommentsReceived,
			MetricFriends, MetricFollowers:
		default:
			return ErrBadCatalog
		}
	}
	return nil
}

// DefaultAchievementCatalog returns the built-in catalog.
func DefaultAchievementCatalog() AchievementCatalog {
	return AchievementCatalog{
		{ID: "first_post", Name: "First Words", Metric: MetricPosts, Threshold: 1, RewardXP: 10},
		{ID: "prolific", Name: "Prolific", Metric: MetricPosts, Threshold: 10, RewardXP: 50},
		{ID: "author", Name: "Author", Metric: MetricPosts, Threshold: 50, RewardXP: 150},
		{ID: "first_like", Name: "Crowd Pleaser", Metric: MetricLikesReceived, Threshold: 1, RewardXP: 10},
		{ID: "popular", Name: "Popular", Metric: MetricLikesReceived, Threshold: 25, RewardXP: 75},
		{ID: "conversationalist", Name: "Conversationalist", Metric: MetricCommentsReceived, Threshold: 10, RewardXP: 40},
		{ID: "connected", Name: "Connected", Metric: MetricFriends, Threshold: 5, RewardXP: 30},
		{ID: "influencer", Name: "Influencer", Metric: MetricFollowers, Threshold: 100, RewardXP: 200},
	}
}
