package domain

import "time"

// ─── Social Document Types ──────────────────────────────────────────────────
// Mirrors of the remote document store's collections. The core only reads
// and writes these through the RemoteService interface; screens render them
// from the cache.

// Collection names in the remote document store.
const (
	CollectionPosts    = "posts"
	CollectionComments = "comments"
	CollectionMessages = "messages"
	CollectionProfiles = "profiles"
	CollectionLikes    = "likes"
	CollectionXPEvents = "xp_events"
	CollectionStats    = "stats" // server-maintained per-user activity counts
)

// Post is a feed entry.
type Post struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	Body      string    `json:"body"`
	ImageURL  string    `json:"image_url,omitempty"`
	LikeCount int64     `json:"like_count"`
	CreatedAt time.Time `json:"created_at"`
	Pending   bool      `json:"pending,omitempty"` // true while the creating action is still queued
}

// Comment belongs to a post.
type Comment struct {
	ID        string    `json:"id"`
	PostID    string    `json:"post_id"`
	AuthorID  string    `json:"author_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	Pending   bool      `json:"pending,omitempty"`
}

// Message is a direct message between two users.
type Message struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"sender_id"`
	RecipientID string    `json:"recipient_id"`
	Body        string    `json:"body"`
	SentAt      time.Time `json:"sent_at"`
	Pending     bool      `json:"pending,omitempty"`
}

// Profile is a user's public profile document.
type Profile struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Bio         string `json:"bio,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// ─── Activity Events ────────────────────────────────────────────────────────

// ActivityEvent is one progression-relevant occurrence: a counter bump
// plus any direct experience it carries.
type ActivityEvent struct {
	Metric Metric `json:"metric"`
	Delta  int64  `json:"delta"`
	XP     int64  `json:"xp"` // direct experience, independent of unlock rewards
}
