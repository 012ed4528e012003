package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ─── Offline Actions ────────────────────────────────────────────────────────
// An OfflineAction is a durable record of one not-yet-confirmed mutation.
// Actions are immutable once enqueued except for the attempt counter; the
// queue replays them in enqueue order because later actions may depend on
// earlier ones (liking a post that was itself created offline).

// ActionKind discriminates the payload union.
type ActionKind string

const (
	KindCreatePost    ActionKind = "create_post"
	KindLikePost      ActionKind = "like_post"
	KindCreateComment ActionKind = "create_comment"
	KindSendMessage   ActionKind = "send_message"
	KindAwardXP       ActionKind = "award_xp"
	KindUpdateProfile ActionKind = "update_profile"
)

// Kinds lists every action kind, in a stable order.
func Kinds() []ActionKind {
	return []ActionKind{
		KindCreatePost, KindLikePost, KindCreateComment,
		KindSendMessage, KindAwardXP, KindUpdateProfile,
	}
}

// ActionPayload is the closed set of per-kind payloads.
type ActionPayload interface {
	Kind() ActionKind
}

// CreatePostPayload creates a new post. LocalID is the client-assigned
// placeholder id; the server assigns the real id at sync time.
type CreatePostPayload struct {
	LocalID  string `json:"local_id"`
	Body     string `json:"body"`
	ImageURL string `json:"image_url,omitempty"`
}

// LikePostPayload records the intended end state, never a toggle, so a
// duplicate replay is naturally idempotent.
type LikePostPayload struct {
	PostID string `json:"post_id"`
	Liked  bool   `json:"liked"`
}

// CreateCommentPayload adds a comment to a post.
type CreateCommentPayload struct {
	LocalID string `json:"local_id"`
	PostID  string `json:"post_id"`
	Body    string `json:"body"`
}

// SendMessagePayload sends a direct message.
type SendMessagePayload struct {
	LocalID     string `json:"local_id"`
	RecipientID string `json:"recipient_id"`
	Body        string `json:"body"`
}

// AwardXPPayload grants experience outside of counter-driven unlocks
// (daily bonus, referral reward).
type AwardXPPayload struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

// UpdateProfilePayload patches the actor's profile document.
type UpdateProfilePayload struct {
	DisplayName string `json:"display_name,omitempty"`
	Bio         string `json:"bio,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

func (CreatePostPayload) Kind() ActionKind    { return KindCreatePost }
func (LikePostPayload) Kind() ActionKind      { return KindLikePost }
func (CreateCommentPayload) Kind() ActionKind { return KindCreateComment }
func (SendMessagePayload) Kind() ActionKind   { return KindSendMessage }
func (AwardXPPayload) Kind() ActionKind       { return KindAwardXP }
func (UpdateProfilePayload) Kind() ActionKind { return KindUpdateProfile }

// OfflineAction is one queued mutation awaiting confirmation.
type OfflineAction struct {
	ID         string        `json:"id"`
	Kind       ActionKind    `json:"kind"`
	ActorID    string        `json:"actor_id"`
	Payload    ActionPayload `json:"payload"`
	EnqueuedAt time.Time     `json:"enqueued_at"`
	Attempts   int           `json:"attempts"`
}

// actionJSON is the wire shape; Payload is decoded after Kind is known.
type actionJSON struct {
	ID         string          `json:"id"`
	Kind       ActionKind      `json:"kind"`
	ActorID    string          `json:"actor_id"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	Attempts   int             `json:"attempts"`
}

// MarshalJSON emits the kind-discriminated wire form.
func (a OfflineAction) MarshalJSON() ([]byte, error) {
	raw, err := json.Marshal(a.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(actionJSON{
		ID:         a.ID,
		Kind:       a.Kind,
		ActorID:    a.ActorID,
		Payload:    raw,
		EnqueuedAt: a.EnqueuedAt,
		Attempts:   a.Attempts,
	})
}

// UnmarshalJSON decodes the payload into the concrete type for Kind.
func (a *OfflineAction) UnmarshalJSON(data []byte) error {
	var w actionJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	payload, err := decodePayload(w.Kind, w.Payload)
	if err != nil {
		return err
	}

	a.ID = w.ID
	a.Kind = w.Kind
	a.ActorID = w.ActorID
	a.Payload = payload
	a.EnqueuedAt = w.EnqueuedAt
	a.Attempts = w.Attempts
	return nil
}

func decodePayload(kind ActionKind, raw json.RawMessage) (ActionPayload, error) {
	var dst ActionPayload
	switch kind {
	case KindCreatePost:
		dst = &CreatePostPayload{}
	case KindLikePost:
		dst = &LikePostPayload{}
	case KindCreateComment:
		dst = &CreateCommentPayload{}
	case KindSendMessage:
		dst = &SendMessagePayload{}
	case KindAwardXP:
		dst = &AwardXPPayload{}
	case KindUpdateProfile:
		dst = &UpdateProfilePayload{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return nil, err
	}

	// Store payloads by value so actions compare and copy cleanly.
	switch p := dst.(type) {
	case *CreatePostPayload:
		return *p, nil
	case *LikePostPayload:
		return *p, nil
	case *CreateCommentPayload:
		return *p, nil
	case *SendMessagePayload:
		return *p, nil
	case *AwardXPPayload:
		return *p, nil
	case *UpdateProfilePayload:
		return *p, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

// ─── Local Placeholder IDs ──────────────────────────────────────────────────
// Entities created offline get a "local:" prefixed id. The sync engine
// remaps these to server-assigned ids as the creating actions are confirmed.

// LocalIDPrefix marks client-assigned placeholder ids.
const LocalIDPrefix = "local:"

// IsLocalID reports whether id is a client-assigned placeholder.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, LocalIDPrefix)
}
