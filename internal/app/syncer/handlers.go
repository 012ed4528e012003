package syncer

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/waveline-app/waveline/internal/domain"
)

// ─── Per-Kind Dispatch ──────────────────────────────────────────────────────
// One handler per action kind, exhaustive over the payload union. Each
// handler gets a bounded call context so one hung remote call cannot
// block the whole batch.

func (e *Engine) dispatchOne(ctx context.Context, action domain.OfflineAction) error {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.ActionTimeout)
	defer cancel()

	switch p := action.Payload.(type) {
	case domain.CreatePostPayload:
		return e.handleCreatePost(callCtx, action, p)
	case domain.LikePostPayload:
		return e.handleLikePost(callCtx, action, p)
	case domain.CreateCommentPayload:
		return e.handleCreateComment(callCtx, action, p)
	case domain.SendMessagePayload:
		return e.handleSendMessage(callCtx, action, p)
	case domain.AwardXPPayload:
		return e.handleAwardXP(callCtx, action, p)
	case domain.UpdateProfilePayload:
		return e.handleUpdateProfile(callCtx, action, p)
	}
	return fmt.Errorf("%w: %q", domain.ErrUnknownKind, action.Kind)
}

func (e *Engine) handleCreatePost(ctx context.Context, action domain.OfflineAction, p domain.CreatePostPayload) error {
	doc := domain.Document{
		"author_id":  action.ActorID,
		"body":       p.Body,
		"created_at": action.EnqueuedAt.Format(time.RFC3339),
	}
	if p.ImageURL != "" {
		doc["image_url"] = p.ImageURL
	}

	id, err := e.remote.Create(ctx, domain.CollectionPosts, doc)
	if err != nil {
		return err
	}
	e.recordRemap(p.LocalID, id)
	return nil
}

func (e *Engine) handleLikePost(ctx context.Context, action domain.OfflineAction, p domain.LikePostPayload) error {
	postID, err := e.resolveID(p.PostID)
	if err != nil {
		return err
	}

	// One like document per (post, user); the patch carries the intended
	// end state, so replays converge instead of toggling.
	likeID := postID + ":" + action.ActorID
	return e.remote.Update(ctx, domain.CollectionLikes, likeID, domain.Document{
		"post_id": postID,
		"user_id": action.ActorID,
		"liked":   p.Liked,
	})
}

func (e *Engine) handleCreateComment(ctx context.Context, action domain.OfflineAction, p domain.CreateCommentPayload) error {
	postID, err := e.resolveID(p.PostID)
	if err != nil {
		return err
	}

	doc := domain.Document{
		"post_id":    postID,
		"author_id":  action.ActorID,
		"body":       p.Body,
		"created_at": action.EnqueuedAt.Format(time.RFC3339),
	}
	id, err := e.remote.Create(ctx, domain.CollectionComments, doc)
	if err != nil {
		return err
	}
	e.recordRemap(p.LocalID, id)
	return nil
}

func (e *Engine) handleSendMessage(ctx context.Context, action domain.OfflineAction, p domain.SendMessagePayload) error {
	recipientID, err := e.resolveID(p.RecipientID)
	if err != nil {
		return err
	}

	doc := domain.Document{
		"sender_id":    action.ActorID,
		"recipient_id": recipientID,
		"body":         p.Body,
		"sent_at":      action.EnqueuedAt.Format(time.RFC3339),
	}
	id, err := e.remote.Create(ctx, domain.CollectionMessages, doc)
	if err != nil {
		return err
	}
	e.recordRemap(p.LocalID, id)
	return nil
}

func (e *Engine) handleAwardXP(ctx context.Context, action domain.OfflineAction, p domain.AwardXPPayload) error {
	// The server recomputes authoritative experience from these events;
	// the action id keys the document so a replay overwrites itself.
	return e.remote.Update(ctx, domain.CollectionXPEvents, action.ID, domain.Document{
		"user_id": action.ActorID,
		"amount":  p.Amount,
		"reason":  p.Reason,
	})
}

func (e *Engine) handleUpdateProfile(ctx context.Context, action domain.OfflineAction, p domain.UpdateProfilePayload) error {
	patch := domain.Document{}
	if p.DisplayName != "" {
		patch["display_name"] = p.DisplayName
	}
	if p.Bio != "" {
		patch["bio"] = p.Bio
	}
	if p.AvatarURL != "" {
		patch["avatar_url"] = p.AvatarURL
	}
	return e.remote.Update(ctx, domain.CollectionProfiles, action.ActorID, patch)
}

// ─── Progression Effects ────────────────────────────────────────────────────

// applyProgression credits the actor's ledger for a confirmed action.
// Ledger failures are logged, not propagated: the remote effect already
// happened and reconciliation will heal any missed credit.
func (e *Engine) applyProgression(action domain.OfflineAction) {
	var err error
	switch p := action.Payload.(type) {
	case domain.CreatePostPayload:
		_, err = e.ledger.ApplyActivity(action.ActorID, domain.ActivityEvent{
			Metric: domain.MetricPosts,
			Delta:  1,
			XP:     domain.XPPerPost,
		})
	case domain.CreateCommentPayload:
		_, err = e.ledger.ApplyActivity(action.ActorID, domain.ActivityEvent{
			XP: domain.XPPerComment,
		})
	case domain.AwardXPPayload:
		_, err = e.ledger.AddExperience(action.ActorID, p.Amount)
	}
	if err != nil {
		log.Printf("[syncer] progression for %s %s: %v", action.Kind, action.ID, err)
	}
}

// ─── Local ID Remapping ─────────────────────────────────────────────────────

// resolveID rewrites a "local:" placeholder to the server-assigned id
// recorded when the creating action was confirmed. An unresolvable
// reference fails the action, leaving it queued for the next pass.
func (e *Engine) resolveID(id string) (string, error) {
	if !domain.IsLocalID(id) {
		return id, nil
	}

	data, ok, err := e.store.ReadKey(RemapPrefix + id)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", id, err)
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrUnresolvedRef, id)
	}
	return string(data), nil
}

// recordRemap durably maps a local placeholder to its server id.
func (e *Engine) recordRemap(localID, serverID string) {
	if localID == "" {
		return
	}
	if err := e.store.WriteKey(RemapPrefix+localID, []byte(serverID)); err != nil {
		log.Printf("[syncer] record remap %s → %s: %v", localID, serverID, err)
	}
}

// ResolveID is the read-side remap lookup used by the facade to translate
// placeholder ids in cached optimistic entries.
func (e *Engine) ResolveID(id string) (string, bool) {
	resolved, err := e.resolveID(id)
	if err != nil {
		return id, false
	}
	return resolved, true
}
