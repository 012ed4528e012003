// Package facade is the single entry point the UI shell drives. Every
// write follows the same shape: try the remote directly while connected,
// and otherwise (or when the direct call fails) queue the action and fake
// the result locally. Queued is a normal outcome, not an error — the
// caller gets an optimistic object marked Pending and the sync engine
// settles it later.
package facade

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/waveline-app/waveline/internal/app/ledger"
	"github.com/waveline-app/waveline/internal/app/queue"
	"github.com/waveline-app/waveline/internal/app/syncer"
	"github.com/waveline-app/waveline/internal/domain"
	"github.com/waveline-app/waveline/internal/infra/cache"
	"github.com/waveline-app/waveline/internal/infra/netmon"
)

// Config controls facade timeouts and cache TTLs.
type Config struct {
	CallTimeout time.Duration // budget for one direct remote call
	FeedTTL     time.Duration
	ProfileTTL  time.Duration
	MessagesTTL time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		CallTimeout: 10 * time.Second,
		FeedTTL:     5 * time.Minute,
		ProfileTTL:  10 * time.Minute,
		MessagesTTL: 2 * time.Minute,
	}
}

// Facade coordinates the remote service, the action queue, the sync
// engine, the progression ledger, and the cache behind one API.
type Facade struct {
	cfg    Config
	remote domain.RemoteService
	queue  *queue.Queue
	syncer *syncer.Engine
	ledger *ledger.Service
	cache  *cache.Store
	net    *netmon.Monitor

	now func() time.Time
}

// New wires the facade and registers the reconnect trigger: a debounced
// disconnected → connected edge starts a background drain.
func New(cfg Config, remote domain.RemoteService, q *queue.Queue, e *syncer.Engine, l *ledger.Service, c *cache.Store, net *netmon.Monitor) *Facade {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultConfig().CallTimeout
	}
	if cfg.FeedTTL <= 0 {
		cfg.FeedTTL = DefaultConfig().FeedTTL
	}
	if cfg.ProfileTTL <= 0 {
		cfg.ProfileTTL = DefaultConfig().ProfileTTL
	}
	if cfg.MessagesTTL <= 0 {
		cfg.MessagesTTL = DefaultConfig().MessagesTTL
	}

	f := &Facade{
		cfg:    cfg,
		remote: remote,
		queue:  q,
		syncer: e,
		ledger: l,
		cache:  c,
		net:    net,
		now:    time.Now,
	}
	net.OnReconnect(e.TriggerAsync)
	return f
}

// ─── Writes ─────────────────────────────────────────────────────────────────

// CreatePost publishes a post. While connected it goes straight to the
// remote and the ledger is credited immediately; otherwise the action is
// queued and the returned post carries a local placeholder id and
// Pending=true. Progression for a queued post is applied when the sync
// engine confirms it, never twice.
func (f *Facade) CreatePost(ctx context.Context, actorID, body, imageURL string) (domain.Post, error) {
	post := domain.Post{
		AuthorID:  actorID,
		Body:      body,
		ImageURL:  imageURL,
		CreatedAt: f.now(),
	}

	if f.net.Connected() {
		callCtx, cancel := context.WithTimeout(ctx, f.cfg.CallTimeout)
		defer cancel()

		doc := domain.Document{
			"author_id":  actorID,
			"body":       body,
			"created_at": post.CreatedAt.Format(time.RFC3339),
		}
		if imageURL != "" {
			doc["image_url"] = imageURL
		}
		id, err := f.remote.Create(callCtx, domain.CollectionPosts, doc)
		if err == nil {
			post.ID = id
			f.creditActivity(actorID, domain.ActivityEvent{
				Metric: domain.MetricPosts, Delta: 1, XP: domain.XPPerPost,
			})
			f.prependFeed(postDoc(post))
			return post, nil
		}
		log.Printf("[facade] direct create post: %v, queueing", err)
	}

	post.ID = domain.LocalIDPrefix + uuid.NewString()
	post.Pending = true
	_, err := f.queue.Enqueue(domain.OfflineAction{
		Kind:    domain.KindCreatePost,
		ActorID: actorID,
		Payload: domain.CreatePostPayload{LocalID: post.ID, Body: body, ImageURL: imageURL},
	})
	if err != nil {
		return domain.Post{}, fmt.Errorf("queue post: %w", err)
	}
	f.prependFeed(postDoc(post))
	return post, nil
}

// LikePost records the intended like end state for a post. Returns
// queued=true when the action had to be deferred. A like of a post that
// is itself still pending always queues; the drain resolves the
// placeholder once the post exists remotely.
func (f *Facade) LikePost(ctx context.Context, actorID, postID string, liked bool) (bool, error) {
	postID = f.resolve(postID)

	if f.net.Connected() && !domain.IsLocalID(postID) {
		callCtx, cancel := context.WithTimeout(ctx, f.cfg.CallTimeout)
		defer cancel()

		likeID := postID + ":" + actorID
		err := f.remote.Update(callCtx, domain.CollectionLikes, likeID, domain.Document{
			"post_id": postID,
			"user_id": actorID,
			"liked":   liked,
		})
		if err == nil {
			return false, nil
		}
		log.Printf("[facade] direct like: %v, queueing", err)
	}

	_, err := f.queue.Enqueue(domain.OfflineAction{
		Kind:    domain.KindLikePost,
		ActorID: actorID,
		Payload: domain.LikePostPayload{PostID: postID, Liked: liked},
	})
	if err != nil {
		return false, fmt.Errorf("queue like: %w", err)
	}
	return true, nil
}

// AddComment attaches a comment to a post.
func (f *Facade) AddComment(ctx context.Context, actorID, postID, body string) (domain.Comment, error) {
	postID = f.resolve(postID)
	comment := domain.Comment{
		PostID:    postID,
		AuthorID:  actorID,
		Body:      body,
		CreatedAt: f.now(),
	}

	if f.net.Connected() && !domain.IsLocalID(postID) {
		callCtx, cancel := context.WithTimeout(ctx, f.cfg.CallTimeout)
		defer cancel()

		doc := domain.Document{
			"post_id":    postID,
			"author_id":  actorID,
			"body":       body,
			"created_at": comment.CreatedAt.Format(time.RFC3339),
		}
		id, err := f.remote.Create(callCtx, domain.CollectionComments, doc)
		if err == nil {
			comment.ID = id
			f.creditActivity(actorID, domain.ActivityEvent{XP: domain.XPPerComment})
			return comment, nil
		}
		log.Printf("[facade] direct comment: %v, queueing", err)
	}

	comment.ID = domain.LocalIDPrefix + uuid.NewString()
	comment.Pending = true
	_, err := f.queue.Enqueue(domain.OfflineAction{
		Kind:    domain.KindCreateComment,
		ActorID: actorID,
		Payload: domain.CreateCommentPayload{LocalID: comment.ID, PostID: postID, Body: body},
	})
	if err != nil {
		return domain.Comment{}, fmt.Errorf("queue comment: %w", err)
	}
	return comment, nil
}

// SendMessage sends a direct message. The optimistic copy is appended to
// the cached conversation so the thread renders immediately.
func (f *Facade) SendMessage(ctx context.Context, actorID, recipientID, body string) (domain.Message, error) {
	msg := domain.Message{
		SenderID:    actorID,
		RecipientID: recipientID,
		Body:        body,
		SentAt:      f.now(),
	}

	if f.net.Connected() {
		callCtx, cancel := context.WithTimeout(ctx, f.cfg.CallTimeout)
		defer cancel()

		doc := domain.Document{
			"sender_id":    actorID,
			"recipient_id": recipientID,
			"body":         body,
			"sent_at":      msg.SentAt.Format(time.RFC3339),
		}
		id, err := f.remote.Create(callCtx, domain.CollectionMessages, doc)
		if err == nil {
			msg.ID = id
			f.appendConversation(recipientID, msg)
			return msg, nil
		}
		log.Printf("[facade] direct message: %v, queueing", err)
	}

	msg.ID = domain.LocalIDPrefix + uuid.NewString()
	msg.Pending = true
	_, err := f.queue.Enqueue(domain.OfflineAction{
		Kind:    domain.KindSendMessage,
		ActorID: actorID,
		Payload: domain.SendMessagePayload{LocalID: msg.ID, RecipientID: recipientID, Body: body},
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("queue message: %w", err)
	}
	f.appendConversation(recipientID, msg)
	return msg, nil
}

// AwardXP grants direct experience (daily login bonus, promotions).
// Negative amounts are rejected up front on both paths. Returns the
// ledger result when applied immediately, or queued=true when deferred.
func (f *Facade) AwardXP(ctx context.Context, actorID string, amount int64, reason string) (ledger.Result, bool, error) {
	if amount < 0 {
		return ledger.Result{}, false, domain.ErrNegativeXP
	}

	if f.net.Connected() {
		callCtx, cancel := context.WithTimeout(ctx, f.cfg.CallTimeout)
		defer cancel()

		eventID := uuid.NewString()
		err := f.remote.Update(callCtx, domain.CollectionXPEvents, eventID, domain.Document{
			"user_id": actorID,
			"amount":  amount,
			"reason":  reason,
		})
		if err == nil {
			res, lerr := f.ledger.AddExperience(actorID, amount)
			if lerr != nil {
				log.Printf("[facade] credit xp for %s: %v", actorID, lerr)
			}
			return res, false, nil
		}
		log.Printf("[facade] direct xp award: %v, queueing", err)
	}

	_, err := f.queue.Enqueue(domain.OfflineAction{
		Kind:    domain.KindAwardXP,
		ActorID: actorID,
		Payload: domain.AwardXPPayload{Amount: amount, Reason: reason},
	})
	if err != nil {
		return ledger.Result{}, false, fmt.Errorf("queue xp award: %w", err)
	}
	return ledger.Result{}, true, nil
}

// UpdateProfile patches the actor's profile; empty fields are left
// untouched. Returns queued=true when the patch was deferred. Either way
// the cached profile reflects the patch immediately.
func (f *Facade) UpdateProfile(ctx context.Context, actorID string, patch domain.UpdateProfilePayload) (bool, error) {
	queued := true
	if f.net.Connected() {
		callCtx, cancel := context.WithTimeout(ctx, f.cfg.CallTimeout)
		defer cancel()

		doc := domain.Document{}
		if patch.DisplayName != "" {
			doc["display_name"] = patch.DisplayName
		}
		if patch.Bio != "" {
			doc["bio"] = patch.Bio
		}
		if patch.AvatarURL != "" {
			doc["avatar_url"] = patch.AvatarURL
		}
		if err := f.remote.Update(callCtx, domain.CollectionProfiles, actorID, doc); err == nil {
			queued = false
		} else {
			log.Printf("[facade] direct profile update: %v, queueing", err)
		}
	}

	if queued {
		_, err := f.queue.Enqueue(domain.OfflineAction{
			Kind:    domain.KindUpdateProfile,
			ActorID: actorID,
			Payload: patch,
		})
		if err != nil {
			return false, fmt.Errorf("queue profile update: %w", err)
		}
	}

	f.patchCachedProfile(actorID, patch)
	return queued, nil
}

// ─── Reads ──────────────────────────────────────────────────────────────────

// Feed returns the posts list: cache hit if fresh, otherwise a remote
// query that refills the cache. Offline with a cold cache yields an empty
// feed, not an error.
func (f *Facade) Feed(ctx context.Context) ([]domain.Document, error) {
	var docs []domain.Document
	if f.cache.GetJSON(cache.KeyFeed, &docs) {
		return docs, nil
	}
	if !f.net.Connected() {
		return nil, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, f.cfg.CallTimeout)
	defer cancel()

	docs, err := f.remote.Query(callCtx, domain.CollectionPosts, domain.Filter{}, syncer.FeedRefreshLimit)
	if err != nil {
		return nil, fmt.Errorf("query feed: %w", err)
	}
	f.cache.PutJSON(cache.KeyFeed, docs, f.cfg.FeedTTL)
	return docs, nil
}

// LeaderboardLimit is how many entries a leaderboard page pulls.
const LeaderboardLimit = 25

// Leaderboard returns the top user stats documents, cache-first. Like
// the feed, offline with a cold cache yields an empty page, not an error.
func (f *Facade) Leaderboard(ctx context.Context) ([]domain.Document, error) {
	var docs []domain.Document
	if f.cache.GetJSON(cache.KeyLeaderboard, &docs) {
		return docs, nil
	}
	if !f.net.Connected() {
		return nil, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, f.cfg.CallTimeout)
	defer cancel()

	docs, err := f.remote.Query(callCtx, domain.CollectionStats, domain.Filter{}, LeaderboardLimit)
	if err != nil {
		return nil, fmt.Errorf("query leaderboard: %w", err)
	}
	f.cache.PutJSON(cache.KeyLeaderboard, docs, f.cfg.FeedTTL)
	return docs, nil
}

// Profile returns a user's profile, cache-first.
func (f *Facade) Profile(ctx context.Context, userID string) (domain.Profile, error) {
	var p domain.Profile
	if f.cache.GetJSON(cache.ProfileKey(userID), &p) {
		return p, nil
	}
	if !f.net.Connected() {
		return domain.Profile{}, domain.ErrOffline
	}

	callCtx, cancel := context.WithTimeout(ctx, f.cfg.CallTimeout)
	defer cancel()

	doc, err := f.remote.Get(callCtx, domain.CollectionProfiles, userID)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	p = domain.Profile{UserID: userID}
	if doc != nil {
		p.DisplayName, _ = doc["display_name"].(string)
		p.Bio, _ = doc["bio"].(string)
		p.AvatarURL, _ = doc["avatar_url"].(string)
	}
	f.cache.PutJSON(cache.ProfileKey(userID), p, f.cfg.ProfileTTL)
	return p, nil
}

// Ledger returns a user's progression ledger. While connected it first
// reconciles against the server's authoritative activity counts, so
// engagement earned on other devices is credited before the read. A pass
// that would change nothing is skipped.
func (f *Facade) Ledger(ctx context.Context, userID string) (*domain.Ledger, error) {
	if f.net.Connected() {
		if counts, ok := f.authoritativeCounts(ctx, userID); ok && f.ledger.NeedsReconcile(userID, counts) {
			if _, err := f.ledger.Reconcile(userID, counts); err != nil {
				log.Printf("[facade] reconcile %s: %v", userID, err)
			}
		}
	}
	return f.ledger.Get(userID)
}

// NextLevelXP returns the experience threshold for the level above the
// given one, or -1 when the level table tops out. Progress bars render
// "x / NextLevelXP".
func (f *Facade) NextLevelXP(level int) int64 {
	return f.ledger.Levels().XPForLevel(level + 1)
}

// SyncStatus reports the state the status bar renders.
func (f *Facade) SyncStatus() domain.SyncStatus {
	return domain.SyncStatus{
		PendingCount:    f.queue.Len(),
		DeadLetterCount: f.queue.DeadLetterCount(),
		LastSyncAt:      f.syncer.LastSyncAt(),
		SyncInProgress:  f.syncer.InProgress(),
		Connected:       f.net.Connected(),
	}
}

// ForceSync runs a drain pass immediately (pull-to-refresh). Offline it
// fails fast with ErrOffline instead of burning the retry budget.
func (f *Facade) ForceSync(ctx context.Context) error {
	if !f.net.Connected() {
		return domain.ErrOffline
	}
	return f.syncer.Drain(ctx)
}

// SetNetworkState forwards the platform reachability callback into the
// monitor. A debounced reconnect edge triggers a background drain.
func (f *Facade) SetNetworkState(state domain.NetworkState) {
	f.net.Set(state)
}

// PendingActions exposes the queued actions for inspection surfaces.
func (f *Facade) PendingActions() ([]domain.OfflineAction, error) {
	return f.queue.PeekAll()
}

// DeadLetters exposes the retired actions for inspection surfaces.
func (f *Facade) DeadLetters() ([]queue.DeadLetter, error) {
	return f.queue.DeadLetters()
}

// ─── Internals ──────────────────────────────────────────────────────────────

// authoritativeCounts fetches the server-maintained per-user stats
// document. Absence or failure just skips reconciliation for this read.
func (f *Facade) authoritativeCounts(ctx context.Context, userID string) (domain.Counters, bool) {
	callCtx, cancel := context.WithTimeout(ctx, f.cfg.CallTimeout)
	defer cancel()

	doc, err := f.remote.Get(callCtx, domain.CollectionStats, userID)
	if err != nil {
		log.Printf("[facade] fetch stats for %s: %v", userID, err)
		return domain.Counters{}, false
	}
	if doc == nil {
		return domain.Counters{}, false
	}
	return domain.Counters{
		Posts:            asInt64(doc["posts"]),
		LikesReceived:    asInt64(doc["likes_received"]),
		CommentsReceived: asInt64(doc["comments_received"]),
		Friends:          asInt64(doc["friends"]),
		Followers:        asInt64(doc["followers"]),
	}, true
}

// creditActivity applies progression for a directly-confirmed action.
// Ledger failures are logged; reconciliation heals the missed credit.
func (f *Facade) creditActivity(actorID string, event domain.ActivityEvent) {
	if _, err := f.ledger.ApplyActivity(actorID, event); err != nil {
		log.Printf("[facade] credit activity for %s: %v", actorID, err)
	}
}

// resolve rewrites a local placeholder id if its creating action has
// already been confirmed; otherwise the id passes through unchanged.
func (f *Facade) resolve(id string) string {
	if resolved, ok := f.syncer.ResolveID(id); ok {
		return resolved
	}
	return id
}

func (f *Facade) prependFeed(doc domain.Document) {
	var feed []domain.Document
	f.cache.GetJSON(cache.KeyFeed, &feed)
	feed = append([]domain.Document{doc}, feed...)
	f.cache.PutJSON(cache.KeyFeed, feed, f.cfg.FeedTTL)
}

func (f *Facade) appendConversation(peerID string, msg domain.Message) {
	var msgs []domain.Message
	f.cache.GetJSON(cache.MessagesKey(peerID), &msgs)
	msgs = append(msgs, msg)
	f.cache.PutJSON(cache.MessagesKey(peerID), msgs, f.cfg.MessagesTTL)
}

func (f *Facade) patchCachedProfile(userID string, patch domain.UpdateProfilePayload) {
	var p domain.Profile
	f.cache.GetJSON(cache.ProfileKey(userID), &p)
	p.UserID = userID
	if patch.DisplayName != "" {
		p.DisplayName = patch.DisplayName
	}
	if patch.Bio != "" {
		p.Bio = patch.Bio
	}
	if patch.AvatarURL != "" {
		p.AvatarURL = patch.AvatarURL
	}
	f.cache.PutJSON(cache.ProfileKey(userID), p, f.cfg.ProfileTTL)
}

func postDoc(p domain.Post) domain.Document {
	doc := domain.Document{
		"id":         p.ID,
		"author_id":  p.AuthorID,
		"body":       p.Body,
		"created_at": p.CreatedAt.Format(time.RFC3339),
	}
	if p.ImageURL != "" {
		doc["image_url"] = p.ImageURL
	}
	if p.Pending {
		doc["pending"] = true
	}
	return doc
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

// SetClock overrides the facade's clock. Tests only.
func (f *Facade) SetClock(now func() time.Time) { f.now = now }
