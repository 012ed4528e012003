package facade

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/waveline-app/waveline/internal/app/ledger"
	"github.com/waveline-app/waveline/internal/app/queue"
	"github.com/waveline-app/waveline/internal/app/syncer"
	"github.com/waveline-app/waveline/internal/domain"
	"github.com/waveline-app/waveline/internal/infra/cache"
	"github.com/waveline-app/waveline/internal/infra/memstore"
	"github.com/waveline-app/waveline/internal/infra/netmon"
)

// ─── Fakes ──────────────────────────────────────────────────────────────────

type fakeRemote struct {
	mu        sync.Mutex
	creates   int
	updates   int
	failAll   error
	lastDoc   domain.Document
	getDocs   map[string]domain.Document // collection/id → doc
	queryDocs []domain.Document
	serverID  string
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{serverID: "srv-1", getDocs: make(map[string]domain.Document)}
}

func (f *fakeRemote) Create(_ context.Context, _ string, doc domain.Document) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return "", f.failAll
	}
	f.creates++
	f.lastDoc = doc
	return f.serverID, nil
}

func (f *fakeRemote) Update(_ context.Context, _ string, _ string, patch domain.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return f.failAll
	}
	f.updates++
	f.lastDoc = patch
	return nil
}

func (f *fakeRemote) Get(_ context.Context, collection, id string) (domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return nil, f.failAll
	}
	return f.getDocs[collection+"/"+id], nil
}

func (f *fakeRemote) Query(context.Context, string, domain.Filter, int) ([]domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return nil, f.failAll
	}
	return f.queryDocs, nil
}

type testEnv struct {
	facade *Facade
	remote *fakeRemote
	queue  *queue.Queue
	ledger *ledger.Service
	cache  *cache.Store
	net    *netmon.Monitor
}

func newTestEnv(t *testing.T, connected bool) *testEnv {
	t.Helper()

	store := memstore.New()
	q, err := queue.New(store)
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	l, err := ledger.New(store, domain.DefaultLevelTable(), domain.DefaultAchievementCatalog())
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	c := cache.New(store)
	remote := newFakeRemote()
	engine := syncer.New(syncer.DefaultConfig(), remote, q, l, c, store)
	net := netmon.New(time.Hour) // debounce never fires during a test

	if connected {
		net.Set(domain.NetworkState{Connected: true, Transport: domain.TransportWifi})
	}

	return &testEnv{
		facade: New(DefaultConfig(), remote, q, engine, l, c, net),
		remote: remote,
		queue:  q,
		ledger: l,
		cache:  c,
		net:    net,
	}
}

// ─── Write Path Tests ───────────────────────────────────────────────────────

func TestCreatePost_OnlineGoesDirect(t *testing.T) {
	env := newTestEnv(t, true)

	post, err := env.facade.CreatePost(context.Background(), "u1", "hello", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if post.Pending {
		t.Error("direct post marked pending")
	}
	if post.ID != "srv-1" {
		t.Errorf("id = %q, want server id", post.ID)
	}
	if env.queue.Len() != 0 {
		t.Errorf("queue len = %d, want 0", env.queue.Len())
	}

	// Progression credited immediately.
	l, _ := env.ledger.Get("u1")
	if l.Counters.Posts != 1 {
		t.Errorf("posts counter = %d, want 1", l.Counters.Posts)
	}
}

func TestCreatePost_OfflineQueuesAndFakes(t *testing.T) {
	env := newTestEnv(t, false)

	post, err := env.facade.CreatePost(context.Background(), "u1", "offline words", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !post.Pending {
		t.Error("queued post must be pending")
	}
	if !domain.IsLocalID(post.ID) {
		t.Errorf("id = %q, want local placeholder", post.ID)
	}
	if env.remote.creates != 0 {
		t.Error("remote touched while offline")
	}
	if env.queue.Len() != 1 {
		t.Fatalf("queue len = %d, want 1", env.queue.Len())
	}

	// The optimistic entry is visible in the cached feed.
	feed, err := env.facade.Feed(context.Background())
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if len(feed) != 1 || feed[0]["body"] != "offline words" {
		t.Errorf("feed = %v", feed)
	}
	if feed[0]["pending"] != true {
		t.Error("optimistic feed entry not marked pending")
	}

	// No progression until the action is confirmed.
	l, _ := env.ledger.Get("u1")
	if l.Counters.Posts != 0 {
		t.Errorf("posts counter = %d before sync, want 0", l.Counters.Posts)
	}
}

func TestCreatePost_DirectFailureFallsBackToQueue(t *testing.T) {
	env := newTestEnv(t, true)
	env.remote.failAll = errors.New("remote down")

	post, err := env.facade.CreatePost(context.Background(), "u1", "resilient", "")
	if err != nil {
		t.Fatalf("a failed direct call must queue, not error: %v", err)
	}
	if !post.Pending {
		t.Error("fallback post must be pending")
	}
	if env.queue.Len() != 1 {
		t.Errorf("queue len = %d, want 1", env.queue.Len())
	}
}

func TestLikePost_PendingPostAlwaysQueues(t *testing.T) {
	env := newTestEnv(t, true)

	queued, err := env.facade.LikePost(context.Background(), "u2", "local:p1", true)
	if err != nil {
		t.Fatalf("like: %v", err)
	}
	if !queued {
		t.Error("like of a pending post must queue even while online")
	}
	if env.remote.updates != 0 {
		t.Error("remote touched for an unresolvable reference")
	}
}

func TestLikePost_OnlineCarriesEndState(t *testing.T) {
	env := newTestEnv(t, true)

	queued, err := env.facade.LikePost(context.Background(), "u2", "p9", false)
	if err != nil {
		t.Fatalf("like: %v", err)
	}
	if queued {
		t.Error("direct like reported as queued")
	}
	if got := env.remote.lastDoc["liked"]; got != false {
		t.Errorf("liked = %v, want end-state false", got)
	}
}

func TestSendMessage_OfflineAppendsConversation(t *testing.T) {
	env := newTestEnv(t, false)

	msg, err := env.facade.SendMessage(context.Background(), "u1", "u2", "see you there")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !msg.Pending {
		t.Error("queued message must be pending")
	}

	var msgs []domain.Message
	if !env.cache.GetJSON(cache.MessagesKey("u2"), &msgs) {
		t.Fatal("conversation not cached")
	}
	if len(msgs) != 1 || msgs[0].Body != "see you there" {
		t.Errorf("conversation = %v", msgs)
	}
}

func TestAwardXP_RejectsNegativeOnBothPaths(t *testing.T) {
	for _, connected := range []bool{true, false} {
		env := newTestEnv(t, connected)
		if _, _, err := env.facade.AwardXP(context.Background(), "u1", -5, "oops"); !errors.Is(err, domain.ErrNegativeXP) {
			t.Errorf("connected=%v: err = %v, want ErrNegativeXP", connected, err)
		}
		if env.queue.Len() != 0 {
			t.Errorf("connected=%v: negative award was queued", connected)
		}
	}
}

func TestAwardXP_OnlineAppliesImmediately(t *testing.T) {
	env := newTestEnv(t, true)

	res, queued, err := env.facade.AwardXP(context.Background(), "u1", 60, "daily bonus")
	if err != nil {
		t.Fatalf("award: %v", err)
	}
	if queued {
		t.Error("direct award reported as queued")
	}
	if res.Experience != 60 {
		t.Errorf("experience = %d, want 60", res.Experience)
	}
	if !res.LeveledUp || res.Level != 2 {
		t.Errorf("level = %d leveledUp=%v, want level 2", res.Level, res.LeveledUp)
	}
}

func TestUpdateProfile_PatchesCacheOnBothPaths(t *testing.T) {
	env := newTestEnv(t, false)

	queued, err := env.facade.UpdateProfile(context.Background(), "u1",
		domain.UpdateProfilePayload{DisplayName: "Ada"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !queued {
		t.Error("offline update not queued")
	}

	p, err := env.facade.Profile(context.Background(), "u1")
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if p.DisplayName != "Ada" {
		t.Errorf("display name = %q, want optimistic patch", p.DisplayName)
	}
}

// ─── Status / Sync / Ledger Tests ───────────────────────────────────────────

func TestSyncStatus_ReflectsQueueAndNetwork(t *testing.T) {
	env := newTestEnv(t, false)

	env.facade.CreatePost(context.Background(), "u1", "one", "")
	env.facade.CreatePost(context.Background(), "u1", "two", "")

	st := env.facade.SyncStatus()
	if st.PendingCount != 2 {
		t.Errorf("pending = %d, want 2", st.PendingCount)
	}
	if st.Connected {
		t.Error("connected = true while offline")
	}
	if st.SyncInProgress {
		t.Error("sync in progress with no drain running")
	}
	if !st.LastSyncAt.IsZero() {
		t.Error("lastSyncAt set before any sync")
	}
}

func TestForceSync_OfflineFailsFast(t *testing.T) {
	env := newTestEnv(t, false)

	if err := env.facade.ForceSync(context.Background()); !errors.Is(err, domain.ErrOffline) {
		t.Errorf("err = %v, want ErrOffline", err)
	}
}

func TestForceSync_DrainsQueuedActions(t *testing.T) {
	env := newTestEnv(t, false)

	env.facade.CreatePost(context.Background(), "u1", "written offline", "")

	env.net.Set(domain.NetworkState{Connected: true, Transport: domain.TransportWifi})
	if err := env.facade.ForceSync(context.Background()); err != nil {
		t.Fatalf("force sync: %v", err)
	}

	if env.queue.Len() != 0 {
		t.Errorf("queue len = %d after sync, want 0", env.queue.Len())
	}
	if env.remote.creates != 1 {
		t.Errorf("remote creates = %d, want 1", env.remote.creates)
	}

	// Progression applied exactly once, by the drain.
	l, _ := env.ledger.Get("u1")
	if l.Counters.Posts != 1 {
		t.Errorf("posts counter = %d, want 1", l.Counters.Posts)
	}
}

func TestLedger_ReconcilesFromServerStats(t *testing.T) {
	env := newTestEnv(t, true)
	env.remote.getDocs[domain.CollectionStats+"/u1"] = domain.Document{
		"posts":          float64(12), // JSON numbers arrive as float64
		"likes_received": float64(3),
	}

	l, err := env.facade.Ledger(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	if l.Counters.Posts != 12 {
		t.Errorf("posts = %d, want authoritative 12", l.Counters.Posts)
	}
	if !l.HasUnlocked("prolific") {
		t.Error("retroactive unlock missing after reconcile")
	}
	if l.ReconciledAt.IsZero() {
		t.Error("ReconciledAt not stamped")
	}
}

// A second read with unchanged authoritative counts must not re-run the
// reconcile pass.
func TestLedger_UnchangedCountsSkipReconcile(t *testing.T) {
	env := newTestEnv(t, true)
	env.remote.getDocs[domain.CollectionStats+"/u1"] = domain.Document{
		"posts": float64(2),
	}

	first, err := env.facade.Ledger(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	stamp := first.ReconciledAt
	if stamp.IsZero() {
		t.Fatal("first read did not reconcile")
	}

	// Advance the ledger clock; a re-run would move the stamp.
	env.ledger.SetClock(func() time.Time { return stamp.Add(time.Hour) })

	second, err := env.facade.Ledger(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	if !second.ReconciledAt.Equal(stamp) {
		t.Errorf("ReconciledAt = %v, want unchanged %v", second.ReconciledAt, stamp)
	}
}

func TestLeaderboard_CacheFirst(t *testing.T) {
	env := newTestEnv(t, true)
	env.remote.queryDocs = []domain.Document{
		{"user_id": "u9", "posts": float64(40)},
	}

	docs, err := env.facade.Leaderboard(context.Background())
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(docs) != 1 || docs[0]["user_id"] != "u9" {
		t.Fatalf("docs = %v", docs)
	}

	// Remote goes away; the cached page still serves.
	env.remote.failAll = errors.New("remote down")
	docs, err = env.facade.Leaderboard(context.Background())
	if err != nil {
		t.Fatalf("cached leaderboard: %v", err)
	}
	if len(docs) != 1 {
		t.Errorf("docs = %d entries, want cached 1", len(docs))
	}
}

func TestLedger_OfflineSkipsReconcile(t *testing.T) {
	env := newTestEnv(t, false)

	l, err := env.facade.Ledger(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	if l.Level != 1 || l.Experience != 0 {
		t.Errorf("fresh ledger = level %d xp %d", l.Level, l.Experience)
	}
	if !l.ReconciledAt.IsZero() {
		t.Error("reconciled while offline")
	}
}
