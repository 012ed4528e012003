// Package syncer drains the action queue against the remote service
// whenever connectivity allows.
//
// Drain is single-flight: an atomic gate guarantees at most one pass runs
// at a time, and a concurrent call is a no-op. Within a pass, actions are
// replayed strictly in enqueue order. The failure policy is
// stop-on-first-failure: a failed action ends the pass so that actions
// depending on it (a like of a post still being created) are never
// attempted out of order. The cost is head-of-line blocking, bounded by
// the per-action retry budget — an action that keeps failing moves to the
// dead-letter list instead of wedging the queue forever.
package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/waveline-app/waveline/internal/app/ledger"
	"github.com/waveline-app/waveline/internal/app/queue"
	"github.com/waveline-app/waveline/internal/domain"
	"github.com/waveline-app/waveline/internal/infra/cache"
	"github.com/waveline-app/waveline/internal/infra/observability"
)

// Key namespaces owned by the sync engine.
const (
	RemapPrefix = "remap/"
	lastSyncKey = "sync/last_sync_at"
)

// FeedRefreshLimit is how many posts the post-drain feed refresh pulls.
const FeedRefreshLimit = 50

// Config controls sync behavior.
type Config struct {
	ActionTimeout time.Duration // per-action remote call budget
	MaxAttempts   int           // dispatch attempts before dead-lettering
	FeedCacheTTL  time.Duration // TTL for the refreshed feed entry
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		ActionTimeout: 15 * time.Second,
		MaxAttempts:   8,
		FeedCacheTTL:  5 * time.Minute,
	}
}

// Engine replays queued actions and applies their progression effects.
type Engine struct {
	cfg    Config
	remote domain.RemoteService
	queue  *queue.Queue
	ledger *ledger.Service
	cache  *cache.Store
	store  domain.LocalStore

	inFlight atomic.Bool // the single-flight gate

	mu       sync.Mutex // guards lastSync
	lastSync time.Time

	now func() time.Time
}

// New creates a sync engine. lastSyncAt is recovered from the local store
// so the status indicator survives restarts.
func New(cfg Config, remote domain.RemoteService, q *queue.Queue, l *ledger.Service, c *cache.Store, store domain.LocalStore) *Engine {
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = DefaultConfig().ActionTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if cfg.FeedCacheTTL <= 0 {
		cfg.FeedCacheTTL = DefaultConfig().FeedCacheTTL
	}

	e := &Engine{
		cfg:    cfg,
		remote: remote,
		queue:  q,
		ledger: l,
		cache:  c,
		store:  store,
		now:    time.Now,
	}

	if data, ok, err := store.ReadKey(lastSyncKey); err == nil && ok {
		var t time.Time
		if json.Unmarshal(data, &t) == nil {
			e.lastSync = t
		}
	}
	return e
}

// InProgress reports whether a drain pass is currently running.
func (e *Engine) InProgress() bool { return e.inFlight.Load() }

// LastSyncAt returns when the last fully successful pass completed.
func (e *Engine) LastSyncAt() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSync
}

// TriggerAsync starts a drain in the background; the reconnect edge and
// the periodic retry timer both land here. Redundant triggers collapse
// into the running pass.
func (e *Engine) TriggerAsync() {
	go func() {
		if err := e.Drain(context.Background()); err != nil {
			log.Printf("[syncer] drain: %v", err)
		}
	}()
}

// Drain replays all queued actions in enqueue order. Re-entrant-safe: if
// a pass is already running the call is a no-op and returns nil. Returns
// the dispatch error that ended a partial pass; the failed action stays
// queued for the next reconnect.
func (e *Engine) Drain(ctx context.Context) error {
	if !e.inFlight.CompareAndSwap(false, true) {
		return nil
	}
	defer e.inFlight.Store(false)

	start := e.now()
	defer func() {
		observability.DrainDuration.Observe(e.now().Sub(start).Seconds())
	}()

	snapshot, err := e.queue.PeekAll()
	if err != nil {
		return fmt.Errorf("snapshot queue: %w", err)
	}
	if len(snapshot) == 0 {
		observability.DrainPasses.WithLabelValues("noop").Inc()
		return nil
	}

	log.Printf("[syncer] draining %d actions", len(snapshot))

	for _, action := range snapshot {
		if err := ctx.Err(); err != nil {
			observability.DrainPasses.WithLabelValues("partial").Inc()
			return err
		}

		if err := e.dispatchOne(ctx, action); err != nil {
			observability.ActionsFailed.WithLabelValues(string(action.Kind)).Inc()

			attempts, aerr := e.queue.IncrementAttempts(action.ID)
			if aerr != nil {
				log.Printf("[syncer] record attempt for %s: %v", action.ID, aerr)
			}
			if attempts >= e.cfg.MaxAttempts {
				log.Printf("[syncer] action %s exhausted %d attempts, dead-lettering: %v",
					action.ID, attempts, err)
				if dlerr := e.queue.MoveToDeadLetter(action.ID, err.Error()); dlerr != nil {
					log.Printf("[syncer] dead-letter %s: %v", action.ID, dlerr)
				}
				// The head is unblocked, but actions after this one may
				// have depended on it; end the pass and let the next
				// drain sort the survivors out.
			}

			observability.DrainPasses.WithLabelValues("partial").Inc()
			return fmt.Errorf("dispatch %s %s: %w", action.Kind, action.ID, err)
		}

		if err := e.queue.Remove(action.ID); err != nil {
			// The remote effect happened; a duplicate replay is the
			// accepted at-least-once cost. End-state payloads keep it
			// harmless.
			log.Printf("[syncer] remove confirmed action %s: %v", action.ID, err)
		}
		observability.ActionsSynced.WithLabelValues(string(action.Kind)).Inc()

		e.applyProgression(action)
	}

	e.mu.Lock()
	e.lastSync = e.now()
	last := e.lastSync
	e.mu.Unlock()
	if data, err := json.Marshal(last); err == nil {
		if err := e.store.WriteKey(lastSyncKey, data); err != nil {
			log.Printf("[syncer] persist last sync: %v", err)
		}
	}

	e.refreshFeed(ctx)

	observability.DrainPasses.WithLabelValues("complete").Inc()
	log.Printf("[syncer] drain complete, %d actions confirmed", len(snapshot))
	return nil
}

// refreshFeed re-pulls the posts list into the cache after a clean pass,
// so screens stop showing optimistic placeholders.
func (e *Engine) refreshFeed(ctx context.Context) {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.ActionTimeout)
	defer cancel()

	docs, err := e.remote.Query(callCtx, domain.CollectionPosts, domain.Filter{}, FeedRefreshLimit)
	if err != nil {
		log.Printf("[syncer] refresh feed: %v", err)
		return
	}
	e.cache.PutJSON(cache.KeyFeed, docs, e.cfg.FeedCacheTTL)
}
