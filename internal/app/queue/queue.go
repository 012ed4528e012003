// Package queue implements the durable FIFO of pending offline actions.
//
// The queue is the only record of unsynced work: Enqueue persists the
// action before returning, and the FIFO order survives process restarts
// via zero-padded sequence keys in the local store. Replay order matters —
// later actions may depend on earlier ones completing first (liking a post
// that was itself created offline), so the sequence, not the action id,
// keys the queue.
package queue

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/waveline-app/waveline/internal/domain"
	"github.com/waveline-app/waveline/internal/infra/observability"
)

// Key namespaces owned by the queue.
const (
	Prefix           = "queue/"
	DeadLetterPrefix = "deadletter/"
)

// DeadLetter is an action retired after exhausting its retry budget,
// kept for inspection instead of being silently dropped.
type DeadLetter struct {
	Action   domain.OfflineAction `json:"action"`
	Reason   string               `json:"reason"`
	FailedAt time.Time            `json:"failed_at"`
}

// Queue is the durable action queue. All mutations go through a single
// mutex; multiple triggers (user action, reconnect, periodic timer) can
// race to touch it.
type Queue struct {
	mu    sync.Mutex
	store domain.LocalStore
	seq   uint64            // next sequence number
	keys  map[string]string // action id → store key
	now   func() time.Time
}

// New opens the queue over the local store, recovering sequence state and
// pending entries from a previous run. Dead-letter keys count toward the
// recovered sequence too: they share the numbering, and a fresh sequence
// colliding with an old dead-letter key would overwrite its record.
func New(store domain.LocalStore) (*Queue, error) {
	q := &Queue{
		store: store,
		keys:  make(map[string]string),
		now:   time.Now,
	}

	keys, err := store.ListKeys(Prefix)
	if err != nil {
		return nil, fmt.Errorf("recover queue: %w", err)
	}
	for _, key := range keys {
		action, err := q.read(key)
		if err != nil {
			return nil, fmt.Errorf("recover queue entry %q: %w", key, err)
		}
		q.keys[action.ID] = key
		if seq := seqOf(key); seq >= q.seq {
			q.seq = seq + 1
		}
	}

	dlKeys, err := store.ListKeys(DeadLetterPrefix)
	if err != nil {
		return nil, fmt.Errorf("recover dead letters: %w", err)
	}
	for _, key := range dlKeys {
		if seq := seqOf(key); seq >= q.seq {
			q.seq = seq + 1
		}
	}

	observability.QueueDepth.Set(float64(len(q.keys)))
	return q, nil
}

// Enqueue appends an action and persists it durably before returning.
// A persistence failure is a hard error: losing a queued action is a
// correctness violation, so it surfaces as ErrQueuePersist.
func (q *Queue) Enqueue(action domain.OfflineAction) (domain.OfflineAction, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if action.ID == "" {
		action.ID = uuid.NewString()
	}
	if action.EnqueuedAt.IsZero() {
		action.EnqueuedAt = q.now()
	}

	data, err := json.Marshal(action)
	if err != nil {
		return domain.OfflineAction{}, fmt.Errorf("%w: %v", domain.ErrQueuePersist, err)
	}

	key := fmt.Sprintf("%s%012d", Prefix, q.seq)
	if err := q.store.WriteKey(key, data); err != nil {
		return domain.OfflineAction{}, fmt.Errorf("%w: %v", domain.ErrQueuePersist, err)
	}

	q.seq++
	q.keys[action.ID] = key

	observability.QueueDepth.Set(float64(len(q.keys)))
	observability.ActionsEnqueued.WithLabelValues(string(action.Kind)).Inc()
	return action, nil
}

// PeekAll returns a snapshot of all pending actions in FIFO order.
func (q *Queue) PeekAll() ([]domain.OfflineAction, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	keys, err := q.store.ListKeys(Prefix)
	if err != nil {
		return nil, fmt.Errorf("snapshot queue: %w", err)
	}

	actions := make([]domain.OfflineAction, 0, len(keys))
	for _, key := range keys {
		action, err := q.read(key)
		if err != nil {
			return nil, err
		}
		actions = append(actions, action)
	}
	return actions, nil
}

// Remove deletes one entry by action id. Removing an unknown id reports
// ErrActionMissing.
func (q *Queue) Remove(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	key, ok := q.keys[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrActionMissing, id)
	}
	if err := q.store.DeleteKey(key); err != nil {
		return fmt.Errorf("remove action %s: %w", id, err)
	}
	delete(q.keys, id)

	observability.QueueDepth.Set(float64(len(q.keys)))
	return nil
}

// Len returns the number of pending actions.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.keys)
}

// IncrementAttempts bumps and persists an action's attempt counter,
// returning the new value. The action is otherwise immutable once queued.
func (q *Queue) IncrementAttempts(id string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	key, ok := q.keys[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", domain.ErrActionMissing, id)
	}

	action, err := q.read(key)
	if err != nil {
		return 0, err
	}
	action.Attempts++

	data, err := json.Marshal(action)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrQueuePersist, err)
	}
	if err := q.store.WriteKey(key, data); err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrQueuePersist, err)
	}
	return action.Attempts, nil
}

// ─── Dead Letters ───────────────────────────────────────────────────────────

// MoveToDeadLetter retires an action that exhausted its retry budget.
// The entry leaves the live queue but stays inspectable.
func (q *Queue) MoveToDeadLetter(id, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	key, ok := q.keys[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrActionMissing, id)
	}
	action, err := q.read(key)
	if err != nil {
		return err
	}

	entry := DeadLetter{Action: action, Reason: reason, FailedAt: q.now()}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrQueuePersist, err)
	}

	dlKey := DeadLetterPrefix + strings.TrimPrefix(key, Prefix)
	if err := q.store.WriteKey(dlKey, data); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrQueuePersist, err)
	}
	if err := q.store.DeleteKey(key); err != nil {
		return fmt.Errorf("retire action %s: %w", id, err)
	}
	delete(q.keys, id)

	observability.QueueDepth.Set(float64(len(q.keys)))
	observability.DeadLettered.WithLabelValues(string(action.Kind)).Inc()
	return nil
}

// DeadLetters returns all retired actions, oldest first.
func (q *Queue) DeadLetters() ([]DeadLetter, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	keys, err := q.store.ListKeys(DeadLetterPrefix)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}

	entries := make([]DeadLetter, 0, len(keys))
	for _, key := range keys {
		data, ok, err := q.store.ReadKey(key)
		if err != nil || !ok {
			continue
		}
		var entry DeadLetter
		if err := json.Unmarshal(data, &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// DeadLetterCount returns the number of retired actions.
func (q *Queue) DeadLetterCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	keys, err := q.store.ListKeys(DeadLetterPrefix)
	if err != nil {
		return 0
	}
	return len(keys)
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func (q *Queue) read(key string) (domain.OfflineAction, error) {
	data, ok, err := q.store.ReadKey(key)
	if err != nil {
		return domain.OfflineAction{}, fmt.Errorf("read %q: %w", key, err)
	}
	if !ok {
		return domain.OfflineAction{}, fmt.Errorf("%w: %s", domain.ErrActionMissing, key)
	}
	var action domain.OfflineAction
	if err := json.Unmarshal(data, &action); err != nil {
		return domain.OfflineAction{}, fmt.Errorf("decode %q: %w", key, err)
	}
	return action, nil
}

func seqOf(key string) uint64 {
	if i := strings.LastIndexByte(key, '/'); i >= 0 {
		key = key[i+1:]
	}
	n, _ := strconv.ParseUint(key, 10, 64)
	return n
}

// SetClock overrides the queue's clock. Tests only.
func (q *Queue) SetClock(now func() time.Time) { q.now = now }
