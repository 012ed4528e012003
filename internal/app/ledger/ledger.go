// Package ledger maintains the per-user progression state: experience,
// level, unlocked achievements, and denormalized activity counters.
//
// Everything here is derived state. Level is always recomputed from
// experience; the counters are caches of authoritative recounts and any
// drift is self-healed by Reconcile, never surfaced as an error. Unlocks
// are idempotent keyed by achievement id, so replaying a queued action's
// progression effects after a duplicate submission cannot double-reward.
package ledger

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/waveline-app/waveline/internal/domain"
	"github.com/waveline-app/waveline/internal/infra/observability"
)

// Prefix is the key namespace the ledger owns in the local store.
const Prefix = "ledger/"

// Result reports what one ledger mutation changed.
type Result struct {
	NewlyUnlocked []string `json:"newly_unlocked"` // achievement ids, catalog order
	LeveledUp     bool     `json:"leveled_up"`
	Level         int      `json:"level"`
	Experience    int64    `json:"experience"`
}

// Service owns all ledger mutations. Mutations for one user are serialized
// by a per-user mutex: the sync engine, the reconnect timer, and direct
// facade calls can all race to touch the same ledger.
type Service struct {
	mu    sync.Mutex // guards users
	users map[string]*sync.Mutex

	store   domain.LocalStore
	levels  domain.LevelTable
	catalog domain.AchievementCatalog
	now     func() time.Time
}

// New creates the ledger service. The level table and achievement catalog
// are immutable configuration, validated once at construction.
func New(store domain.LocalStore, levels domain.LevelTable, catalog domain.AchievementCatalog) (*Service, error) {
	if err := levels.Validate(); err != nil {
		return nil, err
	}
	if err := catalog.Validate(); err != nil {
		return nil, err
	}
	return &Service{
		users:   make(map[string]*sync.Mutex),
		store:   store,
		levels:  levels,
		catalog: catalog,
		now:     time.Now,
	}, nil
}

// Levels returns the level table.
func (s *Service) Levels() domain.LevelTable { return s.levels }

// Catalog returns the achievement catalog.
func (s *Service) Catalog() domain.AchievementCatalog { return s.catalog }

func (s *Service) lockFor(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	mu, ok := s.users[userID]
	if !ok {
		mu = &sync.Mutex{}
		s.users[userID] = mu
	}
	return mu
}

// ─── Reads ──────────────────────────────────────────────────────────────────

// Get returns the user's ledger. Level is recomputed from experience at
// read time; a stored copy that disagrees is corrected before returning.
func (s *Service) Get(userID string) (*domain.Ledger, error) {
	mu := s.lockFor(userID)
	mu.Lock()
	defer mu.Unlock()

	l, err := s.load(userID)
	if err != nil {
		return nil, err
	}

	if derived := s.levels.LevelFor(l.Experience); derived != l.Level {
		log.Printf("[ledger] level drift for %s: stored=%d derived=%d", userID, l.Level, derived)
		l.Level = derived
		if err := s.save(l); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// ─── Mutations ──────────────────────────────────────────────────────────────

// ApplyActivity increments the relevant counter, credits any direct
// experience, evaluates achievement eligibility, and reports what changed.
// All achievements satisfied in one call are unlocked together and their
// rewards summed before a single level recomputation, so no intermediate
// level-up fires on a partial total.
func (s *Service) ApplyActivity(userID string, event domain.ActivityEvent) (Result, error) {
	mu := s.lockFor(userID)
	mu.Lock()
	defer mu.Unlock()

	l, err := s.load(userID)
	if err != nil {
		return Result{}, err
	}

	delta := event.Delta
	if delta == 0 {
		delta = 1
	}
	l.Counters.Add(event.Metric, delta)

	return s.applyAndSave(l, event.XP)
}

// AddExperience credits (or debits) experience directly. Experience is
// monotonically non-decreasing in normal operation; a delta that would
// take it negative is an invariant violation and propagates as a hard
// error without mutating the ledger.
func (s *Service) AddExperience(userID string, delta int64) (Result, error) {
	mu := s.lockFor(userID)
	mu.Lock()
	defer mu.Unlock()

	l, err := s.load(userID)
	if err != nil {
		return Result{}, err
	}
	if l.Experience+delta < 0 {
		return Result{}, fmt.Errorf("%w: %d%+d", domain.ErrNegativeXP, l.Experience, delta)
	}
	return s.applyAndSave(l, delta)
}

// Reconcile overwrites the stored counters with the authoritative recount,
// then re-derives achievement eligibility and level from the corrected
// counters. Users who accrued activity before the ledger existed are
// credited here, exactly once: the pass is idempotent, and ReconciledAt
// marks that the retroactive credit has run.
func (s *Service) Reconcile(userID string, authoritative domain.Counters) (Result, error) {
	mu := s.lockFor(userID)
	mu.Lock()
	defer mu.Unlock()

	l, err := s.load(userID)
	if err != nil {
		return Result{}, err
	}

	clean := l.Counters == authoritative && !l.ReconciledAt.IsZero()
	if l.Counters != authoritative {
		log.Printf("[ledger] counter drift for %s: stored=%+v authoritative=%+v",
			userID, l.Counters, authoritative)
	}
	l.Counters = authoritative
	l.ReconciledAt = s.now()

	result, err := s.applyAndSave(l, 0)
	if err != nil {
		return Result{}, err
	}

	if clean {
		observability.Reconciliations.WithLabelValues("clean").Inc()
	} else {
		observability.Reconciliations.WithLabelValues("corrected").Inc()
	}
	return result, nil
}

// NeedsReconcile reports whether a reconcile pass would change anything:
// either the retroactive credit has never run, or the stored counters
// disagree with the authoritative recount.
func (s *Service) NeedsReconcile(userID string, authoritative domain.Counters) bool {
	mu := s.lockFor(userID)
	mu.Lock()
	defer mu.Unlock()

	l, err := s.load(userID)
	if err != nil {
		return true
	}
	return l.ReconciledAt.IsZero() || l.Counters != authoritative
}

// ─── Unlock Evaluation ──────────────────────────────────────────────────────

// applyAndSave credits xpDelta, evaluates unlocks against the current
// counters, recomputes the level exactly once, and persists.
// Caller holds the user's mutex.
func (s *Service) applyAndSave(l *domain.Ledger, xpDelta int64) (Result, error) {
	oldLevel := s.levels.LevelFor(l.Experience)
	l.Experience += xpDelta

	var unlocked []string
	for _, a := range s.catalog {
		if l.HasUnlocked(a.ID) {
			continue
		}
		if !a.Satisfied(l.Counters) {
			continue
		}
		l.Unlocked[a.ID] = s.now()
		l.Experience += a.RewardXP
		unlocked = append(unlocked, a.ID)
		observability.AchievementsUnlocked.Inc()
		log.Printf("[ledger] %s unlocked %q (+%d xp)", l.UserID, a.ID, a.RewardXP)
	}

	l.Level = s.levels.LevelFor(l.Experience)
	if err := s.save(l); err != nil {
		return Result{}, err
	}

	leveledUp := l.Level > oldLevel
	if leveledUp {
		observability.LevelUps.Inc()
		log.Printf("[ledger] %s reached level %d", l.UserID, l.Level)
	}

	return Result{
		NewlyUnlocked: unlocked,
		LeveledUp:     leveledUp,
		Level:         l.Level,
		Experience:    l.Experience,
	}, nil
}

// ─── Persistence ────────────────────────────────────────────────────────────

func (s *Service) load(userID string) (*domain.Ledger, error) {
	data, ok, err := s.store.ReadKey(Prefix + userID)
	if err != nil {
		return nil, fmt.Errorf("load ledger %s: %w", userID, err)
	}
	if !ok {
		return domain.NewLedger(userID), nil
	}

	var l domain.Ledger
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("decode ledger %s: %w", userID, err)
	}
	if l.Unlocked == nil {
		l.Unlocked = make(map[string]time.Time)
	}
	return &l, nil
}

func (s *Service) save(l *domain.Ledger) error {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("encode ledger %s: %w", l.UserID, err)
	}
	if err := s.store.WriteKey(Prefix+l.UserID, data); err != nil {
		return fmt.Errorf("save ledger %s: %w", l.UserID, err)
	}
	return nil
}

// SetClock overrides the service's clock. Tests only.
func (s *Service) SetClock(now func() time.Time) { s.now = now }
