package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure — no infrastructure dependency.

var (
	// Queue errors
	ErrQueuePersist  = errors.New("failed to persist queued action")
	ErrActionMissing = errors.New("queued action not found")

	// Sync errors
	ErrOffline       = errors.New("no network connection available")
	ErrUnresolvedRef = errors.New("action references an unconfirmed local entity")
	ErrUnknownKind   = errors.New("unknown action kind")

	// Ledger errors
	ErrNegativeXP = errors.New("experience cannot become negative")

	// Configuration errors
	ErrEmptyLevelTable = errors.New("level table is empty")
	ErrBadLevelTable   = errors.New("level table must start at level 1 / 0 XP and ascend")
	ErrBadCatalog      = errors.New("achievement catalog has duplicate ids or unknown metrics")
)
