package domain

import "time"

// ─── Network & Sync Status Types ────────────────────────────────────────────

// Transport is a coarse label for the active network path.
type Transport string

const (
	TransportWifi     Transport = "wifi"
	TransportCellular Transport = "cellular"
	TransportNone     Transport = "none"
	TransportUnknown  Transport = "unknown"
)

// NetworkState is the process-wide connectivity snapshot. It is replaced
// wholesale on every reachability event, never partially mutated.
type NetworkState struct {
	Connected bool      `json:"connected"`
	Transport Transport `json:"transport"`
}

// SyncStatus is a derived, read-only snapshot for the status indicator.
// PendingCount is recomputed from the queue on demand; only SyncInProgress
// is independent state (the single-flight gate).
type SyncStatus struct {
	PendingCount    int       `json:"pending_count"`
	DeadLetterCount int       `json:"dead_letter_count"`
	LastSyncAt      time.Time `json:"last_sync_at"` // zero if never synced
	SyncInProgress  bool      `json:"sync_in_progress"`
	Connected       bool      `json:"connected"`
}

// ─── Cache Entry ────────────────────────────────────────────────────────────

// CacheEntry wraps read-mostly data with its expiry. A read against an
// expired entry behaves as a miss; the entry is discarded, never returned
// stale.
type CacheEntry struct {
	Data      []byte    `json:"data"`
	CachedAt  time.Time `json:"cached_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the entry is past its expiry at the given time.
func (e CacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}
