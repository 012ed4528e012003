package domain

import "context"

// ─── Collaborator Interfaces ────────────────────────────────────────────────
// These interfaces define boundaries between layers. The remote document
// service, the durable local store, and the platform reachability callback
// are external collaborators; the core is implementable purely in terms of
// them, and tests substitute fakes.

// Document is one record in the remote document store.
type Document map[string]any

// Filter selects documents by a single field predicate. The core never
// needs richer queries than equality on one field.
type Filter struct {
	Field string
	Value any
}

// RemoteService abstracts the remote document store. All calls may fail
// with a generic transient-or-permanent error; the core does not inspect
// error codes and treats every failure as retryable.
type RemoteService interface {
	// Create stores a new document and returns the server-assigned id.
	Create(ctx context.Context, collection string, doc Document) (string, error)

	// Update applies a partial patch, creating the document if absent
	// (set-with-merge semantics). Replaying an update with the same patch
	// is idempotent.
	Update(ctx context.Context, collection, id string, patch Document) error

	// Get returns a document, or (nil, nil) if absent.
	Get(ctx context.Context, collection, id string) (Document, error)

	// Query returns documents matching the filter, newest first, up to limit.
	Query(ctx context.Context, collection string, filter Filter, limit int) ([]Document, error)
}

// RemoteSubscriber is the optional live-query capability of the remote
// service. Only the excluded UI layer consumes it; the core never does.
type RemoteSubscriber interface {
	Subscribe(ctx context.Context, collection string, filter Filter) (<-chan []Document, error)
}

// LocalStore abstracts durable local key/value persistence. It backs the
// action queue, the cache store, and the ledger across process restarts.
type LocalStore interface {
	// ReadKey returns the value and whether the key exists.
	ReadKey(key string) ([]byte, bool, error)

	// WriteKey stores a value durably before returning.
	WriteKey(key string, value []byte) error

	// DeleteKey removes a key; deleting an absent key is not an error.
	DeleteKey(key string) error

	// ListKeys returns all keys with the given prefix, in lexical order.
	ListKeys(prefix string) ([]string, error)
}
