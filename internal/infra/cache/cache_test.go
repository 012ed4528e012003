package cache

import (
	"errors"
	"testing"
	"time"

	"github.com/waveline-app/waveline/internal/domain"
	"github.com/waveline-app/waveline/internal/infra/memstore"
)

func newTestCache(t *testing.T) (*Store, *memstore.Store, *time.Time) {
	t.Helper()
	local := memstore.New()
	c := New(local)
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	clock := &now
	c.SetClock(func() time.Time { return *clock })
	return c, local, clock
}

func TestPutGet(t *testing.T) {
	c, _, _ := newTestCache(t)

	c.Put("feed", []byte("posts"), time.Minute)

	got, ok := c.Get("feed")
	if !ok {
		t.Fatal("expected hit")
	}
	if string(got) != "posts" {
		t.Errorf("value = %q, want %q", got, "posts")
	}
}

func TestGet_Miss(t *testing.T) {
	c, _, _ := newTestCache(t)

	if _, ok := c.Get("absent"); ok {
		t.Error("expected miss for absent key")
	}
}

func TestGet_ExpiredEvicts(t *testing.T) {
	c, local, clock := newTestCache(t)

	c.Put("feed", []byte("posts"), time.Minute)

	// Exactly at expiry: must miss, never return stale data.
	*clock = clock.Add(time.Minute)
	if _, ok := c.Get("feed"); ok {
		t.Error("expected miss at expiry boundary")
	}

	// The expired entry is discarded, not merely hidden.
	if _, ok, _ := local.ReadKey(Prefix + "feed"); ok {
		t.Error("expired entry still in local store")
	}
}

func TestInvalidate(t *testing.T) {
	c, _, _ := newTestCache(t)

	c.Put("profile/u1", []byte("ada"), time.Hour)
	c.Invalidate("profile/u1")

	if _, ok := c.Get("profile/u1"); ok {
		t.Error("expected miss after invalidate")
	}
}

func TestGet_CorruptEntryEvicts(t *testing.T) {
	c, local, _ := newTestCache(t)

	local.WriteKey(Prefix+"feed", []byte("{not json"))

	if _, ok := c.Get("feed"); ok {
		t.Error("corrupt entry must read as miss")
	}
	if _, ok, _ := local.ReadKey(Prefix + "feed"); ok {
		t.Error("corrupt entry still in local store")
	}
}

func TestPutGetJSON(t *testing.T) {
	c, _, _ := newTestCache(t)

	in := []domain.Post{{ID: "p1", Body: "hello"}}
	c.PutJSON(KeyFeed, in, time.Minute)

	var out []domain.Post
	if !c.GetJSON(KeyFeed, &out) {
		t.Fatal("expected hit")
	}
	if len(out) != 1 || out[0].ID != "p1" {
		t.Errorf("out = %+v", out)
	}
}

// failStore wraps a LocalStore and fails every operation.
type failStore struct{}

var errDisk = errors.New("disk full")

func (failStore) ReadKey(string) ([]byte, bool, error) { return nil, false, errDisk }
func (failStore) WriteKey(string, []byte) error        { return errDisk }
func (failStore) DeleteKey(string) error               { return errDisk }
func (failStore) ListKeys(string) ([]string, error)    { return nil, errDisk }

func TestStoreErrors_DegradeToMiss(t *testing.T) {
	c := New(failStore{})

	// Writes are a no-op, reads a miss; nothing panics or propagates.
	c.Put("feed", []byte("posts"), time.Minute)
	if _, ok := c.Get("feed"); ok {
		t.Error("expected miss when the store is failing")
	}
	c.Invalidate("feed")
}
