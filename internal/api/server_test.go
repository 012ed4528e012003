package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/waveline-app/waveline/internal/app/facade"
	"github.com/waveline-app/waveline/internal/app/ledger"
	"github.com/waveline-app/waveline/internal/app/queue"
	"github.com/waveline-app/waveline/internal/app/syncer"
	"github.com/waveline-app/waveline/internal/domain"
	"github.com/waveline-app/waveline/internal/infra/cache"
	"github.com/waveline-app/waveline/internal/infra/memstore"
	"github.com/waveline-app/waveline/internal/infra/netmon"
)

// ─── Test Setup ─────────────────────────────────────────────────────────────

// offlineRemote fails every call; with the monitor disconnected the
// facade never reaches it anyway.
type offlineRemote struct{}

func (offlineRemote) Create(context.Context, string, domain.Document) (string, error) {
	return "", domain.ErrOffline
}
func (offlineRemote) Update(context.Context, string, string, domain.Document) error {
	return domain.ErrOffline
}
func (offlineRemote) Get(context.Context, string, string) (domain.Document, error) {
	return nil, domain.ErrOffline
}
func (offlineRemote) Query(context.Context, string, domain.Filter, int) ([]domain.Document, error) {
	return nil, domain.ErrOffline
}

func setupServer(t *testing.T) (*Server, *netmon.Monitor) {
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
	engine := syncer.New(syncer.DefaultConfig(), offlineRemote{}, q, l, c, store)
	net := netmon.New(time.Hour)

	core := facade.New(facade.DefaultConfig(), offlineRemote{}, q, engine, l, c, net)
	return NewServer(core), net
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp
}

// ─── Route Tests ────────────────────────────────────────────────────────────

func TestAPI_Health(t *testing.T) {
	srv, _ := setupServer(t)
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if resp := decodeBody(t, w); resp["status"] != "ok" {
		t.Errorf("status = %v", resp["status"])
	}
}

func TestAPI_Status(t *testing.T) {
	srv, _ := setupServer(t)
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	resp := decodeBody(t, w)
	if resp["pending_count"] != float64(0) {
		t.Errorf("pending_count = %v, want 0", resp["pending_count"])
	}
	if resp["connected"] != false {
		t.Errorf("connected = %v, want false", resp["connected"])
	}
}

func TestAPI_CreatePostOfflineQueues(t *testing.T) {
	srv, _ := setupServer(t)
	handler := srv.Handler()

	body := strings.NewReader(`{"actor_id":"u1","body":"hello from the api"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/posts", body)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	resp := decodeBody(t, w)
	if resp["pending"] != true {
		t.Error("offline post not marked pending")
	}

	// The queue surface shows it.
	req = httptest.NewRequest(http.MethodGet, "/api/queue", nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if resp := decodeBody(t, w); resp["count"] != float64(1) {
		t.Errorf("queue count = %v, want 1", resp["count"])
	}
}

func TestAPI_CreatePostValidation(t *testing.T) {
	srv, _ := setupServer(t)
	handler := srv.Handler()

	tests := []struct {
		name string
		body string
	}{
		{"missing actor", `{"body":"no actor"}`},
		{"missing body", `{"actor_id":"u1"}`},
		{"malformed", `{notjson`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/posts", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", w.Code)
			}
		})
	}
}

func TestAPI_SyncOffline(t *testing.T) {
	srv, _ := setupServer(t)
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodPost, "/api/sync", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 while offline, got %d", w.Code)
	}
}

func TestAPI_AwardXPNegativeRejected(t *testing.T) {
	srv, _ := setupServer(t)
	handler := srv.Handler()

	body := strings.NewReader(`{"actor_id":"u1","amount":-10,"reason":"bad"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/xp", body)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestAPI_Ledger(t *testing.T) {
	srv, _ := setupServer(t)
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/ledger/u1", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	resp := decodeBody(t, w)
	if resp["user_id"] != "u1" {
		t.Errorf("user_id = %v", resp["user_id"])
	}
	if resp["level"] != float64(1) {
		t.Errorf("level = %v, want 1", resp["level"])
	}
	if resp["next_level_xp"] != float64(50) {
		t.Errorf("next_level_xp = %v, want 50", resp["next_level_xp"])
	}
}

func TestAPI_DeadLetterEmpty(t *testing.T) {
	srv, _ := setupServer(t)
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/queue/deadletter", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if resp := decodeBody(t, w); resp["count"] != float64(0) {
		t.Errorf("count = %v, want 0", resp["count"])
	}
}

func TestAPI_MetricsDisabledByDefault(t *testing.T) {
	srv, _ := setupServer(t)
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 with metrics disabled, got %d", w.Code)
	}
}

func TestAPI_MetricsEnabled(t *testing.T) {
	srv, _ := setupServer(t)
	srv.EnableMetrics()
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	// Per-kind series are pre-registered, so they show up before any event.
	if !strings.Contains(w.Body.String(), `waveline_queue_enqueued_total{kind="send_message"}`) {
		t.Error("pre-registered kind series missing from scrape")
	}
}
