// Package remote implements domain.RemoteService over the document
// service's HTTP API.
//
// The error surface is deliberately flat: every failure, from a refused
// connection to a 5xx, comes back as a plain error the sync engine
// treats as retryable. The core never inspects status codes.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/waveline-app/waveline/internal/domain"
)

// Config configures the remote client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration // transport-level budget; callers also pass ctx deadlines
}

// Service is the HTTP-backed remote document store.
type Service struct {
	cfg    Config
	client *http.Client
}

// New creates a remote client.
func New(cfg Config) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Service{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Create stores a new document and returns the server-assigned id.
func (s *Service) Create(ctx context.Context, collection string, doc domain.Document) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	err := s.do(ctx, http.MethodPost, s.collectionURL(collection), doc, &out)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", collection, err)
	}
	return out.ID, nil
}

// Update applies a partial patch with set-with-merge semantics.
func (s *Service) Update(ctx context.Context, collection, id string, patch domain.Document) error {
	if err := s.do(ctx, http.MethodPatch, s.documentURL(collection, id), patch, nil); err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	return nil
}

// Get returns a document, or (nil, nil) if absent.
func (s *Service) Get(ctx context.Context, collection, id string) (domain.Document, error) {
	var doc domain.Document
	err := s.do(ctx, http.MethodGet, s.documentURL(collection, id), nil, &doc)
	if err == errNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

// Query returns documents matching the filter, newest first, up to limit.
func (s *Service) Query(ctx context.Context, collection string, filter domain.Filter, limit int) ([]domain.Document, error) {
	u := s.collectionURL(collection)
	q := url.Values{}
	if filter.Field != "" {
		q.Set("field", filter.Field)
		q.Set("value", fmt.Sprint(filter.Value))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var out struct {
		Documents []domain.Document `json:"documents"`
	}
	if err := s.do(ctx, http.MethodGet, u, nil, &out); err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	return out.Documents, nil
}

// ─── Transport ──────────────────────────────────────────────────────────────

var errNotFound = fmt.Errorf("not found")

func (s *Service) do(ctx context.Context, method, rawURL string, body any, out any) error {
	var reqBody *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s %s: status %d", method, rawURL, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (s *Service) collectionURL(collection string) string {
	return s.cfg.BaseURL + "/v1/" + url.PathEscape(collection)
}

func (s *Service) documentURL(collection, id string) string {
	return s.collectionURL(collection) + "/" + url.PathEscape(id)
}
