package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lorebot/lore/internal/index"
)

// defaultHTTPTimeout bounds a single Supabase Storage request.
const defaultHTTPTimeout = 60 * time.Second

// SupabaseConfig configures the Supabase Storage object store.
type SupabaseConfig struct {
	// URL is the project base URL, e.g. https://xyzcompany.supabase.co.
	URL string

	// Key is the service role key used for both apikey and bearer auth.
	Key string

	// Bucket is the storage bucket holding the snapshots.
	Bucket string

	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
}

// Supabase is an object store backed by the Supabase Storage HTTP API.
type Supabase struct {
	baseURL string
	key     string
	bucket  string
	client  *http.Client
}

// NewSupabase creates a Supabase Storage client.
func NewSupabase(cfg SupabaseConfig) (*Supabase, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("supabase URL is required")
	}
	if cfg.Key == "" {
		return nil, fmt.Errorf("supabase key is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("supabase bucket is required")
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("invalid supabase URL %q: %w", cfg.URL, err)
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &Supabase{
		baseURL: strings.TrimSuffix(cfg.URL, "/"),
		key:     cfg.Key,
		bucket:  cfg.Bucket,
		client:  client,
	}, nil
}

// Get downloads the object under key, or index.ErrNotFound when the bucket
// has no such object.
func (s *Supabase) Get(ctx context.Context, key string) ([]byte, error) {
	req, err := s.newRequest(ctx, http.MethodGet, s.objectURL(key), nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching object %q: %w", key, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", index.ErrNotFound, key)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching object %q: %s", key, apiError(resp))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading object %q: %w", key, err)
	}
	return data, nil
}

// Put uploads data under key, replacing any existing object.
func (s *Supabase) Put(ctx context.Context, key string, data []byte) error {
	req, err := s.newRequest(ctx, http.MethodPost, s.objectURL(key), bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-upsert", "true")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("uploading object %q: %w", key, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("uploading object %q: %s", key, apiError(resp))
	}
	return nil
}

// Move renames an object inside the bucket. Supabase performs the move
// server side, so a snapshot promoted this way is never observed half
// written.
func (s *Supabase) Move(ctx context.Context, from, to string) error {
	body, err := json.Marshal(map[string]string{
		"bucketId":       s.bucket,
		"sourceKey":      from,
		"destinationKey": to,
	})
	if err != nil {
		return fmt.Errorf("encoding move request: %w", err)
	}

	req, err := s.newRequest(ctx, http.MethodPost, s.baseURL+"/storage/v1/object/move", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("moving object %q to %q: %w", from, to, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", index.ErrNotFound, from)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("moving object %q to %q: %s", from, to, apiError(resp))
	}
	return nil
}

func (s *Supabase) objectURL(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return fmt.Sprintf("%s/storage/v1/object/%s/%s", s.baseURL, url.PathEscape(s.bucket), strings.Join(parts, "/"))
}

func (s *Supabase) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("building storage request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.key)
	req.Header.Set("apikey", s.key)
	return req, nil
}

// apiError summarizes a non-success Supabase response, capped so a large
// error body can't flood the logs.
func apiError(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return fmt.Sprintf("status %d", resp.StatusCode)
	}
	return fmt.Sprintf("status %d: %s", resp.StatusCode, msg)
}
