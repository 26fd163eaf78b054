package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lorebot/lore/internal/index"
)

// fakeBucket serves a minimal slice of the Supabase Storage API backed by a
// map.
type fakeBucket struct {
	bucket  string
	objects map[string][]byte
}

func (f *fakeBucket) handler(t *testing.T) http.Handler {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/storage/v1/object/move", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			BucketID       string `json:"bucketId"`
			SourceKey      string `json:"sourceKey"`
			DestinationKey string `json:"destinationKey"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.BucketID != f.bucket {
			http.Error(w, "unknown bucket", http.StatusNotFound)
			return
		}
		data, ok := f.objects[req.SourceKey]
		if !ok {
			http.Error(w, "source not found", http.StatusNotFound)
			return
		}
		f.objects[req.DestinationKey] = data
		delete(f.objects, req.SourceKey)
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/storage/v1/object/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" || r.Header.Get("apikey") == "" {
			http.Error(w, "missing credentials", http.StatusUnauthorized)
			return
		}
		key := strings.TrimPrefix(r.URL.Path, "/storage/v1/object/"+f.bucket+"/")

		switch r.Method {
		case http.MethodGet:
			data, ok := f.objects[key]
			if !ok {
				http.Error(w, "object not found", http.StatusNotFound)
				return
			}
			_, _ = w.Write(data)
		case http.MethodPost:
			if f.objects[key] != nil && r.Header.Get("x-upsert") != "true" {
				http.Error(w, "object exists", http.StatusConflict)
				return
			}
			body, err := io.ReadAll(r.Body)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			f.objects[key] = body
			w.WriteHeader(http.StatusOK)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})

	return mux
}

func newFakeSupabase(t *testing.T) (*Supabase, *fakeBucket) {
	t.Helper()
	bucket := &fakeBucket{bucket: "vectorstore-bucket", objects: make(map[string][]byte)}
	srv := httptest.NewServer(bucket.handler(t))
	t.Cleanup(srv.Close)

	store, err := NewSupabase(SupabaseConfig{
		URL:        srv.URL,
		Key:        "service-role-key",
		Bucket:     "vectorstore-bucket",
		HTTPClient: srv.Client(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return store, bucket
}

func TestSupabase_PutGetRoundTrip(t *testing.T) {
	store, _ := newFakeSupabase(t)
	ctx := context.Background()

	want := []byte(`{"version":1,"dimension":768}`)
	if err := store.Put(ctx, "vectorstore/index.json", want); err != nil {
		t.Fatal(err)
	}

	got, err := store.Get(ctx, "vectorstore/index.json")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSupabase_GetMissing(t *testing.T) {
	store, _ := newFakeSupabase(t)

	if _, err := store.Get(context.Background(), "vectorstore/missing.json"); !errors.Is(err, index.ErrNotFound) {
		t.Errorf("got %v, want index.ErrNotFound", err)
	}
}

func TestSupabase_PutOverwrites(t *testing.T) {
	store, _ := newFakeSupabase(t)
	ctx := context.Background()

	if err := store.Put(ctx, "k", []byte("old")); err != nil {
		t.Fatal(err)
	}
	if err := store.Put(ctx, "k", []byte("new")); err != nil {
		t.Fatal(err)
	}

	got, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "new" {
		t.Errorf("got %q, want %q", got, "new")
	}
}

func TestSupabase_Move(t *testing.T) {
	store, bucket := newFakeSupabase(t)
	ctx := context.Background()

	if err := store.Put(ctx, "vectorstore/index.json.tmp-abc", []byte("snapshot")); err != nil {
		t.Fatal(err)
	}
	if err := store.Move(ctx, "vectorstore/index.json.tmp-abc", "vectorstore/index.json"); err != nil {
		t.Fatal(err)
	}

	if _, ok := bucket.objects["vectorstore/index.json.tmp-abc"]; ok {
		t.Error("source object still present after move")
	}
	got, err := store.Get(ctx, "vectorstore/index.json")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "snapshot" {
		t.Errorf("got %q, want %q", got, "snapshot")
	}
}

func TestSupabase_MoveMissingSource(t *testing.T) {
	store, _ := newFakeSupabase(t)
	if err := store.Move(context.Background(), "nope", "somewhere"); !errors.Is(err, index.ErrNotFound) {
		t.Errorf("got %v, want index.ErrNotFound", err)
	}
}

func TestNewSupabase_Validation(t *testing.T) {
	cases := []SupabaseConfig{
		{Key: "k", Bucket: "b"},
		{URL: "https://x.supabase.co", Bucket: "b"},
		{URL: "https://x.supabase.co", Key: "k"},
	}
	for _, cfg := range cases {
		if _, err := NewSupabase(cfg); err == nil {
			t.Errorf("NewSupabase(%+v): expected error", cfg)
		}
	}
}
