package catalogue

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

const flatPayload = `[{"id":"p1","name":"Demo","latest_version":"1.0.0"}]`

func TestGetMetaFetchesAndCaches(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(flatPayload))
	}))
	defer srv.Close()

	dir := t.TempDir()
	m := New(dir, "https://official.example/catalogue.json")

	reg, err := m.GetMeta(context.Background(), srv.URL, false)
	if err != nil {
		t.Fatalf("GetMeta: %v", err)
	}
	if _, ok := reg.Get("p1"); !ok {
		t.Fatal("expected plugin p1 in registry")
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("hits = %d, want 1", hits)
	}

	// Second call within TTL must hit the cache, not the network.
	if _, err := m.GetMeta(context.Background(), srv.URL, false); err != nil {
		t.Fatalf("GetMeta (cached): %v", err)
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("hits after cached call = %d, want still 1", hits)
	}
}

func TestGetMetaOfficialURLUsesFixedCacheFileName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(flatPayload))
	}))
	defer srv.Close()

	dir := t.TempDir()
	m := New(dir, srv.URL)

	if _, err := m.GetMeta(context.Background(), srv.URL, false); err != nil {
		t.Fatalf("GetMeta: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, officialCacheFileName)); err != nil {
		t.Errorf("expected fixed cache filename for official URL: %v", err)
	}
}

func TestGetMetaBackoffAfterTwoFailures(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	dir := t.TempDir()
	m := New(dir, "https://official.example/catalogue.json")

	m.GetMeta(context.Background(), srv.URL, true)
	m.GetMeta(context.Background(), srv.URL, true)
	if atomic.LoadInt32(&hits) != 2 {
		t.Fatalf("hits after two failures = %d, want 2", hits)
	}

	reg, err := m.GetMeta(context.Background(), srv.URL, true)
	if err != nil {
		t.Fatalf("GetMeta during backoff: %v", err)
	}
	if atomic.LoadInt32(&hits) != 2 {
		t.Errorf("a third call within the backoff window must not hit the network, hits = %d", hits)
	}
	if len(reg.List()) != 0 {
		t.Errorf("expected empty registry with no cache to fall back to, got %v", reg.List())
	}
}

func TestGetMetaSuccessClearsFailureRecord(t *testing.T) {
	var fail int32 = 1
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.LoadInt32(&fail) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(flatPayload))
	}))
	defer srv.Close()

	dir := t.TempDir()
	m := New(dir, "https://official.example/catalogue.json")

	m.GetMeta(context.Background(), srv.URL, true)
	atomic.StoreInt32(&fail, 0)
	reg, err := m.GetMeta(context.Background(), srv.URL, true)
	if err != nil {
		t.Fatalf("GetMeta: %v", err)
	}
	if _, ok := reg.Get("p1"); !ok {
		t.Fatal("expected successful fetch to clear the failure record and return live data")
	}

	if m.inBackoff(srv.URL) {
		t.Error("a success must clear the failure record, not leave the URL in backoff")
	}
}

func TestGetMetaStaleCacheServedDuringBackoff(t *testing.T) {
	hits := int32(0)
	succeed := int32(1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if atomic.LoadInt32(&succeed) == 1 {
			w.Write([]byte(flatPayload))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	dir := t.TempDir()
	m := New(dir, "https://official.example/catalogue.json")

	if _, err := m.GetMeta(context.Background(), srv.URL, false); err != nil {
		t.Fatalf("seed GetMeta: %v", err)
	}

	atomic.StoreInt32(&succeed, 0)
	m.GetMeta(context.Background(), srv.URL, true)
	m.GetMeta(context.Background(), srv.URL, true)

	reg, err := m.GetMeta(context.Background(), srv.URL, true)
	if err != nil {
		t.Fatalf("GetMeta during backoff: %v", err)
	}
	if _, ok := reg.Get("p1"); !ok {
		t.Error("expected stale cache to be served once backoff suppresses network fetch")
	}
}

func TestGetMetaTTLExpiryRefetches(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(flatPayload))
	}))
	defer srv.Close()

	dir := t.TempDir()
	m := New(dir, "https://official.example/catalogue.json")
	if _, err := m.GetMeta(context.Background(), srv.URL, false); err != nil {
		t.Fatalf("GetMeta: %v", err)
	}

	cachePath := m.cachePath(srv.URL)
	old := time.Now().Add(-3 * time.Hour)
	if err := os.Chtimes(cachePath, old, old); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	if _, err := m.GetMeta(context.Background(), srv.URL, false); err != nil {
		t.Fatalf("GetMeta after TTL expiry: %v", err)
	}
	if atomic.LoadInt32(&hits) != 2 {
		t.Errorf("expected a refetch once the cache file is older than the TTL, hits = %d", hits)
	}
}
