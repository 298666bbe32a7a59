// Package catalogue implements the PIM Registry Manager: it fetches,
// caches, decompresses and parses plugin catalogues, applying TTL freshness
// and per-URL failure backoff on top of registryfmt's parser.
package catalogue

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ulikunitz/xz"

	"github.com/opskernel/pimhub/internal/pim/metrics"
	"github.com/opskernel/pimhub/internal/pim/model"
	"github.com/opskernel/pimhub/internal/pim/registryfmt"
)

const (
	officialCacheFileName = "everything_slim.json"
	userAgent             = "pimhub-catalogue/1.0"
	fetchTimeout          = 10 * time.Second
	ttl                   = 2 * time.Hour
	backoffWindow         = 15 * time.Minute
	backoffThreshold      = 2
)

// failureRecord tracks consecutive fetch failures for one URL.
type failureRecord struct {
	lastFailure  time.Time
	attemptCount int
}

// Manager is the Registry Manager: cache-aware, backoff-aware, single-flight
// per URL.
type Manager struct {
	cacheDir    string
	officialURL string
	client      *http.Client

	mu       sync.Mutex
	failures map[string]*failureRecord
	inflight map[string]*sync.WaitGroup
	results  map[string]fetchOutcome
}

type fetchOutcome struct {
	registry model.MetaRegistry
	err      error
}

// New builds a Manager rooted at cacheDir, treating officialURL as the one
// URL cached under the fixed official filename.
func New(cacheDir, officialURL string) *Manager {
	return &Manager{
		cacheDir:    cacheDir,
		officialURL: officialURL,
		client:      &http.Client{Timeout: fetchTimeout},
		failures:    map[string]*failureRecord{},
		inflight:    map[string]*sync.WaitGroup{},
		results:     map[string]fetchOutcome{},
	}
}

// GetMeta returns the MetaRegistry for url, consulting cache/TTL/backoff.
// ignoreTTL forces a fetch attempt (subject to backoff) even if a fresh
// cache file exists.
func (m *Manager) GetMeta(ctx context.Context, url string, ignoreTTL bool) (model.MetaRegistry, error) {
	cachePath := m.cachePath(url)

	if m.inBackoff(url) {
		metrics.RegistryFetch("backoff")
		return m.loadCacheOrEmpty(url, cachePath), nil
	}

	if !ignoreTTL {
		if reg, ok := m.loadIfFresh(url, cachePath); ok {
			return reg, nil
		}
	}

	return m.singleFlightFetch(ctx, url, cachePath), nil
}

func (m *Manager) cachePath(url string) string {
	if url == m.officialURL {
		return filepath.Join(m.cacheDir, officialCacheFileName)
	}
	sum := md5.Sum([]byte(url))
	return filepath.Join(m.cacheDir, fmt.Sprintf("repo_%s.json", hex.EncodeToString(sum[:])))
}

func (m *Manager) inBackoff(url string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.failures[url]
	if !ok {
		return false
	}
	return rec.attemptCount >= backoffThreshold && time.Since(rec.lastFailure) < backoffWindow
}

func (m *Manager) loadIfFresh(url, cachePath string) (model.MetaRegistry, bool) {
	info, err := os.Stat(cachePath)
	if err != nil {
		return model.MetaRegistry{}, false
	}
	if time.Since(info.ModTime()) >= ttl {
		return model.MetaRegistry{}, false
	}
	reg, err := m.parseCacheFile(url, cachePath)
	if err != nil {
		return model.MetaRegistry{}, false
	}
	return reg, true
}

func (m *Manager) loadCacheOrEmpty(url, cachePath string) model.MetaRegistry {
	if reg, err := m.parseCacheFile(url, cachePath); err == nil {
		return reg
	}
	return model.Empty(url)
}

func (m *Manager) parseCacheFile(url, cachePath string) (model.MetaRegistry, error) {
	raw, err := os.ReadFile(cachePath)
	if err != nil {
		return model.MetaRegistry{}, err
	}
	return registryfmt.Parse(url, raw)
}

// singleFlightFetch ensures concurrent GetMeta calls for the same URL share
// one network fetch; callers that arrive while a fetch is in progress wait
// for it and then receive its outcome (a stale cached read is still
// possible for callers that hit loadIfFresh before the fetch even starts).
func (m *Manager) singleFlightFetch(ctx context.Context, url, cachePath string) model.MetaRegistry {
	m.mu.Lock()
	if wg, ok := m.inflight[url]; ok {
		m.mu.Unlock()
		wg.Wait()
		m.mu.Lock()
		out := m.results[url]
		m.mu.Unlock()
		if out.err != nil {
			return m.loadCacheOrEmpty(url, cachePath)
		}
		return out.registry
	}

	wg := &sync.WaitGroup{}
	wg.Add(1)
	m.inflight[url] = wg
	m.mu.Unlock()

	reg, err := m.fetchAndStore(ctx, url, cachePath)

	m.mu.Lock()
	m.results[url] = fetchOutcome{registry: reg, err: err}
	delete(m.inflight, url)
	m.mu.Unlock()
	wg.Done()

	if err != nil {
		return m.loadCacheOrEmpty(url, cachePath)
	}
	return reg
}

func (m *Manager) fetchAndStore(ctx context.Context, url, cachePath string) (model.MetaRegistry, error) {
	reqCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		m.recordFailure(url)
		return model.MetaRegistry{}, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := m.client.Do(req)
	if err != nil {
		m.recordFailure(url)
		return model.MetaRegistry{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		m.recordFailure(url)
		return model.MetaRegistry{}, fmt.Errorf("catalogue: %s returned status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		m.recordFailure(url)
		return model.MetaRegistry{}, err
	}

	if isXZURL(url) {
		body, err = decompressXZ(body)
		if err != nil {
			m.recordFailure(url)
			return model.MetaRegistry{}, fmt.Errorf("catalogue: decompress %s: %w", url, err)
		}
	}

	reg, err := registryfmt.Parse(url, body)
	if err != nil {
		m.recordFailure(url)
		return model.MetaRegistry{}, err
	}

	if err := os.MkdirAll(filepath.Dir(cachePath), 0o755); err != nil {
		m.recordFailure(url)
		return model.MetaRegistry{}, err
	}
	if err := os.WriteFile(cachePath, body, 0o644); err != nil {
		m.recordFailure(url)
		return model.MetaRegistry{}, err
	}

	m.clearFailure(url)
	return reg, nil
}

func (m *Manager) recordFailure(url string) {
	m.mu.Lock()
	rec, ok := m.failures[url]
	if !ok {
		rec = &failureRecord{}
		m.failures[url] = rec
	}
	rec.attemptCount++
	rec.lastFailure = time.Now()
	count := m.backoffCountLocked()
	m.mu.Unlock()

	metrics.RegistryFetch("failure")
	metrics.SetRegistryBackoffActive(count)
}

func (m *Manager) clearFailure(url string) {
	m.mu.Lock()
	delete(m.failures, url)
	count := m.backoffCountLocked()
	m.mu.Unlock()

	metrics.RegistryFetch("success")
	metrics.SetRegistryBackoffActive(count)
}

// backoffCountLocked counts URLs whose failure record puts them in backoff
// right now. Caller must hold mu.
func (m *Manager) backoffCountLocked() int {
	n := 0
	for _, rec := range m.failures {
		if rec.attemptCount >= backoffThreshold && time.Since(rec.lastFailure) < backoffWindow {
			n++
		}
	}
	return n
}

func isXZURL(url string) bool {
	return len(url) > 3 && url[len(url)-3:] == ".xz"
}

func decompressXZ(compressed []byte) ([]byte, error) {
	r, err := xz.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}
