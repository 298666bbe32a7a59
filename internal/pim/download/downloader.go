// Package download implements the PIM Downloader: stream a URL to a temp
// file and atomically move it into place.
package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/opskernel/pimhub/internal/pim/metrics"
)

const (
	userAgent = "pimhub-downloader/1.0"
	chunkSize = 8 * 1024
)

// Downloader streams release artifacts to disk.
type Downloader struct {
	client *http.Client
}

// New builds a Downloader. timeout bounds the whole request (30s default)
// as a single overall timeout rather than separate connect/read timeouts.
func New(timeout time.Duration) *Downloader {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Downloader{client: &http.Client{Timeout: timeout}}
}

// Download streams url to targetPath: unique temp file in targetPath's
// directory, ensure the directory exists, remove any existing target, then
// rename the temp file into place. On any failure the temp file is removed
// and an error is returned. A failure before the final step leaves the
// target untouched; if the rename itself fails, the old target is already
// gone.
func (d *Downloader) Download(ctx context.Context, url, targetPath string) error {
	dir := filepath.Dir(targetPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("download: create target dir: %w", err)
	}

	if ok, free := hasEnoughSpace(dir); !ok {
		return fmt.Errorf("download: insufficient disk space in %s (free=%d)", dir, free)
	}

	tmpPath := filepath.Join(dir, fmt.Sprintf("download_%s.tmp", uuid.NewString()))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("download: build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("download: request %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("download: %s returned status %d", url, resp.StatusCode)
	}

	written, err := streamToFile(resp.Body, tmpPath)
	if err != nil {
		os.Remove(tmpPath)
		return err
	}
	metrics.AddDownloadBytes(written)

	_ = os.Remove(targetPath) // never overwrites atomically-in-use files of other plugins; this is our own target
	if err := os.Rename(tmpPath, targetPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("download: move into place: %w", err)
	}
	return nil
}

func streamToFile(body io.Reader, tmpPath string) (int64, error) {
	f, err := os.Create(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("download: create temp file: %w", err)
	}
	defer f.Close()

	buf := make([]byte, chunkSize)
	n, err := io.CopyBuffer(f, body, buf)
	if err != nil {
		return n, fmt.Errorf("download: stream body: %w", err)
	}
	return n, nil
}

// minFreeBytes is the floor below which a download is refused outright,
// regardless of artifact size (which this client does not know up front
// for chunked responses without a Content-Length).
const minFreeBytes = 16 * 1024 * 1024

// hasEnoughSpace is a best-effort pre-flight check against free space on
// dir's filesystem. An error reading disk usage is treated as "enough
// space": this check can only refuse a download the disk is already known
// to be too full for, never block a legitimate one on an inconclusive read.
func hasEnoughSpace(dir string) (ok bool, free uint64) {
	usage, err := disk.Usage(dir)
	if err != nil {
		return true, 0
	}
	return usage.Free >= minFreeBytes, usage.Free
}
