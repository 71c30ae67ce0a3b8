// Package transfer downloads build artifacts announced by the remote host
// and stages them on local disk for installation.
package transfer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tether-dev/tether/internal/log"
)

// artifactPrefix names the staged files so leftovers from prior transfers
// can be recognized and purged.
const artifactPrefix = "artifact-"

// Manager retrieves one artifact at a time into its downloads directory.
// Concurrent transfers are not guarded against; the caller exposes only one
// transfer action at a time.
type Manager struct {
	client *http.Client
	dir    string
	logger *log.Logger
}

// NewManager creates a Manager staging downloads under dir. logger may be
// nil.
func NewManager(dir string, logger *log.Logger) *Manager {
	return &Manager{
		client: &http.Client{},
		dir:    dir,
		logger: logger,
	}
}

// Fetch downloads the artifact at baseURL+path into a fresh file under the
// downloads directory and returns its path. Files from previous transfers
// are purged first. onProgress, when non-nil, receives integer percentages;
// it is never called when size is 0 (total unknown). size is the artifact
// size announced by the host.
func (m *Manager) Fetch(ctx context.Context, baseURL, path string, size int64, onProgress func(percent int)) (string, error) {
	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return "", fmt.Errorf("create downloads directory: %w", err)
	}
	if err := m.purge(); err != nil {
		return "", err
	}

	artifactURL := strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(path, "/")
	if m.logger != nil {
		_ = m.logger.Append(log.LogEvent{Event: log.EventTransferStarted, Path: artifactURL, Bytes: size})
	}

	start := time.Now()
	local, written, err := m.download(ctx, artifactURL, size, onProgress)
	if err != nil {
		if m.logger != nil {
			_ = m.logger.Append(log.LogEvent{Event: log.EventTransferFailed, Path: artifactURL, Error: err.Error()})
		}
		return "", err
	}

	if m.logger != nil {
		_ = m.logger.Append(log.LogEvent{
			Event:      log.EventTransferComplete,
			Path:       local,
			Bytes:      written,
			DurationMs: time.Since(start).Milliseconds(),
		})
	}
	return local, nil
}

func (m *Manager) download(ctx context.Context, artifactURL string, size int64, onProgress func(int)) (string, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, artifactURL, nil)
	if err != nil {
		return "", 0, fmt.Errorf("build artifact request: %w", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("fetch artifact: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", 0, fmt.Errorf("fetch artifact: unexpected status %s", resp.Status)
	}

	// The host-announced size is authoritative; a size of 0 means the total
	// is unknown and progress stays silent even if the response declares a
	// Content-Length.
	total := size

	local := filepath.Join(m.dir, artifactPrefix+uuid.New().String()+".apk")
	f, err := os.Create(local)
	if err != nil {
		return "", 0, fmt.Errorf("create artifact file: %w", err)
	}

	written, err := copyWithProgress(f, resp.Body, total, onProgress)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(local)
		return "", 0, fmt.Errorf("write artifact: %w", err)
	}
	return local, written, nil
}

// copyWithProgress streams src to dst, reporting integer percentages as
// they change. total <= 0 means the size is unknown and no percentages are
// reported.
func copyWithProgress(dst io.Writer, src io.Reader, total int64, onProgress func(int)) (int64, error) {
	buf := make([]byte, 32*1024)
	var written int64
	lastPercent := -1

	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return written, werr
			}
			written += int64(n)
			if total > 0 && onProgress != nil {
				percent := int(written * 100 / total)
				if percent > 100 {
					percent = 100
				}
				if percent != lastPercent {
					lastPercent = percent
					onProgress(percent)
				}
			}
		}
		if err == io.EOF {
			return written, nil
		}
		if err != nil {
			return written, err
		}
	}
}

// purge removes staged artifacts left over from previous transfers.
func (m *Manager) purge() error {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading downloads directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), artifactPrefix) {
			continue
		}
		if err := os.Remove(filepath.Join(m.dir, entry.Name())); err != nil {
			return fmt.Errorf("removing stale artifact %s: %w", entry.Name(), err)
		}
	}
	return nil
}
