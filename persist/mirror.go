package persist

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Mirror pulls a full cache snapshot from the hub and swaps it in as the
// local cache database. A fresh device uses this once after enrollment to
// arrive with every mark set already local instead of faulting them in
// identity by identity.
type Mirror struct {
	base   string
	token  string
	path   string
	client *http.Client
}

// NewMirror creates a Mirror that downloads from base's snapshot endpoint
// into the cache database at path.
func NewMirror(base, token, path string, client *http.Client) *Mirror {
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	return &Mirror{base: base, token: token, path: path, client: client}
}

// Pull downloads the snapshot, verifies its size and sha256 against the
// response headers, and atomically replaces the cache database. The caller
// must have closed any open Cache on the path first; Pull returns a freshly
// opened one.
func (m *Mirror) Pull(ctx context.Context) (*Cache, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.base+"/v1/snapshot", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: snapshot pull: %w", ErrPersistenceFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+m.token)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: snapshot pull: %w", ErrPersistenceFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: snapshot pull: hub returned %d", ErrPersistenceFailed, resp.StatusCode)
	}

	wantHash := resp.Header.Get("X-Snapshot-Hash")
	wantSize, err := strconv.ParseInt(resp.Header.Get("X-Snapshot-Size"), 10, 64)
	if err != nil || wantHash == "" {
		return nil, fmt.Errorf("%w: snapshot pull: missing integrity headers", ErrPersistenceFailed)
	}

	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: snapshot pull: %w", ErrPersistenceFailed, err)
	}

	tmpPath := m.path + ".incoming"
	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("%w: snapshot pull: %w", ErrPersistenceFailed, err)
	}

	// Hash while writing.
	h := sha256.New()
	n, err := io.Copy(f, io.TeeReader(resp.Body, h))
	f.Close()
	if err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("%w: snapshot pull: %w", ErrPersistenceFailed, err)
	}
	if n != wantSize {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("%w: snapshot size mismatch: got %d, expected %d",
			ErrPersistenceFailed, n, wantSize)
	}
	if got := hex.EncodeToString(h.Sum(nil)); got != wantHash {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("%w: snapshot hash mismatch: got %s, expected %s",
			ErrPersistenceFailed, got, wantHash)
	}

	// Atomic swap: drop the old WAL/SHM, rename, reopen.
	os.Remove(m.path + "-wal")
	os.Remove(m.path + "-shm")
	if err := os.Rename(tmpPath, m.path); err != nil {
		return nil, fmt.Errorf("%w: snapshot swap: %w", ErrPersistenceFailed, err)
	}

	cache, err := OpenCache(m.path)
	if err != nil {
		return nil, fmt.Errorf("%w: snapshot reopen: %w", ErrPersistenceFailed, err)
	}
	return cache, nil
}
