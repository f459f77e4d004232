package persist

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bakharlabs/blurshield/guard"
	"github.com/bakharlabs/blurshield/mark"
)

// DefaultQuota is the per-identity byte cap of the extension store,
// mirroring the storage-area quota the in-browser store lives under.
const DefaultQuota = 256 << 10 // 256 KiB

// ExtStore emulates the in-extension storage area: one JSON document per
// identity, size-capped, under a single directory. Identities are hashed
// into filenames so arbitrary URLs can never escape the base directory.
type ExtStore struct {
	dir   string
	quota int
}

// OpenExtStore creates the store directory if needed. quota <= 0 selects
// DefaultQuota.
func OpenExtStore(dir string, quota int) (*ExtStore, error) {
	if quota <= 0 {
		quota = DefaultQuota
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: ext store dir: %w", ErrPersistenceFailed, err)
	}
	return &ExtStore{dir: dir, quota: quota}, nil
}

func (s *ExtStore) path(identity string) (string, error) {
	sum := sha256.Sum256([]byte(identity))
	name := hex.EncodeToString(sum[:16]) + ".json"
	return guard.SafePath(s.dir, name)
}

// Load returns the stored set for identity; a missing file is an empty set.
func (s *ExtStore) Load(ctx context.Context, identity string) ([]*mark.Mark, error) {
	p, err := s.path(identity)
	if err != nil {
		return nil, fmt.Errorf("%w: ext load: %w", ErrPersistenceFailed, err)
	}
	f, err := os.Open(p)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: ext load: %w", ErrPersistenceFailed, err)
	}
	defer f.Close()
	data, err := guard.LimitedReadAll(f, int64(s.quota))
	if err != nil {
		return nil, fmt.Errorf("%w: ext load: %w", ErrPersistenceFailed, err)
	}
	marks, err := mark.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: ext load: %w", ErrPersistenceFailed, err)
	}
	return marks, nil
}

// Save writes the full set for identity atomically (temp file + rename).
// A payload over quota is refused with ErrPayloadTooLarge; the caller keeps
// the cache copy and the user sees the save failure.
func (s *ExtStore) Save(ctx context.Context, identity string, marks []*mark.Mark) error {
	payload, err := mark.Marshal(marks)
	if err != nil {
		return fmt.Errorf("%w: ext save: %w", ErrPersistenceFailed, err)
	}
	if len(payload) > s.quota {
		return fmt.Errorf("%w: %d bytes over %d quota: %w",
			ErrPersistenceFailed, len(payload), s.quota, ErrPayloadTooLarge)
	}
	p, err := s.path(identity)
	if err != nil {
		return fmt.Errorf("%w: ext save: %w", ErrPersistenceFailed, err)
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return fmt.Errorf("%w: ext save: %w", ErrPersistenceFailed, err)
	}
	if err := os.Rename(tmp, p); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: ext save: %w", ErrPersistenceFailed, err)
	}
	return nil
}

// Delete removes the stored set for identity.
func (s *ExtStore) Delete(ctx context.Context, identity string) error {
	p, err := s.path(identity)
	if err != nil {
		return fmt.Errorf("%w: ext delete: %w", ErrPersistenceFailed, err)
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: ext delete: %w", ErrPersistenceFailed, err)
	}
	return nil
}

// Size reports the stored payload size for identity (0 when absent).
func (s *ExtStore) Size(identity string) int {
	p, err := s.path(identity)
	if err != nil {
		return 0
	}
	fi, err := os.Stat(p)
	if err != nil {
		return 0
	}
	return int(fi.Size())
}

var _ Tier = (*ExtStore)(nil)
var _ Tier = (*Cache)(nil)

// used by tests that need the backing file path
func (s *ExtStore) filePath(identity string) string {
	p, _ := s.path(identity)
	return filepath.Clean(p)
}
