// CLAUDE:SUMMARY Snapshot archive format: zip of sanitized pages and mark sets under a hashed manifest.
package grab

import (
	"archive/zip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/bakharlabs/blurshield/idgen"
	"github.com/bakharlabs/blurshield/mark"
	"github.com/bakharlabs/blurshield/page"
)

// ErrCorruptArchive means an entry failed its hash check or the manifest is
// malformed.
var ErrCorruptArchive = errors.New("grab: corrupt archive")

const manifestName = "manifest.json"

// Entry describes one archived page.
type Entry struct {
	ID         string    `json:"id"`
	URL        string    `json:"url"`
	Identity   string    `json:"identity"`
	SHA256     string    `json:"sha256"`
	CapturedAt time.Time `json:"captured_at"`
	Marks      int       `json:"marks"`
}

// Manifest indexes an archive.
type Manifest struct {
	CreatedAt time.Time `json:"created_at"`
	Entries   []Entry   `json:"entries"`
}

func pagePath(id string) string  { return "pages/" + id + ".html" }
func marksPath(id string) string { return "marks/" + id + ".json" }

// Writer builds a snapshot archive. Close writes the manifest; an archive
// without one is unreadable.
type Writer struct {
	zw       *zip.Writer
	manifest Manifest
}

// NewWriter starts an archive on w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{
		zw:       zip.NewWriter(w),
		manifest: Manifest{CreatedAt: time.Now().UTC()},
	}
}

// Add archives one snapshot with its stored marks.
func (w *Writer) Add(snap *Snapshot, marks []*mark.Mark) error {
	id := idgen.New()

	f, err := w.zw.Create(pagePath(id))
	if err != nil {
		return fmt.Errorf("grab: archive page: %w", err)
	}
	if _, err := f.Write(snap.HTML); err != nil {
		return fmt.Errorf("grab: archive page: %w", err)
	}

	payload, err := mark.Marshal(marks)
	if err != nil {
		return fmt.Errorf("grab: archive marks: %w", err)
	}
	f, err = w.zw.Create(marksPath(id))
	if err != nil {
		return fmt.Errorf("grab: archive marks: %w", err)
	}
	if _, err := f.Write(payload); err != nil {
		return fmt.Errorf("grab: archive marks: %w", err)
	}

	w.manifest.Entries = append(w.manifest.Entries, Entry{
		ID:         id,
		URL:        snap.URL,
		Identity:   snap.Identity,
		SHA256:     snap.SHA256,
		CapturedAt: snap.CapturedAt,
		Marks:      len(marks),
	})
	return nil
}

// Close writes the manifest and finishes the zip.
func (w *Writer) Close() error {
	f, err := w.zw.Create(manifestName)
	if err != nil {
		return fmt.Errorf("grab: write manifest: %w", err)
	}
	if err := json.NewEncoder(f).Encode(w.manifest); err != nil {
		return fmt.Errorf("grab: write manifest: %w", err)
	}
	return w.zw.Close()
}

// Archive reads a snapshot archive.
type Archive struct {
	zr       *zip.ReadCloser
	Manifest Manifest
}

// OpenArchive opens path and loads its manifest.
func OpenArchive(path string) (*Archive, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("grab: open archive: %w", err)
	}
	a := &Archive{zr: zr}
	raw, err := a.read(manifestName)
	if err != nil {
		zr.Close()
		return nil, fmt.Errorf("%w: no manifest", ErrCorruptArchive)
	}
	if err := json.Unmarshal(raw, &a.Manifest); err != nil {
		zr.Close()
		return nil, fmt.Errorf("%w: %v", ErrCorruptArchive, err)
	}
	return a, nil
}

// Page loads and parses the entry's document, verifying its hash first.
func (a *Archive) Page(e Entry) (*page.Doc, error) {
	raw, err := a.read(pagePath(e.ID))
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(raw)
	if hex.EncodeToString(sum[:]) != e.SHA256 {
		return nil, fmt.Errorf("%w: hash mismatch for %s", ErrCorruptArchive, e.ID)
	}
	return page.ParseString(string(raw), e.URL)
}

// Marks loads the entry's stored mark set.
func (a *Archive) Marks(e Entry) ([]*mark.Mark, error) {
	raw, err := a.read(marksPath(e.ID))
	if err != nil {
		return nil, err
	}
	return mark.Unmarshal(raw)
}

func (a *Archive) read(name string) ([]byte, error) {
	f, err := a.zr.Open(name)
	if err != nil {
		return nil, fmt.Errorf("grab: read %s: %w", name, err)
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, maxBody))
}

// Close releases the archive.
func (a *Archive) Close() error { return a.zr.Close() }
