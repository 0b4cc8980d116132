package offline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// fileVersion is the layout version of the pending-update file.
const fileVersion = 1

type fileDocument struct {
	Version int               `json:"version"`
	Updates map[string]Update `json:"updates"`
}

// FileBackend stores updates in a single JSON document. Every write goes
// to a temporary file that is renamed over the old one, so a crash leaves
// either the old or the new document, never a torn one.
type FileBackend struct {
	path string
	mu   sync.Mutex
}

// NewFileBackend returns a backend persisting to path. The file is created
// on first write.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// Put stores u, replacing any update for the same session.
func (b *FileBackend) Put(_ context.Context, u Update) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	doc, err := b.load()
	if err != nil {
		return err
	}
	doc.Updates[u.SessionID] = u
	return b.save(doc)
}

// Get returns the update for sessionID.
func (b *FileBackend) Get(_ context.Context, sessionID string) (Update, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	doc, err := b.load()
	if err != nil {
		return Update{}, false, err
	}
	u, ok := doc.Updates[sessionID]
	return u, ok, nil
}

// All returns every stored update.
func (b *FileBackend) All(_ context.Context) ([]Update, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	doc, err := b.load()
	if err != nil {
		return nil, err
	}
	out := make([]Update, 0, len(doc.Updates))
	for _, u := range doc.Updates {
		out = append(out, u)
	}
	return out, nil
}

// Delete removes the update for sessionID.
func (b *FileBackend) Delete(_ context.Context, sessionID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	doc, err := b.load()
	if err != nil {
		return err
	}
	if _, ok := doc.Updates[sessionID]; !ok {
		return nil
	}
	delete(doc.Updates, sessionID)
	return b.save(doc)
}

func (b *FileBackend) load() (*fileDocument, error) {
	doc := &fileDocument{Version: fileVersion, Updates: make(map[string]Update)}
	data, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", b.path, err)
	}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", b.path, err)
	}
	if doc.Version != fileVersion {
		return nil, fmt.Errorf("decoding %s: unsupported version %d", b.path, doc.Version)
	}
	if doc.Updates == nil {
		doc.Updates = make(map[string]Update)
	}
	return doc, nil
}

func (b *FileBackend) save(doc *fileDocument) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding pending updates: %w", err)
	}

	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(b.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("syncing %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, b.path); err != nil {
		return fmt.Errorf("replacing %s: %w", b.path, err)
	}
	return nil
}

// Verify interface compliance.
var _ Backend = (*FileBackend)(nil)
