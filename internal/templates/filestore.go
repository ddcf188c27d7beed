package templates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"mailmerge/internal/types"
)

// FileStore implements Port on the local filesystem, one JSON file per
// owner per record. It is the single-node analogue of the browser's
// key/value store and the default backend when no database is configured.
type FileStore struct {
	dir string
}

// NewFileStore creates a FileStore rooted at dir, creating the directory
// if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating template store directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// fileOwnerRecord is the on-disk layout for one owner.
type fileOwnerRecord struct {
	Templates []types.Template      `json:"templates"`
	LastUsed  *types.ActiveTemplate `json:"last_used,omitempty"`
}

func (f *FileStore) path(ownerID string) string {
	// Owner IDs are uuid-based ("user_<uuid>"), safe as filenames.
	return filepath.Join(f.dir, ownerID+".json")
}

func (f *FileStore) read(ownerID string) (*fileOwnerRecord, error) {
	data, err := os.ReadFile(f.path(ownerID))
	if errors.Is(err, fs.ErrNotExist) {
		return &fileOwnerRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading template store: %w", err)
	}
	var rec fileOwnerRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding template store: %w", err)
	}
	return &rec, nil
}

func (f *FileStore) write(ownerID string, rec *fileOwnerRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding template store: %w", err)
	}
	tmp := f.path(ownerID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing template store: %w", err)
	}
	if err := os.Rename(tmp, f.path(ownerID)); err != nil {
		return fmt.Errorf("replacing template store: %w", err)
	}
	return nil
}

// LoadList implements Port.
func (f *FileStore) LoadList(_ context.Context, ownerID string) ([]types.Template, error) {
	rec, err := f.read(ownerID)
	if err != nil {
		return nil, err
	}
	return rec.Templates, nil
}

// SaveList implements Port.
func (f *FileStore) SaveList(_ context.Context, ownerID string, list []types.Template) error {
	rec, err := f.read(ownerID)
	if err != nil {
		return err
	}
	rec.Templates = list
	return f.write(ownerID, rec)
}

// LoadLastUsed implements Port.
func (f *FileStore) LoadLastUsed(_ context.Context, ownerID string) (*types.ActiveTemplate, error) {
	rec, err := f.read(ownerID)
	if err != nil {
		return nil, err
	}
	return rec.LastUsed, nil
}

// SaveLastUsed implements Port.
func (f *FileStore) SaveLastUsed(_ context.Context, ownerID string, t types.ActiveTemplate) error {
	rec, err := f.read(ownerID)
	if err != nil {
		return err
	}
	rec.LastUsed = &t
	return f.write(ownerID, rec)
}

// Compile-time assertion that FileStore implements Port.
var _ Port = (*FileStore)(nil)
