package document

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// ContentStore holds uploaded document bytes. The workflow only ever needs
// the content hash after creation, so the store is write-once plus delete
// for drafts.
type ContentStore interface {
	// Save streams the upload to storage and returns its location and
	// SHA-256 hex digest.
	Save(r io.Reader) (path string, contentHash string, err error)
	Remove(path string) error
}

// LocalContentStore writes uploads under a single directory, one file per
// document, named by a random UUID to avoid caller-controlled paths.
type LocalContentStore struct {
	dir string
}

func NewLocalContentStore(dir string) (*LocalContentStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalContentStore{dir: dir}, nil
}

func (s *LocalContentStore) Save(r io.Reader) (string, string, error) {
	path := filepath.Join(s.dir, uuid.NewString())
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return "", "", fmt.Errorf("create content file: %w", err)
	}

	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(f, h), r); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", "", fmt.Errorf("write content: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", "", fmt.Errorf("close content file: %w", err)
	}
	return path, hex.EncodeToString(h.Sum(nil)), nil
}

func (s *LocalContentStore) Remove(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove content file: %w", err)
	}
	return nil
}
