package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ImageStore is the blob-store capability the upload and pipeline paths need.
// The filesystem implementation below is the default; an object store can be
// swapped in behind the same interface.
type ImageStore interface {
	Save(ctx context.Context, src io.Reader, origName string) (ref string, size int64, err error)
	Path(ref string) string
	Delete(ref string) error
}

type FSStore struct {
	dir    string
	logger *zap.Logger
}

func NewFSStore(dir string, logger *zap.Logger) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	return &FSStore{
		dir:    dir,
		logger: logger,
	}, nil
}

// Save writes the blob under a fresh UUID name, keeping the original
// extension so the OCR engine can pick the right decoder.
func (s *FSStore) Save(ctx context.Context, src io.Reader, origName string) (string, int64, error) {
	ref := uuid.New().String() + filepath.Ext(origName)
	path := filepath.Join(s.dir, ref)

	dst, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("create file: %w", err)
	}
	defer dst.Close()

	size, err := io.Copy(dst, src)
	if err != nil {
		os.Remove(path)
		return "", 0, fmt.Errorf("write file: %w", err)
	}

	s.logger.Debug("Image stored",
		zap.String("ref", ref),
		zap.Int64("size", size),
	)

	return ref, size, nil
}

func (s *FSStore) Path(ref string) string {
	return filepath.Join(s.dir, ref)
}

func (s *FSStore) Delete(ref string) error {
	if err := os.Remove(filepath.Join(s.dir, ref)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

// Dir returns the root directory, used by the router's static mount.
func (s *FSStore) Dir() string {
	return s.dir
}
