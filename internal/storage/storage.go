// Package storage persists uploaded document bytes. The local backend is the
// default so workers can hand the evaluation pipeline a plain filesystem path;
// the S3 backend serves deployments with a shared object store.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

type Storage interface {
	// Save writes data under key and returns the storage path recorded on the
	// document row.
	Save(ctx context.Context, key string, data []byte) (string, error)
	Load(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

type localStorage struct {
	root string
}

// NewLocalStorage stores files under the given root directory.
func NewLocalStorage(root string) (Storage, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage root: %w", err)
	}
	if err := os.MkdirAll(absRoot, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &localStorage{root: absRoot}, nil
}

func (s *localStorage) Save(ctx context.Context, key string, data []byte) (string, error) {
	path := filepath.Join(s.root, key)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return path, nil
}

func (s *localStorage) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.root, key))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}

func (s *localStorage) Delete(ctx context.Context, key string) error {
	if err := os.Remove(filepath.Join(s.root, key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}
