package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrArtifactNotFound is returned when no artifact exists under a name
var ErrArtifactNotFound = errors.New("artifact not found")

// ArtifactStore keeps generated result files
type ArtifactStore interface {
	SaveArtifact(ctx context.Context, name string, r io.Reader) error
	OpenArtifact(ctx context.Context, name string) (io.ReadCloser, error)
	Close() error
}

// Storage handles file storage operations on the local filesystem
type Storage struct {
	basePath string
}

// NewStorage creates a new storage instance
func NewStorage(basePath string) (*Storage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	// Create subdirectories
	dirs := []string{"uploads", "results"}
	for _, dir := range dirs {
		if err := os.MkdirAll(filepath.Join(basePath, dir), 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", dir, err)
		}
	}

	return &Storage{basePath: basePath}, nil
}

// SaveUpload stores an uploaded table as <taskID>_<filename> and returns its
// path, SHA256 hash and size
func (s *Storage) SaveUpload(reader io.Reader, taskID, filename string) (path, hash string, size int64, err error) {
	name := filepath.Base(filepath.Clean("/" + filename))
	if name == "/" || name == "." {
		return "", "", 0, fmt.Errorf("invalid file name %q", filename)
	}

	path = filepath.Join(s.basePath, "uploads", taskID+"_"+name)

	// Create file and calculate hash simultaneously
	file, err := os.Create(path)
	if err != nil {
		return "", "", 0, fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	hasher := sha256.New()
	multiWriter := io.MultiWriter(file, hasher)

	size, err = io.Copy(multiWriter, reader)
	if err != nil {
		os.Remove(path)
		return "", "", 0, fmt.Errorf("failed to write file: %w", err)
	}

	hash = hex.EncodeToString(hasher.Sum(nil))

	return path, hash, size, nil
}

// SaveArtifact writes a result file under the results directory
func (s *Storage) SaveArtifact(ctx context.Context, name string, r io.Reader) error {
	path, err := s.artifactPath(name)
	if err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	if _, err := io.Copy(file, r); err != nil {
		file.Close()
		os.Remove(path)
		return fmt.Errorf("failed to write file: %w", err)
	}

	return file.Close()
}

// OpenArtifact returns a reader for a stored result file
func (s *Storage) OpenArtifact(ctx context.Context, name string) (io.ReadCloser, error) {
	path, err := s.artifactPath(name)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, name)
		}
		return nil, err
	}
	return f, nil
}

// DeleteUpload removes a stored upload
func (s *Storage) DeleteUpload(path string) error {
	rel, err := filepath.Rel(filepath.Join(s.basePath, "uploads"), path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("path %s is outside the uploads directory", path)
	}
	return os.Remove(path)
}

// Close is a no-op for the local filesystem
func (s *Storage) Close() error {
	return nil
}

func (s *Storage) artifactPath(name string) (string, error) {
	if name == "" || filepath.Base(name) != name {
		return "", fmt.Errorf("invalid artifact name %q", name)
	}
	return filepath.Join(s.basePath, "results", name), nil
}
