// Package blob stores raw uploaded documents by filename. The ingestion
// pipeline reads them back when a document is embedded, so a document can be
// re-embedded into a different scope without re-uploading it.
package blob

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/54b3r/scoperag-go/internal/apperr"
)

// ErrNotFound is wrapped by Get and Delete when no blob has the name.
var ErrNotFound = errors.New("blob: not found")

// Info describes one stored blob.
type Info struct {
	// Name is the blob name (the uploaded filename).
	Name string `json:"name"`
	// Size is the blob length in bytes.
	Size int64 `json:"size"`
	// UpdatedAt is when the blob was last written.
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store persists raw documents keyed by name. Implementations must be safe
// for concurrent use.
type Store interface {
	// Put stores data under name, replacing any existing blob.
	Put(ctx context.Context, name string, data []byte) error
	// Get returns the blob stored under name.
	Get(ctx context.Context, name string) ([]byte, error)
	// List returns every blob ordered by name.
	List(ctx context.Context) ([]Info, error)
	// Delete removes the blob stored under name.
	Delete(ctx context.Context, name string) error
	// Ping checks that the store is usable.
	Ping(ctx context.Context) error
	// Close releases any resources held by the store.
	Close() error
}

// ValidateName rejects names that are empty, too long, or could escape a
// directory.
func ValidateName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return apperr.Validation("blob.name", "file name is required")
	case len(name) > 255:
		return apperr.Validation("blob.name", "file name is longer than 255 bytes")
	case name == "." || name == "..":
		return apperr.Validation("blob.name", "invalid file name")
	case strings.ContainsAny(name, "/\\\x00"):
		return apperr.Validation("blob.name", "file name must not contain path separators")
	}
	return nil
}

// DefaultPath returns the default location for backend ("sqlite" or "fs")
// under ~/.scoperag, creating the directory if needed.
func DefaultPath(backend string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("blob: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".scoperag")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("blob: could not create %s: %w", dir, err)
	}
	if backend == "fs" {
		return filepath.Join(dir, "blobs"), nil
	}
	return filepath.Join(dir, "blobs.db"), nil
}

// notFound returns a not-found error for name that wraps ErrNotFound.
func notFound(op, name string) error {
	return &apperr.Error{
		Kind: apperr.KindNotFound,
		Op:   op,
		Msg:  fmt.Sprintf("document %q not found", name),
		Err:  ErrNotFound,
	}
}
