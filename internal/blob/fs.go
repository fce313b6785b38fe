package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FSStore is a Store that keeps each blob as a file in BaseDir.
type FSStore struct {
	// baseDir holds one file per blob.
	baseDir string
}

// OpenFS returns an FSStore rooted at dir, creating it if needed.
func OpenFS(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blob: create %s: %w", dir, err)
	}
	return &FSStore{baseDir: dir}, nil
}

// Put writes data to a temporary file and renames it over the blob so
// readers never observe a partial write.
func (s *FSStore) Put(_ context.Context, name string, data []byte) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	f, err := os.CreateTemp(s.baseDir, ".upload-*")
	if err != nil {
		return fmt.Errorf("blob: put %s: %w", name, err)
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("blob: put %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("blob: put %s: %w", name, err)
	}
	if err := os.Rename(tmp, s.path(name)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("blob: put %s: %w", name, err)
	}
	return nil
}

// Get returns the blob stored under name.
func (s *FSStore) Get(_ context.Context, name string) ([]byte, error) {
	if err := ValidateName(name); err != nil {
		return nil, notFound("blob.get", name)
	}
	data, err := os.ReadFile(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, notFound("blob.get", name)
	}
	if err != nil {
		return nil, fmt.Errorf("blob: get %s: %w", name, err)
	}
	return data, nil
}

// List returns every blob ordered by name. In-progress uploads are skipped.
func (s *FSStore) List(_ context.Context) ([]Info, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("blob: list: %w", err)
	}
	infos := []Info{}
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".upload-") {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		infos = append(infos, Info{Name: e.Name(), Size: fi.Size(), UpdatedAt: fi.ModTime().UTC()})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// Delete removes the blob stored under name.
func (s *FSStore) Delete(_ context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return notFound("blob.delete", name)
	}
	err := os.Remove(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return notFound("blob.delete", name)
	}
	if err != nil {
		return fmt.Errorf("blob: delete %s: %w", name, err)
	}
	return nil
}

// Ping checks that the base directory is still accessible.
func (s *FSStore) Ping(context.Context) error {
	if _, err := os.Stat(s.baseDir); err != nil {
		return fmt.Errorf("blob: ping: %w", err)
	}
	return nil
}

// Close is a no-op.
func (s *FSStore) Close() error { return nil }

// path returns the file path of a validated name.
func (s *FSStore) path(name string) string {
	return filepath.Join(s.baseDir, name)
}
