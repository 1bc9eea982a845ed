package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// LocalStore keeps objects under a root directory on the local
// filesystem. Object paths map directly to file paths below the root.
type LocalStore struct {
	root string
}

// NewLocalStore creates a LocalStore rooted at dir, creating it if
// needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "storage: create root %s", dir)
	}
	return &LocalStore{root: dir}, nil
}

func (s *LocalStore) fullPath(p string) string {
	return filepath.Join(s.root, filepath.FromSlash(NormalizePath(p)))
}

func (s *LocalStore) Upload(ctx context.Context, path string, r io.Reader) error {
	full := s.fullPath(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return eris.Wrapf(err, "storage: mkdir for %s", path)
	}

	f, err := os.Create(full)
	if err != nil {
		return eris.Wrapf(err, "storage: create %s", path)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return eris.Wrapf(err, "storage: write %s", path)
	}
	return nil
}

func (s *LocalStore) Download(ctx context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(s.fullPath(path))
	if os.IsNotExist(err) {
		return nil, eris.Wrapf(ErrNotFound, "download %s", path)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "storage: read %s", path)
	}
	return data, nil
}

func (s *LocalStore) Move(ctx context.Context, from, to string) error {
	src := s.fullPath(from)
	dst := s.fullPath(to)

	if _, err := os.Stat(src); os.IsNotExist(err) {
		return eris.Wrapf(ErrNotFound, "move %s", from)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return eris.Wrapf(err, "storage: mkdir for %s", to)
	}
	if err := os.Rename(src, dst); err != nil {
		return eris.Wrapf(err, "storage: move %s to %s", from, to)
	}
	return nil
}

func (s *LocalStore) Remove(ctx context.Context, path string) error {
	err := os.Remove(s.fullPath(path))
	if os.IsNotExist(err) {
		return eris.Wrapf(ErrNotFound, "remove %s", path)
	}
	if err != nil {
		return eris.Wrapf(err, "storage: remove %s", path)
	}
	return nil
}

func (s *LocalStore) Exists(ctx context.Context, path string) (bool, error) {
	_, err := os.Stat(s.fullPath(path))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "storage: stat %s", path)
	}
	return true, nil
}
