package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Local is a FileStore rooted at a directory on disk.
type Local struct {
	root string
}

// NewLocal returns a store rooted at dir, creating it if needed. A
// leading "~/" is expanded to the user's home directory.
func NewLocal(dir string) (*Local, error) {
	if strings.HasPrefix(dir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("storage: expanding %s: %w", dir, err)
		}
		dir = filepath.Join(home, dir[2:])
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("storage: resolving %s: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("storage: creating %s: %w", abs, err)
	}
	return &Local{root: abs}, nil
}

// Root returns the absolute directory backing the store.
func (l *Local) Root() string { return l.root }

// Path returns the filesystem path for a store path.
func (l *Local) Path(path string) string {
	return filepath.Join(l.root, filepath.FromSlash(path))
}

func (l *Local) Read(_ context.Context, path string) (io.ReadCloser, error) {
	f, err := os.Open(l.Path(path))
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", path, err)
	}
	return f, nil
}

// Write stages content in a temp file next to the target. Close renames
// it into place, so readers never observe a partial artifact.
func (l *Local) Write(_ context.Context, path string) (io.WriteCloser, error) {
	dest := l.Path(path)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, fmt.Errorf("storage: write %s: %w", path, err)
	}
	f, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("storage: write %s: %w", path, err)
	}
	return &atomicFile{f: f, dest: dest}, nil
}

func (l *Local) Delete(_ context.Context, path string) error {
	err := os.Remove(l.Path(path))
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("storage: delete %s: %w", path, err)
}

func (l *Local) Exists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(l.Path(path))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("storage: stat %s: %w", path, err)
	}
}

// atomicFile renames its temp file over dest on Close.
type atomicFile struct {
	f      *os.File
	dest   string
	failed bool
	closed bool
}

func (a *atomicFile) Write(p []byte) (int, error) {
	n, err := a.f.Write(p)
	if err != nil {
		a.failed = true
	}
	return n, err
}

func (a *atomicFile) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	tmp := a.f.Name()
	if err := a.f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("storage: closing %s: %w", tmp, err)
	}
	if a.failed {
		os.Remove(tmp)
		return fmt.Errorf("storage: write to %s failed, discarded", a.dest)
	}
	if err := os.Rename(tmp, a.dest); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("storage: renaming into %s: %w", a.dest, err)
	}
	return nil
}

// Abort removes the temp file without touching dest.
func (a *atomicFile) Abort() error {
	if a.closed {
		return nil
	}
	a.closed = true
	a.f.Close()
	return os.Remove(a.f.Name())
}

var _ FileStore = (*Local)(nil)
