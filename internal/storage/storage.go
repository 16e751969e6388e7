// Package storage provides the backing stores that model artifacts are
// fetched from and downloaded into.
//
// Paths are forward-slash separated and relative to the store root. A
// missing file is reported with an error wrapping os.ErrNotExist
// regardless of backend, so callers can tell absent optional artifacts
// apart from real failures.
package storage

import (
	"context"
	"fmt"
	"io"
)

// FileStore reads and writes named artifacts. Implementations must be
// safe for concurrent use.
type FileStore interface {
	// Read opens path for reading. The caller closes the reader.
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// Write opens path for writing, replacing any existing content once
	// the writer is closed successfully.
	Write(ctx context.Context, path string) (io.WriteCloser, error)

	// Delete removes path. Deleting a missing path is not an error.
	Delete(ctx context.Context, path string) error

	// Exists reports whether path is present.
	Exists(ctx context.Context, path string) (bool, error)
}

// ReadFile reads the whole of path from store.
func ReadFile(ctx context.Context, store FileStore, path string) ([]byte, error) {
	rc, err := store.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("storage: reading %s: %w", path, err)
	}
	return data, nil
}

// WriteFile stores data at path, replacing any previous content.
func WriteFile(ctx context.Context, store FileStore, path string, data []byte) error {
	wc, err := store.Write(ctx, path)
	if err != nil {
		return err
	}
	if _, err := wc.Write(data); err != nil {
		Abort(wc)
		return fmt.Errorf("storage: writing %s: %w", path, err)
	}
	return wc.Close()
}

// Abort discards an unfinished write so the target keeps its previous
// content. Writers that cannot abort are closed instead.
func Abort(w io.WriteCloser) error {
	if a, ok := w.(interface{ Abort() error }); ok {
		return a.Abort()
	}
	return w.Close()
}
