package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// FilesystemStore keeps objects as files under a root directory and
// serves them through a base URL mounted by the HTTP server.
type FilesystemStore struct {
	root    string
	baseURL string
}

// NewFilesystemStore creates a store rooted at dir. baseURL is the
// public prefix under which locators are reachable (e.g. "/api/files").
func NewFilesystemStore(dir, baseURL string) (*FilesystemStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("storage directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root %s: %w", dir, err)
	}
	return &FilesystemStore{
		root:    dir,
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

// Root returns the storage root directory.
func (s *FilesystemStore) Root() string { return s.root }

// resolve maps a locator to an absolute path inside the root,
// rejecting anything that would escape it.
func (s *FilesystemStore) resolve(locator string) (string, error) {
	clean := path.Clean("/" + locator)
	if clean == "/" || strings.Contains(clean, "..") {
		return "", fmt.Errorf("invalid locator %q", locator)
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

// Put implements Store. The object is written to a temp file in the
// same directory and renamed into place so readers never observe a
// partial object.
func (s *FilesystemStore) Put(ctx context.Context, key string, r io.Reader, declaredSize int64) (PutResult, error) {
	dst, err := s.resolve(key)
	if err != nil {
		return PutResult{}, err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return PutResult{}, fmt.Errorf("create object directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".put-*.tmp")
	if err != nil {
		return PutResult{}, fmt.Errorf("create temp object: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	n, err := io.Copy(tmp, &contextReader{ctx: ctx, r: r})
	if err != nil {
		cleanup()
		return PutResult{}, fmt.Errorf("write object %s: %w", key, err)
	}
	if declaredSize >= 0 && n != declaredSize {
		cleanup()
		return PutResult{}, fmt.Errorf("object %s truncated: wrote %d of %d declared bytes", key, n, declaredSize)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return PutResult{}, fmt.Errorf("sync object %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return PutResult{}, fmt.Errorf("close object %s: %w", key, err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return PutResult{}, fmt.Errorf("finalize object %s: %w", key, err)
	}

	return PutResult{Size: n, Locator: strings.TrimPrefix(path.Clean("/"+key), "/")}, nil
}

// Open implements Store.
func (s *FilesystemStore) Open(locator string) (io.ReadSeekCloser, int64, error) {
	p, err := s.resolve(locator)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, 0, fmt.Errorf("open object %s: %w", locator, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("stat object %s: %w", locator, err)
	}
	return f, info.Size(), nil
}

// Remove implements Store. Missing objects are swallowed as success.
func (s *FilesystemStore) Remove(_ context.Context, locator string) error {
	p, err := s.resolve(locator)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove object %s: %w", locator, err)
	}
	return nil
}

// URLFor implements Store.
func (s *FilesystemStore) URLFor(locator string) string {
	return s.baseURL + "/" + strings.TrimPrefix(locator, "/")
}

// contextReader aborts an in-flight copy when the request context is
// cancelled, so a disconnected uploader cannot leave a write running.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *contextReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
