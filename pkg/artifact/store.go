// Package artifact stores uploaded package binaries and icons under
// opaque, non-enumerable locators. The Store interface abstracts the
// backend so the catalog never touches paths or URLs directly.
package artifact

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
)

// PutResult reports the outcome of a completed write.
type PutResult struct {
	// Size is the number of bytes durably written.
	Size int64
	// Locator is the backend-internal handle for the stored object.
	// It is opaque to callers and safe to persist.
	Locator string
}

// Store is a binary object store for packages and icons.
type Store interface {
	// Put streams r to durable storage under key. If declaredSize is
	// non-negative the written byte count must match it exactly or the
	// write fails and leaves nothing behind. The object is never
	// observable in a partially written state.
	Put(ctx context.Context, key string, r io.Reader, declaredSize int64) (PutResult, error)

	// Open returns a reader over the stored object and its size.
	Open(locator string) (io.ReadSeekCloser, int64, error)

	// Remove deletes the object. A missing object is treated as
	// success so removal is idempotent.
	Remove(ctx context.Context, locator string) error

	// URLFor builds the publicly fetchable URL for a stored object.
	URLFor(locator string) string
}

// RandomKey builds a non-enumerable storage key: prefix/<32 hex chars><ext>.
// The random segment carries 128 bits so keys never collide between
// concurrent writers.
func RandomKey(prefix, ext string) string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the platform RNG is broken; there
		// is no safe fallback.
		panic("artifact: crypto/rand unavailable: " + err.Error())
	}
	return prefix + "/" + hex.EncodeToString(buf) + ext
}
