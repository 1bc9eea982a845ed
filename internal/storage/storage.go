// Package storage provides the deal-document object store: deterministic
// object addressing under a bucket, plus backends for a local directory
// tree and an FTP server.
package storage

import (
	"context"
	"io"

	"github.com/rotisserie/eris"
)

// ErrNotFound is returned when an object does not exist. Callers that
// reconcile historical layouts treat it as "try the next candidate".
var ErrNotFound = eris.New("storage: object not found")

// ObjectStore is the operations the pipeline needs from a document store.
// Paths are bucket-relative, slash-separated, with no leading slash.
type ObjectStore interface {
	Upload(ctx context.Context, path string, r io.Reader) error
	Download(ctx context.Context, path string) ([]byte, error)
	Move(ctx context.Context, from, to string) error
	Remove(ctx context.Context, path string) error
	Exists(ctx context.Context, path string) (bool, error)
}

// IsNotFound reports whether err indicates a missing object.
func IsNotFound(err error) bool {
	return eris.Is(err, ErrNotFound)
}
