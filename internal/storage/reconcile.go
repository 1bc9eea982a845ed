package storage

import (
	"context"

	"go.uber.org/zap"
)

// MoveFirst walks candidate source paths in order and moves the first one
// that exists to the destination. Candidates equal to the destination or
// already tried are skipped. The destination is removed first so a stale
// object there never blocks the move. Returns whether anything moved.
func MoveFirst(ctx context.Context, store ObjectStore, candidates []string, to string) (bool, error) {
	to = NormalizePath(to)
	tried := make(map[string]bool)

	for _, candidate := range candidates {
		from := NormalizePath(candidate)
		if from == "" || from == to || tried[from] {
			continue
		}
		tried[from] = true

		if err := store.Remove(ctx, to); err != nil && !IsNotFound(err) {
			return false, err
		}
		err := store.Move(ctx, from, to)
		if IsNotFound(err) {
			continue
		}
		if err != nil {
			return false, err
		}

		zap.L().Debug("storage: object relocated",
			zap.String("from", from),
			zap.String("to", to),
		)
		return true, nil
	}
	return false, nil
}

// DownloadFirst walks candidate paths in order and returns the contents
// of the first object that exists, along with the path it was found at.
func DownloadFirst(ctx context.Context, store ObjectStore, candidates []string) ([]byte, string, error) {
	for _, candidate := range candidates {
		p := NormalizePath(candidate)
		if p == "" {
			continue
		}
		data, err := store.Download(ctx, p)
		if IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, "", err
		}
		return data, p, nil
	}
	return nil, "", ErrNotFound
}

// RemoveAll removes every listed path, ignoring objects that are already
// gone. Other errors are logged and swallowed so cleanup never fails a
// run.
func RemoveAll(ctx context.Context, store ObjectStore, paths []string) {
	for _, p := range paths {
		p = NormalizePath(p)
		if p == "" {
			continue
		}
		if err := store.Remove(ctx, p); err != nil && !IsNotFound(err) {
			zap.L().Warn("storage: cleanup failed",
				zap.String("path", p),
				zap.Error(err),
			)
		}
	}
}
