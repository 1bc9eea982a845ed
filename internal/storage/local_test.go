package storage

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *LocalStore {
	t.Helper()
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestLocalStoreRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upload(ctx, "deal-1/client/passport.pdf", bytes.NewReader([]byte("pdf-bytes"))))

	data, err := s.Download(ctx, "deal-1/client/passport.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("pdf-bytes"), data)

	ok, err := s.Exists(ctx, "deal-1/client/passport.pdf")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocalStoreDownloadMissing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Download(context.Background(), "nope/missing.pdf")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestLocalStoreMove(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upload(ctx, "deals/abc/doc.pdf", bytes.NewReader([]byte("x"))))
	require.NoError(t, s.Move(ctx, "deals/abc/doc.pdf", "abc/client/doc.pdf"))

	ok, err := s.Exists(ctx, "deals/abc/doc.pdf")
	require.NoError(t, err)
	assert.False(t, ok)

	data, err := s.Download(ctx, "abc/client/doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), data)
}

func TestLocalStoreMoveMissing(t *testing.T) {
	s := newTestStore(t)

	err := s.Move(context.Background(), "gone.pdf", "elsewhere.pdf")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestLocalStoreRemove(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upload(ctx, "a/b.json", bytes.NewReader([]byte("{}"))))
	require.NoError(t, s.Remove(ctx, "a/b.json"))

	err := s.Remove(ctx, "a/b.json")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestLocalStoreUploadOverwrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upload(ctx, "a/b.json", bytes.NewReader([]byte("one"))))
	require.NoError(t, s.Upload(ctx, "a/b.json", bytes.NewReader([]byte("two"))))

	data, err := s.Download(ctx, "a/b.json")
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), data)
}
