package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastlease/deal-ingest/internal/config"
	"github.com/fastlease/deal-ingest/internal/model"
	"github.com/fastlease/deal-ingest/internal/storage"
)

func TestNewObjectStore_Local(t *testing.T) {
	c := &config.Config{}
	c.Storage.Backend = "local"
	c.Storage.Root = t.TempDir()

	s, err := newObjectStore(c)
	require.NoError(t, err)
	assert.IsType(t, &storage.LocalStore{}, s)
}

func TestNewObjectStore_FTP(t *testing.T) {
	c := &config.Config{}
	c.Storage.Backend = "ftp"
	c.Storage.FTP.Addr = "ftp.example.com:21"

	s, err := newObjectStore(c)
	require.NoError(t, err)
	assert.IsType(t, &storage.FTPStore{}, s)
}

func TestNewObjectStore_Unknown(t *testing.T) {
	c := &config.Config{}
	c.Storage.Backend = "s3"

	_, err := newObjectStore(c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not supported")
}

func TestOpenStore_Unknown(t *testing.T) {
	c := &config.Config{}
	c.Store.Driver = "mysql"

	_, err := openStore(t.Context(), c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not supported")
}

func TestRecatTargets_FromFolderNames(t *testing.T) {
	ids, err := recatTargets(t.TempDir(), []string{"AHMED_DEAL", "FATIMA_DEAL"})
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.Equal(t, model.DeriveDealID("AHMED_DEAL").String(), ids[0])
	assert.Equal(t, model.DeriveDealID("FATIMA_DEAL").String(), ids[1])
}

func TestRecatTargets_FromOutputDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "aggregated-deal-1.json"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "aggregated-deal-2.json"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	ids, err := recatTargets(dir, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"deal-1", "deal-2"}, ids)
}

func TestRecatTargets_EmptyDir(t *testing.T) {
	ids, err := recatTargets(t.TempDir(), nil)
	require.NoError(t, err)
	assert.Empty(t, ids)
}
