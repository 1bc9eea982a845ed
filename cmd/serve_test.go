package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastlease/deal-ingest/internal/lock"
	"github.com/fastlease/deal-ingest/internal/pipeline"
)

func TestServe_Healthz(t *testing.T) {
	router := newServeRouter(nil, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServe_IngestTriggersRun(t *testing.T) {
	got := make(chan pipeline.IngestOptions, 1)
	run := func(ctx context.Context, opts pipeline.IngestOptions) (*pipeline.Summary, error) {
		got <- opts
		return pipeline.NewSummary(), nil
	}
	router := newServeRouter(run, nil)

	body := strings.NewReader(`{"folders":["AHMED_DEAL"],"dry_run":true}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ingest", body))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"status":"accepted"}`, rec.Body.String())

	select {
	case opts := <-got:
		assert.True(t, opts.DryRun)
		assert.True(t, opts.Only["AHMED_DEAL"])
	case <-time.After(2 * time.Second):
		t.Fatal("ingest run was never triggered")
	}
}

func TestServe_IngestEmptyBody(t *testing.T) {
	got := make(chan pipeline.IngestOptions, 1)
	run := func(ctx context.Context, opts pipeline.IngestOptions) (*pipeline.Summary, error) {
		got <- opts
		return pipeline.NewSummary(), nil
	}
	router := newServeRouter(run, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ingest", nil))

	assert.Equal(t, http.StatusAccepted, rec.Code)

	select {
	case opts := <-got:
		assert.False(t, opts.DryRun)
		assert.Nil(t, opts.Only)
	case <-time.After(2 * time.Second):
		t.Fatal("ingest run was never triggered")
	}
}

func TestServe_IngestBadBody(t *testing.T) {
	router := newServeRouter(nil, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader("{")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid request body")
}

func TestServe_IngestConflictWhenLocked(t *testing.T) {
	mr := miniredis.RunT(t)
	holder := lock.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Minute)
	t.Cleanup(func() { holder.Close() })

	acquired, err := holder.Acquire(context.Background(), "ingest")
	require.NoError(t, err)
	require.True(t, acquired)

	contender := lock.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Minute)
	t.Cleanup(func() { contender.Close() })

	router := newServeRouter(nil, contender)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ingest", nil))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "already in progress")
}

func TestServe_LockReleasedAfterRun(t *testing.T) {
	mr := miniredis.RunT(t)
	lk := lock.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Minute)
	t.Cleanup(func() { lk.Close() })

	done := make(chan struct{})
	run := func(ctx context.Context, opts pipeline.IngestOptions) (*pipeline.Summary, error) {
		defer close(done)
		return pipeline.NewSummary(), nil
	}
	router := newServeRouter(run, lk)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ingest", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run never finished")
	}

	require.Eventually(t, func() bool {
		return !mr.Exists("deal-ingest:lock:ingest")
	}, 2*time.Second, 10*time.Millisecond)
}
