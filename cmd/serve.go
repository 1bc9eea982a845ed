package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fastlease/deal-ingest/internal/lock"
	"github.com/fastlease/deal-ingest/internal/pipeline"
)

// ingestRunFunc runs one ingest pass; the serve handler triggers it
// asynchronously.
type ingestRunFunc func(ctx context.Context, opts pipeline.IngestOptions) (*pipeline.Summary, error)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP surface for ingest triggers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		lk, err := lock.New(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer lk.Close()

		ingestor, err := newIngestor(cfg)
		if err != nil {
			return err
		}

		router := newServeRouter(ingestor.Run, lk)
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			zap.L().Info("server listening", zap.Int("port", cfg.Server.Port))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

// newServeRouter builds the HTTP routes around an ingest runner and an
// optional run lock.
func newServeRouter(run ingestRunFunc, lk *lock.Lock) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/ingest", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Folders       []string `json:"folders"`
			DryRun        bool     `json:"dry_run"`
			SkipProcessed bool     `json:"skip_processed"`
		}
		if req.Body != nil && req.ContentLength != 0 {
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
				return
			}
		}

		ctx := req.Context()
		acquired, err := lk.Acquire(ctx, "ingest")
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "lock backend unavailable"})
			return
		}
		if !acquired {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "an ingest run is already in progress"})
			return
		}

		opts := pipeline.IngestOptions{
			DryRun:        body.DryRun,
			SkipProcessed: body.SkipProcessed,
		}
		if len(body.Folders) > 0 {
			opts.Only = make(map[string]bool, len(body.Folders))
			for _, folder := range body.Folders {
				opts.Only[folder] = true
			}
		}

		// The run outlives the request; the lock is released when it
		// finishes.
		go func() {
			runCtx := context.Background()
			defer func() { _ = lk.Release(runCtx, "ingest") }()
			stopKeepAlive := lk.KeepAlive(runCtx, "ingest")
			defer stopKeepAlive()

			if _, err := run(runCtx, opts); err != nil {
				zap.L().Error("triggered ingest failed", zap.Error(err))
			}
		}()

		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
