package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/fastlease/deal-ingest/internal/config"
	"github.com/fastlease/deal-ingest/internal/pipeline"
	"github.com/fastlease/deal-ingest/internal/storage"
	"github.com/fastlease/deal-ingest/internal/store"
	"github.com/fastlease/deal-ingest/pkg/anthropic"
)

// newObjectStore builds the configured document store backend.
func newObjectStore(cfg *config.Config) (storage.ObjectStore, error) {
	switch cfg.Storage.Backend {
	case "local":
		return storage.NewLocalStore(cfg.Storage.Root)
	case "ftp":
		return storage.NewFTPStore(storage.FTPOptions{
			Addr:     cfg.Storage.FTP.Addr,
			User:     cfg.Storage.FTP.User,
			Password: cfg.Storage.FTP.Password,
			Root:     cfg.Storage.FTP.Root,
			Timeout:  time.Duration(cfg.Storage.FTP.TimeoutS) * time.Second,
		}), nil
	default:
		return nil, eris.Errorf("storage backend %q is not supported", cfg.Storage.Backend)
	}
}

// openStore opens the configured relational store.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("store driver %q is not supported", cfg.Store.Driver)
	}
}

// newIngestor wires the full extraction pipeline from configuration.
func newIngestor(cfg *config.Config) (*pipeline.Ingestor, error) {
	objects, err := newObjectStore(cfg)
	if err != nil {
		return nil, err
	}

	prompts := config.DefaultPrompts()
	if cfg.Ingest.PromptsFile != "" {
		prompts, err = config.LoadPrompts(cfg.Ingest.PromptsFile)
		if err != nil {
			return nil, err
		}
	}

	client := anthropic.NewClient(cfg.Anthropic.Key)
	extractor := pipeline.NewExtractor(client, cfg.Anthropic, cfg.Ingest, prompts)
	aggregator := pipeline.NewAggregator(extractor, cfg.Ingest.ChunkSize)

	return pipeline.NewIngestor(
		extractor, aggregator, objects,
		cfg.Storage.Bucket, cfg.Ingest.InputDir, cfg.Ingest.OutputDir,
	), nil
}
