package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fastlease/deal-ingest/internal/lock"
	"github.com/fastlease/deal-ingest/internal/pipeline"
)

var (
	ingestRoot          string
	ingestOnly          []string
	ingestDryRun        bool
	ingestSkipProcessed bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Extract, classify, and aggregate local deal folders",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if ingestRoot != "" {
			cfg.Ingest.InputDir = ingestRoot
		}
		if err := cfg.Validate("ingest"); err != nil {
			return err
		}

		lk, err := lock.New(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer lk.Close()

		acquired, err := lk.Acquire(ctx, "ingest")
		if err != nil {
			return err
		}
		if !acquired {
			return eris.New("another ingest run is already in progress")
		}
		defer func() { _ = lk.Release(ctx, "ingest") }()
		stopKeepAlive := lk.KeepAlive(ctx, "ingest")
		defer stopKeepAlive()

		ingestor, err := newIngestor(cfg)
		if err != nil {
			return err
		}

		opts := pipeline.IngestOptions{
			DryRun:        ingestDryRun,
			SkipProcessed: ingestSkipProcessed,
		}
		if len(ingestOnly) > 0 {
			opts.Only = make(map[string]bool, len(ingestOnly))
			for _, folder := range ingestOnly {
				opts.Only[folder] = true
			}
		}

		summary, err := ingestor.Run(ctx, opts)
		if err != nil {
			return err
		}
		if !summary.OK() {
			return eris.Errorf("ingest finished with %d failed deals", summary.Failed)
		}

		zap.L().Info("ingest complete",
			zap.Int("processed", summary.Processed),
			zap.Int("skipped", summary.Skipped),
		)
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestRoot, "root", "", "deal folders root (overrides ingest.input_dir)")
	ingestCmd.Flags().StringSliceVar(&ingestOnly, "only", nil, "process only these folder names")
	ingestCmd.Flags().BoolVar(&ingestDryRun, "dry-run", false, "extract and aggregate without uploading")
	ingestCmd.Flags().BoolVar(&ingestSkipProcessed, "skip-processed", false, "skip deals that already have an aggregated artifact")
	rootCmd.AddCommand(ingestCmd)
}
