package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fastlease/deal-ingest/internal/importer"
	"github.com/fastlease/deal-ingest/internal/model"
	"github.com/fastlease/deal-ingest/internal/normalize"
	"github.com/fastlease/deal-ingest/internal/pipeline"
	"github.com/fastlease/deal-ingest/internal/store"
)

var (
	recatOnly       []string
	recatDryRun     bool
	recatSkipImport bool
)

var recategorizeCmd = &cobra.Command{
	Use:   "recategorize",
	Short: "Reconcile storage layouts and import deals with a VIN",
	Long:  "Moves documents from historical storage layouts to the canonical one, rewrites each aggregated artifact, and imports deals whose composite carries a vehicle VIN.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("recategorize"); err != nil {
			return err
		}

		objects, err := newObjectStore(cfg)
		if err != nil {
			return err
		}
		recat := pipeline.NewRecategorizer(objects, cfg.Storage.Bucket, cfg.Ingest.OutputDir)

		dealIDs, err := recatTargets(cfg.Ingest.OutputDir, recatOnly)
		if err != nil {
			return err
		}
		if len(dealIDs) == 0 {
			return eris.New("no deals to recategorize")
		}

		var st store.Store
		if !recatSkipImport && !recatDryRun {
			st, err = openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()
		}

		summary := pipeline.NewSummary()
		for _, dealID := range dealIDs {
			summary.Processed++
			result, err := recat.Process(ctx, dealID, pipeline.RecatOptions{DryRun: recatDryRun})
			if err != nil {
				summary.AddFailure(dealID, "", "", err.Error())
				continue
			}
			if result.Updated {
				summary.Updated++
			}

			if st == nil {
				continue
			}
			if !result.HasVIN {
				zap.L().Warn("skipping import: no vehicle VIN", zap.String("deal_id", dealID))
				summary.Skipped++
				continue
			}
			if err := importArtifact(ctx, st, result.LocalPath); err != nil {
				summary.AddFailure(dealID, "", "", err.Error())
			}
		}

		summary.Log()
		if !summary.OK() {
			return eris.Errorf("recategorize finished with %d failed deals", summary.Failed)
		}
		return nil
	},
}

// recatTargets resolves the deal ids to process: the --only folder names
// when given, otherwise every aggregated artifact in the output directory.
func recatTargets(outputDir string, only []string) ([]string, error) {
	if len(only) > 0 {
		ids := make([]string, 0, len(only))
		for _, folder := range only {
			ids = append(ids, model.DeriveDealID(folder).String())
		}
		return ids, nil
	}

	matches, err := filepath.Glob(filepath.Join(outputDir, "aggregated-*.json"))
	if err != nil {
		return nil, eris.Wrap(err, "list aggregated artifacts")
	}
	ids := make([]string, 0, len(matches))
	for _, path := range matches {
		name := filepath.Base(path)
		id := strings.TrimSuffix(strings.TrimPrefix(name, "aggregated-"), ".json")
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// importArtifact normalizes and imports one rewritten artifact.
func importArtifact(ctx context.Context, st store.Store, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "read %s", path)
	}
	var agg model.AggregatedDeal
	if err := json.Unmarshal(data, &agg); err != nil {
		return eris.Wrapf(err, "parse %s", path)
	}
	rec, err := normalize.Normalize(&agg)
	if err != nil {
		return err
	}
	im := importer.New(st, cfg.Import.EmailDomain)
	_, err = im.Import(ctx, rec, importer.Options{})
	return err
}

func init() {
	recategorizeCmd.Flags().StringSliceVar(&recatOnly, "only", nil, "recategorize only the deals derived from these folder names")
	recategorizeCmd.Flags().BoolVar(&recatDryRun, "dry-run", false, "report moves without performing them")
	recategorizeCmd.Flags().BoolVar(&recatSkipImport, "skip-import", false, "reconcile storage only, do not import")
	rootCmd.AddCommand(recategorizeCmd)
}
