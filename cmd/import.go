package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fastlease/deal-ingest/internal/importer"
	"github.com/fastlease/deal-ingest/internal/model"
	"github.com/fastlease/deal-ingest/internal/normalize"
)

var (
	importFile  string
	importApply bool
	importForce bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import an aggregated deal artifact into the database",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		data, err := os.ReadFile(importFile)
		if err != nil {
			return eris.Wrapf(err, "read %s", importFile)
		}
		var agg model.AggregatedDeal
		if err := json.Unmarshal(data, &agg); err != nil {
			return eris.Wrapf(err, "parse %s", importFile)
		}

		rec, err := normalize.Normalize(&agg)
		if err != nil {
			return err
		}

		if !importApply {
			zap.L().Info("dry run: record is importable",
				zap.String("deal_id", rec.DealID),
				zap.String("folder", rec.FolderName),
				zap.String("client", rec.Client.FullName),
				zap.String("vin", rec.Vehicle.VIN),
				zap.Int("documents", len(rec.Documents)),
			)
			return nil
		}

		if err := cfg.Validate("import"); err != nil {
			return err
		}
		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		im := importer.New(st, cfg.Import.EmailDomain)
		res, err := im.Import(ctx, rec, importer.Options{Force: importForce})
		if err != nil {
			return err
		}

		zap.L().Info("import complete",
			zap.String("deal_id", res.DealID),
			zap.String("user_id", res.UserID),
			zap.String("status", res.DealStatus),
			zap.Bool("account_created", res.AccountCreated),
			zap.Int64("documents_inserted", res.DocumentsInserted),
			zap.Int("documents_skipped", res.DocumentsSkipped),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importFile, "file", "", "path to an aggregated deal artifact (required)")
	_ = importCmd.MarkFlagRequired("file")
	importCmd.Flags().BoolVar(&importApply, "apply", false, "write to the database instead of validating only")
	importCmd.Flags().BoolVar(&importForce, "force", false, "overwrite populated columns instead of filling gaps")
	rootCmd.AddCommand(importCmd)
}
