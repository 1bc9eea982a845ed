package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fastlease/deal-ingest/internal/pipeline"
)

var (
	reportDir string
	reportOut string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Export a deals summary workbook from aggregated artifacts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if reportDir != "" {
			cfg.Ingest.OutputDir = reportDir
		}
		if err := cfg.Validate("report"); err != nil {
			return err
		}

		n, err := pipeline.BuildReport(cfg.Ingest.OutputDir, reportOut)
		if err != nil {
			return err
		}

		zap.L().Info("report written",
			zap.String("path", reportOut),
			zap.Int("deals", n),
		)
		return nil
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportDir, "dir", "", "aggregated artifacts directory (defaults to ingest.output_dir)")
	reportCmd.Flags().StringVar(&reportOut, "out", "deals.xlsx", "output workbook path")
	rootCmd.AddCommand(reportCmd)
}
