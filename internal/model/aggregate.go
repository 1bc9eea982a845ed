package model

import "time"

// AggregatedDeal is the per-deal artifact the ingest pipeline writes out:
// the composite field set merged from every document in the folder, plus
// per-document results and run diagnostics. It is the input to the import
// stage.
type AggregatedDeal struct {
	DealID     string           `json:"deal_id"`
	FolderName string           `json:"folder_name"`
	Composite  map[string]any   `json:"composite"`
	Documents  []DocumentRecord `json:"documents"`
	Storage    StorageSummary   `json:"storage"`
	Diag       RunDiagnostics   `json:"diagnostics"`
	CreatedAt  time.Time        `json:"created_at"`
}

// StorageSummary records where the deal's objects live.
type StorageSummary struct {
	Bucket         string `json:"bucket"`
	BasePrefix     string `json:"base_prefix"`
	AggregatedJSON string `json:"aggregated_json"`
}

// RunDiagnostics summarizes a pipeline run over one deal folder.
type RunDiagnostics struct {
	DocumentsSeen      int      `json:"documents_seen"`
	DocumentsExtracted int      `json:"documents_extracted"`
	DocumentsFailed    int      `json:"documents_failed"`
	ChunksMerged       int      `json:"chunks_merged"`
	MergeFallback      bool     `json:"merge_fallback"`
	Warnings           []string `json:"warnings,omitempty"`
}

// AddWarning records a non-fatal problem for the run summary.
func (d *RunDiagnostics) AddWarning(msg string) {
	d.Warnings = append(d.Warnings, msg)
}
