package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/fastlease/deal-ingest/internal/model"
	"github.com/fastlease/deal-ingest/internal/storage"
)

// Recategorizer repairs deals whose objects were written under older
// layouts: it reloads the aggregated artifact, recomputes categories,
// moves objects to their canonical paths and rewrites the artifact.
type Recategorizer struct {
	store     storage.ObjectStore
	bucket    string
	outputDir string
}

// NewRecategorizer wires a Recategorizer.
func NewRecategorizer(store storage.ObjectStore, bucket, outputDir string) *Recategorizer {
	return &Recategorizer{store: store, bucket: bucket, outputDir: outputDir}
}

// RecatOptions tunes a recategorize run.
type RecatOptions struct {
	DryRun bool
}

// RecatResult reports what happened to one deal.
type RecatResult struct {
	DealID    string
	Updated   bool
	HasVIN    bool
	LocalPath string // rewritten local artifact, input for the importer
}

// Process recategorizes one deal. The aggregated artifact is searched
// across every known storage layout, then in the local output directory.
func (r *Recategorizer) Process(ctx context.Context, dealID string, opts RecatOptions) (*RecatResult, error) {
	agg, err := r.loadAggregate(ctx, dealID)
	if err != nil {
		return nil, err
	}

	zap.L().Info("recategorize: processing deal",
		zap.String("deal_id", dealID),
		zap.String("folder", agg.FolderName),
		zap.Int("documents", len(agg.Documents)),
		zap.Bool("dry_run", opts.DryRun),
	)

	updated := false
	for i := range agg.Documents {
		docUpdated, err := r.reconcileDocument(ctx, dealID, &agg.Documents[i], opts)
		if err != nil {
			return nil, err
		}
		updated = updated || docUpdated
	}

	canonical := storage.AggregatedPath(dealID)
	if agg.Storage.BasePrefix != dealID || agg.Storage.Bucket != r.bucket || agg.Storage.AggregatedJSON != canonical {
		agg.Storage = model.StorageSummary{
			Bucket:         r.bucket,
			BasePrefix:     dealID,
			AggregatedJSON: canonical,
		}
		updated = true
	}

	result := &RecatResult{DealID: dealID, Updated: updated, HasVIN: hasVehicleVIN(agg.Composite)}

	if !updated {
		zap.L().Info("recategorize: already canonical, nothing to update",
			zap.String("deal_id", dealID),
		)
		result.LocalPath, _ = r.writeLocal(agg, opts.DryRun)
		return result, nil
	}

	payload, err := json.MarshalIndent(agg, "", "  ")
	if err != nil {
		return nil, eris.Wrap(err, "recategorize: encode aggregated record")
	}
	if opts.DryRun {
		zap.L().Info("recategorize: dry-run, would rewrite aggregated record",
			zap.String("deal_id", dealID),
			zap.String("path", canonical),
		)
		return result, nil
	}

	storage.RemoveAll(ctx, r.store, storage.AggregatedPathCandidates(dealID)[1:])
	if err := r.store.Upload(ctx, canonical, bytes.NewReader(payload)); err != nil {
		return nil, eris.Wrap(err, "recategorize: upload aggregated record")
	}

	result.LocalPath, err = r.writeLocal(agg, false)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// loadAggregate fetches the aggregated artifact from storage candidates,
// falling back to the local output directory.
func (r *Recategorizer) loadAggregate(ctx context.Context, dealID string) (*model.AggregatedDeal, error) {
	data, foundAt, err := storage.DownloadFirst(ctx, r.store, storage.AggregatedPathCandidates(dealID))
	if storage.IsNotFound(err) {
		localPath := filepath.Join(r.outputDir, fmt.Sprintf("aggregated-%s.json", dealID))
		data, err = os.ReadFile(localPath)
		if os.IsNotExist(err) {
			return nil, eris.Errorf("recategorize: aggregated record for %s not found in storage or %s", dealID, r.outputDir)
		}
		if err != nil {
			return nil, eris.Wrapf(err, "recategorize: read %s", localPath)
		}
		zap.L().Warn("recategorize: using local aggregated record",
			zap.String("deal_id", dealID),
			zap.String("path", localPath),
		)
	} else if err != nil {
		return nil, err
	} else {
		zap.L().Debug("recategorize: aggregated record found",
			zap.String("deal_id", dealID),
			zap.String("path", foundAt),
		)
	}

	var agg model.AggregatedDeal
	if err := json.Unmarshal(data, &agg); err != nil {
		return nil, eris.Wrapf(err, "recategorize: invalid aggregated record for %s", dealID)
	}
	if agg.DealID == "" {
		agg.DealID = dealID
	}
	return &agg, nil
}

// reconcileDocument recomputes a document's category and relocates its
// PDF and sidecar to the canonical layout. Returns whether anything
// changed.
func (r *Recategorizer) reconcileDocument(ctx context.Context, dealID string, doc *model.DocumentRecord, opts RecatOptions) (bool, error) {
	var docType, title string
	if doc.Extraction != nil {
		docType = stringField(doc.Extraction.Fields, "document_type")
		title = stringField(doc.Extraction.Fields, "title")
	}
	category := Classify(docType, title, doc.FileName)
	slug := storage.Slugify(doc.FileName)
	expectedPDF := storage.DocumentPDFPath(dealID, category, doc.FileName)
	expectedJSON := storage.DocumentJSONPath(dealID, category, doc.FileName)

	updated := false
	if doc.Category != category {
		doc.Category = category
		updated = true
	}

	moved, err := r.relocate(ctx, storage.DocumentPathCandidates(doc.StoragePath, expectedPDF, dealID, slug, "pdf"), expectedPDF, opts)
	if err != nil {
		return updated, eris.Wrapf(err, "recategorize: relocate pdf for %s", doc.FileName)
	}
	if moved {
		doc.StoragePath = expectedPDF
		updated = true
	}

	moved, err = r.relocate(ctx, storage.DocumentPathCandidates(doc.SidecarPath, expectedJSON, dealID, slug, "json"), expectedJSON, opts)
	if err != nil {
		return updated, eris.Wrapf(err, "recategorize: relocate sidecar for %s", doc.FileName)
	}
	if moved {
		doc.SidecarPath = expectedJSON
		updated = true
	}

	return updated, nil
}

func (r *Recategorizer) relocate(ctx context.Context, candidates []string, to string, opts RecatOptions) (bool, error) {
	if len(candidates) == 0 {
		return false, nil
	}
	if opts.DryRun {
		zap.L().Info("recategorize: dry-run, would move object",
			zap.Strings("candidates", candidates),
			zap.String("to", to),
		)
		return true, nil
	}
	return storage.MoveFirst(ctx, r.store, candidates, to)
}

func (r *Recategorizer) writeLocal(agg *model.AggregatedDeal, dryRun bool) (string, error) {
	if r.outputDir == "" || dryRun {
		return "", nil
	}
	if err := os.MkdirAll(r.outputDir, 0o755); err != nil {
		return "", eris.Wrap(err, "recategorize: create output dir")
	}
	payload, err := json.MarshalIndent(agg, "", "  ")
	if err != nil {
		return "", eris.Wrap(err, "recategorize: encode aggregated record")
	}
	path := filepath.Join(r.outputDir, fmt.Sprintf("aggregated-%s.json", agg.DealID))
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return "", eris.Wrap(err, "recategorize: write local aggregated file")
	}
	return path, nil
}

// hasVehicleVIN reports whether the composite carries a vehicle identity.
// Deals without one are never imported.
func hasVehicleVIN(composite map[string]any) bool {
	if composite == nil {
		return false
	}
	vehicle, _ := composite["vehicle"].(map[string]any)
	if vehicle == nil {
		return false
	}
	vin, _ := vehicle["vin"].(string)
	chassis, _ := vehicle["chassis_number"].(string)
	return vin != "" || chassis != ""
}
