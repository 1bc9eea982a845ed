package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/fastlease/deal-ingest/internal/model"
	"github.com/fastlease/deal-ingest/internal/storage"
)

// Ingestor walks local deal folders and turns each into an aggregated
// artifact: extract every PDF, classify it, upload it under the
// canonical layout, aggregate the extractions, and persist the result.
type Ingestor struct {
	extractor  *Extractor
	aggregator *Aggregator
	store      storage.ObjectStore
	bucket     string
	inputDir   string
	outputDir  string
}

// IngestOptions narrows and tunes a run.
type IngestOptions struct {
	Only          map[string]bool // folder names; empty means all
	DryRun        bool
	SkipProcessed bool
}

// NewIngestor wires an Ingestor.
func NewIngestor(extractor *Extractor, aggregator *Aggregator, store storage.ObjectStore, bucket, inputDir, outputDir string) *Ingestor {
	return &Ingestor{
		extractor:  extractor,
		aggregator: aggregator,
		store:      store,
		bucket:     bucket,
		inputDir:   inputDir,
		outputDir:  outputDir,
	}
}

// Run processes every deal folder under the input directory in name
// order. Folder failures are recorded on the summary and never abort the
// run.
func (in *Ingestor) Run(ctx context.Context, opts IngestOptions) (*Summary, error) {
	summary := NewSummary()

	folders, err := listDealFolders(in.inputDir)
	if err != nil {
		return summary, err
	}

	for _, folderName := range folders {
		if len(opts.Only) > 0 && !opts.Only[folderName] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return summary, eris.Wrap(err, "ingest: canceled")
		}

		dealID := model.DeriveDealID(folderName).String()

		if opts.SkipProcessed {
			ok, err := in.store.Exists(ctx, storage.AggregatedPath(dealID))
			if err != nil {
				summary.AddFailure(dealID, folderName, "", err.Error())
				continue
			}
			if ok {
				zap.L().Info("ingest: already processed, skipping",
					zap.String("deal_id", dealID),
					zap.String("folder", folderName),
				)
				summary.Skipped++
				continue
			}
		}

		if err := in.processFolder(ctx, dealID, folderName, opts); err != nil {
			summary.AddFailure(dealID, folderName, "", err.Error())
			zap.L().Error("ingest: folder failed",
				zap.String("deal_id", dealID),
				zap.String("folder", folderName),
				zap.Error(err),
			)
			continue
		}
		summary.Processed++
		summary.Updated++
	}

	summary.Finished = time.Now()
	summary.Log()
	return summary, nil
}

func (in *Ingestor) processFolder(ctx context.Context, dealID, folderName string, opts IngestOptions) error {
	start := time.Now()
	zap.L().Info("ingest: processing deal folder",
		zap.String("deal_id", dealID),
		zap.String("folder", folderName),
	)

	folderPath := filepath.Join(in.inputDir, folderName)
	files, err := listPDFs(folderPath)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return eris.Errorf("ingest: no pdf documents in %s", folderName)
	}

	agg := &model.AggregatedDeal{
		DealID:     dealID,
		FolderName: folderName,
		Storage: model.StorageSummary{
			Bucket:         in.bucket,
			BasePrefix:     dealID,
			AggregatedJSON: storage.AggregatedPath(dealID),
		},
		CreatedAt: time.Now().UTC(),
	}
	agg.Diag.DocumentsSeen = len(files)

	for _, fileName := range files {
		doc, err := in.processDocument(ctx, dealID, folderName, folderPath, fileName, opts.DryRun)
		if err != nil {
			// The document rides along with its error recorded; the
			// aggregate is built from whatever extracted cleanly.
			agg.Diag.DocumentsFailed++
			if doc.ExtractError == "" {
				doc.ExtractError = eris.Cause(err).Error()
			}
			zap.L().Warn("ingest: document failed",
				zap.String("deal_id", dealID),
				zap.String("document", fileName),
				zap.Error(err),
			)
		} else {
			agg.Diag.DocumentsExtracted++
		}
		agg.Documents = append(agg.Documents, *doc)
	}

	composite, err := in.aggregator.Aggregate(ctx, folderName, agg.Documents, &agg.Diag)
	if err != nil {
		agg.Diag.AddWarning(fmt.Sprintf("aggregation failed: %v", eris.Cause(err)))
		zap.L().Warn("ingest: aggregation failed, persisting without composite",
			zap.String("deal_id", dealID),
			zap.Error(err),
		)
	}
	agg.Composite = composite

	if err := in.persistAggregate(ctx, agg, opts.DryRun); err != nil {
		return err
	}

	zap.L().Info("ingest: deal folder done",
		zap.String("deal_id", dealID),
		zap.String("folder", folderName),
		zap.Int("documents", len(agg.Documents)),
		zap.Int("extracted", agg.Diag.DocumentsExtracted),
		zap.Int("failed", agg.Diag.DocumentsFailed),
		zap.Bool("has_composite", composite != nil),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// documentSidecar is the JSON artifact stored next to each uploaded PDF.
type documentSidecar struct {
	Extraction   *model.ExtractionResult `json:"extraction,omitempty"`
	ExtractError string                  `json:"extract_error,omitempty"`
}

// processDocument extracts, classifies and uploads one PDF. A failed
// extraction still uploads the PDF and an error-bearing sidecar, so the
// document survives in storage with its failure recorded. The returned
// record is always usable even when err is non-nil.
func (in *Ingestor) processDocument(ctx context.Context, dealID, folderName, folderPath, fileName string, dryRun bool) (*model.DocumentRecord, error) {
	localPath := filepath.Join(folderPath, fileName)
	doc := &model.DocumentRecord{
		DealID:      dealID,
		FolderName:  folderName,
		FileName:    fileName,
		LocalPath:   localPath,
		Category:    model.CategoryDeal,
		ContentType: "application/pdf",
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return doc, eris.Wrapf(err, "ingest: read %s", fileName)
	}
	doc.SizeBytes = int64(len(data))

	extraction, extractErr := in.extractor.ExtractDocument(ctx, folderName, fileName, data)
	doc.Extraction = extraction
	var fields map[string]any
	if extraction != nil {
		fields = extraction.Fields
	}
	sidecarPayload := documentSidecar{Extraction: extraction}
	if extractErr != nil {
		doc.ExtractError = eris.Cause(extractErr).Error()
		sidecarPayload.ExtractError = doc.ExtractError
	}

	doc.Category = Classify(
		stringField(fields, "document_type"),
		stringField(fields, "title"),
		fileName,
	)
	doc.StoragePath = storage.DocumentPDFPath(dealID, doc.Category, fileName)
	doc.SidecarPath = storage.DocumentJSONPath(dealID, doc.Category, fileName)

	if dryRun {
		zap.L().Info("ingest: dry-run, skipping upload",
			zap.String("document", fileName),
			zap.String("storage_path", doc.StoragePath),
		)
		return doc, extractErr
	}

	if err := in.store.Upload(ctx, doc.StoragePath, bytes.NewReader(data)); err != nil {
		return doc, eris.Wrapf(err, "ingest: upload %s", fileName)
	}

	sidecar, err := json.MarshalIndent(sidecarPayload, "", "  ")
	if err != nil {
		return doc, eris.Wrapf(err, "ingest: encode sidecar for %s", fileName)
	}
	if err := in.store.Upload(ctx, doc.SidecarPath, bytes.NewReader(sidecar)); err != nil {
		return doc, eris.Wrapf(err, "ingest: upload sidecar for %s", fileName)
	}

	doc.UploadedAt = time.Now().UTC()
	return doc, extractErr
}

// persistAggregate uploads aggregated.json at its canonical path, sweeps
// legacy locations, and mirrors the artifact to the local output dir for
// the import command.
func (in *Ingestor) persistAggregate(ctx context.Context, agg *model.AggregatedDeal, dryRun bool) error {
	payload, err := json.MarshalIndent(agg, "", "  ")
	if err != nil {
		return eris.Wrap(err, "ingest: encode aggregated record")
	}

	if !dryRun {
		canonical := storage.AggregatedPath(agg.DealID)
		storage.RemoveAll(ctx, in.store, storage.AggregatedPathCandidates(agg.DealID)[1:])
		if err := in.store.Upload(ctx, canonical, bytes.NewReader(payload)); err != nil {
			return eris.Wrap(err, "ingest: upload aggregated record")
		}
	}

	if in.outputDir == "" {
		return nil
	}
	if err := os.MkdirAll(in.outputDir, 0o755); err != nil {
		return eris.Wrap(err, "ingest: create output dir")
	}
	outPath := filepath.Join(in.outputDir, fmt.Sprintf("aggregated-%s.json", agg.DealID))
	if err := os.WriteFile(outPath, payload, 0o644); err != nil {
		return eris.Wrap(err, "ingest: write local aggregated file")
	}
	return nil
}

// listDealFolders returns the sorted names of subdirectories under root.
func listDealFolders(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: read input dir %s", root)
	}
	var folders []string
	for _, entry := range entries {
		if entry.IsDir() && !strings.HasPrefix(entry.Name(), ".") {
			folders = append(folders, entry.Name())
		}
	}
	sort.Strings(folders)
	return folders, nil
}

// listPDFs returns the sorted PDF file names directly inside dir.
func listPDFs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: read folder %s", dir)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), ".pdf") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// stringField reads a string value out of a generic field map.
func stringField(fields map[string]any, key string) string {
	if fields == nil {
		return ""
	}
	s, _ := fields[key].(string)
	return s
}
