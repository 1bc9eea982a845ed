package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/fastlease/deal-ingest/internal/model"
)

// chunkResult is one successfully analyzed document group.
type chunkResult struct {
	index     int
	documents []string
	fields    map[string]any
}

// Aggregator merges per-document extractions into one composite field
// set for the deal. Documents are analyzed in fixed-size groups; multiple
// group results are merged by one further call.
type Aggregator struct {
	extractor *Extractor
	chunkSize int
}

// NewAggregator builds an Aggregator sharing the given extractor.
func NewAggregator(extractor *Extractor, chunkSize int) *Aggregator {
	if chunkSize < 1 {
		chunkSize = 4
	}
	return &Aggregator{extractor: extractor, chunkSize: chunkSize}
}

// Aggregate produces the composite field set for a deal folder. Failure
// is reported through the error return with diagnostics already recorded;
// callers persist the aggregated record either way.
func (a *Aggregator) Aggregate(ctx context.Context, folderName string, docs []model.DocumentRecord, diag *model.RunDiagnostics) (map[string]any, error) {
	var extracted []model.DocumentRecord
	for _, doc := range docs {
		if doc.Extraction.Succeeded() {
			extracted = append(extracted, doc)
		}
	}
	if len(extracted) == 0 {
		return nil, eris.New("aggregate: no documents with usable extractions")
	}

	var results []chunkResult
	chunks := chunkDocuments(extracted, a.chunkSize)
	for i, chunk := range chunks {
		fields, err := a.analyzeChunk(ctx, folderName, i+1, chunk)
		if err != nil {
			diag.AddWarning(fmt.Sprintf("chunk %d/%d failed: %v", i+1, len(chunks), eris.Cause(err)))
			zap.L().Warn("aggregate: chunk failed",
				zap.String("folder", folderName),
				zap.Int("chunk", i+1),
				zap.Int("chunks", len(chunks)),
				zap.Error(err),
			)
			continue
		}
		names := make([]string, len(chunk))
		for j, doc := range chunk {
			names[j] = doc.FileName
		}
		results = append(results, chunkResult{index: i + 1, documents: names, fields: fields})
	}

	if len(results) == 0 {
		return nil, eris.Errorf("aggregate: all %d chunks failed", len(chunks))
	}
	diag.ChunksMerged = len(results)

	if len(results) == 1 {
		return results[0].fields, nil
	}

	merged, err := a.mergeChunks(ctx, folderName, results)
	if err != nil {
		// First successful chunk stands in for the merge.
		diag.MergeFallback = true
		diag.AddWarning(fmt.Sprintf("merge failed, using chunk %d: %v", results[0].index, eris.Cause(err)))
		zap.L().Warn("aggregate: merge failed, falling back to first chunk",
			zap.String("folder", folderName),
			zap.Int("chunk", results[0].index),
			zap.Error(err),
		)
		return results[0].fields, nil
	}
	return merged, nil
}

func (a *Aggregator) analyzeChunk(ctx context.Context, folderName string, index int, chunk []model.DocumentRecord) (map[string]any, error) {
	var summary, analysis []string
	for _, doc := range chunk {
		summary = append(summary, fmt.Sprintf("- %s (size=%d)", doc.FileName, doc.SizeBytes))
		encoded, err := json.MarshalIndent(map[string]any{
			"filename":    doc.FileName,
			"recognition": doc.Extraction.Fields,
		}, "", "  ")
		if err != nil {
			return nil, eris.Wrapf(err, "aggregate: encode %s", doc.FileName)
		}
		analysis = append(analysis, string(encoded))
	}

	prompt := strings.NewReplacer(
		"{deal_folder}", folderName,
		"{documents_summary}", strings.Join(summary, "\n"),
		"{documents_analysis}", strings.Join(analysis, "\n"),
	).Replace(a.extractor.prompts.Chunk)

	result, err := a.extractor.Complete(ctx, prompt, fmt.Sprintf("chunk %d", index))
	if err != nil {
		return nil, err
	}
	return result.Fields, nil
}

func (a *Aggregator) mergeChunks(ctx context.Context, folderName string, results []chunkResult) (map[string]any, error) {
	var summary, analysis []string
	for _, cr := range results {
		summary = append(summary, fmt.Sprintf("- Chunk %d: %s", cr.index, strings.Join(cr.documents, ", ")))
		encoded, err := json.MarshalIndent(map[string]any{
			"chunk_index": cr.index,
			"documents":   cr.documents,
			"analysis":    cr.fields,
		}, "", "  ")
		if err != nil {
			return nil, eris.Wrapf(err, "aggregate: encode chunk %d", cr.index)
		}
		analysis = append(analysis, string(encoded))
	}

	prompt := strings.NewReplacer(
		"{deal_folder}", folderName,
		"{chunks_summary}", strings.Join(summary, "\n"),
		"{chunks_analysis}", strings.Join(analysis, "\n"),
	).Replace(a.extractor.prompts.Merge)

	result, err := a.extractor.Complete(ctx, prompt, "merge")
	if err != nil {
		return nil, err
	}
	return result.Fields, nil
}

// chunkDocuments splits docs into groups of at most size, preserving
// order.
func chunkDocuments(docs []model.DocumentRecord, size int) [][]model.DocumentRecord {
	var chunks [][]model.DocumentRecord
	for start := 0; start < len(docs); start += size {
		end := start + size
		if end > len(docs) {
			end = len(docs)
		}
		chunks = append(chunks, docs[start:end])
	}
	return chunks
}
