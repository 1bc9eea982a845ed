package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastlease/deal-ingest/internal/model"
	"github.com/fastlease/deal-ingest/internal/storage"
)

func newTestRecategorizer(t *testing.T) (*Recategorizer, *storage.LocalStore, string) {
	t.Helper()
	outputDir := t.TempDir()
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	return NewRecategorizer(store, "deal-documents", outputDir), store, outputDir
}

// legacyAggregate builds an aggregated record the way an older pipeline
// revision wrote it: flat paths under a deals/ prefix and every document
// filed under the deal category.
func legacyAggregate(dealID string) *model.AggregatedDeal {
	return &model.AggregatedDeal{
		DealID:     dealID,
		FolderName: "LEGACY_DEAL",
		Composite: map[string]any{
			"vehicle": map[string]any{"vin": "JTDBE32K123456789"},
		},
		Documents: []model.DocumentRecord{
			{
				DealID:      dealID,
				FileName:    "passport.pdf",
				Category:    model.CategoryDeal,
				StoragePath: "deals/" + dealID + "/passport_pdf.pdf",
				SidecarPath: "deals/" + dealID + "/passport_pdf.json",
				Extraction: &model.ExtractionResult{
					Fields:   map[string]any{"document_type": "Passport"},
					Attempts: 1,
				},
			},
		},
		Storage: model.StorageSummary{
			Bucket:         "deal-documents",
			BasePrefix:     "deals/" + dealID,
			AggregatedJSON: "deals/" + dealID + "/aggregated.json",
		},
	}
}

func uploadJSON(t *testing.T, store storage.ObjectStore, path string, v any) {
	t.Helper()
	payload, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, store.Upload(context.Background(), path, bytes.NewReader(payload)))
}

func TestRecategorize_LegacyLayout(t *testing.T) {
	r, store, outputDir := newTestRecategorizer(t)
	ctx := context.Background()

	dealID := model.DeriveDealID("LEGACY_DEAL").String()
	agg := legacyAggregate(dealID)
	uploadJSON(t, store, "deals/"+dealID+"/aggregated.json", agg)
	require.NoError(t, store.Upload(ctx, "deals/"+dealID+"/passport_pdf.pdf", bytes.NewReader([]byte("%PDF"))))
	require.NoError(t, store.Upload(ctx, "deals/"+dealID+"/passport_pdf.json", bytes.NewReader([]byte("{}"))))

	result, err := r.Process(ctx, dealID, RecatOptions{})
	require.NoError(t, err)
	assert.True(t, result.Updated)
	assert.True(t, result.HasVIN)
	assert.Equal(t, filepath.Join(outputDir, "aggregated-"+dealID+".json"), result.LocalPath)

	// Objects moved to the canonical category layout.
	for _, path := range []string{
		dealID + "/client/passport_pdf.pdf",
		dealID + "/client/passport_pdf.json",
		dealID + "/aggregated.json",
	} {
		ok, err := store.Exists(ctx, path)
		require.NoError(t, err)
		assert.True(t, ok, path)
	}
	for _, path := range []string{
		"deals/" + dealID + "/passport_pdf.pdf",
		"deals/" + dealID + "/aggregated.json",
	} {
		ok, err := store.Exists(ctx, path)
		require.NoError(t, err)
		assert.False(t, ok, path)
	}

	// The rewritten record points at the canonical layout.
	data, err := store.Download(ctx, storage.AggregatedPath(dealID))
	require.NoError(t, err)
	var rewritten model.AggregatedDeal
	require.NoError(t, json.Unmarshal(data, &rewritten))
	require.Len(t, rewritten.Documents, 1)
	assert.Equal(t, model.CategoryClient, rewritten.Documents[0].Category)
	assert.Equal(t, dealID+"/client/passport_pdf.pdf", rewritten.Documents[0].StoragePath)
	assert.Equal(t, dealID+"/client/passport_pdf.json", rewritten.Documents[0].SidecarPath)
	assert.Equal(t, dealID, rewritten.Storage.BasePrefix)
	assert.Equal(t, storage.AggregatedPath(dealID), rewritten.Storage.AggregatedJSON)
}

func TestRecategorize_AlreadyCanonical(t *testing.T) {
	r, store, outputDir := newTestRecategorizer(t)
	ctx := context.Background()

	dealID := model.DeriveDealID("CANONICAL_DEAL").String()
	agg := &model.AggregatedDeal{
		DealID:     dealID,
		FolderName: "CANONICAL_DEAL",
		Documents: []model.DocumentRecord{
			{
				DealID:      dealID,
				FileName:    "passport.pdf",
				Category:    model.CategoryClient,
				StoragePath: storage.DocumentPDFPath(dealID, model.CategoryClient, "passport.pdf"),
				SidecarPath: storage.DocumentJSONPath(dealID, model.CategoryClient, "passport.pdf"),
				Extraction: &model.ExtractionResult{
					Fields:   map[string]any{"document_type": "Passport"},
					Attempts: 1,
				},
			},
		},
		Storage: model.StorageSummary{
			Bucket:         "deal-documents",
			BasePrefix:     dealID,
			AggregatedJSON: storage.AggregatedPath(dealID),
		},
	}
	uploadJSON(t, store, storage.AggregatedPath(dealID), agg)

	result, err := r.Process(ctx, dealID, RecatOptions{})
	require.NoError(t, err)
	assert.False(t, result.Updated)
	assert.False(t, result.HasVIN)

	// The local mirror is still refreshed for the importer.
	_, err = os.Stat(filepath.Join(outputDir, "aggregated-"+dealID+".json"))
	require.NoError(t, err)
}

func TestRecategorize_DryRunMovesNothing(t *testing.T) {
	r, store, _ := newTestRecategorizer(t)
	ctx := context.Background()

	dealID := model.DeriveDealID("LEGACY_DEAL").String()
	uploadJSON(t, store, "deals/"+dealID+"/aggregated.json", legacyAggregate(dealID))
	require.NoError(t, store.Upload(ctx, "deals/"+dealID+"/passport_pdf.pdf", bytes.NewReader([]byte("%PDF"))))

	result, err := r.Process(ctx, dealID, RecatOptions{DryRun: true})
	require.NoError(t, err)
	assert.True(t, result.Updated)
	assert.Empty(t, result.LocalPath)

	// Nothing actually moved or rewritten.
	ok, err := store.Exists(ctx, "deals/"+dealID+"/passport_pdf.pdf")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = store.Exists(ctx, storage.AggregatedPath(dealID))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecategorize_LocalFallback(t *testing.T) {
	r, _, outputDir := newTestRecategorizer(t)
	ctx := context.Background()

	dealID := model.DeriveDealID("LOCAL_ONLY_DEAL").String()
	agg := &model.AggregatedDeal{
		DealID:     dealID,
		FolderName: "LOCAL_ONLY_DEAL",
		Storage: model.StorageSummary{
			Bucket:         "deal-documents",
			BasePrefix:     dealID,
			AggregatedJSON: storage.AggregatedPath(dealID),
		},
	}
	payload, err := json.Marshal(agg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(outputDir, "aggregated-"+dealID+".json"), payload, 0o644))

	result, err := r.Process(ctx, dealID, RecatOptions{})
	require.NoError(t, err)
	assert.False(t, result.Updated)
	assert.False(t, result.HasVIN)
}

func TestRecategorize_MissingEverywhere(t *testing.T) {
	r, _, _ := newTestRecategorizer(t)

	_, err := r.Process(context.Background(), "no-such-deal", RecatOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
