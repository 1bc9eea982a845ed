package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/fastlease/deal-ingest/internal/model"
)

// ReportRow is one deal's line in the workbook.
type ReportRow struct {
	DealID     string
	FolderName string
	ClientName string
	VehicleVIN string
	Documents  int
	Extracted  int
	Failed     int
	Warnings   int
	Bucket     string
}

// LoadReportRows reads every aggregated artifact in dir and projects it
// into report rows, sorted by folder name.
func LoadReportRows(dir string) ([]ReportRow, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "aggregated-*.json"))
	if err != nil {
		return nil, eris.Wrap(err, "report: list artifacts")
	}

	rows := make([]ReportRow, 0, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrapf(err, "report: read %s", path)
		}
		var agg model.AggregatedDeal
		if err := json.Unmarshal(data, &agg); err != nil {
			return nil, eris.Wrapf(err, "report: parse %s", path)
		}
		rows = append(rows, reportRow(&agg))
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].FolderName < rows[j].FolderName })
	return rows, nil
}

func reportRow(agg *model.AggregatedDeal) ReportRow {
	row := ReportRow{
		DealID:     agg.DealID,
		FolderName: agg.FolderName,
		Documents:  agg.Diag.DocumentsSeen,
		Extracted:  agg.Diag.DocumentsExtracted,
		Failed:     agg.Diag.DocumentsFailed,
		Warnings:   len(agg.Diag.Warnings),
		Bucket:     agg.Storage.Bucket,
	}
	if client, ok := agg.Composite["client"].(map[string]any); ok {
		row.ClientName = compositeString(client, "full_name", "name")
	}
	if vehicle, ok := agg.Composite["vehicle"].(map[string]any); ok {
		row.VehicleVIN = compositeString(vehicle, "vin", "chassis_number")
	}
	return row
}

func compositeString(src map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := src[key].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

var reportHeader = []string{
	"Deal ID", "Folder", "Client", "VIN",
	"Documents", "Extracted", "Failed", "Warnings", "Bucket",
}

// WriteReport writes the deals workbook: a Deals sheet with one row per
// aggregated artifact and a Totals sheet with run-wide counts.
func WriteReport(rows []ReportRow, outPath string) error {
	f := xlsx.NewFile()

	deals, err := f.AddSheet("Deals")
	if err != nil {
		return eris.Wrap(err, "report: add deals sheet")
	}
	header := deals.AddRow()
	for _, title := range reportHeader {
		header.AddCell().Value = title
	}
	for _, row := range rows {
		r := deals.AddRow()
		r.AddCell().Value = row.DealID
		r.AddCell().Value = row.FolderName
		r.AddCell().Value = row.ClientName
		r.AddCell().Value = row.VehicleVIN
		r.AddCell().SetInt(row.Documents)
		r.AddCell().SetInt(row.Extracted)
		r.AddCell().SetInt(row.Failed)
		r.AddCell().SetInt(row.Warnings)
		r.AddCell().Value = row.Bucket
	}

	totals, err := f.AddSheet("Totals")
	if err != nil {
		return eris.Wrap(err, "report: add totals sheet")
	}
	var docs, extracted, failed, withVIN int
	for _, row := range rows {
		docs += row.Documents
		extracted += row.Extracted
		failed += row.Failed
		if row.VehicleVIN != "" {
			withVIN++
		}
	}
	addTotal := func(label string, value int) {
		r := totals.AddRow()
		r.AddCell().Value = label
		r.AddCell().SetInt(value)
	}
	addTotal("Deals", len(rows))
	addTotal("Deals with VIN", withVIN)
	addTotal("Documents seen", docs)
	addTotal("Documents extracted", extracted)
	addTotal("Documents failed", failed)

	if err := f.Save(outPath); err != nil {
		return eris.Wrapf(err, "report: save %s", outPath)
	}
	return nil
}

// BuildReport loads artifacts from dir and writes the workbook in one
// step.
func BuildReport(dir, outPath string) (int, error) {
	rows, err := LoadReportRows(dir)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, eris.New(fmt.Sprintf("report: no aggregated artifacts under %s", dir))
	}
	if err := WriteReport(rows, outPath); err != nil {
		return 0, err
	}
	return len(rows), nil
}
