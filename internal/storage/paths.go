package storage

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/fastlease/deal-ingest/internal/model"
)

var slugPattern = regexp.MustCompile(`[^0-9a-zA-Z]+`)

// Slugify collapses every run of non-alphanumeric characters in a file
// name to a single underscore. The empty input maps to "document" so a
// path component is never empty.
func Slugify(name string) string {
	out := slugPattern.ReplaceAllString(name, "_")
	if out == "" {
		return "document"
	}
	return out
}

// NormalizePath strips leading and trailing slashes and collapses
// repeated slashes. Returns "" for "".
func NormalizePath(p string) string {
	p = strings.Trim(p, "/")
	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}
	return p
}

// DocumentPDFPath returns the canonical storage path of a document's PDF.
func DocumentPDFPath(dealID string, category model.Category, fileName string) string {
	return fmt.Sprintf("%s/%s/%s.pdf", dealID, category, Slugify(fileName))
}

// DocumentJSONPath returns the canonical storage path of a document's
// extraction sidecar.
func DocumentJSONPath(dealID string, category model.Category, fileName string) string {
	return fmt.Sprintf("%s/%s/%s.json", dealID, category, Slugify(fileName))
}

// AggregatedPath returns the canonical storage path of a deal's
// aggregated artifact.
func AggregatedPath(dealID string) string {
	return fmt.Sprintf("%s/aggregated.json", dealID)
}

// AggregatedPathCandidates lists every location an aggregated artifact
// may live under, canonical first. Older pipeline revisions nested deals
// under extra prefixes; reads walk all of them.
func AggregatedPathCandidates(dealID string) []string {
	return []string{
		fmt.Sprintf("%s/aggregated.json", dealID),
		fmt.Sprintf("documents/%s/aggregated.json", dealID),
		fmt.Sprintf("deals/%s/aggregated.json", dealID),
		fmt.Sprintf("deals/documents/%s/aggregated.json", dealID),
		fmt.Sprintf("deals/deals/%s/aggregated.json", dealID),
		fmt.Sprintf("deals/deals/documents/%s/aggregated.json", dealID),
	}
}

// legacyPrefixes are bucket prefixes older layouts prepended to object
// paths.
var legacyPrefixes = []string{
	"deal-documents/",
	"deals/deals/documents/",
	"deals/deals/",
	"deals/documents/",
	"deals/",
	"documents/",
}

// DocumentPathCandidates lists every location a document object may live
// under given its currently recorded path. The recorded path comes first,
// then legacy-prefix-stripped variants, then the flat historical layouts.
// The ext is "pdf" or "json". Returns nil when the recorded path already
// matches the expected canonical path.
func DocumentPathCandidates(current, expected, dealID, slug, ext string) []string {
	current = NormalizePath(current)
	if current == "" || current == NormalizePath(expected) {
		return nil
	}

	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		p = NormalizePath(p)
		if p == "" || seen[p] {
			return
		}
		seen[p] = true
		out = append(out, p)
	}

	add(current)
	for _, prefix := range legacyPrefixes {
		add(strings.TrimPrefix(current, prefix))
	}
	add(fmt.Sprintf("%s/%s.%s", dealID, slug, ext))
	add(fmt.Sprintf("documents/%s/%s.%s", dealID, slug, ext))
	add(fmt.Sprintf("deals/%s/%s.%s", dealID, slug, ext))
	add(fmt.Sprintf("deals/%s/documents/%s.%s", dealID, slug, ext))

	return out
}
