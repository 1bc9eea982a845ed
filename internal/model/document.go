package model

import "time"

// DocumentRecord is one source document inside a deal folder, together
// with everything the pipeline learned about it.
type DocumentRecord struct {
	DealID       string    `json:"deal_id"`
	FolderName   string    `json:"folder_name"`
	FileName     string    `json:"file_name"`
	LocalPath    string    `json:"local_path,omitempty"`
	Category     Category  `json:"category"`
	StoragePath  string    `json:"storage_path"`
	SidecarPath  string    `json:"sidecar_path,omitempty"`
	SizeBytes    int64     `json:"size_bytes"`
	ContentType  string    `json:"content_type,omitempty"`
	UploadedAt   time.Time `json:"uploaded_at,omitempty"`

	Extraction   *ExtractionResult `json:"extraction,omitempty"`
	ExtractError string            `json:"extract_error,omitempty"`
}

// ExtractionResult holds the structured JSON pulled out of a single
// document plus diagnostics about how the model behaved getting there.
type ExtractionResult struct {
	Fields      map[string]any `json:"fields"`
	Attempts    int            `json:"attempts"`
	Truncated   bool           `json:"truncated"`
	RawSnippets []string       `json:"raw_snippets,omitempty"`
}

// Succeeded reports whether the extraction yielded usable fields.
func (r *ExtractionResult) Succeeded() bool {
	return r != nil && len(r.Fields) > 0
}
