package config

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Prompts holds the prompt pack used by the extraction pipeline. Templates
// use {placeholder} markers filled in by the pipeline.
type Prompts struct {
	System      string `yaml:"system"`
	Document    string `yaml:"document"`
	Chunk       string `yaml:"chunk"`
	Merge       string `yaml:"merge"`
	RetrySuffix string `yaml:"retry_suffix"`
}

// DefaultPrompts returns the built-in prompt pack.
func DefaultPrompts() Prompts {
	return Prompts{
		System: "You are a document analyst for a vehicle leasing platform. " +
			"You read scanned deal documents (passports, Emirates IDs, vehicle registrations, " +
			"lease agreements, invoices) and extract every field you can identify. " +
			"Respond strictly with valid JSON. Do not include explanations or markdown.",
		Document: "Deal folder: {deal_folder}\nDocument: {document_name}\n\n" +
			"Extract all identifiable fields from the attached document as a flat JSON object. " +
			"Use snake_case keys. Include client details, vehicle details, and financial terms " +
			"wherever the document shows them. Omit fields you cannot read.",
		Chunk: "Deal folder: {deal_folder}\nDocuments in this group:\n{documents_summary}\n\n" +
			"Per-document extraction results (JSON):\n{documents_analysis}\n\n" +
			"Combine these results into a single JSON object describing the client, the vehicle " +
			"and the lease terms. Prefer values from identity documents for the client and from " +
			"registration documents for the vehicle.",
		Merge: "You are an assistant that combines multiple group analyses into a final " +
			"comprehensive leasing data aggregation.\n\nDeal folder: {deal_folder}\n" +
			"Group summaries:\n{chunks_summary}\nGroup analyses (JSON):\n{chunks_analysis}\n\n" +
			"Cross-reference and merge data from all groups to fill in gaps and resolve " +
			"conflicts. Respond strictly with valid JSON matching the same schema. " +
			"Do not include explanations or markdown.",
		RetrySuffix: "\n\nThe previous attempt failed or the answer was cut off. " +
			"Repeat the answer, strictly as valid JSON with no extra commentary.",
	}
}

// LoadPrompts reads a prompt pack from a YAML file, falling back to the
// defaults for any template the file leaves empty. An empty path returns
// the defaults unchanged.
func LoadPrompts(path string) (Prompts, error) {
	p := DefaultPrompts()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return p, eris.Wrapf(err, "config: read prompts file %s", path)
	}

	var override Prompts
	if err := yaml.Unmarshal(data, &override); err != nil {
		return p, eris.Wrapf(err, "config: parse prompts file %s", path)
	}

	if override.System != "" {
		p.System = override.System
	}
	if override.Document != "" {
		p.Document = override.Document
	}
	if override.Chunk != "" {
		p.Chunk = override.Chunk
	}
	if override.Merge != "" {
		p.Merge = override.Merge
	}
	if override.RetrySuffix != "" {
		p.RetrySuffix = override.RetrySuffix
	}

	return p, nil
}
