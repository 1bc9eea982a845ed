package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Validate checks that the configuration carries everything the named
// command mode needs. Modes: "ingest", "recategorize", "import",
// "migrate", "serve", "report".
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "ingest":
		if c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required")
		}
		if c.Ingest.InputDir == "" {
			problems = append(problems, "ingest.input_dir is required")
		}
		problems = append(problems, c.storageProblems()...)
		problems = append(problems, c.ingestBoundsProblems()...)
	case "recategorize":
		problems = append(problems, c.storageProblems()...)
		problems = append(problems, c.storeProblems()...)
	case "import", "migrate":
		problems = append(problems, c.storeProblems()...)
	case "report":
		if c.Ingest.OutputDir == "" {
			problems = append(problems, "ingest.output_dir is required")
		}
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
		problems = append(problems, c.storeProblems()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New(fmt.Sprintf("config: %s", strings.Join(problems, "; ")))
	}
	return nil
}

func (c *Config) storeProblems() []string {
	var problems []string
	switch c.Store.Driver {
	case "postgres", "sqlite":
	default:
		problems = append(problems, fmt.Sprintf("store.driver %q is not supported", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required")
	}
	return problems
}

func (c *Config) storageProblems() []string {
	var problems []string
	switch c.Storage.Backend {
	case "local":
		if c.Storage.Root == "" {
			problems = append(problems, "storage.root is required for the local backend")
		}
	case "ftp":
		if c.Storage.FTP.Addr == "" {
			problems = append(problems, "storage.ftp.addr is required for the ftp backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("storage.backend %q is not supported", c.Storage.Backend))
	}
	return problems
}

func (c *Config) ingestBoundsProblems() []string {
	var problems []string
	if c.Ingest.ChunkSize < 1 {
		problems = append(problems, "ingest.chunk_size must be >= 1")
	}
	if c.Ingest.MaxAttempts < 1 {
		problems = append(problems, "ingest.max_attempts must be >= 1")
	}
	if c.Anthropic.MaxTokens < 1 || c.Anthropic.MaxTokens > c.Anthropic.MaxTokensCap {
		problems = append(problems, "anthropic.max_tokens must be between 1 and anthropic.max_tokens_cap")
	}
	return problems
}
