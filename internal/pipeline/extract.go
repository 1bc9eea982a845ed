package pipeline

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fastlease/deal-ingest/internal/config"
	"github.com/fastlease/deal-ingest/internal/model"
	"github.com/fastlease/deal-ingest/pkg/anthropic"
)

// maxTokensCap bounds the retry token budget when the config leaves the
// cap unset.
const maxTokensCap = 8192

// Extractor turns PDF documents and aggregation prompts into structured
// JSON via the AI service. All calls share one rate limiter and one
// bounded retry policy.
type Extractor struct {
	client       anthropic.Client
	limiter      *rate.Limiter
	system       []anthropic.SystemBlock
	prompts      config.Prompts
	model        string
	maxTokens    int64
	tokensCap    int64
	maxAttempts  int
	snippetLimit int
}

// NewExtractor builds an Extractor from configuration.
func NewExtractor(client anthropic.Client, ai config.AnthropicConfig, ing config.IngestConfig, prompts config.Prompts) *Extractor {
	limit := rate.Inf
	if ai.RequestsPerSec > 0 {
		limit = rate.Limit(ai.RequestsPerSec)
	}

	maxTokens := ai.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	tokensCap := ai.MaxTokensCap
	if tokensCap <= 0 {
		tokensCap = maxTokensCap
	}
	attempts := ing.MaxAttempts
	if attempts <= 0 {
		attempts = 2
	}

	return &Extractor{
		client:       client,
		limiter:      rate.NewLimiter(limit, 1),
		system:       anthropic.BuildCachedSystemBlocks(prompts.System),
		prompts:      prompts,
		model:        ai.Model,
		maxTokens:    maxTokens,
		tokensCap:    tokensCap,
		maxAttempts:  attempts,
		snippetLimit: ing.SnippetLimit,
	}
}

// ExtractDocument asks the model to pull structured fields out of one PDF.
// A failed extraction is reported through the error return; callers
// record it on the document and keep going.
func (e *Extractor) ExtractDocument(ctx context.Context, folderName, fileName string, pdf []byte) (*model.ExtractionResult, error) {
	prompt := strings.NewReplacer(
		"{deal_folder}", folderName,
		"{document_name}", fileName,
	).Replace(e.prompts.Document)

	docs := []anthropic.DocumentInput{{Name: fileName, Data: pdf}}
	return e.completeJSON(ctx, prompt, docs, "document "+fileName)
}

// Complete runs a prompt-only JSON call under the same retry policy. The
// aggregation stage uses it for chunk and merge prompts.
func (e *Extractor) Complete(ctx context.Context, prompt, label string) (*model.ExtractionResult, error) {
	return e.completeJSON(ctx, prompt, nil, label)
}

// completeJSON runs up to maxAttempts calls. A retry fires when the call
// errors, the answer is truncated by the token limit, the body is empty,
// or the body does not decode as a JSON object. The retry prompt carries
// an explicit JSON-only reminder and a temporarily raised token budget.
func (e *Extractor) completeJSON(ctx context.Context, prompt string, docs []anthropic.DocumentInput, label string) (*model.ExtractionResult, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, eris.Errorf("extract: empty prompt for %s", label)
	}

	result := &model.ExtractionResult{}
	maxTokens := e.maxTokens
	var lastErr error

	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		result.Attempts = attempt

		attemptPrompt := prompt
		if attempt > 1 {
			attemptPrompt += e.prompts.RetrySuffix
			maxTokens = maxTokens + maxTokens/2
			if maxTokens > e.tokensCap {
				maxTokens = e.tokensCap
			}
		}

		if err := e.limiter.Wait(ctx); err != nil {
			return result, eris.Wrap(err, "extract: rate limiter")
		}

		resp, err := e.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     e.model,
			MaxTokens: maxTokens,
			System:    e.system,
			Messages: []anthropic.Message{
				{Role: "user", Content: attemptPrompt, Documents: docs},
			},
		})
		if err != nil {
			lastErr = err
			zap.L().Warn("extract: call failed",
				zap.String("target", label),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			continue
		}

		resp.Usage.LogCost(e.model, "extract")

		text := resp.Text()
		if resp.Truncated() {
			result.Truncated = true
			result.RawSnippets = append(result.RawSnippets, snippet(text, e.snippetLimit))
			lastErr = eris.Errorf("answer truncated at %d output tokens", resp.Usage.OutputTokens)
			zap.L().Warn("extract: answer truncated",
				zap.String("target", label),
				zap.Int("attempt", attempt),
				zap.String("stop_reason", resp.StopReason),
				zap.Int64("output_tokens", resp.Usage.OutputTokens),
				zap.String("snippet", snippet(text, e.snippetLimit)),
			)
			continue
		}

		fields, err := parseJSONObject(text)
		if err != nil {
			result.RawSnippets = append(result.RawSnippets, snippet(text, e.snippetLimit))
			lastErr = err
			zap.L().Warn("extract: unparsable answer",
				zap.String("target", label),
				zap.Int("attempt", attempt),
				zap.String("stop_reason", resp.StopReason),
				zap.String("snippet", snippet(text, e.snippetLimit)),
				zap.Error(err),
			)
			continue
		}

		result.Fields = fields
		return result, nil
	}

	return result, eris.Wrapf(lastErr, "extract: %s failed after %d attempts", label, result.Attempts)
}
