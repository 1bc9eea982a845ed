package pipeline

import (
	"context"
	"strings"

	"github.com/stretchr/testify/mock"

	"github.com/fastlease/deal-ingest/internal/config"
	"github.com/fastlease/deal-ingest/pkg/anthropic"
)

// --- Anthropic Mock ---

type mockAnthropicClient struct {
	mock.Mock
}

func (m *mockAnthropicClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

var _ anthropic.Client = (*mockAnthropicClient)(nil)

// textResponse builds a successful response carrying one text block.
func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		ID:         "msg_test",
		Content:    []anthropic.ContentBlock{{Type: "text", Text: text}},
		StopReason: "end_turn",
	}
}

// truncatedResponse builds a response cut off by the output token limit.
func truncatedResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		ID:         "msg_trunc",
		Content:    []anthropic.ContentBlock{{Type: "text", Text: text}},
		StopReason: anthropic.StopReasonMaxTokens,
		Usage:      anthropic.TokenUsage{OutputTokens: 4096},
	}
}

// testExtractor builds an Extractor with test defaults and no rate limit.
func testExtractor(client anthropic.Client) *Extractor {
	return NewExtractor(client,
		config.AnthropicConfig{
			Model:        "claude-haiku-4-5-20251001",
			MaxTokens:    4096,
			MaxTokensCap: 8192,
		},
		config.IngestConfig{MaxAttempts: 2, SnippetLimit: 800},
		config.DefaultPrompts(),
	)
}

// promptContains matches a CreateMessage request whose user prompt
// contains every given substring.
func promptContains(subs ...string) any {
	return mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		if len(req.Messages) == 0 {
			return false
		}
		content := req.Messages[0].Content
		for _, sub := range subs {
			if !strings.Contains(content, sub) {
				return false
			}
		}
		return true
	})
}
