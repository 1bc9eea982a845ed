package anthropic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockClient is a testify mock of Client.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*MessageResponse), args.Error(1)
}

func TestMessageResponse_Truncated(t *testing.T) {
	assert.False(t, (&MessageResponse{StopReason: "end_turn"}).Truncated())
	assert.True(t, (&MessageResponse{StopReason: StopReasonMaxTokens}).Truncated())

	var nilResp *MessageResponse
	assert.False(t, nilResp.Truncated())
}

func TestMessageResponse_Text(t *testing.T) {
	resp := &MessageResponse{
		Content: []ContentBlock{
			{Type: "text", Text: `{"name":`},
			{Type: "thinking", Text: "ignored"},
			{Type: "text", Text: `"Ahmed"}`},
		},
	}
	assert.Equal(t, `{"name":"Ahmed"}`, resp.Text())
}

func TestEstimateCost(t *testing.T) {
	usage := TokenUsage{
		InputTokens:  1_000_000,
		OutputTokens: 1_000_000,
	}

	cost := usage.EstimateCost("claude-haiku-4-5-20251001")
	assert.InDelta(t, 4.80, cost, 0.001)

	assert.Zero(t, usage.EstimateCost("unknown-model"))
}

func TestMockClient(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	req := MessageRequest{
		Model:     "claude-haiku-4-5-20251001",
		MaxTokens: 2048,
		Messages:  []Message{{Role: "user", Content: "Extract fields."}},
	}
	mc.On("CreateMessage", ctx, req).Return(&MessageResponse{
		ID:         "msg_1",
		Content:    []ContentBlock{{Type: "text", Text: "{}"}},
		StopReason: "end_turn",
	}, nil)

	resp, err := mc.CreateMessage(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "msg_1", resp.ID)

	mc.AssertExpectations(t)
}
