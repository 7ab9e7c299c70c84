package openai

import (
	"context"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockChatAPI struct {
	mock.Mock
}

func (m *MockChatAPI) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(openai.ChatCompletionResponse), args.Error(1)
}

func completion(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content}},
		},
	}
}

func TestChatClient_Complete(t *testing.T) {
	api := new(MockChatAPI)
	client := NewChatClient(api, ChatConfig{Model: "llama-3.3-70b-versatile", Temperature: 0.7, MaxTokens: 256})

	ctx := context.Background()
	api.On("CreateChatCompletion", ctx, mock.MatchedBy(func(req openai.ChatCompletionRequest) bool {
		return req.Model == "llama-3.3-70b-versatile" &&
			req.Temperature == 0.7 &&
			req.MaxTokens == 256 &&
			len(req.Messages) == 1 &&
			req.Messages[0].Role == openai.ChatMessageRoleUser &&
			req.Messages[0].Content == "the prompt"
	})).Return(completion("  The answer.\n"), nil)

	answer, err := client.Complete(ctx, "the prompt")
	require.NoError(t, err)
	assert.Equal(t, "  The answer.\n", answer)
	api.AssertExpectations(t)
}

func TestChatClient_Complete_ZeroTemperature(t *testing.T) {
	api := new(MockChatAPI)
	api.On("CreateChatCompletion", mock.Anything, mock.MatchedBy(func(req openai.ChatCompletionRequest) bool {
		return req.Temperature > 0 && req.Temperature < 1e-6
	})).Return(completion("deterministic"), nil)

	answer, err := NewChatClient(api, ChatConfig{Temperature: 0}).Complete(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "deterministic", answer)
	api.AssertExpectations(t)
}

func TestChatClient_Complete_DefaultModel(t *testing.T) {
	client := NewChatClient(new(MockChatAPI), ChatConfig{})
	assert.Equal(t, DefaultChatModel, client.Model())
}

func TestChatClient_Complete_Empty(t *testing.T) {
	tests := []struct {
		name string
		resp openai.ChatCompletionResponse
	}{
		{"no choices", openai.ChatCompletionResponse{}},
		{"blank content", completion("   ")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := new(MockChatAPI)
			api.On("CreateChatCompletion", mock.Anything, mock.Anything).Return(tt.resp, nil)

			_, err := NewChatClient(api, ChatConfig{}).Complete(context.Background(), "p")
			assert.ErrorIs(t, err, ErrEmptyCompletion)
		})
	}
}

func TestChatClient_Complete_APIError(t *testing.T) {
	api := new(MockChatAPI)
	apiErr := &openai.APIError{HTTPStatusCode: 503, Message: "overloaded"}
	api.On("CreateChatCompletion", mock.Anything, mock.Anything).Return(openai.ChatCompletionResponse{}, apiErr)

	_, err := NewChatClient(api, ChatConfig{}).Complete(context.Background(), "p")
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.Contains(t, err.Error(), "chat completion failed")
}

func TestChatClient_Complete_Cancelled(t *testing.T) {
	api := new(MockChatAPI)
	api.On("CreateChatCompletion", mock.Anything, mock.Anything).Return(openai.ChatCompletionResponse{}, context.Canceled)

	_, err := NewChatClient(api, ChatConfig{}).Complete(context.Background(), "p")
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, IsTransient(err))
}
