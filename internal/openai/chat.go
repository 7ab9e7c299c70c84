package openai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultChatModel is used when no chat model is configured.
const DefaultChatModel = openai.GPT4oMini

// ErrEmptyCompletion is returned when the model produced no text.
var ErrEmptyCompletion = errors.New("empty completion")

// ChatAPI is the subset of the SDK used for completions.
type ChatAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type ChatConfig struct {
	Model       string
	Temperature float32
	MaxTokens   int
}

// ChatClient sends a single-turn prompt and returns the reply text.
type ChatClient struct {
	api ChatAPI
	cfg ChatConfig
}

func NewChatClient(api ChatAPI, cfg ChatConfig) *ChatClient {
	if cfg.Model == "" {
		cfg.Model = DefaultChatModel
	}
	return &ChatClient{api: api, cfg: cfg}
}

// Complete sends prompt as one user message.
func (c *ChatClient) Complete(ctx context.Context, prompt string) (string, error) {
	temperature := c.cfg.Temperature
	if temperature == 0 {
		// the SDK omits a zero temperature, which the API reads as its default
		temperature = math.SmallestNonzeroFloat32
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: temperature,
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyCompletion
	}

	return content, nil
}

// Model returns the configured chat model name.
func (c *ChatClient) Model() string {
	return c.cfg.Model
}
