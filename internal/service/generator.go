package service

import (
	"context"

	"github.com/cloo-solutions/docuhub/internal/domain"
)

// ChatClient sends a single-turn prompt to a language model.
type ChatClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// AnswerService produces the final answer for a composed prompt.
type AnswerService struct {
	client ChatClient
	retry  RetryPolicy
}

func NewAnswerService(client ChatClient, retry RetryPolicy) *AnswerService {
	return &AnswerService{client: client, retry: retry}
}

// Generate returns the model output verbatim.
func (s *AnswerService) Generate(ctx context.Context, prompt string) (string, error) {
	var answer string
	err := s.retry.Do(ctx, "generate", func(ctx context.Context) error {
		var err error
		answer, err = s.client.Complete(ctx, prompt)
		return err
	})
	if err != nil {
		return "", domain.NewPipelineError("", domain.KindGeneration, "model call failed", err)
	}
	return answer, nil
}
