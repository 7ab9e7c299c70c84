package openai

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// TranscriptionAPI is the subset of the SDK used for speech-to-text.
type TranscriptionAPI interface {
	CreateTranscription(ctx context.Context, req openai.AudioRequest) (openai.AudioResponse, error)
}

// Transcriber converts an audio file to text in one pass.
type Transcriber struct {
	api   TranscriptionAPI
	model string
}

func NewTranscriber(api TranscriptionAPI, model string) *Transcriber {
	if model == "" {
		model = openai.Whisper1
	}
	return &Transcriber{api: api, model: model}
}

// Transcribe uploads the file at path and returns the recognized text.
func (t *Transcriber) Transcribe(ctx context.Context, path string) (string, error) {
	resp, err := t.api.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		FilePath: path,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", fmt.Errorf("transcription failed: %w", err)
	}
	return resp.Text, nil
}
