package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Transcriber converts an audio file to text.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) (string, error)
}

// Retrier reruns an operation on transient failures.
type Retrier interface {
	Do(ctx context.Context, name string, op func(ctx context.Context) error) error
}

// AudioExtractor transcribes recorded speech in a single pass.
type AudioExtractor struct {
	transcriber Transcriber
	retry       Retrier
}

func NewAudioExtractor(t Transcriber) *AudioExtractor {
	return &AudioExtractor{transcriber: t}
}

// WithRetry wraps each transcription call in r.
func (e *AudioExtractor) WithRetry(r Retrier) *AudioExtractor {
	e.retry = r
	return e
}

func (e *AudioExtractor) Extract(ctx context.Context, path string) (string, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return "", extractionError("cannot read audio", err)
	}
	if !isAudio(mtype) {
		return "", extractionError(fmt.Sprintf("unsupported or corrupt audio: detected %s", mtype.String()), nil)
	}

	if e.transcriber == nil {
		return "", extractionError("no transcription engine configured", nil)
	}

	var text string
	transcribe := func(ctx context.Context) error {
		var err error
		text, err = e.transcriber.Transcribe(ctx, path)
		return err
	}
	if e.retry != nil {
		err = e.retry.Do(ctx, "transcribe", transcribe)
	} else {
		err = transcribe(ctx)
	}
	if err != nil {
		return "", extractionError("transcription failed", err)
	}
	return strings.TrimSpace(text), nil
}

func isAudio(m *mimetype.MIME) bool {
	for ; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "audio/") {
			return true
		}
	}
	return false
}
