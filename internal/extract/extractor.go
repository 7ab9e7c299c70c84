package extract

import (
	"context"
	"fmt"

	"github.com/phuslu/log"

	"github.com/cloo-solutions/docuhub/internal/domain"
)

// Extractor turns a stored document into plain text.
type Extractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, path string) (string, error)

func (f ExtractorFunc) Extract(ctx context.Context, path string) (string, error) {
	return f(ctx, path)
}

// Registry dispatches on the declared file type, never on content.
type Registry struct {
	extractors map[domain.FileType]Extractor
}

func NewRegistry() *Registry {
	return &Registry{extractors: make(map[domain.FileType]Extractor)}
}

// Register binds an extractor to a file type, replacing any previous binding.
func (r *Registry) Register(ft domain.FileType, e Extractor) *Registry {
	r.extractors[ft] = e
	return r
}

// Supports reports whether an extractor is bound to ft.
func (r *Registry) Supports(ft domain.FileType) bool {
	_, ok := r.extractors[ft]
	return ok
}

// Extract runs exactly one extractor, the one registered for ft.
func (r *Registry) Extract(ctx context.Context, path string, ft domain.FileType) (string, error) {
	e, ok := r.extractors[ft]
	if !ok {
		return "", &domain.PipelineError{
			Kind:    domain.KindUnsupportedType,
			Message: fmt.Sprintf("no extractor for file type %q", ft),
		}
	}

	log.Debug().Str("file_type", string(ft)).Str("path", path).Msg("extracting")
	return e.Extract(ctx, path)
}

func extractionError(message string, err error) *domain.PipelineError {
	return domain.NewPipelineError("", domain.KindExtraction, message, err)
}
