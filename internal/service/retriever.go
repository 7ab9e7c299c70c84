package service

import (
	"context"

	"github.com/cloo-solutions/docuhub/internal/domain"
)

const DefaultRetrievalK = 3

// ChunkSearcher is the query side of the vector index.
type ChunkSearcher interface {
	Search(ctx context.Context, embedding []float32, filter domain.ChunkFilter, limit int) ([]domain.RetrievedChunk, error)
}

// RetrievalService returns the indexed chunks most similar to a query.
type RetrievalService struct {
	embedder   EmbeddingClient
	searcher   ChunkSearcher
	retry      RetryPolicy
	defaultK   int
	ownerScope bool
}

func NewRetrievalService(embedder EmbeddingClient, searcher ChunkSearcher, retry RetryPolicy, defaultK int) *RetrievalService {
	if defaultK <= 0 {
		defaultK = DefaultRetrievalK
	}
	return &RetrievalService{
		embedder: embedder,
		searcher: searcher,
		retry:    retry,
		defaultK: defaultK,
	}
}

// WithOwnerScope restricts RetrieveFor to entries uploaded by the same owner.
func (s *RetrievalService) WithOwnerScope(enabled bool) *RetrievalService {
	s.ownerScope = enabled
	return s
}

// Retrieve searches the whole index. Results are ordered by descending score,
// ties by insertion order. k <= 0 uses the configured default.
func (s *RetrievalService) Retrieve(ctx context.Context, query string, k int) ([]domain.RetrievedChunk, error) {
	return s.search(ctx, query, k, domain.ChunkFilter{})
}

// RetrieveFor applies the configured retrieval scope for ownerID.
func (s *RetrievalService) RetrieveFor(ctx context.Context, ownerID, query string, k int) ([]domain.RetrievedChunk, error) {
	filter := domain.ChunkFilter{}
	if s.ownerScope {
		filter.OwnerID = ownerID
	}
	return s.search(ctx, query, k, filter)
}

func (s *RetrievalService) search(ctx context.Context, query string, k int, filter domain.ChunkFilter) ([]domain.RetrievedChunk, error) {
	if k <= 0 {
		k = s.defaultK
	}

	var embedding []float32
	err := s.retry.Do(ctx, "embed_query", func(ctx context.Context) error {
		var err error
		embedding, err = s.embedder.GenerateEmbedding(ctx, query)
		return err
	})
	if err != nil {
		return nil, domain.NewPipelineError("", domain.KindRetrieval, "failed to embed query", err)
	}

	results, err := s.searcher.Search(ctx, embedding, filter, k)
	if err != nil {
		return nil, domain.NewPipelineError("", domain.KindRetrieval, "vector search failed", err)
	}
	if results == nil {
		results = []domain.RetrievedChunk{}
	}
	return results, nil
}
