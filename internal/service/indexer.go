package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/phuslu/log"

	"github.com/cloo-solutions/docuhub/internal/domain"
)

// EmbeddingClient defines the interface for generating embeddings
type EmbeddingClient interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// ChunkStore is the append side of the vector index.
type ChunkStore interface {
	Append(ctx context.Context, entry *domain.IndexEntry) error
	ExistsByHash(ctx context.Context, hash string) (bool, error)
}

type IndexInput struct {
	DocumentID string
	Text       string
	Source     domain.SourceMetadata
}

// IndexService chunks, embeds and appends text to the vector index. All
// mutations go through a single writer.
type IndexService struct {
	mu       sync.Mutex
	chunker  *Chunker
	embedder EmbeddingClient
	store    ChunkStore
	retry    RetryPolicy
	dedup    bool
}

func NewIndexService(chunker *Chunker, embedder EmbeddingClient, store ChunkStore, retry RetryPolicy) *IndexService {
	return &IndexService{
		chunker:  chunker,
		embedder: embedder,
		store:    store,
		retry:    retry,
	}
}

// WithDedup skips chunks whose content hash is already indexed.
func (s *IndexService) WithDedup(enabled bool) *IndexService {
	s.dedup = enabled
	return s
}

// Index appends every chunk of in.Text. Entries written before a failure stay
// in the index and are counted in the returned receipt.
func (s *IndexService) Index(ctx context.Context, in IndexInput) (*domain.IndexReceipt, error) {
	receipt := &domain.IndexReceipt{DocumentID: in.DocumentID}
	if strings.TrimSpace(in.Text) == "" {
		log.Debug().Str("document_id", in.DocumentID).Msg("nothing to index")
		return receipt, nil
	}

	chunks := s.chunker.Split(in.Text)

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, chunk := range chunks {
		hash := domain.ContentHash(chunk.Text)

		if s.dedup {
			exists, err := s.store.ExistsByHash(ctx, hash)
			if err != nil {
				return receipt, domain.NewPipelineError("", domain.KindIndexing, "index lookup failed", err)
			}
			if exists {
				receipt.Skipped++
				continue
			}
		}

		var embedding []float32
		err := s.retry.Do(ctx, "embed_chunk", func(ctx context.Context) error {
			var err error
			embedding, err = s.embedder.GenerateEmbedding(ctx, chunk.Text)
			return err
		})
		if err != nil {
			return receipt, domain.NewPipelineError("", domain.KindIndexing, "failed to embed chunk", err)
		}

		entry := &domain.IndexEntry{
			DocumentID:  in.DocumentID,
			ChunkIndex:  chunk.Index,
			Content:     chunk.Text,
			ContentHash: hash,
			Embedding:   embedding,
			Source:      in.Source,
			CreatedAt:   time.Now().UTC(),
		}
		if err := s.store.Append(ctx, entry); err != nil {
			return receipt, domain.NewPipelineError("", domain.KindIndexing, "failed to store chunk", err)
		}
		receipt.Indexed++
	}

	log.Info().
		Str("document_id", in.DocumentID).
		Int("chunks", len(chunks)).
		Int("indexed", receipt.Indexed).
		Int("skipped", receipt.Skipped).
		Msg("document indexed")

	return receipt, nil
}
