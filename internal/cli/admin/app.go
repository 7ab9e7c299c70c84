package admin

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/phuslu/log"

	"github.com/cloo-solutions/docuhub/internal/anthropic"
	"github.com/cloo-solutions/docuhub/internal/config"
	"github.com/cloo-solutions/docuhub/internal/database"
	"github.com/cloo-solutions/docuhub/internal/domain"
	"github.com/cloo-solutions/docuhub/internal/extract"
	"github.com/cloo-solutions/docuhub/internal/openai"
	"github.com/cloo-solutions/docuhub/internal/repository"
	"github.com/cloo-solutions/docuhub/internal/service"
	"github.com/cloo-solutions/docuhub/internal/storage"
)

// app holds the components shared by serve and ingest.
type app struct {
	cfg      *config.Config
	pool     *pgxpool.Pool
	chunks   *repository.ChunkRepository
	pipeline *service.Pipeline
}

func (a *app) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}

func getDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	pool, err := database.NewPool(ctx, database.Config{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,

		MaxConnLifetime: cfg.DBMaxConnLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return pool, nil
}

// newApp connects to the database and wires extraction, indexing, retrieval
// and generation. Generation needs a chat provider only when withChat is set.
func newApp(ctx context.Context, cfg *config.Config, withChat bool) (*app, error) {
	if !cfg.HasOpenAI() {
		return nil, errors.New("DOCUHUB_OPENAI_API_KEY is required for embeddings and transcription")
	}

	pool, err := getDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, pool: pool, chunks: repository.NewChunkRepository(pool)}

	retry := retryPolicy(cfg)
	sdk := openai.NewAPIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
	embedder := openai.NewClientWithConfig(openai.Config{
		APIKey:              cfg.OpenAIAPIKey,
		BaseURL:             cfg.OpenAIBaseURL,
		EmbeddingModel:      cfg.EmbeddingModel,
		EmbeddingDimensions: cfg.EmbeddingDimensions,
	})

	chunker, err := service.NewChunker(service.ChunkConfig{
		MaxChars: cfg.ChunkMaxChars,
		Overlap:  cfg.ChunkOverlap,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	extractors := newExtractors(cfg, openai.NewTranscriber(sdk, cfg.TranscriptionModel), retry)
	indexer := service.NewIndexService(chunker, embedder, a.chunks, retry).WithDedup(cfg.IndexDedup)
	retriever := service.NewRetrievalService(embedder, a.chunks, retry, cfg.RetrievalK).
		WithOwnerScope(cfg.RetrievalScope == config.ScopeOwner)

	var generator service.Generator
	if withChat {
		chat, err := newChatClient(cfg, sdk)
		if err != nil {
			a.Close()
			return nil, err
		}
		generator = service.NewAnswerService(chat, retry)
	}

	a.pipeline = service.NewPipeline(extractors, indexer, retriever, generator, service.PipelineConfig{
		Timeouts: service.StageTimeouts{
			Extract:  cfg.ExtractTimeout,
			Index:    cfg.IndexTimeout,
			Retrieve: cfg.RetrieveTimeout,
			Generate: cfg.GenerateTimeout,
		},
		RetrievalK: cfg.RetrievalK,
		UploadDir:  cfg.UploadDir,
	})

	if cfg.HasS3() {
		archiver, err := newArchiver(ctx, cfg)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.pipeline.WithArchiver(archiver)
	}

	return a, nil
}

func newExtractors(cfg *config.Config, transcriber extract.Transcriber, retry service.RetryPolicy) *extract.Registry {
	return extract.NewRegistry().
		Register(domain.FileTypeImage, extract.NewImageExtractor(extract.ExecRunner{}, extract.ImageConfig{
			TesseractPath: cfg.TesseractPath,
			Language:      cfg.OCRLanguage,
		})).
		Register(domain.FileTypeAudio, extract.NewAudioExtractor(transcriber).WithRetry(retry)).
		Register(domain.FileTypePDF, extract.NewPDFExtractor())
}

func newChatClient(cfg *config.Config, sdk openai.ChatAPI) (service.ChatClient, error) {
	switch cfg.LLMProvider {
	case config.ProviderAnthropic:
		if !cfg.HasAnthropic() {
			return nil, errors.New("DOCUHUB_ANTHROPIC_API_KEY is required when LLM_PROVIDER=anthropic")
		}
		client := anthropic.NewClient(anthropic.Config{
			APIKey:      cfg.AnthropicAPIKey,
			Model:       cfg.AnthropicModel,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		})
		log.Info().Str("provider", "anthropic").Str("model", client.Model()).Msg("chat provider configured")
		return client, nil
	default:
		client := openai.NewChatClient(sdk, openai.ChatConfig{
			Model:       cfg.ChatModel,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		})
		log.Info().Str("provider", "openai").Str("model", client.Model()).Msg("chat provider configured")
		return client, nil
	}
}

func newArchiver(ctx context.Context, cfg *config.Config) (*storage.S3Client, error) {
	client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        cfg.S3Endpoint,
		Region:          cfg.S3Region,
		AccessKeyID:     cfg.S3AccessKey,
		SecretAccessKey: cfg.S3SecretKey,
		Bucket:          cfg.S3Bucket,
		UsePathStyle:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}
	if err := client.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure S3 bucket: %w", err)
	}
	log.Info().Str("bucket", cfg.S3Bucket).Msg("document archive ready")
	return client, nil
}

func retryPolicy(cfg *config.Config) service.RetryPolicy {
	policy := service.DefaultRetryPolicy()
	policy.MaxAttempts = cfg.RetryMaxAttempts
	if cfg.RetryInitialInterval > 0 {
		policy.InitialInterval = cfg.RetryInitialInterval
	}
	policy.Retryable = isTransient
	return policy
}

func isTransient(err error) bool {
	return openai.IsTransient(err) || anthropic.IsTransient(err)
}
