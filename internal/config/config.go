package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"

	ScopeGlobal = "global"
	ScopeOwner  = "owner"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMaxConns  int32  `envconfig:"DB_MAX_CONNS" default:"10"`
	DBMinConns  int32  `envconfig:"DB_MIN_CONNS" default:"1"`

	DBMaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`

	OpenAIAPIKey        string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL       string `envconfig:"OPENAI_BASE_URL"`
	EmbeddingModel      string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`
	EmbeddingDimensions int    `envconfig:"EMBEDDING_DIMENSIONS" default:"1536"`
	TranscriptionModel  string `envconfig:"TRANSCRIPTION_MODEL" default:"whisper-1"`

	LLMProvider     string  `envconfig:"LLM_PROVIDER" default:"openai"`
	ChatModel       string  `envconfig:"CHAT_MODEL" default:"gpt-4o-mini"`
	AnthropicAPIKey string  `envconfig:"ANTHROPIC_API_KEY"`
	AnthropicModel  string  `envconfig:"ANTHROPIC_MODEL" default:"claude-3-5-haiku-latest"`
	Temperature     float32 `envconfig:"TEMPERATURE" default:"0.7"`
	MaxTokens       int     `envconfig:"MAX_TOKENS" default:"1024"`

	TesseractPath string `envconfig:"TESSERACT_PATH" default:"tesseract"`
	OCRLanguage   string `envconfig:"OCR_LANGUAGE" default:"eng"`

	ChunkMaxChars  int    `envconfig:"CHUNK_MAX_CHARS" default:"500"`
	ChunkOverlap   int    `envconfig:"CHUNK_OVERLAP" default:"60"`
	RetrievalK     int    `envconfig:"RETRIEVAL_K" default:"3"`
	RetrievalScope string `envconfig:"RETRIEVAL_SCOPE" default:"global"`
	IndexDedup     bool   `envconfig:"INDEX_DEDUP" default:"false"`

	ExtractTimeout  time.Duration `envconfig:"EXTRACT_TIMEOUT" default:"2m"`
	IndexTimeout    time.Duration `envconfig:"INDEX_TIMEOUT" default:"1m"`
	RetrieveTimeout time.Duration `envconfig:"RETRIEVE_TIMEOUT" default:"30s"`
	GenerateTimeout time.Duration `envconfig:"GENERATE_TIMEOUT" default:"90s"`

	RetryMaxAttempts     int           `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`
	RetryInitialInterval time.Duration `envconfig:"RETRY_INITIAL_INTERVAL" default:"500ms"`

	UploadDir           string        `envconfig:"UPLOAD_DIR"`
	UploadTTL           time.Duration `envconfig:"UPLOAD_TTL" default:"1h"`
	SweepInterval       time.Duration `envconfig:"SWEEP_INTERVAL" default:"10m"`
	MaxUploadBytes      int64         `envconfig:"MAX_UPLOAD_BYTES" default:"26214400"`
	UploadRatePerMinute int           `envconfig:"UPLOAD_RATE_PER_MINUTE" default:"3"`

	// token:role pairs, e.g. "tok-a:lawyer,tok-b:banker"
	APITokens map[string]string `envconfig:"API_TOKENS"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"docuhub-documents"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("DOCUHUB", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if cfg.UploadDir == "" {
		cfg.UploadDir = filepath.Join(os.TempDir(), "docuhub-uploads")
	}
	cfg.LLMProvider = strings.ToLower(strings.TrimSpace(cfg.LLMProvider))
	cfg.RetrievalScope = strings.ToLower(strings.TrimSpace(cfg.RetrievalScope))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks invariants that envconfig cannot express.
func (c *Config) Validate() error {
	if c.ChunkMaxChars <= 0 {
		return fmt.Errorf("CHUNK_MAX_CHARS must be positive, got %d", c.ChunkMaxChars)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkMaxChars {
		return fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_MAX_CHARS), got %d", c.ChunkOverlap)
	}
	if c.RetrievalK <= 0 {
		return fmt.Errorf("RETRIEVAL_K must be positive, got %d", c.RetrievalK)
	}
	switch c.LLMProvider {
	case ProviderOpenAI, ProviderAnthropic:
	default:
		return fmt.Errorf("LLM_PROVIDER must be %q or %q, got %q", ProviderOpenAI, ProviderAnthropic, c.LLMProvider)
	}
	switch c.RetrievalScope {
	case ScopeGlobal, ScopeOwner:
	default:
		return fmt.Errorf("RETRIEVAL_SCOPE must be %q or %q, got %q", ScopeGlobal, ScopeOwner, c.RetrievalScope)
	}
	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1, got %d", c.RetryMaxAttempts)
	}
	return nil
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) HasAnthropic() bool {
	return c.AnthropicAPIKey != ""
}

func (c *Config) HasSentry() bool {
	return c.SentryDSN != ""
}
