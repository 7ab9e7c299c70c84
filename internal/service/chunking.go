package service

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/cloo-solutions/docuhub/internal/domain"
)

// ChunkConfig controls how extracted text is split before embedding.
type ChunkConfig struct {
	MaxChars int
	Overlap  int
	// MinChars is the shortest chunk a natural boundary may produce.
	// Zero means half of MaxChars.
	MinChars int
}

// DefaultChunkConfig provides sane defaults for chunking.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		MaxChars: 500,
		Overlap:  60,
	}
}

// Chunker splits text into bounded, overlapping windows measured in runes.
type Chunker struct {
	cfg ChunkConfig
}

func NewChunker(cfg ChunkConfig) (*Chunker, error) {
	if cfg.MaxChars <= 0 {
		return nil, fmt.Errorf("chunk max chars must be positive, got %d", cfg.MaxChars)
	}
	if cfg.Overlap < 0 || cfg.Overlap >= cfg.MaxChars {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", cfg.MaxChars, cfg.Overlap)
	}
	if cfg.MinChars <= 0 || cfg.MinChars > cfg.MaxChars {
		cfg.MinChars = cfg.MaxChars / 2
	}
	return &Chunker{cfg: cfg}, nil
}

func (c *Chunker) Config() ChunkConfig {
	return c.cfg
}

// Split cuts text into chunks of at most MaxChars runes. Each chunk after the
// first begins with exactly the last Overlap runes of its predecessor, so
// dropping that prefix from every later chunk reconstructs text.
// Whitespace-only text yields no chunks.
func (c *Chunker) Split(text string) []domain.Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	runes := []rune(text)
	if len(runes) <= c.cfg.MaxChars {
		return []domain.Chunk{{Index: 0, Text: text}}
	}

	chunks := make([]domain.Chunk, 0, len(runes)/(c.cfg.MaxChars-c.cfg.Overlap)+1)
	start := 0
	for {
		end := start + c.cfg.MaxChars
		if end >= len(runes) {
			end = len(runes)
		} else {
			// the next window starts at end-Overlap and must move forward
			lo := start + max(c.cfg.MinChars, c.cfg.Overlap+1)
			end = naturalCut(runes, lo, end)
		}

		chunks = append(chunks, domain.Chunk{Index: len(chunks), Text: string(runes[start:end])})
		if end == len(runes) {
			return chunks
		}
		start = end - c.cfg.Overlap
	}
}

// naturalCut returns the latest cut position in [lo, hi] that ends a
// paragraph, then a line, then a sentence, then a word. Without any of them it
// returns hi.
func naturalCut(runes []rune, lo, hi int) int {
	if lo > hi {
		return hi
	}
	for _, isBoundary := range boundaryRules {
		for i := hi; i >= lo; i-- {
			if isBoundary(runes, i) {
				return i
			}
		}
	}
	return hi
}

var boundaryRules = []func(runes []rune, i int) bool{
	// paragraph
	func(r []rune, i int) bool { return i >= 2 && r[i-1] == '\n' && r[i-2] == '\n' },
	// line
	func(r []rune, i int) bool { return i >= 1 && r[i-1] == '\n' },
	// sentence
	func(r []rune, i int) bool {
		if i < 2 || !unicode.IsSpace(r[i-1]) {
			return false
		}
		switch r[i-2] {
		case '.', '!', '?':
			return true
		}
		return false
	},
	// word
	func(r []rune, i int) bool { return i >= 1 && unicode.IsSpace(r[i-1]) },
}
