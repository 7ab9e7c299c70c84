package service

import (
	"context"
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/stretchr/testify/mock"

	"github.com/cloo-solutions/docuhub/internal/domain"
)

// MockEmbedder mocks the embedding client
type MockEmbedder struct {
	mock.Mock
}

func (m *MockEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

// MockChatClient mocks the language model client
type MockChatClient struct {
	mock.Mock
}

func (m *MockChatClient) Complete(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

const bagDims = 64

// bagEmbedder hashes lower-cased words into a fixed-size count vector, so
// texts sharing words are similar.
type bagEmbedder struct {
	mu    sync.Mutex
	calls int
}

func (e *bagEmbedder) GenerateEmbedding(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	vec := make([]float32, bagDims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		h.Write([]byte(w))
		vec[h.Sum32()%bagDims]++
	}
	return vec, nil
}

// memoryIndex is an in-memory ChunkStore and ChunkSearcher ranking by cosine
// similarity, ties by insertion id.
type memoryIndex struct {
	mu      sync.RWMutex
	entries []domain.IndexEntry
	nextID  int64
}

func (m *memoryIndex) Append(_ context.Context, entry *domain.IndexEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	entry.ID = m.nextID
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *memoryIndex) ExistsByHash(_ context.Context, hash string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.entries {
		if e.ContentHash == hash {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryIndex) Search(_ context.Context, embedding []float32, filter domain.ChunkFilter, limit int) ([]domain.RetrievedChunk, error) {
	m.mu.RLock()
	snapshot := append([]domain.IndexEntry(nil), m.entries...)
	m.mu.RUnlock()

	var out []domain.RetrievedChunk
	for _, e := range snapshot {
		if filter.OwnerID != "" && e.Source.OwnerID != filter.OwnerID {
			continue
		}
		out = append(out, domain.RetrievedChunk{
			ID:         e.ID,
			DocumentID: e.DocumentID,
			ChunkIndex: e.ChunkIndex,
			Content:    e.Content,
			Source:     e.Source,
			Score:      cosine(embedding, e.Embedding),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
