package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/docuhub/internal/domain"
	"github.com/cloo-solutions/docuhub/internal/extract"
)

type countingExtractor struct {
	mu    sync.Mutex
	calls map[domain.FileType]int
	texts map[domain.FileType]string
	err   error
}

func newCountingExtractor(texts map[domain.FileType]string) *countingExtractor {
	return &countingExtractor{calls: make(map[domain.FileType]int), texts: texts}
}

func (c *countingExtractor) Extract(_ context.Context, _ string, ft domain.FileType) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[ft]++
	return c.texts[ft], c.err
}

func (c *countingExtractor) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.calls {
		n += v
	}
	return n
}

type MockArchiver struct {
	mock.Mock
}

func (m *MockArchiver) Archive(ctx context.Context, key, path string) error {
	return m.Called(ctx, key, path).Error(0)
}

type pipelineFixture struct {
	pipeline    *Pipeline
	store       *memoryIndex
	chat        *MockChatClient
	transitions []Transition
	uploadDir   string
}

func newPipelineFixture(t *testing.T, extractor TextExtractor, timeouts StageTimeouts) *pipelineFixture {
	t.Helper()
	f := &pipelineFixture{
		store:     &memoryIndex{},
		chat:      new(MockChatClient),
		uploadDir: filepath.Join(t.TempDir(), "uploads"),
	}
	embedder := &bagEmbedder{}
	chunker := mustChunker(t, DefaultChunkConfig())

	f.pipeline = NewPipeline(
		extractor,
		NewIndexService(chunker, embedder, f.store, NoRetry()),
		NewRetrievalService(embedder, f.store, NoRetry(), 3),
		NewAnswerService(f.chat, NoRetry()),
		PipelineConfig{Timeouts: timeouts, RetrievalK: 3, UploadDir: f.uploadDir},
	).OnTransition(func(tr Transition) {
		f.transitions = append(f.transitions, tr)
	})
	return f
}

func (f *pipelineFixture) states() []domain.State {
	out := make([]domain.State, 0, len(f.transitions))
	for _, tr := range f.transitions {
		out = append(out, tr.To)
	}
	return out
}

func (f *pipelineFixture) uploadFiles(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(f.uploadDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestPipeline_DispatchesMatchingExtractorOnce(t *testing.T) {
	exts := []string{".png", ".JPG", ".Jpeg", ".img", ".tif", ".TIFF", ".mp3", ".Wav", ".m4a", ".pdf", "PDF"}

	for _, ext := range exts {
		t.Run(ext, func(t *testing.T) {
			extractor := newCountingExtractor(nil)
			f := newPipelineFixture(t, extractor, StageTimeouts{})
			f.chat.On("Complete", mock.Anything, mock.Anything).Return("answer", nil)

			_, err := f.pipeline.Run(context.Background(), RunInput{
				Path: "/tmp/doc" + ext, Extension: ext, Question: "q", Role: "student",
			})
			require.NoError(t, err)

			want, err := domain.FileTypeForExtension(ext)
			require.NoError(t, err)
			assert.Equal(t, 1, extractor.total())
			assert.Equal(t, 1, extractor.calls[want])
		})
	}
}

func TestPipeline_UnsupportedExtensionFailsBeforeExtraction(t *testing.T) {
	for _, ext := range []string{".xyz", ".docx", "", ".pdf.exe"} {
		t.Run(ext, func(t *testing.T) {
			extractor := newCountingExtractor(nil)
			f := newPipelineFixture(t, extractor, StageTimeouts{})

			_, err := f.pipeline.Run(context.Background(), RunInput{
				Path: "/tmp/doc" + ext, Extension: ext, Question: "q", Role: "lawyer",
			})

			pe, ok := domain.AsPipelineError(err)
			require.True(t, ok)
			assert.Equal(t, domain.KindUnsupportedType, pe.Kind)
			assert.Equal(t, domain.StateReceived, pe.Stage)
			assert.Equal(t, 0, extractor.total())
			assert.Equal(t, []domain.State{domain.StateReceived, domain.StateFailed}, f.states())
		})
	}
}

func TestPipeline_UnknownRoleFailsBeforeExtraction(t *testing.T) {
	extractor := newCountingExtractor(nil)
	f := newPipelineFixture(t, extractor, StageTimeouts{})

	_, err := f.pipeline.Run(context.Background(), RunInput{
		Path: "/tmp/a.pdf", Extension: ".pdf", Question: "q", Role: "astronaut",
	})

	pe, ok := domain.AsPipelineError(err)
	require.True(t, ok)
	assert.Equal(t, domain.KindUnknownRole, pe.Kind)
	assert.Equal(t, domain.StateReceived, pe.Stage)
	assert.Contains(t, pe.Message, "astronaut")
	assert.Equal(t, 0, extractor.total())
}

// Scenario A: a PDF invoice answered for a banker.
func TestPipeline_ScenarioA_PDFInvoice(t *testing.T) {
	registry := extract.NewRegistry().Register(domain.FileTypePDF, extract.NewPDFExtractor())
	f := newPipelineFixture(t, registry, StageTimeouts{Extract: 5 * time.Second})

	var prompt string
	f.chat.On("Complete", mock.Anything, mock.MatchedBy(func(p string) bool {
		prompt = p
		return true
	})).Return("The due amount is $500.", nil)

	path := writeTemp(t, "invoice.pdf", minimalPDF("BT /F1 12 Tf 72 712 Td (Invoice #123, due $500) Tj ET"))
	result, err := f.pipeline.Run(context.Background(), RunInput{
		Path: path, Extension: ".pdf", Question: "What is the due amount?", Role: "banker", OwnerID: "tok_a",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StateDone, result.State)
	assert.Equal(t, domain.RoleBanker, result.Role)
	assert.Equal(t, "The due amount is $500.", result.Answer)
	assert.Equal(t, 1, result.Indexed)
	assert.Equal(t, 1, result.Retrieved)
	assert.NotEmpty(t, result.DocumentID)

	assert.Contains(t, prompt, "banker")
	assert.Contains(t, prompt, "Invoice #123, due $500")
	assert.Contains(t, prompt, "Query: What is the due amount?")

	assert.Equal(t, []domain.State{
		domain.StateReceived,
		domain.StateExtracting,
		domain.StateIndexing,
		domain.StateRetrieving,
		domain.StateComposing,
		domain.StateGenerating,
		domain.StateDone,
	}, f.states())

	entry := f.store.entries[0]
	assert.Equal(t, result.DocumentID, entry.DocumentID)
	assert.Equal(t, domain.FileTypePDF, entry.Source.FileType)
	assert.Equal(t, "invoice.pdf", entry.Source.FileName)
	assert.Equal(t, "tok_a", entry.Source.OwnerID)
}

// Scenario B: an image without text still produces an answer, driven by the
// fallback instruction.
func TestPipeline_ScenarioB_ImageWithoutText(t *testing.T) {
	registry := extract.NewRegistry().Register(domain.FileTypeImage, extract.ExtractorFunc(
		func(context.Context, string) (string, error) { return "", nil },
	))
	f := newPipelineFixture(t, registry, StageTimeouts{})

	var prompt string
	f.chat.On("Complete", mock.Anything, mock.MatchedBy(func(p string) bool {
		prompt = p
		return true
	})).Return("I don't know.", nil)

	result, err := f.pipeline.Run(context.Background(), RunInput{
		Path: "/tmp/blank.png", Extension: ".png", Question: "What does the diagram show?", Role: "student",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StateDone, result.State)
	assert.Equal(t, 0, result.Indexed)
	assert.Equal(t, 0, result.Retrieved)
	assert.Equal(t, 0, f.store.Len())
	assert.Contains(t, prompt, "I don't know")
	assert.Contains(t, prompt, "Reference:\n\n\nQuery: What does the diagram show?")
}

type trackingReader struct {
	bytes.Reader
	read bool
}

func (r *trackingReader) Read(p []byte) (int, error) {
	r.read = true
	return r.Reader.Read(p)
}

// Scenario C: notes.xyz is rejected before anything is stored or called.
func TestPipeline_ScenarioC_UnsupportedUpload(t *testing.T) {
	extractor := newCountingExtractor(nil)
	f := newPipelineFixture(t, extractor, StageTimeouts{})
	body := &trackingReader{Reader: *bytes.NewReader([]byte("some notes"))}

	_, err := f.pipeline.RunUpload(context.Background(), UploadInput{
		Body: body, FileName: "notes.xyz", Question: "q", Role: "student",
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnsupportedType)
	assert.Contains(t, err.Error(), ".xyz")
	assert.False(t, body.read)
	assert.Empty(t, f.uploadFiles(t))
	assert.Equal(t, 0, extractor.total())
	assert.Equal(t, 0, f.store.Len())
	f.chat.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
}

func TestPipeline_RunUpload_RemovesTempFile(t *testing.T) {
	var seenPath string
	var seenContent []byte
	registry := extract.NewRegistry().Register(domain.FileTypeAudio, extract.ExtractorFunc(
		func(_ context.Context, path string) (string, error) {
			seenPath = path
			seenContent, _ = os.ReadFile(path)
			return "quarterly revenue grew twelve percent", nil
		},
	))
	f := newPipelineFixture(t, registry, StageTimeouts{})
	f.chat.On("Complete", mock.Anything, mock.Anything).Return("Revenue grew 12%.", nil)

	result, err := f.pipeline.RunUpload(context.Background(), UploadInput{
		Body: strings.NewReader("RIFF-audio-bytes"), FileName: "Memo.WAV", Question: "How did revenue change?", Role: "enterprise",
	})
	require.NoError(t, err)

	assert.Equal(t, "Revenue grew 12%.", result.Answer)
	assert.Equal(t, []byte("RIFF-audio-bytes"), seenContent)
	assert.True(t, strings.HasPrefix(filepath.Base(seenPath), UploadFilePrefix))
	assert.Equal(t, ".wav", filepath.Ext(seenPath))
	assert.NoFileExists(t, seenPath)
	assert.Empty(t, f.uploadFiles(t))
	assert.Equal(t, "Memo.WAV", f.store.entries[0].Source.FileName)
}

func TestPipeline_RunUpload_RemovesTempFileOnFailure(t *testing.T) {
	for _, failAt := range []string{"extract", "generate"} {
		t.Run(failAt, func(t *testing.T) {
			extractor := newCountingExtractor(map[domain.FileType]string{domain.FileTypePDF: "some text"})
			if failAt == "extract" {
				extractor.err = domain.NewPipelineError("", domain.KindExtraction, "invalid pdf", nil)
			}
			f := newPipelineFixture(t, extractor, StageTimeouts{})
			f.chat.On("Complete", mock.Anything, mock.Anything).Return("", errors.New("model down"))

			_, err := f.pipeline.RunUpload(context.Background(), UploadInput{
				Body: strings.NewReader("%PDF"), FileName: "a.pdf", Question: "q", Role: "lawyer",
			})
			require.Error(t, err)
			assert.Empty(t, f.uploadFiles(t))
		})
	}
}

func TestPipeline_ExtractionFailureStopsPipeline(t *testing.T) {
	extractor := newCountingExtractor(nil)
	extractor.err = domain.NewPipelineError("", domain.KindExtraction, "image cannot be decoded", errors.New("bad header"))
	f := newPipelineFixture(t, extractor, StageTimeouts{})

	_, err := f.pipeline.Run(context.Background(), RunInput{
		Path: "/tmp/x.png", Extension: ".png", Question: "q", Role: "student",
	})

	pe, ok := domain.AsPipelineError(err)
	require.True(t, ok)
	assert.Equal(t, domain.StateExtracting, pe.Stage)
	assert.Equal(t, domain.KindExtraction, pe.Kind)
	assert.Equal(t, "image cannot be decoded", pe.Message)
	assert.Equal(t, 0, f.store.Len())
	f.chat.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)

	last := f.transitions[len(f.transitions)-1]
	assert.Equal(t, domain.StateFailed, last.To)
	assert.Equal(t, domain.StateExtracting, last.From)
	assert.Equal(t, pe, last.Err)
}

func TestPipeline_TerminalStateIsFinal(t *testing.T) {
	f := newPipelineFixture(t, newCountingExtractor(nil), StageTimeouts{})
	r := &run{p: f.pipeline, id: "doc-1", state: domain.StateGenerating}

	r.transition(domain.StateDone, nil)
	r.transition(domain.StateFailed, errors.New("late failure"))
	r.transition(domain.StateRetrieving, nil)

	assert.Equal(t, domain.StateDone, r.state)
	assert.Equal(t, []domain.State{domain.StateDone}, f.states())
}

func TestPipeline_GenerationFailureKeepsIndexedChunks(t *testing.T) {
	extractor := newCountingExtractor(map[domain.FileType]string{domain.FileTypePDF: "Clause 4 limits liability."})
	f := newPipelineFixture(t, extractor, StageTimeouts{})
	f.chat.On("Complete", mock.Anything, mock.Anything).Return("", errors.New("model down"))

	_, err := f.pipeline.Run(context.Background(), RunInput{
		Path: "/tmp/c.pdf", Extension: ".pdf", Question: "What does clause 4 say?", Role: "lawyer",
	})

	pe, ok := domain.AsPipelineError(err)
	require.True(t, ok)
	assert.Equal(t, domain.StateGenerating, pe.Stage)
	assert.Equal(t, domain.KindGeneration, pe.Kind)
	assert.False(t, pe.Kind.IsUserError())
	assert.Equal(t, 1, f.store.Len())
}

func TestPipeline_StageTimeout(t *testing.T) {
	blocking := extract.NewRegistry().Register(domain.FileTypeAudio, extract.ExtractorFunc(
		func(ctx context.Context, _ string) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	))
	f := newPipelineFixture(t, blocking, StageTimeouts{Extract: 20 * time.Millisecond})

	_, err := f.pipeline.Run(context.Background(), RunInput{
		Path: "/tmp/long.mp3", Extension: ".mp3", Question: "q", Role: "enterprise",
	})

	pe, ok := domain.AsPipelineError(err)
	require.True(t, ok)
	assert.Equal(t, domain.StateExtracting, pe.Stage)
	assert.Equal(t, domain.KindExtraction, pe.Kind)
	assert.True(t, pe.Timeout)
	assert.Contains(t, pe.Error(), "(timeout)")
}

func TestPipeline_GenerationTimeout(t *testing.T) {
	extractor := newCountingExtractor(map[domain.FileType]string{domain.FileTypePDF: "text"})
	f := newPipelineFixture(t, extractor, StageTimeouts{Generate: 20 * time.Millisecond})
	f.pipeline.generator = NewAnswerService(slowChat{}, NoRetry())

	_, err := f.pipeline.Run(context.Background(), RunInput{
		Path: "/tmp/a.pdf", Extension: ".pdf", Question: "q", Role: "banker",
	})

	pe, ok := domain.AsPipelineError(err)
	require.True(t, ok)
	assert.Equal(t, domain.StateGenerating, pe.Stage)
	assert.Equal(t, domain.KindGeneration, pe.Kind)
	assert.True(t, pe.Timeout)
}

func TestPipeline_Archiver(t *testing.T) {
	extractor := newCountingExtractor(map[domain.FileType]string{domain.FileTypePDF: "text"})
	f := newPipelineFixture(t, extractor, StageTimeouts{})
	f.chat.On("Complete", mock.Anything, mock.Anything).Return("ok", nil)

	archiver := new(MockArchiver)
	archiver.On("Archive", mock.Anything, mock.AnythingOfType("string"), "/tmp/a.PDF").Return(nil)
	f.pipeline.WithArchiver(archiver)

	result, err := f.pipeline.Run(context.Background(), RunInput{
		Path: "/tmp/a.PDF", Extension: ".PDF", Question: "q", Role: "banker",
	})
	require.NoError(t, err)

	wantKey := fmt.Sprintf("documents/%s.pdf", result.DocumentID)
	archiver.AssertCalled(t, "Archive", mock.Anything, wantKey, "/tmp/a.PDF")
	assert.Equal(t, wantKey, f.store.entries[0].Source.ObjectKey)
}

func TestPipeline_ArchiverFailure(t *testing.T) {
	extractor := newCountingExtractor(map[domain.FileType]string{domain.FileTypePDF: "text"})
	f := newPipelineFixture(t, extractor, StageTimeouts{})

	archiver := new(MockArchiver)
	archiver.On("Archive", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("bucket missing"))
	f.pipeline.WithArchiver(archiver)

	_, err := f.pipeline.Run(context.Background(), RunInput{
		Path: "/tmp/a.pdf", Extension: ".pdf", Question: "q", Role: "banker",
	})

	pe, ok := domain.AsPipelineError(err)
	require.True(t, ok)
	assert.Equal(t, domain.StateIndexing, pe.Stage)
	assert.Equal(t, domain.KindIndexing, pe.Kind)
	assert.Equal(t, 0, f.store.Len())
}

func TestPipeline_Ingest(t *testing.T) {
	extractor := newCountingExtractor(map[domain.FileType]string{domain.FileTypePDF: "Invoice #123, due $500"})
	f := newPipelineFixture(t, extractor, StageTimeouts{})

	receipt, err := f.pipeline.Ingest(context.Background(), IngestInput{Path: "/data/invoice.pdf", Extension: ".pdf"})
	require.NoError(t, err)

	assert.Equal(t, 1, receipt.Indexed)
	assert.Equal(t, "invoice.pdf", f.store.entries[0].Source.FileName)
	assert.Equal(t, []domain.State{
		domain.StateReceived,
		domain.StateExtracting,
		domain.StateIndexing,
		domain.StateDone,
	}, f.states())
	f.chat.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
}

func TestPipeline_IngestUnsupported(t *testing.T) {
	f := newPipelineFixture(t, newCountingExtractor(nil), StageTimeouts{})

	_, err := f.pipeline.Ingest(context.Background(), IngestInput{Path: "/data/a.txt", Extension: ".txt"})
	assert.ErrorIs(t, err, domain.ErrUnsupportedType)
}

// minimalPDF assembles a single-page PDF around one content stream.
func minimalPDF(content string) []byte {
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 5 0 R >> >> /Contents 4 0 R >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}
