package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/phuslu/log"

	"github.com/cloo-solutions/docuhub/internal/domain"
	"github.com/cloo-solutions/docuhub/internal/telemetry"
)

// TextExtractor dispatches a file to the extractor for its declared type.
type TextExtractor interface {
	Extract(ctx context.Context, path string, ft domain.FileType) (string, error)
}

type Indexer interface {
	Index(ctx context.Context, in IndexInput) (*domain.IndexReceipt, error)
}

type Retriever interface {
	RetrieveFor(ctx context.Context, ownerID, query string, k int) ([]domain.RetrievedChunk, error)
}

type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Archiver keeps a copy of the source document.
type Archiver interface {
	Archive(ctx context.Context, key, path string) error
}

// StageTimeouts bounds each blocking stage. Zero disables the bound.
type StageTimeouts struct {
	Extract  time.Duration
	Index    time.Duration
	Retrieve time.Duration
	Generate time.Duration
}

type PipelineConfig struct {
	Timeouts   StageTimeouts
	RetrievalK int
	UploadDir  string
}

// Transition is reported for every state change of a run.
type Transition struct {
	DocumentID string
	From       domain.State
	To         domain.State
	Err        error
}

// RunInput describes a document already on disk.
type RunInput struct {
	Path      string
	Extension string
	Question  string
	Role      string
	OwnerID   string
	FileName  string
}

// UploadInput describes a document still in flight. RunUpload owns the
// temporary file it is written to.
type UploadInput struct {
	Body     io.Reader
	FileName string
	Question string
	Role     string
	OwnerID  string
}

// IngestInput describes a document to index without answering a question.
type IngestInput struct {
	Path      string
	Extension string
	OwnerID   string
	FileName  string
}

// Pipeline runs Received → Extracting → Indexing → Retrieving → Composing →
// Generating → Done, stopping at the first failure.
type Pipeline struct {
	extractor    TextExtractor
	indexer      Indexer
	retriever    Retriever
	generator    Generator
	archiver     Archiver
	cfg          PipelineConfig
	onTransition func(Transition)
	newID        func() string
}

func NewPipeline(extractor TextExtractor, indexer Indexer, retriever Retriever, generator Generator, cfg PipelineConfig) *Pipeline {
	if cfg.RetrievalK <= 0 {
		cfg.RetrievalK = DefaultRetrievalK
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = os.TempDir()
	}
	return &Pipeline{
		extractor: extractor,
		indexer:   indexer,
		retriever: retriever,
		generator: generator,
		cfg:       cfg,
		newID:     uuid.NewString,
	}
}

// WithArchiver stores each document under documents/<id><ext> during indexing.
func (p *Pipeline) WithArchiver(a Archiver) *Pipeline {
	p.archiver = a
	return p
}

// OnTransition registers an observer called synchronously on every transition.
func (p *Pipeline) OnTransition(fn func(Transition)) *Pipeline {
	p.onTransition = fn
	return p
}

// Run answers in.Question about the file at in.Path.
func (p *Pipeline) Run(ctx context.Context, in RunInput) (*domain.PipelineResult, error) {
	r, err := p.receive(in.Extension, in.Role, true)
	if err != nil {
		return nil, err
	}
	return r.answer(ctx, in)
}

// RunUpload validates the request, spools the body to a temporary file and
// runs the pipeline on it. The file is removed on every exit path. Invalid
// requests fail before anything is written.
func (p *Pipeline) RunUpload(ctx context.Context, in UploadInput) (*domain.PipelineResult, error) {
	ext := filepath.Ext(in.FileName)
	r, err := p.receive(ext, in.Role, true)
	if err != nil {
		return nil, err
	}

	path, err := p.spool(in.Body, domain.NormalizeExtension(ext))
	if err != nil {
		return nil, r.fail(domain.NewPipelineError(domain.StateReceived, domain.KindExtraction, "failed to store upload", err))
	}
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Str("path", path).Msg("failed to remove upload")
		}
	}()

	return r.answer(ctx, RunInput{
		Path:      path,
		Extension: ext,
		Question:  in.Question,
		Role:      in.Role,
		OwnerID:   in.OwnerID,
		FileName:  filepath.Base(in.FileName),
	})
}

// Ingest extracts and indexes a document without retrieval or generation.
func (p *Pipeline) Ingest(ctx context.Context, in IngestInput) (*domain.IndexReceipt, error) {
	r, err := p.receive(in.Extension, "", false)
	if err != nil {
		return nil, err
	}

	text, err := r.extract(ctx, in.Path)
	if err != nil {
		return nil, r.fail(err)
	}
	receipt, err := r.index(ctx, in.Path, text, fileNameOr(in.FileName, in.Path), in.OwnerID)
	if err != nil {
		return nil, r.fail(err)
	}
	r.transition(domain.StateDone, nil)
	return receipt, nil
}

func (p *Pipeline) spool(body io.Reader, ext string) (string, error) {
	if err := os.MkdirAll(p.cfg.UploadDir, 0o700); err != nil {
		return "", err
	}
	f, err := os.CreateTemp(p.cfg.UploadDir, UploadFilePrefix+"*"+ext)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// UploadFilePrefix names the temporary files RunUpload creates.
const UploadFilePrefix = "docuhub-upload-"

type run struct {
	p        *Pipeline
	id       string
	ext      string
	ft       domain.FileType
	role     domain.Role
	roleName string
	state    domain.State
	start    time.Time
}

// receive validates the extension, and the role when required, before any
// stage runs.
func (p *Pipeline) receive(ext, role string, needRole bool) (*run, error) {
	r := &run{
		p:     p,
		id:    p.newID(),
		ext:   domain.NormalizeExtension(ext),
		start: time.Now(),
	}
	r.transition(domain.StateReceived, nil)

	ft, err := domain.FileTypeForExtension(ext)
	if err != nil {
		return nil, r.fail(domain.WithStage(domain.StateReceived, domain.KindUnsupportedType, err))
	}
	r.ft = ft

	if needRole {
		parsed, err := domain.ParseRole(role)
		if err != nil {
			return nil, r.fail(domain.WithStage(domain.StateReceived, domain.KindUnknownRole, err))
		}
		r.role = parsed
		r.roleName = parsed.String()
	}
	return r, nil
}

func (r *run) answer(ctx context.Context, in RunInput) (*domain.PipelineResult, error) {
	text, err := r.extract(ctx, in.Path)
	if err != nil {
		return nil, r.fail(err)
	}

	receipt, err := r.index(ctx, in.Path, text, fileNameOr(in.FileName, in.Path), in.OwnerID)
	if err != nil {
		return nil, r.fail(err)
	}

	var retrieved []domain.RetrievedChunk
	err = r.stage(ctx, domain.StateRetrieving, domain.KindRetrieval, r.p.cfg.Timeouts.Retrieve, func(ctx context.Context) error {
		var err error
		retrieved, err = r.p.retriever.RetrieveFor(ctx, in.OwnerID, in.Question, r.p.cfg.RetrievalK)
		return err
	})
	if err != nil {
		return nil, r.fail(err)
	}

	var prompt string
	err = r.stage(ctx, domain.StateComposing, domain.KindUnknownRole, 0, func(context.Context) error {
		var err error
		prompt, err = Compose(r.role, in.Question, Segments(retrieved))
		return err
	})
	if err != nil {
		return nil, r.fail(err)
	}

	var answer string
	err = r.stage(ctx, domain.StateGenerating, domain.KindGeneration, r.p.cfg.Timeouts.Generate, func(ctx context.Context) error {
		var err error
		answer, err = r.p.generator.Generate(ctx, prompt)
		return err
	})
	if err != nil {
		return nil, r.fail(err)
	}

	r.transition(domain.StateDone, nil)
	log.Info().
		Str("document_id", r.id).
		Str("role", r.role.String()).
		Int("indexed", receipt.Indexed).
		Int("retrieved", len(retrieved)).
		Dur("duration", time.Since(r.start)).
		Msg("pipeline done")

	return &domain.PipelineResult{
		DocumentID: r.id,
		Role:       r.role,
		Answer:     answer,
		State:      domain.StateDone,
		Retrieved:  len(retrieved),
		Indexed:    receipt.Indexed,
	}, nil
}

func (r *run) extract(ctx context.Context, path string) (string, error) {
	var text string
	err := r.stage(ctx, domain.StateExtracting, domain.KindExtraction, r.p.cfg.Timeouts.Extract, func(ctx context.Context) error {
		var err error
		text, err = r.p.extractor.Extract(ctx, path, r.ft)
		return err
	})
	return text, err
}

func (r *run) index(ctx context.Context, path, text, fileName, ownerID string) (*domain.IndexReceipt, error) {
	var receipt *domain.IndexReceipt
	err := r.stage(ctx, domain.StateIndexing, domain.KindIndexing, r.p.cfg.Timeouts.Index, func(ctx context.Context) error {
		source := domain.SourceMetadata{
			FileType: r.ft,
			FileName: fileName,
			OwnerID:  ownerID,
		}
		if r.p.archiver != nil {
			key := fmt.Sprintf("documents/%s%s", r.id, r.ext)
			if err := r.p.archiver.Archive(ctx, key, path); err != nil {
				return domain.NewPipelineError("", domain.KindIndexing, "failed to archive document", err)
			}
			source.ObjectKey = key
		}

		var err error
		receipt, err = r.p.indexer.Index(ctx, IndexInput{
			DocumentID: r.id,
			Text:       text,
			Source:     source,
		})
		return err
	})
	return receipt, err
}

// stage moves the run into state and runs fn under the stage's timeout. Any
// error comes back as a PipelineError attributed to state.
func (r *run) stage(ctx context.Context, state domain.State, kind domain.ErrorKind, timeout time.Duration, fn func(ctx context.Context) error) error {
	r.transition(state, nil)

	ctx, span := telemetry.StartSpan(ctx, "pipeline."+string(state), telemetry.SpanAttributes{
		DocumentID: r.id,
		Stage:      string(state),
		Role:       r.roleName,
	})
	defer span.End()

	stageCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	err := fn(stageCtx)
	if err == nil {
		log.Debug().Str("document_id", r.id).Str("stage", string(state)).Dur("duration", time.Since(start)).Msg("stage complete")
		return nil
	}

	pe := *domain.WithStage(state, kind, err)
	if !pe.Timeout && ctx.Err() == nil && errors.Is(stageCtx.Err(), context.DeadlineExceeded) {
		pe.Timeout = true
	}
	if pe.Kind.IsUserError() {
		span.SetStatus(sentry.SpanStatusInvalidArgument)
	} else {
		span.SetError(&pe)
	}
	return &pe
}

func (r *run) fail(err error) error {
	pe := domain.WithStage(r.state, domain.KindExtraction, err)
	r.transition(domain.StateFailed, pe)

	ev := log.Warn()
	if !pe.Kind.IsUserError() {
		ev = log.Error()
	}
	ev.Err(pe.Err).
		Str("document_id", r.id).
		Str("stage", string(pe.Stage)).
		Str("kind", string(pe.Kind)).
		Bool("timeout", pe.Timeout).
		Msg(pe.Message)
	return pe
}

func (r *run) transition(to domain.State, err error) {
	from := r.state
	if from.Terminal() {
		log.Warn().Str("document_id", r.id).Str("from", string(from)).Str("to", string(to)).Msg("transition after terminal state ignored")
		return
	}
	r.state = to
	log.Debug().Str("document_id", r.id).Str("from", string(from)).Str("to", string(to)).Msg("pipeline transition")
	if r.p.onTransition != nil {
		r.p.onTransition(Transition{DocumentID: r.id, From: from, To: to, Err: err})
	}
}

func fileNameOr(name, path string) string {
	if name != "" {
		return name
	}
	return filepath.Base(path)
}
