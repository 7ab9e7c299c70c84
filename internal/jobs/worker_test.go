package jobs

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockJobProcessor is a mock implementation of JobProcessor
type MockJobProcessor struct {
	mock.Mock
}

func (m *MockJobProcessor) ProcessJobs(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func TestWorker_StartStop(t *testing.T) {
	mockProcessor := new(MockJobProcessor)
	mockProcessor.On("ProcessJobs", mock.Anything).Return(nil)

	worker := NewWorker("test", mockProcessor, 100*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Start(ctx)
	}()

	time.Sleep(250 * time.Millisecond)

	worker.Stop()
	wg.Wait()

	mockProcessor.AssertCalled(t, "ProcessJobs", mock.Anything)
}

func TestWorker_ContextCancellation(t *testing.T) {
	mockProcessor := new(MockJobProcessor)
	mockProcessor.On("ProcessJobs", mock.Anything).Return(nil)

	worker := NewWorker("test", mockProcessor, 100*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Start(ctx)
	}()

	time.Sleep(150 * time.Millisecond)

	cancel()
	wg.Wait()

	mockProcessor.AssertCalled(t, "ProcessJobs", mock.Anything)
}

func TestWorker_RunsImmediately(t *testing.T) {
	called := make(chan struct{})
	mockProcessor := new(MockJobProcessor)
	mockProcessor.On("ProcessJobs", mock.Anything).Return(nil).Run(func(mock.Arguments) { close(called) })

	worker := NewWorker("test", mockProcessor, time.Hour)
	go worker.Start(context.Background())

	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("processor was not run at start")
	}

	worker.Stop()
	worker.Stop()
	mockProcessor.AssertNumberOfCalls(t, "ProcessJobs", 1)
}

type panickingProcessor struct {
	calls int
	mu    sync.Mutex
}

func (p *panickingProcessor) ProcessJobs(context.Context) error {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	panic("boom")
}

func TestWorker_SurvivesPanic(t *testing.T) {
	processor := &panickingProcessor{}
	worker := NewWorker("test", processor, 10*time.Millisecond)
	go worker.Start(context.Background())

	assert.Eventually(t, func() bool {
		processor.mu.Lock()
		defer processor.mu.Unlock()
		return processor.calls >= 2
	}, time.Second, 5*time.Millisecond)
	worker.Stop()
}

func touch(t *testing.T, path string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestUploadSweeper_RemovesStaleUploads(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()

	stale := filepath.Join(dir, "docuhub-upload-1.pdf")
	fresh := filepath.Join(dir, "docuhub-upload-2.pdf")
	foreign := filepath.Join(dir, "keep-me.pdf")
	touch(t, stale, now.Add(-2*time.Hour))
	touch(t, fresh, now.Add(-time.Minute))
	touch(t, foreign, now.Add(-48*time.Hour))

	sweeper := NewUploadSweeper(dir, "docuhub-upload-", time.Hour)
	sweeper.now = func() time.Time { return now }

	require.NoError(t, sweeper.ProcessJobs(context.Background()))

	assert.NoFileExists(t, stale)
	assert.FileExists(t, fresh)
	assert.FileExists(t, foreign)
}

func TestUploadSweeper_MissingDir(t *testing.T) {
	sweeper := NewUploadSweeper(filepath.Join(t.TempDir(), "absent"), "docuhub-upload-", time.Hour)
	assert.NoError(t, sweeper.ProcessJobs(context.Background()))
}

func TestUploadSweeper_SkipsDirectories(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "docuhub-upload-dir")
	require.NoError(t, os.Mkdir(sub, 0o700))
	old := time.Now().Add(-24 * time.Hour)
	require.NoError(t, os.Chtimes(sub, old, old))

	sweeper := NewUploadSweeper(dir, "docuhub-upload-", time.Hour)
	require.NoError(t, sweeper.ProcessJobs(context.Background()))
	assert.DirExists(t, sub)
}

func TestUploadSweeper_WithWorker(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "docuhub-upload-3.wav")
	touch(t, stale, time.Now().Add(-2*time.Hour))

	worker := NewWorker("upload-sweeper", NewUploadSweeper(dir, "docuhub-upload-", time.Hour), 20*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.Start(ctx)

	assert.Eventually(t, func() bool {
		_, err := os.Stat(stale)
		return os.IsNotExist(err)
	}, 2*time.Second, 10*time.Millisecond)
	worker.Stop()
}
