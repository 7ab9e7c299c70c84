package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/phuslu/log"
)

// JobProcessor performs one pass of background work.
type JobProcessor interface {
	ProcessJobs(ctx context.Context) error
}

// Worker runs a JobProcessor once at start and then on every tick until its
// context is done or Stop is called.
type Worker struct {
	name      string
	processor JobProcessor
	interval  time.Duration
	stopOnce  sync.Once
	stopChan  chan struct{}
	doneChan  chan struct{}
}

const minInterval = time.Second

func NewWorker(name string, processor JobProcessor, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = minInterval
	}
	return &Worker{
		name:      name,
		processor: processor,
		interval:  interval,
		stopChan:  make(chan struct{}),
		doneChan:  make(chan struct{}),
	}
}

// Start blocks until the worker stops.
func (w *Worker) Start(ctx context.Context) {
	defer close(w.doneChan)

	log.Info().Str("worker", w.name).Dur("interval", w.interval).Msg("worker started")
	w.runOnce(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("worker", w.name).Msg("worker stopped: context cancelled")
			return
		case <-w.stopChan:
			log.Info().Str("worker", w.name).Msg("worker stopped")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *Worker) runOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("worker", w.name).Str("panic", fmt.Sprint(r)).Msg("job run panicked")
		}
	}()

	start := time.Now()
	if err := w.processor.ProcessJobs(ctx); err != nil {
		log.Error().Err(err).Str("worker", w.name).Msg("job run failed")
		return
	}
	log.Debug().Str("worker", w.name).Dur("duration", time.Since(start)).Msg("job run complete")
}

// Stop signals the worker and waits for Start to return. It is safe to call
// more than once, but only after Start has been called.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopChan) })
	<-w.doneChan
}
