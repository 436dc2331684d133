package core

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Skryldev/image-host/config"
	apperrors "github.com/Skryldev/image-host/errors"
)

// Processor is a bounded worker pool for CPU-bound pipeline runs. Raster work
// submitted here never runs on the request goroutine, and at most
// WorkerCount pipelines execute at once. It is safe for concurrent use.
type Processor struct {
	workers    int
	jobTimeout time.Duration
	logger     Logger

	// Worker pool.
	jobQueue chan Job
	wg       sync.WaitGroup
	once     sync.Once
	stopOnce sync.Once
	shutdown chan struct{}

	// Atomic counters for lightweight internal metrics.
	processedCount int64
	errorCount     int64
	inFlight       int64
}

// New creates a Processor with the given config. Call Start() before
// submitting jobs; call Stop() when done.
func New(cfg config.Config) *Processor {
	workerCount := cfg.WorkerCount
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Processor{
		workers:    workerCount,
		jobTimeout: cfg.JobTimeout,
		jobQueue:   make(chan Job, queueSize),
		shutdown:   make(chan struct{}),
	}
}

// SetLogger attaches a structured logger.
func (p *Processor) SetLogger(l Logger) { p.logger = l }

// Start launches the worker pool. It is idempotent.
func (p *Processor) Start() {
	p.once.Do(func() {
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.worker()
		}
	})
}

// Stop shuts down all workers and waits for running jobs to finish. Jobs still
// queued are abandoned and their Run callers return ErrProcessorStopped.
// It is idempotent.
func (p *Processor) Stop() {
	p.stopOnce.Do(func() {
		close(p.shutdown)
		p.wg.Wait()
	})
}

// Submit enqueues an async job. Returns ErrWorkerPoolFull if the queue is full.
func (p *Processor) Submit(job Job) error {
	select {
	case <-p.shutdown:
		return apperrors.New(apperrors.CategoryPipeline, "submit", apperrors.ErrProcessorStopped)
	default:
	}
	select {
	case p.jobQueue <- job:
		return nil
	default:
		return apperrors.Transient("submit", apperrors.ErrWorkerPoolFull)
	}
}

// Run submits runner against input and blocks until the job finishes, ctx is
// done or the pool stops.
func (p *Processor) Run(ctx context.Context, id string, runner PipelineRunner, input *ImageData) (*ImageData, error) {
	resultCh := make(chan JobResult, 1)
	if err := p.Submit(Job{ID: id, Ctx: ctx, Input: input, Runner: runner, ResultCh: resultCh}); err != nil {
		return nil, err
	}
	select {
	case res := <-resultCh:
		return res.Output, res.Err
	case <-ctx.Done():
		return nil, apperrors.Wrap(apperrors.CategoryPipeline, "run", ctx.Err())
	case <-p.shutdown:
		return nil, apperrors.New(apperrors.CategoryPipeline, "run", apperrors.ErrProcessorStopped)
	}
}

// ── worker pool internals ──────────────────────────────────────────────────────

func (p *Processor) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.shutdown:
			return
		case job := <-p.jobQueue:
			p.processJob(job)
		}
	}
}

func (p *Processor) processJob(job Job) {
	atomic.AddInt64(&p.inFlight, 1)
	defer atomic.AddInt64(&p.inFlight, -1)

	ctx := job.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if p.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.jobTimeout)
		defer cancel()
	}

	start := time.Now()
	var (
		out *ImageData
		err error
	)
	if err = ctx.Err(); err != nil {
		err = apperrors.Wrap(apperrors.CategoryPipeline, "job", err)
	} else {
		out, err = runSafely(ctx, job)
	}
	elapsed := time.Since(start)

	if err != nil {
		atomic.AddInt64(&p.errorCount, 1)
		if p.logger != nil {
			p.logger.Warn("processor.job.error", "job", job.ID, "duration_ms", elapsed.Milliseconds(), "error", err.Error())
		}
	} else {
		atomic.AddInt64(&p.processedCount, 1)
	}
	if job.ResultCh != nil {
		job.ResultCh <- JobResult{JobID: job.ID, Output: out, Err: err, Elapsed: elapsed}
	}
}

// runSafely turns a panic inside a pipeline into a job error so one bad
// input cannot take the worker down.
func runSafely(ctx context.Context, job Job) (out *ImageData, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = apperrors.Newf(apperrors.CategoryPipeline, "job", "pipeline panicked: %v", r)
		}
	}()
	return job.Runner.Run(ctx, job.Input)
}

// ProcessedCount returns the total number of successfully processed jobs.
func (p *Processor) ProcessedCount() int64 { return atomic.LoadInt64(&p.processedCount) }

// ErrorCount returns the total number of failed jobs.
func (p *Processor) ErrorCount() int64 { return atomic.LoadInt64(&p.errorCount) }

// InFlight returns the number of jobs currently executing.
func (p *Processor) InFlight() int64 { return atomic.LoadInt64(&p.inFlight) }

// QueueDepth returns the number of jobs waiting for a worker.
func (p *Processor) QueueDepth() int { return len(p.jobQueue) }
