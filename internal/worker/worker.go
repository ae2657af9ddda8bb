package worker

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"assetintel/internal/intelligence"
	"assetintel/internal/queue"
	"assetintel/internal/repository"
)

const dequeuePoll = 2 * time.Second

// Worker consumes the run queue with bounded concurrency. Each job gets its
// own intelligence service and deadline; exhausted jobs dead-letter.
type Worker struct {
	store       *repository.Repository
	queue       *queue.Queue
	fetcher     *intelligence.Fetcher
	engine      intelligence.Engine
	concurrency int
	jobTimeout  time.Duration
	maxTries    int
}

// Options configure a Worker.
type Options struct {
	Concurrency int
	JobTimeout  time.Duration
	MaxTries    int
	Engine      intelligence.Engine
}

func New(store *repository.Repository, q *queue.Queue, opts Options) *Worker {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 10
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 10 * time.Minute
	}
	if opts.MaxTries <= 0 {
		opts.MaxTries = 3
	}
	return &Worker{
		store:       store,
		queue:       q,
		fetcher:     intelligence.NewFetcher(),
		engine:      opts.Engine,
		concurrency: opts.Concurrency,
		jobTimeout:  opts.JobTimeout,
		maxTries:    opts.MaxTries,
	}
}

// Run consumes jobs until the context is canceled, then waits for in-flight
// jobs to drain.
func (w *Worker) Run(ctx context.Context) {
	log.Printf("[worker] starting, concurrency=%d timeout=%s max_tries=%d",
		w.concurrency, w.jobTimeout, w.maxTries)

	sem := make(chan struct{}, w.concurrency)
	var wg sync.WaitGroup

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			log.Printf("[worker] drained, stopping")
			return
		default:
		}

		job, err := w.queue.Dequeue(ctx, dequeuePoll)
		if err != nil {
			if errors.Is(err, queue.ErrEmpty) || errors.Is(err, context.Canceled) {
				continue
			}
			log.Printf("[worker] dequeue error: %v", err)
			time.Sleep(time.Second)
			continue
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(job queue.Job) {
			defer wg.Done()
			defer func() { <-sem }()
			w.handleJob(job)
		}(*job)
	}
}

// handleJob executes one queued run attempt. Failures re-enqueue with an
// incremented try counter until the budget runs out, then dead-letter.
func (w *Worker) handleJob(job queue.Job) {
	ctx, cancel := context.WithTimeout(context.Background(), w.jobTimeout)
	defer cancel()

	// Each job gets its own service so job-scoped state never leaks between
	// concurrent runs.
	svc := intelligence.NewService(w.store, w.queue, w.fetcher, w.engine, true, w.jobTimeout)

	err := svc.Dispatch(ctx, job.Task, job.RunID)
	if err == nil {
		return
	}
	log.Printf("[worker] run %s attempt %d/%d failed: %v", job.RunID, job.JobTry, w.maxTries, err)

	run, loadErr := w.store.GetRun(ctx, job.RunID)
	if loadErr != nil {
		log.Printf("[worker] cannot load run %s after failure: %v", job.RunID, loadErr)
		return
	}

	if job.JobTry < w.maxTries {
		// The dispatcher left the run failed; return it to pending before
		// the next attempt.
		if resetErr := w.store.ResetRunForRequeue(ctx, job.RunID); resetErr != nil {
			log.Printf("[worker] cannot reset run %s for retry: %v", job.RunID, resetErr)
			return
		}
		if qErr := w.queue.Requeue(ctx, job); qErr != nil {
			log.Printf("[worker] cannot requeue run %s: %v", job.RunID, qErr)
		}
		return
	}

	if dlErr := svc.DeadletterRun(ctx, job, run, err); dlErr != nil {
		log.Printf("[worker] failed to dead-letter run %s: %v", job.RunID, dlErr)
	}
}
