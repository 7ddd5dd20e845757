package jobqueue

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Handler processes one dequeued job. A returned error marks the job failed.
type Handler func(ctx context.Context, job Job) error

// Worker pulls jobs off a queue and runs them through a handler, marking the
// lifecycle transitions around each run. One Worker processes one job at a
// time; run several for parallelism.
type Worker struct {
	queue       Queue
	handler     Handler
	logger      *zap.Logger
	pollTimeout time.Duration
}

// NewWorker creates a Worker.
func NewWorker(queue Queue, handler Handler, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:       queue,
		handler:     handler,
		logger:      logger,
		pollTimeout: 5 * time.Second,
	}
}

// Run processes jobs until ctx is cancelled. The job currently being handled
// runs to completion; cancellation stops the dequeue loop.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started")
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopping")
			return ctx.Err()
		default:
		}

		job, err := w.queue.Dequeue(ctx, w.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				w.logger.Info("worker stopping")
				return ctx.Err()
			}
			w.logger.Error("dequeue failed", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		if job == nil {
			continue
		}

		w.process(ctx, *job)
	}
}

func (w *Worker) process(ctx context.Context, job Job) {
	logger := w.logger.With(zap.String("job_id", job.ID))
	start := time.Now()

	if err := w.queue.MarkStarted(ctx, job.ID); err != nil {
		logger.Error("failed to mark job started", zap.Error(err))
	}
	logger.Info("job started")

	err := w.runHandler(ctx, job)
	if err != nil {
		logger.Error("job failed",
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		if markErr := w.queue.MarkFailed(ctx, job.ID, err.Error()); markErr != nil {
			logger.Error("failed to mark job failed", zap.Error(markErr))
		}
		return
	}

	logger.Info("job finished", zap.Duration("duration", time.Since(start)))
	if err := w.queue.MarkFinished(ctx, job.ID); err != nil {
		logger.Error("failed to mark job finished", zap.Error(err))
	}
}

// runHandler isolates handler panics so one bad job cannot kill the worker.
func (w *Worker) runHandler(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return w.handler(ctx, job)
}
