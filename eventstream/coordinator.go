// Package eventstream turns a job's event log into a live, resumable stream.
// A stream replays everything already logged, then tails the log by cursor
// until the job reaches a terminal status. Because the log is the source of
// truth, a client that connects before, during, or after the job sees the
// same events in the same order.
package eventstream

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/prodsnap/prodsnap/eventlog"
	"github.com/prodsnap/prodsnap/jobqueue"
)

const (
	// DefaultPollInterval is the tail poll sleep when the log had no news.
	DefaultPollInterval = 500 * time.Millisecond
	// DefaultMaxWait bounds how long one stream stays open.
	DefaultMaxWait = 10 * time.Minute
)

// Coordinator serves event streams for jobs.
type Coordinator struct {
	store        eventlog.Store
	queue        jobqueue.Queue
	logger       *zap.Logger
	pollInterval time.Duration
	maxWait      time.Duration
}

// NewCoordinator creates a Coordinator with default polling and wait bounds.
func NewCoordinator(store eventlog.Store, queue jobqueue.Queue, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		store:        store,
		queue:        queue,
		logger:       logger,
		pollInterval: DefaultPollInterval,
		maxWait:      DefaultMaxWait,
	}
}

// Stream sends the job's events to send, in order, starting from the
// beginning of the log, and returns when the job is terminal, the client
// disconnects (send error or ctx cancel), or the max wait elapses. An unknown
// job gets a single waiting notice. A failed job whose log lacks a terminal
// event gets a synthesized error event so the client always sees an ending.
// The same holds when the stream itself fails: a log or queue read error is
// sent to the client as a terminal error event before Stream returns it.
func (c *Coordinator) Stream(ctx context.Context, jobID string, send func(eventlog.Event) error) error {
	cursor, err := c.stream(ctx, jobID, send)
	if err == nil {
		return nil
	}
	// The client is still connected, so it still gets an ending. Not
	// appended: the log may be the thing that is broken.
	body, berr := eventlog.NewBody(eventlog.KindError,
		"Event stream failed",
		map[string]any{"error": err.Error(), "synthesized": true})
	if berr == nil {
		send(eventlog.Event{Seq: cursor, Body: body})
	}
	return err
}

// stream is the replay-then-tail loop. It returns the cursor (next unsent
// sequence index) alongside any error so Stream can number a failure notice.
func (c *Coordinator) stream(ctx context.Context, jobID string, send func(eventlog.Event) error) (int64, error) {
	logger := c.logger.With(zap.String("job_id", jobID))
	deadline := time.Now().Add(c.maxWait)

	// A job is streamable if it has events or the queue knows it.
	known, err := c.jobKnown(ctx, jobID)
	if err != nil {
		return 0, err
	}
	if !known {
		logger.Debug("stream requested for unknown job")
		body, err := eventlog.NewBody(eventlog.KindProgress,
			"Waiting for job to start. If the job ID is wrong this stream will stay empty.",
			map[string]any{"waiting": true})
		if err != nil {
			return 0, err
		}
		// A failed send means the client left; either way this stream is done.
		_ = send(eventlog.Event{Seq: 0, Body: body})
		return 0, nil
	}

	var cursor int64
	sawTerminal := false

	flush := func() error {
		events, err := c.store.Range(ctx, jobID, cursor)
		if err != nil {
			return err
		}
		for _, ev := range events {
			if err := send(ev); err != nil {
				return errClientGone
			}
			cursor = ev.Seq + 1
			if ev.Kind().IsTerminal() {
				sawTerminal = true
			}
		}
		if len(events) == 0 {
			// Nothing new; let the producer get ahead before asking again.
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.pollInterval):
			}
		}
		return nil
	}

	for {
		if err := flush(); err != nil {
			return cursor, streamErr(err)
		}
		if sawTerminal {
			return cursor, nil
		}

		status, err := c.queue.Status(ctx, jobID)
		if err != nil && !errors.Is(err, jobqueue.ErrNotFound) {
			return cursor, err
		}
		if status != nil && status.Status.IsTerminal() {
			// Drain events the job wrote between our last read and its end.
			if err := flush(); err != nil {
				return cursor, streamErr(err)
			}
			if !sawTerminal {
				c.synthesizeEnding(ctx, jobID, status, cursor, send)
			}
			return cursor, nil
		}

		if time.Now().After(deadline) {
			logger.Warn("stream hit max wait, closing")
			return cursor, nil
		}
		if ctx.Err() != nil {
			return cursor, nil
		}
	}
}

// synthesizeEnding sends a terminal event for a job that ended without
// logging one, so the stream never just goes quiet. cursor is the next
// unsent sequence index, used when the ending cannot be appended.
func (c *Coordinator) synthesizeEnding(ctx context.Context, jobID string, status *jobqueue.JobStatus, cursor int64, send func(eventlog.Event) error) {
	kind := eventlog.KindComplete
	message := "Job finished"
	fields := map[string]any{"synthesized": true}
	if status.Status == jobqueue.StatusFailed {
		kind = eventlog.KindError
		message = "Job failed"
		if status.Error != "" {
			fields["error"] = status.Error
		}
	}

	body, err := eventlog.NewBody(kind, message, fields)
	if err != nil {
		return
	}
	// Append so reconnecting clients see the ending too; best effort. When
	// the append fails the event still needs a fresh sequence index, not a
	// reused one.
	seq, err := c.store.Append(ctx, jobID, body)
	if err != nil {
		c.logger.Warn("failed to persist synthesized ending",
			zap.String("job_id", jobID), zap.Error(err))
		seq = cursor
	}
	send(eventlog.Event{Seq: seq, Body: body})
}

func (c *Coordinator) jobKnown(ctx context.Context, jobID string) (bool, error) {
	n, err := c.store.Len(ctx, jobID)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}
	_, err = c.queue.Status(ctx, jobID)
	if errors.Is(err, jobqueue.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// errClientGone marks a failed send, which means the client disconnected.
var errClientGone = errors.New("eventstream: client disconnected")

// streamErr maps client disconnects and cancellation to a clean return.
func streamErr(err error) error {
	if errors.Is(err, errClientGone) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
