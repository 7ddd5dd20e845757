package eventlog

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Emitter is the sole writer of one job's event log. Emit appends to the
// store, then forwards the event to an attached live subscriber if one
// exists. Emission never fails the caller: a progress stream problem must
// not take down the job producing it, so failures are logged and swallowed.
type Emitter struct {
	jobID  string
	store  Store
	logger *zap.Logger

	mu     sync.Mutex
	sub    chan Event
	closed bool
}

// NewEmitter creates an Emitter for one job.
func NewEmitter(store Store, jobID string, logger *zap.Logger) *Emitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Emitter{jobID: jobID, store: store, logger: logger}
}

// JobID returns the job this emitter writes for.
func (e *Emitter) JobID() string { return e.jobID }

// Subscribe attaches a live channel of the given buffer size, replacing any
// previous subscriber. Events that arrive while the buffer is full are
// dropped from the channel, never from the log; a reader that falls behind
// catches up from the store.
func (e *Emitter) Subscribe(buffer int) <-chan Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sub != nil && !e.closed {
		close(e.sub)
	}
	e.closed = false
	e.sub = make(chan Event, buffer)
	return e.sub
}

// Emit appends an event and pushes it to the live subscriber. The returned
// sequence index is -1 if the append failed.
func (e *Emitter) Emit(ctx context.Context, kind Kind, message string, fields map[string]any) int64 {
	body, err := NewBody(kind, message, fields)
	if err != nil {
		e.logger.Warn("failed to encode event",
			zap.String("job_id", e.jobID),
			zap.String("kind", string(kind)),
			zap.Error(err))
		return -1
	}

	seq, err := e.store.Append(ctx, e.jobID, body)
	if err != nil {
		e.logger.Warn("failed to append event",
			zap.String("job_id", e.jobID),
			zap.String("kind", string(kind)),
			zap.Error(err))
		return -1
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sub != nil && !e.closed {
		select {
		case e.sub <- Event{Seq: seq, Body: body}:
		default:
			e.logger.Debug("live subscriber full, event dropped from channel",
				zap.String("job_id", e.jobID),
				zap.Int64("seq", seq))
		}
	}
	return seq
}

// Close closes the live subscriber channel. The log itself is untouched.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sub != nil && !e.closed {
		close(e.sub)
		e.closed = true
	}
}
