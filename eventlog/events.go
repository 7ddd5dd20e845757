// Package eventlog stores and emits the per-job progress event stream. Every
// event a job produces is appended to a durable log keyed by job ID, so a
// client can replay the full history and then follow live updates. The log
// is the source of truth; live subscriber channels are a latency optimization
// layered on top of it.
package eventlog

import (
	"context"
	"encoding/json"
)

// Kind identifies the type of a progress event.
type Kind string

const (
	KindStart      Kind = "start"
	KindToolCall   Kind = "tool_call"
	KindToolResult Kind = "tool_result"
	KindProgress   Kind = "progress"
	KindComplete   Kind = "complete"
	KindError      Kind = "error"
)

// IsTerminal reports whether an event of this kind ends the stream.
func (k Kind) IsTerminal() bool {
	return k == KindComplete || k == KindError
}

// Event is one entry in a job's log. Seq is the event's position in the log,
// assigned at append time; it is not stored in the body, so replayed bodies
// are byte-identical to what was first served.
type Event struct {
	Seq  int64
	Body json.RawMessage
}

// Kind extracts the event kind from the body. Unparseable bodies report an
// empty kind, which is never terminal.
func (e Event) Kind() Kind {
	var envelope struct {
		Event Kind `json:"event"`
	}
	if err := json.Unmarshal(e.Body, &envelope); err != nil {
		return ""
	}
	return envelope.Event
}

// NewBody builds an event body from a kind, human-readable message, and any
// extra payload fields. Extra fields never override the envelope keys.
func NewBody(kind Kind, message string, fields map[string]any) (json.RawMessage, error) {
	body := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		body[k] = v
	}
	body["event"] = kind
	if message != "" {
		body["message"] = message
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// Store is an append-only per-job event log with range reads. An unknown job
// behaves like an empty log: Range returns no events and Len returns 0.
type Store interface {
	// Append adds a body to the job's log and returns its sequence index,
	// starting at 0 for the first event.
	Append(ctx context.Context, jobID string, body json.RawMessage) (int64, error)
	// Range returns events from sequence index from (inclusive) to the end of
	// the log. A from at or past the end returns an empty slice, not an error.
	Range(ctx context.Context, jobID string, from int64) ([]Event, error)
	// Len returns the number of events in the job's log.
	Len(ctx context.Context, jobID string) (int64, error)
	// Clear removes the job's log.
	Clear(ctx context.Context, jobID string) error
}
