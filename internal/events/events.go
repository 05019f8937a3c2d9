// Package events reports build progress to observers outside the process
// log: a structured debug log and, optionally, a socket.io endpoint.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/vk/bert/internal/ctxlog"
)

// Kind names a build event.
type Kind string

const (
	BuildStarted  Kind = "build_started"
	BuildFinished Kind = "build_finished"
	StageFinished Kind = "stage_finished"
	TaskStarted   Kind = "task_started"
	TaskCached    Kind = "task_cached"
	TaskCommitted Kind = "task_committed"
	TaskSkipped   Kind = "task_skipped"
	TaskFailed    Kind = "task_failed"
)

// Event is one build progress notification.
type Event struct {
	Kind        Kind      `json:"kind"`
	RunID       string    `json:"run_id"`
	Chain       string    `json:"chain,omitempty"`
	Stage       string    `json:"stage,omitempty"`
	Task        string    `json:"task,omitempty"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	Image       string    `json:"image,omitempty"`
	Error       string    `json:"error,omitempty"`
	Time        time.Time `json:"time"`
}

// Reporter receives build events. Emit must not block the build for long;
// delivery failures are logged, not returned.
type Reporter interface {
	Emit(ctx context.Context, e Event)
}

// NewRunID returns a fresh identifier for one build run.
func NewRunID() string {
	return uuid.NewString()
}

// LogReporter writes events to the context logger at debug level.
type LogReporter struct{}

func (LogReporter) Emit(ctx context.Context, e Event) {
	ctxlog.FromContext(ctx).Debug("Build event.",
		"kind", e.Kind,
		"run_id", e.RunID,
		"chain", e.Chain,
		"stage", e.Stage,
		"task", e.Task,
		"fingerprint", e.Fingerprint,
		"image", e.Image,
	)
}

// Multi fans an event out to several reporters.
type Multi []Reporter

func (m Multi) Emit(ctx context.Context, e Event) {
	for _, r := range m {
		r.Emit(ctx, e)
	}
}

// Recorder keeps every event in memory.
type Recorder struct {
	Events []Event
}

func (r *Recorder) Emit(_ context.Context, e Event) {
	r.Events = append(r.Events, e)
}

// Kinds returns the kinds of the recorded events in order.
func (r *Recorder) Kinds() []Kind {
	out := make([]Kind, len(r.Events))
	for i, e := range r.Events {
		out[i] = e.Kind
	}
	return out
}
