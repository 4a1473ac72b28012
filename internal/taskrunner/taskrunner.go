// Package taskrunner is the external collaborator named in spec.md §6: a
// TaskRunner submits a named task for delayed execution, lets the running
// task ask whether it's been aborted, and lets it report progress. The
// Retry Scheduler (§4.7.3) is its main caller, submitting "thumbnail.retry"
// after a COUNTDOWN; the Local-Import Use Case uses IsAborted/ReportProgress
// while running a session's queue.
package taskrunner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mantonx/mediavault/internal/clock"
	"github.com/mantonx/mediavault/internal/logger"
)

// TaskInstance is the opaque handle passed to a running task's body, and to
// IsAborted/ReportProgress. ExternalTaskID is the value persisted onto a
// TaskRecord row so the two line up.
type TaskInstance struct {
	ExternalTaskID string
	TaskName       string
}

// ProgressUpdate mirrors spec.md §6's report_progress payload shape.
type ProgressUpdate struct {
	Current int
	Total   int
	Percent int
	Status  string
	Message string
}

// Handler is the body a task name is registered with. args carries whatever
// the caller passed to SubmitDelayed.
type Handler func(ctx context.Context, inst *TaskInstance, args map[string]interface{}) error

// TaskRunner is the collaborator contract; components depend on this
// interface, never on InProcess directly.
type TaskRunner interface {
	SubmitDelayed(ctx context.Context, taskName string, args map[string]interface{}, countdown time.Duration) (externalTaskID string, err error)
	IsAborted(inst *TaskInstance) bool
	ReportProgress(inst *TaskInstance, update ProgressUpdate)
}

// InProcess is the default TaskRunner: task bodies run in this process on a
// time.AfterFunc timer rather than being handed off to an external broker.
// A handler must be registered for a task name before it can be submitted.
type InProcess struct {
	mu       sync.Mutex
	handlers map[string]Handler
	aborted  map[string]bool
	clock    clock.Clock
	log      logger.Logger
}

// NewInProcess returns a ready-to-use in-process TaskRunner.
func NewInProcess(c clock.Clock, log logger.Logger) *InProcess {
	if c == nil {
		c = clock.Real
	}
	return &InProcess{
		handlers: make(map[string]Handler),
		aborted:  make(map[string]bool),
		clock:    c,
		log:      logger.OrNop(log),
	}
}

// RegisterHandler binds a task name to the function SubmitDelayed will
// eventually invoke. Registration is expected at startup, before any
// session work begins.
func (r *InProcess) RegisterHandler(taskName string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[taskName] = h
}

// SubmitDelayed schedules taskName to run after countdown and returns the
// external_task_id a caller persists alongside its own TaskRecord.
func (r *InProcess) SubmitDelayed(ctx context.Context, taskName string, args map[string]interface{}, countdown time.Duration) (string, error) {
	r.mu.Lock()
	handler, ok := r.handlers[taskName]
	r.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("taskrunner: no handler registered for %q", taskName)
	}

	externalTaskID := uuid.NewString()
	inst := &TaskInstance{ExternalTaskID: externalTaskID, TaskName: taskName}

	r.log.Event("taskrunner.submitted",
		logger.F("task_name", taskName),
		logger.F("external_task_id", externalTaskID),
		logger.F("countdown_seconds", countdown.Seconds()))

	time.AfterFunc(countdown, func() {
		if r.IsAborted(inst) {
			return
		}
		if err := handler(ctx, inst, args); err != nil {
			r.log.Error("taskrunner.failed", err,
				logger.F("task_name", taskName),
				logger.F("external_task_id", externalTaskID))
		}
	})

	return externalTaskID, nil
}

// IsAborted reports whether Abort has been called for inst's task.
func (r *InProcess) IsAborted(inst *TaskInstance) bool {
	if inst == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.aborted[inst.ExternalTaskID]
}

// Abort marks externalTaskID as aborted; a pending or in-flight task checks
// this via IsAborted and treats it as a caller-requested cancellation.
func (r *InProcess) Abort(externalTaskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aborted[externalTaskID] = true
}

// ReportProgress logs the progress update; callers that need it surfaced
// elsewhere (a picker session's stats blob, a UI) read it back off the log
// or, more commonly, update their own row directly rather than through this
// collaborator.
func (r *InProcess) ReportProgress(inst *TaskInstance, update ProgressUpdate) {
	if inst == nil {
		return
	}
	r.log.Event("taskrunner.progress",
		logger.F("task_name", inst.TaskName),
		logger.F("external_task_id", inst.ExternalTaskID),
		logger.F("current", update.Current),
		logger.F("total", update.Total),
		logger.F("percent", update.Percent),
		logger.F("status", update.Status),
		logger.F("message", update.Message))
}
