// pkg/reconcilers/common/task_interfaces.go
package common

import (
	"context"

	"github.com/infinilabs/dashboard-operator/pkg/status"
)

// Task defines the contract for a single step of a reconciliation pass.
// Tasks run in order; the first one that does not report an active status ends the pass.
type Task interface {
	// Name identifies the task in logs.
	Name() string
	// Execute performs the task logic and reports its outcome.
	Execute(ctx context.Context) status.Status
}

// TaskResult indicates the outcome of a Task execution.
type TaskResult string

const (
	TaskResultComplete TaskResult = "Complete" // Task finished successfully in this reconciliation cycle.
	TaskResultPending  TaskResult = "Pending"  // Task is waiting for state that will arrive on its own. Requeue required.
	TaskResultFailed   TaskResult = "Failed"   // Task needs an outside change, or cannot be retried at all.
)

// ResultFor maps a status onto a TaskResult.
func ResultFor(s status.Status) TaskResult {
	switch s.Severity() {
	case status.SeverityActive:
		return TaskResultComplete
	case status.SeverityWaiting:
		return TaskResultPending
	default:
		return TaskResultFailed
	}
}

type funcTask struct {
	name string
	fn   func(ctx context.Context) status.Status
}

func (t funcTask) Name() string                              { return t.name }
func (t funcTask) Execute(ctx context.Context) status.Status { return t.fn(ctx) }

// NewTask wraps fn as a named Task.
func NewTask(name string, fn func(ctx context.Context) status.Status) Task {
	return funcTask{name: name, fn: fn}
}
