// Copyright (C) INFINI Labs & INFINI LIMITED.
//
// The INFINI Runtime Operator is offered under the GNU Affero General Public License v3.0
// and as commercial software.
//
// For commercial licensing, contact us at:
//   - Website: infinilabs.com
//   - Email: hello@infini.ltd
//
// Open Source licensed under AGPL V3:
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// pkg/reconcilers/common/task_runner.go
package common

import (
	"context"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/infinilabs/dashboard-operator/pkg/status"
)

// RunTasks executes tasks in order and stops at the first one that is not active.
// It returns that task's status and name, or Active and "" when every task completed.
func RunTasks(ctx context.Context, tasks []Task) (status.Status, string) {
	logger := log.FromContext(ctx)

	for _, task := range tasks {
		taskLogger := logger.WithValues("task", task.Name())
		taskLogger.V(1).Info("Starting task execution")

		st := task.Execute(ctx)

		switch ResultFor(st) {
		case TaskResultComplete:
			taskLogger.V(1).Info("Task completed successfully")
			continue
		case TaskResultPending:
			// Waiting is routine, so it is logged at info rather than error.
			taskLogger.Info("Task pending, stopping sequence", "reason", st.Reason(), "message", st.Message())
		default:
			taskLogger.Info("Task failed, stopping sequence", "reason", st.Reason(), "severity", st.Severity(), "message", st.Message())
		}
		return st, task.Name()
	}

	logger.V(1).Info("All tasks completed")
	return status.Active(), ""
}
