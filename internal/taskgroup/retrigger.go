package taskgroup

import (
	"context"
	"log/slog"
	"strings"
)

// Retrigger requests count additional runs of taskID. Implemented by
// the out-of-scope CI-cluster client (internal/ci.Retrigger).
type Retrigger interface {
	RetriggerTask(ctx context.Context, taskID string, count int) error
}

// DefaultRetriggerCount is the default additional-run count requested
// per failing task name.
const DefaultRetriggerCount = 6

// aarch64Marker excludes arm64 task names from retrigger, since they
// run on a constrained pool and flaking there isn't actionable the
// same way.
const aarch64Marker = "-aarch64"

// RetriggerFailures submits a retrigger request for `count` additional
// runs of every task name whose states contain any FAIL or EXCEPTION,
// skipping names containing "-aarch64". Returns the number of jobs
// successfully created.
func RetriggerFailures(ctx context.Context, v *Tasks, client Retrigger, count int, logger *slog.Logger) int {
	if logger == nil {
		logger = slog.Default()
	}
	if count <= 0 {
		count = DefaultRetriggerCount
	}

	created := 0
	for name, ns := range v.WPTStates() {
		if strings.Contains(name, aarch64Marker) {
			continue
		}
		if ns.States[StateFail] == 0 && ns.States[StateException] == 0 {
			continue
		}

		if err := client.RetriggerTask(ctx, ns.TaskID, count); err != nil {
			logger.Warn("retrigger failed", "task", name, "task_id", ns.TaskID, "error", err)
			continue
		}
		created += count
	}
	return created
}
