// Package taskgroup implements the Try-Push Tasks view: a read-only
// wrapper over a CI task group's tasks, filtered to the web-platform
// test suite, per spec.md §4.4.
package taskgroup

import (
	"log/slog"
	"strings"
)

// State is a CI task's terminal or in-progress state.
type State string

const (
	StatePending   State = "PENDING"
	StateRunning   State = "RUNNING"
	StateSuccess   State = "SUCCESS"
	StateFail      State = "FAIL"
	StateException State = "EXCEPTION"
)

func (s State) terminal() bool {
	return s == StateSuccess || s == StateFail || s == StateException
}

// Kind distinguishes build tasks from test tasks.
type Kind string

const (
	KindBuild Kind = "build"
	KindTest  Kind = "test"
)

// Task is a single CI job within a task group.
type Task struct {
	ID    string
	Name  string
	Kind  Kind
	State State
	// Env holds environment variables recorded for the task, used to
	// backfill try-rev from GECKO_HEAD_REV when needed.
	Env map[string]string
}

// MinSuccess is the minimum fraction of non-exceptional tasks required
// for Validate to pass.
const MinSuccess = 0.7

// FailureTarget is the default success-rate target for FailureLimitExceeded.
const FailureTarget = 0.7

// NameStates groups task-id and per-state counts for one task name.
type NameStates struct {
	TaskID string
	States map[State]int
}

// Tasks is the Try-Push Tasks view: all tasks in a task group filtered
// to the wpt suite.
type Tasks struct {
	wpt []Task
}

// New filters all to the wpt suite and wraps the result. A task is
// kept if it is a build task (whatever its name) or its name contains
// "web-platform-tests", matching Mozilla CI taskgraph naming.
func New(all []Task) *Tasks {
	var wpt []Task
	for _, t := range all {
		if isWPTTask(t) {
			wpt = append(wpt, t)
		}
	}
	return &Tasks{wpt: wpt}
}

func isWPTTask(t Task) bool {
	return t.Kind == KindBuild || strings.Contains(t.Name, "web-platform-tests")
}

// All returns every wpt task in the group.
func (v *Tasks) All() []Task {
	return v.wpt
}

// Complete reports whether every task reached a terminal state.
// allowUnscheduled additionally treats every StatePending task as
// terminal, whether or not other tasks of the same name started.
func (v *Tasks) Complete(allowUnscheduled bool) bool {
	for _, t := range v.wpt {
		if t.State.terminal() {
			continue
		}
		if allowUnscheduled && t.State == StatePending {
			continue
		}
		return false
	}
	return true
}

// Validate returns false, with a logged diagnostic, when the wpt task
// set is empty or the exception rate exceeds 1 - MinSuccess.
func (v *Tasks) Validate(logger *slog.Logger) bool {
	if logger == nil {
		logger = slog.Default()
	}
	if len(v.wpt) == 0 {
		logger.Warn("taskgroup validation failed: no wpt tasks in group")
		return false
	}

	exceptions := 0
	for _, t := range v.wpt {
		if t.State == StateException {
			exceptions++
		}
	}
	rate := float64(exceptions) / float64(len(v.wpt))
	if rate > 1-MinSuccess {
		logger.Warn("taskgroup validation failed: exception rate exceeds threshold",
			"rate", rate, "threshold", 1-MinSuccess)
		return false
	}
	return true
}

// WPTStates groups wpt tasks by name: name -> {task_id, states}. task_id
// is one arbitrary (first-seen) id per name, used for retrigger.
func (v *Tasks) WPTStates() map[string]NameStates {
	out := make(map[string]NameStates)
	for _, t := range v.wpt {
		ns, ok := out[t.Name]
		if !ok {
			ns = NameStates{TaskID: t.ID, States: map[State]int{}}
		}
		ns.States[t.State]++
		out[t.Name] = ns
	}
	return out
}

// Success reports whether there is at least one task and every task
// is SUCCESS.
func (v *Tasks) Success() bool {
	if len(v.wpt) == 0 {
		return false
	}
	for _, t := range v.wpt {
		if t.State != StateSuccess {
			return false
		}
	}
	return true
}

// HasFailures reports whether any task is FAIL.
func (v *Tasks) HasFailures() bool {
	for _, t := range v.wpt {
		if t.State == StateFail {
			return true
		}
	}
	return false
}

// HasCompletedTests reports whether, among test tasks (excluding
// builds), at least one reached SUCCESS or FAIL.
func (v *Tasks) HasCompletedTests() bool {
	for _, t := range v.wpt {
		if t.Kind == KindBuild {
			continue
		}
		if t.State == StateSuccess || t.State == StateFail {
			return true
		}
	}
	return false
}

// SuccessRate is the ratio of SUCCESS tasks to total wpt tasks; 0 if empty.
func (v *Tasks) SuccessRate() float64 {
	if len(v.wpt) == 0 {
		return 0
	}
	success := 0
	for _, t := range v.wpt {
		if t.State == StateSuccess {
			success++
		}
	}
	return float64(success) / float64(len(v.wpt))
}

// FailureLimitExceeded reports whether SuccessRate is below target.
func (v *Tasks) FailureLimitExceeded(target float64) bool {
	return v.SuccessRate() < target
}

// RetriggeredWPTStates returns the subset of WPTStates whose total
// state count exceeds max(1, retriggerCount/2) -- i.e. names that were
// actually retriggered beyond the original run.
func (v *Tasks) RetriggeredWPTStates(retriggerCount int) map[string]NameStates {
	threshold := retriggerCount / 2
	if threshold < 1 {
		threshold = 1
	}

	out := make(map[string]NameStates)
	for name, ns := range v.WPTStates() {
		total := 0
		for _, c := range ns.States {
			total += c
		}
		if total > threshold {
			out[name] = ns
		}
	}
	return out
}

// FailedBuilds returns build-kind tasks currently in FAIL.
func (v *Tasks) FailedBuilds() []Task {
	return v.buildsWithState(StateFail)
}

// SuccessfulBuilds returns build-kind tasks currently in SUCCESS.
func (v *Tasks) SuccessfulBuilds() []Task {
	return v.buildsWithState(StateSuccess)
}

func (v *Tasks) buildsWithState(s State) []Task {
	var out []Task
	for _, t := range v.wpt {
		if t.Kind == KindBuild && t.State == s {
			out = append(out, t)
		}
	}
	return out
}
