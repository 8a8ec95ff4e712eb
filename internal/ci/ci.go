// Package ci declares the out-of-scope collaborators the core depends
// on to reach the remote CI cluster: tree-open status, fuzzy-query
// submission, task retrigger, log download, and the git-to-hg
// revision bridge used when a submission's stdout doesn't carry the
// remote revision directly. None of these are implemented here — the
// core only defines and calls them (spec.md §1 "Out of scope").
package ci

import "context"

// TreeStatus reports whether the try tree currently accepts submissions.
type TreeStatus interface {
	IsOpen(ctx context.Context) (bool, error)
}

// Submitter runs the fuzzy test-selection submission tool and, as a
// pragmatic workaround for an environment-dependent bug, can be asked
// to "prep" the object directory by invoking the project's build tool
// with an empty command (spec.md §4.2).
type Submitter interface {
	Prep(ctx context.Context, workDir string) error
	// Submit runs the submission tool with argv in workDir and returns
	// its combined stdout.
	Submit(ctx context.Context, workDir string, argv []string) (stdout string, err error)
	// HelpText returns the submission tool's --help output, used to
	// detect whether --route is supported before adding it to argv.
	HelpText(ctx context.Context) (string, error)
}

// RevisionBridge translates a local worktree HEAD into the remote
// revision space (e.g. git-cinnabar's git-to-hg mapping) when the
// submission tool's stdout doesn't carry `revision=<sha>` directly.
type RevisionBridge interface {
	Translate(ctx context.Context, localHead string) (string, error)
}

// Retrigger requests count additional runs of taskID.
type Retrigger interface {
	RetriggerTask(ctx context.Context, taskID string, count int) error
}

// LogFetcher downloads a named artifact for a task to destPath.
type LogFetcher interface {
	FetchLog(ctx context.Context, taskID, filename, destPath string) error
}

// WorktreeProvider acquires and releases a working copy of a Sync's
// source repo. Checkout/cleanup mechanics live outside the core
// (spec.md §1); the core only needs the path and a release func.
type WorktreeProvider interface {
	Acquire(ctx context.Context, repoURL string) (path string, release func(), err error)
}
