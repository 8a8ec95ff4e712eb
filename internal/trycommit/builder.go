package trycommit

import (
	"context"
	"fmt"
	"regexp"

	"github.com/google/uuid"
	"github.com/mozilla/wpt-sync/internal/refstore"
	"github.com/mozilla/wpt-sync/internal/wpterrors"
)

// revisionPattern matches the submission tool's `revision=<40 hex>` marker.
var revisionPattern = regexp.MustCompile(`revision=([0-9a-f]{40})`)

// HacksCommitMessage is the documented commit message used when
// apply_hacks mutates the CI configuration before push.
const HacksCommitMessage = "try: empty ridealong-builds for wpt-sync scheduling"

// CIConfigMutator empties a named build category under a CI config
// section and writes the result, returning true if it changed
// anything (so Builder can skip an empty commit).
type CIConfigMutator interface {
	EmptyCategory(ctx context.Context, workDir, section, category string) (changed bool, err error)
}

// Builder is the scoped Try-Commit resource. Create one per push
// attempt; always Close it (typically via defer) so the worktree is
// reset even on error or panic.
type Builder struct {
	workDir    string
	runner     refstore.CommandRunner
	submitter  ciSubmitter
	bridge     ciBridge
	mutator    CIConfigMutator
	preHead    string
	mutated    bool
	id         string
}

// ciSubmitter and ciBridge are narrowed copies of internal/ci's
// interfaces to avoid an import cycle risk as the package grows; they
// are satisfied by any internal/ci.Submitter / RevisionBridge value.
type ciSubmitter interface {
	Prep(ctx context.Context, workDir string) error
	Submit(ctx context.Context, workDir string, argv []string) (string, error)
	HelpText(ctx context.Context) (string, error)
}

type ciBridge interface {
	Translate(ctx context.Context, localHead string) (string, error)
}

// NewBuilder creates a Builder rooted at workDir (an already-acquired
// worktree). submitter and bridge are the CI-cluster collaborators;
// mutator may be nil if hacks are never requested.
func NewBuilder(workDir string, runner refstore.CommandRunner, submitter ciSubmitter, bridge ciBridge, mutator CIConfigMutator) *Builder {
	return &Builder{
		workDir:   workDir,
		runner:    runner,
		submitter: submitter,
		bridge:    bridge,
		mutator:   mutator,
		id:        uuid.NewString(),
	}
}

// ID is a correlation id for log lines tied to this builder's single
// submission attempt.
func (b *Builder) ID() string {
	return b.id
}

// Open records the worktree's pre-mutation HEAD. Call before
// ApplyHacks/Push.
func (b *Builder) Open(ctx context.Context) error {
	head, err := b.runner.Run(b.workDir, "git", "rev-parse", "HEAD")
	if err != nil {
		return wpterrors.Abort("resolve worktree HEAD", err)
	}
	b.preHead = head
	return nil
}

// ApplyHacks mutates the project's CI configuration to empty out the
// "ridealong-builds" category under "try", committing the change with
// HacksCommitMessage so it is included in the submitted tree. No-op
// if hacks is false.
func (b *Builder) ApplyHacks(ctx context.Context, hacks bool) error {
	if !hacks {
		return nil
	}
	if b.mutator == nil {
		return wpterrors.Abort("apply_hacks requested but no CIConfigMutator configured", nil)
	}

	changed, err := b.mutator.EmptyCategory(ctx, b.workDir, "try", "ridealong-builds")
	if err != nil {
		return wpterrors.Retryable("mutate CI config for hacks", err)
	}
	if !changed {
		return nil
	}

	if _, err := b.runner.Run(b.workDir, "git", "commit", "-am", HacksCommitMessage); err != nil {
		return wpterrors.Retryable("commit hacks mutation", err)
	}
	b.mutated = true
	return nil
}

// Push performs a hard reset to the current worktree tip, ensures an
// object directory exists via Submitter.Prep, assembles the submission
// argv, runs it, and parses stdout for the remote revision. Falls back
// to the revision bridge if the marker is absent; returns (nil, nil)
// if both fail to resolve a revision (spec.md §4.2).
func (b *Builder) Push(ctx context.Context, cfg FuzzyConfig) (*string, error) {
	if _, err := b.runner.Run(b.workDir, "git", "reset", "--hard", "HEAD"); err != nil {
		return nil, wpterrors.Retryable("hard reset worktree before push", err)
	}

	if err := b.submitter.Prep(ctx, b.workDir); err != nil {
		return nil, wpterrors.Retryable("prep object directory", err)
	}

	help, err := b.submitter.HelpText(ctx)
	if err != nil {
		return nil, wpterrors.Retryable("fetch submission tool help text", err)
	}

	argv := BuildArgv(cfg, RouteSupported(help))

	stdout, err := b.submitter.Submit(ctx, b.workDir, argv)
	if err != nil {
		return nil, wpterrors.Retryable("submit try push", err)
	}

	if m := revisionPattern.FindStringSubmatch(stdout); m != nil {
		rev := m[1]
		return &rev, nil
	}

	head, err := b.runner.Run(b.workDir, "git", "rev-parse", "HEAD")
	if err != nil {
		return nil, nil
	}
	rev, err := b.bridge.Translate(ctx, head)
	if err != nil || rev == "" {
		return nil, nil
	}
	return &rev, nil
}

// Close resets the worktree HEAD to the pre-Open commit if any
// mutation occurred (ApplyHacks committed hacks). Safe to call
// multiple times; safe to call even if Open was never called.
func (b *Builder) Close(ctx context.Context) error {
	if !b.mutated || b.preHead == "" {
		return nil
	}
	if _, err := b.runner.Run(b.workDir, "git", "reset", "--hard", b.preHead); err != nil {
		return fmt.Errorf("reset worktree to pre-mutation head %s: %w", b.preHead, err)
	}
	b.mutated = false
	return nil
}
