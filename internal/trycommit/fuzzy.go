package trycommit

import (
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// FuzzyConfig is the fuzzy test-selection configuration for a single
// try push, per spec.md §4.2.
type FuzzyConfig struct {
	// Queries are fuzzy query strings; a single query is a one-element
	// list. Empty means the default query excluding uninteresting
	// platforms (see NormalizeQueries).
	Queries []string
	// Full includes the full test set.
	Full bool
	// DisableTargetTaskFilter bypasses the CI's default task filter.
	DisableTargetTaskFilter bool
	// Artifact selects artifact vs full build (default true).
	Artifact bool
	// Rebuild is the repeat count: 0 unless Stability, in which case
	// the caller fills in the configured stability count.
	Rebuild int
	// Paths restricts the selection to specific test paths (e.g. the
	// files touched by the PR). BuildArgv passes them on as given;
	// glob patterns are not expanded there. ExpandPaths can resolve
	// doublestar patterns against a candidate set beforehand.
	Paths []string
	// MaxPaths caps the number of path arguments; 0 means unlimited.
	MaxPaths int
}

// DefaultQuery excludes platforms that are typically uninteresting for
// a wpt-triggered try push.
const DefaultQuery = "!macosx !android !asan"

// NotifyRoute is the pulse notification route requested on submission,
// added only when the submission tool advertises --route support.
const NotifyRoute = "notify.pulse.wptsync.try-task.on-any"

// NormalizeQueries returns queries unchanged, or a one-element list
// holding DefaultQuery when queries is empty.
func NormalizeQueries(queries []string) []string {
	if len(queries) == 0 {
		return []string{DefaultQuery}
	}
	return queries
}

// ExpandPaths matches each pattern in patterns against candidates
// using doublestar glob semantics, preserving candidate order and
// de-duplicating. Patterns without glob metacharacters that exactly
// equal a candidate also match (doublestar.Match handles this).
func ExpandPaths(patterns []string, candidates []string) []string {
	if len(patterns) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(candidates))
	var out []string
	for _, candidate := range candidates {
		for _, pattern := range patterns {
			ok, err := doublestar.Match(pattern, candidate)
			if err != nil {
				continue
			}
			if ok && !seen[candidate] {
				seen[candidate] = true
				out = append(out, candidate)
				break
			}
		}
	}
	return out
}

// CapPaths truncates paths to max entries, keeping the input's prefix
// (deterministic truncation per spec.md §4.2). max <= 0 means unlimited.
func CapPaths(paths []string, max int) []string {
	if max <= 0 || len(paths) <= max {
		return paths
	}
	return paths[:max]
}

// BuildArgv assembles the submission command's arguments in the exact
// order spec.md §4.2 requires: fuzzy, one -q per query, --rebuild n
// (if > 0), --full, --disable-target-task-filter, --route (only if
// routeSupported), --artifact/--no-artifact, then the capped paths.
func BuildArgv(cfg FuzzyConfig, routeSupported bool) []string {
	argv := []string{"fuzzy"}

	for _, q := range NormalizeQueries(cfg.Queries) {
		argv = append(argv, "-q", q)
	}

	if cfg.Rebuild > 0 {
		argv = append(argv, "--rebuild", strconv.Itoa(cfg.Rebuild))
	}

	if cfg.Full {
		argv = append(argv, "--full")
	}

	if cfg.DisableTargetTaskFilter {
		argv = append(argv, "--disable-target-task-filter")
	}

	if routeSupported {
		argv = append(argv, "--route="+NotifyRoute)
	}

	if cfg.Artifact {
		argv = append(argv, "--artifact")
	} else {
		argv = append(argv, "--no-artifact")
	}

	capped := CapPaths(cfg.Paths, cfg.MaxPaths)
	argv = append(argv, capped...)

	return argv
}

// RouteSupported reports whether the submission tool's --help output
// advertises --route support.
func RouteSupported(helpText string) bool {
	return strings.Contains(helpText, "--route")
}

