package trypush

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/mozilla/wpt-sync/internal/ci"
	"github.com/mozilla/wpt-sync/internal/config"
	"github.com/mozilla/wpt-sync/internal/defecttracker"
	"github.com/mozilla/wpt-sync/internal/index"
	"github.com/mozilla/wpt-sync/internal/lock"
	"github.com/mozilla/wpt-sync/internal/refstore"
	"github.com/mozilla/wpt-sync/internal/trycommit"
	"github.com/mozilla/wpt-sync/internal/wpterrors"
)

// ErrNotFound is returned by load paths when no record exists at the
// requested ref.
var ErrNotFound = errors.New("trypush: not found")

// TreeherderURL builds the dashboard URL for a try revision, included
// in the creation comment (spec.md §4.3 step 10).
func TreeherderURL(tryRev string) string {
	return "https://treeherder.mozilla.org/jobs?repo=try&revision=" + tryRev
}

// Store owns Try-Push persistence, indices, and the per-(sync-type,
// pr-id) lock guarding creation and mutation (spec.md §4.3, §5).
type Store struct {
	refs           *refstore.Store
	gitRunner      refstore.CommandRunner
	tryCommitIdx   *index.Index
	taskGroupIdx   *index.Index
	locks          *lock.KeyedMutex
	treeStatus     ci.TreeStatus
	worktrees      ci.WorktreeProvider
	submitter      ci.Submitter
	bridge         ci.RevisionBridge
	mutator        trycommit.CIConfigMutator
	defectTracker  defecttracker.Client
	cfg            *config.Config
}

// Deps bundles Store's collaborators.
type Deps struct {
	Refs          *refstore.Store
	GitRunner     refstore.CommandRunner
	TryCommitIdx  *index.Index
	TaskGroupIdx  *index.Index
	Locks         *lock.KeyedMutex
	TreeStatus    ci.TreeStatus
	Worktrees     ci.WorktreeProvider
	Submitter     ci.Submitter
	Bridge        ci.RevisionBridge
	Mutator       trycommit.CIConfigMutator
	DefectTracker defecttracker.Client
	Config        *config.Config
}

// treeStatusCacheTTL bounds how stale a cached tree-open check may be
// before Create re-checks upstream.
const treeStatusCacheTTL = 30 * time.Second

// NewStore wires a Store from deps. The tree-status check is wrapped
// with a short TTL cache so a burst of concurrent Create calls across
// many PRs shares one upstream check (internal/ci.CachedTreeStatus).
func NewStore(deps Deps) *Store {
	var treeStatus ci.TreeStatus
	if deps.TreeStatus != nil {
		treeStatus = ci.NewCachedTreeStatus(deps.TreeStatus, treeStatusCacheTTL)
	}

	return &Store{
		refs:          deps.Refs,
		gitRunner:     deps.GitRunner,
		tryCommitIdx:  deps.TryCommitIdx,
		taskGroupIdx:  deps.TaskGroupIdx,
		locks:         deps.Locks,
		treeStatus:    treeStatus,
		worktrees:     deps.Worktrees,
		submitter:     deps.Submitter,
		bridge:        deps.Bridge,
		mutator:       deps.Mutator,
		defectTracker: deps.DefectTracker,
		cfg:           deps.Config,
	}
}

// CreateParams are the inputs to Create.
type CreateParams struct {
	SyncType       string
	PRID           string
	RepoURL        string
	GeckoHead      string
	WPTHead        string
	Bug            *string
	Stability      bool
	AcceptFailures bool
	Hacks          bool
	// CheckOpen defaults to true; pass false for operational overrides
	// that bypass the tree-open check (spec.md §4.3 step 1).
	CheckOpen *bool
	Fuzzy     trycommit.FuzzyConfig
}

func (p CreateParams) checkOpen() bool {
	if p.CheckOpen == nil {
		return true
	}
	return *p.CheckOpen
}

// Create performs the ten-step creation flow from spec.md §4.3,
// serialized under the (sync-type, pr-id) lock.
func (s *Store) Create(ctx context.Context, p CreateParams) (*TryPush, error) {
	unlock := s.locks.Lock(lock.Key{SyncType: p.SyncType, PRID: p.PRID})
	defer unlock()

	if p.checkOpen() {
		open, err := s.treeStatus.IsOpen(ctx)
		if err != nil {
			return nil, wpterrors.Retryable("check try tree status", err)
		}
		if !open {
			// The underlying fault is structural (closed tree), but is
			// wrapped as retryable so the orchestrator may reschedule
			// once the tree reopens (spec.md §4.2, §7).
			return nil, wpterrors.Retryable("try tree closed", wpterrors.Abort("try tree closed", nil))
		}
	}

	worktreePath, release, err := s.worktrees.Acquire(ctx, p.RepoURL)
	if err != nil {
		return nil, wpterrors.Retryable("acquire worktree", err)
	}
	defer release()

	rebuildCount := 0
	if p.Stability {
		rebuildCount = s.cfg.StabilityCount
	}

	builder := trycommit.NewBuilder(worktreePath, s.gitRunner, s.submitter, s.bridge, s.mutator)
	if err := builder.Open(ctx); err != nil {
		return nil, err
	}
	defer builder.Close(ctx)

	if err := builder.ApplyHacks(ctx, p.Hacks); err != nil {
		return nil, err
	}

	fuzzy := p.Fuzzy
	fuzzy.Rebuild = rebuildCount
	if s.cfg.MaxTests != nil {
		fuzzy.MaxPaths = *s.cfg.MaxTests
	}

	tryRev, err := builder.Push(ctx, fuzzy)
	if err != nil {
		return nil, err
	}

	seq, err := s.nextSeq(p.SyncType, p.PRID)
	if err != nil {
		return nil, err
	}

	tp := &TryPush{
		ProcessName:    ProcessName(p.SyncType, p.PRID, seq),
		SyncType:       p.SyncType,
		PRID:           p.PRID,
		Seq:            seq,
		TryRev:         tryRev,
		Status:         StatusOpen,
		Stability:      p.Stability,
		GeckoHead:      p.GeckoHead,
		WPTHead:        p.WPTHead,
		Bug:            p.Bug,
		Created:        time.Now(),
		AcceptFailures: p.AcceptFailures,
	}

	if err := s.persist(tp); err != nil {
		return nil, err
	}

	if tryRev != nil {
		if err := s.tryCommitIdx.Insert(*tryRev, tp.ProcessName); err != nil {
			return nil, fmt.Errorf("index try-rev for %s: %w", tp.ProcessName, err)
		}
	}

	s.postCreationComment(ctx, tp)

	return tp, nil
}

// postCreationComment is best-effort: it logs and swallows its own
// failure, per spec.md §7 ("side-effect operations... log and swallow
// their own failures").
func (s *Store) postCreationComment(ctx context.Context, tp *TryPush) {
	if tp.Bug == nil || s.defectTracker == nil {
		return
	}
	body := fmt.Sprintf("Pushed try build for wpt sync: %s", TreeherderURL(derefOrEmpty(tp.TryRev)))
	if err := s.defectTracker.Comment(ctx, *tp.Bug, body); err != nil {
		logSwallowed("post try-push creation comment", tp.ProcessName, err)
	}
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (s *Store) persist(tp *TryPush) error {
	payload, err := Marshal(tp)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", tp.ProcessName, err)
	}
	if err := s.refs.Write(tp.ProcessName, payload); err != nil {
		return fmt.Errorf("persist %s: %w", tp.ProcessName, err)
	}
	return nil
}

func (s *Store) load(processName string) (*TryPush, error) {
	payload, found, err := s.refs.Read(processName)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", processName, err)
	}
	if !found {
		return nil, ErrNotFound
	}
	tp, err := Unmarshal(payload)
	if err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", processName, err)
	}
	return tp, nil
}

func (s *Store) nextSeq(syncType, prID string) (int, error) {
	prefix := fmt.Sprintf("try/%s/%s", syncType, prID)
	suffixes, err := s.refs.List(prefix)
	if err != nil {
		return 0, fmt.Errorf("list existing try-pushes for %s: %w", prefix, err)
	}

	max := 0
	for _, suffix := range suffixes {
		n, err := strconv.Atoi(suffix)
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	return max + 1, nil
}

// ForCommit implements the for_commit(rev) query (spec.md §4.3).
func (s *Store) ForCommit(rev string) (*TryPush, error) {
	return s.forIndex(s.tryCommitIdx, rev)
}

// ForTaskGroup implements the for_taskgroup(tg_id) query (spec.md §4.3).
func (s *Store) ForTaskGroup(tgID string) (*TryPush, error) {
	return s.forIndex(s.taskGroupIdx, tgID)
}

func (s *Store) forIndex(idx *index.Index, key string) (*TryPush, error) {
	name, ok, err := idx.Get(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	tp, err := s.load(name)
	if errors.Is(err, ErrNotFound) {
		// Lazy stale-index cleanup (spec.md §5).
		_ = idx.Delete(key)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return tp, nil
}

// LoadAll iterates every process name under type "try" (spec.md §4.3).
func (s *Store) LoadAll() ([]*TryPush, error) {
	suffixes, err := s.refs.List("try")
	if err != nil {
		return nil, fmt.Errorf("list all try-pushes: %w", err)
	}

	out := make([]*TryPush, 0, len(suffixes))
	for _, suffix := range suffixes {
		tp, err := s.load("try/" + suffix)
		if err != nil {
			continue
		}
		out = append(out, tp)
	}
	return out, nil
}

func logSwallowed(op, processName string, err error) {
	// Side-effect failures are best-effort per spec.md §7: logged and
	// dropped, never surfaced to the caller.
	slog.Warn("wpt-sync: swallowed side-effect failure",
		"op", op, "process_name", processName, "error", err)
}

// LogPath returns the on-disk directory used to cache downloaded task
// logs for a try-push: <root>/<try_logs>/try/<try-rev>/ (spec.md §6).
// Returns "" if try-rev isn't known yet — callers must backfill it
// first (see DownloadLogs).
func (s *Store) LogPath(tp *TryPush) string {
	if tp.TryRev == nil {
		return ""
	}
	return filepath.Join(s.cfg.Root, s.cfg.TryLogs, "try", *tp.TryRev)
}

// DownloadLogs fetches wpt-report logs for the given tasks into
// LogPath, honoring firstOnly: when set, a task name already seen
// (earlier in tasks, or recorded in seen by an earlier call) is
// skipped unless this run's state is SUCCESS, so a
// later successful rerun of a previously-failed task is still
// captured (spec.md §4.3's log-download derived operation).
func (s *Store) DownloadLogs(ctx context.Context, tp *TryPush, tasks []LogTask, fetcher ci.LogFetcher, firstOnly bool, seen map[string]bool) error {
	if tp.TryRev == nil {
		rev := backfillTryRevFromEnv(tasks)
		if rev == "" {
			return wpterrors.Value("cannot download logs: try-rev is unknown and no task carries GECKO_HEAD_REV", nil)
		}
		tp.TryRev = &rev
	}

	if seen == nil {
		seen = map[string]bool{}
	}
	dir := s.LogPath(tp)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create log dir %s: %w", dir, err)
	}

	for _, task := range tasks {
		include := !firstOnly || !seen[task.Name] || task.Success
		if !include {
			continue
		}
		seen[task.Name] = true

		dest := filepath.Join(dir, task.ID+"_"+task.Filename)
		if err := fetcher.FetchLog(ctx, task.ID, task.Filename, dest); err != nil {
			logSwallowed("download task log", tp.ProcessName, err)
		}
	}
	return nil
}

// LogTask is the minimal task shape DownloadLogs needs from a
// taskgroup view, kept decoupled from internal/taskgroup to avoid an
// import cycle back into this package.
type LogTask struct {
	ID       string
	Name     string
	Filename string
	Success  bool
	// Env carries the task's recorded environment variables, used to
	// backfill try-rev from GECKO_HEAD_REV when a push's try-rev is
	// still unknown at download time (spec.md §4.3).
	Env map[string]string
}

// backfillTryRevFromEnv returns the first GECKO_HEAD_REV value found
// among tasks' recorded environments, or "" if none carries one.
func backfillTryRevFromEnv(tasks []LogTask) string {
	for _, task := range tasks {
		if rev := task.Env["GECKO_HEAD_REV"]; rev != "" {
			return rev
		}
	}
	return ""
}

// CleanupLogs removes a try-push's cached logs once it is no longer
// needed. Failure is tolerated: disk state left behind is cleaned up
// on a later pass rather than failing the caller's operation.
func (s *Store) CleanupLogs(tp *TryPush) {
	dir := s.LogPath(tp)
	if err := os.RemoveAll(dir); err != nil {
		logSwallowed("cleanup try-push logs", tp.ProcessName, err)
	}
}
