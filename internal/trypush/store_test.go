package trypush

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mozilla/wpt-sync/internal/config"
	"github.com/mozilla/wpt-sync/internal/index"
	"github.com/mozilla/wpt-sync/internal/lock"
	"github.com/mozilla/wpt-sync/internal/refstore"
	"github.com/mozilla/wpt-sync/internal/trycommit"
	"github.com/mozilla/wpt-sync/internal/wpterrors"
)

// fakeRunner is a minimal in-memory stand-in for refstore.CommandRunner,
// enough to support ref write/read/list/delete for Store's tests.
type fakeRunner struct {
	head  string
	objs  map[string]string
	refs  map[string]string
	seqID int
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{head: "deadbeefdeadbeefdeadbeefdeadbeefdeadbeef", objs: map[string]string{}, refs: map[string]string{}}
}

func (r *fakeRunner) Run(workDir, name string, args ...string) (string, error) {
	return r.RunWithStdin(workDir, "", name, args...)
}

func (r *fakeRunner) RunWithStdin(workDir, stdin, name string, args ...string) (string, error) {
	switch {
	case len(args) > 0 && args[0] == "rev-parse":
		return r.head, nil
	case len(args) > 0 && args[0] == "hash-object":
		r.seqID++
		sha := "obj" + string(rune('0'+r.seqID))
		r.objs[sha] = stdin
		return sha, nil
	case len(args) > 0 && args[0] == "update-ref":
		if args[1] == "-d" {
			delete(r.refs, args[2])
			return "", nil
		}
		r.refs[args[1]] = args[2]
		return "", nil
	case len(args) > 0 && args[0] == "cat-file":
		ref := args[2]
		sha, ok := r.refs[ref]
		if !ok {
			return "", assertNotFound{}
		}
		return r.objs[sha], nil
	case len(args) > 0 && args[0] == "for-each-ref":
		var out string
		for ref := range r.refs {
			out += ref + "\n"
		}
		return out, nil
	}
	return "", nil
}

type assertNotFound struct{}

func (assertNotFound) Error() string { return "not found" }

type memCache struct {
	m map[string]string
}

func newMemCache() *memCache { return &memCache{m: map[string]string{}} }

func (c *memCache) Get(kind index.Kind, key string) (string, bool) {
	v, ok := c.m[string(kind)+"/"+key]
	return v, ok
}
func (c *memCache) Set(kind index.Kind, key, processName string) error {
	c.m[string(kind)+"/"+key] = processName
	return nil
}
func (c *memCache) Delete(kind index.Kind, key string) error {
	delete(c.m, string(kind)+"/"+key)
	return nil
}

type fakeTreeStatus struct{ open bool }

func (f fakeTreeStatus) IsOpen(ctx context.Context) (bool, error) { return f.open, nil }

type fakeWorktrees struct{ path string }

func (f fakeWorktrees) Acquire(ctx context.Context, repoURL string) (string, func(), error) {
	return f.path, func() {}, nil
}

type fakeSubmitter struct{}

func (fakeSubmitter) Prep(ctx context.Context, workDir string) error { return nil }
func (fakeSubmitter) Submit(ctx context.Context, workDir string, argv []string) (string, error) {
	return "remote:   revision=abc123abc123abc123abc123abc123abc123abcd\n", nil
}
func (fakeSubmitter) HelpText(ctx context.Context) (string, error) { return "--route", nil }

type fakeBridge struct{}

func (fakeBridge) Translate(ctx context.Context, localHead string) (string, error) { return "", nil }

func newTestStore(t *testing.T, treeOpen bool) *Store {
	t.Helper()
	runner := newFakeRunner()
	refs := refstore.NewWithRunner("/repo", runner)
	cache := newMemCache()
	tryIdx := index.New(index.KindTryCommit, refs, cache)
	tgIdx := index.New(index.KindTaskGroup, refs, cache)

	return NewStore(Deps{
		Refs:         refs,
		GitRunner:    runner,
		TryCommitIdx: tryIdx,
		TaskGroupIdx: tgIdx,
		Locks:        lock.NewKeyedMutex(),
		TreeStatus:   fakeTreeStatus{open: treeOpen},
		Worktrees:    fakeWorktrees{path: "/repo"},
		Submitter:    fakeSubmitter{},
		Bridge:       fakeBridge{},
		Mutator:      nil,
		Config:       config.Default(),
	})
}

func TestCreate_HappyPath(t *testing.T) {
	s := newTestStore(t, true)

	tp, err := s.Create(context.Background(), CreateParams{
		SyncType:  "wpt",
		PRID:      "123",
		RepoURL:   "https://github.com/web-platform-tests/wpt",
		GeckoHead: "gecko123",
		WPTHead:   "wpt456",
		Fuzzy:     trycommit.FuzzyConfig{},
	})
	require.NoError(t, err)
	assert.Equal(t, "try/wpt/123/1", tp.ProcessName)
	assert.Equal(t, StatusOpen, tp.Status)
	require.NotNil(t, tp.TryRev)
	assert.Equal(t, "abc123abc123abc123abc123abc123abc123abcd", *tp.TryRev)

	found, err := s.ForCommit(*tp.TryRev)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, tp.ProcessName, found.ProcessName)
}

func TestCreate_SecondPushIncrementsSeq(t *testing.T) {
	s := newTestStore(t, true)
	params := CreateParams{SyncType: "wpt", PRID: "123"}

	first, err := s.Create(context.Background(), params)
	require.NoError(t, err)
	second, err := s.Create(context.Background(), params)
	require.NoError(t, err)

	assert.Equal(t, 1, first.Seq)
	assert.Equal(t, 2, second.Seq)
}

func TestCreate_ClosedTreeIsRetryableWrappingAbort(t *testing.T) {
	s := newTestStore(t, false)

	_, err := s.Create(context.Background(), CreateParams{SyncType: "wpt", PRID: "123"})
	require.Error(t, err)

	assert.True(t, wpterrors.IsRetryable(err))
	assert.True(t, wpterrors.IsAbort(err))
}

func TestHandle_StatusTransitionValidation(t *testing.T) {
	s := newTestStore(t, true)
	tp, err := s.Create(context.Background(), CreateParams{SyncType: "wpt", PRID: "1"})
	require.NoError(t, err)

	h, err := s.Acquire(tp.ProcessName, tp.SyncType, tp.PRID)
	require.NoError(t, err)
	defer h.Close()

	require.NoError(t, h.SetStatus(StatusComplete))
	assert.Equal(t, StatusComplete, h.Get().Status)

	err = h.SetStatus(StatusInfraFail)
	assert.Error(t, err)
}

func TestHandle_InfraFailIsStickyAndOnlyFiresOnce(t *testing.T) {
	s := newTestStore(t, true)
	bug := "1234567"
	tp, err := s.Create(context.Background(), CreateParams{SyncType: "wpt", PRID: "1", Bug: &bug})
	require.NoError(t, err)

	tracker := &fakeTracker{}
	s.defectTracker = tracker

	h, err := s.Acquire(tp.ProcessName, tp.SyncType, tp.PRID)
	require.NoError(t, err)

	require.NoError(t, h.SetInfraFail(context.Background(), true, []string{"build-linux64"}))
	require.NoError(t, h.SetInfraFail(context.Background(), true, []string{"build-linux64"}))
	h.Close()

	assert.Equal(t, 1, tracker.calls)
}

func TestHandle_InfraFailSkipsNotificationWithoutFailedBuilds(t *testing.T) {
	s := newTestStore(t, true)
	bug := "1234567"
	tp, err := s.Create(context.Background(), CreateParams{SyncType: "wpt", PRID: "1", Bug: &bug})
	require.NoError(t, err)

	tracker := &fakeTracker{}
	s.defectTracker = tracker

	h, err := s.Acquire(tp.ProcessName, tp.SyncType, tp.PRID)
	require.NoError(t, err)
	defer h.Close()

	require.NoError(t, h.SetInfraFail(context.Background(), true, nil))

	assert.Equal(t, 0, tracker.calls)
	assert.True(t, h.Get().InfraFail)
}

func TestHandle_DeleteOnlyPurgesMatchingIndexEntry(t *testing.T) {
	s := newTestStore(t, true)
	tp, err := s.Create(context.Background(), CreateParams{SyncType: "wpt", PRID: "1"})
	require.NoError(t, err)

	// Simulate a newer record having since claimed the same try-rev key.
	require.NoError(t, s.tryCommitIdx.Insert(*tp.TryRev, "try/wpt/1/99"))

	h, err := s.Acquire(tp.ProcessName, tp.SyncType, tp.PRID)
	require.NoError(t, err)
	require.NoError(t, h.Delete())
	h.Close()

	name, ok, err := s.tryCommitIdx.Get(*tp.TryRev)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "try/wpt/1/99", name)
}

func TestHandle_SetTryRevMovesIndexEntry(t *testing.T) {
	s := newTestStore(t, true)
	tp, err := s.Create(context.Background(), CreateParams{SyncType: "wpt", PRID: "1"})
	require.NoError(t, err)
	oldRev := *tp.TryRev

	h, err := s.Acquire(tp.ProcessName, tp.SyncType, tp.PRID)
	require.NoError(t, err)
	const newRev = "1111111111111111111111111111111111111111"
	require.NoError(t, h.SetTryRev(newRev))
	h.Close()

	_, ok, err := s.tryCommitIdx.Get(oldRev)
	require.NoError(t, err)
	assert.False(t, ok, "old try-rev key should have been removed")

	name, ok, err := s.tryCommitIdx.Get(newRev)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, tp.ProcessName, name)

	found, err := s.ForCommit(newRev)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, tp.ProcessName, found.ProcessName)
}

func TestDownloadLogs_BackfillsTryRevFromTaskEnv(t *testing.T) {
	s := newTestStore(t, true)
	s.cfg.Root = t.TempDir()
	tp := &TryPush{ProcessName: "try/wpt/1/1", SyncType: "wpt", PRID: "1"}

	tasks := []LogTask{
		{ID: "t1", Name: "build", Filename: "log.txt", Env: map[string]string{"GECKO_HEAD_REV": "deadbeefdeadbeefdeadbeefdeadbeefdeadbeef"}},
	}

	err := s.DownloadLogs(context.Background(), tp, tasks, fakeLogFetcher{}, false, nil)
	require.NoError(t, err)
	require.NotNil(t, tp.TryRev)
	assert.Equal(t, "deadbeefdeadbeefdeadbeefdeadbeefdeadbeef", *tp.TryRev)
}

func TestDownloadLogs_FailsWithValueErrorWhenTryRevUnknown(t *testing.T) {
	s := newTestStore(t, true)
	tp := &TryPush{ProcessName: "try/wpt/1/1", SyncType: "wpt", PRID: "1"}

	err := s.DownloadLogs(context.Background(), tp, []LogTask{{ID: "t1", Name: "build", Filename: "log.txt"}}, fakeLogFetcher{}, false, nil)
	require.Error(t, err)
	assert.True(t, wpterrors.IsValue(err))
}

type fakeLogFetcher struct{}

func (fakeLogFetcher) FetchLog(ctx context.Context, taskID, filename, destPath string) error {
	return nil
}

type fakeTracker struct{ calls int }

func (f *fakeTracker) Comment(ctx context.Context, bug string, body string) error {
	f.calls++
	return nil
}

