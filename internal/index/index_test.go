package index

import (
	"fmt"
	"testing"

	"github.com/mozilla/wpt-sync/internal/refstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGitRunner is a minimal in-memory refstore.CommandRunner, shared
// shape with internal/refstore's own test fake but kept local to avoid
// exporting test-only helpers across packages.
type fakeGitRunner struct {
	objects map[string]string
	refs    map[string]string
}

func newFakeGitRunner() *fakeGitRunner {
	return &fakeGitRunner{objects: map[string]string{}, refs: map[string]string{}}
}

func (f *fakeGitRunner) Run(workDir, name string, args ...string) (string, error) {
	return f.RunWithStdin(workDir, "", name, args...)
}

func (f *fakeGitRunner) RunWithStdin(workDir, stdin, name string, args ...string) (string, error) {
	switch args[0] {
	case "rev-parse":
		return "deadbeef", nil
	case "hash-object":
		sha := "sha-" + stdin
		f.objects[sha] = stdin
		return sha, nil
	case "update-ref":
		if args[1] == "-d" {
			delete(f.refs, args[2])
			return "", nil
		}
		f.refs[args[1]] = args[2]
		return "", nil
	case "cat-file":
		sha, ok := f.refs[args[2]]
		if !ok {
			return "", fmt.Errorf("ref not found")
		}
		return f.objects[sha], nil
	}
	return "", nil
}

// memCache is an in-memory Cache for tests, standing in for SQLiteCache.
type memCache struct {
	m map[string]string
}

func newMemCache() *memCache { return &memCache{m: map[string]string{}} }

func (c *memCache) Get(kind Kind, key string) (string, bool) {
	v, ok := c.m[string(kind)+"/"+key]
	return v, ok
}
func (c *memCache) Set(kind Kind, key, processName string) error {
	c.m[string(kind)+"/"+key] = processName
	return nil
}
func (c *memCache) Delete(kind Kind, key string) error {
	delete(c.m, string(kind)+"/"+key)
	return nil
}

func TestIndex_InsertGetDelete(t *testing.T) {
	store := refstore.NewWithRunner("/repo", newFakeGitRunner())
	idx := New(KindTryCommit, store, nil)

	require.NoError(t, idx.Insert("abc123", "try/wpt/1/1"))

	got, ok, err := idx.Get("abc123")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "try/wpt/1/1", got)

	require.NoError(t, idx.Delete("abc123"))
	_, ok, err = idx.Get("abc123")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIndex_GetMissingKey(t *testing.T) {
	store := refstore.NewWithRunner("/repo", newFakeGitRunner())
	idx := New(KindTaskGroup, store, nil)

	_, ok, err := idx.Get("nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIndex_CacheHitVerifiedAgainstStore(t *testing.T) {
	store := refstore.NewWithRunner("/repo", newFakeGitRunner())
	cache := newMemCache()
	idx := New(KindTryCommit, store, cache)

	require.NoError(t, idx.Insert("abc123", "try/wpt/1/1"))

	// Populate cache via first Get, then verify a second Get reuses it.
	got, ok, err := idx.Get("abc123")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "try/wpt/1/1", got)

	got2, ok2, err := idx.Get("abc123")
	require.NoError(t, err)
	assert.True(t, ok2)
	assert.Equal(t, "try/wpt/1/1", got2)

	// A valid cache hit must not be treated as stale and purged.
	_, cachedOK := cache.Get(KindTryCommit, "abc123")
	assert.True(t, cachedOK, "valid cache entry should survive a verified hit")
}

func TestIndex_StaleCacheEntryIsPurgedOnLookupMiss(t *testing.T) {
	store := refstore.NewWithRunner("/repo", newFakeGitRunner())
	cache := newMemCache()
	idx := New(KindTryCommit, store, cache)

	require.NoError(t, idx.Insert("abc123", "try/wpt/1/1"))
	_, _, err := idx.Get("abc123") // warm the cache
	require.NoError(t, err)

	// Ref deleted out from under the cache (e.g. another process ran delete()).
	require.NoError(t, store.Delete(idx.refName("abc123")))

	got, ok, err := idx.Get("abc123")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, got)

	// Cache entry must have been purged, not just bypassed.
	_, cachedOK := cache.Get(KindTryCommit, "abc123")
	assert.False(t, cachedOK)
}

func TestIndex_InsertOverwritesPriorMapping(t *testing.T) {
	store := refstore.NewWithRunner("/repo", newFakeGitRunner())
	idx := New(KindTryCommit, store, nil)

	require.NoError(t, idx.Insert("abc123", "try/wpt/1/1"))
	require.NoError(t, idx.Insert("abc123", "try/wpt/1/2"))

	got, ok, err := idx.Get("abc123")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "try/wpt/1/2", got)
}
