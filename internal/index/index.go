// Package index implements the two secondary indices from spec.md §3:
// TryCommitIndex (rev -> process-name) and TaskGroupIndex
// (taskgroup-id -> process-name), persisted as refs and backed by a
// best-effort sqlite read cache that is reconciled lazily against the
// ref store on lookup miss (spec.md §5).
package index

import (
	"fmt"
	"strings"

	"github.com/mozilla/wpt-sync/internal/refstore"
)

// Kind names an index for ref-path namespacing.
type Kind string

const (
	KindTryCommit Kind = "wptsync/index/trycommit"
	KindTaskGroup Kind = "wptsync/index/taskgroup"
)

// Index is a single key -> process-name mapping backed by annotated refs.
type Index struct {
	kind  Kind
	store *refstore.Store
	cache Cache
}

// Cache is the optional read-through accelerator (e.g. sqlite-backed).
// Implementations must tolerate being empty/stale: Index always
// verifies a cache hit is still valid before trusting it, and repairs
// the cache on miss or mismatch.
type Cache interface {
	Get(kind Kind, key string) (processName string, ok bool)
	Set(kind Kind, key, processName string) error
	Delete(kind Kind, key string) error
}

// New creates an Index of the given kind over store. cache may be nil,
// in which case every lookup goes straight to the ref store.
func New(kind Kind, store *refstore.Store, cache Cache) *Index {
	return &Index{kind: kind, store: store, cache: cache}
}

func (i *Index) refName(key string) string {
	return fmt.Sprintf("%s/%s", i.kind, key)
}

// Get resolves key to a process-name, or ("", false, nil) if absent.
// A cache hit is verified against the ref store; a stale cache entry
// (ref deleted since cached) is purged and treated as a miss, per
// spec.md §5's "clean stale index entries lazily on lookup miss."
func (i *Index) Get(key string) (string, bool, error) {
	if i.cache != nil {
		if cached, ok := i.cache.Get(i.kind, key); ok {
			payload, found, err := i.store.Read(i.refName(key))
			if err != nil {
				return "", false, err
			}
			current := strings.TrimSuffix(string(payload), "\n")
			if found && current == cached {
				return cached, true, nil
			}
			// Stale cache entry: the ref moved, or was deleted.
			_ = i.cache.Delete(i.kind, key)
			if !found {
				return "", false, nil
			}
			return current, true, nil
		}
	}

	payload, found, err := i.store.Read(i.refName(key))
	if err != nil {
		return "", false, err
	}
	if !found {
		return "", false, nil
	}

	processName := string(payload)
	if len(processName) > 0 && processName[len(processName)-1] == '\n' {
		processName = processName[:len(processName)-1]
	}

	if i.cache != nil {
		_ = i.cache.Set(i.kind, key, processName)
	}
	return processName, true, nil
}

// Insert writes key -> processName, overwriting any prior mapping.
func (i *Index) Insert(key, processName string) error {
	if err := i.store.Write(i.refName(key), []byte(processName)); err != nil {
		return fmt.Errorf("insert %s index key %s: %w", i.kind, key, err)
	}
	if i.cache != nil {
		_ = i.cache.Set(i.kind, key, processName)
	}
	return nil
}

// Delete removes key from the index. Deleting an absent key is not an error.
func (i *Index) Delete(key string) error {
	if err := i.store.Delete(i.refName(key)); err != nil {
		return fmt.Errorf("delete %s index key %s: %w", i.kind, key, err)
	}
	if i.cache != nil {
		_ = i.cache.Delete(i.kind, key)
	}
	return nil
}
