package trypush

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mozilla/wpt-sync/internal/index"
	"github.com/mozilla/wpt-sync/internal/lock"
	"github.com/mozilla/wpt-sync/internal/wpterrors"
)

// Handle is the mutability token required for every Try-Push mutation
// (spec.md §9 open question: "what prevents concurrent mutation of the
// same record"). It is obtained under the record's per-(sync-type,
// pr-id) lock and held only for the duration of a single logical
// operation; callers must not retain a Handle across unrelated calls.
type Handle struct {
	store       *Store
	unlock      func()
	processName string
	tp          *TryPush
}

// Acquire locks the record identified by processName and loads it,
// returning a Handle through which it may be mutated. The lock is
// released by Handle.Close.
func (s *Store) Acquire(processName string, syncType, prID string) (*Handle, error) {
	unlock := s.locks.Lock(lock.Key{SyncType: syncType, PRID: prID})

	tp, err := s.load(processName)
	if err != nil {
		unlock()
		return nil, err
	}

	return &Handle{store: s, unlock: unlock, processName: processName, tp: tp}, nil
}

// Close releases the Handle's lock. It does not persist pending
// changes; every Set* method persists immediately.
func (h *Handle) Close() {
	h.unlock()
}

// Get returns the current in-memory snapshot held by the handle.
func (h *Handle) Get() *TryPush {
	return h.tp
}

// SetTryRev records the resolved try revision once the builder
// reports it asynchronously (e.g. via the revision bridge), and
// maintains the TryCommitIndex: the old key (if any) is removed and
// the new one inserted, so the record stays reachable via ForCommit
// under its current try-rev (spec.md §4.3, §3).
func (h *Handle) SetTryRev(rev string) error {
	prev := h.tp.TryRev
	h.tp.TryRev = &rev
	if err := h.save(); err != nil {
		h.tp.TryRev = prev
		return err
	}

	if prev != nil && *prev != rev {
		h.store.safeIndexDelete(h.store.tryCommitIdx, *prev, h.processName)
	}
	if err := h.store.tryCommitIdx.Insert(rev, h.processName); err != nil {
		return fmt.Errorf("index try-rev for %s: %w", h.processName, err)
	}
	return nil
}

// SetTaskGroupID links the record to its Taskcluster task group and
// maintains the TaskGroupIndex (spec.md §5).
func (h *Handle) SetTaskGroupID(tgID string) error {
	prev := h.tp.TaskGroupID
	h.tp.TaskGroupID = &tgID
	if err := h.save(); err != nil {
		h.tp.TaskGroupID = prev
		return err
	}
	if err := h.store.taskGroupIdx.Insert(tgID, h.processName); err != nil {
		return fmt.Errorf("index taskgroup for %s: %w", h.processName, err)
	}
	return nil
}

// SetStatus validates the requested transition against the declared
// status machine before persisting (spec.md §3).
func (h *Handle) SetStatus(to Status) error {
	if !ValidStatus(to) {
		return wpterrors.Value("invalid try-push status", fmt.Errorf("%q", to))
	}
	if !CanTransition(h.tp.Status, to) {
		return wpterrors.Value("invalid try-push status transition",
			fmt.Errorf("%s -> %s", h.tp.Status, to))
	}
	prev := h.tp.Status
	h.tp.Status = to
	if err := h.save(); err != nil {
		h.tp.Status = prev
		return err
	}
	return nil
}

// SetInfraFail is a one-way latch: once true, later calls with false
// are ignored (spec.md §9's resolution of the infra_fail getter
// question — the flag is a sticky fact about the push's history, not
// a live toggle). On the false->true edge it notifies the defect
// tracker of the failed builds, mirroring the original's
// notify_failed_builds: if no bug is attached or no builds failed,
// this just logs and returns; otherwise it posts a comment listing
// the failed builds' task names.
func (h *Handle) SetInfraFail(ctx context.Context, failed bool, failedBuilds []string) error {
	if h.tp.InfraFail || !failed {
		return nil
	}
	h.tp.InfraFail = true
	if err := h.save(); err != nil {
		h.tp.InfraFail = false
		return err
	}

	if h.tp.Bug == nil || len(failedBuilds) == 0 {
		slog.Debug("wpt-sync: infra failure with no bug or no failed builds, skipping notification",
			"process_name", h.processName, "has_bug", h.tp.Bug != nil, "failed_builds", len(failedBuilds))
		return nil
	}
	if h.store.defectTracker == nil {
		return nil
	}

	body := fmt.Sprintf("Try push %s hit an infrastructure failure in build(s): %s",
		h.processName, strings.Join(failedBuilds, ", "))
	if err := h.store.defectTracker.Comment(ctx, *h.tp.Bug, body); err != nil {
		logSwallowed("post infra-fail comment", h.processName, err)
	}
	return nil
}

// Delete removes the record and purges any index entries that still
// point at it. It only deletes an index key if its current value is
// still this record's process name, so a key reassigned to a newer
// record after this handle was acquired is left untouched (spec.md §9
// open question on index.delete's tuple semantics).
func (h *Handle) Delete() error {
	if err := h.store.refs.Delete(h.processName); err != nil {
		return fmt.Errorf("delete %s: %w", h.processName, err)
	}
	if h.tp.TryRev != nil {
		h.store.safeIndexDelete(h.store.tryCommitIdx, *h.tp.TryRev, h.processName)
	}
	if h.tp.TaskGroupID != nil {
		h.store.safeIndexDelete(h.store.taskGroupIdx, *h.tp.TaskGroupID, h.processName)
	}
	return nil
}

func (h *Handle) save() error {
	return h.store.persist(h.tp)
}

// safeIndexDelete deletes key from idx only if it still maps to
// processName, guarding against deleting a key a newer record has
// since claimed.
func (s *Store) safeIndexDelete(idx *index.Index, key, processName string) {
	current, ok, err := idx.Get(key)
	if err != nil || !ok || current != processName {
		return
	}
	_ = idx.Delete(key)
}
