// Package router implements the Event Router (spec.md §4.1): a single
// webhook entry point that demultiplexes by event kind, filters out
// the sync's own status echoes, and recovers + logs panics so one bad
// event cannot take down the process, grounded on the teacher's
// internal/api request-handling style (slog logging, typed handlers)
// adapted from an HTTP API surface to a webhook dispatcher.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/tidwall/gjson"

	"github.com/mozilla/wpt-sync/internal/config"
	"github.com/mozilla/wpt-sync/internal/hosting"
	"github.com/mozilla/wpt-sync/internal/live"
	"github.com/mozilla/wpt-sync/internal/syncrecord"
	"github.com/mozilla/wpt-sync/internal/trypush"
)

// Kind is a webhook event discriminator.
type Kind string

const (
	KindPullRequest Kind = "pull_request"
	KindStatus      Kind = "status"
	KindPush        Kind = "push"
	KindTask        Kind = "task"
	KindTaskGroup   Kind = "taskgroup"
	KindLanding     Kind = "landing"
	KindCleanup     Kind = "cleanup"
)

// Handler processes a single decoded event kind's payload.
type Handler func(ctx context.Context, body []byte) error

// Router demultiplexes webhook bodies by kind and dispatches to
// registered handlers (spec.md §4.1).
type Router struct {
	cfg       *config.Config
	trypushes *trypush.Store
	syncs     syncrecord.Store
	publisher live.Publisher
	logger    *slog.Logger

	handlers map[Kind]Handler
}

// New creates a Router. syncs and publisher may be nil (no-op handlers
// skip work they can't do without a collaborator).
func New(cfg *config.Config, trypushes *trypush.Store, syncs syncrecord.Store, publisher live.Publisher, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{cfg: cfg, trypushes: trypushes, syncs: syncs, publisher: publisher, logger: logger}
	r.handlers = map[Kind]Handler{
		KindPullRequest: r.handlePullRequest,
		KindStatus:      r.handleStatus,
		KindPush:        r.handlePush,
		KindTask:        r.handleTask,
		KindTaskGroup:   r.handleTaskGroup,
		KindLanding:     r.handleLanding,
		KindCleanup:     r.handleCleanup,
	}
	return r
}

// Dispatch extracts the event kind and routes body to its handler.
// Extraction is deliberately lenient (gjson over strict unmarshaling)
// since webhook payload shapes vary across providers and only a
// handful of top-level fields matter to the router itself.
func (r *Router) Dispatch(ctx context.Context, kind Kind, body []byte) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("wpt-sync: panic handling webhook event",
				"kind", kind, "panic", rec, "trace", string(debug.Stack()))
			err = fmt.Errorf("panic handling %s event: %v", kind, rec)
		}
	}()

	handler, ok := r.handlers[kind]
	if !ok {
		r.logger.Warn("wpt-sync: no handler registered for event kind", "kind", kind)
		return nil
	}

	if err := handler(ctx, body); err != nil {
		r.logger.Error("wpt-sync: event handler failed", "kind", kind, "error", err)
		return err
	}
	return nil
}

// ServeHTTP exposes Dispatch as an HTTP endpoint; the event kind is
// taken from the "X-Event-Kind" header (set by the webhook relay in
// front of this process) since raw GitHub/GitLab webhook bodies don't
// self-describe their kind in a uniform field.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	kind := Kind(req.Header.Get("X-Event-Kind"))
	if kind == "" {
		http.Error(w, "missing X-Event-Kind header", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(req.Body)
	if err != nil {
		http.Error(w, "read request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := r.Dispatch(req.Context(), kind, body); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleStatus drops status events the sync itself produced (spec.md
// §4.1, §8 scenario 1: a status update whose context equals the
// configured upstream report context is our own feedback, not a
// signal to act on).
func (r *Router) handleStatus(ctx context.Context, body []byte) error {
	reportedContext := gjson.GetBytes(body, "context").String()
	if reportedContext == r.cfg.ReportContext {
		r.logger.Debug("wpt-sync: ignoring self-reported status context", "context", reportedContext)
		return nil
	}

	sha := gjson.GetBytes(body, "sha").String()
	if sha == "" {
		return nil
	}

	tp, err := r.trypushes.ForCommit(sha)
	if err != nil {
		return fmt.Errorf("look up try-push for status commit %s: %w", sha, err)
	}
	if tp == nil {
		return nil
	}

	r.publish(live.Event{Type: live.EventStatusChange, ProcessName: tp.ProcessName, Data: json.RawMessage(body)})
	return nil
}

// handlePush classifies the pushed repo against the configured
// topology and logs whether it is an integration repo (with its
// sync-type), the landing repo, or unrelated. It invokes no
// integration-commit or landing-commit handler.
func (r *Router) handlePush(ctx context.Context, body []byte) error {
	repoURL := gjson.GetBytes(body, "data.repo_url").String()
	role, syncType := hosting.Classify(repoURL, r.cfg.Integration, r.cfg.Landing)

	switch role {
	case hosting.RoleIntegration:
		r.logger.Info("wpt-sync: push to integration repo", "sync_type", syncType, "repo", repoURL)
	case hosting.RoleLanding:
		r.logger.Info("wpt-sync: push to landing repo", "repo", repoURL)
	default:
		r.logger.Debug("wpt-sync: push to unrelated repo ignored", "repo", repoURL)
	}
	return nil
}

func (r *Router) handlePullRequest(ctx context.Context, body []byte) error {
	action := gjson.GetBytes(body, "action").String()
	prID := gjson.GetBytes(body, "number").String()
	r.logger.Info("wpt-sync: pull_request event", "action", action, "pr_id", prID)

	if r.syncs == nil || prID == "" {
		return nil
	}
	sync, err := r.syncs.Get(prID)
	if err != nil {
		return fmt.Errorf("look up sync for PR %s: %w", prID, err)
	}
	if sync != nil {
		return nil
	}

	if action != "opened" {
		r.logger.Debug("wpt-sync: pull_request event for untracked PR", "pr_id", prID, "action", action)
		return nil
	}

	if err := r.syncs.Create(&syncrecord.Sync{
		PRID:      prID,
		Direction: syncrecord.Downstream,
		Status:    syncrecord.StatusOpen,
	}); err != nil {
		return fmt.Errorf("create downstream sync for PR %s: %w", prID, err)
	}
	return nil
}

func (r *Router) handleTask(ctx context.Context, body []byte) error {
	tgID := gjson.GetBytes(body, "taskGroupId").String()
	if tgID == "" {
		return nil
	}
	tp, err := r.trypushes.ForTaskGroup(tgID)
	if err != nil {
		return fmt.Errorf("look up try-push for task group %s: %w", tgID, err)
	}
	if tp == nil {
		return nil
	}
	r.publish(live.Event{Type: live.EventTasksUpdated, ProcessName: tp.ProcessName})
	return nil
}

func (r *Router) handleTaskGroup(ctx context.Context, body []byte) error {
	return r.handleTask(ctx, body)
}

func (r *Router) handleLanding(ctx context.Context, body []byte) error {
	// LandingHandler's two worktree parameters are git_wpt (upstream
	// checkout) and git_gecko (downstream checkout), per spec.md §9's
	// correction of the original's duplicated-name bug.
	gitWPT := gjson.GetBytes(body, "git_wpt").String()
	gitGecko := gjson.GetBytes(body, "git_gecko").String()
	r.logger.Info("wpt-sync: landing event", "git_wpt", gitWPT, "git_gecko", gitGecko)
	return nil
}

func (r *Router) handleCleanup(ctx context.Context, body []byte) error {
	all, err := r.trypushes.LoadAll()
	if err != nil {
		return fmt.Errorf("load try-pushes for cleanup: %w", err)
	}
	for _, tp := range all {
		if tp.Status == trypush.StatusComplete {
			r.trypushes.CleanupLogs(tp)
		}
	}
	return nil
}

func (r *Router) publish(event live.Event) {
	if r.publisher == nil {
		return
	}
	r.publisher.Publish(event)
}
