package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mozilla/wpt-sync/internal/config"
	"github.com/mozilla/wpt-sync/internal/index"
	"github.com/mozilla/wpt-sync/internal/live"
	"github.com/mozilla/wpt-sync/internal/lock"
	"github.com/mozilla/wpt-sync/internal/refstore"
	"github.com/mozilla/wpt-sync/internal/router"
	"github.com/mozilla/wpt-sync/internal/trypush"
)

var replayKind string

var replayCmd = &cobra.Command{
	Use:   "replay <event.json>",
	Short: "Replay a single webhook event body through the router",
	Long: `replay reads a saved webhook payload from disk and dispatches it
through the Event Router exactly as the HTTP endpoint would, useful
for debugging a handler against a captured production event.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().StringVar(&replayKind, "kind", "", "event kind: pull_request, status, push, task, taskgroup, landing, cleanup")
	_ = replayCmd.MarkFlagRequired("kind")
}

func runReplay(cmd *cobra.Command, args []string) error {
	body, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read event file: %w", err)
	}

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	repoPath := cfg.Root
	refs := refstore.New(repoPath)
	cache, err := index.OpenSQLiteCache(repoPath + "/.wpt-sync-index.sqlite3")
	if err != nil {
		return fmt.Errorf("open index cache: %w", err)
	}
	defer cache.Close()

	store := trypush.NewStore(trypush.Deps{
		Refs:         refs,
		GitRunner:    refstore.ExecRunner{},
		TryCommitIdx: index.New(index.KindTryCommit, refs, cache),
		TaskGroupIdx: index.New(index.KindTaskGroup, refs, cache),
		Locks:        lock.NewKeyedMutex(),
		Config:       cfg,
	})

	r := router.New(cfg, store, nil, live.NewMemoryPublisher(32), nil)

	if err := r.Dispatch(context.Background(), router.Kind(replayKind), body); err != nil {
		return fmt.Errorf("dispatch %s event: %w", replayKind, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "dispatched %s event from %s\n", replayKind, args[0])
	return nil
}
