package cli

import (
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/ccdeck/ccdeck/internal/core/cache"
	"github.com/ccdeck/ccdeck/internal/core/store"
	"github.com/ccdeck/ccdeck/internal/core/watch"
)

// activityWindow is how long after the last transcript write a session is
// still presumed to have a live agent attached.
const activityWindow = 2 * time.Minute

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch transcripts and print session activity as it happens",
	Long: `Watch the transcript root for changes and print one line per
session event. The session index is kept up to date while watching, so a
later 'ccdeck list' reflects everything seen here.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

// activityTracker presumes a session's agent is alive while transcript
// writes keep arriving. Not ground truth, but the only liveness signal a
// watcher has without process inspection.
type activityTracker struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

func newActivityTracker() *activityTracker {
	return &activityTracker{seen: make(map[string]time.Time)}
}

func (t *activityTracker) touch(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seen[sessionID] = time.Now()
}

func (t *activityTracker) alive(sessionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	last, ok := t.seen[sessionID]
	return ok && time.Since(last) < activityWindow
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	tracker := newActivityTracker()
	local := cache.New(cache.Options{
		Root:  cfg.TranscriptRoot,
		Alive: tracker.alive,
	})

	db, err := store.Open(cfg.IndexPath)
	if err != nil {
		return fmt.Errorf("open session index: %w", err)
	}
	defer db.Close()

	watcher := watch.New(watch.Options{
		Root:      cfg.TranscriptRoot,
		Stabilize: cfg.Stabilize,
		Debounce:  cfg.Debounce,
	})

	unsubscribe := watcher.Subscribe(func(sessionID string, event watch.EventType) {
		tracker.touch(sessionID)

		// Subscriber order is not defined, so drop the cached entry here
		// instead of relying on a separate Bind subscriber running first.
		local.Invalidate(sessionID)

		rec, err := local.Session(sessionID)
		if err != nil {
			log.Error("cannot load session after event", "session", sessionID, "err", err)
			return
		}
		if err := db.Upsert(rec); err != nil {
			log.Warn("index upsert failed", "session", sessionID, "err", err)
		}

		verb := "changed"
		if event == watch.EventAdd {
			verb = "started"
		}
		fmt.Printf("%s  %s %s  %s\n", time.Now().Format("15:04:05"),
			shortID(sessionID), verb, statusBadge(rec.Status))
	})
	defer unsubscribe()

	if err := watcher.Start(); err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer watcher.Stop()

	fmt.Printf("Watching %s (Ctrl+C to stop)\n", cfg.TranscriptRoot)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	fmt.Println("\nStopping.")
	return nil
}
