package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ccdeck/ccdeck/internal/core/cache"
	"github.com/ccdeck/ccdeck/internal/core/models"
	"github.com/ccdeck/ccdeck/internal/core/remote"
	"github.com/ccdeck/ccdeck/internal/core/store"
)

var (
	listRemote bool
	listLimit  int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions, most recent activity first",
	Long: `List local agent sessions derived from transcript files.

With --remote, sessions from the remote backend are merged in. Local
sessions win on ID collision since the transcript on disk is always
fresher than the remote cache.`,
	RunE: runList,
}

func init() {
	listCmd.Flags().BoolVarP(&listRemote, "remote", "r", false, "Merge in remote backend sessions")
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 20, "Maximum sessions to show")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	local := cache.New(cache.Options{Root: cfg.TranscriptRoot})

	var sessions []models.SessionRecord
	if listRemote {
		if cfg.RemoteURL == "" {
			return fmt.Errorf("--remote requires remote_url in config")
		}
		rc := remote.NewCache(remote.Options{
			Client:     remote.NewHTTPClient(cfg.RemoteURL),
			Local:      local,
			SessionTTL: cfg.SessionTTL,
			MessageTTL: cfg.MessageTTL,
		})
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()
		sessions = rc.RecentSessions(ctx, listLimit)
	} else {
		sessions, err = local.Sessions()
		if err != nil {
			return err
		}
		if listLimit > 0 && len(sessions) > listLimit {
			sessions = sessions[:listLimit]
		}
	}

	if len(sessions) == 0 {
		fmt.Println("No sessions found.")
		return nil
	}

	if err := indexSessions(cfg.IndexPath, sessions); err != nil {
		log.Warn("session index update failed", "err", err)
	}

	for _, s := range sessions {
		printSession(s)
	}
	return nil
}

func printSession(s models.SessionRecord) {
	fmt.Printf("%s  %s %s  %s\n", shortID(s.ID), statusBadge(s.Status), sourceBadge(s.Source),
		humanize.Time(s.LastActivityAt))
	if s.ProjectPath != "" {
		fmt.Printf("          %s\n", dimStyle.Render(s.ProjectPath))
	}
	if s.Preview != "" {
		fmt.Printf("          %s\n", s.Preview)
	}
	fmt.Println()
}

// indexSessions refreshes the on-disk session index so other commands can
// look sessions up without re-scanning transcripts.
func indexSessions(dbPath string, sessions []models.SessionRecord) error {
	db, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	for _, s := range sessions {
		if err := db.Upsert(s); err != nil {
			log.Debug("index upsert skipped", "session", s.ID, "err", err)
		}
	}
	return nil
}
