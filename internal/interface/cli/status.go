package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ccdeck/ccdeck/internal/core/cache"
	"github.com/ccdeck/ccdeck/internal/core/models"
)

var (
	statusProject  string
	statusMessages int
)

var statusCmd = &cobra.Command{
	Use:   "status <session-id>",
	Short: "Show one session's status and recent messages",
	Long: `Show a session's inferred status and its most recent messages.

The session is looked up locally first. Pass --project to read it from
the remote backend instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusProject, "project", "", "Remote project ID to read the session from")
	statusCmd.Flags().IntVarP(&statusMessages, "messages", "n", 5, "Recent messages to show")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	sessionID := args[0]

	if statusProject != "" {
		return runRemoteStatus(cmd.Context(), sessionID, statusProject)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	local := cache.New(cache.Options{Root: cfg.TranscriptRoot})

	rec, err := local.Session(sessionID)
	if err != nil {
		return err
	}
	if rec.MessageCount == 0 {
		return fmt.Errorf("no local transcript for session %s", sessionID)
	}

	msgs, err := local.Messages(sessionID, time.Time{})
	if err != nil {
		return err
	}

	printSession(rec)
	printRecentMessages(msgs, statusMessages)
	return nil
}

func runRemoteStatus(ctx context.Context, sessionID, projectID string) error {
	rc, err := remoteCache(nil)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	result := rc.SessionMessages(ctx, sessionID, projectID)
	if result.Err != nil {
		if result.Messages == nil {
			return result.Err
		}
		fmt.Printf("%s\n\n", dimStyle.Render(fmt.Sprintf("fetch failed (%v), showing cached data", result.Err)))
	}

	fmt.Printf("%s  %s %s\n\n", shortID(sessionID), statusBadge(result.Status),
		remoteStyle.Render("[remote]"))
	printRecentMessages(result.Messages, statusMessages)
	return nil
}

func printRecentMessages(msgs []models.Message, limit int) {
	if len(msgs) == 0 {
		fmt.Println("No messages.")
		return
	}
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	for _, m := range msgs {
		author := "agent"
		if m.Author == models.AuthorUser {
			author = "user"
		}
		content := m.Content
		if len(content) > 200 {
			content = content[:200] + "…"
		}
		fmt.Printf("%s %s\n%s\n\n", dimStyle.Render(fmt.Sprintf("[%s]", author)),
			dimStyle.Render(humanize.Time(m.Timestamp)), content)
	}
}
