package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ccdeck/ccdeck/internal/core/remote"
)

var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Inspect the remote execution backend",
}

var remoteHealthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check backend availability",
	RunE: func(cmd *cobra.Command, args []string) error {
		rc, err := remoteCache(nil)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		if err := rc.Health(ctx); err != nil {
			return fmt.Errorf("backend unreachable: %w", err)
		}
		fmt.Println("Backend is healthy.")
		return nil
	},
}

var remoteSessionsCmd = &cobra.Command{
	Use:   "sessions <project-id>",
	Short: "List remote sessions for one project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rc, err := remoteCache(nil)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		result := rc.SessionsForProject(ctx, args[0])
		if result.Err != nil {
			if result.Sessions == nil {
				return result.Err
			}
			fmt.Printf("%s\n\n", dimStyle.Render(fmt.Sprintf("fetch failed (%v), showing cached data", result.Err)))
		}
		if len(result.Sessions) == 0 {
			fmt.Println("No remote sessions found.")
			return nil
		}
		for _, s := range result.Sessions {
			printSession(s)
		}
		return nil
	},
}

func init() {
	remoteCmd.AddCommand(remoteHealthCmd)
	remoteCmd.AddCommand(remoteSessionsCmd)
	rootCmd.AddCommand(remoteCmd)
}

// remoteCache builds a remote cache from config, optionally wiring a
// local provider for the merge layer.
func remoteCache(local remote.LocalProvider) (*remote.Cache, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.RemoteURL == "" {
		return nil, fmt.Errorf("remote_url is not configured; set it in ~/.config/ccdeck/config.toml")
	}
	return remote.NewCache(remote.Options{
		Client:     remote.NewHTTPClient(cfg.RemoteURL),
		Local:      local,
		SessionTTL: cfg.SessionTTL,
		MessageTTL: cfg.MessageTTL,
	}), nil
}
