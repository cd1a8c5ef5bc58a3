/*
Copyright (C) 2026 Hugin Media

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/huginmedia/skald/internal/progress"
)

var resetForce bool

var resetCmd = &cobra.Command{
	Use:   "reset-progress",
	Short: "Forget the saved playback position",
	Long: `Delete the persisted playback cursor so the next run starts from
the first clip in the playlist.

Examples:
  # Interactive reset (will prompt for confirmation)
  skald reset-progress

  # Force reset without confirmation
  skald reset-progress --force
`,
	RunE: runReset,
}

func init() {
	resetCmd.Flags().BoolVarP(&resetForce, "force", "f", false, "Skip confirmation prompt")
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	if !resetForce {
		fmt.Printf("This will delete the saved playback position in %s.\n", cfg.ProgressPath)
		fmt.Print("Type 'yes' to confirm: ")
		reader := bufio.NewReader(os.Stdin)
		response, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}
		if strings.TrimSpace(strings.ToLower(response)) != "yes" {
			fmt.Println("Reset cancelled.")
			return nil
		}
	}

	store, err := progress.Open(cfg.ProgressPath)
	if err != nil {
		return fmt.Errorf("open progress store: %w", err)
	}
	defer store.Close()

	if err := store.Reset(cmd.Context()); err != nil {
		return fmt.Errorf("reset cursor: %w", err)
	}

	logger.Info().Str("path", cfg.ProgressPath).Msg("playback position reset")
	fmt.Println("Playback position reset. The next run starts from the first clip.")
	return nil
}
