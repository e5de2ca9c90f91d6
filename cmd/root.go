package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/moodjournal/insight-api/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "insight-api",
	Short: "Mood journal insight generation service",
	Long:  "Turns a user's recent mood captures into a short reflective narrative: composes a prompt, calls a text model, cleans the output and enforces daily quotas.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
