// Package cli defines Cobra command definitions for the tether CLI.
// This file contains the root command, version flag, and help output.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tether-dev/tether/internal/tui"
)

var (
	endpointFlag string
	version      = "dev" // set via ldflags at build time
)

var rootCmd = &cobra.Command{
	Use:   "tether",
	Short: "Remote control for an AI coding-assistant session",
	Long: `Tether connects to a remote development host running an AI coding
assistant. It streams the assistant's output live, keeps every
conversation in a local store, and pulls finished build artifacts
down to this machine.`,
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, args []string) error {
		// When no subcommand is provided, launch the chat TUI if TTY,
		// show help otherwise.
		if !tui.IsTTY() {
			return cmd.Help()
		}
		return runChat(cmd, args)
	},
}

// Execute runs the root command. Called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// baseDir returns the directory the .tether/ data directory lives under.
func baseDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return home, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&endpointFlag, "endpoint", "", "Remote host endpoint (overrides config)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(logCmd)
}
