// clean.go implements the "tether clean" command for manual artifact cleanup.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tether-dev/tether/internal/cleanup"
	"github.com/tether-dev/tether/internal/config"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove old downloaded build artifacts",
	Long: `Remove old build artifacts from the downloads directory.

By default, removes artifacts older than the configured artifact_days
(default 7). Use --keep to keep only the N most recent artifacts instead.
Use --dry-run to preview what would be removed.`,
	RunE: runClean,
}

var (
	keepFlag   int
	daysFlag   int
	dryRunFlag bool
)

func init() {
	cleanCmd.Flags().IntVar(&keepFlag, "keep", 0, "Keep only the last N artifacts (0 = use age-based cleanup)")
	cleanCmd.Flags().IntVar(&daysFlag, "days", 0, "Remove artifacts older than N days (0 = use configured artifact_days)")
	cleanCmd.Flags().BoolVar(&dryRunFlag, "dry-run", false, "Preview what would be removed without deleting")
}

func runClean(cmd *cobra.Command, args []string) error {
	base, err := baseDir()
	if err != nil {
		return err
	}
	cfg, err := config.ReadConfig(base)
	if err != nil {
		cfg = config.DefaultConfig()
	}
	downloadsDir := cfg.DownloadDir(base)

	var pruned []string
	if keepFlag > 0 {
		pruned, err = cleanup.PruneKeepRecent(downloadsDir, keepFlag, dryRunFlag)
	} else {
		maxAge := daysFlag
		if maxAge <= 0 {
			maxAge = cfg.Retain.ArtifactDays
		}
		if maxAge <= 0 {
			maxAge = 7
		}
		pruned, err = cleanup.PruneByAge(downloadsDir, maxAge, dryRunFlag)
	}
	if err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}

	if len(pruned) == 0 {
		fmt.Println("No artifacts to clean up.")
		return nil
	}

	verb := "Removed"
	if dryRunFlag {
		verb = "Would remove"
	}
	for _, name := range pruned {
		fmt.Printf("  %s %s\n", verb, name)
	}
	fmt.Printf("%s %d artifact(s).\n", verb, len(pruned))

	return nil
}
