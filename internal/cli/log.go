// log.go implements the "tether log" command for inspecting the event log.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tether-dev/tether/internal/log"
)

var tailFlag int

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show recent entries from the event log",
	RunE:  runLog,
}

func init() {
	logCmd.Flags().IntVar(&tailFlag, "tail", 20, "Number of entries to show")
}

func runLog(cmd *cobra.Command, args []string) error {
	base, err := baseDir()
	if err != nil {
		return err
	}
	logger, err := log.NewLogger(base)
	if err != nil {
		return err
	}

	events, err := logger.ReadAll()
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Println("Event log is empty.")
		return nil
	}

	start := 0
	if tailFlag > 0 && len(events) > tailFlag {
		start = len(events) - tailFlag
	}
	for _, ev := range events[start:] {
		line := fmt.Sprintf("%s  %-22s", ev.Time.Format("2006-01-02 15:04:05"), ev.Event)
		if ev.Endpoint != "" {
			line += "  " + ev.Endpoint
		}
		if ev.Attempt > 0 {
			line += fmt.Sprintf("  attempt=%d delay=%dms", ev.Attempt, ev.DelayMs)
		}
		if ev.Path != "" {
			line += "  " + ev.Path
		}
		if ev.Error != "" {
			line += "  error=" + ev.Error
		}
		fmt.Println(line)
	}
	return nil
}
