// init.go implements the "tether init" command.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tether-dev/tether/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the initial .tether/config.yaml",
	Long: `Create the .tether/ data directory and write a starter config.

Pass --endpoint to point tether at your remote development host; it can
also be changed later by editing ~/.tether/config.yaml or with the
global --endpoint flag.`,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	base, err := baseDir()
	if err != nil {
		return err
	}

	if existing, err := config.ReadConfig(base); err == nil {
		if endpointFlag == "" || existing.Endpoint == endpointFlag {
			fmt.Println("Config already exists; nothing to do.")
			return nil
		}
		existing.Endpoint = endpointFlag
		if err := config.WriteConfig(base, existing); err != nil {
			return err
		}
		fmt.Printf("Updated endpoint to %s.\n", endpointFlag)
		return nil
	}

	cfg := config.DefaultConfig()
	if endpointFlag != "" {
		cfg.Endpoint = endpointFlag
	}
	if err := config.WriteConfig(base, cfg); err != nil {
		return err
	}
	fmt.Printf("Wrote %s/.tether/config.yaml (endpoint: %s).\n", base, cfg.Endpoint)
	return nil
}
