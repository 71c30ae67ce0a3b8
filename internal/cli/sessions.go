// sessions.go implements the "tether sessions" command group for managing
// the local session store outside the TUI.
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tether-dev/tether/internal/config"
	"github.com/tether-dev/tether/internal/session"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage stored chat sessions",
}

var watchFlag bool

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored sessions, most recently active first",
	RunE:  runSessionsList,
}

var sessionsRenameCmd = &cobra.Command{
	Use:   "rename <id> <title>",
	Short: "Rename a stored session",
	Args:  cobra.ExactArgs(2),
	RunE:  runSessionsRename,
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a stored session and its messages",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsDelete,
}

func init() {
	sessionsListCmd.Flags().BoolVar(&watchFlag, "watch", false, "Keep printing the list as it changes")
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsRenameCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
}

func openStore() (*session.Store, error) {
	base, err := baseDir()
	if err != nil {
		return nil, err
	}
	store, err := session.NewStore(filepath.Join(config.Dir(base), "tether.db"))
	if err != nil {
		return nil, fmt.Errorf("opening session store: %w", err)
	}
	return store, nil
}

func printSessions(sessions []session.Session) {
	if len(sessions) == 0 {
		fmt.Println("No stored sessions.")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tUPDATED\tENDPOINT")
	for _, s := range sessions {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", s.ID, s.Title, s.UpdatedAt.Format("2006-01-02 15:04"), s.Endpoint)
	}
	w.Flush()
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if !watchFlag {
		sessions, err := store.ListSessions()
		if err != nil {
			return err
		}
		printSessions(sessions)
		return nil
	}

	updates, cancel := store.Watch()
	defer cancel()
	for snapshot := range updates {
		printSessions(snapshot)
		fmt.Println()
	}
	return nil
}

func parseSessionID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid session id %q", arg)
	}
	return id, nil
}

func runSessionsRename(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	id, err := parseSessionID(args[0])
	if err != nil {
		return err
	}
	if err := store.RenameSession(id, args[1]); err != nil {
		return err
	}
	fmt.Printf("Renamed session %d.\n", id)
	return nil
}

func runSessionsDelete(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	id, err := parseSessionID(args[0])
	if err != nil {
		return err
	}
	if err := store.DeleteSession(id); err != nil {
		return err
	}
	fmt.Printf("Deleted session %d.\n", id)
	return nil
}
