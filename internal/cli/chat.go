// chat.go implements the "tether chat" command: the interactive TUI bound
// to a live connection.
package cli

import (
	"context"
	"fmt"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/tether-dev/tether/internal/channel"
	"github.com/tether-dev/tether/internal/config"
	"github.com/tether-dev/tether/internal/coordinator"
	"github.com/tether-dev/tether/internal/log"
	"github.com/tether-dev/tether/internal/session"
	"github.com/tether-dev/tether/internal/transfer"
	"github.com/tether-dev/tether/internal/tui"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open the interactive chat session",
	Long: `Connect to the configured remote host and open the chat TUI.

The connection survives flaky networks: dropped sockets reconnect with
exponential backoff, and everything the assistant says is stored locally
so a dead connection never loses a conversation.`,
	RunE: runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	if !tui.IsTTY() {
		return fmt.Errorf("chat requires a terminal; use 'tether sessions list' instead")
	}

	base, err := baseDir()
	if err != nil {
		return err
	}
	cfg, err := config.ReadConfig(base)
	if err != nil {
		cfg = config.DefaultConfig()
	}
	if endpointFlag != "" {
		cfg.Endpoint = endpointFlag
	}

	logger, err := log.NewLogger(base)
	if err != nil {
		return fmt.Errorf("opening log: %w", err)
	}
	store, err := session.NewStore(filepath.Join(config.Dir(base), "tether.db"))
	if err != nil {
		return fmt.Errorf("opening session store: %w", err)
	}
	defer store.Close()

	fetcher := transfer.NewManager(cfg.DownloadDir(base), logger)

	// The program handle is assigned after the model exists; callbacks fire
	// only once the program is running.
	var program *tea.Program
	var co *coordinator.Coordinator

	ch := channel.New(logger, func(s channel.State) {
		if s.Phase == channel.Failed && co != nil {
			co.ConnectionLost()
		}
		if program != nil {
			program.Send(tui.StateMsg{State: s})
		}
	})
	defer ch.Close()

	co = coordinator.New(coordinator.Options{
		Store:   store,
		Link:    ch,
		Fetcher: fetcher,
		Logger:  logger,
		OnNotice: func(n coordinator.Notice) {
			if program != nil {
				program.Send(tui.NoticeMsg{Kind: n.Kind, Text: n.Text})
			}
		},
		OnRefresh: func() {
			if program != nil {
				program.Send(tui.RefreshMsg{})
			}
		},
	})

	model := tui.NewChatModel(co, store)
	program = tui.NewProgram(model)

	routerDone := make(chan struct{})
	go func() {
		co.Run(ch.Events(), ch.Done())
		close(routerDone)
	}()

	sessions, cancelWatch := store.Watch()
	defer cancelWatch()
	go func() {
		for snapshot := range sessions {
			program.Send(tui.SessionsMsg{Sessions: snapshot})
		}
	}()

	// First dial failures are not fatal: the reconnect ladder keeps trying
	// and the status bar shows progress.
	go func() {
		_ = ch.Connect(context.Background(), cfg.Endpoint)
	}()

	_, runErr := program.Run()

	// Flush, then close: the event router's final Finish must settle any
	// open turn into the store before the deferred store.Close runs.
	ch.Close()
	<-routerDone

	if runErr != nil {
		return fmt.Errorf("running chat: %w", runErr)
	}
	return nil
}
