// Package coordinator routes traffic between the duplex channel, the
// session store, and the stream coalescer. It owns the notion of an active
// session: which conversation outbound text belongs to and which row
// inbound events are persisted against.
package coordinator

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/tether-dev/tether/internal/coalesce"
	"github.com/tether-dev/tether/internal/log"
	"github.com/tether-dev/tether/internal/protocol"
	"github.com/tether-dev/tether/internal/session"
)

// Link is the outbound half of the duplex channel.
type Link interface {
	Send(protocol.Action) error
	Endpoint() string
}

// Fetcher downloads a build artifact and reports integer progress
// percentages while the total size is known.
type Fetcher interface {
	Fetch(ctx context.Context, baseURL, path string, size int64, onProgress func(percent int)) (string, error)
}

// Notice is a transient status line for the UI. It is never persisted.
type Notice struct {
	Kind string
	Text string
}

// Options wires a Coordinator's collaborators. Store and Link are required;
// the rest may be nil.
type Options struct {
	Store   *session.Store
	Link    Link
	Fetcher Fetcher
	Logger  *log.Logger

	// OnNotice receives transient status lines (git results, transfer
	// progress, connection notices).
	OnNotice func(Notice)
	// OnRefresh fires after any persisted change to the active session's
	// messages.
	OnRefresh func()
}

// Coordinator binds one active session to the channel. All methods are safe
// for concurrent use; event routing itself is single-goroutine via Run.
type Coordinator struct {
	store   *session.Store
	link    Link
	fetcher Fetcher
	logger  *log.Logger

	onNotice  func(Notice)
	onRefresh func()

	co *coalesce.Coalescer

	mu       sync.Mutex
	active   *session.Session
	remoteID string
	streamID int64
}

// New creates a Coordinator with no active session. The first SendText
// creates one.
func New(opts Options) *Coordinator {
	c := &Coordinator{
		store:     opts.Store,
		link:      opts.Link,
		fetcher:   opts.Fetcher,
		logger:    opts.Logger,
		onNotice:  opts.OnNotice,
		onRefresh: opts.OnRefresh,
	}
	c.co = coalesce.New(c)
	return c
}

// Active returns the active session, or nil when the next send will create
// a new one.
func (c *Coordinator) Active() *session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// NewChat detaches from the active session. The next SendText creates a
// fresh one.
func (c *Coordinator) NewChat() {
	c.co.Finish()
	c.mu.Lock()
	c.active = nil
	c.streamID = 0
	c.mu.Unlock()
}

// SendText delivers one user message to the remote assistant, creating the
// session on first send. The message is persisted before it goes out so the
// transcript survives a send failure.
func (c *Coordinator) SendText(text string) error {
	c.mu.Lock()
	sess := c.active
	c.mu.Unlock()

	if sess == nil {
		created, err := c.createSession(text)
		if err != nil {
			return err
		}
		sess = created
	}

	c.persist(&session.Message{
		SessionID: sess.ID,
		Kind:      session.KindUserInput,
		Content:   text,
	})
	if err := c.link.Send(protocol.SendText{Text: text}); err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	return nil
}

// createSession inserts a new session titled from the first message and
// asks the host to start a fresh assistant for it.
func (c *Coordinator) createSession(firstMessage string) (*session.Session, error) {
	sess := &session.Session{
		Title:    session.DeriveTitle(firstMessage),
		Endpoint: c.link.Endpoint(),
	}
	id, err := c.store.InsertSession(sess)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	sess.ID = id

	c.mu.Lock()
	c.active = sess
	remoteID := c.remoteID
	c.mu.Unlock()

	if c.logger != nil {
		_ = c.logger.Append(log.LogEvent{Event: log.EventSessionCreated, SessionID: id})
	}
	if err := c.link.Send(protocol.StartAssistant{SessionID: remoteID}); err != nil {
		return nil, fmt.Errorf("starting assistant: %w", err)
	}
	return sess, nil
}

// Switch makes the stored session the active one and reattaches the remote
// assistant to it via its resume token. Any open stream of the outgoing
// session is finalized first. Returns the incoming session's transcript.
func (c *Coordinator) Switch(id int64) ([]session.Message, error) {
	c.co.Finish()

	sess, err := c.store.GetSession(id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, fmt.Errorf("session %d not found", id)
	}
	msgs, err := c.store.ListMessages(id)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if prior := c.active; prior != nil && prior.ID != sess.ID {
		_ = c.store.TouchSession(prior.ID)
	}
	c.active = sess
	remoteID := c.remoteID
	c.mu.Unlock()

	// Resuming is best-effort: while disconnected the transcript still
	// loads from the local store, and the next successful connect
	// re-issues the resume for the active session.
	if err := c.link.Send(protocol.ResumeSession{
		SessionID:          remoteID,
		AssistantSessionID: sess.ResumeToken,
	}); err == nil && c.logger != nil {
		_ = c.logger.Append(log.LogEvent{Event: log.EventSessionResumed, SessionID: sess.ID})
	}
	return msgs, nil
}

// Run routes inbound events until the channel is torn down or the event
// stream closes. When it returns, any open stream has been finalized.
func (c *Coordinator) Run(events <-chan protocol.Event, done <-chan struct{}) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				c.co.Finish()
				return
			}
			c.HandleEvent(ev)
		case <-done:
			c.co.Finish()
			return
		}
	}
}

// ConnectionLost finalizes the open stream after an abnormal disconnect, so
// a half-streamed turn settles into the transcript instead of dangling.
func (c *Coordinator) ConnectionLost() {
	c.co.Finish()
}

// HandleEvent routes one inbound event.
func (c *Coordinator) HandleEvent(ev protocol.Event) {
	switch ev := ev.(type) {
	case protocol.Connected:
		c.mu.Lock()
		c.remoteID = ev.SessionID
		sess := c.active
		c.mu.Unlock()
		// Reattach the assistant to the active session after a reconnect.
		if sess != nil && sess.ResumeToken != "" {
			if err := c.link.Send(protocol.ResumeSession{
				SessionID:          ev.SessionID,
				AssistantSessionID: sess.ResumeToken,
			}); err == nil && c.logger != nil {
				_ = c.logger.Append(log.LogEvent{Event: log.EventSessionResumed, SessionID: sess.ID})
			}
		}
		c.notice("connection", "connected")

	case protocol.AssistantDelta:
		c.co.Push(ev.Text)

	case protocol.SystemNotice:
		if protocol.IsTurnComplete(ev.Message) {
			c.co.Finish()
			if c.logger != nil {
				_ = c.logger.Append(log.LogEvent{Event: log.EventStreamFinished, SessionID: c.activeID()})
			}
			return
		}
		c.persistToActive(session.KindSystem, ev.Message)

	case protocol.ToolUse:
		text := ev.Tool
		if ev.Message != "" {
			text = ev.Tool + ": " + ev.Message
		}
		c.persistToActive(session.KindToolUse, text)

	case protocol.BuildLog:
		c.persistToActive(session.KindBuildLog, ev.Text)

	case protocol.BuildStatus:
		if ev.Ready() {
			c.fetchArtifact(ev)
			return
		}
		c.notice("build", ev.Status)

	case protocol.GitStatus:
		text := ev.Status
		if ev.Message != "" {
			text = ev.Status + ": " + ev.Message
		}
		c.notice("git", text)

	case protocol.ProjectPath:
		c.notice("project", ev.Path)

	case protocol.ErrorNotice:
		c.co.Finish()
		c.persistToActive(session.KindSystem, "error: "+ev.Message)

	case protocol.ResumeTokenIssued:
		c.mu.Lock()
		sess := c.active
		if sess != nil {
			sess.ResumeToken = ev.Token
		}
		c.mu.Unlock()
		if sess != nil {
			if err := c.store.SetResumeToken(sess.ID, ev.Token); err != nil {
				c.logStoreFailure(err)
			}
		}
	}
}

// fetchArtifact downloads a finished build product in the background,
// surfacing progress as transient notices and the result as a system
// message.
func (c *Coordinator) fetchArtifact(ev protocol.BuildStatus) {
	if c.fetcher == nil || ev.ArtifactPath == "" {
		return
	}
	base := c.link.Endpoint()
	go func() {
		local, err := c.fetcher.Fetch(context.Background(), base, ev.ArtifactPath, ev.ArtifactSize, func(percent int) {
			c.notice("transfer", fmt.Sprintf("downloading %d%%", percent))
		})
		if err != nil {
			c.persistToActive(session.KindSystem, "download failed: "+err.Error())
			return
		}
		c.persistToActive(session.KindSystem, "artifact saved to "+local)
	}()
}

// OpenTurn starts a new assistant message for the incoming stream. Part of
// the coalesce.Sink contract.
func (c *Coordinator) OpenTurn() {
	c.mu.Lock()
	sess := c.active
	c.mu.Unlock()
	if sess == nil {
		return
	}

	id, err := c.store.InsertMessage(&session.Message{
		SessionID: sess.ID,
		Kind:      session.KindAssistantOutput,
	})
	if err != nil {
		c.logStoreFailure(err)
		return
	}
	c.mu.Lock()
	c.streamID = id
	c.mu.Unlock()
}

// AppendOutput appends one coalesced batch to the open assistant message.
func (c *Coordinator) AppendOutput(text string) {
	c.mu.Lock()
	id := c.streamID
	c.mu.Unlock()
	if id == 0 {
		return
	}
	if err := c.store.AppendToMessage(id, text); err != nil {
		c.logStoreFailure(err)
		return
	}
	c.refresh()
}

// CloseTurn releases the open assistant message.
func (c *Coordinator) CloseTurn() {
	c.mu.Lock()
	c.streamID = 0
	c.mu.Unlock()
}

// Streaming reports whether an assistant turn is currently open.
func (c *Coordinator) Streaming() bool { return c.co.Streaming() }

// Build asks the host to build the project's artifact. Progress arrives as
// build events; the finished artifact is fetched automatically.
func (c *Coordinator) Build() error {
	return c.link.Send(protocol.RequestBuild{})
}

// GitPush asks the host to commit and push its workspace.
func (c *Coordinator) GitPush(message string) error {
	return c.link.Send(protocol.RequestGitPush{Message: message})
}

// GitClone asks the host to clone a repository into its workspace.
func (c *Coordinator) GitClone(repoURL, repoName, accessToken string) error {
	return c.link.Send(protocol.RequestGitClone{RepoURL: repoURL, RepoName: repoName, AccessToken: accessToken})
}

// GitInit asks the host to initialize a new repository in its workspace.
func (c *Coordinator) GitInit(repoURL, repoName, accessToken string) error {
	return c.link.Send(protocol.RequestGitInit{RepoURL: repoURL, RepoName: repoName, AccessToken: accessToken})
}

func (c *Coordinator) activeID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return 0
	}
	return c.active.ID
}

// persistToActive stores content against the active session; events arriving
// with no active session are dropped.
func (c *Coordinator) persistToActive(kind session.Kind, content string) {
	id := c.activeID()
	if id == 0 || strings.TrimSpace(content) == "" {
		return
	}
	c.persist(&session.Message{SessionID: id, Kind: kind, Content: content})
}

// persist writes a message and notifies the UI. A store failure is logged
// and otherwise swallowed: the conversation keeps flowing even when the
// local disk does not.
func (c *Coordinator) persist(msg *session.Message) {
	if _, err := c.store.InsertMessage(msg); err != nil {
		c.logStoreFailure(err)
		return
	}
	c.refresh()
}

func (c *Coordinator) logStoreFailure(err error) {
	if c.logger != nil {
		_ = c.logger.Append(log.LogEvent{Event: log.EventStoreWriteFailed, Error: err.Error()})
	}
}

func (c *Coordinator) notice(kind, text string) {
	if c.onNotice != nil {
		c.onNotice(Notice{Kind: kind, Text: text})
	}
}

func (c *Coordinator) refresh() {
	if c.onRefresh != nil {
		c.onRefresh()
	}
}
