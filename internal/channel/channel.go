package channel

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tether-dev/tether/internal/log"
	"github.com/tether-dev/tether/internal/protocol"
)

const (
	// pingInterval is the keepalive ping cadence. Short enough to detect
	// silently-dead cellular connections.
	pingInterval = 15 * time.Second
	// pongWait is how long a connection may stay silent before the read
	// side gives up on it.
	pongWait = 2 * pingInterval
	// writeWait bounds every write to the socket.
	writeWait = 10 * time.Second
)

// Channel owns the one logical connection to the remote agent host. It is a
// sink for typed outbound actions and a source of typed inbound events; the
// socket handle itself never leaves this package.
type Channel struct {
	logger  *log.Logger
	dialer  *websocket.Dialer
	onState func(State)

	mu         sync.Mutex
	writeMu    sync.Mutex
	conn       *websocket.Conn
	endpoint   string
	gen        int
	attempt    int
	retryTimer *time.Timer
	closing    bool
	state      State

	events  chan protocol.Event
	done    chan struct{}
	backoff func(int) time.Duration
}

// New creates an unconnected Channel. onState is invoked on every state
// transition and may be nil.
func New(logger *log.Logger, onState func(State)) *Channel {
	return &Channel{
		logger:  logger,
		dialer:  websocket.DefaultDialer,
		onState: onState,
		state:   State{Phase: Disconnected},
		events:  make(chan protocol.Event, 64),
		done:    make(chan struct{}),
		backoff: backoffDelay,
	}
}

// Events returns the inbound typed event stream. Heartbeat and unknown
// frames never appear on it. Events arrive in transport order.
func (c *Channel) Events() <-chan protocol.Event { return c.events }

// Done is closed when the channel is torn down via Close.
func (c *Channel) Done() <-chan struct{} { return c.done }

// State returns the current connection state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Endpoint returns the HTTP(S) base endpoint this channel targets.
func (c *Channel) Endpoint() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endpoint
}

// SocketURL transforms an HTTP(S) base endpoint into the WS(S) URL the host
// listens on: scheme swapped, fixed /ws path suffix appended.
func SocketURL(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parsing endpoint: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("parsing endpoint: unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

// Connect establishes the connection to endpoint. It is idempotent when
// already connected to the same endpoint; a different endpoint closes the
// prior connection first. A dial failure surfaces as an Error state and
// starts the reconnect ladder.
func (c *Channel) Connect(ctx context.Context, endpoint string) error {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return fmt.Errorf("connect: channel is closed")
	}
	if c.conn != nil && c.endpoint == endpoint {
		c.mu.Unlock()
		return nil
	}
	if prior := c.conn; prior != nil {
		c.conn = nil
		c.gen++
		prior.Close()
	}
	c.stopRetryLocked()
	c.endpoint = endpoint
	c.attempt = 0
	c.mu.Unlock()

	if c.logger != nil {
		_ = c.logger.Append(log.LogEvent{Event: log.EventConnectStarted, Endpoint: endpoint})
	}
	return c.dial(ctx, endpoint)
}

// dial performs one connection attempt and starts the read and ping pumps
// on success. On failure it schedules the next reconnect attempt.
func (c *Channel) dial(ctx context.Context, endpoint string) error {
	c.setState(State{Phase: Connecting})

	wsURL, err := SocketURL(endpoint)
	if err != nil {
		c.setState(State{Phase: Failed, Reason: err.Error()})
		return err
	}

	conn, resp, err := c.dialer.DialContext(ctx, wsURL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		c.setState(State{Phase: Failed, Reason: err.Error()})
		c.scheduleRetry()
		return fmt.Errorf("dialing %s: %w", wsURL, err)
	}

	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		conn.Close()
		return fmt.Errorf("connect: channel is closed")
	}
	c.conn = conn
	c.gen++
	gen := c.gen
	c.attempt = 0
	c.mu.Unlock()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	c.setState(State{Phase: Connected})
	if c.logger != nil {
		_ = c.logger.Append(log.LogEvent{Event: log.EventConnected, Endpoint: endpoint})
	}

	go c.readPump(conn, gen)
	go c.pingPump(conn, gen)
	return nil
}

// Send serializes an action to the wire. The transport cannot distinguish a
// queued write from a dropped one, so any write failure is treated as
// connection loss and feeds the reconnect ladder.
func (c *Channel) Send(a protocol.Action) error {
	data, err := protocol.EncodeAction(a)
	if err != nil {
		return err
	}

	c.mu.Lock()
	conn := c.conn
	gen := c.gen
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("send: not connected")
	}

	c.writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	err = conn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		if c.logger != nil {
			_ = c.logger.Append(log.LogEvent{Event: log.EventSendFailed, Error: err.Error()})
		}
		c.connectionLost(gen, err)
		return fmt.Errorf("writing action: %w", err)
	}
	return nil
}

// Close tears the channel down: pending backoff timers are cancelled, the
// socket is closed with a normal closure (which never triggers reconnect),
// and Done is closed. The channel cannot be reused afterwards.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return nil
	}
	c.closing = true
	c.stopRetryLocked()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		conn.Close()
	}
	close(c.done)

	c.setState(State{Phase: Disconnected})
	if c.logger != nil {
		_ = c.logger.Append(log.LogEvent{Event: log.EventDisconnected})
	}
	return nil
}

// readPump decodes inbound frames into typed events until the connection
// dies. gen guards against a stale pump acting on a replaced connection.
func (c *Channel) readPump(conn *websocket.Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.connectionLost(gen, err)
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		ev, ok := protocol.DecodeEvent(data)
		if !ok {
			continue
		}
		select {
		case c.events <- ev:
		case <-c.done:
			return
		}
	}
}

// pingPump sends keepalive pings until the connection dies or the channel
// is closed.
func (c *Channel) pingPump(conn *websocket.Conn, gen int) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			if err != nil {
				c.connectionLost(gen, err)
				return
			}
		case <-c.done:
			return
		}
	}
}

// connectionLost handles an abnormal closure: surface the error state, then
// begin the reconnect ladder. No-op for a stale generation or while an
// explicit Close is in flight.
func (c *Channel) connectionLost(gen int, cause error) {
	c.mu.Lock()
	if c.closing || gen != c.gen {
		c.mu.Unlock()
		return
	}
	// One dead connection can be reported by both pumps and a failed Send.
	// Retire the generation now so only the first report runs the ladder.
	c.gen++
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	c.setState(State{Phase: Failed, Reason: cause.Error()})
	c.scheduleRetry()
}

// scheduleRetry arms the backoff timer for the next reconnect attempt, or
// settles into Disconnected once the attempts are exhausted.
func (c *Channel) scheduleRetry() {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return
	}
	c.attempt++
	if c.attempt > maxAttempts {
		c.attempt = 0
		c.mu.Unlock()
		if c.logger != nil {
			_ = c.logger.Append(log.LogEvent{Event: log.EventReconnectExhausted})
		}
		c.setState(State{Phase: Disconnected})
		return
	}
	attempt := c.attempt
	delay := c.backoff(attempt)
	endpoint := c.endpoint
	c.stopRetryLocked()
	c.retryTimer = time.AfterFunc(delay, func() { c.redial(endpoint) })
	c.mu.Unlock()

	c.setState(State{Phase: Reconnecting, Attempt: attempt, Delay: delay})
	if c.logger != nil {
		_ = c.logger.Append(log.LogEvent{
			Event:    log.EventReconnectScheduled,
			Endpoint: endpoint,
			Attempt:  attempt,
			DelayMs:  delay.Milliseconds(),
		})
	}
}

func (c *Channel) redial(endpoint string) {
	c.mu.Lock()
	if c.closing || c.endpoint != endpoint {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	_ = c.dial(context.Background(), endpoint)
}

func (c *Channel) stopRetryLocked() {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
}

func (c *Channel) setState(s State) {
	c.mu.Lock()
	c.state = s
	cb := c.onState
	c.mu.Unlock()
	if cb != nil {
		cb(s)
	}
}
