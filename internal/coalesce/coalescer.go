// Package coalesce batches a high-frequency stream of assistant text deltas
// into low-frequency appends, so the renderer and the store see a handful of
// updates per second instead of one per token.
package coalesce

import (
	"strings"
	"sync"
	"time"
)

// Sink receives the coalesced output of one assistant turn. OpenTurn is
// called when the first delta of a turn arrives, AppendOutput on every
// flush, and CloseTurn exactly once when the turn ends. All calls happen
// inside the coalescer's exclusive region and in order.
type Sink interface {
	OpenTurn()
	AppendOutput(text string)
	CloseTurn()
}

// Flush delay tiers: the fuller the buffer, the sooner it drains. The three
// thresholds trade update churn against perceived latency without measuring
// actual render cost.
const (
	fullThreshold = 500
	busyThreshold = 100

	delayFull = 30 * time.Millisecond
	delayBusy = 50 * time.Millisecond
	delayIdle = 100 * time.Millisecond
)

// flushDelay returns the flush delay for the given buffered length.
func flushDelay(buffered int) time.Duration {
	switch {
	case buffered > fullThreshold:
		return delayFull
	case buffered > busyThreshold:
		return delayBusy
	default:
		return delayIdle
	}
}

// Coalescer accumulates deltas for the current assistant turn and flushes
// them to its Sink on an adaptive timer. The buffer is only ever touched
// under the mutex, so a delta arriving mid-flush is neither lost nor
// duplicated.
type Coalescer struct {
	mu    sync.Mutex
	sink  Sink
	buf   strings.Builder
	timer *time.Timer
	armed bool
	open  bool
}

// New creates a Coalescer flushing into sink.
func New(sink Sink) *Coalescer {
	return &Coalescer{sink: sink}
}

// Push appends one delta to the current turn, opening a new turn if none is
// in progress. At most one flush timer is pending at a time; the delay is
// chosen from the buffered length when the timer is armed.
func (c *Coalescer) Push(delta string) {
	if delta == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.open {
		c.open = true
		c.sink.OpenTurn()
	}
	c.buf.WriteString(delta)

	if c.armed {
		return
	}
	c.armed = true
	c.timer = time.AfterFunc(flushDelay(c.buf.Len()), c.timerFlush)
}

// Streaming reports whether a turn is currently open.
func (c *Coalescer) Streaming() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// Finish ends the current turn: any pending timer is disarmed, remaining
// buffered text is flushed synchronously, and the turn is closed. Safe and
// a no-op when no turn is open, so callers may invoke it defensively on
// errors, completion sentinels, and teardown.
func (c *Coalescer) Finish() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.armed = false

	if !c.open {
		c.buf.Reset()
		return
	}
	c.flushLocked()
	c.sink.CloseTurn()
	c.open = false
}

func (c *Coalescer) timerFlush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.armed = false
	if !c.open {
		return
	}
	c.flushLocked()
}

// flushLocked drains the buffer into the sink. Caller holds the mutex.
func (c *Coalescer) flushLocked() {
	if c.buf.Len() == 0 {
		return
	}
	text := c.buf.String()
	c.buf.Reset()
	c.sink.AppendOutput(text)
}
