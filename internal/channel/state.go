// Package channel maintains the single bidirectional WebSocket connection to
// the remote agent host, hiding retry, backoff, and keepalive mechanics
// behind a typed event stream.
package channel

import (
	"fmt"
	"time"
)

// Phase is the connection lifecycle phase.
type Phase int

const (
	Disconnected Phase = iota
	Connecting
	Connected
	Reconnecting
	Failed
)

// State is the observable connection state. Attempt and Delay are set only
// in the Reconnecting phase; Reason only in the Failed phase. State is
// process-lifetime only and never persisted.
type State struct {
	Phase   Phase
	Attempt int
	Delay   time.Duration
	Reason  string
}

// String renders the state for status display.
func (s State) String() string {
	switch s.Phase {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return fmt.Sprintf("reconnecting %d/%d in %s", s.Attempt, maxAttempts, s.Delay)
	case Failed:
		return fmt.Sprintf("error: %s", s.Reason)
	}
	return "unknown"
}
