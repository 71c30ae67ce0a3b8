package channel

import "time"

const (
	// baseDelay is the delay before the first reconnect attempt.
	baseDelay = time.Second
	// maxDelay caps the exponential backoff.
	maxDelay = 16 * time.Second
	// maxAttempts is the number of reconnect attempts before the channel
	// settles into Disconnected and waits for an explicit Connect.
	maxAttempts = 5
)

// backoffDelay returns the delay before reconnect attempt n (1-based):
// baseDelay doubled per attempt, capped at maxDelay.
func backoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := baseDelay << (attempt - 1)
	if d > maxDelay {
		d = maxDelay
	}
	return d
}
