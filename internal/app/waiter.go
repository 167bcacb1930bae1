package app

import (
	"context"
	"time"
)

type waitResult int

const (
	waitDone waitResult = iota
	waitTimedOut
	waitAborted
)

func (r waitResult) String() string {
	switch r {
	case waitDone:
		return "done"
	case waitTimedOut:
		return "timed_out"
	case waitAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// waitFor polls check every interval until it reports done or abort, the
// timeout passes, or ctx ends. check runs once immediately. It never waits
// longer than timeout.
func waitFor(ctx context.Context, timeout, interval time.Duration, check func() (done, abort bool)) waitResult {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		done, abort := check()
		switch {
		case abort:
			return waitAborted
		case done:
			return waitDone
		}
		select {
		case <-ctx.Done():
			return waitAborted
		case <-deadline.C:
			return waitTimedOut
		case <-ticker.C:
		}
	}
}
