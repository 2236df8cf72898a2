package adminsdk

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Coordinator guarantees at most one in-flight token refresh system-wide.
// Its two states are idle and refreshing; the flag is released on every exit
// path, including panics, so a failed refresh can never wedge the pipeline.
//
// Two policies exist for a demand that arrives while a refresh is already
// underway:
//
//   - wait (default): the demand waits for the in-flight refresh and shares
//     its result, so every request that observed a 401 gets to replay with
//     the new token.
//   - reject: the demand fails immediately with ErrRefreshInProgress. This
//     reproduces the historical console behavior where only the request
//     that triggered the refresh survived; it is kept for compatibility.
type Coordinator struct {
	refresh func(context.Context) error
	reject  bool

	group    singleflight.Group
	inFlight atomic.Bool
}

// NewCoordinator wraps a refresh operation, typically
// SessionManager.Refresh.
func NewCoordinator(refresh func(context.Context) error) *Coordinator {
	return &Coordinator{refresh: refresh}
}

// RejectConcurrent switches the coordinator to the reject policy.
func (c *Coordinator) RejectConcurrent() *Coordinator {
	c.reject = true
	return c
}

// Do runs the refresh under the single-flight guard.
func (c *Coordinator) Do(ctx context.Context) error {
	if c.reject {
		if !c.inFlight.CompareAndSwap(false, true) {
			return ErrRefreshInProgress
		}
		defer c.inFlight.Store(false)
		return c.refresh(ctx)
	}

	// Waiters share the first caller's flight; its context governs the
	// HTTP call, so a waiter cancelling does not abort the shared refresh.
	_, err, _ := c.group.Do("refresh", func() (any, error) {
		c.inFlight.Store(true)
		defer c.inFlight.Store(false)
		return nil, c.refresh(ctx)
	})
	return err
}

// Refreshing reports whether a refresh is currently in flight.
func (c *Coordinator) Refreshing() bool {
	return c.inFlight.Load()
}
