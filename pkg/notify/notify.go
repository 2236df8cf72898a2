// Package notify is the toast layer: it observes request pipeline outcomes
// and maintains the list of active notifications a display layer renders.
// It consumes the SDK's error taxonomy but never participates in
// authentication state.
package notify

import (
	"sync"
	"time"

	"github.com/quietgrove/backoffice/pkg/idx"
)

// Type classifies a notification for styling.
type Type string

const (
	TypeSuccess Type = "success"
	TypeError   Type = "error"
	TypeWarning Type = "warning"
	TypeInfo    Type = "info"
	TypePrimary Type = "primary"
)

const (
	// progressTick is how often auto-closing notifications update their
	// remaining-time fraction.
	progressTick = 50 * time.Millisecond

	// removeDelay is the gap between a notification turning invisible and
	// its removal from the list, leaving room for an exit animation.
	removeDelay = 300 * time.Millisecond
)

// GenericErrorMessage is shown when an error carries no usable message.
const GenericErrorMessage = "Something went wrong. Please try again."

// Options is the per-notification configuration bundle.
type Options struct {
	// Duration before auto-close; zero keeps the notification sticky.
	Duration time.Duration

	Position       string
	Animation      string
	DismissOnClick bool
	ShowProgress   bool
	PauseOnHover   bool
}

// DefaultOptions mirror the console's toast defaults.
func DefaultOptions() Options {
	return Options{
		Duration:       5 * time.Second,
		Position:       "top-right",
		Animation:      "fade",
		DismissOnClick: true,
		ShowProgress:   true,
		PauseOnHover:   true,
	}
}

// Notification is one active toast.
type Notification struct {
	ID        idx.ID
	Type      Type
	Title     string
	Message   string
	Options   Options
	CreatedAt time.Time

	// Visible flips false on close; the entry lingers in the list for
	// removeDelay so the display layer can animate the exit.
	Visible bool

	// Progress is the remaining-time fraction, 1 down to 0.
	Progress float64

	// Paused suspends the auto-close countdown (pointer hover).
	Paused bool
}

// CenterConfig configures a Center.
type CenterConfig struct {
	// NewestFirst orders the list most-recent-first instead of insertion
	// order.
	NewestFirst bool

	// Defaults replace DefaultOptions for notifications shown without
	// explicit options.
	Defaults *Options

	// Tick and RemoveDelay override the display timings, for tests.
	Tick        time.Duration
	RemoveDelay time.Duration
}

// Center holds the active notifications. Safe for concurrent use.
type Center struct {
	newestFirst bool
	defaults    Options
	tick        time.Duration
	removeDelay time.Duration

	mu    sync.Mutex
	items []*Notification
}

func NewCenter(cfg CenterConfig) *Center {
	c := &Center{
		newestFirst: cfg.NewestFirst,
		defaults:    DefaultOptions(),
		tick:        cfg.Tick,
		removeDelay: cfg.RemoveDelay,
	}
	if cfg.Defaults != nil {
		c.defaults = *cfg.Defaults
	}
	if c.tick <= 0 {
		c.tick = progressTick
	}
	if c.removeDelay <= 0 {
		c.removeDelay = removeDelay
	}
	return c
}

// Show inserts a notification and, when its duration is positive, starts
// the auto-close countdown. It returns the notification's ID.
func (c *Center) Show(typ Type, title, message string, opts *Options) idx.ID {
	o := c.defaults
	if opts != nil {
		o = *opts
	}

	n := &Notification{
		ID:        idx.New(),
		Type:      typ,
		Title:     title,
		Message:   message,
		Options:   o,
		CreatedAt: time.Now(),
		Visible:   true,
		Progress:  1,
	}

	c.mu.Lock()
	if c.newestFirst {
		c.items = append([]*Notification{n}, c.items...)
	} else {
		c.items = append(c.items, n)
	}
	c.mu.Unlock()

	if o.Duration > 0 {
		go c.countdown(n.ID, o.Duration)
	}
	return n.ID
}

// Success shows a success toast with default options.
func (c *Center) Success(title, message string) idx.ID {
	return c.Show(TypeSuccess, title, message, nil)
}

// Error shows an error toast with default options.
func (c *Center) Error(title, message string) idx.ID {
	return c.Show(TypeError, title, message, nil)
}

// Warning shows a warning toast with default options.
func (c *Center) Warning(title, message string) idx.ID {
	return c.Show(TypeWarning, title, message, nil)
}

// Info shows an info toast with default options.
func (c *Center) Info(title, message string) idx.ID {
	return c.Show(TypeInfo, title, message, nil)
}

// Close hides the notification immediately and removes it from the list
// after the remove delay. Closing an unknown or already-closed ID is a
// no-op.
func (c *Center) Close(id idx.ID) {
	c.mu.Lock()
	n := c.findLocked(id)
	if n == nil || !n.Visible {
		c.mu.Unlock()
		return
	}
	n.Visible = false
	c.mu.Unlock()

	time.AfterFunc(c.removeDelay, func() { c.remove(id) })
}

// Click handles a pointer click on the notification.
func (c *Center) Click(id idx.ID) {
	c.mu.Lock()
	n := c.findLocked(id)
	dismiss := n != nil && n.Options.DismissOnClick
	c.mu.Unlock()

	if dismiss {
		c.Close(id)
	}
}

// Pause suspends the auto-close countdown, if the notification opted in.
func (c *Center) Pause(id idx.ID) {
	c.mu.Lock()
	if n := c.findLocked(id); n != nil && n.Options.PauseOnHover {
		n.Paused = true
	}
	c.mu.Unlock()
}

// Resume restarts a paused countdown.
func (c *Center) Resume(id idx.ID) {
	c.mu.Lock()
	if n := c.findLocked(id); n != nil {
		n.Paused = false
	}
	c.mu.Unlock()
}

// Active returns a snapshot of the current notifications, in display
// order.
func (c *Center) Active() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Notification, len(c.items))
	for i, n := range c.items {
		out[i] = *n
	}
	return out
}

// Get returns a snapshot of one notification.
func (c *Center) Get(id idx.ID) (Notification, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n := c.findLocked(id); n != nil {
		return *n, true
	}
	return Notification{}, false
}

func (c *Center) findLocked(id idx.ID) *Notification {
	for _, n := range c.items {
		if n.ID == id {
			return n
		}
	}
	return nil
}

func (c *Center) remove(id idx.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, n := range c.items {
		if n.ID == id {
			c.items = append(c.items[:i], c.items[i+1:]...)
			return
		}
	}
}

// countdown drives the progress fraction on a fixed tick and closes the
// notification when its duration elapses. Pausing freezes the remaining
// time.
func (c *Center) countdown(id idx.ID, duration time.Duration) {
	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()

	remaining := duration
	for range ticker.C {
		c.mu.Lock()
		n := c.findLocked(id)
		if n == nil || !n.Visible {
			c.mu.Unlock()
			return
		}
		if n.Paused {
			c.mu.Unlock()
			continue
		}

		remaining -= c.tick
		if remaining <= 0 {
			n.Progress = 0
			c.mu.Unlock()
			c.Close(id)
			return
		}
		n.Progress = float64(remaining) / float64(duration)
		c.mu.Unlock()
	}
}
