// Package context provides the conversation window for agent loops: an
// append-only buffer with a dual cap (message count, character budget) and a
// budgeted projection for prompt assembly.
package context

import (
	"sync"

	"github.com/anvilworks/anvil/internal/agent"
)

// Options configures a Window.
type Options struct {
	// MaxMessages caps the number of buffered messages.
	MaxMessages int

	// MaxChars caps the aggregate content length.
	MaxChars int

	// MinRecent is the floor of recent messages kept even when MaxChars is
	// exceeded, so a single long exchange cannot empty the window.
	MinRecent int
}

// DefaultOptions returns the window defaults.
func DefaultOptions() Options {
	return Options{
		MaxMessages: 100,
		MaxChars:    200000,
		MinRecent:   4,
	}
}

// Window is an append-only conversation buffer. Trimming removes only the
// oldest entries and insertion order is preserved in all outputs.
//
// Invariant after every append:
//
//	len <= MaxMessages && (charTotal <= MaxChars || len <= MinRecent)
type Window struct {
	mu        sync.Mutex
	messages  []agent.Message
	charTotal int
	opts      Options
}

// NewWindow creates a window with the given options.
func NewWindow(opts Options) *Window {
	if opts.MaxMessages <= 0 {
		opts.MaxMessages = DefaultOptions().MaxMessages
	}
	if opts.MaxChars <= 0 {
		opts.MaxChars = DefaultOptions().MaxChars
	}
	if opts.MinRecent < 1 {
		opts.MinRecent = 1
	}
	return &Window{opts: opts}
}

// Append adds a message and re-establishes the caps.
func (w *Window) Append(msg agent.Message) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.messages = append(w.messages, msg)
	w.charTotal += len(msg.Content)
	w.optimize()
}

// optimize evicts oldest messages while either cap is violated. The char cap
// respects the MinRecent floor. Called with the lock held.
func (w *Window) optimize() {
	for len(w.messages) > w.opts.MaxMessages {
		w.evictOldest()
	}
	for w.charTotal > w.opts.MaxChars && len(w.messages) > w.opts.MinRecent {
		w.evictOldest()
	}
}

func (w *Window) evictOldest() {
	w.charTotal -= len(w.messages[0].Content)
	w.messages = w.messages[1:]
}

// Snapshot returns a copy of the buffered messages in insertion order.
func (w *Window) Snapshot() []agent.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]agent.Message, len(w.messages))
	copy(out, w.messages)
	return out
}

// Project returns a copy fitting the character budget, assembled newest
// first and emitted in insertion order. If even the newest message alone
// exceeds the budget its content is truncated so callers never stall on an
// empty projection.
func (w *Window) Project(budgetChars int) []agent.Message {
	w.mu.Lock()
	defer w.mu.Unlock()

	if budgetChars <= 0 || len(w.messages) == 0 {
		return nil
	}

	start := len(w.messages)
	running := 0
	for start > 0 {
		next := len(w.messages[start-1].Content)
		if running+next > budgetChars {
			break
		}
		running += next
		start--
	}

	if start == len(w.messages) {
		// Newest message alone is over budget: truncate it.
		newest := w.messages[len(w.messages)-1]
		newest.Content = newest.Content[:budgetChars]
		return []agent.Message{newest}
	}

	out := make([]agent.Message, len(w.messages)-start)
	copy(out, w.messages[start:])
	return out
}

// Len returns the buffered message count.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.messages)
}

// CharTotal returns the aggregate content length.
func (w *Window) CharTotal() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.charTotal
}

// Clear empties the window.
func (w *Window) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.messages = nil
	w.charTotal = 0
}
