package sse

import (
	"fmt"
	"sync"
)

// StreamState tracks where a stream is in its lifecycle.
type StreamState int

const (
	StreamDisconnected StreamState = iota
	StreamConnecting
	StreamConnected
	StreamStreaming
	StreamCompleted
	StreamError
)

func (s StreamState) String() string {
	switch s {
	case StreamDisconnected:
		return "disconnected"
	case StreamConnecting:
		return "connecting"
	case StreamConnected:
		return "connected"
	case StreamStreaming:
		return "streaming"
	case StreamCompleted:
		return "completed"
	case StreamError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Event is one decoded SSE record. Data is the parsed JSON value when
// the payload is structured, otherwise the raw string.
type Event struct {
	Type     string
	Data     any
	ID       string
	StreamID string
}

// StreamExhaustedError is the terminal error yielded when a stream has
// used up its reconnection budget.
type StreamExhaustedError struct {
	Endpoint string
	Attempts int
}

func (e *StreamExhaustedError) Error() string {
	return fmt.Sprintf("stream %s exhausted after %d reconnect attempts", e.Endpoint, e.Attempts)
}

// StreamContext holds the mutable per-stream bookkeeping: identity,
// lifecycle state, and the reconnection counters.
type StreamContext struct {
	mu            sync.Mutex
	id            string
	endpoint      string
	state         StreamState
	lastEventID   string
	events        int
	attempts      int
	maxReconnects int
}

// ID returns the stream identifier. The server may replace the locally
// generated one via the X-Stream-ID response header.
func (c *StreamContext) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

func (c *StreamContext) setID(id string) {
	c.mu.Lock()
	c.id = id
	c.mu.Unlock()
}

// Endpoint returns the path this stream is attached to.
func (c *StreamContext) Endpoint() string {
	return c.endpoint
}

// State returns the current lifecycle state.
func (c *StreamContext) State() StreamState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *StreamContext) setState(s StreamState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// LastEventID returns the most recent event id seen on the wire, used
// as the resume point on reconnection.
func (c *StreamContext) LastEventID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastEventID
}

func (c *StreamContext) setLastEventID(id string) {
	c.mu.Lock()
	c.lastEventID = id
	c.mu.Unlock()
}

// EventCount returns how many records this stream has delivered.
func (c *StreamContext) EventCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events
}

func (c *StreamContext) countEvent() {
	c.mu.Lock()
	c.events++
	c.mu.Unlock()
}

// Attempts returns the number of reconnection attempts consumed so far.
func (c *StreamContext) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// bumpAttempts increments the counter and reports whether the
// reconnection budget still has room.
func (c *StreamContext) bumpAttempts() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts++
	return c.attempts < c.maxReconnects
}
