package types

import (
	"fmt"
	"sync"
	"time"
)

// ClientState is a Client's position in the lifecycle state machine.
// Transitions are monotonic: launching -> connected ->
// exactly one terminal state.
type ClientState int

const (
	// StateLaunching is the initial state, set when the supervisor starts.
	StateLaunching ClientState = iota
	// StateConnected is set on the first HTTP hit that serves the
	// instrumented page for this client.
	StateConnected
	// StateFinished is terminal: the Finish Detector reported a
	// plan-complete result.
	StateFinished
	// StateBailed is terminal: a TAP bailout was observed.
	StateBailed
	// StateTimedoutConnect is terminal: the client never connected within
	// the connect timeout.
	StateTimedoutConnect
	// StateTimedoutIdle is terminal: no activity within the idle timeout.
	StateTimedoutIdle
	// StateLaunchError is terminal: the launcher failed before/without
	// cancellation.
	StateLaunchError
)

func (s ClientState) String() string {
	switch s {
	case StateLaunching:
		return "launching"
	case StateConnected:
		return "connected"
	case StateFinished:
		return "finished"
	case StateBailed:
		return "bailed"
	case StateTimedoutConnect:
		return "timedout_connect"
	case StateTimedoutIdle:
		return "timedout_idle"
	case StateLaunchError:
		return "launch_error"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether s is one of the terminal states.
func (s ClientState) IsTerminal() bool {
	switch s {
	case StateFinished, StateBailed, StateTimedoutConnect, StateTimedoutIdle, StateLaunchError:
		return true
	default:
		return false
	}
}

// validTransitions enumerates the monotonic edges of the state machine.
// Anything not listed here is a programmer error, not a runtime
// condition — callers hold the Client's own lock for the whole sequence
// of check-then-set, so a bad transition can only mean a bug in this repo.
var validTransitions = map[ClientState]map[ClientState]bool{
	StateLaunching: {
		StateConnected:        true,
		StateTimedoutConnect:  true,
		StateLaunchError:      true,
		StateBailed:           true, // a bailout can race a connect, e.g. synchronous launcher failure reported as bail
	},
	StateConnected: {
		StateFinished:      true,
		StateBailed:        true,
		StateTimedoutIdle:  true,
	},
}

// Client is one (TestInput x BrowserID) session.
type Client struct {
	// ClientID is unique process-wide.
	ClientID string
	// TestFileDisplay is the display path or URL for the test file.
	TestFileDisplay string
	// BrowserName is the requested browser identifier.
	BrowserName string
	// TapChannelURL is the POST target the injected agent uses.
	TapChannelURL string

	mu             sync.Mutex
	state          ClientState
	displayName    string
	lastActivityAt time.Time
	launchStartAt  time.Time

	// cancel aborts this client's browser. Never nil after construction.
	cancel func()
}

// NewClient creates a Client in the launching state.
func NewClient(clientID, testFileDisplay, browserName, tapChannelURL string, cancel func()) *Client {
	now := time.Now()
	return &Client{
		ClientID:        clientID,
		TestFileDisplay: testFileDisplay,
		BrowserName:     browserName,
		TapChannelURL:   tapChannelURL,
		state:           StateLaunching,
		launchStartAt:   now,
		lastActivityAt:  now,
		cancel:          cancel,
	}
}

// State returns the current state.
func (c *Client) State() ClientState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetDisplayName records the launcher-reported display name.
func (c *Client) SetDisplayName(name string) {
	c.mu.Lock()
	c.displayName = name
	c.mu.Unlock()
}

// DisplayName returns the launcher-reported name, falling back to the
// requested browser name.
func (c *Client) DisplayName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.displayName == "" {
		return c.BrowserName
	}
	return c.displayName
}

// LaunchStartAt returns when the supervisor started this client.
func (c *Client) LaunchStartAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.launchStartAt
}

// LastActivityAt returns the last time a TAP POST was accepted.
func (c *Client) LastActivityAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivityAt
}

// Touch updates LastActivityAt to now. Never decreases it.
func (c *Client) Touch() {
	c.mu.Lock()
	now := time.Now()
	if now.After(c.lastActivityAt) {
		c.lastActivityAt = now
	}
	c.mu.Unlock()
}

// TryTransition attempts to move the client to `to`. Returns true if the
// transition was applied. A false return (already terminal, or already
// in `to`) lets callers treat duplicate terminations as safe no-ops.
func (c *Client) TryTransition(to ClientState) (applied bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.IsTerminal() {
		// Terminal states never move again; late events are no-ops.
		return false
	}

	if to == c.state {
		return false
	}

	if !validTransitions[c.state][to] {
		panic(fmt.Sprintf("qtap: invalid client state transition %s -> %s", c.state, to))
	}

	c.state = to
	if to.IsTerminal() {
		c.cancel()
	}
	return true
}
