// Package watchdog implements the liveness timeout supervisor: a single
// periodic sweep over a Control Server's live Clients, rather than a
// per-assertion timer reset. Modeled structurally on
// proxy.Selector.CleanExpiredSticky's periodic-sweep-over-a-map shape
// (lock, iterate, act, unlock — no per-entry timers).
package watchdog

import (
	"fmt"
	"sync"
	"time"

	"github.com/qunitjs/qtap/types"
)

// CheckInterval is the fixed sweep period.
const CheckInterval = 100 * time.Millisecond

// Clock abstracts time.Now for tests.
type Clock func() time.Time

// Watchdog sweeps a registry of live Clients on a fixed ticker, bailing
// any Client that has exceeded its connect or idle timeout.
type Watchdog struct {
	connectTimeout time.Duration
	idleTimeout    time.Duration
	clock          Clock
	onTimeout      func(client *types.Client, connectPhase bool, reason string)

	mu      sync.Mutex
	clients map[string]*types.Client

	ticker *time.Ticker
	stop   chan struct{}
	done   chan struct{}
}

// New creates a Watchdog. onTimeout is invoked synchronously from the
// sweep goroutine whenever a live Client exceeds its timeout;
// connectPhase is true for connect_timeout, false for idle_timeout.
func New(connectTimeout, idleTimeout time.Duration, onTimeout func(client *types.Client, connectPhase bool, reason string)) *Watchdog {
	return &Watchdog{
		connectTimeout: connectTimeout,
		idleTimeout:    idleTimeout,
		clock:          time.Now,
		onTimeout:      onTimeout,
		clients:        make(map[string]*types.Client),
	}
}

// WithClock overrides the clock used for timeout comparisons, for tests.
func (w *Watchdog) WithClock(c Clock) *Watchdog {
	w.clock = c
	return w
}

// Register adds a Client to the watchdog's sweep set.
func (w *Watchdog) Register(c *types.Client) {
	w.mu.Lock()
	w.clients[c.ClientID] = c
	w.mu.Unlock()
}

// Clear removes a Client from the sweep set. Must be called on every
// terminal transition so a finished Client is never re-examined.
func (w *Watchdog) Clear(clientID string) {
	w.mu.Lock()
	delete(w.clients, clientID)
	w.mu.Unlock()
}

// Start begins the periodic sweep. Stop must be called to release the
// ticker.
func (w *Watchdog) Start() {
	w.ticker = time.NewTicker(CheckInterval)
	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	go w.loop()
}

func (w *Watchdog) loop() {
	defer close(w.done)
	for {
		select {
		case <-w.stop:
			return
		case <-w.ticker.C:
			w.Sweep()
		}
	}
}

// Stop halts the sweep goroutine and waits for it to exit.
func (w *Watchdog) Stop() {
	if w.ticker == nil {
		return
	}
	w.ticker.Stop()
	close(w.stop)
	<-w.done
}

// Sweep runs one check pass immediately. Safe to call directly in tests
// instead of waiting on the ticker.
func (w *Watchdog) Sweep() {
	now := w.clock()

	w.mu.Lock()
	snapshot := make([]*types.Client, 0, len(w.clients))
	for _, c := range w.clients {
		snapshot = append(snapshot, c)
	}
	w.mu.Unlock()

	for _, c := range snapshot {
		state := c.State()
		if state.IsTerminal() {
			w.Clear(c.ClientID)
			continue
		}
		switch state {
		case types.StateLaunching:
			if now.Sub(c.LaunchStartAt()) > w.connectTimeout {
				w.onTimeout(c, true, connectTimeoutReason(w.connectTimeout))
			}
		case types.StateConnected:
			if now.Sub(c.LastActivityAt()) > w.idleTimeout {
				w.onTimeout(c, false, idleTimeoutReason(w.idleTimeout))
			}
		}
	}
}

func connectTimeoutReason(d time.Duration) string {
	return fmt.Sprintf("Browser did not start within %ds", int(d.Seconds()))
}

func idleTimeoutReason(d time.Duration) string {
	return fmt.Sprintf("Browser idle for %ds", int(d.Seconds()))
}
