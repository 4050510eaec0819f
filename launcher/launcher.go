// Package launcher defines the browser-launcher contract the Browser
// Supervisor consumes, and a registry that resolves a
// browser name to a factory. Concrete launchers (launcher/process,
// launcher/shared, launcher/fake) implement the contract; this file is
// the boundary the orchestrator depends on.
package launcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/qunitjs/qtap/log"
)

// Signals carries the two hierarchical cancellation tokens a launcher
// must respect: Browser aborts only this session's browser; Global
// tears down resources shared across a whole run (temp profile dirs,
// a reused WebDriver session, a tunnel). Cancelling Browser must never
// reach Global's resources; only end-of-run cancels Global.
type Signals struct {
	Browser context.Context
	Global  context.Context
}

// Launcher opens url in a browser and does not return until the
// browser has exited. It must not resolve just because it opened the
// URL; it resolves when the browser process exits cleanly after
// Signals.Browser was cancelled, and returns an error if the browser
// cannot be launched or exits unexpectedly without cancellation.
//
// A Launcher may set DisplayName (via the handle returned from Launch)
// during its synchronous setup, before it starts waiting on the
// browser. The Supervisor reads it after invoking Launch but before
// awaiting the returned Handle, so display names resolved during a
// launcher's first synchronous step are still observed.
type Launcher interface {
	// Launch starts (or attaches to) a browser showing url and returns a
	// Handle to await its exit. debugMode callers pass a Signals.Browser
	// that is never cancelled by the orchestrator; Launch must still
	// return once the browser exits on its own.
	Launch(ctx context.Context, url string, signals Signals, logger *log.Logger, debugMode bool) (Handle, error)

	// Detect reports whether this launcher's browser is available on
	// the current system, used by the "detect" pseudo-browser.
	Detect() bool

	// Name is the launcher's registered identifier.
	Name() string
}

// Handle is returned synchronously from Launch, before the browser
// necessarily has a display name, so the Supervisor can read
// DisplayName() right after invocation and still observe a name the
// launcher sets during its own first synchronous step.
type Handle interface {
	// DisplayName returns the human-readable browser name, if known yet.
	DisplayName() string
	// Wait blocks until the browser exits. See Launcher.Launch for the
	// resolve/reject contract.
	Wait() error
}

// Registry resolves a BrowserId.Name to a Launcher factory. Modeled on
// proxy.Selector's pool-registration/lookup mechanics (mutex-guarded
// map, Register/Resolve), but entries are launcher factories rather
// than proxy endpoints, and there is no rotation strategy: a name
// resolves to exactly one factory.
type Registry struct {
	mu        sync.Mutex
	launchers map[string]Launcher
	// detectOrder is the ordered list of names probed for the "detect"
	// pseudo-browser.
	detectOrder []string
}

// NewRegistry creates an empty Registry. detectOrder lists the names
// probed, in order, for "detect"; the first whose Launcher.Detect()
// returns true wins.
func NewRegistry(detectOrder ...string) *Registry {
	return &Registry{
		launchers:   make(map[string]Launcher),
		detectOrder: detectOrder,
	}
}

// Register adds a Launcher under its own Name().
func (r *Registry) Register(l Launcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.launchers[l.Name()] = l
}

// Resolve returns the Launcher for name, resolving "detect" by probing
// detectOrder in sequence.
func (r *Registry) Resolve(name string) (Launcher, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == "detect" {
		for _, candidate := range r.detectOrder {
			l, ok := r.launchers[candidate]
			if ok && l.Detect() {
				return l, nil
			}
		}
		return nil, fmt.Errorf("launcher: no available browser among %v", r.detectOrder)
	}

	l, ok := r.launchers[name]
	if !ok {
		return nil, fmt.Errorf("launcher: unknown browser %q", name)
	}
	return l, nil
}
