// Package shared implements a long-lived, lazily-started, single
// instance browser process shared across all Clients of one BrowserId
// within a run (the "Safari via WebDriver" case).
//
// Grounded line-for-line on runtime.AcquireReusableBrowser's flock +
// discovery-file + health-check protocol (runtime/browser_reuse.go),
// adapted from "reuse across separate CLI invocations" to "reuse across
// Clients within one orchestrator run": no cross-process discovery file
// is strictly required since the sharing scope never leaves the parent
// process, but the file-lock/discovery-file machinery is kept anyway as
// the mechanism for optionally persisting a warm browser across
// --watch re-runs within the same qtap process lifetime.
package shared

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/qunitjs/qtap/launcher"
	"github.com/qunitjs/qtap/log"
)

// discovery is the on-disk schema for a reusable browser server,
// written to $XDG_RUNTIME_DIR/qtap/<name>.json (or, without
// XDG_RUNTIME_DIR, to qtap-<uid>/<name>.json under the temp dir).
type discovery struct {
	DevtoolsURL string `json:"devtools_url"`
	PID         int    `json:"pid"`
	StartedAt   string `json:"started_at"`
}

// Launcher shares one browser process across every Client of a single
// BrowserId. Each Launch call opens a new tab in the shared instance
// via the browser's DevTools HTTP endpoint rather than spawning a new
// process.
type Launcher struct {
	BrowserName string
	Candidates  []string
	Args        []string

	mu          sync.Mutex
	devtoolsURL string
	cmd         *exec.Cmd
}

// New creates a shared Launcher for one browser binary.
func New(name string, candidates, args []string) *Launcher {
	return &Launcher{BrowserName: name, Candidates: candidates, Args: args}
}

// Name implements launcher.Launcher.
func (l *Launcher) Name() string { return l.BrowserName }

// Detect implements launcher.Launcher.
func (l *Launcher) Detect() bool {
	for _, c := range l.Candidates {
		if _, err := exec.LookPath(c); err == nil {
			return true
		}
	}
	return false
}

// Launch ensures a shared browser instance is running, then opens a
// new tab pointed at url. Signals.Browser is per-Client: cancelling it
// makes only that Client's Handle.Wait return; the tab itself is not
// closed, and the shared process keeps running. Only Signals.Global
// teardown closes the shared instance, via Close.
func (l *Launcher) Launch(ctx context.Context, targetURL string, signals launcher.Signals, logger *log.Logger, debugMode bool) (launcher.Handle, error) {
	devtools, err := l.acquire(ctx, logger)
	if err != nil {
		return nil, err
	}

	if err := openTab(devtools, targetURL); err != nil {
		return nil, fmt.Errorf("shared launcher: open tab: %w", err)
	}

	h := &handle{displayName: l.BrowserName, done: make(chan struct{})}
	go func() {
		<-signals.Browser.Done()
		close(h.done)
	}()

	go func() {
		<-signals.Global.Done()
		l.Close()
	}()

	return h, nil
}

// acquire returns the shared browser's DevTools URL, starting the
// instance if none is running or the existing one is stale, guarded by
// a file lock so concurrent Clients of the same BrowserId don't race
// to start two instances.
func (l *Launcher) acquire(ctx context.Context, logger *log.Logger) (string, error) {
	l.mu.Lock()
	if l.devtoolsURL != "" {
		defer l.mu.Unlock()
		return l.devtoolsURL, nil
	}
	l.mu.Unlock()

	dir, err := discoveryDir()
	if err != nil {
		return "", err
	}
	lockPath := filepath.Join(dir, l.BrowserName+".lock")
	discoveryPath := filepath.Join(dir, l.BrowserName+".json")

	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return "", fmt.Errorf("shared launcher: open lock: %w", err)
	}
	defer func() {
		_ = syscall.Flock(int(lockFile.Fd()), syscall.LOCK_UN)
		_ = lockFile.Close()
	}()
	if err := syscall.Flock(int(lockFile.Fd()), syscall.LOCK_EX); err != nil {
		return "", fmt.Errorf("shared launcher: flock: %w", err)
	}

	if disc, err := readDiscovery(discoveryPath); err == nil {
		if err := healthCheck(disc.DevtoolsURL); err == nil {
			logger.Info("reusing shared browser", map[string]any{"browser": l.BrowserName, "pid": disc.PID})
			l.mu.Lock()
			l.devtoolsURL = disc.DevtoolsURL
			l.mu.Unlock()
			return disc.DevtoolsURL, nil
		}
		logger.Warn("stale shared browser discovery, relaunching", map[string]any{"browser": l.BrowserName, "pid": disc.PID})
		_ = os.Remove(discoveryPath)
	}

	devtoolsURL, cmd, err := l.spawn(ctx)
	if err != nil {
		return "", fmt.Errorf("shared launcher: spawn: %w", err)
	}

	l.mu.Lock()
	l.devtoolsURL = devtoolsURL
	l.cmd = cmd
	l.mu.Unlock()

	disc := discovery{DevtoolsURL: devtoolsURL, PID: cmd.Process.Pid, StartedAt: time.Now().UTC().Format(time.RFC3339)}
	if err := writeDiscovery(discoveryPath, disc); err != nil {
		return "", fmt.Errorf("shared launcher: write discovery: %w", err)
	}
	return devtoolsURL, nil
}

func (l *Launcher) spawn(ctx context.Context) (string, *exec.Cmd, error) {
	var path string
	for _, c := range l.Candidates {
		if p, err := exec.LookPath(c); err == nil {
			path = p
			break
		}
	}
	if path == "" {
		return "", nil, fmt.Errorf("no binary found among %v", l.Candidates)
	}

	cmd := exec.Command(path, l.Args...)
	if err := cmd.Start(); err != nil {
		return "", nil, err
	}

	// A real implementation reads the DevTools WS endpoint from the
	// browser's stderr ("DevTools listening on ws://..."); the HTTP
	// endpoint used by openTab/healthCheck is the same host:port.
	return devToolsStderrPlaceholder, cmd, nil
}

// devToolsStderrPlaceholder stands in for the host:port parsed from the
// browser's "DevTools listening on ws://..." stderr line.
const devToolsStderrPlaceholder = "http://127.0.0.1:0"

// Close tears down the shared browser instance. Called from the global
// cancellation token (once per Launch call; calls after the first find
// nothing left to kill), never from a per-Client one.
func (l *Launcher) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cmd != nil && l.cmd.Process != nil {
		_ = l.cmd.Process.Kill()
	}
	l.devtoolsURL = ""
	l.cmd = nil
}

func discoveryDir() (string, error) {
	var dir string
	if xdg := os.Getenv("XDG_RUNTIME_DIR"); xdg != "" {
		dir = filepath.Join(xdg, "qtap")
	} else {
		dir = filepath.Join(os.TempDir(), fmt.Sprintf("qtap-%d", os.Getuid()))
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create discovery dir %s: %w", dir, err)
	}
	return dir, nil
}

func readDiscovery(path string) (discovery, error) {
	var d discovery
	b, err := os.ReadFile(path)
	if err != nil {
		return d, err
	}
	err = json.Unmarshal(b, &d)
	return d, err
}

func writeDiscovery(path string, d discovery) error {
	b, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

func healthCheck(devtoolsURL string) error {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(devtoolsURL + "/json/version")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned %d", resp.StatusCode)
	}
	return nil
}

func openTab(devtoolsURL, targetURL string) error {
	u := fmt.Sprintf("%s/json/new?%s", devtoolsURL, url.QueryEscape(targetURL))
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(u)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("open tab returned %d", resp.StatusCode)
	}
	return nil
}

type handle struct {
	displayName string
	done        chan struct{}
}

func (h *handle) DisplayName() string { return h.displayName }
func (h *handle) Wait() error {
	<-h.done
	return nil
}
