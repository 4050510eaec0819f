// Package process implements a real Launcher that spawns a headless
// browser binary (Chrome or Firefox), grounded on
// runtime.ExecutorManager's os/exec + StdoutPipe/StderrPipe +
// cmd.Process.Kill() + exit-code extraction via syscall.WaitStatus.
package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"

	"github.com/qunitjs/qtap/launcher"
	"github.com/qunitjs/qtap/log"
)

// Binary describes how to invoke one browser in headless mode.
type Binary struct {
	// Name is the launcher's registered identifier, e.g. "chrome-headless".
	Name string
	// Candidates is tried, in order, via exec.LookPath to locate the
	// binary; the first that resolves is used.
	Candidates []string
	// Args are passed after the binary path and before the URL, e.g.
	// {"--headless=new", "--remote-debugging-port=0"}.
	Args []string
}

// Chrome is the headless Chrome/Chromium binary descriptor.
var Chrome = Binary{
	Name:       "chrome-headless",
	Candidates: []string{"google-chrome", "chromium", "chromium-browser", "chrome"},
	Args:       []string{"--headless=new", "--remote-debugging-port=0", "--no-sandbox"},
}

// Firefox is the headless Firefox binary descriptor.
var Firefox = Binary{
	Name:       "firefox-headless",
	Candidates: []string{"firefox"},
	Args:       []string{"-headless"},
}

// Launcher spawns Binary as a subprocess pointed at the launch URL.
type Launcher struct {
	Binary Binary
}

// New creates a process Launcher for one binary descriptor.
func New(b Binary) *Launcher { return &Launcher{Binary: b} }

// Name implements launcher.Launcher.
func (l *Launcher) Name() string { return l.Binary.Name }

// Detect implements launcher.Launcher by probing exec.LookPath over
// Candidates.
func (l *Launcher) Detect() bool {
	_, ok := l.resolve()
	return ok
}

func (l *Launcher) resolve() (string, bool) {
	for _, candidate := range l.Binary.Candidates {
		if path, err := exec.LookPath(candidate); err == nil {
			return path, true
		}
	}
	return "", false
}

// Launch starts the browser process pointed at url. The process group
// runs until Signals.Browser is cancelled, at which point the Launcher
// kills it; if it exits before that, Wait reports an error (an
// unexpected exit, per the Launcher contract).
func (l *Launcher) Launch(ctx context.Context, url string, signals launcher.Signals, logger *log.Logger, debugMode bool) (launcher.Handle, error) {
	path, ok := l.resolve()
	if !ok {
		return nil, fmt.Errorf("process launcher: %s not found (tried %v)", l.Binary.Name, l.Binary.Candidates)
	}

	args := append(append([]string{}, l.Binary.Args...), url)
	cmd := exec.Command(path, args...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("process launcher: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("process launcher: start %s: %w", l.Binary.Name, err)
	}

	h := &handle{cmd: cmd, displayName: l.Binary.Name, exited: make(chan struct{})}

	go io.Copy(io.Discard, stderr)

	go func() {
		<-signals.Browser.Done()
		h.mu.Lock()
		h.cancelled = true
		h.mu.Unlock()
		_ = cmd.Process.Kill()
	}()

	go func() {
		err := cmd.Wait()
		h.mu.Lock()
		cancelled := h.cancelled
		h.mu.Unlock()

		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
					h.exitCode = status.ExitStatus()
				} else {
					h.exitCode = -1
				}
			}
		}

		if !cancelled {
			h.err = fmt.Errorf("process launcher: %s exited unexpectedly (code %d)", l.Binary.Name, h.exitCode)
		}
		close(h.exited)
	}()

	return h, nil
}

type handle struct {
	cmd         *exec.Cmd
	displayName string
	exitCode    int

	mu        sync.Mutex
	cancelled bool

	exited chan struct{}
	err    error
}

func (h *handle) DisplayName() string { return h.displayName }

func (h *handle) Wait() error {
	<-h.exited
	return h.err
}
