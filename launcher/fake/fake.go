// Package fake implements an in-memory Launcher used by qtap's own
// self-tests and by `--browser fake` for harness smoke-testing in
// sandboxes with no real browser installed.
//
// Modeled on a mock-executor test helper pattern
// (runtime/run_test.go): a fake backend that blocks Wait() until killed
// or released, rather than a real subprocess.
package fake

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/qunitjs/qtap/log"
	"github.com/qunitjs/qtap/launcher"
)

// Scenario is a canned TAP script the fake browser POSTs back to the
// control server after "loading" the test page.
type Scenario struct {
	// Match is matched against the full launch URL; the first
	// Scenario whose Match is a substring of the URL wins.
	Match string
	// TAP is the script body POSTed to the control server.
	TAP string
	// LaunchErr, if non-nil, makes Launch itself fail (simulating a
	// browser binary that can't be found) rather than serving TAP.
	LaunchErr error
	// NeverFinish marks a scenario whose TAP has no plan line, so the
	// client never finishes and is left to the idle timeout, simulating
	// a hung tab. Launch does not read this field; the missing plan in
	// TAP is what keeps the client open.
	NeverFinish bool
}

// DefaultScenarios covers the harness's common end-to-end scenarios.
var DefaultScenarios = []Scenario{
	{Match: "pass", TAP: "ok 1 - a\nok 2 - b\nok 3 - c\nok 4 - d\n1..4\n"},
	{Match: "fail-and-uncaught", TAP: "ok 1 - a\nnot ok 2 - b\n", NeverFinish: true},
	{Match: "fail", TAP: "ok 1 - a\nok 2 - b\nnot ok 3 - c\n1..3\n"},
	{Match: "bail", TAP: "ok 1 - a\nBail out! Need more cowbell.\n"},
	{Match: "timeout", TAP: "ok 1 - a\nok 2 - b\n", NeverFinish: true},
}

// Launcher is the fake Launcher. The zero value uses DefaultScenarios.
type Launcher struct {
	Scenarios []Scenario
	// Client performs the GET against the launch URL; overridable so
	// tests can avoid a real TCP round trip if desired. Defaults to
	// http.DefaultClient.
	Client *http.Client
}

// New creates a fake Launcher with DefaultScenarios.
func New() *Launcher {
	return &Launcher{Scenarios: DefaultScenarios, Client: http.DefaultClient}
}

// Name implements launcher.Launcher.
func (l *Launcher) Name() string { return "fake" }

// Detect implements launcher.Launcher. The fake browser is always
// available, guaranteeing "detect" never fails outright in a sandbox
// with no real browsers installed.
func (l *Launcher) Detect() bool { return true }

// Launch fetches the instrumented page (triggering the Control
// Server's "connected" transition, exactly as a real browser's initial
// navigation would) and then posts a canned TAP script to the client's
// TAP endpoint.
func (l *Launcher) Launch(ctx context.Context, rawURL string, signals launcher.Signals, logger *log.Logger, debugMode bool) (launcher.Handle, error) {
	scenario := l.selectScenario(rawURL)
	h := &handle{displayName: "fake"}

	if scenario.LaunchErr != nil {
		return h, scenario.LaunchErr
	}

	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Get(rawURL)
	if err != nil {
		return h, fmt.Errorf("fake launcher: fetching %s: %w", rawURL, err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	tapURL, err := tapEndpoint(rawURL)
	if err != nil {
		return h, err
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if scenario.TAP != "" {
			req, err := http.NewRequestWithContext(signals.Global, http.MethodPost, tapURL, strings.NewReader(scenario.TAP))
			if err == nil {
				if resp, err := client.Do(req); err == nil {
					io.Copy(io.Discard, resp.Body)
					resp.Body.Close()
				}
			}
		}

		<-signals.Browser.Done()
	}()

	return h, nil
}

func (l *Launcher) selectScenario(rawURL string) Scenario {
	for _, s := range l.Scenarios {
		if strings.Contains(rawURL, s.Match) {
			return s
		}
	}
	return Scenario{TAP: "ok 1 - default\n1..1\n"}
}

// tapEndpoint derives the control server's TAP ingest URL from the
// launch URL: same origin, fixed ingest path, same clientId.
func tapEndpoint(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("fake launcher: parsing %s: %w", rawURL, err)
	}
	clientID := u.Query().Get("qtap_clientId")
	tap := &url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/.qtap/tap/"}
	q := tap.Query()
	q.Set("qtap_clientId", clientID)
	tap.RawQuery = q.Encode()
	return tap.String(), nil
}

type handle struct {
	mu          sync.Mutex
	displayName string
	wg          sync.WaitGroup
}

func (h *handle) DisplayName() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.displayName
}

func (h *handle) Wait() error {
	h.wg.Wait()
	return nil
}
