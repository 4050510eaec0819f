// Package tap implements a reporter that re-emits a single, compliant
// TAP13 stream aggregating every Client into one numbered plan,
// grounded on the same io.Writer-oriented style as reporter/minimal
// (itself grounded on cli/render.Renderer), adapted from "one table" to
// "one TAP document".
package tap

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/qunitjs/qtap/types"
)

// Reporter writes one TAP13-compliant line per Client result to Out
// (defaults to os.Stdout), emitting the closing plan line once the run
// finishes.
type Reporter struct {
	Out io.Writer

	mu      sync.Mutex
	started bool
	count   int
	clients map[string]types.ClientEvent
}

// New creates a Reporter writing to os.Stdout.
func New() *Reporter {
	return &Reporter{Out: os.Stdout, clients: make(map[string]types.ClientEvent)}
}

// Handle implements bus.Subscriber.
func (r *Reporter) Handle(e types.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := r.Out
	if out == nil {
		out = os.Stdout
	}

	if !r.started {
		fmt.Fprintln(out, "TAP version 13")
		r.started = true
	}

	switch ev := e.(type) {
	case types.ClientEvent:
		r.clients[ev.ClientID] = ev
	case types.ResultEvent:
		r.count++
		label := r.label(ev.ClientID)
		if ev.OK {
			fmt.Fprintf(out, "ok %d - %s\n", r.count, label)
		} else {
			fmt.Fprintf(out, "not ok %d - %s (%d/%d failed)\n", r.count, label, ev.Failed, ev.Total)
			for _, f := range ev.Failures {
				fmt.Fprintf(out, "  ---\n  assertion: %d\n  description: %s\n  diagnostic: %s\n  ...\n", f.Number, f.Description, f.Diagnostic)
			}
		}
	case types.BailEvent:
		r.count++
		fmt.Fprintf(out, "not ok %d - %s\nBail out! %s\n", r.count, r.label(ev.ClientID), ev.Reason)
	case types.FinishEvent:
		fmt.Fprintf(out, "1..%d\n", r.count)
	}
}

func (r *Reporter) label(clientID string) string {
	info, ok := r.clients[clientID]
	if !ok {
		return clientID
	}
	return fmt.Sprintf("%s: %s", info.BrowserName, info.TestFile)
}
