// Package minimal implements qtap's default reporter: one line per
// Client (ok/not ok plus a running count) followed by a summary line,
// using the same tabwriter table-rendering style used elsewhere —
// specifically its text/tabwriter usage for aligned columnar output,
// adapted from "render an arbitrary struct/slice" to a fixed, known
// Client-row shape.
package minimal

import (
	"fmt"
	"io"
	"os"
	"sync"
	"text/tabwriter"

	"github.com/qunitjs/qtap/types"
)

// Reporter writes a human-readable progress line per Client and a
// final summary to Out (defaults to os.Stdout).
type Reporter struct {
	Out io.Writer

	mu      sync.Mutex
	clients map[string]clientInfo
	w       *tabwriter.Writer
}

type clientInfo struct {
	displayName string
	testFile    string
}

// New creates a Reporter writing to os.Stdout.
func New() *Reporter {
	return &Reporter{Out: os.Stdout, clients: make(map[string]clientInfo)}
}

// Handle implements bus.Subscriber.
func (r *Reporter) Handle(e types.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.w == nil {
		out := r.Out
		if out == nil {
			out = os.Stdout
		}
		r.w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	}

	switch ev := e.(type) {
	case types.ClientEvent:
		r.clients[ev.ClientID] = clientInfo{displayName: ev.BrowserName, testFile: ev.TestFile}
	case types.ResultEvent:
		info := r.clients[ev.ClientID]
		status := "ok"
		if !ev.OK {
			status = "not ok"
		}
		fmt.Fprintf(r.w, "%s\t%s\t%s\t%d/%d passed\n", status, info.displayName, info.testFile, ev.Passed, ev.Total)
		r.w.Flush()
	case types.BailEvent:
		info := r.clients[ev.ClientID]
		fmt.Fprintf(r.w, "not ok\t%s\t%s\tbailed: %s\n", info.displayName, info.testFile, ev.Reason)
		r.w.Flush()
	case types.FinishEvent:
		status := "PASS"
		if !ev.OK {
			status = "FAIL"
		}
		fmt.Fprintf(r.w, "\n%s\t%d total\t%d passed\t%d failed\n", status, ev.Total, ev.Passed, ev.Failed)
		if ev.Bailout != "" {
			fmt.Fprintf(r.w, "bailout:\t%s\n", ev.Bailout)
		}
		r.w.Flush()
	case types.ErrorEvent:
		fmt.Fprintf(r.w, "ERROR\t%v\n", ev.Err)
		r.w.Flush()
	}
}
