package minimal

import (
	"bytes"
	"strings"
	"testing"

	"github.com/qunitjs/qtap/types"
)

func TestReporter_ResultLine(t *testing.T) {
	var buf bytes.Buffer
	r := &Reporter{Out: &buf, clients: make(map[string]clientInfo)}

	r.Handle(types.ClientEvent{ClientID: "c1", BrowserName: "chrome-headless", TestFile: "suite.html"})
	r.Handle(types.ResultEvent{ClientID: "c1", OK: true, Total: 4, Passed: 4})

	out := buf.String()
	if !strings.Contains(out, "ok") || !strings.Contains(out, "chrome-headless") || !strings.Contains(out, "4/4 passed") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestReporter_BailLine(t *testing.T) {
	var buf bytes.Buffer
	r := &Reporter{Out: &buf, clients: make(map[string]clientInfo)}

	r.Handle(types.ClientEvent{ClientID: "c1", BrowserName: "firefox-headless", TestFile: "suite.html"})
	r.Handle(types.BailEvent{ClientID: "c1", Reason: "Bail out! oops"})

	out := buf.String()
	if !strings.Contains(out, "not ok") || !strings.Contains(out, "oops") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestReporter_FinishSummary(t *testing.T) {
	var buf bytes.Buffer
	r := &Reporter{Out: &buf, clients: make(map[string]clientInfo)}

	r.Handle(types.FinishEvent{OK: false, Total: 4, Passed: 3, Failed: 1, Bailout: ""})

	out := buf.String()
	if !strings.Contains(out, "FAIL") || !strings.Contains(out, "4 total") {
		t.Errorf("unexpected output: %q", out)
	}
}
