package tap

import (
	"bytes"
	"strings"
	"testing"

	"github.com/qunitjs/qtap/types"
)

func TestReporter_AggregatesIntoSinglePlan(t *testing.T) {
	var buf bytes.Buffer
	r := &Reporter{Out: &buf, clients: make(map[string]types.ClientEvent)}

	r.Handle(types.ClientEvent{ClientID: "c1", BrowserName: "chrome-headless", TestFile: "a.html"})
	r.Handle(types.ClientEvent{ClientID: "c2", BrowserName: "firefox-headless", TestFile: "b.html"})
	r.Handle(types.ResultEvent{ClientID: "c1", OK: true, Total: 2, Passed: 2})
	r.Handle(types.ResultEvent{ClientID: "c2", OK: false, Total: 2, Passed: 1, Failed: 1})
	r.Handle(types.FinishEvent{OK: false, Total: 4, Passed: 3, Failed: 1})

	out := buf.String()
	if !strings.HasPrefix(out, "TAP version 13\n") {
		t.Fatalf("expected TAP version header, got %q", out)
	}
	if !strings.Contains(out, "ok 1 - chrome-headless: a.html") {
		t.Errorf("missing first result line: %q", out)
	}
	if !strings.Contains(out, "not ok 2 - firefox-headless: b.html") {
		t.Errorf("missing second result line: %q", out)
	}
	if !strings.Contains(out, "1..2\n") {
		t.Errorf("expected plan line counting 2 assertions, got %q", out)
	}
}

func TestReporter_Bailout(t *testing.T) {
	var buf bytes.Buffer
	r := &Reporter{Out: &buf, clients: make(map[string]types.ClientEvent)}

	r.Handle(types.ClientEvent{ClientID: "c1", BrowserName: "fake", TestFile: "a.html"})
	r.Handle(types.BailEvent{ClientID: "c1", Reason: "Need more cowbell."})

	out := buf.String()
	if !strings.Contains(out, "Bail out! Need more cowbell.") {
		t.Errorf("expected bail out line, got %q", out)
	}
}
