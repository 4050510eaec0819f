package json

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/qunitjs/qtap/types"
)

func TestReporter_OneObjectPerLine(t *testing.T) {
	var buf bytes.Buffer
	r := &Reporter{Out: &buf}

	r.Handle(types.OnlineEvent{ClientID: "c1"})
	r.Handle(types.FinishEvent{OK: true, Total: 4, Passed: 4})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 NDJSON lines, got %d: %q", len(lines), buf.String())
	}

	var first map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("unmarshal first line: %v", err)
	}
	if first["type"] != string(types.EventOnline) {
		t.Errorf("first line type = %v, want %q", first["type"], types.EventOnline)
	}

	var second map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("unmarshal second line: %v", err)
	}
	if second["type"] != string(types.EventFinish) {
		t.Errorf("second line type = %v, want %q", second["type"], types.EventFinish)
	}
}
