// Package json implements a reporter that writes newline-delimited
// JSON, one object per event, in the style of
// cli/render.Renderer.renderJSON (json.Encoder usage) — here without
// SetIndent, since NDJSON consumers expect one compact object per line
// rather than a pretty-printed document.
package json

import (
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/qunitjs/qtap/types"
)

// envelope tags every emitted line with its event kind so a consumer
// can dispatch without probing field presence.
type envelope struct {
	Type  types.EventType `json:"type"`
	Event types.Event     `json:"event"`
}

// Reporter writes one JSON object per event to Out (defaults to
// os.Stdout).
type Reporter struct {
	Out io.Writer

	mu  sync.Mutex
	enc *json.Encoder
}

// New creates a Reporter writing to os.Stdout.
func New() *Reporter {
	return &Reporter{Out: os.Stdout}
}

// Handle implements bus.Subscriber.
func (r *Reporter) Handle(e types.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.enc == nil {
		out := r.Out
		if out == nil {
			out = os.Stdout
		}
		r.enc = json.NewEncoder(out)
	}

	_ = r.enc.Encode(envelope{Type: e.EventType(), Event: e})
}
