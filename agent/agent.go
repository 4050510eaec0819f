// Package agent embeds the browser-side client agent script and renders
// it for injection into a served test page.
//
// Unlike an extracted executor bundle (written to a temp directory
// and exec'd as a subprocess), the client agent never touches disk: it
// must execute inside the test page's own origin, so it is always
// inlined as a literal <script> body.
package agent

import (
	_ "embed"
	"strings"
)

//go:embed script/client-agent.js
var clientAgentSource string

//go:embed script/body-enable.js
var bodyEnableSource string

// tapURLPlaceholder is substituted in clientAgentSource with the
// client's actual TAP POST target.
const tapURLPlaceholder = "__QTAP_TAP_URL__"

// Render returns the client agent script body with the TAP POST URL
// substituted in, ready to be wrapped in a <script> tag and inserted
// into the served page's <head>.
func Render(tapURL string) string {
	return strings.ReplaceAll(clientAgentSource, tapURLPlaceholder, tapURL)
}

// RenderBodyEnable returns the compatibility shim inserted near the end
// of <body>, for test frameworks that only honor the TAP-enabled flag
// if it is (re-)set after their own bootstrap runs.
func RenderBodyEnable() string {
	return bodyEnableSource
}
