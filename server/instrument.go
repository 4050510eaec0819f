package server

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/qunitjs/qtap/agent"
)

var (
	reHeadOpen    = regexp.MustCompile(`(?i)<head[^>]*>`)
	reHTMLOpen    = regexp.MustCompile(`(?i)<html[^>]*>`)
	reDoctype     = regexp.MustCompile(`(?i)<!doctype[^>]*>`)
	reBodyClose   = regexp.MustCompile(`(?i)</body>`)
	reHTMLClose   = regexp.MustCompile(`(?i)</html>`)
	reLineComment = regexp.MustCompile(`(?m)^[ \t]*//.*$`)
)

// buildInstrumentedPage inlines the client agent into html for one
// client. Each script is flattened to one line (whole-line `//` comments
// dropped, line breaks turned into spaces), so insertion never adds a
// newline and the document's line count is unchanged.
func buildInstrumentedPage(html []byte, tapURL string, isURLInput bool, originalURL string) []byte {
	oneLine := func(js string) string {
		js = reLineComment.ReplaceAllString(js, "")
		return strings.ReplaceAll(strings.ReplaceAll(js, "\r", ""), "\n", " ")
	}
	headInjection := "<script>" + oneLine(agent.Render(tapURL)) + "</script>"
	if isURLInput {
		headInjection = fmt.Sprintf(`<base href=%q/>`, originalURL) + headInjection
	}
	bodyInjection := "<script>" + oneLine(agent.RenderBodyEnable()) + "</script>"

	out := insertAt(html, headInsertionPoint(html), []byte(headInjection))
	out = insertAt(out, bodyInsertionPoint(out), []byte(bodyInjection))
	return out
}

// headInsertionPoint returns the first matching position from the
// ordered list: after <head …>, after <html …>, after
// <!doctype …>, or at string start.
func headInsertionPoint(html []byte) int {
	for _, re := range []*regexp.Regexp{reHeadOpen, reHTMLOpen, reDoctype} {
		if loc := re.FindIndex(html); loc != nil {
			return loc[1]
		}
	}
	return 0
}

// bodyInsertionPoint returns the first matching position from: before
// </body>, before </html>, or at end.
func bodyInsertionPoint(html []byte) int {
	for _, re := range []*regexp.Regexp{reBodyClose, reHTMLClose} {
		if loc := re.FindIndex(html); loc != nil {
			return loc[0]
		}
	}
	return len(html)
}

func insertAt(b []byte, pos int, insert []byte) []byte {
	out := make([]byte, 0, len(b)+len(insert))
	out = append(out, b[:pos]...)
	out = append(out, insert...)
	out = append(out, b[pos:]...)
	return out
}
