// Package tap implements an incremental TAP (Test Anything Protocol)
// stream parser and the finish-detection logic layered on top of it.
//
// The grammar itself is simple enough, and no streaming TAP library
// turned up anywhere in this module's dependency corpus, so the parser
// is hand-written here rather than imported; its incremental-read
// discipline (accept arbitrary byte chunks, buffer partial lines,
// surface signals in input order) follows the same shape as any
// length-prefixed frame reader: never block waiting for more than one
// line's worth of bytes.
package tap

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"

	"github.com/qunitjs/qtap/types"
)

var (
	reAssertLine = regexp.MustCompile(`^(not )?ok(?:\s+(\d+))?\b(.*)$`)
	rePlanLine   = regexp.MustCompile(`^(\d+)\.\.(\d+)\s*(?:#\s*(.*))?$`)
	reBailout    = regexp.MustCompile(`^Bail out!\s*(.*)$`)
	reDirective  = regexp.MustCompile(`(?i)^\s*#\s*(todo|skip)\b\s*(.*)$`)
)

// Assert is one `ok`/`not ok` line.
type Assert struct {
	Number     int
	OK         bool
	Name       string
	Directive  string // "", "TODO", or "SKIP"
	Reason     string // directive text, if any
	Diagnostic string // YAML diagnostic block following a failing assert
}

// Plan is a `1..N` line.
type Plan struct {
	Count int
}

// Bailout is a `Bail out! <reason>` line.
type Bailout struct {
	Reason string
}

// Comment is any `#`-prefixed line that isn't a TODO/SKIP directive
// trailing an assert line.
type Comment struct {
	Text string
}

// Observer receives parser signals in the exact order lines arrived.
type Observer interface {
	OnAssert(Assert)
	OnPlan(Plan)
	OnBailout(Bailout)
	OnComment(Comment)
	OnComplete(types.FinalResult)
}

// Parser is an incremental TAP13 parser. It is not safe for concurrent
// use; the control server feeds each Client's parser from a single
// HTTP handler at a time (spec's single-writer-per-Client rule).
type Parser struct {
	obs Observer

	buf bytes.Buffer

	plan          *int
	asserts       []Assert
	bailout       *string
	inYAML        bool
	yamlLines     []string
	lastAssertIdx int // -1 if no assert seen yet

	completed bool
}

// New creates a Parser that reports signals to obs.
func New(obs Observer) *Parser {
	return &Parser{obs: obs, lastAssertIdx: -1}
}

// Write feeds another chunk of TAP bytes. Chunks need not align with
// line boundaries; partial lines are buffered until completed.
func (p *Parser) Write(chunk []byte) (int, error) {
	if p.completed {
		return len(chunk), nil
	}
	p.buf.Write(chunk)

	for {
		data := p.buf.Bytes()
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		line := string(data[:idx])
		p.buf.Next(idx + 1)
		p.processLine(strings.TrimRight(line, "\r"))
	}
	return len(chunk), nil
}

// Close flushes any trailing unterminated line and emits `complete`.
// Safe to call more than once; only the first call has effect.
func (p *Parser) Close() error {
	if p.completed {
		return nil
	}
	if rest := p.buf.String(); strings.TrimSpace(rest) != "" {
		p.processLine(strings.TrimRight(rest, "\r\n"))
	}
	p.buf.Reset()
	p.finish()
	return nil
}

func (p *Parser) processLine(line string) {
	trimmed := strings.TrimSpace(line)

	if p.inYAML {
		if trimmed == "..." {
			p.inYAML = false
			if p.lastAssertIdx >= 0 {
				p.asserts[p.lastAssertIdx].Diagnostic = strings.Join(p.yamlLines, "\n")
			}
			p.yamlLines = nil
			return
		}
		p.yamlLines = append(p.yamlLines, line)
		return
	}

	switch {
	case trimmed == "---":
		p.inYAML = true
		p.yamlLines = nil
		return

	case reBailout.MatchString(trimmed):
		m := reBailout.FindStringSubmatch(trimmed)
		reason := m[1]
		p.bailout = &reason
		p.obs.OnBailout(Bailout{Reason: reason})
		return

	case rePlanLine.MatchString(trimmed):
		m := rePlanLine.FindStringSubmatch(trimmed)
		last, _ := strconv.Atoi(m[2])
		first, _ := strconv.Atoi(m[1])
		count := last - first + 1
		if last < first {
			count = 0
		}
		p.plan = &count
		p.obs.OnPlan(Plan{Count: count})
		return

	case reAssertLine.MatchString(trimmed):
		m := reAssertLine.FindStringSubmatch(trimmed)
		notOK := m[1] == "not "
		num := 0
		if m[2] != "" {
			num, _ = strconv.Atoi(m[2])
		} else {
			num = len(p.asserts) + 1
		}
		rest := strings.TrimSpace(m[3])
		rest = strings.TrimPrefix(rest, "-")
		rest = strings.TrimSpace(rest)

		name := rest
		directive := ""
		reason := ""
		if dm := reDirective.FindStringSubmatch(rest); dm != nil {
			// Directive appeared with no preceding description text.
			directive = strings.ToUpper(dm[1])
			reason = strings.TrimSpace(dm[2])
			name = ""
		} else if idx := strings.Index(rest, "#"); idx >= 0 {
			tail := rest[idx:]
			if dm := reDirective.FindStringSubmatch(tail); dm != nil {
				directive = strings.ToUpper(dm[1])
				reason = strings.TrimSpace(dm[2])
				name = strings.TrimSpace(rest[:idx])
			}
		}

		a := Assert{
			Number:    num,
			OK:        !notOK,
			Name:      name,
			Directive: directive,
			Reason:    reason,
		}
		p.asserts = append(p.asserts, a)
		p.lastAssertIdx = len(p.asserts) - 1
		p.obs.OnAssert(a)
		return

	case strings.HasPrefix(trimmed, "#"):
		p.obs.OnComment(Comment{Text: strings.TrimSpace(strings.TrimPrefix(trimmed, "#"))})
		return

	default:
		// Non-TAP noise (stray stdout) is ignored, matching most TAP
		// consumers' tolerance for interleaved output.
		return
	}
}

func (p *Parser) finish() {
	if p.completed {
		return
	}
	p.completed = true
	p.obs.OnComplete(p.buildResult())
}

func (p *Parser) buildResult() types.FinalResult {
	res := types.FinalResult{OK: true}
	if p.bailout != nil {
		res.OK = false
		res.Bailout = *p.bailout
	}

	for _, a := range p.asserts {
		res.Total++
		switch a.Directive {
		case "TODO":
			res.Todos = append(res.Todos, a.Name)
			res.Passed++
		case "SKIP":
			res.Skips = append(res.Skips, a.Name)
		default:
			if a.OK {
				res.Passed++
			} else {
				res.Failed++
				res.Failures = append(res.Failures, types.TapFailure{
					Number:      a.Number,
					Description: a.Name,
					Diagnostic:  a.Diagnostic,
				})
			}
		}
	}

	if p.bailout == nil && res.Failed > 0 {
		res.OK = false
	}

	return res
}

// StripANSI removes SGR escape sequences (ESC[...m) from b, protecting
// the parser from colorized TAP emitters. Exported for the control
// server's TAP-ingest handler.
var reANSI = regexp.MustCompile("\x1b\\[[0-9;]*m")

func StripANSI(b []byte) []byte {
	return reANSI.ReplaceAll(b, nil)
}
