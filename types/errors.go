package types

import "fmt"

// ErrorKind classifies a HarnessError for callers that need to react
// differently depending on where a run failed, in the same style as
// other classified-error types (Kind + Op + wrapped Err).
type ErrorKind string

const (
	// KindLaunch covers browser-launcher failures (process spawn,
	// WebDriver session creation, tunnel setup).
	KindLaunch ErrorKind = "launch"
	// KindTimeout covers connect/idle timeouts raised by the watchdog.
	KindTimeout ErrorKind = "timeout"
	// KindProtocol covers malformed TAP the parser could not make sense
	// of, and other control-channel protocol violations.
	KindProtocol ErrorKind = "protocol"
	// KindTransport covers HTTP-layer failures in the control server
	// (listener errors, request-body read failures).
	KindTransport ErrorKind = "transport"
	// KindReporter covers a subscriber that panicked or returned an
	// error; this is always an orchestrator-level fault.
	KindReporter ErrorKind = "reporter"
	// KindUserInput covers bad CLI arguments or config (unresolvable
	// browser name, unreadable test file).
	KindUserInput ErrorKind = "user_input"
)

// HarnessError is the error type every core component returns for
// failures a caller might want to branch on via errors.As.
type HarnessError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *HarnessError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("qtap: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("qtap: %s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *HarnessError) Unwrap() error { return e.Err }

// NewError builds a HarnessError.
func NewError(kind ErrorKind, op string, err error) *HarnessError {
	return &HarnessError{Kind: kind, Op: op, Err: err}
}

func kindIs(err error, kind ErrorKind) bool {
	var he *HarnessError
	for err != nil {
		if h, ok := err.(*HarnessError); ok {
			he = h
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return he != nil && he.Kind == kind
}

// IsLaunchError reports whether err is (or wraps) a KindLaunch error.
func IsLaunchError(err error) bool { return kindIs(err, KindLaunch) }

// IsTimeoutError reports whether err is (or wraps) a KindTimeout error.
func IsTimeoutError(err error) bool { return kindIs(err, KindTimeout) }

// IsProtocolError reports whether err is (or wraps) a KindProtocol error.
func IsProtocolError(err error) bool { return kindIs(err, KindProtocol) }

// IsReporterError reports whether err is (or wraps) a KindReporter error.
func IsReporterError(err error) bool { return kindIs(err, KindReporter) }
