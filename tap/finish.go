package tap

import (
	"sync"
	"time"

	"github.com/qunitjs/qtap/types"
)

// FinishDetector wraps a Parser and fires OnFinish exactly once: when
// asserts_seen reaches the plan count (plan may arrive before or after
// the last assert), immediately on bailout, or synchronously on the
// parser's own `complete` signal. All other parser signals are
// forwarded to Outer unconditionally, in order, until the detector
// triggers; signals observed after triggering are dropped.
type FinishDetector struct {
	Outer    Observer
	OnFinish func(types.FinalResult)
	// Grace is how long to keep feeding the parser after finish is
	// triggered by the plan/asserts rule before forcing it closed,
	// giving trailing diagnostic lines a chance to attach to the last
	// failing assert. Zero means close immediately.
	Grace time.Duration

	parser *Parser

	mu            sync.Mutex
	assertsSeen   int
	planCount     *int
	triggered     bool
	bailed        bool
	resultEmitted bool
	timer         *time.Timer
}

// NewFinishDetector creates a detector. Call Write to feed TAP bytes.
func NewFinishDetector(outer Observer, onFinish func(types.FinalResult), grace time.Duration) *FinishDetector {
	fd := &FinishDetector{Outer: outer, OnFinish: onFinish, Grace: grace}
	fd.parser = New(fd)
	return fd
}

// Write feeds TAP bytes to the underlying parser.
func (fd *FinishDetector) Write(chunk []byte) (int, error) {
	return fd.parser.Write(chunk)
}

// Bailed reports whether the terminal outcome was a bailout. Only
// meaningful after OnFinish has fired.
func (fd *FinishDetector) Bailed() bool {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	return fd.bailed
}

func (fd *FinishDetector) OnAssert(a Assert) {
	fd.mu.Lock()
	if fd.triggered {
		fd.mu.Unlock()
		return
	}
	fd.assertsSeen++
	reached := fd.planCount != nil && fd.assertsSeen >= *fd.planCount
	fd.mu.Unlock()

	fd.Outer.OnAssert(a)
	if reached {
		fd.trigger(false)
	}
}

func (fd *FinishDetector) OnPlan(p Plan) {
	fd.mu.Lock()
	if fd.triggered {
		fd.mu.Unlock()
		return
	}
	count := p.Count
	fd.planCount = &count
	reached := fd.assertsSeen >= count
	fd.mu.Unlock()

	fd.Outer.OnPlan(p)
	if reached {
		fd.trigger(false)
	}
}

func (fd *FinishDetector) OnBailout(b Bailout) {
	fd.mu.Lock()
	if fd.triggered {
		fd.mu.Unlock()
		return
	}
	fd.mu.Unlock()

	fd.Outer.OnBailout(b)
	fd.trigger(true)
}

func (fd *FinishDetector) OnComment(c Comment) {
	fd.mu.Lock()
	triggered := fd.triggered
	fd.mu.Unlock()
	if triggered {
		return
	}
	fd.Outer.OnComment(c)
}

// OnComplete is the parser's own natural-end signal. It always wins:
// if the detector had not yet triggered (e.g. the stream simply ended
// with a clean plan-complete/no-bailout result), this is what fires
// OnFinish.
func (fd *FinishDetector) OnComplete(r types.FinalResult) {
	fd.mu.Lock()
	already := fd.resultEmitted
	fd.resultEmitted = true
	fd.triggered = true
	if fd.timer != nil {
		fd.timer.Stop()
	}
	fd.mu.Unlock()

	fd.Outer.OnComplete(r)
	if !already && fd.OnFinish != nil {
		fd.OnFinish(r)
	}
}

// trigger marks the detector triggered and ends the parser, either
// immediately or after the configured grace period. Ending the parser
// synchronously invokes OnComplete, which is what actually fires
// OnFinish.
func (fd *FinishDetector) trigger(bailout bool) {
	fd.mu.Lock()
	if fd.triggered {
		fd.mu.Unlock()
		return
	}
	fd.triggered = true
	fd.bailed = bailout
	grace := fd.Grace
	fd.mu.Unlock()

	if grace <= 0 {
		fd.parser.Close()
		return
	}
	fd.mu.Lock()
	fd.timer = time.AfterFunc(grace, func() { fd.parser.Close() })
	fd.mu.Unlock()
}
