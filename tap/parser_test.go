package tap

import (
	"testing"

	"github.com/qunitjs/qtap/types"
)

type recordingObserver struct {
	asserts  []Assert
	plans    []Plan
	bailouts []Bailout
	comments []Comment
	complete *types.FinalResult
}

func (r *recordingObserver) OnAssert(a Assert)   { r.asserts = append(r.asserts, a) }
func (r *recordingObserver) OnPlan(p Plan)       { r.plans = append(r.plans, p) }
func (r *recordingObserver) OnBailout(b Bailout) { r.bailouts = append(r.bailouts, b) }
func (r *recordingObserver) OnComment(c Comment) { r.comments = append(r.comments, c) }
func (r *recordingObserver) OnComplete(res types.FinalResult) {
	cp := res
	r.complete = &cp
}

func TestParserBasicPassingRun(t *testing.T) {
	obs := &recordingObserver{}
	p := New(obs)

	p.Write([]byte("ok 1 first test\n"))
	p.Write([]byte("ok 2 second test\n"))
	p.Write([]byte("1..2\n"))
	p.Close()

	if len(obs.asserts) != 2 {
		t.Fatalf("want 2 asserts, got %d", len(obs.asserts))
	}
	if len(obs.plans) != 1 || obs.plans[0].Count != 2 {
		t.Fatalf("want plan count 2, got %+v", obs.plans)
	}
	if obs.complete == nil {
		t.Fatalf("want complete to fire")
	}
	if !obs.complete.OK || obs.complete.Total != 2 || obs.complete.Passed != 2 {
		t.Fatalf("unexpected result: %+v", obs.complete)
	}
}

func TestParserHandlesSplitChunks(t *testing.T) {
	obs := &recordingObserver{}
	p := New(obs)

	full := "ok 1 test one\nnot ok 2 test two\n1..2\n"
	for i := 0; i < len(full); i++ {
		p.Write([]byte{full[i]})
	}
	p.Close()

	if len(obs.asserts) != 2 {
		t.Fatalf("want 2 asserts from byte-at-a-time feed, got %d", len(obs.asserts))
	}
	if obs.complete.Failed != 1 || obs.complete.Passed != 1 {
		t.Fatalf("unexpected result: %+v", obs.complete)
	}
}

func TestParserTodoCountsAsPassNotDouble(t *testing.T) {
	obs := &recordingObserver{}
	p := New(obs)

	p.Write([]byte("not ok 1 known bug # TODO fix later\n"))
	p.Write([]byte("1..1\n"))
	p.Close()

	if obs.complete.Passed != 1 {
		t.Fatalf("want TODO counted as pass, got passed=%d", obs.complete.Passed)
	}
	if obs.complete.Failed != 0 {
		t.Fatalf("want TODO excluded from failed, got failed=%d", obs.complete.Failed)
	}
	if len(obs.complete.Todos) != 1 {
		t.Fatalf("want 1 todo recorded, got %d", len(obs.complete.Todos))
	}
}

func TestParserSkipDirective(t *testing.T) {
	obs := &recordingObserver{}
	p := New(obs)

	p.Write([]byte("ok 1 # SKIP not applicable\n"))
	p.Write([]byte("1..1\n"))
	p.Close()

	if len(obs.complete.Skips) != 1 {
		t.Fatalf("want 1 skip recorded, got %+v", obs.complete.Skips)
	}
	if obs.complete.Passed != 0 || obs.complete.Failed != 0 {
		t.Fatalf("skip must not count as pass or fail: %+v", obs.complete)
	}
}

func TestParserBailout(t *testing.T) {
	obs := &recordingObserver{}
	p := New(obs)

	p.Write([]byte("ok 1 first\n"))
	p.Write([]byte("Bail out! page crashed\n"))
	p.Close()

	if len(obs.bailouts) != 1 || obs.bailouts[0].Reason != "page crashed" {
		t.Fatalf("unexpected bailouts: %+v", obs.bailouts)
	}
	if obs.complete.OK {
		t.Fatalf("bailout must make final result not ok")
	}
	if obs.complete.Bailout != "page crashed" {
		t.Fatalf("want bailout reason propagated, got %q", obs.complete.Bailout)
	}
}

func TestParserYAMLDiagnosticAttachesToFailure(t *testing.T) {
	obs := &recordingObserver{}
	p := New(obs)

	p.Write([]byte("not ok 1 assertion failed\n"))
	p.Write([]byte("  ---\n"))
	p.Write([]byte("  message: expected 1 to equal 2\n"))
	p.Write([]byte("  ...\n"))
	p.Write([]byte("1..1\n"))
	p.Close()

	if len(obs.complete.Failures) != 1 {
		t.Fatalf("want 1 failure, got %d", len(obs.complete.Failures))
	}
	if obs.complete.Failures[0].Diagnostic == "" {
		t.Fatalf("want diagnostic block attached to failure")
	}
}

func TestParserCommentForwarding(t *testing.T) {
	obs := &recordingObserver{}
	p := New(obs)

	p.Write([]byte("# console: something happened\n"))
	p.Write([]byte("ok 1\n"))
	p.Write([]byte("1..1\n"))
	p.Close()

	if len(obs.comments) != 1 || obs.comments[0].Text != "console: something happened" {
		t.Fatalf("unexpected comments: %+v", obs.comments)
	}
}

func TestParserPlanBeforeAsserts(t *testing.T) {
	obs := &recordingObserver{}
	p := New(obs)

	p.Write([]byte("1..2\n"))
	p.Write([]byte("ok 1\n"))
	p.Write([]byte("ok 2\n"))
	p.Close()

	if obs.complete == nil || obs.complete.Total != 2 {
		t.Fatalf("unexpected complete: %+v", obs.complete)
	}
}

func TestStripANSI(t *testing.T) {
	in := []byte("\x1b[32mok 1 colored\x1b[0m\n")
	out := StripANSI(in)
	if string(out) != "ok 1 colored\n" {
		t.Fatalf("want ANSI stripped, got %q", out)
	}
}
