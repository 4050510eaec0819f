package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/qunitjs/qtap/bus"
	"github.com/qunitjs/qtap/launcher"
	"github.com/qunitjs/qtap/launcher/fake"
	"github.com/qunitjs/qtap/log"
	"github.com/qunitjs/qtap/types"
)

// recordingSubscriber collects every event it observes, in delivery
// order, guarded by a mutex since Bus.Publish may be called from
// several goroutines (one per supervisor).
type recordingSubscriber struct {
	mu     sync.Mutex
	events []types.Event
}

func (r *recordingSubscriber) Handle(e types.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recordingSubscriber) snapshot() []types.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recordingSubscriber) firstOfType(t types.EventType) types.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.EventType() == t {
			return e
		}
	}
	return nil
}

func writeTestFile(t *testing.T, name string) types.TestInput {
	t.Helper()
	dir := t.TempDir()
	absPath := filepath.Join(dir, name)
	if err := os.WriteFile(absPath, []byte("<html><head></head><body></body></html>"), 0o600); err != nil {
		t.Fatalf("write test file: %v", err)
	}
	return types.NewFileInput(absPath, absPath, dir)
}

func newFakeRegistry() *launcher.Registry {
	reg := launcher.NewRegistry("fake")
	reg.Register(fake.New())
	return reg
}

func TestRun_AllPass(t *testing.T) {
	input := writeTestFile(t, "pass.html")
	sub := &recordingSubscriber{}

	finish, err := Run(context.Background(), Config{
		Inputs:         []types.TestInput{input},
		Browsers:       []string{"fake"},
		ConnectTimeout: 2 * time.Second,
		IdleTimeout:    2 * time.Second,
		Registry:       newFakeRegistry(),
		Logger:         log.NewLogger("test"),
		Subscribers:    []bus.Subscriber{sub},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !finish.OK || finish.ExitCode != 0 {
		t.Errorf("finish = %+v, want OK with exit 0", finish)
	}
	if finish.Total != 4 || finish.Passed != 4 || finish.Failed != 0 {
		t.Errorf("finish counts = %+v", finish)
	}

	if e := sub.firstOfType(types.EventFinish); e == nil {
		t.Error("expected a finish event")
	}
	if e := sub.firstOfType(types.EventError); e != nil {
		t.Errorf("unexpected error event: %+v", e)
	}
}

func TestRun_AssertionFailure(t *testing.T) {
	input := writeTestFile(t, "fail.html")
	sub := &recordingSubscriber{}

	finish, err := Run(context.Background(), Config{
		Inputs:         []types.TestInput{input},
		Browsers:       []string{"fake"},
		ConnectTimeout: 2 * time.Second,
		IdleTimeout:    2 * time.Second,
		Registry:       newFakeRegistry(),
		Logger:         log.NewLogger("test"),
		Subscribers:    []bus.Subscriber{sub},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if finish.OK || finish.ExitCode != 1 {
		t.Errorf("finish = %+v, want not-OK with exit 1", finish)
	}
	if finish.Total != 3 || finish.Passed != 2 || finish.Failed != 1 {
		t.Errorf("finish counts = %+v", finish)
	}
}

func TestRun_Bailout(t *testing.T) {
	input := writeTestFile(t, "bail.html")
	sub := &recordingSubscriber{}

	finish, err := Run(context.Background(), Config{
		Inputs:         []types.TestInput{input},
		Browsers:       []string{"fake"},
		ConnectTimeout: 2 * time.Second,
		IdleTimeout:    2 * time.Second,
		Registry:       newFakeRegistry(),
		Logger:         log.NewLogger("test"),
		Subscribers:    []bus.Subscriber{sub},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if finish.OK {
		t.Errorf("finish = %+v, want not-OK", finish)
	}
	if finish.Bailout == "" {
		t.Error("expected a bailout reason")
	}
	if e := sub.firstOfType(types.EventBail); e == nil {
		t.Error("expected a bail event")
	}
}

func TestRun_OnlinePrecedesResult(t *testing.T) {
	input := writeTestFile(t, "pass.html")
	sub := &recordingSubscriber{}

	_, err := Run(context.Background(), Config{
		Inputs:         []types.TestInput{input},
		Browsers:       []string{"fake"},
		ConnectTimeout: 2 * time.Second,
		IdleTimeout:    2 * time.Second,
		Registry:       newFakeRegistry(),
		Logger:         log.NewLogger("test"),
		Subscribers:    []bus.Subscriber{sub},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	events := sub.snapshot()
	onlineIdx, resultIdx := -1, -1
	for i, e := range events {
		if e.EventType() == types.EventOnline && onlineIdx == -1 {
			onlineIdx = i
		}
		if e.EventType() == types.EventResult && resultIdx == -1 {
			resultIdx = i
		}
	}
	if onlineIdx == -1 || resultIdx == -1 {
		t.Fatalf("expected both online and result events, got %d events", len(events))
	}
	if onlineIdx > resultIdx {
		t.Errorf("online (idx %d) must precede result (idx %d)", onlineIdx, resultIdx)
	}
}

// TestRun_LaunchErrorCascades verifies that one pair's Resolve failure
// (an unregistered browser name) bails every other in-flight Client
// instead of waiting out its idle timeout (on the
// first Supervisor failure, signals all other servers' Clients to
// stop".
func TestRun_LaunchErrorCascades(t *testing.T) {
	input := writeTestFile(t, "timeout.html")
	sub := &recordingSubscriber{}

	start := time.Now()
	finish, err := Run(context.Background(), Config{
		Inputs:         []types.TestInput{input},
		Browsers:       []string{"fake", "unregistered-browser"},
		ConnectTimeout: 2 * time.Second,
		IdleTimeout:    10 * time.Second,
		Registry:       newFakeRegistry(),
		Logger:         log.NewLogger("test"),
		Subscribers:    []bus.Subscriber{sub},
	})
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if finish.OK {
		t.Errorf("finish = %+v, want not-OK", finish)
	}
	if elapsed > 5*time.Second {
		t.Errorf("Run took %s, want the fake client cancelled well before the 10s idle timeout", elapsed)
	}

	bailCount := 0
	for _, e := range sub.snapshot() {
		if e.EventType() == types.EventBail {
			bailCount++
		}
	}
	if bailCount < 2 {
		t.Errorf("expected at least 2 bail events (the launch error and the cascaded client), got %d", bailCount)
	}
}

func TestRun_UnknownBrowserIsUserFacingBail(t *testing.T) {
	input := writeTestFile(t, "pass.html")

	finish, err := Run(context.Background(), Config{
		Inputs:         []types.TestInput{input},
		Browsers:       []string{"no-such-browser"},
		ConnectTimeout: 2 * time.Second,
		IdleTimeout:    2 * time.Second,
		Registry:       newFakeRegistry(),
		Logger:         log.NewLogger("test"),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if finish.OK {
		t.Error("expected not-OK for an unresolvable browser")
	}
}
