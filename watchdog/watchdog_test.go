package watchdog

import (
	"testing"
	"time"

	"github.com/qunitjs/qtap/types"
)

func TestSweepConnectTimeout(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }

	var gotReason string
	var gotConnectPhase bool
	w := New(1*time.Second, 5*time.Second, func(c *types.Client, connectPhase bool, reason string) {
		gotReason = reason
		gotConnectPhase = connectPhase
	}).WithClock(clock)

	client := types.NewClient("c1", "test.html", "fake", "http://x/.qtap/tap/", func() {})
	w.Register(client)

	now = now.Add(2 * time.Second)
	w.Sweep()

	if !gotConnectPhase {
		t.Fatalf("expected connect-phase timeout")
	}
	if gotReason == "" {
		t.Fatalf("expected a reason")
	}
}

func TestSweepIdleTimeout(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }

	fired := false
	w := New(60*time.Second, 2*time.Second, func(c *types.Client, connectPhase bool, reason string) {
		fired = true
		if connectPhase {
			t.Fatalf("expected idle-phase timeout")
		}
		if reason != "Browser idle for 2s" {
			t.Fatalf("unexpected reason: %s", reason)
		}
	}).WithClock(clock)

	client := types.NewClient("c1", "test.html", "fake", "http://x/.qtap/tap/", func() {})
	client.TryTransition(types.StateConnected)
	w.Register(client)

	now = now.Add(3 * time.Second)
	w.Sweep()

	if !fired {
		t.Fatalf("expected idle timeout to fire")
	}
}

func TestSweepSkipsTerminalClients(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }

	fired := false
	w := New(1*time.Second, 1*time.Second, func(c *types.Client, connectPhase bool, reason string) {
		fired = true
	}).WithClock(clock)

	client := types.NewClient("c1", "test.html", "fake", "http://x/.qtap/tap/", func() {})
	client.TryTransition(types.StateConnected)
	client.TryTransition(types.StateFinished)
	w.Register(client)

	now = now.Add(10 * time.Second)
	w.Sweep()

	if fired {
		t.Fatalf("watchdog must not fire for a terminal client")
	}
}
