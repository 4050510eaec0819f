package types

import "testing"

func TestClientTryTransition(t *testing.T) {
	canceled := false
	c := NewClient("c1", "test.html", "firefox", "/.qtap/tap/?qtap_clientId=c1", func() { canceled = true })

	if c.State() != StateLaunching {
		t.Fatalf("want launching, got %s", c.State())
	}

	if !c.TryTransition(StateConnected) {
		t.Fatalf("launching -> connected should apply")
	}
	if canceled {
		t.Fatalf("non-terminal transition must not cancel")
	}

	if !c.TryTransition(StateFinished) {
		t.Fatalf("connected -> finished should apply")
	}
	if !canceled {
		t.Fatalf("terminal transition must cancel")
	}
	if !c.State().IsTerminal() {
		t.Fatalf("finished should be terminal")
	}
}

func TestClientTryTransitionTerminalIsSticky(t *testing.T) {
	calls := 0
	c := NewClient("c1", "test.html", "firefox", "", func() { calls++ })
	c.TryTransition(StateConnected)
	c.TryTransition(StateBailed)

	if applied := c.TryTransition(StateTimedoutIdle); applied {
		t.Fatalf("late transition out of a terminal state must not apply")
	}
	if calls != 1 {
		t.Fatalf("cancel must fire exactly once, got %d", calls)
	}
}

func TestClientTryTransitionInvalidPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("invalid transition must panic")
		}
	}()
	c := NewClient("c1", "test.html", "firefox", "", func() {})
	c.TryTransition(StateFinished)
}

func TestClientDisplayNameFallback(t *testing.T) {
	c := NewClient("c1", "test.html", "firefox", "", func() {})
	if c.DisplayName() != "firefox" {
		t.Fatalf("want fallback to BrowserName, got %q", c.DisplayName())
	}
	c.SetDisplayName("Firefox 128.0")
	if c.DisplayName() != "Firefox 128.0" {
		t.Fatalf("want launcher-reported name, got %q", c.DisplayName())
	}
}

func TestClientTouchNeverDecreases(t *testing.T) {
	c := NewClient("c1", "test.html", "firefox", "", func() {})
	first := c.LastActivityAt()
	c.Touch()
	if c.LastActivityAt().Before(first) {
		t.Fatalf("Touch must not move lastActivityAt backward")
	}
}
