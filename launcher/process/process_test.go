package process

import (
	"context"
	"testing"

	"github.com/qunitjs/qtap/launcher"
)

func TestLauncher_NameMatchesBinary(t *testing.T) {
	l := New(Chrome)
	if l.Name() != "chrome-headless" {
		t.Fatalf("Name() = %q, want chrome-headless", l.Name())
	}
}

func TestLauncher_DetectFalseWhenNoCandidateOnPath(t *testing.T) {
	l := New(Binary{
		Name:       "nonexistent-browser",
		Candidates: []string{"qtap-definitely-not-a-real-binary-xyz"},
		Args:       []string{"-headless"},
	})
	if l.Detect() {
		t.Fatal("Detect() = true for a binary that cannot possibly be on PATH")
	}
}

func TestLauncher_LaunchErrorsWhenBinaryNotFound(t *testing.T) {
	l := New(Binary{
		Name:       "nonexistent-browser",
		Candidates: []string{"qtap-definitely-not-a-real-binary-xyz"},
		Args:       []string{"-headless"},
	})

	browserCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	signals := launcher.Signals{Browser: browserCtx, Global: context.Background()}

	_, err := l.Launch(context.Background(), "http://127.0.0.1:0/", signals, nil, false)
	if err == nil {
		t.Fatal("expected an error launching a nonexistent binary")
	}
}

func TestFirefoxAndChromeDescriptorsAreDistinct(t *testing.T) {
	if Chrome.Name == Firefox.Name {
		t.Fatal("Chrome and Firefox must register under distinct names")
	}
	if len(Chrome.Candidates) == 0 || len(Firefox.Candidates) == 0 {
		t.Fatal("binary descriptors must list at least one candidate")
	}
}
