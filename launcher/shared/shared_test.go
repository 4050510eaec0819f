package shared

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLauncher_NameAndDetect(t *testing.T) {
	l := New("firefox-headless", []string{"qtap-definitely-not-a-real-binary-xyz"}, []string{"-headless"})
	if l.Name() != "firefox-headless" {
		t.Fatalf("Name() = %q, want firefox-headless", l.Name())
	}
	if l.Detect() {
		t.Fatal("Detect() = true for a binary that cannot be on PATH")
	}
}

func TestDiscovery_WriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/discovery.json"

	want := discovery{DevtoolsURL: "http://127.0.0.1:9222", PID: 1234, StartedAt: "2026-01-01T00:00:00Z"}
	if err := writeDiscovery(path, want); err != nil {
		t.Fatalf("writeDiscovery: %v", err)
	}

	got, err := readDiscovery(path)
	if err != nil {
		t.Fatalf("readDiscovery: %v", err)
	}
	if got != want {
		t.Fatalf("readDiscovery = %+v, want %+v", got, want)
	}
}

func TestReadDiscovery_MissingFileErrors(t *testing.T) {
	if _, err := readDiscovery("/nonexistent/path/discovery.json"); err == nil {
		t.Fatal("expected an error reading a nonexistent discovery file")
	}
}

func TestHealthCheck_OKOnSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/json/version" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := healthCheck(srv.URL); err != nil {
		t.Fatalf("healthCheck: %v", err)
	}
}

func TestHealthCheck_ErrorsOnNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if err := healthCheck(srv.URL); err == nil {
		t.Fatal("expected an error for a 503 health check response")
	}
}

func TestOpenTab_ForwardsTargetURLAndSucceedsOn200(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := openTab(srv.URL, "http://example.test/page.html"); err != nil {
		t.Fatalf("openTab: %v", err)
	}
	if gotQuery == "" {
		t.Fatal("expected the target URL to be forwarded as a query parameter")
	}
}
