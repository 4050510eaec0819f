package agent

import "testing"

func TestRenderSubstitutesTapURL(t *testing.T) {
	out := Render("http://127.0.0.1:9000/.qtap/tap/?qtap_clientId=abc")
	if got := out; len(got) == 0 {
		t.Fatalf("Render returned empty script")
	}
	if containsPlaceholder(out) {
		t.Fatalf("rendered script still contains the TAP URL placeholder: %s", out)
	}
	if !containsSubstr(out, "qtap_clientId=abc") {
		t.Fatalf("rendered script does not contain the substituted TAP URL")
	}
}

func TestRenderBodyEnableNonEmpty(t *testing.T) {
	if RenderBodyEnable() == "" {
		t.Fatalf("RenderBodyEnable returned empty script")
	}
}

func containsPlaceholder(s string) bool {
	return containsSubstr(s, tapURLPlaceholder)
}

func containsSubstr(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}
