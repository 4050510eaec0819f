// Package types defines the core domain types for the qtap harness.
package types

import (
	"net/url"
	"path/filepath"
	"strings"
)

// InputKind discriminates a TestInput's origin.
type InputKind string

const (
	// InputFile is a local HTML file on disk.
	InputFile InputKind = "file"
	// InputURL is an absolute http(s) URL.
	InputURL InputKind = "url"
)

// TestInput is one HTML file or URL the harness will exercise.
// Immutable once created by the orchestrator.
type TestInput struct {
	// Kind is file or url.
	Kind InputKind
	// Raw is the argument exactly as the caller supplied it.
	Raw string
	// ResolvedRoot is the directory static files are served from.
	// Empty for url inputs (static serving is disabled).
	ResolvedRoot string
	// NormalizedDisplayPath is the path used in URLs and events: relative
	// to ResolvedRoot, forward-slashed regardless of host OS.
	NormalizedDisplayPath string
}

// NewFileInput resolves a local file path into a TestInput.
// The root is the nearest directory containing the file; absPath is the
// absolute filesystem path used for disk reads (not normalized).
func NewFileInput(raw, absPath, cwd string) TestInput {
	root := nearestCommonRoot(absPath, cwd)

	rel, err := filepath.Rel(root, absPath)
	if err != nil {
		rel = filepath.Base(absPath)
	}

	return TestInput{
		Kind:                  InputFile,
		Raw:                   raw,
		ResolvedRoot:          root,
		NormalizedDisplayPath: filepath.ToSlash(rel),
	}
}

// NewURLInput wraps an absolute URL as a TestInput. Static serving is
// disabled; ResolvedRoot is left empty.
func NewURLInput(raw string) TestInput {
	return TestInput{
		Kind: InputURL,
		Raw:  raw,
	}
}

// IsAbsoluteURL reports whether raw looks like an absolute http(s) URL,
// as opposed to a local file path.
func IsAbsoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// nearestCommonRoot climbs ".." prefixes away from cwd until it finds a
// directory that actually contains absPath, per the file-root
// resolution rule. Falls back to the file's own directory.
func nearestCommonRoot(absPath, cwd string) string {
	dir := filepath.Clean(cwd)
	fileDir := filepath.Dir(absPath)

	// Walk upward from cwd only while absPath remains inside dir.
	for {
		rel, err := filepath.Rel(dir, absPath)
		if err == nil && !strings.HasPrefix(rel, "..") && rel != ".." {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return fileDir
}

// DedupInputs returns inputs with duplicate Raw values removed, preserving
// first-seen order.
func DedupInputs(inputs []TestInput) []TestInput {
	seen := make(map[string]struct{}, len(inputs))
	out := make([]TestInput, 0, len(inputs))
	for _, in := range inputs {
		if _, ok := seen[in.Raw]; ok {
			continue
		}
		seen[in.Raw] = struct{}{}
		out = append(out, in)
	}
	return out
}
