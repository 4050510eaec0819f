package types

import "sync"

// BrowserID names a browser resolvable to a launcher function.
// DisplayName is set lazily by the launcher (per its first synchronous
// step) and is therefore guarded by a mutex even though the rest of the
// struct is conceptually immutable after creation.
type BrowserID struct {
	// Name is the identifier the caller supplied (e.g. "firefox", "fake").
	Name string

	mu          sync.Mutex
	displayName string
}

// NewBrowserID creates a BrowserID for the given name.
func NewBrowserID(name string) *BrowserID {
	return &BrowserID{Name: name}
}

// SetDisplayName records the human-readable name the launcher reported.
// Safe to call at most meaningfully once; later calls overwrite.
func (b *BrowserID) SetDisplayName(name string) {
	b.mu.Lock()
	b.displayName = name
	b.mu.Unlock()
}

// DisplayName returns the launcher-reported name, or Name if none was set.
func (b *BrowserID) DisplayName() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.displayName == "" {
		return b.Name
	}
	return b.displayName
}

// DedupBrowserNames returns names with duplicates removed, preserving
// first-seen order.
func DedupBrowserNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
