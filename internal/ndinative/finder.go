package ndinative

import "time"

// Finder is the native discovery client: createFinder/destroyFinder/
// waitForSources/currentSources from spec.md §6, collapsed into a small
// interface so tests and the simulated backend can stand in for the
// proprietary SDK.
type Finder interface {
	// WaitForSources blocks up to timeout for the discovered set to
	// change, returning true if it changed.
	WaitForSources(timeout time.Duration) bool
	// CurrentSources returns the present snapshot of discovered sources.
	CurrentSources() []SourceDescriptor
	// Destroy releases the native finder. Idempotent.
	Destroy()
}

// FinderOptions mirrors createFinder's showLocal/groups/extraIPs triple.
type FinderOptions struct {
	ShowLocal bool
	Groups    []string
	ExtraIPs  []string
}

// NewFinder creates a native finder, failing if the runtime has not been
// initialized.
func NewFinder(opts FinderOptions) (Finder, error) {
	if !Ready() {
		return nil, ErrRuntimeNotInitialized
	}
	return newSimulatedFinder(opts), nil
}
