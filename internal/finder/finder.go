// Package finder wraps the native discovery handle in a testable
// startDiscovery()-shaped loop: a restartable poll that emits a source
// snapshot only when the named set actually changes, per spec.md §4.1's
// emission-minimality requirement.
//
// It follows internal/receiver's shape (a small owning struct driving a
// single loop off a cancellable context) rather than exposing a channel
// directly, so Run can be unit tested by driving
// a simulated ndinative.Finder and observing the OnSources callback.
package finder

import (
	"context"
	"sort"
	"time"

	"github.com/e7canasta/ndicore/internal/ndinative"
)

// PollTimeout is the wait-for-change timeout of spec.md §4.1: each loop
// iteration blocks here for at most this long before re-snapshotting.
const PollTimeout = 1000 * time.Millisecond

// Discovery drives one native Finder's poll loop.
type Discovery struct {
	native ndinative.Finder

	// OnSources is invoked with a snapshot whenever the named source set
	// differs from the one last emitted. Must not retain the slice past
	// its return if the caller mutates it.
	OnSources func(sources []ndinative.SourceDescriptor)

	lastNames []string
}

// New wraps a native finder. The caller owns native's lifecycle up to
// calling Run; Run destroys it on exit.
func New(native ndinative.Finder, onSources func(sources []ndinative.SourceDescriptor)) *Discovery {
	return &Discovery{native: native, OnSources: onSources}
}

// Run blocks, polling until ctx is cancelled, then destroys the native
// finder and returns. Each iteration waits up to PollTimeout for a native
// change signal, snapshots the current set regardless of that signal (the
// native layer's "changed" bit is not trusted alone — see DESIGN.md), and
// emits only when the snapshot's names differ from the last emission.
func (d *Discovery) Run(ctx context.Context) {
	defer d.native.Destroy()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		d.native.WaitForSources(PollTimeout)

		select {
		case <-ctx.Done():
			return
		default:
		}

		sources := d.native.CurrentSources()
		names := sortedNames(sources)
		if sameNames(names, d.lastNames) {
			continue
		}
		d.lastNames = names
		if d.OnSources != nil {
			d.OnSources(sources)
		}
	}
}

func sortedNames(sources []ndinative.SourceDescriptor) []string {
	names := make([]string, len(sources))
	for i, s := range sources {
		names[i] = s.Name
	}
	sort.Strings(names)
	return names
}

func sameNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
