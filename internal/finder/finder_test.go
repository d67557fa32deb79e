package finder

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/e7canasta/ndicore/internal/ndinative"
)

func init() {
	ndinative.Initialize()
}

// TestRun_EmitsOnlyOnSetChange reproduces spec.md §8 scenario 1: an empty
// set, then one publisher appearing, then that publisher disappearing,
// each transition emitting exactly one snapshot and nothing in between.
func TestRun_EmitsOnlyOnSetChange(t *testing.T) {
	native, err := ndinative.NewFinder(ndinative.FinderOptions{})
	if err != nil {
		t.Fatalf("NewFinder: %v", err)
	}
	injector, ok := native.(ndinative.SourceInjector)
	if !ok {
		t.Fatalf("simulated finder does not implement SourceInjector")
	}

	var mu sync.Mutex
	var emissions [][]string

	d := New(native, func(sources []ndinative.SourceDescriptor) {
		names := make([]string, len(sources))
		for i, s := range sources {
			names[i] = s.Name
		}
		mu.Lock()
		emissions = append(emissions, names)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	injector.PushSources([]ndinative.SourceDescriptor{{Name: "CamA (HostX)"}})

	deadline := time.Now().Add(1500 * time.Millisecond)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(emissions)
		mu.Unlock()
		if n >= 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	if len(emissions) != 1 || len(emissions[0]) != 1 || emissions[0][0] != "CamA (HostX)" {
		mu.Unlock()
		t.Fatalf("expected exactly one emission [\"CamA (HostX)\"], got %v", emissions)
	}
	mu.Unlock()

	// Re-pushing the same named set must not re-emit (emission minimality).
	injector.PushSources([]ndinative.SourceDescriptor{{Name: "CamA (HostX)"}})
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	if len(emissions) != 1 {
		mu.Unlock()
		t.Fatalf("expected no re-emission for an unchanged set, got %d emissions", len(emissions))
	}
	mu.Unlock()

	injector.PushSources([]ndinative.SourceDescriptor{})

	deadline = time.Now().Add(1500 * time.Millisecond)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(emissions)
		mu.Unlock()
		if n >= 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	if len(emissions) != 2 || len(emissions[1]) != 0 {
		mu.Unlock()
		t.Fatalf("expected a second emission of an empty set, got %v", emissions)
	}
	mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after ctx cancellation")
	}
}
