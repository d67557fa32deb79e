package ndinative

import (
	"sync"
	"time"
)

// simulatedFinder is a test/dev stand-in for the native finder. Sources are
// injected by the embedder via PushSources (e.g. from a test or from a
// local mDNS-style prober); WaitForSources reports whether the set changed
// since the last call.
type simulatedFinder struct {
	opts FinderOptions

	mu        sync.Mutex
	sources   []SourceDescriptor
	changed   chan struct{}
	destroyed bool
}

func newSimulatedFinder(opts FinderOptions) *simulatedFinder {
	return &simulatedFinder{
		opts:    opts,
		changed: make(chan struct{}, 1),
	}
}

// PushSources sets the currently-discovered source list and wakes any
// blocked WaitForSources call. Intended for tests and for a real prober
// implementation to drive this simulated finder.
func (f *simulatedFinder) PushSources(sources []SourceDescriptor) {
	f.mu.Lock()
	f.sources = append([]SourceDescriptor(nil), sources...)
	f.mu.Unlock()

	select {
	case f.changed <- struct{}{}:
	default:
	}
}

func (f *simulatedFinder) WaitForSources(timeout time.Duration) bool {
	select {
	case <-f.changed:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (f *simulatedFinder) CurrentSources() []SourceDescriptor {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SourceDescriptor(nil), f.sources...)
}

func (f *simulatedFinder) Destroy() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyed = true
}

// simulatedReceiver is a test/dev stand-in for the native receiver. Frames
// are pulled from an injectable Feed function; by default Feed always
// times out (no frames), matching a receiver that connected but has not
// yet received data.
type simulatedReceiver struct {
	opts ReceiverOptions

	mu          sync.Mutex
	connectedTo string
	connected   bool
	surface     uintptr
	perf        Performance

	// Feed is called by Capture to obtain the next frame. Returning
	// (nil, nil) models a timeout/no-frame. Tests set this directly.
	Feed func(timeout time.Duration) (*VideoFrame, error)
}

func newSimulatedReceiver(opts ReceiverOptions) *simulatedReceiver {
	return &simulatedReceiver{opts: opts}
}

func (r *simulatedReceiver) Connect(sourceName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectedTo = sourceName
	r.connected = true
	return nil
}

func (r *simulatedReceiver) Capture(timeout time.Duration) (*VideoFrame, error) {
	r.mu.Lock()
	feed := r.Feed
	r.mu.Unlock()

	if feed == nil {
		time.Sleep(timeout)
		return nil, nil
	}

	frame, err := feed(timeout)
	if err != nil {
		return nil, err
	}
	if frame == nil {
		return nil, nil
	}

	r.mu.Lock()
	r.perf.TotalVideoFrames++
	r.mu.Unlock()

	frame.nativeHandle = newHandle(frame)
	return frame, nil
}

func (r *simulatedReceiver) Release(frame *VideoFrame) {
	if frame == nil || frame.nativeHandle == 0 {
		return
	}
	freeHandle(frame.nativeHandle)
	frame.nativeHandle = 0
}

func (r *simulatedReceiver) SetSurface(surface uintptr) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.surface = surface
}

func (r *simulatedReceiver) Performance() Performance {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.perf
}

func (r *simulatedReceiver) IsConnected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connected
}

func (r *simulatedReceiver) Destroy() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connected = false
}

// SourceInjector is implemented by finders that accept externally driven
// source-set updates. The simulated finder implements it; tests and a real
// LAN prober both drive discovery through this narrow seam.
type SourceInjector interface {
	PushSources(sources []SourceDescriptor)
}

// FrameInjector is implemented by receivers that accept an externally
// driven frame feed. The simulated receiver implements it; tests drive
// capture behavior (including null-frame sequences) through this seam.
type FrameInjector interface {
	SetFeed(feed func(timeout time.Duration) (*VideoFrame, error))
}

// SetFeed installs the frame source used by Capture.
func (r *simulatedReceiver) SetFeed(feed func(timeout time.Duration) (*VideoFrame, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Feed = feed
}
