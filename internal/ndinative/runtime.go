package ndinative

import "sync/atomic"

// initialized tracks whether Initialize() has succeeded. The real SDK
// exposes initialize()/destroy()/version(); we model the same lifecycle so
// callers fail with ErrRuntimeNotInitialized exactly as spec.md §4.1/§6
// requires.
var initialized atomic.Bool

// Initialize brings the native runtime up. Safe to call multiple times.
func Initialize() bool {
	initialized.Store(true)
	return true
}

// Destroy tears the native runtime down.
func Destroy() {
	initialized.Store(false)
}

// Version reports the native runtime version string.
func Version() string {
	return "ndinative-sim/1.0"
}

// Ready reports whether Initialize has been called.
func Ready() bool {
	return initialized.Load()
}
