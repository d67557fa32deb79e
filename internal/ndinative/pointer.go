package ndinative

import (
	"unsafe"

	"github.com/mattn/go-pointer"
)

// handleRegistry hands out opaque uintptr handles backed by registered Go
// values, the same pattern go-gst uses internally (via mattn/go-pointer) to
// smuggle a *Go* pointer through a C callback's void* userdata without
// letting the GC move or collect it while native code still holds it.
//
// A VideoFrame's nativeHandle is one of these: it exists only so Release
// can hand it back to "the runtime" and have the runtime forget about the
// backing frame exactly once.
type handleRegistry struct{}

func newHandle(v interface{}) uintptr {
	return uintptr(pointer.Save(v))
}

func lookupHandle(h uintptr) interface{} {
	if h == 0 {
		return nil
	}
	return pointer.Restore(unsafe.Pointer(h)) //nolint:govet // opaque native handle, not a real pointer dereference
}

func freeHandle(h uintptr) {
	if h == 0 {
		return
	}
	pointer.Unref(unsafe.Pointer(h)) //nolint:govet
}
