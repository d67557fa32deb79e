// Package surface models the host-provided display surface of spec.md §6:
// a lockable 2-D canvas accepting bitmap draws, and a target for
// surface-mode hardware decode. Renderer and Decoder share it by
// reference, bounded by the Receiver's lifecycle (spec.md §9).
package surface

// Canvas is the lockable drawing target obtained from a Surface for the
// duration of one blit.
type Canvas interface {
	// Width and Height report the canvas's current pixel dimensions.
	Width() int
	Height() int
	// DrawRGBA blits a tightly packed RGBA buffer (widthPx*heightPx*4
	// bytes) into the canvas's full extent, with filtering.
	DrawRGBA(pixels []byte, widthPx, heightPx int) error
}

// Surface is the shared display target. Lock/Unlock must be paired on
// every code path, matching the teacher's discipline of always unlocking
// on every exit (spec.md §4.4 "Blit").
type Surface interface {
	Lock() (Canvas, error)
	Unlock()
	// NativeHandle exposes an opaque handle for the hardware decoder to
	// bind directly (surface-mode decode, no pixel readback).
	NativeHandle() uintptr
}
