package surface

import (
	"sync"
	"unsafe"

	pointer "github.com/mattn/go-pointer"
)

// MemSurface is a headless, in-process Surface: an RGBA framebuffer held
// in memory rather than backed by a host window. It is the default
// render target for a standalone ndicore process with no embedding UI,
// and a valid NativeHandle for the decoder's surface-mode output even
// when the target is software.
//
// NativeHandle uses the same mattn/go-pointer handle trick
// internal/ndinative uses for its own opaque frame handles, so the
// handle can cross the decoder.Codec Configure(..., surface uintptr)
// boundary without either side needing to know the other's concrete
// type.
type MemSurface struct {
	mu     sync.Mutex
	canvas *memCanvas
	handle uintptr
}

type memCanvas struct {
	width, height int
	pixels        []byte // tightly packed RGBA
}

func (c *memCanvas) Width() int  { return c.width }
func (c *memCanvas) Height() int { return c.height }

func (c *memCanvas) DrawRGBA(pixels []byte, widthPx, heightPx int) error {
	c.width, c.height = widthPx, heightPx
	c.pixels = append(c.pixels[:0], pixels...)
	return nil
}

// NewMemSurface constructs an empty headless surface.
func NewMemSurface() *MemSurface {
	s := &MemSurface{canvas: &memCanvas{}}
	s.handle = uintptr(pointer.Save(Surface(s)))
	return s
}

// Lock returns the backing canvas. MemSurface has no real contention
// target, but Lock/Unlock are still paired so callers written against
// any Surface behave identically here.
func (s *MemSurface) Lock() (Canvas, error) {
	s.mu.Lock()
	return s.canvas, nil
}

// Unlock releases the lock taken by Lock.
func (s *MemSurface) Unlock() {
	s.mu.Unlock()
}

// NativeHandle returns the opaque handle decoder.Codec.Configure expects.
func (s *MemSurface) NativeHandle() uintptr {
	return s.handle
}

// Snapshot copies out the current frame for inspection (tests, a debug
// HTTP endpoint, etc.), holding the surface lock during the copy.
func (s *MemSurface) Snapshot() (pixels []byte, width, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.canvas.pixels...), s.canvas.width, s.canvas.height
}

// Release frees the native handle. Must be called exactly once, after
// every Decoder/Renderer bound to this surface has torn down.
func (s *MemSurface) Release() {
	if s.handle == 0 {
		return
	}
	pointer.Unref(unsafe.Pointer(s.handle)) //nolint:govet // opaque native handle, not a real pointer dereference
	s.handle = 0
}
