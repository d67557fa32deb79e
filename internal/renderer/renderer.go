// Package renderer converts a borrowed uncompressed VideoFrame to 8-bit
// RGBA and blits it to a display surface, per spec.md §4.4. It is a pure
// conversion package with a single reused backing buffer, grounded on the
// teacher's allocate-once-reuse discipline (stream-capture's pipeline
// element reuse) and the stride-repack loop in
// other_examples/Kitonae-WHEP__source_ndi.go.
package renderer

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/e7canasta/ndicore/internal/ndinative"
	"github.com/e7canasta/ndicore/internal/surface"
)

// ErrUnsupportedPixelFormat is returned (and the frame dropped) when the
// FourCC is not one of the supported uncompressed layouts.
var ErrUnsupportedPixelFormat = errors.New("renderer: unsupported pixel format")

// ErrInvalidBuffer is returned (and the frame dropped) when the byte
// region is too small for the declared geometry, or the stride is smaller
// than the minimum row size.
var ErrInvalidBuffer = errors.New("renderer: invalid buffer")

// Renderer converts and blits uncompressed frames to a shared Surface. It
// keeps a single destination backing array, reallocated only on a
// dimension change. No separate per-row scratch buffer is kept: each row
// is converted straight into the backing array.
type Renderer struct {
	Surface surface.Surface

	mu     sync.Mutex
	width  int
	height int
	dest   []byte // width*height*4, reused across frames
}

// New constructs a Renderer bound to the given shared surface.
func New(s surface.Surface) *Renderer {
	return &Renderer{Surface: s}
}

// Render converts frame.Data to RGBA and blits it. The frame's byte
// region must remain valid only for the duration of this call — Render
// never retains it.
func (r *Renderer) Render(frame *ndinative.VideoFrame) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rowBytes, err := minRowBytes(frame.FourCC, frame.Width)
	if err != nil {
		slog.Warn("renderer: dropping frame", "error", err)
		return err
	}

	stride := frame.LineStrideBytes
	if stride == 0 {
		stride = rowBytes
	}
	absStride := stride
	if absStride < 0 {
		absStride = -absStride
	}
	if absStride < rowBytes {
		err := fmt.Errorf("%w: stride %d smaller than row bytes %d", ErrInvalidBuffer, stride, rowBytes)
		slog.Warn("renderer: dropping frame", "error", err)
		return err
	}

	needed := (frame.Height-1)*absStride + rowBytes
	if frame.Height <= 0 || len(frame.Data) < needed {
		err := fmt.Errorf("%w: need %d bytes, have %d", ErrInvalidBuffer, needed, len(frame.Data))
		slog.Warn("renderer: dropping frame", "error", err)
		return err
	}

	r.ensureBuffers(frame.Width, frame.Height)

	for row := 0; row < frame.Height; row++ {
		srcRow := srcRowOffset(row, frame.Height, stride)
		srcSlice := frame.Data[srcRow : srcRow+rowBytes]
		dstRow := row * frame.Width * 4

		switch frame.FourCC {
		case ndinative.FourCCUYVY:
			convertUYVYRow(srcSlice, r.dest[dstRow:], frame.Width)
		case ndinative.FourCCBGRA:
			convertBGRARow(srcSlice, r.dest[dstRow:], frame.Width)
		case ndinative.FourCCBGRX:
			convertBGRXRow(srcSlice, r.dest[dstRow:], frame.Width)
		case ndinative.FourCCRGBA:
			convertRGBARow(srcSlice, r.dest[dstRow:], frame.Width)
		case ndinative.FourCCRGBX:
			convertRGBXRow(srcSlice, r.dest[dstRow:], frame.Width)
		}
	}

	return r.blit(frame.Width, frame.Height)
}

// minRowBytes returns the minimum packed row size for the given FourCC and
// width, or ErrUnsupportedPixelFormat if the layout is not one of the
// supported uncompressed conversions.
func minRowBytes(f ndinative.FourCC, width int) (int, error) {
	switch f {
	case ndinative.FourCCUYVY:
		return width * 2, nil
	case ndinative.FourCCBGRA, ndinative.FourCCBGRX, ndinative.FourCCRGBA, ndinative.FourCCRGBX:
		return width * 4, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedPixelFormat, f)
	}
}

// srcRowOffset implements the stride policy: zero stride is tightly
// packed, positive stride iterates top-down, negative stride means row 0
// is at the buffer tail (bottom-up layout).
func srcRowOffset(row, height, stride int) int {
	if stride >= 0 {
		return row * stride
	}
	return (height - 1 - row) * (-stride)
}

func (r *Renderer) ensureBuffers(width, height int) {
	if r.width == width && r.height == height && len(r.dest) == width*height*4 {
		return
	}
	r.width = width
	r.height = height
	r.dest = make([]byte, width*height*4)
}

// blit locks the surface's canvas, draws the backing bitmap with
// filtering, and always unlocks on every exit path.
func (r *Renderer) blit(width, height int) error {
	if r.Surface == nil {
		return nil
	}
	canvas, err := r.Surface.Lock()
	if err != nil {
		return fmt.Errorf("renderer: lock surface: %w", err)
	}
	defer r.Surface.Unlock()

	return canvas.DrawRGBA(r.dest, width, height)
}
