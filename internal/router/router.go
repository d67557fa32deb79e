// Package router implements FrameRouter: the per-frame dispatch algorithm
// that classifies a captured frame and fans it out to the Renderer,
// Decoder, and Recorder under the ordering and copy policy of spec.md §4.3.
//
// It generalizes the teacher's framebus package (drop-new/drop-old
// subscriber policies, per-subscriber stats) from an N-subscriber pub/sub
// primitive into this fixed three-consumer dispatch with codec-aware
// branching.
package router

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/e7canasta/ndicore/internal/ndinative"
)

// Renderer is the uncompressed-frame consumer.
type Renderer interface {
	Render(frame *ndinative.VideoFrame) error
}

// DecoderController is the compressed-frame consumer: a lazily
// initialized hardware decoder bound to the current surface.
type DecoderController interface {
	Initialized() bool
	EnsureInitialized(width, height int, codec ndinative.FourCC, surface uintptr) error
	Teardown()
	Submit(data []byte, ptsMicros int64, frameRate ndinative.FrameRate)
}

// RecorderSink accepts frame copies for background muxing. Enqueue returns
// false if the 200ms offer deadline elapsed (frame dropped).
type RecorderSink interface {
	Enabled() bool
	Enqueue(copy ndinative.VideoFrameCopy, deadline time.Duration) bool
}

// SurfaceProvider supplies the currently bound display surface, or 0 if
// none is bound.
type SurfaceProvider interface {
	Surface() uintptr
}

// recorderOfferDeadline is the bounded-wait offer of spec.md §4.3 step 3.
const recorderOfferDeadline = 200 * time.Millisecond

// bitrateWindow is the sliding window over which the bitrate digest is
// recomputed, per spec.md §4.3 step 6.
const bitrateWindow = 1000 * time.Millisecond

// Router is the FrameRouter. It is driven synchronously from the capture
// thread; its only suspension points are the decoder-init mutex and the
// bounded recorder offer.
type Router struct {
	Renderer Renderer
	Decoder  DecoderController
	Recorder RecorderSink
	Surface  SurfaceProvider

	// OnDigestChange is invoked whenever the video-info digest string
	// changes (spec.md §4.3 step 2).
	OnDigestChange func(digest string)
	// OnBitrateChange is invoked at most once per bitrateWindow with the
	// formatted bitrate string (spec.md §4.3 step 6).
	OnBitrateChange func(bitrate string)

	decoderInitMu sync.Mutex

	mu               sync.Mutex
	lastFourCC       ndinative.FourCC
	lastWidth        int
	lastHeight       int
	lastIsCompressed bool

	bitrateMu        sync.Mutex
	windowStart      time.Time
	windowBytes      uint64
}

// New constructs a Router with its consumers wired.
func New(renderer Renderer, decoder DecoderController, recorder RecorderSink, surface SurfaceProvider) *Router {
	return &Router{Renderer: renderer, Decoder: decoder, Recorder: recorder, Surface: surface}
}

// Dispatch runs the full per-frame algorithm of spec.md §4.3. The caller
// retains ownership of release; Dispatch never releases the frame itself.
func (rt *Router) Dispatch(frame *ndinative.VideoFrame) {
	surface := uintptr(0)
	if rt.Surface != nil {
		surface = rt.Surface.Surface()
	}
	if surface == 0 {
		// Spec step 1: snapshot surface; if none, drop the frame (still
		// released by the caller).
		return
	}

	rt.updateDigest(frame)
	rt.accumulateBitrate(frame)

	if rt.Recorder != nil && rt.Recorder.Enabled() {
		ok := rt.Recorder.Enqueue(frame.Copy(), recorderOfferDeadline)
		if !ok {
			slog.Debug("router: recorder offer timed out, frame dropped")
		}
	}

	if frame.Compressed() {
		rt.dispatchCompressed(frame, surface)
	} else {
		rt.dispatchUncompressed(frame)
	}
}

func (rt *Router) dispatchUncompressed(frame *ndinative.VideoFrame) {
	if rt.Decoder != nil && rt.Decoder.Initialized() {
		// A compressed->uncompressed switch: tear down the decoder.
		rt.Decoder.Teardown()
	}
	if rt.Renderer == nil {
		return
	}
	if err := rt.Renderer.Render(frame); err != nil {
		slog.Warn("router: render failed, frame dropped", "error", err)
	}
}

func (rt *Router) dispatchCompressed(frame *ndinative.VideoFrame, surface uintptr) {
	if rt.Decoder == nil {
		return
	}

	// Double-checked lazy init (spec.md §4.3 step 5 / §9): outer flag
	// read, then mutex, then flag+surface reread — the surface recheck
	// matters because the user may unbind it between the two checks.
	if !rt.Decoder.Initialized() {
		rt.decoderInitMu.Lock()
		if !rt.Decoder.Initialized() {
			currentSurface := uintptr(0)
			if rt.Surface != nil {
				currentSurface = rt.Surface.Surface()
			}
			if currentSurface != 0 {
				if err := rt.Decoder.EnsureInitialized(frame.Width, frame.Height, frame.FourCC, currentSurface); err != nil {
					slog.Error("router: decoder init failed", "error", err)
					rt.decoderInitMu.Unlock()
					return
				}
			}
		}
		rt.decoderInitMu.Unlock()
	}

	if !rt.Decoder.Initialized() {
		return
	}
	rt.Decoder.Submit(frame.Data, frame.TimestampMicros, frame.FrameRate)
	_ = surface
}

func (rt *Router) updateDigest(frame *ndinative.VideoFrame) {
	rt.mu.Lock()
	changed := rt.lastFourCC != frame.FourCC || rt.lastWidth != frame.Width ||
		rt.lastHeight != frame.Height || rt.lastIsCompressed != frame.Compressed()
	rt.lastFourCC = frame.FourCC
	rt.lastWidth = frame.Width
	rt.lastHeight = frame.Height
	rt.lastIsCompressed = frame.Compressed()
	rt.mu.Unlock()

	if !changed || rt.OnDigestChange == nil {
		return
	}
	rt.OnDigestChange(formatDigest(frame))
}

// formatDigest builds "{W}x{H} @ {fps} | {label}" per spec.md §4.3 step 2.
func formatDigest(frame *ndinative.VideoFrame) string {
	fps := 0.0
	if frame.FrameRate.Den != 0 {
		fps = float64(frame.FrameRate.Num) / float64(frame.FrameRate.Den)
	}
	return fmt.Sprintf("%dx%d @ %.2f | %s", frame.Width, frame.Height, fps, codecLabel(frame.FourCC))
}

func codecLabel(f ndinative.FourCC) string {
	switch f {
	case ndinative.FourCCH264:
		return "H.264"
	case ndinative.FourCCHEVC:
		return "H.265"
	default:
		return "Raw " + f.String()
	}
}

func (rt *Router) accumulateBitrate(frame *ndinative.VideoFrame) {
	size := len(frame.Data)
	if size == 0 {
		size = frame.DataSizeInBytes
	}

	rt.bitrateMu.Lock()
	defer rt.bitrateMu.Unlock()

	now := time.Now()
	if rt.windowStart.IsZero() {
		rt.windowStart = now
	}
	rt.windowBytes += uint64(size)

	elapsed := now.Sub(rt.windowStart)
	if elapsed < bitrateWindow {
		return
	}

	bitsPerSec := float64(rt.windowBytes) * 8 / elapsed.Seconds()
	rt.windowBytes = 0
	rt.windowStart = now

	if rt.OnBitrateChange != nil {
		rt.OnBitrateChange(formatBitrate(bitsPerSec))
	}
}

// formatBitrate renders "{X.Y} Mbps" above 1 Mbps, else "{N} Kbps".
func formatBitrate(bitsPerSec float64) string {
	mbps := bitsPerSec / 1_000_000
	if mbps >= 1.0 {
		return fmt.Sprintf("%.1f Mbps", mbps)
	}
	kbps := bitsPerSec / 1000
	return fmt.Sprintf("%d Kbps", int(kbps))
}
