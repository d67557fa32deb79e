// Package decoder feeds a low-latency hardware video decoder whose output
// renders directly into the shared display surface (surface-mode decode,
// no pixel readback), per spec.md §4.5.
//
// Threads and queues follow the teacher's worker-pool shape
// (stream-capture's goroutine-per-concern, bounded channel, poll-with-
// timeout) applied to the fixed input/output thread topology the spec
// requires.
package decoder

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/e7canasta/ndicore/internal/ndinative"
	"github.com/e7canasta/ndicore/internal/surface"
)

// inputQueueSize is the bounded input queue of spec.md §4.5.
const inputQueueSize = 5

const (
	inputPollTimeout   = 100 * time.Millisecond
	codecSlotTimeout   = 10 * time.Millisecond
	shutdownJoinBound  = 2 * time.Second
)

// Codec abstracts the host media framework's hardware decoder: input/
// output buffer acquisition by index with timeout, format objects keyed by
// MIME and dimensions, surface binding, low-latency flag (spec.md §6).
type Codec interface {
	// Configure (re)configures the codec for the given MIME/dimensions
	// and binds surface as its output target. low-latency is always on.
	Configure(mime string, width, height int, surface uintptr) error
	// DequeueInputSlot blocks up to timeout for a free input slot,
	// returning its index, or ok=false on timeout.
	DequeueInputSlot(timeout time.Duration) (index int, ok bool)
	// SubmitInput copies data into the given input slot and submits it
	// with the given presentation timestamp.
	SubmitInput(index int, data []byte, ptsMicros int64) error
	// DequeueOutput blocks up to timeout for a ready output buffer.
	// formatChanged is true if width/height/mime changed; the new
	// values are returned in that case.
	DequeueOutput(timeout time.Duration) (ready bool, formatChanged bool, width, height int, mime string)
	// ReleaseOutput releases a ready output buffer to the bound surface
	// (rendering happens in the codec/compositor).
	ReleaseOutput()
	// Release tears the codec down.
	Release()
}

type inputItem struct {
	data      []byte
	ptsMicros int64
}

// mimeFor maps a compressed FourCC to its host MIME type.
func mimeFor(f ndinative.FourCC) (string, error) {
	switch f {
	case ndinative.FourCCH264:
		return "video/avc", nil
	case ndinative.FourCCHEVC:
		return "video/hevc", nil
	default:
		return "", fmt.Errorf("decoder: unsupported compressed fourcc %s", f)
	}
}

// Decoder owns the hardware codec, its input/output threads, and the
// bounded input queue.
type Decoder struct {
	NewCodec func() Codec

	mu            sync.Mutex
	codec         Codec
	initialized   bool
	width         int
	height        int
	mime          string
	surface       surface.Surface
	lastFrameRate ndinative.FrameRate

	queueMu sync.Mutex
	queue   []inputItem

	running atomic.Bool
	wg      sync.WaitGroup

	decodedFrames atomic.Uint64
}

// New constructs a Decoder. newCodec is called once per Configure to
// obtain a fresh Codec instance (tests inject a fake).
func New(newCodec func() Codec) *Decoder {
	return &Decoder{NewCodec: newCodec}
}

// Initialized reports whether the codec is currently configured.
func (d *Decoder) Initialized() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.initialized
}

// EnsureInitialized configures the codec for the given geometry/codec,
// starting the input/output threads. A change in (width,height,mime) from
// an already-initialized decoder tears down and recreates it first
// (spec.md §4.5 "Reconfigure").
func (d *Decoder) EnsureInitialized(width, height int, codec ndinative.FourCC, surf uintptr) error {
	mime, err := mimeFor(codec)
	if err != nil {
		return err
	}

	d.mu.Lock()
	needsReconfig := d.initialized && (d.width != width || d.height != height || d.mime != mime)
	d.mu.Unlock()

	if needsReconfig {
		d.Teardown()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.initialized {
		return nil
	}

	c := d.NewCodec()
	if err := c.Configure(mime, width, height, surf); err != nil {
		return fmt.Errorf("decoder: configure failed: %w", err)
	}

	d.codec = c
	d.width, d.height, d.mime = width, height, mime
	d.initialized = true
	d.queue = nil
	d.running.Store(true)

	d.wg.Add(2)
	go d.inputLoop()
	go d.outputLoop()

	slog.Info("decoder: configured", "mime", mime, "width", width, "height", height)
	return nil
}

// Submit enqueues compressed data for decode. If the input queue is full,
// the oldest queued entry is evicted first (real-time over completeness,
// spec.md §4.5 "Submit-side policy"). frameRate is stamped as the last
// reported rate, independent of queue/decode progress, per spec.md
// §4.5's "Statistics".
func (d *Decoder) Submit(data []byte, ptsMicros int64, frameRate ndinative.FrameRate) {
	d.mu.Lock()
	d.lastFrameRate = frameRate
	d.mu.Unlock()

	item := inputItem{data: append([]byte(nil), data...), ptsMicros: ptsMicros}

	d.queueMu.Lock()
	if len(d.queue) >= inputQueueSize {
		d.queue = d.queue[1:]
	}
	d.queue = append(d.queue, item)
	d.queueMu.Unlock()
}

// FrameRate reports the frame-rate fraction most recently passed to
// Submit, for display alongside DecodedFrames.
func (d *Decoder) FrameRate() ndinative.FrameRate {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastFrameRate
}

func (d *Decoder) popInput() (inputItem, bool) {
	d.queueMu.Lock()
	defer d.queueMu.Unlock()
	if len(d.queue) == 0 {
		return inputItem{}, false
	}
	item := d.queue[0]
	d.queue = d.queue[1:]
	return item, true
}

func (d *Decoder) inputLoop() {
	defer d.wg.Done()
	for d.running.Load() {
		item, ok := d.popInput()
		if !ok {
			time.Sleep(inputPollTimeout)
			continue
		}

		d.mu.Lock()
		c := d.codec
		d.mu.Unlock()
		if c == nil {
			return
		}

		idx, got := c.DequeueInputSlot(codecSlotTimeout)
		if !got {
			continue
		}
		if err := c.SubmitInput(idx, item.data, item.ptsMicros); err != nil {
			slog.Error("decoder: submit input failed", "error", err)
		}
	}
}

func (d *Decoder) outputLoop() {
	defer d.wg.Done()
	for d.running.Load() {
		d.mu.Lock()
		c := d.codec
		d.mu.Unlock()
		if c == nil {
			return
		}

		ready, formatChanged, width, height, mime := c.DequeueOutput(codecSlotTimeout)
		if formatChanged {
			d.mu.Lock()
			d.width, d.height, d.mime = width, height, mime
			d.mu.Unlock()
			continue
		}
		if !ready {
			continue
		}

		c.ReleaseOutput()
		d.decodedFrames.Add(1)
	}
}

// DecodedFrames reports the lifetime count of decoded output buffers.
func (d *Decoder) DecodedFrames() uint64 {
	return d.decodedFrames.Load()
}

// Teardown stops the threads and releases the codec, per spec.md §4.5
// "Shutdown": set running=false, interrupt both threads, join with a 2s
// bound, clear the queue, stop/release the codec, null the surface.
func (d *Decoder) Teardown() {
	d.running.Store(false)

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownJoinBound):
		slog.Warn("decoder: teardown join exceeded bound, proceeding")
	}

	d.queueMu.Lock()
	d.queue = nil
	d.queueMu.Unlock()

	d.mu.Lock()
	if d.codec != nil {
		d.codec.Release()
		d.codec = nil
	}
	d.initialized = false
	d.surface = nil
	d.mu.Unlock()
}
