// Package recorder persists the dispatched stream to an MP4 file on a
// single background writer thread, per spec.md §4.6. Two branches share
// one bounded queue and one atomic start/stop state machine: passthrough
// (compressed Annex-B, muxed verbatim) and encode (uncompressed input,
// driven through a hardware H.264 encoder).
//
// Grounded on babelcloud-gbox's FMP4StreamWriter/FMP4Muxer/
// SpsPpsExtractor (NAL scanning, CSD harvesting, fmp4 Init/Part framing)
// and the bounded-queue, single-writer discipline of the teacher's
// framebus package.
package recorder

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/e7canasta/ndicore/internal/ndinative"
)

// queueCapacity is the bounded writer queue of spec.md §4.6.3.
const queueCapacity = 30

const (
	stopDrainTimeout = 3 * time.Second
	stopForceTimeout = 1 * time.Second
)

// Options configures a Recorder.
type Options struct {
	Dir         string // recordings directory, created if absent
	NewEncoder  func() Encoder
	FileOpen    func(path string) (*os.File, error) // overridable for tests
}

// Recorder implements internal/router.RecorderSink and exposes the
// start/stop/isRecording control surface of spec.md §4.6.3.
type Recorder struct {
	dir        string
	newEncoder func() Encoder
	fileOpen   func(path string) (*os.File, error)

	recording atomic.Bool

	queueMu sync.Mutex
	queue   []ndinative.VideoFrameCopy
	signal  chan struct{}

	wg       sync.WaitGroup
	stopOnce sync.Once
	done     chan struct{}

	// state, owned exclusively by the writer goroutine after Start.
	file    *os.File
	muxer   *passthroughMuxer
	csd     *csdState
	encoder Encoder
	width   int
	height  int

	lastError atomic.Value // string
	startedAt atomic.Value // time.Time
	lastFile  atomic.Value // string
	sessionID atomic.Value // string, a fresh uuid per Start() call

	// frameSink overrides per-frame processing; nil selects the real
	// passthrough/encode dispatch. Tests use this to plug in a
	// deliberately slow synthetic writer (spec.md §8 backpressure test)
	// without depending on wall-clock races against the real encoder.
	frameSink func(ndinative.VideoFrameCopy)

	// startHold, if set, blocks the writer goroutine before it drains
	// anything. Lets backpressure tests fill the queue deterministically
	// before the writer ever touches it.
	startHold chan struct{}
}

// RecordingState is the user-visible state exposed to the embedding UI,
// per spec.md §7's `Idle | Recording(durationMs) | Stopped(file?) |
// Error(msg)`.
type RecordingState struct {
	Kind       string // "idle", "recording", "stopped", "error"
	DurationMs int64
	File       string
	Err        string
	SessionID  string
}

// State reports the current RecordingState.
func (r *Recorder) State() RecordingState {
	if errStr, ok := r.lastError.Load().(string); ok && errStr != "" {
		return RecordingState{Kind: "error", Err: errStr}
	}
	if r.recording.Load() {
		started, _ := r.startedAt.Load().(time.Time)
		sessionID, _ := r.sessionID.Load().(string)
		return RecordingState{Kind: "recording", DurationMs: time.Since(started).Milliseconds(), SessionID: sessionID}
	}
	if file, ok := r.lastFile.Load().(string); ok && file != "" {
		return RecordingState{Kind: "stopped", File: file}
	}
	return RecordingState{Kind: "idle"}
}

// New constructs a Recorder writing files into dir.
func New(opts Options) *Recorder {
	fileOpen := opts.FileOpen
	if fileOpen == nil {
		fileOpen = func(path string) (*os.File, error) {
			return os.Create(path)
		}
	}
	return &Recorder{dir: opts.Dir, newEncoder: opts.NewEncoder, fileOpen: fileOpen}
}

// Enabled reports whether a recording is in progress (RecorderSink).
func (r *Recorder) Enabled() bool { return r.recording.Load() }

// IsRecording is a public alias of Enabled for UI-facing callers.
func (r *Recorder) IsRecording() bool { return r.recording.Load() }

// Enqueue offers a frame copy to the writer, blocking up to deadline if
// the queue is full, per spec.md §4.6.3's drop-newest-with-bounded-wait
// policy.
func (r *Recorder) Enqueue(copy ndinative.VideoFrameCopy, deadline time.Duration) bool {
	if !r.recording.Load() {
		return false
	}

	deadlineAt := time.Now().Add(deadline)
	for {
		r.queueMu.Lock()
		if len(r.queue) < queueCapacity {
			r.queue = append(r.queue, copy)
			r.queueMu.Unlock()
			select {
			case r.signal <- struct{}{}:
			default:
			}
			return true
		}
		r.queueMu.Unlock()

		if time.Now().After(deadlineAt) {
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (r *Recorder) popAll() []ndinative.VideoFrameCopy {
	r.queueMu.Lock()
	defer r.queueMu.Unlock()
	if len(r.queue) == 0 {
		return nil
	}
	batch := r.queue
	r.queue = nil
	return batch
}

// Start begins a new recording. width/height/fourcc describe the current
// frame shape; H264/HEVC select the passthrough branch, UYVY/BGRA/BGRX the
// encode branch, and any other fourcc is rejected with ErrUnsupportedFourCC.
func (r *Recorder) Start(width, height int, fourcc ndinative.FourCC) error {
	if !r.recording.CompareAndSwap(false, true) {
		return ErrAlreadyRecording
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		r.recording.Store(false)
		return fmt.Errorf("recorder: create directory: %w", err)
	}

	name := filename(time.Now(), width, height, codecLabelForFile(fourcc))
	f, err := r.fileOpen(filepath.Join(r.dir, name))
	if err != nil {
		r.recording.Store(false)
		return fmt.Errorf("recorder: create file: %w", err)
	}

	r.file = f
	r.width, r.height = width, height
	r.queue = nil
	r.signal = make(chan struct{}, 1)
	r.done = make(chan struct{})
	r.stopOnce = sync.Once{}

	switch fourcc {
	case ndinative.FourCCH264:
		r.muxer = newPassthroughMuxer(f)
		r.csd = &csdState{hevc: false}
	case ndinative.FourCCHEVC:
		r.muxer = newPassthroughMuxer(f)
		r.csd = &csdState{hevc: true}
	default:
		if fourcc != ndinative.FourCCUYVY && fourcc != ndinative.FourCCBGRA && fourcc != ndinative.FourCCBGRX {
			r.recording.Store(false)
			f.Close()
			return ErrUnsupportedFourCC
		}
		if r.newEncoder == nil {
			r.recording.Store(false)
			f.Close()
			return ErrUnsupportedFourCC
		}
		r.encoder = r.newEncoder()
		if err := r.encoder.Configure(width, height); err != nil {
			r.recording.Store(false)
			f.Close()
			return fmt.Errorf("recorder: configure encoder: %w", err)
		}
		r.muxer = newPassthroughMuxer(f)
	}

	sessionID := uuid.New().String()

	r.lastError.Store("")
	r.startedAt.Store(time.Now())
	r.lastFile.Store(name)
	r.sessionID.Store(sessionID)

	r.wg.Add(1)
	go r.writeLoop(fourcc)
	slog.Info("recorder: started", "file", name, "session_id", sessionID)
	return nil
}

// Stop ends the recording: transitions the atomic to false, lets the
// writer drain and finalize, then joins with a 3s bound followed by a 1s
// force-bound, per spec.md §4.6.3.
func (r *Recorder) Stop() error {
	if !r.recording.CompareAndSwap(true, false) {
		return ErrNotRecording
	}

	select {
	case r.signal <- struct{}{}:
	default:
	}

	joined := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(joined)
	}()

	select {
	case <-joined:
	case <-time.After(stopDrainTimeout):
		slog.Warn("recorder: stop drain exceeded 3s bound")
		select {
		case <-joined:
		case <-time.After(stopForceTimeout):
			slog.Error("recorder: stop force bound exceeded, abandoning writer join")
		}
	}

	r.csd = nil
	r.muxer = nil
	r.encoder = nil
	if r.file != nil {
		r.file.Close()
		r.file = nil
	}
	return nil
}

func (r *Recorder) writeLoop(fourcc ndinative.FourCC) {
	defer r.wg.Done()

	if r.startHold != nil {
		<-r.startHold
	}

	isCompressed := fourcc == ndinative.FourCCH264 || fourcc == ndinative.FourCCHEVC
	process := r.frameSink
	if process == nil {
		if isCompressed {
			process = r.handlePassthroughFrame
		} else {
			process = r.handleEncodeFrame
		}
	}

	for {
		for _, frame := range r.popAll() {
			process(frame)
		}

		if !r.recording.Load() {
			// Drain any remaining queued entries, then finalize.
			for _, frame := range r.popAll() {
				process(frame)
			}
			if !isCompressed && r.encoder != nil {
				r.finalizeEncode()
			}
			if r.muxer != nil {
				r.muxer.close()
			}
			return
		}

		select {
		case <-r.signal:
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func (r *Recorder) handlePassthroughFrame(frame ndinative.VideoFrameCopy) {
	units := scanAnnexB(frame.Data, r.csd.hevc)

	if !r.csd.assembled {
		r.csd.harvest(frame.Data, units)
		if !r.csd.assembled {
			// Frame dropped: CSD still incomplete (spec.md §4.6.1).
			return
		}
		if err := r.muxer.start(r.csd); err != nil {
			slog.Error("recorder: muxer start failed", "error", err)
			return
		}
	}

	keyframe := containsIDR(units, r.csd.hevc)
	if err := r.muxer.writeSample(frame.Data, frame.TimestampMicros, keyframe); err != nil {
		slog.Error("recorder: write sample failed", "error", err)
		r.lastError.Store(err.Error())
	}
}

func (r *Recorder) handleEncodeFrame(frame ndinative.VideoFrameCopy) {
	if r.encoder == nil {
		return
	}

	isUYVY := frame.FourCC == ndinative.FourCCUYVY
	isBGR := frame.FourCC == ndinative.FourCCBGRA || frame.FourCC == ndinative.FourCCBGRX
	nv12 := convertToNV12(frame.Data, frame.Width, frame.Height, isUYVY, isBGR)

	idx, ok := r.encoder.DequeueInputSlot(10 * time.Millisecond)
	if !ok {
		slog.Debug("recorder: encoder input slot timeout, frame dropped")
		return
	}
	if err := r.encoder.SubmitInput(idx, nv12, frame.TimestampMicros, false); err != nil {
		slog.Error("recorder: encoder submit failed", "error", err)
		return
	}

	r.drainEncoder(1)
}

// drainEncoder pulls encoder output until maxAttempts not-ready
// (TRY_AGAIN_LATER) results have been seen or end-of-stream arrives, per
// spec.md §4.6.2 step 3. Each per-frame call passes 1 (drain whatever is
// immediately ready); the end-of-stream call passes drainRetryLimit
// (bounded retry spin).
func (r *Recorder) drainEncoder(maxAttempts int) {
	for tries := 0; tries < maxAttempts; {
		out := r.encoder.DequeueOutput(outputSlotTimeout)
		if !out.Ready {
			tries++
			continue
		}

		if out.FormatChanged {
			if err := r.startEncodeMuxer(out.AVCC); err != nil {
				slog.Error("recorder: encode-branch muxer start failed", "error", err)
			}
			continue
		}
		if out.EndOfStream {
			return
		}
		if r.csd == nil || !r.csd.assembled {
			continue // codec-config sample before track start, skip
		}
		if err := r.muxer.writeSample(out.Sample, out.PTSMicros, out.Keyframe); err != nil {
			slog.Error("recorder: encode-branch write failed", "error", err)
		}
	}
}

// startEncodeMuxer treats the encoder's first output-format-changed event
// as the track descriptor, harvesting SPS/PPS from its AVCC-framed
// payload and starting the (H.264-only) muxer.
func (r *Recorder) startEncodeMuxer(avcc []byte) error {
	sps, pps := spsPPSFromAVCC(avcc)
	if sps == nil || pps == nil {
		return fmt.Errorf("recorder: encoder format-changed event missing SPS/PPS")
	}
	r.csd = &csdState{hevc: false, sps: sps, pps: pps}
	r.csd.assembled = true
	return r.muxer.start(r.csd)
}

func (r *Recorder) finalizeEncode() {
	idx, ok := r.encoder.DequeueInputSlot(10 * time.Millisecond)
	if ok {
		_ = r.encoder.SubmitInput(idx, nil, 0, true)
	}
	r.drainEncoder(drainRetryLimit)
	r.encoder.Release()
}

// filename builds "NDI_{YYYYMMDD_HHMMSS}_{W}x{H}_{codecLabel}.mp4", per
// spec.md §4.6.1.
func filename(t time.Time, width, height int, codecLabel string) string {
	return fmt.Sprintf("NDI_%s_%dx%d_%s.mp4", t.Format("20060102_150405"), width, height, codecLabel)
}

func codecLabelForFile(f ndinative.FourCC) string {
	switch f {
	case ndinative.FourCCH264:
		return "H264"
	case ndinative.FourCCHEVC:
		return "H265"
	default:
		return "H264"
	}
}
