package recorder

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/e7canasta/ndicore/internal/ndinative"
	"github.com/stretchr/testify/require"
)

func copyOf(fourcc ndinative.FourCC, w, h int, data []byte, pts int64) ndinative.VideoFrameCopy {
	return ndinative.VideoFrameCopy{
		Width: w, Height: h, FourCC: fourcc, TimestampMicros: pts,
		Data: append([]byte(nil), data...),
	}
}

func TestRecorder_PassthroughH264_WritesAllSamplesAfterCSD(t *testing.T) {
	dir := t.TempDir()
	r := New(Options{Dir: dir})

	require.NoError(t, r.Start(1920, 1080, ndinative.FourCCH264))
	require.True(t, r.IsRecording())

	sps := []byte{0x67, 0x01}
	pps := []byte{0x68, 0x02}
	idr := []byte{0x65, 0x03}
	keyFrame := annexB(sps, pps, idr)
	require.True(t, r.Enqueue(copyOf(ndinative.FourCCH264, 1920, 1080, keyFrame, 0), time.Second))

	for i := 1; i <= 10; i++ {
		pSlice := annexB([]byte{0x41, 0x04})
		require.True(t, r.Enqueue(copyOf(ndinative.FourCCH264, 1920, 1080, pSlice, int64(i)*33333), time.Second))
	}

	// Give the writer goroutine a chance to drain before Stop forces a
	// final drain anyway.
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, r.Stop())
	require.False(t, r.IsRecording())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	info, err := os.Stat(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
}

func TestRecorder_FramesDroppedBeforeCSDAssembled(t *testing.T) {
	dir := t.TempDir()
	r := New(Options{Dir: dir})
	require.NoError(t, r.Start(1280, 720, ndinative.FourCCH264))

	// No SPS/PPS yet: these frames must be dropped by the writer, not
	// rejected at enqueue time (spec.md §4.6.1 "recording is considered
	// recording" even while CSD is incomplete).
	pSlice := annexB([]byte{0x41, 0x00})
	require.True(t, r.Enqueue(copyOf(ndinative.FourCCH264, 1280, 720, pSlice, 0), time.Second))
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, r.Stop())
}

func TestRecorder_StartTwiceRejectsSecond(t *testing.T) {
	dir := t.TempDir()
	r := New(Options{Dir: dir})
	require.NoError(t, r.Start(640, 360, ndinative.FourCCH264))
	require.ErrorIs(t, r.Start(640, 360, ndinative.FourCCH264), ErrAlreadyRecording)
	require.NoError(t, r.Stop())
}

func TestRecorder_StopWithoutStartRejected(t *testing.T) {
	r := New(Options{Dir: t.TempDir()})
	require.ErrorIs(t, r.Stop(), ErrNotRecording)
}

// TestRecorder_QueueBackpressureDropsAfterCapacity mirrors spec.md §8's
// test 6: with the writer stalled, pushing more frames than the queue
// holds accepts exactly queueCapacity and times out the rest at the
// offer deadline. The writer is held on a gate (rather than a real
// sleep) so the outcome does not depend on scheduling jitter.
func TestRecorder_QueueBackpressureDropsAfterCapacity(t *testing.T) {
	dir := t.TempDir()
	r := New(Options{Dir: dir})

	r.startHold = make(chan struct{})
	r.frameSink = func(ndinative.VideoFrameCopy) {}

	require.NoError(t, r.Start(320, 240, ndinative.FourCCH264))

	accepted := 0
	for i := 0; i < 40; i++ {
		if r.Enqueue(copyOf(ndinative.FourCCH264, 320, 240, []byte{0x41}, int64(i)), 20*time.Millisecond) {
			accepted++
		}
	}

	require.Equal(t, queueCapacity, accepted, "expected exactly the queue capacity worth of frames accepted")

	close(r.startHold)
	require.NoError(t, r.Stop())
}
