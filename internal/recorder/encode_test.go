package recorder

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/e7canasta/ndicore/internal/ndinative"
	"github.com/stretchr/testify/require"
)

func TestRecorder_EncodeBranch_WritesFormatChangedThenSamples(t *testing.T) {
	dir := t.TempDir()
	fe := &fakeEncoder{}
	r := New(Options{Dir: dir, NewEncoder: func() Encoder { return fe }})

	require.NoError(t, r.Start(1280, 720, ndinative.FourCCUYVY))
	require.True(t, r.IsRecording())

	frame := make([]byte, 1280*720*2) // UYVY
	for i := 0; i < 5; i++ {
		require.True(t, r.Enqueue(copyOf(ndinative.FourCCUYVY, 1280, 720, frame, int64(i)*33333), time.Second))
	}

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, r.Stop())
	require.False(t, r.IsRecording())

	require.True(t, fe.configured)
	require.Equal(t, 1280, fe.width)
	require.Equal(t, 720, fe.height)
	require.True(t, fe.released)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	info, err := os.Stat(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
}

func TestRecorder_EncodeBranch_NoEncoderWiredFails(t *testing.T) {
	dir := t.TempDir()
	r := New(Options{Dir: dir})

	err := r.Start(640, 360, ndinative.FourCCBGRA)
	require.ErrorIs(t, err, ErrUnsupportedFourCC)
	require.False(t, r.IsRecording())
}

func TestRecorder_EncodeBranch_NullEncoderFactoryFailsAtConfigure(t *testing.T) {
	dir := t.TempDir()
	r := New(Options{Dir: dir, NewEncoder: NewNullEncoderFactory()})

	// nullEncoder.Configure always fails, so Start fails up front rather
	// than accepting the recording and dropping frames later: the default,
	// no-host-encoder-wired build cannot silently claim to be recording.
	err := r.Start(640, 360, ndinative.FourCCBGRA)
	require.Error(t, err)
	require.False(t, r.IsRecording())
}
