package recorder

import "errors"

var (
	// ErrAlreadyRecording is returned by Start when a recording is in progress.
	ErrAlreadyRecording = errors.New("recorder: already recording")
	// ErrNotRecording is returned by Stop when no recording is in progress.
	ErrNotRecording = errors.New("recorder: not recording")
	// ErrUnsupportedFourCC is returned when neither the passthrough nor the
	// encode branch can handle the frame's pixel/codec layout.
	ErrUnsupportedFourCC = errors.New("recorder: unsupported fourcc for recording")
	// ErrMuxerWriteFailed wraps any failure writing an init segment or sample.
	ErrMuxerWriteFailed = errors.New("recorder: muxer write failed")
)
