// Package ndinative models the native discovery/receive runtime that this
// module treats as an external collaborator: a finder that enumerates LAN
// publishers and a receiver that captures frames from one of them.
//
// The proprietary SDK is not vendored here. This package defines the
// handle/frame contract as Go interfaces plus a simulated backend used by
// tests, the way stream-capture treats GStreamer acceleration as a
// pluggable backend behind HardwareAccel.
package ndinative

import "errors"

// FourCC names a pixel or codec layout carried by a VideoFrame.
type FourCC uint32

const (
	FourCCUnknown FourCC = iota
	FourCCUYVY
	FourCCBGRA
	FourCCBGRX
	FourCCRGBA
	FourCCRGBX
	FourCCNV12
	FourCCI420
	FourCCH264
	FourCCHEVC
)

func (f FourCC) String() string {
	switch f {
	case FourCCUYVY:
		return "UYVY"
	case FourCCBGRA:
		return "BGRA"
	case FourCCBGRX:
		return "BGRX"
	case FourCCRGBA:
		return "RGBA"
	case FourCCRGBX:
		return "RGBX"
	case FourCCNV12:
		return "NV12"
	case FourCCI420:
		return "I420"
	case FourCCH264:
		return "H264"
	case FourCCHEVC:
		return "HEVC"
	default:
		return "UNKNOWN"
	}
}

// IsCompressed reports whether the FourCC names a bitstream codec rather
// than a raw pixel layout. Invariant: isCompressed <=> FourCC in {H264, HEVC}.
func (f FourCC) IsCompressed() bool {
	return f == FourCCH264 || f == FourCCHEVC
}

// Bandwidth mirrors the fixed enumeration accepted at Receiver creation.
type Bandwidth int

const (
	BandwidthMetadataOnly Bandwidth = iota
	BandwidthAudioOnly
	BandwidthLowest
	BandwidthHighest
)

// ColorFormat is a (progressive, fielded) tuple selection for uncompressed
// capture. The default for this system is BGRXBGRA because the app-layer
// decoder handles compressed frames directly.
type ColorFormat int

const (
	ColorFormatBGRXBGRA ColorFormat = iota
	ColorFormatUYVYBGRA
	ColorFormatRGBXRGBA
	ColorFormatUYVYRGBA
	ColorFormatFastest
	ColorFormatBest
)

// SourceDescriptor identifies a publisher discovered on the LAN. Equality
// is by Name.
type SourceDescriptor struct {
	Name string
	URL  string
}

// Equal compares two descriptors by name, per the spec's equality rule.
func (d SourceDescriptor) Equal(other SourceDescriptor) bool {
	return d.Name == other.Name
}

// FrameRate is a frame-rate fraction as reported by the publisher.
type FrameRate struct {
	Num int
	Den int
}

// VideoFrame is a borrowed capture: its Data byte region is only valid
// between capture and the matching Release call on the same receiver.
type VideoFrame struct {
	Width            int
	Height           int
	FourCC           FourCC
	LineStrideBytes  int // may be 0 (tightly packed), negative (bottom-up), or positive
	FrameRate        FrameRate
	TimestampMicros  int64 // presentation timestamp in the publisher's timebase
	DataSizeInBytes  int   // content length for compressed frames (stride is 0)
	Data             []byte
	nativeHandle     uintptr // opaque handle registered via ndinative/pointer.go
}

// Compressed reports whether this frame carries a bitstream payload.
func (f VideoFrame) Compressed() bool { return f.FourCC.IsCompressed() }

// Copy produces an owned, heap-backed snapshot (VideoFrameCopy) of this
// borrowed frame, safe to retain past the frame's Release call.
func (f VideoFrame) Copy() VideoFrameCopy {
	data := make([]byte, len(f.Data))
	copy(data, f.Data)
	return VideoFrameCopy{
		Width:           f.Width,
		Height:          f.Height,
		FourCC:          f.FourCC,
		LineStrideBytes: f.LineStrideBytes,
		FrameRate:       f.FrameRate,
		TimestampMicros: f.TimestampMicros,
		DataSizeInBytes: f.DataSizeInBytes,
		Data:            data,
	}
}

// VideoFrameCopy is an owned snapshot of a VideoFrame's byte region, made
// for asynchronous consumers whose lifetime outlives the native release.
type VideoFrameCopy struct {
	Width           int
	Height          int
	FourCC          FourCC
	LineStrideBytes int
	FrameRate       FrameRate
	TimestampMicros int64
	DataSizeInBytes int
	Data            []byte
}

// Performance mirrors the native performance() query. Connected is not
// part of that query itself — internal/receiver.Receiver stamps it true
// only while it is in its connected state with a live native handle.
type Performance struct {
	Connected           bool
	TotalVideoFrames    uint64
	DroppedVideoFrames  uint64
	TotalAudioFrames    uint64
	DroppedAudioFrames  uint64
	TotalMetadataFrames uint64
}

// Quality computes 100*(1-dropped/total), clamped: 0 if no active
// connection, 100 if connected but no frames yet, per spec.md's
// quality ∈ [0,100] invariant.
func (p Performance) Quality() int {
	if !p.Connected {
		return 0
	}
	if p.TotalVideoFrames == 0 {
		return 100
	}
	q := 100 * (1 - float64(p.DroppedVideoFrames)/float64(p.TotalVideoFrames))
	if q < 0 {
		q = 0
	}
	if q > 100 {
		q = 100
	}
	return int(q)
}

// ErrRuntimeNotInitialized is returned when Finder/Receiver are used
// before the native runtime has been initialized.
var ErrRuntimeNotInitialized = errors.New("ndinative: runtime not initialized")
