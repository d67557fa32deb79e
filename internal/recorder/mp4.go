package recorder

import (
	"fmt"
	"io"
	"sync"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4/seekablebuffer"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"
)

// videoTimeScale is the track timescale used for both the passthrough and
// encode branches, matching the teacher's clockRate-per-track convention.
const videoTimeScale = 90000

// passthroughMuxer frames Annex-B samples into an MP4 (fragmented) video
// track, writing an init segment once CSD is assembled and one media part
// per sample thereafter. Grounded on FMP4StreamWriter's per-frame
// Part-write pattern, narrowed to a single video track (no audio).
type passthroughMuxer struct {
	w io.Writer

	mu             sync.Mutex
	initWritten    bool
	closed         bool
	sequenceNumber uint32
	firstDTS       int64
	haveFirstDTS   bool
	sampleCount    int
}

func newPassthroughMuxer(w io.Writer) *passthroughMuxer {
	return &passthroughMuxer{w: w, sequenceNumber: 1}
}

// start writes the init segment once, built from the harvested CSD. hevc
// selects between mp4.CodecH265 (csd-0 reads as VPS‖SPS‖PPS, per spec.md
// §6's on-disk contract) and mp4.CodecH264 (csd-0=SPS, csd-1=PPS).
func (m *passthroughMuxer) start(csd *csdState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.initWritten {
		return nil
	}

	var codec mp4.Codec
	if csd.hevc {
		codec = &mp4.CodecH265{VPS: csd.vps, SPS: csd.sps, PPS: csd.pps}
	} else {
		codec = &mp4.CodecH264{SPS: csd.sps, PPS: csd.pps}
	}

	init := &fmp4.Init{
		Tracks: []*fmp4.InitTrack{
			{ID: 1, TimeScale: videoTimeScale, Codec: codec},
		},
	}

	var buf seekablebuffer.Buffer
	if err := init.Marshal(&buf); err != nil {
		return fmt.Errorf("%w: init segment: %w", ErrMuxerWriteFailed, err)
	}
	if _, err := m.w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("%w: init segment write: %w", ErrMuxerWriteFailed, err)
	}

	m.initWritten = true
	return nil
}

// writeSample writes one AVCC-converted sample as its own fragment,
// per spec.md §4.6.1 "write the entire frame bytes as a single sample".
func (m *passthroughMuxer) writeSample(annexB []byte, ptsMicros int64, keyframe bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("%w: muxer closed", ErrMuxerWriteFailed)
	}
	if !m.initWritten {
		return fmt.Errorf("%w: init segment not written", ErrMuxerWriteFailed)
	}

	avcc := AnnexBToAVCC(annexB)
	if len(avcc) == 0 {
		return nil
	}

	dts := scaleMicrosToTimescale(ptsMicros, videoTimeScale)
	if !m.haveFirstDTS {
		m.firstDTS = dts
		m.haveFirstDTS = true
	}

	part := &fmp4.Part{
		SequenceNumber: m.sequenceNumber,
		Tracks: []*fmp4.PartTrack{
			{
				ID:       1,
				BaseTime: uint64(dts - m.firstDTS),
				Samples: []*fmp4.Sample{
					{
						IsNonSyncSample: !keyframe,
						Payload:         avcc,
						Duration:        videoTimeScale / 30,
					},
				},
			},
		},
	}

	var buf seekablebuffer.Buffer
	if err := part.Marshal(&buf); err != nil {
		return fmt.Errorf("%w: sample: %w", ErrMuxerWriteFailed, err)
	}
	if _, err := m.w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("%w: sample write: %w", ErrMuxerWriteFailed, err)
	}

	m.sequenceNumber++
	m.sampleCount++
	return nil
}

func (m *passthroughMuxer) samplesWritten() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sampleCount
}

func (m *passthroughMuxer) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

// scaleMicrosToTimescale converts a microsecond timestamp into track
// timescale units, matching the teacher's overflow-safe 64-bit scaling.
func scaleMicrosToTimescale(us int64, timeScale uint32) int64 {
	if us <= 0 {
		return 0
	}
	return (us * int64(timeScale)) / 1_000_000
}
