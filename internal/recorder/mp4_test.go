package recorder

import (
	"bytes"
	"testing"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"
	"github.com/stretchr/testify/require"
)

// TestPassthroughMuxer_H264_MatchesHarvestedCSD drives passthroughMuxer
// directly (bypassing the Recorder's queue/writer goroutine) and parses
// the resulting bytes back with fmp4.Init/fmp4.Part, reproducing spec.md
// §8 scenario 3: csd-0/csd-1 bit-exact to the harvested SPS/PPS, 11
// samples, sample 0 keyframe-flagged, timestamps 0,33333,66666,...
func TestPassthroughMuxer_H264_MatchesHarvestedCSD(t *testing.T) {
	var buf bytes.Buffer
	m := newPassthroughMuxer(&buf)

	sps := []byte{0x00, 0x00, 0x00, 0x01, 0x67, 0x01, 0x02}
	pps := []byte{0x00, 0x00, 0x00, 0x01, 0x68, 0x03}
	idr := []byte{0x00, 0x00, 0x00, 0x01, 0x65, 0x04}

	csd := &csdState{sps: append([]byte(nil), sps...), pps: append([]byte(nil), pps...)}
	require.NoError(t, m.start(csd))

	keyFrame := append(append(append([]byte{}, sps...), pps...), idr...)
	require.NoError(t, m.writeSample(keyFrame, 0, true))

	for i := 1; i <= 10; i++ {
		pSlice := []byte{0x00, 0x00, 0x00, 0x01, 0x41, byte(i)}
		require.NoError(t, m.writeSample(pSlice, int64(i)*33333, false))
	}

	require.Equal(t, 11, m.samplesWritten())

	r := bytes.NewReader(buf.Bytes())

	var init fmp4.Init
	require.NoError(t, init.Unmarshal(r))
	require.Len(t, init.Tracks, 1)
	codec, ok := init.Tracks[0].Codec.(*mp4.CodecH264)
	require.True(t, ok, "expected CodecH264 track")
	require.Equal(t, sps, codec.SPS, "csd-0 must match the harvested SPS bytes exactly")
	require.Equal(t, pps, codec.PPS, "csd-1 must match the harvested PPS bytes exactly")

	var baseTimes []int64
	var keyframes []bool
	for i := 0; i < 11; i++ {
		var part fmp4.Part
		require.NoError(t, part.Unmarshal(r), "sample %d", i)
		require.Len(t, part.Tracks, 1)
		track := part.Tracks[0]
		require.Len(t, track.Samples, 1)
		baseTimes = append(baseTimes, int64(track.BaseTime))
		keyframes = append(keyframes, !track.Samples[0].IsNonSyncSample)
	}

	require.True(t, keyframes[0], "sample 0 must be keyframe-flagged")
	for i := 1; i < 11; i++ {
		require.False(t, keyframes[i], "sample %d must not be keyframe-flagged", i)
	}

	for i, got := range baseTimes {
		want := scaleMicrosToTimescale(int64(i)*33333, videoTimeScale)
		require.Equal(t, want, got, "sample %d timestamp", i)
	}
}

// TestPassthroughMuxer_H265_CSD0IsVPSSPSPPS reproduces scenario 4: H.265
// csd-0 is VPS‖SPS‖PPS, sample 0 keyframe, the remaining 9 are not.
func TestPassthroughMuxer_H265_CSD0IsVPSSPSPPS(t *testing.T) {
	var buf bytes.Buffer
	m := newPassthroughMuxer(&buf)

	vps := []byte{0x00, 0x00, 0x00, 0x01, 0x40, 0x01}
	sps := []byte{0x00, 0x00, 0x00, 0x01, 0x42, 0x02}
	pps := []byte{0x00, 0x00, 0x00, 0x01, 0x44, 0x03}
	idr := []byte{0x00, 0x00, 0x00, 0x01, 0x26, 0x04} // type 19: IDR_W_RADL

	csd := &csdState{
		hevc: true,
		vps:  append([]byte(nil), vps...),
		sps:  append([]byte(nil), sps...),
		pps:  append([]byte(nil), pps...),
	}
	require.NoError(t, m.start(csd))

	keyFrame := append(append(append(append([]byte{}, vps...), sps...), pps...), idr...)
	require.NoError(t, m.writeSample(keyFrame, 0, true))

	for i := 1; i <= 9; i++ {
		trail := []byte{0x00, 0x00, 0x00, 0x01, 0x02, byte(i)} // type 1: TRAIL_R
		require.NoError(t, m.writeSample(trail, int64(i)*33333, false))
	}

	require.Equal(t, 10, m.samplesWritten())

	r := bytes.NewReader(buf.Bytes())

	var init fmp4.Init
	require.NoError(t, init.Unmarshal(r))
	codec, ok := init.Tracks[0].Codec.(*mp4.CodecH265)
	require.True(t, ok, "expected CodecH265 track")
	require.Equal(t, vps, codec.VPS)
	require.Equal(t, sps, codec.SPS)
	require.Equal(t, pps, codec.PPS)

	gotCSD0 := append(append(append([]byte{}, codec.VPS...), codec.SPS...), codec.PPS...)
	require.Equal(t, csd.csd0(), gotCSD0, "csd-0 must equal VPS‖SPS‖PPS")

	var keyframes []bool
	for i := 0; i < 10; i++ {
		var part fmp4.Part
		require.NoError(t, part.Unmarshal(r), "sample %d", i)
		keyframes = append(keyframes, !part.Tracks[0].Samples[0].IsNonSyncSample)
	}
	require.True(t, keyframes[0])
	for i := 1; i < 10; i++ {
		require.False(t, keyframes[i], "sample %d must not be keyframe-flagged", i)
	}
}
