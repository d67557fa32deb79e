package recorder

// nalUnit is one byte range within a frame buffer, including its start
// code, plus the type computed for it.
type nalUnit struct {
	start, end int // byte offsets into the source buffer, end exclusive
	nalType    int
}

// H.264 NAL types of interest (spec.md §4.6.1).
const (
	h264NALTypeSPS = 7
	h264NALTypePPS = 8
	h264NALTypeIDR = 5
)

// H.265 NAL types of interest.
const (
	h265NALTypeVPS      = 32
	h265NALTypeSPS      = 33
	h265NALTypePPS      = 34
	h265NALTypeIDRWRADL = 19
	h265NALTypeIDRNLP   = 20
)

// scanAnnexB walks data looking for 3- or 4-byte Annex-B start codes and
// returns the NAL units it finds, each spanning from its own start code up
// to (but not including) the next start code or end of buffer.
func scanAnnexB(data []byte, hevc bool) []nalUnit {
	starts := findStartCodes(data)
	if len(starts) == 0 {
		return nil
	}

	units := make([]nalUnit, 0, len(starts))
	for i, sc := range starts {
		payloadStart := sc.end
		end := len(data)
		if i+1 < len(starts) {
			end = starts[i+1].start
		}
		if payloadStart >= len(data) {
			continue
		}
		firstByte := data[payloadStart]
		var t int
		if hevc {
			t = int(firstByte>>1) & 0x3F
		} else {
			t = int(firstByte) & 0x1F
		}
		units = append(units, nalUnit{start: sc.start, end: end, nalType: t})
	}
	return units
}

type startCode struct{ start, end int }

// findStartCodes locates every 0x000001 (3-byte) or 0x00000001 (4-byte)
// marker in data, preferring the longer 4-byte match when both align.
func findStartCodes(data []byte) []startCode {
	var codes []startCode
	for i := 0; i+3 <= len(data); i++ {
		if data[i] != 0x00 || data[i+1] != 0x00 {
			continue
		}
		if i+4 <= len(data) && data[i+2] == 0x00 && data[i+3] == 0x01 {
			codes = append(codes, startCode{start: i, end: i + 4})
			i += 3
			continue
		}
		if data[i+2] == 0x01 {
			codes = append(codes, startCode{start: i, end: i + 3})
			i += 2
		}
	}
	return codes
}

// containsIDR reports whether units contains an IDR NAL, H.264 or H.265.
func containsIDR(units []nalUnit, hevc bool) bool {
	for _, u := range units {
		if hevc {
			if u.nalType == h265NALTypeIDRWRADL || u.nalType == h265NALTypeIDRNLP {
				return true
			}
		} else if u.nalType == h264NALTypeIDR {
			return true
		}
	}
	return false
}

// csdState accumulates codec-specific data harvested from the first
// frames of a passthrough recording, per spec.md §4.6.1.
type csdState struct {
	hevc bool

	vps []byte
	sps []byte
	pps []byte

	assembled bool
}

// harvest scans one frame's NAL units and copies any SPS/PPS/VPS payloads
// (including their start codes) not yet collected.
func (c *csdState) harvest(data []byte, units []nalUnit) {
	for _, u := range units {
		switch {
		case !c.hevc && u.nalType == h264NALTypeSPS && c.sps == nil:
			c.sps = append([]byte(nil), data[u.start:u.end]...)
		case !c.hevc && u.nalType == h264NALTypePPS && c.pps == nil:
			c.pps = append([]byte(nil), data[u.start:u.end]...)
		case c.hevc && u.nalType == h265NALTypeVPS && c.vps == nil:
			c.vps = append([]byte(nil), data[u.start:u.end]...)
		case c.hevc && u.nalType == h265NALTypeSPS && c.sps == nil:
			c.sps = append([]byte(nil), data[u.start:u.end]...)
		case c.hevc && u.nalType == h265NALTypePPS && c.pps == nil:
			c.pps = append([]byte(nil), data[u.start:u.end]...)
		}
	}

	if c.hevc {
		c.assembled = c.vps != nil && c.sps != nil && c.pps != nil
	} else {
		c.assembled = c.sps != nil && c.pps != nil
	}
}

// csd0 returns the track descriptor's csd-0: SPS for H.264, VPS‖SPS‖PPS
// concatenated for H.265 (spec.md §4.6.1/§6).
func (c *csdState) csd0() []byte {
	if !c.hevc {
		return c.sps
	}
	out := make([]byte, 0, len(c.vps)+len(c.sps)+len(c.pps))
	out = append(out, c.vps...)
	out = append(out, c.sps...)
	out = append(out, c.pps...)
	return out
}

// csd1 returns the track descriptor's csd-1: PPS for H.264, unused for
// H.265 (its CSD is fully carried in csd-0).
func (c *csdState) csd1() []byte {
	if c.hevc {
		return nil
	}
	return c.pps
}

// spsPPSFromAVCC scans a buffer of 4-byte-length-prefixed NAL units (the
// framing an encoder's format-changed event hands back) and returns the
// first SPS and PPS payloads found, each rewrapped with a 4-byte Annex-B
// start code, the same form csdState.harvest stores for the passthrough
// branch.
func spsPPSFromAVCC(data []byte) (sps, pps []byte) {
	i := 0
	for i+4 <= len(data) {
		n := int(data[i])<<24 | int(data[i+1])<<16 | int(data[i+2])<<8 | int(data[i+3])
		i += 4
		if n <= 0 || i+n > len(data) {
			break
		}
		nalu := data[i : i+n]
		i += n

		t := int(nalu[0]) & 0x1F
		switch t {
		case h264NALTypeSPS:
			if sps == nil {
				sps = withAnnexBStartCode(nalu)
			}
		case h264NALTypePPS:
			if pps == nil {
				pps = withAnnexBStartCode(nalu)
			}
		}
	}
	return sps, pps
}

// SplitParameterSets scans Annex-B H.264 data and pulls out the first SPS
// and PPS NAL units it finds (each still Annex-B start-code-prefixed),
// returning them separately from rest, the remaining Annex-B stream with
// those parameter-set units removed. Exported for a software Encoder
// implementation (e.g. recorder/swencode) whose h264parse element repeats
// SPS/PPS in-band before every keyframe: the parameter sets feed the
// format-changed AVCC event, and rest is handed through as the sample so
// keyframes aren't muxed with duplicated parameter-set NALs embedded in
// their payload.
func SplitParameterSets(data []byte) (sps, pps, rest []byte) {
	units := scanAnnexB(data, false)
	rest = make([]byte, 0, len(data))
	for _, u := range units {
		switch u.nalType {
		case h264NALTypeSPS:
			if sps == nil {
				sps = append([]byte(nil), data[u.start:u.end]...)
			}
		case h264NALTypePPS:
			if pps == nil {
				pps = append([]byte(nil), data[u.start:u.end]...)
			}
		default:
			rest = append(rest, data[u.start:u.end]...)
		}
	}
	return sps, pps, rest
}

func withAnnexBStartCode(nalu []byte) []byte {
	out := make([]byte, 0, len(nalu)+4)
	out = append(out, 0x00, 0x00, 0x00, 0x01)
	out = append(out, nalu...)
	return out
}

// AnnexBToAVCC rewrites each Annex-B start-code-delimited NAL unit as a
// 4-byte big-endian length prefix followed by its payload, the layout MP4
// samples require. Exported so a software Encoder implementation (e.g.
// recorder/swencode, which only sees Annex-B output from h264parse) can
// reuse the same framing this package's muxer expects.
func AnnexBToAVCC(data []byte) []byte {
	starts := findStartCodes(data)
	if len(starts) == 0 {
		return nil
	}

	out := make([]byte, 0, len(data)+4*len(starts))
	for i, sc := range starts {
		payloadStart := sc.end
		end := len(data)
		if i+1 < len(starts) {
			end = starts[i+1].start
		}
		if payloadStart >= end {
			continue
		}
		payload := data[payloadStart:end]
		n := uint32(len(payload))
		out = append(out, byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
		out = append(out, payload...)
	}
	return out
}
