package recorder

import (
	"bytes"
	"testing"
)

func annexB(nalus ...[]byte) []byte {
	var out []byte
	for _, n := range nalus {
		out = append(out, 0x00, 0x00, 0x00, 0x01)
		out = append(out, n...)
	}
	return out
}

func TestScanAnnexB_ClassifiesH264Types(t *testing.T) {
	sps := []byte{0x67, 0xAA, 0xBB}
	pps := []byte{0x68, 0xCC}
	idr := []byte{0x65, 0x01, 0x02}

	data := annexB(sps, pps, idr)
	units := scanAnnexB(data, false)

	if len(units) != 3 {
		t.Fatalf("expected 3 NAL units, got %d", len(units))
	}
	if units[0].nalType != h264NALTypeSPS || units[1].nalType != h264NALTypePPS || units[2].nalType != h264NALTypeIDR {
		t.Fatalf("unexpected types: %+v", units)
	}
	if !containsIDR(units, false) {
		t.Fatalf("expected containsIDR true")
	}
}

func TestScanAnnexB_ClassifiesH265Types(t *testing.T) {
	vps := []byte{0x40, 0x01}
	sps := []byte{0x42, 0x01}
	pps := []byte{0x44, 0x01}
	idr := []byte{0x26, 0x01} // (0x26>>1)&0x3F = 19 = IDR_W_RADL

	data := annexB(vps, sps, pps, idr)
	units := scanAnnexB(data, true)

	if len(units) != 4 {
		t.Fatalf("expected 4 units, got %d", len(units))
	}
	want := []int{h265NALTypeVPS, h265NALTypeSPS, h265NALTypePPS, h265NALTypeIDRWRADL}
	for i, w := range want {
		if units[i].nalType != w {
			t.Fatalf("unit %d: want type %d got %d", i, w, units[i].nalType)
		}
	}
	if !containsIDR(units, true) {
		t.Fatalf("expected containsIDR true")
	}
}

func TestCsdState_AssemblesH264(t *testing.T) {
	sps := []byte{0x67, 0xAA}
	pps := []byte{0x68, 0xBB}
	data := annexB(sps, pps)
	units := scanAnnexB(data, false)

	c := &csdState{hevc: false}
	c.harvest(data, units)

	if !c.assembled {
		t.Fatalf("expected CSD assembled after SPS+PPS")
	}
	if !bytes.Equal(c.csd0(), annexB(sps)) {
		t.Fatalf("csd0 mismatch: got %x", c.csd0())
	}
	if !bytes.Equal(c.csd1(), annexB(pps)) {
		t.Fatalf("csd1 mismatch: got %x", c.csd1())
	}
}

func TestCsdState_IncompleteUntilAllThreeForHEVC(t *testing.T) {
	vps := []byte{0x40, 0x01}
	sps := []byte{0x42, 0x01}

	c := &csdState{hevc: true}
	data := annexB(vps, sps)
	c.harvest(data, scanAnnexB(data, true))
	if c.assembled {
		t.Fatalf("expected not assembled without PPS")
	}

	pps := []byte{0x44, 0x01}
	data2 := annexB(pps)
	c.harvest(data2, scanAnnexB(data2, true))
	if !c.assembled {
		t.Fatalf("expected assembled once VPS+SPS+PPS collected")
	}
}

func TestAnnexBToAVCC_LengthPrefixed(t *testing.T) {
	nal1 := []byte{0x67, 0x01, 0x02}
	nal2 := []byte{0x68, 0x03}
	avcc := AnnexBToAVCC(annexB(nal1, nal2))

	wantLen1 := len(nal1)
	if int(avcc[0])<<24|int(avcc[1])<<16|int(avcc[2])<<8|int(avcc[3]) != wantLen1 {
		t.Fatalf("expected first length prefix %d", wantLen1)
	}
	if !bytes.Equal(avcc[4:4+wantLen1], nal1) {
		t.Fatalf("first NAL payload mismatch")
	}
}
