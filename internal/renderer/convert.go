package renderer

// clampByte clamps v into [0, 255].
func clampByte(v int32) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

// bt601 converts a single biased (Y,U,V) triple to (R,G,B) using the
// BT.601 limited-range coefficients of spec.md §4.4/§8. c=Y-16, d=U-128,
// e=V-128.
func bt601(y, u, v byte) (r, g, b byte) {
	c := int32(y) - 16
	d := int32(u) - 128
	e := int32(v) - 128

	r = clampByte((298*c + 409*e + 128) >> 8)
	g = clampByte((298*c - 100*d - 208*e + 128) >> 8)
	b = clampByte((298*c + 516*d + 128) >> 8)
	return
}

// convertUYVYRow converts one row of UYVY (4:2:2 packed) into RGBA, two
// source pixels (one U,Y0,V,Y1 quadruple) at a time, per spec.md §4.4.
func convertUYVYRow(src, dst []byte, widthPx int) {
	pairs := widthPx / 2
	for pair := 0; pair < pairs; pair++ {
		si := pair * 4
		di := pair * 8
		if si+3 >= len(src) || di+7 >= len(dst) {
			break
		}
		u := src[si]
		y0 := src[si+1]
		v := src[si+2]
		y1 := src[si+3]

		r0, g0, b0 := bt601(y0, u, v)
		r1, g1, b1 := bt601(y1, u, v)

		dst[di+0] = r0
		dst[di+1] = g0
		dst[di+2] = b0
		dst[di+3] = 0xFF
		dst[di+4] = r1
		dst[di+5] = g1
		dst[di+6] = b1
		dst[di+7] = 0xFF
	}
}

// convertBGRARow swaps R and B, preserving alpha.
func convertBGRARow(src, dst []byte, widthPx int) {
	for x := 0; x < widthPx; x++ {
		si := x * 4
		if si+3 >= len(src) {
			break
		}
		di := x * 4
		dst[di+0] = src[si+2]
		dst[di+1] = src[si+1]
		dst[di+2] = src[si+0]
		dst[di+3] = src[si+3]
	}
}

// convertBGRXRow swaps R and B, forcing alpha to 0xFF.
func convertBGRXRow(src, dst []byte, widthPx int) {
	for x := 0; x < widthPx; x++ {
		si := x * 4
		if si+3 >= len(src) {
			break
		}
		di := x * 4
		dst[di+0] = src[si+2]
		dst[di+1] = src[si+1]
		dst[di+2] = src[si+0]
		dst[di+3] = 0xFF
	}
}

// convertRGBARow is a direct row copy: R,G,B, and the source alpha byte
// all pass through unchanged.
func convertRGBARow(src, dst []byte, widthPx int) {
	n := widthPx * 4
	if n > len(src) {
		n = len(src)
	}
	if n > len(dst) {
		n = len(dst)
	}
	copy(dst[:n], src[:n])
}

// convertRGBXRow copies R,G,B directly and forces alpha to 0xFF: the X
// byte carries no meaningful alpha so it must not leak through.
func convertRGBXRow(src, dst []byte, widthPx int) {
	n := widthPx * 4
	if n > len(src) {
		n = len(src)
	}
	copy(dst[:n], src[:n])
	for x := 0; x < widthPx; x++ {
		di := x*4 + 3
		if di < len(dst) {
			dst[di] = 0xFF
		}
	}
}
