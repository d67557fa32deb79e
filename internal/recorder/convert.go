package recorder

// clampLuma clamps a BT.601 limited-range luma sample to [16,235].
func clampLuma(v int32) byte {
	if v < 16 {
		return 16
	}
	if v > 235 {
		return 235
	}
	return byte(v)
}

// clampChroma clamps a BT.601 limited-range chroma sample to [16,240].
func clampChroma(v int32) byte {
	if v < 16 {
		return 16
	}
	if v > 240 {
		return 240
	}
	return byte(v)
}

// rgbToYUV converts one RGB triple to BT.601 limited-range (Y,U,V), the
// inverse of the renderer's bt601 conversion (same coefficients, spec.md
// §4.6.2).
func rgbToYUV(r, g, b byte) (y, u, v byte) {
	ri, gi, bi := int32(r), int32(g), int32(b)
	y = clampLuma((66*ri + 129*gi + 25*bi + 128) >> 8 + 16)
	u = clampChroma((-38*ri - 74*gi + 112*bi + 128) >> 8 + 128)
	v = clampChroma((112*ri - 94*gi - 18*bi + 128) >> 8 + 128)
	return
}

// bgrPixel reads one pixel's RGB from a row of the given uncompressed
// layout (UYVY is handled by the caller separately since it is already
// YUV; this helper serves BGRA/BGRX).
func bgrPixel(row []byte, x int, fourccIsBGR bool) (r, g, b byte) {
	si := x * 4
	if fourccIsBGR {
		return row[si+2], row[si+1], row[si+0]
	}
	return row[si+0], row[si+1], row[si+2]
}

// convertToNV12 converts one uncompressed frame (UYVY, BGRA or BGRX) into
// an NV12 buffer: a full-resolution luma plane followed by an
// interleaved, 2x2-subsampled U/V chroma plane, per spec.md §4.6.2 step 1.
func convertToNV12(src []byte, width, height int, isUYVY, isBGR bool) []byte {
	lumaSize := width * height
	chromaSize := (width / 2) * (height / 2) * 2
	dst := make([]byte, lumaSize+chromaSize)

	rowBytes := width * 4
	if isUYVY {
		rowBytes = width * 2
	}

	for y := 0; y < height; y++ {
		row := src[y*rowBytes : (y+1)*rowBytes]
		for x := 0; x < width; x++ {
			var yy, uu, vv byte
			if isUYVY {
				pair := x / 2
				si := pair * 4
				u, y0, v, y1 := row[si], row[si+1], row[si+2], row[si+3]
				if x%2 == 0 {
					yy = y0
				} else {
					yy = y1
				}
				uu, vv = u, v
			} else {
				r, g, b := bgrPixel(row, x, isBGR)
				yy, uu, vv = rgbToYUV(r, g, b)
			}
			dst[y*width+x] = yy

			if y%2 == 0 && x%2 == 0 {
				chromaOff := lumaSize + (y/2)*width + (x/2)*2
				if chromaOff+1 < len(dst) {
					dst[chromaOff] = uu
					dst[chromaOff+1] = vv
				}
			}
		}
	}
	return dst
}
