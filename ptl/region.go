package ptl

// region is the memory behind an MD or list entry: either one contiguous
// slice or an ordered scatter/gather list.
type region struct {
	segs   [][]byte
	length uint64
}

func newRegion(start []byte, iov [][]byte, options uint32, maxIOVecs int) (region, error) {
	if options&IOVec == 0 {
		if len(iov) != 0 {
			return region{}, ErrArgInvalid
		}
		if len(start) == 0 {
			return region{}, nil
		}
		return region{segs: [][]byte{start}, length: uint64(len(start))}, nil
	}
	if len(start) != 0 || len(iov) > maxIOVecs {
		return region{}, ErrArgInvalid
	}
	r := region{segs: make([][]byte, 0, len(iov))}
	for _, seg := range iov {
		if len(seg) == 0 {
			continue
		}
		r.segs = append(r.segs, seg)
		r.length += uint64(len(seg))
	}
	return r, nil
}

// within reports whether [off, off+n) lies inside the region.
func (r region) within(off, n uint64) bool {
	return off <= r.length && n <= r.length-off
}

// read copies the region's bytes starting at off into dst.
func (r region) read(off uint64, dst []byte) {
	r.walk(off, uint64(len(dst)), func(seg []byte, pos uint64) {
		copy(dst[pos:], seg)
	})
}

// write copies src into the region starting at off.
func (r region) write(off uint64, src []byte) {
	r.walk(off, uint64(len(src)), func(seg []byte, pos uint64) {
		copy(seg, src[pos:])
	})
}

// slice returns n bytes at off, aliasing the region when they are contiguous.
func (r region) slice(off, n uint64) []byte {
	if n == 0 || !r.within(off, n) {
		return nil
	}
	rel := off
	for _, seg := range r.segs {
		l := uint64(len(seg))
		if rel < l {
			if rel+n <= l {
				return seg[rel : rel+n : rel+n]
			}
			break
		}
		rel -= l
	}
	out := make([]byte, n)
	r.read(off, out)
	return out
}

// walk visits the segment pieces covering [off, off+n). pos is the offset of
// each piece relative to off.
func (r region) walk(off, n uint64, fn func(seg []byte, pos uint64)) {
	var pos uint64
	for _, seg := range r.segs {
		if n == 0 {
			return
		}
		l := uint64(len(seg))
		if off >= l {
			off -= l
			continue
		}
		piece := seg[off:]
		if uint64(len(piece)) > n {
			piece = piece[:n]
		}
		fn(piece, pos)
		pos += uint64(len(piece))
		n -= uint64(len(piece))
		off = 0
	}
}
