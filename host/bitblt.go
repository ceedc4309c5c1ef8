package host

import "github.com/chazu/gosqueak/vm"

// Combination rules above this are paint and alpha modes the headless
// blitter leaves to the image's fallback code.
const maxBooleanRule = 15

// CopyBits performs blt when the source and destination share a depth and
// the rule is one of the sixteen boolean combinations.
func (h *Headless) CopyBits(blt *vm.BitBlt) bool {
	return copyBits(blt)
}

func copyBits(blt *vm.BitBlt) bool {
	dest := blt.Dest
	if dest == nil || blt.Rule < 0 || blt.Rule > maxBooleanRule || !validDepth(dest.Depth) {
		return false
	}
	dst := newPixmap(dest)
	if !dst.ok() {
		return false
	}
	var src *pixmap
	if blt.Source != nil {
		if blt.Source.Depth != dest.Depth {
			return false
		}
		src = newPixmap(blt.Source)
		if !src.ok() {
			return false
		}
		if len(src.bits) > 0 && len(dst.bits) > 0 && &src.bits[0] == &dst.bits[0] {
			src.bits = append([]uint32(nil), src.bits...)
		}
	}

	x0 := max(blt.DestX, blt.ClipX, 0)
	y0 := max(blt.DestY, blt.ClipY, 0)
	x1 := min(blt.DestX+blt.Width, blt.ClipX+blt.ClipWidth, dest.Width)
	y1 := min(blt.DestY+blt.Height, blt.ClipY+blt.ClipHeight, dest.Height)

	for y := y0; y < y1; y++ {
		var ht uint32 = 0xFFFFFFFF
		if len(blt.Halftone) > 0 {
			ht = blt.Halftone[y%len(blt.Halftone)]
		}
		for x := x0; x < x1; x++ {
			s := dst.extract(ht, x)
			if src != nil {
				sx, sy := blt.SourceX+x-blt.DestX, blt.SourceY+y-blt.DestY
				if sx < 0 || sy < 0 || sx >= src.width || sy >= src.height {
					continue
				}
				s &= src.at(sx, sy)
			}
			dst.set(x, y, combine(blt.Rule, s, dst.at(x, y))&dst.mask)
		}
	}
	return true
}

func validDepth(d int) bool {
	switch d {
	case 1, 2, 4, 8, 16, 32:
		return true
	}
	return false
}

// combine applies boolean rule r to source and destination pixels.
func combine(r int, s, d uint32) uint32 {
	switch r {
	case 0:
		return 0
	case 1:
		return s & d
	case 2:
		return s &^ d
	case 3:
		return s
	case 4:
		return ^s & d
	case 5:
		return d
	case 6:
		return s ^ d
	case 7:
		return s | d
	case 8:
		return ^s & ^d
	case 9:
		return ^(s ^ d)
	case 10:
		return ^d
	case 11:
		return s | ^d
	case 12:
		return ^s
	case 13:
		return ^s | d
	case 14:
		return ^(s & d)
	default:
		return 0xFFFFFFFF
	}
}

// pixmap addresses the pixels of a Form. Pixels are packed most
// significant first and rows start on word boundaries.
type pixmap struct {
	bits          []uint32
	width, height int
	depth         int
	perWord       int
	raster        int
	mask          uint32
}

func newPixmap(f *vm.Form) *pixmap {
	p := &pixmap{bits: f.Bits, width: f.Width, height: f.Height, depth: f.Depth}
	if !validDepth(f.Depth) {
		return p
	}
	p.perWord = 32 / f.Depth
	p.raster = (f.Width + p.perWord - 1) / p.perWord
	p.mask = uint32(1<<uint(f.Depth) - 1)
	return p
}

func (p *pixmap) ok() bool {
	return p.perWord > 0 && p.width >= 0 && p.height >= 0 && len(p.bits) >= p.raster*p.height
}

func (p *pixmap) shift(x int) uint {
	return uint(32 - p.depth*(x%p.perWord+1))
}

// extract returns the pixel of word w that lines up with column x.
func (p *pixmap) extract(w uint32, x int) uint32 {
	return w >> p.shift(x) & p.mask
}

func (p *pixmap) at(x, y int) uint32 {
	return p.extract(p.bits[y*p.raster+x/p.perWord], x)
}

func (p *pixmap) set(x, y int, v uint32) {
	i := y*p.raster + x/p.perWord
	sh := p.shift(x)
	p.bits[i] = p.bits[i]&^(p.mask<<sh) | v<<sh
}
