package binb

// binbdl - A downloader for scrambled manga readers.
// Copyright (C) 2016  Mino <mino@minomino.org>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

import (
	"image"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/MinoMino/binbdl/descramble"
	"github.com/MinoMino/binbdl/logger"
)

var reKeyF = regexp.MustCompile(`^=([0-9]+)-([0-9]+)([-+])([0-9]+)-([-_0-9A-Za-z]+)$`)

// Piece coordinates in "A" keys.
const keyAAlphabet = "aAbBcCdDeEfFgGhHiIjJkKlLmMnNoOpPqQrRsStTuUvVwWxXyYzZ"

const (
	// Keys with fewer pieces than this on either axis aren't scrambled.
	minPiecesF = 8
	// Smallest area the "A" layout is applied to.
	minAreaA = 320 * 320
)

// Where every piece of a scrambled page goes, and the size of the result.
type Layout struct {
	Width, Height int
	Translations  []descramble.Translation
}

// Computes the layout for a key pair and a source image size. Returns false
// if the key pair isn't one the function understands.
type LayoutFunc func(p, c string, width, height int) (*Layout, bool)

type layoutKey struct {
	p, c          string
	width, height int
}

/*
Descrambles ptbinb pages by computing a translation list from the page's key
pair and size, then copying the rectangles onto a new canvas.

A title typically has a couple of hundred pages of the same size but at most 64
different key pairs, so computed layouts are cached. Safe for concurrent use.
*/
type PtBinbDescrambler struct {
	Name   string
	layout LayoutFunc

	mu    sync.Mutex
	cache map[layoutKey]*Layout
}

func NewPtBinbDescrambler(name string, layout LayoutFunc) *PtBinbDescrambler {
	return &PtBinbDescrambler{
		Name:   name,
		layout: layout,
		cache:  make(map[layoutKey]*Layout),
	}
}

// Variant of keys starting with "=".
func NewDescramblerF() *PtBinbDescrambler {
	return NewPtBinbDescrambler("ptbinb-f", LayoutF)
}

// Variant of keys starting with a digit.
func NewDescramblerA() *PtBinbDescrambler {
	return NewPtBinbDescrambler("ptbinb-a", LayoutA)
}

// Gets the layout, computing it if it isn't cached. Key pairs that don't
// parse are cached as well.
func (d *PtBinbDescrambler) Layout(p, c string, width, height int) (*Layout, bool) {
	key := layoutKey{p, c, width, height}
	d.mu.Lock()
	defer d.mu.Unlock()
	if l, ok := d.cache[key]; ok {
		return l, l != nil
	}

	l, ok := d.layout(p, c, width, height)
	if !ok {
		l = nil
	}
	d.cache[key] = l

	return l, ok
}

func (d *PtBinbDescrambler) Descramble(img image.Image, p descramble.Params) (image.Image, error) {
	b := img.Bounds()
	l, ok := d.Layout(p.P, p.C, b.Dx(), b.Dy())
	if !ok {
		log.WithFields(logger.Fields{
			"descrambler": d.Name,
			"p":           p.P,
			"c":           p.C,
		}).Debug("Key pair did not parse. Leaving the page as it is.")
		return img, nil
	}

	res := image.NewRGBA(image.Rect(0, 0, l.Width, l.Height))
	descramble.CopyRectangles(res, img, l.Translations)

	return res, nil
}

// Adds both ptbinb variants to a registry.
func Register(reg *descramble.Registry) {
	f, a := NewDescramblerF(), NewDescramblerA()
	reg.Register(f.Name, IsKeyPairF, f)
	reg.Register(a.Name, IsKeyPairA, a)
}

func IsKeyPairF(p descramble.Params) bool {
	return p.Scheme == descramble.SchemePtBinb &&
		strings.HasPrefix(p.P, "=") && strings.HasPrefix(p.C, "=")
}

func IsKeyPairA(p descramble.Params) bool {
	return p.Scheme == descramble.SchemePtBinb &&
		startsWithDigit(p.P) && startsWithDigit(p.C)
}

func identityLayout(width, height int) *Layout {
	return &Layout{
		Width:  width,
		Height: height,
		Translations: []descramble.Translation{
			{XSrc: 0, YSrc: 0, Width: width, Height: height, XDest: 0, YDest: 0},
		},
	}
}

// ====================================================================
//                              VARIANT F
// ====================================================================

type piecesF struct {
	// One entry per column and per row. The column (or row) whose pieces
	// take the remainder of the width (or height).
	wPos, hPos []int
	pieces     []int
}

func decodePiecesF(data string, w, h int) *piecesF {
	idx := func(i int) int { return strings.IndexByte(urlsafeAlphabet, data[i]) }
	res := &piecesF{
		wPos:   make([]int, w),
		hPos:   make([]int, h),
		pieces: make([]int, w*h),
	}
	for i := range res.wPos {
		res.wPos[i] = idx(i)
	}
	for i := range res.hPos {
		res.hPos[i] = idx(w + i)
	}
	for i := range res.pieces {
		res.pieces[i] = idx(w + h + i)
	}

	return res
}

/*
Layout for keys like "=8-8-2-<data>" (P) and "=8-8+2-<data>" (C). The image is cut
into w*h pieces, each surrounded by padding that is dropped from the result.
*/
func LayoutF(p, c string, width, height int) (*Layout, bool) {
	sm := reKeyF.FindStringSubmatch(p)
	dm := reKeyF.FindStringSubmatch(c)
	if sm == nil || dm == nil || sm[1] != dm[1] || sm[2] != dm[2] ||
		sm[4] != dm[4] || sm[3] != "-" || dm[3] != "+" {
		return nil, false
	}

	w, err1 := strconv.Atoi(dm[1])
	h, err2 := strconv.Atoi(dm[2])
	pad, err3 := strconv.Atoi(dm[4])
	if err1 != nil || err2 != nil || err3 != nil ||
		w < minPiecesF || h < minPiecesF || w*h < minPiecesF*minPiecesF {
		return nil, false
	}
	n := w + h + w*h
	if len(sm[5]) != n || len(dm[5]) != n {
		return nil, false
	}

	src := decodePiecesF(sm[5], w, h)
	dst := decodePiecesF(dm[5], w, h)
	dest := make([]int, w*h)
	for i, sp := range src.pieces {
		if sp >= w*h {
			return nil, false
		}
		dest[i] = dst.pieces[sp]
		if dest[i] >= w*h {
			return nil, false
		}
	}

	padW, padH := 2*w*pad, 2*h*pad
	if !(width >= 64+padW && height >= 64+padH && width*height >= (320+padW)*(320+padH)) {
		return identityLayout(width, height), true
	}

	cw, ch := width-padW, height-padH
	pw := (cw + w - 1) / w
	rw := cw - (w-1)*pw
	ph := (ch + h - 1) / h
	rh := ch - (h-1)*ph

	ts := make([]descramble.Translation, w*h)
	for o := range ts {
		col, row := o%w, o/w
		dCol, dRow := dest[o]%w, dest[o]/w

		t := descramble.Translation{
			XSrc:   pad + col*(pw+2*pad),
			YSrc:   pad + row*(ph+2*pad),
			Width:  pw,
			Height: ph,
			XDest:  dCol * pw,
			YDest:  dRow * ph,
		}
		if src.hPos[row] < col {
			t.XSrc += rw - pw
		}
		if src.wPos[col] < row {
			t.YSrc += rh - ph
		}
		if src.hPos[row] == col {
			t.Width = rw
		}
		if src.wPos[col] == row {
			t.Height = rh
		}
		if dst.hPos[dRow] < dCol {
			t.XDest += rw - pw
		}
		if dst.wPos[dCol] < dRow {
			t.YDest += rh - ph
		}
		ts[o] = t
	}

	return &Layout{Width: cw, Height: ch, Translations: ts}, true
}

// ====================================================================
//                              VARIANT A
// ====================================================================

type pieceA struct {
	x, y int
	// In units of half cells.
	w, h int
}

type piecesA struct {
	ndx, ndy int
	pieces   []pieceA
}

func decodePiecesA(key string) (*piecesA, bool) {
	split := strings.Split(key, "-")
	if len(split) != 3 {
		return nil, false
	}
	ndx, err1 := strconv.Atoi(split[0])
	ndy, err2 := strconv.Atoi(split[1])
	data := split[2]
	if err1 != nil || err2 != nil || ndx < 1 || ndy < 1 || len(data) != ndx*ndy*2 {
		return nil, false
	}

	// Full pieces first, then the last row, then the last column, then the
	// corner.
	full := (ndx-1)*(ndy-1) - 1
	lastRow := full + ndx - 1
	lastCol := lastRow + ndy - 1

	res := &piecesA{ndx: ndx, ndy: ndy, pieces: make([]pieceA, ndx*ndy)}
	for i := range res.pieces {
		x := strings.IndexByte(keyAAlphabet, data[2*i])
		y := strings.IndexByte(keyAAlphabet, data[2*i+1])
		if x == -1 || y == -1 {
			return nil, false
		}

		piece := pieceA{x: x, y: y, w: 1, h: 1}
		switch {
		case i <= full:
			piece.w, piece.h = 2, 2
		case i <= lastRow:
			piece.w, piece.h = 2, 1
		case i <= lastCol:
			piece.w, piece.h = 1, 2
		}
		res.pieces[i] = piece
	}

	return res, true
}

// Layout for keys like "4-4-<data>". Pieces are taken from the positions the C
// key gives and put where the P key says.
func LayoutA(p, c string, width, height int) (*Layout, bool) {
	src, ok := decodePiecesA(c)
	if !ok {
		return nil, false
	}
	dst, ok := decodePiecesA(p)
	if !ok || src.ndx != dst.ndx || src.ndy != dst.ndy {
		return nil, false
	}

	if !(width >= 64 && height >= 64 && width*height >= minAreaA) {
		return identityLayout(width, height), true
	}

	n := width - width%8
	pw := (n-1)/7 - ((n-1)/7)%8
	e := n - 7*pw
	s := height - height%8
	ph := (s-1)/7 - ((s-1)/7)%8
	u := s - 7*ph

	ts := make([]descramble.Translation, 0, len(src.pieces)+2)
	for i, sp := range src.pieces {
		dp := dst.pieces[i]
		ts = append(ts, descramble.Translation{
			XSrc:   sp.x/2*pw + sp.x%2*e,
			YSrc:   sp.y/2*ph + sp.y%2*u,
			Width:  sp.w/2*pw + sp.w%2*e,
			Height: sp.h/2*ph + sp.h%2*u,
			XDest:  dp.x/2*pw + dp.x%2*e,
			YDest:  dp.y/2*ph + dp.y%2*u,
		})
	}

	l := pw*(src.ndx-1) + e
	v := ph*(src.ndy-1) + u
	if l < width {
		ts = append(ts, descramble.Translation{
			XSrc: l, YSrc: 0, Width: width - l, Height: v, XDest: l, YDest: 0,
		})
	}
	if v < height {
		ts = append(ts, descramble.Translation{
			XSrc: 0, YSrc: v, Width: width, Height: height - v, XDest: 0, YDest: v,
		})
	}

	return &Layout{Width: width, Height: height, Translations: ts}, true
}

func startsWithDigit(s string) bool {
	return s != "" && s[0] >= '0' && s[0] <= '9'
}
