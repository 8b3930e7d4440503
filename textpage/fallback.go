package textpage

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
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

/*
Draws runes the primary face lacks (kana, kanji, full-width punctuation) with a
bitmap face scaled up to roughly the same size. Scaled glyphs are cached, so
like the faces it wraps, it isn't safe for concurrent use.
*/
type fallbackFace struct {
	primary, fallback font.Face
	scale             float64

	glyphs map[rune]*image.Alpha
}

func newFallbackFace(primary, fallback font.Face, size float64) *fallbackFace {
	return &fallbackFace{
		primary:  primary,
		fallback: fallback,
		scale:    size / float64(fallback.Metrics().Height.Ceil()),
		glyphs:   make(map[rune]*image.Alpha),
	}
}

func (f *fallbackFace) hasPrimary(r rune) bool {
	_, ok := f.primary.GlyphAdvance(r)
	return ok
}

func (f *fallbackFace) scaleFixed(v fixed.Int26_6) fixed.Int26_6 {
	return fixed.Int26_6(math.Round(float64(v) * f.scale))
}

func (f *fallbackFace) scaledGlyph(r rune) (*image.Alpha, fixed.Int26_6, bool) {
	adv, ok := f.fallback.GlyphAdvance(r)
	if !ok {
		return nil, 0, false
	}
	if g, ok := f.glyphs[r]; ok {
		return g, f.scaleFixed(adv), true
	}

	dr, mask, maskp, _, ok := f.fallback.Glyph(fixed.Point26_6{}, r)
	if !ok {
		return nil, 0, false
	}
	w := int(math.Ceil(float64(dr.Dx()) * f.scale))
	h := int(math.Ceil(float64(dr.Dy()) * f.scale))
	g := image.NewAlpha(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(g, g.Bounds(), mask, image.Rectangle{Min: maskp, Max: maskp.Add(dr.Size())}, draw.Src, nil)
	f.glyphs[r] = g

	return g, f.scaleFixed(adv), true
}

func (f *fallbackFace) Glyph(dot fixed.Point26_6, r rune) (image.Rectangle, image.Image, image.Point, fixed.Int26_6, bool) {
	if f.hasPrimary(r) {
		return f.primary.Glyph(dot, r)
	}
	g, adv, ok := f.scaledGlyph(r)
	if !ok {
		return f.primary.Glyph(dot, r)
	}

	top := (dot.Y - f.scaleFixed(f.fallback.Metrics().Ascent)).Round()
	dr := g.Bounds().Add(image.Pt(dot.X.Round(), top))
	return dr, g, image.Point{}, adv, true
}

func (f *fallbackFace) GlyphBounds(r rune) (fixed.Rectangle26_6, fixed.Int26_6, bool) {
	if f.hasPrimary(r) {
		return f.primary.GlyphBounds(r)
	}
	b, adv, ok := f.fallback.GlyphBounds(r)
	if !ok {
		return f.primary.GlyphBounds(r)
	}

	return fixed.Rectangle26_6{
		Min: fixed.Point26_6{X: f.scaleFixed(b.Min.X), Y: f.scaleFixed(b.Min.Y)},
		Max: fixed.Point26_6{X: f.scaleFixed(b.Max.X), Y: f.scaleFixed(b.Max.Y)},
	}, f.scaleFixed(adv), true
}

func (f *fallbackFace) GlyphAdvance(r rune) (fixed.Int26_6, bool) {
	if f.hasPrimary(r) {
		return f.primary.GlyphAdvance(r)
	}
	if adv, ok := f.fallback.GlyphAdvance(r); ok {
		return f.scaleFixed(adv), true
	}

	return f.primary.GlyphAdvance(r)
}

func (f *fallbackFace) Kern(r0, r1 rune) fixed.Int26_6 {
	if f.hasPrimary(r0) && f.hasPrimary(r1) {
		return f.primary.Kern(r0, r1)
	}

	return 0
}

func (f *fallbackFace) Metrics() font.Metrics {
	return f.primary.Metrics()
}

// The fallback face is shared, so only the primary one is closed.
func (f *fallbackFace) Close() error {
	return f.primary.Close()
}
