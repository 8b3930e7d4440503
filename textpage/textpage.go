/*
Renders plain text onto a page image. Used for pages that carry information
instead of artwork, like the link to buy the rest of a chapter.
*/
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
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"
	"strings"
	"sync"

	"github.com/hajimehoshi/bitmapfont/v3"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

const (
	Width       = 1000
	Padding     = 50
	FontSize    = 28
	LineSpacing = 1.5
)

var (
	parsedFont *opentype.Font
	parseOnce  sync.Once
	parseErr   error
)

func newFace() (font.Face, error) {
	parseOnce.Do(func() {
		parsedFont, parseErr = opentype.Parse(goregular.TTF)
	})
	if parseErr != nil {
		return nil, parseErr
	}

	primary, err := opentype.NewFace(parsedFont, &opentype.FaceOptions{
		Size:    FontSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, err
	}

	return newFallbackFace(primary, bitmapfont.Face, FontSize), nil
}

// Renders text as black on white and encodes it as PNG.
func Render(text string) ([]byte, error) {
	img, err := RenderImage(text)
	if err != nil {
		return nil, err
	}

	buf := &bytes.Buffer{}
	if err := png.Encode(buf, img); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func RenderImage(text string) (*image.RGBA, error) {
	face, err := newFace()
	if err != nil {
		return nil, err
	}
	defer face.Close()

	lines := Wrap(face, text, fixed.I(Width-2*Padding))
	lineHeight := int(math.Ceil(FontSize * LineSpacing))
	height := 2*Padding + len(lines)*lineHeight

	img := image.NewRGBA(image.Rect(0, 0, Width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.Black),
		Face: face,
	}
	ascent := face.Metrics().Ascent
	for i, line := range lines {
		d.Dot = fixed.Point26_6{
			X: fixed.I(Padding),
			Y: fixed.I(Padding+i*lineHeight) + ascent,
		}
		d.DrawString(line)
	}

	return img, nil
}

// Splits text into lines no wider than max. Words that don't fit on a line of
// their own are broken wherever they have to be. Newlines in the text are kept.
func Wrap(face font.Face, text string, max fixed.Int26_6) []string {
	var res []string
	for _, paragraph := range strings.Split(text, "\n") {
		var line string
		for _, word := range strings.Fields(paragraph) {
			candidate := word
			if line != "" {
				candidate = line + " " + word
			}
			if font.MeasureString(face, candidate) <= max {
				line = candidate
				continue
			}

			if line != "" {
				res = append(res, line)
				line = ""
			}
			for font.MeasureString(face, word) > max {
				head, tail := breakWord(face, word, max)
				res = append(res, head)
				word = tail
			}
			line = word
		}
		res = append(res, line)
	}

	return res
}

// Takes as many runes off the front of word as fit within max, but always at
// least one.
func breakWord(face font.Face, word string, max fixed.Int26_6) (string, string) {
	runes := []rune(word)
	n := 1
	for n < len(runes) && font.MeasureString(face, string(runes[:n+1])) <= max {
		n++
	}

	return string(runes[:n]), string(runes[n:])
}
