package descramble

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

	"golang.org/x/image/draw"
)

var reCoords = regexp.MustCompile(`^i:(\d+),(\d+)\+(\d+),(\d+)>(\d+),(\d+)$`)

// Copy the rectangle at (XSrc, YSrc) of the given size to (XDest, YDest).
type Translation struct {
	XSrc, YSrc    int
	Width, Height int
	XDest, YDest  int
}

func (t Translation) srcRect() image.Rectangle {
	return image.Rect(t.XSrc, t.YSrc, t.XSrc+t.Width, t.YSrc+t.Height)
}

func (t Translation) dstRect() image.Rectangle {
	return image.Rect(t.XDest, t.YDest, t.XDest+t.Width, t.YDest+t.Height)
}

// Parses a ptimg coordinate string such as "i:10,20+100,150>5,5".
func ParseTranslation(coords string) (Translation, error) {
	m := reCoords.FindStringSubmatch(coords)
	if m == nil {
		log.WithField("coords", coords).Debug("Coordinates did not match the expected format.")
		return Translation{}, ErrInvalidCoords
	}

	var n [6]int
	for i := range n {
		v, err := strconv.Atoi(m[i+1])
		if err != nil {
			return Translation{}, ErrInvalidCoords
		}
		n[i] = v
	}

	return Translation{
		XSrc:   n[0],
		YSrc:   n[1],
		Width:  n[2],
		Height: n[3],
		XDest:  n[4],
		YDest:  n[5],
	}, nil
}

// Copies every translation from src onto dst in order, so later entries win
// where they overlap. Rectangles are clipped to both images.
func CopyRectangles(dst draw.Image, src image.Image, ts []Translation) {
	origin := src.Bounds().Min
	for _, t := range ts {
		if t.Width <= 0 || t.Height <= 0 {
			continue
		}
		draw.Draw(dst, t.dstRect(), src, origin.Add(t.srcRect().Min), draw.Src)
	}
}

// Makes an RGBA copy of img anchored at (0, 0).
func Clone(img image.Image) *image.RGBA {
	b := img.Bounds()
	res := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(res, res.Bounds(), img, b.Min, draw.Src)

	return res
}

// Rectangle-copy reconstruction. The output has the source's dimensions and
// starts out as a copy of it, so anything not covered by a translation is
// left as it was.
func RectangleCopy(src image.Image, ts []Translation) *image.RGBA {
	res := Clone(src)
	CopyRectangles(res, src, ts)

	return res
}
