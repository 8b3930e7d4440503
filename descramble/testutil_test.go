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
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"testing"
)

// Fills each block of a cols x rows grid with its own flat color.
func blockImage(w, h, cols, rows int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	bw, bh := w/cols, h/rows
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			col, row := x/bw, y/bh
			if col >= cols || row >= rows {
				img.Set(x, y, color.RGBA{0xFF, 0xFF, 0xFF, 0xFF})
				continue
			}
			n := row*cols + col
			img.Set(x, y, blockColor(n))
		}
	}

	return img
}

func blockColor(n int) color.RGBA {
	return color.RGBA{uint8(40 * (n + 1)), uint8(255 - 30*n), uint8(17 * n), 0xFF}
}

// A gradient that makes any misplaced pixel obvious.
func gradientImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x % 256), uint8(y % 256), uint8((x * y) % 256), 0xFF})
		}
	}

	return img
}

func assertSameImage(t *testing.T, got, want image.Image) {
	t.Helper()
	if got.Bounds().Dx() != want.Bounds().Dx() || got.Bounds().Dy() != want.Bounds().Dy() {
		t.Fatalf("size mismatch: got %v want %v", got.Bounds(), want.Bounds())
	}
	gb, wb := got.Bounds(), want.Bounds()
	for y := 0; y < wb.Dy(); y++ {
		for x := 0; x < wb.Dx(); x++ {
			gr, gg, gbl, ga := got.At(gb.Min.X+x, gb.Min.Y+y).RGBA()
			wr, wg, wbl, wa := want.At(wb.Min.X+x, wb.Min.Y+y).RGBA()
			if gr != wr || gg != wg || gbl != wbl || ga != wa {
				t.Fatalf("pixel (%d,%d) differs", x, y)
			}
		}
	}
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	if err := png.Encode(buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}

	return buf.Bytes()
}

// Serves canned bodies by URL and records what was asked for.
type fakeFetcher struct {
	bodies    map[string][]byte
	requested []string
}

func (f *fakeFetcher) Fetch(url string) ([]byte, error) {
	f.requested = append(f.requested, url)
	if b, ok := f.bodies[url]; ok {
		return b, nil
	}

	return nil, fmt.Errorf("no body for %s", url)
}
