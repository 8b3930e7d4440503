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
	"encoding/base64"
	"image"
	"strings"

	"github.com/MinoMino/binbdl/logger"
	"golang.org/x/image/draw"
)

// An image cut into Cols x Rows blocks. Destination block d gets the
// content of source block Permutation[d].
type Grid struct {
	Cols, Rows  int
	Permutation []byte
}

func (g *Grid) blocks() int {
	return g.Cols * g.Rows
}

// Decodes a grid key: base64 of [cols, rows, permutation...].
func ParseGridKey(key string) (*Grid, error) {
	key = strings.TrimSpace(key)
	data, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		// Some servers hand out the URL-safe alphabet without padding.
		if data, err = base64.RawURLEncoding.DecodeString(strings.TrimRight(key, "=")); err != nil {
			return nil, ErrInvalidGrid
		}
	}
	if len(data) < 2 {
		return nil, ErrInvalidGrid
	}

	g := &Grid{
		Cols:        int(data[0]),
		Rows:        int(data[1]),
		Permutation: data[2:],
	}
	if err := g.Validate(); err != nil {
		log.WithFields(logger.Fields{
			"cols": g.Cols,
			"rows": g.Rows,
			"len":  len(g.Permutation),
		}).Debug("Grid key failed validation.")
		return nil, err
	}

	return g, nil
}

// Encodes the grid the way ParseGridKey expects it.
func (g *Grid) Key() string {
	data := make([]byte, 0, 2+len(g.Permutation))
	data = append(data, byte(g.Cols), byte(g.Rows))
	data = append(data, g.Permutation...)

	return base64.StdEncoding.EncodeToString(data)
}

// Checks the dimensions and that every entry points at a block in the grid.
// Duplicates are allowed; the result just won't be a clean reconstruction.
func (g *Grid) Validate() error {
	n := g.blocks()
	if g.Cols <= 0 || g.Rows <= 0 || len(g.Permutation) != n {
		return ErrInvalidGrid
	}
	for _, s := range g.Permutation {
		if int(s) >= n {
			return ErrInvalidGrid
		}
	}

	return nil
}

// Runs the permutation over src. Block sizes are truncated, and the strips
// along the right and bottom edges that don't fill a block are left as they
// were in the source.
func (g *Grid) Apply(src image.Image) *image.RGBA {
	res := Clone(src)
	b := src.Bounds()
	n := g.blocks()
	if n <= 0 {
		return res
	}
	bw := b.Dx() / g.Cols
	bh := b.Dy() / g.Rows
	if bw == 0 || bh == 0 {
		return res
	}

	for d := 0; d < n && d < len(g.Permutation); d++ {
		s := int(g.Permutation[d])
		if s >= n {
			continue
		}
		srcX := (s % g.Cols) * bw
		srcY := (s / g.Cols) * bh
		dstX := (d % g.Cols) * bw
		dstY := (d / g.Cols) * bh
		draw.Draw(res, image.Rect(dstX, dstY, dstX+bw, dstY+bh), src, b.Min.Add(image.Pt(srcX, srcY)), draw.Src)
	}

	return res
}

// Returns the inverse permutation, if the grid is a true permutation.
func (g *Grid) Inverse() (*Grid, bool) {
	n := g.blocks()
	if len(g.Permutation) != n {
		return nil, false
	}
	inv := make([]byte, n)
	seen := make([]bool, n)
	for i, s := range g.Permutation {
		if int(s) >= n || seen[s] {
			return nil, false
		}
		seen[s] = true
		inv[s] = byte(i)
	}

	return &Grid{Cols: g.Cols, Rows: g.Rows, Permutation: inv}, true
}

// Descrambler for the "grid" fragment scheme.
type GridDescrambler struct{}

func (GridDescrambler) Descramble(img image.Image, p Params) (image.Image, error) {
	g, err := ParseGridKey(p.Key)
	if err != nil {
		return nil, err
	}

	return g.Apply(img), nil
}

func IsGrid(p Params) bool {
	return p.Scheme == SchemeGrid
}
