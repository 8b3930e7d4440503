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
	"math/rand"
	"testing"
)

func TestGridQuadrants(t *testing.T) {
	src := blockImage(100, 80, 2, 2)
	g := &Grid{Cols: 2, Rows: 2, Permutation: []byte{3, 2, 1, 0}}
	got := g.Apply(src)

	// Destination block d shows source block Permutation[d].
	tests := []struct {
		name string
		x, y int
		want int
	}{
		{"top-left", 10, 10, 3},
		{"top-right", 60, 10, 2},
		{"bottom-left", 10, 50, 1},
		{"bottom-right", 60, 50, 0},
	}
	for _, tt := range tests {
		if c := got.RGBAAt(tt.x, tt.y); c != blockColor(tt.want) {
			t.Errorf("%s = %v, want block %d", tt.name, c, tt.want)
		}
	}
}

func TestGridRoundTrip(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	for _, dims := range [][2]int{{2, 2}, {4, 3}, {8, 8}} {
		cols, rows := dims[0], dims[1]
		perm := make([]byte, cols*rows)
		for i, v := range rnd.Perm(cols * rows) {
			perm[i] = byte(v)
		}
		g := &Grid{Cols: cols, Rows: rows, Permutation: perm}
		inv, ok := g.Inverse()
		if !ok {
			t.Fatalf("%dx%d: no inverse", cols, rows)
		}

		src := gradientImage(cols*16, rows*12)
		assertSameImage(t, inv.Apply(g.Apply(src)), src)
	}
}

func TestGridKeepsRemainderStrips(t *testing.T) {
	src := gradientImage(103, 81)
	g := &Grid{Cols: 2, Rows: 2, Permutation: []byte{3, 2, 1, 0}}
	got := g.Apply(src)

	// Right and bottom strips that don't make up a full block.
	for _, p := range [][2]int{{102, 10}, {102, 40}, {10, 80}, {102, 80}} {
		if got.RGBAAt(p[0], p[1]) != src.RGBAAt(p[0], p[1]) {
			t.Errorf("pixel %v changed", p)
		}
	}
}

func TestParseGridKey(t *testing.T) {
	want := &Grid{Cols: 3, Rows: 2, Permutation: []byte{5, 4, 3, 2, 1, 0}}
	got, err := ParseGridKey(want.Key())
	if err != nil {
		t.Fatalf("ParseGridKey: %v", err)
	}
	if got.Cols != 3 || got.Rows != 2 || string(got.Permutation) != string(want.Permutation) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestParseGridKeyInvalid(t *testing.T) {
	tests := map[string]string{
		"not base64":         "!!!",
		"too short":          (&Grid{Cols: 1}).Key()[:2],
		"length mismatch":    (&Grid{Cols: 2, Rows: 2, Permutation: []byte{0, 1, 2}}).Key(),
		"entry out of range": (&Grid{Cols: 2, Rows: 1, Permutation: []byte{0, 2}}).Key(),
		"zero columns":       (&Grid{Cols: 0, Rows: 1}).Key(),
	}
	for name, key := range tests {
		if _, err := ParseGridKey(key); err != ErrInvalidGrid {
			t.Errorf("%s: error = %v, want ErrInvalidGrid", name, err)
		}
	}
}

func TestGridInverseRejectsDuplicates(t *testing.T) {
	g := &Grid{Cols: 2, Rows: 1, Permutation: []byte{0, 0}}
	if _, ok := g.Inverse(); ok {
		t.Error("expected no inverse for a non-injective permutation")
	}
}
