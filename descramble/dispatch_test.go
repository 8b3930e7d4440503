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
	"errors"
	"image"
	"image/png"
	"testing"
)

type recordingDescrambler struct {
	called int
}

func (r *recordingDescrambler) Descramble(img image.Image, p Params) (image.Image, error) {
	r.called++
	return img, nil
}

func startsWith(c byte) Matcher {
	return func(p Params) bool {
		return p.Scheme == SchemePtBinb && len(p.P) > 0 && len(p.C) > 0 && p.P[0] == c && p.C[0] == c
	}
}

func TestDispatcherUnscrambledPassthrough(t *testing.T) {
	body := []byte("not even an image")
	f := &fakeFetcher{bodies: map[string][]byte{"https://cdn.example/1.jpg": body}}
	d := NewDispatcher(f, nil)

	got, err := d.Page("https://cdn.example/1.jpg#" + PtBinbFragment("", ""))
	if err != nil {
		t.Fatalf("Page: %v", err)
	}
	if !bytes.Equal(got, body) {
		t.Error("expected the fetched bytes untouched")
	}
	if len(f.requested) != 1 || f.requested[0] != "https://cdn.example/1.jpg" {
		t.Errorf("requested %v; fragment must not be sent", f.requested)
	}
}

func TestDispatcherNoFragmentPassthrough(t *testing.T) {
	body := []byte{1, 2, 3}
	f := &fakeFetcher{bodies: map[string][]byte{"https://cdn.example/a.png?x=1": body}}
	got, err := NewDispatcher(f, nil).Page("https://cdn.example/a.png?x=1")
	if err != nil {
		t.Fatalf("Page: %v", err)
	}
	if !bytes.Equal(got, body) {
		t.Error("expected the fetched bytes untouched")
	}
}

func TestDispatcherSelection(t *testing.T) {
	f, a := &recordingDescrambler{}, &recordingDescrambler{}
	reg := NewRegistry()
	reg.Register("F", startsWith('='), f)
	reg.Register("A", startsWith('1'), a)
	d := NewDispatcher(nil, reg)
	d.Lossless = true
	data := encodePNG(t, gradientImage(8, 8))

	if _, err := d.Descramble(data, Params{Scheme: SchemePtBinb, P: "=1", C: "=2"}); err != nil {
		t.Fatalf("Descramble F: %v", err)
	}
	if _, err := d.Descramble(data, Params{Scheme: SchemePtBinb, P: "1-1-aa", C: "1-1-aa"}); err != nil {
		t.Fatalf("Descramble A: %v", err)
	}
	if f.called != 1 || a.called != 1 {
		t.Errorf("calls F=%d A=%d, want 1 each", f.called, a.called)
	}

	_, err := d.Descramble(data, Params{Scheme: SchemePtBinb, P: "=1", C: "1-1-aa"})
	var selErr *DescramblerSelectionError
	if !errors.As(err, &selErr) {
		t.Fatalf("error = %v, want DescramblerSelectionError", err)
	}
	if !errors.Is(err, ErrNoDescrambler) {
		t.Error("selection error should unwrap to ErrNoDescrambler")
	}
}

func TestDispatcherGrid(t *testing.T) {
	src := blockImage(40, 40, 2, 2)
	g := &Grid{Cols: 2, Rows: 2, Permutation: []byte{3, 2, 1, 0}}
	f := &fakeFetcher{bodies: map[string][]byte{"https://cdn.example/p/1.png": encodePNG(t, src)}}
	reg := NewRegistry()
	reg.Register("grid", IsGrid, GridDescrambler{})
	d := NewDispatcher(f, reg)
	d.Lossless = true

	out, err := d.Page("https://cdn.example/p/1.png#" + GridFragment(g.Key()))
	if err != nil {
		t.Fatalf("Page: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("png.Decode: %v", err)
	}
	assertSameImage(t, img, g.Apply(src))
}

func TestDispatcherPtImg(t *testing.T) {
	src := blockImage(40, 20, 2, 1)
	manifest := []byte(`{
		"ptimg-version": 1,
		"resources": {"i": {"src": "0001.jpg", "width": 40, "height": 20}},
		"views": [{"width": 40, "height": 20, "coords": [
			"i:0,0+20,20>20,0",
			"i:20,0+20,20>0,0"
		]}]
	}`)
	f := &fakeFetcher{bodies: map[string][]byte{
		"https://cdn.example/book/0001.ptimg.json": manifest,
		"https://cdn.example/book/0001.jpg":        encodePNG(t, src),
	}}
	d := NewDispatcher(f, nil)
	d.Lossless = true

	out, err := d.Page("https://cdn.example/book/0001.ptimg.json")
	if err != nil {
		t.Fatalf("Page: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("png.Decode: %v", err)
	}
	want := RectangleCopy(src, []Translation{
		{0, 0, 20, 20, 20, 0},
		{20, 0, 20, 20, 0, 0},
	})
	assertSameImage(t, img, want)
}

func TestDispatcherPtImgWithoutTranslations(t *testing.T) {
	raw := []byte("raw image bytes")
	f := &fakeFetcher{bodies: map[string][]byte{
		"https://cdn.example/b/1.ptimg.json": []byte(`{"ptimg-version":1,"resources":{"i":{"src":"img/1.jpg"}},"views":[{"coords":[]}]}`),
		"https://cdn.example/b/img/1.jpg":    raw,
	}}
	out, err := NewDispatcher(f, nil).Page("https://cdn.example/b/1.ptimg.json")
	if err != nil {
		t.Fatalf("Page: %v", err)
	}
	if !bytes.Equal(out, raw) {
		t.Error("expected the referenced image untouched")
	}
}

func TestParseFragment(t *testing.T) {
	tests := []struct {
		in   string
		want Params
		ok   bool
	}{
		{"ptbinb,=8-8-2-abc,=8-8+2-def", Params{Scheme: SchemePtBinb, P: "=8-8-2-abc", C: "=8-8+2-def"}, true},
		{"ptbinb,,", Params{Scheme: SchemePtBinb}, true},
		{"grid,AAEC", Params{Scheme: SchemeGrid, Key: "AAEC"}, true},
		{"grid,a,b", Params{Scheme: SchemeGrid, Key: "a,b"}, true},
		{"ptbinb,onlyone", Params{}, false},
		{"something", Params{}, false},
		{"", Params{}, false},
	}
	for _, tt := range tests {
		got, ok := ParseFragment(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ParseFragment(%q) = %+v, %v; want %+v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
		if ok && got.Fragment() != tt.in {
			t.Errorf("Fragment() = %q, want %q", got.Fragment(), tt.in)
		}
	}
}
