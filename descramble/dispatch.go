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
	"image"
	"image/jpeg"
	"image/png"
	"net/url"

	_ "golang.org/x/image/webp"
	_ "image/gif"
)

// Quality used when re-encoding descrambled pages as JPEG.
const DefaultQuality = 90

// Gets the body of a URL. The URL never has a fragment.
type Fetcher interface {
	Fetch(url string) ([]byte, error)
}

// Takes page locators and returns finished page images. The locator's
// fragment decides what happens to the fetched image.
type Dispatcher struct {
	Fetcher  Fetcher
	Registry *Registry
	// JPEG quality for re-encoded pages.
	Quality int
	// Re-encode as PNG instead.
	Lossless bool
}

func NewDispatcher(fetcher Fetcher, registry *Registry) *Dispatcher {
	if registry == nil {
		registry = NewRegistry()
	}

	return &Dispatcher{
		Fetcher:  fetcher,
		Registry: registry,
		Quality:  DefaultQuality,
	}
}

// Fetches the page behind a locator and undoes whatever scrambling it has.
func (d *Dispatcher) Page(locator string) ([]byte, error) {
	u, err := url.Parse(locator)
	if err != nil {
		return nil, err
	}
	fragment := u.Fragment
	u.Fragment = ""
	u.RawFragment = ""

	if IsPtImgManifest(u.Path) {
		return d.ptimg(u)
	}

	data, err := d.Fetcher.Fetch(u.String())
	if err != nil {
		return nil, err
	}

	p, ok := ParseFragment(fragment)
	if !ok {
		return data, nil
	}

	return d.Descramble(data, p)
}

// Descrambles an already fetched page.
func (d *Dispatcher) Descramble(data []byte, p Params) ([]byte, error) {
	if p.Unscrambled() {
		return data, nil
	}

	name, desc, err := d.Registry.Select(p)
	if err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	log.WithField("descrambler", name).Debug("Descrambling page...")

	res, err := desc.Descramble(img, p)
	if err != nil {
		return nil, err
	}

	return d.Encode(res)
}

func (d *Dispatcher) ptimg(manifestURL *url.URL) ([]byte, error) {
	log.WithField("url", manifestURL.String()).Debug("Getting ptimg manifest...")
	data, err := d.Fetcher.Fetch(manifestURL.String())
	if err != nil {
		return nil, err
	}
	meta, err := ParsePtImg(data)
	if err != nil {
		return nil, err
	}

	ref, err := url.Parse(meta.Resource.Src)
	if err != nil {
		return nil, err
	}
	imgData, err := d.Fetcher.Fetch(manifestURL.ResolveReference(ref).String())
	if err != nil {
		return nil, err
	}
	if len(meta.Translations) == 0 {
		return imgData, nil
	}

	img, _, err := image.Decode(bytes.NewReader(imgData))
	if err != nil {
		return nil, err
	}

	return d.Encode(RectangleCopy(img, meta.Translations))
}

func (d *Dispatcher) Encode(img image.Image) ([]byte, error) {
	buf := &bytes.Buffer{}
	if d.Lossless {
		enc := png.Encoder{}
		if err := enc.Encode(buf, img); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	quality := d.Quality
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
