package plugins

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
	"io"
	"net/http"
	"time"

	"github.com/MinoMino/binbdl/cache"
	"github.com/MinoMino/binbdl/descramble"
	"github.com/MinoMino/binbdl/plugins/binb"
)

// Implements descramble.Fetcher on top of an http.Client.
type HTTPFetcher struct {
	Client    *http.Client
	UserAgent string
	// Used to read response bodies. The download manager swaps it for one
	// that counts the bytes.
	Copy func(dst io.Writer, src io.Reader) (int64, error)
	// Extra headers sent with every request.
	Header http.Header
}

func (f *HTTPFetcher) Fetch(url string) ([]byte, error) {
	ua := f.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	req, err := NewGetRequest(url, ua)
	if err != nil {
		return nil, err
	}
	for k, vs := range f.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	log.WithField("url", url).Debug("Fetching...")
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := CheckStatus(resp, ""); err != nil {
		return nil, err
	}

	cp := f.Copy
	if cp == nil {
		cp = io.Copy
	}
	buf := &bytes.Buffer{}
	if _, err := cp(buf, resp.Body); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Returns a copy that reads bodies with cp.
func (f *HTTPFetcher) WithCopy(cp func(dst io.Writer, src io.Reader) (int64, error)) *HTTPFetcher {
	res := *f
	res.Copy = cp
	return &res
}

// Everything a plugin needs from the user's configuration.
type Environment struct {
	Timeout     time.Duration
	UserAgent   string
	HighQuality bool
	Lossless    bool
	JPEGQuality int
	// Nil when caching is off.
	Cache *cache.Cache
}

func DefaultEnvironment() *Environment {
	return &Environment{
		Timeout:     20 * time.Second,
		UserAgent:   DefaultUserAgent,
		HighQuality: true,
		JPEGQuality: descramble.DefaultQuality,
	}
}

func (env *Environment) NewClient() *http.Client {
	return NewHTTPClient(env.Timeout)
}

func (env *Environment) Fetcher(client *http.Client) *HTTPFetcher {
	return &HTTPFetcher{Client: client, UserAgent: env.UserAgent}
}

// A dispatcher set up with every descrambler binbdl knows about.
func (env *Environment) Dispatcher(fetcher descramble.Fetcher) *descramble.Dispatcher {
	d := descramble.NewDispatcher(fetcher, NewRegistry())
	d.Lossless = env.Lossless
	if env.JPEGQuality > 0 {
		d.Quality = env.JPEGQuality
	}

	return d
}

// The SpeedBinb variants first, then the grid permutation.
func NewRegistry() *descramble.Registry {
	reg := descramble.NewRegistry()
	binb.Register(reg)
	reg.Register("grid", descramble.IsGrid, descramble.GridDescrambler{})

	return reg
}
