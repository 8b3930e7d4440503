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
	"bytes"
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"
)

// Where and how a title's page metadata and images are served.
type ServerType int

const (
	// Through the sbc*.php API next to the reader.
	ServerTypeSbc ServerType = iota
	// Static files on a CDN.
	ServerTypeDirect
	// A REST-ish endpoint serving the same data as the CDN.
	ServerTypeRest
)

func (t ServerType) String() string {
	switch t {
	case ServerTypeSbc:
		return "sbc"
	case ServerTypeDirect:
		return "direct"
	case ServerTypeRest:
		return "rest"
	}

	return "unknown(" + strconv.Itoa(int(t)) + ")"
}

type ViewMode int

const (
	ViewModeCommercial     ViewMode = 1
	ViewModeNonMemberTrial ViewMode = 2
	ViewModeMemberTrial    ViewMode = 3
)

// What the server strategies need to know to build URLs for one chapter.
type urlContext struct {
	Item *ContentItem
	Cid  string
	// Absolute URL of the content info endpoint that was called.
	ContentInfoURL *url.URL
	// Root of the site. Relative content servers hang off it.
	BaseURL *url.URL
	// u0 through u9 taken from the reader URL.
	KeyParams   url.Values
	HighQuality bool
	// Used as dmytime when the content item has no ContentDate.
	Now string
}

// One implementation per ServerType. Looked up once per chapter through
// strategyFor, never switched on again.
type contentServer interface {
	// URL of the page metadata (the "ttx" and friends).
	MetadataURL(c *urlContext) (*url.URL, error)
	// Strips whatever wraps the JSON in the metadata response.
	Unwrap(body []byte) []byte
	// URL of a single page image, without the fragment.
	ImageURL(c *urlContext, metadata *url.URL, src string, singleQuality bool) (*url.URL, error)
}

func strategyFor(t ServerType) (contentServer, error) {
	switch t {
	case ServerTypeSbc:
		return sbcServer{}, nil
	case ServerTypeDirect:
		return directServer{}, nil
	case ServerTypeRest:
		return restServer{}, nil
	}

	return nil, fmt.Errorf("%w: %d", ErrUnsupportedServerType, int(t))
}

type sbcServer struct{}

func (sbcServer) MetadataURL(c *urlContext) (*url.URL, error) {
	u, err := c.contentsServer()
	if err != nil {
		return nil, err
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/sbcGetCntnt.php"

	q := u.Query()
	q.Set("cid", c.Cid)
	if c.Item.P != "" {
		q.Set("p", c.Item.P)
	}
	q.Set("q", "1")
	q.Set("vm", strconv.Itoa(int(c.Item.ViewMode)))
	if c.Item.ContentDate != "" {
		q.Set("dmytime", c.Item.ContentDate)
	} else {
		q.Set("dmytime", c.Now)
	}
	copyKeyParams(q, c.KeyParams)
	u.RawQuery = q.Encode()

	return u, nil
}

func (sbcServer) Unwrap(body []byte) []byte {
	return body
}

func (sbcServer) ImageURL(c *urlContext, metadata *url.URL, src string, singleQuality bool) (*url.URL, error) {
	u := *metadata
	u.Path = strings.Replace(u.Path, "/sbcGetCntnt.php", "/sbcGetImg.php", 1)

	q := u.Query()
	q.Set("src", src)
	if c.Item.P != "" {
		q.Set("p", c.Item.P)
	}
	if !singleQuality {
		if c.HighQuality {
			q.Set("q", "0")
		} else {
			q.Set("q", "1")
		}
	}
	q.Set("vm", strconv.Itoa(int(c.Item.ViewMode)))
	if c.Item.ContentDate != "" {
		q.Set("dmytime", c.Item.ContentDate)
	}
	copyKeyParams(q, c.KeyParams)
	u.RawQuery = q.Encode()

	return &u, nil
}

type directServer struct{}

func (directServer) MetadataURL(c *urlContext) (*url.URL, error) {
	u, err := c.contentsServer()
	if err != nil {
		return nil, err
	}

	return u.JoinPath("content.js"), nil
}

// The CDN serves JavaScript: DataGet_Content(<JSON>)
func (directServer) Unwrap(body []byte) []byte {
	const prefix = "DataGet_Content("
	if i := bytes.Index(body, []byte(prefix)); i != -1 {
		body = body[i+len(prefix):]
	}
	if i := bytes.LastIndexByte(body, ')'); i != -1 {
		body = body[:i]
	}

	return body
}

func (directServer) ImageURL(c *urlContext, _ *url.URL, src string, singleQuality bool) (*url.URL, error) {
	u, err := c.contentsServer()
	if err != nil {
		return nil, err
	}

	var filename string
	switch {
	case singleQuality:
		filename = "M.jpg"
	case c.HighQuality:
		filename = "M_H.jpg"
	default:
		filename = "M_L.jpg"
	}
	u = u.JoinPath(src, filename)

	if c.Item.ContentDate != "" {
		q := u.Query()
		q.Set("dmytime", c.Item.ContentDate)
		u.RawQuery = q.Encode()
	}

	return u, nil
}

type restServer struct{}

func (restServer) MetadataURL(c *urlContext) (*url.URL, error) {
	u, err := c.contentsServer()
	if err != nil {
		return nil, err
	}

	return u.JoinPath("content"), nil
}

func (restServer) Unwrap(body []byte) []byte {
	return body
}

func (restServer) ImageURL(c *urlContext, _ *url.URL, src string, singleQuality bool) (*url.URL, error) {
	u, err := c.contentsServer()
	if err != nil {
		return nil, err
	}
	u = u.JoinPath("img", src)

	q := u.Query()
	if !singleQuality && !c.HighQuality {
		q.Set("q", "1")
	}
	if c.Item.ContentDate != "" {
		q.Set("dmytime", c.Item.ContentDate)
	}
	copyKeyParams(q, c.KeyParams)
	u.RawQuery = q.Encode()

	return u, nil
}

// ContentsServer is absolute for the direct and REST servers. The SBC server
// gives a path that is appended to the site's base URL.
func (c *urlContext) contentsServer() (*url.URL, error) {
	ref, err := url.Parse(c.Item.ContentsServer)
	if err != nil {
		return nil, err
	}
	if ref.IsAbs() {
		return ref, nil
	}

	base := c.BaseURL
	if base == nil && c.ContentInfoURL != nil {
		base = &url.URL{Scheme: c.ContentInfoURL.Scheme, Host: c.ContentInfoURL.Host, Path: "/"}
	}
	if base == nil {
		return ref, nil
	}
	u := *base
	u.Path = path.Join("/", base.Path, ref.Path)
	u.RawPath = ""
	u.RawQuery = ref.RawQuery
	u.Fragment = ""

	return &u, nil
}

// Copies u0 through u9, the reader's per-user parameters, into q.
func copyKeyParams(q, from url.Values) {
	for i := 0; i < 10; i++ {
		k := "u" + strconv.Itoa(i)
		if v := from.Get(k); v != "" {
			q.Set(k, v)
		}
	}
}
