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
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/MinoMino/binbdl/cache"
	"github.com/MinoMino/binbdl/plugins/binb"
)

func TestHTTPFetcherHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, r.Header.Get("User-Agent")+"|"+r.Header.Get("Authorization"))
	}))
	defer srv.Close()

	f := &HTTPFetcher{Client: srv.Client(), UserAgent: "binbdl-test", Header: http.Header{}}
	f.Header.Set("Authorization", "Bearer abc")
	data, err := f.Fetch(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if got := string(data); got != "binbdl-test|Bearer abc" {
		t.Errorf("server saw %q", got)
	}

	var copied int64
	counted := f.WithCopy(func(dst io.Writer, src io.Reader) (int64, error) {
		n, err := io.Copy(dst, src)
		copied += n
		return n, err
	})
	if _, err := counted.Fetch(srv.URL); err != nil {
		t.Fatal(err)
	}
	if copied != int64(len(data)) || f.Copy != nil {
		t.Errorf("copied %d bytes through the copy, original Copy set: %v", copied, f.Copy != nil)
	}
}

func TestHTTPFetcherStatus(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := DefaultEnvironment().Fetcher(srv.Client()).Fetch(srv.URL + "/missing.jpg")
	var statusErr *ErrHTTPStatusCode
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusNotFound {
		t.Fatalf("err = %v, want a 404 status error", err)
	}
}

func TestCachedPages(t *testing.T) {
	c, err := cache.Open(filepath.Join(t.TempDir(), "pages.db"), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	env := DefaultEnvironment()
	env.Cache = c
	calls := 0
	resolve := func() (*PageSet, error) {
		calls++
		return &PageSet{Dir: "d", Pages: []binb.PageLocator{{Index: 0, URL: "https://example.com/1.jpg"}}}, nil
	}

	for i := 0; i < 2; i++ {
		set, err := CachedPages(env, "test:1", resolve)
		if err != nil {
			t.Fatal(err)
		}
		if set.Dir != "d" || len(set.Pages) != 1 || set.Pages[0].URL != "https://example.com/1.jpg" {
			t.Fatalf("unexpected page set %+v", set)
		}
	}
	if calls != 1 {
		t.Errorf("resolve called %d times, want 1", calls)
	}

	_, err = CachedPages(env, "test:2", func() (*PageSet, error) { return &PageSet{Dir: "e"}, nil })
	if !errors.Is(err, ErrNoPages) {
		t.Errorf("err = %v, want ErrNoPages", err)
	}
}

func TestDirectoryName(t *testing.T) {
	tests := []struct {
		title, want string
	}{
		{"ＡＢＣ 1", "ABC 1"},
		{"a/b:c", "a／b：c"},
		{"  ", "fallback"},
		{"trailing...", "trailing"},
	}
	for _, tt := range tests {
		if got := DirectoryName(tt.title, "fallback"); got != tt.want {
			t.Errorf("DirectoryName(%q) = %q, want %q", tt.title, got, tt.want)
		}
	}
}

func TestNewChapter(t *testing.T) {
	set := &PageSet{Dir: "d", Pages: []binb.PageLocator{{Index: 0, URL: "https://example.com/1.jpg"}}}
	f := DefaultEnvironment().Fetcher(nil)
	ch := NewChapter(set, f)
	if ch.Dir != "d" || len(ch.Pages) != 1 || ch.Fetcher != f {
		t.Errorf("got %+v", ch)
	}
}
