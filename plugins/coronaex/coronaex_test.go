package coronaex

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
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/MinoMino/binbdl/descramble"
	"github.com/MinoMino/binbdl/plugins"
)

var (
	top    = color.RGBA{0xFF, 0, 0, 0xFF}
	bottom = color.RGBA{0, 0xFF, 0, 0xFF}
)

// Two rows of blocks with the rows swapped.
func scrambledPage(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			if y < 2 {
				img.Set(x, y, bottom)
			} else {
				img.Set(x, y, top)
			}
		}
	}
	buf := &bytes.Buffer{}
	if err := png.Encode(buf, img); err != nil {
		t.Fatal(err)
	}

	return buf.Bytes()
}

func newFakeCorona(t *testing.T, token string) (*CoronaEx, *httptest.Server) {
	page := scrambledPage(t)
	key := (&descramble.Grid{Cols: 1, Rows: 2, Permutation: []byte{1, 0}}).Key()
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	mux.HandleFunc("/episodes/ep1/begin_reading", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Environment-Key") != "testkey" {
			http.Error(w, "no key", http.StatusForbidden)
			return
		}
		if r.Header.Get("Authorization") != "Bearer "+token {
			w.WriteHeader(http.StatusPaymentRequired)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"pages": []map[string]string{
				{"page_image_url": srv.URL + "/img/1.png", "drm_hash": key},
				{"page_image_url": srv.URL + "/img/2.png"},
			},
		})
	})
	mux.HandleFunc("/img/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			http.Error(w, "unexpected credentials", http.StatusBadRequest)
			return
		}
		w.Write(page)
	})

	api, _ := url.Parse(srv.URL)
	ce := &CoronaEx{
		options: []plugins.Option{&plugins.StringOption{K: "Token", V: "secret"}},
		sites:   map[string]string{"corona.example": "testkey"},
		api:     api,
	}

	return ce, srv
}

func TestResolve(t *testing.T) {
	ce, _ := newFakeCorona(t, "secret")
	env := plugins.DefaultEnvironment()
	env.Lossless = true
	ch, err := ce.Resolve(env, "https://corona.example/episodes/ep1")
	if err != nil {
		t.Fatal(err)
	}
	if ch.Dir != "corona.example ep1" {
		t.Errorf("dir = %q", ch.Dir)
	}
	if len(ch.Pages) != 2 {
		t.Fatalf("got %d pages, want 2", len(ch.Pages))
	}
	if len(ch.Fetcher.Header) != 0 {
		t.Errorf("page fetcher carries API headers: %v", ch.Fetcher.Header)
	}

	d := env.Dispatcher(ch.Fetcher)
	data, err := d.Page(ch.Pages[0].URL)
	if err != nil {
		t.Fatal(err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("page 1: %v", err)
	}
	r, g, _, _ := img.At(0, 0).RGBA()
	if r != 0xFFFF || g != 0 {
		t.Error("page 1 was not descrambled")
	}
	if _, err := d.Page(ch.Pages[1].URL); err != nil {
		t.Errorf("page 2: %v", err)
	}
}

func TestSubscriptionRequired(t *testing.T) {
	ce, _ := newFakeCorona(t, "other")
	_, err := ce.Resolve(plugins.DefaultEnvironment(), "https://corona.example/episodes/ep1")
	if !errors.Is(err, ErrSubscriptionRequired) {
		t.Fatalf("err = %v, want ErrSubscriptionRequired", err)
	}
}

func TestCanHandle(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://to-corona-ex.com/episodes/abc123", true},
		{"https://en.to-corona-ex.com/episodes/abc123", true},
		{"https://to-corona-ex.com/comics/abc123", false},
		{"https://example.com/episodes/abc123", false},
	}
	for _, tt := range tests {
		if got := Plugin.CanHandle(tt.url); got != tt.want {
			t.Errorf("CanHandle(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestEnvironmentKeyPerSite(t *testing.T) {
	var mu sync.Mutex
	var keys []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		keys = append(keys, r.Header.Get("X-Api-Environment-Key"))
		mu.Unlock()
		json.NewEncoder(w).Encode(map[string]interface{}{
			"pages": []map[string]string{{"page_image_url": "https://img.example/1.png"}},
		})
	}))
	defer srv.Close()

	api, _ := url.Parse(srv.URL)
	ce := &CoronaEx{
		options: []plugins.Option{&plugins.StringOption{K: "Token"}},
		sites:   Plugin.sites,
		api:     api,
	}
	tests := []struct {
		url, key string
	}{
		{"https://to-corona-ex.com/episodes/ep1", Plugin.sites["to-corona-ex.com"]},
		{"https://en.to-corona-ex.com/episodes/ep2", Plugin.sites["en.to-corona-ex.com"]},
	}
	for i, test := range tests {
		if _, err := ce.Resolve(plugins.DefaultEnvironment(), test.url); err != nil {
			t.Fatalf("%s: %v", test.url, err)
		}
		mu.Lock()
		got := keys[len(keys)-1]
		mu.Unlock()
		if got != test.key {
			t.Errorf("request %d for %s sent key %q, want %q", i, test.url, got, test.key)
		}
	}
	if tests[0].key == tests[1].key {
		t.Error("both sites share a key")
	}
}
