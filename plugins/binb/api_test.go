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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MinoMino/binbdl/descramble"
)

type httpFetcher struct{}

func (httpFetcher) Fetch(u string) ([]byte, error) {
	r, err := http.Get(u)
	if err != nil {
		return nil, err
	}
	defer r.Body.Close()
	if r.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", r.StatusCode)
	}

	return io.ReadAll(r.Body)
}

const testTtx = `<t-case><t-img src="pages/0001.jpg"></t-img><t-img src="pages/0002.jpg"></t-img></t-case>` +
	`<t-case><t-img src="pages/9999.jpg"></t-img></t-case>`

// A SpeedBinb backend serving one chapter.
type fakeBinb struct {
	result        int
	noItems       bool
	serverType    ServerType
	viewMode      ViewMode
	ptbl, ctbl    string
	contentResult int

	srv         *httptest.Server
	mu          sync.Mutex
	infoQueries []url.Values
}

func newFakeBinb(t *testing.T) *fakeBinb {
	fb := &fakeBinb{
		result:        1,
		serverType:    ServerTypeRest,
		viewMode:      ViewModeNonMemberTrial,
		ptbl:          `["=P0","=P1"]`,
		ctbl:          `["=C0","=C1"]`,
		contentResult: 1,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/bib-api/bibGetCntntInfo.php", fb.contentInfo)
	mux.HandleFunc("/cdn/content", fb.content)
	mux.HandleFunc("/cdn/content.js", fb.content)
	mux.HandleFunc("/sbc/sbcGetCntnt.php", fb.content)
	fb.srv = httptest.NewServer(mux)
	t.Cleanup(fb.srv.Close)

	return fb
}

func (fb *fakeBinb) contentInfo(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	fb.mu.Lock()
	fb.infoQueries = append(fb.infoQueries, q)
	fb.mu.Unlock()
	cid, k := q.Get("cid"), q.Get("k")

	server := fb.srv.URL + "/cdn"
	if fb.serverType == ServerTypeSbc {
		server = "sbc/"
	}
	items := []map[string]interface{}{{
		"ContentID":      cid,
		"ContentsServer": server,
		"ServerType":     int(fb.serverType),
		"Ptbl":           encodeTable(cid, k, fb.ptbl),
		"Ctbl":           encodeTable(cid, k, fb.ctbl),
		"ViewMode":       int(fb.viewMode),
		"ShopURL":        "https://shop.example/1",
		"Title":          "Test Title",
	}}
	if fb.noItems {
		items = items[:0]
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"result": fb.result,
		"items":  items,
	})
}

func (fb *fakeBinb) content(w http.ResponseWriter, r *http.Request) {
	body, _ := json.Marshal(map[string]interface{}{
		"result": fb.contentResult,
		"ttx":    testTtx,
	})
	if strings.HasSuffix(r.URL.Path, ".js") {
		fmt.Fprintf(w, "DataGet_Content(%s)", body)
		return
	}
	w.Write(body)
}

func (fb *fakeBinb) chapter(t *testing.T) Chapter {
	return Chapter{
		ID:              "c1",
		ContentInfoURL:  mustParse(t, fb.srv.URL+"/bib-api/bibGetCntntInfo.php"),
		ReaderURL:       mustParse(t, "https://reader.example/viewer?cid=c1&u0=abc"),
		PurchaseEnabled: true,
	}
}

func newTestResolver() *Resolver {
	r := NewResolver(httpFetcher{}, false)
	r.Now = func() time.Time { return time.UnixMilli(1700000000000) }

	return r
}

func TestResolveRest(t *testing.T) {
	fb := newFakeBinb(t)
	pages, item, err := newTestResolver().Resolve(nil, fb.chapter(t))
	if err != nil {
		t.Fatal(err)
	}

	if item.Title != "Test Title" || item.ServerType != ServerTypeRest {
		t.Errorf("item: got %+v", item)
	}
	fb.mu.Lock()
	queries := fb.infoQueries
	fb.mu.Unlock()
	if len(queries) != 1 {
		t.Fatalf("got %d content info calls", len(queries))
	}
	q := queries[0]
	if q.Get("cid") != "c1" || len(q.Get("k")) != 32 || q.Get("u0") != "abc" || q.Get("dmytime") != "1700000000000" {
		t.Errorf("content info query: got %v", q)
	}

	if len(pages) != 3 {
		t.Fatalf("got %d pages, want 3", len(pages))
	}
	ptbl, ctbl := []string{"=P0", "=P1"}, []string{"=C0", "=C1"}
	for i, src := range []string{"pages/0001.jpg", "pages/0002.jpg"} {
		u := mustParse(t, pages[i].URL)
		kp := DetermineKeyPair(src, ptbl, ctbl)
		if u.Fragment != descramble.PtBinbFragment(kp.P, kp.C) {
			t.Errorf("page %d: got fragment %q", i, u.Fragment)
		}
		u.Fragment = ""
		if want := fb.srv.URL + "/cdn/img/" + src + "?q=1&u0=abc"; u.String() != want {
			t.Errorf("page %d: got %q, want %q", i, u, want)
		}
		if pages[i].Index != i || pages[i].Text != "" {
			t.Errorf("page %d: got %+v", i, pages[i])
		}
	}

	last := pages[2]
	if last.Index != 2 || last.URL != "" || last.Text != "購入： https://shop.example/1" {
		t.Errorf("purchase page: got %+v", last)
	}
}

func TestResolveDirect(t *testing.T) {
	fb := newFakeBinb(t)
	fb.serverType = ServerTypeDirect
	ch := fb.chapter(t)
	ch.PurchaseEnabled = false

	pages, _, err := newTestResolver().Resolve(NewSession("c1", nil), ch)
	if err != nil {
		t.Fatal(err)
	}
	if len(pages) != 2 {
		t.Fatalf("got %d pages, want 2", len(pages))
	}
	u := mustParse(t, pages[1].URL)
	u.Fragment = ""
	if want := fb.srv.URL + "/cdn/pages/0002.jpg/M_L.jpg"; u.String() != want {
		t.Errorf("got %q, want %q", u, want)
	}
}

func TestResolveSbc(t *testing.T) {
	fb := newFakeBinb(t)
	fb.serverType = ServerTypeSbc

	pages, _, err := newTestResolver().Resolve(nil, fb.chapter(t))
	if err != nil {
		t.Fatal(err)
	}
	u := mustParse(t, pages[0].URL)
	q := u.Query()
	if u.Path != "/sbc/sbcGetImg.php" || q.Get("src") != "pages/0001.jpg" ||
		q.Get("cid") != "c1" || q.Get("u0") != "abc" || q.Get("vm") != "2" {
		t.Errorf("got %q", u)
	}
}

func TestResolveNoPurchasePageForCommercial(t *testing.T) {
	fb := newFakeBinb(t)
	fb.viewMode = ViewModeCommercial

	pages, _, err := newTestResolver().Resolve(nil, fb.chapter(t))
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range pages {
		if p.Text != "" {
			t.Errorf("unexpected text page %+v", p)
		}
	}
}

func TestResolveUnscrambledTitle(t *testing.T) {
	fb := newFakeBinb(t)
	fb.ptbl, fb.ctbl = "", ""

	pages, _, err := newTestResolver().Resolve(nil, fb.chapter(t))
	if err != nil {
		t.Fatal(err)
	}
	p, ok := descramble.ParseFragment(mustParse(t, pages[0].URL).Fragment)
	if !ok || !p.Unscrambled() {
		t.Errorf("got %+v", p)
	}
}

func TestResolveErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(fb *fakeBinb, ch *Chapter)
		check func(err error) bool
	}{
		{
			"no chapter ID",
			func(_ *fakeBinb, ch *Chapter) { ch.ID = "" },
			func(err error) bool { return errors.Is(err, ErrChapterIDNotFound) },
		},
		{
			"content info result",
			func(fb *fakeBinb, _ *Chapter) { fb.result = 0 },
			func(err error) bool {
				var e *ContentInfoAPIError
				return errors.As(err, &e) && e.Result == 0 && errors.Is(err, ErrContentInfoAPI)
			},
		},
		{
			"no items",
			func(fb *fakeBinb, _ *Chapter) { fb.noItems = true },
			func(err error) bool { return errors.Is(err, ErrNoContentItems) },
		},
		{
			"bad table",
			func(fb *fakeBinb, _ *Chapter) { fb.ctbl = "not json" },
			func(err error) bool { return errors.Is(err, ErrScrambleTable) },
		},
		{
			"server type",
			func(fb *fakeBinb, _ *Chapter) { fb.serverType = 9 },
			func(err error) bool { return errors.Is(err, ErrUnsupportedServerType) },
		},
		{
			"content result",
			func(fb *fakeBinb, _ *Chapter) { fb.contentResult = -2 },
			func(err error) bool {
				var e *ContentFetchError
				return errors.As(err, &e) && e.Result == -2 && errors.Is(err, ErrContentFetch)
			},
		},
	}

	for _, test := range tests {
		fb := newFakeBinb(t)
		ch := fb.chapter(t)
		test.setup(fb, &ch)
		_, _, err := newTestResolver().Resolve(nil, ch)
		if err == nil || !test.check(err) {
			t.Errorf("%s: got %v", test.name, err)
		}
	}
}
