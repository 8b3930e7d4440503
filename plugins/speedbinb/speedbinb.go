package speedbinb

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
	"net/url"
	"strings"

	"github.com/MinoMino/binbdl/logger"
	"github.com/MinoMino/binbdl/plugins"
	"github.com/MinoMino/binbdl/plugins/binb"
	"github.com/PuerkitoBio/goquery"
)

var log = logger.GetLog("speedbinb")

var ErrNotHTTP = errors.New("Only http and https URLs are supported.")

var Plugin = SpeedBinb{
	options: []plugins.Option{
		&plugins.StringOption{K: "Directory",
			C: "Name of the directory the pages are saved in. Defaults to the title."},
	},
	// These have their own plugins.
	exclude: []string{"booklive.jp"},
}

// Works with any page hosting a SpeedBinb reader, ptbinb or ptimg.
type SpeedBinb struct {
	options []plugins.Option
	exclude []string
}

func (sb *SpeedBinb) Name() string {
	return "SpeedBinb"
}

func (sb *SpeedBinb) Version() string {
	return ""
}

// Readers live under all sorts of paths, so anything with a cid parameter
// or something that looks like a viewer is accepted.
func (sb *SpeedBinb) CanHandle(rawurl string) bool {
	u, err := url.Parse(rawurl)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	for _, host := range sb.exclude {
		if u.Hostname() == host || strings.HasSuffix(u.Hostname(), "."+host) {
			return false
		}
	}
	path := strings.ToLower(u.Path)

	return u.Query().Get("cid") != "" || strings.Contains(path, "viewer") ||
		strings.Contains(path, "binb") || strings.Contains(path, "reader")
}

func (sb *SpeedBinb) Options() []plugins.Option {
	return sb.options
}

func (sb *SpeedBinb) Resolve(env *plugins.Environment, rawurl string) (*plugins.Chapter, error) {
	u, err := url.Parse(rawurl)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, ErrNotHTTP
	}
	opts := plugins.OptionsToMap(sb.options)
	fetcher := env.Fetcher(env.NewClient())

	set, err := plugins.CachedPages(env, sb.Name()+":"+rawurl, func() (*plugins.PageSet, error) {
		return Resolve(fetcher, u, env.HighQuality)
	})
	if err != nil {
		return nil, err
	}
	if dir := opts["Directory"].(string); dir != "" {
		set.Dir = plugins.DirectoryName(dir, set.Dir)
	}
	log.WithFields(logger.Fields{
		"dir":   set.Dir,
		"pages": len(set.Pages),
	}).Info("Got the page list.")

	return plugins.NewChapter(set, fetcher), nil
}

func (sb *SpeedBinb) Cleanup(err error) {}

// Scrapes a reader page and resolves its pages, through the content API for
// ptbinb readers or straight from the page for ptimg ones.
func Resolve(fetcher *plugins.HTTPFetcher, readerURL *url.URL, hq bool) (*plugins.PageSet, error) {
	body, err := fetcher.Fetch(readerURL.String())
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	rp, err := binb.ParseReaderPage(doc, readerURL)
	if err != nil {
		return nil, err
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())

	if rp.IsPtImg() {
		log.WithField("pages", len(rp.PtImg)).Debug("Found a ptimg reader.")
		set := &plugins.PageSet{Dir: plugins.DirectoryName(title, "speedbinb")}
		for i, manifest := range rp.PtImg {
			set.Pages = append(set.Pages, binb.PageLocator{Index: i, URL: manifest})
		}
		return set, nil
	}

	cid, err := binb.ResolveChapterID(readerURL, rp.Cid)
	if err != nil {
		return nil, err
	}
	pages, item, err := binb.NewResolver(fetcher, hq).Resolve(nil, binb.Chapter{
		ID:              cid,
		ContentInfoURL:  rp.ContentInfoURL,
		ReaderURL:       readerURL,
		PurchaseEnabled: rp.PurchaseEnabled,
	})
	if err != nil {
		return nil, err
	}
	if item.Title != "" {
		title = item.Title
	}

	return &plugins.PageSet{Dir: plugins.DirectoryName(title, cid), Pages: pages}, nil
}
