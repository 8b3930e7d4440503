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
	"errors"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var ErrNotAReader = errors.New("No SpeedBinb reader found on the page.")

const buyIconConfig = "Config.LoginBuyIconPosition="

// What the HTML page hosting a SpeedBinb reader tells us.
type ReaderPage struct {
	// Absolute URL of bibGetCntntInfo. Nil for ptimg readers.
	ContentInfoURL *url.URL
	// data-ptbinb-cid, used when the URL has no cid parameter.
	Cid string
	// Absolute URLs of ptimg manifests, for readers that use those instead.
	PtImg []string
	// Whether the reader shows a buy button.
	PurchaseEnabled bool
}

func (rp *ReaderPage) IsPtImg() bool {
	return rp.ContentInfoURL == nil
}

// Scrapes the #content element of a reader page. pageURL is the URL the page
// was served from, used to resolve relative attributes.
func ParseReaderPage(doc *goquery.Document, pageURL *url.URL) (*ReaderPage, error) {
	content := doc.Find("#content").First()
	if content.Length() == 0 {
		return nil, ErrNotAReader
	}

	res := &ReaderPage{PurchaseEnabled: purchaseEnabled(doc)}
	if bib, ok := content.Attr("data-ptbinb"); ok {
		ref, err := url.Parse(bib)
		if err != nil {
			return nil, err
		}
		res.ContentInfoURL = pageURL.ResolveReference(ref)
		res.Cid = content.AttrOr("data-ptbinb-cid", "")
		return res, nil
	}

	var err error
	content.Find("[data-ptimg]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var ref *url.URL
		ref, err = url.Parse(s.AttrOr("data-ptimg", ""))
		if err != nil {
			return false
		}
		res.PtImg = append(res.PtImg, pageURL.ResolveReference(ref).String())
		return true
	})
	if err != nil {
		return nil, err
	}
	if len(res.PtImg) == 0 {
		return nil, ErrNotAReader
	}

	return res, nil
}

// Looks for "Config.LoginBuyIconPosition=<n>;" in the page's scripts. Anything
// but -1 means buying is enabled.
func purchaseEnabled(doc *goquery.Document) bool {
	pos := "-1"
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		i := strings.Index(text, buyIconConfig)
		if i == -1 {
			return true
		}
		text = text[i+len(buyIconConfig):]
		if j := strings.IndexByte(text, ';'); j != -1 {
			text = text[:j]
		}
		pos = strings.TrimSpace(text)
		return false
	})

	return pos != "-1"
}

// Gets the chapter's content ID from the reader URL's cid parameter, falling
// back to the one found on the page.
func ResolveChapterID(readerURL *url.URL, fallback string) (string, error) {
	if readerURL != nil {
		if cid := readerURL.Query().Get("cid"); cid != "" {
			return cid, nil
		}
	}
	if fallback == "" {
		return "", ErrChapterIDNotFound
	}

	return fallback, nil
}
