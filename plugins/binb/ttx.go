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
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Only the first case lists the pages. Later ones repeat them for other
// layouts.
var ttxImageSelector = cascadia.MustCompile("t-case:first-of-type t-img")

// Parses the ttx markup of a content response into a document. The markup is
// a fragment of custom elements, so it is parsed in a body context.
func parseTtx(ttx string) (*goquery.Document, error) {
	body := &html.Node{
		Type:     html.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	}
	nodes, err := html.ParseFragment(strings.NewReader(ttx), body)
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		body.AppendChild(n)
	}

	return goquery.NewDocumentFromNode(body), nil
}

// Returns the src of every page image in reading order.
func PageTokens(ttx string) ([]string, error) {
	doc, err := parseTtx(ttx)
	if err != nil {
		return nil, err
	}

	var res []string
	doc.FindMatcher(ttxImageSelector).Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok && src != "" {
			res = append(res, src)
		}
	})

	return res, nil
}
