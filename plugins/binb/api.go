/*
A client for the API served by SpeedBinb readers. It turns a chapter into a list of
page locators that carry everything needed to download and descramble each page.
*/
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
	"net/url"
	"strconv"
	"time"

	"github.com/MinoMino/binbdl/descramble"
	"github.com/MinoMino/binbdl/logger"
)

var log = logger.GetLog("binb")

var (
	ErrChapterIDNotFound     = errors.New("Could not find the chapter ID.")
	ErrContentInfoAPI        = errors.New("Failed to execute bibGetCntntInfo.")
	ErrNoContentItems        = errors.New("bibGetCntntInfo returned no items.")
	ErrContentFetch          = errors.New("Failed to fetch content.")
	ErrScrambleTable         = errors.New("Scramble table is not a list of keys.")
	ErrUnsupportedServerType = errors.New("Unsupported server type.")
)

// Prefix of the synthesized last page pointing to the shop.
const PurchaseTextPrefix = "購入： "

// bibGetCntntInfo returned something other than 1.
type ContentInfoAPIError struct {
	Result int
}

func (e *ContentInfoAPIError) Error() string {
	return fmt.Sprintf("bibGetCntntInfo returned result %d.", e.Result)
}

func (e *ContentInfoAPIError) Unwrap() error {
	return ErrContentInfoAPI
}

// The page metadata response had a result other than 1.
type ContentFetchError struct {
	Result int
}

func (e *ContentFetchError) Error() string {
	return fmt.Sprintf("Content request returned result %d.", e.Result)
}

func (e *ContentFetchError) Unwrap() error {
	return ErrContentFetch
}

type Response struct {
	Result int
	Items  []json.RawMessage
}

// A single item of a bibGetCntntInfo response.
type ContentItem struct {
	ContentID      string
	ContentsServer string
	ServerType     ServerType
	Stbl, Ttbl     string
	Ptbl, Ctbl     string
	// Request token. Only some servers use it.
	P           string `json:"p"`
	ViewMode    ViewMode
	ContentDate string
	ShopURL     string
	Title       string
}

type ContentResponse struct {
	Result     int
	Ttx        string
	ImageClass string
}

func (c *ContentResponse) SingleQuality() bool {
	return c.ImageClass == "singlequality"
}

type Chapter struct {
	ID string
	// bibGetCntntInfo endpoint.
	ContentInfoURL *url.URL
	// The page the reader was opened on. Its u0-u9 parameters are forwarded.
	ReaderURL *url.URL
	// Site root for SBC content servers. Defaults to the origin of
	// ContentInfoURL.
	BaseURL         *url.URL
	PurchaseEnabled bool
}

// Where to get a page. URL carries a fragment describing the scrambling,
// which must be stripped before making a request. Text is only set for
// pages that should be rendered rather than downloaded.
type PageLocator struct {
	Index int
	URL   string
	Text  string
}

type Resolver struct {
	Client      descramble.Fetcher
	HighQuality bool
	// Defaults to time.Now.
	Now func() time.Time
}

func NewResolver(client descramble.Fetcher, hq bool) *Resolver {
	return &Resolver{Client: client, HighQuality: hq}
}

func (r *Resolver) now() string {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}

	return strconv.FormatInt(now().UnixMilli(), 10)
}

// Resolves a chapter into its pages. The session is created if nil, and must
// belong to the chapter otherwise.
func (r *Resolver) Resolve(session *Session, ch Chapter) ([]PageLocator, *ContentItem, error) {
	if ch.ID == "" {
		return nil, nil, ErrChapterIDNotFound
	}
	if session == nil || session.ContentID != ch.ID {
		session = NewSession(ch.ID, nil)
	}
	keyParams := url.Values{}
	if ch.ReaderURL != nil {
		keyParams = ch.ReaderURL.Query()
	}

	item, infoURL, err := r.contentInfo(session, ch.ContentInfoURL, keyParams)
	if err != nil {
		return nil, nil, err
	}

	ptbl, err := decodeTable("ptbl", session, item.Ptbl)
	if err != nil {
		return nil, nil, err
	}
	ctbl, err := decodeTable("ctbl", session, item.Ctbl)
	if err != nil {
		return nil, nil, err
	}

	server, err := strategyFor(item.ServerType)
	if err != nil {
		return nil, nil, err
	}
	uc := &urlContext{
		Item:           item,
		Cid:            session.ContentID,
		ContentInfoURL: infoURL,
		BaseURL:        ch.BaseURL,
		KeyParams:      keyParams,
		HighQuality:    r.HighQuality,
		Now:            r.now(),
	}
	metaURL, content, err := r.content(server, uc)
	if err != nil {
		return nil, nil, err
	}

	tokens, err := PageTokens(content.Ttx)
	if err != nil {
		return nil, nil, err
	}
	log.WithFields(logger.Fields{
		"cid":    session.ContentID,
		"server": item.ServerType,
		"pages":  len(tokens),
	}).Debug("Got page list.")

	single := content.SingleQuality()
	pages := make([]PageLocator, 0, len(tokens)+1)
	for i, src := range tokens {
		keys := DetermineKeyPair(src, ptbl, ctbl)
		u, err := server.ImageURL(uc, metaURL, src, single)
		if err != nil {
			return nil, nil, err
		}
		u.Fragment = descramble.PtBinbFragment(keys.P, keys.C)
		pages = append(pages, PageLocator{Index: i, URL: u.String()})
	}

	if ch.PurchaseEnabled && item.ViewMode != ViewModeCommercial && item.ShopURL != "" {
		pages = append(pages, PageLocator{
			Index: len(pages),
			Text:  PurchaseTextPrefix + item.ShopURL,
		})
	}

	return pages, item, nil
}

func (r *Resolver) contentInfo(session *Session, endpoint *url.URL, keyParams url.Values) (*ContentItem, *url.URL, error) {
	if endpoint == nil {
		return nil, nil, errors.New("No content info URL.")
	}
	u := *endpoint
	q := u.Query()
	copyKeyParams(q, keyParams)
	q.Set("cid", session.ContentID)
	q.Set("k", session.SharedKey)
	q.Set("dmytime", r.now())
	u.RawQuery = q.Encode()
	log.WithField("url", u.String()).Debug("Calling bibGetCntntInfo...")

	data, err := r.Client.Fetch(u.String())
	if err != nil {
		return nil, nil, err
	}

	var res Response
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, nil, err
	}
	if res.Result != 1 {
		return nil, nil, &ContentInfoAPIError{res.Result}
	} else if len(res.Items) == 0 {
		return nil, nil, ErrNoContentItems
	}

	var item ContentItem
	if err := json.Unmarshal(res.Items[0], &item); err != nil {
		return nil, nil, err
	}

	return &item, &u, nil
}

func (r *Resolver) content(server contentServer, uc *urlContext) (*url.URL, *ContentResponse, error) {
	u, err := server.MetadataURL(uc)
	if err != nil {
		return nil, nil, err
	}
	log.WithField("url", u.String()).Debug("Getting content...")

	data, err := r.Client.Fetch(u.String())
	if err != nil {
		return nil, nil, err
	}

	var content ContentResponse
	if err := json.Unmarshal(server.Unwrap(data), &content); err != nil {
		return nil, nil, err
	}
	if content.Result != 1 {
		return nil, nil, &ContentFetchError{content.Result}
	}

	return u, &content, nil
}

// An empty table means the title isn't scrambled, and every page gets an
// empty key pair.
func decodeTable(name string, session *Session, table string) ([]string, error) {
	if table == "" {
		return nil, nil
	}

	var res []string
	decoded := DecodeScrambleTable(session.ContentID, session.SharedKey, table)
	if err := json.Unmarshal([]byte(decoded), &res); err != nil {
		log.WithField("table", name).Debugf("Decoded table: %q", decoded)
		return nil, fmt.Errorf("%w (%s): %v", ErrScrambleTable, name, err)
	}
	if len(res) != keyTableSize {
		log.WithFields(logger.Fields{
			"table": name,
			"size":  len(res),
		}).Warn("Unexpected scramble table size.")
	}

	return res, nil
}
