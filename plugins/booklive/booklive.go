package booklive

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
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/MinoMino/binbdl/logger"
	"github.com/MinoMino/binbdl/plugins"
	"github.com/MinoMino/binbdl/plugins/binb"
)

var log = logger.GetLog("booklive")

var (
	ErrBookLiveUnknownCid  = errors.New("CID format not <title_id>_<volume>.")
	ErrBookLiveUnknownUrl  = errors.New("URL could not be parsed.")
	ErrBookLiveFailedLogin = errors.New("Failed to login. Wrong credentials?")
	ErrBookLiveLoginScreen = errors.New("Error while getting login token.")
)

var urlBookLive, _ = url.ParseRequestURI("https://booklive.jp/")

var Plugin = BookLive{
	options: []plugins.Option{
		&plugins.StringOption{K: "Username",
			C: "Leave empty to only get what's available without logging in."},
		&plugins.StringOption{K: "Password"},
	},
	base: urlBookLive,
}

var reBook = regexp.MustCompile(`^/product/index/title_id/([0-9]+)/vol_no/([0-9]+)/?$`)
var reReader = regexp.MustCompile(`^/bviewer/?$`)
var reCid = regexp.MustCompile(`^[0-9]+_[0-9]+$`)
var reTokenSearch = regexp.MustCompile(`input type="hidden" name="token" value="(.+?)">`)

type BookLive struct {
	options []plugins.Option
	// Everything is requested relative to this.
	base *url.URL
}

func (bl *BookLive) Name() string {
	return "BookLive"
}

func (bl *BookLive) Version() string {
	return ""
}

func (bl *BookLive) CanHandle(rawurl string) bool {
	u, err := url.Parse(rawurl)
	if err != nil || u.Host != "booklive.jp" {
		return false
	}
	_, _, err = getCidAndVolume(u)

	return err == nil
}

func (bl *BookLive) Options() []plugins.Option {
	return bl.options
}

func (bl *BookLive) Resolve(env *plugins.Environment, rawurl string) (*plugins.Chapter, error) {
	u, err := url.Parse(rawurl)
	if err != nil {
		return nil, err
	}
	cid, volume, err := getCidAndVolume(u)
	if err != nil {
		return nil, err
	}
	opts := plugins.OptionsToMap(bl.options)
	username, password := opts["Username"].(string), opts["Password"].(string)

	client := env.NewClient()
	if username != "" {
		if err := bl.login(client, env.UserAgent, username, password); err != nil {
			return nil, err
		}
	} else {
		log.Info("No username set, only free pages will be available.")
	}
	fetcher := env.Fetcher(client)

	key := fmt.Sprintf("%s:%s:%s", bl.Name(), username, cid)
	set, err := plugins.CachedPages(env, key, func() (*plugins.PageSet, error) {
		reader := bl.base.JoinPath("bviewer/")
		reader.RawQuery = url.Values{"cid": {cid}}.Encode()
		pages, item, err := binb.NewResolver(fetcher, env.HighQuality).Resolve(nil, binb.Chapter{
			ID:             cid,
			ContentInfoURL: bl.base.JoinPath("bib-api", "bibGetCntntInfo.php"),
			ReaderURL:      reader,
			BaseURL:        bl.base,
		})
		if err != nil {
			return nil, err
		}
		dir := plugins.DirectoryName(fmt.Sprintf("%s 第%02d巻", item.Title, volume), cid)

		return &plugins.PageSet{Dir: dir, Pages: pages}, nil
	})
	if err != nil {
		return nil, err
	}
	log.WithFields(logger.Fields{
		"dir":   set.Dir,
		"pages": len(set.Pages),
	}).Info("Got the page list.")

	return plugins.NewChapter(set, fetcher), nil
}

func (bl *BookLive) Cleanup(err error) {

}

func (bl *BookLive) login(client *http.Client, userAgent, username, password string) error {
	// First we get a login token.
	var token string
	fetcher := &plugins.HTTPFetcher{Client: client, UserAgent: userAgent}
	body, err := fetcher.Fetch(bl.base.JoinPath("login").String())
	if err != nil {
		log.Error(err)
		return ErrBookLiveLoginScreen
	}
	if re := reTokenSearch.FindStringSubmatch(string(body)); re == nil {
		log.Error("Found no login token.")
		return ErrBookLiveLoginScreen
	} else {
		token = re[1]
	}

	// Then we login.
	log.WithFields(logger.Fields{"token": token,
		"username": username}).Debug("Logging in...")
	req, err := plugins.NewPostFormRequest(bl.base.JoinPath("login", "index").String(), userAgent, url.Values{
		"mail_addr": {username},
		"pswd":      {password},
		"token":     {token},
	})
	if err != nil {
		return err
	}
	r, err := client.Do(req)
	if err != nil {
		log.Error(err)
		return ErrBookLiveFailedLogin
	}
	r.Body.Close()
	// The server answers with a redirect, which the client follows as a GET.
	if err := plugins.CheckStatus(r, "Incorrect credentials?"); err != nil {
		return fmt.Errorf("%w: %v", ErrBookLiveFailedLogin, err)
	}

	// Confirm we logged in by checking cookies.
	for _, cookie := range client.Jar.Cookies(bl.base) {
		if cookie.Name == "BL_LI" {
			log.WithField("session", cookie.Value).Debug("Logged in!")
			return nil
		}
	}

	return ErrBookLiveFailedLogin
}

// Product pages give the title ID and volume, the reader gives the cid
// straight away.
func getCidAndVolume(u *url.URL) (cid string, volume int, err error) {
	if re := reBook.FindStringSubmatch(u.Path); re != nil {
		cid = re[1] + "_" + re[2]
		volume, err = strconv.Atoi(re[2])
		return
	} else if reReader.MatchString(u.Path) {
		cid = u.Query().Get("cid")
		if !reCid.MatchString(cid) {
			return "", 0, ErrBookLiveUnknownCid
		}
		volume, err = strconv.Atoi(cid[strings.IndexByte(cid, '_')+1:])
		return
	}

	return "", 0, ErrBookLiveUnknownUrl
}
