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
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"

	"github.com/MinoMino/binbdl/descramble"
	"github.com/MinoMino/binbdl/logger"
	"github.com/MinoMino/binbdl/plugins"
	"github.com/MinoMino/binbdl/plugins/binb"
)

var log = logger.GetLog("coronaex")

var (
	ErrUnknownURL           = errors.New("Not a Corona EX episode URL.")
	ErrSubscriptionRequired = errors.New("The episode requires a subscription. Set a valid Token.")
)

var reEpisode = regexp.MustCompile(`^/episodes/([0-9A-Za-z_-]+)/?$`)

var Plugin = CoronaEx{
	options: []plugins.Option{
		&plugins.StringOption{K: "Token",
			C: "Bearer token of a logged in session. Leave empty for free episodes."},
	},
	sites: map[string]string{
		"to-corona-ex.com":    "K4FWy7Iqott9mrw37hDKfZ2gcLOwO-kiLHTwXT8ad1E=",
		"en.to-corona-ex.com": "YMiCe3ofO07MjQSroVEYDEUzyDm2sUHwDeDgqAhsTC8",
	},
}

type CoronaEx struct {
	options []plugins.Option
	// Domain to API environment key.
	sites map[string]string
	// Replaces https://api.{domain} when set.
	api *url.URL
}

type viewerResponse struct {
	Pages []struct {
		PageImageURL string `json:"page_image_url"`
		DrmHash      string `json:"drm_hash"`
	} `json:"pages"`
}

func (ce *CoronaEx) Name() string {
	return "Corona EX"
}

func (ce *CoronaEx) Version() string {
	return ""
}

func (ce *CoronaEx) CanHandle(rawurl string) bool {
	_, _, err := ce.parse(rawurl)
	return err == nil
}

func (ce *CoronaEx) Options() []plugins.Option {
	return ce.options
}

func (ce *CoronaEx) parse(rawurl string) (domain, episode string, err error) {
	u, err := url.Parse(rawurl)
	if err != nil {
		return "", "", err
	}
	if _, ok := ce.sites[u.Hostname()]; !ok {
		return "", "", ErrUnknownURL
	}
	re := reEpisode.FindStringSubmatch(u.Path)
	if re == nil {
		return "", "", ErrUnknownURL
	}

	return u.Hostname(), re[1], nil
}

func (ce *CoronaEx) beginReading(domain, episode string) *url.URL {
	if ce.api != nil {
		return ce.api.JoinPath("episodes", episode, "begin_reading")
	}

	return &url.URL{
		Scheme: "https",
		Host:   "api." + domain,
		Path:   "/episodes/" + episode + "/begin_reading",
	}
}

func (ce *CoronaEx) Resolve(env *plugins.Environment, rawurl string) (*plugins.Chapter, error) {
	domain, episode, err := ce.parse(rawurl)
	if err != nil {
		return nil, err
	}
	opts := plugins.OptionsToMap(ce.options)
	token := opts["Token"].(string)

	client := env.NewClient()
	api := env.Fetcher(client)
	api.Header = http.Header{}
	api.Header.Set("X-Api-Environment-Key", ce.sites[domain])
	if token != "" {
		api.Header.Set("Authorization", "Bearer "+token)
	}

	key := fmt.Sprintf("%s:%s:%s", ce.Name(), domain, episode)
	set, err := plugins.CachedPages(env, key, func() (*plugins.PageSet, error) {
		return ce.resolve(api, domain, episode)
	})
	if err != nil {
		return nil, err
	}
	log.WithFields(logger.Fields{
		"episode": episode,
		"pages":   len(set.Pages),
	}).Info("Got the page list.")

	// Images are on a CDN that doesn't want the API headers.
	return plugins.NewChapter(set, env.Fetcher(client)), nil
}

func (ce *CoronaEx) resolve(api *plugins.HTTPFetcher, domain, episode string) (*plugins.PageSet, error) {
	body, err := api.Fetch(ce.beginReading(domain, episode).String())
	if err != nil {
		var statusErr *plugins.ErrHTTPStatusCode
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusPaymentRequired {
			return nil, ErrSubscriptionRequired
		}
		return nil, err
	}

	var res viewerResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, err
	}

	set := &plugins.PageSet{Dir: plugins.DirectoryName(domain+" "+episode, episode)}
	for i, page := range res.Pages {
		u, err := url.Parse(page.PageImageURL)
		if err != nil {
			return nil, err
		}
		if page.DrmHash != "" {
			u.Fragment = descramble.GridFragment(page.DrmHash)
		}
		set.Pages = append(set.Pages, binb.PageLocator{Index: i, URL: u.String()})
	}

	return set, nil
}

func (ce *CoronaEx) Cleanup(err error) {}
