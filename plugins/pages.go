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
	"strings"

	"github.com/MinoMino/binbdl/plugins/binb"
	"golang.org/x/text/unicode/norm"
)

var ErrNoPages = errors.New("The chapter has no pages.")

// A resolved chapter: where to save it and where to get every page from.
type PageSet struct {
	// Relative to the download directory.
	Dir   string
	Pages []binb.PageLocator
}

// What a plugin resolves a URL into.
type Chapter struct {
	PageSet
	// Gets the pages. Carries whatever session the plugin set up.
	Fetcher *HTTPFetcher
}

func NewChapter(set *PageSet, fetcher *HTTPFetcher) *Chapter {
	return &Chapter{PageSet: *set, Fetcher: fetcher}
}

var dirReplacer = strings.NewReplacer(
	"/", "／", "\\", "＼", ":", "：", "*", "＊", "?", "？",
	"\"", "”", "<", "＜", ">", "＞", "|", "｜",
)

// Turns a title into something usable as a directory name.
func DirectoryName(title, fallback string) string {
	name := strings.TrimSpace(norm.NFKC.String(title))
	// NFKC folds the full-width replacements back, so replace afterwards.
	name = strings.TrimRight(dirReplacer.Replace(name), ". ")
	if name == "" {
		return fallback
	}

	return name
}

// Looks the page set up in the environment's cache, calling resolve and
// storing its result on a miss. Cache failures only get logged.
func CachedPages(env *Environment, key string, resolve func() (*PageSet, error)) (*PageSet, error) {
	if env.Cache != nil {
		set := &PageSet{}
		if ok, err := env.Cache.Get(key, set); err != nil {
			log.WithField("key", key).Warn(err)
		} else if ok && len(set.Pages) > 0 {
			log.WithField("key", key).Debug("Using cached page list.")
			return set, nil
		}
	}

	set, err := resolve()
	if err != nil {
		return nil, err
	}
	if len(set.Pages) == 0 {
		return nil, ErrNoPages
	}

	if env.Cache != nil {
		if err := env.Cache.Put(key, set); err != nil {
			log.WithField("key", key).Warn(err)
		}
	}

	return set, nil
}
