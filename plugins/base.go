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
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MinoMino/binbdl/logger"
)

var log = logger.GetLog("plugins")

/*
   ==================================================
                          MISC
    Helpers and stuff that can be useful for plugins.
   ==================================================
*/

const (
	FirefoxUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"
	ChromeUserAgent  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"
	DefaultUserAgent = FirefoxUserAgent
)

// Returned when a server responds with anything but 200.
type ErrHTTPStatusCode struct {
	StatusCode int
	URL        string
}

func (e *ErrHTTPStatusCode) Error() string {
	return fmt.Sprintf("The HTTP request to %s responded with status code %d.", e.URL, e.StatusCode)
}

// Returns an *ErrHTTPStatusCode if the status code isn't 200.
func CheckStatus(resp *http.Response, msg string) error {
	if resp.StatusCode != http.StatusOK {
		if msg != "" {
			msg = " | " + msg
		}
		log.Errorf("Status code: %s%s", resp.Status, msg)
		return &ErrHTTPStatusCode{resp.StatusCode, resp.Request.URL.String()}
	}

	return nil
}

// Convert a slice of Option into a map[string]interface{}.
func OptionsToMap(opts []Option) map[string]interface{} {
	res := make(map[string]interface{})
	for _, opt := range opts {
		res[opt.Key()] = opt.Value()
	}

	return res
}

// Create an HTTP client with a cookie jar and a proper timeout timer.
func NewHTTPClient(timeout time.Duration) *http.Client {
	jar, _ := cookiejar.New(nil)
	return &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			last := via[len(via)-1]
			log.WithField("url", last.URL.String()).Debug("Following HTTP redirect...")
			req.Header = last.Header.Clone()
			if req.URL.Host != last.URL.Host {
				delete(req.Header, "Authorization")
			}

			return nil
		},
		Jar: jar,
	}
}

// Create a new GET request with a custom user agent.
func NewGetRequest(url, userAgent string) (*http.Request, error) {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	return req, nil
}

// Create a new POST request with a custom user agent using form data.
func NewPostFormRequest(url, userAgent string, data url.Values) (*http.Request, error) {
	req, err := http.NewRequest("POST", url, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return req, nil
}

/*
   ==================================================
                         OPTION
   ==================================================
*/

// An option the plugin provides that the user can set.
// The input is through a string provided by the user.
type Option interface {
	Key() string
	Value() interface{}
	// Set the value using user input.
	Set(string) error
	IsRequired() bool
	IsHidden() bool
	Comment() string
}

// A basic Option implementation that keeps all user
// input as-is instead of trying to convert stuff.
type StringOption struct {
	K, V             string
	Required, Hidden bool
	C                string
}

func (opt *StringOption) Key() string {
	return opt.K
}

func (opt *StringOption) Value() interface{} {
	return opt.V
}

func (opt *StringOption) Set(v string) error {
	opt.V = v
	return nil
}

func (opt *StringOption) IsRequired() bool {
	return opt.Required
}

func (opt *StringOption) IsHidden() bool {
	return opt.Hidden
}

func (opt *StringOption) Comment() string {
	return opt.C
}

// An implementation of Option that tries to convert
// the user input into an integer.
type IntOption struct {
	K                string
	V                int
	Required, Hidden bool
	C                string
}

func (opt *IntOption) Key() string {
	return opt.K
}

func (opt *IntOption) Value() interface{} {
	return opt.V
}

func (opt *IntOption) Set(v string) (err error) {
	opt.V, err = strconv.Atoi(v)
	return err
}

func (opt *IntOption) IsRequired() bool {
	return opt.Required
}

func (opt *IntOption) IsHidden() bool {
	return opt.Hidden
}

func (opt *IntOption) Comment() string {
	return opt.C
}

// An implementation of Option that tries to convert
// the user input into a bool. Using strconv.ParseBool,
// it accepts 1, t, T, TRUE, true, True, 0, f, F, FALSE,
// false, False.
type BoolOption struct {
	K                string
	V                bool
	Required, Hidden bool
	C                string
}

func (opt *BoolOption) Key() string {
	return opt.K
}

func (opt *BoolOption) Value() interface{} {
	return opt.V
}

func (opt *BoolOption) Set(v string) (err error) {
	opt.V, err = strconv.ParseBool(v)
	return err
}

func (opt *BoolOption) IsRequired() bool {
	return opt.Required
}

func (opt *BoolOption) IsHidden() bool {
	return opt.Hidden
}

func (opt *BoolOption) Comment() string {
	return opt.C
}

// An option to force the number of workers used by the download manager.
type MaxWorkersOption struct {
	IntOption
}

func NewForceMaxWorkersOption(workers int) *MaxWorkersOption {
	return &MaxWorkersOption{
		IntOption{
			V: workers,
		},
	}
}

func (opt *MaxWorkersOption) Key() string {
	return "!Workers"
}

func (opt *MaxWorkersOption) IsRequired() bool {
	return false
}

func (opt *MaxWorkersOption) IsHidden() bool {
	return true
}

func (opt *MaxWorkersOption) Comment() string {
	return "Force the maximum number of workers to a certain number."
}

/*
   ==================================================
                         PLUGIN
   ==================================================
*/

// The interface all plugins must implement.
//
// A plugin only finds the pages behind a URL. Fetching, descrambling and
// saving them is up to the download manager, so a plugin never touches the
// disk. A single object is used for every URL it handles, so Resolve must not
// depend on state left over from an earlier call.
type Plugin interface {
	// The name of the plugin.
	Name() string
	// The version of the plugin. Do not prefix it with "v" or anything like that.
	// Can return an empty string.
	Version() string
	// Should return whether or not it can deal with a URL.
	// There is no guarantee that Resolve() will be called later,
	// so don't store stuff here for later use.
	CanHandle(url string) bool
	// Returns a slice of all the options. If an option needs a value and the
	// user does not set it, either make sure you have a default value or that
	// IsRequired() returns true.
	Options() []Option
	// Logs in if needed and resolves the URL into its pages. The chapter's
	// fetcher must be able to get every page, including ptimg manifests.
	Resolve(env *Environment, url string) (*Chapter, error)
	// Called by the download manager at the end. If an error caused the manager
	// to abort or pages failed, it is passed. Otherwise nil is passed.
	Cleanup(error)
}
