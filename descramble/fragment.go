package descramble

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
)

// Fragment schemes. The fragment never leaves the process: it is stripped
// before a request is made and only read back by the Dispatcher.
const (
	SchemePtBinb = "ptbinb"
	SchemeGrid   = "grid"
)

// What a page locator's fragment says about its scrambling.
type Params struct {
	Scheme string
	// The ptbinb key pair.
	P, C string
	// Opaque key for schemes that carry a single value.
	Key string
}

// True for a ptbinb key pair with both halves empty, meaning the page is
// served as-is.
func (p Params) Unscrambled() bool {
	return p.Scheme == SchemePtBinb && p.P == "" && p.C == ""
}

func (p Params) Fragment() string {
	switch p.Scheme {
	case SchemePtBinb:
		return PtBinbFragment(p.P, p.C)
	case SchemeGrid:
		return GridFragment(p.Key)
	}

	return ""
}

func PtBinbFragment(p, c string) string {
	return SchemePtBinb + "," + p + "," + c
}

func GridFragment(key string) string {
	return SchemeGrid + "," + key
}

// Parses a locator fragment. Returns false if the fragment isn't one of ours,
// in which case the page shouldn't be touched.
func ParseFragment(fragment string) (Params, bool) {
	split := strings.SplitN(fragment, ",", 3)
	switch split[0] {
	case SchemePtBinb:
		if len(split) != 3 {
			return Params{}, false
		}
		return Params{Scheme: SchemePtBinb, P: split[1], C: split[2]}, true
	case SchemeGrid:
		if len(split) < 2 {
			return Params{}, false
		}
		return Params{Scheme: SchemeGrid, Key: strings.TrimPrefix(fragment, SchemeGrid+",")}, true
	}

	return Params{}, false
}
