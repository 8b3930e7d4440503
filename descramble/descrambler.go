/*
Reconstruction of scrambled page images.

Readers deliver pages as shuffled bitmaps together with enough metadata for a
cooperating client to put them back together. This package holds the pixel side of
that: rectangle relocation, grid block permutation, and the dispatch that picks one
based on what the page locator carries.
*/
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
	"errors"
	"fmt"
	"image"

	"github.com/MinoMino/binbdl/logger"
)

var log = logger.GetLog("descramble")

var (
	ErrNoDescrambler = errors.New("No descrambler matches the page parameters.")
	ErrInvalidGrid   = errors.New("Invalid grid key.")
	ErrInvalidCoords = errors.New("Invalid ptimg coordinates.")
)

// Anything that can put a scrambled page back together given the parameters
// its locator carried. Implementations must be safe for concurrent use, as the
// download manager descrambles pages on multiple workers at once.
type Descrambler interface {
	Descramble(img image.Image, p Params) (image.Image, error)
}

// Returned when no registered descrambler accepts a page's parameters.
type DescramblerSelectionError struct {
	Params Params
}

func (e *DescramblerSelectionError) Error() string {
	return fmt.Sprintf("No descrambler for %s key pair (%q, %q).", e.Params.Scheme, e.Params.P, e.Params.C)
}

func (e *DescramblerSelectionError) Unwrap() error {
	return ErrNoDescrambler
}

type Matcher func(Params) bool

type registryEntry struct {
	name  string
	match Matcher
	d     Descrambler
}

// An ordered set of {predicate, descrambler} pairs. The first entry whose
// predicate accepts the parameters is used. Everything should be registered
// before the registry is handed to a Dispatcher.
type Registry struct {
	entries []registryEntry
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) Register(name string, match Matcher, d Descrambler) {
	r.entries = append(r.entries, registryEntry{name, match, d})
}

func (r *Registry) Select(p Params) (string, Descrambler, error) {
	for _, e := range r.entries {
		if e.match(p) {
			return e.name, e.d, nil
		}
	}

	return "", nil, &DescramblerSelectionError{p}
}

func (r *Registry) Names() []string {
	res := make([]string, len(r.entries))
	for i, e := range r.entries {
		res[i] = e.name
	}

	return res
}
