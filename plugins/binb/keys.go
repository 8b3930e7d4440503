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
	"math/rand"
	"strings"
	"sync"
	"time"
	"unicode/utf16"
)

// URL-safe base64 alphabet used for shared keys and "=" key data.
const urlsafeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

const (
	sharedKeyRandomLength = 16
	keyTableSize          = 8
	seedFallback          = 0x12345678
	seedTaps              = 0x48200004
)

var (
	defaultRand   = rand.New(rand.NewSource(time.Now().UnixNano()))
	defaultRandMu sync.Mutex
)

// The pair of keys picked for one page out of the P and C scramble tables.
type KeyPair struct {
	P, C string
	// Indices into the tables they were taken from.
	Indices [2]int
}

// Picks a page's key pair from its filename. Only the last path segment
// counts: UTF-16 code units at even positions are summed for the P index, odd
// ones for the C index, both modulo 8. An empty filename gives (0, 0).
func DetermineKeyPair(filename string, ptbl, ctbl []string) KeyPair {
	var acc [2]int
	if filename != "" {
		filename = filename[strings.LastIndex(filename, "/")+1:]
		for i, char := range utf16.Encode([]rune(filename)) {
			acc[i%2] += int(char)
		}
		acc[0] %= keyTableSize
		acc[1] %= keyTableSize
	}

	return KeyPair{
		P:       tableEntry(ptbl, acc[0]),
		C:       tableEntry(ctbl, acc[1]),
		Indices: acc,
	}
}

// Tables are supposed to have 8 entries. Shorter ones wrap around rather
// than panic.
func tableEntry(tbl []string, i int) string {
	if len(tbl) == 0 {
		return ""
	}

	return tbl[i%len(tbl)]
}

func tableSeed(cid, sharedKey string) uint32 {
	var res uint32
	for i, char := range utf16.Encode([]rune(cid + ":" + sharedKey)) {
		res += uint32(char) << uint(i%16)
	}
	res &= 0x7FFFFFFF

	if res == 0 {
		return seedFallback
	}

	return res
}

// Decodes a scramble table (ptbl/ctbl) using the content ID and the shared
// key sent along with the content info request. Every output character is in
// the printable range [32, 125] and the output is as long as the input.
func DecodeScrambleTable(cid, sharedKey, table string) string {
	key := tableSeed(cid, sharedKey)
	var sb strings.Builder
	sb.Grow(len(table))
	for _, char := range utf16.Encode([]rune(table)) {
		key = (key >> 1) ^ (-(key & 1) & seedTaps)
		v := (int64(char) - 0x20 + int64(key)) % 0x5E
		if v < 0 {
			v += 0x5E
		}
		sb.WriteByte(byte(v + 0x20))
	}

	return sb.String()
}

// Generates the "k" parameter for a content info request. Even positions are
// random, odd positions depend on both the randomness and the content ID.
// If rnd is nil, a shared time-seeded source is used.
func GenerateSharedKey(cid string, rnd *rand.Rand) string {
	random := make([]byte, sharedKeyRandomLength)
	if rnd == nil {
		defaultRandMu.Lock()
		for i := range random {
			random[i] = urlsafeAlphabet[defaultRand.Intn(len(urlsafeAlphabet))]
		}
		defaultRandMu.Unlock()
	} else {
		for i := range random {
			random[i] = urlsafeAlphabet[rnd.Intn(len(urlsafeAlphabet))]
		}
	}

	// The CID repeated until it's at least 16 code units long, then its head
	// and tail.
	var head, tail []uint16
	if units := utf16.Encode([]rune(cid)); len(units) > 0 {
		n := (sharedKeyRandomLength + len(units) - 1) / len(units)
		repeated := make([]uint16, 0, n*len(units))
		for i := 0; i < n; i++ {
			repeated = append(repeated, units...)
		}
		head = repeated[:sharedKeyRandomLength]
		tail = repeated[len(repeated)-sharedKeyRandomLength:]
	}

	var s, h, u int
	res := make([]byte, 0, 2*sharedKeyRandomLength)
	for i, char := range random {
		s ^= int(char)
		if head != nil {
			h ^= int(head[i])
			u ^= int(tail[i])
		}
		res = append(res, char, urlsafeAlphabet[(s+h+u)&63])
	}

	return string(res)
}

// Per-chapter state shared between the content info request and decoding
// its response. Never reuse one for another chapter.
type Session struct {
	ContentID string
	SharedKey string
}

func NewSession(cid string, rnd *rand.Rand) *Session {
	return &Session{
		ContentID: cid,
		SharedKey: GenerateSharedKey(cid, rnd),
	}
}
