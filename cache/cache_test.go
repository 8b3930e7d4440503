package cache

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
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

type entry struct {
	Index int
	URL   string
}

func openTest(t *testing.T, ttl time.Duration) (*Cache, *time.Time) {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "sub", "pages.db"), ttl)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c.Now = func() time.Time { return now }

	return c, &now
}

func TestPutGet(t *testing.T) {
	c, _ := openTest(t, time.Hour)
	want := []entry{{0, "https://a.example/1#ptbinb,p,c"}, {1, "https://a.example/2"}}
	if err := c.Put("chapter", want); err != nil {
		t.Fatal(err)
	}

	var got []entry
	ok, err := c.Get("chapter", &got)
	if err != nil || !ok {
		t.Fatalf("Get: (%v, %v)", ok, err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}

	if ok, err := c.Get("missing", &got); ok || err != nil {
		t.Errorf("missing key: (%v, %v)", ok, err)
	}
}

func TestReplace(t *testing.T) {
	c, _ := openTest(t, 0)
	c.Put("k", "old")
	c.Put("k", "new")

	var got string
	if ok, _ := c.Get("k", &got); !ok || got != "new" {
		t.Errorf("got (%v, %q)", ok, got)
	}
}

func TestExpiry(t *testing.T) {
	c, now := openTest(t, time.Hour)
	c.Put("k", 1)

	*now = now.Add(59 * time.Minute)
	var got int
	if ok, _ := c.Get("k", &got); !ok || got != 1 {
		t.Errorf("entry expired early: (%v, %d)", ok, got)
	}

	*now = now.Add(2 * time.Minute)
	if ok, err := c.Get("k", &got); ok || err != nil {
		t.Errorf("entry didn't expire: (%v, %v)", ok, err)
	}

	// Expired entries get dropped on read.
	c.ttl = 0
	if ok, _ := c.Get("k", &got); ok {
		t.Error("expired entry still stored")
	}
}

func TestPrune(t *testing.T) {
	c, now := openTest(t, time.Hour)
	c.Put("old", 1)
	*now = now.Add(90 * time.Minute)
	c.Put("new", 2)

	n, err := c.Prune()
	if err != nil || n != 1 {
		t.Errorf("Prune() = (%d, %v), want 1", n, err)
	}
	var got int
	if ok, _ := c.Get("new", &got); !ok {
		t.Error("fresh entry was pruned")
	}
}
