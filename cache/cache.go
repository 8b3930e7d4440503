/*
A small SQLite-backed cache for resolved page lists, so that running the same
URL again soon after doesn't have to go through the reader's API again.
*/
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
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/MinoMino/binbdl/logger"

	_ "modernc.org/sqlite"
)

var log = logger.GetLog("cache")

const schema = `CREATE TABLE IF NOT EXISTS entries (
	key     TEXT PRIMARY KEY,
	value   BLOB NOT NULL,
	created INTEGER NOT NULL
)`

type Cache struct {
	db  *sql.DB
	ttl time.Duration
	// Defaults to time.Now.
	Now func() time.Time
}

// Opens or creates the cache database. Entries older than ttl are treated
// as missing. A ttl of zero disables expiry.
func Open(path string, ttl time.Duration) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Keep writes from concurrent workers serialized.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	log.WithField("path", path).Debug("Opened cache.")

	return &Cache{db: db, ttl: ttl}, nil
}

func (c *Cache) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}

	return time.Now()
}

// Stores v as JSON under key, replacing whatever was there.
func (c *Cache) Put(key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = c.db.Exec(
		"INSERT OR REPLACE INTO entries (key, value, created) VALUES (?, ?, ?)",
		key, data, c.now().UnixMilli())

	return err
}

// Unmarshals the entry under key into v. Returns false if there is no entry
// or if it expired.
func (c *Cache) Get(key string, v interface{}) (bool, error) {
	var data []byte
	var created int64
	err := c.db.QueryRow("SELECT value, created FROM entries WHERE key = ?", key).Scan(&data, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	} else if err != nil {
		return false, err
	}

	if c.ttl > 0 && c.now().Sub(time.UnixMilli(created)) > c.ttl {
		log.WithField("key", key).Debug("Cache entry expired.")
		return false, c.Delete(key)
	}

	return true, json.Unmarshal(data, v)
}

func (c *Cache) Delete(key string) error {
	_, err := c.db.Exec("DELETE FROM entries WHERE key = ?", key)
	return err
}

// Removes every expired entry.
func (c *Cache) Prune() (int64, error) {
	if c.ttl <= 0 {
		return 0, nil
	}
	res, err := c.db.Exec("DELETE FROM entries WHERE created < ?", c.now().Add(-c.ttl).UnixMilli())
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

func (c *Cache) Close() error {
	return c.db.Close()
}
