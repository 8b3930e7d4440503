/*
Loading of the TOML configuration file. Values from the file override the
defaults, and flags given on the command line override both.
*/
package config

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
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

const appName = "binbdl"

var (
	ErrWorkers     = errors.New("The number of workers must be between 1 and 64.")
	ErrQuality     = errors.New("JPEG quality must be between 1 and 100.")
	ErrTimeout     = errors.New("The timeout must be positive.")
	ErrDirectory   = errors.New("The download directory cannot be empty.")
	ErrCacheTTL    = errors.New("The cache TTL cannot be negative.")
	ErrUnknownKeys = errors.New("Unknown keys in config.")
)

type Config struct {
	Directory       string `toml:"directory"`
	Workers         int    `toml:"workers"`
	Zip             bool   `toml:"zip"`
	Lossless        bool   `toml:"lossless"`
	JPEGQuality     int    `toml:"jpeg_quality"`
	HighQuality     bool   `toml:"high_quality"`
	Timeout         int    `toml:"timeout"`
	UserAgent       string `toml:"user_agent"`
	Cache           bool   `toml:"cache"`
	CacheTTLMinutes int    `toml:"cache_ttl_minutes"`
	Verbose         bool   `toml:"verbose"`
	// Plugin options, one table per plugin name, e.g. [plugins.BookLive].
	Plugins map[string]map[string]interface{} `toml:"plugins"`
}

func Default() *Config {
	return &Config{
		Directory:       "downloads/",
		Workers:         10,
		JPEGQuality:     90,
		HighQuality:     true,
		Timeout:         20,
		Cache:           true,
		CacheTTLMinutes: 60,
	}
}

func dir(env, fallback string) (string, error) {
	if d := os.Getenv(env); d != "" {
		return filepath.Join(d, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	return filepath.Join(home, fallback, appName), nil
}

// $XDG_CONFIG_HOME/binbdl/config.toml
func Path() (string, error) {
	d, err := dir("XDG_CONFIG_HOME", ".config")
	if err != nil {
		return "", err
	}

	return filepath.Join(d, "config.toml"), nil
}

// $XDG_CACHE_HOME/binbdl/pages.db
func CachePath() (string, error) {
	d, err := dir("XDG_CACHE_HOME", ".cache")
	if err != nil {
		return "", err
	}

	return filepath.Join(d, "pages.db"), nil
}

// Loads the config file at its default location. A missing file is not an
// error.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return Default(), nil
	}

	return LoadFile(path)
}

func LoadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		return nil, fmt.Errorf("%w %v", ErrUnknownKeys, undecoded)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case c.Workers < 1 || c.Workers > 64:
		return ErrWorkers
	case c.JPEGQuality < 1 || c.JPEGQuality > 100:
		return ErrQuality
	case c.Timeout <= 0:
		return ErrTimeout
	case c.Directory == "":
		return ErrDirectory
	case c.CacheTTLMinutes < 0:
		return ErrCacheTTL
	}

	return nil
}

func (c *Config) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMinutes) * time.Minute
}
