package main

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
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/MinoMino/binbdl/logger"
	. "github.com/MinoMino/binbdl/plugins"
)

var (
	ErrUnintelligibleNumber = errors.New("Unintelligible number.")
	ErrOutOfRange           = errors.New("Index out of range.")
	ErrNoPlugins            = errors.New("No plugins to select from.")
	ErrUnsetRequired        = errors.New("A required plugin option was not set and prompting is off.")
	ErrRequiredHidden       = errors.New("A required plugin option is also hidden.")
)

// Finds plugins for URLs and fills in their options, asking the user when it
// has to.
type PluginManager struct {
	Plugins []Plugin
	// Prompts are read from In and written to Out.
	In  io.Reader
	Out io.Writer

	reader *bufio.Reader
}

func NewPluginManager(ps []Plugin) *PluginManager {
	return &PluginManager{Plugins: ps, In: os.Stdin, Out: os.Stdout}
}

// Every plugin that can handle each URL, in plugin order.
func (pm *PluginManager) FindHandlers(urls []string) [][]Plugin {
	res := make([][]Plugin, len(urls))
	for i, url := range urls {
		for _, p := range pm.Plugins {
			if p.CanHandle(url) {
				res[i] = append(res[i], p)
			}
		}
	}

	return res
}

// Picks one of the plugins able to handle a URL. The user chooses when
// there's more than one, unless prompting is off, in which case the first
// one wins.
func (pm *PluginManager) SelectPlugin(ps []Plugin, noprompt bool) (Plugin, error) {
	switch {
	case len(ps) == 0:
		return nil, ErrNoPlugins
	case len(ps) == 1:
		return ps[0], nil
	case noprompt:
		log.Warnf("Found multiple handlers, using \"%s\".", pluginName(ps[0]))
		return ps[0], nil
	}

	fmt.Fprintln(pm.Out, "Found multiple handlers. Please select one:")
	for i, p := range ps {
		fmt.Fprintf(pm.Out, "  %2d) %s\n", i+1, pluginName(p))
	}
	in, err := pm.prompt("Desired plugin")
	if err != nil {
		return nil, err
	}
	n, err := strconv.Atoi(in)
	if err != nil {
		return nil, ErrUnintelligibleNumber
	} else if n < 1 || n > len(ps) {
		return nil, ErrOutOfRange
	}

	return ps[n-1], nil
}

// Merges option values for a plugin. Tables in the config file are matched
// to the plugin by name, and flags win over the config. Keys come back lower
// case since options match case-insensitively.
func PluginValues(p Plugin, config map[string]map[string]interface{}, flags map[string]string) map[string]string {
	res := make(map[string]string)
	for name, values := range config {
		if !strings.EqualFold(name, p.Name()) {
			continue
		}
		for k, v := range values {
			res[strings.ToLower(k)] = fmt.Sprint(v)
		}
	}
	for k, v := range flags {
		res[strings.ToLower(k)] = v
	}

	return res
}

// Sets a plugin's options from values, as returned by PluginValues. Options
// left unset are prompted for, only the required ones when defaults is set.
// Hidden options are never prompted. Without prompting, an unset required
// option is an error.
func (pm *PluginManager) SetOptions(p Plugin, values map[string]string, defaults, noprompt bool) error {
	name := pluginName(p)
	var ask, required []Option
	for _, opt := range p.Options() {
		if v, ok := values[strings.ToLower(opt.Key())]; ok {
			if err := opt.Set(v); err != nil {
				return fmt.Errorf("%s: option %q: %w", name, opt.Key(), err)
			}
			log.WithField("plugin", name).Debugf("Set Option: %s = %s", opt.Key(), v)
			continue
		}

		switch {
		case opt.IsRequired() && opt.IsHidden():
			return ErrRequiredHidden
		case opt.IsHidden():
		case opt.IsRequired():
			required = append(required, opt)
			ask = append(ask, opt)
		case !defaults:
			ask = append(ask, opt)
		}
	}

	if noprompt {
		for _, opt := range required {
			log.WithField("plugin", name).Errorf("\"%s\" is a required option, but was not set.", opt.Key())
		}
		if len(required) != 0 {
			return ErrUnsetRequired
		}
		return nil
	}

	if len(ask) != 0 {
		fmt.Fprintf(pm.Out, "The plugin \"%s\" has option(s):\n", name)
	}
	for _, opt := range ask {
		if err := pm.optionPrompt(opt); err != nil {
			return fmt.Errorf("%s: option %q: %w", name, opt.Key(), err)
		}
		log.WithFields(logger.Fields{"plugin": name}).Debugf("Set Option: %s = %v", opt.Key(), opt.Value())
	}

	return nil
}

// Reads a line. Running out of input is an error, except on a last line
// without a newline.
func (pm *PluginManager) prompt(msg string) (string, error) {
	if pm.reader == nil {
		pm.reader = bufio.NewReader(pm.In)
	}
	fmt.Fprint(pm.Out, msg+": ")
	in, err := pm.reader.ReadString('\n')
	if err != nil && (err != io.EOF || in == "") {
		return "", err
	}

	return strings.TrimSpace(in), nil
}

// Asks for an option until it's given a value it accepts. Empty input keeps
// the default, unless the option is required.
func (pm *PluginManager) optionPrompt(opt Option) error {
	if comment := opt.Comment(); comment != "" {
		fmt.Fprintln(pm.Out, comment)
	}

	label := "    " + opt.Key()
	if def := fmt.Sprint(opt.Value()); def != "" && !opt.IsRequired() {
		label += " [" + def + "]"
	}
	if opt.IsRequired() {
		label += "*"
	}

	for {
		in, err := pm.prompt(label)
		if err != nil {
			return err
		}
		switch {
		case in == "" && opt.IsRequired():
		case in == "":
			return nil
		default:
			if err := opt.Set(in); err != nil {
				log.Error(err)
				continue
			}
			return nil
		}
	}
}

func pluginName(p Plugin) string {
	return strings.TrimSpace(p.Name() + " " + p.Version())
}

// Options plugins use to tell the download manager what to do, keyed
// without their leading "!".
func GetSpecialOptions(p Plugin) map[string]Option {
	res := make(map[string]Option)
	for _, opt := range p.Options() {
		if key, ok := strings.CutPrefix(opt.Key(), "!"); ok {
			res[key] = opt
		}
	}

	return res
}
