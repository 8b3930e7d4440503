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
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/MinoMino/binbdl/cache"
	"github.com/MinoMino/binbdl/config"
	"github.com/MinoMino/binbdl/descramble"
	"github.com/MinoMino/binbdl/logger"
	. "github.com/MinoMino/binbdl/plugins"
	"github.com/spf13/cobra"
	flag "github.com/spf13/pflag"
)

// Set by make on compilation.
var version = "UNSET"

var log = logger.GetLog("")

// Errors.
var (
	ErrInvalidOptionFormat = errors.New("Invalid option format. Should be key=value.")
	ErrUnknownFragment     = errors.New("Unknown fragment. Expected ptbinb,<p>,<c> or grid,<key>.")
	ErrNoHandler           = errors.New("Found no handler for one or more URLs.")
)

// Flag for options passed through the CLI that satisfies
// the pflag.Value interface.
type OptionsFlag map[string]string

func (opt *OptionsFlag) Get() interface{} {
	return *opt
}

func (opt *OptionsFlag) String() string {
	res := make([]string, 0, 5)
	for k, v := range map[string]string(*opt) {
		res = append(res, fmt.Sprintf("%q: %q", k, v))
	}

	content := strings.Join(res, ", ")
	if content != "" {
		return fmt.Sprintf("{%s}", content)
	}

	return ""
}

func (opt *OptionsFlag) Set(v string) error {
	split := strings.SplitN(v, "=", 2)
	if len(split) < 2 {
		return ErrInvalidOptionFormat
	}

	if *opt == nil {
		*opt = OptionsFlag(make(map[string]string))
	}
	(*opt)[split[0]] = split[1]
	return nil
}

func (opt *OptionsFlag) Type() string {
	return "key=value"
}

var (
	options                     OptionsFlag
	configPath                  string
	workers, quality, timeout   int
	verbose, defaults, noprompt bool
	zipit, lossless, lowQuality bool
	noCache                     bool
	directory, userAgent        string
	output                      string
)

// Defaults < config file < flags.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "binbdl [urls...]",
	Short: "Download and descramble manga pages from SpeedBinb and Corona EX readers",
	Long: `binbdl downloads the pages behind a manga reader URL and undoes the
scrambling the reader applies to them. Options for plugins are passed
with -o key=value.`,
	Args:              cobra.ArbitraryArgs,
	PersistentPreRunE: loadConfig,
	RunE:              run,
	SilenceUsage:      true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "binbdl %s\n", version)
	},
}

var descrambleCmd = &cobra.Command{
	Use:   "descramble <image> <fragment>",
	Short: "Descramble a page saved to disk",
	Long: `Descrambles a local image using a locator fragment, either
ptbinb,<p>,<c> or grid,<key>.`,
	Args: cobra.ExactArgs(2),
	RunE: descrambleRun,
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the page list cache",
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove expired entries from the cache",
	Args:  cobra.NoArgs,
	RunE:  cachePruneRun,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "",
		"Path to the config file. Defaults to $XDG_CONFIG_HOME/binbdl/config.toml.")
	pf.BoolVarP(&verbose, "verbose", "v", false,
		"Set to display debug messages.")
	pf.BoolVar(&lossless, "lossless", false,
		"Save descrambled pages as PNG instead of JPEG.")
	pf.IntVarP(&quality, "quality", "q", 0,
		"JPEG quality of descrambled pages.")

	f := rootCmd.Flags()
	f.VarP(&options, "option", "o",
		"Options in a key=value format passed to plugins.")
	f.IntVarP(&workers, "workers", "w", 0,
		"The number of workers to use.")
	f.BoolVarP(&defaults, "defaults", "d", false,
		"Set to use default values for options whenever possible. No effect if --no-prompt is on.")
	f.BoolVarP(&noprompt, "no-prompt", "n", false,
		"Set to turn off prompts for options and instead throw an error if a required option is left unset.")
	f.StringVarP(&directory, "directory", "D", "",
		"The directory in which to save the downloaded files.")
	f.BoolVarP(&zipit, "zip", "z", false,
		"Zip every downloaded directory.")
	f.BoolVar(&lowQuality, "low-quality", false,
		"Ask SpeedBinb servers for the smaller images.")
	f.IntVar(&timeout, "timeout", 0,
		"HTTP timeout in seconds.")
	f.StringVar(&userAgent, "user-agent", "",
		"User agent used for every request.")
	f.BoolVar(&noCache, "no-cache", false,
		"Don't read or write the page list cache.")

	descrambleCmd.Flags().StringVarP(&output, "output", "O", "",
		"Where to write the result. Defaults to <image>.descrambled.<ext>.")

	cacheCmd.AddCommand(cachePruneCmd)
	rootCmd.AddCommand(versionCmd, descrambleCmd, cacheCmd)
}

// Applies flags the user actually passed on top of the config.
func applyFlags(c *config.Config, fs *flag.FlagSet) {
	if fs.Changed("workers") {
		c.Workers = workers
	}
	if fs.Changed("directory") {
		c.Directory = directory
	}
	if fs.Changed("zip") {
		c.Zip = zipit
	}
	if fs.Changed("lossless") {
		c.Lossless = lossless
	}
	if fs.Changed("quality") {
		c.JPEGQuality = quality
	}
	if fs.Changed("low-quality") {
		c.HighQuality = !lowQuality
	}
	if fs.Changed("timeout") {
		c.Timeout = timeout
	}
	if fs.Changed("user-agent") {
		c.UserAgent = userAgent
	}
	if fs.Changed("no-cache") {
		c.Cache = !noCache
	}
	if fs.Changed("verbose") {
		c.Verbose = verbose
	}
}

func loadConfig(cmd *cobra.Command, args []string) error {
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	applyFlags(cfg, cmd.Flags())
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger.Verbose(cfg.Verbose)

	return nil
}

// Builds the plugin environment. The returned cache, if any, must be closed.
func environment(c *config.Config) (*Environment, error) {
	env := DefaultEnvironment()
	env.Timeout = c.TimeoutDuration()
	env.HighQuality = c.HighQuality
	env.Lossless = c.Lossless
	env.JPEGQuality = c.JPEGQuality
	if c.UserAgent != "" {
		env.UserAgent = c.UserAgent
	}
	if !c.Cache {
		return env, nil
	}

	path, err := config.CachePath()
	if err != nil {
		log.Warnf("Not using the cache: %v", err)
		return env, nil
	}
	if env.Cache, err = cache.Open(path, c.CacheTTL()); err != nil {
		return nil, err
	}

	return env, nil
}

func run(cmd *cobra.Command, urls []string) error {
	if len(urls) == 0 {
		return cmd.Help()
	}

	env, err := environment(cfg)
	if err != nil {
		return err
	}
	if env.Cache != nil {
		defer env.Cache.Close()
	}

	pm := NewPluginManager(Plugins[:])
	handlers := pm.FindHandlers(urls)
	configured := make(map[Plugin]bool)
	for i, h := range handlers {
		// Ensure we have at least one handler for each URL.
		if len(h) == 0 {
			log.Errorf("Found no handler for: %s", urls[i])
			return ErrNoHandler
		}
		for _, p := range h {
			if configured[p] {
				continue
			}
			values := PluginValues(p, cfg.Plugins, map[string]string(options))
			if err := pm.SetOptions(p, values, defaults, noprompt); err != nil {
				return err
			}
			configured[p] = true
		}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	var failed int
	for i, h := range handlers {
		p, err := pm.SelectPlugin(h, noprompt)
		if err != nil {
			return err
		}
		// If we're dealing with multiple URLs, print which one we're processing.
		if len(urls) > 1 {
			log.Infof("Processing URL: %s", urls[i])
		}
		log.Infof("Starting download using \"%s\"...", pluginName(p))
		if err := startDownloading(ctx, urls[i], p, env); err != nil {
			log.Error(err)
			if errors.Is(err, ErrInterrupted) {
				return err
			}
			failed++
		}
	}
	if failed != 0 {
		return fmt.Errorf("%d of %d downloads failed", failed, len(urls))
	}

	return nil
}

func startDownloading(ctx context.Context, url string, plugin Plugin, env *Environment) error {
	dm := NewDownloadManager(plugin, cfg.Directory, env)
	line := NewProgressLine(os.Stdout)
	defer line.Release()

	// Get a new progress string and refresh the progress
	// line in regular intervals.
	ticker := time.NewTicker(time.Millisecond * 500)
	done := make(chan struct{})
	defer func() {
		ticker.Stop()
		close(done)
	}()
	go func() {
		for {
			select {
			case <-ticker.C:
				line.Set(dm.ProgressString())
				line.Refresh()
			case <-done:
				return
			}
		}
	}()

	report, err := dm.Download(ctx, url, cfg.Workers, cfg.Zip, false)
	if report != nil {
		logReport(report)
	}

	return err
}

func logReport(r *Report) {
	var text int
	for _, page := range r.Pages {
		if page.Text && page.Err == nil {
			text++
		}
	}
	fields := logger.Fields{
		"saved":  len(r.Paths()),
		"failed": len(r.Failed()),
	}
	if text != 0 {
		fields["text"] = text
	}
	fields["path"] = r.Dir
	if r.Zip != "" {
		fields["path"] = r.Zip
	}
	if len(r.Failed()) != 0 {
		log.WithFields(fields).Warn("Finished with missing pages.")
		return
	}
	log.WithFields(fields).Infof("Done! Got a total of %d pages.", len(r.Paths()))
}

func descrambleRun(cmd *cobra.Command, args []string) error {
	src, fragment := args[0], strings.TrimPrefix(args[1], "#")
	params, ok := descramble.ParseFragment(fragment)
	if !ok {
		return ErrUnknownFragment
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}

	env, err := environment(&config.Config{
		Lossless:    cfg.Lossless,
		JPEGQuality: cfg.JPEGQuality,
		Timeout:     cfg.Timeout,
	})
	if err != nil {
		return err
	}
	res, err := env.Dispatcher(nil).Descramble(data, params)
	if err != nil {
		return err
	}

	dst := output
	if dst == "" {
		ext := ".jpg"
		if cfg.Lossless {
			ext = ".png"
		}
		if params.Unscrambled() {
			ext = filepath.Ext(src)
		}
		dst = strings.TrimSuffix(src, filepath.Ext(src)) + ".descrambled" + ext
	}
	if err := os.WriteFile(dst, res, 0644); err != nil {
		return err
	}
	log.WithField("path", dst).Info("Descrambled.")

	return nil
}

func cachePruneRun(cmd *cobra.Command, args []string) error {
	path, err := config.CachePath()
	if err != nil {
		return err
	}
	c, err := cache.Open(path, cfg.CacheTTL())
	if err != nil {
		return err
	}
	defer c.Close()

	n, err := c.Prune()
	if err != nil {
		return err
	}
	log.Infof("Removed %d expired entries.", n)

	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
