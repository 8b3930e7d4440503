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
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/MinoMino/binbdl/descramble"
	"github.com/MinoMino/binbdl/logger"
	. "github.com/MinoMino/binbdl/plugins"
	"github.com/MinoMino/binbdl/plugins/binb"
	"github.com/MinoMino/binbdl/textpage"
)

const (
	dirPermission  = 0755
	filePermission = 0644
)

var (
	ErrInvalidSpecialOptionType = errors.New("A special option was not of the expected type.")
	ErrInterrupted              = errors.New("The download failed to finish because of an interrupt.")
	ErrBadDirectory             = errors.New("Plugin returned a directory outside the download directory.")
	ErrPagesFailed              = errors.New("Some pages could not be saved.")
)

// What a page was going through when it failed.
type Stage string

const (
	StageFetch      Stage = "fetch"
	StageDescramble Stage = "descramble"
	StageRender     Stage = "render"
	StageSave       Stage = "save"
)

type PageError struct {
	// Zero-based, like binb.PageLocator.
	Index int
	Stage Stage
	Err   error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("page %d: %s: %v", e.Index+1, e.Stage, e.Err)
}

func (e *PageError) Unwrap() error {
	return e.Err
}

// Returned when the chapter finished but some of its pages didn't make it.
type PagesError struct {
	Total  int
	Failed []*PageError
}

func (e *PagesError) Error() string {
	return fmt.Sprintf("%d of %d pages failed, first: %v", len(e.Failed), e.Total, e.Failed[0])
}

func (e *PagesError) Is(target error) bool {
	return target == ErrPagesFailed
}

func (e *PagesError) Unwrap() []error {
	res := make([]error, len(e.Failed))
	for i, err := range e.Failed {
		res[i] = err
	}

	return res
}

type PageResult struct {
	Index int
	// Empty if the page failed.
	Path string
	// Text pages are rendered rather than downloaded.
	Text bool
	Err  *PageError
}

// What a download left on disk.
type Report struct {
	// Where the pages were saved. Gone if they got zipped.
	Dir string
	// Empty unless zipped.
	Zip string
	// Sorted by index. Pages never started because of an interrupt are left out.
	Pages []PageResult
}

func (r *Report) Paths() []string {
	var res []string
	for _, page := range r.Pages {
		if page.Path != "" {
			res = append(res, page.Path)
		}
	}

	return res
}

func (r *Report) Failed() []*PageError {
	var res []*PageError
	for _, page := range r.Pages {
		if page.Err != nil {
			res = append(res, page.Err)
		}
	}

	return res
}

type DownloadManager struct {
	plugin    Plugin
	env       *Environment
	directory string

	m        sync.Mutex
	progress *Progress
	last     string
}

func NewDownloadManager(plugin Plugin, directory string, env *Environment) *DownloadManager {
	if env == nil {
		env = DefaultEnvironment()
	}

	return &DownloadManager{
		plugin:    plugin,
		env:       env,
		directory: directory,
	}
}

// The number of workers the plugin insists on, if any.
func forcedWorkers(p Plugin) (int, bool, error) {
	opt, ok := GetSpecialOptions(p)["Workers"]
	if !ok {
		return 0, false, nil
	}
	n, ok := opt.Value().(int)
	if !ok {
		return 0, false, ErrInvalidSpecialOptionType
	}

	return n, true, nil
}

// Resolves the URL with the plugin and saves every page of the chapter under
// the download directory. Pages that fail are logged and reported, the rest
// are still saved. Cancelling ctx stops handing out pages and returns
// ErrInterrupted along with what got done. With override, the plugin can't
// force the number of workers.
func (dm *DownloadManager) Download(ctx context.Context, rawurl string, maxWorkers int, zipit, override bool) (report *Report, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Info("Cleaning up early due to a panic...")
			dm.plugin.Cleanup(fmt.Errorf("%v", r))
			panic(r)
		}
	}()

	if !override {
		n, forced, err := forcedWorkers(dm.plugin)
		if err != nil {
			dm.plugin.Cleanup(err)
			return nil, err
		} else if forced {
			log.Warnf("This plugin forces the --workers flag to %d.", n)
			maxWorkers = n
		}
	}
	if maxWorkers < 1 {
		maxWorkers = 1
	}

	ch, err := dm.plugin.Resolve(dm.env, rawurl)
	if err == nil && len(ch.Pages) == 0 {
		err = ErrNoPages
	} else if err == nil && !filepath.IsLocal(ch.Dir) {
		log.WithField("dir", ch.Dir).Error("Refusing to save outside the download directory.")
		err = ErrBadDirectory
	}
	if err != nil {
		log.Info("Cleaning up early due to an error...")
		dm.plugin.Cleanup(err)
		return nil, err
	}

	report = &Report{Dir: filepath.Join(dm.directory, ch.Dir)}
	log.WithField("path", report.Dir).Debug("Creating the chapter directory.")
	if err := os.MkdirAll(report.Dir, dirPermission); err != nil {
		dm.plugin.Cleanup(err)
		return nil, err
	}

	dm.m.Lock()
	dm.progress = NewProgress(len(ch.Pages))
	dm.last = ""
	dm.m.Unlock()

	report.Pages = dm.run(ctx, ch, report.Dir, maxWorkers)
	if ctx.Err() != nil {
		log.Info("Interrupted! Cleaning up...")
		dm.plugin.Cleanup(ErrInterrupted)
		return report, ErrInterrupted
	}

	if failed := report.Failed(); len(failed) != 0 {
		for _, pe := range failed {
			log.WithFields(logger.Fields{
				"page":  pe.Index + 1,
				"stage": pe.Stage,
			}).Error(pe.Err)
		}
		// Partial chapters are left unzipped.
		err := &PagesError{Total: len(ch.Pages), Failed: failed}
		dm.plugin.Cleanup(err)
		return report, err
	}

	if zipit {
		if report.Zip, err = zipChapter(report.Dir); err != nil {
			log.Info("Cleaning up early due to error while zipping...")
			dm.plugin.Cleanup(err)
			return report, err
		}
		report.Dir = ""
	}

	log.Info("Cleaning up...")
	dm.plugin.Cleanup(nil)
	return report, nil
}

// Hands the pages out to the workers and collects what they return.
func (dm *DownloadManager) run(ctx context.Context, ch *Chapter, dir string, workers int) []PageResult {
	fetcher := ch.Fetcher
	if fetcher == nil {
		fetcher = dm.env.Fetcher(dm.env.NewClient())
	}
	if workers > len(ch.Pages) {
		workers = len(ch.Pages)
	}

	pages := make(chan binb.PageLocator)
	// Big enough that no worker blocks once we stop listening.
	results := make(chan PageResult, len(ch.Pages))
	var wg sync.WaitGroup
	for n := 0; n < workers; n++ {
		wg.Add(1)
		go func(w *worker) {
			defer wg.Done()
			for page := range pages {
				results <- w.page(page)
			}
		}(dm.newWorker(n, fetcher, dir))
	}

	go func() {
		defer close(pages)
		for _, page := range ch.Pages {
			select {
			case pages <- page:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	res := make([]PageResult, 0, len(ch.Pages))
loop:
	for {
		select {
		case r, ok := <-results:
			if !ok {
				break loop
			}
			dm.finished(r)
			res = append(res, r)
		case <-ctx.Done():
			break loop
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Index < res[j].Index })

	return res
}

func (dm *DownloadManager) finished(r PageResult) {
	dm.m.Lock()
	defer dm.m.Unlock()
	if r.Err != nil {
		dm.progress.Fail(1)
		return
	}
	dm.progress.Progress(1)
	dm.last = r.Path
	log.Debug("Got file: " + r.Path)
}

// Counts bytes towards a worker's progress.
type progressWriter struct {
	progress *Progress
	n        int
}

func (pw progressWriter) Write(p []byte) (int, error) {
	pw.progress.Report(pw.n, len(p))
	return len(p), nil
}

type worker struct {
	n          int
	dir        string
	progress   *Progress
	fetcher    *HTTPFetcher
	dispatcher *descramble.Dispatcher
}

func (dm *DownloadManager) newWorker(n int, fetcher *HTTPFetcher, dir string) *worker {
	w := &worker{n: n, dir: dir, progress: dm.progress}
	w.fetcher = fetcher.WithCopy(func(dst io.Writer, src io.Reader) (int64, error) {
		return io.Copy(io.MultiWriter(dst, progressWriter{w.progress, n}), src)
	})
	w.dispatcher = dm.env.Dispatcher(w.fetcher)

	return w
}

// Gets, descrambles and saves a single page.
func (w *worker) page(page binb.PageLocator) (res PageResult) {
	res = PageResult{Index: page.Index, Text: page.Text != ""}
	stage := StageFetch
	fail := func(err error) PageResult {
		res.Err = &PageError{Index: page.Index, Stage: stage, Err: err}
		return res
	}
	defer func() {
		if r := recover(); r != nil {
			res.Path = ""
			fail(fmt.Errorf("panic: %v", r))
		}
		w.progress.Done(w.n)
	}()

	var data []byte
	var err error
	if page.Text != "" {
		stage = StageRender
		if data, err = textpage.Render(page.Text); err != nil {
			return fail(err)
		}
	} else if data, stage, err = w.image(page.URL); err != nil {
		return fail(err)
	}

	stage = StageSave
	path := filepath.Join(w.dir, fmt.Sprintf("%04d%s", page.Index+1, extension(data)))
	if err := os.WriteFile(path, data, filePermission); err != nil {
		return fail(err)
	}
	res.Path = path

	return res
}

// Returns the finished image behind a locator, or the stage it failed at.
func (w *worker) image(locator string) ([]byte, Stage, error) {
	u, err := url.Parse(locator)
	if err != nil {
		return nil, StageFetch, err
	}
	if descramble.IsPtImgManifest(u.Path) {
		// The manifest, the image and the rearranging all happen in one go.
		data, err := w.dispatcher.Page(locator)
		if err != nil && !isFetchError(err) {
			return nil, StageDescramble, err
		}
		return data, StageFetch, err
	}

	fragment := u.Fragment
	u.Fragment, u.RawFragment = "", ""
	data, err := w.fetcher.Fetch(u.String())
	if err != nil {
		return nil, StageFetch, err
	}
	p, ok := descramble.ParseFragment(fragment)
	if !ok {
		if fragment != "" {
			log.WithField("fragment", fragment).Warn("Unknown fragment, saving the page as is.")
		}
		return data, StageFetch, nil
	}
	if data, err = w.dispatcher.Descramble(data, p); err != nil {
		return nil, StageDescramble, err
	}

	return data, StageDescramble, nil
}

func isFetchError(err error) bool {
	var status *ErrHTTPStatusCode
	var urlErr *url.Error
	return errors.As(err, &status) || errors.As(err, &urlErr)
}

// Picks a file extension from the magic bytes.
func extension(data []byte) string {
	switch http.DetectContentType(data) {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/bmp":
		return ".bmp"
	}

	return ".jpg"
}

func (dm *DownloadManager) ProgressString() string {
	dm.m.Lock()
	defer dm.m.Unlock()
	if dm.progress == nil {
		return ""
	}
	if dm.last == "" {
		return dm.progress.String()
	}

	return dm.progress.String() + " | Last: " + filepath.Base(dm.last)
}

// Packs the files of a chapter directory into <dir>.zip next to it, then
// removes the directory.
func zipChapter(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	path := strings.TrimRight(dir, string(os.PathSeparator)) + ".zip"
	log.Infof("Zipping files to: %s", filepath.Base(path))

	out, err := os.Create(path)
	if err != nil {
		return "", err
	}
	zw := zip.NewWriter(out)
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if err := addToZip(zw, dir, entry.Name()); err != nil {
			out.Close()
			return "", err
		}
	}
	if err := zw.Close(); err != nil {
		out.Close()
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", err
	}

	log.Debugf("Deleting '%s'...", dir)
	return path, os.RemoveAll(dir)
}

func addToZip(zw *zip.Writer, dir, name string) error {
	log.Debugf("  Zipping file: %s", name)
	// 0x800 marks the name as UTF-8.
	fw, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Flags: 0x800})
	if err != nil {
		return err
	}
	f, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(fw, f)

	return err
}
