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
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/MinoMino/binbdl/logger"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"
)

// Download speed is averaged over this window.
const speedWindow = 5 * time.Second

type sample struct {
	t     time.Time
	bytes int64
}

// Keeps track of finished pages, bytes read and busy workers.
type Progress struct {
	mu      sync.Mutex
	total   int
	done    int
	failed  int
	bytes   int64
	active  map[int]struct{}
	samples []sample
	// Defaults to time.Now.
	Now func() time.Time
}

func NewProgress(total int) *Progress {
	return &Progress{total: total, active: make(map[int]struct{})}
}

func (p *Progress) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}

	return time.Now()
}

// Reports n bytes read by a worker.
func (p *Progress) Report(worker, n int) {
	p.mu.Lock()
	p.bytes += int64(n)
	p.active[worker] = struct{}{}
	p.mu.Unlock()
}

// Marks a worker as finished, whether it succeeded or not.
func (p *Progress) Done(worker int) {
	p.mu.Lock()
	delete(p.active, worker)
	p.mu.Unlock()
}

// Adds saved pages.
func (p *Progress) Progress(pages int) {
	p.mu.Lock()
	p.done += pages
	p.mu.Unlock()
}

// Adds pages that gave up.
func (p *Progress) Fail(pages int) {
	p.mu.Lock()
	p.failed += pages
	p.mu.Unlock()
}

func (p *Progress) Failed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failed
}

func (p *Progress) Finished() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// Bytes per second over the last speedWindow. Every call takes a sample.
func (p *Progress) Speed() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.speed()
}

func (p *Progress) speed() float64 {
	now := p.now()
	p.samples = append(p.samples, sample{now, p.bytes})
	i := 0
	for i < len(p.samples)-1 && now.Sub(p.samples[i].t) > speedWindow {
		i++
	}
	p.samples = p.samples[i:]

	first := p.samples[0]
	dt := now.Sub(first.t).Seconds()
	if dt <= 0 {
		return 0
	}

	return float64(p.bytes-first.bytes) / dt
}

func (p *Progress) String() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	speed := humanize.Bytes(uint64(p.speed())) + "/s"

	parts := []string{fmt.Sprintf("%d/%d pages", p.done, p.total)}
	if p.total > 0 {
		parts[0] += fmt.Sprintf(" (%d%%)", p.done*100/p.total)
	}
	if p.failed > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", p.failed))
	}
	parts = append(parts, speed, fmt.Sprintf("%d active", len(p.active)))

	return strings.Join(parts, " | ")
}

var progressStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))

// A line at the bottom of the terminal that keeps getting redrawn. Log
// lines written through it end up above it. When the output isn't a
// terminal, nothing is drawn and writes go straight through.
type ProgressLine struct {
	mu   sync.Mutex
	out  *os.File
	tty  bool
	text string
}

// Takes over the logger's output until Release is called.
func NewProgressLine(out *os.File) *ProgressLine {
	pl := &ProgressLine{out: out, tty: term.IsTerminal(int(out.Fd()))}
	if pl.tty {
		logger.SetOutput(pl)
	}

	return pl
}

func (pl *ProgressLine) Set(text string) {
	pl.mu.Lock()
	pl.text = text
	pl.mu.Unlock()
}

func (pl *ProgressLine) width() int {
	w, _, err := term.GetSize(int(pl.out.Fd()))
	if err != nil || w <= 0 {
		return 80
	}

	return w
}

// Must be called with the lock held.
func (pl *ProgressLine) draw() {
	if !pl.tty || pl.text == "" {
		return
	}
	text := runewidth.Truncate(pl.text, pl.width()-1, "…")
	io.WriteString(pl.out, progressStyle.Render(text))
}

func (pl *ProgressLine) clear() {
	if pl.tty {
		io.WriteString(pl.out, "\r\x1b[2K")
	}
}

func (pl *ProgressLine) Refresh() {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	pl.clear()
	pl.draw()
}

func (pl *ProgressLine) Write(p []byte) (int, error) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	pl.clear()
	n, err := pl.out.Write(p)
	if err == nil && pl.tty && !strings.HasSuffix(string(p), "\n") {
		io.WriteString(pl.out, "\n")
	}
	pl.draw()

	return n, err
}

// Clears the line and gives the logger its output back.
func (pl *ProgressLine) Release() {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	pl.clear()
	if pl.tty {
		logger.SetOutput(nil)
	}
}
