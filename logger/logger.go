package logger

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
	"io"
	"os"

	log "github.com/sirupsen/logrus"
)

// A cute little helper struct that forces the writer to
// get the value of os.Stdout every time it writes.
// Setting this as the output for the logger makes sure that
// if os.Stdout gets replaced, log lines still go through
// whatever os.Stdout currently is.
type stdoutReferer struct {
	stdout **os.File
}

func (std *stdoutReferer) Write(p []byte) (int, error) {
	w := *std.stdout
	return w.Write(p)
}

type Fields = log.Fields

func init() {
	log.SetOutput(&stdoutReferer{&os.Stdout})
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:          true,
		TimestampFormat:        "15:04:05",
		DisableLevelTruncation: false,
		PadLevelText:           true,
	})
}

func Verbose(enable bool) {
	if enable {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}

// Returns a logger tagged with the name of whoever is logging.
// An empty name gets the standard logger.
func GetLog(name string) log.FieldLogger {
	if name == "" {
		return log.StandardLogger()
	}

	return log.WithField("name", name)
}

// Sends log output to w instead of the current os.Stdout. A nil w restores
// the default.
func SetOutput(w io.Writer) {
	if w == nil {
		w = &stdoutReferer{&os.Stdout}
	}
	log.SetOutput(w)
}
