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
	"github.com/MinoMino/binbdl/plugins"
	"github.com/MinoMino/binbdl/plugins/booklive"
	"github.com/MinoMino/binbdl/plugins/coronaex"
	"github.com/MinoMino/binbdl/plugins/speedbinb"
)

// Global slice of Plugin objects. Site specific plugins go
// before the generic SpeedBinb one.
var Plugins = [...]plugins.Plugin{
	&booklive.Plugin,
	&coronaex.Plugin,
	&speedbinb.Plugin,
}
