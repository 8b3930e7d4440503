package descramble

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
	"encoding/json"
	"errors"
	"strings"
)

const PtImgSuffix = ".ptimg.json"

var ErrPtImgNoResource = errors.New("ptimg manifest has no image resource.")

type PtImgResource struct {
	Src           string
	Width, Height int
}

type PtImgMetadata struct {
	Version      int
	Resource     PtImgResource
	Translations []Translation
}

type ptimgManifest struct {
	Version   int `json:"ptimg-version"`
	Resources struct {
		I *struct {
			Src    string `json:"src"`
			Width  int    `json:"width"`
			Height int    `json:"height"`
		} `json:"i"`
	} `json:"resources"`
	Views []struct {
		Width  int      `json:"width"`
		Height int      `json:"height"`
		Coords []string `json:"coords"`
	} `json:"views"`
}

func IsPtImgManifest(path string) bool {
	return strings.HasSuffix(path, PtImgSuffix)
}

// Parses a ptimg manifest. Only the first view is used; every coordinate
// string in it must be well formed.
func ParsePtImg(data []byte) (*PtImgMetadata, error) {
	var m ptimgManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if m.Resources.I == nil || m.Resources.I.Src == "" {
		return nil, ErrPtImgNoResource
	}

	res := &PtImgMetadata{
		Version: m.Version,
		Resource: PtImgResource{
			Src:    m.Resources.I.Src,
			Width:  m.Resources.I.Width,
			Height: m.Resources.I.Height,
		},
	}
	if len(m.Views) == 0 {
		return res, nil
	}

	res.Translations = make([]Translation, 0, len(m.Views[0].Coords))
	for _, c := range m.Views[0].Coords {
		t, err := ParseTranslation(c)
		if err != nil {
			return nil, err
		}
		res.Translations = append(res.Translations, t)
	}

	return res, nil
}
