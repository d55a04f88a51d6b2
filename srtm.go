package terrain

import (
	"io/fs"
	"slices"
)

// NewSRTM returns a new TileSet of SRTM tiles from the public elevation tile
// service.
func NewSRTM(options ...TileSetOption) (*TileSet, error) {
	return NewTileSet(slices.Concat(
		[]TileSetOption{
			WithSource(NewHTTPSource()),
		},
		options,
	)...)
}

// NewSRTMFS returns a new TileSet of SRTM tiles read from fsys.
func NewSRTMFS(fsys fs.FS, options ...TileSetOption) (*TileSet, error) {
	return NewTileSet(slices.Concat(
		[]TileSetOption{
			WithSource(NewFSSource(fsys)),
		},
		options,
	)...)
}
