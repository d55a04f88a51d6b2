package terrain

import (
	"context"
	"errors"
	"io/fs"
)

// A Forgetter is a Source that caches tile bodies and can drop a cached body.
type Forgetter interface {
	Forget(ctx context.Context, tileRequest TileRequest) error
}

// A Fetcher fetches and decodes tiles from a Source.
type Fetcher struct {
	source Source
}

// NewFetcher returns a new Fetcher that fetches tiles from source.
func NewFetcher(source Source) *Fetcher {
	return &Fetcher{
		source: source,
	}
}

// FetchTile fetches and decodes the tile identified by tileRequest. Any
// failure is returned as a *TileUnavailableError. If the body cannot be
// decoded and the source is a Forgetter then the body is forgotten.
func (f *Fetcher) FetchTile(ctx context.Context, tileRequest TileRequest) (*Tile, error) {
	body, err := f.source.TileBody(ctx, tileRequest)
	if err != nil {
		return nil, &TileUnavailableError{Tile: tileRequest, Err: err}
	}
	tile, err := DecodeTile(tileRequest, body)
	if err != nil {
		if forgetter, ok := f.source.(Forgetter); ok {
			if forgetErr := forgetter.Forget(ctx, tileRequest); forgetErr != nil {
				err = errors.Join(err, forgetErr)
			}
		}
		return nil, &TileUnavailableError{Tile: tileRequest, Err: err}
	}
	return tile, nil
}

// isMissing returns whether err indicates that a tile does not exist, as
// opposed to a transient failure.
func isMissing(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
