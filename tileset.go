package terrain

import (
	"cmp"
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"math"
	"slices"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

var (
	missingTileCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "terrain_missing_tile_cache_hits_total",
		Help: "The total number of hits on the missing tile cache",
	})
	missingTileCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "terrain_missing_tile_cache_misses_total",
		Help: "The total number of misses on the missing tile cache",
	})
	tileCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "terrain_tile_cache_hits_total",
		Help: "The total number of hits on the tile cache",
	})
	tileCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "terrain_tile_cache_misses_total",
		Help: "The total number of misses on the tile cache",
	})
	tileCacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "terrain_tile_cache_evictions_total",
		Help: "The total number of evictions from the tile cache",
	})
	tileFetchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "terrain_tile_fetch_failures_total",
		Help: "The total number of tile fetches that failed for reasons other than the tile not existing",
	})
)

// A TileSet is a cached set of tiles from a Source.
type TileSet struct {
	source       Source
	fetcher      *Fetcher
	missingTiles sync.Map
	cacheSize    int
	concurrency  int
	fetchTimeout time.Duration
	logger       *slog.Logger
	tileCache    *lru.Cache[TileRequest, *Tile]
	group        singleflight.Group
}

// A TileSetOption sets an option on a TileSet.
type TileSetOption func(*TileSet)

// NewTileSet returns a new TileSet with the given options.
func NewTileSet(options ...TileSetOption) (*TileSet, error) {
	s := &TileSet{
		cacheSize:   16,
		concurrency:  4,
		fetchTimeout: time.Minute,
		logger:       slog.New(slog.DiscardHandler),
	}
	for _, option := range options {
		option(s)
	}
	if s.source == nil {
		return nil, errors.New("no source")
	}
	s.fetcher = NewFetcher(s.source)

	var err error
	s.tileCache, err = lru.New[TileRequest, *Tile](s.cacheSize)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// WithCacheSize sets the maximum number of decoded tiles held in memory.
func WithCacheSize(cacheSize int) TileSetOption {
	return func(s *TileSet) {
		s.cacheSize = cacheSize
	}
}

// WithConcurrency sets the maximum number of concurrent tile fetches.
func WithConcurrency(concurrency int) TileSetOption {
	return func(s *TileSet) {
		s.concurrency = max(concurrency, 1)
	}
}

// WithFetchTimeout sets the maximum duration of a single tile fetch. A fetch
// is shared by all callers waiting for the same tile and is not canceled when
// any one of them gives up.
func WithFetchTimeout(fetchTimeout time.Duration) TileSetOption {
	return func(s *TileSet) {
		s.fetchTimeout = fetchTimeout
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) TileSetOption {
	return func(s *TileSet) {
		s.logger = logger
	}
}

// WithSource sets the source of tiles.
func WithSource(source Source) TileSetOption {
	return func(s *TileSet) {
		s.source = source
	}
}

// Tile returns the tile identified by tileRequest, using the cache if
// possible. Tiles that do not exist are remembered and not fetched again.
func (s *TileSet) Tile(ctx context.Context, tileRequest TileRequest) (*Tile, error) {
	if _, ok := s.missingTiles.Load(tileRequest); ok {
		missingTileCacheHits.Inc()
		return nil, &TileUnavailableError{Tile: tileRequest, Err: fs.ErrNotExist}
	}

	if tile, ok := s.tileCache.Get(tileRequest); ok {
		tileCacheHits.Inc()
		return tile, nil
	}

	resultCh := s.group.DoChan(tileRequest.Name(), func() (any, error) {
		if tile, ok := s.tileCache.Get(tileRequest); ok {
			tileCacheHits.Inc()
			return tile, nil
		}

		tileCacheMisses.Inc()

		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fetchTimeout)
		defer cancel()
		switch tile, err := s.fetcher.FetchTile(fetchCtx, tileRequest); {
		case isMissing(err):
			s.missingTiles.Store(tileRequest, struct{}{})
			missingTileCacheMisses.Inc()
			return nil, err
		case err != nil:
			tileFetchFailures.Inc()
			return nil, err
		default:
			if eviction := s.tileCache.Add(tileRequest, tile); eviction {
				tileCacheEvictions.Inc()
			}
			return tile, nil
		}
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case result := <-resultCh:
		if result.Err != nil {
			return nil, result.Err
		}
		return result.Val.(*Tile), nil
	}
}

// Tiles returns the available tiles of tileRequests, sorted by latitude and
// then longitude. Tiles are fetched concurrently. Unavailable tiles are
// skipped. An error is only returned if ctx is canceled.
func (s *TileSet) Tiles(ctx context.Context, tileRequests []TileRequest) ([]*Tile, error) {
	tiles := make([]*Tile, len(tileRequests))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, tileRequest := range tileRequests {
		g.Go(func() error {
			switch tile, err := s.Tile(ctx, tileRequest); {
			case err == nil:
				tiles[i] = tile
			case ctx.Err() != nil:
				return ctx.Err()
			case isMissing(err):
				s.logger.DebugContext(ctx, "missing tile", "tile", tileRequest.Name())
			default:
				s.logger.WarnContext(ctx, "tile unavailable", "tile", tileRequest.Name(), "err", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	tiles = slices.DeleteFunc(tiles, func(tile *Tile) bool {
		return tile == nil
	})
	slices.SortFunc(tiles, compareTiles)
	return tiles, nil
}

// Elevation returns the bilinearly interpolated elevations at coords, given
// as [lon, lat]. Missing elevations are represented by NaNs.
func (s *TileSet) Elevation(ctx context.Context, coords [][]float64) ([]float64, error) {
	elevations := make([]float64, len(coords))

	// Group indexes by tile.
	indexesByTileRequest := make(map[TileRequest][]int)
	for index, coord := range coords {
		lon, lat := coord[0], coord[1]
		if lat < MinLat || MaxLat < lat || lon < -180 || 180 < lon {
			elevations[index] = math.NaN()
			continue
		}
		tileRequest := TileRequest{
			Lat: min(int(math.Floor(lat)), MaxLat-1),
			Lon: min(int(math.Floor(lon)), 179),
		}
		indexesByTileRequest[tileRequest] = append(indexesByTileRequest[tileRequest], index)
	}

	// Populate elevations one tile at a time.
	for tileRequest, indexes := range indexesByTileRequest {
		tile, err := s.Tile(ctx, tileRequest)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			for _, index := range indexes {
				elevations[index] = math.NaN()
			}
			continue
		}
		for _, index := range indexes {
			elevations[index] = tile.Sample(coords[index][0], coords[index][1])
		}
	}

	return elevations, nil
}

func compareTiles(a, b *Tile) int {
	return cmp.Or(
		cmp.Compare(a.Lat, b.Lat),
		cmp.Compare(a.Lon, b.Lon),
	)
}
