package terrain

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/paulmach/orb"

	"github.com/twpayne/go-terrain/raster"
)

// BandName is the name of the band of datasets returned by Service.
const BandName = "elevation"

// A Service builds elevation datasets for bounding boxes.
type Service struct {
	tileSet *TileSet
	logger  *slog.Logger
}

// A ServiceOption sets an option on a Service.
type ServiceOption func(*Service)

// NewService returns a new Service that fetches tiles from tileSet.
func NewService(tileSet *TileSet, options ...ServiceOption) *Service {
	s := &Service{
		tileSet: tileSet,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// WithServiceLogger sets the logger.
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// TileSet returns s's tile set.
func (s *Service) TileSet() *TileSet {
	return s.tileSet
}

// Dataset returns a single band dataset of the elevations in bound. Bounds
// outside the tile service's coverage are rejected before any tile is
// fetched. If no tile is available, or the available tiles contain only
// voids inside bound, it returns an error wrapping ErrNoDataAvailable.
func (s *Service) Dataset(ctx context.Context, bound orb.Bound) (*raster.Dataset, error) {
	if err := CheckBound(bound); err != nil {
		return nil, err
	}

	tileRequests := TilesCovering(bound)
	tiles, err := s.tileSet.Tiles(ctx, tileRequests)
	if err != nil {
		return nil, err
	}
	if len(tiles) == 0 {
		return nil, fmt.Errorf("%d tiles unavailable: %w", len(tileRequests), ErrNoDataAvailable)
	}

	mosaic, err := Compose(tiles, bound)
	if err != nil {
		return nil, err
	}
	if !mosaic.Stats.Valid {
		return nil, fmt.Errorf("%d tiles contain only voids: %w", len(tiles), ErrNoDataAvailable)
	}
	s.logger.DebugContext(ctx, "mosaic",
		"tiles", len(tiles),
		"requested", len(tileRequests),
		"width", mosaic.Width,
		"height", mosaic.Height,
	)

	return raster.NewDataset(mosaic.Width, mosaic.Height, mosaic.Bound, mosaic.Data,
		raster.WithNodata(NoData),
		raster.WithBandName(BandName),
	)
}

// Elevation returns the elevations at coords, given as [lon, lat]. Missing
// elevations are represented by NaNs.
func (s *Service) Elevation(ctx context.Context, coords [][]float64) ([]float64, error) {
	return s.tileSet.Elevation(ctx, coords)
}
