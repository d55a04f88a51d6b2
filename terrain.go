// Package terrain fetches 1°×1° SRTM elevation tiles and composites them into
// raster datasets covering arbitrary bounding boxes.
package terrain

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// Tile sizes.
const (
	SRTM1Size = 3601 // One arc second.
	SRTM3Size = 1201 // Three arc seconds.
)

// Latitude coverage of the public elevation tile service.
const (
	MinLat = -60
	MaxLat = 60
)

// NoData is the sample value of voids in tiles.
const NoData = -32768

var (
	ErrCoverage        = errors.New("outside terrain coverage")
	ErrInvalidBound    = errors.New("invalid bounding box")
	ErrInvalidTileName = errors.New("invalid tile name")
	ErrNoDataAvailable = errors.New("no data available")
	ErrTileUnavailable = errors.New("tile unavailable")
)

// A TileRequest identifies a 1°×1° tile by its south-west corner.
type TileRequest struct {
	Lat int
	Lon int
}

// Name returns r's tile name, for example N35E138.
func (r TileRequest) Name() string {
	return TileName(r.Lat, r.Lon)
}

// Dir returns the directory containing r's tile on the tile service, for
// example N35.
func (r TileRequest) Dir() string {
	return r.Name()[:3]
}

// Bound returns r's geographic bounds.
func (r TileRequest) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{float64(r.Lon), float64(r.Lat)},
		Max: orb.Point{float64(r.Lon + 1), float64(r.Lat + 1)},
	}
}

func (r TileRequest) String() string {
	return r.Name()
}

// A Tile is a decoded elevation tile. Data contains Size×Size samples, row
// major from north to south and west to east. Samples lie on the grid lines,
// so the first and last rows and columns are shared with neighboring tiles.
type Tile struct {
	TileRequest
	Size int
	Data []int16
}

// A CoverageError is returned when a bounding box extends outside the
// latitudes covered by the tile service.
type CoverageError struct {
	South float64
	North float64
}

func (e *CoverageError) Error() string {
	return fmt.Sprintf("latitudes %g..%g: outside coverage %d..%d", e.South, e.North, MinLat, MaxLat)
}

func (e *CoverageError) Is(target error) bool {
	return target == ErrCoverage
}

// A TileUnavailableError is returned when a tile cannot be fetched or
// decoded.
type TileUnavailableError struct {
	Tile TileRequest
	Err  error
}

func (e *TileUnavailableError) Error() string {
	return fmt.Sprintf("%s: %v", e.Tile, e.Err)
}

func (e *TileUnavailableError) Is(target error) bool {
	return target == ErrTileUnavailable
}

func (e *TileUnavailableError) Unwrap() error {
	return e.Err
}

// CheckBound returns an error if bound is empty or outside the latitude
// coverage of the tile service.
func CheckBound(bound orb.Bound) error {
	if !(bound.Min[0] < bound.Max[0] && bound.Min[1] < bound.Max[1]) {
		return fmt.Errorf("%v: %w", bound, ErrInvalidBound)
	}
	if bound.Min[0] < -180 || 180 < bound.Max[0] {
		return fmt.Errorf("%v: %w", bound, ErrInvalidBound)
	}
	if bound.Min[1] < MinLat || MaxLat < bound.Max[1] {
		return &CoverageError{South: bound.Min[1], North: bound.Max[1]}
	}
	return nil
}

// ParseBBox parses a bounding box given as west,south,east,north. It does not
// check the bounding box; see CheckBound.
func ParseBBox(s string) (orb.Bound, error) {
	fields := strings.Split(s, ",")
	if len(fields) != 4 {
		return orb.Bound{}, fmt.Errorf("%q: want west,south,east,north: %w", s, ErrInvalidBound)
	}
	var values [4]float64
	for i, field := range fields {
		value, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
			return orb.Bound{}, fmt.Errorf("%q: %w", s, ErrInvalidBound)
		}
		values[i] = value
	}
	return orb.Bound{
		Min: orb.Point{values[0], values[1]},
		Max: orb.Point{values[2], values[3]},
	}, nil
}
