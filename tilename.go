package terrain

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// boundEpsilon is the tolerance used when comparing coordinates with tile
// boundaries.
const boundEpsilon = 1e-9

// TilesCovering returns the tiles that cover bound, ordered by latitude and
// then longitude. A bound whose north or east edge lies exactly on a tile
// boundary does not include the tile beyond it.
func TilesCovering(bound orb.Bound) []TileRequest {
	south, west := bound.Min[1], bound.Min[0]
	north, east := bound.Max[1], bound.Max[0]
	if !(south <= north && west <= east) {
		return nil
	}
	minLat, maxLat := coveringRange(south, north)
	minLon, maxLon := coveringRange(west, east)
	tileRequests := make([]TileRequest, 0, (maxLat-minLat+1)*(maxLon-minLon+1))
	for lat := minLat; lat <= maxLat; lat++ {
		for lon := minLon; lon <= maxLon; lon++ {
			tileRequests = append(tileRequests, TileRequest{Lat: lat, Lon: lon})
		}
	}
	return tileRequests
}

// coveringRange returns the first and last integer degrees of the tiles
// covering [lo, hi]. The last degree is ceil(hi)-1 rather than floor(hi) so
// that a bound equal to a single tile covers only that tile.
func coveringRange(lo, hi float64) (int, int) {
	first := int(math.Floor(lo))
	last := int(math.Ceil(hi)) - 1
	return first, max(first, last)
}

// TileName returns the name of the tile whose south-west corner is at (lat,
// lon), for example N35E138.
func TileName(lat, lon int) string {
	latHemisphere, lonHemisphere := 'N', 'E'
	if lat < 0 {
		latHemisphere = 'S'
	}
	if lon < 0 {
		lonHemisphere = 'W'
	}
	return fmt.Sprintf("%c%02d%c%03d", latHemisphere, abs(lat), lonHemisphere, abs(lon))
}

// ParseTileName parses a tile name as returned by TileName.
func ParseTileName(name string) (TileRequest, error) {
	var latHemisphere, lonHemisphere string
	var lat, lon int
	if n, err := fmt.Sscanf(name, "%1s%d%1s%d", &latHemisphere, &lat, &lonHemisphere, &lon); err != nil || n != 4 {
		return TileRequest{}, fmt.Errorf("%q: %w", name, ErrInvalidTileName)
	}
	switch latHemisphere {
	case "N":
	case "S":
		lat = -lat
	default:
		return TileRequest{}, fmt.Errorf("%q: %w", name, ErrInvalidTileName)
	}
	switch lonHemisphere {
	case "E":
	case "W":
		lon = -lon
	default:
		return TileRequest{}, fmt.Errorf("%q: %w", name, ErrInvalidTileName)
	}
	tileRequest := TileRequest{Lat: lat, Lon: lon}
	if lat < -90 || 89 < lat || lon < -180 || 179 < lon || tileRequest.Name() != name {
		return TileRequest{}, fmt.Errorf("%q: %w", name, ErrInvalidTileName)
	}
	return tileRequest, nil
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
