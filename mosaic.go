package terrain

import (
	"fmt"
	"math"
	"slices"

	"github.com/paulmach/orb"

	"github.com/twpayne/go-terrain/raster"
)

// A Mosaic is an elevation grid assembled from tiles.
type Mosaic struct {
	Width  int
	Height int
	Bound  orb.Bound
	Data   []float32
	Stats  raster.Stats
}

// Compose stitches tiles into a single grid covering bound. The grid has the
// tiles' native resolution of Size-1 pixels per degree and is initialized to
// NoData. Source pixels outside bound are discarded. Where tiles overlap, the
// tile that sorts last by latitude and then longitude wins. Void source
// pixels are never written.
//
// If there is exactly one tile and bound is that tile's bound, the tile's
// native grid is returned unresampled.
func Compose(tiles []*Tile, bound orb.Bound) (*Mosaic, error) {
	if len(tiles) == 0 {
		return nil, ErrNoDataAvailable
	}
	if !(bound.Min[0] < bound.Max[0] && bound.Min[1] < bound.Max[1]) {
		return nil, fmt.Errorf("%v: %w", bound, ErrInvalidBound)
	}
	size := tiles[0].Size
	for _, tile := range tiles {
		if tile.Size != size || len(tile.Data) != size*size {
			return nil, fmt.Errorf("%s: size %d, expected %d", tile.Name(), tile.Size, size)
		}
	}

	if len(tiles) == 1 && boundsEqual(tiles[0].Bound(), bound) {
		return composeNative(tiles[0]), nil
	}

	pixelsPerDegree := float64(size - 1)
	west, south, east, north := bound.Min[0], bound.Min[1], bound.Max[0], bound.Max[1]
	width := max(int(math.Round(pixelsPerDegree*(east-west))), 1)
	height := max(int(math.Round(pixelsPerDegree*(north-south))), 1)
	data := make([]float32, width*height)
	for i := range data {
		data[i] = NoData
	}

	tiles = slices.Clone(tiles)
	slices.SortStableFunc(tiles, compareTiles)
	for _, tile := range tiles {
		tileWest, tileNorth := float64(tile.Lon), float64(tile.Lat+1)

		// Range of source columns and rows inside bound.
		minCol := max(int(math.Ceil((west-tileWest)*pixelsPerDegree-boundEpsilon)), 0)
		maxCol := min(int(math.Floor((east-tileWest)*pixelsPerDegree+boundEpsilon)), size-1)
		minRow := max(int(math.Ceil((tileNorth-north)*pixelsPerDegree-boundEpsilon)), 0)
		maxRow := min(int(math.Floor((tileNorth-south)*pixelsPerDegree+boundEpsilon)), size-1)
		if minCol > maxCol || minRow > maxRow {
			continue
		}

		dstXs := make([]int, maxCol-minCol+1)
		for col := minCol; col <= maxCol; col++ {
			lon := tileWest + float64(col)/pixelsPerDegree
			dstXs[col-minCol] = scaleIndex(lon-west, east-west, width)
		}
		for row := minRow; row <= maxRow; row++ {
			lat := tileNorth - float64(row)/pixelsPerDegree
			dstY := scaleIndex(north-lat, north-south, height)
			srcRow := tile.Data[row*size : (row+1)*size]
			dstRow := data[dstY*width : (dstY+1)*width]
			for col := minCol; col <= maxCol; col++ {
				if value := srcRow[col]; value != NoData {
					dstRow[dstXs[col-minCol]] = float32(value)
				}
			}
		}
	}

	return &Mosaic{
		Width:  width,
		Height: height,
		Bound:  bound,
		Data:   data,
		Stats:  raster.ComputeStats(data, NoData),
	}, nil
}

// composeNative returns tile's native grid as a Mosaic.
func composeNative(tile *Tile) *Mosaic {
	data := make([]float32, len(tile.Data))
	for i, value := range tile.Data {
		data[i] = float32(value)
	}
	return &Mosaic{
		Width:  tile.Size,
		Height: tile.Size,
		Bound:  tile.Bound(),
		Data:   data,
		Stats:  raster.ComputeStats(data, NoData),
	}
}

// scaleIndex returns the index of the pixel containing offset in a row of n
// pixels spanning extent.
func scaleIndex(offset, extent float64, n int) int {
	return min(max(int(math.Floor(offset/extent*float64(n)+boundEpsilon)), 0), n-1)
}

func boundsEqual(a, b orb.Bound) bool {
	return math.Abs(a.Min[0]-b.Min[0]) < boundEpsilon &&
		math.Abs(a.Min[1]-b.Min[1]) < boundEpsilon &&
		math.Abs(a.Max[0]-b.Max[0]) < boundEpsilon &&
		math.Abs(a.Max[1]-b.Max[1]) < boundEpsilon
}
