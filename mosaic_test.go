package terrain_test

import (
	"math/rand/v2"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/paulmach/orb"

	"github.com/twpayne/go-terrain"
	"github.com/twpayne/go-terrain/raster"
)

func newConstantTile(lat, lon int, value int16) *terrain.Tile {
	return &terrain.Tile{
		TileRequest: terrain.TileRequest{Lat: lat, Lon: lon},
		Size:        testTileSize,
		Data:        newConstantTileData(value),
	}
}

func TestComposeAdjacentTiles(t *testing.T) {
	tiles := []*terrain.Tile{
		newConstantTile(35, 139, 200),
		newConstantTile(35, 138, 100),
	}
	bound := orb.Bound{Min: orb.Point{138, 35}, Max: orb.Point{140, 36}}
	mosaic, err := terrain.Compose(tiles, bound)
	assert.NoError(t, err)
	assert.Equal(t, 20, mosaic.Width)
	assert.Equal(t, 10, mosaic.Height)
	assert.Equal(t, bound, mosaic.Bound)
	assert.Equal(t, raster.Stats{Min: 100, Max: 200, Valid: true}, mosaic.Stats)

	// Pixels west of 139°E are strictly inside the western tile.
	for y := range mosaic.Height {
		for x := range mosaic.Width {
			expected := float32(100)
			if x >= 10 {
				expected = 200
			}
			assert.Equal(t, expected, mosaic.Data[y*mosaic.Width+x])
		}
	}
}

func TestComposeNativeTile(t *testing.T) {
	tile := newConstantTile(-23, 117, 0)
	for i := range tile.Data {
		tile.Data[i] = int16(i)
	}
	tile.Data[5] = terrain.NoData
	mosaic, err := terrain.Compose([]*terrain.Tile{tile}, tile.Bound())
	assert.NoError(t, err)
	assert.Equal(t, testTileSize, mosaic.Width)
	assert.Equal(t, testTileSize, mosaic.Height)
	assert.Equal(t, tile.Bound(), mosaic.Bound)
	assert.Equal(t, float32(0), mosaic.Data[0])
	assert.Equal(t, float32(terrain.NoData), mosaic.Data[5])
	assert.Equal(t, float32(testTileSize*testTileSize-1), mosaic.Data[len(mosaic.Data)-1])
	assert.Equal(t, raster.Stats{Min: 0, Max: testTileSize*testTileSize - 1, Valid: true}, mosaic.Stats)
}

func TestComposeSubTile(t *testing.T) {
	tile := newConstantTile(35, 138, 0)
	// Each sample is its column times 10 plus its row.
	for row := range testTileSize {
		for col := range testTileSize {
			tile.Data[row*testTileSize+col] = int16(10*col + row)
		}
	}
	bound := orb.Bound{Min: orb.Point{138.2, 35.5}, Max: orb.Point{138.6, 35.8}}
	mosaic, err := terrain.Compose([]*terrain.Tile{tile}, bound)
	assert.NoError(t, err)
	assert.Equal(t, 4, mosaic.Width)
	assert.Equal(t, 3, mosaic.Height)
	// The north-west pixel comes from column 2, row 2. Stats exclude
	// pixels outside bound.
	assert.Equal(t, float32(22), mosaic.Data[0])
	assert.True(t, mosaic.Stats.Valid)
	assert.True(t, mosaic.Stats.Min >= 22)
	assert.True(t, mosaic.Stats.Max <= 65)
}

func TestComposeOverlapLastWins(t *testing.T) {
	// A tile of voids never overwrites valid data.
	tiles := []*terrain.Tile{
		newConstantTile(0, 0, terrain.NoData),
		newConstantTile(0, 0, 5),
	}
	bound := orb.Bound{Min: orb.Point{0.2, 0.2}, Max: orb.Point{0.8, 0.8}}
	mosaic, err := terrain.Compose(tiles, bound)
	assert.NoError(t, err)
	assert.Equal(t, raster.Stats{Min: 5, Max: 5, Valid: true}, mosaic.Stats)
}

func TestComposeDeterministic(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	var tiles []*terrain.Tile
	for lat := range 2 {
		for lon := range 2 {
			tile := newConstantTile(lat, lon, 0)
			for i := range tile.Data {
				tile.Data[i] = int16(r.IntN(1000))
			}
			tiles = append(tiles, tile)
		}
	}
	bound := orb.Bound{Min: orb.Point{0.35, 0.35}, Max: orb.Point{1.65, 1.65}}
	expected, err := terrain.Compose(tiles, bound)
	assert.NoError(t, err)
	for range 10 {
		r.Shuffle(len(tiles), func(i, j int) {
			tiles[i], tiles[j] = tiles[j], tiles[i]
		})
		actual, err := terrain.Compose(tiles, bound)
		assert.NoError(t, err)
		assert.Equal(t, expected, actual)
	}
}

func TestComposeErrors(t *testing.T) {
	bound := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}}

	_, err := terrain.Compose(nil, bound)
	assert.IsError(t, err, terrain.ErrNoDataAvailable)

	_, err = terrain.Compose([]*terrain.Tile{newConstantTile(0, 0, 1)}, orb.Bound{Min: orb.Point{1, 1}, Max: orb.Point{1, 1}})
	assert.IsError(t, err, terrain.ErrInvalidBound)

	other := &terrain.Tile{TileRequest: terrain.TileRequest{Lat: 0, Lon: 1}, Size: 2, Data: make([]int16, 4)}
	_, err = terrain.Compose([]*terrain.Tile{newConstantTile(0, 0, 1), other}, bound)
	assert.Error(t, err)
}
