package terrain_test

import (
	"context"
	"errors"
	"io/fs"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"

	"github.com/twpayne/go-terrain"
)

func TestNewTileSetNoSource(t *testing.T) {
	_, err := terrain.NewTileSet()
	assert.Error(t, err)
}

func TestTileSetTiles(t *testing.T) {
	source := newTestSource(t, map[terrain.TileRequest]int16{
		{Lat: 35, Lon: 139}: 200,
		{Lat: 35, Lon: 138}: 100,
		{Lat: 36, Lon: 138}: 300,
	})
	tileSet, err := terrain.NewTileSet(
		terrain.WithSource(source),
		terrain.WithConcurrency(3),
	)
	assert.NoError(t, err)

	tileRequests := []terrain.TileRequest{
		{Lat: 36, Lon: 139}, // Missing.
		{Lat: 36, Lon: 138},
		{Lat: 35, Lon: 139},
		{Lat: 35, Lon: 138},
	}
	for range 3 {
		tiles, err := tileSet.Tiles(t.Context(), tileRequests)
		assert.NoError(t, err)
		actual := make([]terrain.TileRequest, len(tiles))
		for i, tile := range tiles {
			actual[i] = tile.TileRequest
		}
		assert.Equal(t, []terrain.TileRequest{
			{Lat: 35, Lon: 138},
			{Lat: 35, Lon: 139},
			{Lat: 36, Lon: 138},
		}, actual)
	}

	// Tiles and missing tiles are only requested once.
	for _, tileRequest := range tileRequests {
		assert.Equal(t, 1, source.requestCount(tileRequest))
	}

	_, err = tileSet.Tile(t.Context(), terrain.TileRequest{Lat: 36, Lon: 139})
	assert.IsError(t, err, terrain.ErrTileUnavailable)
	assert.IsError(t, err, fs.ErrNotExist)
}

func TestTileSetTransientFailure(t *testing.T) {
	failures := 0
	errTransient := errors.New("connection reset")
	body := gzipBody(t, newConstantTileData(7))
	source := terrain.SourceFunc(func(ctx context.Context, tileRequest terrain.TileRequest) ([]byte, error) {
		if failures < 1 {
			failures++
			return nil, errTransient
		}
		return body, nil
	})
	tileSet, err := terrain.NewTileSet(terrain.WithSource(source), terrain.WithConcurrency(1))
	assert.NoError(t, err)

	tileRequest := terrain.TileRequest{Lat: 1, Lon: 1}
	_, err = tileSet.Tile(t.Context(), tileRequest)
	assert.IsError(t, err, errTransient)

	// Transient failures are not remembered.
	tile, err := tileSet.Tile(t.Context(), tileRequest)
	assert.NoError(t, err)
	assert.Equal(t, int16(7), tile.Data[0])
}

func TestTileSetTilesCanceled(t *testing.T) {
	source := terrain.SourceFunc(func(ctx context.Context, _ terrain.TileRequest) ([]byte, error) {
		return nil, ctx.Err()
	})
	tileSet, err := terrain.NewTileSet(terrain.WithSource(source))
	assert.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err = tileSet.Tiles(ctx, []terrain.TileRequest{{Lat: 0, Lon: 0}})
	assert.IsError(t, err, context.Canceled)
}

func TestTileSetSharedFetchOutlivesCanceledCaller(t *testing.T) {
	body := gzipBody(t, newConstantTileData(42))
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int64
	source := terrain.SourceFunc(func(ctx context.Context, _ terrain.TileRequest) ([]byte, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-release:
			return body, nil
		}
	})
	tileSet, err := terrain.NewTileSet(terrain.WithSource(source), terrain.WithFetchTimeout(time.Minute))
	assert.NoError(t, err)
	tileRequest := terrain.TileRequest{Lat: 35, Lon: 138}

	ctx, cancel := context.WithCancel(t.Context())
	errCh := make(chan error, 1)
	go func() {
		_, err := tileSet.Tile(ctx, tileRequest)
		errCh <- err
	}()
	<-started
	cancel()
	assert.IsError(t, <-errCh, context.Canceled)

	type result struct {
		tile *terrain.Tile
		err  error
	}
	resultCh := make(chan result, 1)
	go func() {
		tile, err := tileSet.Tile(t.Context(), tileRequest)
		resultCh <- result{tile: tile, err: err}
	}()
	close(release)
	r := <-resultCh
	assert.NoError(t, r.err)
	assert.Equal(t, int16(42), r.tile.Data[0])
	assert.Equal(t, int64(1), calls.Load())
}

func TestTileSetFetchTimeout(t *testing.T) {
	source := terrain.SourceFunc(func(ctx context.Context, _ terrain.TileRequest) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	tileSet, err := terrain.NewTileSet(terrain.WithSource(source), terrain.WithFetchTimeout(time.Millisecond))
	assert.NoError(t, err)
	_, err = tileSet.Tile(t.Context(), terrain.TileRequest{Lat: 35, Lon: 138})
	assert.IsError(t, err, terrain.ErrTileUnavailable)
	assert.IsError(t, err, context.DeadlineExceeded)
}

func TestTileSetCacheEviction(t *testing.T) {
	source := newTestSource(t, map[terrain.TileRequest]int16{
		{Lat: 0, Lon: 0}: 1,
		{Lat: 0, Lon: 1}: 2,
	})
	tileSet, err := terrain.NewTileSet(terrain.WithSource(source), terrain.WithCacheSize(1))
	assert.NoError(t, err)

	for _, tileRequest := range []terrain.TileRequest{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 1}, {Lat: 0, Lon: 0}} {
		_, err := tileSet.Tile(t.Context(), tileRequest)
		assert.NoError(t, err)
	}
	assert.Equal(t, 2, source.requestCount(terrain.TileRequest{Lat: 0, Lon: 0}))
	assert.Equal(t, 1, source.requestCount(terrain.TileRequest{Lat: 0, Lon: 1}))
}

func TestTileSetElevation(t *testing.T) {
	source := newTestSource(t, map[terrain.TileRequest]int16{
		{Lat: 35, Lon: 138}: 100,
		{Lat: 35, Lon: 139}: 200,
	})
	tileSet, err := terrain.NewTileSet(terrain.WithSource(source))
	assert.NoError(t, err)
	service := terrain.NewService(tileSet)

	actual, err := service.Elevation(t.Context(), [][]float64{
		{138.5, 35.5},
		{139.25, 35.25},
		{138.5, 36.5}, // Missing tile.
		{0, 75},       // Outside coverage.
	})
	assert.NoError(t, err)
	assert.Equal(t, 4, len(actual))
	assert.Equal(t, 100.0, actual[0])
	assert.Equal(t, 200.0, actual[1])
	assert.True(t, math.IsNaN(actual[2]))
	assert.True(t, math.IsNaN(actual[3]))
}

func BenchmarkTileSetTiles(b *testing.B) {
	values := make(map[terrain.TileRequest]int16)
	var tileRequests []terrain.TileRequest
	for lat := range 4 {
		for lon := range 4 {
			tileRequest := terrain.TileRequest{Lat: lat, Lon: lon}
			values[tileRequest] = int16(lat*4 + lon)
			tileRequests = append(tileRequests, tileRequest)
		}
	}
	tileSet, err := terrain.NewTileSet(terrain.WithSource(newTestSource(b, values)), terrain.WithCacheSize(len(tileRequests)))
	assert.NoError(b, err)
	b.ResetTimer()
	for range b.N {
		tiles, err := tileSet.Tiles(b.Context(), tileRequests)
		assert.NoError(b, err)
		assert.Equal(b, len(tileRequests), len(tiles))
	}
}
