package raster_test

import (
	"errors"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/paulmach/orb"

	"github.com/twpayne/go-terrain/raster"
)

var pilbara = orb.Bound{Min: orb.Point{116.5, -23.5}, Max: orb.Point{118.5, -21.5}}

func newTestDataset(t *testing.T, data []float32, options ...raster.DatasetOption) *raster.Dataset {
	t.Helper()
	d, err := raster.NewDataset(2, 2, pilbara, data, options...)
	assert.NoError(t, err)
	return d
}

func TestNewDataset(t *testing.T) {
	d := newTestDataset(t, []float32{1, 2, 3, 4})
	assert.Equal(t, 2, d.Width())
	assert.Equal(t, 2, d.Height())
	assert.Equal(t, pilbara, d.Extent())
	assert.Equal(t, float64(raster.DefaultNodata), d.Nodata())
	assert.Equal(t, 1, d.BandCount())
	assert.Equal(t, []string{"band1"}, d.BandNames())

	band, err := d.Band(raster.Index(1))
	assert.NoError(t, err)
	assert.Equal(t, raster.Stats{Min: 1, Max: 4, Valid: true}, band.Stats())
}

func TestNewDatasetErrors(t *testing.T) {
	for _, tc := range []struct {
		name   string
		width  int
		height int
		extent orb.Bound
		data   []float32
		err    error
	}{
		{
			name:   "zero_width",
			width:  0,
			height: 1,
			extent: pilbara,
			err:    raster.ErrInvalidDataset,
		},
		{
			name:   "empty_extent",
			width:  1,
			height: 1,
			extent: orb.Bound{Min: orb.Point{1, 1}, Max: orb.Point{1, 2}},
			data:   []float32{0},
			err:    raster.ErrInvalidDataset,
		},
		{
			name:   "short_data",
			width:  2,
			height: 2,
			extent: pilbara,
			data:   []float32{0, 1, 2},
			err:    raster.ErrDimensionMismatch,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := raster.NewDataset(tc.width, tc.height, tc.extent, tc.data)
			assert.IsError(t, err, tc.err)
		})
	}
}

func TestAddBand(t *testing.T) {
	d := newTestDataset(t, []float32{1, 2, 3, 4})

	data := []float32{10, 20, 30, 40}
	index, err := d.AddBand(data, raster.BandName("slope"))
	assert.NoError(t, err)
	assert.Equal(t, 2, index)

	// The band owns a copy of its data.
	data[0] = 99
	band, err := d.Band(raster.Name("slope"))
	assert.NoError(t, err)
	assert.Equal(t, []float32{10, 20, 30, 40}, band.Data())

	index, err = d.AddBand([]float32{0, 0, 0, 0})
	assert.NoError(t, err)
	assert.Equal(t, 3, index)
	assert.Equal(t, []string{"band1", "slope", "band3"}, d.BandNames())

	_, err = d.AddBand([]float32{0, 0, 0, 0}, raster.BandName("slope"))
	assert.IsError(t, err, raster.ErrDuplicateName)

	var dimensionMismatchError *raster.DimensionMismatchError
	_, err = d.AddBand([]float32{0})
	assert.True(t, errors.As(err, &dimensionMismatchError))
	assert.Equal(t, 1, dimensionMismatchError.Got)
	assert.Equal(t, 4, dimensionMismatchError.Want)
	assert.Equal(t, 3, d.BandCount())
}

func TestAddBandDefaultNameTaken(t *testing.T) {
	d := newTestDataset(t, []float32{1, 2, 3, 4})
	_, err := d.AddBand([]float32{1, 2, 3, 4}, raster.BandName("band3"))
	assert.NoError(t, err)
	_, err = d.AddBand([]float32{1, 2, 3, 4})
	assert.NoError(t, err)
	assert.Equal(t, []string{"band1", "band3", "band4"}, d.BandNames())
}

func TestAddBandFrom(t *testing.T) {
	source := newTestDataset(t, []float32{5, -9999, 7, 8}, raster.WithNodata(-9999))
	d := newTestDataset(t, []float32{1, 2, 3, 4})

	index, err := d.AddBandFrom(raster.FromDataset{Dataset: source, Band: raster.Index(1)}, raster.BandName("copy"))
	assert.NoError(t, err)
	assert.Equal(t, 2, index)
	band, err := d.Band(raster.Index(2))
	assert.NoError(t, err)
	assert.Equal(t, raster.Stats{Min: 5, Max: 8, Valid: true}, band.Stats())
	nodata, err := d.BandNodataValue(raster.Name("copy"))
	assert.NoError(t, err)
	assert.Equal(t, -9999.0, nodata)

	index, err = d.AddBandFrom(raster.RawBuffer{0, 1, 2, 3})
	assert.NoError(t, err)
	assert.Equal(t, 3, index)

	_, err = d.AddBandFrom(raster.FromDataset{Dataset: source, Band: raster.Name("missing")})
	assert.IsError(t, err, raster.ErrNotFound)

	other, err := raster.NewDataset(1, 1, pilbara, []float32{0})
	assert.NoError(t, err)
	_, err = d.AddBandFrom(raster.FromDataset{Dataset: other, Band: raster.Index(1)})
	assert.IsError(t, err, raster.ErrDimensionMismatch)
}

func TestRemoveBand(t *testing.T) {
	d := newTestDataset(t, []float32{1, 2, 3, 4})
	_, err := d.AddBand([]float32{5, 6, 7, 8}, raster.BandName("b"))
	assert.NoError(t, err)
	_, err = d.AddBand([]float32{9, 10, 11, 12}, raster.BandName("c"))
	assert.NoError(t, err)

	removed, err := d.RemoveBand(raster.Name("b"))
	assert.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, []string{"band1", "c"}, d.BandNames())

	// Later bands shift down by one.
	band, err := d.Band(raster.Index(2))
	assert.NoError(t, err)
	assert.Equal(t, "c", band.Name())

	_, err = d.RemoveBand(raster.Index(5))
	assert.IsError(t, err, raster.ErrNotFound)

	removed, err = d.RemoveBand(raster.Index(1))
	assert.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = d.RemoveBand(raster.Index(1))
	assert.IsError(t, err, raster.ErrLastBand)
	assert.Equal(t, 1, d.BandCount())
}

func TestRenameBand(t *testing.T) {
	d := newTestDataset(t, []float32{1, 2, 3, 4})
	_, err := d.AddBand([]float32{5, 6, 7, 8})
	assert.NoError(t, err)

	assert.NoError(t, d.RenameBand(raster.Index(1), "elevation"))
	assert.NoError(t, d.RenameBand(raster.Name("elevation"), "elevation"))
	assert.IsError(t, d.RenameBand(raster.Index(2), "elevation"), raster.ErrDuplicateName)
	assert.IsError(t, d.RenameBand(raster.Name("missing"), "x"), raster.ErrNotFound)
	assert.Equal(t, []string{"elevation", "band2"}, d.BandNames())

	index, err := d.Resolve(raster.Name("elevation"))
	assert.NoError(t, err)
	assert.Equal(t, 1, index)
}

func TestSetBandData(t *testing.T) {
	d := newTestDataset(t, []float32{1, 2, 3, 4})
	assert.NoError(t, d.SetBandData(raster.Index(1), []float32{-1, -32768, 0, 10}))
	band, err := d.Band(raster.Index(1))
	assert.NoError(t, err)
	assert.Equal(t, raster.Stats{Min: -1, Max: 10, Valid: true}, band.Stats())

	assert.IsError(t, d.SetBandData(raster.Index(1), []float32{1}), raster.ErrDimensionMismatch)

	assert.NoError(t, d.UpdateBand(raster.Index(1), func(data []float32) {
		for i := range data {
			data[i] = 42
		}
	}))
	assert.Equal(t, raster.Stats{Min: 42, Max: 42, Valid: true}, band.Stats())
}

func TestBandDataIsCopy(t *testing.T) {
	d := newTestDataset(t, []float32{1, 2, 3, 4})
	band, err := d.Band(raster.Index(1))
	assert.NoError(t, err)
	data := band.Data()
	data[0] = 1000
	assert.Equal(t, []float32{1, 2, 3, 4}, band.Data())
	assert.Equal(t, raster.Stats{Min: 1, Max: 4, Valid: true}, band.Stats())
}

func TestSetNodata(t *testing.T) {
	d := newTestDataset(t, []float32{0, 1, 2, 3})
	d.SetNodata(0)
	band, err := d.Band(raster.Index(1))
	assert.NoError(t, err)
	assert.Equal(t, raster.Stats{Min: 1, Max: 3, Valid: true}, band.Stats())
}

func TestGlobalStats(t *testing.T) {
	d := newTestDataset(t, []float32{-32768, -32768, -32768, -32768})
	assert.False(t, d.GlobalStats().Valid)

	_, err := d.AddBand([]float32{3, -32768, 5, 1})
	assert.NoError(t, err)
	_, err = d.AddBand([]float32{-2, 0, 0, 0})
	assert.NoError(t, err)
	assert.Equal(t, raster.Stats{Min: -2, Max: 5, Valid: true}, d.GlobalStats())
}
