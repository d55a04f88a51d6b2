package raster_test

import (
	"math"
	"testing"

	"github.com/alecthomas/assert/v2"

	"github.com/twpayne/go-terrain/raster"
)

func TestComputeStats(t *testing.T) {
	nan := float32(math.NaN())
	for _, tc := range []struct {
		name     string
		data     []float32
		nodata   float64
		expected raster.Stats
	}{
		{
			name:     "empty",
			nodata:   raster.DefaultNodata,
			expected: raster.Stats{},
		},
		{
			name:     "all_nodata",
			data:     []float32{-32768, -32768},
			nodata:   raster.DefaultNodata,
			expected: raster.Stats{},
		},
		{
			name:     "srtm_voids",
			data:     []float32{-32768, 12, 1043, -3, -32768},
			nodata:   raster.DefaultNodata,
			expected: raster.Stats{Min: -3, Max: 1043, Valid: true},
		},
		{
			name:     "nan",
			data:     []float32{nan, 1.5, nan},
			nodata:   -9999,
			expected: raster.Stats{Min: 1.5, Max: 1.5, Valid: true},
		},
		{
			name:     "nodata_is_not_special",
			data:     []float32{-32768, 0},
			nodata:   -9999,
			expected: raster.Stats{Min: -32768, Max: 0, Valid: true},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, raster.ComputeStats(tc.data, tc.nodata))
		})
	}
}

func TestStatsMerge(t *testing.T) {
	a := raster.Stats{Min: 1, Max: 2, Valid: true}
	b := raster.Stats{Min: -1, Max: 1, Valid: true}
	assert.Equal(t, raster.Stats{Min: -1, Max: 2, Valid: true}, a.Merge(b))
	assert.Equal(t, a, a.Merge(raster.Stats{}))
	assert.Equal(t, b, raster.Stats{}.Merge(b))

	minValue, maxValue := raster.Stats{}.Range(0, 1)
	assert.Equal(t, 0.0, minValue)
	assert.Equal(t, 1.0, maxValue)
}

func TestParseBandRef(t *testing.T) {
	for _, tc := range []struct {
		s        string
		expected raster.BandRef
	}{
		{s: "1", expected: raster.Index(1)},
		{s: " 12 ", expected: raster.Index(12)},
		{s: "0", expected: raster.Name("0")},
		{s: "-1", expected: raster.Name("-1")},
		{s: "elevation", expected: raster.Name("elevation")},
	} {
		t.Run(tc.s, func(t *testing.T) {
			actual := raster.ParseBandRef(tc.s)
			assert.Equal(t, tc.expected, actual)
			assert.Equal(t, tc.expected.IsIndex(), actual.IsIndex())
		})
	}
	assert.Equal(t, "#3", raster.Index(3).String())
	assert.Equal(t, `"slope"`, raster.Name("slope").String())
}
