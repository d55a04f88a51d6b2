package raster

import (
	"testing"

	"github.com/alecthomas/assert/v2"
)

func TestParseGeoKeys(t *testing.T) {
	directory := []uint16{
		1, 1, 0, 4,
		1024, 0, 1, 2,
		1025, 0, 1, 1,
		1026, 34737, 7, 0,
		2048, 0, 1, 4326,
	}
	keys, err := parseGeoKeys(directory, nil, "WGS 84|")
	assert.NoError(t, err)
	assert.Equal(t, &geoKeys{
		shorts: map[geoKey]int{
			geoKeyModelType:   modelTypeGeographic,
			geoKeyRasterType:  rasterPixelIsArea,
			geoKeyGeodeticCRS: 4326,
		},
		doubles: map[geoKey]float64{},
		strings: map[geoKey]string{
			geoKeyCitation: "WGS 84|",
		},
	}, keys)
	assert.Equal(t, 4326, keys.crs())
	assert.False(t, keys.pixelIsPoint())
}

func TestParseGeoKeysProjected(t *testing.T) {
	directory := []uint16{
		1, 1, 0, 3,
		1024, 0, 1, 1,
		1025, 0, 1, 2,
		3072, 0, 1, 32750,
	}
	keys, err := parseGeoKeys(directory, nil, "")
	assert.NoError(t, err)
	assert.Equal(t, 32750, keys.crs())
	assert.True(t, keys.pixelIsPoint())
}

func TestParseGeoKeysErrors(t *testing.T) {
	for _, tc := range []struct {
		name      string
		directory []uint16
	}{
		{
			name:      "short",
			directory: []uint16{1, 1, 0},
		},
		{
			name:      "bad_version",
			directory: []uint16{2, 1, 0, 0},
		},
		{
			name:      "bad_count",
			directory: []uint16{1, 1, 0, 2, 1024, 0, 1, 2},
		},
		{
			name:      "missing_double",
			directory: []uint16{1, 1, 0, 1, 2057, 34736, 1, 0},
		},
		{
			name:      "ascii_overflow",
			directory: []uint16{1, 1, 0, 1, 1026, 34737, 10, 0},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseGeoKeys(tc.directory, nil, "")
			assert.IsError(t, err, errGeoKeys)
		})
	}
}
