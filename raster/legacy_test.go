package raster_test

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/paulmach/orb"

	"github.com/twpayne/go-terrain/raster"
)

func TestLegacyRoundTrip(t *testing.T) {
	storage := raster.DirStorage(t.TempDir())

	d, err := raster.NewDataset(3, 2, pilbara, []float32{1, 2, -9999, 4, 5, 6},
		raster.WithNodata(-9999),
		raster.WithBandName("elevation"),
	)
	assert.NoError(t, err)
	_, err = d.AddBand([]float32{0, 0, 0, 0, 0, 0})
	assert.NoError(t, err)

	exists, err := storage.Exists("pilbara.json")
	assert.NoError(t, err)
	assert.False(t, exists)

	assert.NoError(t, raster.WriteLegacy(storage, "pilbara", d))

	exists, err = storage.Exists("pilbara.json")
	assert.NoError(t, err)
	assert.True(t, exists)

	metadataJSON, err := storage.ReadFile("pilbara.json")
	assert.NoError(t, err)
	var metadata raster.LegacyMetadata
	assert.NoError(t, json.Unmarshal(metadataJSON, &metadata))
	assert.Equal(t, raster.LegacyMetadata{
		Format: raster.FormatFloat32LE,
		Width:  3,
		Height: 2,
		Extent: [4]float64{116.5, -23.5, 118.5, -21.5},
		Min:    1,
		Max:    6,
		Nodata: -9999,
		Band:   "elevation",
	}, metadata)

	actual, err := raster.ReadLegacy(storage, "pilbara")
	assert.NoError(t, err)
	assert.Equal(t, 1, actual.BandCount())
	assert.Equal(t, []string{"elevation"}, actual.BandNames())
	assert.Equal(t, pilbara, actual.Extent())
	band, err := actual.Band(raster.Index(1))
	assert.NoError(t, err)
	assert.Equal(t, []float32{1, 2, -9999, 4, 5, 6}, band.Data())
	assert.Equal(t, raster.Stats{Min: 1, Max: 6, Valid: true}, band.Stats())
}

func TestLegacyRoundTripNaNNodata(t *testing.T) {
	storage := raster.DirStorage(t.TempDir())
	nan := float32(math.NaN())
	d, err := raster.NewDataset(2, 2, pilbara, []float32{nan, 2, 3, nan}, raster.WithNodata(math.NaN()))
	assert.NoError(t, err)
	assert.NoError(t, raster.WriteLegacy(storage, "nan", d))

	metadataJSON, err := storage.ReadFile("nan.json")
	assert.NoError(t, err)
	assert.Contains(t, string(metadataJSON), `"nodata":"NaN"`)

	actual, err := raster.ReadLegacy(storage, "nan")
	assert.NoError(t, err)
	assert.True(t, math.IsNaN(actual.Nodata()))
	band, err := actual.Band(raster.Index(1))
	assert.NoError(t, err)
	assert.Equal(t, raster.Stats{Min: 2, Max: 3, Valid: true}, band.Stats())

	// A dataset with no valid samples stores its nodata as min and max.
	empty, err := raster.NewDataset(1, 1, pilbara, []float32{nan}, raster.WithNodata(math.NaN()))
	assert.NoError(t, err)
	assert.NoError(t, raster.WriteLegacy(storage, "empty", empty))
	_, err = raster.ReadLegacy(storage, "empty")
	assert.NoError(t, err)
}

func TestDecodeRaw(t *testing.T) {
	big := make([]byte, 4)
	binary.BigEndian.PutUint16(big[0:2], uint16(0x8000))
	binary.BigEndian.PutUint16(big[2:4], 1234)
	actual, err := raster.DecodeRaw(big, raster.FormatInt16BE)
	assert.NoError(t, err)
	assert.Equal(t, []float32{-32768, 1234}, actual)

	little := make([]byte, 4)
	binary.LittleEndian.PutUint16(little[0:2], uint16(0xffff))
	binary.LittleEndian.PutUint16(little[2:4], 7)
	actual, err = raster.DecodeRaw(little, raster.FormatInt16LE)
	assert.NoError(t, err)
	assert.Equal(t, []float32{-1, 7}, actual)

	float := make([]byte, 4)
	binary.LittleEndian.PutUint32(float, math.Float32bits(1.5))
	actual, err = raster.DecodeRaw(float, raster.FormatFloat32LE)
	assert.NoError(t, err)
	assert.Equal(t, []float32{1.5}, actual)

	_, err = raster.DecodeRaw([]byte{0, 0, 0}, raster.FormatFloat32LE)
	assert.IsError(t, err, raster.ErrDimensionMismatch)

	_, err = raster.DecodeRaw(nil, "u8")
	assert.Error(t, err)
}

func TestMigrateLegacy(t *testing.T) {
	// Stored statistics are ignored in favor of the data.
	d, err := raster.MigrateLegacy([]float32{-32768, 3, 9, 1}, raster.LegacyMetadata{
		Width:  2,
		Height: 2,
		Extent: [4]float64{0, 0, 1, 1},
		Min:    -100,
		Max:    100,
		Nodata: -32768,
	})
	assert.NoError(t, err)
	assert.Equal(t, orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}}, d.Extent())
	assert.Equal(t, []string{"band1"}, d.BandNames())
	band, err := d.Band(raster.Index(1))
	assert.NoError(t, err)
	assert.Equal(t, raster.Stats{Min: 1, Max: 9, Valid: true}, band.Stats())

	_, err = raster.MigrateLegacy([]float32{1, 2, 3}, raster.LegacyMetadata{
		Width:  2,
		Height: 2,
		Extent: [4]float64{0, 0, 1, 1},
	})
	assert.IsError(t, err, raster.ErrDimensionMismatch)
}
