package terrain

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/gzip"

	"github.com/twpayne/go-terrain/raster"
)

var gzipMagic = []byte{0x1f, 0x8b}

// DecodeTile decodes body, an optionally gzip-compressed HGT file, into a
// Tile.
func DecodeTile(tileRequest TileRequest, body []byte) (*Tile, error) {
	if bytes.HasPrefix(body, gzipMagic) {
		gzipReader, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		defer gzipReader.Close()
		if body, err = io.ReadAll(gzipReader); err != nil {
			return nil, err
		}
	}
	size, data, err := DecodeHGT(body)
	if err != nil {
		return nil, err
	}
	return &Tile{
		TileRequest: tileRequest,
		Size:        size,
		Data:        data,
	}, nil
}

// DecodeHGT decodes an uncompressed HGT payload of big-endian signed 16-bit
// samples. The payload must be square.
func DecodeHGT(payload []byte) (int, []int16, error) {
	size := int(math.Sqrt(float64(len(payload) / 2)))
	if size < 2 || 2*size*size != len(payload) {
		return 0, nil, fmt.Errorf("%d bytes: not a square grid of 16-bit samples", len(payload))
	}
	data := make([]int16, size*size)
	for i := range data {
		data[i] = int16(binary.BigEndian.Uint16(payload[2*i : 2*i+2]))
	}
	return size, data, nil
}

// EncodeHGT encodes data as an HGT payload.
func EncodeHGT(data []int16) []byte {
	payload := make([]byte, 2*len(data))
	for i, value := range data {
		binary.BigEndian.PutUint16(payload[2*i:2*i+2], uint16(value))
	}
	return payload
}

// ComputeStats returns the statistics of data, ignoring samples equal to
// nodata.
func ComputeStats(data []int16, nodata int16) raster.Stats {
	minValue, maxValue := int16(math.MaxInt16), int16(math.MinInt16)
	valid := false
	for _, value := range data {
		if value == nodata {
			continue
		}
		minValue = min(minValue, value)
		maxValue = max(maxValue, value)
		valid = true
	}
	if !valid {
		return raster.Stats{}
	}
	return raster.Stats{
		Min:   float64(minValue),
		Max:   float64(maxValue),
		Valid: true,
	}
}

// Stats returns t's statistics.
func (t *Tile) Stats() raster.Stats {
	return ComputeStats(t.Data, NoData)
}

// Sample returns the bilinearly interpolated elevation at (lon, lat), or NaN
// if it is outside t or any neighboring sample is void.
func (t *Tile) Sample(lon, lat float64) float64 {
	pixelsPerDegree := float64(t.Size - 1)
	fx := (lon - float64(t.Lon)) * pixelsPerDegree
	fy := (float64(t.Lat+1) - lat) * pixelsPerDegree
	if fx < 0 || pixelsPerDegree < fx || fy < 0 || pixelsPerDegree < fy {
		return math.NaN()
	}
	x0, y0 := min(int(fx), t.Size-2), min(int(fy), t.Size-2)
	dx, dy := fx-float64(x0), fy-float64(y0)
	samples := [4]int16{
		t.Data[y0*t.Size+x0],
		t.Data[y0*t.Size+x0+1],
		t.Data[(y0+1)*t.Size+x0],
		t.Data[(y0+1)*t.Size+x0+1],
	}
	for _, sample := range samples {
		if sample == NoData {
			return math.NaN()
		}
	}
	return 0 +
		float64(samples[0])*(1-dx)*(1-dy) +
		float64(samples[1])*dx*(1-dy) +
		float64(samples[2])*(1-dx)*dy +
		float64(samples[3])*dx*dy
}
