package raster

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"

	"github.com/paulmach/orb"
)

// Legacy raw sample formats.
const (
	FormatFloat32LE = "f32le"
	FormatInt16BE   = "i16be"
	FormatInt16LE   = "i16le"
)

var errUnsupportedFormat = errors.New("unsupported format")

// LegacyMetadata is the JSON sidecar stored alongside a raw single-band
// sample file.
type LegacyMetadata struct {
	Format string     `json:"format"`
	Width  int        `json:"width"`
	Height int        `json:"height"`
	Extent [4]float64 `json:"extent"` // west, south, east, north.
	Min    JSONFloat  `json:"min"`
	Max    JSONFloat  `json:"max"`
	Nodata JSONFloat  `json:"nodata"`
	Band   string     `json:"band,omitempty"`
}

// A Storage is a flat store of named files.
type Storage interface {
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte) error
	Exists(name string) (bool, error)
}

// A DirStorage is a Storage backed by a directory.
type DirStorage string

func (s DirStorage) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(filepath.Join(string(s), name))
}

func (s DirStorage) WriteFile(name string, data []byte) error {
	return os.WriteFile(filepath.Join(string(s), name), data, 0o666)
}

func (s DirStorage) Exists(name string) (bool, error) {
	switch _, err := os.Stat(filepath.Join(string(s), name)); {
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	case err != nil:
		return false, err
	default:
		return true, nil
	}
}

// WriteLegacy writes the first band of d to s as name.bin with its sidecar
// name.json.
func WriteLegacy(s Storage, name string, d *Dataset) error {
	band := d.bands[0]
	nodata := d.bandNodata(band)
	minValue, maxValue := band.stats.Range(nodata, nodata)
	metadata := LegacyMetadata{
		Format: FormatFloat32LE,
		Width:  d.width,
		Height: d.height,
		Extent: [4]float64{d.extent.Min[0], d.extent.Min[1], d.extent.Max[0], d.extent.Max[1]},
		Min:    JSONFloat(minValue),
		Max:    JSONFloat(maxValue),
		Nodata: JSONFloat(nodata),
		Band:   band.name,
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return err
	}

	raw := make([]byte, 4*len(band.data))
	for i, value := range band.data {
		binary.LittleEndian.PutUint32(raw[4*i:4*(i+1)], math.Float32bits(value))
	}
	if err := s.WriteFile(name+".bin", raw); err != nil {
		return err
	}
	return s.WriteFile(name+".json", metadataJSON)
}

// ReadLegacy reads a dataset written by WriteLegacy, or any raw file with a
// legacy sidecar.
func ReadLegacy(s Storage, name string) (*Dataset, error) {
	metadataJSON, err := s.ReadFile(name + ".json")
	if err != nil {
		return nil, err
	}
	var metadata LegacyMetadata
	if err := json.Unmarshal(metadataJSON, &metadata); err != nil {
		return nil, fmt.Errorf("%s.json: %w", name, err)
	}
	raw, err := s.ReadFile(name + ".bin")
	if err != nil {
		return nil, err
	}
	data, err := DecodeRaw(raw, metadata.Format)
	if err != nil {
		return nil, fmt.Errorf("%s.bin: %w", name, err)
	}
	return MigrateLegacy(data, metadata)
}

// DecodeRaw decodes raw samples in the given legacy format.
func DecodeRaw(raw []byte, format string) ([]float32, error) {
	switch format {
	case FormatFloat32LE, "":
		if len(raw)%4 != 0 {
			return nil, fmt.Errorf("%d bytes: %w", len(raw), ErrDimensionMismatch)
		}
		data := make([]float32, len(raw)/4)
		for i := range data {
			data[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i : 4*(i+1)]))
		}
		return data, nil
	case FormatInt16BE, FormatInt16LE:
		if len(raw)%2 != 0 {
			return nil, fmt.Errorf("%d bytes: %w", len(raw), ErrDimensionMismatch)
		}
		var byteOrder binary.ByteOrder = binary.BigEndian
		if format == FormatInt16LE {
			byteOrder = binary.LittleEndian
		}
		data := make([]float32, len(raw)/2)
		for i := range data {
			data[i] = float32(int16(byteOrder.Uint16(raw[2*i : 2*(i+1)])))
		}
		return data, nil
	default:
		return nil, fmt.Errorf("%s: %w", format, errUnsupportedFormat)
	}
}

// MigrateLegacy converts the legacy two-field (data, metadata)
// representation into a single-band Dataset. The stored min and max are not
// trusted; statistics are recomputed from data.
func MigrateLegacy(data []float32, metadata LegacyMetadata) (*Dataset, error) {
	extent := orb.Bound{
		Min: orb.Point{metadata.Extent[0], metadata.Extent[1]},
		Max: orb.Point{metadata.Extent[2], metadata.Extent[3]},
	}
	return NewDataset(metadata.Width, metadata.Height, extent, data,
		WithNodata(float64(metadata.Nodata)),
		WithBandName(metadata.Band),
	)
}
