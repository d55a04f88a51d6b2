// Package raster implements an in-memory multi-band raster dataset.
//
// A Dataset owns one or more equally-sized float32 grids (bands) with per-band
// statistics and a shared nodata sentinel. Bands are addressed externally by
// 1-based index or by name.
package raster

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"

	"github.com/paulmach/orb"
)

// DefaultNodata is the nodata sentinel used when none is given.
const DefaultNodata = -32768

var (
	ErrDimensionMismatch = errors.New("dimension mismatch")
	ErrDuplicateName     = errors.New("duplicate band name")
	ErrInvalidDataset    = errors.New("invalid dataset")
	ErrLastBand          = errors.New("cannot remove last band")
	ErrNotFound          = errors.New("band not found")
)

// A DimensionMismatchError is returned when a band buffer does not have
// exactly width*height elements.
type DimensionMismatchError struct {
	Got  int
	Want int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: got %d values, want %d", e.Got, e.Want)
}

func (e *DimensionMismatchError) Is(target error) bool {
	return target == ErrDimensionMismatch
}

// A NotFoundError is returned when a band reference does not resolve.
type NotFoundError struct {
	Ref BandRef
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: band not found", e.Ref)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// A Band is one numeric grid within a Dataset.
type Band struct {
	name   string
	data   []float32
	nodata *float64
	stats  Stats
}

// Name returns b's name.
func (b *Band) Name() string {
	return b.name
}

// Data returns a copy of b's row-major samples. Samples are only modified
// through Dataset.SetBandData or Dataset.UpdateBand, which keep b's
// statistics current.
func (b *Band) Data() []float32 {
	return slices.Clone(b.data)
}

// Stats returns b's statistics over its non-nodata samples.
func (b *Band) Stats() Stats {
	return b.stats
}

// Nodata returns b's nodata override, if any.
func (b *Band) Nodata() (float64, bool) {
	if b.nodata == nil {
		return 0, false
	}
	return *b.nodata, true
}

// A Dataset is a multi-band raster. Its band list is never empty.
type Dataset struct {
	width  int
	height int
	extent orb.Bound
	nodata float64
	bands  []*Band
}

type datasetOptions struct {
	nodata   float64
	bandName string
}

// A DatasetOption sets an option on a new Dataset.
type DatasetOption func(*datasetOptions)

// WithNodata sets the dataset-wide nodata sentinel.
func WithNodata(nodata float64) DatasetOption {
	return func(o *datasetOptions) {
		o.nodata = nodata
	}
}

// WithBandName sets the name of the dataset's first band.
func WithBandName(name string) DatasetOption {
	return func(o *datasetOptions) {
		o.bandName = name
	}
}

// NewDataset returns a new Dataset of the given size and extent whose first
// band is a copy of data.
func NewDataset(width, height int, extent orb.Bound, data []float32, options ...DatasetOption) (*Dataset, error) {
	o := datasetOptions{
		nodata: DefaultNodata,
	}
	for _, option := range options {
		option(&o)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%dx%d: %w", width, height, ErrInvalidDataset)
	}
	if !(extent.Min[0] < extent.Max[0] && extent.Min[1] < extent.Max[1]) {
		return nil, fmt.Errorf("extent %v: %w", extent, ErrInvalidDataset)
	}
	d := &Dataset{
		width:  width,
		height: height,
		extent: extent,
		nodata: o.nodata,
	}
	if _, err := d.AddBand(data, BandName(o.bandName)); err != nil {
		return nil, err
	}
	return d, nil
}

// Width returns d's width in pixels.
func (d *Dataset) Width() int {
	return d.width
}

// Height returns d's height in pixels.
func (d *Dataset) Height() int {
	return d.height
}

// Extent returns d's geographic extent.
func (d *Dataset) Extent() orb.Bound {
	return d.extent
}

// Nodata returns d's dataset-wide nodata sentinel.
func (d *Dataset) Nodata() float64 {
	return d.nodata
}

// SetNodata sets d's nodata sentinel and recomputes the statistics of every
// band that does not override it.
func (d *Dataset) SetNodata(nodata float64) {
	d.nodata = nodata
	for _, band := range d.bands {
		if band.nodata == nil {
			band.stats = ComputeStats(band.data, nodata)
		}
	}
}

// BandCount returns the number of bands in d.
func (d *Dataset) BandCount() int {
	return len(d.bands)
}

// Bands returns d's bands in index order.
func (d *Dataset) Bands() []*Band {
	return slices.Clone(d.bands)
}

// BandNames returns the names of d's bands in index order.
func (d *Dataset) BandNames() []string {
	names := make([]string, len(d.bands))
	for i, band := range d.bands {
		names[i] = band.name
	}
	return names
}

type bandOptions struct {
	name   string
	nodata *float64
}

// A BandOption sets an option on a band being added.
type BandOption func(*bandOptions)

// BandName sets the name of a band being added. An empty name selects the
// default name.
func BandName(name string) BandOption {
	return func(o *bandOptions) {
		o.name = name
	}
}

// BandNodata overrides the dataset's nodata sentinel for a band being added.
func BandNodata(nodata float64) BandOption {
	return func(o *bandOptions) {
		o.nodata = &nodata
	}
}

// AddBand appends a copy of data as a new band and returns its 1-based index.
func (d *Dataset) AddBand(data []float32, options ...BandOption) (int, error) {
	var o bandOptions
	for _, option := range options {
		option(&o)
	}
	if want := d.width * d.height; len(data) != want {
		return 0, &DimensionMismatchError{Got: len(data), Want: want}
	}
	index := len(d.bands) + 1
	name := o.name
	switch {
	case name == "":
		name = d.defaultBandName(index)
	case d.indexOfName(name) >= 0:
		return 0, fmt.Errorf("%s: %w", name, ErrDuplicateName)
	}
	band := &Band{
		name:   name,
		data:   slices.Clone(data),
		nodata: o.nodata,
	}
	band.stats = ComputeStats(band.data, d.bandNodata(band))
	d.bands = append(d.bands, band)
	return index, nil
}

// AddBandFrom appends a new band whose samples come from source.
func (d *Dataset) AddBandFrom(source BandSource, options ...BandOption) (int, error) {
	switch source := source.(type) {
	case RawBuffer:
		return d.AddBand(source, options...)
	case FromDataset:
		if source.Dataset == nil {
			return 0, fmt.Errorf("nil source dataset: %w", ErrInvalidDataset)
		}
		if source.Dataset.width != d.width || source.Dataset.height != d.height {
			return 0, &DimensionMismatchError{
				Got:  source.Dataset.width * source.Dataset.height,
				Want: d.width * d.height,
			}
		}
		band, err := source.Dataset.Band(source.Band)
		if err != nil {
			return 0, err
		}
		if nodata, ok := band.Nodata(); ok {
			options = append([]BandOption{BandNodata(nodata)}, options...)
		} else if source.Dataset.nodata != d.nodata {
			options = append([]BandOption{BandNodata(source.Dataset.nodata)}, options...)
		}
		return d.AddBand(band.data, options...)
	default:
		return 0, fmt.Errorf("%T: unsupported band source", source)
	}
}

// RemoveBand removes the band referenced by ref and returns its former
// 1-based index. Holders of band indexes must decrement every index greater
// than the returned one.
func (d *Dataset) RemoveBand(ref BandRef) (int, error) {
	if len(d.bands) == 1 {
		return 0, ErrLastBand
	}
	index, err := d.Resolve(ref)
	if err != nil {
		return 0, err
	}
	d.bands = slices.Delete(d.bands, index-1, index)
	return index, nil
}

// RenameBand renames the band referenced by ref.
func (d *Dataset) RenameBand(ref BandRef, name string) error {
	if name == "" {
		return errors.New("empty band name")
	}
	index, err := d.Resolve(ref)
	if err != nil {
		return err
	}
	if other := d.indexOfName(name); other >= 0 && other != index-1 {
		return fmt.Errorf("%s: %w", name, ErrDuplicateName)
	}
	d.bands[index-1].name = name
	return nil
}

// Band returns the band referenced by ref.
func (d *Dataset) Band(ref BandRef) (*Band, error) {
	index, err := d.Resolve(ref)
	if err != nil {
		return nil, err
	}
	return d.bands[index-1], nil
}

// Resolve returns the 1-based index of the band referenced by ref.
func (d *Dataset) Resolve(ref BandRef) (int, error) {
	switch {
	case ref.name != "":
		if i := d.indexOfName(ref.name); i >= 0 {
			return i + 1, nil
		}
	case 1 <= ref.index && ref.index <= len(d.bands):
		return ref.index, nil
	}
	return 0, &NotFoundError{Ref: ref}
}

// BandNodataValue returns the effective nodata sentinel of the band
// referenced by ref.
func (d *Dataset) BandNodataValue(ref BandRef) (float64, error) {
	band, err := d.Band(ref)
	if err != nil {
		return 0, err
	}
	return d.bandNodata(band), nil
}

// SetBandData replaces the samples of the band referenced by ref with a copy
// of data and recomputes its statistics.
func (d *Dataset) SetBandData(ref BandRef, data []float32) error {
	if want := d.width * d.height; len(data) != want {
		return &DimensionMismatchError{Got: len(data), Want: want}
	}
	band, err := d.Band(ref)
	if err != nil {
		return err
	}
	band.data = slices.Clone(data)
	band.stats = ComputeStats(band.data, d.bandNodata(band))
	return nil
}

// UpdateBand calls f with the samples of the band referenced by ref, which f
// may modify in place, and then recomputes the band's statistics.
func (d *Dataset) UpdateBand(ref BandRef, f func(data []float32)) error {
	band, err := d.Band(ref)
	if err != nil {
		return err
	}
	f(band.data)
	band.stats = ComputeStats(band.data, d.bandNodata(band))
	return nil
}

// GlobalStats returns the statistics across all bands' non-nodata samples.
func (d *Dataset) GlobalStats() Stats {
	var stats Stats
	for _, band := range d.bands {
		stats = stats.Merge(band.stats)
	}
	return stats
}

func (d *Dataset) bandNodata(band *Band) float64 {
	if band.nodata != nil {
		return *band.nodata
	}
	return d.nodata
}

// defaultBandName returns "band<index>", or the first free "band<n>" with
// n > index if that name is already taken.
func (d *Dataset) defaultBandName(index int) string {
	for n := index; ; n++ {
		name := "band" + strconv.Itoa(n)
		if d.indexOfName(name) < 0 {
			return name
		}
	}
}

func (d *Dataset) indexOfName(name string) int {
	return slices.IndexFunc(d.bands, func(band *Band) bool {
		return band.name == name
	})
}

// pixelSize returns the size of a pixel in extent units.
func (d *Dataset) pixelSize() (float64, float64) {
	return (d.extent.Max[0] - d.extent.Min[0]) / float64(d.width),
		(d.extent.Max[1] - d.extent.Min[1]) / float64(d.height)
}

// isNodata returns whether value is nodata for a band with the given sentinel.
func isNodata(value float32, nodata float64) bool {
	return float64(value) == nodata || math.IsNaN(float64(value))
}
