package render

import "github.com/twpayne/go-terrain/raster"

// A Layer is a dataset with its display configuration. It keeps the Spec's
// band references consistent with the dataset's bands.
type Layer struct {
	Dataset *raster.Dataset
	Spec    Spec
}

// NewLayer returns a new Layer displaying d with DefaultSpec.
func NewLayer(d *raster.Dataset) *Layer {
	return &Layer{
		Dataset: d,
		Spec:    DefaultSpec(d.BandCount()),
	}
}

// AddBand adds a band to l's dataset from source and returns its 1-based
// index.
func (l *Layer) AddBand(source raster.BandSource, options ...raster.BandOption) (int, error) {
	return l.Dataset.AddBandFrom(source, options...)
}

// RemoveBand removes the band referenced by ref from l's dataset and shifts
// l's band references to match.
func (l *Layer) RemoveBand(ref raster.BandRef) error {
	removed, err := l.Dataset.RemoveBand(ref)
	if err != nil {
		return err
	}
	l.Spec.ShiftForRemovedBand(removed)
	return nil
}

// Expression returns the expression that renders l, with its nodata value.
func (l *Layer) Expression(b *Builder) (Expr, float64, error) {
	expr, err := b.Build(l.Dataset, l.Spec)
	if err != nil {
		return nil, 0, err
	}
	return expr, l.Dataset.Nodata(), nil
}
