package raster

// A BandSource is where the samples of a new band come from. It is either a
// RawBuffer or a FromDataset.
type BandSource interface {
	bandSource()
}

// A RawBuffer is a band source of row-major samples.
type RawBuffer []float32

// A FromDataset is a band source that copies an existing band of another
// dataset of the same size.
type FromDataset struct {
	Dataset *Dataset
	Band    BandRef
}

func (RawBuffer) bandSource()   {}
func (FromDataset) bandSource() {}
