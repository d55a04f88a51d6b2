package raster

import (
	"strconv"
	"strings"
)

// A BandRef references a band either by 1-based index or by name.
type BandRef struct {
	index int
	name  string
}

// Index returns a BandRef to the band with 1-based index i.
func Index(i int) BandRef {
	return BandRef{index: i}
}

// Name returns a BandRef to the band called name.
func Name(name string) BandRef {
	return BandRef{name: name}
}

// ParseBandRef parses s as a band index if it is a positive decimal integer,
// and as a band name otherwise.
func ParseBandRef(s string) BandRef {
	s = strings.TrimSpace(s)
	if i, err := strconv.Atoi(s); err == nil && i > 0 {
		return Index(i)
	}
	return Name(s)
}

// IsIndex returns whether r references a band by index.
func (r BandRef) IsIndex() bool {
	return r.name == ""
}

func (r BandRef) String() string {
	if r.name != "" {
		return strconv.Quote(r.name)
	}
	return "#" + strconv.Itoa(r.index)
}
