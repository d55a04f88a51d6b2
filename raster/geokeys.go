package raster

import "errors"

var errGeoKeys = errors.New("malformed GeoKey directory")

type geoKey uint16

const (
	geoKeyModelType    geoKey = 1024
	geoKeyRasterType   geoKey = 1025
	geoKeyCitation     geoKey = 1026
	geoKeyGeodeticCRS  geoKey = 2048
	geoKeyProjectedCRS geoKey = 3072
)

// Model types.
const (
	modelTypeProjected  = 1
	modelTypeGeographic = 2
)

// Raster types.
const (
	rasterPixelIsArea  = 1
	rasterPixelIsPoint = 2
)

const (
	geoDoubleParamsTag = 34736
	geoASCIIParamsTag  = 34737
)

// geoKeys are the values of a GeoKey directory that are relevant to placing a
// raster on the globe.
type geoKeys struct {
	shorts  map[geoKey]int
	doubles map[geoKey]float64
	strings map[geoKey]string
}

// parseGeoKeys parses a GeoKeyDirectoryTag with its associated double and
// ASCII parameter tags.
func parseGeoKeys(directory []uint16, doubleParams []float64, asciiParams string) (*geoKeys, error) {
	if len(directory) < 4 {
		return nil, errGeoKeys
	}
	version, revision, minorRevision, count := directory[0], directory[1], directory[2], int(directory[3])
	if version != 1 || revision != 1 || (minorRevision != 0 && minorRevision != 1) {
		return nil, errGeoKeys
	}
	if len(directory) != 4+4*count {
		return nil, errGeoKeys
	}

	keys := &geoKeys{
		shorts:  make(map[geoKey]int),
		doubles: make(map[geoKey]float64),
		strings: make(map[geoKey]string),
	}
	for entry := range count {
		fields := directory[4+4*entry : 8+4*entry]
		key, location, n, value := geoKey(fields[0]), fields[1], int(fields[2]), int(fields[3])
		switch location {
		case 0:
			if n != 1 {
				return nil, errGeoKeys
			}
			keys.shorts[key] = value
		case geoDoubleParamsTag:
			if n != 1 || value >= len(doubleParams) {
				return nil, errGeoKeys
			}
			keys.doubles[key] = doubleParams[value]
		case geoASCIIParamsTag:
			if value+n > len(asciiParams) {
				return nil, errGeoKeys
			}
			keys.strings[key] = asciiParams[value : value+n]
		default:
			return nil, errors.ErrUnsupported
		}
	}
	return keys, nil
}

// crs returns the EPSG code of the keys' coordinate reference system, or
// zero if it is not given.
func (k *geoKeys) crs() int {
	if k.shorts[geoKeyModelType] == modelTypeProjected {
		return k.shorts[geoKeyProjectedCRS]
	}
	return k.shorts[geoKeyGeodeticCRS]
}

// pixelIsPoint returns whether samples are located at grid points rather
// than cell areas.
func (k *geoKeys) pixelIsPoint() bool {
	return k.shorts[geoKeyRasterType] == rasterPixelIsPoint
}
