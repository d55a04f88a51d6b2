package raster

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/google/tiff"
	_ "github.com/google/tiff/bigtiff"
	_ "github.com/google/tiff/geotiff"
	"github.com/klauspost/compress/zlib"
	"github.com/maypok86/otter/v2"
	"github.com/paulmach/orb"
	"golang.org/x/image/tiff/lzw"
)

// TIFF compression schemes.
const (
	compressionNone         = 1
	compressionLZW          = 5
	compressionDeflate      = 8
	compressionAdobeDeflate = 32946
)

// TIFF sample formats.
const (
	sampleFormatUint  = 1
	sampleFormatInt   = 2
	sampleFormatFloat = 3
)

const (
	predictorNone       = 1
	predictorHorizontal = 2
)

const epsgWGS84 = 4326

var errShortRead = errors.New("short read")

// A Pixel is a pixel coordinate, with X increasing eastwards and Y
// southwards from the top left pixel.
type Pixel struct {
	X int
	Y int
}

// A chunkCoord is the coordinate of a TIFF tile within its image.
type chunkCoord struct {
	C int // Column.
	R int // Row.
}

// A geoTIFFFile is an open file that github.com/google/tiff can parse.
type geoTIFFFile interface {
	io.ReadSeeker
	io.ReaderAt
	io.Closer
}

// A GeoTIFF is an open tiled GeoTIFF file.
type GeoTIFF struct {
	file                       geoTIFFFile
	byteOrder                  binary.ByteOrder
	imageWidth                 int
	imageLength                int
	tileWidth                  int
	tileLength                 int
	tilesAcross                int
	tilesDown                  int
	samplesPerPixel            int
	bytesPerSample             int
	decodeSample               func([]byte) float32
	compression                int
	predictor                  int
	tileOffsets                []uint64
	tileByteCounts             []uint64
	smallestTileByteCount      uint64
	chunkSampleCount           int
	chunkByteCountUncompressed int
	chunkCacheSizeBytes        int
	chunkCache                 *otter.Cache[chunkCoord, []float32]
	emptyChunkBytes            []byte
	extent                     orb.Bound
	crs                        int
	nodata                     float64
	hasNodata                  bool
}

// A GeoTIFFOption sets an option on a GeoTIFF.
type GeoTIFFOption func(*GeoTIFF)

// A geoTIFFIFD is a struct into which github.com/google/tiff can unmarshal an
// IFD.
type geoTIFFIFD struct {
	ImageWidth                uint16    `tiff:"field,tag=256"`
	ImageLength               uint16    `tiff:"field,tag=257"`
	BitsPerSample             []uint16  `tiff:"field,tag=258"`
	Compression               uint16    `tiff:"field,tag=259"`
	PhotometricInterpretation uint16    `tiff:"field,tag=262"`
	SamplesPerPixel           uint16    `tiff:"field,tag=277"`
	PlanarConfiguration       uint16    `tiff:"field,tag=284"`
	Predictor                 uint16    `tiff:"field,tag=317"`
	TileWidth                 uint16    `tiff:"field,tag=322"`
	TileLength                uint16    `tiff:"field,tag=323"`
	TileOffsets               []uint64  `tiff:"field,tag=324"`
	TileByteCounts            []uint64  `tiff:"field,tag=325"`
	SampleFormat              []uint16  `tiff:"field,tag=339"`
	ModelPixelScaleTag        []float64 `tiff:"field,tag=33550"`
	ModelTiepointTag          []float64 `tiff:"field,tag=33922"`
	GeoKeyDirectoryTag        []uint16  `tiff:"field,tag=34735"`
	GeoDoubleParamsTag        []float64 `tiff:"field,tag=34736"`
	GeoASCIIParamsTag         string    `tiff:"field,tag=34737"`
	GDALNoData                string    `tiff:"field,tag=42113"`
}

// OpenGeoTIFF opens the tiled GeoTIFF called name in fsys.
func OpenGeoTIFF(fsys fs.FS, name string, options ...GeoTIFFOption) (*GeoTIFF, error) {
	ok := false

	g := &GeoTIFF{
		chunkCacheSizeBytes: 64 << 20, // 64MB.
	}
	for _, option := range options {
		option(g)
	}

	file, err := fsys.Open(name)
	if err != nil {
		return nil, err
	}
	geoFile, isGeoFile := file.(geoTIFFFile)
	if !isGeoFile {
		_ = file.Close()
		return nil, fmt.Errorf("%s: %w", name, errors.ErrUnsupported)
	}
	g.file = geoFile
	defer func() {
		if !ok {
			_ = g.file.Close()
		}
	}()

	var header [2]byte
	if _, err := g.file.ReadAt(header[:], 0); err != nil {
		return nil, err
	}
	switch string(header[:]) {
	case "II":
		g.byteOrder = binary.LittleEndian
	case "MM":
		g.byteOrder = binary.BigEndian
	default:
		return nil, fmt.Errorf("%s: not a TIFF file", name)
	}

	tiffTIFF, err := tiff.Parse(g.file, tiff.GetTagSpace("GeoTIFF"), nil)
	if err != nil {
		return nil, err
	}
	if len(tiffTIFF.IFDs()) != 1 {
		return nil, fmt.Errorf("%s: found %d IFDs, expected 1", name, len(tiffTIFF.IFDs()))
	}
	var ifd geoTIFFIFD
	if err := tiff.UnmarshalIFD(tiffTIFF.IFDs()[0], &ifd); err != nil {
		return nil, err
	}
	if err := g.init(&ifd); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	ok = true
	return g, nil
}

// WithChunkCacheSize sets the size in bytes of the decoded chunk cache.
func WithChunkCacheSize(chunkCacheSizeBytes int) GeoTIFFOption {
	return func(g *GeoTIFF) {
		g.chunkCacheSizeBytes = chunkCacheSizeBytes
	}
}

func (g *GeoTIFF) init(ifd *geoTIFFIFD) error {
	g.samplesPerPixel = max(int(ifd.SamplesPerPixel), 1)
	if ifd.PlanarConfiguration > 1 {
		return errors.ErrUnsupported
	}

	if len(ifd.BitsPerSample) == 0 {
		return errors.New("missing BitsPerSample")
	}
	bitsPerSample := ifd.BitsPerSample[0]
	sampleFormat := uint16(sampleFormatUint)
	if len(ifd.SampleFormat) > 0 {
		sampleFormat = ifd.SampleFormat[0]
	}
	for _, bits := range ifd.BitsPerSample {
		if bits != bitsPerSample {
			return errors.ErrUnsupported
		}
	}
	for _, format := range ifd.SampleFormat {
		if format != sampleFormat {
			return errors.ErrUnsupported
		}
	}
	g.bytesPerSample = int(bitsPerSample) / 8
	g.decodeSample = sampleDecoder(g.byteOrder, sampleFormat, bitsPerSample)
	if g.decodeSample == nil {
		return fmt.Errorf("sample format %d with %d bits: %w", sampleFormat, bitsPerSample, errors.ErrUnsupported)
	}

	switch g.compression = int(ifd.Compression); g.compression {
	case 0:
		g.compression = compressionNone
	case compressionNone, compressionLZW, compressionDeflate, compressionAdobeDeflate:
	default:
		return fmt.Errorf("compression %d: %w", g.compression, errors.ErrUnsupported)
	}
	switch g.predictor = int(ifd.Predictor); g.predictor {
	case 0:
		g.predictor = predictorNone
	case predictorNone:
	case predictorHorizontal:
		if sampleFormat == sampleFormatFloat {
			return fmt.Errorf("horizontal predictor with floating point samples: %w", errors.ErrUnsupported)
		}
	default:
		return fmt.Errorf("predictor %d: %w", g.predictor, errors.ErrUnsupported)
	}

	g.imageWidth = int(ifd.ImageWidth)
	g.imageLength = int(ifd.ImageLength)
	g.tileWidth = int(ifd.TileWidth)
	g.tileLength = int(ifd.TileLength)
	if g.imageWidth == 0 || g.imageLength == 0 || g.tileWidth == 0 || g.tileLength == 0 {
		return errors.New("not a tiled image")
	}
	g.tilesAcross = (g.imageWidth + g.tileWidth - 1) / g.tileWidth
	g.tilesDown = (g.imageLength + g.tileLength - 1) / g.tileLength
	tilesPerImage := g.tilesAcross * g.tilesDown
	if len(ifd.TileByteCounts) != tilesPerImage || len(ifd.TileOffsets) != tilesPerImage {
		return errors.New("incorrect number of tile byte counts or offsets")
	}
	g.tileOffsets = ifd.TileOffsets
	g.tileByteCounts = ifd.TileByteCounts
	g.smallestTileByteCount = slices.Min(ifd.TileByteCounts)
	g.chunkSampleCount = g.tileWidth * g.tileLength * g.samplesPerPixel
	g.chunkByteCountUncompressed = g.chunkSampleCount * g.bytesPerSample

	if ifd.GDALNoData != "" {
		nodata, err := strconv.ParseFloat(strings.TrimRight(ifd.GDALNoData, "\x00 "), 64)
		if err != nil {
			return fmt.Errorf("GDAL nodata %q: %w", ifd.GDALNoData, err)
		}
		g.nodata = nodata
		g.hasNodata = true
	} else {
		g.nodata = DefaultNodata
	}

	if len(ifd.GeoKeyDirectoryTag) != 0 {
		keys, err := parseGeoKeys(ifd.GeoKeyDirectoryTag, ifd.GeoDoubleParamsTag, ifd.GeoASCIIParamsTag)
		if err != nil {
			return err
		}
		g.crs = keys.crs()
		if g.crs != 0 && g.crs != epsgWGS84 {
			return fmt.Errorf("EPSG:%d: %w", g.crs, errors.ErrUnsupported)
		}
		if err := g.initExtent(ifd, keys.pixelIsPoint()); err != nil {
			return err
		}
	} else if err := g.initExtent(ifd, false); err != nil {
		return err
	}

	chunkCacheCount := max(g.chunkCacheSizeBytes/max(g.chunkByteCountUncompressed, 1), 1)
	var err error
	g.chunkCache, err = otter.New(&otter.Options[chunkCoord, []float32]{
		MaximumSize: chunkCacheCount,
	})
	return err
}

func (g *GeoTIFF) initExtent(ifd *geoTIFFIFD, pixelIsPoint bool) error {
	if len(ifd.ModelPixelScaleTag) < 2 || len(ifd.ModelTiepointTag) < 6 {
		return errors.New("missing georeferencing")
	}
	scaleX, scaleY := ifd.ModelPixelScaleTag[0], ifd.ModelPixelScaleTag[1]
	if scaleX <= 0 || scaleY <= 0 {
		return errors.ErrUnsupported
	}
	i, j := ifd.ModelTiepointTag[0], ifd.ModelTiepointTag[1]
	x, y := ifd.ModelTiepointTag[3], ifd.ModelTiepointTag[4]
	west := x - i*scaleX
	north := y + j*scaleY
	if pixelIsPoint {
		west -= scaleX / 2
		north += scaleY / 2
	}
	g.extent = orb.Bound{
		Min: orb.Point{west, north - float64(g.imageLength)*scaleY},
		Max: orb.Point{west + float64(g.imageWidth)*scaleX, north},
	}
	return nil
}

// Close closes g.
func (g *GeoTIFF) Close() error {
	return g.file.Close()
}

// Extent returns g's geographic extent.
func (g *GeoTIFF) Extent() orb.Bound {
	return g.extent
}

// Size returns g's width and height in pixels.
func (g *GeoTIFF) Size() (int, int) {
	return g.imageWidth, g.imageLength
}

// Nodata returns g's nodata value and whether it was set in the file.
func (g *GeoTIFF) Nodata() (float64, bool) {
	return g.nodata, g.hasNodata
}

// ReadDataset reads the whole of g into a new Dataset with one band per
// sample.
func (g *GeoTIFF) ReadDataset(ctx context.Context) (*Dataset, error) {
	pixelCount := g.imageWidth * g.imageLength
	bands := make([][]float32, g.samplesPerPixel)
	for b := range bands {
		bands[b] = make([]float32, pixelCount)
		for i := range bands[b] {
			bands[b][i] = float32(g.nodata)
		}
	}

	for r := range g.tilesDown {
		for c := range g.tilesAcross {
			switch chunkSamples, err := g.getChunkSamplesCached(ctx, chunkCoord{C: c, R: r}); {
			case errors.Is(err, otter.ErrNotFound):
				continue
			case err != nil:
				return nil, err
			default:
				g.copyChunk(bands, chunkSamples, c, r)
			}
		}
	}

	d, err := NewDataset(g.imageWidth, g.imageLength, g.extent, bands[0], WithNodata(g.nodata))
	if err != nil {
		return nil, err
	}
	for _, band := range bands[1:] {
		if _, err := d.AddBand(band); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// copyChunk copies the samples of the chunk at (c, r) into bands, clipping
// chunks that extend beyond the image.
func (g *GeoTIFF) copyChunk(bands [][]float32, chunkSamples []float32, c, r int) {
	for y := range g.tileLength {
		imageY := r*g.tileLength + y
		if imageY >= g.imageLength {
			break
		}
		for x := range g.tileWidth {
			imageX := c*g.tileWidth + x
			if imageX >= g.imageWidth {
				break
			}
			for b := range g.samplesPerPixel {
				bands[b][imageY*g.imageWidth+imageX] = chunkSamples[(y*g.tileWidth+x)*g.samplesPerPixel+b]
			}
		}
	}
}

// Samples returns the values of the 1-based band at pixels. Pixels outside the
// image or containing nodata yield NaN.
func (g *GeoTIFF) Samples(ctx context.Context, band int, pixels []Pixel) ([]float64, error) {
	if band < 1 || g.samplesPerPixel < band {
		return nil, &NotFoundError{Ref: Index(band)}
	}
	samples := make([]float64, len(pixels))

	// Group indexes by chunk coord.
	indexesByChunkCoord := make(map[chunkCoord][]int)
	for index, pixel := range pixels {
		if pixel.X < 0 || g.imageWidth <= pixel.X || pixel.Y < 0 || g.imageLength <= pixel.Y {
			samples[index] = math.NaN()
			continue
		}
		coord := chunkCoord{C: pixel.X / g.tileWidth, R: pixel.Y / g.tileLength}
		indexesByChunkCoord[coord] = append(indexesByChunkCoord[coord], index)
	}

	// Populate samples one chunk at a time.
	for coord, indexes := range indexesByChunkCoord {
		switch chunkSamples, err := g.getChunkSamplesCached(ctx, coord); {
		case errors.Is(err, otter.ErrNotFound):
			for _, index := range indexes {
				samples[index] = math.NaN()
			}
		case err != nil:
			return nil, err
		default:
			for _, index := range indexes {
				pixel := pixels[index]
				offset := ((pixel.Y%g.tileLength)*g.tileWidth + pixel.X%g.tileWidth) * g.samplesPerPixel
				sample := chunkSamples[offset+band-1]
				if isNodata(sample, g.nodata) {
					samples[index] = math.NaN()
				} else {
					samples[index] = float64(sample)
				}
			}
		}
	}

	return samples, nil
}

// getCompressedChunkData returns the compressed data of the chunk at coord.
// If the chunk is known to be empty, it returns otter.ErrNotFound.
func (g *GeoTIFF) getCompressedChunkData(coord chunkCoord) ([]byte, error) {
	chunkIndex := coord.C + g.tilesAcross*coord.R
	byteCount := g.tileByteCounts[chunkIndex]
	if byteCount == 0 {
		return nil, otter.ErrNotFound
	}
	compressedData := make([]byte, byteCount)
	switch n, err := g.file.ReadAt(compressedData, int64(g.tileOffsets[chunkIndex])); {
	case err != nil && !(errors.Is(err, io.EOF) && n == int(byteCount)):
		return nil, err
	case n != int(byteCount):
		return nil, errShortRead
	case g.emptyChunkBytes != nil && bytes.Equal(compressedData, g.emptyChunkBytes):
		return nil, otter.ErrNotFound
	default:
		return compressedData, nil
	}
}

// decompressChunkData decompresses compressedData.
func (g *GeoTIFF) decompressChunkData(compressedData []byte) ([]byte, error) {
	var r io.Reader
	switch g.compression {
	case compressionNone:
		if len(compressedData) < g.chunkByteCountUncompressed {
			return nil, errShortRead
		}
		return compressedData[:g.chunkByteCountUncompressed], nil
	case compressionLZW:
		lzwReader := lzw.NewReader(bytes.NewReader(compressedData), lzw.MSB, 8)
		defer lzwReader.Close()
		r = lzwReader
	default:
		zlibReader, err := zlib.NewReader(bytes.NewReader(compressedData))
		if err != nil {
			return nil, err
		}
		defer zlibReader.Close()
		r = zlibReader
	}
	chunkData := make([]byte, g.chunkByteCountUncompressed)
	if _, err := io.ReadFull(r, chunkData); err != nil {
		return nil, err
	}
	return chunkData, nil
}

// undoHorizontalPredictor reverses horizontal differencing in place.
func (g *GeoTIFF) undoHorizontalPredictor(chunkData []byte) {
	stride := g.samplesPerPixel * g.bytesPerSample
	rowBytes := g.tileWidth * stride
	for row := range g.tileLength {
		rowData := chunkData[row*rowBytes : (row+1)*rowBytes]
		for i := stride; i < rowBytes; i += g.bytesPerSample {
			prev, cur := rowData[i-stride:], rowData[i:]
			switch g.bytesPerSample {
			case 1:
				cur[0] += prev[0]
			case 2:
				g.byteOrder.PutUint16(cur, g.byteOrder.Uint16(cur)+g.byteOrder.Uint16(prev))
			case 4:
				g.byteOrder.PutUint32(cur, g.byteOrder.Uint32(cur)+g.byteOrder.Uint32(prev))
			}
		}
	}
}

// decodeChunkData decodes chunkData.
func (g *GeoTIFF) decodeChunkData(chunkData []byte) []float32 {
	chunkSamples := make([]float32, g.chunkSampleCount)
	for i := range g.chunkSampleCount {
		chunkSamples[i] = g.decodeSample(chunkData[i*g.bytesPerSample : (i+1)*g.bytesPerSample])
	}
	return chunkSamples
}

// getChunkSamples returns the decoded samples of the chunk at coord.
func (g *GeoTIFF) getChunkSamples(ctx context.Context, coord chunkCoord) ([]float32, error) {
	compressedChunkData, err := g.getCompressedChunkData(coord)
	if err != nil {
		return nil, err
	}

	chunkData, err := g.decompressChunkData(compressedChunkData)
	if err != nil {
		return nil, err
	}
	if g.predictor == predictorHorizontal {
		g.undoHorizontalPredictor(chunkData)
	}
	chunkSamples := g.decodeChunkData(chunkData)

	// Remember what an empty chunk looks like compressed so that later empty
	// chunks are detected before decompression. The empty chunk is assumed
	// to be the smallest.
	if g.hasNodata && g.emptyChunkBytes == nil && len(compressedChunkData) == int(g.smallestTileByteCount) {
		isEmptyChunk := true
		for _, sample := range chunkSamples {
			if !isNodata(sample, g.nodata) {
				isEmptyChunk = false
				break
			}
		}
		if isEmptyChunk {
			g.emptyChunkBytes = compressedChunkData
			return nil, otter.ErrNotFound
		}
	}

	return chunkSamples, nil
}

// getChunkSamplesCached returns the samples of the chunk at coord using g's
// cache.
func (g *GeoTIFF) getChunkSamplesCached(ctx context.Context, coord chunkCoord) ([]float32, error) {
	return g.chunkCache.Get(ctx, coord, otter.LoaderFunc[chunkCoord, []float32](g.getChunkSamples))
}

// sampleDecoder returns a function that decodes a single sample, or nil if
// the combination is not supported.
func sampleDecoder(byteOrder binary.ByteOrder, sampleFormat, bitsPerSample uint16) func([]byte) float32 {
	switch {
	case sampleFormat == sampleFormatUint && bitsPerSample == 8:
		return func(b []byte) float32 { return float32(b[0]) }
	case sampleFormat == sampleFormatUint && bitsPerSample == 16:
		return func(b []byte) float32 { return float32(byteOrder.Uint16(b)) }
	case sampleFormat == sampleFormatUint && bitsPerSample == 32:
		return func(b []byte) float32 { return float32(byteOrder.Uint32(b)) }
	case sampleFormat == sampleFormatInt && bitsPerSample == 8:
		return func(b []byte) float32 { return float32(int8(b[0])) }
	case sampleFormat == sampleFormatInt && bitsPerSample == 16:
		return func(b []byte) float32 { return float32(int16(byteOrder.Uint16(b))) }
	case sampleFormat == sampleFormatInt && bitsPerSample == 32:
		return func(b []byte) float32 { return float32(int32(byteOrder.Uint32(b))) }
	case sampleFormat == sampleFormatFloat && bitsPerSample == 32:
		return func(b []byte) float32 { return math.Float32frombits(byteOrder.Uint32(b)) }
	case sampleFormat == sampleFormatFloat && bitsPerSample == 64:
		return func(b []byte) float32 { return float32(math.Float64frombits(byteOrder.Uint64(b))) }
	default:
		return nil
	}
}
